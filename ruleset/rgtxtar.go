package ruleset

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws-cloudformation/guard-lang/eval"
	"github.com/aws-cloudformation/guard-lang/lang/parser"
	"github.com/aws-cloudformation/guard-lang/loader"
	"github.com/aws-cloudformation/guard-lang/value"
	"golang.org/x/tools/txtar"
)

// TxtarTest runs every .txtar fixture found under Root (or its
// subdirectories). Each archive bundles one rule file ("rules.guard"),
// one or more documents ("in/<case>.json" or "in/<case>.yaml"), and a
// comment header of "#<case>: <rule>=PASS|FAIL|SKIP" lines giving the
// expected verdicts.
type TxtarTest struct {
	// Root directory to walk for *.txtar fixtures.
	Root string
	// Skip maps a fixture's relative path (without extension) to a skip
	// reason.
	Skip map[string]string
}

// Run walks x.Root, parses each fixture's rule file and test case
// documents, evaluates them, and reports mismatches through t.
func (x *TxtarTest) Run(t *testing.T) {
	t.Helper()
	err := filepath.WalkDir(x.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".txtar" {
			return nil
		}
		rel, err := filepath.Rel(x.Root, path)
		if err != nil {
			rel = path
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ".txtar")
		t.Run(name, func(t *testing.T) {
			if msg, ok := x.Skip[name]; ok {
				t.Skip(msg)
			}
			runTxtarFixture(t, path)
		})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func runTxtarFixture(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	archive := txtar.Parse(data)

	var ruleSrc []byte
	var ruleName string
	docs := map[string][]byte{}
	for _, f := range archive.Files {
		switch {
		case f.Name == "rules.guard":
			ruleSrc = f.Data
			ruleName = path
		case strings.HasPrefix(f.Name, "in/"):
			docs[strings.TrimPrefix(f.Name, "in/")] = f.Data
		}
	}
	if ruleSrc == nil {
		t.Fatalf("fixture %s has no rules.guard file", path)
	}

	file, errs := parser.ParseFile(ruleName, ruleSrc)
	if errs.Err() != nil {
		t.Fatalf("parsing %s: %v", ruleName, errs.Err())
	}

	cases := make([]Case, 0, len(docs))
	expectations := parseExpectations(archive.Comment)
	for caseName, raw := range docs {
		doc, err := decodeDoc(caseName, raw)
		if err != nil {
			t.Fatalf("loading %s: %v", caseName, err)
		}
		cases = append(cases, Case{
			Name:         caseName,
			Input:        doc,
			Expectations: expectations[strings.TrimSuffix(caseName, filepath.Ext(caseName))],
		})
	}

	report, err := Run(file, eval.Config{}, cases)
	if err != nil {
		t.Fatalf("evaluating %s: %v", ruleName, err)
	}
	for _, cr := range report.Cases {
		for _, rr := range cr.Results {
			if !rr.Passed() {
				t.Errorf("case %s, rule %s: expected %s, got %s", cr.Name, rr.Rule, rr.Expected, rr.Actual)
			}
		}
	}
}

func decodeDoc(name string, data []byte) (value.Located, error) {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return loader.LoadYAML(name, data)
	default:
		return loader.LoadJSON(name, data)
	}
}

// parseExpectations reads the txtar comment header for lines of the form
//
//	#<case>: <rule>=PASS <rule2>=FAIL
//
// one line per case.
func parseExpectations(comment []byte) map[string]map[string]eval.Status {
	out := map[string]map[string]eval.Status{}
	s := bufio.NewScanner(bytes.NewReader(comment))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "#")
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		caseName := strings.TrimSpace(line[:idx])
		rest := strings.Fields(line[idx+1:])
		verdicts := map[string]eval.Status{}
		for _, pair := range rest {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				continue
			}
			status, ok := parseStatus(kv[1])
			if !ok {
				continue
			}
			verdicts[kv[0]] = status
		}
		out[caseName] = verdicts
	}
	return out
}

func parseStatus(s string) (eval.Status, bool) {
	switch strings.ToUpper(s) {
	case "PASS":
		return eval.Pass, true
	case "FAIL":
		return eval.Fail, true
	case "SKIP":
		return eval.Skip, true
	}
	return 0, false
}

