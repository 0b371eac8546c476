package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aws-cloudformation/guard-lang/eval"
	"github.com/aws-cloudformation/guard-lang/lang/ast"
	"github.com/aws-cloudformation/guard-lang/lang/parser"
	"github.com/aws-cloudformation/guard-lang/loader"
	"github.com/aws-cloudformation/guard-lang/value"
)

// enumFlag is a pflag.Value restricted to a fixed set of words, so that an
// unknown --output-format or --show-summary is rejected at flag-parse time
// with the allowed set in the message rather than surfacing later as a
// formatter error.
type enumFlag struct {
	value   string
	allowed []string
}

var _ pflag.Value = (*enumFlag)(nil)

func newEnumFlag(def string, allowed ...string) *enumFlag {
	return &enumFlag{value: def, allowed: allowed}
}

func (f *enumFlag) String() string { return f.value }
func (f *enumFlag) Type() string   { return "string" }

func (f *enumFlag) Set(s string) error {
	for _, a := range f.allowed {
		if s == a {
			f.value = s
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(f.allowed, "|"))
}

// newValidateCmd implements `validate -r <rules> -d <data>
// --output-format {...} --show-summary {...} --structured`.
func newValidateCmd() *cobra.Command {
	var rulesPath, dataPath string
	var structured bool
	outputFormat := newEnumFlag("single-line-summary", "single-line-summary", "json", "yaml", "junit", "sarif")
	showSummary := newEnumFlag("all", "all", "none", "pass", "fail", "skip")

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Evaluate rule files against data files and report verdicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rulesPath, dataPath, outputFormat.String(), showSummary.String(), structured)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&rulesPath, "rules", "r", "", "path to a rule file or directory of rule files")
	flags.StringVarP(&dataPath, "data", "d", "", "path to a data file or directory of data files")
	flags.Var(outputFormat, "output-format", "single-line-summary|json|yaml|junit|sarif")
	flags.Var(showSummary, "show-summary", "all|none|pass|fail|skip")
	flags.BoolVar(&structured, "structured", false, "collect FAIL diagnostics from every rule's whole outcome tree rather than only from FAILing branches")
	cmd.MarkFlagRequired("rules")
	cmd.MarkFlagRequired("data")

	return cmd
}

func runValidate(cmd *cobra.Command, rulesPath, dataPath, outputFormat, showSummary string, structured bool) error {
	ruleFiles, err := loadRuleFiles(rulesPath)
	if err != nil {
		return err
	}
	docs, err := loadDataFiles(dataPath)
	if err != nil {
		return err
	}

	var results []docResult
	anyFail := false
	anyErr := false
	for _, doc := range docs {
		if doc.err != nil {
			anyErr = true
			// A document that failed to load still gets a result, with the
			// distinct ERR status, so one malformed file does not hide the
			// verdicts of the rest.
			results = append(results, docResult{
				Name:   doc.name,
				Status: "ERR",
				Diagnostics: []diagnostic{
					{Severity: "error", Message: doc.err.Error()},
				},
			})
			continue
		}
		merged := evalAgainstAllFiles(ruleFiles, doc.value)
		if merged.Status == eval.Fail {
			anyFail = true
		}
		dr := buildDocResult(doc.name, merged, structured)
		dr.Rules = filterByShowSummary(dr.Rules, showSummary)
		results = append(results, dr)
	}

	if err := writeResults(cmd.OutOrStdout(), outputFormat, results); err != nil {
		return err
	}
	if anyFail {
		return ruleFailureError("one or more rules failed")
	}
	if anyErr {
		return newPlainError("one or more data files could not be loaded")
	}
	return nil
}

// evalAgainstAllFiles evaluates every loaded rule file against doc and
// folds their per-file outcomes into a single top-level Outcome, since
// the CLI accepts a directory of rule files but the evaluator works one
// RuleFile at a time. The fold uses the same conjunction rule as a rule
// file's own top-level verdict, keeping one exit-code policy end to end.
func evalAgainstAllFiles(files []*ast.File, doc value.Located) *eval.Outcome {
	merged := &eval.Outcome{Kind: eval.FileKind, Name: "validate"}
	statuses := make([]eval.Status, 0, len(files))
	for _, file := range files {
		ev, err := eval.New(file, eval.Config{})
		if err != nil {
			merged.Children = append(merged.Children, &eval.Outcome{
				Kind: eval.FileKind, Name: file.Name, Status: eval.Fail, Message: err.Error(),
			})
			statuses = append(statuses, eval.Fail)
			continue
		}
		out := ev.Evaluate(doc)
		merged.Children = append(merged.Children, out.Children...)
		statuses = append(statuses, out.Status)
	}
	merged.Status = foldValidateStatus(statuses)
	return merged
}

func foldValidateStatus(statuses []eval.Status) eval.Status {
	hasPass := false
	for _, s := range statuses {
		if s == eval.Fail {
			return eval.Fail
		}
		if s == eval.Pass {
			hasPass = true
		}
	}
	if hasPass {
		return eval.Pass
	}
	return eval.Skip
}

func filterByShowSummary(rules []ruleResult, mode string) []ruleResult {
	if mode == "" || mode == "all" {
		return rules
	}
	var out []ruleResult
	for _, r := range rules {
		if strings.EqualFold(r.Status, mode) {
			out = append(out, r)
		}
	}
	return out
}

// loadRuleFiles parses every *.guard file found at path (a single file or
// a directory).
func loadRuleFiles(path string) ([]*ast.File, error) {
	paths, err := discoverFiles(path, ".guard")
	if err != nil {
		return nil, err
	}
	var files []*ast.File
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		file, errs := parser.ParseFile(p, src)
		if errs.Err() != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, errs.Err())
		}
		files = append(files, file)
	}
	return files, nil
}

type namedDoc struct {
	name  string
	value value.Located
	err   error
}

// loadDataFiles loads every JSON/YAML file found at path, delegating the
// actual decode to package loader.
func loadDataFiles(path string) ([]namedDoc, error) {
	paths, err := discoverFiles(path, "")
	if err != nil {
		return nil, err
	}
	var docs []namedDoc
	for _, p := range paths {
		if !isDataExt(p) {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var v value.Located
		if strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml") {
			v, err = loader.LoadYAML(p, data)
		} else {
			v, err = loader.LoadJSON(p, data)
		}
		docs = append(docs, namedDoc{name: p, value: v, err: err})
	}
	return docs, nil
}

func discoverFiles(path, suffix string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var out []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if suffix == "" || strings.HasSuffix(p, suffix) {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func isDataExt(p string) bool {
	for _, e := range []string{".json", ".yaml", ".yml"} {
		if strings.HasSuffix(p, e) {
			return true
		}
	}
	return false
}
