package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aws-cloudformation/guard-lang/eval"
	"github.com/aws-cloudformation/guard-lang/lang/parser"
	"github.com/aws-cloudformation/guard-lang/loader"
	"github.com/aws-cloudformation/guard-lang/ruleset"
	"github.com/aws-cloudformation/guard-lang/value"
)

// newTestCmd implements `test -r <rules> -t <tests>`: it runs the
// ruleset.Run test harness and reports the resulting pass/fail/skip
// counters.
func newTestCmd() *cobra.Command {
	var rulesPath, testsPath string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a rule file against a set of test cases and compare expected verdicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, rulesPath, testsPath)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&rulesPath, "rules", "r", "", "path to a rule file")
	flags.StringVarP(&testsPath, "tests", "t", "", "path to a test-cases YAML/JSON file")
	cmd.MarkFlagRequired("rules")
	cmd.MarkFlagRequired("tests")

	return cmd
}

// testCaseSpec is the on-disk shape of one test case: a name, a path to
// the input document, and a map of rule name to expected PASS/FAIL/SKIP
// verdict. The input document is given by file path rather than inlined,
// since the engine's Value model has no direct YAML/JSON unmarshaler of
// its own (loader.LoadJSON/LoadYAML take bytes, not a generic
// interface{} node).
type testCaseSpec struct {
	Name         string            `yaml:"name" json:"name"`
	Input        string            `yaml:"input" json:"input"`
	Expectations map[string]string `yaml:"expectations" json:"expectations"`
}

func runTest(cmd *cobra.Command, rulesPath, testsPath string) error {
	src, err := os.ReadFile(rulesPath)
	if err != nil {
		return err
	}
	file, errs := parser.ParseFile(rulesPath, src)
	if errs.Err() != nil {
		return fmt.Errorf("parsing %s: %w", rulesPath, errs.Err())
	}

	specData, err := os.ReadFile(testsPath)
	if err != nil {
		return err
	}
	var specs []testCaseSpec
	if err := yaml.Unmarshal(specData, &specs); err != nil {
		return fmt.Errorf("parsing %s: %w", testsPath, err)
	}

	testsDir := filepath.Dir(testsPath)
	var cases []ruleset.Case
	for _, s := range specs {
		inputPath := s.Input
		if !filepath.IsAbs(inputPath) {
			inputPath = filepath.Join(testsDir, inputPath)
		}
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return err
		}
		doc, err := loadDocByExt(inputPath, data)
		if err != nil {
			return err
		}
		expectations := make(map[string]eval.Status, len(s.Expectations))
		for rule, want := range s.Expectations {
			status, ok := parseStatusWord(want)
			if !ok {
				return fmt.Errorf("test case %q: unknown expected verdict %q for rule %q", s.Name, want, rule)
			}
			expectations[rule] = status
		}
		cases = append(cases, ruleset.Case{Name: s.Name, Input: doc, Expectations: expectations})
	}

	report, err := ruleset.Run(file, eval.Config{}, cases)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, cr := range report.Cases {
		for _, rr := range cr.Results {
			symbol := "ok"
			if !rr.Passed() {
				symbol = "MISMATCH"
			}
			fmt.Fprintf(out, "%s: %s/%s expected=%s actual=%s [%s]\n",
				cr.Name, file.Name, rr.Rule, rr.Expected, rr.Actual, symbol)
		}
	}
	fmt.Fprintf(out, "pass=%d fail=%d skip=%d\n", report.Pass, report.Fail, report.Skip)

	if !report.Passed() {
		return ruleFailureError("one or more test cases did not match their expected verdicts")
	}
	return nil
}

func parseStatusWord(s string) (eval.Status, bool) {
	switch s {
	case "PASS":
		return eval.Pass, true
	case "FAIL":
		return eval.Fail, true
	case "SKIP":
		return eval.Skip, true
	}
	return 0, false
}

func loadDocByExt(path string, data []byte) (value.Located, error) {
	if filepath.Ext(path) == ".yaml" || filepath.Ext(path) == ".yml" {
		return loader.LoadYAML(path, data)
	}
	return loader.LoadJSON(path, data)
}
