// Package ruleset implements the test-harness entry point of the rule
// language library: it runs a parsed rule file against a
// set of named test cases, each carrying an input document and a map of
// expected PASS/FAIL/SKIP verdicts keyed by rule name, and reports expected
// vs. actual per rule plus pass/fail/skip counters. rgtxtar.go adds a
// txtar-driven fixture harness on top of Run.
package ruleset

import (
	"fmt"

	"github.com/aws-cloudformation/guard-lang/eval"
	"github.com/aws-cloudformation/guard-lang/lang/ast"
	"github.com/aws-cloudformation/guard-lang/value"
)

// Case is one named test case: a named input document together with
// the verdict expected from each rule the case cares about. A rule name
// absent from Expectations is simply not checked for that case.
type Case struct {
	Name         string
	Input        value.Located
	Expectations map[string]eval.Status
}

// RuleResult is the expected-vs-actual comparison for a single rule within
// a single case.
type RuleResult struct {
	Rule     string
	Expected eval.Status
	Actual   eval.Status
}

// Passed reports whether the actual verdict matched what was expected.
func (r RuleResult) Passed() bool { return r.Expected == r.Actual }

// CaseResult is one Case's comparison, across every rule it expects.
type CaseResult struct {
	Name    string
	Results []RuleResult
	Outcome *eval.Outcome // the full outcome tree, for diagnostics
}

// Passed reports whether every expectation in the case matched.
func (c CaseResult) Passed() bool {
	for _, r := range c.Results {
		if !r.Passed() {
			return false
		}
	}
	return true
}

// Report is the overall test report: per rule file, per case, per
// rule, expected vs. actual, plus aggregate counters.
type Report struct {
	FileName string
	Cases    []CaseResult

	Pass int
	Fail int
	Skip int
}

// Run evaluates file against every case's input and compares actual
// verdicts to each case's expectations, accumulating a Report with one
// entry per rule, per case, plus pass/fail/skip counters.
func Run(file *ast.File, cfg eval.Config, cases []Case) (*Report, error) {
	ev, err := eval.New(file, cfg)
	if err != nil {
		return nil, fmt.Errorf("compiling rule file %q: %w", file.Name, err)
	}

	report := &Report{FileName: file.Name}
	for _, c := range cases {
		outcome := ev.Evaluate(c.Input)
		actual := map[string]eval.Status{}
		for _, child := range outcome.Children {
			if child.Kind == eval.RuleKind {
				actual[child.Name] = child.Status
			}
		}

		cr := CaseResult{Name: c.Name, Outcome: outcome}
		for _, ruleName := range sortedKeys(c.Expectations) {
			want := c.Expectations[ruleName]
			got, ran := actual[ruleName]
			if !ran {
				// A rule the case expects but the file never defines, or
				// that only exists as a parameterised template, never
				// produces a top-level outcome: treat as SKIP so the
				// comparison still has something concrete to report
				// rather than silently dropping the expectation.
				got = eval.Skip
			}
			rr := RuleResult{Rule: ruleName, Expected: want, Actual: got}
			cr.Results = append(cr.Results, rr)
			switch got {
			case eval.Pass:
				report.Pass++
			case eval.Fail:
				report.Fail++
			case eval.Skip:
				report.Skip++
			}
		}
		report.Cases = append(report.Cases, cr)
	}
	return report, nil
}

// Passed reports whether every case in the report matched its
// expectations.
func (r *Report) Passed() bool {
	for _, c := range r.Cases {
		if !c.Passed() {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]eval.Status) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
