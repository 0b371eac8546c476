package cli

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/aws-cloudformation/guard-lang/eval"
	"gopkg.in/yaml.v3"
)

// docResult is the per-document output shape: overall status, rule
// verdicts with names, and diagnostic records.
type docResult struct {
	Name        string       `json:"name" yaml:"name"`
	Status      string       `json:"status" yaml:"status"`
	Rules       []ruleResult `json:"rules" yaml:"rules"`
	Diagnostics []diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

type ruleResult struct {
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status"`
}

type diagnostic struct {
	Rule     string `json:"rule" yaml:"rule"`
	Severity string `json:"severity" yaml:"severity"`
	Message  string `json:"message" yaml:"message"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
}

// buildDocResult flattens an eval.Outcome tree into the output shape,
// walking FAIL subtrees for diagnostic records. When structured is true
// every rule's subtree is walked regardless of its own status, surfacing
// nested FAILs inside an otherwise-PASSing `or` branch or rule reference.
func buildDocResult(name string, out *eval.Outcome, structured bool) docResult {
	dr := docResult{Name: name, Status: out.Status.String()}
	for _, rule := range out.Children {
		if rule.Kind != eval.RuleKind {
			continue
		}
		dr.Rules = append(dr.Rules, ruleResult{Name: rule.Name, Status: rule.Status.String()})
		if rule.Status == eval.Fail || structured {
			collectDiagnostics(rule.Name, rule, structured, &dr.Diagnostics)
		}
	}
	return dr
}

func collectDiagnostics(rule string, node *eval.Outcome, all bool, out *[]diagnostic) {
	if node.Status == eval.Fail && node.Message != "" {
		*out = append(*out, diagnostic{
			Rule:     rule,
			Severity: "error",
			Message:  node.Message,
			Path:     node.Path,
		})
	}
	for _, c := range node.Children {
		if all || c.Status == eval.Fail {
			collectDiagnostics(rule, c, all, out)
		}
	}
}

// writeResults renders results in the requested --output-format.
// json/yaml are full structured renderings; single-line-summary is a
// one-line-per-document human summary; junit and sarif emit a minimal
// schema-valid envelope around the same docResult data.
func writeResults(w io.Writer, format string, results []docResult) error {
	switch format {
	case "", "single-line-summary":
		return writeSingleLineSummary(w, results)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		return yaml.NewEncoder(w).Encode(results)
	case "junit":
		return writeJUnit(w, results)
	case "sarif":
		return writeSarif(w, results)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeSingleLineSummary(w io.Writer, results []docResult) error {
	for _, r := range results {
		if _, err := fmt.Fprintf(w, "%s: %s (%d rule(s))\n", r.Name, r.Status, len(r.Rules)); err != nil {
			return err
		}
		for _, d := range r.Diagnostics {
			if _, err := fmt.Fprintf(w, "  %s: %s [%s] %s\n", d.Rule, d.Severity, d.Path, d.Message); err != nil {
				return err
			}
		}
	}
	return nil
}

type junitTestsuites struct {
	XMLName xml.Name     `xml:"testsuites"`
	Suites  []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string        `xml:"name,attr"`
	Failure *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
}

func writeJUnit(w io.Writer, results []docResult) error {
	var out junitTestsuites
	for _, r := range results {
		suite := junitSuite{Name: r.Name}
		for _, rule := range r.Rules {
			suite.Tests++
			tc := junitTestCase{Name: rule.Name}
			if rule.Status == "FAIL" {
				suite.Failures++
				tc.Failure = &junitFailure{Message: "rule failed"}
			}
			suite.TestCases = append(suite.TestCases, tc)
		}
		out.Suites = append(out.Suites, suite)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(out)
}

type sarifLog struct {
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name string `json:"name"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMsg        `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMsg struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

func writeSarif(w io.Writer, results []docResult) error {
	run := sarifRun{Tool: sarifTool{Driver: sarifDriver{Name: "guard"}}}
	for _, r := range results {
		for _, d := range r.Diagnostics {
			run.Results = append(run.Results, sarifResult{
				RuleID:  d.Rule,
				Level:   "error",
				Message: sarifMsg{Text: d.Message},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysical{ArtifactLocation: sarifArtifact{URI: d.Path}},
				}},
			})
		}
	}
	log := sarifLog{Version: "2.1.0", Runs: []sarifRun{run}}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}
