package eval_test

import (
	"strings"
	"testing"

	"github.com/aws-cloudformation/guard-lang/eval"
	"github.com/aws-cloudformation/guard-lang/lang/parser"
	"github.com/aws-cloudformation/guard-lang/loader"
)

func ruleStatus(t *testing.T, out *eval.Outcome, name string) eval.Status {
	t.Helper()
	for _, c := range out.Children {
		if c.Kind == eval.RuleKind && c.Name == name {
			return c.Status
		}
	}
	t.Fatalf("no such rule %q in outcome tree: %+v", name, out)
	return eval.Skip
}

// TestMissingPropertyFailsWithDiagnostic covers a bucket lacking
// BucketEncryption entirely: the rule fails, with a diagnostic naming the
// missing property rather than silently skipping.
func TestMissingPropertyFailsWithDiagnostic(t *testing.T) {
	file, errs := parser.ParseFile("s3.guard", []byte(`
let bs = Resources.*[ Type == 'AWS::S3::Bucket' ]
rule bucket_encrypted when %bs !empty {
	%bs[*].Properties.BucketEncryption exists
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	doc, err := loader.LoadJSON("template.json", []byte(`{
		"Resources": {
			"MyBucket": {
				"Type": "AWS::S3::Bucket",
				"Properties": {}
			}
		}
	}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	ev, err := eval.New(file, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	out := ev.Evaluate(doc)
	if got := ruleStatus(t, out, "bucket_encrypted"); got != eval.Fail {
		t.Fatalf("expected FAIL, got %s", got)
	}
}

// TestSomeVsUniversalQuantifierDivergence checks that the same document
// passes under `some` (existential) but fails under the default
// universal block semantics, since one tagged element matches and one
// does not.
func TestSomeVsUniversalQuantifierDivergence(t *testing.T) {
	docJSON := `{
		"Tags": [
			{ "Key": "env", "Value": "prod" },
			{ "Key": "owner", "Value": "team-a" }
		]
	}`
	doc, err := loader.LoadJSON("doc.json", []byte(docJSON))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	someFile, errs := parser.ParseFile("some.guard", []byte(`
rule r {
	some Tags[*] {
		Key == "env"
	}
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	someEv, err := eval.New(someFile, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	someOut := someEv.Evaluate(doc)
	if got := ruleStatus(t, someOut, "r"); got != eval.Pass {
		t.Fatalf("expected some-quantified rule to PASS, got %s", got)
	}

	universalFile, errs := parser.ParseFile("universal.guard", []byte(`
rule r {
	Tags[*] {
		Key == "env"
	}
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	universalEv, err := eval.New(universalFile, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	universalOut := universalEv.Evaluate(doc)
	if got := ruleStatus(t, universalOut, "r"); got != eval.Fail {
		t.Fatalf("expected universally-quantified rule to FAIL, got %s", got)
	}
}

// TestWhenGuardSkipsOnChildRuleFailure covers rule composition where a
// parent rule's `when` guard references a child rule; the child's own
// FAIL is recorded in the tree, and the parent SKIPs rather than
// evaluating its body.
func TestWhenGuardSkipsOnChildRuleFailure(t *testing.T) {
	file, errs := parser.ParseFile("compose.guard", []byte(`
rule child {
	this == "never"
}
rule parent when child {
	this exists
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	doc, err := loader.LoadJSON("doc.json", []byte(`"actual"`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	ev, err := eval.New(file, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	out := ev.Evaluate(doc)
	if got := ruleStatus(t, out, "child"); got != eval.Fail {
		t.Fatalf("expected child to FAIL, got %s", got)
	}
	if got := ruleStatus(t, out, "parent"); got != eval.Skip {
		t.Fatalf("expected parent to SKIP when its guard fails, got %s", got)
	}
}

// TestFilterSkipsWhenNoElementsMatch covers the filter-skipping invariant:
// a `when` guard over an always-empty filtered collection makes the rule
// SKIP rather than FAIL or PASS.
func TestFilterSkipsWhenNoElementsMatch(t *testing.T) {
	file, errs := parser.ParseFile("filter.guard", []byte(`
let bs = Resources.*[ Type == 'AWS::SQS::Queue' ]
rule bucket_encrypted when %bs !empty {
	%bs[*].Properties.BucketEncryption exists
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	doc, err := loader.LoadJSON("template.json", []byte(`{
		"Resources": {
			"MyBucket": { "Type": "AWS::S3::Bucket", "Properties": {} }
		}
	}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	ev, err := eval.New(file, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	out := ev.Evaluate(doc)
	if got := ruleStatus(t, out, "bucket_encrypted"); got != eval.Skip {
		t.Fatalf("expected SKIP when the filter matches nothing, got %s", got)
	}
}

// TestMissingPropertyDiagnosticNamesPropertyAndPath tightens the missing
// encryption scenario: the failing clause must record which property was
// absent and the last resolved path, for the formatters to surface.
func TestMissingPropertyDiagnosticNamesPropertyAndPath(t *testing.T) {
	file, errs := parser.ParseFile("s3.guard", []byte(`
let bs = Resources.*[ Type == 'AWS::S3::Bucket' ]
rule R when %bs !empty {
	%bs[*].Properties.BucketEncryption.ServerSideEncryptionConfiguration[*].ServerSideEncryptionByDefault.SSEAlgorithm in ["aws:kms", "AES256"]
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	doc, err := loader.LoadJSON("template.json", []byte(`{
		"Resources": {
			"B": {
				"Type": "AWS::S3::Bucket",
				"Properties": {"BucketName": "b"}
			}
		}
	}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	ev, err := eval.New(file, eval.Config{ShowMissingValueDetails: true})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	out := ev.Evaluate(doc)
	if got := ruleStatus(t, out, "R"); got != eval.Fail {
		t.Fatalf("expected FAIL, got %s", got)
	}
	var found bool
	var walk func(n *eval.Outcome)
	walk = func(n *eval.Outcome) {
		if n.Status == eval.Fail && n.Path == "/Resources/B/Properties" && strings.Contains(n.Message, "BucketEncryption") {
			found = true
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(out)
	if !found {
		t.Fatalf("expected a diagnostic naming BucketEncryption at /Resources/B/Properties")
	}
}

// TestSomeAsIndependentClausesVsBlockForm pins down the quantifier-scope
// divergence: two `some` clauses checked independently both find a
// satisfying element, while the same checks grouped in a block over the
// tag collection require one element to satisfy both.
func TestSomeAsIndependentClausesVsBlockForm(t *testing.T) {
	docJSON := `{
		"Resources": {
			"X": {
				"Properties": {
					"Tags": [
						{"Key": "EndPROD", "Value": "NotAppStart"},
						{"Key": "NotPRODEnd", "Value": "AppStart"}
					]
				}
			}
		}
	}`
	doc, err := loader.LoadJSON("doc.json", []byte(docJSON))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	clauseFile, errs := parser.ParseFile("clauses.guard", []byte(`
rule r {
	some Resources.*.Properties.Tags[*].Key == /PROD$/
	some Resources.*.Properties.Tags[*].Value == /^App/
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	clauseEv, err := eval.New(clauseFile, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	if got := ruleStatus(t, clauseEv.Evaluate(doc), "r"); got != eval.Pass {
		t.Fatalf("expected independent some-clauses to PASS, got %s", got)
	}

	blockFile, errs := parser.ParseFile("block.guard", []byte(`
rule r {
	Resources.*.Properties.Tags[*] {
		Key == /PROD$/
		Value == /^App/
	}
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	blockEv, err := eval.New(blockFile, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	if got := ruleStatus(t, blockEv.Evaluate(doc), "r"); got != eval.Fail {
		t.Fatalf("expected block form to FAIL, got %s", got)
	}
}

// TestOrChainConsideredAfterSkip covers the three-valued disjunction: a
// SKIPped left clause does not decide the chain, so a passing `or`
// alternative still makes the clause PASS.
func TestOrChainConsideredAfterSkip(t *testing.T) {
	file, errs := parser.ParseFile("or.guard", []byte(`
rule r {
	Resources.*[ Type == 'Nope' ] exists or Name exists
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	doc, err := loader.LoadJSON("doc.json", []byte(`{
		"Name": "x",
		"Resources": {"A": {"Type": "Yes"}}
	}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	ev, err := eval.New(file, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	if got := ruleStatus(t, ev.Evaluate(doc), "r"); got != eval.Pass {
		t.Fatalf("expected the or-alternative to rescue the skipped clause, got %s", got)
	}
}

// TestRegexEqualitySymmetry checks that a regex operand matches the same
// way on either side of ==.
func TestRegexEqualitySymmetry(t *testing.T) {
	file, errs := parser.ParseFile("re.guard", []byte(`
let re = /^ab/
rule r {
	Name == %re
	%re == Name
}
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	doc, err := loader.LoadJSON("doc.json", []byte(`{"Name": "abc"}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	ev, err := eval.New(file, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	if got := ruleStatus(t, ev.Evaluate(doc), "r"); got != eval.Pass {
		t.Fatalf("expected both orderings to match, got %s", got)
	}
}

// TestNullLiteralNeverEqualsStringNull pins the null-vs-'null' decision:
// the null keyword compares equal only to a document null, never to the
// string "null".
func TestNullLiteralNeverEqualsStringNull(t *testing.T) {
	file, errs := parser.ParseFile("null.guard", []byte(`
rule null_value { A == null }
rule string_is_not_null { B == null }
rule string_is_string { B == "null" }
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	doc, err := loader.LoadJSON("doc.json", []byte(`{"A": null, "B": "null"}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	ev, err := eval.New(file, eval.Config{})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	out := ev.Evaluate(doc)
	if got := ruleStatus(t, out, "null_value"); got != eval.Pass {
		t.Fatalf("expected A == null to PASS, got %s", got)
	}
	if got := ruleStatus(t, out, "string_is_not_null"); got != eval.Fail {
		t.Fatalf("expected \"null\" == null to FAIL, got %s", got)
	}
	if got := ruleStatus(t, out, "string_is_string"); got != eval.Pass {
		t.Fatalf("expected \"null\" == \"null\" to PASS, got %s", got)
	}
}

// TestCancellationProducesAbortedOutcome covers the cooperative
// cancellation contract: a closed Cancel channel aborts at the next rule
// boundary with a distinguished Aborted outcome.
func TestCancellationProducesAbortedOutcome(t *testing.T) {
	file, errs := parser.ParseFile("cancel.guard", []byte(`
rule r { this exists }
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	doc, err := loader.LoadJSON("doc.json", []byte(`{}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	cancel := make(chan struct{})
	close(cancel)
	ev, err := eval.New(file, eval.Config{Cancel: cancel})
	if err != nil {
		t.Fatalf("eval.New: %v", err)
	}
	out := ev.Evaluate(doc)
	if !out.Aborted {
		t.Fatalf("expected the outcome to be marked Aborted")
	}
	if got := ruleStatus(t, out, "r"); got != eval.Skip {
		t.Fatalf("expected the aborted rule to report SKIP, got %s", got)
	}
}

// TestCyclicRuleReferenceRejectedAtConstruction covers cycle detection: a
// rule file where two rules call each other must be rejected by
// eval.New, never recursed into at evaluation time.
func TestCyclicRuleReferenceRejectedAtConstruction(t *testing.T) {
	file, errs := parser.ParseFile("cycle.guard", []byte(`
rule a { b() }
rule b { a() }
`))
	if errs.Err() != nil {
		t.Fatalf("parse error: %v", errs.Err())
	}
	if _, err := eval.New(file, eval.Config{}); err == nil {
		t.Fatalf("expected a cyclic rule reference to be rejected")
	}
}
