package parser_test

import (
	"strings"
	"testing"

	"github.com/aws-cloudformation/guard-lang/lang/ast"
	"github.com/aws-cloudformation/guard-lang/lang/parser"
)

func mustParse(t *testing.T, src string) *ast.File {
	t.Helper()
	file, errs := parser.ParseFile("test.guard", []byte(src))
	if errs.Err() != nil {
		t.Fatalf("unexpected parse errors: %v", errs.Err())
	}
	return file
}

func TestParseFileScopedAssignmentAndRule(t *testing.T) {
	file := mustParse(t, `
let bs = Resources.*[ Type == 'AWS::S3::Bucket' ]
rule bucket_encrypted when %bs !empty {
	%bs[*].Properties.BucketEncryption exists
}
`)
	if len(file.Assignments) != 1 || file.Assignments[0].Name != "bs" {
		t.Fatalf("expected one file-scoped assignment named bs, got %+v", file.Assignments)
	}
	if len(file.Rules) != 1 {
		t.Fatalf("expected one rule, got %d", len(file.Rules))
	}
	r := file.Rules[0]
	if r.Name != "bucket_encrypted" {
		t.Errorf("rule name = %q", r.Name)
	}
	if len(r.When) != 1 {
		t.Fatalf("expected one when guard, got %d", len(r.When))
	}
	if len(r.Body.Items) != 1 {
		t.Fatalf("expected one body item, got %d", len(r.Body.Items))
	}
	clause, ok := r.Body.Items[0].(*ast.Clause)
	if !ok {
		t.Fatalf("expected a *ast.Clause body item, got %T", r.Body.Items[0])
	}
	if clause.UnaryOp != ast.OpExists {
		t.Errorf("expected OpExists, got %v", clause.UnaryOp)
	}
}

func TestParseParameterisedRuleArity(t *testing.T) {
	file := mustParse(t, `
rule checkTag(key, value) {
	Tags[*].Key == %key
}
rule caller {
	checkTag("env", "prod")
}
`)
	if len(file.Rules[0].Params) != 2 {
		t.Fatalf("expected 2 params, got %v", file.Rules[0].Params)
	}
	call, ok := file.Rules[1].Body.Items[0].(*ast.RuleCall)
	if !ok {
		t.Fatalf("expected a *ast.RuleCall, got %T", file.Rules[1].Body.Items[0])
	}
	if call.Name != "checkTag" || len(call.Args) != 2 {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestParseDisjunctionWithOr(t *testing.T) {
	file := mustParse(t, `rule r { Environment == "prod" or Environment == "staging" }`)
	clause := file.Rules[0].Body.Items[0].(*ast.Clause)
	if clause.Or == nil {
		t.Fatalf("expected an 'or' chain")
	}
}

func TestParseCustomMessage(t *testing.T) {
	file := mustParse(t, `rule r { Properties.Encrypted == true << must enable encryption >> }`)
	clause := file.Rules[0].Body.Items[0].(*ast.Clause)
	if !strings.Contains(clause.Message, "must enable encryption") {
		t.Errorf("expected custom message to be preserved, got %q", clause.Message)
	}
}

func TestParseNestedBlockWithSomeQuantifier(t *testing.T) {
	file := mustParse(t, `
rule r {
	some Resources.*.Properties.Tags[*] {
		Key == "PROD"
	}
}
`)
	nb, ok := file.Rules[0].Body.Items[0].(*ast.NestedBlock)
	if !ok {
		t.Fatalf("expected a *ast.NestedBlock, got %T", file.Rules[0].Body.Items[0])
	}
	if !nb.Some {
		t.Errorf("expected Some to be set")
	}
}

func TestParseDuplicateRuleNameIsAnError(t *testing.T) {
	_, errs := parser.ParseFile("test.guard", []byte(`
rule r { this exists }
rule r { this exists }
`))
	if errs.Err() == nil {
		t.Fatalf("expected a duplicate-rule-name diagnostic")
	}
}

func TestParseUnterminatedStringRecordsDiagnostic(t *testing.T) {
	_, errs := parser.ParseFile("test.guard", []byte(`rule r { Foo == "unterminated }`))
	if errs.Err() == nil {
		t.Fatalf("expected a diagnostic for the unterminated string")
	}
}

func TestParseUnknownTopLevelTokenRecoversToNextRule(t *testing.T) {
	file, errs := parser.ParseFile("test.guard", []byte(`
???
rule r { this exists }
`))
	if errs.Err() == nil {
		t.Fatalf("expected a diagnostic for the stray token")
	}
	if len(file.Rules) != 1 {
		t.Fatalf("expected parser to recover and still find rule r, got %d rules", len(file.Rules))
	}
}

func TestParseKeysInOperator(t *testing.T) {
	file := mustParse(t, `rule r { Properties keys in ["Name", "Tags"] }`)
	clause := file.Rules[0].Body.Items[0].(*ast.Clause)
	if clause.BinaryOp != ast.OpKeysIn {
		t.Errorf("expected OpKeysIn, got %v", clause.BinaryOp)
	}
}

func TestParseVariableStepInsideLargerQuery(t *testing.T) {
	file := mustParse(t, `
let name = Properties.BucketName
rule r {
	%name.Length > 3
}
`)
	clause := file.Rules[0].Body.Items[0].(*ast.Clause)
	if len(clause.Query.Steps) < 2 {
		t.Fatalf("expected the variable step to be followed by a key step, got %d steps", len(clause.Query.Steps))
	}
	if _, ok := clause.Query.Steps[0].(ast.VariableRef); !ok {
		t.Fatalf("expected first step to be a VariableRef, got %T", clause.Query.Steps[0])
	}
}

func TestParseDuplicateLetBindingInSameScopeIsAnError(t *testing.T) {
	_, errs := parser.ParseFile("test.guard", []byte(`
let x = Resources
let x = Outputs
rule r { this exists }
`))
	if errs.Err() == nil {
		t.Fatalf("expected a duplicate-binding diagnostic for file-scoped x")
	}

	_, errs = parser.ParseFile("test.guard", []byte(`
rule r {
	let y = Resources
	let y = Outputs
	this exists
}
`))
	if errs.Err() == nil {
		t.Fatalf("expected a duplicate-binding diagnostic for block-scoped y")
	}
}

func TestParseShadowingOuterLetIsNotAnError(t *testing.T) {
	mustParse(t, `
let x = Resources
rule r {
	let x = Outputs
	this exists
}
`)
}

func TestParseArityMismatchIsAParseError(t *testing.T) {
	_, errs := parser.ParseFile("test.guard", []byte(`
rule checkTag(key, value) {
	Tags[*].Key == %key
}
rule caller {
	checkTag("env")
}
`))
	if errs.Err() == nil {
		t.Fatalf("expected an arity-mismatch diagnostic")
	}
}

func TestParseNegationSpellings(t *testing.T) {
	file := mustParse(t, `
rule r {
	not Foo exists
	Bar !exists
	%baz !empty
}
`)
	for i, it := range file.Rules[0].Body.Items {
		clause, ok := it.(*ast.Clause)
		if !ok {
			t.Fatalf("item %d: expected a *ast.Clause, got %T", i, it)
		}
		if !clause.Not {
			t.Errorf("item %d: expected Not to be set", i)
		}
	}
}

func TestParseRuleReferenceAsWhenGuard(t *testing.T) {
	file := mustParse(t, `
rule child { this exists }
rule parent when child {
	this exists
}
`)
	guard := file.Rules[1].When[0]
	call, ok := guard.(*ast.RuleCall)
	if !ok {
		t.Fatalf("expected a *ast.RuleCall guard, got %T", guard)
	}
	if call.Name != "child" {
		t.Errorf("expected guard to reference rule 'child', got %q", call.Name)
	}
}
