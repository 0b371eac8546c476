package builtin_test

import (
	"testing"

	"github.com/aws-cloudformation/guard-lang/builtin"
	"github.com/aws-cloudformation/guard-lang/value"
)

func loc(v value.Value) value.Located {
	return value.Resolved(v, value.Root)
}

func TestRegexReplaceSubstitutesMatches(t *testing.T) {
	out := builtin.Apply("regex_replace", loc(value.String("us-east-1")), []value.Value{
		value.Regex("-"), value.String("_"),
	})
	if out.Unresolved {
		t.Fatalf("unexpected unresolved result: %s", out.Reason)
	}
	if got := out.Value.StringValue(); got != "us_east_1" {
		t.Fatalf("got %q", got)
	}
}

func TestRegexReplaceOnNonStringReceiverIsUnresolved(t *testing.T) {
	out := builtin.Apply("regex_replace", loc(value.Int(1)), []value.Value{value.Regex("x"), value.String("y")})
	if !out.Unresolved {
		t.Fatalf("expected unresolved result for a non-string receiver")
	}
}

func TestJoinConcatenatesListElements(t *testing.T) {
	list := value.List([]value.Located{loc(value.String("a")), loc(value.String("b"))})
	out := builtin.Apply("join", loc(list), []value.Value{value.String(",")})
	if out.Unresolved {
		t.Fatalf("unexpected unresolved result: %s", out.Reason)
	}
	if got := out.Value.StringValue(); got != "a,b" {
		t.Fatalf("got %q", got)
	}
}

func TestJoinOnNonListReceiverIsUnresolved(t *testing.T) {
	out := builtin.Apply("join", loc(value.String("x")), []value.Value{value.String(",")})
	if !out.Unresolved {
		t.Fatalf("expected unresolved result for a non-list receiver")
	}
}

func TestCountOverListAndMap(t *testing.T) {
	list := value.List([]value.Located{loc(value.Int(1)), loc(value.Int(2)), loc(value.Int(3))})
	out := builtin.Apply("count", loc(list), nil)
	if out.Unresolved || out.Value.IntValue() != 3 {
		t.Fatalf("expected count==3, got %+v", out)
	}

	m := value.NewMap()
	m.Set("a", loc(value.Int(1)))
	out = builtin.Apply("count", loc(value.MapOf(m)), nil)
	if out.Unresolved || out.Value.IntValue() != 1 {
		t.Fatalf("expected count==1, got %+v", out)
	}
}

func TestCountOnScalarIsUnresolved(t *testing.T) {
	out := builtin.Apply("count", loc(value.Int(1)), nil)
	if !out.Unresolved {
		t.Fatalf("expected unresolved result for a scalar receiver")
	}
}

func TestParseIntRoundTrip(t *testing.T) {
	out := builtin.Apply("parse_int", loc(value.String("42")), nil)
	if out.Unresolved || out.Value.IntValue() != 42 {
		t.Fatalf("got %+v", out)
	}
}

func TestParseIntRejectsNonNumericString(t *testing.T) {
	out := builtin.Apply("parse_int", loc(value.String("not-a-number")), nil)
	if !out.Unresolved {
		t.Fatalf("expected unresolved result for a non-numeric string")
	}
}

func TestParseFloatRoundTrip(t *testing.T) {
	out := builtin.Apply("parse_float", loc(value.String("1.5")), nil)
	if out.Unresolved {
		t.Fatalf("unexpected unresolved result: %s", out.Reason)
	}
	f, ok := out.Value.AsFloat()
	if !ok || f != 1.5 {
		t.Fatalf("got %+v", out)
	}
}

func TestParseStringRendersScalars(t *testing.T) {
	out := builtin.Apply("parse_string", loc(value.Int(7)), nil)
	if out.Unresolved || out.Value.StringValue() != "7" {
		t.Fatalf("got %+v", out)
	}
}

func TestParseStringRejectsCollections(t *testing.T) {
	list := value.List(nil)
	out := builtin.Apply("parse_string", loc(list), nil)
	if !out.Unresolved {
		t.Fatalf("expected unresolved result for a list receiver")
	}
}

func TestParseBooleanRoundTrip(t *testing.T) {
	out := builtin.Apply("parse_boolean", loc(value.String("true")), nil)
	if out.Unresolved || !out.Value.BoolValue() {
		t.Fatalf("got %+v", out)
	}
}

func TestParseBooleanRejectsInvalidString(t *testing.T) {
	out := builtin.Apply("parse_boolean", loc(value.String("maybe")), nil)
	if !out.Unresolved {
		t.Fatalf("expected unresolved result for an invalid boolean string")
	}
}

func TestJSONParseDecodesEmbeddedDocument(t *testing.T) {
	out := builtin.Apply("json_parse", loc(value.String(`{"a": 1, "b": [true, null]}`)), nil)
	if out.Unresolved {
		t.Fatalf("unexpected unresolved result: %s", out.Reason)
	}
	if out.Value.Kind() != value.MapKind {
		t.Fatalf("expected a map, got %v", out.Value.Kind())
	}
	m := out.Value.MapValue()
	a, ok := m.Get("a")
	if !ok || a.Value.IntValue() != 1 {
		t.Fatalf("unexpected 'a' entry: %+v", a)
	}
}

func TestJSONParseRejectsMalformedJSON(t *testing.T) {
	out := builtin.Apply("json_parse", loc(value.String(`{not json`)), nil)
	if !out.Unresolved {
		t.Fatalf("expected unresolved result for malformed JSON")
	}
}

func TestApplyUnknownFunctionNameIsUnresolvedNotPanic(t *testing.T) {
	out := builtin.Apply("no_such_function", loc(value.Int(1)), nil)
	if !out.Unresolved {
		t.Fatalf("expected unresolved result for an unknown built-in name")
	}
}

func TestApplyPassesThroughAnAlreadyUnresolvedReceiver(t *testing.T) {
	in := value.UnresolvedAt(value.Root, "missing property \"X\"")
	out := builtin.Apply("count", in, nil)
	if !out.Unresolved || out.Reason != in.Reason {
		t.Fatalf("expected the unresolved receiver to pass through unchanged, got %+v", out)
	}
}
