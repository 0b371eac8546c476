// Package value implements the tagged-variant data model of the rule
// language: a Value is one of Null, Bool, Int, Float, String, Regex,
// List, or Map, and every Located value carries the source Path it was
// read from.
package value

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind enumerates the Value variants.
type Kind int

const (
	NullKind Kind = iota
	BoolKind
	IntKind
	FloatKind
	StringKind
	RegexKind
	ListKind
	MapKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case BoolKind:
		return "bool"
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case StringKind:
		return "string"
	case RegexKind:
		return "regex"
	case ListKind:
		return "list"
	case MapKind:
		return "map"
	}
	return "unknown"
}

// Value is the tagged-variant data value. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string // String content, or Regex pattern
	list []Located
	m    *Map
}

func Null() Value                 { return Value{kind: NullKind} }
func Bool(b bool) Value           { return Value{kind: BoolKind, b: b} }
func Int(i int64) Value           { return Value{kind: IntKind, i: i} }
func Float(f float64) Value       { return Value{kind: FloatKind, f: f} }
func String(s string) Value       { return Value{kind: StringKind, s: s} }
func Regex(pattern string) Value  { return Value{kind: RegexKind, s: pattern} }
func List(items []Located) Value  { return Value{kind: ListKind, list: items} }
func MapOf(m *Map) Value          { return Value{kind: MapKind, m: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) BoolValue() bool    { return v.b }
func (v Value) IntValue() int64    { return v.i }
func (v Value) FloatValue() float64 { return v.f }
func (v Value) StringValue() string { return v.s }
func (v Value) RegexPattern() string { return v.s }
func (v Value) ListItems() []Located { return v.list }
func (v Value) MapValue() *Map      { return v.m }

// IsNumeric reports whether v is an Int or Float.
func (v Value) IsNumeric() bool { return v.kind == IntKind || v.kind == FloatKind }

// AsFloat returns v's numeric value as a float64; ok is false for
// non-numeric values.
func (v Value) AsFloat() (f float64, ok bool) {
	switch v.kind {
	case IntKind:
		return float64(v.i), true
	case FloatKind:
		return v.f, true
	}
	return 0, false
}

// Text returns the string form of v used for regex matching and for
// building(/join-ing) list elements. Non-string/regex kinds stringify
// via a stable textual form.
func (v Value) Text() string {
	switch v.kind {
	case StringKind:
		return v.s
	case RegexKind:
		return v.s
	case BoolKind:
		return strconv.FormatBool(v.b)
	case IntKind:
		return strconv.FormatInt(v.i, 10)
	case FloatKind:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case NullKind:
		return "null"
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

// Compile compiles v as a regular expression. v.Kind() must be RegexKind.
func (v Value) Compile() (*regexp.Regexp, error) {
	return regexp.Compile(v.s)
}

// Equal implements the language's == semantics between two non-regex
// values: numeric kinds compare across Int/Float, everything else must
// share a Kind, and Lists/Maps compare structurally. Regex comparison is
// handled by the eval package, which matches rather than calls Equal.
func Equal(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		return af == bf
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case NullKind:
		return true
	case BoolKind:
		return a.b == b.b
	case StringKind, RegexKind:
		return a.s == b.s
	case ListKind:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i].Value, b.list[i].Value) {
				return false
			}
		}
		return true
	case MapKind:
		return a.m.Equal(b.m)
	}
	return false
}

// Compare orders a and b for <, <=, >, >=. ok is false when the values
// are not comparable, in which case a mixed non-numeric comparison
// clause FAILs rather than panicking.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.IsNumeric() && b.IsNumeric() {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.kind == StringKind && b.kind == StringKind {
		switch {
		case a.s < b.s:
			return -1, true
		case a.s > b.s:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// Located pairs a Value with the document Path it was read from. An
// Unresolved Located still carries a Path (the last successfully resolved
// ancestor) and a Reason describing why traversal stopped.
type Located struct {
	Value      Value
	Path       Path
	Unresolved bool
	Reason     string
}

// Resolved constructs a present Located value.
func Resolved(v Value, p Path) Located { return Located{Value: v, Path: p} }

// UnresolvedAt constructs an unresolved marker at p with the given reason.
func UnresolvedAt(p Path, reason string) Located {
	return Located{Path: p, Unresolved: true, Reason: reason}
}
