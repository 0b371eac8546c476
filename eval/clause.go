package eval

import (
	"fmt"

	"github.com/aws-cloudformation/guard-lang/lang/ast"
	"github.com/aws-cloudformation/guard-lang/scope"
	"github.com/aws-cloudformation/guard-lang/value"
)

// evalClause evaluates one Clause: its query resolves to
// a collection C, the operator is checked against every c in C with
// universal semantics by default or existential when Some is set, Not
// negates the result, and a clause that does not PASS falls through to
// its `or` chain if one is present.
func (ev *Evaluator) evalClause(c *ast.Clause, receiver []value.Located, sc *scope.Scope) *Outcome {
	vals := ev.engine.Resolve(receiver, c.Query, sc)

	var status Status
	var elements []*Outcome
	var missing string
	if len(vals) == 0 {
		// Nothing in the document matched this clause's query: treat
		// this as not-applicable rather than a vacuous pass or fail.
		status = Skip
	} else {
		statuses := make([]Status, len(vals))
		for i, v := range vals {
			st, reason := ev.evalClauseAgainst(c, v, receiver, sc)
			statuses[i] = st
			if v.Unresolved && missing == "" {
				missing = v.Reason
			}
			if st != Pass || ev.cfg.Verbose {
				elements = append(elements, &Outcome{
					Kind: ElementKind, Status: st, Path: v.Path.String(), Message: reason,
				})
			}
		}
		if c.Some {
			status = disjunctionFold(statuses)
		} else {
			status = conjunctionFold(statuses)
		}
	}
	if c.Not {
		status = negate(status)
	}

	out := &Outcome{Kind: ClauseKind, Status: status, Children: elements}
	if status == Fail {
		switch {
		case c.Message != "":
			out.Message = c.Message
		case ev.cfg.ShowMissingValueDetails && missing != "":
			out.Message = missing
		}
	}

	// A failing or skipped clause falls through to its `or` alternative;
	// only PASS short-circuits the chain.
	if status != Pass && c.Or != nil {
		orOut := ev.evalClause(c.Or, receiver, sc)
		combined := disjunctionFold([]Status{status, orOut.Status})
		combinedOut := &Outcome{Kind: ClauseKind, Status: combined, Children: []*Outcome{out, orOut}}
		if combined == Fail && out.Message != "" {
			combinedOut.Message = out.Message
		}
		return combinedOut
	}
	return out
}

func (ev *Evaluator) evalClauseAgainst(c *ast.Clause, v value.Located, receiver []value.Located, sc *scope.Scope) (Status, string) {
	if c.IsUnary() {
		return evalUnary(c.UnaryOp, v)
	}
	return ev.evalBinary(c.BinaryOp, v, c.Rhs, receiver, sc)
}

func evalUnary(op ast.UnaryOp, v value.Located) (Status, string) {
	if op == ast.OpExists {
		if v.Unresolved {
			return Fail, v.Reason
		}
		return Pass, ""
	}
	if v.Unresolved {
		return Fail, v.Reason
	}
	switch op {
	case ast.OpEmpty:
		switch v.Value.Kind() {
		case value.ListKind:
			if len(v.Value.ListItems()) == 0 {
				return Pass, ""
			}
			return Fail, "list is not empty"
		case value.MapKind:
			if v.Value.MapValue().Len() == 0 {
				return Pass, ""
			}
			return Fail, "map is not empty"
		case value.StringKind:
			if v.Value.StringValue() == "" {
				return Pass, ""
			}
			return Fail, "string is not empty"
		case value.NullKind:
			return Pass, ""
		}
		return Fail, "value is not a collection or string"
	case ast.OpIsString:
		return kindCheck(v, value.StringKind)
	case ast.OpIsList:
		return kindCheck(v, value.ListKind)
	case ast.OpIsStruct:
		return kindCheck(v, value.MapKind)
	case ast.OpIsInt:
		return kindCheck(v, value.IntKind)
	case ast.OpIsFloat:
		return kindCheck(v, value.FloatKind)
	case ast.OpIsBool:
		return kindCheck(v, value.BoolKind)
	case ast.OpNull:
		if v.Value.Kind() == value.NullKind {
			return Pass, ""
		}
		return Fail, "value is not null"
	}
	return Fail, "unsupported unary operator"
}

func kindCheck(v value.Located, k value.Kind) (Status, string) {
	if v.Value.Kind() == k {
		return Pass, ""
	}
	return Fail, fmt.Sprintf("expected %s, got %s", k, v.Value.Kind())
}

func (ev *Evaluator) evalBinary(op ast.BinaryOp, v value.Located, rhs ast.Node, receiver []value.Located, sc *scope.Scope) (Status, string) {
	if v.Unresolved {
		return Fail, v.Reason
	}
	switch op {
	case ast.OpIn:
		allowed := ev.resolveRhsCollection(rhs, receiver, sc)
		for _, r := range allowed {
			if !r.Unresolved && valuesEqualOrMatch(v.Value, r.Value) {
				return Pass, ""
			}
		}
		return Fail, fmt.Sprintf("%s is not in the allowed set", v.Value.Text())

	case ast.OpKeysIn:
		if v.Value.Kind() != value.MapKind {
			return Fail, "value is not a map"
		}
		allowedVals := ev.resolveRhsCollection(rhs, receiver, sc)
		allowed := map[string]bool{}
		for _, r := range allowedVals {
			if !r.Unresolved {
				allowed[r.Value.Text()] = true
			}
		}
		for _, k := range v.Value.MapValue().Keys() {
			if !allowed[k] {
				return Fail, fmt.Sprintf("key %q is not in the allowed set", k)
			}
		}
		return Pass, ""

	default:
		rhsVals := ev.resolveRhs(rhs, receiver, sc)
		if len(rhsVals) != 1 {
			return Fail, "right-hand side did not resolve to exactly one value"
		}
		r := rhsVals[0]
		if r.Unresolved {
			return Fail, r.Reason
		}
		return compareOp(op, v.Value, r.Value)
	}
}

func compareOp(op ast.BinaryOp, a, b value.Value) (Status, string) {
	// Regex/string equality is symmetric: `s == /re/` and `/re/ == s`
	// yield the same verdict.
	if a.Kind() == value.RegexKind && b.Kind() != value.RegexKind && (op == ast.OpEq || op == ast.OpNeq) {
		a, b = b, a
	}
	if b.Kind() == value.RegexKind && (op == ast.OpEq || op == ast.OpNeq) {
		re, err := b.Compile()
		if err != nil {
			return Fail, "invalid regular expression: " + err.Error()
		}
		matched := re.MatchString(a.Text())
		if op == ast.OpEq {
			if matched {
				return Pass, ""
			}
			return Fail, "value did not match pattern"
		}
		if !matched {
			return Pass, ""
		}
		return Fail, "value matched excluded pattern"
	}

	switch op {
	case ast.OpEq:
		if value.Equal(a, b) {
			return Pass, ""
		}
		return Fail, "values are not equal"
	case ast.OpNeq:
		if !value.Equal(a, b) {
			return Pass, ""
		}
		return Fail, "values are equal"
	case ast.OpLt, ast.OpLeq, ast.OpGt, ast.OpGeq:
		cmp, ok := value.Compare(a, b)
		if !ok {
			return Fail, "values are not comparable"
		}
		pass := false
		switch op {
		case ast.OpLt:
			pass = cmp < 0
		case ast.OpLeq:
			pass = cmp <= 0
		case ast.OpGt:
			pass = cmp > 0
		case ast.OpGeq:
			pass = cmp >= 0
		}
		if pass {
			return Pass, ""
		}
		return Fail, "comparison failed"
	}
	return Fail, "unsupported binary operator"
}

// resolveRhs resolves a clause's Rhs to a single-purpose located-value
// collection for scalar comparisons, where exactly one element is
// expected.
func (ev *Evaluator) resolveRhs(rhs ast.Node, receiver []value.Located, sc *scope.Scope) []value.Located {
	if q, ok := rhs.(*ast.Query); ok {
		return ev.engine.Resolve(receiver, q, sc)
	}
	return ev.evalExprOrCallAsValue(rhs, receiver, sc)
}

// resolveRhsCollection resolves a clause's Rhs to the membership set used
// by `in`/`keys in`: a list literal's elements, a query that resolved to
// a single List value (flattened), or any other query/literal collection
// as-is.
func (ev *Evaluator) resolveRhsCollection(rhs ast.Node, receiver []value.Located, sc *scope.Scope) []value.Located {
	if lit, ok := rhs.(ast.ListLit); ok {
		out := make([]value.Located, 0, len(lit.Elts))
		for _, e := range lit.Elts {
			vs := ev.evalExprOrCallAsValue(e, receiver, sc)
			out = append(out, vs...)
		}
		return out
	}
	if q, ok := rhs.(*ast.Query); ok {
		vals := ev.engine.Resolve(receiver, q, sc)
		if len(vals) == 1 && !vals[0].Unresolved && vals[0].Value.Kind() == value.ListKind {
			return vals[0].Value.ListItems()
		}
		return vals
	}
	return ev.evalExprOrCallAsValue(rhs, receiver, sc)
}

func valuesEqualOrMatch(a, b value.Value) bool {
	if b.Kind() == value.RegexKind {
		re, err := b.Compile()
		if err != nil {
			return false
		}
		return re.MatchString(a.Text())
	}
	return value.Equal(a, b)
}
