// Package query implements the query engine: resolving a path
// expression (a sequence of ast.Step values) against a Value tree into
// a collection of located values, applying predicate filters, variable
// substitution, and wildcard traversal.
package query

import (
	"fmt"

	"github.com/aws-cloudformation/guard-lang/builtin"
	"github.com/aws-cloudformation/guard-lang/lang/ast"
	"github.com/aws-cloudformation/guard-lang/scope"
	"github.com/aws-cloudformation/guard-lang/value"
)

// PredicateFunc evaluates a Filter step's predicate block with receiver
// bound as the block's receiver, returning whether the block's verdict
// is PASS; a Filter step retains elements for which the block PASSes.
// Supplied by the eval package to break what would otherwise be an
// import cycle between query and eval: the query engine does not itself
// know how to interpret a Block.
type PredicateFunc func(pred *ast.Block, receiver value.Located, sc *scope.Scope) bool

// VarFunc resolves a `let`-bound variable to its (possibly lazily
// computed, memoized) located-value collection. Supplied by the eval
// package for the same reason as PredicateFunc.
type VarFunc func(name string, sc *scope.Scope) []value.Located

// Engine resolves ast.Query values against a Value tree.
type Engine struct {
	Predicate PredicateFunc
	Var       VarFunc
}

// Root wraps a document root Value as the singleton starting collection for
// a top-level (unbound) query.
func Root(doc value.Located) []value.Located { return []value.Located{doc} }

// Resolve evaluates q starting from receiver: all relative queries
// resolve against each element of the receiver in turn.
func (e *Engine) Resolve(receiver []value.Located, q *ast.Query, sc *scope.Scope) []value.Located {
	cur := receiver
	for _, step := range q.Steps {
		cur = e.applyStep(step, cur, sc)
	}
	return cur
}

func (e *Engine) applyStep(step ast.Step, cur []value.Located, sc *scope.Scope) []value.Located {
	switch s := step.(type) {
	case ast.KeyStep:
		return mapStep(cur, func(v value.Located) []value.Located {
			if v.Value.Kind() != value.MapKind {
				return []value.Located{value.UnresolvedAt(v.Path,
					fmt.Sprintf("cannot select field %q: value at %s is not a map", s.Name, v.Path))}
			}
			m := v.Value.MapValue()
			if found, ok := m.Get(s.Name); ok {
				return []value.Located{found}
			}
			return []value.Located{value.UnresolvedAt(v.Path,
				fmt.Sprintf("missing property %q", s.Name))}
		})

	case ast.AllValues:
		// `.*` enumerates either a map's values or a list's elements;
		// `[*]` (AllIndices) also enumerates a list's elements but passes
		// a map through unchanged (see the next case).
		return mapStep(cur, func(v value.Located) []value.Located {
			switch v.Value.Kind() {
			case value.MapKind:
				return v.Value.MapValue().Values()
			case value.ListKind:
				return v.Value.ListItems()
			}
			return []value.Located{value.UnresolvedAt(v.Path,
				fmt.Sprintf("cannot enumerate values: value at %s is not a map or list", v.Path))}
		})

	case ast.AllIndices:
		// `[*]` enumerates a list's elements. On a map it substitutes the
		// element itself: a variable bound to a filtered query resolves to
		// a collection whose members arrive here one at a time, so
		// `%buckets[*].Properties` keeps each bucket rather than descending
		// into its entries.
		return mapStep(cur, func(v value.Located) []value.Located {
			switch v.Value.Kind() {
			case value.ListKind:
				return v.Value.ListItems()
			case value.MapKind:
				return []value.Located{v}
			}
			return []value.Located{value.UnresolvedAt(v.Path,
				fmt.Sprintf("cannot enumerate elements: value at %s is not a list", v.Path))}
		})

	case ast.Index:
		return mapStep(cur, func(v value.Located) []value.Located {
			if v.Value.Kind() != value.ListKind {
				return []value.Located{value.UnresolvedAt(v.Path,
					fmt.Sprintf("cannot index: value at %s is not a list", v.Path))}
			}
			items := v.Value.ListItems()
			if s.Value < 0 || s.Value >= len(items) {
				return []value.Located{value.UnresolvedAt(v.Path,
					fmt.Sprintf("index %d out of bounds (len %d)", s.Value, len(items)))}
			}
			return []value.Located{items[s.Value]}
		})

	case ast.VariableRef:
		if e.Var == nil {
			return nil
		}
		return e.Var(s.Name, sc)

	case ast.KeysOf:
		return mapStep(cur, func(v value.Located) []value.Located {
			if v.Value.Kind() != value.MapKind {
				return []value.Located{value.UnresolvedAt(v.Path,
					fmt.Sprintf("cannot project keys: value at %s is not a map", v.Path))}
			}
			m := v.Value.MapValue()
			out := make([]value.Located, 0, m.Len())
			for _, k := range m.Keys() {
				entry, _ := m.Get(k)
				out = append(out, value.Resolved(value.String(k), entry.Path))
			}
			return out
		})

	case ast.FuncStep:
		args := make([]value.Value, len(s.Args))
		for i, a := range s.Args {
			args[i] = literalValue(a)
		}
		return mapStep(cur, func(v value.Located) []value.Located {
			return []value.Located{builtin.Apply(s.Name, v, args)}
		})

	case ast.Filter:
		if e.Predicate == nil {
			return cur
		}
		// Unresolved elements are dropped, not cascaded: a filter over a
		// missing parent yields a successful empty result, which downstream
		// clauses treat as SKIP rather than FAIL.
		var out []value.Located
		for _, v := range cur {
			if v.Unresolved {
				continue
			}
			if e.Predicate(s.Predicate, v, sc) {
				out = append(out, v)
			}
		}
		return out
	}
	return cur
}

// literalValue converts a built-in function argument (always a literal
// Expr per lang/parser's finishFuncStep grammar) to a Value.
func literalValue(e ast.Expr) value.Value {
	switch lit := e.(type) {
	case ast.NullLit:
		return value.Null()
	case ast.BoolLit:
		return value.Bool(lit.Value)
	case ast.IntLit:
		return value.Int(lit.Value)
	case ast.FloatLit:
		return value.Float(lit.Value)
	case ast.StringLit:
		return value.String(lit.Value)
	case ast.RegexLit:
		return value.Regex(lit.Pattern)
	}
	return value.Null()
}

// mapStep applies f to every located value in cur. Unresolved elements
// cascade unchanged to the output instead of being passed to f, so a
// wildcard step over a missing parent stays unresolved rather than
// panicking or silently dropping the element.
func mapStep(cur []value.Located, f func(value.Located) []value.Located) []value.Located {
	var out []value.Located
	for _, v := range cur {
		if v.Unresolved {
			out = append(out, v)
			continue
		}
		out = append(out, f(v)...)
	}
	return out
}
