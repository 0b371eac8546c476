// Package scope implements the lexical scope stack for `let` bindings:
// file, rule, and block scopes nest, names are single-assignment per
// scope, and query bindings are resolved lazily with memoization.
package scope

import (
	"fmt"

	"github.com/aws-cloudformation/guard-lang/lang/ast"
	"github.com/aws-cloudformation/guard-lang/value"
)

// Binding is an unevaluated `let` binding together with the lexical
// context its free variables and implicit receiver resolve against. For
// an ordinary `let NAME = Query` inside a block, Scope is the block's own
// scope (so %other can see sibling bindings and outer ones) and Receiver
// is that block's current receiver element. For a parameterised rule
// call's argument, Scope and Receiver instead capture the *caller's*
// context, since the argument expression was written in the caller's
// block, not the callee's: arguments evaluate lazily, in the caller's
// scope.
type Binding struct {
	Node     ast.Node
	Scope    *Scope
	Receiver []value.Located
}

// Scope is one lexical level of `let` bindings. Its lifetime is a single
// evaluation of the file/rule/block that created it.
type Scope struct {
	parent   *Scope
	bindings map[string]Binding
	memoVal  map[string][]value.Located
	memoSet  map[string]bool
}

// New creates a scope nested under parent (nil for the file-level scope).
func New(parent *Scope) *Scope {
	return &Scope{parent: parent, bindings: map[string]Binding{}}
}

// Bind records name = node in this scope, to be resolved later against
// evalScope/receiver. It is a single-assignment error to bind the same
// name twice within the same scope; shadowing an outer scope's binding of
// the same name is allowed.
func (s *Scope) Bind(name string, node ast.Node, evalScope *Scope, receiver []value.Located) error {
	if _, exists := s.bindings[name]; exists {
		return fmt.Errorf("variable %q already bound in this scope", name)
	}
	s.bindings[name] = Binding{Node: node, Scope: evalScope, Receiver: receiver}
	return nil
}

// Lookup walks from s outward to the file scope looking for name,
// resolving inner scopes before outer ones. It returns the unevaluated
// binding and the Scope that owns it (used as the memoization key), or ok
// = false if name is not bound anywhere in the chain.
func (s *Scope) Lookup(name string) (b Binding, owner *Scope, ok bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if b, exists := sc.bindings[name]; exists {
			return b, sc, true
		}
	}
	return Binding{}, nil, false
}

// Memo returns the memoized query result for name if this scope has
// already evaluated it once, keyed by (scope, variable name). Call only
// on the Scope returned by Lookup as owner.
func (s *Scope) Memo(name string) ([]value.Located, bool) {
	if s.memoSet == nil || !s.memoSet[name] {
		return nil, false
	}
	return s.memoVal[name], true
}

// SetMemo records the evaluated result of name for reuse by later
// references within the lifetime of this scope.
func (s *Scope) SetMemo(name string, vals []value.Located) {
	if s.memoSet == nil {
		s.memoSet = map[string]bool{}
		s.memoVal = map[string][]value.Located{}
	}
	s.memoSet[name] = true
	s.memoVal[name] = vals
}

// Parent returns the enclosing scope, or nil for the file scope.
func (s *Scope) Parent() *Scope { return s.parent }
