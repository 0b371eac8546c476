// Package ast defines the abstract syntax tree produced by lang/parser for
// the rule language.
package ast

import "github.com/aws-cloudformation/guard-lang/lang/token"

// Node is implemented by every AST node.
type Node interface {
	Pos() token.Pos
	End() token.Pos
}

// File is the root of a parsed policy source file.
type File struct {
	Name        string
	Assignments []*Assignment // file-scoped `let` bindings
	Rules       []*Rule
}

func (f *File) Pos() token.Pos {
	if len(f.Assignments) > 0 {
		return f.Assignments[0].Pos()
	}
	if len(f.Rules) > 0 {
		return f.Rules[0].Pos()
	}
	return token.NoPos
}
func (f *File) End() token.Pos {
	if n := len(f.Rules); n > 0 {
		return f.Rules[n-1].End()
	}
	return token.NoPos
}

// Assignment is a `let NAME = Expr|Query` binding.
type Assignment struct {
	TokPos token.Pos
	Name   string
	Value  Node // Expr or *Query
}

func (a *Assignment) Pos() token.Pos { return a.TokPos }
func (a *Assignment) End() token.Pos { return a.Value.End() }

// Rule is a named, optionally parameterised rule declaration.
type Rule struct {
	TokPos token.Pos
	Name   string
	Params []string // positional parameter names; nil if not parameterised
	When   []Node // each is *Clause or *RuleCall (a bare `when child` gates on a rule)
	Body   *Block
}

func (r *Rule) Pos() token.Pos { return r.TokPos }
func (r *Rule) End() token.Pos { return r.Body.End() }

// Block is a CNF-interpreted group of clauses, nested blocks, rule
// references, and local `let` assignments. The receiver it evaluates
// against (document root, or an enclosing NestedBlock's element, or a
// composed rule's caller-supplied receiver) is supplied by the evaluator,
// not stored on the Block itself. Items preserves source order, which
// matters for short-circuit diagnostics.
type Block struct {
	LBrace      token.Pos
	RBrace      token.Pos
	Assignments []*Assignment
	Items       []Node // each is *Clause, *NestedBlock, or *RuleCall
}

func (b *Block) Pos() token.Pos { return b.LBrace }
func (b *Block) End() token.Pos { return b.RBrace }

// NestedBlock is a Block appearing inside another Block, anchored to a
// receiver query whose elements it iterates. Not/Some mirror Clause's
// quantifier prefixes: by default the block must hold for
// every receiver element (universal); Some requires only one; Not negates
// the resulting verdict (PASS<->FAIL, SKIP unchanged).
type NestedBlock struct {
	Not   bool
	Some  bool
	Query *Query
	Block *Block
}

func (n *NestedBlock) Pos() token.Pos { return n.Query.Pos() }
func (n *NestedBlock) End() token.Pos { return n.Block.End() }

// UnaryOp enumerates the unary clause operators.
type UnaryOp int

const (
	NoUnaryOp UnaryOp = iota
	OpExists
	OpEmpty
	OpIsString
	OpIsList
	OpIsStruct
	OpIsInt
	OpIsFloat
	OpIsBool
	OpNull
)

// BinaryOp enumerates the binary clause operators.
type BinaryOp int

const (
	NoBinaryOp BinaryOp = iota
	OpEq
	OpNeq
	OpLt
	OpLeq
	OpGt
	OpGeq
	OpIn
	OpKeysIn
)

// Clause is a single boolean check: `[not] query operator rhs? message? ('or' clause)?`.
type Clause struct {
	TokPos   token.Pos
	Not      bool
	Some     bool // `some` quantifier prefix; default semantics are universal
	Query    *Query
	UnaryOp  UnaryOp  // set when this is a unary clause
	BinaryOp BinaryOp // set when this is a binary clause
	Rhs      Node     // *Query or a literal Expr; nil for unary clauses
	Message  string   // verbatim <<...>> text, empty if absent
	Or       *Clause  // the clause after `or`, forming a disjunction chain
}

func (c *Clause) Pos() token.Pos { return c.TokPos }
func (c *Clause) End() token.Pos {
	if c.Or != nil {
		return c.Or.End()
	}
	if c.Rhs != nil {
		return c.Rhs.End()
	}
	return c.Query.End()
}

// IsUnary reports whether the clause uses a unary operator.
func (c *Clause) IsUnary() bool { return c.UnaryOp != NoUnaryOp }

// Query is an ordered sequence of Steps.
type Query struct {
	StartPos token.Pos
	Steps    []Step
}

func (q *Query) Pos() token.Pos { return q.StartPos }
func (q *Query) End() token.Pos {
	if n := len(q.Steps); n > 0 {
		return q.Steps[n-1].End()
	}
	return q.StartPos
}

// Step is one segment of a Query: KeyStep, AllValues, AllIndices, Index,
// VariableRef, Filter, KeysOf, or FuncStep.
type Step interface {
	Node
	stepNode()
}

// StepBase carries the source span shared by every Step implementation. It
// is exported so that lang/parser can construct Step values directly.
type StepBase struct {
	TokPos token.Pos
	TokEnd token.Pos
}

func (s StepBase) Pos() token.Pos { return s.TokPos }
func (s StepBase) End() token.Pos { return s.TokEnd }
func (StepBase) stepNode()        {}

// KeyStep descends into a map by exact key.
type KeyStep struct {
	StepBase
	Name string
}

// AllValues enumerates all values of a map, in insertion order.
type AllValues struct{ StepBase }

// AllIndices enumerates all elements of a list, positionally.
type AllIndices struct{ StepBase }

// Index is positional list access.
type Index struct {
	StepBase
	Value int
}

// VariableRef substitutes the currently bound value(s) of a `let` variable.
type VariableRef struct {
	StepBase
	Name string
}

// Filter retains only elements for which Predicate evaluates PASS.
type Filter struct {
	StepBase
	Predicate *Block
}

// KeysOf projects a map's key-set as a list of strings.
type KeysOf struct{ StepBase }

// Expr is a literal value appearing as a clause RHS or `let` binding.
type Expr interface {
	Node
	exprNode()
}

// ExprBase carries the source span shared by every Expr implementation. It
// is exported so that lang/parser can construct Expr values directly.
type ExprBase struct {
	TokPos token.Pos
	TokEnd token.Pos
}

func (e ExprBase) Pos() token.Pos { return e.TokPos }
func (e ExprBase) End() token.Pos { return e.TokEnd }
func (ExprBase) exprNode()        {}

type NullLit struct{ ExprBase }
type BoolLit struct {
	ExprBase
	Value bool
}
type IntLit struct {
	ExprBase
	Value int64
}
type FloatLit struct {
	ExprBase
	Value float64
}
type StringLit struct {
	ExprBase
	Value string
}
type RegexLit struct {
	ExprBase
	Pattern string
}
type ListLit struct {
	ExprBase
	Elts []Expr
}

// RuleCall is a reference to another rule, bare (`OtherRule`) or invoked
// with arguments (`OtherRule(a, b)`), used as a Block item, a `when` guard
// item, or an argument of another RuleCall. Not negates the called
// rule's verdict (PASS<->FAIL, SKIP unchanged).
type RuleCall struct {
	ExprBase
	Not  bool
	Name string
	Args []Node // literal Expr, *Query, or nested *RuleCall
}

// FuncStep applies a built-in function (regex_replace, join, count,
// parse_int, parse_float, parse_string, parse_boolean, json_parse) to the
// current collection, element-wise, as a query step written `.name(args)`.
type FuncStep struct {
	StepBase
	Name string
	Args []Expr
}
