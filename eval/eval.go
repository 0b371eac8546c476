// Package eval implements the evaluator: it walks a parsed RuleFile
// against a loaded Value, producing an outcome tree with a three-valued
// (PASS/FAIL/SKIP) verdict at every node.
package eval

import (
	"fmt"

	"github.com/aws-cloudformation/guard-lang/lang/ast"
	"github.com/aws-cloudformation/guard-lang/query"
	"github.com/aws-cloudformation/guard-lang/scope"
	"github.com/aws-cloudformation/guard-lang/value"
)

// Status is the three-valued PASS/FAIL/SKIP verdict a rule, block, or
// clause resolves to.
type Status int

const (
	Skip Status = iota
	Pass
	Fail
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Skip:
		return "SKIP"
	}
	return "UNKNOWN"
}

// Kind identifies what an Outcome node represents, for callers rendering
// or filtering the tree (cmd/guard, ruleset.Report).
type Kind int

const (
	FileKind Kind = iota
	RuleKind
	WhenKind
	GroupKind // a Block's items, or one receiver element's body within it
	NestedBlockKind
	RuleCallKind
	ClauseKind
	ElementKind // one member of a clause query's resolved collection
)

// Outcome is one node of the evaluation result tree.
type Outcome struct {
	Kind     Kind
	Name     string // file, rule, or called rule name, where applicable
	Status   Status
	Path     string // document path the node's check is anchored to, if any
	Message  string // custom <<...>> message, or a diagnostic reason on FAIL
	Aborted  bool   // evaluation was canceled before this node completed
	Children []*Outcome
}

// Config controls diagnostic detail, depth bounds, and cooperative
// cancellation.
type Config struct {
	// MaxCallDepth bounds parameterised rule-call recursion. Zero means
	// the default of 64.
	MaxCallDepth int
	// ShowMissingValueDetails promotes the traversal reason of an
	// unresolved value (missing property, type mismatch) onto the failing
	// clause node itself, in addition to the per-element record it always
	// gets.
	ShowMissingValueDetails bool
	// Verbose keeps the per-element outcome of every checked value. When
	// false, only failing elements are recorded, which is all the
	// formatters need for diagnostics.
	Verbose bool
	// Cancel, if non-nil, is checked at rule and block boundaries; a
	// closed channel aborts evaluation early, with each still-pending
	// node reported SKIP.
	Cancel <-chan struct{}
	// Debug, if non-nil, receives trace messages as evaluation proceeds.
	// The evaluator is a library; the host decides whether and where
	// Debug messages go.
	Debug func(format string, args ...interface{})
}

// Evaluator evaluates one parsed RuleFile.
type Evaluator struct {
	file      *ast.File
	cfg       Config
	engine    *query.Engine
	rules     map[string]*ast.Rule
	fileScope *scope.Scope
	depth     int
}

// New builds an Evaluator for file, checking for rule-call cycles up
// front via a rule-name dependency graph; this module performs that
// check when building the evaluator rather than inside the parser,
// since it depends only on rule names, which are already fully known
// once parsing succeeds.
func New(file *ast.File, cfg Config) (*Evaluator, error) {
	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = 64
	}
	rules := map[string]*ast.Rule{}
	for _, r := range file.Rules {
		rules[r.Name] = r
	}
	if err := checkCallCycles(file.Rules); err != nil {
		return nil, err
	}
	ev := &Evaluator{file: file, cfg: cfg, rules: rules}
	ev.engine = &query.Engine{Predicate: ev.predicate, Var: ev.resolveVar}
	return ev, nil
}

func (ev *Evaluator) debugf(format string, args ...interface{}) {
	if ev.cfg.Debug != nil {
		ev.cfg.Debug(format, args...)
	}
}

func (ev *Evaluator) canceled() bool {
	if ev.cfg.Cancel == nil {
		return false
	}
	select {
	case <-ev.cfg.Cancel:
		return true
	default:
		return false
	}
}

// Evaluate runs every top-level (non-parameterised) rule in the file
// against doc, in source order.
func (ev *Evaluator) Evaluate(doc value.Located) *Outcome {
	ev.fileScope = scope.New(nil)
	root := query.Root(doc)
	for _, a := range ev.file.Assignments {
		if err := ev.fileScope.Bind(a.Name, a.Value, ev.fileScope, root); err != nil {
			ev.debugf("file scope: %s", err)
		}
	}

	out := &Outcome{Kind: FileKind, Name: ev.file.Name}
	var statuses []Status
	for _, r := range ev.file.Rules {
		if len(r.Params) > 0 {
			// Parameterised rules are templates, only evaluated when
			// referenced by a RuleCall; they do not run as standalone
			// top-level checks.
			continue
		}
		child := ev.evalTopRule(r, root)
		out.Children = append(out.Children, child)
		statuses = append(statuses, child.Status)
		if child.Aborted {
			out.Aborted = true
		}
	}
	out.Status = conjunctionFold(statuses)
	return out
}

func (ev *Evaluator) evalTopRule(r *ast.Rule, root []value.Located) *Outcome {
	if ev.canceled() {
		return &Outcome{Kind: RuleKind, Name: r.Name, Status: Skip, Aborted: true, Message: "evaluation canceled"}
	}
	ruleScope := scope.New(ev.fileScope)
	out := &Outcome{Kind: RuleKind, Name: r.Name}

	if len(r.When) > 0 {
		whenOut := ev.evalItems(r.When, root, ruleScope)
		whenOut.Kind = WhenKind
		out.Children = append(out.Children, whenOut)
		if whenOut.Status != Pass {
			out.Status = Skip
			return out
		}
	}

	body := ev.evalBlockOverReceiver(r.Body, root, ruleScope, false, false)
	out.Children = append(out.Children, body)
	out.Status = body.Status
	return out
}

// evalBlockOverReceiver evaluates block once per element of receiver,
// combining the per-element verdicts with universal (AND) semantics by
// default or existential (OR) when some is set, then applying not. This
// covers both a NestedBlock's quantified receiver and the degenerate
// single-element case used for a rule's own body.
func (ev *Evaluator) evalBlockOverReceiver(block *ast.Block, receiver []value.Located, parentScope *scope.Scope, not, some bool) *Outcome {
	if len(receiver) == 0 {
		return &Outcome{Kind: GroupKind, Status: Skip, Message: "receiver resolved to no elements"}
	}
	var children []*Outcome
	var statuses []Status
	for _, r := range receiver {
		if ev.canceled() {
			children = append(children, &Outcome{Kind: GroupKind, Status: Skip, Aborted: true, Message: "evaluation canceled"})
			statuses = append(statuses, Skip)
			continue
		}
		elemScope := scope.New(parentScope)
		single := []value.Located{r}
		for _, a := range block.Assignments {
			if err := elemScope.Bind(a.Name, a.Value, elemScope, single); err != nil {
				ev.debugf("block scope: %s", err)
			}
		}
		child := ev.evalItems(block.Items, single, elemScope)
		child.Path = r.Path.String()
		children = append(children, child)
		statuses = append(statuses, child.Status)
	}
	var status Status
	if some {
		status = disjunctionFold(statuses)
	} else {
		status = conjunctionFold(statuses)
	}
	if not {
		status = negate(status)
	}
	out := &Outcome{Kind: GroupKind, Status: status, Children: children}
	for _, c := range children {
		if c.Aborted {
			out.Aborted = true
		}
	}
	return out
}

// evalItems evaluates a Block's Items in source order, stopping after the
// first FAIL so evaluation short-circuits on the first decisive child
// while still recording enough nodes for diagnostics.
func (ev *Evaluator) evalItems(items []ast.Node, receiver []value.Located, sc *scope.Scope) *Outcome {
	var children []*Outcome
	var statuses []Status
	for _, it := range items {
		if ev.canceled() {
			children = append(children, &Outcome{Kind: GroupKind, Status: Skip, Aborted: true, Message: "evaluation canceled"})
			break
		}
		child := ev.evalItem(it, receiver, sc)
		children = append(children, child)
		statuses = append(statuses, child.Status)
		if child.Status == Fail {
			break
		}
	}
	out := &Outcome{Kind: GroupKind, Status: conjunctionFold(statuses), Children: children}
	for _, c := range children {
		if c.Aborted {
			out.Aborted = true
		}
	}
	return out
}

func (ev *Evaluator) evalItem(it ast.Node, receiver []value.Located, sc *scope.Scope) *Outcome {
	switch n := it.(type) {
	case *ast.Clause:
		return ev.evalClause(n, receiver, sc)
	case *ast.NestedBlock:
		sub := ev.engine.Resolve(receiver, n.Query, sc)
		out := ev.evalBlockOverReceiver(n.Block, sub, sc, n.Not, n.Some)
		out.Kind = NestedBlockKind
		return out
	case *ast.RuleCall:
		return ev.evalRuleCall(n, receiver, sc)
	}
	return &Outcome{Kind: GroupKind, Status: Skip, Message: fmt.Sprintf("unsupported block item %T", it)}
}

func (ev *Evaluator) evalRuleCall(call *ast.RuleCall, receiver []value.Located, sc *scope.Scope) *Outcome {
	out := &Outcome{Kind: RuleCallKind, Name: call.Name}
	if ev.depth >= ev.cfg.MaxCallDepth {
		out.Status = Fail
		out.Message = "maximum rule call depth exceeded"
		return out
	}
	rule, ok := ev.rules[call.Name]
	if !ok {
		out.Status = Fail
		out.Message = fmt.Sprintf("reference to unknown rule %q", call.Name)
		return out
	}
	if len(call.Args) != len(rule.Params) {
		out.Status = Fail
		out.Message = fmt.Sprintf("rule %q expects %d argument(s), got %d", call.Name, len(rule.Params), len(call.Args))
		return out
	}

	calleeScope := scope.New(ev.fileScope)
	for i, param := range rule.Params {
		if err := calleeScope.Bind(param, call.Args[i], sc, receiver); err != nil {
			ev.debugf("rule call %s: %s", call.Name, err)
		}
	}

	ev.depth++
	var children []*Outcome
	status := Skip
	guardPassed := true
	if len(rule.When) > 0 {
		whenOut := ev.evalItems(rule.When, receiver, calleeScope)
		whenOut.Kind = WhenKind
		children = append(children, whenOut)
		guardPassed = whenOut.Status == Pass
	}
	if guardPassed {
		body := ev.evalBlockOverReceiver(rule.Body, receiver, calleeScope, false, false)
		children = append(children, body)
		status = body.Status
	}
	ev.depth--

	if call.Not {
		status = negate(status)
	}
	out.Status = status
	out.Children = children
	return out
}

// predicate implements query.PredicateFunc: a Filter step's predicate
// block is evaluated against a single candidate element, retained iff the
// block's verdict is PASS.
func (ev *Evaluator) predicate(pred *ast.Block, receiver value.Located, sc *scope.Scope) bool {
	out := ev.evalBlockOverReceiver(pred, []value.Located{receiver}, sc, false, false)
	return out.Status == Pass
}

// resolveVar implements query.VarFunc: it resolves and memoizes a `let`
// binding the first time it is referenced within the lifetime of the
// scope that owns it.
func (ev *Evaluator) resolveVar(name string, sc *scope.Scope) []value.Located {
	b, owner, ok := sc.Lookup(name)
	if !ok {
		return []value.Located{value.UnresolvedAt(value.Root, "undefined variable %"+name)}
	}
	if vals, memoized := owner.Memo(name); memoized {
		return vals
	}
	var vals []value.Located
	if q, isQuery := b.Node.(*ast.Query); isQuery {
		vals = ev.engine.Resolve(b.Receiver, q, b.Scope)
	} else {
		vals = ev.evalExprOrCallAsValue(b.Node, b.Receiver, b.Scope)
	}
	owner.SetMemo(name, vals)
	return vals
}

// evalExprOrCallAsValue evaluates a literal Expr (or, for rule-call
// arguments, a nested RuleCall) to a located value collection. A nested
// RuleCall's PASS/FAIL verdict is surfaced as a Bool, so that
// `%check == true` can test it.
func (ev *Evaluator) evalExprOrCallAsValue(n ast.Node, receiver []value.Located, sc *scope.Scope) []value.Located {
	switch e := n.(type) {
	case ast.NullLit:
		return []value.Located{value.Resolved(value.Null(), value.Root)}
	case ast.BoolLit:
		return []value.Located{value.Resolved(value.Bool(e.Value), value.Root)}
	case ast.IntLit:
		return []value.Located{value.Resolved(value.Int(e.Value), value.Root)}
	case ast.FloatLit:
		return []value.Located{value.Resolved(value.Float(e.Value), value.Root)}
	case ast.StringLit:
		return []value.Located{value.Resolved(value.String(e.Value), value.Root)}
	case ast.RegexLit:
		return []value.Located{value.Resolved(value.Regex(e.Pattern), value.Root)}
	case ast.ListLit:
		items := make([]value.Located, len(e.Elts))
		for i, elt := range e.Elts {
			vs := ev.evalExprOrCallAsValue(elt, receiver, sc)
			if len(vs) > 0 {
				items[i] = vs[0]
			}
		}
		return []value.Located{value.Resolved(value.List(items), value.Root)}
	case *ast.RuleCall:
		out := ev.evalRuleCall(e, receiver, sc)
		return []value.Located{value.Resolved(value.Bool(out.Status == Pass), value.Root)}
	}
	return nil
}

func conjunctionFold(statuses []Status) Status {
	hasPass := false
	for _, s := range statuses {
		if s == Fail {
			return Fail
		}
		if s == Pass {
			hasPass = true
		}
	}
	if hasPass {
		return Pass
	}
	return Skip
}

func disjunctionFold(statuses []Status) Status {
	hasFail := false
	for _, s := range statuses {
		if s == Pass {
			return Pass
		}
		if s == Fail {
			hasFail = true
		}
	}
	if hasFail {
		return Fail
	}
	return Skip
}

func negate(s Status) Status {
	switch s {
	case Pass:
		return Fail
	case Fail:
		return Pass
	}
	return s
}

// checkCallCycles rejects a RuleFile whose rules reference each other
// cyclically, since the parameterised-call evaluator recurses on rule
// bodies rather than iterating.
func checkCallCycles(rules []*ast.Rule) error {
	graph := map[string]map[string]bool{}
	for _, r := range rules {
		refs := map[string]bool{}
		collectCalls(r.Body.Items, refs)
		collectCalls(r.When, refs)
		graph[r.Name] = refs
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			stack = append(stack, name)
			return fmt.Errorf("cyclic rule reference: %v", stack)
		}
		color[name] = gray
		stack = append(stack, name)
		for callee := range graph[name] {
			if err := visit(callee); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}
	for _, r := range rules {
		if err := visit(r.Name); err != nil {
			return err
		}
	}
	return nil
}

func collectCalls(items []ast.Node, out map[string]bool) {
	for _, it := range items {
		switch n := it.(type) {
		case *ast.RuleCall:
			out[n.Name] = true
			collectArgCalls(n.Args, out)
		case *ast.NestedBlock:
			collectCalls(n.Block.Items, out)
		}
	}
}

func collectArgCalls(args []ast.Node, out map[string]bool) {
	for _, a := range args {
		if rc, ok := a.(*ast.RuleCall); ok {
			out[rc.Name] = true
			collectArgCalls(rc.Args, out)
		}
	}
}
