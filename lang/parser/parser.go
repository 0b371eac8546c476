// Package parser implements a recursive-descent parser that turns rule
// language source into an *ast.File.
package parser

import (
	"strconv"

	"github.com/aws-cloudformation/guard-lang/lang/ast"
	"github.com/aws-cloudformation/guard-lang/lang/errors"
	"github.com/aws-cloudformation/guard-lang/lang/literal"
	"github.com/aws-cloudformation/guard-lang/lang/scanner"
	"github.com/aws-cloudformation/guard-lang/lang/token"
)

// ParseFile parses a complete rule-language source file. It always returns
// as much of the AST as it could recover; errs is non-nil if any parse
// errors were encountered, in which case the evaluator must not be run
// against the returned file.
func ParseFile(name string, src []byte) (*ast.File, errors.List) {
	p := &parser{}
	p.init(name, src)
	f := p.parseFile()
	p.checkArity(f)
	p.errs.Sort()
	return f, p.errs
}

// checkArity reports parameterised-rule calls whose argument count does not
// match the callee's parameter list. Both sites are visible once the whole
// file is parsed, so the mismatch is a parse-time diagnostic rather than an
// evaluation failure; calls to rules defined elsewhere are left for the
// evaluator to reject.
func (p *parser) checkArity(f *ast.File) {
	params := make(map[string]int, len(f.Rules))
	for _, r := range f.Rules {
		params[r.Name] = len(r.Params)
	}
	var checkItems func(items []ast.Node)
	var checkCall func(call *ast.RuleCall)
	checkCall = func(call *ast.RuleCall) {
		if want, known := params[call.Name]; known && want != len(call.Args) {
			p.errorf(call.Pos(), "rule %q expects %d argument(s), got %d", call.Name, want, len(call.Args))
		}
		for _, a := range call.Args {
			if nested, ok := a.(*ast.RuleCall); ok {
				checkCall(nested)
			}
		}
	}
	checkItems = func(items []ast.Node) {
		for _, it := range items {
			switch n := it.(type) {
			case *ast.RuleCall:
				checkCall(n)
			case *ast.NestedBlock:
				checkItems(n.Block.Items)
			}
		}
	}
	for _, r := range f.Rules {
		checkItems(r.When)
		checkItems(r.Body.Items)
	}
}

type parser struct {
	file *token.File
	scan scanner.Scanner
	errs errors.List

	pos token.Pos
	tok token.Token
	lit string

	ruleNames map[string]bool
}

func (p *parser) init(name string, src []byte) {
	p.file = token.NewFile(name, len(src))
	p.scan.Init(p.file, src, p.handleErr)
	p.ruleNames = map[string]bool{}
	p.next()
}

func (p *parser) handleErr(pos token.Position, msg string) {
	p.errs.Add(errors.Newf(token.NoPos, "%s: %s", pos, msg))
}

func (p *parser) next() {
	for {
		p.pos, p.tok, p.lit = p.scan.Scan()
		if p.tok != token.COMMENT {
			return
		}
	}
}

func (p *parser) errorf(pos token.Pos, format string, args ...interface{}) {
	p.errs.Add(errors.Newf(pos, format, args...))
}

// expect consumes tok if it matches the current token, else records a
// diagnostic and leaves the cursor in place so recovery can proceed.
func (p *parser) expect(tok token.Token) token.Pos {
	pos := p.pos
	if p.tok != tok {
		p.errorf(p.pos, "expected %s, found %s", tok, p.tok)
	} else {
		p.next()
	}
	return pos
}

// syncTop skips tokens until a top-level boundary (rule or let) so that
// parsing can continue after an error and maximise diagnostics per pass.
func (p *parser) syncTop() {
	for p.tok != token.EOF && p.tok != token.RULE && p.tok != token.LET {
		p.next()
	}
}

// -- File --------------------------------------------------------------

func (p *parser) parseFile() *ast.File {
	f := &ast.File{Name: p.file.Name()}
	bound := map[string]bool{}
	for p.tok != token.EOF {
		switch p.tok {
		case token.LET:
			if a := p.parseAssignment(); a != nil {
				if bound[a.Name] {
					p.errorf(a.Pos(), "variable %q already bound in this scope", a.Name)
				}
				bound[a.Name] = true
				f.Assignments = append(f.Assignments, a)
			}
		case token.RULE:
			if r := p.parseRule(); r != nil {
				f.Rules = append(f.Rules, r)
			}
		default:
			p.errorf(p.pos, "expected 'rule' or 'let', found %s", p.tok)
			p.next()
			p.syncTop()
		}
	}
	return f
}

func (p *parser) parseAssignment() *ast.Assignment {
	pos := p.expect(token.LET)
	if p.tok != token.IDENT {
		p.errorf(p.pos, "expected identifier after 'let', found %s", p.tok)
		p.syncTop()
		return nil
	}
	name := p.lit
	p.next()
	if p.tok != token.ASSIGN && p.tok != token.DEFASSIGN {
		p.errorf(p.pos, "expected '=' or ':=', found %s", p.tok)
		p.syncTop()
		return nil
	}
	p.next()
	var val ast.Node
	if p.tok == token.IDENT || p.tok == token.PERCENT || p.tok == token.THIS || p.tok == token.STAR {
		val = p.parseQuery()
	} else {
		val = p.parseExpr()
	}
	return &ast.Assignment{TokPos: pos, Name: name, Value: val}
}

// -- Rule --------------------------------------------------------------

func (p *parser) parseRule() *ast.Rule {
	pos := p.expect(token.RULE)
	if p.tok != token.IDENT {
		p.errorf(p.pos, "expected rule name, found %s", p.tok)
		p.syncTop()
		return nil
	}
	name := p.lit
	p.next()
	if p.ruleNames[name] {
		p.errorf(pos, "duplicate rule name %q", name)
	}
	p.ruleNames[name] = true

	r := &ast.Rule{TokPos: pos, Name: name}

	if p.tok == token.LPAREN {
		p.next()
		if p.tok != token.RPAREN {
			for {
				if p.tok != token.IDENT {
					p.errorf(p.pos, "expected parameter name, found %s", p.tok)
					break
				}
				r.Params = append(r.Params, p.lit)
				p.next()
				if p.tok != token.COMMA {
					break
				}
				p.next()
			}
		}
		p.expect(token.RPAREN)
	}

	if p.tok == token.WHEN {
		p.next()
		r.When = p.parseGuardList()
	}

	r.Body = p.parseBlock()
	return r
}

// -- Block ---------------------------------------------------------------

func (p *parser) parseBlock() *ast.Block {
	lbrace := p.expect(token.LBRACE)
	b := &ast.Block{LBrace: lbrace}
	bound := map[string]bool{}
	for p.tok != token.RBRACE && p.tok != token.EOF {
		if p.tok == token.LET {
			if a := p.parseAssignment(); a != nil {
				if bound[a.Name] {
					p.errorf(a.Pos(), "variable %q already bound in this scope", a.Name)
				}
				bound[a.Name] = true
				b.Assignments = append(b.Assignments, a)
			}
			continue
		}
		item := p.parseBlockItem()
		if item == nil {
			// Avoid infinite loops on unrecoverable tokens.
			p.next()
			continue
		}
		b.Items = append(b.Items, item)
	}
	b.RBrace = p.expect(token.RBRACE)
	return b
}

// parseClauseList parses a flat run of conjoined clauses (used for a `[...]`
// filter step's predicate, which has no surrounding braces; `when` guards go
// through parseGuardList).
func (p *parser) parseClauseList() []*ast.Clause {
	var out []*ast.Clause
	for p.isClauseStart() || p.tok == token.NOT {
		c := p.parseClause()
		if c == nil {
			break
		}
		out = append(out, c)
	}
	return out
}

// parseClause parses ['not'] ['some'] Query (UnaryOp | BinaryOp Rhs)
// CustomMessage? ('or' Clause)?.
func (p *parser) parseClause() *ast.Clause {
	pos := p.pos
	not := false
	some := false
	if p.tok == token.NOT {
		not = true
		p.next()
	}
	if p.tok == token.SOME {
		some = true
		p.next()
	}
	if !p.isClauseStart() {
		p.errorf(p.pos, "expected a query, found %s", p.tok)
		return nil
	}
	q := p.parseQuery()
	return p.finishClause(pos, not, some, q)
}

func (p *parser) finishClause(pos token.Pos, not, some bool, q *ast.Query) *ast.Clause {
	// Negation may also appear immediately before the operator rather than
	// as a clause prefix (`%bs !empty`), equivalent to writing `not`
	// before the query.
	if p.tok == token.NOT {
		not = true
		p.next()
	}
	c := &ast.Clause{TokPos: pos, Not: not, Some: some, Query: q}

	if isUnaryOpTok(p.tok) {
		c.UnaryOp = unaryOpFor(p.tok)
		p.next()
	} else if isBinaryOpStart(p.tok) {
		if p.tok == token.KEYS {
			p.next()
			if p.tok != token.IN {
				p.errorf(p.pos, "expected 'in' after 'keys', found %s", p.tok)
			} else {
				p.next()
			}
			c.BinaryOp = ast.OpKeysIn
		} else {
			c.BinaryOp = binaryOpFor(p.tok)
			p.next()
		}
		c.Rhs = p.parseRhs()
	} else {
		p.errorf(p.pos, "expected an operator, found %s", p.tok)
	}

	if p.tok == token.MSG_OPEN {
		c.Message = p.lit
		p.next()
	}

	if p.tok == token.OR {
		p.next()
		c.Or = p.parseClause()
	}
	return c
}

func binaryOpFor(tok token.Token) ast.BinaryOp {
	switch tok {
	case token.EQL:
		return ast.OpEq
	case token.NEQ:
		return ast.OpNeq
	case token.LSS:
		return ast.OpLt
	case token.LEQ:
		return ast.OpLeq
	case token.GTR:
		return ast.OpGt
	case token.GEQ:
		return ast.OpGeq
	case token.IN:
		return ast.OpIn
	}
	return ast.NoBinaryOp
}

// parseRhs parses the right-hand side of a binary clause: either a query
// or a literal expression, including a regex literal.
func (p *parser) parseRhs() ast.Node {
	if p.tok == token.IDENT || p.tok == token.PERCENT || p.tok == token.THIS {
		// An RHS starting with IDENT/THIS/% is always parsed as a query,
		// so a lone identifier here is a field lookup against the
		// receiver, not a bare symbol literal. Bare symbols are read as
		// strings only inside a list literal (e.g. `in [us-east-1b]`),
		// which parseExpr handles. An RHS lookup that does not resolve
		// makes the clause FAIL with the traversal reason.
		return p.parseQuery()
	}
	return p.parseExpr()
}

func (p *parser) finishRuleCall(pos token.Pos, name string) *ast.RuleCall {
	p.expect(token.LPAREN)
	call := &ast.RuleCall{ExprBase: exprBaseAt(pos, p.pos), Name: name}
	if p.tok != token.RPAREN {
		for {
			call.Args = append(call.Args, p.parseArg())
			if p.tok != token.COMMA {
				break
			}
			p.next()
		}
	}
	call.ExprBase.TokEnd = p.pos
	p.expect(token.RPAREN)
	return call
}

func (p *parser) parseArg() ast.Node {
	if p.tok == token.IDENT || p.tok == token.PERCENT || p.tok == token.THIS || p.tok == token.STAR {
		// A bare identifier argument could itself be a nested rule call.
		if p.tok == token.IDENT {
			save := *p
			name := p.lit
			p.next()
			if p.tok == token.LPAREN {
				return p.finishRuleCall(save.pos, name)
			}
			*p = save
		}
		return p.parseQuery()
	}
	return p.parseExpr()
}

// parseGuardList parses a `when` guard: a flat conjoined run of clauses
// and/or bare rule references (`when child` gates a rule on another
// rule's verdict, not a clause with an operator).
func (p *parser) parseGuardList() []ast.Node {
	var out []ast.Node
	for p.isClauseStart() {
		item := p.parseGuardItem()
		if item == nil {
			break
		}
		out = append(out, item)
	}
	return out
}

func (p *parser) parseGuardItem() ast.Node {
	pos := p.pos
	not := false
	some := false
	if p.tok == token.NOT {
		not = true
		p.next()
	}
	if p.tok == token.SOME {
		some = true
		p.next()
	}
	if !p.isClauseStart() && p.tok != token.NOT {
		p.errorf(p.pos, "expected a clause or rule reference in guard, found %s", p.tok)
		return nil
	}

	bareName, q := p.parseQueryTrackingBare()
	switch {
	case p.tok == token.NOT || isUnaryOpTok(p.tok) || isBinaryOpStart(p.tok):
		return p.finishClause(pos, not, some, q)
	case p.tok == token.LPAREN && bareName != "":
		if some {
			p.errorf(pos, "'some' cannot prefix a rule reference")
		}
		call := p.finishRuleCall(pos, bareName)
		call.Not = not
		return call
	case bareName != "":
		if some {
			p.errorf(pos, "'some' cannot prefix a rule reference")
		}
		return &ast.RuleCall{ExprBase: exprBaseAt(pos, p.pos), Not: not, Name: bareName}
	default:
		p.errorf(p.pos, "expected an operator after query in guard, found %s", p.tok)
		return nil
	}
}

func (p *parser) isClauseStart() bool {
	switch p.tok {
	case token.NOT, token.SOME, token.IDENT, token.PERCENT, token.THIS, token.STAR:
		return true
	}
	return false
}

// parseBlockItem parses one of: Clause, NestedBlock, or RuleCall,
// disambiguated as follows: a query followed by an
// operator is a Clause; a bare single identifier followed by '(' is a
// parameterised RuleCall; any query followed by '{' is a NestedBlock
// receiver; a bare single identifier followed by anything else
// that starts a new item is itself a RuleCall.
func (p *parser) parseBlockItem() ast.Node {
	pos := p.pos
	not := false
	some := false
	if p.tok == token.NOT {
		not = true
		p.next()
	}
	if p.tok == token.SOME {
		some = true
		p.next()
	}

	if !p.isClauseStart() && p.tok != token.NOT {
		if not || some {
			p.errorf(pos, "expected a query after 'not'/'some'")
		}
		p.errorf(p.pos, "expected clause, rule reference, or nested block, found %s", p.tok)
		return nil
	}

	bareName, q := p.parseQueryTrackingBare()

	switch {
	case p.tok == token.NOT || isUnaryOpTok(p.tok) || isBinaryOpStart(p.tok):
		return p.finishClause(pos, not, some, q)

	case p.tok == token.LPAREN && bareName != "":
		if some {
			p.errorf(pos, "'some' cannot prefix a rule reference")
		}
		call := p.finishRuleCall(pos, bareName)
		call.Not = not
		return call

	case p.tok == token.LBRACE:
		return &ast.NestedBlock{Not: not, Some: some, Query: q, Block: p.parseBlock()}

	case bareName != "":
		if some {
			p.errorf(pos, "'some' cannot prefix a rule reference")
		}
		return &ast.RuleCall{ExprBase: exprBaseAt(pos, p.pos), Not: not, Name: bareName}

	default:
		p.errorf(p.pos, "expected an operator after query, found %s", p.tok)
		return nil
	}
}

func exprBaseAt(start, end token.Pos) ast.ExprBase {
	return ast.ExprBase{TokPos: start, TokEnd: end}
}

func isUnaryOpTok(tok token.Token) bool {
	switch tok {
	case token.EXISTS, token.EMPTY, token.IS_STRING, token.IS_LIST, token.IS_STRUCT,
		token.IS_INT, token.IS_FLOAT, token.IS_BOOL, token.NULL:
		return true
	}
	return false
}

func isBinaryOpStart(tok token.Token) bool {
	switch tok {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ, token.IN, token.KEYS:
		return true
	}
	return false
}

func unaryOpFor(tok token.Token) ast.UnaryOp {
	switch tok {
	case token.EXISTS:
		return ast.OpExists
	case token.EMPTY:
		return ast.OpEmpty
	case token.IS_STRING:
		return ast.OpIsString
	case token.IS_LIST:
		return ast.OpIsList
	case token.IS_STRUCT:
		return ast.OpIsStruct
	case token.IS_INT:
		return ast.OpIsInt
	case token.IS_FLOAT:
		return ast.OpIsFloat
	case token.IS_BOOL:
		return ast.OpIsBool
	case token.NULL:
		return ast.OpNull
	}
	return ast.NoUnaryOp
}

// -- Query -----------------------------------------------------------------

// parseQueryTrackingBare parses a Query and additionally reports the bare
// identifier name if the query turned out to be exactly a single IDENT
// head with no further steps, the case that disambiguates a RuleCall or
// NestedBlock receiver from a Clause.
func (p *parser) parseQueryTrackingBare() (bareName string, q *ast.Query) {
	start := p.pos
	q = &ast.Query{StartPos: start}

	if p.tok == token.IDENT {
		bareName = p.lit
		q.Steps = append(q.Steps, ast.KeyStep{StepBase: base(start, p.pos), Name: p.lit})
		p.next()
	} else {
		p.parseQueryHead(q)
	}

	for {
		switch p.tok {
		case token.PERIOD:
			bareName = ""
			p.next()
			p.parseQueryDotStep(q)
		case token.LBRACK:
			bareName = ""
			p.parseQueryBracketStep(q)
		default:
			return bareName, q
		}
	}
}

func (p *parser) parseQuery() *ast.Query {
	_, q := p.parseQueryTrackingBare()
	return q
}

func (p *parser) parseQueryHead(q *ast.Query) {
	start := p.pos
	switch p.tok {
	case token.PERCENT:
		p.next()
		name := p.expectIdentLit("variable name")
		q.Steps = append(q.Steps, ast.VariableRef{StepBase: base(start, p.pos), Name: name})
	case token.THIS:
		p.next() // `this` contributes no step: it denotes the receiver itself.
	case token.STAR:
		p.next()
		q.Steps = append(q.Steps, ast.AllValues{StepBase: base(start, p.pos)})
	default:
		p.errorf(p.pos, "expected a query, found %s", p.tok)
		p.next()
	}
}

func (p *parser) expectIdentLit(what string) string {
	if p.tok != token.IDENT {
		p.errorf(p.pos, "expected %s, found %s", what, p.tok)
		return ""
	}
	lit := p.lit
	p.next()
	return lit
}

func (p *parser) parseQueryDotStep(q *ast.Query) {
	start := p.pos
	switch p.tok {
	case token.STAR:
		p.next()
		q.Steps = append(q.Steps, ast.AllValues{StepBase: base(start, p.pos)})
	case token.KEYS:
		p.next()
		q.Steps = append(q.Steps, ast.KeysOf{StepBase: base(start, p.pos)})
	case token.PERCENT:
		p.next()
		name := p.expectIdentLit("variable name")
		q.Steps = append(q.Steps, ast.VariableRef{StepBase: base(start, p.pos), Name: name})
	case token.IDENT, token.THIS:
		name := p.lit
		p.next()
		if builtinFuncs[name] && p.tok == token.LPAREN {
			q.Steps = append(q.Steps, p.finishFuncStep(start, name))
			return
		}
		q.Steps = append(q.Steps, ast.KeyStep{StepBase: base(start, p.pos), Name: name})
	default:
		p.errorf(p.pos, "expected a query step after '.', found %s", p.tok)
		p.next()
	}
}

func (p *parser) parseQueryBracketStep(q *ast.Query) {
	start := p.pos
	p.expect(token.LBRACK)
	switch {
	case p.tok == token.STAR:
		p.next()
		q.Steps = append(q.Steps, ast.AllIndices{StepBase: base(start, p.pos)})
	case p.tok == token.INT:
		n, err := strconv.Atoi(p.lit)
		if err != nil {
			p.errorf(p.pos, "invalid list index %q", p.lit)
		}
		p.next()
		q.Steps = append(q.Steps, ast.Index{StepBase: base(start, p.pos), Value: n})
	default:
		predicate := &ast.Block{LBrace: start}
		for _, c := range p.parseClauseList() {
			predicate.Items = append(predicate.Items, c)
		}
		q.Steps = append(q.Steps, ast.Filter{StepBase: base(start, p.pos), Predicate: predicate})
	}
	p.expect(token.RBRACK)
}

func base(start, end token.Pos) ast.StepBase {
	return ast.StepBase{TokPos: start, TokEnd: end}
}

// builtinFuncs names the built-in functions recognised as `.name(args)`
// query steps. A bare key whose name happens to match one of these is
// vanishingly unlikely in real CloudFormation/Terraform documents, and
// never arises followed directly by '('.
var builtinFuncs = map[string]bool{
	"regex_replace": true,
	"join":          true,
	"count":         true,
	"parse_int":     true,
	"parse_float":   true,
	"parse_string":  true,
	"parse_boolean": true,
	"json_parse":    true,
}

func (p *parser) finishFuncStep(start token.Pos, name string) ast.FuncStep {
	p.expect(token.LPAREN)
	fs := ast.FuncStep{StepBase: base(start, p.pos), Name: name}
	if p.tok != token.RPAREN {
		for {
			fs.Args = append(fs.Args, p.parseExpr())
			if p.tok != token.COMMA {
				break
			}
			p.next()
		}
	}
	fs.StepBase.TokEnd = p.pos
	p.expect(token.RPAREN)
	return fs
}

// -- Expr ------------------------------------------------------------------

func (p *parser) parseExpr() ast.Expr {
	start := p.pos
	switch p.tok {
	case token.NULL:
		p.next()
		return ast.NullLit{ExprBase: exprBaseAt(start, p.pos)}
	case token.TRUE, token.FALSE:
		v := p.tok == token.TRUE
		p.next()
		return ast.BoolLit{ExprBase: exprBaseAt(start, p.pos), Value: v}
	case token.INT:
		n, err := strconv.ParseInt(p.lit, 10, 64)
		if err != nil {
			p.errorf(p.pos, "invalid integer literal %q", p.lit)
		}
		p.next()
		return ast.IntLit{ExprBase: exprBaseAt(start, p.pos), Value: n}
	case token.FLOAT:
		f, err := strconv.ParseFloat(p.lit, 64)
		if err != nil {
			p.errorf(p.pos, "invalid float literal %q", p.lit)
		}
		p.next()
		return ast.FloatLit{ExprBase: exprBaseAt(start, p.pos), Value: f}
	case token.STRING:
		s, err := literal.Unquote(p.lit)
		if err != nil {
			p.errorf(p.pos, "%s", err)
		}
		p.next()
		return ast.StringLit{ExprBase: exprBaseAt(start, p.pos), Value: s}
	case token.REGEX:
		pat, err := literal.UnquoteRegex(p.lit)
		if err != nil {
			p.errorf(p.pos, "%s", err)
		}
		p.next()
		return ast.RegexLit{ExprBase: exprBaseAt(start, p.pos), Pattern: pat}
	case token.IDENT:
		// Bare symbol sugar: an unquoted identifier used as a literal
		// value, e.g. `in [us-east-1b]`.
		s := p.lit
		p.next()
		return ast.StringLit{ExprBase: exprBaseAt(start, p.pos), Value: s}
	case token.LBRACK:
		return p.parseListLit()
	default:
		p.errorf(p.pos, "expected a value, found %s", p.tok)
		p.next()
		return ast.NullLit{ExprBase: exprBaseAt(start, p.pos)}
	}
}

func (p *parser) parseListLit() ast.ListLit {
	start := p.pos
	p.expect(token.LBRACK)
	lit := ast.ListLit{ExprBase: exprBaseAt(start, start)}
	for p.tok != token.RBRACK && p.tok != token.EOF {
		lit.Elts = append(lit.Elts, p.parseExpr())
		if p.tok != token.COMMA {
			break
		}
		p.next()
	}
	lit.ExprBase.TokEnd = p.pos
	p.expect(token.RBRACK)
	return lit
}
