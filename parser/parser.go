// Package parser implements a recursive-descent parser for CMM: it turns a
// token stream into a single tree rooted at ast.Program. On any mismatch it
// aborts immediately with a positional diagnostic - there is no error
// recovery, matching the single-pass, single-error toolchain the language
// specifies.
package parser

import (
	"github.com/cmm-lang/cmm/ast"
	"github.com/cmm-lang/cmm/internal/diag"
	"github.com/cmm-lang/cmm/token"
)

// Parse consumes the full token stream and returns the Program node.
func Parse(tokens []token.Token) (prog *ast.Node, err error) {
	p := &parser{toks: tokens}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	return p.program(), nil
}

// parser walks a fixed token slice with a cursor; the speculative
// assignment-vs-expression disambiguation saves this cursor, parses a Var,
// and restores the cursor (discarding that Var) when no '=' follows.
type parser struct {
	toks []token.Token
	pos  int
}

func (p *parser) cur() token.Token {
	return p.toks[p.pos]
}

// la returns the token n positions ahead of the cursor (la(0) == cur()).
func (p *parser) la(n int) token.Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF sentinel
	}
	return p.toks[i]
}

func (p *parser) advance() token.Token {
	t := p.cur()
	if t.Kind != token.EOF {
		p.pos++
	}
	return t
}

// abort raises the single fatal syntax diagnostic the specification defines.
// Recovered by Parse.
func (p *parser) abort(t token.Token) {
	lexeme := t.Lexeme
	if t.Kind == token.EOF {
		lexeme = "EOF"
	}
	panic(diag.Unexpected(lexeme, t.Line))
}

// expect consumes the current token if it has kind k, aborting otherwise.
func (p *parser) expect(k token.Kind) token.Token {
	t := p.cur()
	if t.Kind != k {
		p.abort(t)
	}
	return p.advance()
}

// mark/reset implement the save/rewind half of the speculative parse.
func (p *parser) mark() int     { return p.pos }
func (p *parser) reset(m int)   { p.pos = m }

// ---------------------------------------------------------------------------
// Program ::= Decl { Decl }
// ---------------------------------------------------------------------------

func (p *parser) program() *ast.Node {
	line := p.cur().Line
	var decls []*ast.Node
	for p.cur().Kind != token.EOF {
		decls = append(decls, p.decl())
	}
	return ast.New(ast.Program, line, decls...)
}

// Decl ::= VarDecl | FuncDecl
//
// Discriminated by looking two tokens ahead of the leading Type: `Type Id (`
// is a FuncDecl, anything else (`;` or `[`) is a VarDecl.
func (p *parser) decl() *ast.Node {
	if p.la(2).Kind == token.LPAREN {
		return p.funcDecl()
	}
	return p.varDecl()
}

// Type ::= 'int' | 'void'
func (p *parser) typeTok() token.Token {
	t := p.cur()
	if t.Kind != token.INTKW && t.Kind != token.VOID {
		p.abort(t)
	}
	return p.advance()
}

// VarDecl ::= Type Id [ '[' Number ']' ] ';'
func (p *parser) varDecl() *ast.Node {
	typ := p.typeTok()
	id := p.expect(token.IDENT)

	var children []*ast.Node
	children = append(children,
		ast.Leaf(ast.Ident, typ.Lexeme, typ.Line),
		ast.Leaf(ast.Ident, id.Lexeme, id.Line))

	if p.cur().Kind == token.LBRACK {
		p.advance()
		n := p.expect(token.INT)
		p.expect(token.RBRACK)
		children = append(children, ast.Leaf(ast.IntLit, n.Lexeme, n.Line))
	}

	p.expect(token.SEMI)
	return ast.New(ast.VarDecl, typ.Line, children...)
}

// FuncDecl ::= Type Id '(' [ParamList] ')' '{' LocalDecl StmtList '}'
//
// CompoundStmt is flattened into FuncDecl: it contributes two direct
// children, LocalDecl and StmtList, rather than a node of its own.
func (p *parser) funcDecl() *ast.Node {
	typ := p.typeTok()
	id := p.expect(token.IDENT)
	p.expect(token.LPAREN)

	var params *ast.Node
	switch {
	case p.cur().Kind == token.RPAREN:
		// no parameters
	case p.cur().Kind == token.VOID && p.la(1).Kind == token.RPAREN:
		// a lone 'void' parameter is accepted as an empty parameter list
		p.advance()
	default:
		params = p.paramList()
	}
	p.expect(token.RPAREN)

	p.expect(token.LBRACE)
	locals := p.localDecl()
	stmts := p.stmtList()
	p.expect(token.RBRACE)

	return ast.New(ast.FuncDecl, typ.Line,
		ast.Leaf(ast.Ident, typ.Lexeme, typ.Line),
		ast.Leaf(ast.Ident, id.Lexeme, id.Line),
		params, locals, stmts)
}

// ParamList ::= Param { ',' Param }
func (p *parser) paramList() *ast.Node {
	line := p.cur().Line
	params := []*ast.Node{p.param()}
	for p.cur().Kind == token.COMMA {
		p.advance()
		params = append(params, p.param())
	}
	return ast.New(ast.ParamList, line, params...)
}

// Param ::= Type Id [ '[' ']' ]
//
// The '[]' marker itself is not retained on the node: symtab.Build already
// records every parameter as a decayed pointer (Length 0), and codegen
// reads that rather than needing a separate array/scalar tag here.
func (p *parser) param() *ast.Node {
	typ := p.typeTok()
	id := p.expect(token.IDENT)
	children := []*ast.Node{
		ast.Leaf(ast.Ident, typ.Lexeme, typ.Line),
		ast.Leaf(ast.Ident, id.Lexeme, id.Line),
	}
	if p.cur().Kind == token.LBRACK {
		p.advance()
		p.expect(token.RBRACK)
	}
	return ast.New(ast.Param, typ.Line, children...)
}

// LocalDecl ::= { VarDecl }
func (p *parser) localDecl() *ast.Node {
	line := p.cur().Line
	var decls []*ast.Node
	for p.cur().Kind == token.INTKW || p.cur().Kind == token.VOID {
		decls = append(decls, p.varDecl())
	}
	return ast.New(ast.LocalDecl, line, decls...)
}

// StmtList ::= { Stmt }
func (p *parser) stmtList() *ast.Node {
	line := p.cur().Line
	var stmts []*ast.Node
	for {
		switch p.cur().Kind {
		case token.RBRACE, token.EOF:
			return ast.New(ast.StmtList, line, stmts...)
		default:
			stmts = append(stmts, p.stmt())
		}
	}
}

// Stmt ::= ExprStmt | IfStmt | WhileStmt | ReturnStmt
func (p *parser) stmt() *ast.Node {
	switch p.cur().Kind {
	case token.IF:
		return p.ifStmt()
	case token.WHILE:
		return p.whileStmt()
	case token.RETURN:
		return p.returnStmt()
	default:
		return p.exprStmt()
	}
}

// ExprStmt ::= [ Expr ] ';'
func (p *parser) exprStmt() *ast.Node {
	line := p.cur().Line
	if p.cur().Kind == token.SEMI {
		p.advance()
		return ast.New(ast.ExprStmt, line, nil)
	}
	e := p.expr()
	p.expect(token.SEMI)
	return ast.New(ast.ExprStmt, line, e)
}

// IfStmt ::= 'if' '(' Expr ')' '{' StmtList '}' [ 'else' '{' StmtList '}' ]
//
// The else branch always occupies the third child slot; it is nil when
// absent.
func (p *parser) ifStmt() *ast.Node {
	line := p.expect(token.IF).Line
	p.expect(token.LPAREN)
	cond := p.expr()
	p.expect(token.RPAREN)
	p.expect(token.LBRACE)
	then := p.stmtList()
	p.expect(token.RBRACE)

	var elseBranch *ast.Node
	if p.cur().Kind == token.ELSE {
		p.advance()
		p.expect(token.LBRACE)
		elseBranch = p.stmtList()
		p.expect(token.RBRACE)
	}
	return ast.New(ast.IfStmt, line, cond, then, elseBranch)
}

// WhileStmt ::= 'while' '(' Expr ')' '{' StmtList '}'
func (p *parser) whileStmt() *ast.Node {
	line := p.expect(token.WHILE).Line
	p.expect(token.LPAREN)
	cond := p.expr()
	p.expect(token.RPAREN)
	p.expect(token.LBRACE)
	body := p.stmtList()
	p.expect(token.RBRACE)
	return ast.New(ast.WhileStmt, line, cond, body)
}

// ReturnStmt ::= 'return' [ Expr ] ';'
func (p *parser) returnStmt() *ast.Node {
	line := p.expect(token.RETURN).Line
	if p.cur().Kind == token.SEMI {
		p.advance()
		return ast.New(ast.ReturnStmt, line, nil)
	}
	e := p.expr()
	p.expect(token.SEMI)
	return ast.New(ast.ReturnStmt, line, e)
}

// Expr ::= Var '=' Expr | SimpleExpr
//
// Both alternatives start with an identifier, so the choice can't be made by
// lookahead alone: the parser speculatively parses a Var and checks whether
// an '=' follows. If so, it keeps that Var and parses the right-hand side;
// otherwise it rewinds the cursor and parses a SimpleExpr. The resulting
// Expr node has two children (Var, Expr) for an
// assignment, or one child (SimpleExpr) otherwise - this shape is part of
// the language's testable properties.
func (p *parser) expr() *ast.Node {
	line := p.cur().Line
	if p.cur().Kind == token.IDENT {
		save := p.mark()
		v := p.tryVar()
		if v != nil && p.cur().Kind == token.ASSIGN {
			p.advance()
			rhs := p.expr()
			return ast.New(ast.Expr, line, v, rhs)
		}
		p.reset(save)
	}
	se := p.simpleExpr()
	return ast.New(ast.Expr, line, se)
}

// tryVar speculatively parses a Var production, returning nil (without
// panicking) if the current position isn't one - the caller rewinds
// afterwards unless a Var followed by '=' was found.
func (p *parser) tryVar() (v *ast.Node) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
		}
	}()
	return p.varRef()
}

// Var ::= Id [ '[' Expr ']' ]
func (p *parser) varRef() *ast.Node {
	id := p.expect(token.IDENT)
	children := []*ast.Node{ast.Leaf(ast.Ident, id.Lexeme, id.Line)}
	if p.cur().Kind == token.LBRACK {
		p.advance()
		idx := p.expr()
		p.expect(token.RBRACK)
		children = append(children, idx)
	}
	return ast.New(ast.Var, id.Line, children...)
}

// SimpleExpr ::= AddExpr [ RelOp AddExpr ]
func (p *parser) simpleExpr() *ast.Node {
	line := p.cur().Line
	lhs := p.addExpr()
	if token.IsRelOp(p.cur().Kind) {
		op := p.advance()
		rhs := p.addExpr()
		return ast.New(ast.SimpleExpr, line, lhs, ast.Leaf(ast.Ident, string(op.Kind), op.Line), rhs)
	}
	return ast.New(ast.SimpleExpr, line, lhs)
}

// AddExpr ::= Term { AddOp Term }
func (p *parser) addExpr() *ast.Node {
	line := p.cur().Line
	children := []*ast.Node{p.term()}
	for p.cur().Kind == token.PLUS || p.cur().Kind == token.MINUS {
		op := p.advance()
		children = append(children, ast.Leaf(ast.Ident, string(op.Kind), op.Line), p.term())
	}
	return ast.New(ast.AddExpr, line, children...)
}

// Term ::= Factor { MulOp Factor }
func (p *parser) term() *ast.Node {
	line := p.cur().Line
	children := []*ast.Node{p.factor()}
	for p.cur().Kind == token.STAR || p.cur().Kind == token.SLASH {
		op := p.advance()
		children = append(children, ast.Leaf(ast.Ident, string(op.Kind), op.Line), p.factor())
	}
	return ast.New(ast.Term, line, children...)
}

// Factor ::= '(' Expr ')' | Number | Call | Var
func (p *parser) factor() *ast.Node {
	t := p.cur()
	switch t.Kind {
	case token.LPAREN:
		p.advance()
		e := p.expr()
		p.expect(token.RPAREN)
		return e
	case token.INT:
		p.advance()
		return ast.Leaf(ast.IntLit, t.Lexeme, t.Line)
	case token.IDENT:
		if p.la(1).Kind == token.LPAREN {
			return p.call()
		}
		return p.varRef()
	default:
		p.abort(t)
		panic("unreachable")
	}
}

// Call ::= Id '(' [ ArgList ] ')'
func (p *parser) call() *ast.Node {
	id := p.expect(token.IDENT)
	p.expect(token.LPAREN)
	var args *ast.Node
	if p.cur().Kind != token.RPAREN {
		args = p.argList()
	}
	p.expect(token.RPAREN)
	return ast.New(ast.Call, id.Line, ast.Leaf(ast.Ident, id.Lexeme, id.Line), args)
}

// ArgList ::= Expr { ',' Expr }
func (p *parser) argList() *ast.Node {
	line := p.cur().Line
	args := []*ast.Node{p.expr()}
	for p.cur().Kind == token.COMMA {
		p.advance()
		args = append(args, p.expr())
	}
	return ast.New(ast.ArgList, line, args...)
}
