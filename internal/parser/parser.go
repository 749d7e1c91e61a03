package parser

import (
	"fmt"

	"coolc/internal/ast"
	"coolc/internal/lexer"
	"coolc/internal/token"
)

// Binding tightness of the binary operators. Assignment sits below this
// table at level 0; `.` and `@` are handled by the dispatch-suffix loop.
const (
	precNot     = 1
	precLess    = 2
	precEqualLE = 3 // non-associative
	precAddSub  = 4 // left-associative
	precMulDiv  = 5 // left-associative
	precNeg     = 6
	precIsVoid  = 7
)

var binaryPrec = map[token.Type]int{
	token.LT:    precLess,
	token.Equal: precEqualLE,
	token.LE:    precEqualLE,
	token.Plus:  precAddSub,
	token.Minus: precAddSub,
	token.Star:  precMulDiv,
	token.Slash: precMulDiv,
}

var binaryOps = map[token.Type]ast.BinaryOp{
	token.LT:    ast.OpLT,
	token.Equal: ast.OpEQ,
	token.LE:    ast.OpLE,
	token.Plus:  ast.OpAdd,
	token.Minus: ast.OpSub,
	token.Star:  ast.OpMul,
	token.Slash: ast.OpDiv,
}

// Parser is a hand-written recursive-descent parser with Pratt-style
// precedence climbing. It stops at the first mismatch: every production
// returns nil once the single error message is set.
type Parser struct {
	fileName string
	tokens   []*token.Token
	current  int
	err      string
}

func New(l *lexer.Lexer) *Parser {
	var tokens []*token.Token
	for t := l.Next(); t != nil; t = l.Next() {
		tokens = append(tokens, t)
	}
	return &Parser{fileName: l.FileName(), tokens: tokens}
}

func NewFromTokens(fileName string, tokens []*token.Token) *Parser {
	return &Parser{fileName: fileName, tokens: tokens}
}

// ErrorMsg returns the recorded syntax error, empty if parsing succeeded.
func (p *Parser) ErrorMsg() string { return p.err }

func (p *Parser) peek() *token.Token {
	if p.current < len(p.tokens) {
		return p.tokens[p.current]
	}
	return nil
}

func (p *Parser) advance() *token.Token {
	t := p.peek()
	if t != nil {
		p.current++
	}
	return t
}

func (p *Parser) check(typ token.Type) bool {
	t := p.peek()
	return t != nil && t.Type == typ
}

func (p *Parser) match(typ token.Type) bool {
	if p.check(typ) {
		p.current++
		return true
	}
	return false
}

// report records the error message at the current token; subsequent
// reports are ignored so the first mismatch wins.
func (p *Parser) report() {
	if p.err != "" {
		return
	}
	line := 0
	desc := "EOF"
	if t := p.peek(); t != nil {
		line = t.Line
		desc = t.DisplayString()
	} else if len(p.tokens) > 0 {
		line = p.tokens[len(p.tokens)-1].Line
	}
	p.err = fmt.Sprintf("\"%s\", line %d: syntax error at or near %s", p.fileName, line, desc)
}

func (p *Parser) expect(typ token.Type) *token.Token {
	if !p.check(typ) {
		p.report()
		return nil
	}
	return p.advance()
}

// Parse returns the program or nil with ErrorMsg set.
func (p *Parser) Parse() *ast.Program {
	prog := &ast.Program{}
	for p.peek() != nil {
		c := p.parseClass()
		if c == nil {
			return nil
		}
		prog.Classes = append(prog.Classes, c)
	}
	if len(prog.Classes) == 0 {
		p.report()
		return nil
	}
	return prog
}

func (p *Parser) parseClass() *ast.Class {
	kw := p.expect(token.Class)
	if kw == nil {
		return nil
	}
	name := p.expect(token.TypeID)
	if name == nil {
		return nil
	}
	parent := ast.ObjectClass
	if p.match(token.Inherits) {
		pt := p.expect(token.TypeID)
		if pt == nil {
			return nil
		}
		parent = pt.Lexeme
	}
	if p.expect(token.LBrace) == nil {
		return nil
	}
	c := &ast.Class{Name: name.Lexeme, Parent: parent, FileName: p.fileName, Line: kw.Line}
	for !p.check(token.RBrace) {
		f := p.parseFeature()
		if f == nil {
			return nil
		}
		c.Features = append(c.Features, f)
	}
	p.advance() // '}'
	if p.expect(token.Semicolon) == nil {
		return nil
	}
	return c
}

func (p *Parser) parseFeature() *ast.Feature {
	name := p.expect(token.ObjectID)
	if name == nil {
		return nil
	}
	if p.match(token.LParen) {
		return p.parseMethod(name)
	}
	// attribute: name : TYPE [<- init] ;
	if p.expect(token.Colon) == nil {
		return nil
	}
	typ := p.expect(token.TypeID)
	if typ == nil {
		return nil
	}
	f := &ast.Feature{Kind: ast.AttrFeature, Name: name.Lexeme, DeclType: typ.Lexeme, Line: name.Line}
	if p.match(token.Assign) {
		f.Init = p.parseExpr(0)
		if f.Init == nil {
			return nil
		}
	}
	if p.expect(token.Semicolon) == nil {
		return nil
	}
	return f
}

func (p *Parser) parseMethod(name *token.Token) *ast.Feature {
	f := &ast.Feature{Kind: ast.MethodFeature, Name: name.Lexeme, Line: name.Line}
	if !p.check(token.RParen) {
		for {
			frm := p.parseFormal()
			if frm == nil {
				return nil
			}
			f.Formals = append(f.Formals, frm)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	if p.expect(token.RParen) == nil || p.expect(token.Colon) == nil {
		return nil
	}
	ret := p.expect(token.TypeID)
	if ret == nil {
		return nil
	}
	f.DeclType = ret.Lexeme
	if p.expect(token.LBrace) == nil {
		return nil
	}
	f.Body = p.parseExpr(0)
	if f.Body == nil {
		return nil
	}
	if p.expect(token.RBrace) == nil || p.expect(token.Semicolon) == nil {
		return nil
	}
	return f
}

func (p *Parser) parseFormal() *ast.Formal {
	name := p.expect(token.ObjectID)
	if name == nil {
		return nil
	}
	if p.expect(token.Colon) == nil {
		return nil
	}
	typ := p.expect(token.TypeID)
	if typ == nil {
		return nil
	}
	return &ast.Formal{Name: name.Lexeme, DeclType: typ.Lexeme, Line: name.Line}
}

// parseExpr parses an expression, consuming binary operators that bind
// tighter than min.
func (p *Parser) parseExpr(min int) ast.Expr {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}
	return p.parseBinaryRHS(min, left)
}

func (p *Parser) parsePrefix() ast.Expr {
	t := p.peek()
	if t == nil {
		p.report()
		return nil
	}
	switch t.Type {
	case token.Not:
		p.advance()
		operand := p.parseExpr(precNot)
		if operand == nil {
			return nil
		}
		return &ast.Unary{Base: ast.Base{Line: t.Line}, Op: ast.OpNot, Operand: operand}
	case token.Tilde:
		p.advance()
		operand := p.parseExpr(precNeg)
		if operand == nil {
			return nil
		}
		return &ast.Unary{Base: ast.Base{Line: t.Line}, Op: ast.OpNeg, Operand: operand}
	case token.IsVoid:
		p.advance()
		operand := p.parseExpr(precIsVoid)
		if operand == nil {
			return nil
		}
		return &ast.Unary{Base: ast.Base{Line: t.Line}, Op: ast.OpIsVoid, Operand: operand}
	}
	atom := p.parseAtom()
	if atom == nil {
		return nil
	}
	return p.dispatchSuffix(atom)
}

// dispatchSuffix attaches trailing .id(args) and @Type.id(args) chains.
func (p *Parser) dispatchSuffix(recv ast.Expr) ast.Expr {
	for {
		var annot string
		t := p.peek()
		if t == nil {
			return recv
		}
		switch t.Type {
		case token.At:
			p.advance()
			typ := p.expect(token.TypeID)
			if typ == nil {
				return nil
			}
			annot = typ.Lexeme
			if p.expect(token.Dot) == nil {
				return nil
			}
		case token.Dot:
			p.advance()
		default:
			return recv
		}
		method := p.expect(token.ObjectID)
		if method == nil {
			return nil
		}
		args := p.parseArgs()
		if p.err != "" {
			return nil
		}
		recv = &ast.Dispatch{
			Base:      ast.Base{Line: method.Line},
			Receiver:  recv,
			TypeAnnot: annot,
			Method:    method.Lexeme,
			Args:      args,
		}
	}
}

func (p *Parser) parseArgs() []ast.Expr {
	if p.expect(token.LParen) == nil {
		return nil
	}
	var args []ast.Expr
	if !p.check(token.RParen) {
		for {
			a := p.parseExpr(0)
			if a == nil {
				return nil
			}
			args = append(args, a)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	if p.expect(token.RParen) == nil {
		return nil
	}
	return args
}

func (p *Parser) parseBinaryRHS(min int, left ast.Expr) ast.Expr {
	for {
		t := p.peek()
		if t == nil {
			return left
		}
		prec, ok := binaryPrec[t.Type]
		if !ok || prec <= min {
			return left
		}
		p.advance()
		right := p.parseExpr(prec)
		if right == nil {
			return nil
		}
		// = and <= at the same level do not chain
		if prec == precEqualLE {
			if n := p.peek(); n != nil {
				if np, ok := binaryPrec[n.Type]; ok && np == precEqualLE {
					p.report()
					return nil
				}
			}
		}
		left = &ast.Binary{Base: ast.Base{Line: t.Line}, Op: binaryOps[t.Type], Left: left, Right: right}
	}
}

func (p *Parser) parseAtom() ast.Expr {
	t := p.peek()
	if t == nil {
		p.report()
		return nil
	}
	switch t.Type {
	case token.IntConst:
		p.advance()
		var v int64
		fmt.Sscanf(t.Lexeme, "%d", &v)
		return &ast.IntConst{Base: ast.Base{Line: t.Line}, Value: v}
	case token.StrConst:
		p.advance()
		return &ast.StringConst{Base: ast.Base{Line: t.Line}, Value: t.Lexeme}
	case token.BoolConst:
		p.advance()
		return &ast.BoolConst{Base: ast.Base{Line: t.Line}, Value: t.Lexeme == "true"}
	case token.ObjectID:
		p.advance()
		if p.check(token.LParen) {
			// sugar for self.id(args)
			args := p.parseArgs()
			if p.err != "" {
				return nil
			}
			self := &ast.Object{Base: ast.Base{Line: t.Line}, Name: ast.SelfObject}
			return &ast.Dispatch{Base: ast.Base{Line: t.Line}, Receiver: self, Method: t.Lexeme, Args: args}
		}
		if p.match(token.Assign) {
			value := p.parseExpr(0)
			if value == nil {
				return nil
			}
			return &ast.Assign{Base: ast.Base{Line: t.Line}, Name: t.Lexeme, Value: value}
		}
		return &ast.Object{Base: ast.Base{Line: t.Line}, Name: t.Lexeme}
	case token.If:
		return p.parseIf()
	case token.While:
		return p.parseWhile()
	case token.LBrace:
		return p.parseBlock()
	case token.Let:
		return p.parseLet()
	case token.Case:
		return p.parseCase()
	case token.NewKw:
		p.advance()
		typ := p.expect(token.TypeID)
		if typ == nil {
			return nil
		}
		return &ast.New{Base: ast.Base{Line: t.Line}, TypeName: typ.Lexeme}
	case token.LParen:
		p.advance()
		e := p.parseExpr(0)
		if e == nil {
			return nil
		}
		if p.expect(token.RParen) == nil {
			return nil
		}
		return e
	}
	p.report()
	return nil
}

func (p *Parser) parseIf() ast.Expr {
	t := p.advance() // 'if'
	cond := p.parseExpr(0)
	if cond == nil || p.expect(token.Then) == nil {
		return nil
	}
	then := p.parseExpr(0)
	if then == nil || p.expect(token.Else) == nil {
		return nil
	}
	els := p.parseExpr(0)
	if els == nil || p.expect(token.Fi) == nil {
		return nil
	}
	return &ast.If{Base: ast.Base{Line: t.Line}, Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseWhile() ast.Expr {
	t := p.advance() // 'while'
	cond := p.parseExpr(0)
	if cond == nil || p.expect(token.Loop) == nil {
		return nil
	}
	body := p.parseExpr(0)
	if body == nil || p.expect(token.Pool) == nil {
		return nil
	}
	return &ast.While{Base: ast.Base{Line: t.Line}, Cond: cond, Body: body}
}

func (p *Parser) parseBlock() ast.Expr {
	t := p.advance() // '{'
	blk := &ast.Block{Base: ast.Base{Line: t.Line}}
	for {
		e := p.parseExpr(0)
		if e == nil {
			return nil
		}
		blk.Body = append(blk.Body, e)
		if p.expect(token.Semicolon) == nil {
			return nil
		}
		if p.match(token.RBrace) {
			return blk
		}
	}
}

// parseLet nests multi-binding lets: let a:A, b:B in e is a Let(a) whose
// body is Let(b).
func (p *Parser) parseLet() ast.Expr {
	p.advance() // 'let'
	type binding struct {
		name, typ string
		init      ast.Expr
		line      int
	}
	var bindings []binding
	for {
		name := p.expect(token.ObjectID)
		if name == nil {
			return nil
		}
		if p.expect(token.Colon) == nil {
			return nil
		}
		typ := p.expect(token.TypeID)
		if typ == nil {
			return nil
		}
		b := binding{name: name.Lexeme, typ: typ.Lexeme, line: name.Line}
		if p.match(token.Assign) {
			b.init = p.parseExpr(0)
			if b.init == nil {
				return nil
			}
		}
		bindings = append(bindings, b)
		if !p.match(token.Comma) {
			break
		}
	}
	if p.expect(token.In) == nil {
		return nil
	}
	body := p.parseExpr(0)
	if body == nil {
		return nil
	}
	for i := len(bindings) - 1; i >= 0; i-- {
		b := bindings[i]
		body = &ast.Let{
			Base:     ast.Base{Line: b.line},
			Name:     b.name,
			DeclType: b.typ,
			Init:     b.init,
			Body:     body,
		}
	}
	return body
}

func (p *Parser) parseCase() ast.Expr {
	t := p.advance() // 'case'
	e := p.parseExpr(0)
	if e == nil || p.expect(token.Of) == nil {
		return nil
	}
	c := &ast.Case{Base: ast.Base{Line: t.Line}, Expr: e}
	for {
		name := p.expect(token.ObjectID)
		if name == nil {
			return nil
		}
		if p.expect(token.Colon) == nil {
			return nil
		}
		typ := p.expect(token.TypeID)
		if typ == nil {
			return nil
		}
		if p.expect(token.Darrow) == nil {
			return nil
		}
		body := p.parseExpr(0)
		if body == nil {
			return nil
		}
		if p.expect(token.Semicolon) == nil {
			return nil
		}
		c.Branches = append(c.Branches, &ast.CaseBranch{
			Name: name.Lexeme, DeclType: typ.Lexeme, Body: body, Line: name.Line,
		})
		if p.match(token.Esac) {
			return c
		}
	}
}
