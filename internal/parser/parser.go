// Package parser implements a recursive-descent, Pratt-style parser that
// turns KernelScript source into an untyped ast.Program. It performs no
// semantic validation (spec.md §4.1): a main with the wrong signature or a
// call to an undeclared function parses cleanly and is rejected later by
// internal/types. Only the known map kinds parse as map types, so an
// unknown kind such as `bogus<u32, u64>(16)` is a syntax error.
package parser

import (
	"fmt"
	"strconv"

	"github.com/SiyuanSun0736/kernelscript/internal/ast"
	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/lexer"
	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

var primitiveNames = map[string]bool{
	"u8": true, "u16": true, "u32": true, "u64": true,
	"i8": true, "i16": true, "i32": true, "i64": true,
	"bool": true,
}

var mapKinds = map[string]bool{
	"hash": true, "lru_hash": true, "array": true,
	"percpu_hash": true, "percpu_array": true,
	"ringbuf": true, "perf_event_array": true,
}

// Parser holds the two-token lookahead window and aborts on the first
// syntax error, per spec.md §7: errors are not recovered.
type Parser struct {
	l    *lexer.Lexer
	file string
	cur  lexer.Token
	peek lexer.Token
	err  *kerrors.E
}

// New creates a parser over src, identified as file for positions.
func New(file, src string) *Parser {
	p := &Parser{l: lexer.New(file, src), file: file}
	p.advance()
	p.advance()
	return p
}

// Parse runs the parser to completion. On the first syntax error it
// returns (nil, err); otherwise it returns the full program.
func (p *Parser) Parse() (*ast.Program, *kerrors.E) {
	start := p.cur.Span.Start
	var decls []ast.Decl
	p.skipNewlines()
	for p.cur.Type != lexer.EOF && p.err == nil {
		d := p.parseDecl()
		if p.err != nil {
			break
		}
		decls = append(decls, d)
		p.skipNewlines()
	}
	if p.err != nil {
		return nil, p.err
	}
	end := p.cur.Span.End
	return &ast.Program{Decls: decls, Sp: position.Span{Start: start, End: end}}, nil
}

// ===== token plumbing =====

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) fail(pos position.Position, format string, args ...interface{}) {
	if p.err == nil {
		p.err = kerrors.New(pos, kerrors.KindParseError, format, args...)
	}
}

func (p *Parser) skipNewlines() {
	for p.cur.Type == lexer.NEWLINE {
		p.advance()
	}
}

// skipSeparators consumes any mix of commas and newlines between list
// elements, making trailing commas and newline-only separation both legal.
func (p *Parser) skipSeparators() {
	for p.cur.Type == lexer.COMMA || p.cur.Type == lexer.NEWLINE {
		p.advance()
	}
}

func (p *Parser) expect(tt lexer.TokenType) lexer.Token {
	tok := p.cur
	if p.cur.Type != tt {
		p.fail(p.cur.Span.Start, "expected %s, got %s %q", tt, p.cur.Type, p.cur.Literal)
		return tok
	}
	p.advance()
	return tok
}

func (p *Parser) expectIdentName() string {
	tok := p.expect(lexer.IDENT)
	return tok.Literal
}

// ===== declarations =====

func (p *Parser) parseDecl() ast.Decl {
	switch p.cur.Type {
	case lexer.INCLUDE:
		return p.parseInclude()
	case lexer.REQUIRE:
		return p.parsePragma()
	case lexer.STRUCT:
		return p.parseStructDecl()
	case lexer.TYPE:
		return p.parseTypeAlias()
	case lexer.ENUM:
		return p.parseEnumDecl()
	case lexer.CONFIG:
		return p.parseConfigDecl()
	case lexer.PIN:
		p.advance()
		return p.parseGlobalVarDecl(true)
	case lexer.VAR:
		return p.parseGlobalVarDecl(false)
	case lexer.AT, lexer.FN:
		return p.parseFunctionDecl()
	default:
		p.fail(p.cur.Span.Start, "unexpected token %s %q at top level", p.cur.Type, p.cur.Literal)
		return nil
	}
}

func (p *Parser) parseInclude() ast.Decl {
	start := p.cur.Span.Start
	p.expect(lexer.INCLUDE)
	tok := p.expect(lexer.STRING)
	return &ast.Include{Header: tok.Literal, Sp: p.spanFrom(start)}
}

func (p *Parser) parsePragma() ast.Decl {
	start := p.cur.Span.Start
	p.expect(lexer.REQUIRE)
	name := p.expectIdentName()
	val := p.expect(lexer.STRING)
	return &ast.Pragma{Name: name, Value: val.Literal, Sp: p.spanFrom(start)}
}

func (p *Parser) parseStructDecl() ast.Decl {
	start := p.cur.Span.Start
	p.expect(lexer.STRUCT)
	name := p.expectIdentName()
	packed := false
	if p.cur.Type == lexer.PACKED {
		packed = true
		p.advance()
	}
	fields := p.parseFieldList()
	return &ast.StructDecl{Name: name, Fields: fields, Packed: packed, Sp: p.spanFrom(start)}
}

func (p *Parser) parseFieldList() []ast.StructField {
	p.expect(lexer.LBRACE)
	p.skipSeparators()
	var fields []ast.StructField
	for p.cur.Type != lexer.RBRACE && p.cur.Type != lexer.EOF && p.err == nil {
		fstart := p.cur.Span.Start
		fname := p.expectIdentName()
		p.expect(lexer.COLON)
		ftype := p.parseType()
		fields = append(fields, ast.StructField{Name: fname, Type: ftype, Sp: p.spanFrom(fstart)})
		p.skipSeparators()
	}
	p.expect(lexer.RBRACE)
	return fields
}

func (p *Parser) parseTypeAlias() ast.Decl {
	start := p.cur.Span.Start
	p.expect(lexer.TYPE)
	name := p.expectIdentName()
	p.expect(lexer.ASSIGN)
	aliased := p.parseType()
	return &ast.TypeAlias{Name: name, Aliased: aliased, Sp: p.spanFrom(start)}
}

func (p *Parser) parseEnumDecl() ast.Decl {
	start := p.cur.Span.Start
	p.expect(lexer.ENUM)
	name := p.expectIdentName()
	p.expect(lexer.LBRACE)
	p.skipSeparators()
	var members []ast.EnumMember
	next := int64(0)
	for p.cur.Type != lexer.RBRACE && p.cur.Type != lexer.EOF && p.err == nil {
		mname := p.expectIdentName()
		var val *int64
		if p.cur.Type == lexer.ASSIGN {
			p.advance()
			v := p.parseIntLiteralValue()
			val = &v
			next = v
		} else {
			v := next
			val = &v
		}
		members = append(members, ast.EnumMember{Name: mname, Value: val})
		next++
		p.skipSeparators()
	}
	p.expect(lexer.RBRACE)
	return &ast.EnumDecl{Name: name, Members: members, Sp: p.spanFrom(start)}
}

func (p *Parser) parseConfigDecl() ast.Decl {
	start := p.cur.Span.Start
	p.expect(lexer.CONFIG)
	name := p.expectIdentName()
	p.expect(lexer.LBRACE)
	p.skipSeparators()
	var fields []ast.ConfigField
	for p.cur.Type != lexer.RBRACE && p.cur.Type != lexer.EOF && p.err == nil {
		fstart := p.cur.Span.Start
		fname := p.expectIdentName()
		p.expect(lexer.COLON)
		ftype := p.parseType()
		var def ast.Expr
		if p.cur.Type == lexer.ASSIGN {
			p.advance()
			def = p.parseExpr(0)
		}
		fields = append(fields, ast.ConfigField{Name: fname, Type: ftype, Default: def, Sp: p.spanFrom(fstart)})
		p.skipSeparators()
	}
	p.expect(lexer.RBRACE)
	return &ast.ConfigDecl{Name: name, Fields: fields, Sp: p.spanFrom(start)}
}

func (p *Parser) parseGlobalVarDecl(pinned bool) ast.Decl {
	start := p.cur.Span.Start
	p.expect(lexer.VAR)
	name := p.expectIdentName()
	var typ ast.Type
	if p.cur.Type == lexer.COLON {
		p.advance()
		typ = p.parseType()
	}
	var init ast.Expr
	if p.cur.Type == lexer.ASSIGN {
		p.advance()
		init = p.parseExpr(0)
	}
	// A Map-typed var becomes a MapDecl here; ast.NormalizeMaps still
	// promotes any Map-typed GlobalVarDecl built outside the parser.
	if mt, ok := typ.(*ast.MapType); ok {
		return &ast.MapDecl{Name: name, MapType: mt, Pinned: pinned, Global: true, Sp: p.spanFrom(start)}
	}
	return &ast.GlobalVarDecl{Name: name, Type: typ, Init: init, Pinned: pinned, Sp: p.spanFrom(start)}
}

func (p *Parser) parseFunctionDecl() ast.Decl {
	start := p.cur.Span.Start
	var attrs []ast.Attribute
	for p.cur.Type == lexer.AT {
		attrs = append(attrs, p.parseAttribute())
		p.skipNewlines()
	}
	p.expect(lexer.FN)
	name := p.expectIdentName()
	p.expect(lexer.LPAREN)
	params := p.parseParamList()
	p.expect(lexer.RPAREN)
	var ret ast.Type
	if p.cur.Type == lexer.ARROW {
		p.advance()
		ret = p.parseType()
	}
	body := p.parseBlock()
	return &ast.FunctionDecl{
		Name: name, Attributes: attrs, Params: params, ReturnType: ret, Body: body,
		Sp: p.spanFrom(start),
	}
}

func (p *Parser) parseAttribute() ast.Attribute {
	start := p.cur.Span.Start
	p.expect(lexer.AT)
	name := p.expectIdentName()
	var args []ast.Expr
	if p.cur.Type == lexer.LPAREN {
		p.advance()
		for p.cur.Type != lexer.RPAREN && p.cur.Type != lexer.EOF && p.err == nil {
			args = append(args, p.parseExpr(0))
			if p.cur.Type == lexer.COMMA {
				p.advance()
				p.skipNewlines()
			} else {
				break
			}
		}
		p.expect(lexer.RPAREN)
	}
	return ast.Attribute{Name: name, Args: args, Sp: p.spanFrom(start)}
}

func (p *Parser) parseParamList() []ast.Param {
	p.skipNewlines()
	var params []ast.Param
	for p.cur.Type != lexer.RPAREN && p.cur.Type != lexer.EOF && p.err == nil {
		pstart := p.cur.Span.Start
		pname := p.expectIdentName()
		p.expect(lexer.COLON)
		ptype := p.parseType()
		params = append(params, ast.Param{Name: pname, Type: ptype, Sp: p.spanFrom(pstart)})
		if p.cur.Type == lexer.COMMA {
			p.advance()
			p.skipNewlines()
		} else {
			break
		}
	}
	p.skipNewlines()
	return params
}

// ===== types =====

func (p *Parser) parseType() ast.Type {
	start := p.cur.Span.Start

	if p.cur.Type == lexer.STAR {
		p.advance()
		elem := p.parseType()
		return &ast.PointerType{Elem: elem, Sp: p.spanFrom(start)}
	}

	if p.cur.Type != lexer.IDENT {
		p.fail(p.cur.Span.Start, "expected a type, got %s %q", p.cur.Type, p.cur.Literal)
		return &ast.PrimitiveType{Name: "i32", Sp: p.spanFrom(start)}
	}

	name := p.cur.Literal

	if name == "str" {
		p.advance()
		p.expect(lexer.LPAREN)
		cap := p.parseIntLiteralValue()
		p.expect(lexer.RPAREN)
		return p.parseArraySuffix(&ast.StrType{Cap: cap, Sp: p.spanFrom(start)}, start)
	}

	if mapKinds[name] && p.peek.Type == lexer.LT {
		return p.parseMapType(name, start)
	}

	p.advance()
	var base ast.Type
	if primitiveNames[name] {
		base = &ast.PrimitiveType{Name: name, Sp: p.spanFrom(start)}
	} else {
		base = &ast.NamedType{Name: name, Sp: p.spanFrom(start)}
	}
	return p.parseArraySuffix(base, start)
}

func (p *Parser) parseArraySuffix(base ast.Type, start position.Position) ast.Type {
	for p.cur.Type == lexer.LBRACKET {
		p.advance()
		size := p.parseIntLiteralValue()
		p.expect(lexer.RBRACKET)
		base = &ast.ArrayType{Elem: base, Size: size, Sp: p.spanFrom(start)}
	}
	return base
}

func (p *Parser) parseMapType(kind string, start position.Position) ast.Type {
	p.advance() // kind identifier
	p.expect(lexer.LT)
	key := p.parseType()
	p.expect(lexer.COMMA)
	val := p.parseType()
	p.expect(lexer.GT)
	p.expect(lexer.LPAREN)
	maxEntries := p.parseIntLiteralValue()

	mt := &ast.MapType{Kind: kind, Key: key, Value: val, MaxEntries: maxEntries, Flags: map[string]ast.Expr{}}
	for p.cur.Type == lexer.COMMA {
		p.advance()
		p.skipNewlines()
		if p.cur.Type == lexer.RPAREN {
			break
		}
		argName := p.expectIdentName()
		p.expect(lexer.ASSIGN)
		val := p.parseIntLiteralValue()
		switch argName {
		case "key_size":
			mt.KeySize = &val
		case "value_size":
			mt.ValueSize = &val
		default:
			mt.Flags[argName] = &ast.IntLiteral{Value: val, Raw: fmt.Sprintf("%d", val)}
		}
	}
	p.expect(lexer.RPAREN)
	mt.Sp = p.spanFrom(start)
	return mt
}

// ===== statements =====

func (p *Parser) parseBlock() *ast.BlockStmt {
	start := p.cur.Span.Start
	p.expect(lexer.LBRACE)
	p.skipNewlines()
	var stmts []ast.Stmt
	for p.cur.Type != lexer.RBRACE && p.cur.Type != lexer.EOF && p.err == nil {
		stmts = append(stmts, p.parseStmt())
		p.skipNewlines()
	}
	p.expect(lexer.RBRACE)
	return &ast.BlockStmt{Stmts: stmts, Sp: p.spanFrom(start)}
}

func (p *Parser) parseStmt() ast.Stmt {
	switch p.cur.Type {
	case lexer.VAR:
		return p.parseLocalVarDecl()
	case lexer.IF:
		return p.parseIf()
	case lexer.FOR:
		return p.parseFor()
	case lexer.RETURN:
		return p.parseReturn()
	case lexer.BREAK:
		start := p.cur.Span.Start
		p.advance()
		return &ast.BreakStmt{Sp: p.spanFrom(start)}
	case lexer.CONTINUE:
		start := p.cur.Span.Start
		p.advance()
		return &ast.ContinueStmt{Sp: p.spanFrom(start)}
	case lexer.DELETE:
		return p.parseDelete()
	case lexer.LBRACE:
		return p.parseBlock()
	default:
		return p.parseSimpleStmt()
	}
}

func (p *Parser) parseLocalVarDecl() ast.Stmt {
	start := p.cur.Span.Start
	p.expect(lexer.VAR)
	name := p.expectIdentName()
	var typ ast.Type
	if p.cur.Type == lexer.COLON {
		p.advance()
		typ = p.parseType()
	}
	var init ast.Expr
	if p.cur.Type == lexer.ASSIGN {
		p.advance()
		init = p.parseExpr(0)
	}
	return &ast.LocalVarDecl{Name: name, Type: typ, Init: init, Sp: p.spanFrom(start)}
}

func (p *Parser) parseIf() ast.Stmt {
	start := p.cur.Span.Start
	p.expect(lexer.IF)
	cond := p.parseExpr(0)
	then := p.parseBlock()
	var elseStmt ast.Stmt
	if p.cur.Type == lexer.ELSE {
		p.advance()
		if p.cur.Type == lexer.IF {
			elseStmt = p.parseIf()
		} else {
			elseStmt = p.parseBlock()
		}
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: elseStmt, Sp: p.spanFrom(start)}
}

func (p *Parser) parseFor() ast.Stmt {
	start := p.cur.Span.Start
	p.expect(lexer.FOR)
	varName := p.expectIdentName()
	p.expect(lexer.IN)
	first := p.parseExpr(0)
	if p.cur.Type == lexer.DOTDOT {
		p.advance()
		end := p.parseExpr(0)
		body := p.parseBlock()
		return &ast.ForStmt{Var: varName, Start: first, End: end, Body: body, Sp: p.spanFrom(start)}
	}
	body := p.parseBlock()
	return &ast.ForStmt{Var: varName, Iter: first, Body: body, Sp: p.spanFrom(start)}
}

func (p *Parser) parseReturn() ast.Stmt {
	start := p.cur.Span.Start
	p.expect(lexer.RETURN)
	if p.cur.Type == lexer.NEWLINE || p.cur.Type == lexer.RBRACE || p.cur.Type == lexer.EOF {
		return &ast.ReturnStmt{Sp: p.spanFrom(start)}
	}
	val := p.parseExpr(0)
	return &ast.ReturnStmt{Value: val, Sp: p.spanFrom(start)}
}

func (p *Parser) parseDelete() ast.Stmt {
	start := p.cur.Span.Start
	p.expect(lexer.DELETE)
	target := p.parseExpr(0)
	idx, ok := target.(*ast.IndexExpr)
	if !ok {
		p.fail(start, "delete requires a map index expression, e.g. delete m[k]")
		return &ast.DeleteStmt{Sp: p.spanFrom(start)}
	}
	return &ast.DeleteStmt{Target: idx, Sp: p.spanFrom(start)}
}

var assignOps = map[lexer.TokenType]string{
	lexer.ASSIGN: "=", lexer.PLUSEQ: "+=", lexer.MINUSEQ: "-=", lexer.STAREQ: "*=",
	lexer.SLASHEQ: "/=", lexer.PERCENTEQ: "%=", lexer.AMPEQ: "&=", lexer.PIPEEQ: "|=",
	lexer.CARETEQ: "^=", lexer.SHLEQ: "<<=", lexer.SHREQ: ">>=",
}

func (p *Parser) parseSimpleStmt() ast.Stmt {
	start := p.cur.Span.Start
	expr := p.parseExpr(0)
	if op, ok := assignOps[p.cur.Type]; ok {
		p.advance()
		rhs := p.parseExpr(0)
		return &ast.AssignStmt{Target: expr, Op: op, Value: rhs, Sp: p.spanFrom(start)}
	}
	return &ast.ExprStmt{X: expr, Sp: p.spanFrom(start)}
}

// ===== expressions (Pratt) =====

var infixPrec = map[lexer.TokenType]int{
	lexer.OROR: 1, lexer.ANDAND: 2,
	lexer.PIPE: 3, lexer.CARET: 4, lexer.AMP: 5,
	lexer.EQ: 6, lexer.NE: 6,
	lexer.LT: 7, lexer.LE: 7, lexer.GT: 7, lexer.GE: 7,
	lexer.SHL: 8, lexer.SHR: 8,
	lexer.PLUS: 9, lexer.MINUS: 9,
	lexer.STAR: 10, lexer.SLASH: 10, lexer.PERCENT: 10,
}

func (p *Parser) parseExpr(minPrec int) ast.Expr {
	left := p.parseUnary()
	for p.err == nil {
		prec, ok := infixPrec[p.cur.Type]
		if !ok || prec <= minPrec {
			break
		}
		op := p.cur.Literal
		start := left.Span().Start
		p.advance()
		right := p.parseExpr(prec)
		left = &ast.BinaryExpr{Op: op, L: left, R: right, Sp: p.spanFrom(start)}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	start := p.cur.Span.Start
	switch p.cur.Type {
	case lexer.MINUS, lexer.BANG, lexer.TILDE, lexer.STAR, lexer.AMP:
		op := p.cur.Literal
		p.advance()
		x := p.parseUnary()
		return &ast.UnaryExpr{Op: op, X: x, Sp: p.spanFrom(start)}
	default:
		return p.parsePostfix(p.parsePrimary())
	}
}

func (p *Parser) parsePostfix(x ast.Expr) ast.Expr {
	for p.err == nil {
		start := x.Span().Start
		switch p.cur.Type {
		case lexer.LPAREN:
			p.advance()
			var args []ast.Expr
			for p.cur.Type != lexer.RPAREN && p.cur.Type != lexer.EOF && p.err == nil {
				args = append(args, p.parseExpr(0))
				if p.cur.Type == lexer.COMMA {
					p.advance()
					p.skipNewlines()
				} else {
					break
				}
			}
			p.expect(lexer.RPAREN)
			x = &ast.CallExpr{Callee: x, Args: args, Sp: p.spanFrom(start)}
		case lexer.LBRACKET:
			p.advance()
			key := p.parseExpr(0)
			p.expect(lexer.RBRACKET)
			x = &ast.IndexExpr{Map: x, Key: key, Sp: p.spanFrom(start)}
		case lexer.DOT:
			p.advance()
			name := p.expectIdentName()
			x = &ast.FieldExpr{X: x, Field: name, Sp: p.spanFrom(start)}
		case lexer.ARROW:
			p.advance()
			name := p.expectIdentName()
			x = &ast.ArrowExpr{X: x, Field: name, Sp: p.spanFrom(start)}
		default:
			return x
		}
	}
	return x
}

func (p *Parser) parsePrimary() ast.Expr {
	start := p.cur.Span.Start
	switch p.cur.Type {
	case lexer.IDENT:
		name := p.cur.Literal
		p.advance()
		return &ast.Identifier{Name: name, Sp: p.spanFrom(start)}
	case lexer.INT:
		lit := p.cur.Literal
		p.advance()
		val, width := splitIntLiteral(lit)
		return &ast.IntLiteral{Value: val, Width: width, Raw: lit, Sp: p.spanFrom(start)}
	case lexer.STRING:
		val := p.cur.Literal
		p.advance()
		return &ast.StringLiteral{Value: val, Sp: p.spanFrom(start)}
	case lexer.TRUE:
		p.advance()
		return &ast.BoolLiteral{Value: true, Sp: p.spanFrom(start)}
	case lexer.FALSE:
		p.advance()
		return &ast.BoolLiteral{Value: false, Sp: p.spanFrom(start)}
	case lexer.NONE:
		p.advance()
		return &ast.NoneLiteral{Sp: p.spanFrom(start)}
	case lexer.LPAREN:
		p.advance()
		e := p.parseExpr(0)
		p.expect(lexer.RPAREN)
		return e
	default:
		p.fail(start, "unexpected token %s %q in expression", p.cur.Type, p.cur.Literal)
		return &ast.Identifier{Name: "<error>", Sp: p.spanFrom(start)}
	}
}

// ===== literal helpers =====

func splitIntLiteral(lit string) (int64, string) {
	i := 0
	for i < len(lit) && lit[i] >= '0' && lit[i] <= '9' {
		i++
	}
	digits, suffix := lit[:i], lit[i:]
	v, _ := strconv.ParseInt(digits, 10, 64)
	return v, suffix
}

func (p *Parser) parseIntLiteralValue() int64 {
	if p.cur.Type != lexer.INT {
		p.fail(p.cur.Span.Start, "expected an integer literal, got %s %q", p.cur.Type, p.cur.Literal)
		return 0
	}
	lit := p.cur.Literal
	p.advance()
	v, _ := splitIntLiteral(lit)
	return v
}

func (p *Parser) spanFrom(start position.Position) position.Span {
	return position.Span{Start: start, End: p.cur.Span.Start}
}
