package pratt

import (
	"fmt"
	"strconv"

	"github.com/chazu/corvid/compiler"
)

// precPostfix binds calls, field access and indexing tighter than any
// prefix operator.
const precPostfix = compiler.PrecUnary + 1

type (
	prefixFn  func() compiler.Expr
	infixRule struct {
		prec  int
		parse func(left compiler.Expr) compiler.Expr
	}
)

// failure aborts the parse at the first error.
type failure struct {
	err error
}

// Parser is a Pratt parser for Corvid source. Unlike the recursive-descent
// front end it stops at the first error.
type Parser struct {
	tz      *tokenizer
	tok     compiler.Token
	peek    compiler.Token
	prevEnd compiler.Position

	prefix map[compiler.TokenType]prefixFn
	infix  map[compiler.TokenType]infixRule
	decls  map[compiler.TokenType]func() compiler.Decl
}

// Parse parses a complete source file.
func Parse(src string) (file *compiler.File, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(failure)
			if !ok {
				panic(r)
			}
			file, err = nil, f.err
		}
	}()
	p := newParser(src)
	return p.file(), nil
}

func newParser(src string) *Parser {
	p := &Parser{tz: newTokenizer(src)}
	p.prefix = map[compiler.TokenType]prefixFn{
		compiler.TokenInteger:    p.intLit,
		compiler.TokenFloat:      p.floatLit,
		compiler.TokenString:     p.stringLit,
		compiler.TokenTrue:       p.boolLit,
		compiler.TokenFalse:      p.boolLit,
		compiler.TokenNull:       p.nullLit,
		compiler.TokenIdentifier: p.ident,
		compiler.TokenLParen:     p.group,
		compiler.TokenLBracket:   p.list,
		compiler.TokenHashLBrace: p.set,
		compiler.TokenLBrace:     p.mapLit,
		compiler.TokenNew:        p.record,
		compiler.TokenFn:         p.funcLit,
		compiler.TokenMatch:      p.match,
		compiler.TokenHandle:     p.handle,
		compiler.TokenPerform:    p.perform,
		compiler.TokenResume:     p.resume,
		compiler.TokenCall:       p.toolCall,
		compiler.TokenMinus:      p.unary,
		compiler.TokenBang:       p.unary,
		compiler.TokenTilde:      p.unary,
		compiler.TokenAwait:      p.await,
		compiler.TokenSpawn:      p.spawn,
		compiler.TokenTrace:      p.trace,
	}
	p.infix = map[compiler.TokenType]infixRule{
		compiler.TokenLParen:   {precPostfix, p.callExpr},
		compiler.TokenDot:      {precPostfix, p.fieldExpr},
		compiler.TokenLBracket: {precPostfix, p.indexExpr},
	}
	for _, tt := range []compiler.TokenType{
		compiler.TokenOrOr, compiler.TokenAndAnd, compiler.TokenEq, compiler.TokenNe,
		compiler.TokenLt, compiler.TokenLe, compiler.TokenGt, compiler.TokenGe, compiler.TokenIn,
		compiler.TokenPipe, compiler.TokenCaret, compiler.TokenAmp, compiler.TokenShl, compiler.TokenShr,
		compiler.TokenPlus, compiler.TokenMinus, compiler.TokenConcat, compiler.TokenStar,
		compiler.TokenSlash, compiler.TokenPercent, compiler.TokenStarStar,
	} {
		p.infix[tt] = infixRule{compiler.BinaryPrecedence(tt.String()), p.binary}
	}
	p.decls = map[compiler.TokenType]func() compiler.Decl{
		compiler.TokenFn:         p.funcDecl,
		compiler.TokenConst:      p.constDecl,
		compiler.TokenTypeKw:     p.typeDecl,
		compiler.TokenEnum:       p.enumDecl,
		compiler.TokenAlias:      p.aliasDecl,
		compiler.TokenEffect:     p.effectDecl,
		compiler.TokenTool:       p.toolDecl,
		compiler.TokenPolicy:     p.policyDecl,
		compiler.TokenPipelineKw: p.pipelineDecl,
	}
	p.advance()
	p.advance()
	return p
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) advance() compiler.Token {
	prev := p.tok
	p.prevEnd = prev.Pos
	p.tok = p.peek
	next, err := p.tz.next()
	if err != nil {
		panic(failure{compiler.ErrorList{err.(*compiler.Diagnostic)}})
	}
	p.peek = next
	return prev
}

func (p *Parser) fail(format string, args ...interface{}) {
	panic(failure{compiler.ErrorList{&compiler.Diagnostic{
		Phase:   compiler.PhaseSyntax,
		Kind:    compiler.KindUnexpectedToken,
		Pos:     p.tok.Pos,
		Message: fmt.Sprintf(format, args...),
	}}})
}

func (p *Parser) at(tt compiler.TokenType) bool {
	return p.tok.Type == tt
}

// accept consumes the current token when it has type tt.
func (p *Parser) accept(tt compiler.TokenType) bool {
	if p.at(tt) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) eat(tt compiler.TokenType) compiler.Token {
	if !p.at(tt) {
		p.fail("expected %s, got %s", tt, p.tok)
	}
	return p.advance()
}

func (p *Parser) name() string {
	return p.eat(compiler.TokenIdentifier).Literal
}

func (p *Parser) span(start compiler.Position) compiler.Span {
	return compiler.Span{Start: start, End: p.prevEnd}
}

// commaList parses items separated by commas until end, allowing a trailing
// comma. The end token is not consumed.
func (p *Parser) commaList(end compiler.TokenType, item func()) {
	for !p.at(end) && !p.at(compiler.TokenEOF) {
		item()
		if !p.accept(compiler.TokenComma) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (p *Parser) file() *compiler.File {
	f := &compiler.File{}
	for !p.at(compiler.TokenEOF) {
		if p.accept(compiler.TokenProfile) {
			switch name := p.name(); name {
			case "deterministic":
				f.Deterministic = true
			case "standard":
			default:
				p.fail("unknown profile %q", name)
			}
			p.eat(compiler.TokenSemicolon)
			continue
		}
		decl, ok := p.decls[p.tok.Type]
		if !ok {
			p.fail("expected declaration, got %s", p.tok)
		}
		f.Decls = append(f.Decls, decl())
	}
	return f
}

func (p *Parser) params() []*compiler.Param {
	var params []*compiler.Param
	p.eat(compiler.TokenLParen)
	p.commaList(compiler.TokenRParen, func() {
		prm := &compiler.Param{Pos: p.tok.Pos, Name: p.name()}
		if p.accept(compiler.TokenColon) {
			prm.Type = p.name()
		}
		prm.Variadic = p.accept(compiler.TokenEllipsis)
		params = append(params, prm)
	})
	p.eat(compiler.TokenRParen)
	return params
}

// returnType parses an optional -> T.
func (p *Parser) returnType() string {
	if p.accept(compiler.TokenArrow) {
		return p.name()
	}
	return ""
}

func (p *Parser) funcDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.FuncDecl{Name: p.name()}
	d.Params = p.params()
	d.Return = p.returnType()
	d.Body = p.block()
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) constDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.ConstDecl{Name: p.name()}
	if p.accept(compiler.TokenColon) {
		d.Type = p.name()
	}
	p.eat(compiler.TokenAssign)
	d.Value = p.expr(compiler.PrecLowest)
	p.eat(compiler.TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) typeDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.TypeDecl{Name: p.name()}
	p.eat(compiler.TokenLBrace)
	p.commaList(compiler.TokenRBrace, func() {
		f := &compiler.FieldDecl{Pos: p.tok.Pos, Name: p.name()}
		p.eat(compiler.TokenColon)
		f.Type = p.name()
		d.Fields = append(d.Fields, f)
	})
	p.eat(compiler.TokenRBrace)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) enumDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.EnumDecl{Name: p.name()}
	p.eat(compiler.TokenLBrace)
	p.commaList(compiler.TokenRBrace, func() {
		c := &compiler.CaseDecl{Pos: p.tok.Pos, Name: p.name()}
		if p.accept(compiler.TokenLParen) {
			p.commaList(compiler.TokenRParen, func() {
				c.Payload = append(c.Payload, p.name())
			})
			p.eat(compiler.TokenRParen)
		}
		d.Cases = append(d.Cases, c)
	})
	p.eat(compiler.TokenRBrace)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) aliasDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.AliasDecl{Name: p.name()}
	p.eat(compiler.TokenAssign)
	d.Target = p.name()
	p.eat(compiler.TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) effectDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.EffectDecl{Name: p.name()}
	p.eat(compiler.TokenLBrace)
	for p.at(compiler.TokenIdentifier) {
		op := &compiler.OpDecl{Pos: p.tok.Pos, Name: p.name()}
		op.Params = p.params()
		op.Return = p.returnType()
		p.eat(compiler.TokenSemicolon)
		d.Ops = append(d.Ops, op)
	}
	p.eat(compiler.TokenRBrace)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) toolDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.ToolDecl{Alias: p.name()}
	p.eat(compiler.TokenAssign)
	d.Capability, d.Version = compiler.SplitCapability(p.eat(compiler.TokenString).Literal)
	for {
		if p.accept(compiler.TokenSchema) {
			d.Schema = p.eat(compiler.TokenString).Literal
		} else if p.accept(compiler.TokenTimeout) {
			lit := p.eat(compiler.TokenInteger).Literal
			n, err := strconv.ParseUint(lit, 10, 32)
			if err != nil {
				p.fail("timeout %s out of range", lit)
			}
			d.Timeout = int64(n)
		} else {
			break
		}
	}
	p.eat(compiler.TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) policyDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.PolicyDecl{Name: p.name()}
	p.eat(compiler.TokenAssign)
	p.eat(compiler.TokenLBracket)
	p.commaList(compiler.TokenRBracket, func() {
		d.Grants = append(d.Grants, p.name())
	})
	p.eat(compiler.TokenRBracket)
	p.eat(compiler.TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) pipelineDecl() compiler.Decl {
	start := p.advance().Pos
	d := &compiler.PipelineDecl{Name: p.name()}
	p.eat(compiler.TokenAssign)
	d.Stages = []string{p.name()}
	for p.accept(compiler.TokenPipeline) {
		d.Stages = append(d.Stages, p.name())
	}
	p.eat(compiler.TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) block() *compiler.Block {
	start := p.eat(compiler.TokenLBrace).Pos
	b := &compiler.Block{}
	for !p.at(compiler.TokenRBrace) {
		if p.at(compiler.TokenEOF) {
			p.fail("unterminated block")
		}
		stmt, tail := p.stmt()
		if tail != nil {
			b.Tail = tail
			break
		}
		b.Stmts = append(b.Stmts, stmt)
	}
	p.eat(compiler.TokenRBrace)
	b.SpanVal = p.span(start)
	return b
}

// stmt parses a statement, or returns a trailing expression that directly
// precedes the closing brace of its block.
func (p *Parser) stmt() (compiler.Stmt, compiler.Expr) {
	start := p.tok.Pos
	switch p.tok.Type {
	case compiler.TokenLet:
		p.advance()
		s := &compiler.LetStmt{Name: p.name()}
		if p.accept(compiler.TokenColon) {
			s.Type = p.name()
		}
		p.eat(compiler.TokenAssign)
		s.Value = p.expr(compiler.PrecLowest)
		p.eat(compiler.TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	case compiler.TokenIf:
		return p.ifStmt(), nil
	case compiler.TokenWhile, compiler.TokenFor:
		return p.loop(""), nil
	case compiler.TokenBreak, compiler.TokenContinue:
		kw := p.advance().Type
		label := ""
		if p.at(compiler.TokenIdentifier) {
			label = p.name()
		}
		p.eat(compiler.TokenSemicolon)
		if kw == compiler.TokenBreak {
			return &compiler.BreakStmt{SpanVal: p.span(start), Label: label}, nil
		}
		return &compiler.ContinueStmt{SpanVal: p.span(start), Label: label}, nil
	case compiler.TokenReturn:
		p.advance()
		s := &compiler.ReturnStmt{}
		if !p.at(compiler.TokenSemicolon) {
			s.Value = p.expr(compiler.PrecLowest)
		}
		p.eat(compiler.TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	case compiler.TokenCancel:
		p.advance()
		s := &compiler.CancelStmt{Future: p.expr(compiler.PrecLowest)}
		p.eat(compiler.TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	case compiler.TokenIdentifier:
		if p.peek.Type == compiler.TokenColon {
			label := p.name()
			p.advance()
			if !p.at(compiler.TokenWhile) && !p.at(compiler.TokenFor) {
				p.fail("label %q must precede a loop", label)
			}
			return p.loop(label), nil
		}
	}

	x := p.expr(compiler.PrecLowest)
	if p.accept(compiler.TokenAssign) {
		switch x.(type) {
		case *compiler.Ident, *compiler.FieldExpr, *compiler.IndexExpr:
		default:
			p.fail("invalid assignment target")
		}
		s := &compiler.AssignStmt{Target: x, Value: p.expr(compiler.PrecLowest)}
		p.eat(compiler.TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	}
	if p.at(compiler.TokenRBrace) {
		return nil, x
	}
	switch x.(type) {
	case *compiler.MatchExpr, *compiler.HandleExpr:
		p.accept(compiler.TokenSemicolon)
	default:
		p.eat(compiler.TokenSemicolon)
	}
	return &compiler.ExprStmt{SpanVal: p.span(start), Expr: x}, nil
}

func (p *Parser) ifStmt() *compiler.IfStmt {
	start := p.eat(compiler.TokenIf).Pos
	s := &compiler.IfStmt{Cond: p.expr(compiler.PrecLowest)}
	s.Then = p.block()
	if p.accept(compiler.TokenElse) {
		if p.at(compiler.TokenIf) {
			s.Else = p.ifStmt()
		} else {
			s.Else = p.block()
		}
	}
	s.SpanVal = p.span(start)
	return s
}

func (p *Parser) loop(label string) compiler.Stmt {
	start := p.tok.Pos
	if p.accept(compiler.TokenWhile) {
		s := &compiler.WhileStmt{Label: label, Cond: p.expr(compiler.PrecLowest)}
		s.Body = p.block()
		s.SpanVal = p.span(start)
		return s
	}
	p.eat(compiler.TokenFor)
	s := &compiler.ForStmt{Label: label, Var: p.name()}
	p.eat(compiler.TokenIn)
	s.Iter = p.expr(compiler.PrecLowest)
	s.Body = p.block()
	s.SpanVal = p.span(start)
	return s
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// expr parses an expression whose infix operators bind tighter than prec.
func (p *Parser) expr(prec int) compiler.Expr {
	prefix, ok := p.prefix[p.tok.Type]
	if !ok {
		p.fail("unexpected %s in expression", p.tok)
	}
	left := prefix()
	for {
		rule, ok := p.infix[p.tok.Type]
		if !ok || rule.prec <= prec {
			return left
		}
		left = rule.parse(left)
	}
}

func (p *Parser) binary(left compiler.Expr) compiler.Expr {
	op := p.advance().Literal
	prec := compiler.BinaryPrecedence(op)
	if op == "**" {
		prec--
	}
	right := p.expr(prec)
	return &compiler.BinaryExpr{SpanVal: p.span(left.Span().Start), Op: op, Left: left, Right: right}
}

func (p *Parser) args() []compiler.Expr {
	var args []compiler.Expr
	p.eat(compiler.TokenLParen)
	p.commaList(compiler.TokenRParen, func() {
		args = append(args, p.expr(compiler.PrecLowest))
	})
	p.eat(compiler.TokenRParen)
	return args
}

func (p *Parser) callExpr(callee compiler.Expr) compiler.Expr {
	args := p.args()
	return &compiler.CallExpr{SpanVal: p.span(callee.Span().Start), Callee: callee, Args: args}
}

func (p *Parser) fieldExpr(x compiler.Expr) compiler.Expr {
	p.eat(compiler.TokenDot)
	name := p.name()
	return &compiler.FieldExpr{SpanVal: p.span(x.Span().Start), X: x, Name: name}
}

func (p *Parser) indexExpr(x compiler.Expr) compiler.Expr {
	p.eat(compiler.TokenLBracket)
	var lo compiler.Expr
	if !p.at(compiler.TokenColon) {
		lo = p.expr(compiler.PrecLowest)
	}
	if !p.accept(compiler.TokenColon) {
		p.eat(compiler.TokenRBracket)
		return &compiler.IndexExpr{SpanVal: p.span(x.Span().Start), X: x, Index: lo}
	}
	var hi compiler.Expr
	if !p.at(compiler.TokenRBracket) {
		hi = p.expr(compiler.PrecLowest)
	}
	p.eat(compiler.TokenRBracket)
	return &compiler.SliceExpr{SpanVal: p.span(x.Span().Start), X: x, Lo: lo, Hi: hi}
}

func (p *Parser) intLit() compiler.Expr {
	tok := p.advance()
	return compiler.NewIntLiteral(p.span(tok.Pos), tok.Literal)
}

func (p *Parser) floatLit() compiler.Expr {
	tok := p.advance()
	v, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		p.fail("invalid float %s", tok.Literal)
	}
	return &compiler.FloatLiteral{SpanVal: p.span(tok.Pos), Value: v}
}

func (p *Parser) stringLit() compiler.Expr {
	tok := p.advance()
	return &compiler.StringLiteral{SpanVal: p.span(tok.Pos), Value: tok.Literal}
}

func (p *Parser) boolLit() compiler.Expr {
	tok := p.advance()
	return &compiler.BoolLiteral{SpanVal: p.span(tok.Pos), Value: tok.Type == compiler.TokenTrue}
}

func (p *Parser) nullLit() compiler.Expr {
	tok := p.advance()
	return &compiler.NullLiteral{SpanVal: p.span(tok.Pos)}
}

func (p *Parser) ident() compiler.Expr {
	tok := p.advance()
	return &compiler.Ident{SpanVal: p.span(tok.Pos), Name: tok.Literal}
}

// group parses (), (e), (e,) and (a, b, ...).
func (p *Parser) group() compiler.Expr {
	start := p.advance().Pos
	if p.accept(compiler.TokenRParen) {
		return &compiler.TupleLit{SpanVal: p.span(start)}
	}
	first := p.expr(compiler.PrecLowest)
	if p.accept(compiler.TokenRParen) {
		return first
	}
	elems := []compiler.Expr{first}
	for p.accept(compiler.TokenComma) {
		if p.at(compiler.TokenRParen) {
			break
		}
		elems = append(elems, p.expr(compiler.PrecLowest))
	}
	p.eat(compiler.TokenRParen)
	return &compiler.TupleLit{SpanVal: p.span(start), Elems: elems}
}

func (p *Parser) elems(end compiler.TokenType) []compiler.Expr {
	var xs []compiler.Expr
	p.commaList(end, func() {
		xs = append(xs, p.expr(compiler.PrecLowest))
	})
	p.eat(end)
	return xs
}

func (p *Parser) list() compiler.Expr {
	start := p.advance().Pos
	elems := p.elems(compiler.TokenRBracket)
	return &compiler.ListLit{SpanVal: p.span(start), Elems: elems}
}

func (p *Parser) set() compiler.Expr {
	start := p.advance().Pos
	elems := p.elems(compiler.TokenRBrace)
	return &compiler.SetLit{SpanVal: p.span(start), Elems: elems}
}

func (p *Parser) mapLit() compiler.Expr {
	start := p.advance().Pos
	m := &compiler.MapLit{}
	p.commaList(compiler.TokenRBrace, func() {
		m.Keys = append(m.Keys, p.expr(compiler.PrecLowest))
		p.eat(compiler.TokenColon)
		m.Values = append(m.Values, p.expr(compiler.PrecLowest))
	})
	p.eat(compiler.TokenRBrace)
	m.SpanVal = p.span(start)
	return m
}

func (p *Parser) record() compiler.Expr {
	start := p.advance().Pos
	r := &compiler.RecordLit{Type: p.name()}
	p.eat(compiler.TokenLBrace)
	p.commaList(compiler.TokenRBrace, func() {
		fi := &compiler.FieldInit{Pos: p.tok.Pos, Name: p.name()}
		p.eat(compiler.TokenColon)
		fi.Value = p.expr(compiler.PrecLowest)
		r.Fields = append(r.Fields, fi)
	})
	p.eat(compiler.TokenRBrace)
	r.SpanVal = p.span(start)
	return r
}

func (p *Parser) funcLit() compiler.Expr {
	start := p.advance().Pos
	f := &compiler.FuncLit{Params: p.params()}
	f.Return = p.returnType()
	f.Body = p.block()
	f.SpanVal = p.span(start)
	return f
}

func (p *Parser) match() compiler.Expr {
	start := p.advance().Pos
	m := &compiler.MatchExpr{Subject: p.expr(compiler.PrecLowest)}
	p.eat(compiler.TokenLBrace)
	for !p.at(compiler.TokenRBrace) && !p.at(compiler.TokenEOF) {
		arm := &compiler.MatchArm{Pos: p.tok.Pos}
		if name := p.name(); name == "_" {
			arm.Wildcard = true
		} else {
			arm.Enum = name
			p.eat(compiler.TokenDot)
			arm.Case = p.name()
			if p.accept(compiler.TokenLParen) {
				p.commaList(compiler.TokenRParen, func() {
					arm.Binds = append(arm.Binds, p.name())
				})
				p.eat(compiler.TokenRParen)
			}
		}
		p.eat(compiler.TokenFatArrow)
		arm.Body = p.block()
		m.Arms = append(m.Arms, arm)
		p.accept(compiler.TokenComma)
	}
	p.eat(compiler.TokenRBrace)
	m.SpanVal = p.span(start)
	return m
}

func (p *Parser) handle() compiler.Expr {
	start := p.advance().Pos
	h := &compiler.HandleExpr{Body: p.block()}
	p.eat(compiler.TokenWith)
	h.Effect = p.name()
	p.eat(compiler.TokenLBrace)
	for p.at(compiler.TokenIdentifier) {
		c := &compiler.HandlerClause{Pos: p.tok.Pos, Op: p.name()}
		p.eat(compiler.TokenLParen)
		p.commaList(compiler.TokenRParen, func() {
			c.Params = append(c.Params, p.name())
		})
		p.eat(compiler.TokenRParen)
		c.Body = p.block()
		h.Clauses = append(h.Clauses, c)
	}
	p.eat(compiler.TokenRBrace)
	h.SpanVal = p.span(start)
	return h
}

func (p *Parser) perform() compiler.Expr {
	start := p.advance().Pos
	e := &compiler.PerformExpr{Effect: p.name()}
	p.eat(compiler.TokenDot)
	e.Op = p.name()
	e.Args = p.args()
	e.SpanVal = p.span(start)
	return e
}

func (p *Parser) resume() compiler.Expr {
	start := p.advance().Pos
	k := p.eat(compiler.TokenIdentifier)
	e := &compiler.ResumeExpr{Cont: &compiler.Ident{
		SpanVal: compiler.Span{Start: k.Pos, End: k.Pos},
		Name:    k.Literal,
	}}
	if p.accept(compiler.TokenLParen) {
		if !p.at(compiler.TokenRParen) {
			e.Value = p.expr(compiler.PrecLowest)
		}
		p.eat(compiler.TokenRParen)
	}
	e.SpanVal = p.span(start)
	return e
}

func (p *Parser) toolCall() compiler.Expr {
	start := p.advance().Pos
	e := &compiler.ToolCallExpr{Tool: p.name()}
	p.eat(compiler.TokenLParen)
	e.Request = p.expr(compiler.PrecLowest)
	if p.accept(compiler.TokenComma) {
		e.Timeout = p.expr(compiler.PrecLowest)
	}
	p.eat(compiler.TokenRParen)
	e.SpanVal = p.span(start)
	return e
}

func (p *Parser) unary() compiler.Expr {
	tok := p.advance()
	x := p.expr(compiler.PrecUnary)
	return &compiler.UnaryExpr{SpanVal: p.span(tok.Pos), Op: tok.Literal, X: x}
}

func (p *Parser) await() compiler.Expr {
	start := p.advance().Pos
	x := p.expr(compiler.PrecUnary)
	return &compiler.AwaitExpr{SpanVal: p.span(start), X: x}
}

func (p *Parser) spawn() compiler.Expr {
	start := p.advance().Pos
	call, ok := p.expr(compiler.PrecUnary).(*compiler.CallExpr)
	if !ok {
		p.fail("spawn requires a call")
	}
	return &compiler.SpawnExpr{SpanVal: p.span(start), Call: call}
}

func (p *Parser) trace() compiler.Expr {
	start := p.advance().Pos
	label := p.eat(compiler.TokenString).Literal
	x := p.expr(compiler.PrecUnary)
	return &compiler.TraceExpr{SpanVal: p.span(start), Label: label, Value: x}
}
