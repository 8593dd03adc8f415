package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for Corvid source
// ---------------------------------------------------------------------------

// Parser parses Corvid source code into an AST. Binary operators are parsed
// by precedence climbing over BinaryPrecedence.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position
	errors    ErrorList
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete source file.
func Parse(input string) (*File, error) {
	p := NewParser(input)
	f := p.ParseFile()
	if err := p.errors.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// nextToken advances to the next token. Lexical errors are recorded and
// skipped.
func (p *Parser) nextToken() {
	p.prevEnd = p.curToken.Pos
	p.curToken = p.peekToken
	for {
		p.peekToken = p.lexer.NextToken()
		if p.peekToken.Type != TokenError {
			return
		}
		p.errors = append(p.errors, &Diagnostic{
			Phase:   PhaseLexical,
			Kind:    lexicalKind(p.peekToken.Literal),
			Pos:     p.peekToken.Pos,
			Message: p.peekToken.Literal,
		})
	}
}

func lexicalKind(msg string) Kind {
	switch {
	case msg == "unterminated string":
		return KindUnterminatedString
	case len(msg) >= 9 && msg[:9] == "malformed":
		return KindInvalidNumber
	}
	return KindInvalidToken
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken)
	return false
}

// expectIdent consumes an identifier and returns its name.
func (p *Parser) expectIdent() string {
	if p.curTokenIs(TokenIdentifier) {
		name := p.curToken.Literal
		p.nextToken()
		return name
	}
	p.errorf("expected identifier, got %s", p.curToken)
	return ""
}

// errorf records a syntax error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, &Diagnostic{
		Phase:   PhaseSyntax,
		Kind:    KindUnexpectedToken,
		Pos:     p.curToken.Pos,
		Message: fmt.Sprintf(format, args...),
	})
}

// Errors returns accumulated diagnostics.
func (p *Parser) Errors() ErrorList {
	return p.errors
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevEnd}
}

// synchronize skips to a plausible statement boundary after an error.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenSemicolon:
			p.nextToken()
			return
		case TokenRBrace:
			return
		}
		p.nextToken()
	}
}

// synchronizeDecl skips to the next top-level declaration keyword.
func (p *Parser) synchronizeDecl() {
	for !p.curTokenIs(TokenEOF) {
		if isDeclKeyword(p.curToken.Type) {
			return
		}
		p.nextToken()
	}
}

func isDeclKeyword(t TokenType) bool {
	switch t {
	case TokenFn, TokenConst, TokenTypeKw, TokenEnum, TokenAlias, TokenEffect,
		TokenTool, TokenPolicy, TokenPipelineKw, TokenProfile:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// ParseFile parses top-level declarations until EOF.
func (p *Parser) ParseFile() *File {
	f := &File{}
	for !p.curTokenIs(TokenEOF) {
		before := len(p.errors)
		startPos := p.curToken.Pos
		if p.curTokenIs(TokenProfile) {
			p.nextToken()
			switch name := p.expectIdent(); name {
			case "deterministic":
				f.Deterministic = true
			case "standard", "":
			default:
				p.errorf("unknown profile %q", name)
			}
			p.expect(TokenSemicolon)
		} else if d := p.parseDecl(); d != nil {
			f.Decls = append(f.Decls, d)
		}
		// A declaration that failed partway may already stand on the next
		// one; only skip when it did not.
		if len(p.errors) > before && !isDeclKeyword(p.curToken.Type) {
			if p.curToken.Pos == startPos {
				p.nextToken()
			}
			p.synchronizeDecl()
		}
	}
	return f
}

func (p *Parser) parseDecl() Decl {
	switch p.curToken.Type {
	case TokenFn:
		return p.parseFuncDecl()
	case TokenConst:
		return p.parseConstDecl()
	case TokenTypeKw:
		return p.parseTypeDecl()
	case TokenEnum:
		return p.parseEnumDecl()
	case TokenAlias:
		return p.parseAliasDecl()
	case TokenEffect:
		return p.parseEffectDecl()
	case TokenTool:
		return p.parseToolDecl()
	case TokenPolicy:
		return p.parsePolicyDecl()
	case TokenPipelineKw:
		return p.parsePipelineDecl()
	}
	p.errorf("expected declaration, got %s", p.curToken)
	return nil
}

func (p *Parser) parseFuncDecl() *FuncDecl {
	start := p.curToken.Pos
	p.nextToken() // fn
	d := &FuncDecl{Name: p.expectIdent()}
	d.Params = p.parseParams()
	if p.curTokenIs(TokenArrow) {
		p.nextToken()
		d.Return = p.expectIdent()
	}
	d.Body = p.parseBlock()
	d.SpanVal = p.span(start)
	return d
}

// parseParams parses (name[: type][...], ...).
func (p *Parser) parseParams() []*Param {
	var params []*Param
	if !p.expect(TokenLParen) {
		return nil
	}
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		prm := &Param{Pos: p.curToken.Pos, Name: p.expectIdent()}
		if p.curTokenIs(TokenColon) {
			p.nextToken()
			prm.Type = p.expectIdent()
		}
		if p.curTokenIs(TokenEllipsis) {
			p.nextToken()
			prm.Variadic = true
		}
		params = append(params, prm)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRParen)
	return params
}

func (p *Parser) parseConstDecl() *ConstDecl {
	start := p.curToken.Pos
	p.nextToken() // const
	d := &ConstDecl{Name: p.expectIdent()}
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		d.Type = p.expectIdent()
	}
	p.expect(TokenAssign)
	d.Value = p.parseExpression(PrecLowest)
	p.expect(TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) parseTypeDecl() *TypeDecl {
	start := p.curToken.Pos
	p.nextToken() // type
	d := &TypeDecl{Name: p.expectIdent()}
	p.expect(TokenLBrace)
	for p.curTokenIs(TokenIdentifier) {
		f := &FieldDecl{Pos: p.curToken.Pos, Name: p.expectIdent()}
		p.expect(TokenColon)
		f.Type = p.expectIdent()
		d.Fields = append(d.Fields, f)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRBrace)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) parseEnumDecl() *EnumDecl {
	start := p.curToken.Pos
	p.nextToken() // enum
	d := &EnumDecl{Name: p.expectIdent()}
	p.expect(TokenLBrace)
	for p.curTokenIs(TokenIdentifier) {
		c := &CaseDecl{Pos: p.curToken.Pos, Name: p.expectIdent()}
		if p.curTokenIs(TokenLParen) {
			p.nextToken()
			for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
				c.Payload = append(c.Payload, p.expectIdent())
				if !p.curTokenIs(TokenComma) {
					break
				}
				p.nextToken()
			}
			p.expect(TokenRParen)
		}
		d.Cases = append(d.Cases, c)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRBrace)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) parseAliasDecl() *AliasDecl {
	start := p.curToken.Pos
	p.nextToken() // alias
	d := &AliasDecl{Name: p.expectIdent()}
	p.expect(TokenAssign)
	d.Target = p.expectIdent()
	p.expect(TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) parseEffectDecl() *EffectDecl {
	start := p.curToken.Pos
	p.nextToken() // effect
	d := &EffectDecl{Name: p.expectIdent()}
	p.expect(TokenLBrace)
	for p.curTokenIs(TokenIdentifier) {
		op := &OpDecl{Pos: p.curToken.Pos, Name: p.expectIdent()}
		op.Params = p.parseParams()
		if p.curTokenIs(TokenArrow) {
			p.nextToken()
			op.Return = p.expectIdent()
		}
		p.expect(TokenSemicolon)
		d.Ops = append(d.Ops, op)
	}
	p.expect(TokenRBrace)
	d.SpanVal = p.span(start)
	return d
}

// parseToolDecl parses tool alias = "capability@version" [schema "..."] [timeout N];
func (p *Parser) parseToolDecl() *ToolDecl {
	start := p.curToken.Pos
	p.nextToken() // tool
	d := &ToolDecl{Alias: p.expectIdent()}
	p.expect(TokenAssign)
	if !p.curTokenIs(TokenString) {
		p.errorf("expected capability string, got %s", p.curToken)
		return nil
	}
	d.Capability, d.Version = SplitCapability(p.curToken.Literal)
	p.nextToken()
	for {
		switch {
		case p.curTokenIs(TokenSchema):
			p.nextToken()
			if !p.curTokenIs(TokenString) {
				p.errorf("expected schema string, got %s", p.curToken)
				return nil
			}
			d.Schema = p.curToken.Literal
			p.nextToken()
			continue
		case p.curTokenIs(TokenTimeout):
			p.nextToken()
			if !p.curTokenIs(TokenInteger) {
				p.errorf("expected timeout in milliseconds, got %s", p.curToken)
				return nil
			}
			n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
			if err != nil || n > 1<<32-1 {
				p.errorf("timeout %s out of range", p.curToken.Literal)
			}
			d.Timeout = n
			p.nextToken()
			continue
		}
		break
	}
	p.expect(TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) parsePolicyDecl() *PolicyDecl {
	start := p.curToken.Pos
	p.nextToken() // policy
	d := &PolicyDecl{Name: p.expectIdent()}
	p.expect(TokenAssign)
	p.expect(TokenLBracket)
	for p.curTokenIs(TokenIdentifier) {
		d.Grants = append(d.Grants, p.expectIdent())
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRBracket)
	p.expect(TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

func (p *Parser) parsePipelineDecl() *PipelineDecl {
	start := p.curToken.Pos
	p.nextToken() // pipeline
	d := &PipelineDecl{Name: p.expectIdent()}
	p.expect(TokenAssign)
	d.Stages = append(d.Stages, p.expectIdent())
	for p.curTokenIs(TokenPipeline) {
		p.nextToken()
		d.Stages = append(d.Stages, p.expectIdent())
	}
	p.expect(TokenSemicolon)
	d.SpanVal = p.span(start)
	return d
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseBlock parses { stmt* [tail] }.
func (p *Parser) parseBlock() *Block {
	start := p.curToken.Pos
	b := &Block{}
	if !p.expect(TokenLBrace) {
		return b
	}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		before := len(p.errors)
		stmt, tail := p.parseStatement()
		if tail != nil {
			b.Tail = tail
			break
		}
		if stmt != nil {
			b.Stmts = append(b.Stmts, stmt)
		}
		if len(p.errors) > before {
			p.synchronize()
		}
	}
	p.expect(TokenRBrace)
	b.SpanVal = p.span(start)
	return b
}

// parseStatement parses one statement. When the statement is an expression
// directly followed by the closing brace it is returned as the block tail.
func (p *Parser) parseStatement() (Stmt, Expr) {
	start := p.curToken.Pos
	switch p.curToken.Type {
	case TokenLet:
		return p.parseLet(), nil
	case TokenIf:
		return p.parseIf(), nil
	case TokenWhile:
		return p.parseWhile(""), nil
	case TokenFor:
		return p.parseFor(""), nil
	case TokenBreak:
		p.nextToken()
		s := &BreakStmt{}
		if p.curTokenIs(TokenIdentifier) {
			s.Label = p.expectIdent()
		}
		p.expect(TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	case TokenContinue:
		p.nextToken()
		s := &ContinueStmt{}
		if p.curTokenIs(TokenIdentifier) {
			s.Label = p.expectIdent()
		}
		p.expect(TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	case TokenReturn:
		p.nextToken()
		s := &ReturnStmt{}
		if !p.curTokenIs(TokenSemicolon) {
			s.Value = p.parseExpression(PrecLowest)
		}
		p.expect(TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	case TokenCancel:
		p.nextToken()
		s := &CancelStmt{Future: p.parseExpression(PrecLowest)}
		p.expect(TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	case TokenIdentifier:
		if p.peekTokenIs(TokenColon) {
			label := p.curToken.Literal
			p.nextToken()
			p.nextToken()
			switch p.curToken.Type {
			case TokenWhile:
				return p.parseWhile(label), nil
			case TokenFor:
				return p.parseFor(label), nil
			}
			p.errorf("label %q must precede a loop", label)
			return nil, nil
		}
	}

	x := p.parseExpression(PrecLowest)
	if x == nil {
		return nil, nil
	}
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		switch x.(type) {
		case *Ident, *FieldExpr, *IndexExpr:
		default:
			p.errorf("invalid assignment target")
		}
		s := &AssignStmt{Target: x, Value: p.parseExpression(PrecLowest)}
		p.expect(TokenSemicolon)
		s.SpanVal = p.span(start)
		return s, nil
	}
	if p.curTokenIs(TokenRBrace) {
		return nil, x
	}
	if !p.curTokenIs(TokenSemicolon) && endsWithBlock(x) {
		return &ExprStmt{SpanVal: p.span(start), Expr: x}, nil
	}
	p.expect(TokenSemicolon)
	return &ExprStmt{SpanVal: p.span(start), Expr: x}, nil
}

// endsWithBlock reports whether a statement expression may omit its
// semicolon.
func endsWithBlock(x Expr) bool {
	switch x.(type) {
	case *MatchExpr, *HandleExpr:
		return true
	}
	return false
}

func (p *Parser) parseLet() *LetStmt {
	start := p.curToken.Pos
	p.nextToken() // let
	s := &LetStmt{Name: p.expectIdent()}
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		s.Type = p.expectIdent()
	}
	p.expect(TokenAssign)
	s.Value = p.parseExpression(PrecLowest)
	p.expect(TokenSemicolon)
	s.SpanVal = p.span(start)
	return s
}

func (p *Parser) parseIf() *IfStmt {
	start := p.curToken.Pos
	p.nextToken() // if
	s := &IfStmt{Cond: p.parseExpression(PrecLowest)}
	s.Then = p.parseBlock()
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if p.curTokenIs(TokenIf) {
			s.Else = p.parseIf()
		} else {
			s.Else = p.parseBlock()
		}
	}
	s.SpanVal = p.span(start)
	return s
}

func (p *Parser) parseWhile(label string) *WhileStmt {
	start := p.curToken.Pos
	p.nextToken() // while
	s := &WhileStmt{Label: label, Cond: p.parseExpression(PrecLowest)}
	s.Body = p.parseBlock()
	s.SpanVal = p.span(start)
	return s
}

func (p *Parser) parseFor(label string) *ForStmt {
	start := p.curToken.Pos
	p.nextToken() // for
	s := &ForStmt{Label: label, Var: p.expectIdent()}
	p.expect(TokenIn)
	s.Iter = p.parseExpression(PrecLowest)
	s.Body = p.parseBlock()
	s.SpanVal = p.span(start)
	return s
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// binaryOps maps token types to the operator spelling used in the AST.
var binaryOps = map[TokenType]string{
	TokenOrOr: "||", TokenAndAnd: "&&", TokenEq: "==", TokenNe: "!=",
	TokenLt: "<", TokenLe: "<=", TokenGt: ">", TokenGe: ">=", TokenIn: "in",
	TokenPipe: "|", TokenCaret: "^", TokenAmp: "&", TokenShl: "<<", TokenShr: ">>",
	TokenPlus: "+", TokenMinus: "-", TokenConcat: "++", TokenStar: "*",
	TokenSlash: "/", TokenPercent: "%", TokenStarStar: "**",
}

// parseExpression parses operators whose precedence exceeds minPrec.
func (p *Parser) parseExpression(minPrec int) Expr {
	start := p.curToken.Pos
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	for {
		op, ok := binaryOps[p.curToken.Type]
		if !ok {
			return left
		}
		prec := BinaryPrecedence(op)
		if prec <= minPrec {
			return left
		}
		p.nextToken()
		next := prec
		if op == "**" {
			next = prec - 1
		}
		right := p.parseExpression(next)
		if right == nil {
			return nil
		}
		left = &BinaryExpr{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
}

// parseUnary parses prefix operators and the keyword-introduced
// expressions whose operand binds at unary precedence.
func (p *Parser) parseUnary() Expr {
	start := p.curToken.Pos
	switch p.curToken.Type {
	case TokenMinus, TokenBang, TokenTilde:
		op := p.curToken.Literal
		p.nextToken()
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		return &UnaryExpr{SpanVal: p.span(start), Op: op, X: x}
	case TokenAwait:
		p.nextToken()
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		return &AwaitExpr{SpanVal: p.span(start), X: x}
	case TokenSpawn:
		p.nextToken()
		x := p.parseUnary()
		call, ok := x.(*CallExpr)
		if !ok {
			p.errorf("spawn requires a call")
			return nil
		}
		return &SpawnExpr{SpanVal: p.span(start), Call: call}
	case TokenTrace:
		p.nextToken()
		if !p.curTokenIs(TokenString) {
			p.errorf("expected trace label, got %s", p.curToken)
			return nil
		}
		label := p.curToken.Literal
		p.nextToken()
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		return &TraceExpr{SpanVal: p.span(start), Label: label, Value: x}
	}
	return p.parsePostfix(p.parsePrimary())
}

// parsePostfix parses calls, field access, indexing and slicing.
func (p *Parser) parsePostfix(x Expr) Expr {
	if x == nil {
		return nil
	}
	start := x.Span().Start
	for {
		switch p.curToken.Type {
		case TokenLParen:
			args := p.parseArgs()
			x = &CallExpr{SpanVal: p.span(start), Callee: x, Args: args}
		case TokenDot:
			p.nextToken()
			name := p.expectIdent()
			x = &FieldExpr{SpanVal: p.span(start), X: x, Name: name}
		case TokenLBracket:
			p.nextToken()
			var lo Expr
			if !p.curTokenIs(TokenColon) {
				lo = p.parseExpression(PrecLowest)
			}
			if p.curTokenIs(TokenColon) {
				p.nextToken()
				var hi Expr
				if !p.curTokenIs(TokenRBracket) {
					hi = p.parseExpression(PrecLowest)
				}
				p.expect(TokenRBracket)
				x = &SliceExpr{SpanVal: p.span(start), X: x, Lo: lo, Hi: hi}
				continue
			}
			p.expect(TokenRBracket)
			x = &IndexExpr{SpanVal: p.span(start), X: x, Index: lo}
		default:
			return x
		}
	}
}

// parseArgs parses (expr, ...).
func (p *Parser) parseArgs() []Expr {
	p.expect(TokenLParen)
	var args []Expr
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		args = append(args, p.parseExpression(PrecLowest))
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRParen)
	return args
}

func (p *Parser) parsePrimary() Expr {
	start := p.curToken.Pos
	tok := p.curToken
	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		return NewIntLiteral(p.span(start), tok.Literal)
	case TokenFloat:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf("invalid float %s", tok.Literal)
		}
		return &FloatLiteral{SpanVal: p.span(start), Value: v}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: p.span(start), Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.span(start), Value: tok.Type == TokenTrue}
	case TokenNull:
		p.nextToken()
		return &NullLiteral{SpanVal: p.span(start)}
	case TokenIdentifier:
		p.nextToken()
		return &Ident{SpanVal: p.span(start), Name: tok.Literal}
	case TokenLParen:
		return p.parseParenOrTuple()
	case TokenLBracket:
		p.nextToken()
		l := &ListLit{Elems: p.parseExprList(TokenRBracket)}
		p.expect(TokenRBracket)
		l.SpanVal = p.span(start)
		return l
	case TokenHashLBrace:
		p.nextToken()
		s := &SetLit{Elems: p.parseExprList(TokenRBrace)}
		p.expect(TokenRBrace)
		s.SpanVal = p.span(start)
		return s
	case TokenLBrace:
		return p.parseMapLit()
	case TokenNew:
		return p.parseRecordLit()
	case TokenFn:
		p.nextToken()
		f := &FuncLit{Params: p.parseParams()}
		if p.curTokenIs(TokenArrow) {
			p.nextToken()
			f.Return = p.expectIdent()
		}
		f.Body = p.parseBlock()
		f.SpanVal = p.span(start)
		return f
	case TokenMatch:
		return p.parseMatch()
	case TokenHandle:
		return p.parseHandle()
	case TokenPerform:
		p.nextToken()
		e := &PerformExpr{Effect: p.expectIdent()}
		p.expect(TokenDot)
		e.Op = p.expectIdent()
		e.Args = p.parseArgs()
		e.SpanVal = p.span(start)
		return e
	case TokenResume:
		p.nextToken()
		e := &ResumeExpr{}
		name := p.curToken
		e.Cont = &Ident{SpanVal: Span{Start: name.Pos, End: name.Pos}, Name: p.expectIdent()}
		if p.curTokenIs(TokenLParen) {
			p.nextToken()
			if !p.curTokenIs(TokenRParen) {
				e.Value = p.parseExpression(PrecLowest)
			}
			p.expect(TokenRParen)
		}
		e.SpanVal = p.span(start)
		return e
	case TokenCall:
		p.nextToken()
		e := &ToolCallExpr{Tool: p.expectIdent()}
		p.expect(TokenLParen)
		e.Request = p.parseExpression(PrecLowest)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			e.Timeout = p.parseExpression(PrecLowest)
		}
		p.expect(TokenRParen)
		e.SpanVal = p.span(start)
		return e
	}
	p.errorf("unexpected %s in expression", tok)
	return nil
}

// NewIntLiteral builds an integer literal from decimal digits, keeping the
// digits when the value overflows int64.
func NewIntLiteral(span Span, digits string) *IntLiteral {
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return &IntLiteral{SpanVal: span, Big: trimLeadingZeros(digits)}
	}
	return &IntLiteral{SpanVal: span, Value: v}
}

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

// SplitCapability splits "id@version" into its parts.
func SplitCapability(s string) (id, version string) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '@' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

func (p *Parser) parseExprList(end TokenType) []Expr {
	var elems []Expr
	for !p.curTokenIs(end) && !p.curTokenIs(TokenEOF) {
		x := p.parseExpression(PrecLowest)
		if x == nil {
			return elems
		}
		elems = append(elems, x)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return elems
}

// parseParenOrTuple parses (e), (), (e,) and (a, b, ...).
func (p *Parser) parseParenOrTuple() Expr {
	start := p.curToken.Pos
	p.nextToken() // (
	if p.curTokenIs(TokenRParen) {
		p.nextToken()
		return &TupleLit{SpanVal: p.span(start)}
	}
	first := p.parseExpression(PrecLowest)
	if !p.curTokenIs(TokenComma) {
		p.expect(TokenRParen)
		return first
	}
	elems := []Expr{first}
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		if p.curTokenIs(TokenRParen) {
			break
		}
		elems = append(elems, p.parseExpression(PrecLowest))
	}
	p.expect(TokenRParen)
	return &TupleLit{SpanVal: p.span(start), Elems: elems}
}

func (p *Parser) parseMapLit() Expr {
	start := p.curToken.Pos
	p.nextToken() // {
	m := &MapLit{}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		k := p.parseExpression(PrecLowest)
		p.expect(TokenColon)
		v := p.parseExpression(PrecLowest)
		m.Keys = append(m.Keys, k)
		m.Values = append(m.Values, v)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRBrace)
	m.SpanVal = p.span(start)
	return m
}

func (p *Parser) parseRecordLit() Expr {
	start := p.curToken.Pos
	p.nextToken() // new
	r := &RecordLit{Type: p.expectIdent()}
	p.expect(TokenLBrace)
	for p.curTokenIs(TokenIdentifier) {
		fi := &FieldInit{Pos: p.curToken.Pos, Name: p.expectIdent()}
		p.expect(TokenColon)
		fi.Value = p.parseExpression(PrecLowest)
		r.Fields = append(r.Fields, fi)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRBrace)
	r.SpanVal = p.span(start)
	return r
}

// parseMatch parses match subject { Enum.Case(x, y) => { ... } _ => { ... } }.
func (p *Parser) parseMatch() Expr {
	start := p.curToken.Pos
	p.nextToken() // match
	m := &MatchExpr{Subject: p.parseExpression(PrecLowest)}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		arm := &MatchArm{Pos: p.curToken.Pos}
		name := p.expectIdent()
		if name == "_" {
			arm.Wildcard = true
		} else {
			arm.Enum = name
			p.expect(TokenDot)
			arm.Case = p.expectIdent()
			if p.curTokenIs(TokenLParen) {
				p.nextToken()
				for p.curTokenIs(TokenIdentifier) {
					arm.Binds = append(arm.Binds, p.expectIdent())
					if !p.curTokenIs(TokenComma) {
						break
					}
					p.nextToken()
				}
				p.expect(TokenRParen)
			}
		}
		if !p.expect(TokenFatArrow) {
			break
		}
		arm.Body = p.parseBlock()
		m.Arms = append(m.Arms, arm)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRBrace)
	m.SpanVal = p.span(start)
	return m
}

// parseHandle parses handle { body } with Effect { op(a, k) { ... } ... }.
func (p *Parser) parseHandle() Expr {
	start := p.curToken.Pos
	p.nextToken() // handle
	h := &HandleExpr{Body: p.parseBlock()}
	p.expect(TokenWith)
	h.Effect = p.expectIdent()
	p.expect(TokenLBrace)
	for p.curTokenIs(TokenIdentifier) {
		c := &HandlerClause{Pos: p.curToken.Pos, Op: p.expectIdent()}
		p.expect(TokenLParen)
		for p.curTokenIs(TokenIdentifier) {
			c.Params = append(c.Params, p.expectIdent())
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		p.expect(TokenRParen)
		c.Body = p.parseBlock()
		h.Clauses = append(h.Clauses, c)
	}
	p.expect(TokenRBrace)
	h.SpanVal = p.span(start)
	return h
}
