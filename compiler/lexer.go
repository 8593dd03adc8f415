package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: hand-written tokenizer for Corvid source
// ---------------------------------------------------------------------------

// Lexer tokenizes Corvid source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// Tokens returns every token up to and including EOF.
func (l *Lexer) Tokens() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()
	pos := l.position()

	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	switch ch := l.ch; {
	case isIdentStart(ch):
		word := l.readIdentifier()
		if tt, ok := Keywords[word]; ok {
			return Token{Type: tt, Literal: word, Pos: pos}
		}
		return Token{Type: TokenIdentifier, Literal: word, Pos: pos}

	case isDigit(ch):
		return l.readNumber(pos)

	case ch == '"':
		return l.readString(pos)
	}

	if tok, ok := l.readOperator(pos); ok {
		return tok
	}
	bad := string(l.ch)
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + bad, Pos: pos}
}

// skipWhitespaceAndComments skips spaces and // line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEOF() {
		switch {
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for !l.atEOF() && isIdentChar(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads an integer or float literal: digits, an optional
// fraction and an optional exponent.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	isFloat := false
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			isFloat = true
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return Token{Type: TokenError, Literal: "malformed exponent", Pos: pos}
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	if isIdentStart(l.ch) {
		for isIdentChar(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenError, Literal: "malformed number " + l.input[start:l.pos], Pos: pos}
	}
	if isFloat {
		return Token{Type: TokenFloat, Literal: l.input[start:l.pos], Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
}

// readString reads a double-quoted string and decodes its escapes.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		if l.atEOF() || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		if l.ch == '"' {
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '\'':
				sb.WriteByte('\'')
			default:
				bad := string(l.ch)
				l.readChar()
				return Token{Type: TokenError, Literal: "invalid escape \\" + bad, Pos: pos}
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
}

var (
	threeCharOps = map[string]TokenType{"...": TokenEllipsis}
	twoCharOps   = map[string]TokenType{
		"**": TokenStarStar, "++": TokenConcat, "==": TokenEq, "!=": TokenNe,
		"<=": TokenLe, ">=": TokenGe, "&&": TokenAndAnd, "||": TokenOrOr,
		"<<": TokenShl, ">>": TokenShr, "->": TokenArrow, "=>": TokenFatArrow,
		"|>": TokenPipeline, "#{": TokenHashLBrace,
	}
	oneCharOps = map[rune]TokenType{
		'+': TokenPlus, '-': TokenMinus, '*': TokenStar, '/': TokenSlash,
		'%': TokenPercent, '<': TokenLt, '>': TokenGt, '!': TokenBang,
		'~': TokenTilde, '&': TokenAmp, '|': TokenPipe, '^': TokenCaret,
		'=': TokenAssign, '(': TokenLParen, ')': TokenRParen, '[': TokenLBracket,
		']': TokenRBracket, '{': TokenLBrace, '}': TokenRBrace, ',': TokenComma,
		':': TokenColon, ';': TokenSemicolon, '.': TokenDot,
	}
)

// readOperator reads punctuation, preferring the longest match.
func (l *Lexer) readOperator(pos Position) (Token, bool) {
	rest := l.input[l.pos:]
	if len(rest) >= 3 {
		if tt, ok := threeCharOps[rest[:3]]; ok {
			l.advance(3)
			return Token{Type: tt, Literal: rest[:3], Pos: pos}, true
		}
	}
	if len(rest) >= 2 {
		if tt, ok := twoCharOps[rest[:2]]; ok {
			l.advance(2)
			return Token{Type: tt, Literal: rest[:2], Pos: pos}, true
		}
	}
	if tt, ok := oneCharOps[l.ch]; ok {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: tt, Literal: lit, Pos: pos}, true
	}
	return Token{}, false
}

func (l *Lexer) advance(n int) {
	for i := 0; i < n; i++ {
		l.readChar()
	}
}
