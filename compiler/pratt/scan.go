// Package pratt is a second, independent front end for Corvid source. It
// tokenizes with text/scanner and parses expressions with a Pratt parser,
// producing the same compiler.File as the recursive-descent front end.
package pratt

import (
	"errors"
	"fmt"
	"strings"
	"text/scanner"

	"github.com/chazu/corvid/compiler"
)

// tokenizer adapts text/scanner to compiler tokens.
type tokenizer struct {
	sc  scanner.Scanner
	err error
}

func newTokenizer(src string) *tokenizer {
	t := &tokenizer{}
	t.sc.Init(strings.NewReader(src))
	t.sc.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats |
		scanner.ScanComments | scanner.SkipComments
	t.sc.Error = func(s *scanner.Scanner, msg string) {
		// Leading zeros are decimal in Corvid; isDecimal checks the digits.
		if strings.Contains(msg, "octal literal") {
			return
		}
		if t.err == nil {
			t.err = t.errorAt(s.Pos(), compiler.KindInvalidToken, "%s", msg)
		}
	}
	return t
}

func position(p scanner.Position) compiler.Position {
	return compiler.Position{Offset: p.Offset, Line: p.Line, Column: p.Column}
}

func (t *tokenizer) errorAt(p scanner.Position, kind compiler.Kind, format string, args ...interface{}) error {
	return &compiler.Diagnostic{
		Phase:   compiler.PhaseLexical,
		Kind:    kind,
		Pos:     position(p),
		Message: fmt.Sprintf(format, args...),
	}
}

// pairs maps an operator's first character and the character after it to
// the combined token.
var pairs = map[rune]map[rune]compiler.TokenType{
	'*': {'*': compiler.TokenStarStar},
	'+': {'+': compiler.TokenConcat},
	'=': {'=': compiler.TokenEq, '>': compiler.TokenFatArrow},
	'!': {'=': compiler.TokenNe},
	'<': {'=': compiler.TokenLe, '<': compiler.TokenShl},
	'>': {'=': compiler.TokenGe, '>': compiler.TokenShr},
	'&': {'&': compiler.TokenAndAnd},
	'|': {'|': compiler.TokenOrOr, '>': compiler.TokenPipeline},
	'-': {'>': compiler.TokenArrow},
	'#': {'{': compiler.TokenHashLBrace},
}

var singles = map[rune]compiler.TokenType{
	'+': compiler.TokenPlus, '-': compiler.TokenMinus, '*': compiler.TokenStar,
	'/': compiler.TokenSlash, '%': compiler.TokenPercent, '<': compiler.TokenLt,
	'>': compiler.TokenGt, '!': compiler.TokenBang, '~': compiler.TokenTilde,
	'&': compiler.TokenAmp, '|': compiler.TokenPipe, '^': compiler.TokenCaret,
	'=': compiler.TokenAssign, '(': compiler.TokenLParen, ')': compiler.TokenRParen,
	'[': compiler.TokenLBracket, ']': compiler.TokenRBracket, '{': compiler.TokenLBrace,
	'}': compiler.TokenRBrace, ',': compiler.TokenComma, ':': compiler.TokenColon,
	';': compiler.TokenSemicolon, '.': compiler.TokenDot,
}

// next returns the next token, or an error token once scanning fails.
func (t *tokenizer) next() (compiler.Token, error) {
	r := t.sc.Scan()
	pos := t.sc.Position
	if t.err != nil {
		return compiler.Token{}, t.err
	}
	text := t.sc.TokenText()
	tok := compiler.Token{Literal: text, Pos: position(pos)}

	switch r {
	case scanner.EOF:
		tok.Type = compiler.TokenEOF
		tok.Literal = ""
		return tok, nil
	case scanner.Ident:
		if kw, ok := compiler.Keywords[text]; ok {
			tok.Type = kw
		} else {
			tok.Type = compiler.TokenIdentifier
		}
		return tok, nil
	case scanner.Int:
		if !isDecimal(text) {
			return tok, t.errorAt(pos, compiler.KindInvalidNumber, "malformed number %s", text)
		}
		tok.Type = compiler.TokenInteger
		return tok, nil
	case scanner.Float:
		if !isDecimalFloat(text) {
			return tok, t.errorAt(pos, compiler.KindInvalidNumber, "malformed number %s", text)
		}
		tok.Type = compiler.TokenFloat
		return tok, nil
	case '"':
		lit, err := t.readString()
		if err != nil {
			kind := compiler.KindInvalidToken
			if err == errUnterminated {
				kind = compiler.KindUnterminatedString
			}
			return tok, t.errorAt(pos, kind, "%v", err)
		}
		tok.Type = compiler.TokenString
		tok.Literal = lit
		return tok, nil
	}

	if r == '.' && t.sc.Peek() == '.' {
		t.sc.Next()
		if t.sc.Peek() != '.' {
			return tok, t.errorAt(pos, compiler.KindInvalidToken, "unexpected character .")
		}
		t.sc.Next()
		tok.Type = compiler.TokenEllipsis
		tok.Literal = "..."
		return tok, nil
	}
	if second, ok := pairs[r][t.sc.Peek()]; ok {
		tok.Literal = string([]rune{r, t.sc.Next()})
		tok.Type = second
		return tok, nil
	}
	if single, ok := singles[r]; ok {
		tok.Type = single
		return tok, nil
	}
	return tok, t.errorAt(pos, compiler.KindInvalidToken, "unexpected character %s", text)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// isDecimal rejects the hex, octal, binary and underscore forms that
// text/scanner accepts but Corvid does not.
func isDecimal(s string) bool {
	return isDigits(s)
}

// isDecimalFloat accepts digits [. digits] [e [sign] digits].
func isDecimalFloat(s string) bool {
	mant, exp := s, ""
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mant, exp = s[:i], s[i+1:]
		if exp != "" && (exp[0] == '+' || exp[0] == '-') {
			exp = exp[1:]
		}
		if !isDigits(exp) {
			return false
		}
	}
	whole, frac, hasDot := strings.Cut(mant, ".")
	if !isDigits(whole) {
		return false
	}
	return !hasDot || isDigits(frac)
}

var errUnterminated = errors.New("unterminated string")

// readString consumes the rest of a double-quoted literal and decodes it.
// Only \n \t \r \\ \" and \' are valid escapes.
func (t *tokenizer) readString() (string, error) {
	var sb strings.Builder
	for {
		switch c := t.sc.Next(); c {
		case scanner.EOF, '\n':
			return "", errUnterminated
		case '"':
			return sb.String(), nil
		case '\\':
			e := t.sc.Next()
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '"', '\'':
				sb.WriteRune(e)
			default:
				return "", fmt.Errorf("invalid escape \\%c", e)
			}
		default:
			sb.WriteRune(c)
		}
	}
}
