package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Corvid lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenFloat      // 3.14, 1e10
	TokenString     // "hello"
	TokenIdentifier // foo, Bar

	// Operators
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenStarStar // **
	TokenSlash    // /
	TokenPercent  // %
	TokenConcat   // ++
	TokenEq       // ==
	TokenNe       // !=
	TokenLt       // <
	TokenLe       // <=
	TokenGt       // >
	TokenGe       // >=
	TokenAndAnd   // &&
	TokenOrOr     // ||
	TokenBang     // !
	TokenTilde    // ~
	TokenAmp      // &
	TokenPipe     // |
	TokenCaret    // ^
	TokenShl      // <<
	TokenShr      // >>
	TokenAssign   // =
	TokenArrow    // ->
	TokenFatArrow // =>
	TokenPipeline // |>
	TokenEllipsis // ...

	// Delimiters
	TokenLParen     // (
	TokenRParen     // )
	TokenLBracket   // [
	TokenRBracket   // ]
	TokenLBrace     // {
	TokenRBrace     // }
	TokenHashLBrace // #{
	TokenComma      // ,
	TokenColon      // :
	TokenSemicolon  // ;
	TokenDot        // .

	// Keywords
	TokenFn
	TokenLet
	TokenConst
	TokenTypeKw
	TokenEnum
	TokenAlias
	TokenEffect
	TokenTool
	TokenPolicy
	TokenPipelineKw
	TokenProfile
	TokenIf
	TokenElse
	TokenWhile
	TokenFor
	TokenIn
	TokenBreak
	TokenContinue
	TokenReturn
	TokenMatch
	TokenHandle
	TokenWith
	TokenPerform
	TokenResume
	TokenSpawn
	TokenAwait
	TokenCancel
	TokenCall
	TokenTrace
	TokenNew
	TokenSchema
	TokenTimeout
	TokenTrue
	TokenFalse
	TokenNull
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenStarStar:   "**",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenConcat:     "++",
	TokenEq:         "==",
	TokenNe:         "!=",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenAndAnd:     "&&",
	TokenOrOr:       "||",
	TokenBang:       "!",
	TokenTilde:      "~",
	TokenAmp:        "&",
	TokenPipe:       "|",
	TokenCaret:      "^",
	TokenShl:        "<<",
	TokenShr:        ">>",
	TokenAssign:     "=",
	TokenArrow:      "->",
	TokenFatArrow:   "=>",
	TokenPipeline:   "|>",
	TokenEllipsis:   "...",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenHashLBrace: "#{",
	TokenComma:      ",",
	TokenColon:      ":",
	TokenSemicolon:  ";",
	TokenDot:        ".",
}

func init() {
	for word, tt := range Keywords {
		tokenNames[tt] = word
	}
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // raw text; decoded contents for strings
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Keywords maps reserved words to their token types. Both front ends share
// this table.
var Keywords = map[string]TokenType{
	"fn":       TokenFn,
	"let":      TokenLet,
	"const":    TokenConst,
	"type":     TokenTypeKw,
	"enum":     TokenEnum,
	"alias":    TokenAlias,
	"effect":   TokenEffect,
	"tool":     TokenTool,
	"policy":   TokenPolicy,
	"pipeline": TokenPipelineKw,
	"profile":  TokenProfile,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"for":      TokenFor,
	"in":       TokenIn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"return":   TokenReturn,
	"match":    TokenMatch,
	"handle":   TokenHandle,
	"with":     TokenWith,
	"perform":  TokenPerform,
	"resume":   TokenResume,
	"spawn":    TokenSpawn,
	"await":    TokenAwait,
	"cancel":   TokenCancel,
	"call":     TokenCall,
	"trace":    TokenTrace,
	"new":      TokenNew,
	"schema":   TokenSchema,
	"timeout":  TokenTimeout,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"null":     TokenNull,
}

// Binary operator precedence, lowest to highest. Unary operators bind
// tighter than every binary operator; ** is right-associative.
const (
	PrecLowest = iota
	PrecOr
	PrecAnd
	PrecEquality
	PrecCompare
	PrecBitOr
	PrecBitXor
	PrecBitAnd
	PrecShift
	PrecAdditive
	PrecMultiplicative
	PrecPower
	PrecUnary
)

// BinaryPrecedence returns the precedence of a binary operator spelling, or
// PrecLowest when op is not a binary operator.
func BinaryPrecedence(op string) int {
	switch op {
	case "||":
		return PrecOr
	case "&&":
		return PrecAnd
	case "==", "!=":
		return PrecEquality
	case "<", "<=", ">", ">=", "in":
		return PrecCompare
	case "|":
		return PrecBitOr
	case "^":
		return PrecBitXor
	case "&":
		return PrecBitAnd
	case "<<", ">>":
		return PrecShift
	case "+", "-", "++":
		return PrecAdditive
	case "*", "/", "%":
		return PrecMultiplicative
	case "**":
		return PrecPower
	}
	return PrecLowest
}
