package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// Phase identifies the compiler phase that produced a diagnostic.
type Phase int

const (
	PhaseLexical Phase = iota
	PhaseSyntax
	PhaseResolve
	PhaseType
	PhaseLower
	PhaseInternal
)

func (p Phase) String() string {
	switch p {
	case PhaseLexical:
		return "lexical"
	case PhaseSyntax:
		return "syntax"
	case PhaseResolve:
		return "resolve"
	case PhaseType:
		return "type"
	case PhaseLower:
		return "lower"
	case PhaseInternal:
		return "internal"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Kind classifies a diagnostic within its phase.
type Kind int

// Lexical and syntax kinds.
const (
	KindInvalidToken Kind = iota
	KindUnterminatedString
	KindInvalidNumber
	KindUnexpectedToken
)

// Resolution kinds.
const (
	KindUndefinedName Kind = iota + 100
	KindUndefinedType
	KindUndefinedCapability
	KindUndefinedTrait
	KindUndefinedEffect
	KindUndefinedOperation
	KindUndefinedLabel
	KindArityMismatch
	KindDuplicateDefinition
	KindEffectNotGranted
	KindEffectNotDeclared
	KindContractViolation
	KindNondeterministic
	KindInvalidStateMachine
	KindUnreachableState
	KindPipelineStageMismatch
	KindImportNotFound
	KindCyclicImport
	KindTraitMethodMissing
	KindTraitNotImplemented
	KindOutsideLoop
	KindInvalidAssignmentTarget
	KindInvalidConstant
	KindInvalidHandler
)

// Type kinds.
const (
	KindTypeMismatch Kind = iota + 200
	KindUndefinedVariable
	KindNotCallable
	KindArgumentCount
	KindNonExhaustiveMatch
	KindInvalidFieldAccess
	KindInvalidIndex
	KindAmbiguousType
)

var kindNames = map[Kind]string{
	KindInvalidToken:            "invalid token",
	KindUnterminatedString:      "unterminated string",
	KindInvalidNumber:           "invalid number",
	KindUnexpectedToken:         "unexpected token",
	KindUndefinedName:           "undefined name",
	KindUndefinedType:           "undefined type",
	KindUndefinedCapability:     "undefined capability",
	KindUndefinedTrait:          "undefined trait",
	KindUndefinedEffect:         "undefined effect",
	KindUndefinedOperation:      "undefined operation",
	KindUndefinedLabel:          "undefined label",
	KindArityMismatch:           "arity mismatch",
	KindDuplicateDefinition:     "duplicate definition",
	KindEffectNotGranted:        "effect not granted",
	KindEffectNotDeclared:       "effect not declared",
	KindContractViolation:       "contract violation",
	KindNondeterministic:        "nondeterministic operation",
	KindInvalidStateMachine:     "invalid state machine",
	KindUnreachableState:        "unreachable state",
	KindPipelineStageMismatch:   "pipeline stage mismatch",
	KindImportNotFound:          "import not found",
	KindCyclicImport:            "cyclic import",
	KindTraitMethodMissing:      "trait method missing",
	KindTraitNotImplemented:     "trait not implemented",
	KindOutsideLoop:             "break or continue outside loop",
	KindInvalidAssignmentTarget: "invalid assignment target",
	KindInvalidConstant:         "invalid constant",
	KindInvalidHandler:          "invalid handler",
	KindTypeMismatch:            "type mismatch",
	KindUndefinedVariable:       "undefined variable",
	KindNotCallable:             "not callable",
	KindArgumentCount:           "argument count",
	KindNonExhaustiveMatch:      "non-exhaustive match",
	KindInvalidFieldAccess:      "invalid field access",
	KindInvalidIndex:            "invalid index",
	KindAmbiguousType:           "ambiguous type",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Diagnostic is one positioned compiler error.
type Diagnostic struct {
	Phase   Phase
	Kind    Kind
	Pos     Position
	Message string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s error at %d:%d: %s", d.Phase, d.Pos.Line, d.Pos.Column, d.Message)
}

// ErrorList collects diagnostics. Parsing and checking continue past the
// first error so a single run reports everything it can.
type ErrorList []*Diagnostic

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, d := range l {
		msgs[i] = d.Error()
	}
	return fmt.Sprintf("%d errors:\n%s", len(l), strings.Join(msgs, "\n"))
}

// Has reports whether any diagnostic has the given kind.
func (l ErrorList) Has(k Kind) bool {
	for _, d := range l {
		if d.Kind == k {
			return true
		}
	}
	return false
}

// Err returns l as an error, or nil when it is empty.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// LowerError reports a construct the lowering pass cannot express.
type LowerError struct {
	Function string
	Line     int
	Message  string
}

func (e *LowerError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("lower error in %s at line %d: %s", e.Function, e.Line, e.Message)
	}
	return fmt.Sprintf("lower error at line %d: %s", e.Line, e.Message)
}
