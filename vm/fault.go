package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Faults
// ---------------------------------------------------------------------------

// FaultKind classifies a runtime fault.
type FaultKind uint8

const (
	FaultDivisionByZero FaultKind = iota + 1
	FaultOverflow
	FaultSlice
	FaultRegisterBounds
	FaultIndex
	FaultStackOverflow
	FaultBudgetExhausted
	FaultContinuationReused
	FaultContinuationAbandoned
	FaultUnhandledEffect
	FaultCapabilityTimeout
	FaultCapability
	FaultSchema
	FaultType
	FaultArity
	FaultNondeterministic
	FaultCancelled
	FaultDeadlock
	FaultUser
	FaultInternal
)

var faultNames = map[FaultKind]string{
	FaultDivisionByZero:        "division by zero",
	FaultOverflow:              "overflow",
	FaultSlice:                 "slice",
	FaultRegisterBounds:        "register bounds",
	FaultIndex:                 "index",
	FaultStackOverflow:         "stack overflow",
	FaultBudgetExhausted:       "budget exhausted",
	FaultContinuationReused:    "continuation reused",
	FaultContinuationAbandoned: "continuation abandoned",
	FaultUnhandledEffect:       "unhandled effect",
	FaultCapabilityTimeout:     "capability timeout",
	FaultCapability:            "capability",
	FaultSchema:                "schema",
	FaultType:                  "type",
	FaultArity:                 "arity",
	FaultNondeterministic:      "nondeterministic",
	FaultCancelled:             "cancelled",
	FaultDeadlock:              "deadlock",
	FaultUser:                  "user",
	FaultInternal:              "internal",
}

func (k FaultKind) String() string {
	if s, ok := faultNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FaultKind(%d)", uint8(k))
}

// Fault is a runtime error raised by the machine. Function and PC locate
// the instruction that faulted; they are empty for faults raised outside
// any frame.
type Fault struct {
	Kind     FaultKind
	Message  string
	Function string
	PC       int
	Cause    error
}

func (f *Fault) Error() string {
	if f.Function == "" {
		return fmt.Sprintf("%s fault: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s fault in %s at pc %d: %s", f.Kind, f.Function, f.PC, f.Message)
}

func (f *Fault) Unwrap() error { return f.Cause }

// Is matches another *Fault of the same kind, so errors.Is(err,
// &Fault{Kind: FaultOverflow}) works across wrapping.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind && t.Message == ""
}

func faultf(kind FaultKind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapFault(kind FaultKind, cause error, format string, args ...interface{}) *Fault {
	f := faultf(kind, format, args...)
	f.Cause = cause
	return f
}

// IsFault reports whether err is a fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}

// asFault converts any error escaping the dispatch loop into a fault.
func asFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return wrapFault(FaultInternal, err, "%v", err)
}

// ExitError is returned when a program calls exit. The machine never
// terminates the host process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}
