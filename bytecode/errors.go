package bytecode

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Serialization errors
// ---------------------------------------------------------------------------

var (
	ErrBadMagic           = errors.New("invalid magic number: expected CRVB")
	ErrUnsupportedVersion = errors.New("unsupported bytecode version")
	ErrUnexpectedEOF      = errors.New("unexpected end of input")
	ErrInvalidStringIndex = errors.New("invalid string index")
	ErrInvalidConstant    = errors.New("invalid constant tag")
	ErrInvalidTypeKind    = errors.New("invalid type kind")
	ErrTooLarge           = errors.New("value too large for format")
)

// UnexpectedEOFError reports truncated input and names the field that could
// not be read. It matches ErrUnexpectedEOF with errors.Is.
type UnexpectedEOFError struct {
	Field  string
	Offset int
}

func (e *UnexpectedEOFError) Error() string {
	return fmt.Sprintf("unexpected end of input reading %s at offset %d", e.Field, e.Offset)
}

func (e *UnexpectedEOFError) Is(target error) bool {
	return target == ErrUnexpectedEOF
}
