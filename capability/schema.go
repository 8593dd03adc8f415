package capability

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// CUEValidator validates tool results against CUE schemas. Compiled
// schemas are cached by source. A cue.Context is not safe for concurrent
// use, so all work happens under one lock.
type CUEValidator struct {
	mu      sync.Mutex
	ctx     *cue.Context
	schemas map[string]cue.Value
}

// NewCUEValidator returns a validator with an empty schema cache.
func NewCUEValidator() *CUEValidator {
	return &CUEValidator{ctx: cuecontext.New(), schemas: make(map[string]cue.Value)}
}

// Validate unifies value with schema and requires a concrete result.
func (v *CUEValidator) Validate(schema string, value any) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.compile(schema)
	if err != nil {
		return err
	}
	val := v.ctx.Encode(value)
	if err := val.Err(); err != nil {
		return fmt.Errorf("%w: encode result: %v", ErrSchema, err)
	}
	if err := s.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// Check compiles schema without validating anything, reporting syntax
// errors early.
func (v *CUEValidator) Check(schema string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.compile(schema)
	return err
}

func (v *CUEValidator) compile(schema string) (cue.Value, error) {
	if s, ok := v.schemas[schema]; ok {
		return s, nil
	}
	s := v.ctx.CompileString(schema, cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile schema: %w", err)
	}
	v.schemas[schema] = s
	return s, nil
}
