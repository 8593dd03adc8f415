package compiler

// Scopes is a stack of lexical scopes. Lookup walks from the active scope to
// the root; the root scope is never popped.
type Scopes[T any] struct {
	frames []map[string]T
}

// NewScopes returns a stack holding only the root scope.
func NewScopes[T any]() *Scopes[T] {
	return &Scopes[T]{frames: []map[string]T{{}}}
}

// Push enters a child scope.
func (s *Scopes[T]) Push() {
	s.frames = append(s.frames, map[string]T{})
}

// Pop leaves the active scope. It reports false at the root.
func (s *Scopes[T]) Pop() bool {
	if len(s.frames) == 1 {
		return false
	}
	s.frames = s.frames[:len(s.frames)-1]
	return true
}

// Depth returns the number of scopes above the root.
func (s *Scopes[T]) Depth() int {
	return len(s.frames) - 1
}

// Define binds name in the active scope. It reports false when the name is
// already bound there; the existing binding is replaced either way, so a
// later let shadows an earlier one.
func (s *Scopes[T]) Define(name string, v T) bool {
	top := s.frames[len(s.frames)-1]
	_, exists := top[name]
	top[name] = v
	return !exists
}

// Set replaces the nearest existing binding of name.
func (s *Scopes[T]) Set(name string, v T) bool {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, ok := s.frames[i][name]; ok {
			s.frames[i][name] = v
			return true
		}
	}
	return false
}

// Lookup finds the nearest binding of name.
func (s *Scopes[T]) Lookup(name string) (T, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i][name]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// LookupLocal finds name in the active scope only.
func (s *Scopes[T]) LookupLocal(name string) (T, bool) {
	v, ok := s.frames[len(s.frames)-1][name]
	return v, ok
}
