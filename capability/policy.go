package capability

import "fmt"

// Policy controls which capabilities may be dispatched. A nil Allowed map
// means "allow all"; Denied always wins.
type Policy struct {
	Allowed map[string]bool // nil = allow all
	Denied  map[string]bool
}

// NewPermissivePolicy creates a policy that allows all capabilities.
func NewPermissivePolicy() *Policy {
	return &Policy{}
}

// NewRestrictedPolicy creates a policy that only allows the specified
// capabilities.
func NewRestrictedPolicy(allowed []string) *Policy {
	m := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		m[c] = true
	}
	return &Policy{Allowed: m}
}

// Check reports whether capability may be dispatched.
func (p *Policy) Check(capability string) error {
	if p == nil {
		return nil
	}
	if p.Denied[capability] {
		return fmt.Errorf("%w: %q is explicitly denied", ErrDenied, capability)
	}
	if p.Allowed != nil && !p.Allowed[capability] {
		return fmt.Errorf("%w: %q is not allowed", ErrDenied, capability)
	}
	return nil
}

// Allow adds a capability to the allow list. On a permissive policy this
// turns it into a restricted one.
func (p *Policy) Allow(capability string) {
	if p.Allowed == nil {
		p.Allowed = make(map[string]bool)
	}
	p.Allowed[capability] = true
}

// Deny adds a capability to the deny list.
func (p *Policy) Deny(capability string) {
	if p.Denied == nil {
		p.Denied = make(map[string]bool)
	}
	p.Denied[capability] = true
}
