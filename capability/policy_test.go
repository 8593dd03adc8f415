package capability

import (
	"context"
	"errors"
	"testing"
)

func TestPermissivePolicy_AllowsEverything(t *testing.T) {
	p := NewPermissivePolicy()
	for _, c := range []string{"http.get", "fs.read", "x"} {
		if err := p.Check(c); err != nil {
			t.Errorf("permissive policy should allow %s: %v", c, err)
		}
	}
}

func TestNilPolicy_AllowsEverything(t *testing.T) {
	var p *Policy
	if err := p.Check("anything"); err != nil {
		t.Errorf("nil policy should allow: %v", err)
	}
}

func TestRestrictedPolicy(t *testing.T) {
	p := NewRestrictedPolicy([]string{"http.get"})
	if err := p.Check("http.get"); err != nil {
		t.Errorf("should allow listed capability: %v", err)
	}
	if err := p.Check("fs.read"); !errors.Is(err, ErrDenied) {
		t.Errorf("unlisted capability: err = %v, want ErrDenied", err)
	}
}

func TestPolicy_DenyOverridesAllow(t *testing.T) {
	p := NewRestrictedPolicy([]string{"http.get", "fs.read"})
	p.Deny("fs.read")
	if err := p.Check("fs.read"); err == nil {
		t.Error("deny should override allow")
	}
	if err := p.Check("http.get"); err != nil {
		t.Errorf("http.get: %v", err)
	}
}

func TestPolicy_AllowRestricts(t *testing.T) {
	p := NewPermissivePolicy()
	p.Allow("a")
	if err := p.Check("b"); err == nil {
		t.Error("Allow should restrict a permissive policy")
	}
}

func TestGate(t *testing.T) {
	calls := 0
	inner := DispatcherFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		return &Response{Payload: "ok"}, nil
	})
	p := NewRestrictedPolicy([]string{"ok"})
	d := Gate(p, inner)

	if _, err := d.Dispatch(context.Background(), &Request{Capability: "ok"}); err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), &Request{Capability: "no"}); !errors.Is(err, ErrDenied) {
		t.Fatalf("denied: err = %v", err)
	}
	if calls != 1 {
		t.Errorf("inner dispatcher called %d times, want 1", calls)
	}
}
