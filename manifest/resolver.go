package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/chazu/corvid/capability"
	"github.com/chazu/corvid/capability/remote"
)

// route is one resolved [capabilities.<alias>] entry.
type route struct {
	endpoint string
	timeout  time.Duration
	d        capability.Dispatcher
}

// Router dispatches tool calls by alias: aliases the manifest routes go
// to their remote host, everything else to the fallback.
type Router struct {
	routes   map[string]route
	fallback capability.Dispatcher
	closers  []io.Closer
}

// NewRouter connects to every capability host the manifest names.
// fallback may be nil, in which case unrouted calls fail with
// capability.ErrUnknownCapability.
func NewRouter(m *Manifest, fallback capability.Dispatcher) (*Router, error) {
	r := &Router{routes: make(map[string]route), fallback: fallback}
	aliases := make([]string, 0, len(m.Capabilities))
	for alias := range m.Capabilities {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		c := m.Capabilities[alias]
		d, closer, err := remote.New(c.Transport, c.Endpoint)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("resolving capability %s: %w", alias, err)
		}
		r.closers = append(r.closers, closer)
		r.routes[alias] = route{endpoint: c.Endpoint, timeout: c.Timeout.Duration, d: d}
		log.Debugf("capability %s -> %s (%s)", alias, c.Endpoint, transportName(c.Transport))
	}
	return r, nil
}

func transportName(t string) string {
	if t == "" {
		return remote.TransportConnect
	}
	return t
}

// Aliases lists the routed aliases in sorted order.
func (r *Router) Aliases() []string {
	out := make([]string, 0, len(r.routes))
	for alias := range r.routes {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Dispatch implements capability.Dispatcher. A route's timeout only
// shortens the machine's own deadline.
func (r *Router) Dispatch(ctx context.Context, req *capability.Request) (*capability.Response, error) {
	rt, ok := r.routes[req.Alias]
	if !ok {
		if r.fallback == nil {
			return nil, fmt.Errorf("%w: %s has no route", capability.ErrUnknownCapability, req)
		}
		return r.fallback.Dispatch(ctx, req)
	}
	if rt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.timeout)
		defer cancel()
	}
	return rt.d.Dispatch(ctx, req)
}

// Close releases every connection the router opened.
func (r *Router) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// CapabilityPolicy builds the runtime policy from [policy], or nil when
// the manifest restricts nothing.
func (m *Manifest) CapabilityPolicy() *capability.Policy {
	if len(m.Policy.Allow) == 0 && len(m.Policy.Deny) == 0 {
		return nil
	}
	p := capability.NewPermissivePolicy()
	for _, id := range m.Policy.Allow {
		p.Allow(id)
	}
	for _, id := range m.Policy.Deny {
		p.Deny(id)
	}
	return p
}
