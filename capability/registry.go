package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler implements one capability version in process.
type Handler func(ctx context.Context, payload any) (any, error)

// Registry is an in-process Dispatcher. Handlers are keyed by capability
// id and version; a handler registered with an empty version serves every
// version that has no exact entry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[string]Handler)}
}

// Register adds h for capability at version.
func (r *Registry) Register(capability, version string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.handlers[capability]
	if versions == nil {
		versions = make(map[string]Handler)
		r.handlers[capability] = versions
	}
	if _, ok := versions[version]; ok {
		return fmt.Errorf("%w: %s@%s", ErrDuplicate, capability, version)
	}
	versions[version] = h
	return nil
}

// Lookup finds the handler serving capability at version.
func (r *Registry) Lookup(capability, version string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.handlers[capability]
	if h, ok := versions[version]; ok {
		return h, true
	}
	h, ok := versions[""]
	return h, ok
}

// Capabilities lists registered capability ids in sorted order.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispatch runs the matching handler.
func (r *Registry) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	h, ok := r.Lookup(req.Capability, req.Version)
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrUnknownCapability, req.Capability, req.Version)
	}
	log.Debugf("dispatch %s", req)
	out, err := h(ctx, req.Payload)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Response{Payload: out}, nil
}
