package vm

import (
	"context"
)

// ---------------------------------------------------------------------------
// Cancellation scopes
// ---------------------------------------------------------------------------

// scope wraps a cancellable context with a link to the scope it was
// derived from. The main run owns the root scope and every future owns a
// child of its spawner's scope, so cancelling any scope reaches all of its
// descendants.
type scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	parent *scope
}

func newScope(ctx context.Context) *scope {
	c, cancel := context.WithCancel(ctx)
	return &scope{ctx: c, cancel: cancel}
}

func (s *scope) child() *scope {
	c, cancel := context.WithCancel(s.ctx)
	return &scope{ctx: c, cancel: cancel, parent: s}
}

// err reports why the scope or any ancestor was cancelled.
func (s *scope) err() error {
	for sc := s; sc != nil; sc = sc.parent {
		if err := sc.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// rebind moves a root scope onto a new host context, as happens when a
// suspended run is resumed under a different context. Child scopes keep
// their contexts but still observe the root through err, and cancelling
// the root still cancels them.
func (s *scope) rebind(ctx context.Context) {
	old := s.cancel
	c, cancel := context.WithCancel(ctx)
	s.ctx = c
	s.cancel = func() {
		cancel()
		old()
	}
}
