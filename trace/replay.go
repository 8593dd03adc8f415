package trace

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/corvid/capability"
)

var (
	ErrReplayMissing  = errors.New("replay: no recorded result")
	ErrReplayMismatch = errors.New("replay: request does not match recording")
)

// Replayer answers capability requests from recorded events instead of
// reaching the real tools. Requests are matched by sequence id, so a
// replay must issue calls in the recorded order.
type Replayer struct {
	requests map[uint64]Event
	results  map[uint64]Event
}

// NewReplayer indexes the tool events among events.
func NewReplayer(events []Event) *Replayer {
	r := &Replayer{requests: make(map[uint64]Event), results: make(map[uint64]Event)}
	for _, e := range events {
		switch e.Kind {
		case KindToolRequest:
			r.requests[e.Seq] = e
		case KindToolResult, KindToolError:
			r.results[e.Seq] = e
		}
	}
	return r
}

// Dispatch implements capability.Dispatcher.
func (r *Replayer) Dispatch(ctx context.Context, req *capability.Request) (*capability.Response, error) {
	if want, ok := r.requests[req.Seq]; ok && want.Label != req.Alias {
		return nil, fmt.Errorf("%w: call %d is %s, recorded %s", ErrReplayMismatch, req.Seq, req.Alias, want.Label)
	}
	res, ok := r.results[req.Seq]
	if !ok {
		return nil, fmt.Errorf("%w for call %d (%s)", ErrReplayMissing, req.Seq, req.Alias)
	}
	log.Debugf("replaying %s", res)
	if res.Kind == KindToolError {
		return nil, ErrorFromPayload(res.Payload)
	}
	return &capability.Response{Payload: res.Payload}, nil
}

// ErrorPayload encodes a dispatch error for a tool.error event.
func ErrorPayload(err error, timeout bool) map[string]any {
	return map[string]any{"message": err.Error(), "timeout": timeout}
}

// ErrorFromPayload rebuilds the error recorded by ErrorPayload. Timeouts
// wrap context.DeadlineExceeded so they classify the same way on replay.
func ErrorFromPayload(p any) error {
	m, _ := p.(map[string]any)
	msg, _ := m["message"].(string)
	if timeout, _ := m["timeout"].(bool); timeout {
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, msg)
	}
	return errors.New(msg)
}
