// Package capability is the boundary between the machine and external
// tools. The machine sends a Request for every TOOLCALL to a Dispatcher;
// policies gate which capabilities may be reached and validators check
// results against the tool's declared schema.
package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("corvid.capability")

var (
	ErrUnknownCapability = errors.New("unknown capability")
	ErrDuplicate         = errors.New("capability already registered")
	ErrDenied            = errors.New("capability denied")
	ErrSchema            = errors.New("schema violation")
)

// Request is one call across the boundary. Seq is the machine's stable
// per-call sequence id; the same id tags the trace events of the call.
type Request struct {
	Seq        uint64
	Alias      string
	Capability string
	Version    string
	Payload    any
}

func (r *Request) String() string {
	if r.Version == "" {
		return fmt.Sprintf("#%d %s (%s)", r.Seq, r.Capability, r.Alias)
	}
	return fmt.Sprintf("#%d %s@%s (%s)", r.Seq, r.Capability, r.Version, r.Alias)
}

// Response carries a tool result. Payload holds plain Go data: nil, bool,
// integers, float64, string, []any and map[string]any.
type Response struct {
	Payload any
}

// Dispatcher delivers requests to tool implementations. Implementations
// must honor ctx cancellation; the machine applies the call timeout
// through ctx.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *Request) (*Response, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Validator checks a result against a schema source.
type Validator interface {
	Validate(schema string, value any) error
}

// Gate wraps d so that requests for capabilities the policy rejects fail
// with ErrDenied before reaching d.
func Gate(p *Policy, d Dispatcher) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if err := p.Check(req.Capability); err != nil {
			log.Infof("denied %s", req)
			return nil, err
		}
		return d.Dispatch(ctx, req)
	})
}
