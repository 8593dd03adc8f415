package vm

import (
	"context"
	"errors"
	"time"

	"github.com/chazu/corvid/bytecode"
	"github.com/chazu/corvid/capability"
	"github.com/chazu/corvid/trace"
)

// ---------------------------------------------------------------------------
// Capability boundary and trace points
// ---------------------------------------------------------------------------

// record stamps e with the run id and hands it to the trace sink, if any.
func (m *Machine) record(ctx context.Context, e trace.Event) error {
	if m.opts.Trace == nil {
		return nil
	}
	if err := m.opts.Trace.Record(ctx, trace.Stamp(m.runID, e)); err != nil {
		return wrapFault(FaultInternal, err, "trace sink: %v", err)
	}
	return nil
}

// toolTimeout picks the call timeout: the explicit argument in ms, then
// the tool's declared timeout, then the machine default.
func (m *Machine) toolTimeout(tool *bytecode.Tool, arg Value) (time.Duration, error) {
	switch {
	case arg.kind == KindInt:
		if arg.Int() <= 0 {
			return 0, faultf(FaultType, "tool timeout must be positive, got %d", arg.Int())
		}
		return time.Duration(arg.Int()) * time.Millisecond, nil
	case !arg.IsNull():
		return 0, faultf(FaultType, "tool timeout must be an int, got %s", arg.TypeName())
	case tool.TimeoutMillis > 0:
		return time.Duration(tool.TimeoutMillis) * time.Millisecond, nil
	}
	return m.opts.CapabilityTimeout, nil
}

// toolCall implements TOOLCALL: one request to the dispatcher under a
// timeout, with request and outcome recorded under a shared sequence id.
func (m *Machine) toolCall(fib *fiber, idx uint16, reqv, timeoutv Value) (Value, error) {
	tool := &m.prog.Module.Tools[idx]
	if m.opts.Profile == ProfileDeterministic && m.opts.Trace == nil {
		return Null, faultf(FaultNondeterministic, "tool %s called without a trace sink", tool.Alias)
	}
	if err := m.opts.Policy.Check(tool.Capability); err != nil {
		return Null, wrapFault(FaultCapability, err, "%v", err)
	}
	if m.opts.Dispatcher == nil {
		return Null, faultf(FaultCapability, "no dispatcher for %s", tool.Capability)
	}
	payload, err := ToHost(reqv)
	if err != nil {
		return Null, err
	}
	timeout, err := m.toolTimeout(tool, timeoutv)
	if err != nil {
		return Null, err
	}

	m.seq++
	req := &capability.Request{
		Seq:        m.seq,
		Alias:      tool.Alias,
		Capability: tool.Capability,
		Version:    tool.Version,
		Payload:    payload,
	}
	ctx := fib.scope.ctx
	if err := m.record(ctx, trace.Event{Seq: req.Seq, Kind: trace.KindToolRequest, Label: tool.Alias, Payload: payload}); err != nil {
		return Null, err
	}
	log.Debugf("tool call %s timeout %s", req, timeout)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := m.opts.Dispatcher.Dispatch(callCtx, req)
	cancel()
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded)
		if rerr := m.record(ctx, trace.Event{Seq: req.Seq, Kind: trace.KindToolError, Label: tool.Alias,
			Payload: trace.ErrorPayload(err, timedOut)}); rerr != nil {
			return Null, rerr
		}
		switch {
		case fib.scope.err() != nil:
			return Null, wrapFault(FaultCancelled, err, "tool %s cancelled", tool.Alias)
		case timedOut:
			return Null, wrapFault(FaultCapabilityTimeout, err, "tool %s timed out after %s", tool.Alias, timeout)
		}
		return Null, wrapFault(FaultCapability, err, "tool %s: %v", tool.Alias, err)
	}
	var out any
	if resp != nil {
		out = resp.Payload
	}
	if err := m.record(ctx, trace.Event{Seq: req.Seq, Kind: trace.KindToolResult, Label: tool.Alias, Payload: out}); err != nil {
		return Null, err
	}
	return FromHost(out)
}

// schemaCheck implements SCHEMACHECK against the tool's CUE schema.
func (m *Machine) schemaCheck(idx uint16, v Value) error {
	tool := &m.prog.Module.Tools[idx]
	if tool.Schema == "" {
		return nil
	}
	hv, err := ToHost(v)
	if err != nil {
		return err
	}
	if err := m.opts.Validator.Validate(tool.Schema, hv); err != nil {
		return wrapFault(FaultSchema, err, "tool %s result: %v", tool.Alias, err)
	}
	return nil
}

// trace implements TRACE: the value is recorded and replaced by a
// reference to the event.
func (m *Machine) trace(label string, v Value) (Value, error) {
	m.seq++
	seq := m.seq
	if m.opts.Trace != nil {
		payload, err := ToHost(v)
		if err != nil {
			return Null, err
		}
		if err := m.record(m.ctx, trace.Event{Seq: seq, Kind: trace.KindTrace, Label: label, Payload: payload}); err != nil {
			return Null, err
		}
	}
	return Value{kind: KindTraceRef, ref: &TraceRef{Seq: seq, Label: label, Value: share(v)}}, nil
}
