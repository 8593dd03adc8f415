package vm

import (
	"errors"
)

// ---------------------------------------------------------------------------
// Futures
// ---------------------------------------------------------------------------

// Future is the result of SPAWN. Futures run cooperatively on the
// machine's goroutine, each in its own fiber and cancellation scope.
type Future struct {
	id     int
	state  State
	callee Value
	args   []Value
	result Value
	fault  *Fault
	scope  *scope
}

// ID returns the future's spawn index within its run.
func (f *Future) ID() int { return f.id }

// State returns the future's current state.
func (f *Future) State() State { return f.state }

// Result returns the value a returned future produced.
func (f *Future) Result() Value { return f.result }

// Fault returns the fault of a faulted future, or nil.
func (f *Future) Fault() *Fault { return f.fault }

func (m *Machine) spawn(fib *fiber, callee Value, args []Value) (*Future, error) {
	if callee.kind != KindClosure {
		return nil, faultf(FaultType, "cannot spawn %s", callee.TypeName())
	}
	fut := &Future{
		id:     len(m.futures),
		state:  StatePending,
		callee: callee,
		args:   args,
		scope:  fib.scope.child(),
	}
	m.futures = append(m.futures, fut)
	log.Debugf("spawn future %d: %s", fut.id, callee.ref.(*Closure).Name())
	if m.opts.Scheduling == SchedFIFO {
		m.queue = append(m.queue, fut)
		return fut, nil
	}
	return fut, m.runFuture(fut)
}

// runFuture runs a pending future to completion on a fresh fiber. Faults
// are stored in the future; only an exit request escapes.
func (m *Machine) runFuture(fut *Future) error {
	if fut.state != StatePending {
		return nil
	}
	if err := fut.scope.err(); err != nil {
		fut.state, fut.fault = StateFaulted, wrapFault(FaultCancelled, err, "future %d cancelled", fut.id)
		return nil
	}
	if m.fibers >= m.opts.MaxDepth {
		fut.state, fut.fault = StateFaulted, faultf(FaultStackOverflow, "future nesting exceeds %d", m.opts.MaxDepth)
		return nil
	}
	fut.state = StateRunning
	fib := newFiber(fut.scope, fut)
	err := m.enter(fib, fut.callee, fut.args, 0)
	var v Value
	if err == nil {
		m.fibers++
		v, err = m.execute(fib)
		m.fibers--
	}
	unwind(fib)
	fut.scope.cancel()
	fut.args = nil

	var exit *ExitError
	switch {
	case err == nil:
		fut.state, fut.result = StateReturned, v
	case errors.As(err, &exit):
		fut.state, fut.fault = StateFaulted, wrapFault(FaultCancelled, err, "future %d exited", fut.id)
		return err
	default:
		fut.state, fut.fault = StateFaulted, asFault(err)
		log.Debugf("future %d faulted: %v", fut.id, fut.fault)
	}
	return nil
}

// await returns the result of the future in v, running queued futures in
// spawn order until it completes.
func (m *Machine) await(fib *fiber, v Value) (Value, error) {
	fut := v.Future()
	if fut == nil {
		return Null, faultf(FaultType, "cannot await %s", v.TypeName())
	}
	for {
		switch fut.state {
		case StateReturned:
			return fut.result, nil
		case StateFaulted:
			return Null, fut.fault
		case StateRunning, StateSuspendedAwait:
			return Null, faultf(FaultDeadlock, "future %d awaits itself", fut.id)
		}
		if len(m.queue) == 0 {
			return Null, faultf(FaultDeadlock, "future %d can never run", fut.id)
		}
		next := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		if err := m.runWaiting(fib, next); err != nil {
			return Null, err
		}
	}
}

// runWaiting runs next while fib is blocked in AWAIT.
func (m *Machine) runWaiting(fib *fiber, next *Future) error {
	if fib.future != nil {
		fib.future.state = StateSuspendedAwait
		defer func() { fib.future.state = StateRunning }()
	}
	return m.runFuture(next)
}

// cancelFuture cancels the future in v and every future spawned under it.
// A future that has not started resolves to a cancellation fault at once.
func (m *Machine) cancelFuture(v Value) error {
	fut := v.Future()
	if fut == nil {
		return faultf(FaultType, "cannot cancel %s", v.TypeName())
	}
	fut.scope.cancel()
	for _, f := range m.futures {
		if f.state == StatePending && f.scope.err() != nil {
			f.state, f.fault = StateFaulted, faultf(FaultCancelled, "future %d cancelled", f.id)
		}
	}
	log.Debugf("cancel future %d", fut.id)
	return nil
}
