package vm

// ---------------------------------------------------------------------------
// Algebraic effects
// ---------------------------------------------------------------------------

// handler is an installed handle block. clauses holds one closure per
// operation of the effect, or null where the block has no clause. depth is
// the index of the frame running the handled body: the handler belongs to
// that frame and everything above it.
type handler struct {
	effect  string
	clauses []Value
	depth   int
}

// continuation is the rest of a computation captured by PERFORM. For a
// handled effect it owns the detached frames and handlers; handler depths
// are stored relative to the bottom detached frame. A host continuation
// leaves its frames in place on the suspended fiber.
type continuation struct {
	fib      *fiber
	frames   []*frame
	handlers []*handler
	dst      uint8 // register of the performing frame receiving the resumed value
	used     bool
	host     bool
}

func (m *Machine) pushHandler(fib *fiber, f *frame, a uint8, name string) error {
	e := m.prog.effects[name]
	n := len(e.Ops)
	if int(a)+n > len(f.regs) {
		return faultf(FaultRegisterBounds, "handler for %s needs R%d..R%d", name, a, int(a)+n-1)
	}
	clauses := shareAll(f.regs[a : int(a)+n])
	for i, cl := range clauses {
		if !cl.IsNull() && cl.kind != KindClosure {
			return faultf(FaultType, "clause %s.%s is %s", name, e.Ops[i].Name, cl.TypeName())
		}
	}
	fib.handlers = append(fib.handlers, &handler{effect: name, clauses: clauses, depth: len(fib.frames)})
	return nil
}

// popHandlers drops the handlers owned by frames that are no longer on
// the fiber.
func popHandlers(fib *fiber) {
	n := len(fib.handlers)
	for n > 0 && fib.handlers[n-1].depth >= len(fib.frames) {
		fib.handlers[n-1] = nil
		n--
	}
	fib.handlers = fib.handlers[:n]
}

// perform raises Effect.op with the arguments in R[a+1..]. The innermost
// handler with a clause for the operation runs in place of the handled
// body; with no handler the main fiber suspends to the host.
func (m *Machine) perform(fib *fiber, f *frame, a uint8, name string) error {
	ref := m.prog.ops[name]
	op := ref.effect.Ops[ref.idx]
	n := len(op.Params)
	if int(a)+n >= len(f.regs) {
		return faultf(FaultRegisterBounds, "%s needs R%d..R%d", name, a+1, int(a)+n)
	}
	args := shareAll(f.regs[int(a)+1 : int(a)+1+n])

	for i := len(fib.handlers) - 1; i >= 0; i-- {
		h := fib.handlers[i]
		if h.effect != ref.effect.Name || h.clauses[ref.idx].IsNull() {
			continue
		}
		return m.handle(fib, i, h.clauses[ref.idx], args, a)
	}

	if fib.future != nil {
		return faultf(FaultUnhandledEffect, "%s performed in future %d with no handler", name, fib.future.id)
	}
	token := len(m.conts)
	m.conts = append(m.conts, &continuation{fib: fib, dst: a, host: true})
	m.pending = &EffectRequest{Effect: ref.effect.Name, Op: op.Name, Args: args, Token: token}
	return errSuspended
}

// handle detaches the frames from handler i's body upwards into a
// continuation and calls clause in their place.
func (m *Machine) handle(fib *fiber, i int, clause Value, args []Value, dst uint8) error {
	h := fib.handlers[i]
	d := h.depth
	k := &continuation{fib: fib, dst: dst}
	k.frames = append(k.frames, fib.frames[d:]...)
	for _, hh := range fib.handlers[i:] {
		k.handlers = append(k.handlers, &handler{effect: hh.effect, clauses: hh.clauses, depth: hh.depth - d})
	}
	token := len(m.conts)
	m.conts = append(m.conts, k)

	ret := fib.frames[d].ret
	for j := d; j < len(fib.frames); j++ {
		fib.frames[j] = nil
	}
	fib.frames = fib.frames[:d]
	fib.handlers = fib.handlers[:i]

	callArgs := append(args, fromContinuation(token))
	if err := m.enter(fib, clause, callArgs, ret); err != nil {
		return err
	}
	fib.top().cont = token + 1
	return nil
}

// resume reattaches continuation kv on top of the current frame. The
// handled body's eventual result lands in R[a] of the resuming frame.
func (m *Machine) resume(fib *fiber, a uint8, kv, v Value) error {
	if kv.kind != KindContinuation {
		return faultf(FaultType, "cannot resume %s", kv.TypeName())
	}
	token := kv.token()
	if token < 0 || token >= len(m.conts) {
		return faultf(FaultInternal, "unknown continuation %d", token)
	}
	k := m.conts[token]
	if k.used {
		return faultf(FaultContinuationReused, "continuation %d already resumed", token)
	}
	if k.host || k.fib != fib {
		return faultf(FaultType, "continuation %d belongs to another computation", token)
	}
	if len(fib.frames)+len(k.frames) > m.opts.MaxDepth {
		return faultf(FaultStackOverflow, "call depth exceeds %d", m.opts.MaxDepth)
	}
	k.used = true

	base := len(fib.frames)
	k.frames[0].ret = int(a)
	fib.frames = append(fib.frames, k.frames...)
	for _, h := range k.handlers {
		fib.handlers = append(fib.handlers, &handler{effect: h.effect, clauses: h.clauses, depth: h.depth + base})
	}
	fib.top().regs[k.dst] = share(v)
	k.frames, k.handlers = nil, nil
	return nil
}
