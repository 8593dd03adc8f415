package vm

import (
	"github.com/chazu/corvid/bytecode"
)

// ---------------------------------------------------------------------------
// Frames and fibers
// ---------------------------------------------------------------------------

// frame is one activation: a function, its closure and register window.
type frame struct {
	fi      *funcInfo
	closure *Closure
	regs    []Value
	pc      int
	ret     int // caller register receiving the result; unused at the fiber base
	open    []*Upvalue

	// cont is 1 + the token handed to this frame when it runs a handler
	// clause, and 0 otherwise.
	cont int
}

// fiber is an independent call stack: the main run or one future. Each
// has its own handler stack.
type fiber struct {
	frames   []*frame
	handlers []*handler
	scope    *scope
	future   *Future
}

func newFiber(sc *scope, fut *Future) *fiber {
	return &fiber{scope: sc, future: fut}
}

func (fib *fiber) top() *frame {
	return fib.frames[len(fib.frames)-1]
}

// locate fills in the position of a fault raised while executing f.
func locate(f *frame, err error) error {
	flt, ok := err.(*Fault)
	if !ok || flt.Function != "" {
		return err
	}
	flt.Function = f.fi.fn.Name
	flt.PC = f.pc - 1
	return flt
}

// ---------------------------------------------------------------------------
// Calls and returns
// ---------------------------------------------------------------------------

// enter pushes a frame calling callee with args. args must already be
// shared.
func (m *Machine) enter(fib *fiber, callee Value, args []Value, ret int) error {
	if callee.kind != KindClosure {
		return faultf(FaultType, "cannot call %s", callee.TypeName())
	}
	if len(fib.frames) >= m.opts.MaxDepth {
		return faultf(FaultStackOverflow, "call depth exceeds %d", m.opts.MaxDepth)
	}
	cl := callee.ref.(*Closure)
	fn := cl.fn.fn
	arity := fn.Arity()
	if fn.Variadic() {
		if len(args) < arity {
			return faultf(FaultArity, "%s takes at least %d arguments, got %d", fn.Name, arity, len(args))
		}
	} else if len(args) != arity {
		return faultf(FaultArity, "%s takes %d arguments, got %d", fn.Name, arity, len(args))
	}
	regs := make([]Value, fn.NumRegisters)
	for i := 0; i < arity; i++ {
		regs[fn.Params[i].Register] = args[i]
	}
	if fn.Variadic() {
		rest := make([]Value, len(args)-arity)
		copy(rest, args[arity:])
		regs[fn.Params[arity].Register] = NewList(rest...)
	}
	fib.frames = append(fib.frames, &frame{fi: cl.fn, closure: cl, regs: regs, ret: ret})
	return nil
}

// leave pops the top frame. It closes the frame's upvalues, drops the
// handlers the frame installed and reports whether the fiber is finished.
func (m *Machine) leave(fib *fiber, v Value) (done bool, err error) {
	f := fib.top()
	closeUpvalues(f, 0)
	if f.cont != 0 && !m.conts[f.cont-1].used {
		return false, faultf(FaultContinuationAbandoned, "handler %s returned without resuming", f.fi.fn.Name)
	}
	fib.frames[len(fib.frames)-1] = nil
	fib.frames = fib.frames[:len(fib.frames)-1]
	popHandlers(fib)
	if len(fib.frames) == 0 {
		return true, nil
	}
	fib.top().regs[f.ret] = v
	return false, nil
}

// unwind discards every frame of fib, closing their upvalues.
func unwind(fib *fiber) {
	for i := len(fib.frames) - 1; i >= 0; i-- {
		closeUpvalues(fib.frames[i], 0)
	}
	fib.frames = nil
	fib.handlers = nil
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// execute runs fib until its base frame returns. It returns errSuspended
// when the main fiber performs an unhandled effect.
func (m *Machine) execute(fib *fiber) (Value, error) {
	for {
		f := fib.top()
		code := f.fi.fn.Code
		if f.pc >= len(code) {
			return Null, locate(f, faultf(FaultInternal, "fell off the end of %s", f.fi.fn.Name))
		}
		in := code[f.pc]
		f.pc++

		if int(f.fi.maxReg[f.pc-1]) >= len(f.regs) {
			return Null, locate(f, faultf(FaultRegisterBounds, "%s touches R%d, frame has %d registers",
				in, f.fi.maxReg[f.pc-1], len(f.regs)))
		}
		m.steps++
		if m.opts.MaxSteps > 0 && m.steps > m.opts.MaxSteps {
			return Null, locate(f, faultf(FaultBudgetExhausted, "instruction budget of %d exhausted", m.opts.MaxSteps))
		}
		if m.steps%cancelCheckInterval == 0 {
			if err := fib.scope.err(); err != nil {
				return Null, locate(f, wrapFault(FaultCancelled, err, "%v", err))
			}
		}

		v, done, err := m.step(fib, f, in)
		if err != nil {
			if err == errSuspended {
				return Null, err
			}
			return Null, locate(f, err)
		}
		if done {
			return v, nil
		}
	}
}

// step executes one instruction of f. done reports that the fiber's base
// frame returned v.
func (m *Machine) step(fib *fiber, f *frame, in bytecode.Instruction) (v Value, done bool, err error) {
	regs := f.regs
	a, b, c := in.A(), in.B(), in.C()

	switch op := in.Op(); op {
	case bytecode.OpNOP:

	// loads and constructors
	case bytecode.OpMOVE:
		regs[a] = share(regs[b])
	case bytecode.OpLOADK:
		regs[a] = f.fi.consts[in.Bx()]
	case bytecode.OpLOADNULL:
		regs[a] = Null
	case bytecode.OpLOADBOOL:
		regs[a] = FromBool(b != 0)
	case bytecode.OpLOADFN:
		regs[a] = Value{kind: KindClosure, ref: &Closure{fn: m.prog.funcs[in.Bx()]}}
	case bytecode.OpNEWLIST:
		regs[a] = NewList(shareAll(regs[b : int(b)+int(c)])...)
	case bytecode.OpNEWTUPLE:
		regs[a] = NewTuple(shareAll(regs[b : int(b)+int(c)])...)
	case bytecode.OpNEWSET:
		s, err := NewSet(shareAll(regs[b : int(b)+int(c)])...)
		if err != nil {
			return Null, false, err
		}
		regs[a] = s
	case bytecode.OpNEWMAP:
		s := newMapStore(int(c))
		for i := 0; i < int(c); i++ {
			k, val := regs[int(b)+2*i], regs[int(b)+2*i+1]
			if err := s.set(share(k), share(val)); err != nil {
				return Null, false, err
			}
		}
		regs[a] = Value{kind: KindMap, ref: s}
	case bytecode.OpNEWRECORD:
		shape := m.prog.records[f.fi.consts[in.Bx()].str]
		n := len(shape.fields)
		if int(a)+n >= len(regs) {
			return Null, false, faultf(FaultRegisterBounds, "record %s needs R%d..R%d", shape.name, a+1, int(a)+n)
		}
		regs[a] = Value{kind: KindRecord, ref: &Record{
			Type:   shape.name,
			names:  shape.fields,
			fields: shareAll(regs[int(a)+1 : int(a)+1+n]),
		}}
	case bytecode.OpNEWVARIANT:
		ref := m.prog.variants[f.fi.consts[in.Bx()].str]
		cs := ref.enum.Cases[ref.idx]
		n := len(cs.Payload)
		if int(a)+n >= len(regs) {
			return Null, false, faultf(FaultRegisterBounds, "variant %s.%s needs R%d..R%d", ref.enum.Name, cs.Name, a+1, int(a)+n)
		}
		regs[a] = NewVariant(ref.enum.Name, cs.Name, shareAll(regs[int(a)+1:int(a)+1+n])...)

	// fields and indexing
	case bytecode.OpGETFIELD:
		r, err := getField(regs[b], f.fi.consts[c].str)
		if err != nil {
			return Null, false, err
		}
		regs[a] = share(r)
	case bytecode.OpSETFIELD:
		if err := setField(&regs[a], f.fi.consts[b].str, share(regs[c])); err != nil {
			return Null, false, err
		}
	case bytecode.OpGETINDEX:
		r, err := getIndex(regs[b], regs[c])
		if err != nil {
			return Null, false, err
		}
		regs[a] = share(r)
	case bytecode.OpSETINDEX:
		if err := setIndex(&regs[a], regs[b], share(regs[c])); err != nil {
			return Null, false, err
		}
	case bytecode.OpSLICE:
		r, err := slice(regs[b], regs[c], regs[int(c)+1])
		if err != nil {
			return Null, false, err
		}
		regs[a] = r

	// arithmetic, bitwise and comparison
	case bytecode.OpADD, bytecode.OpSUB, bytecode.OpMUL, bytecode.OpDIV, bytecode.OpMOD, bytecode.OpPOW,
		bytecode.OpBAND, bytecode.OpBOR, bytecode.OpBXOR, bytecode.OpSHL, bytecode.OpSHR, bytecode.OpCONCAT:
		r, err := binaryOp(op, regs[b], regs[c])
		if err != nil {
			return Null, false, err
		}
		regs[a] = r
	case bytecode.OpNEG:
		r, err := negate(regs[b])
		if err != nil {
			return Null, false, err
		}
		regs[a] = r
	case bytecode.OpBNOT:
		r, err := complement(regs[b])
		if err != nil {
			return Null, false, err
		}
		regs[a] = r
	case bytecode.OpNOT:
		regs[a] = FromBool(!regs[b].Truthy())
	case bytecode.OpEQ:
		regs[a] = FromBool(Equal(regs[b], regs[c]))
	case bytecode.OpNE:
		regs[a] = FromBool(!Equal(regs[b], regs[c]))
	case bytecode.OpLT, bytecode.OpLE, bytecode.OpGT, bytecode.OpGE:
		cmp, ordered, err := compare(regs[b], regs[c])
		if err != nil {
			return Null, false, err
		}
		var r bool
		if ordered {
			switch op {
			case bytecode.OpLT:
				r = cmp < 0
			case bytecode.OpLE:
				r = cmp <= 0
			case bytecode.OpGT:
				r = cmp > 0
			default:
				r = cmp >= 0
			}
		}
		regs[a] = FromBool(r)
	case bytecode.OpIN:
		r, err := contains(regs[c], regs[b])
		if err != nil {
			return Null, false, err
		}
		regs[a] = FromBool(r)

	// control flow
	case bytecode.OpJMP, bytecode.OpBREAK, bytecode.OpCONTINUE, bytecode.OpLOOP:
		f.pc += int(in.SAx())
	case bytecode.OpTEST:
		if regs[a].Truthy() == (c != 0) {
			f.pc++
		}
	case bytecode.OpCALL:
		args := shareAll(regs[int(b)+1 : int(b)+1+int(c)])
		if err := m.enter(fib, regs[b], args, int(a)); err != nil {
			return Null, false, err
		}
	case bytecode.OpTAILCALL:
		callee := regs[b]
		args := shareAll(regs[int(b)+1 : int(b)+1+int(c)])
		closeUpvalues(f, 0)
		fib.frames = fib.frames[:len(fib.frames)-1]
		popHandlers(fib)
		if err := m.enter(fib, callee, args, f.ret); err != nil {
			fib.frames = append(fib.frames, f)
			return Null, false, err
		}
		// a handler clause hands its obligation to resume to the callee
		fib.top().cont = f.cont
	case bytecode.OpRETURN:
		r := regs[a]
		done, err := m.leave(fib, r)
		return r, done, err
	case bytecode.OpRETNULL:
		done, err := m.leave(fib, Null)
		return Null, done, err
	case bytecode.OpHALT:
		r := regs[a]
		unwind(fib)
		return r, true, nil

	case bytecode.OpINTRINSIC:
		r, err := m.intrinsic(fib, b, regs[int(a)+1:int(a)+1+int(c)])
		if err != nil {
			return Null, false, err
		}
		regs[a] = share(r)

	// closures
	case bytecode.OpCLOSURE:
		cl, err := m.closure(f, in.Bx())
		if err != nil {
			return Null, false, err
		}
		regs[a] = Value{kind: KindClosure, ref: cl}
	case bytecode.OpCAPTURE:
		return Null, false, faultf(FaultInternal, "CAPTURE outside a closure")
	case bytecode.OpGETUPVAL:
		u, err := upvalue(f, b)
		if err != nil {
			return Null, false, err
		}
		regs[a] = share(u.get())
	case bytecode.OpSETUPVAL:
		u, err := upvalue(f, b)
		if err != nil {
			return Null, false, err
		}
		u.set(share(regs[a]))
	case bytecode.OpCLOSEUPVAL:
		closeUpvalues(f, int(a))

	// effects
	case bytecode.OpHANDLERPUSH:
		if err := m.pushHandler(fib, f, a, f.fi.consts[in.Bx()].str); err != nil {
			return Null, false, err
		}
	case bytecode.OpHANDLERPOP:
		popHandlers(fib)
	case bytecode.OpPERFORM:
		if err := m.perform(fib, f, a, f.fi.consts[in.Bx()].str); err != nil {
			return Null, false, err
		}
	case bytecode.OpRESUME:
		if err := m.resume(fib, a, regs[b], regs[c]); err != nil {
			return Null, false, err
		}

	// futures
	case bytecode.OpSPAWN:
		fut, err := m.spawn(fib, regs[b], shareAll(regs[int(b)+1:int(b)+1+int(c)]))
		if err != nil {
			return Null, false, err
		}
		regs[a] = Value{kind: KindFuture, ref: fut}
	case bytecode.OpAWAIT:
		r, err := m.await(fib, regs[b])
		if err != nil {
			return Null, false, err
		}
		regs[a] = share(r)
	case bytecode.OpCANCEL:
		if err := m.cancelFuture(regs[a]); err != nil {
			return Null, false, err
		}

	// capabilities and tracing
	case bytecode.OpTOOLCALL:
		r, err := m.toolCall(fib, in.Bx(), regs[int(a)+1], regs[int(a)+2])
		if err != nil {
			return Null, false, err
		}
		regs[a] = r
	case bytecode.OpSCHEMACHECK:
		if err := m.schemaCheck(in.Bx(), regs[a]); err != nil {
			return Null, false, err
		}
	case bytecode.OpTRACE:
		r, err := m.trace(f.fi.consts[in.Bx()].str, regs[a])
		if err != nil {
			return Null, false, err
		}
		regs[a] = r

	case bytecode.OpAPPEND:
		if regs[a].kind != KindList {
			return Null, false, faultf(FaultType, "cannot append to %s", regs[a].TypeName())
		}
		l := regs[a].mutableList()
		l.items = append(l.items, share(regs[b]))

	// variants
	case bytecode.OpISTAG:
		vr := regs[b].Variant()
		regs[a] = FromBool(vr != nil && vr.Tag() == f.fi.consts[c].str)
	case bytecode.OpPAYLOAD:
		vr := regs[b].Variant()
		if vr == nil {
			return Null, false, faultf(FaultType, "payload of %s", regs[b].TypeName())
		}
		if int(c) >= len(vr.Payload) {
			return Null, false, faultf(FaultIndex, "%s has no payload %d", vr.Tag(), c)
		}
		regs[a] = share(vr.Payload[c])

	default:
		return Null, false, faultf(FaultInternal, "unhandled opcode %s", op)
	}
	return Null, false, nil
}
