package vm

import (
	"github.com/chazu/corvid/bytecode"
)

// Closure is a function value together with the variables it captured.
type Closure struct {
	fn     *funcInfo
	upvals []*Upvalue
}

// Name returns the function name.
func (c *Closure) Name() string { return c.fn.fn.Name }

// Upvalue is a captured variable. While open it aliases a register of a
// live frame; CLOSEUPVAL or the frame returning copies the value out.
type Upvalue struct {
	regs   []Value
	idx    int
	closed Value
	open   bool
}

func (u *Upvalue) get() Value {
	if u.open {
		return u.regs[u.idx]
	}
	return u.closed
}

func (u *Upvalue) set(v Value) {
	if u.open {
		u.regs[u.idx] = v
		return
	}
	u.closed = v
}

func (u *Upvalue) close() {
	if u.open {
		u.closed = share(u.regs[u.idx])
		u.open = false
		u.regs = nil
	}
}

// closure builds a closure over function bx, consuming the CAPTURE
// instructions that follow the CLOSURE at f.pc.
func (m *Machine) closure(f *frame, bx uint16) (*Closure, error) {
	child := m.prog.funcs[bx]
	cl := &Closure{fn: child}
	code := f.fi.fn.Code
	for f.pc < len(code) && code[f.pc].Op() == bytecode.OpCAPTURE {
		in := code[f.pc]
		f.pc++
		idx := int(in.B())
		switch in.A() {
		case 0:
			if idx >= len(f.regs) {
				return nil, faultf(FaultRegisterBounds, "capture of R%d, frame has %d registers", idx, len(f.regs))
			}
			cl.upvals = append(cl.upvals, captureRegister(f, idx))
		default:
			if f.closure == nil || idx >= len(f.closure.upvals) {
				return nil, faultf(FaultRegisterBounds, "capture of upvalue %d out of range", idx)
			}
			cl.upvals = append(cl.upvals, f.closure.upvals[idx])
		}
	}
	return cl, nil
}

// captureRegister returns the open upvalue for register idx of f,
// creating it on first capture so that every closure sees the same cell.
func captureRegister(f *frame, idx int) *Upvalue {
	for _, u := range f.open {
		if u.idx == idx {
			return u
		}
	}
	u := &Upvalue{regs: f.regs, idx: idx, open: true}
	f.open = append(f.open, u)
	return u
}

func upvalue(f *frame, b uint8) (*Upvalue, error) {
	if f.closure == nil || int(b) >= len(f.closure.upvals) {
		return nil, faultf(FaultRegisterBounds, "upvalue %d out of range", b)
	}
	return f.closure.upvals[b], nil
}

// closeUpvalues closes the open upvalues of f at register from and above.
func closeUpvalues(f *frame, from int) {
	keep := f.open[:0]
	for _, u := range f.open {
		if u.idx >= from {
			u.close()
			continue
		}
		keep = append(keep, u)
	}
	f.open = keep
}
