package compiler

// MaxRegisters is the register bound of a single function. Register
// operands are 8 bits wide and NumRegisters must itself fit a byte.
const MaxRegisters = 255

// regAlloc hands out registers stack-wise. Locals and temporaries share one
// stack; callers release everything above a mark when a scope or an
// expression ends, so temporaries are always freed LIFO.
type regAlloc struct {
	next int // first free register
	high int // high-water mark, becomes NumRegisters
}

// alloc reserves one register. It reports false when the bound is exceeded.
func (r *regAlloc) alloc() (uint8, bool) {
	return r.allocN(1)
}

// allocN reserves n contiguous registers and returns the first.
func (r *regAlloc) allocN(n int) (uint8, bool) {
	if r.next+n > MaxRegisters {
		return 0, false
	}
	base := r.next
	r.next += n
	if r.next > r.high {
		r.high = r.next
	}
	return uint8(base), true
}

// mark returns the current top of the register stack.
func (r *regAlloc) mark() int {
	return r.next
}

// reset releases every register at or above m.
func (r *regAlloc) reset(m int) {
	if m < r.next {
		r.next = m
	}
}
