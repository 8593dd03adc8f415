package bytecode

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Assembler: helper for constructing instruction vectors
// ---------------------------------------------------------------------------

// ErrJumpRange is returned when a jump displacement does not fit in sAx.
var ErrJumpRange = errors.New("jump displacement out of range")

// Assembler appends instructions and back-patches jumps to labels.
type Assembler struct {
	code []Instruction
	err  error
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{code: make([]Instruction, 0, 32)}
}

// Code returns the assembled instructions.
func (a *Assembler) Code() []Instruction {
	return a.code
}

// Len returns the number of emitted instructions.
func (a *Assembler) Len() int {
	return len(a.code)
}

// Err returns the first patching error, if any.
func (a *Assembler) Err() error {
	return a.err
}

// Emit appends a raw instruction and returns its position.
func (a *Assembler) Emit(in Instruction) int {
	a.code = append(a.code, in)
	return len(a.code) - 1
}

// ABC appends an ABC instruction.
func (a *Assembler) ABC(op Opcode, ra, rb, rc uint8) int {
	return a.Emit(EncodeABC(op, ra, rb, rc))
}

// ABx appends an ABx instruction.
func (a *Assembler) ABx(op Opcode, ra uint8, bx uint16) int {
	return a.Emit(EncodeABx(op, ra, bx))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label is a jump target that may be referenced before it is placed.
type Label struct {
	resolved bool
	position int
	refs     []int
}

// NewLabel creates an unresolved label.
func (a *Assembler) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Here returns a label resolved to the current position, for backward
// jumps.
func (a *Assembler) Here() *Label {
	return &Label{resolved: true, position: len(a.code)}
}

// Mark resolves a label to the current position and patches every jump
// already emitted against it.
func (a *Assembler) Mark(l *Label) {
	if l.resolved {
		panic("label already resolved")
	}
	l.resolved = true
	l.position = len(a.code)
	for _, ref := range l.refs {
		a.patch(ref, l.position)
	}
	l.refs = nil
}

// Jump emits a jump-family instruction targeting l. Forward references are
// emitted with a zero displacement and patched when l is marked.
func (a *Assembler) Jump(op Opcode, l *Label) int {
	pos := a.Emit(EncodeSAx(op, 0))
	if l.resolved {
		a.patch(pos, l.position)
	} else {
		l.refs = append(l.refs, pos)
	}
	return pos
}

// patch rewrites the displacement of the jump at pos so it lands on target.
// Displacements are relative to the instruction following the jump.
func (a *Assembler) patch(pos, target int) {
	off := target - (pos + 1)
	if off < MinSAx || off > MaxSAx {
		if a.err == nil {
			a.err = fmt.Errorf("%w: %d", ErrJumpRange, off)
		}
		return
	}
	a.code[pos] = EncodeSAx(a.code[pos].Op(), int32(off))
}

// JumpTarget returns the absolute target of the jump at pos.
func JumpTarget(code []Instruction, pos int) int {
	return pos + 1 + int(code[pos].SAx())
}
