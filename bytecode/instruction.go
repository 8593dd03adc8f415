package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Instruction word
// ---------------------------------------------------------------------------

// Instruction is one fixed-width 32-bit instruction word. The low byte holds
// the opcode; the remaining 24 bits are split according to the opcode's
// Layout.
//
//	ABC:  op[0:8]  A[8:16]  B[16:24]  C[24:32]
//	ABx:  op[0:8]  A[8:16]  Bx[16:32]
//	Ax:   op[0:8]  Ax[8:32]            (unsigned)
//	sAx:  op[0:8]  sAx[8:32]           (two's complement, 24 bits)
type Instruction uint32

// Bounds of the 24-bit operand forms.
const (
	MaxAx  = 1<<24 - 1
	MaxSAx = 1<<23 - 1
	MinSAx = -(1 << 23)
	MaxBx  = 1<<16 - 1

	saxBias = 1 << 24
	saxSign = 1 << 23
	ax24    = 1<<24 - 1
)

// EncodeABC packs an opcode and three 8-bit operands.
func EncodeABC(op Opcode, a, b, c uint8) Instruction {
	return Instruction(uint32(op) | uint32(a)<<8 | uint32(b)<<16 | uint32(c)<<24)
}

// DecodeABC unpacks the three 8-bit operands.
func DecodeABC(in Instruction) (op Opcode, a, b, c uint8) {
	return in.Op(), in.A(), in.B(), in.C()
}

// EncodeABx packs an opcode, an 8-bit operand and a 16-bit unsigned operand.
func EncodeABx(op Opcode, a uint8, bx uint16) Instruction {
	return Instruction(uint32(op) | uint32(a)<<8 | uint32(bx)<<16)
}

// DecodeABx unpacks the 8-bit and 16-bit operands.
func DecodeABx(in Instruction) (op Opcode, a uint8, bx uint16) {
	return in.Op(), in.A(), in.Bx()
}

// EncodeAx packs an opcode and an unsigned 24-bit operand. Values above
// MaxAx are truncated to 24 bits.
func EncodeAx(op Opcode, ax uint32) Instruction {
	return Instruction(uint32(op) | (ax&ax24)<<8)
}

// DecodeAx unpacks the unsigned 24-bit operand.
func DecodeAx(in Instruction) (op Opcode, ax uint32) {
	return in.Op(), in.Ax()
}

// EncodeSAx packs an opcode and a signed 24-bit operand. Negative values are
// stored biased by 2^24. Callers keep offsets within [MinSAx, MaxSAx].
func EncodeSAx(op Opcode, sax int32) Instruction {
	v := sax
	if v < 0 {
		v += saxBias
	}
	return Instruction(uint32(op) | (uint32(v)&ax24)<<8)
}

// DecodeSAx unpacks the signed 24-bit operand.
func DecodeSAx(in Instruction) (op Opcode, sax int32) {
	return in.Op(), in.SAx()
}

// Op returns the opcode byte.
func (in Instruction) Op() Opcode { return Opcode(in & 0xFF) }

// A returns bits 8-15.
func (in Instruction) A() uint8 { return uint8(in >> 8) }

// B returns bits 16-23.
func (in Instruction) B() uint8 { return uint8(in >> 16) }

// C returns bits 24-31.
func (in Instruction) C() uint8 { return uint8(in >> 24) }

// Bx returns bits 16-31 as an unsigned value.
func (in Instruction) Bx() uint16 { return uint16(in >> 16) }

// Ax returns bits 8-31 as an unsigned value.
func (in Instruction) Ax() uint32 { return uint32(in>>8) & ax24 }

// SAx returns bits 8-31 as a signed value.
func (in Instruction) SAx() int32 {
	v := int32(in.Ax())
	if v&saxSign != 0 {
		v -= saxBias
	}
	return v
}

// String renders the instruction using its opcode's layout.
func (in Instruction) String() string {
	op := in.Op()
	switch op.Info().Layout {
	case LayoutABx:
		return fmt.Sprintf("%s %d %d", op.Name(), in.A(), in.Bx())
	case LayoutAx:
		return fmt.Sprintf("%s %d", op.Name(), in.Ax())
	case LayoutSAx:
		return fmt.Sprintf("%s %+d", op.Name(), in.SAx())
	default:
		return fmt.Sprintf("%s %d %d %d", op.Name(), in.A(), in.B(), in.C())
	}
}
