package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies an instruction. Numbering is frozen: codes are grouped
// by family in the high nibble and are never reused.
type Opcode byte

// Misc
const (
	OpNOP Opcode = 0x00 // no operation
)

// Loads and constructors
const (
	OpMOVE       Opcode = 0x10 // R[A] = R[B]
	OpLOADK      Opcode = 0x11 // R[A] = K[Bx]
	OpLOADNULL   Opcode = 0x12 // R[A] = null
	OpLOADBOOL   Opcode = 0x13 // R[A] = B != 0
	OpLOADFN     Opcode = 0x14 // R[A] = function Bx (no upvalues)
	OpNEWLIST    Opcode = 0x15 // R[A] = [R[B] .. R[B+C-1]]
	OpNEWMAP     Opcode = 0x16 // R[A] = {R[B]: R[B+1], ...} with C pairs
	OpNEWSET     Opcode = 0x17 // R[A] = #{R[B] .. R[B+C-1]}
	OpNEWTUPLE   Opcode = 0x18 // R[A] = (R[B] .. R[B+C-1])
	OpNEWRECORD  Opcode = 0x19 // R[A] = record K[Bx] with fields R[A+1..]
	OpNEWVARIANT Opcode = 0x1A // R[A] = variant K[Bx] ("Enum.Case") with payload R[A+1..]
)

// Field and index access
const (
	OpGETFIELD Opcode = 0x20 // R[A] = R[B].K[C]
	OpSETFIELD Opcode = 0x21 // R[A].K[B] = R[C]
	OpGETINDEX Opcode = 0x22 // R[A] = R[B][R[C]]
	OpSETINDEX Opcode = 0x23 // R[A][R[B]] = R[C]
	OpSLICE    Opcode = 0x24 // R[A] = R[B][R[C]:R[C+1]]
)

// Arithmetic and bitwise
const (
	OpADD    Opcode = 0x30
	OpSUB    Opcode = 0x31
	OpMUL    Opcode = 0x32
	OpDIV    Opcode = 0x33
	OpMOD    Opcode = 0x34
	OpPOW    Opcode = 0x35
	OpNEG    Opcode = 0x36 // R[A] = -R[B]
	OpBAND   Opcode = 0x37
	OpBOR    Opcode = 0x38
	OpBXOR   Opcode = 0x39
	OpBNOT   Opcode = 0x3A // R[A] = ^R[B]
	OpSHL    Opcode = 0x3B
	OpSHR    Opcode = 0x3C
	OpCONCAT Opcode = 0x3D // strings and lists
)

// Comparison and logic
const (
	OpEQ  Opcode = 0x40
	OpNE  Opcode = 0x41
	OpLT  Opcode = 0x42
	OpLE  Opcode = 0x43
	OpGT  Opcode = 0x44
	OpGE  Opcode = 0x45
	OpNOT Opcode = 0x46 // R[A] = !truthy(R[B])
	OpIN  Opcode = 0x47 // R[A] = R[B] in R[C]
)

// Control flow. Jump-family opcodes use the signed sAx layout; the offset
// is relative to the instruction after the jump.
const (
	OpJMP      Opcode = 0x50
	OpBREAK    Opcode = 0x51
	OpCONTINUE Opcode = 0x52
	OpLOOP     Opcode = 0x53 // backward edge
	OpTEST     Opcode = 0x54 // if truthy(R[A]) == (C != 0) skip next instruction
	OpCALL     Opcode = 0x55 // R[A] = R[B](R[B+1] .. R[B+C])
	OpTAILCALL Opcode = 0x56
	OpRETURN   Opcode = 0x57 // return R[A]
	OpRETNULL  Opcode = 0x58
	OpHALT     Opcode = 0x59 // stop the machine with R[A]
)

// Intrinsics
const (
	OpINTRINSIC Opcode = 0x60 // R[A] = intrinsic B (R[A+1] .. R[A+C])
)

// Closures and upvalues
const (
	OpCLOSURE    Opcode = 0x70 // R[A] = closure of function Bx; CAPTUREs follow
	OpCAPTURE    Opcode = 0x71 // pseudo-instruction: A = kind, B = index
	OpGETUPVAL   Opcode = 0x72 // R[A] = U[B]
	OpSETUPVAL   Opcode = 0x73 // U[B] = R[A]
	OpCLOSEUPVAL Opcode = 0x74 // close open upvalues for registers >= A
)

// Effects, futures, capabilities and tracing
const (
	OpHANDLERPUSH Opcode = 0x80 // install handler for effect K[Bx]; clauses R[A..]
	OpHANDLERPOP  Opcode = 0x81
	OpPERFORM     Opcode = 0x82 // R[A] = perform K[Bx] ("Effect.op") with R[A+1..]
	OpRESUME      Opcode = 0x83 // R[A] = resume continuation R[B] with R[C]
	OpSPAWN       Opcode = 0x84 // R[A] = future of R[B](R[B+1] .. R[B+C])
	OpAWAIT       Opcode = 0x85 // R[A] = await R[B]
	OpCANCEL      Opcode = 0x86 // cancel future R[A]
	OpTOOLCALL    Opcode = 0x87 // R[A] = tool Bx (request R[A+1], timeout R[A+2])
	OpSCHEMACHECK Opcode = 0x88 // validate R[A] against the schema of tool Bx
	OpTRACE       Opcode = 0x89 // record R[A] under label K[Bx]; R[A] = trace ref
)

// Lists
const (
	OpAPPEND Opcode = 0x90 // R[A] = append(R[A], R[B])
)

// Variants
const (
	OpISTAG   Opcode = 0xA0 // R[A] = R[B] is variant K[C]
	OpPAYLOAD Opcode = 0xA1 // R[A] = payload(R[B])[C]
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// Layout is the operand format of an instruction word.
type Layout uint8

const (
	LayoutABC Layout = iota
	LayoutABx
	LayoutAx
	LayoutSAx
)

func (l Layout) String() string {
	switch l {
	case LayoutABC:
		return "ABC"
	case LayoutABx:
		return "ABx"
	case LayoutAx:
		return "Ax"
	case LayoutSAx:
		return "sAx"
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// Operand describes what an operand field refers to.
type Operand uint8

const (
	OperandUnused    Operand = iota
	OperandReg               // register index
	OperandConst             // constant pool index
	OperandFunc              // function table index
	OperandTool              // tool table index
	OperandIntrinsic         // intrinsic id
	OperandInt               // literal integer (count, flag, position)
	OperandJump              // signed jump displacement
)

// Window names a contiguous register range an instruction reads beyond its
// plain register operands. Ranges that depend on the type or effect tables
// are checked by the machine when it executes the instruction.
type Window uint8

const (
	WindowNone  Window = iota
	WindowBC           // R[B] .. R[B+C-1]
	WindowBPair        // R[B] .. R[B+2C-1]
	WindowCall         // R[B] .. R[B+C]
	WindowArgs         // R[A] .. R[A+C]
	WindowSlice        // R[C] .. R[C+1]
	WindowTool         // R[A] .. R[A+2]
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string
	Layout  Layout
	A, B, C Operand // for ABx, B describes Bx; for Ax/sAx, A describes the operand
	Window  Window
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP: {"NOP", LayoutABC, OperandUnused, OperandUnused, OperandUnused, WindowNone},

	OpMOVE:       {"MOVE", LayoutABC, OperandReg, OperandReg, OperandUnused, WindowNone},
	OpLOADK:      {"LOADK", LayoutABx, OperandReg, OperandConst, OperandUnused, WindowNone},
	OpLOADNULL:   {"LOADNULL", LayoutABC, OperandReg, OperandUnused, OperandUnused, WindowNone},
	OpLOADBOOL:   {"LOADBOOL", LayoutABC, OperandReg, OperandInt, OperandUnused, WindowNone},
	OpLOADFN:     {"LOADFN", LayoutABx, OperandReg, OperandFunc, OperandUnused, WindowNone},
	OpNEWLIST:    {"NEWLIST", LayoutABC, OperandReg, OperandReg, OperandInt, WindowBC},
	OpNEWMAP:     {"NEWMAP", LayoutABC, OperandReg, OperandReg, OperandInt, WindowBPair},
	OpNEWSET:     {"NEWSET", LayoutABC, OperandReg, OperandReg, OperandInt, WindowBC},
	OpNEWTUPLE:   {"NEWTUPLE", LayoutABC, OperandReg, OperandReg, OperandInt, WindowBC},
	OpNEWRECORD:  {"NEWRECORD", LayoutABx, OperandReg, OperandConst, OperandUnused, WindowNone},
	OpNEWVARIANT: {"NEWVARIANT", LayoutABx, OperandReg, OperandConst, OperandUnused, WindowNone},

	OpGETFIELD: {"GETFIELD", LayoutABC, OperandReg, OperandReg, OperandConst, WindowNone},
	OpSETFIELD: {"SETFIELD", LayoutABC, OperandReg, OperandConst, OperandReg, WindowNone},
	OpGETINDEX: {"GETINDEX", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpSETINDEX: {"SETINDEX", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpSLICE:    {"SLICE", LayoutABC, OperandReg, OperandReg, OperandReg, WindowSlice},

	OpADD:    {"ADD", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpSUB:    {"SUB", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpMUL:    {"MUL", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpDIV:    {"DIV", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpMOD:    {"MOD", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpPOW:    {"POW", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpNEG:    {"NEG", LayoutABC, OperandReg, OperandReg, OperandUnused, WindowNone},
	OpBAND:   {"BAND", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpBOR:    {"BOR", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpBXOR:   {"BXOR", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpBNOT:   {"BNOT", LayoutABC, OperandReg, OperandReg, OperandUnused, WindowNone},
	OpSHL:    {"SHL", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpSHR:    {"SHR", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpCONCAT: {"CONCAT", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},

	OpEQ:  {"EQ", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpNE:  {"NE", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpLT:  {"LT", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpLE:  {"LE", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpGT:  {"GT", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpGE:  {"GE", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpNOT: {"NOT", LayoutABC, OperandReg, OperandReg, OperandUnused, WindowNone},
	OpIN:  {"IN", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},

	OpJMP:      {"JMP", LayoutSAx, OperandJump, OperandUnused, OperandUnused, WindowNone},
	OpBREAK:    {"BREAK", LayoutSAx, OperandJump, OperandUnused, OperandUnused, WindowNone},
	OpCONTINUE: {"CONTINUE", LayoutSAx, OperandJump, OperandUnused, OperandUnused, WindowNone},
	OpLOOP:     {"LOOP", LayoutSAx, OperandJump, OperandUnused, OperandUnused, WindowNone},
	OpTEST:     {"TEST", LayoutABC, OperandReg, OperandUnused, OperandInt, WindowNone},
	OpCALL:     {"CALL", LayoutABC, OperandReg, OperandReg, OperandInt, WindowCall},
	OpTAILCALL: {"TAILCALL", LayoutABC, OperandReg, OperandReg, OperandInt, WindowCall},
	OpRETURN:   {"RETURN", LayoutABC, OperandReg, OperandUnused, OperandUnused, WindowNone},
	OpRETNULL:  {"RETNULL", LayoutABC, OperandUnused, OperandUnused, OperandUnused, WindowNone},
	OpHALT:     {"HALT", LayoutABC, OperandReg, OperandUnused, OperandUnused, WindowNone},

	OpINTRINSIC: {"INTRINSIC", LayoutABC, OperandReg, OperandIntrinsic, OperandInt, WindowArgs},

	OpCLOSURE:    {"CLOSURE", LayoutABx, OperandReg, OperandFunc, OperandUnused, WindowNone},
	OpCAPTURE:    {"CAPTURE", LayoutABC, OperandInt, OperandInt, OperandUnused, WindowNone},
	OpGETUPVAL:   {"GETUPVAL", LayoutABC, OperandReg, OperandInt, OperandUnused, WindowNone},
	OpSETUPVAL:   {"SETUPVAL", LayoutABC, OperandReg, OperandInt, OperandUnused, WindowNone},
	OpCLOSEUPVAL: {"CLOSEUPVAL", LayoutABC, OperandInt, OperandUnused, OperandUnused, WindowNone},

	OpHANDLERPUSH: {"HANDLERPUSH", LayoutABx, OperandReg, OperandConst, OperandUnused, WindowNone},
	OpHANDLERPOP:  {"HANDLERPOP", LayoutABC, OperandUnused, OperandUnused, OperandUnused, WindowNone},
	OpPERFORM:     {"PERFORM", LayoutABx, OperandReg, OperandConst, OperandUnused, WindowNone},
	OpRESUME:      {"RESUME", LayoutABC, OperandReg, OperandReg, OperandReg, WindowNone},
	OpSPAWN:       {"SPAWN", LayoutABC, OperandReg, OperandReg, OperandInt, WindowCall},
	OpAWAIT:       {"AWAIT", LayoutABC, OperandReg, OperandReg, OperandUnused, WindowNone},
	OpCANCEL:      {"CANCEL", LayoutABC, OperandReg, OperandUnused, OperandUnused, WindowNone},
	OpTOOLCALL:    {"TOOLCALL", LayoutABx, OperandReg, OperandTool, OperandUnused, WindowTool},
	OpSCHEMACHECK: {"SCHEMACHECK", LayoutABx, OperandReg, OperandTool, OperandUnused, WindowNone},
	OpTRACE:       {"TRACE", LayoutABx, OperandReg, OperandConst, OperandUnused, WindowNone},

	OpAPPEND: {"APPEND", LayoutABC, OperandReg, OperandReg, OperandUnused, WindowNone},

	OpISTAG:   {"ISTAG", LayoutABC, OperandReg, OperandReg, OperandConst, WindowNone},
	OpPAYLOAD: {"PAYLOAD", LayoutABC, OperandReg, OperandReg, OperandInt, WindowNone},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// IsJump reports whether op belongs to the jump family.
func (op Opcode) IsJump() bool {
	return op.Info().Layout == LayoutSAx
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// Opcodes returns every defined opcode in numeric order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeTable))
	for i := 0; i < 256; i++ {
		if Opcode(i).Valid() {
			ops = append(ops, Opcode(i))
		}
	}
	return ops
}

// MaxRegister returns the highest register index the instruction reads or
// writes through its static operands and window, or -1 when it touches no
// register. The machine compares this against the frame's register count
// before executing the instruction.
func MaxRegister(in Instruction) int {
	info := in.Op().Info()
	hi := -1
	bump := func(r int) {
		if r > hi {
			hi = r
		}
	}
	a, b, c := int(in.A()), int(in.B()), int(in.C())
	switch info.Layout {
	case LayoutABC:
		if info.A == OperandReg {
			bump(a)
		}
		// A window base is only read through the window.
		if info.B == OperandReg && info.Window != WindowBC && info.Window != WindowBPair {
			bump(b)
		}
		if info.C == OperandReg {
			bump(c)
		}
	case LayoutABx:
		if info.A == OperandReg {
			bump(a)
		}
	}
	switch info.Window {
	case WindowBC:
		if c > 0 {
			bump(b + c - 1)
		}
	case WindowBPair:
		if c > 0 {
			bump(b + 2*c - 1)
		}
	case WindowCall:
		bump(b + c)
	case WindowArgs:
		bump(a + c)
	case WindowSlice:
		bump(c + 1)
	case WindowTool:
		bump(a + 2)
	}
	return hi
}
