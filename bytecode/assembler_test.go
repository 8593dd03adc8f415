package bytecode

import (
	"errors"
	"strings"
	"testing"
)

func TestAssemblerForwardJump(t *testing.T) {
	a := NewAssembler()
	end := a.NewLabel()
	a.ABC(OpTEST, 0, 0, 1)
	j := a.Jump(OpJMP, end)
	a.ABC(OpLOADNULL, 1, 0, 0)
	a.ABC(OpLOADNULL, 2, 0, 0)
	a.Mark(end)
	a.ABC(OpRETURN, 1, 0, 0)

	if err := a.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}
	code := a.Code()
	if got := code[j].SAx(); got != 2 {
		t.Errorf("forward displacement = %d, want 2", got)
	}
	if JumpTarget(code, j) != 4 {
		t.Errorf("JumpTarget = %d, want 4", JumpTarget(code, j))
	}
}

func TestAssemblerBackwardJump(t *testing.T) {
	a := NewAssembler()
	top := a.Here()
	a.ABC(OpADD, 0, 0, 1)
	a.ABC(OpLT, 2, 0, 3)
	j := a.Jump(OpLOOP, top)
	code := a.Code()
	if got := code[j].SAx(); got != -3 {
		t.Errorf("backward displacement = %d, want -3", got)
	}
	if JumpTarget(code, j) != 0 {
		t.Errorf("JumpTarget = %d, want 0", JumpTarget(code, j))
	}
}

func TestAssemblerMultipleRefs(t *testing.T) {
	a := NewAssembler()
	exit := a.NewLabel()
	b1 := a.Jump(OpBREAK, exit)
	a.ABC(OpNOP, 0, 0, 0)
	b2 := a.Jump(OpBREAK, exit)
	a.Mark(exit)
	code := a.Code()
	if JumpTarget(code, b1) != 3 || JumpTarget(code, b2) != 3 {
		t.Errorf("targets = %d, %d, want 3, 3", JumpTarget(code, b1), JumpTarget(code, b2))
	}
	if code[b1].Op() != OpBREAK {
		t.Errorf("patched opcode = %s, want BREAK", code[b1].Op())
	}
}

func TestAssemblerMarkTwicePanics(t *testing.T) {
	a := NewAssembler()
	l := a.NewLabel()
	a.Mark(l)
	defer func() {
		if recover() == nil {
			t.Error("second Mark should panic")
		}
	}()
	a.Mark(l)
}

func TestAssemblerJumpRange(t *testing.T) {
	a := &Assembler{code: make([]Instruction, 1)}
	a.code[0] = EncodeSAx(OpJMP, 0)
	a.patch(0, MaxSAx+2)
	if !errors.Is(a.Err(), ErrJumpRange) {
		t.Fatalf("Err = %v, want ErrJumpRange", a.Err())
	}
}

func TestDisassembleFunction(t *testing.T) {
	f := &Function{
		Name:         "add",
		Params:       []Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int", Register: 1}},
		Return:       "int",
		NumRegisters: 3,
		Code: []Instruction{
			EncodeABC(OpADD, 2, 0, 1),
			EncodeABC(OpRETURN, 2, 0, 0),
		},
	}
	out := DisassembleFunction(f)
	for _, want := range []string{"fn add(a: int, b: int) -> int", "ADD", "RETURN", "registers=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestDisassembleAnnotatesConstantsAndJumps(t *testing.T) {
	f := &Function{
		Name:         "f",
		NumRegisters: 1,
		Constants:    []Constant{StringConst("hi")},
		Code: []Instruction{
			EncodeABx(OpLOADK, 0, 0),
			EncodeSAx(OpJMP, -2),
		},
	}
	if s := DisassembleInstruction(f, 0); !strings.Contains(s, `"hi"`) {
		t.Errorf("LOADK line = %q", s)
	}
	if s := DisassembleInstruction(f, 1); !strings.Contains(s, "-> 0000") {
		t.Errorf("JMP line = %q", s)
	}
}
