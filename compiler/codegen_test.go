package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/corvid/bytecode"
)

func compileOK(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	m, err := Compile(src, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return m
}

func function(t *testing.T, m *bytecode.Module, name string) *bytecode.Function {
	t.Helper()
	idx := m.FunctionIndex(name)
	if idx < 0 {
		t.Fatalf("no function %q", name)
	}
	return m.Functions[idx]
}

func listing(f *bytecode.Function) []string {
	out := make([]string, len(f.Code))
	for i, in := range f.Code {
		out[i] = in.String()
	}
	return out
}

func expectCode(t *testing.T, f *bytecode.Function, want ...string) {
	t.Helper()
	got := listing(f)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("%s:\ngot:\n  %s\nwant:\n  %s", f.Name, strings.Join(got, "\n  "), strings.Join(want, "\n  "))
	}
}

func countOp(f *bytecode.Function, op bytecode.Opcode) int {
	n := 0
	for _, in := range f.Code {
		if in.Op() == op {
			n++
		}
	}
	return n
}

func TestLowerAdd(t *testing.T) {
	m := compileOK(t, "fn add(a, b) { a + b }")
	f := function(t, m, "add")
	expectCode(t, f, "ADD 2 0 1", "RETURN 2 0 0")
	if f.NumRegisters != 3 {
		t.Errorf("NumRegisters = %d, want 3", f.NumRegisters)
	}
	if len(f.Constants) != 0 {
		t.Errorf("constants = %v, want none", f.Constants)
	}
	if len(f.Params) != 2 || f.Params[1].Register != 1 {
		t.Errorf("params = %+v", f.Params)
	}
}

func TestLowerIf(t *testing.T) {
	m := compileOK(t, "fn f(x) { if x { return 1; } 2 }")
	expectCode(t, function(t, m, "f"),
		"MOVE 1 0 0",
		"TEST 1 0 1",
		"JMP +2",
		"LOADK 1 0",
		"RETURN 1 0 0",
		"LOADK 1 1",
		"RETURN 1 0 0",
	)
}

func TestLowerShortCircuit(t *testing.T) {
	m := compileOK(t, "fn f(a, b) { a && b } fn g(a, b) { a || b }")
	expectCode(t, function(t, m, "f"),
		"MOVE 2 0 0", "TEST 2 0 1", "JMP +1", "MOVE 2 1 0", "RETURN 2 0 0")
	expectCode(t, function(t, m, "g"),
		"MOVE 2 0 0", "TEST 2 0 0", "JMP +1", "MOVE 2 1 0", "RETURN 2 0 0")
}

func TestLowerTailCall(t *testing.T) {
	m := compileOK(t, "fn f(g) { return g(1); }")
	expectCode(t, function(t, m, "f"), "MOVE 1 0 0", "LOADK 2 0", "TAILCALL 1 1 1")
}

func TestLowerPipeline(t *testing.T) {
	m := compileOK(t, `
fn inc(x: int) -> int { x + 1 }
fn double(x: int) -> int { x * 2 }
pipeline p = inc |> double;
`)
	f := function(t, m, "p")
	expectCode(t, f,
		"LOADFN 1 0", "MOVE 2 0 0", "CALL 0 1 1",
		"LOADFN 1 1", "MOVE 2 0 0", "CALL 0 1 1",
		"RETURN 0 0 0")
	if f.Arity() != 1 {
		t.Errorf("arity = %d, want 1", f.Arity())
	}
}

func TestLowerClosure(t *testing.T) {
	m := compileOK(t, "fn f() { let n = 0; let g = fn() { n }; g }")
	f := function(t, m, "f")
	if f.Code[1].Op() != bytecode.OpCLOSURE || f.Code[2].Op() != bytecode.OpCAPTURE {
		t.Fatalf("f = %v", listing(f))
	}
	if k, idx := f.Code[2].A(), f.Code[2].B(); k != 0 || idx != 0 {
		t.Errorf("CAPTURE %d %d, want register 0", k, idx)
	}
	child := m.Functions[f.Code[1].Bx()]
	if child.Name != "f$fn1" {
		t.Errorf("child name = %q", child.Name)
	}
	expectCode(t, child, "GETUPVAL 0 0 0", "RETURN 0 0 0")
}

func TestLowerNestedCapture(t *testing.T) {
	m := compileOK(t, "fn f(a) { fn() { fn() { a } } }")
	var inner *bytecode.Function
	for _, fn := range m.Functions {
		if countOp(fn, bytecode.OpGETUPVAL) > 0 {
			inner = fn
		}
	}
	if inner == nil {
		t.Fatal("no function reads an upvalue")
	}
	middle := m.Functions[2]
	if middle == inner {
		middle = m.Functions[1]
	}
	var capture bytecode.Instruction
	for _, in := range middle.Code {
		if in.Op() == bytecode.OpCAPTURE {
			capture = in
		}
	}
	if capture.A() != 1 {
		t.Errorf("middle function captures %v, want an upvalue of its parent", capture)
	}
}

func TestLowerAssignUpvalue(t *testing.T) {
	m := compileOK(t, "fn f() { let n = 0; let g = fn() { n = n + 1; }; g(); n }")
	if countOp(m.Functions[1], bytecode.OpSETUPVAL) != 1 {
		t.Errorf("child = %v", listing(m.Functions[1]))
	}
}

func TestLowerLoopClosesCapturedLocals(t *testing.T) {
	m := compileOK(t, "fn f(xs) { let out = []; for x in xs { out = out ++ [fn() { x }]; } out }")
	if n := countOp(function(t, m, "f"), bytecode.OpCLOSEUPVAL); n < 2 {
		t.Errorf("CLOSEUPVAL count = %d, want one per loop exit path", n)
	}
	m = compileOK(t, "fn f(xs) { for x in xs { print(x); } }")
	if n := countOp(function(t, m, "f"), bytecode.OpCLOSEUPVAL); n != 0 {
		t.Errorf("CLOSEUPVAL emitted without captures")
	}
}

func TestLowerLoopsUseBreakAndContinue(t *testing.T) {
	m := compileOK(t, `fn f() {
    outer: while true {
        while true {
            break outer;
        }
        continue;
    }
}`)
	f := function(t, m, "f")
	if countOp(f, bytecode.OpBREAK) != 1 || countOp(f, bytecode.OpCONTINUE) != 1 || countOp(f, bytecode.OpLOOP) != 2 {
		t.Fatalf("f = %v", listing(f))
	}
	for pc, in := range f.Code {
		if in.Op() == bytecode.OpBREAK {
			target := bytecode.JumpTarget(f.Code, pc)
			if target != len(f.Code)-1 {
				t.Errorf("break outer lands at %d, want %d", target, len(f.Code)-1)
			}
		}
	}
}

func TestLowerMatch(t *testing.T) {
	m := compileOK(t, "enum E { A(int), B } fn f(v) { match v { E.A(n) => { n } E.B => { 0 } } }")
	f := function(t, m, "f")
	if countOp(f, bytecode.OpISTAG) != 2 || countOp(f, bytecode.OpPAYLOAD) != 1 {
		t.Errorf("f = %v", listing(f))
	}
	for pc, in := range f.Code {
		if in.Op() == bytecode.OpISTAG && f.Constants[in.C()].Str != "E.A" && f.Constants[in.C()].Str != "E.B" {
			t.Errorf("ISTAG at %d tests %v", pc, f.Constants[in.C()])
		}
	}
}

func TestLowerHandle(t *testing.T) {
	m := compileOK(t, `
effect Ask { ask(q) -> int; tell(m); }
fn g() { 1 }
fn f() {
    handle { g() } with Ask {
        ask(q, k) { resume k(g()) }
    }
}`)
	f := function(t, m, "f")
	if countOp(f, bytecode.OpHANDLERPUSH) != 1 || countOp(f, bytecode.OpHANDLERPOP) != 1 {
		t.Fatalf("f = %v", listing(f))
	}
	// The unhandled tell slot is null.
	if countOp(f, bytecode.OpLOADNULL) != 1 {
		t.Errorf("f = %v", listing(f))
	}
	for _, fn := range m.Functions {
		if countOp(fn, bytecode.OpTAILCALL) > 0 {
			t.Errorf("%s uses TAILCALL inside a handler", fn.Name)
		}
	}
	if m.FunctionIndex("f$Ask.ask2") < 0 {
		names := []string{}
		for _, fn := range m.Functions {
			names = append(names, fn.Name)
		}
		t.Errorf("functions = %v", names)
	}
}

func TestLowerToolCall(t *testing.T) {
	m := compileOK(t, `
tool plain = "a@1";
tool typed = "b@2" schema "{ n: int }" timeout 10;
fn f() { call plain({}) }
fn g() { call typed({}, 5) }
`)
	if countOp(function(t, m, "f"), bytecode.OpSCHEMACHECK) != 0 {
		t.Error("SCHEMACHECK without schema")
	}
	g := function(t, m, "g")
	if countOp(g, bytecode.OpSCHEMACHECK) != 1 {
		t.Errorf("g = %v", listing(g))
	}
	if len(m.Tools) != 2 || m.Tools[1].TimeoutMillis != 10 || m.Tools[1].Version != "2" {
		t.Errorf("tools = %+v", m.Tools)
	}
}

func TestLowerTables(t *testing.T) {
	m := compileOK(t, `
type P { x: int, y: str }
enum E { A(int, str), B }
alias Q = P;
effect Log { write(msg: str) -> str; }
`)
	if len(m.Types) != 3 {
		t.Fatalf("types = %+v", m.Types)
	}
	if m.Types[0].Kind != bytecode.TypeRecord || m.Types[1].Kind != bytecode.TypeEnum || m.Types[2].Kind != bytecode.TypeAlias {
		t.Errorf("kinds = %v %v %v", m.Types[0].Kind, m.Types[1].Kind, m.Types[2].Kind)
	}
	if m.Types[2].Target != "P" || len(m.Types[1].Cases[0].Payload) != 2 {
		t.Errorf("types = %+v", m.Types)
	}
	if len(m.Effects) != 1 || m.Effects[0].Ops[0].Params[0] != "str" {
		t.Errorf("effects = %+v", m.Effects)
	}
}

func TestLowerRecordFieldOrder(t *testing.T) {
	m := compileOK(t, "type P { x: int, y: int } fn f() { new P { y: 2, x: 1 } }")
	f := function(t, m, "f")
	// Fields land in declared order regardless of source order.
	expectCode(t, f, "LOADK 2 0", "LOADK 3 1", "NEWRECORD 1 2", "MOVE 0 1 0", "RETURN 0 0 0")
	if f.Constants[0].Int != 1 || f.Constants[1].Int != 2 {
		t.Errorf("constants = %v", f.Constants)
	}
}

func TestLowerConstantDedup(t *testing.T) {
	m := compileOK(t, `fn f() { let a = 1; let b = 1; let c = "x"; let d = "x"; let e = 1.0; }`)
	if n := len(function(t, m, "f").Constants); n != 3 {
		t.Errorf("constants = %d, want 3", n)
	}
}

func TestLowerNegativeLiterals(t *testing.T) {
	m := compileOK(t, "fn f() { -9223372036854775808 } fn g() { -99999999999999999999 } fn h() { -2.5 }")
	if c := function(t, m, "f").Constants[0]; c.Kind != bytecode.ConstInt || c.Int != math.MinInt64 {
		t.Errorf("f constant = %+v", c)
	}
	if c := function(t, m, "g").Constants[0]; c.Kind != bytecode.ConstBigInt || c.Str != "-99999999999999999999" {
		t.Errorf("g constant = %+v", c)
	}
	if c := function(t, m, "h").Constants[0]; c.Kind != bytecode.ConstFloat || c.Float != -2.5 {
		t.Errorf("h constant = %+v", c)
	}
}

func TestLowerLargeCollections(t *testing.T) {
	elems := make([]string, 40)
	for i := range elems {
		elems[i] = fmt.Sprint(i)
	}
	m := compileOK(t, "fn f() { ["+strings.Join(elems, ", ")+"] }")
	if n := countOp(function(t, m, "f"), bytecode.OpAPPEND); n != 40 {
		t.Errorf("APPEND count = %d, want 40", n)
	}
	m = compileOK(t, "fn f() { #{"+strings.Join(elems, ", ")+"} }")
	f := function(t, m, "f")
	found := false
	for _, in := range f.Code {
		if in.Op() == bytecode.OpINTRINSIC && in.B() == 48 {
			found = true
		}
	}
	if !found {
		t.Errorf("large set not built through to_set: %v", listing(f))
	}
}

func TestLowerRegisterLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("fn f() {\n")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&sb, "let v%d = %d;\n", i, i)
	}
	sb.WriteString("}\n")
	_, err := Compile(sb.String(), Options{})
	var le *LowerError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LowerError", err)
	}
	if le.Function != "f" || !strings.Contains(le.Message, "registers") {
		t.Errorf("err = %v", le)
	}
}

func TestLowerFieldConstantRange(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("fn f(p) { let xs = [")
	for i := 0; i < 300; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "\"s%d\"", i)
	}
	sb.WriteString("]; p.name }")
	_, err := Compile(sb.String(), Options{})
	var le *LowerError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LowerError", err)
	}
}

// checkInvariants verifies structural properties every lowered function
// must have.
func checkInvariants(t *testing.T, m *bytecode.Module) {
	t.Helper()
	for _, f := range m.Functions {
		n := int(f.NumRegisters)
		for pc, in := range f.Code {
			op := in.Op()
			info := op.Info()
			if !op.Valid() {
				t.Errorf("%s@%d: invalid opcode %v", f.Name, pc, in)
				continue
			}
			if op == bytecode.OpTEST && (pc+1 >= len(f.Code) || f.Code[pc+1].Op() != bytecode.OpJMP) {
				t.Errorf("%s@%d: TEST not followed by JMP", f.Name, pc)
			}
			if op.IsJump() {
				if target := bytecode.JumpTarget(f.Code, pc); target < 0 || target > len(f.Code) {
					t.Errorf("%s@%d: jump to %d out of range", f.Name, pc, target)
				}
				continue
			}
			if info.Layout == bytecode.LayoutABC {
				if info.A == bytecode.OperandReg && int(in.A()) >= n {
					t.Errorf("%s@%d: %v register A beyond %d", f.Name, pc, in, n)
				}
				if info.B == bytecode.OperandReg && int(in.B()) >= n {
					t.Errorf("%s@%d: %v register B beyond %d", f.Name, pc, in, n)
				}
				if info.C == bytecode.OperandReg && int(in.C()) >= n {
					t.Errorf("%s@%d: %v register C beyond %d", f.Name, pc, in, n)
				}
			}
			if info.Layout == bytecode.LayoutABx && info.A == bytecode.OperandReg && int(in.A()) >= n {
				t.Errorf("%s@%d: %v register A beyond %d", f.Name, pc, in, n)
			}
			if info.Layout == bytecode.LayoutABx && info.B == bytecode.OperandConst && int(in.Bx()) >= len(f.Constants) {
				t.Errorf("%s@%d: %v constant beyond pool", f.Name, pc, in)
			}
		}
		if len(f.Code) == 0 {
			t.Errorf("%s: empty body", f.Name)
			continue
		}
		switch last := f.Code[len(f.Code)-1].Op(); last {
		case bytecode.OpRETURN, bytecode.OpRETNULL, bytecode.OpTAILCALL, bytecode.OpCLOSEUPVAL:
		default:
			t.Errorf("%s: ends with %v", f.Name, last)
		}
	}
}

func TestLowerTestdataInvariants(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.cv"))
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			src, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			m := compileOK(t, string(src))
			checkInvariants(t, m)

			again, err := CompileBytes(string(src), Options{})
			if err != nil {
				t.Fatal(err)
			}
			first, err := bytecode.Marshal(m)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(first, again) {
				t.Error("compilation is not deterministic")
			}
		})
	}
}

func TestCompileFailsClosed(t *testing.T) {
	m, err := Compile("fn f() { nope() }", Options{})
	if err == nil || m != nil {
		t.Fatalf("Compile = %v, %v; want no module and an error", m, err)
	}
}
