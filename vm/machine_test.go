package vm

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/corvid/bytecode"
	"github.com/chazu/corvid/compiler"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func load(t *testing.T, src string) *Program {
	t.Helper()
	mod, err := compiler.Compile(src, compiler.Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	prog, err := Load(mod)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return prog
}

func newMachine(t *testing.T, src string, opts ...Option) *Machine {
	t.Helper()
	m, err := New(load(t, src), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// run runs main and returns its outcome and error.
func run(t *testing.T, src string, opts ...Option) (*Outcome, error) {
	t.Helper()
	return newMachine(t, src, opts...).Run(context.Background(), "main")
}

// eval runs main and requires it to return.
func eval(t *testing.T, src string, opts ...Option) Value {
	t.Helper()
	out, err := run(t, src, opts...)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.State != StateReturned {
		t.Fatalf("state = %s, want returned", out.State)
	}
	return out.Value
}

// expectFault runs main and requires a fault of kind.
func expectFault(t *testing.T, src string, kind FaultKind, opts ...Option) *Fault {
	t.Helper()
	out, err := run(t, src, opts...)
	if err == nil {
		t.Fatalf("Run returned %s, want %s fault", out.Value.Repr(), kind)
	}
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("error %v is not a fault", err)
	}
	if f.Kind != kind {
		t.Fatalf("fault = %v, want kind %s", f, kind)
	}
	if out.State != StateFaulted || out.Fault != f {
		t.Errorf("outcome = %s %v, want faulted with the returned fault", out.State, out.Fault)
	}
	return f
}

func expectRepr(t *testing.T, src, want string, opts ...Option) {
	t.Helper()
	if got := eval(t, src, opts...).Repr(); got != want {
		t.Errorf("main() = %s, want %s", got, want)
	}
}

// ---------------------------------------------------------------------------
// Calls and arithmetic
// ---------------------------------------------------------------------------

func TestAdd(t *testing.T) {
	m := newMachine(t, "fn add(a: int, b: int) -> int { return a + b; }")
	out, err := m.Run(context.Background(), "add", FromInt(2), FromInt(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.State != StateReturned || out.Value.Kind() != KindInt || out.Value.Int() != 5 {
		t.Fatalf("add(2, 3) = %s %s", out.State, out.Value.Repr())
	}
	if out.RunID == "" || out.Steps == 0 {
		t.Errorf("outcome = %+v, want run id and steps", out)
	}
}

func TestRunUnknownFunction(t *testing.T) {
	m := newMachine(t, "fn main() { 1 }")
	if _, err := m.Run(context.Background(), "nope"); !errors.Is(err, ErrNoFunction) {
		t.Fatalf("err = %v, want ErrNoFunction", err)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2 * 3", "7"},
		{"7 / 2", "3"},
		{"-7 / 2", "-3"},
		{"7 % 3", "1"},
		{"2 ** 10", "1024"},
		{"2 ** -1", "0.5"},
		{"1.5 + 1", "2.5"},
		{"1 / 4.0", "0.25"},
		{"6 & 3", "2"},
		{"6 | 3", "7"},
		{"6 ^ 3", "5"},
		{"~0", "-1"},
		{"1 << 4", "16"},
		{"-16 >> 2", "-4"},
		{"\"a\" ++ \"b\"", "\"ab\""},
		{"[1] ++ [2]", "[1, 2]"},
		{"123456789012345678901234567890 + 1", "123456789012345678901234567891"},
		{"123456789012345678901234567890 - 123456789012345678901234567889", "1"},
		{"2 < 3", "true"},
		{"\"a\" < \"b\"", "true"},
		{"1 == 1.0", "true"},
		{"[1, 2] < [1, 3]", "true"},
		{"2 in [1, 2]", "true"},
		{"\"el\" in \"hello\"", "true"},
		{"!0", "true"},
		{"0 || \"x\"", "\"x\""},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expectRepr(t, "fn main() { "+tt.expr+" }", tt.want)
		})
	}
}

func TestArithmeticFaults(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind FaultKind
	}{
		{"int division by zero", "let z = 0; 1 / z", FaultDivisionByZero},
		{"modulo by zero", "let z = 0; 1 % z", FaultDivisionByZero},
		{"float division by zero", "let z = 0.0; 1.0 / z", FaultDivisionByZero},
		{"add overflow", "let x = 9223372036854775807; x + 1", FaultOverflow},
		{"mul overflow", "let x = 4611686018427387904; x * 2", FaultOverflow},
		{"negate min", "let x = -9223372036854775807 - 1; -x", FaultOverflow},
		{"min div -1", "let x = -9223372036854775807 - 1; x / -1", FaultOverflow},
		{"mismatched add", "1 + \"a\"", FaultType},
		{"mismatched order", "1 < \"a\"", FaultType},
		{"negative shift", "let n = -1; 1 << n", FaultType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := expectFault(t, "fn main() { "+tt.body+" }", tt.kind)
			if f.Function != "main" {
				t.Errorf("fault function = %q, want main", f.Function)
			}
		})
	}
}

func TestNaN(t *testing.T) {
	src := `fn main() {
		let n = sqrt(-1.0);
		[n == n, n != n, n < 1.0, n > 1.0, n <= n, is_nan(n)]
	}`
	expectRepr(t, src, "[false, true, false, false, false, true]")
}

func TestNaNIsNotAKey(t *testing.T) {
	expectFault(t, `fn main() { let m = {"a": 1}; m[sqrt(-1.0)] = 1; m }`, FaultType)
}

func TestIntegralFloatKeysMatchInts(t *testing.T) {
	expectRepr(t, `fn main() { let m = {1: "one"}; m[1.0] }`, `"one"`)
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func TestCopyOnWrite(t *testing.T) {
	src := `fn main() {
		let a = [1, 2, 3];
		let b = a;
		b[0] = 10;
		let m = {"k": 1};
		let n = m;
		n["k"] = 2;
		(a, b, m["k"], n["k"])
	}`
	expectRepr(t, src, "([1, 2, 3], [10, 2, 3], 1, 2)")
}

func TestCopyOnWriteAcrossCalls(t *testing.T) {
	src := `fn poke(xs) { xs[0] = 99; xs }
	fn main() {
		let a = [1, 2];
		let b = poke(a);
		(a, b)
	}`
	expectRepr(t, src, "([1, 2], [99, 2])")
}

func TestRecordsAndVariants(t *testing.T) {
	src := `type Point { x: int, y: int }
	enum Shape { Circle(int), Rect(int, int), Empty }
	fn area(s) {
		match s {
			Shape.Circle(r) => { r * r * 3 }
			Shape.Rect(w, h) => { w * h },
			Shape.Empty => { 0 }
		}
	}
	fn main() {
		let p = new Point { x: 1, y: 2 };
		let q = p;
		q.x = 5;
		[p.x, q.x, area(Shape.Rect(2, 3)), area(Shape.Circle(2)), area(Shape.Empty)]
	}`
	expectRepr(t, src, "[1, 5, 6, 12, 0]")
}

func TestIndexAndSlice(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`let xs = [1, 2, 3, 4]; xs[1:3]`, "[2, 3]"},
		{`let xs = [1, 2, 3, 4]; xs[:2]`, "[1, 2]"},
		{`let xs = [1, 2, 3, 4]; xs[2:]`, "[3, 4]"},
		{`let s = "héllo"; s[0:1]`, `"h"`},
		{`let s = "héllo"; s[1:3]`, `"é"`},
		{`let m = {"a": 1}; m["missing"]`, "null"},
		{`let t = (1, 2); t[1]`, "2"},
	}
	for _, tt := range tests {
		expectRepr(t, "fn main() { "+tt.body+" }", tt.want)
	}
}

func TestIndexFaults(t *testing.T) {
	tests := []struct {
		body string
		kind FaultKind
	}{
		{`let xs = [1]; xs[1]`, FaultIndex},
		{`let xs = [1]; let i = -1; xs[i]`, FaultIndex},
		{`let xs = [1, 2]; xs[1:5]`, FaultSlice},
		{`let xs = [1, 2]; xs[2:1]`, FaultSlice},
		{`let s = "héllo"; s[2:3]`, FaultSlice},
		{`let s = "héllo"; s[2]`, FaultSlice},
		{`let x = true; x[0]`, FaultType},
	}
	for _, tt := range tests {
		expectFault(t, "fn main() { "+tt.body+" }", tt.kind)
	}
}

// ---------------------------------------------------------------------------
// Control flow and closures
// ---------------------------------------------------------------------------

func TestLoops(t *testing.T) {
	src := `fn sum(xs) {
		let total = 0;
		outer: for x in xs {
			if x % 2 == 0 {
				continue outer;
			}
			let i = 0;
			while i < x {
				i = i + 1;
				if i > 10 {
					break outer;
				}
			}
			total = total + i;
		}
		total
	}
	fn main() { sum([1, 2, 3, 4, 5]) }`
	expectRepr(t, src, "9")
}

func TestClosures(t *testing.T) {
	src := `fn counter() {
		let n = 0;
		let bump = fn() { n = n + 1; n };
		bump();
		bump
	}
	fn main() {
		let c = counter();
		c();
		c()
	}`
	expectRepr(t, src, "3")
}

func TestLoopClosuresCaptureEachIteration(t *testing.T) {
	src := `fn main() {
		let fs = [];
		for i in [1, 2, 3] {
			let j = i * 10;
			fs = push(fs, fn() { j });
		}
		[fs[0](), fs[1](), fs[2]()]
	}`
	expectRepr(t, src, "[10, 20, 30]")
}

func TestTailCallsDoNotGrowTheStack(t *testing.T) {
	src := `fn loop(n, acc) {
		if n == 0 { return acc; }
		return loop(n - 1, acc + 1);
	}
	fn main() { loop(10000, 0) }`
	expectRepr(t, src, "10000", WithMaxDepth(16))
}

func TestStackOverflow(t *testing.T) {
	src := `fn down(n) { 1 + down(n + 1) }
	fn main() { down(0) }`
	expectFault(t, src, FaultStackOverflow, WithMaxDepth(64))
}

func TestBudgetExhausted(t *testing.T) {
	src := `fn main() { let i = 0; while true { i = i + 1; } i }`
	out, err := run(t, src, WithMaxSteps(1000))
	if !IsFault(err, FaultBudgetExhausted) {
		t.Fatalf("err = %v, want budget exhausted", err)
	}
	if out.Steps != 1001 {
		t.Errorf("steps = %d, want 1001", out.Steps)
	}
}

func TestCancelledContext(t *testing.T) {
	m := newMachine(t, `fn main() { let i = 0; while true { i = i + 1; } i }`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Run(ctx, "main")
	if !IsFault(err, FaultCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestArityFault(t *testing.T) {
	src := `fn main() { let f = fn(a, b) { a + b }; f(1) }`
	expectFault(t, src, FaultArity)
}

func TestExit(t *testing.T) {
	out, err := run(t, `fn main() { exit(3); 1 }`)
	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != 3 {
		t.Fatalf("err = %v, want exit 3", err)
	}
	if out.State != StateReturned || out.Value.Int() != 3 {
		t.Errorf("outcome = %s %s", out.State, out.Value.Repr())
	}
}

func TestUserFaults(t *testing.T) {
	f := expectFault(t, `fn main() { assert(1 == 2, "math is broken") }`, FaultUser)
	if !strings.Contains(f.Message, "math is broken") {
		t.Errorf("message = %q", f.Message)
	}
	expectFault(t, `fn main() { fail("nope") }`, FaultUser)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	eval(t, `fn main() { print("a", 1); println(" b", [1, "x"]) }`, WithStdout(&buf))
	if got, want := buf.String(), "a 1 b [1, \"x\"]\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestDeterministicProfileNeedsFIFO(t *testing.T) {
	prog := load(t, "fn main() { 1 }")
	if _, err := New(prog, WithProfile(ProfileDeterministic)); !errors.Is(err, ErrNeedFIFO) {
		t.Fatalf("err = %v, want ErrNeedFIFO", err)
	}
	if _, err := New(prog, WithProfile(ProfileDeterministic), WithScheduling(SchedFIFO)); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestNondeterministicIntrinsics(t *testing.T) {
	opts := []Option{WithProfile(ProfileDeterministic), WithScheduling(SchedFIFO)}
	expectFault(t, `fn main() { now() }`, FaultNondeterministic, opts...)
	expectFault(t, `fn main() { random() }`, FaultNondeterministic, opts...)
	expectFault(t, `fn main() { env("HOME") }`, FaultNondeterministic, opts...)
}

func TestProgramIsShared(t *testing.T) {
	prog := load(t, "fn f(n) { let xs = [n]; xs[0] = xs[0] * 2; xs[0] }")
	for i := int64(0); i < 3; i++ {
		m, err := New(prog)
		if err != nil {
			t.Fatal(err)
		}
		out, err := m.Run(context.Background(), "f", FromInt(i))
		if err != nil {
			t.Fatal(err)
		}
		if out.Value.Int() != 2*i {
			t.Errorf("f(%d) = %s", i, out.Value.Repr())
		}
	}
}

// ---------------------------------------------------------------------------
// Hand-built modules
// ---------------------------------------------------------------------------

func module(fns ...*bytecode.Function) *bytecode.Module {
	m := bytecode.NewModule("test")
	m.Functions = fns
	return m
}

func TestRegisterBounds(t *testing.T) {
	fn := &bytecode.Function{
		Name:         "main",
		NumRegisters: 2,
		Code: []bytecode.Instruction{
			bytecode.EncodeABC(bytecode.OpLOADNULL, 0, 0, 0),
			bytecode.EncodeABC(bytecode.OpADD, 5, 0, 1),
			bytecode.EncodeABC(bytecode.OpRETURN, 0, 0, 0),
		},
	}
	prog, err := Load(module(fn))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, _ := New(prog)
	_, err = m.Run(context.Background(), "main")
	var f *Fault
	if !errors.As(err, &f) || f.Kind != FaultRegisterBounds {
		t.Fatalf("err = %v, want register bounds", err)
	}
	if f.PC != 1 {
		t.Errorf("pc = %d, want 1", f.PC)
	}
}

func TestRegisterWindowBounds(t *testing.T) {
	fn := &bytecode.Function{
		Name:         "main",
		NumRegisters: 3,
		Code: []bytecode.Instruction{
			bytecode.EncodeABC(bytecode.OpNEWLIST, 0, 1, 4),
			bytecode.EncodeABC(bytecode.OpRETURN, 0, 0, 0),
		},
	}
	prog, err := Load(module(fn))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, _ := New(prog)
	if _, err := m.Run(context.Background(), "main"); !IsFault(err, FaultRegisterBounds) {
		t.Fatalf("err = %v, want register bounds", err)
	}
}

func TestEmptyWindowAtFrameTop(t *testing.T) {
	fn := &bytecode.Function{
		Name:         "main",
		NumRegisters: 1,
		Code: []bytecode.Instruction{
			bytecode.EncodeABC(bytecode.OpNEWLIST, 0, 1, 0),
			bytecode.EncodeABC(bytecode.OpRETURN, 0, 0, 0),
		},
	}
	prog, err := Load(module(fn))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, _ := New(prog)
	out, err := m.Run(context.Background(), "main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.Value.Repr(); got != "[]" {
		t.Errorf("result = %s, want []", got)
	}
}

func TestEmptyLiteralArguments(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`fn main() { len([]) }`, "0"},
		{`fn main() { len(()) }`, "0"},
		{`fn main() { len({}) }`, "0"},
		{`fn main() { push([], 1) }`, "[1]"},
		{`fn id(x) { x } fn main() { len(id([])) }`, "0"},
		{`fn pair(a, b) { (a, b) } fn main() { pair(1, []) }`, "(1, [])"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expectRepr(t, tt.src, tt.want)
		})
	}
}

func TestLoadRejectsInvalidModules(t *testing.T) {
	ret := bytecode.EncodeABC(bytecode.OpRETURN, 0, 0, 0)
	tests := []struct {
		name string
		fn   *bytecode.Function
	}{
		{"empty code", &bytecode.Function{Name: "f", NumRegisters: 1}},
		{"unknown opcode", &bytecode.Function{Name: "f", NumRegisters: 1,
			Code: []bytecode.Instruction{bytecode.Instruction(0xEE), ret}}},
		{"jump out of range", &bytecode.Function{Name: "f", NumRegisters: 1,
			Code: []bytecode.Instruction{bytecode.EncodeSAx(bytecode.OpJMP, 5), ret}}},
		{"jump before start", &bytecode.Function{Name: "f", NumRegisters: 1,
			Code: []bytecode.Instruction{bytecode.EncodeSAx(bytecode.OpJMP, -3), ret}}},
		{"constant out of range", &bytecode.Function{Name: "f", NumRegisters: 1,
			Code: []bytecode.Instruction{bytecode.EncodeABx(bytecode.OpLOADK, 0, 0), ret}}},
		{"function out of range", &bytecode.Function{Name: "f", NumRegisters: 1,
			Code: []bytecode.Instruction{bytecode.EncodeABx(bytecode.OpLOADFN, 0, 9), ret}}},
		{"unknown intrinsic", &bytecode.Function{Name: "f", NumRegisters: 1,
			Code: []bytecode.Instruction{bytecode.EncodeABC(bytecode.OpINTRINSIC, 0, 250, 0), ret}}},
		{"stray capture", &bytecode.Function{Name: "f", NumRegisters: 1,
			Code: []bytecode.Instruction{bytecode.EncodeABC(bytecode.OpCAPTURE, 0, 0, 0), ret}}},
		{"field name not a string", &bytecode.Function{Name: "f", NumRegisters: 1,
			Constants: []bytecode.Constant{bytecode.IntConst(1)},
			Code:      []bytecode.Instruction{bytecode.EncodeABC(bytecode.OpGETFIELD, 0, 0, 0), ret}}},
		{"unknown record", &bytecode.Function{Name: "f", NumRegisters: 1,
			Constants: []bytecode.Constant{bytecode.StringConst("Nope")},
			Code:      []bytecode.Instruction{bytecode.EncodeABx(bytecode.OpNEWRECORD, 0, 0), ret}}},
		{"more params than registers", &bytecode.Function{Name: "f", NumRegisters: 0,
			Params: []bytecode.Param{{Name: "a"}}, Code: []bytecode.Instruction{ret}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(module(tt.fn)); !errors.Is(err, ErrInvalidModule) {
				t.Fatalf("err = %v, want ErrInvalidModule", err)
			}
		})
	}
}

func TestPanicBecomesInternalFault(t *testing.T) {
	m := newMachine(t, `fn main() { print("x") }`, WithStdout(panicWriter{}))
	_, err := m.Run(context.Background(), "main")
	if !IsFault(err, FaultInternal) {
		t.Fatalf("err = %v, want internal fault", err)
	}
}

type panicWriter struct{}

func (panicWriter) Write([]byte) (int, error) { panic("boom") }

func TestFloatFormatting(t *testing.T) {
	tests := map[float64]string{
		1:            "1.0",
		0.5:          "0.5",
		1e21:         "1e+21",
		math.Inf(1):  "Inf",
		math.Inf(-1): "-Inf",
	}
	for f, want := range tests {
		if got := FromFloat(f).String(); got != want {
			t.Errorf("FromFloat(%v) = %q, want %q", f, got, want)
		}
	}
}
