package compiler

import (
	"errors"
	"testing"
)

func checkSource(t *testing.T, src string) (*Checked, ErrorList) {
	t.Helper()
	f := parseOK(t, src)
	checked, err := Check(f)
	if err == nil {
		return checked, nil
	}
	var list ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("Check returned %T: %v", err, err)
	}
	return checked, list
}

func TestCheckAccepts(t *testing.T) {
	tests := []string{
		"fn f(a, b) { a + b }",
		"fn f() { g() } fn g() { 1 }",
		"fn f() -> int { 1 }",
		"fn f(xs) { for x in xs { if x { break; } } }",
		"fn f(xs...) { len(xs) }",
		"fn f() { let g = fn(x) { x }; g(1) }",
		"const K = -3; fn f() { K }",
		"const B: bigint = 12; fn f() { B }",
		"type P { x: int } alias Q = P; fn f() { let p: Q = new P { x: 1 }; p.x }",
		"enum E { A(int), B } fn f(v) { match v { E.A(n) => { n } E.B => { 0 } } }",
		"enum E { A, B } fn f(v) { match v { E.A => { 1 } _ => { 0 } } }",
		"effect Ask { ask(q) -> int; } fn f() { handle { perform Ask.ask(1) } with Ask { ask(q, k) { resume k(1) } } }",
		"tool t = \"c@1\"; fn f() { call t({}) }",
		"tool t = \"c@1\"; policy p = [t]; fn f() { call t({}, 10) }",
		"fn inc(x: int) -> int { x + 1 } pipeline p = inc |> inc; fn f() { p(1) }",
		"fn f() { now() }",
		"fn f() { let x = 1; x = 2; x }",
		"fn f() { let t = [0]; t = t ++ [1]; t }",
		"fn f(x) { let t: list = []; t = t ++ [x]; t }",
		"fn f() -> tuple { (1,) ++ (2,) }",
		"fn f() -> str { \"a\" ++ \"b\" }",
		"fn f() { let xs = [1] ++ [2]; let ys: list = xs; ys }",
		"fn f() { let x = null; x = 1; x = \"s\"; x }",
		"fn g() { 1 } fn f() { let h = null; h = spawn g(); await h }",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			if _, errs := checkSource(t, src); errs != nil {
				t.Errorf("unexpected diagnostics: %v", errs)
			}
		})
	}
}

func TestCheckRejects(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
	}{
		{"fn f() { 1 } fn f() { 2 }", KindDuplicateDefinition},
		{"fn f() { 1 } const f = 2;", KindDuplicateDefinition},
		{"type T { a: int } alias T = int;", KindDuplicateDefinition},
		{"fn f() { g() }", KindUndefinedName},
		{"fn f() { x }", KindUndefinedName},
		{"fn f(a: nope) { a }", KindUndefinedType},
		{"fn f(a, a) { a }", KindDuplicateDefinition},
		{"fn f(a..., b) { a }", KindUnexpectedToken},
		{"alias A = B; alias B = A;", KindUndefinedType},
		{"type T { a: int, a: str }", KindDuplicateDefinition},
		{"enum E { A, A }", KindDuplicateDefinition},
		{"effect E { op(); op(); }", KindDuplicateDefinition},
		{"tool t = \"@1\";", KindUndefinedCapability},
		{"policy p = [nothing];", KindUndefinedCapability},
		{"fn f() { g(1) } fn g() { 1 }", KindArityMismatch},
		{"fn f() { g() } fn g(a, b...) { 1 }", KindArityMismatch},
		{"fn f() { len() }", KindArityMismatch},
		{"const K = 1; fn f() { K() }", KindNotCallable},
		{"fn f() { 1() }", KindNotCallable},
		{"const K = f(); fn f() { 1 }", KindInvalidConstant},
		{"const K: str = 1;", KindTypeMismatch},
		{"fn f() -> int { \"s\" }", KindTypeMismatch},
		{"fn f() -> int { return; }", KindTypeMismatch},
		{"fn f() { let x: str = 1; }", KindTypeMismatch},
		{"fn f() -> str { [1] ++ [2] }", KindTypeMismatch},
		{"fn f() { let xs = [1] ++ [2]; let s: str = xs; }", KindTypeMismatch},
		{"fn f() { break; }", KindOutsideLoop},
		{"fn f() { while true { continue nope; } }", KindUndefinedLabel},
		{"fn f() { l: while true { l: while true { } } }", KindDuplicateDefinition},
		{"fn f() { while true { fn() { break; } } }", KindOutsideLoop},
		{"fn f() { g = 1; } fn g() { 1 }", KindInvalidAssignmentTarget},
		{"fn f() { y = 1; }", KindUndefinedVariable},
		{"enum E { A(int) } fn f() { E.A() }", KindArityMismatch},
		{"enum E { A } fn f() { E.Z }", KindUndefinedName},
		{"type P { x: int } fn f() { new P { x: 1, y: 2 } }", KindInvalidFieldAccess},
		{"type P { x: int, y: int } fn f() { new P { x: 1 } }", KindInvalidFieldAccess},
		{"type P { x: int } fn f() { new P { x: 1, x: 2 } }", KindDuplicateDefinition},
		{"type P { x: int } fn f() { new P { x: \"s\" } }", KindTypeMismatch},
		{"fn f() { new Q { } }", KindUndefinedType},
		{"enum E { A, B } fn f(v) { match v { E.A => { 1 } } }", KindNonExhaustiveMatch},
		{"enum E { A(int) } fn f(v) { match v { E.A => { 1 } } }", KindArityMismatch},
		{"enum E { A } enum F { B } fn f(v) { match v { E.A => { 1 } F.B => { 2 } } }", KindTypeMismatch},
		{"fn f() { handle { 1 } with Nope { } }", KindUndefinedEffect},
		{"effect E { op(); } fn f() { handle { 1 } with E { other(k) { 1 } } }", KindUndefinedOperation},
		{"effect E { op(a); } fn f() { handle { 1 } with E { op(k) { 1 } } }", KindArityMismatch},
		{"effect E { op(); } fn f() { handle { 1 } with E { op(k) { 1 } op(k) { 2 } } }", KindInvalidHandler},
		{"effect E { op(); } fn f() { perform E.nope() }", KindUndefinedOperation},
		{"effect E { op(a); } fn f() { perform E.op() }", KindArityMismatch},
		{"fn f() { perform E.op() }", KindUndefinedEffect},
		{"fn f() { call nope({}) }", KindUndefinedCapability},
		{"tool t = \"c@1\"; tool u = \"d@1\"; policy p = [u]; fn f() { call t({}) }", KindEffectNotGranted},
		{"pipeline p = nope;", KindUndefinedName},
		{"fn two(a, b) { a } pipeline p = two;", KindPipelineStageMismatch},
		{"fn a(x) -> str { x } fn b(x: int) { x } pipeline p = a |> b;", KindPipelineStageMismatch},
		{"fn inc(x) { x } pipeline p = inc; fn f() { p(1, 2) }", KindArityMismatch},
		{"profile deterministic; fn f() { random() }", KindNondeterministic},
		{"profile deterministic; fn f() { now() }", KindNondeterministic},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, errs := checkSource(t, tt.src)
			if !errs.Has(tt.kind) {
				t.Errorf("want %v, got %v", tt.kind, errs)
			}
		})
	}
}

func TestCheckReportsAllErrors(t *testing.T) {
	_, errs := checkSource(t, "fn f() { a; b; c; }")
	if len(errs) != 3 {
		t.Errorf("got %d diagnostics, want 3: %v", len(errs), errs)
	}
}

func TestCheckDeterministicProfile(t *testing.T) {
	checked, errs := checkSource(t, "profile deterministic; fn f() { len([1]) }")
	if errs != nil {
		t.Fatal(errs)
	}
	if !checked.Deterministic {
		t.Error("Deterministic = false")
	}
}

func TestCheckSymbols(t *testing.T) {
	checked, errs := checkSource(t, `
type T { a: int }
enum E { A }
alias U = T;
effect X { op(); }
tool t = "c@1";
policy p = [t];
const K = 1;
fn f(x) { x }
pipeline q = f;
`)
	if errs != nil {
		t.Fatal(errs)
	}
	tab := checked.Symbols
	for _, c := range []struct {
		cat  Category
		name string
	}{
		{CatType, "T"}, {CatType, "E"}, {CatAlias, "U"}, {CatEffect, "X"},
		{CatTool, "t"}, {CatPolicy, "p"}, {CatConstant, "K"},
		{CatFunction, "f"}, {CatPipeline, "q"},
	} {
		if _, ok := tab.Lookup(c.cat, c.name); !ok {
			t.Errorf("%s %s not defined", c.cat, c.name)
		}
	}
}
