package pratt

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/corvid/compiler"
)

var (
	spanType = reflect.TypeOf(compiler.Span{})
	posType  = reflect.TypeOf(compiler.Position{})
)

// stripPositions zeroes every Span and Position reachable from v so trees
// from the two front ends can be compared structurally.
func stripPositions(v reflect.Value) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			stripPositions(v.Elem())
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			stripPositions(v.Index(i))
		}
	case reflect.Struct:
		if v.Type() == spanType || v.Type() == posType {
			if v.CanSet() {
				v.Set(reflect.Zero(v.Type()))
			}
			return
		}
		for i := 0; i < v.NumField(); i++ {
			stripPositions(v.Field(i))
		}
	}
}

func mustParse(t *testing.T, src string) *compiler.File {
	t.Helper()
	f, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func sameTree(t *testing.T, src string) {
	t.Helper()
	want, err := compiler.Parse(src)
	if err != nil {
		t.Fatalf("compiler.Parse: %v", err)
	}
	got := mustParse(t, src)
	stripPositions(reflect.ValueOf(want))
	stripPositions(reflect.ValueOf(got))
	if !reflect.DeepEqual(got, want) {
		t.Errorf("trees differ for %q", src)
	}
}

func TestParseMatchesRecursiveDescent(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "testdata", "*.cv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no testdata programs")
	}
	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			src, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			sameTree(t, string(src))
		})
	}
}

func TestParseExpressions(t *testing.T) {
	tests := []string{
		"1 + 2 * 3",
		"(1 + 2) * 3",
		"2 ** 3 ** 2",
		"-x ** 2",
		"!a && b || c",
		"a | b ^ c & d << 1",
		"x in xs == true",
		"f(1)(2).g[0][1:][:2][:]",
		"-f(x).y",
		"await spawn f(1)",
		"trace \"t\" a.b",
		"(1,)",
		"()",
		"[1, 2,]",
		"#{}",
		"{}",
		"{\"a\": 1, \"b\": [2]}",
		"fn(a, b...) -> int { a }",
		"perform E.op(1, 2)",
		"resume k",
		"resume k()",
		"resume k(1 + 2)",
		"call t(req)",
		"call t(req, 10)",
		"new P { x: 1, y: 2 }",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			sameTree(t, "fn main() { let v = "+expr+"; }")
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	f := mustParse(t, "fn f() { 1 + 2 * 3 ** 2 }")
	tail := f.Decls[0].(*compiler.FuncDecl).Body.Tail
	add, ok := tail.(*compiler.BinaryExpr)
	if !ok || add.Op != "+" {
		t.Fatalf("tail = %#v, want +", tail)
	}
	mul, ok := add.Right.(*compiler.BinaryExpr)
	if !ok || mul.Op != "*" {
		t.Fatalf("right = %#v, want *", add.Right)
	}
	if pow, ok := mul.Right.(*compiler.BinaryExpr); !ok || pow.Op != "**" {
		t.Errorf("right of * = %#v, want **", mul.Right)
	}
}

func TestParseStatements(t *testing.T) {
	tests := []string{
		"fn f() { }",
		"fn f() { return; }",
		"fn f() { if a { 1 } else if b { 2 } else { 3 } }",
		"fn f() { l: while true { break l; } }",
		"fn f() { for x in xs { continue; } }",
		"fn f() { match v { _ => { 0 } } }",
		"fn f() { match v { E.A(x, y) => { x } E.B => { 0 } }; g(); }",
		"fn f() { handle { 1 } with E { op(k) { resume k } } g(); }",
		"fn f() { a.b[0] = 1; cancel fut; }",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			sameTree(t, src)
		})
	}
}

func TestParseDeclarations(t *testing.T) {
	src := `
profile deterministic;
const C: int = 1;
type T { a: int, b: str }
enum E { A(int, str), B }
alias U = T;
effect Log { write(msg: str) -> str; flush(); }
tool fetch = "http.get@2.0" timeout 250 schema "{}";
policy p = [fetch];
pipeline q = f |> g;
`
	sameTree(t, src)
	f := mustParse(t, src)
	if !f.Deterministic {
		t.Error("Deterministic = false, want true")
	}
	tool := f.Decls[5].(*compiler.ToolDecl)
	if tool.Capability != "http.get" || tool.Version != "2.0" || tool.Timeout != 250 || tool.Schema != "{}" {
		t.Errorf("tool = %+v", tool)
	}
}

func TestParseBigInteger(t *testing.T) {
	f := mustParse(t, "const B = 000123456789012345678901234567890;")
	lit := f.Decls[0].(*compiler.ConstDecl).Value.(*compiler.IntLiteral)
	if lit.Big != "123456789012345678901234567890" {
		t.Errorf("Big = %q", lit.Big)
	}
}

func TestParseStringEscapes(t *testing.T) {
	f := mustParse(t, `const S = "a\tb\n\"c\" \'d\' \\";`)
	lit := f.Decls[0].(*compiler.ConstDecl).Value.(*compiler.StringLiteral)
	if want := "a\tb\n\"c\" 'd' \\"; lit.Value != want {
		t.Errorf("Value = %q, want %q", lit.Value, want)
	}
}

func TestParseBlockComments(t *testing.T) {
	mustParse(t, "/* header */ fn f() { /* inline */ 1 }")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind compiler.Kind
	}{
		{"fn f() { let = 1; }", compiler.KindUnexpectedToken},
		{"fn f() { 1 + ; }", compiler.KindUnexpectedToken},
		{"fn f() { 1 = 2; }", compiler.KindUnexpectedToken},
		{"fn f() { spawn x; }", compiler.KindUnexpectedToken},
		{"fn f() { l: if x { } }", compiler.KindUnexpectedToken},
		{"fn f() { 1 }  2", compiler.KindUnexpectedToken},
		{"profile fast;", compiler.KindUnexpectedToken},
		{"tool t = \"x@1\" timeout 99999999999;", compiler.KindUnexpectedToken},
		{"fn f() { \"open }", compiler.KindUnterminatedString},
		{"fn f() { \"\\q\" }", compiler.KindInvalidToken},
		{"fn f() { 0x1F }", compiler.KindInvalidNumber},
		{"fn f() { 1_000 }", compiler.KindInvalidNumber},
		{"fn f() { $ }", compiler.KindInvalidToken},
		{"fn f() { a.. }", compiler.KindInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			var list compiler.ErrorList
			if !errors.As(err, &list) || len(list) != 1 {
				t.Fatalf("err = %v, want a single diagnostic", err)
			}
			if list[0].Kind != tt.kind {
				t.Errorf("kind = %v, want %v (%v)", list[0].Kind, tt.kind, list[0])
			}
		})
	}
}
