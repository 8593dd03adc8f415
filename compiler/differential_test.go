package compiler_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/corvid/bytecode"
	"github.com/chazu/corvid/compiler"
	"github.com/chazu/corvid/compiler/pratt"
)

// frontEnds lists every parser that must agree byte for byte.
var frontEnds = map[string]compiler.ParseFunc{
	"descent": compiler.Parse,
	"pratt":   pratt.Parse,
}

// verify compiles src with every front end and fails unless all outputs
// are identical. It returns the agreed module bytes.
func verify(t *testing.T, src string) []byte {
	t.Helper()
	var (
		want     []byte
		wantFrom string
	)
	for name, parse := range frontEnds {
		got, err := compiler.CompileBytes(src, compiler.Options{Parser: parse})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if want == nil {
			want, wantFrom = got, name
			continue
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("%s and %s disagree\n%s\n---\n%s", wantFrom, name, disasm(t, want), disasm(t, got))
		}
	}
	return want
}

func disasm(t *testing.T, b []byte) string {
	t.Helper()
	m, err := bytecode.Unmarshal(b)
	if err != nil {
		return err.Error()
	}
	return bytecode.Disassemble(m)
}

func TestFrontEndsAgreeOnTestdata(t *testing.T) {
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
			b := verify(t, string(src))
			if _, err := bytecode.Unmarshal(b); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
		})
	}
}

func TestFrontEndsAgreeOnSnippets(t *testing.T) {
	tests := []string{
		"fn add(a, b) { a + b }",
		"fn f(x) { if x { return 1; } 2 }",
		"fn f(n) { let i = 0; while i < n { i = i + 1; } i }",
		"fn f(xs) { let t = []; for x in xs { t = t ++ [x]; } t }",
		"fn f() { let g = fn(a) { a * 2 }; g(3) }",
		"fn f(a) { fn() { fn() { a } } }",
		"fn f(s) { s[1:] ++ s[:1] }",
		"const K = 10; fn f() { K * -1 }",
		"fn f() { [1, 2.5, \"x\", true, null] }",
		"fn f() { len(\"abc\") + abs(-3) }",
		"fn f(x) { trace \"x\" x }",
		"fn f(g) { return g(1); }",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			verify(t, src)
		})
	}
}

func TestFrontEndsAgreeOnLargeLiterals(t *testing.T) {
	var sb bytes.Buffer
	sb.WriteString("fn f() { [")
	for i := 0; i < 100; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("1")
	}
	sb.WriteString("] }")
	verify(t, sb.String())
}

func TestFrontEndsRejectTogether(t *testing.T) {
	tests := []string{
		"fn f() { undefined_fn(); }",
		"fn f() { let = 1; }",
		"fn f() { break; }",
		"fn f() { 1 }\nfn f() { 2 }",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			for name, parse := range frontEnds {
				if _, err := compiler.CompileBytes(src, compiler.Options{Parser: parse}); err == nil {
					t.Errorf("%s accepted invalid source", name)
				}
			}
		})
	}
}
