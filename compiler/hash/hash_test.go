package hash

import (
	"strings"
	"testing"
)

func TestSourceIsHex(t *testing.T) {
	h := Source("fn main() {}")
	if len(h) != 64 {
		t.Fatalf("len = %d, want 64", len(h))
	}
	if strings.ToLower(h) != h {
		t.Errorf("hash %q is not lowercase", h)
	}
}

func TestSourceDeterministic(t *testing.T) {
	if Source("fn a() {}") != Source("fn a() {}") {
		t.Error("same source hashed differently")
	}
	if Source("fn a() {}") == Source("fn b() {}") {
		t.Error("different sources hashed the same")
	}
}

func TestNormalizeLineEndings(t *testing.T) {
	cases := []struct {
		a, b string
	}{
		{"fn a() {}\r\n", "fn a() {}\n"},
		{"fn a() {}\r", "fn a() {}\n"},
		{"let x = 1;   \n", "let x = 1;\n"},
		{"let x = 1;\t\n", "let x = 1;\n"},
	}
	for _, tc := range cases {
		if Source(tc.a) != Source(tc.b) {
			t.Errorf("Source(%q) != Source(%q)", tc.a, tc.b)
		}
	}
}

func TestNormalizeKeepsInteriorWhitespace(t *testing.T) {
	if Source("a  b") == Source("a b") {
		t.Error("interior whitespace must affect the hash")
	}
	got := string(Normalize([]byte("x \r\ny\t")))
	if got != "x\ny" {
		t.Errorf("Normalize = %q, want %q", got, "x\ny")
	}
}

func TestEmptySource(t *testing.T) {
	// sha256 of the single version byte 0x01
	const want = "4bf5122f344554c53bde2ebb8cd2b7e3d1600ad631c385a5d7cce23c7785459a"
	if got := Source(""); got != want {
		t.Errorf("Source(\"\") = %s, want %s", got, want)
	}
}
