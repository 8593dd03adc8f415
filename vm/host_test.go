package vm

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"testing"
)

func TestToHost(t *testing.T) {
	src := `type Point { x: int, y: int }
	enum Shape { Circle(float), Empty }
	fn main() {
		[null, true, 1, 2.5, "s", (1, 2), #{3}, {"k": [1]}, {1: "one"},
		 new Point { x: 1, y: 2 }, Shape.Circle(1.5), Shape.Empty, 123456789012345678901234567890]
	}`
	hv, err := ToHost(eval(t, src))
	if err != nil {
		t.Fatal(err)
	}
	n, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	want := []any{
		nil, true, int64(1), 2.5, "s",
		[]any{int64(1), int64(2)},
		[]any{int64(3)},
		map[string]any{"k": []any{int64(1)}},
		map[string]any{"1": "one"},
		map[string]any{"x": int64(1), "y": int64(2)},
		map[string]any{"tag": "Shape.Circle", "payload": []any{1.5}},
		map[string]any{"tag": "Shape.Empty", "payload": []any{}},
		n,
	}
	if !reflect.DeepEqual(hv, want) {
		t.Errorf("ToHost = %#v\nwant %#v", hv, want)
	}
}

func TestToHostRejectsFunctions(t *testing.T) {
	v := eval(t, `fn main() { [fn() { 1 }] }`)
	if _, err := ToHost(v); !IsFault(err, FaultType) {
		t.Fatalf("err = %v, want type fault", err)
	}
}

func TestFromHost(t *testing.T) {
	huge, _ := new(big.Int).SetString("99999999999999999999", 10)
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"bool", true, "true"},
		{"int", 7, "7"},
		{"int8", int8(-3), "-3"},
		{"uint32", uint32(9), "9"},
		{"uint64 max", uint64(math.MaxUint64), "18446744073709551615"},
		{"float32", float32(0.5), "0.5"},
		{"string", "x", `"x"`},
		{"bytes", []byte("ab"), `"ab"`},
		{"big", huge, "99999999999999999999"},
		{"small big", big.NewInt(4), "4"},
		{"json int", json.Number("12"), "12"},
		{"json float", json.Number("1.25"), "1.25"},
		{"json big", json.Number("123456789012345678901"), "123456789012345678901"},
		{"slice", []any{1, "a", nil}, `[1, "a", null]`},
		{"map sorted", map[string]any{"b": 2, "a": 1}, `{"a": 1, "b": 2}`},
		{"any map", map[any]any{2: "b", 1: "a"}, `{1: "a", 2: "b"}`},
		{"value", FromInt(5), "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromHost(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got := v.Repr(); got != tt.want {
				t.Errorf("FromHost(%#v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromHostRejectsUnknownTypes(t *testing.T) {
	for _, in := range []any{struct{}{}, make(chan int), []int{1}} {
		if _, err := FromHost(in); !IsFault(err, FaultType) {
			t.Errorf("FromHost(%T): err = %v, want type fault", in, err)
		}
	}
}

func TestHostRoundTrip(t *testing.T) {
	v := eval(t, `fn main() { {"a": [1, 2.5, "x"], "b": {"c": null}} }`)
	hv, err := ToHost(v)
	if err != nil {
		t.Fatal(err)
	}
	back, err := FromHost(hv)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(back, v) {
		t.Errorf("round trip = %s, want %s", back.Repr(), v.Repr())
	}
}
