package vm

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/chazu/corvid/bytecode"
)

// Kind identifies the dynamic type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindBigInt
	KindFloat
	KindString
	KindList
	KindMap
	KindSet
	KindTuple
	KindRecord
	KindVariant
	KindClosure
	KindFuture
	KindTraceRef
	KindContinuation
)

var kindNames = [...]string{
	KindNull:         "null",
	KindBool:         "bool",
	KindInt:          "int",
	KindBigInt:       "bigint",
	KindFloat:        "float",
	KindString:       "str",
	KindList:         "list",
	KindMap:          "map",
	KindSet:          "set",
	KindTuple:        "tuple",
	KindRecord:       "record",
	KindVariant:      "variant",
	KindClosure:      "fn",
	KindFuture:       "future",
	KindTraceRef:     "trace",
	KindContinuation: "continuation",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a Corvid runtime value.
//
// Scalars live inline: bits holds bools, ints, float bit patterns and
// continuation tokens, and str holds strings. Everything else hangs off
// ref. Bigints are normalized: a value that fits in int64 is always an
// int, so KindBigInt only ever holds out-of-range integers.
type Value struct {
	kind Kind
	bits uint64
	str  string
	ref  interface{}
}

// Null is the null value.
var Null = Value{}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func FromBool(b bool) Value {
	if b {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

func FromInt(i int64) Value {
	return Value{kind: KindInt, bits: uint64(i)}
}

// FromBigInt returns an int when n fits in 64 bits and a bigint otherwise.
// The machine never mutates n.
func FromBigInt(n *big.Int) Value {
	if n.IsInt64() {
		return FromInt(n.Int64())
	}
	return Value{kind: KindBigInt, ref: n}
}

func FromFloat(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

func FromString(s string) Value {
	return Value{kind: KindString, str: s}
}

// NewList returns a list owning items.
func NewList(items ...Value) Value {
	return Value{kind: KindList, ref: &listStore{items: items}}
}

// NewTuple returns a tuple owning items.
func NewTuple(items ...Value) Value {
	return Value{kind: KindTuple, ref: &tupleStore{items: items}}
}

// NewMap returns an empty insertion-ordered map.
func NewMap() Value {
	return Value{kind: KindMap, ref: newMapStore(0)}
}

// NewSet returns an ordered set of items. Duplicates keep their first
// position.
func NewSet(items ...Value) (Value, error) {
	s := newSetStore(len(items))
	for _, it := range items {
		if err := s.add(it); err != nil {
			return Null, err
		}
	}
	return Value{kind: KindSet, ref: s}, nil
}

// NewVariant returns an enum value.
func NewVariant(enum, name string, payload ...Value) Value {
	return Value{kind: KindVariant, ref: &Variant{Enum: enum, Case: name, Payload: payload}}
}

func fromContinuation(token int) Value {
	return Value{kind: KindContinuation, bits: uint64(token)}
}

// constantValue converts a constant pool entry.
func constantValue(c bytecode.Constant) (Value, error) {
	switch c.Kind {
	case bytecode.ConstNull:
		return Null, nil
	case bytecode.ConstBool:
		return FromBool(c.Bool), nil
	case bytecode.ConstInt:
		return FromInt(c.Int), nil
	case bytecode.ConstBigInt:
		n, ok := new(big.Int).SetString(c.Str, 10)
		if !ok {
			return Null, fmt.Errorf("malformed bigint constant %q", c.Str)
		}
		return FromBigInt(n), nil
	case bytecode.ConstFloat:
		return FromFloat(c.Float), nil
	case bytecode.ConstString:
		return FromString(c.Str), nil
	}
	return Null, fmt.Errorf("unknown constant kind %v", c.Kind)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Bool() bool     { return v.bits != 0 }
func (v Value) Int() int64     { return int64(v.bits) }
func (v Value) Float() float64 { return math.Float64frombits(v.bits) }
func (v Value) Str() string    { return v.str }

// BigInt returns the integer value of an int or bigint as a new big.Int.
func (v Value) BigInt() *big.Int {
	if v.kind == KindBigInt {
		return new(big.Int).Set(v.ref.(*big.Int))
	}
	return big.NewInt(v.Int())
}

// Items returns the elements of a list, tuple or set. The slice must not
// be modified.
func (v Value) Items() []Value {
	switch v.kind {
	case KindList:
		return v.ref.(*listStore).items
	case KindTuple:
		return v.ref.(*tupleStore).items
	case KindSet:
		return v.ref.(*setStore).items
	}
	return nil
}

// MapEntries returns the keys and values of a map in insertion order. The
// slices must not be modified.
func (v Value) MapEntries() (keys, vals []Value) {
	if v.kind != KindMap {
		return nil, nil
	}
	m := v.ref.(*mapStore)
	return m.keys, m.vals
}

// Variant returns the enum payload of a variant value.
func (v Value) Variant() *Variant {
	if v.kind != KindVariant {
		return nil
	}
	return v.ref.(*Variant)
}

// Record returns the record of a record value.
func (v Value) Record() *Record {
	if v.kind != KindRecord {
		return nil
	}
	return v.ref.(*Record)
}

// Future returns the future of a future value.
func (v Value) Future() *Future {
	if v.kind != KindFuture {
		return nil
	}
	return v.ref.(*Future)
}

// TraceRef returns the trace reference of a trace value.
func (v Value) TraceRef() *TraceRef {
	if v.kind != KindTraceRef {
		return nil
	}
	return v.ref.(*TraceRef)
}

func (v Value) token() int { return int(v.bits) }

// Truthy reports the boolean meaning of v: null, false, numeric zero, the
// empty string and empty collections are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool()
	case KindInt:
		return v.Int() != 0
	case KindBigInt:
		return true
	case KindFloat:
		return v.Float() != 0
	case KindString:
		return v.str != ""
	case KindList, KindTuple, KindSet:
		return len(v.Items()) > 0
	case KindMap:
		return len(v.ref.(*mapStore).keys) > 0
	}
	return true
}

// TypeName returns the name type_of reports: the kind, or the declared
// type for records and variants.
func (v Value) TypeName() string {
	switch v.kind {
	case KindRecord:
		return v.Record().Type
	case KindVariant:
		return v.Variant().Enum
	}
	return v.kind.String()
}

// ---------------------------------------------------------------------------
// Copy-on-write
// ---------------------------------------------------------------------------

// share marks the backing store of a mutable collection as reachable from
// more than one place. The next mutation through either copy clones it.
func share(v Value) Value {
	switch s := v.ref.(type) {
	case *listStore:
		s.shared = true
	case *mapStore:
		s.shared = true
	case *setStore:
		s.shared = true
	case *Record:
		s.shared = true
	}
	return v
}

func shareAll(vs []Value) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = share(v)
	}
	return out
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// String renders v the way str() does: strings are unquoted at the top
// level and quoted inside collections.
func (v Value) String() string {
	if v.kind == KindString {
		return v.str
	}
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

// Repr renders v with strings quoted.
func (v Value) Repr() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool()))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.Int(), 10))
	case KindBigInt:
		sb.WriteString(v.ref.(*big.Int).String())
	case KindFloat:
		sb.WriteString(formatFloat(v.Float()))
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindList:
		formatSeq(sb, "[", "]", v.Items())
	case KindTuple:
		items := v.Items()
		if len(items) == 1 {
			sb.WriteString("(")
			items[0].format(sb)
			sb.WriteString(",)")
			return
		}
		formatSeq(sb, "(", ")", items)
	case KindSet:
		formatSeq(sb, "#{", "}", v.Items())
	case KindMap:
		m := v.ref.(*mapStore)
		sb.WriteString("{")
		for i := range m.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			m.keys[i].format(sb)
			sb.WriteString(": ")
			m.vals[i].format(sb)
		}
		sb.WriteString("}")
	case KindRecord:
		r := v.Record()
		sb.WriteString(r.Type)
		sb.WriteString(" {")
		for i, name := range r.names {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(" ")
			sb.WriteString(name)
			sb.WriteString(": ")
			r.fields[i].format(sb)
		}
		sb.WriteString(" }")
	case KindVariant:
		vr := v.Variant()
		sb.WriteString(vr.Enum)
		sb.WriteString(".")
		sb.WriteString(vr.Case)
		if len(vr.Payload) > 0 {
			formatSeq(sb, "(", ")", vr.Payload)
		}
	case KindClosure:
		fmt.Fprintf(sb, "<fn %s>", v.ref.(*Closure).Name())
	case KindFuture:
		fmt.Fprintf(sb, "<future %d>", v.Future().id)
	case KindTraceRef:
		tr := v.TraceRef()
		fmt.Fprintf(sb, "<trace %s #%d>", tr.Label, tr.Seq)
	case KindContinuation:
		fmt.Fprintf(sb, "<continuation %d>", v.token())
	}
}

func formatSeq(sb *strings.Builder, open, close string, items []Value) {
	sb.WriteString(open)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		it.format(sb)
	}
	sb.WriteString(close)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
