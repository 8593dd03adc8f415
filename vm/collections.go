package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Backing stores
// ---------------------------------------------------------------------------

type listStore struct {
	items  []Value
	shared bool
}

func (s *listStore) clone() *listStore {
	items := make([]Value, len(s.items), len(s.items)+1)
	copy(items, shareAll(s.items))
	return &listStore{items: items}
}

// Tuples are immutable, so they never need a shared flag.
type tupleStore struct {
	items []Value
}

type mapStore struct {
	keys   []Value
	vals   []Value
	index  map[mapKey]int
	shared bool
}

func newMapStore(n int) *mapStore {
	return &mapStore{index: make(map[mapKey]int, n)}
}

func (s *mapStore) clone() *mapStore {
	c := &mapStore{
		keys:  shareAll(s.keys),
		vals:  shareAll(s.vals),
		index: make(map[mapKey]int, len(s.index)),
	}
	for k, i := range s.index {
		c.index[k] = i
	}
	return c
}

func (s *mapStore) get(k Value) (Value, bool, error) {
	key, err := keyOf(k)
	if err != nil {
		return Null, false, err
	}
	i, ok := s.index[key]
	if !ok {
		return Null, false, nil
	}
	return s.vals[i], true, nil
}

func (s *mapStore) set(k, v Value) error {
	key, err := keyOf(k)
	if err != nil {
		return err
	}
	if i, ok := s.index[key]; ok {
		s.vals[i] = v
		return nil
	}
	s.index[key] = len(s.keys)
	s.keys = append(s.keys, k)
	s.vals = append(s.vals, v)
	return nil
}

// without returns a copy of s lacking k.
func (s *mapStore) without(k Value) (*mapStore, error) {
	key, err := keyOf(k)
	if err != nil {
		return nil, err
	}
	out := newMapStore(len(s.keys))
	for i, mk := range s.keys {
		kk, _ := keyOf(mk)
		if kk == key {
			continue
		}
		out.index[kk] = len(out.keys)
		out.keys = append(out.keys, share(mk))
		out.vals = append(out.vals, share(s.vals[i]))
	}
	return out, nil
}

type setStore struct {
	items  []Value
	index  map[mapKey]int
	shared bool
}

func newSetStore(n int) *setStore {
	return &setStore{index: make(map[mapKey]int, n)}
}

func (s *setStore) clone() *setStore {
	c := &setStore{items: shareAll(s.items), index: make(map[mapKey]int, len(s.index))}
	for k, i := range s.index {
		c.index[k] = i
	}
	return c
}

func (s *setStore) add(v Value) error {
	key, err := keyOf(v)
	if err != nil {
		return err
	}
	if _, ok := s.index[key]; ok {
		return nil
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, share(v))
	return nil
}

func (s *setStore) has(v Value) (bool, error) {
	key, err := keyOf(v)
	if err != nil {
		return false, err
	}
	_, ok := s.index[key]
	return ok, nil
}

func (s *setStore) without(v Value) (*setStore, error) {
	key, err := keyOf(v)
	if err != nil {
		return nil, err
	}
	out := newSetStore(len(s.items))
	for _, it := range s.items {
		k, _ := keyOf(it)
		if k == key {
			continue
		}
		out.index[k] = len(out.items)
		out.items = append(out.items, share(it))
	}
	return out, nil
}

// Record is an instance of a declared record type. Fields are stored in
// declaration order.
type Record struct {
	Type   string
	names  []string
	fields []Value
	shared bool
}

func (r *Record) clone() *Record {
	return &Record{Type: r.Type, names: r.names, fields: shareAll(r.fields)}
}

// Field returns the named field.
func (r *Record) Field(name string) (Value, bool) {
	if i := r.fieldIndex(name); i >= 0 {
		return r.fields[i], true
	}
	return Null, false
}

// Names returns the field names in declaration order.
func (r *Record) Names() []string { return r.names }

func (r *Record) fieldIndex(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Variant is an enum case with its positional payload. Variants are
// immutable.
type Variant struct {
	Enum    string
	Case    string
	Payload []Value
}

// Tag returns "Enum.Case".
func (v *Variant) Tag() string { return v.Enum + "." + v.Case }

// TraceRef points at a recorded trace event.
type TraceRef struct {
	Seq   uint64
	Label string
	Value Value
}

// ---------------------------------------------------------------------------
// Mutation through a register
// ---------------------------------------------------------------------------

// The mutable* helpers return a store that may be written in place,
// cloning and storing the clone back into *v first when the current store
// is shared.

func (v *Value) mutableList() *listStore {
	s := v.ref.(*listStore)
	if s.shared {
		s = s.clone()
		v.ref = s
	}
	return s
}

func (v *Value) mutableMap() *mapStore {
	s := v.ref.(*mapStore)
	if s.shared {
		s = s.clone()
		v.ref = s
	}
	return s
}

func (v *Value) mutableRecord() *Record {
	r := v.ref.(*Record)
	if r.shared {
		r = r.clone()
		v.ref = r
	}
	return r
}

// ---------------------------------------------------------------------------
// Hash keys
// ---------------------------------------------------------------------------

// mapKey is the hashable identity of a map key or set element. Numbers
// that compare equal share a key: integral floats map to their int, and
// bigints are keyed by decimal digits.
type mapKey struct {
	kind Kind
	bits uint64
	str  string
}

func keyOf(v Value) (mapKey, error) {
	switch v.kind {
	case KindNull:
		return mapKey{kind: KindNull}, nil
	case KindBool, KindInt:
		return mapKey{kind: v.kind, bits: v.bits}, nil
	case KindBigInt:
		return mapKey{kind: KindBigInt, str: v.ref.(*big.Int).String()}, nil
	case KindFloat:
		f := v.Float()
		if math.IsNaN(f) {
			return mapKey{}, faultf(FaultType, "NaN cannot be a key")
		}
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return mapKey{kind: KindInt, bits: uint64(int64(f))}, nil
		}
		return mapKey{kind: KindFloat, bits: math.Float64bits(f)}, nil
	case KindString:
		return mapKey{kind: KindString, str: v.str}, nil
	case KindTuple:
		s, err := compositeKey("", v.Items())
		return mapKey{kind: KindTuple, str: s}, err
	case KindVariant:
		vr := v.Variant()
		s, err := compositeKey(vr.Tag(), vr.Payload)
		return mapKey{kind: KindVariant, str: s}, err
	case KindFuture:
		return mapKey{kind: KindFuture, bits: uint64(v.Future().id)}, nil
	}
	return mapKey{}, faultf(FaultType, "%s is not hashable", v.kind)
}

func compositeKey(head string, items []Value) (string, error) {
	var sb strings.Builder
	sb.WriteString(strconv.Quote(head))
	for _, it := range items {
		k, err := keyOf(it)
		if err != nil {
			return "", err
		}
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(int(k.kind)))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(k.bits, 16))
		sb.WriteByte(':')
		sb.WriteString(strconv.Quote(k.str))
	}
	return sb.String(), nil
}
