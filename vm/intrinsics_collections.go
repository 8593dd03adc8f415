package vm

import (
	"math"
	"sort"
	"strings"

	"github.com/chazu/corvid/bytecode"
)

// maxRangeLen bounds the lists built by range.
const maxRangeLen = 1 << 24

// sameKind rebuilds a list or tuple from items, keeping v's kind.
func sameKind(v Value, items []Value) Value {
	if v.kind == KindTuple {
		return NewTuple(items...)
	}
	return NewList(items...)
}

func argList(name string, v Value) ([]Value, error) {
	switch v.kind {
	case KindList, KindTuple:
		return v.Items(), nil
	}
	return nil, faultf(FaultType, "%s: expected a list, got %s", name, v.TypeName())
}

func argSet(name string, v Value) (*setStore, error) {
	if v.kind != KindSet {
		return nil, faultf(FaultType, "%s: expected a set, got %s", name, v.TypeName())
	}
	return v.ref.(*setStore), nil
}

func biReverse(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	if v.kind == KindString {
		cs := chars(v.str)
		s := make([]byte, 0, len(v.str))
		for i := len(cs) - 1; i >= 0; i-- {
			s = append(s, cs[i].str...)
		}
		return FromString(string(s)), nil
	}
	items, err := argList("reverse", v)
	if err != nil {
		return Null, err
	}
	out := make([]Value, len(items))
	for i, it := range items {
		out[len(items)-1-i] = share(it)
	}
	return sameKind(v, out), nil
}

// biSort returns a sorted list. Items must be mutually ordered; NaN sorts
// after every number.
func biSort(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argSeq("sort", args[0])
	if err != nil {
		return Null, err
	}
	out := shareAll(items)
	var cmpErr error
	sort.SliceStable(out, func(i, j int) bool {
		c, ordered, err := compare(out[i], out[j])
		if err != nil {
			if cmpErr == nil {
				cmpErr = err
			}
			return false
		}
		if !ordered {
			return !isNaN(out[i]) && isNaN(out[j])
		}
		return c < 0
	})
	if cmpErr != nil {
		return Null, cmpErr
	}
	return NewList(out...), nil
}

func isNaN(v Value) bool {
	return v.kind == KindFloat && math.IsNaN(v.Float())
}

func biKeys(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindMap:
		keys, _ := v.MapEntries()
		return NewList(shareAll(keys)...), nil
	case KindRecord:
		names := v.Record().names
		items := make([]Value, len(names))
		for i, n := range names {
			items[i] = FromString(n)
		}
		return NewList(items...), nil
	}
	return Null, faultf(FaultType, "keys of %s", v.TypeName())
}

func biValues(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindMap:
		_, vals := v.MapEntries()
		return NewList(shareAll(vals)...), nil
	case KindRecord:
		return NewList(shareAll(v.Record().fields)...), nil
	}
	return Null, faultf(FaultType, "values of %s", v.TypeName())
}

func biHasKey(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v, k := args[0], args[1]
	switch v.kind {
	case KindMap:
		_, ok, err := v.ref.(*mapStore).get(k)
		return FromBool(ok), err
	case KindRecord:
		return FromBool(k.kind == KindString && v.Record().fieldIndex(k.str) >= 0), nil
	}
	return Null, faultf(FaultType, "has_key of %s", v.TypeName())
}

// biRemove returns a copy without a map key, set element or list index.
func biRemove(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v, k := args[0], args[1]
	switch v.kind {
	case KindMap:
		s, err := v.ref.(*mapStore).without(k)
		if err != nil {
			return Null, err
		}
		return Value{kind: KindMap, ref: s}, nil
	case KindSet:
		s, err := v.ref.(*setStore).without(k)
		if err != nil {
			return Null, err
		}
		return Value{kind: KindSet, ref: s}, nil
	case KindList:
		items := v.Items()
		i, err := position(k, len(items))
		if err != nil {
			return Null, err
		}
		out := make([]Value, 0, len(items)-1)
		out = append(out, shareAll(items[:i])...)
		out = append(out, shareAll(items[i+1:])...)
		return NewList(out...), nil
	}
	return Null, faultf(FaultType, "remove from %s", v.TypeName())
}

func biPush(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argList("push", args[0])
	if err != nil {
		return Null, err
	}
	out := make([]Value, 0, len(items)+1)
	out = append(out, shareAll(items)...)
	out = append(out, share(args[1]))
	return sameKind(args[0], out), nil
}

// biPop returns the tuple (rest, last).
func biPop(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argList("pop", args[0])
	if err != nil {
		return Null, err
	}
	if len(items) == 0 {
		return Null, faultf(FaultIndex, "pop from an empty %s", args[0].TypeName())
	}
	n := len(items) - 1
	rest := sameKind(args[0], shareAll(items[:n]))
	return NewTuple(rest, share(items[n])), nil
}

// first and last read null from an empty sequence.

func biFirst(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argSeq("first", args[0])
	if err != nil || len(items) == 0 {
		return Null, err
	}
	return items[0], nil
}

func biLast(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argSeq("last", args[0])
	if err != nil || len(items) == 0 {
		return Null, err
	}
	return items[len(items)-1], nil
}

// biRange takes (hi), (lo, hi) or (lo, hi, step).
func biRange(_ *Machine, _ *fiber, args []Value) (Value, error) {
	var bounds [3]int64
	bounds[2] = 1
	for i, a := range args {
		n, err := argInt("range", a)
		if err != nil {
			return Null, err
		}
		bounds[i] = n
	}
	lo, hi, step := bounds[0], bounds[1], bounds[2]
	if len(args) == 1 {
		lo, hi = 0, bounds[0]
	}
	if step == 0 {
		return Null, faultf(FaultType, "range: step must not be zero")
	}
	var n int64
	switch {
	case step > 0 && hi > lo:
		n = (hi - lo + step - 1) / step
	case step < 0 && hi < lo:
		n = (lo - hi - step - 1) / -step
	}
	if n < 0 || n > maxRangeLen {
		return Null, faultf(FaultOverflow, "range: more than %d elements", maxRangeLen)
	}
	items := make([]Value, n)
	for i := range items {
		items[i] = FromInt(lo + int64(i)*step)
	}
	return NewList(items...), nil
}

func clampCount(name string, v Value, n int) (int, error) {
	k, err := argInt(name, v)
	if err != nil {
		return 0, err
	}
	switch {
	case k < 0:
		return 0, nil
	case k > int64(n):
		return n, nil
	}
	return int(k), nil
}

func biTake(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argList("take", args[0])
	if err != nil {
		return Null, err
	}
	k, err := clampCount("take", args[1], len(items))
	if err != nil {
		return Null, err
	}
	return sameKind(args[0], shareAll(items[:k])), nil
}

func biDrop(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argList("drop", args[0])
	if err != nil {
		return Null, err
	}
	k, err := clampCount("drop", args[1], len(items))
	if err != nil {
		return Null, err
	}
	return sameKind(args[0], shareAll(items[k:])), nil
}

// ---------------------------------------------------------------------------
// Sets
// ---------------------------------------------------------------------------

func biSetAdd(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argSet("set_add", args[0])
	if err != nil {
		return Null, err
	}
	out := s.clone()
	if err := out.add(args[1]); err != nil {
		return Null, err
	}
	return Value{kind: KindSet, ref: out}, nil
}

func biSetHas(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argSet("set_has", args[0])
	if err != nil {
		return Null, err
	}
	ok, err := s.has(args[1])
	return FromBool(ok), err
}

func biSetRemove(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argSet("set_remove", args[0])
	if err != nil {
		return Null, err
	}
	out, err := s.without(args[1])
	if err != nil {
		return Null, err
	}
	return Value{kind: KindSet, ref: out}, nil
}

// biToList converts sequences, strings (to characters) and maps (to
// key/value tuples).
func biToList(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindList, KindTuple, KindSet:
		return NewList(shareAll(v.Items())...), nil
	case KindString:
		return NewList(chars(v.str)...), nil
	case KindMap:
		keys, vals := v.MapEntries()
		items := make([]Value, len(keys))
		for i := range keys {
			items[i] = NewTuple(share(keys[i]), share(vals[i]))
		}
		return NewList(items...), nil
	}
	return Null, faultf(FaultType, "to_list of %s", v.TypeName())
}

func biToSet(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindSet:
		return v, nil
	case KindList, KindTuple:
		return NewSet(v.Items()...)
	case KindString:
		return NewSet(chars(v.str)...)
	}
	return Null, faultf(FaultType, "to_set of %s", v.TypeName())
}

// ---------------------------------------------------------------------------
// Records and variants
// ---------------------------------------------------------------------------

// biFields returns a record's fields as a name-to-value map.
func biFields(_ *Machine, _ *fiber, args []Value) (Value, error) {
	r := args[0].Record()
	if r == nil {
		return Null, faultf(FaultType, "fields of %s", args[0].TypeName())
	}
	s := newMapStore(len(r.names))
	for i, n := range r.names {
		if err := s.set(FromString(n), share(r.fields[i])); err != nil {
			return Null, err
		}
	}
	return Value{kind: KindMap, ref: s}, nil
}

func biTagOf(_ *Machine, _ *fiber, args []Value) (Value, error) {
	vr := args[0].Variant()
	if vr == nil {
		return Null, faultf(FaultType, "tag_of %s", args[0].TypeName())
	}
	return FromString(vr.Tag()), nil
}

// biPayload returns a variant's payload as a tuple.
func biPayload(_ *Machine, _ *fiber, args []Value) (Value, error) {
	vr := args[0].Variant()
	if vr == nil {
		return Null, faultf(FaultType, "payload of %s", args[0].TypeName())
	}
	return NewTuple(shareAll(vr.Payload)...), nil
}

// ---------------------------------------------------------------------------
// Aggregates
// ---------------------------------------------------------------------------

// fold builds sum and product with the checked arithmetic of ADD and MUL.
func fold(name string, op bytecode.Opcode, unit int64) intrinsicFunc {
	return func(_ *Machine, _ *fiber, args []Value) (Value, error) {
		items, err := argSeq(name, args[0])
		if err != nil {
			return Null, err
		}
		acc := FromInt(unit)
		for _, it := range items {
			if acc, err = binaryOp(op, acc, it); err != nil {
				return Null, err
			}
		}
		return acc, nil
	}
}

func biAny(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argSeq("any", args[0])
	if err != nil {
		return Null, err
	}
	for _, it := range items {
		if it.Truthy() {
			return FromBool(true), nil
		}
	}
	return FromBool(false), nil
}

func biAll(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argSeq("all", args[0])
	if err != nil {
		return Null, err
	}
	for _, it := range items {
		if !it.Truthy() {
			return FromBool(false), nil
		}
	}
	return FromBool(true), nil
}

func biZip(_ *Machine, _ *fiber, args []Value) (Value, error) {
	a, err := argSeq("zip", args[0])
	if err != nil {
		return Null, err
	}
	b, err := argSeq("zip", args[1])
	if err != nil {
		return Null, err
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	items := make([]Value, n)
	for i := range items {
		items[i] = NewTuple(share(a[i]), share(b[i]))
	}
	return NewList(items...), nil
}

func biEnumerate(_ *Machine, _ *fiber, args []Value) (Value, error) {
	src, err := argSeq("enumerate", args[0])
	if err != nil {
		return Null, err
	}
	items := make([]Value, len(src))
	for i, it := range src {
		items[i] = NewTuple(FromInt(int64(i)), share(it))
	}
	return NewList(items...), nil
}

// biFlatten removes one level of list or tuple nesting.
func biFlatten(_ *Machine, _ *fiber, args []Value) (Value, error) {
	src, err := argSeq("flatten", args[0])
	if err != nil {
		return Null, err
	}
	var items []Value
	for _, it := range src {
		if it.kind == KindList || it.kind == KindTuple {
			items = append(items, shareAll(it.Items())...)
			continue
		}
		items = append(items, share(it))
	}
	return NewList(items...), nil
}

// biUnique drops repeated items, keeping first occurrences in order.
func biUnique(_ *Machine, _ *fiber, args []Value) (Value, error) {
	src, err := argSeq("unique", args[0])
	if err != nil {
		return Null, err
	}
	s, err := NewSet(src...)
	if err != nil {
		return Null, err
	}
	return NewList(shareAll(s.Items())...), nil
}

func biCount(_ *Machine, _ *fiber, args []Value) (Value, error) {
	c, x := args[0], args[1]
	if c.kind == KindString {
		sub, err := argStr("count", x)
		if err != nil {
			return Null, err
		}
		return FromInt(int64(strings.Count(c.str, sub))), nil
	}
	items, err := argSeq("count", c)
	if err != nil {
		return Null, err
	}
	n := 0
	for _, it := range items {
		if Equal(it, x) {
			n++
		}
	}
	return FromInt(int64(n)), nil
}

// biMerge returns a map with the entries of b laid over a.
func biMerge(_ *Machine, _ *fiber, args []Value) (Value, error) {
	a, b := args[0], args[1]
	if a.kind != KindMap || b.kind != KindMap {
		return Null, faultf(FaultType, "merge of %s and %s", a.TypeName(), b.TypeName())
	}
	out := a.ref.(*mapStore).clone()
	keys, vals := b.MapEntries()
	for i := range keys {
		if err := out.set(share(keys[i]), share(vals[i])); err != nil {
			return Null, err
		}
	}
	return Value{kind: KindMap, ref: out}, nil
}
