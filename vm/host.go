package vm

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
)

// ---------------------------------------------------------------------------
// Host projection
// ---------------------------------------------------------------------------

// ToHost converts v to plain Go data for the capability boundary, JSON
// and trace payloads:
//
//	null -> nil, bool -> bool, int -> int64, bigint -> *big.Int,
//	float -> float64, str -> string, list/tuple/set -> []any,
//	map -> map[string]any, record -> map[string]any of its fields,
//	variant -> {"tag": "Enum.Case", "payload": []any},
//	trace reference -> {"trace": seq, "label": label}
//
// Map keys that are not strings are rendered with their str form.
// Closures, futures and continuations have no host form.
func ToHost(v Value) (any, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.Bool(), nil
	case KindInt:
		return v.Int(), nil
	case KindBigInt:
		return v.BigInt(), nil
	case KindFloat:
		return v.Float(), nil
	case KindString:
		return v.str, nil
	case KindList, KindTuple, KindSet:
		return hostSlice(v.Items())
	case KindMap:
		keys, vals := v.MapEntries()
		out := make(map[string]any, len(keys))
		for i, k := range keys {
			hv, err := ToHost(vals[i])
			if err != nil {
				return nil, err
			}
			out[k.String()] = hv
		}
		return out, nil
	case KindRecord:
		r := v.Record()
		out := make(map[string]any, len(r.names))
		for i, n := range r.names {
			hv, err := ToHost(r.fields[i])
			if err != nil {
				return nil, err
			}
			out[n] = hv
		}
		return out, nil
	case KindVariant:
		vr := v.Variant()
		payload, err := hostSlice(vr.Payload)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tag": vr.Tag(), "payload": payload}, nil
	case KindTraceRef:
		tr := v.TraceRef()
		return map[string]any{"trace": int64(tr.Seq), "label": tr.Label}, nil
	}
	return nil, faultf(FaultType, "%s has no host representation", v.TypeName())
}

func hostSlice(items []Value) ([]any, error) {
	out := make([]any, len(items))
	for i, it := range items {
		hv, err := ToHost(it)
		if err != nil {
			return nil, err
		}
		out[i] = hv
	}
	return out, nil
}

// jsonNumber matches the decoders' number literal types.
type jsonNumber interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// FromHost converts plain Go data into a Value. Maps become Corvid maps;
// map[string]any keys are inserted in sorted order so the result does not
// depend on Go's map iteration.
func FromHost(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case Value:
		return t, nil
	case bool:
		return FromBool(t), nil
	case int:
		return FromInt(int64(t)), nil
	case int8:
		return FromInt(int64(t)), nil
	case int16:
		return FromInt(int64(t)), nil
	case int32:
		return FromInt(int64(t)), nil
	case int64:
		return FromInt(t), nil
	case uint:
		return fromUint(uint64(t)), nil
	case uint8:
		return FromInt(int64(t)), nil
	case uint16:
		return FromInt(int64(t)), nil
	case uint32:
		return FromInt(int64(t)), nil
	case uint64:
		return fromUint(t), nil
	case float32:
		return FromFloat(float64(t)), nil
	case float64:
		return FromFloat(t), nil
	case string:
		return FromString(t), nil
	case []byte:
		return FromString(string(t)), nil
	case *big.Int:
		if t == nil {
			return Null, nil
		}
		return FromBigInt(new(big.Int).Set(t)), nil
	case big.Int:
		return FromBigInt(new(big.Int).Set(&t)), nil
	case jsonNumber:
		return fromNumber(t)
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			v, err := FromHost(it)
			if err != nil {
				return Null, err
			}
			items[i] = v
		}
		return NewList(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := newMapStore(len(keys))
		for _, k := range keys {
			v, err := FromHost(t[k])
			if err != nil {
				return Null, err
			}
			if err := s.set(FromString(k), v); err != nil {
				return Null, err
			}
		}
		return Value{kind: KindMap, ref: s}, nil
	case map[any]any:
		return fromAnyMap(t)
	}
	return Null, faultf(FaultType, "cannot convert host value of type %s", reflect.TypeOf(x))
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return FromBigInt(new(big.Int).SetUint64(u))
	}
	return FromInt(int64(u))
}

func fromNumber(n jsonNumber) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return FromInt(i), nil
	}
	if b, ok := new(big.Int).SetString(n.String(), 10); ok {
		return FromBigInt(b), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return Null, faultf(FaultType, "malformed number %q", n.String())
	}
	return FromFloat(f), nil
}

// fromAnyMap converts a map with arbitrary keys, ordering entries by the
// key's str form.
func fromAnyMap(t map[any]any) (Value, error) {
	type entry struct {
		name string
		k, v Value
	}
	entries := make([]entry, 0, len(t))
	for hk, hv := range t {
		k, err := FromHost(hk)
		if err != nil {
			return Null, err
		}
		v, err := FromHost(hv)
		if err != nil {
			return Null, err
		}
		entries = append(entries, entry{name: fmt.Sprintf("%d:%s", k.kind, k.Repr()), k: k, v: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	s := newMapStore(len(entries))
	for _, e := range entries {
		if err := s.set(e.k, e.v); err != nil {
			return Null, err
		}
	}
	return Value{kind: KindMap, ref: s}, nil
}
