package vm

import (
	"math"
	"math/big"
	"strings"
)

// ---------------------------------------------------------------------------
// Equality and ordering
// ---------------------------------------------------------------------------

func isNumber(v Value) bool {
	return v.kind == KindInt || v.kind == KindBigInt || v.kind == KindFloat
}

// numCompare compares two numbers exactly. ok is false when either side
// is NaN.
func numCompare(a, b Value) (c int, ok bool) {
	if a.kind == KindInt && b.kind == KindInt {
		x, y := a.Int(), b.Int()
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if a.kind == KindFloat && b.kind == KindFloat {
		x, y := a.Float(), b.Float()
		switch {
		case math.IsNaN(x) || math.IsNaN(y):
			return 0, false
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if a.kind != KindFloat && b.kind != KindFloat {
		return a.BigInt().Cmp(b.BigInt()), true
	}
	x, xok := bigFloat(a)
	y, yok := bigFloat(b)
	if !xok || !yok {
		return 0, false
	}
	return x.Cmp(y), true
}

func bigFloat(v Value) (*big.Float, bool) {
	if v.kind == KindFloat {
		f := v.Float()
		if math.IsNaN(f) {
			return nil, false
		}
		return new(big.Float).SetFloat64(f), true
	}
	return new(big.Float).SetInt(v.BigInt()), true
}

// Equal reports structural equality. Numbers compare by value across int,
// bigint and float; NaN equals nothing. Closures, futures and
// continuations compare by identity. Maps and sets ignore order.
func Equal(a, b Value) bool {
	if isNumber(a) && isNumber(b) {
		c, ok := numCompare(a, b)
		return ok && c == 0
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool() == b.Bool()
	case KindString:
		return a.str == b.str
	case KindList, KindTuple:
		return equalSeq(a.Items(), b.Items())
	case KindSet:
		x, y := a.ref.(*setStore), b.ref.(*setStore)
		if len(x.items) != len(y.items) {
			return false
		}
		for k := range x.index {
			if _, ok := y.index[k]; !ok {
				return false
			}
		}
		return true
	case KindMap:
		x, y := a.ref.(*mapStore), b.ref.(*mapStore)
		if len(x.keys) != len(y.keys) {
			return false
		}
		for k, i := range x.index {
			j, ok := y.index[k]
			if !ok || !Equal(x.vals[i], y.vals[j]) {
				return false
			}
		}
		return true
	case KindRecord:
		x, y := a.Record(), b.Record()
		return x.Type == y.Type && equalSeq(x.fields, y.fields)
	case KindVariant:
		x, y := a.Variant(), b.Variant()
		return x.Enum == y.Enum && x.Case == y.Case && equalSeq(x.Payload, y.Payload)
	case KindClosure, KindFuture:
		return a.ref == b.ref
	case KindTraceRef:
		return a.TraceRef().Seq == b.TraceRef().Seq
	case KindContinuation:
		return a.bits == b.bits
	}
	return false
}

func equalSeq(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// compare orders two values. ordered is false when NaN is involved, in
// which case every ordering comparison is false. Numbers, strings and
// lists or tuples of orderable values are ordered; anything else is a
// type fault.
func compare(a, b Value) (c int, ordered bool, err error) {
	if isNumber(a) && isNumber(b) {
		c, ok := numCompare(a, b)
		return c, ok, nil
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.str, b.str), true, nil
	}
	if (a.kind == KindList || a.kind == KindTuple) && a.kind == b.kind {
		x, y := a.Items(), b.Items()
		for i := 0; i < len(x) && i < len(y); i++ {
			c, ok, err := compare(x[i], y[i])
			if err != nil || !ok {
				return 0, ok, err
			}
			if c != 0 {
				return c, true, nil
			}
		}
		switch {
		case len(x) < len(y):
			return -1, true, nil
		case len(x) > len(y):
			return 1, true, nil
		}
		return 0, true, nil
	}
	return 0, false, faultf(FaultType, "cannot order %s and %s", a.TypeName(), b.TypeName())
}
