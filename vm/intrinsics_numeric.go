package vm

import (
	"math"
	"math/big"
)

func biAbs(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindInt:
		if v.Int() < 0 {
			return negate(v)
		}
		return v, nil
	case KindBigInt:
		return FromBigInt(new(big.Int).Abs(v.ref.(*big.Int))), nil
	case KindFloat:
		return FromFloat(math.Abs(v.Float())), nil
	}
	return Null, faultf(FaultType, "abs of %s", v.TypeName())
}

// extremum builds min (dir -1) and max (dir 1). A single sequence
// argument is searched element-wise; NaN wins as soon as it is seen.
func extremum(name string, dir int) intrinsicFunc {
	return func(_ *Machine, _ *fiber, args []Value) (Value, error) {
		items := args
		if len(args) == 1 {
			seq, err := argSeq(name, args[0])
			if err != nil {
				return Null, err
			}
			items = seq
		}
		if len(items) == 0 {
			return Null, faultf(FaultIndex, "%s of an empty sequence", name)
		}
		best := items[0]
		for _, it := range items[1:] {
			c, ordered, err := compare(it, best)
			if err != nil {
				return Null, err
			}
			if !ordered {
				if it.kind == KindFloat && math.IsNaN(it.Float()) {
					return it, nil
				}
				return best, nil
			}
			if c*dir > 0 {
				best = it
			}
		}
		return best, nil
	}
}

// rounding builds floor, ceil and round. They return ints; an int
// argument is returned unchanged.
func rounding(name string, fn func(float64) float64) intrinsicFunc {
	return func(_ *Machine, _ *fiber, args []Value) (Value, error) {
		v := args[0]
		switch v.kind {
		case KindInt, KindBigInt:
			return v, nil
		case KindFloat:
			return floatToInt(name, fn(v.Float()))
		}
		return Null, faultf(FaultType, "%s of %s", name, v.TypeName())
	}
}

func biSqrt(_ *Machine, _ *fiber, args []Value) (Value, error) {
	f, err := argNum("sqrt", args[0])
	if err != nil {
		return Null, err
	}
	return FromFloat(math.Sqrt(f)), nil
}

func biFpow(_ *Machine, _ *fiber, args []Value) (Value, error) {
	x, err := argNum("fpow", args[0])
	if err != nil {
		return Null, err
	}
	y, err := argNum("fpow", args[1])
	if err != nil {
		return Null, err
	}
	return FromFloat(math.Pow(x, y)), nil
}

func biIsNaN(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	return FromBool(v.kind == KindFloat && math.IsNaN(v.Float())), nil
}

func biClamp(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v, lo, hi := args[0], args[1], args[2]
	for _, x := range args {
		if !isNumber(x) {
			return Null, faultf(FaultType, "clamp: expected numbers, got %s", x.TypeName())
		}
	}
	if c, ordered, _ := compare(lo, hi); ordered && c > 0 {
		return Null, faultf(FaultType, "clamp: lower bound %s exceeds upper bound %s", lo, hi)
	}
	if c, ordered, _ := compare(v, lo); ordered && c < 0 {
		return lo, nil
	}
	if c, ordered, _ := compare(v, hi); ordered && c > 0 {
		return hi, nil
	}
	return v, nil
}

func biSign(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindInt:
		switch {
		case v.Int() > 0:
			return FromInt(1), nil
		case v.Int() < 0:
			return FromInt(-1), nil
		}
		return FromInt(0), nil
	case KindBigInt:
		return FromInt(int64(v.ref.(*big.Int).Sign())), nil
	case KindFloat:
		f := v.Float()
		switch {
		case math.IsNaN(f):
			return v, nil
		case f > 0:
			return FromInt(1), nil
		case f < 0:
			return FromInt(-1), nil
		}
		return FromInt(0), nil
	}
	return Null, faultf(FaultType, "sign of %s", v.TypeName())
}
