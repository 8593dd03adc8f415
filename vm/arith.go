package vm

import (
	"math"
	"math/big"
	"strings"

	"github.com/chazu/corvid/bytecode"
)

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// Exponents and shifts that would build integers wider than this many bits
// fault instead of allocating.
const maxBigBits = 1 << 20

func overflow(op string) *Fault {
	return faultf(FaultOverflow, "integer overflow in %s", op)
}

func typeMismatch(op string, a, b Value) *Fault {
	return faultf(FaultType, "unsupported operands for %s: %s and %s", op, a.TypeName(), b.TypeName())
}

func isInteger(v Value) bool { return v.kind == KindInt || v.kind == KindBigInt }

func toFloat(v Value) float64 {
	switch v.kind {
	case KindInt:
		return float64(v.Int())
	case KindBigInt:
		f, _ := new(big.Float).SetInt(v.ref.(*big.Int)).Float64()
		return f
	}
	return v.Float()
}

// binaryOp applies an arithmetic, bitwise or concatenation opcode.
func binaryOp(op bytecode.Opcode, a, b Value) (Value, error) {
	name := op.Name()
	switch op {
	case bytecode.OpCONCAT:
		return concat(a, b)
	case bytecode.OpBAND, bytecode.OpBOR, bytecode.OpBXOR, bytecode.OpSHL, bytecode.OpSHR:
		if !isInteger(a) || !isInteger(b) {
			return Null, typeMismatch(name, a, b)
		}
		return bitwise(op, a, b)
	}
	if !isNumber(a) || !isNumber(b) {
		return Null, typeMismatch(name, a, b)
	}
	if a.kind == KindFloat || b.kind == KindFloat {
		return floatArith(op, toFloat(a), toFloat(b))
	}
	if a.kind == KindInt && b.kind == KindInt {
		return intArith(op, a.Int(), b.Int())
	}
	return bigArith(op, a.BigInt(), b.BigInt())
}

func intArith(op bytecode.Opcode, x, y int64) (Value, error) {
	switch op {
	case bytecode.OpADD:
		r := x + y
		if (x^r)&(y^r) < 0 {
			return Null, overflow("ADD")
		}
		return FromInt(r), nil
	case bytecode.OpSUB:
		r := x - y
		if (x^y)&(x^r) < 0 {
			return Null, overflow("SUB")
		}
		return FromInt(r), nil
	case bytecode.OpMUL:
		r, ok := mulInt(x, y)
		if !ok {
			return Null, overflow("MUL")
		}
		return FromInt(r), nil
	case bytecode.OpDIV:
		if y == 0 {
			return Null, faultf(FaultDivisionByZero, "integer division by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return Null, overflow("DIV")
		}
		return FromInt(x / y), nil
	case bytecode.OpMOD:
		if y == 0 {
			return Null, faultf(FaultDivisionByZero, "integer modulo by zero")
		}
		return FromInt(x % y), nil
	case bytecode.OpPOW:
		if y < 0 {
			return FromFloat(math.Pow(float64(x), float64(y))), nil
		}
		r, ok := powInt(x, y)
		if !ok {
			return Null, overflow("POW")
		}
		return FromInt(r), nil
	}
	return Null, faultf(FaultInternal, "%s is not arithmetic", op)
}

func mulInt(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	r := x * y
	if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	return r, true
}

func powInt(x, y int64) (int64, bool) {
	r := int64(1)
	for y > 0 {
		if y&1 == 1 {
			var ok bool
			if r, ok = mulInt(r, x); !ok {
				return 0, false
			}
		}
		y >>= 1
		if y > 0 {
			var ok bool
			if x, ok = mulInt(x, x); !ok {
				return 0, false
			}
		}
	}
	return r, true
}

func bigArith(op bytecode.Opcode, x, y *big.Int) (Value, error) {
	r := new(big.Int)
	switch op {
	case bytecode.OpADD:
		r.Add(x, y)
	case bytecode.OpSUB:
		r.Sub(x, y)
	case bytecode.OpMUL:
		r.Mul(x, y)
	case bytecode.OpDIV:
		if y.Sign() == 0 {
			return Null, faultf(FaultDivisionByZero, "integer division by zero")
		}
		r.Quo(x, y)
	case bytecode.OpMOD:
		if y.Sign() == 0 {
			return Null, faultf(FaultDivisionByZero, "integer modulo by zero")
		}
		r.Rem(x, y)
	case bytecode.OpPOW:
		if y.Sign() < 0 {
			return FromFloat(math.Pow(toFloat(FromBigInt(x)), toFloat(FromBigInt(y)))), nil
		}
		if !y.IsInt64() || int64(x.BitLen())*y.Int64() > maxBigBits {
			return Null, overflow("POW")
		}
		r.Exp(x, y, nil)
	default:
		return Null, faultf(FaultInternal, "%s is not arithmetic", op)
	}
	return FromBigInt(r), nil
}

func floatArith(op bytecode.Opcode, x, y float64) (Value, error) {
	switch op {
	case bytecode.OpADD:
		return FromFloat(x + y), nil
	case bytecode.OpSUB:
		return FromFloat(x - y), nil
	case bytecode.OpMUL:
		return FromFloat(x * y), nil
	case bytecode.OpDIV:
		if y == 0 {
			return Null, faultf(FaultDivisionByZero, "float division by zero")
		}
		return FromFloat(x / y), nil
	case bytecode.OpMOD:
		if y == 0 {
			return Null, faultf(FaultDivisionByZero, "float modulo by zero")
		}
		return FromFloat(math.Mod(x, y)), nil
	case bytecode.OpPOW:
		return FromFloat(math.Pow(x, y)), nil
	}
	return Null, faultf(FaultInternal, "%s is not arithmetic", op)
}

func bitwise(op bytecode.Opcode, a, b Value) (Value, error) {
	if op == bytecode.OpSHL || op == bytecode.OpSHR {
		return shift(op, a, b)
	}
	if a.kind == KindInt && b.kind == KindInt {
		x, y := a.Int(), b.Int()
		switch op {
		case bytecode.OpBAND:
			return FromInt(x & y), nil
		case bytecode.OpBOR:
			return FromInt(x | y), nil
		}
		return FromInt(x ^ y), nil
	}
	x, y, r := a.BigInt(), b.BigInt(), new(big.Int)
	switch op {
	case bytecode.OpBAND:
		r.And(x, y)
	case bytecode.OpBOR:
		r.Or(x, y)
	default:
		r.Xor(x, y)
	}
	return FromBigInt(r), nil
}

func shift(op bytecode.Opcode, a, b Value) (Value, error) {
	if b.kind != KindInt || b.Int() < 0 {
		return Null, faultf(FaultType, "shift count must be a non-negative int, got %s", b.Repr())
	}
	n := b.Int()
	if op == bytecode.OpSHR {
		if a.kind == KindInt {
			if n > 63 {
				n = 63
			}
			return FromInt(a.Int() >> uint(n)), nil
		}
		return FromBigInt(new(big.Int).Rsh(a.BigInt(), uint(n))), nil
	}
	if a.kind == KindInt {
		x := a.Int()
		if x == 0 {
			return FromInt(0), nil
		}
		if n < 63 {
			r := x << uint(n)
			if r>>uint(n) == x {
				return FromInt(r), nil
			}
		}
		return Null, overflow("SHL")
	}
	x := a.BigInt()
	if int64(x.BitLen())+n > maxBigBits {
		return Null, overflow("SHL")
	}
	return FromBigInt(x.Lsh(x, uint(n))), nil
}

// negate implements NEG.
func negate(v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		if v.Int() == math.MinInt64 {
			return Null, overflow("NEG")
		}
		return FromInt(-v.Int()), nil
	case KindBigInt:
		return FromBigInt(new(big.Int).Neg(v.ref.(*big.Int))), nil
	case KindFloat:
		return FromFloat(-v.Float()), nil
	}
	return Null, faultf(FaultType, "cannot negate %s", v.TypeName())
}

// complement implements BNOT.
func complement(v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		return FromInt(^v.Int()), nil
	case KindBigInt:
		return FromBigInt(new(big.Int).Not(v.ref.(*big.Int))), nil
	}
	return Null, faultf(FaultType, "cannot complement %s", v.TypeName())
}

func concat(a, b Value) (Value, error) {
	switch {
	case a.kind == KindString && b.kind == KindString:
		return FromString(a.str + b.str), nil
	case a.kind == KindList && b.kind == KindList:
		x, y := a.Items(), b.Items()
		items := make([]Value, 0, len(x)+len(y))
		items = append(items, shareAll(x)...)
		items = append(items, shareAll(y)...)
		return NewList(items...), nil
	case a.kind == KindTuple && b.kind == KindTuple:
		x, y := a.Items(), b.Items()
		items := make([]Value, 0, len(x)+len(y))
		items = append(items, shareAll(x)...)
		items = append(items, shareAll(y)...)
		return NewTuple(items...), nil
	}
	return Null, typeMismatch("CONCAT", a, b)
}

// contains implements IN: membership in a list, tuple, set or map keys,
// or substring search.
func contains(container, x Value) (bool, error) {
	switch container.kind {
	case KindList, KindTuple:
		for _, it := range container.Items() {
			if Equal(it, x) {
				return true, nil
			}
		}
		return false, nil
	case KindSet:
		ok, err := container.ref.(*setStore).has(x)
		return ok && err == nil, nil
	case KindMap:
		_, ok, err := container.ref.(*mapStore).get(x)
		return ok && err == nil, nil
	case KindString:
		if x.kind != KindString {
			return false, faultf(FaultType, "cannot search a string for %s", x.TypeName())
		}
		return strings.Contains(container.str, x.str), nil
	}
	return false, faultf(FaultType, "%s is not a container", container.TypeName())
}
