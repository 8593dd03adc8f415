package vm

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/corvid/bytecode"
)

// ---------------------------------------------------------------------------
// Intrinsic dispatch
// ---------------------------------------------------------------------------

type intrinsicFunc func(m *Machine, fib *fiber, args []Value) (Value, error)

// intrinsicImpls binds the names of the bytecode intrinsic catalog to
// their implementations. init indexes them by id.
var intrinsicImpls = map[string]intrinsicFunc{
	"len":       biLen,
	"print":     biPrint,
	"println":   biPrintln,
	"str":       biStr,
	"int":       biInt,
	"float":     biFloat,
	"type_of":   biTypeOf,
	"eval":      biEval,
	"exit":      biExit,
	"now":       biNow,
	"random":    biRandom,
	"sleep":     biSleep,
	"env":       biEnv,
	"assert":    biAssert,
	"fail":      biFail,
	"is_null":   isKind(KindNull),
	"is_int":    isKind(KindInt, KindBigInt),
	"is_float":  isKind(KindFloat),
	"is_string": isKind(KindString),
	"is_list":   isKind(KindList),
	"is_map":    isKind(KindMap),
	"bigint":    biBigInt,
	"trace_seq": biTraceSeq,

	"json_encode": biJSONEncode,
	"json_decode": biJSONDecode,
	"sha256":      biSHA256,

	"abs":    biAbs,
	"min":    extremum("min", -1),
	"max":    extremum("max", 1),
	"floor":  rounding("floor", math.Floor),
	"ceil":   rounding("ceil", math.Ceil),
	"round":  rounding("round", math.Round),
	"sqrt":   biSqrt,
	"fpow":   biFpow,
	"is_nan": biIsNaN,
	"clamp":  biClamp,
	"sign":   biSign,

	"upper":       stringMap("upper", strings.ToUpper),
	"lower":       stringMap("lower", strings.ToLower),
	"trim":        stringMap("trim", strings.TrimSpace),
	"split":       biSplit,
	"join":        biJoin,
	"contains":    biContains,
	"starts_with": stringTest("starts_with", strings.HasPrefix),
	"ends_with":   stringTest("ends_with", strings.HasSuffix),
	"replace":     biReplace,
	"index_of":    biIndexOf,
	"substring":   biSubstring,
	"chars":       biChars,
	"repeat":      biRepeat,
	"ord":         biOrd,
	"chr":         biChr,
	"format":      biFormat,
	"parse_int":   biParseInt,
	"parse_float": biParseFloat,

	"reverse":    biReverse,
	"sort":       biSort,
	"keys":       biKeys,
	"values":     biValues,
	"has_key":    biHasKey,
	"remove":     biRemove,
	"push":       biPush,
	"pop":        biPop,
	"first":      biFirst,
	"last":       biLast,
	"range":      biRange,
	"take":       biTake,
	"drop":       biDrop,
	"set_add":    biSetAdd,
	"set_has":    biSetHas,
	"set_remove": biSetRemove,
	"to_list":    biToList,
	"to_set":     biToSet,
	"fields":     biFields,
	"tag_of":     biTagOf,
	"payload":    biPayload,
	"sum":        fold("sum", bytecode.OpADD, 0),
	"product":    fold("product", bytecode.OpMUL, 1),
	"any":        biAny,
	"all":        biAll,
	"zip":        biZip,
	"enumerate":  biEnumerate,
	"flatten":    biFlatten,
	"unique":     biUnique,
	"count":      biCount,
	"merge":      biMerge,
}

var intrinsicTable []intrinsicFunc

func init() {
	catalog := bytecode.Intrinsics()
	intrinsicTable = make([]intrinsicFunc, len(catalog))
	for _, info := range catalog {
		fn, ok := intrinsicImpls[info.Name]
		if !ok {
			panic("vm: no implementation for intrinsic " + info.Name)
		}
		intrinsicTable[info.ID] = fn
	}
}

// intrinsic runs intrinsic id on args after checking arity and the
// determinism profile.
func (m *Machine) intrinsic(fib *fiber, id uint8, args []Value) (Value, error) {
	info, ok := bytecode.IntrinsicByID(id)
	if !ok {
		return Null, faultf(FaultInternal, "unknown intrinsic %d", id)
	}
	if !info.AcceptsArgs(len(args)) {
		return Null, faultf(FaultArity, "%s does not take %d arguments", info.Name, len(args))
	}
	if info.Nondeterministic && m.opts.Profile == ProfileDeterministic {
		return Null, faultf(FaultNondeterministic, "%s is not allowed in the deterministic profile", info.Name)
	}
	return intrinsicTable[id](m, fib, args)
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func argInt(name string, v Value) (int64, error) {
	if v.kind != KindInt {
		return 0, faultf(FaultType, "%s: expected int, got %s", name, v.TypeName())
	}
	return v.Int(), nil
}

func argStr(name string, v Value) (string, error) {
	if v.kind != KindString {
		return "", faultf(FaultType, "%s: expected str, got %s", name, v.TypeName())
	}
	return v.str, nil
}

func argNum(name string, v Value) (float64, error) {
	if !isNumber(v) {
		return 0, faultf(FaultType, "%s: expected a number, got %s", name, v.TypeName())
	}
	return toFloat(v), nil
}

// argSeq returns the items of a list, tuple or set.
func argSeq(name string, v Value) ([]Value, error) {
	switch v.kind {
	case KindList, KindTuple, KindSet:
		return v.Items(), nil
	}
	return nil, faultf(FaultType, "%s: expected a sequence, got %s", name, v.TypeName())
}

func joinArgs(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Core
// ---------------------------------------------------------------------------

func biLen(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindString:
		return FromInt(int64(len(v.str))), nil
	case KindList, KindTuple, KindSet:
		return FromInt(int64(len(v.Items()))), nil
	case KindMap:
		return FromInt(int64(len(v.ref.(*mapStore).keys))), nil
	case KindRecord:
		return FromInt(int64(len(v.Record().names))), nil
	}
	return Null, faultf(FaultType, "len of %s", v.TypeName())
}

func biPrint(m *Machine, _ *fiber, args []Value) (Value, error) {
	_, err := fmt.Fprint(m.opts.Stdout, joinArgs(args))
	return Null, err
}

func biPrintln(m *Machine, _ *fiber, args []Value) (Value, error) {
	_, err := fmt.Fprintln(m.opts.Stdout, joinArgs(args))
	return Null, err
}

func biStr(_ *Machine, _ *fiber, args []Value) (Value, error) {
	return FromString(args[0].String()), nil
}

func biInt(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindInt, KindBigInt:
		return v, nil
	case KindBool:
		if v.Bool() {
			return FromInt(1), nil
		}
		return FromInt(0), nil
	case KindFloat:
		return floatToInt("int", math.Trunc(v.Float()))
	case KindString:
		s := strings.TrimSpace(v.str)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return FromInt(n), nil
		}
		if n, ok := new(big.Int).SetString(s, 10); ok {
			return FromBigInt(n), nil
		}
		return Null, faultf(FaultType, "int: cannot parse %q", v.str)
	}
	return Null, faultf(FaultType, "int of %s", v.TypeName())
}

// floatToInt converts an integral float, widening to a bigint when it
// does not fit in 64 bits.
func floatToInt(name string, f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null, faultf(FaultType, "%s: %s has no integer value", name, formatFloat(f))
	}
	if f >= math.MinInt64 && f < math.MaxInt64 {
		return FromInt(int64(f)), nil
	}
	n, _ := big.NewFloat(f).Int(nil)
	return FromBigInt(n), nil
}

func biFloat(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindInt, KindBigInt, KindFloat:
		return FromFloat(toFloat(v)), nil
	case KindBool:
		if v.Bool() {
			return FromFloat(1), nil
		}
		return FromFloat(0), nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return Null, faultf(FaultType, "float: cannot parse %q", v.str)
		}
		return FromFloat(f), nil
	}
	return Null, faultf(FaultType, "float of %s", v.TypeName())
}

func biTypeOf(_ *Machine, _ *fiber, args []Value) (Value, error) {
	return FromString(args[0].TypeName()), nil
}

func isKind(kinds ...Kind) intrinsicFunc {
	return func(_ *Machine, _ *fiber, args []Value) (Value, error) {
		for _, k := range kinds {
			if args[0].kind == k {
				return FromBool(true), nil
			}
		}
		return FromBool(false), nil
	}
}

func biBigInt(_ *Machine, _ *fiber, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindInt, KindBigInt:
		return v, nil
	case KindFloat:
		return floatToInt("bigint", math.Trunc(v.Float()))
	case KindString:
		n, ok := new(big.Int).SetString(strings.TrimSpace(v.str), 10)
		if !ok {
			return Null, faultf(FaultType, "bigint: cannot parse %q", v.str)
		}
		return FromBigInt(n), nil
	}
	return Null, faultf(FaultType, "bigint of %s", v.TypeName())
}

func biTraceSeq(_ *Machine, _ *fiber, args []Value) (Value, error) {
	tr := args[0].TraceRef()
	if tr == nil {
		return Null, faultf(FaultType, "trace_seq of %s", args[0].TypeName())
	}
	return FromInt(int64(tr.Seq)), nil
}

func biEval(m *Machine, fib *fiber, args []Value) (Value, error) {
	src, err := argStr("eval", args[0])
	if err != nil {
		return Null, err
	}
	if m.opts.Evaluator == nil {
		return Null, faultf(FaultCapability, "eval is not available")
	}
	v, err := m.opts.Evaluator(fib.scope.ctx, src)
	if err != nil {
		if _, ok := err.(*Fault); ok {
			return Null, err
		}
		return Null, faultf(FaultUser, "eval: %v", err)
	}
	return v, nil
}

func biExit(_ *Machine, _ *fiber, args []Value) (Value, error) {
	code := 0
	if len(args) == 1 {
		n, err := argInt("exit", args[0])
		if err != nil {
			return Null, err
		}
		code = int(n)
	}
	return Null, &ExitError{Code: code}
}

func biAssert(_ *Machine, _ *fiber, args []Value) (Value, error) {
	if args[0].Truthy() {
		return Null, nil
	}
	if len(args) == 2 {
		return Null, faultf(FaultUser, "assertion failed: %s", args[1].String())
	}
	return Null, faultf(FaultUser, "assertion failed")
}

func biFail(_ *Machine, _ *fiber, args []Value) (Value, error) {
	return Null, faultf(FaultUser, "%s", args[0].String())
}

// ---------------------------------------------------------------------------
// Nondeterministic
// ---------------------------------------------------------------------------

// biNow returns milliseconds since the Unix epoch.
func biNow(m *Machine, _ *fiber, _ []Value) (Value, error) {
	return FromInt(m.opts.Clock().UnixMilli()), nil
}

// biRandom returns a float in [0, 1) with no arguments, an int in [0, n)
// with one and an int in [lo, hi) with two.
func biRandom(m *Machine, _ *fiber, args []Value) (Value, error) {
	if len(args) == 0 {
		return FromFloat(m.rand.Float64()), nil
	}
	lo, hi := int64(0), int64(0)
	var err error
	if len(args) == 1 {
		hi, err = argInt("random", args[0])
	} else {
		if lo, err = argInt("random", args[0]); err == nil {
			hi, err = argInt("random", args[1])
		}
	}
	if err != nil {
		return Null, err
	}
	if hi <= lo || hi-lo <= 0 {
		return Null, faultf(FaultType, "random: empty range [%d, %d)", lo, hi)
	}
	return FromInt(lo + m.rand.Int63n(hi-lo)), nil
}

func biSleep(_ *Machine, fib *fiber, args []Value) (Value, error) {
	ms, err := argInt("sleep", args[0])
	if err != nil {
		return Null, err
	}
	if ms <= 0 {
		return Null, nil
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return Null, nil
	case <-fib.scope.ctx.Done():
		err := fib.scope.ctx.Err()
		return Null, wrapFault(FaultCancelled, err, "sleep interrupted: %v", err)
	}
}

func biEnv(m *Machine, _ *fiber, args []Value) (Value, error) {
	name, err := argStr("env", args[0])
	if err != nil {
		return Null, err
	}
	if v, ok := m.opts.Env(name); ok {
		return FromString(v), nil
	}
	return Null, nil
}
