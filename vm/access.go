package vm

import (
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Field, index and slice access
// ---------------------------------------------------------------------------

// getField reads a record field or a string key of a map. Missing map
// keys read as null.
func getField(obj Value, name string) (Value, error) {
	switch obj.kind {
	case KindRecord:
		if v, ok := obj.Record().Field(name); ok {
			return v, nil
		}
		return Null, faultf(FaultIndex, "%s has no field %s", obj.Record().Type, name)
	case KindMap:
		v, _, err := obj.ref.(*mapStore).get(FromString(name))
		return v, err
	}
	return Null, faultf(FaultType, "cannot read field %s of %s", name, obj.TypeName())
}

func setField(obj *Value, name string, v Value) error {
	switch obj.kind {
	case KindRecord:
		i := obj.Record().fieldIndex(name)
		if i < 0 {
			return faultf(FaultIndex, "%s has no field %s", obj.Record().Type, name)
		}
		obj.mutableRecord().fields[i] = v
		return nil
	case KindMap:
		return obj.mutableMap().set(FromString(name), v)
	}
	return faultf(FaultType, "cannot set field %s of %s", name, obj.TypeName())
}

// position converts an index operand for a sequence of length n.
func position(idx Value, n int) (int, error) {
	if idx.kind != KindInt {
		return 0, faultf(FaultType, "index must be an int, got %s", idx.TypeName())
	}
	i := idx.Int()
	if i < 0 || i >= int64(n) {
		return 0, faultf(FaultIndex, "index %d out of range [0, %d)", i, n)
	}
	return int(i), nil
}

func getIndex(obj, idx Value) (Value, error) {
	switch obj.kind {
	case KindList, KindTuple:
		items := obj.Items()
		i, err := position(idx, len(items))
		if err != nil {
			return Null, err
		}
		return items[i], nil
	case KindMap:
		v, _, err := obj.ref.(*mapStore).get(idx)
		return v, err
	case KindString:
		i, err := position(idx, len(obj.str))
		if err != nil {
			return Null, err
		}
		if !utf8.RuneStart(obj.str[i]) {
			return Null, faultf(FaultSlice, "index %d is inside a UTF-8 sequence", i)
		}
		_, size := utf8.DecodeRuneInString(obj.str[i:])
		return FromString(obj.str[i : i+size]), nil
	case KindRecord:
		if idx.kind != KindString {
			return Null, faultf(FaultType, "record index must be a str, got %s", idx.TypeName())
		}
		return getField(obj, idx.str)
	}
	return Null, faultf(FaultType, "cannot index %s", obj.TypeName())
}

func setIndex(obj *Value, idx, v Value) error {
	switch obj.kind {
	case KindList:
		i, err := position(idx, len(obj.Items()))
		if err != nil {
			return err
		}
		obj.mutableList().items[i] = v
		return nil
	case KindMap:
		return obj.mutableMap().set(share(idx), v)
	case KindRecord:
		if idx.kind != KindString {
			return faultf(FaultType, "record index must be a str, got %s", idx.TypeName())
		}
		return setField(obj, idx.str, v)
	}
	return faultf(FaultType, "cannot assign into %s", obj.TypeName())
}

// bounds resolves optional slice bounds against length n.
func bounds(lo, hi Value, n int) (int, int, error) {
	l, h := 0, n
	if !lo.IsNull() {
		if lo.kind != KindInt {
			return 0, 0, faultf(FaultType, "slice bound must be an int, got %s", lo.TypeName())
		}
		if lo.Int() < 0 || lo.Int() > int64(n) {
			return 0, 0, faultf(FaultSlice, "slice start %d out of range [0, %d]", lo.Int(), n)
		}
		l = int(lo.Int())
	}
	if !hi.IsNull() {
		if hi.kind != KindInt {
			return 0, 0, faultf(FaultType, "slice bound must be an int, got %s", hi.TypeName())
		}
		if hi.Int() < 0 || hi.Int() > int64(n) {
			return 0, 0, faultf(FaultSlice, "slice end %d out of range [0, %d]", hi.Int(), n)
		}
		h = int(hi.Int())
	}
	if l > h {
		return 0, 0, faultf(FaultSlice, "slice start %d is after end %d", l, h)
	}
	return l, h, nil
}

// slice implements SLICE for lists, tuples and strings. String bounds are
// byte offsets and must fall on character boundaries.
func slice(obj, lo, hi Value) (Value, error) {
	switch obj.kind {
	case KindList, KindTuple:
		items := obj.Items()
		l, h, err := bounds(lo, hi, len(items))
		if err != nil {
			return Null, err
		}
		part := shareAll(items[l:h])
		if obj.kind == KindTuple {
			return NewTuple(part...), nil
		}
		return NewList(part...), nil
	case KindString:
		s := obj.str
		l, h, err := bounds(lo, hi, len(s))
		if err != nil {
			return Null, err
		}
		if (l < len(s) && !utf8.RuneStart(s[l])) || (h < len(s) && !utf8.RuneStart(s[h])) {
			return Null, faultf(FaultSlice, "slice [%d:%d] splits a UTF-8 sequence", l, h)
		}
		return FromString(s[l:h]), nil
	}
	return Null, faultf(FaultType, "cannot slice %s", obj.TypeName())
}
