package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxStringBytes bounds strings built by repeat.
const maxStringBytes = 1 << 28

func stringMap(name string, fn func(string) string) intrinsicFunc {
	return func(_ *Machine, _ *fiber, args []Value) (Value, error) {
		s, err := argStr(name, args[0])
		if err != nil {
			return Null, err
		}
		return FromString(fn(s)), nil
	}
}

func stringTest(name string, fn func(string, string) bool) intrinsicFunc {
	return func(_ *Machine, _ *fiber, args []Value) (Value, error) {
		s, err := argStr(name, args[0])
		if err != nil {
			return Null, err
		}
		x, err := argStr(name, args[1])
		if err != nil {
			return Null, err
		}
		return FromBool(fn(s, x)), nil
	}
}

func biSplit(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argStr("split", args[0])
	if err != nil {
		return Null, err
	}
	sep, err := argStr("split", args[1])
	if err != nil {
		return Null, err
	}
	parts := strings.Split(s, sep)
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = FromString(p)
	}
	return NewList(items...), nil
}

// biJoin joins the string forms of a sequence's items.
func biJoin(_ *Machine, _ *fiber, args []Value) (Value, error) {
	items, err := argSeq("join", args[0])
	if err != nil {
		return Null, err
	}
	sep, err := argStr("join", args[1])
	if err != nil {
		return Null, err
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return FromString(strings.Join(parts, sep)), nil
}

func biContains(_ *Machine, _ *fiber, args []Value) (Value, error) {
	ok, err := contains(args[0], args[1])
	if err != nil {
		return Null, err
	}
	return FromBool(ok), nil
}

func biReplace(_ *Machine, _ *fiber, args []Value) (Value, error) {
	var ss [3]string
	for i := range ss {
		s, err := argStr("replace", args[i])
		if err != nil {
			return Null, err
		}
		ss[i] = s
	}
	return FromString(strings.ReplaceAll(ss[0], ss[1], ss[2])), nil
}

// biIndexOf returns the byte offset of a substring or the position of an
// item, or -1.
func biIndexOf(_ *Machine, _ *fiber, args []Value) (Value, error) {
	c, x := args[0], args[1]
	switch c.kind {
	case KindString:
		sub, err := argStr("index_of", x)
		if err != nil {
			return Null, err
		}
		return FromInt(int64(strings.Index(c.str, sub))), nil
	case KindList, KindTuple:
		for i, it := range c.Items() {
			if Equal(it, x) {
				return FromInt(int64(i)), nil
			}
		}
		return FromInt(-1), nil
	}
	return Null, faultf(FaultType, "index_of in %s", c.TypeName())
}

func biSubstring(_ *Machine, _ *fiber, args []Value) (Value, error) {
	if args[0].kind != KindString {
		return Null, faultf(FaultType, "substring of %s", args[0].TypeName())
	}
	hi := Null
	if len(args) == 3 {
		hi = args[2]
	}
	return slice(args[0], args[1], hi)
}

func biChars(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argStr("chars", args[0])
	if err != nil {
		return Null, err
	}
	return NewList(chars(s)...), nil
}

func chars(s string) []Value {
	items := make([]Value, 0, utf8.RuneCountInString(s))
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		items = append(items, FromString(s[i:i+size]))
		i += size
	}
	return items
}

func biRepeat(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argStr("repeat", args[0])
	if err != nil {
		return Null, err
	}
	n, err := argInt("repeat", args[1])
	if err != nil {
		return Null, err
	}
	if n < 0 {
		return Null, faultf(FaultType, "repeat: negative count %d", n)
	}
	if n > 0 && int64(len(s)) > maxStringBytes/n {
		return Null, faultf(FaultOverflow, "repeat: result exceeds %d bytes", maxStringBytes)
	}
	return FromString(strings.Repeat(s, int(n))), nil
}

func biOrd(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argStr("ord", args[0])
	if err != nil {
		return Null, err
	}
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) {
		return Null, faultf(FaultType, "ord: expected a single character, got %q", s)
	}
	return FromInt(int64(r)), nil
}

func biChr(_ *Machine, _ *fiber, args []Value) (Value, error) {
	n, err := argInt("chr", args[0])
	if err != nil {
		return Null, err
	}
	if n < 0 || n > utf8.MaxRune || !utf8.ValidRune(rune(n)) {
		return Null, faultf(FaultType, "chr: %d is not a valid code point", n)
	}
	return FromString(string(rune(n))), nil
}

// biFormat substitutes {} placeholders in order. {{ and }} are literal
// braces.
func biFormat(_ *Machine, _ *fiber, args []Value) (Value, error) {
	tmpl, err := argStr("format", args[0])
	if err != nil {
		return Null, err
	}
	rest := args[1:]
	var sb strings.Builder
	next := 0
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch {
		case ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			sb.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			sb.WriteByte('}')
			i++
		case ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			if next >= len(rest) {
				return Null, faultf(FaultArity, "format: %q needs more than %d arguments", tmpl, len(rest))
			}
			sb.WriteString(rest[next].String())
			next++
			i++
		default:
			sb.WriteByte(ch)
		}
	}
	if next != len(rest) {
		return Null, faultf(FaultArity, "format: %q uses %d of %d arguments", tmpl, next, len(rest))
	}
	return FromString(sb.String()), nil
}

// biParseInt returns null rather than faulting on malformed input.
func biParseInt(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argStr("parse_int", args[0])
	if err != nil {
		return Null, err
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromInt(n), nil
	}
	if v, err := biBigInt(nil, nil, []Value{FromString(s)}); err == nil {
		return v, nil
	}
	return Null, nil
}

func biParseFloat(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argStr("parse_float", args[0])
	if err != nil {
		return Null, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Null, nil
	}
	return FromFloat(f), nil
}

// biSHA256 returns the hex digest of a string's bytes.
func biSHA256(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argStr("sha256", args[0])
	if err != nil {
		return Null, err
	}
	sum := sha256.Sum256([]byte(s))
	return FromString(hex.EncodeToString(sum[:])), nil
}
