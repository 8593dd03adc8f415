package bytecode

// ---------------------------------------------------------------------------
// Intrinsic catalog
// ---------------------------------------------------------------------------

// IntrinsicInfo describes one entry of the intrinsic table. The id is the
// entry's position and is encoded in the B operand of INTRINSIC, so the
// order below is frozen.
type IntrinsicInfo struct {
	ID      uint8
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic

	// Nondeterministic intrinsics read the clock, randomness or the
	// environment and are rejected under the deterministic profile.
	Nondeterministic bool
}

const variadic = -1

var intrinsicTable = []IntrinsicInfo{
	{0, "len", 1, 1, false},
	{1, "print", 0, variadic, false},
	{2, "println", 0, variadic, false},
	{3, "str", 1, 1, false},
	{4, "int", 1, 1, false},
	{5, "float", 1, 1, false},
	{6, "type_of", 1, 1, false},
	{7, "json_encode", 1, 1, false},
	{8, "json_decode", 1, 1, false},
	{9, "abs", 1, 1, false},
	{10, "min", 1, variadic, false},
	{11, "max", 1, variadic, false},
	{12, "floor", 1, 1, false},
	{13, "ceil", 1, 1, false},
	{14, "round", 1, 1, false},
	{15, "sqrt", 1, 1, false},
	{16, "fpow", 2, 2, false},
	{17, "is_nan", 1, 1, false},
	{18, "upper", 1, 1, false},
	{19, "lower", 1, 1, false},
	{20, "trim", 1, 1, false},
	{21, "split", 2, 2, false},
	{22, "join", 2, 2, false},
	{23, "contains", 2, 2, false},
	{24, "starts_with", 2, 2, false},
	{25, "ends_with", 2, 2, false},
	{26, "replace", 3, 3, false},
	{27, "index_of", 2, 2, false},
	{28, "substring", 2, 3, false},
	{29, "chars", 1, 1, false},
	{30, "repeat", 2, 2, false},
	{31, "reverse", 1, 1, false},
	{32, "sort", 1, 1, false},
	{33, "keys", 1, 1, false},
	{34, "values", 1, 1, false},
	{35, "has_key", 2, 2, false},
	{36, "remove", 2, 2, false},
	{37, "push", 2, 2, false},
	{38, "pop", 1, 1, false},
	{39, "first", 1, 1, false},
	{40, "last", 1, 1, false},
	{41, "range", 1, 3, false},
	{42, "take", 2, 2, false},
	{43, "drop", 2, 2, false},
	{44, "set_add", 2, 2, false},
	{45, "set_has", 2, 2, false},
	{46, "set_remove", 2, 2, false},
	{47, "to_list", 1, 1, false},
	{48, "to_set", 1, 1, false},
	{49, "fields", 1, 1, false},
	{50, "tag_of", 1, 1, false},
	{51, "payload", 1, 1, false},
	{52, "eval", 1, 1, false},
	{53, "exit", 0, 1, false},
	{54, "now", 0, 0, true},
	{55, "random", 0, 2, true},
	{56, "sleep", 1, 1, true},
	{57, "env", 1, 1, true},
	{58, "assert", 1, 2, false},
	{59, "fail", 1, 1, false},
	{60, "sha256", 1, 1, false},
	{61, "ord", 1, 1, false},
	{62, "chr", 1, 1, false},
	{63, "format", 1, variadic, false},
	{64, "parse_int", 1, 1, false},
	{65, "parse_float", 1, 1, false},
	{66, "is_null", 1, 1, false},
	{67, "is_int", 1, 1, false},
	{68, "is_float", 1, 1, false},
	{69, "is_string", 1, 1, false},
	{70, "is_list", 1, 1, false},
	{71, "is_map", 1, 1, false},
	{72, "sum", 1, 1, false},
	{73, "product", 1, 1, false},
	{74, "any", 1, 1, false},
	{75, "all", 1, 1, false},
	{76, "zip", 2, 2, false},
	{77, "enumerate", 1, 1, false},
	{78, "flatten", 1, 1, false},
	{79, "unique", 1, 1, false},
	{80, "count", 2, 2, false},
	{81, "bigint", 1, 1, false},
	{82, "clamp", 3, 3, false},
	{83, "sign", 1, 1, false},
	{84, "trace_seq", 1, 1, false},
	{85, "merge", 2, 2, false},
}

var intrinsicsByName = func() map[string]IntrinsicInfo {
	m := make(map[string]IntrinsicInfo, len(intrinsicTable))
	for _, in := range intrinsicTable {
		m[in.Name] = in
	}
	return m
}()

// Intrinsics returns the full intrinsic table in id order.
func Intrinsics() []IntrinsicInfo {
	return intrinsicTable
}

// LookupIntrinsic finds an intrinsic by name.
func LookupIntrinsic(name string) (IntrinsicInfo, bool) {
	in, ok := intrinsicsByName[name]
	return in, ok
}

// IntrinsicByID returns the intrinsic with the given id.
func IntrinsicByID(id uint8) (IntrinsicInfo, bool) {
	if int(id) >= len(intrinsicTable) {
		return IntrinsicInfo{}, false
	}
	return intrinsicTable[id], true
}

// AcceptsArgs reports whether n arguments satisfy the intrinsic's arity.
func (in IntrinsicInfo) AcceptsArgs(n int) bool {
	return n >= in.MinArgs && (in.MaxArgs == variadic || n <= in.MaxArgs)
}
