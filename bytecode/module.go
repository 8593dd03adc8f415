package bytecode

import (
	"math"
	"slices"
)

// FormatVersion is the only bytecode format version this package reads
// and writes.
const FormatVersion = "corvid-bytecode/1"

// Magic identifies a serialized module.
var Magic = [4]byte{'C', 'R', 'V', 'B'}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// ConstKind is the one-byte tag of a serialized constant.
type ConstKind uint8

const (
	ConstNull   ConstKind = 0
	ConstBool   ConstKind = 1
	ConstInt    ConstKind = 2
	ConstBigInt ConstKind = 3 // decimal digit string in Str
	ConstFloat  ConstKind = 4
	ConstString ConstKind = 5
)

func (k ConstKind) String() string {
	switch k {
	case ConstNull:
		return "null"
	case ConstBool:
		return "bool"
	case ConstInt:
		return "int"
	case ConstBigInt:
		return "bigint"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	}
	return "invalid"
}

// Constant is an entry in a function's constant pool.
type Constant struct {
	Kind  ConstKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

// NullConst returns the null constant.
func NullConst() Constant { return Constant{Kind: ConstNull} }

// BoolConst returns a boolean constant.
func BoolConst(b bool) Constant { return Constant{Kind: ConstBool, Bool: b} }

// IntConst returns a 64-bit integer constant.
func IntConst(i int64) Constant { return Constant{Kind: ConstInt, Int: i} }

// BigIntConst returns an arbitrary-precision integer constant given as
// decimal digits with an optional leading minus sign.
func BigIntConst(digits string) Constant { return Constant{Kind: ConstBigInt, Str: digits} }

// FloatConst returns a float constant.
func FloatConst(f float64) Constant { return Constant{Kind: ConstFloat, Float: f} }

// StringConst returns a string constant.
func StringConst(s string) Constant { return Constant{Kind: ConstString, Str: s} }

// Equal compares constants by tag and payload. Floats compare by bit
// pattern so NaN constants equal themselves.
func (c Constant) Equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstNull:
		return true
	case ConstBool:
		return c.Bool == o.Bool
	case ConstInt:
		return c.Int == o.Int
	case ConstFloat:
		return math.Float64bits(c.Float) == math.Float64bits(o.Float)
	default:
		return c.Str == o.Str
	}
}

// ---------------------------------------------------------------------------
// Types, functions, tools and effects
// ---------------------------------------------------------------------------

// TypeKind distinguishes entries of the type table.
type TypeKind uint8

const (
	TypeRecord TypeKind = 1
	TypeEnum   TypeKind = 2
	TypeAlias  TypeKind = 3
)

// Field is a named, typed record field.
type Field struct {
	Name string
	Type string
}

// Case is an enum case with positional payload types.
type Case struct {
	Name    string
	Payload []string
}

// TypeDef describes a user-declared type.
type TypeDef struct {
	Name   string
	Kind   TypeKind
	Fields []Field // TypeRecord
	Cases  []Case  // TypeEnum
	Target string  // TypeAlias
}

// FieldIndex returns the position of a record field, or -1.
func (t *TypeDef) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// CaseIndex returns the position of an enum case, or -1.
func (t *TypeDef) CaseIndex(name string) int {
	for i, c := range t.Cases {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Param is a function parameter bound to a register.
type Param struct {
	Name     string
	Type     string
	Register uint8
	Variadic bool
}

// Function is one compiled function: its signature, register bound,
// constant pool and instruction vector.
type Function struct {
	Name         string
	Params       []Param
	Return       string // declared return type tag, "" when absent
	NumRegisters uint8
	Constants    []Constant
	Code         []Instruction
}

// Arity returns the number of fixed parameters.
func (f *Function) Arity() int {
	if n := len(f.Params); n > 0 && f.Params[n-1].Variadic {
		return n - 1
	}
	return len(f.Params)
}

// Variadic reports whether the last parameter collects extra arguments.
func (f *Function) Variadic() bool {
	n := len(f.Params)
	return n > 0 && f.Params[n-1].Variadic
}

// Tool binds a source-level alias to an external capability.
type Tool struct {
	Alias         string
	Capability    string
	Version       string
	Schema        string // CUE expression the result must satisfy, "" for none
	TimeoutMillis uint32 // 0 means the machine default
}

// EffectOp is one operation of an effect.
type EffectOp struct {
	Name   string
	Params []string
	Return string
}

// Effect is a named set of operations that handlers implement.
type Effect struct {
	Name string
	Ops  []EffectOp
}

// OpIndex returns the position of an operation, or -1.
func (e *Effect) OpIndex(name string) int {
	for i, op := range e.Ops {
		if op.Name == name {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Module
// ---------------------------------------------------------------------------

// Module is the unit of compilation and serialization.
type Module struct {
	Version    string
	SourceHash string
	Strings    []string // derived by Finalize; rebuilt by the writer
	Types      []TypeDef
	Functions  []*Function
	Tools      []Tool
	Effects    []Effect
}

// NewModule returns an empty module at the current format version.
func NewModule(sourceHash string) *Module {
	return &Module{Version: FormatVersion, SourceHash: sourceHash}
}

// Finalize recomputes the interned string table.
func (m *Module) Finalize() {
	m.Strings = InternStrings(m)
}

// FunctionIndex returns the index of the named function, or -1.
func (m *Module) FunctionIndex(name string) int {
	for i, f := range m.Functions {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Type returns the named type definition.
func (m *Module) Type(name string) (*TypeDef, bool) {
	for i := range m.Types {
		if m.Types[i].Name == name {
			return &m.Types[i], true
		}
	}
	return nil, false
}

// ToolIndex returns the index of the tool with the given alias, or -1.
func (m *Module) ToolIndex(alias string) int {
	for i := range m.Tools {
		if m.Tools[i].Alias == alias {
			return i
		}
	}
	return -1
}

// Effect returns the named effect.
func (m *Module) Effect(name string) (*Effect, bool) {
	for i := range m.Effects {
		if m.Effects[i].Name == name {
			return &m.Effects[i], true
		}
	}
	return nil, false
}

// InternStrings returns the module's string table in canonical order: the
// first occurrence of each name while walking types, functions, tools and
// effects in table order.
func InternStrings(m *Module) []string {
	var st stringTable
	walkStrings(m, st.add)
	return st.strings
}

// walkStrings visits every interned string in serialization order.
func walkStrings(m *Module, visit func(string)) {
	for _, t := range m.Types {
		visit(t.Name)
		switch t.Kind {
		case TypeRecord:
			for _, f := range t.Fields {
				visit(f.Name)
				visit(f.Type)
			}
		case TypeEnum:
			for _, c := range t.Cases {
				visit(c.Name)
				for _, p := range c.Payload {
					visit(p)
				}
			}
		case TypeAlias:
			visit(t.Target)
		}
	}
	for _, f := range m.Functions {
		visit(f.Name)
		for _, p := range f.Params {
			visit(p.Name)
			visit(p.Type)
		}
		if f.Return != "" {
			visit(f.Return)
		}
	}
	for _, t := range m.Tools {
		visit(t.Alias)
		visit(t.Capability)
		visit(t.Version)
		visit(t.Schema)
	}
	for _, e := range m.Effects {
		visit(e.Name)
		for _, op := range e.Ops {
			visit(op.Name)
			for _, p := range op.Params {
				visit(p)
			}
			visit(op.Return)
		}
	}
}

type stringTable struct {
	strings []string
	index   map[string]uint32
}

func (st *stringTable) add(s string) {
	if st.index == nil {
		st.index = make(map[string]uint32)
	}
	if _, ok := st.index[s]; ok {
		return
	}
	st.index[s] = uint32(len(st.strings))
	st.strings = append(st.strings, s)
}

// Equal reports whether two modules are identical field for field.
func (m *Module) Equal(o *Module) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Version != o.Version || m.SourceHash != o.SourceHash {
		return false
	}
	if !slices.Equal(m.Strings, o.Strings) {
		return false
	}
	if !slices.EqualFunc(m.Types, o.Types, typeDefEqual) {
		return false
	}
	if !slices.EqualFunc(m.Functions, o.Functions, functionEqual) {
		return false
	}
	if !slices.Equal(m.Tools, o.Tools) {
		return false
	}
	return slices.EqualFunc(m.Effects, o.Effects, func(a, b Effect) bool {
		return a.Name == b.Name && slices.EqualFunc(a.Ops, b.Ops, func(x, y EffectOp) bool {
			return x.Name == y.Name && x.Return == y.Return && slices.Equal(x.Params, y.Params)
		})
	})
}

func typeDefEqual(a, b TypeDef) bool {
	return a.Name == b.Name && a.Kind == b.Kind && a.Target == b.Target &&
		slices.Equal(a.Fields, b.Fields) &&
		slices.EqualFunc(a.Cases, b.Cases, func(x, y Case) bool {
			return x.Name == y.Name && slices.Equal(x.Payload, y.Payload)
		})
}

func functionEqual(a, b *Function) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name && a.Return == b.Return && a.NumRegisters == b.NumRegisters &&
		slices.Equal(a.Params, b.Params) &&
		slices.EqualFunc(a.Constants, b.Constants, Constant.Equal) &&
		slices.Equal(a.Code, b.Code)
}
