package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ---------------------------------------------------------------------------
// Reader: deserializes a module from the binary format
// ---------------------------------------------------------------------------

// Reader decodes a serialized module held in memory. Every read names the
// field it is reading so truncated input reports exactly what was missing.
type Reader struct {
	data    []byte
	offset  int
	strings []string
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Unmarshal decodes a module from data.
func Unmarshal(data []byte) (*Module, error) {
	return NewReader(data).ReadModule()
}

// Read decodes a module from r.
func Read(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read module data: %w", err)
	}
	return Unmarshal(data)
}

// ReadModule decodes the header and all tables. Bad magic and unknown
// versions fail before any table is read.
func (r *Reader) ReadModule() (*Module, error) {
	r.offset = 0
	magic, err := r.readBytes(len(Magic), "magic")
	if err != nil {
		return nil, err
	}
	if string(magic) != string(Magic[:]) {
		return nil, fmt.Errorf("%w: got %q", ErrBadMagic, magic)
	}
	version, err := r.readString("version")
	if err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrUnsupportedVersion, FormatVersion, version)
	}
	hash, err := r.readString("source hash")
	if err != nil {
		return nil, err
	}

	m := &Module{Version: version, SourceHash: hash}
	if m.Strings, err = r.readStringTable(); err != nil {
		return nil, err
	}
	if m.Types, err = r.readTypes(); err != nil {
		return nil, err
	}
	if m.Functions, err = r.readFunctions(); err != nil {
		return nil, err
	}
	if m.Tools, err = r.readTools(); err != nil {
		return nil, err
	}
	if m.Effects, err = r.readEffects(); err != nil {
		return nil, err
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Primitive decoders
// ---------------------------------------------------------------------------

func (r *Reader) eof(field string) error {
	return &UnexpectedEOFError{Field: field, Offset: r.offset}
}

func (r *Reader) readBytes(n int, field string) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, r.eof(field)
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *Reader) readUint8(field string) (uint8, error) {
	if r.offset+1 > len(r.data) {
		return 0, r.eof(field)
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

func (r *Reader) readUint32(field string) (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, r.eof(field)
	}
	v := binary.BigEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *Reader) readUint64(field string) (uint64, error) {
	if r.offset+8 > len(r.data) {
		return 0, r.eof(field)
	}
	v := binary.BigEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v, nil
}

func (r *Reader) readBool(field string) (bool, error) {
	b, err := r.readUint8(field)
	return b != 0, err
}

// readString reads [length:32 | utf8 bytes].
func (r *Reader) readString(field string) (string, error) {
	n, err := r.readUint32(field + " length")
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(len(r.data)-r.offset) {
		return "", r.eof(field)
	}
	b, err := r.readBytes(int(n), field)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readCount reads a table count and bounds the capacity callers preallocate
// so corrupt counts cannot force large allocations.
func (r *Reader) readCount(field string) (int, int, error) {
	n, err := r.readUint32(field)
	if err != nil {
		return 0, 0, err
	}
	capHint := int(n)
	if rem := len(r.data) - r.offset; capHint > rem {
		capHint = rem
	}
	if uint64(n) > math.MaxInt32 {
		return 0, 0, fmt.Errorf("%s: %w", field, ErrTooLarge)
	}
	return int(n), capHint, nil
}

// readRef reads a string table index and resolves it.
func (r *Reader) readRef(field string) (string, error) {
	idx, err := r.readUint32(field)
	if err != nil {
		return "", err
	}
	if int(idx) >= len(r.strings) {
		return "", fmt.Errorf("%s: %w %d (table has %d)", field, ErrInvalidStringIndex, idx, len(r.strings))
	}
	return r.strings[idx], nil
}

// ---------------------------------------------------------------------------
// Sections
// ---------------------------------------------------------------------------

func (r *Reader) readStringTable() ([]string, error) {
	n, c, err := r.readCount("string table count")
	if err != nil {
		return nil, err
	}
	r.strings = make([]string, 0, c)
	for i := 0; i < n; i++ {
		s, err := r.readString(fmt.Sprintf("string[%d]", i))
		if err != nil {
			return nil, err
		}
		r.strings = append(r.strings, s)
	}
	if n == 0 {
		return nil, nil
	}
	return r.strings, nil
}

func (r *Reader) readTypes() ([]TypeDef, error) {
	n, c, err := r.readCount("type table count")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	types := make([]TypeDef, 0, c)
	for i := 0; i < n; i++ {
		field := fmt.Sprintf("type[%d]", i)
		var t TypeDef
		if t.Name, err = r.readRef(field + ".name"); err != nil {
			return nil, err
		}
		kind, err := r.readUint8(field + ".kind")
		if err != nil {
			return nil, err
		}
		t.Kind = TypeKind(kind)
		switch t.Kind {
		case TypeRecord:
			nf, cf, err := r.readCount(field + ".fields count")
			if err != nil {
				return nil, err
			}
			if nf > 0 {
				t.Fields = make([]Field, 0, cf)
			}
			for j := 0; j < nf; j++ {
				var f Field
				if f.Name, err = r.readRef(fmt.Sprintf("%s.field[%d].name", field, j)); err != nil {
					return nil, err
				}
				if f.Type, err = r.readRef(fmt.Sprintf("%s.field[%d].type", field, j)); err != nil {
					return nil, err
				}
				t.Fields = append(t.Fields, f)
			}
		case TypeEnum:
			nc, cc, err := r.readCount(field + ".cases count")
			if err != nil {
				return nil, err
			}
			if nc > 0 {
				t.Cases = make([]Case, 0, cc)
			}
			for j := 0; j < nc; j++ {
				cf := fmt.Sprintf("%s.case[%d]", field, j)
				var cs Case
				if cs.Name, err = r.readRef(cf + ".name"); err != nil {
					return nil, err
				}
				np, cp, err := r.readCount(cf + ".payload count")
				if err != nil {
					return nil, err
				}
				if np > 0 {
					cs.Payload = make([]string, 0, cp)
				}
				for k := 0; k < np; k++ {
					p, err := r.readRef(fmt.Sprintf("%s.payload[%d]", cf, k))
					if err != nil {
						return nil, err
					}
					cs.Payload = append(cs.Payload, p)
				}
				t.Cases = append(t.Cases, cs)
			}
		case TypeAlias:
			if t.Target, err = r.readRef(field + ".target"); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%s: %w %d", field, ErrInvalidTypeKind, kind)
		}
		types = append(types, t)
	}
	return types, nil
}

func (r *Reader) readFunctions() ([]*Function, error) {
	n, c, err := r.readCount("function table count")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	fns := make([]*Function, 0, c)
	for i := 0; i < n; i++ {
		f, err := r.readFunction(fmt.Sprintf("function[%d]", i))
		if err != nil {
			return nil, err
		}
		fns = append(fns, f)
	}
	return fns, nil
}

func (r *Reader) readFunction(field string) (*Function, error) {
	f := &Function{}
	var err error
	if f.Name, err = r.readRef(field + ".name"); err != nil {
		return nil, err
	}
	np, cp, err := r.readCount(field + ".params count")
	if err != nil {
		return nil, err
	}
	if np > 0 {
		f.Params = make([]Param, 0, cp)
	}
	for i := 0; i < np; i++ {
		pf := fmt.Sprintf("%s.param[%d]", field, i)
		var p Param
		if p.Name, err = r.readRef(pf + ".name"); err != nil {
			return nil, err
		}
		if p.Type, err = r.readRef(pf + ".type"); err != nil {
			return nil, err
		}
		if p.Register, err = r.readUint8(pf + ".register"); err != nil {
			return nil, err
		}
		if p.Variadic, err = r.readBool(pf + ".variadic"); err != nil {
			return nil, err
		}
		f.Params = append(f.Params, p)
	}
	hasReturn, err := r.readBool(field + ".has return")
	if err != nil {
		return nil, err
	}
	if hasReturn {
		if f.Return, err = r.readRef(field + ".return"); err != nil {
			return nil, err
		}
	}
	if f.NumRegisters, err = r.readUint8(field + ".registers"); err != nil {
		return nil, err
	}

	nk, ck, err := r.readCount(field + ".constants count")
	if err != nil {
		return nil, err
	}
	if nk > 0 {
		f.Constants = make([]Constant, 0, ck)
	}
	for i := 0; i < nk; i++ {
		k, err := r.readConstant(fmt.Sprintf("%s.constant[%d]", field, i))
		if err != nil {
			return nil, err
		}
		f.Constants = append(f.Constants, k)
	}

	ni, ci, err := r.readCount(field + ".code count")
	if err != nil {
		return nil, err
	}
	if ni > 0 {
		f.Code = make([]Instruction, 0, ci/4+1)
	}
	for i := 0; i < ni; i++ {
		w, err := r.readUint32(fmt.Sprintf("%s.code[%d]", field, i))
		if err != nil {
			return nil, err
		}
		f.Code = append(f.Code, Instruction(w))
	}
	return f, nil
}

func (r *Reader) readConstant(field string) (Constant, error) {
	tag, err := r.readUint8(field + ".tag")
	if err != nil {
		return Constant{}, err
	}
	c := Constant{Kind: ConstKind(tag)}
	switch c.Kind {
	case ConstNull:
	case ConstBool:
		c.Bool, err = r.readBool(field + ".bool")
	case ConstInt:
		var v uint64
		v, err = r.readUint64(field + ".int")
		c.Int = int64(v)
	case ConstFloat:
		var v uint64
		v, err = r.readUint64(field + ".float")
		c.Float = math.Float64frombits(v)
	case ConstBigInt:
		c.Str, err = r.readString(field + ".bigint")
	case ConstString:
		c.Str, err = r.readString(field + ".string")
	default:
		return Constant{}, fmt.Errorf("%s: %w %d", field, ErrInvalidConstant, tag)
	}
	return c, err
}

func (r *Reader) readTools() ([]Tool, error) {
	n, c, err := r.readCount("tool table count")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	tools := make([]Tool, 0, c)
	for i := 0; i < n; i++ {
		field := fmt.Sprintf("tool[%d]", i)
		var t Tool
		if t.Alias, err = r.readRef(field + ".alias"); err != nil {
			return nil, err
		}
		if t.Capability, err = r.readRef(field + ".capability"); err != nil {
			return nil, err
		}
		if t.Version, err = r.readRef(field + ".version"); err != nil {
			return nil, err
		}
		if t.Schema, err = r.readRef(field + ".schema"); err != nil {
			return nil, err
		}
		if t.TimeoutMillis, err = r.readUint32(field + ".timeout"); err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func (r *Reader) readEffects() ([]Effect, error) {
	n, c, err := r.readCount("effect table count")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	effects := make([]Effect, 0, c)
	for i := 0; i < n; i++ {
		field := fmt.Sprintf("effect[%d]", i)
		var e Effect
		if e.Name, err = r.readRef(field + ".name"); err != nil {
			return nil, err
		}
		no, co, err := r.readCount(field + ".ops count")
		if err != nil {
			return nil, err
		}
		if no > 0 {
			e.Ops = make([]EffectOp, 0, co)
		}
		for j := 0; j < no; j++ {
			of := fmt.Sprintf("%s.op[%d]", field, j)
			var op EffectOp
			if op.Name, err = r.readRef(of + ".name"); err != nil {
				return nil, err
			}
			np, cp, err := r.readCount(of + ".params count")
			if err != nil {
				return nil, err
			}
			if np > 0 {
				op.Params = make([]string, 0, cp)
			}
			for k := 0; k < np; k++ {
				p, err := r.readRef(fmt.Sprintf("%s.param[%d]", of, k))
				if err != nil {
					return nil, err
				}
				op.Params = append(op.Params, p)
			}
			if op.Return, err = r.readRef(of + ".return"); err != nil {
				return nil, err
			}
			e.Ops = append(e.Ops, op)
		}
		effects = append(effects, e)
	}
	return effects, nil
}
