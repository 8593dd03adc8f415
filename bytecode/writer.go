package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ---------------------------------------------------------------------------
// Writer: serializes a module to the binary format
// ---------------------------------------------------------------------------

// Writer serializes modules. All integers are big-endian; every length and
// count is a uint32.
type Writer struct {
	buf     *bytes.Buffer
	strings stringTable
}

// NewWriter creates a writer with an empty buffer.
func NewWriter() *Writer {
	return &Writer{buf: bytes.NewBuffer(nil)}
}

// Marshal serializes m and returns the bytes.
func Marshal(m *Module) ([]byte, error) {
	w := NewWriter()
	if err := w.WriteModule(m); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Write serializes m to out.
func Write(out io.Writer, m *Module) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// Bytes returns the serialized data.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// WriteModule serializes a complete module: header, then the string, type,
// function, tool and effect tables.
func (w *Writer) WriteModule(m *Module) error {
	w.buf.Reset()
	w.strings = stringTable{}
	walkStrings(m, w.strings.add)

	w.buf.Write(Magic[:])
	if err := w.writeString(m.Version); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	if err := w.writeString(m.SourceHash); err != nil {
		return fmt.Errorf("writing source hash: %w", err)
	}

	if err := w.writeStringTable(); err != nil {
		return err
	}
	if err := w.writeTypes(m.Types); err != nil {
		return err
	}
	if err := w.writeFunctions(m.Functions); err != nil {
		return err
	}
	if err := w.writeTools(m.Tools); err != nil {
		return err
	}
	return w.writeEffects(m.Effects)
}

// ---------------------------------------------------------------------------
// Primitive encoders
// ---------------------------------------------------------------------------

func (w *Writer) writeUint8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) writeCount(n int) error {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return fmt.Errorf("%w: count %d", ErrTooLarge, n)
	}
	w.writeUint32(uint32(n))
	return nil
}

// writeString writes [length:32 | utf8 bytes].
func (w *Writer) writeString(s string) error {
	if err := w.writeCount(len(s)); err != nil {
		return err
	}
	w.buf.WriteString(s)
	return nil
}

func (w *Writer) writeBool(b bool) {
	if b {
		w.writeUint8(1)
	} else {
		w.writeUint8(0)
	}
}

// writeRef writes the string table index of s.
func (w *Writer) writeRef(s string) {
	w.writeUint32(w.strings.index[s])
}

// ---------------------------------------------------------------------------
// Sections
// ---------------------------------------------------------------------------

func (w *Writer) writeStringTable() error {
	if err := w.writeCount(len(w.strings.strings)); err != nil {
		return fmt.Errorf("writing string table: %w", err)
	}
	for _, s := range w.strings.strings {
		if err := w.writeString(s); err != nil {
			return fmt.Errorf("writing string table: %w", err)
		}
	}
	return nil
}

func (w *Writer) writeTypes(types []TypeDef) error {
	if err := w.writeCount(len(types)); err != nil {
		return fmt.Errorf("writing type table: %w", err)
	}
	for _, t := range types {
		w.writeRef(t.Name)
		w.writeUint8(uint8(t.Kind))
		switch t.Kind {
		case TypeRecord:
			if err := w.writeCount(len(t.Fields)); err != nil {
				return err
			}
			for _, f := range t.Fields {
				w.writeRef(f.Name)
				w.writeRef(f.Type)
			}
		case TypeEnum:
			if err := w.writeCount(len(t.Cases)); err != nil {
				return err
			}
			for _, c := range t.Cases {
				w.writeRef(c.Name)
				if err := w.writeCount(len(c.Payload)); err != nil {
					return err
				}
				for _, p := range c.Payload {
					w.writeRef(p)
				}
			}
		case TypeAlias:
			w.writeRef(t.Target)
		default:
			return fmt.Errorf("type %q: %w %d", t.Name, ErrInvalidTypeKind, t.Kind)
		}
	}
	return nil
}

func (w *Writer) writeFunctions(fns []*Function) error {
	if err := w.writeCount(len(fns)); err != nil {
		return fmt.Errorf("writing function table: %w", err)
	}
	for _, f := range fns {
		if err := w.writeFunction(f); err != nil {
			return fmt.Errorf("writing function %q: %w", f.Name, err)
		}
	}
	return nil
}

func (w *Writer) writeFunction(f *Function) error {
	w.writeRef(f.Name)
	if err := w.writeCount(len(f.Params)); err != nil {
		return err
	}
	for _, p := range f.Params {
		w.writeRef(p.Name)
		w.writeRef(p.Type)
		w.writeUint8(p.Register)
		w.writeBool(p.Variadic)
	}
	w.writeBool(f.Return != "")
	if f.Return != "" {
		w.writeRef(f.Return)
	}
	w.writeUint8(f.NumRegisters)

	if err := w.writeCount(len(f.Constants)); err != nil {
		return err
	}
	for _, c := range f.Constants {
		if err := w.writeConstant(c); err != nil {
			return err
		}
	}
	if err := w.writeCount(len(f.Code)); err != nil {
		return err
	}
	for _, in := range f.Code {
		w.writeUint32(uint32(in))
	}
	return nil
}

func (w *Writer) writeConstant(c Constant) error {
	w.writeUint8(uint8(c.Kind))
	switch c.Kind {
	case ConstNull:
	case ConstBool:
		w.writeBool(c.Bool)
	case ConstInt:
		w.writeUint64(uint64(c.Int))
	case ConstFloat:
		w.writeUint64(math.Float64bits(c.Float))
	case ConstBigInt, ConstString:
		return w.writeString(c.Str)
	default:
		return fmt.Errorf("%w %d", ErrInvalidConstant, c.Kind)
	}
	return nil
}

func (w *Writer) writeTools(tools []Tool) error {
	if err := w.writeCount(len(tools)); err != nil {
		return fmt.Errorf("writing tool table: %w", err)
	}
	for _, t := range tools {
		w.writeRef(t.Alias)
		w.writeRef(t.Capability)
		w.writeRef(t.Version)
		w.writeRef(t.Schema)
		w.writeUint32(t.TimeoutMillis)
	}
	return nil
}

func (w *Writer) writeEffects(effects []Effect) error {
	if err := w.writeCount(len(effects)); err != nil {
		return fmt.Errorf("writing effect table: %w", err)
	}
	for _, e := range effects {
		w.writeRef(e.Name)
		if err := w.writeCount(len(e.Ops)); err != nil {
			return err
		}
		for _, op := range e.Ops {
			w.writeRef(op.Name)
			if err := w.writeCount(len(op.Params)); err != nil {
				return err
			}
			for _, p := range op.Params {
				w.writeRef(p)
			}
			w.writeRef(op.Return)
		}
	}
	return nil
}
