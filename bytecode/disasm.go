package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at pc, annotating constant
// and jump operands.
func DisassembleInstruction(f *Function, pc int) string {
	in := f.Code[pc]
	op := in.Op()
	info := op.Info()

	switch info.Layout {
	case LayoutSAx:
		off := in.SAx()
		return fmt.Sprintf("%04d  %-12s %+d (-> %04d)", pc, info.Name, off, pc+1+int(off))
	case LayoutAx:
		return fmt.Sprintf("%04d  %-12s %d", pc, info.Name, in.Ax())
	case LayoutABx:
		s := fmt.Sprintf("%04d  %-12s %d %d", pc, info.Name, in.A(), in.Bx())
		if info.B == OperandConst {
			s += "  ; " + constantString(f, int(in.Bx()))
		}
		return s
	}

	if !op.Valid() {
		return fmt.Sprintf("%04d  %-12s %08x", pc, info.Name, uint32(in))
	}
	s := fmt.Sprintf("%04d  %-12s %d %d %d", pc, info.Name, in.A(), in.B(), in.C())
	switch {
	case info.B == OperandConst:
		s += "  ; " + constantString(f, int(in.B()))
	case info.C == OperandConst:
		s += "  ; " + constantString(f, int(in.C()))
	}
	return s
}

func constantString(f *Function, idx int) string {
	if idx >= len(f.Constants) {
		return fmt.Sprintf("K[%d] out of range", idx)
	}
	return formatConstant(f.Constants[idx])
}

func formatConstant(c Constant) string {
	switch c.Kind {
	case ConstNull:
		return "null"
	case ConstBool:
		return strconv.FormatBool(c.Bool)
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstBigInt:
		return c.Str + "n"
	case ConstFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case ConstString:
		return strconv.Quote(c.Str)
	}
	return "?"
}

// DisassembleFunction returns a listing of one function.
func DisassembleFunction(f *Function) string {
	var sb strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Name
		if p.Type != "" {
			params[i] += ": " + p.Type
		}
		if p.Variadic {
			params[i] += "..."
		}
	}
	fmt.Fprintf(&sb, "fn %s(%s)", f.Name, strings.Join(params, ", "))
	if f.Return != "" {
		fmt.Fprintf(&sb, " -> %s", f.Return)
	}
	fmt.Fprintf(&sb, "  registers=%d constants=%d\n", f.NumRegisters, len(f.Constants))
	for pc := range f.Code {
		sb.WriteString("  ")
		sb.WriteString(DisassembleInstruction(f, pc))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Disassemble returns a full listing of a module.
func Disassemble(m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s hash=%s\n", m.Version, m.SourceHash)
	for _, t := range m.Types {
		switch t.Kind {
		case TypeRecord:
			fields := make([]string, len(t.Fields))
			for i, f := range t.Fields {
				fields[i] = f.Name + ": " + f.Type
			}
			fmt.Fprintf(&sb, "type %s { %s }\n", t.Name, strings.Join(fields, ", "))
		case TypeEnum:
			cases := make([]string, len(t.Cases))
			for i, c := range t.Cases {
				cases[i] = c.Name
				if len(c.Payload) > 0 {
					cases[i] += "(" + strings.Join(c.Payload, ", ") + ")"
				}
			}
			fmt.Fprintf(&sb, "enum %s { %s }\n", t.Name, strings.Join(cases, ", "))
		case TypeAlias:
			fmt.Fprintf(&sb, "alias %s = %s\n", t.Name, t.Target)
		}
	}
	for _, e := range m.Effects {
		ops := make([]string, len(e.Ops))
		for i, op := range e.Ops {
			ops[i] = fmt.Sprintf("%s/%d", op.Name, len(op.Params))
		}
		fmt.Fprintf(&sb, "effect %s { %s }\n", e.Name, strings.Join(ops, ", "))
	}
	for _, t := range m.Tools {
		fmt.Fprintf(&sb, "tool %s = %s@%s", t.Alias, t.Capability, t.Version)
		if t.TimeoutMillis > 0 {
			fmt.Fprintf(&sb, " timeout=%dms", t.TimeoutMillis)
		}
		sb.WriteByte('\n')
	}
	for i, f := range m.Functions {
		fmt.Fprintf(&sb, "\n; function %d\n", i)
		sb.WriteString(DisassembleFunction(f))
	}
	return sb.String()
}
