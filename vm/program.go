package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/corvid/bytecode"
)

var log = commonlog.GetLogger("corvid.vm")

// ErrInvalidModule is returned by Load for structurally invalid modules.
var ErrInvalidModule = errors.New("invalid module")

// ---------------------------------------------------------------------------
// Program: a validated, immutable module
// ---------------------------------------------------------------------------

// Program is a loaded module. It is never mutated after Load and may be
// shared by any number of machines.
type Program struct {
	Module *bytecode.Module

	funcs    []*funcInfo
	byName   map[string]int
	types    map[string]*bytecode.TypeDef
	records  map[string]recordShape
	variants map[string]variantRef
	effects  map[string]*bytecode.Effect
	ops      map[string]opRef
}

// funcInfo is the per-function data the dispatch loop reads.
type funcInfo struct {
	fn     *bytecode.Function
	index  int
	consts []Value
	maxReg []int16 // highest static register per pc, -1 when none
	upvals int     // CAPTUREs following each CLOSURE of this function
}

// recordShape is what NEWRECORD needs for a record type or an alias of
// one: the declared type name and its field names in order.
type recordShape struct {
	name   string
	fields []string
}

type variantRef struct {
	enum *bytecode.TypeDef
	idx  int
}

type opRef struct {
	effect *bytecode.Effect
	idx    int
}

// Load validates m and builds a Program. Register operands are not
// rejected here; the machine checks them before each instruction.
func Load(m *bytecode.Module) (*Program, error) {
	p := &Program{
		Module:   m,
		byName:   make(map[string]int, len(m.Functions)),
		types:    make(map[string]*bytecode.TypeDef, len(m.Types)),
		records:  make(map[string]recordShape),
		variants: make(map[string]variantRef),
		effects:  make(map[string]*bytecode.Effect, len(m.Effects)),
		ops:      make(map[string]opRef),
	}
	for i := range m.Types {
		td := &m.Types[i]
		p.types[td.Name] = td
		if td.Kind == bytecode.TypeEnum {
			for j, c := range td.Cases {
				p.variants[td.Name+"."+c.Name] = variantRef{enum: td, idx: j}
			}
		}
	}
	for name := range p.types {
		if td, ok := p.resolveType(name); ok && td.Kind == bytecode.TypeRecord {
			shape := recordShape{name: td.Name, fields: make([]string, len(td.Fields))}
			for i, f := range td.Fields {
				shape.fields[i] = f.Name
			}
			p.records[name] = shape
		}
	}
	for i := range m.Effects {
		e := &m.Effects[i]
		p.effects[e.Name] = e
		for j, op := range e.Ops {
			p.ops[e.Name+"."+op.Name] = opRef{effect: e, idx: j}
		}
	}
	for i, fn := range m.Functions {
		if fn == nil {
			return nil, fmt.Errorf("%w: function %d is nil", ErrInvalidModule, i)
		}
		if _, dup := p.byName[fn.Name]; !dup {
			p.byName[fn.Name] = i
		}
		fi := &funcInfo{fn: fn, index: i, upvals: -1}
		for j, c := range fn.Constants {
			v, err := constantValue(c)
			if err != nil {
				return nil, fmt.Errorf("%w: function %s constant %d: %v", ErrInvalidModule, fn.Name, j, err)
			}
			fi.consts = append(fi.consts, v)
		}
		if len(fn.Params) > int(fn.NumRegisters) {
			return nil, fmt.Errorf("%w: function %s has %d params but %d registers",
				ErrInvalidModule, fn.Name, len(fn.Params), fn.NumRegisters)
		}
		p.funcs = append(p.funcs, fi)
	}
	for _, fi := range p.funcs {
		if err := p.validate(fi); err != nil {
			return nil, err
		}
	}
	log.Debugf("loaded module %s: %d functions", m.SourceHash, len(m.Functions))
	return p, nil
}

// FunctionIndex returns the index of the named function, or -1.
func (p *Program) FunctionIndex(name string) int {
	if i, ok := p.byName[name]; ok {
		return i
	}
	return -1
}

// resolveType follows aliases to a record or enum definition.
func (p *Program) resolveType(name string) (*bytecode.TypeDef, bool) {
	for hops := 0; hops <= len(p.types); hops++ {
		td, ok := p.types[name]
		if !ok {
			return nil, false
		}
		if td.Kind != bytecode.TypeAlias {
			return td, true
		}
		name = td.Target
	}
	return nil, false
}

func (p *Program) invalid(fi *funcInfo, pc int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: function %s pc %d: %s", ErrInvalidModule, fi.fn.Name, pc, fmt.Sprintf(format, args...))
}

// constString returns constant idx of fi as a string.
func (p *Program) constString(fi *funcInfo, pc, idx int) (string, error) {
	if idx >= len(fi.consts) {
		return "", p.invalid(fi, pc, "constant %d out of range", idx)
	}
	if fi.consts[idx].kind != KindString {
		return "", p.invalid(fi, pc, "constant %d is %s, want str", idx, fi.consts[idx].kind)
	}
	return fi.consts[idx].str, nil
}

func (p *Program) validate(fi *funcInfo) error {
	code := fi.fn.Code
	if len(code) == 0 {
		return p.invalid(fi, 0, "empty code")
	}
	fi.maxReg = make([]int16, len(code))
	for pc, in := range code {
		op := in.Op()
		if !op.Valid() {
			return p.invalid(fi, pc, "unknown opcode 0x%02X", byte(op))
		}
		fi.maxReg[pc] = int16(bytecode.MaxRegister(in))
		info := op.Info()

		if op.IsJump() {
			target := bytecode.JumpTarget(code, pc)
			if target < 0 || target >= len(code) {
				return p.invalid(fi, pc, "jump target %d outside [0, %d)", target, len(code))
			}
			continue
		}

		if info.Layout == bytecode.LayoutABx {
			bx := int(in.Bx())
			switch info.B {
			case bytecode.OperandConst:
				if bx >= len(fi.consts) {
					return p.invalid(fi, pc, "constant %d out of range", bx)
				}
			case bytecode.OperandFunc:
				if bx >= len(p.funcs) {
					return p.invalid(fi, pc, "function %d out of range", bx)
				}
			case bytecode.OperandTool:
				if bx >= len(p.Module.Tools) {
					return p.invalid(fi, pc, "tool %d out of range", bx)
				}
			}
		}

		switch op {
		case bytecode.OpGETFIELD, bytecode.OpISTAG:
			if _, err := p.constString(fi, pc, int(in.C())); err != nil {
				return err
			}
		case bytecode.OpSETFIELD:
			if _, err := p.constString(fi, pc, int(in.B())); err != nil {
				return err
			}
		case bytecode.OpINTRINSIC:
			if _, ok := bytecode.IntrinsicByID(in.B()); !ok {
				return p.invalid(fi, pc, "unknown intrinsic %d", in.B())
			}
		case bytecode.OpNEWRECORD:
			name, err := p.constString(fi, pc, int(in.Bx()))
			if err != nil {
				return err
			}
			if _, ok := p.records[name]; !ok {
				return p.invalid(fi, pc, "unknown record type %q", name)
			}
		case bytecode.OpNEWVARIANT:
			name, err := p.constString(fi, pc, int(in.Bx()))
			if err != nil {
				return err
			}
			if _, ok := p.variants[name]; !ok {
				return p.invalid(fi, pc, "unknown variant %q", name)
			}
		case bytecode.OpHANDLERPUSH:
			name, err := p.constString(fi, pc, int(in.Bx()))
			if err != nil {
				return err
			}
			if _, ok := p.effects[name]; !ok {
				return p.invalid(fi, pc, "unknown effect %q", name)
			}
		case bytecode.OpPERFORM:
			name, err := p.constString(fi, pc, int(in.Bx()))
			if err != nil {
				return err
			}
			if _, ok := p.ops[name]; !ok {
				return p.invalid(fi, pc, "unknown operation %q", name)
			}
		case bytecode.OpTRACE:
			if _, err := p.constString(fi, pc, int(in.Bx())); err != nil {
				return err
			}
		case bytecode.OpCLOSURE:
			n := 0
			for pc+1+n < len(code) && code[pc+1+n].Op() == bytecode.OpCAPTURE {
				n++
			}
			child := p.funcs[in.Bx()]
			if child.upvals >= 0 && child.upvals != n {
				return p.invalid(fi, pc, "function %s captured with %d and %d upvalues",
					child.fn.Name, child.upvals, n)
			}
			child.upvals = n
		case bytecode.OpCAPTURE:
			if pc == 0 || (code[pc-1].Op() != bytecode.OpCLOSURE && code[pc-1].Op() != bytecode.OpCAPTURE) {
				return p.invalid(fi, pc, "CAPTURE outside a closure")
			}
			if in.A() > 1 {
				return p.invalid(fi, pc, "unknown capture kind %d", in.A())
			}
		}
	}
	return nil
}

// String lists the program's functions.
func (p *Program) String() string {
	names := make([]string, len(p.funcs))
	for i, fi := range p.funcs {
		names[i] = fi.fn.Name
	}
	return "program(" + strings.Join(names, ", ") + ")"
}
