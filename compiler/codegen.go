package compiler

import (
	"fmt"
	"math"
	"math/big"

	"github.com/tliron/commonlog"

	"github.com/chazu/corvid/bytecode"
)

var log = commonlog.GetLogger("corvid.compiler")

// ---------------------------------------------------------------------------
// Codegen: lower a checked program to register bytecode
// ---------------------------------------------------------------------------

// bailout carries a LowerError out of deeply nested lowering calls.
type bailout struct {
	err *LowerError
}

// Lowerer turns a Checked program into a bytecode.Module.
type Lowerer struct {
	checked *Checked
	symbols *SymbolTable
	module  *bytecode.Module

	funcIndex map[string]int // declared functions and pipelines
	consts    map[string]*ConstDecl
}

// Lower compiles a checked program. sourceHash is recorded in the module.
func Lower(checked *Checked, sourceHash string) (mod *bytecode.Module, err error) {
	l := &Lowerer{
		checked:   checked,
		symbols:   checked.Symbols,
		module:    bytecode.NewModule(sourceHash),
		funcIndex: make(map[string]int),
		consts:    make(map[string]*ConstDecl),
	}
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			mod, err = nil, b.err
		}
	}()
	l.lowerFile()
	l.module.Finalize()
	log.Debugf("lowered %d functions, %d types, %d tools, %d effects",
		len(l.module.Functions), len(l.module.Types), len(l.module.Tools), len(l.module.Effects))
	return l.module, nil
}

func (l *Lowerer) lowerFile() {
	decls := l.checked.File.Decls

	// Tables that do not contain code, in declaration order.
	for _, d := range decls {
		switch d := d.(type) {
		case *TypeDecl:
			td := bytecode.TypeDef{Name: d.Name, Kind: bytecode.TypeRecord}
			for _, f := range d.Fields {
				td.Fields = append(td.Fields, bytecode.Field{Name: f.Name, Type: f.Type})
			}
			l.module.Types = append(l.module.Types, td)
		case *EnumDecl:
			td := bytecode.TypeDef{Name: d.Name, Kind: bytecode.TypeEnum}
			for _, c := range d.Cases {
				td.Cases = append(td.Cases, bytecode.Case{Name: c.Name, Payload: c.Payload})
			}
			l.module.Types = append(l.module.Types, td)
		case *AliasDecl:
			l.module.Types = append(l.module.Types, bytecode.TypeDef{
				Name: d.Name, Kind: bytecode.TypeAlias, Target: d.Target,
			})
		case *ToolDecl:
			l.module.Tools = append(l.module.Tools, bytecode.Tool{
				Alias:         d.Alias,
				Capability:    d.Capability,
				Version:       d.Version,
				Schema:        d.Schema,
				TimeoutMillis: uint32(d.Timeout),
			})
		case *EffectDecl:
			e := bytecode.Effect{Name: d.Name}
			for _, op := range d.Ops {
				eo := bytecode.EffectOp{Name: op.Name, Return: op.Return}
				for _, p := range op.Params {
					eo.Params = append(eo.Params, p.Type)
				}
				e.Ops = append(e.Ops, eo)
			}
			l.module.Effects = append(l.module.Effects, e)
		case *ConstDecl:
			l.consts[d.Name] = d
		}
	}

	// Reserve indices: declared functions first, then pipelines. Nested
	// functions are appended as they are encountered.
	var funcs []*FuncDecl
	var pipes []*PipelineDecl
	for _, d := range decls {
		switch d := d.(type) {
		case *FuncDecl:
			funcs = append(funcs, d)
		case *PipelineDecl:
			pipes = append(pipes, d)
		}
	}
	for _, fd := range funcs {
		l.funcIndex[fd.Name] = l.newFunction(fd.Name)
	}
	for _, pd := range pipes {
		l.funcIndex[pd.Name] = l.newFunction(pd.Name)
	}

	for _, fd := range funcs {
		fs := l.newFuncState(nil, l.funcIndex[fd.Name], fd.SpanVal.Start.Line)
		fs.lowerBody(fd.Params, fd.Return, fd.Body)
	}
	for _, pd := range pipes {
		l.lowerPipeline(pd)
	}
}

// newFunction appends an empty function and returns its index.
func (l *Lowerer) newFunction(name string) int {
	l.module.Functions = append(l.module.Functions, &bytecode.Function{Name: name})
	return len(l.module.Functions) - 1
}

// lowerPipeline emits a one-parameter function that threads its argument
// through every stage:
//
//	LOADFN R1 stage; MOVE R2 R0; CALL R0 R1 1  (per stage)
//	RETURN R0
func (l *Lowerer) lowerPipeline(pd *PipelineDecl) {
	fs := l.newFuncState(nil, l.funcIndex[pd.Name], pd.SpanVal.Start.Line)
	fs.fn.Params = []bytecode.Param{{Name: "input", Register: 0}}
	in := fs.allocReg()
	callee := fs.allocReg()
	arg := fs.allocReg()
	for _, stage := range pd.Stages {
		fs.asm.ABx(bytecode.OpLOADFN, callee, uint16(l.funcIndex[stage]))
		fs.asm.ABC(bytecode.OpMOVE, arg, in, 0)
		fs.asm.ABC(bytecode.OpCALL, in, callee, 1)
	}
	fs.asm.ABC(bytecode.OpRETURN, in, 0, 0)
	fs.finish()
}

// ---------------------------------------------------------------------------
// Per-function state
// ---------------------------------------------------------------------------

// variable is a local bound to a register of its owning function.
type variable struct {
	name     string
	reg      uint8
	captured bool
}

// upvalKey identifies a captured slot of the enclosing function: kind 0 is
// a register, kind 1 an upvalue of the enclosing function.
type upvalKey struct {
	kind  uint8
	index uint8
}

// blockScope records the register base and locals of one lexical block.
type blockScope struct {
	base int
	vars []*variable
}

// loopInfo holds the jump targets of an enclosing loop.
type loopInfo struct {
	label string
	brk   *bytecode.Label
	cont  *bytecode.Label
}

// constKey dedupes constant pool entries. Floats compare by bit pattern.
type constKey struct {
	kind bytecode.ConstKind
	b    bool
	i    int64
	bits uint64
	s    string
}

// funcState is the lowering state of one function.
type funcState struct {
	l      *Lowerer
	parent *funcState
	fn     *bytecode.Function
	asm    *bytecode.Assembler
	regs   regAlloc

	consts map[constKey]int
	scopes *Scopes[*variable]
	blocks []*blockScope
	loops  []*loopInfo

	upvals   []upvalKey
	upvalIdx map[upvalKey]int

	noTail bool // handle bodies and handler clauses keep their frame
	line   int
}

func (l *Lowerer) newFuncState(parent *funcState, index, line int) *funcState {
	return &funcState{
		l:        l,
		parent:   parent,
		fn:       l.module.Functions[index],
		asm:      bytecode.NewAssembler(),
		consts:   make(map[constKey]int),
		scopes:   NewScopes[*variable](),
		upvalIdx: make(map[upvalKey]int),
		line:     line,
	}
}

// fail aborts lowering with a LowerError at the current line.
func (fs *funcState) fail(format string, args ...interface{}) {
	panic(bailout{&LowerError{
		Function: fs.fn.Name,
		Line:     fs.line,
		Message:  fmt.Sprintf(format, args...),
	}})
}

func (fs *funcState) at(n Node) {
	if line := n.Span().Start.Line; line > 0 {
		fs.line = line
	}
}

func (fs *funcState) allocReg() uint8 {
	r, ok := fs.regs.alloc()
	if !ok {
		fs.fail("function needs more than %d registers", MaxRegisters)
	}
	return r
}

func (fs *funcState) allocRegs(n int) uint8 {
	r, ok := fs.regs.allocN(n)
	if !ok {
		fs.fail("function needs more than %d registers", MaxRegisters)
	}
	return r
}

// finish stores the assembled code into the function.
func (fs *funcState) finish() {
	if err := fs.asm.Err(); err != nil {
		fs.fail("%v", err)
	}
	fs.fn.Code = fs.asm.Code()
	fs.fn.NumRegisters = uint8(fs.regs.high)
}

// constant returns the pool index of c, adding it on first use.
func (fs *funcState) constant(c bytecode.Constant) int {
	key := constKey{kind: c.Kind, b: c.Bool, i: c.Int, bits: math.Float64bits(c.Float), s: c.Str}
	if idx, ok := fs.consts[key]; ok {
		return idx
	}
	idx := len(fs.fn.Constants)
	if idx > math.MaxUint16 {
		fs.fail("constant pool exceeds %d entries", math.MaxUint16+1)
	}
	fs.fn.Constants = append(fs.fn.Constants, c)
	fs.consts[key] = idx
	return idx
}

// name returns the pool index of a string constant for a 16-bit operand.
func (fs *funcState) name(s string) uint16 {
	return uint16(fs.constant(bytecode.StringConst(s)))
}

// shortName returns the pool index of a string constant for an 8-bit
// operand.
func (fs *funcState) shortName(s string) uint8 {
	idx := fs.constant(bytecode.StringConst(s))
	if idx > math.MaxUint8 {
		fs.fail("constant %q has pool index %d, beyond the 8-bit operand range", s, idx)
	}
	return uint8(idx)
}

// ---------------------------------------------------------------------------
// Scopes and variables
// ---------------------------------------------------------------------------

func (fs *funcState) pushBlock() {
	fs.scopes.Push()
	fs.blocks = append(fs.blocks, &blockScope{base: fs.regs.mark()})
}

// popBlock closes captured locals and releases the block's registers.
func (fs *funcState) popBlock() {
	b := fs.blocks[len(fs.blocks)-1]
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
	fs.scopes.Pop()
	if b.captures() {
		fs.asm.ABC(bytecode.OpCLOSEUPVAL, uint8(b.base), 0, 0)
	}
	fs.regs.reset(b.base)
}

func (b *blockScope) captures() bool {
	for _, v := range b.vars {
		if v.captured {
			return true
		}
	}
	return false
}

// declare binds name to reg in the innermost block.
func (fs *funcState) declare(name string, reg uint8) *variable {
	v := &variable{name: name, reg: reg}
	fs.scopes.Define(name, v)
	if n := len(fs.blocks); n > 0 {
		fs.blocks[n-1].vars = append(fs.blocks[n-1].vars, v)
	}
	return v
}

// resolveUpval finds name in an enclosing function and returns the index
// of the upvalue that reaches it.
func (fs *funcState) resolveUpval(name string) (int, bool) {
	if fs.parent == nil {
		return 0, false
	}
	if v, ok := fs.parent.scopes.Lookup(name); ok {
		v.captured = true
		return fs.addUpval(upvalKey{kind: 0, index: v.reg}), true
	}
	if idx, ok := fs.parent.resolveUpval(name); ok {
		return fs.addUpval(upvalKey{kind: 1, index: uint8(idx)}), true
	}
	return 0, false
}

func (fs *funcState) addUpval(k upvalKey) int {
	if idx, ok := fs.upvalIdx[k]; ok {
		return idx
	}
	if len(fs.upvals) >= math.MaxUint8 {
		fs.fail("function captures more than %d variables", math.MaxUint8)
	}
	fs.upvals = append(fs.upvals, k)
	fs.upvalIdx[k] = len(fs.upvals) - 1
	return len(fs.upvals) - 1
}

// child lowers a nested function with body and emits CLOSURE plus its
// CAPTUREs into dst.
func (fs *funcState) child(dst uint8, name string, line int, noTail bool, body func(c *funcState)) {
	idx := fs.l.newFunction(name)
	c := fs.l.newFuncState(fs, idx, line)
	c.noTail = noTail
	body(c)
	c.finish()
	fs.asm.ABx(bytecode.OpCLOSURE, dst, uint16(idx))
	for _, u := range c.upvals {
		fs.asm.ABC(bytecode.OpCAPTURE, u.kind, u.index, 0)
	}
}

// lambdaName names nested functions after their parent and position.
func (fs *funcState) lambdaName(kind string) string {
	return fmt.Sprintf("%s$%s%d", fs.fn.Name, kind, len(fs.l.module.Functions))
}

// ---------------------------------------------------------------------------
// Function bodies
// ---------------------------------------------------------------------------

// lowerBody lowers parameters and a body block, then stores the code.
func (fs *funcState) lowerBody(params []*Param, ret string, body *Block) {
	fs.fn.Return = ret
	for _, p := range params {
		reg := fs.allocReg()
		fs.declare(p.Name, reg)
		fs.fn.Params = append(fs.fn.Params, bytecode.Param{
			Name: p.Name, Type: p.Type, Register: reg, Variadic: p.Variadic,
		})
	}
	fs.lowerFunctionBlock(body)
	fs.finish()
}

// lowerFunctionBlock lowers a function's outermost block. A trailing
// expression is returned; otherwise a RETNULL follows unless the block
// already ends in a return.
func (fs *funcState) lowerFunctionBlock(body *Block) {
	fs.pushBlock()
	for _, s := range body.Stmts {
		fs.stmt(s)
	}
	switch {
	case body.Tail != nil:
		fs.at(body.Tail)
		fs.returnExpr(body.Tail)
	case len(body.Stmts) > 0 && isReturn(body.Stmts[len(body.Stmts)-1]):
	default:
		fs.asm.ABC(bytecode.OpRETNULL, 0, 0, 0)
	}
	fs.popBlock()
}

func isReturn(s Stmt) bool {
	_, ok := s.(*ReturnStmt)
	return ok
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (fs *funcState) block(b *Block) {
	fs.pushBlock()
	for _, s := range b.Stmts {
		fs.stmt(s)
	}
	if b.Tail != nil {
		fs.discard(b.Tail)
	}
	fs.popBlock()
}

// blockValue lowers a block whose value lands in dst.
func (fs *funcState) blockValue(b *Block, dst uint8) {
	fs.pushBlock()
	for _, s := range b.Stmts {
		fs.stmt(s)
	}
	if b.Tail != nil {
		fs.expr(b.Tail, dst)
	} else {
		fs.asm.ABC(bytecode.OpLOADNULL, dst, 0, 0)
	}
	fs.popBlock()
}

// discard evaluates x for its effects.
func (fs *funcState) discard(x Expr) {
	m := fs.regs.mark()
	fs.expr(x, fs.allocReg())
	fs.regs.reset(m)
}

func (fs *funcState) stmt(s Stmt) {
	fs.at(s)
	switch s := s.(type) {
	case *Block:
		fs.block(s)
	case *LetStmt:
		reg := fs.allocReg()
		fs.expr(s.Value, reg)
		fs.declare(s.Name, reg)
	case *AssignStmt:
		m := fs.regs.mark()
		val := fs.allocReg()
		fs.expr(s.Value, val)
		fs.assign(s.Target, val)
		fs.regs.reset(m)
	case *ExprStmt:
		fs.discard(s.Expr)
	case *IfStmt:
		fs.ifStmt(s)
	case *WhileStmt:
		fs.whileStmt(s)
	case *ForStmt:
		fs.forStmt(s)
	case *BreakStmt:
		fs.asm.Jump(bytecode.OpBREAK, fs.loop(s.Label, "break").brk)
	case *ContinueStmt:
		fs.asm.Jump(bytecode.OpCONTINUE, fs.loop(s.Label, "continue").cont)
	case *ReturnStmt:
		if s.Value == nil {
			fs.asm.ABC(bytecode.OpRETNULL, 0, 0, 0)
			return
		}
		fs.returnExpr(s.Value)
	case *CancelStmt:
		m := fs.regs.mark()
		r := fs.operand(s.Future)
		fs.asm.ABC(bytecode.OpCANCEL, r, 0, 0)
		fs.regs.reset(m)
	default:
		fs.fail("unsupported statement %T", s)
	}
}

// returnExpr returns the value of x, as a tail call when x is a call.
func (fs *funcState) returnExpr(x Expr) {
	m := fs.regs.mark()
	if call, ok := x.(*CallExpr); ok && !fs.noTail {
		if base, n, ok := fs.callWindow(call); ok {
			fs.asm.ABC(bytecode.OpTAILCALL, base, base, uint8(n))
			fs.regs.reset(m)
			return
		}
	}
	r := fs.operand(x)
	fs.asm.ABC(bytecode.OpRETURN, r, 0, 0)
	fs.regs.reset(m)
}

// condition evaluates x into a fresh scratch register and emits
// TEST scratch 1; JMP target, so control reaches target when x is falsy.
func (fs *funcState) condition(x Expr, target *bytecode.Label) {
	m := fs.regs.mark()
	s := fs.allocReg()
	fs.expr(x, s)
	fs.asm.ABC(bytecode.OpTEST, s, 0, 1)
	fs.asm.Jump(bytecode.OpJMP, target)
	fs.regs.reset(m)
}

func (fs *funcState) ifStmt(s *IfStmt) {
	elseL := fs.asm.NewLabel()
	fs.condition(s.Cond, elseL)
	fs.block(s.Then)
	if s.Else == nil {
		fs.asm.Mark(elseL)
		return
	}
	end := fs.asm.NewLabel()
	fs.asm.Jump(bytecode.OpJMP, end)
	fs.asm.Mark(elseL)
	fs.stmt(s.Else)
	fs.asm.Mark(end)
}

// loop finds the innermost loop, or the loop with the given label.
func (fs *funcState) loop(label, what string) *loopInfo {
	for i := len(fs.loops) - 1; i >= 0; i-- {
		if label == "" || fs.loops[i].label == label {
			return fs.loops[i]
		}
	}
	if label != "" {
		fs.fail("%s to unknown label %q", what, label)
	}
	fs.fail("%s outside loop", what)
	return nil
}

// whileStmt emits
//
//	top:  cond -> s; TEST s 1; JMP exit
//	      body
//	cont: [CLOSEUPVAL base]; LOOP top
//	exit: [CLOSEUPVAL base]
func (fs *funcState) whileStmt(s *WhileStmt) {
	li := &loopInfo{label: s.Label, brk: fs.asm.NewLabel(), cont: fs.asm.NewLabel()}
	top := fs.asm.Here()
	fs.condition(s.Cond, li.brk)

	fs.loops = append(fs.loops, li)
	base, captured := fs.loopBody(s.Body, nil)
	fs.loops = fs.loops[:len(fs.loops)-1]

	fs.asm.Mark(li.cont)
	fs.closeIf(captured, base)
	fs.asm.Jump(bytecode.OpLOOP, top)
	fs.asm.Mark(li.brk)
	fs.closeIf(captured, base)
}

// forStmt iterates over to_list(iter) by index:
//
//	list = to_list(iter); i = 0; n = len(list); one = 1
//	top:  i < n -> s; TEST s 1; JMP exit
//	      x = list[i]; body
//	cont: [CLOSEUPVAL base]; i = i + 1; LOOP top
//	exit: [CLOSEUPVAL base]
func (fs *funcState) forStmt(s *ForStmt) {
	m := fs.regs.mark()
	list := fs.intrinsicInto("to_list", []Expr{s.Iter})
	idx := fs.allocReg()
	fs.loadConst(idx, bytecode.IntConst(0))
	n := fs.allocReg()
	{
		lm := fs.regs.mark()
		t := fs.allocRegs(2)
		fs.asm.ABC(bytecode.OpMOVE, t+1, list, 0)
		fs.asm.ABC(bytecode.OpINTRINSIC, t, intrinsicID("len"), 1)
		fs.asm.ABC(bytecode.OpMOVE, n, t, 0)
		fs.regs.reset(lm)
	}
	one := fs.allocReg()
	fs.loadConst(one, bytecode.IntConst(1))

	li := &loopInfo{label: s.Label, brk: fs.asm.NewLabel(), cont: fs.asm.NewLabel()}
	top := fs.asm.Here()
	{
		cm := fs.regs.mark()
		sc := fs.allocReg()
		fs.asm.ABC(bytecode.OpLT, sc, idx, n)
		fs.asm.ABC(bytecode.OpTEST, sc, 0, 1)
		fs.asm.Jump(bytecode.OpJMP, li.brk)
		fs.regs.reset(cm)
	}

	fs.loops = append(fs.loops, li)
	base, captured := fs.loopBody(s.Body, func() {
		r := fs.allocReg()
		fs.asm.ABC(bytecode.OpGETINDEX, r, list, idx)
		fs.declare(s.Var, r)
	})
	fs.loops = fs.loops[:len(fs.loops)-1]

	fs.asm.Mark(li.cont)
	fs.closeIf(captured, base)
	fs.asm.ABC(bytecode.OpADD, idx, idx, one)
	fs.asm.Jump(bytecode.OpLOOP, top)
	fs.asm.Mark(li.brk)
	fs.closeIf(captured, base)
	fs.regs.reset(m)
}

// loopBody lowers a loop body in its own scope without closing upvalues;
// the loop closes them on both the continue and the exit path so every
// iteration captures fresh variables.
func (fs *funcState) loopBody(b *Block, prologue func()) (base int, captured bool) {
	fs.scopes.Push()
	blk := &blockScope{base: fs.regs.mark()}
	fs.blocks = append(fs.blocks, blk)
	if prologue != nil {
		prologue()
	}
	for _, s := range b.Stmts {
		fs.stmt(s)
	}
	if b.Tail != nil {
		fs.discard(b.Tail)
	}
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
	fs.scopes.Pop()
	fs.regs.reset(blk.base)
	return blk.base, blk.captures()
}

func (fs *funcState) closeIf(captured bool, base int) {
	if captured {
		fs.asm.ABC(bytecode.OpCLOSEUPVAL, uint8(base), 0, 0)
	}
}

// assign stores the value in val into target. Field and index targets
// update a copy of their container and store it back, recursively.
func (fs *funcState) assign(target Expr, val uint8) {
	switch t := target.(type) {
	case *Ident:
		if v, ok := fs.scopes.Lookup(t.Name); ok {
			fs.asm.ABC(bytecode.OpMOVE, v.reg, val, 0)
			return
		}
		if idx, ok := fs.resolveUpval(t.Name); ok {
			fs.asm.ABC(bytecode.OpSETUPVAL, val, uint8(idx), 0)
			return
		}
		fs.fail("cannot assign to %s", t.Name)
	case *FieldExpr:
		m := fs.regs.mark()
		if v, ok := fs.localVar(t.X); ok {
			fs.asm.ABC(bytecode.OpSETFIELD, v.reg, fs.shortName(t.Name), val)
			return
		}
		obj := fs.allocReg()
		fs.expr(t.X, obj)
		fs.asm.ABC(bytecode.OpSETFIELD, obj, fs.shortName(t.Name), val)
		fs.assign(t.X, obj)
		fs.regs.reset(m)
	case *IndexExpr:
		m := fs.regs.mark()
		if v, ok := fs.localVar(t.X); ok {
			i := fs.operand(t.Index)
			fs.asm.ABC(bytecode.OpSETINDEX, v.reg, i, val)
			fs.regs.reset(m)
			return
		}
		obj := fs.allocReg()
		fs.expr(t.X, obj)
		i := fs.operand(t.Index)
		fs.asm.ABC(bytecode.OpSETINDEX, obj, i, val)
		fs.assign(t.X, obj)
		fs.regs.reset(m)
	default:
		fs.fail("invalid assignment target %T", target)
	}
}

// localVar returns the variable x names when it lives in this function.
func (fs *funcState) localVar(x Expr) (*variable, bool) {
	id, ok := x.(*Ident)
	if !ok {
		return nil, false
	}
	return fs.scopes.Lookup(id.Name)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOpcodes = map[string]bytecode.Opcode{
	"+": bytecode.OpADD, "-": bytecode.OpSUB, "*": bytecode.OpMUL, "/": bytecode.OpDIV,
	"%": bytecode.OpMOD, "**": bytecode.OpPOW, "&": bytecode.OpBAND, "|": bytecode.OpBOR,
	"^": bytecode.OpBXOR, "<<": bytecode.OpSHL, ">>": bytecode.OpSHR, "++": bytecode.OpCONCAT,
	"==": bytecode.OpEQ, "!=": bytecode.OpNE, "<": bytecode.OpLT, "<=": bytecode.OpLE,
	">": bytecode.OpGT, ">=": bytecode.OpGE, "in": bytecode.OpIN,
}

var unaryOpcodes = map[string]bytecode.Opcode{
	"-": bytecode.OpNEG, "!": bytecode.OpNOT, "~": bytecode.OpBNOT,
}

// Collections larger than this are built incrementally instead of from one
// contiguous register window.
const maxInlineElems = 32

// operand returns a register holding the value of x. Locals of this
// function are used in place; anything else is evaluated into a new
// temporary that the caller releases.
func (fs *funcState) operand(x Expr) uint8 {
	if v, ok := fs.localVar(x); ok {
		return v.reg
	}
	r := fs.allocReg()
	fs.expr(x, r)
	return r
}

func (fs *funcState) loadConst(dst uint8, c bytecode.Constant) {
	fs.asm.ABx(bytecode.OpLOADK, dst, uint16(fs.constant(c)))
}

// expr lowers x into dst. Temporaries it allocates are released before it
// returns.
func (fs *funcState) expr(x Expr, dst uint8) {
	m := fs.regs.mark()
	defer fs.regs.reset(m)

	switch x := x.(type) {
	case *IntLiteral, *FloatLiteral, *StringLiteral:
		fs.loadConst(dst, literalConstant(x))
	case *BoolLiteral:
		var b uint8
		if x.Value {
			b = 1
		}
		fs.asm.ABC(bytecode.OpLOADBOOL, dst, b, 0)
	case *NullLiteral:
		fs.asm.ABC(bytecode.OpLOADNULL, dst, 0, 0)
	case *Ident:
		fs.ident(x, dst)
	case *UnaryExpr:
		if IsConstantExpr(x) {
			fs.loadConst(dst, literalConstant(x))
			return
		}
		r := fs.operand(x.X)
		fs.asm.ABC(unaryOpcodes[x.Op], dst, r, 0)
	case *BinaryExpr:
		fs.binary(x, dst)
	case *CallExpr:
		fs.call(x, dst)
	case *FieldExpr:
		if id, ok := x.X.(*Ident); ok && fs.isEnumRef(id) {
			fs.asm.ABx(bytecode.OpNEWVARIANT, dst, fs.name(id.Name+"."+x.Name))
			return
		}
		obj := fs.operand(x.X)
		fs.asm.ABC(bytecode.OpGETFIELD, dst, obj, fs.shortName(x.Name))
	case *IndexExpr:
		obj := fs.operand(x.X)
		idx := fs.operand(x.Index)
		fs.asm.ABC(bytecode.OpGETINDEX, dst, obj, idx)
	case *SliceExpr:
		obj := fs.operand(x.X)
		bounds := fs.allocRegs(2)
		fs.exprOrNull(x.Lo, bounds)
		fs.exprOrNull(x.Hi, bounds+1)
		fs.asm.ABC(bytecode.OpSLICE, dst, obj, bounds)
	case *ListLit:
		fs.listLit(x.Elems, dst)
	case *SetLit:
		if len(x.Elems) > maxInlineElems {
			t := fs.allocRegs(2)
			fs.listLit(x.Elems, t+1)
			fs.asm.ABC(bytecode.OpINTRINSIC, t, intrinsicID("to_set"), 1)
			fs.asm.ABC(bytecode.OpMOVE, dst, t, 0)
			return
		}
		base, n := fs.window(x.Elems)
		fs.asm.ABC(bytecode.OpNEWSET, dst, base, uint8(n))
	case *TupleLit:
		base, n := fs.window(x.Elems)
		fs.asm.ABC(bytecode.OpNEWTUPLE, dst, base, uint8(n))
	case *MapLit:
		fs.mapLit(x, dst)
	case *RecordLit:
		fs.recordLit(x, dst)
	case *FuncLit:
		fs.child(dst, fs.lambdaName("fn"), x.SpanVal.Start.Line, false, func(c *funcState) {
			c.lowerBody(x.Params, x.Return, x.Body)
		})
	case *MatchExpr:
		fs.match(x, dst)
	case *HandleExpr:
		fs.handle(x, dst)
	case *PerformExpr:
		fs.perform(x, dst)
	case *ResumeExpr:
		k := fs.operand(x.Cont)
		var v uint8
		if x.Value != nil {
			v = fs.operand(x.Value)
		} else {
			v = fs.allocReg()
			fs.asm.ABC(bytecode.OpLOADNULL, v, 0, 0)
		}
		fs.asm.ABC(bytecode.OpRESUME, dst, k, v)
	case *SpawnExpr:
		base, n, ok := fs.callWindow(x.Call)
		if !ok {
			fs.fail("spawn requires a function call")
		}
		fs.asm.ABC(bytecode.OpSPAWN, dst, base, uint8(n))
	case *AwaitExpr:
		r := fs.operand(x.X)
		fs.asm.ABC(bytecode.OpAWAIT, dst, r, 0)
	case *ToolCallExpr:
		fs.toolCall(x, dst)
	case *TraceExpr:
		fs.expr(x.Value, dst)
		fs.asm.ABx(bytecode.OpTRACE, dst, fs.name(x.Label))
	default:
		fs.fail("unsupported expression %T", x)
	}
}

func (fs *funcState) exprOrNull(x Expr, dst uint8) {
	if x == nil {
		fs.asm.ABC(bytecode.OpLOADNULL, dst, 0, 0)
		return
	}
	fs.expr(x, dst)
}

// literalConstant converts a constant expression to a pool entry.
func literalConstant(x Expr) bytecode.Constant {
	switch x := x.(type) {
	case *IntLiteral:
		if x.Big != "" {
			return bytecode.BigIntConst(x.Big)
		}
		return bytecode.IntConst(x.Value)
	case *FloatLiteral:
		return bytecode.FloatConst(x.Value)
	case *StringLiteral:
		return bytecode.StringConst(x.Value)
	case *BoolLiteral:
		return bytecode.BoolConst(x.Value)
	case *NullLiteral:
		return bytecode.NullConst()
	case *UnaryExpr:
		switch v := x.X.(type) {
		case *FloatLiteral:
			return bytecode.FloatConst(-v.Value)
		case *IntLiteral:
			n := new(big.Int)
			if v.Big != "" {
				n.SetString(v.Big, 10)
			} else {
				n.SetInt64(v.Value)
			}
			n.Neg(n)
			if n.IsInt64() {
				return bytecode.IntConst(n.Int64())
			}
			return bytecode.BigIntConst(n.String())
		}
	}
	return bytecode.NullConst()
}

// isEnumRef reports whether id names an enum rather than a variable.
func (fs *funcState) isEnumRef(id *Ident) bool {
	if fs.visible(id.Name) {
		return false
	}
	_, ok := fs.l.symbols.Enum(id.Name)
	return ok
}

// visible reports whether name is a local of this or an enclosing function.
func (fs *funcState) visible(name string) bool {
	for f := fs; f != nil; f = f.parent {
		if _, ok := f.scopes.Lookup(name); ok {
			return true
		}
	}
	return false
}

// ident loads a variable, global function or constant.
func (fs *funcState) ident(id *Ident, dst uint8) {
	if v, ok := fs.scopes.Lookup(id.Name); ok {
		if v.reg != dst {
			fs.asm.ABC(bytecode.OpMOVE, dst, v.reg, 0)
		}
		return
	}
	if idx, ok := fs.resolveUpval(id.Name); ok {
		fs.asm.ABC(bytecode.OpGETUPVAL, dst, uint8(idx), 0)
		return
	}
	if idx, ok := fs.l.funcIndex[id.Name]; ok {
		fs.asm.ABx(bytecode.OpLOADFN, dst, uint16(idx))
		return
	}
	if cd, ok := fs.l.consts[id.Name]; ok {
		fs.loadConst(dst, literalConstant(cd.Value))
		return
	}
	fs.fail("unresolved name %q", id.Name)
}

func (fs *funcState) binary(x *BinaryExpr, dst uint8) {
	switch x.Op {
	case "&&", "||":
		// dst = left; if it decides the result skip the right operand.
		// && continues on truthy, || on falsy.
		fs.expr(x.Left, dst)
		var c uint8 = 1
		if x.Op == "||" {
			c = 0
		}
		end := fs.asm.NewLabel()
		fs.asm.ABC(bytecode.OpTEST, dst, 0, c)
		fs.asm.Jump(bytecode.OpJMP, end)
		fs.expr(x.Right, dst)
		fs.asm.Mark(end)
		return
	}
	op, ok := binaryOpcodes[x.Op]
	if !ok {
		fs.fail("unknown operator %s", x.Op)
	}
	left := fs.operand(x.Left)
	right := fs.operand(x.Right)
	fs.asm.ABC(op, dst, left, right)
}

// window evaluates xs into consecutive new registers. An empty window has
// base 0.
func (fs *funcState) window(xs []Expr) (base uint8, n int) {
	if len(xs) == 0 {
		return 0, 0
	}
	base = fs.allocRegs(len(xs))
	for i, x := range xs {
		fs.expr(x, base+uint8(i))
	}
	return base, len(xs)
}

func (fs *funcState) listLit(elems []Expr, dst uint8) {
	if len(elems) <= maxInlineElems {
		base, n := fs.window(elems)
		fs.asm.ABC(bytecode.OpNEWLIST, dst, base, uint8(n))
		return
	}
	fs.asm.ABC(bytecode.OpNEWLIST, dst, 0, 0)
	for _, e := range elems {
		m := fs.regs.mark()
		r := fs.operand(e)
		fs.asm.ABC(bytecode.OpAPPEND, dst, r, 0)
		fs.regs.reset(m)
	}
}

func (fs *funcState) mapLit(x *MapLit, dst uint8) {
	if len(x.Keys) == 0 {
		fs.asm.ABC(bytecode.OpNEWMAP, dst, 0, 0)
		return
	}
	if len(x.Keys) <= maxInlineElems/2 {
		base := fs.allocRegs(2 * len(x.Keys))
		for i := range x.Keys {
			fs.expr(x.Keys[i], base+uint8(2*i))
			fs.expr(x.Values[i], base+uint8(2*i+1))
		}
		fs.asm.ABC(bytecode.OpNEWMAP, dst, base, uint8(len(x.Keys)))
		return
	}
	fs.asm.ABC(bytecode.OpNEWMAP, dst, 0, 0)
	for i := range x.Keys {
		m := fs.regs.mark()
		k := fs.operand(x.Keys[i])
		v := fs.operand(x.Values[i])
		fs.asm.ABC(bytecode.OpSETINDEX, dst, k, v)
		fs.regs.reset(m)
	}
}

// recordLit evaluates fields in declared order into R[t+1..] and emits
// NEWRECORD t K(type).
func (fs *funcState) recordLit(x *RecordLit, dst uint8) {
	td, ok := fs.l.symbols.Record(x.Type)
	if !ok {
		fs.fail("unknown record type %s", x.Type)
	}
	t := fs.allocRegs(1 + len(td.Fields))
	for i, f := range td.Fields {
		r := t + 1 + uint8(i)
		var val Expr
		for _, fi := range x.Fields {
			if fi.Name == f.Name {
				val = fi.Value
			}
		}
		fs.exprOrNull(val, r)
	}
	fs.asm.ABx(bytecode.OpNEWRECORD, t, fs.name(td.Name))
	fs.asm.ABC(bytecode.OpMOVE, dst, t, 0)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func intrinsicID(name string) uint8 {
	in, ok := bytecode.LookupIntrinsic(name)
	if !ok {
		panic("unknown intrinsic " + name)
	}
	return in.ID
}

// calleeKind classifies the target of a call.
type calleeKind int

const (
	calleeValue calleeKind = iota
	calleeIntrinsic
	calleeVariant
)

func (fs *funcState) classify(call *CallExpr) calleeKind {
	switch c := call.Callee.(type) {
	case *Ident:
		if fs.visible(c.Name) {
			return calleeValue
		}
		if _, ok := fs.l.funcIndex[c.Name]; ok {
			return calleeValue
		}
		if _, ok := fs.l.consts[c.Name]; ok {
			return calleeValue
		}
		if _, ok := bytecode.LookupIntrinsic(c.Name); ok {
			return calleeIntrinsic
		}
	case *FieldExpr:
		if id, ok := c.X.(*Ident); ok && fs.isEnumRef(id) {
			return calleeVariant
		}
	}
	return calleeValue
}

// callWindow loads a callable and its arguments into R[base..base+n] for
// CALL, TAILCALL or SPAWN. It reports false for intrinsics and variant
// constructors, which have no callable value.
func (fs *funcState) callWindow(call *CallExpr) (base uint8, n int, ok bool) {
	if fs.classify(call) != calleeValue {
		return 0, 0, false
	}
	base = fs.allocRegs(1 + len(call.Args))
	fs.expr(call.Callee, base)
	for i, a := range call.Args {
		fs.expr(a, base+1+uint8(i))
	}
	return base, len(call.Args), true
}

func (fs *funcState) call(call *CallExpr, dst uint8) {
	switch fs.classify(call) {
	case calleeIntrinsic:
		t := fs.intrinsicInto(call.Callee.(*Ident).Name, call.Args)
		fs.asm.ABC(bytecode.OpMOVE, dst, t, 0)
	case calleeVariant:
		fx := call.Callee.(*FieldExpr)
		t := fs.allocRegs(1 + len(call.Args))
		for i, a := range call.Args {
			fs.expr(a, t+1+uint8(i))
		}
		fs.asm.ABx(bytecode.OpNEWVARIANT, t, fs.name(fx.X.(*Ident).Name+"."+fx.Name))
		fs.asm.ABC(bytecode.OpMOVE, dst, t, 0)
	default:
		base, n, _ := fs.callWindow(call)
		fs.asm.ABC(bytecode.OpCALL, dst, base, uint8(n))
	}
}

// intrinsicInto evaluates args into R[t+1..] and emits INTRINSIC t. The
// result register t stays allocated for the caller.
func (fs *funcState) intrinsicInto(name string, args []Expr) uint8 {
	in, ok := bytecode.LookupIntrinsic(name)
	if !ok {
		fs.fail("unknown intrinsic %s", name)
	}
	t := fs.allocRegs(1 + len(args))
	for i, a := range args {
		fs.expr(a, t+1+uint8(i))
	}
	fs.asm.ABC(bytecode.OpINTRINSIC, t, in.ID, uint8(len(args)))
	return t
}

// ---------------------------------------------------------------------------
// Match, effects, tools
// ---------------------------------------------------------------------------

// match tests the subject against each arm with ISTAG/TEST/JMP and binds
// payload values with PAYLOAD. No matching arm yields null.
func (fs *funcState) match(x *MatchExpr, dst uint8) {
	subj := fs.operand(x.Subject)
	end := fs.asm.NewLabel()
	for _, arm := range x.Arms {
		if arm.Wildcard {
			fs.blockValue(arm.Body, dst)
			fs.asm.Mark(end)
			return
		}
		next := fs.asm.NewLabel()
		m := fs.regs.mark()
		s := fs.allocReg()
		fs.asm.ABC(bytecode.OpISTAG, s, subj, fs.shortName(arm.Enum+"."+arm.Case))
		fs.asm.ABC(bytecode.OpTEST, s, 0, 1)
		fs.asm.Jump(bytecode.OpJMP, next)
		fs.regs.reset(m)

		fs.pushBlock()
		for i, b := range arm.Binds {
			r := fs.allocReg()
			fs.asm.ABC(bytecode.OpPAYLOAD, r, subj, uint8(i))
			fs.declare(b, r)
		}
		fs.blockValue(arm.Body, dst)
		fs.popBlock()
		fs.asm.Jump(bytecode.OpJMP, end)
		fs.asm.Mark(next)
	}
	fs.asm.ABC(bytecode.OpLOADNULL, dst, 0, 0)
	fs.asm.Mark(end)
}

// handle installs clause closures in effect-operation order, calls the
// body as a closure and removes the handler:
//
//	R[t..t+n-1] = clauses; HANDLERPUSH t K(effect)
//	R[b] = CLOSURE body; CALL dst b 0; HANDLERPOP
func (fs *funcState) handle(x *HandleExpr, dst uint8) {
	ed, ok := fs.l.symbols.Effect(x.Effect)
	if !ok {
		fs.fail("unknown effect %s", x.Effect)
	}
	t := fs.allocRegs(len(ed.Ops))
	for i, op := range ed.Ops {
		r := t + uint8(i)
		var clause *HandlerClause
		for _, cl := range x.Clauses {
			if cl.Op == op.Name {
				clause = cl
			}
		}
		if clause == nil {
			fs.asm.ABC(bytecode.OpLOADNULL, r, 0, 0)
			continue
		}
		params := make([]*Param, len(clause.Params))
		for j, name := range clause.Params {
			params[j] = &Param{Pos: clause.Pos, Name: name}
		}
		fs.child(r, fs.lambdaName(x.Effect+"."+op.Name), clause.Pos.Line, true, func(c *funcState) {
			c.lowerBody(params, "", clause.Body)
		})
	}
	fs.asm.ABx(bytecode.OpHANDLERPUSH, t, fs.name(x.Effect))
	b := fs.allocReg()
	fs.child(b, fs.lambdaName("handle"), x.SpanVal.Start.Line, true, func(c *funcState) {
		c.lowerBody(nil, "", x.Body)
	})
	fs.asm.ABC(bytecode.OpCALL, dst, b, 0)
	fs.asm.ABC(bytecode.OpHANDLERPOP, 0, 0, 0)
}

// perform evaluates arguments into R[t+1..] and emits PERFORM t.
func (fs *funcState) perform(x *PerformExpr, dst uint8) {
	t := fs.allocRegs(1 + len(x.Args))
	for i, a := range x.Args {
		fs.expr(a, t+1+uint8(i))
	}
	fs.asm.ABx(bytecode.OpPERFORM, t, fs.name(x.Effect+"."+x.Op))
	fs.asm.ABC(bytecode.OpMOVE, dst, t, 0)
}

// toolCall emits TOOLCALL t tool with the request in R[t+1] and the
// timeout in R[t+2], followed by SCHEMACHECK when the tool has a schema.
func (fs *funcState) toolCall(x *ToolCallExpr, dst uint8) {
	idx := -1
	for i, tool := range fs.l.module.Tools {
		if tool.Alias == x.Tool {
			idx = i
		}
	}
	if idx < 0 {
		fs.fail("unknown tool %s", x.Tool)
	}
	t := fs.allocRegs(3)
	fs.expr(x.Request, t+1)
	fs.exprOrNull(x.Timeout, t+2)
	fs.asm.ABx(bytecode.OpTOOLCALL, t, uint16(idx))
	if fs.l.module.Tools[idx].Schema != "" {
		fs.asm.ABx(bytecode.OpSCHEMACHECK, t, uint16(idx))
	}
	fs.asm.ABC(bytecode.OpMOVE, dst, t, 0)
}
