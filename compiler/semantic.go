package compiler

import (
	"fmt"

	"github.com/chazu/corvid/bytecode"
)

// ---------------------------------------------------------------------------
// Checker: name resolution and light type checks before lowering
// ---------------------------------------------------------------------------

// Checked is a resolved program ready for lowering.
type Checked struct {
	File          *File
	Symbols       *SymbolTable
	Deterministic bool
}

// builtinTypes are type names available without declaration.
var builtinTypes = map[string]bool{
	"int": true, "float": true, "str": true, "bool": true, "null": true,
	"any": true, "list": true, "map": true, "set": true, "tuple": true,
	"fn": true, "future": true, "bigint": true,
}

// local is what the checker knows about a variable in scope.
type local struct {
	typ string
}

// funcContext is per-function checking state. Function literals, handle
// bodies and handler clauses are lowered as separate functions, so each
// starts a fresh context.
type funcContext struct {
	returnType string
	loops      []string // enclosing loop labels, innermost last; "" when unlabeled
}

// Checker resolves names and collects diagnostics.
type Checker struct {
	file    *File
	symbols *SymbolTable
	scopes  *Scopes[local]
	fn      *funcContext
	errors  ErrorList
	granted map[string]bool // nil when the file declares no policy
}

// NewChecker creates a checker for a parsed file.
func NewChecker(file *File) *Checker {
	return &Checker{
		file:    file,
		symbols: NewSymbolTable(),
		scopes:  NewScopes[local](),
	}
}

// Check resolves a parsed file. It returns every diagnostic it finds.
func Check(file *File) (*Checked, error) {
	c := NewChecker(file)
	checked := c.Check()
	if err := c.errors.Err(); err != nil {
		return nil, err
	}
	return checked, nil
}

// Errors returns accumulated diagnostics.
func (c *Checker) Errors() ErrorList {
	return c.errors
}

func (c *Checker) errorAt(pos Position, phase Phase, kind Kind, format string, args ...interface{}) {
	c.errors = append(c.errors, &Diagnostic{
		Phase:   phase,
		Kind:    kind,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	})
}

func (c *Checker) resolveErr(n Node, kind Kind, format string, args ...interface{}) {
	c.errorAt(n.Span().Start, PhaseResolve, kind, format, args...)
}

func (c *Checker) typeErr(n Node, kind Kind, format string, args ...interface{}) {
	c.errorAt(n.Span().Start, PhaseType, kind, format, args...)
}

func (c *Checker) define(cat Category, name string, pos Position, decl Node) {
	if _, d := c.symbols.Define(cat, name, pos, decl); d != nil {
		c.errors = append(c.errors, d)
	}
}

// Check runs all passes and returns the checked program. Diagnostics are
// available from Errors.
func (c *Checker) Check() *Checked {
	c.collect()
	c.checkDecls()
	for _, d := range c.file.Decls {
		if fd, ok := d.(*FuncDecl); ok {
			c.checkFunction(fd.Params, fd.Return, fd.Body)
		}
	}
	return &Checked{File: c.file, Symbols: c.symbols, Deterministic: c.file.Deterministic}
}

// collect enters every top-level declaration into the symbol table.
func (c *Checker) collect() {
	for _, d := range c.file.Decls {
		pos := d.Span().Start
		switch d := d.(type) {
		case *FuncDecl:
			c.define(CatFunction, d.Name, pos, d)
		case *ConstDecl:
			c.define(CatConstant, d.Name, pos, d)
		case *TypeDecl:
			c.define(CatType, d.Name, pos, d)
		case *EnumDecl:
			c.define(CatType, d.Name, pos, d)
		case *AliasDecl:
			c.define(CatAlias, d.Name, pos, d)
		case *EffectDecl:
			c.define(CatEffect, d.Name, pos, d)
		case *ToolDecl:
			c.define(CatTool, d.Alias, pos, d)
		case *PolicyDecl:
			c.define(CatPolicy, d.Name, pos, d)
		case *PipelineDecl:
			c.define(CatPipeline, d.Name, pos, d)
		}
	}
}

// checkType reports an undefined type name. Empty means omitted.
func (c *Checker) checkType(pos Position, name string) {
	if name == "" || builtinTypes[name] {
		return
	}
	if _, ok := c.symbols.Lookup(CatType, name); ok {
		return
	}
	if _, ok := c.symbols.Lookup(CatAlias, name); ok {
		return
	}
	c.errorAt(pos, PhaseResolve, KindUndefinedType, "undefined type %q", name)
}

func (c *Checker) checkParams(params []*Param) {
	seen := map[string]bool{}
	for i, p := range params {
		c.checkType(p.Pos, p.Type)
		if seen[p.Name] {
			c.errorAt(p.Pos, PhaseResolve, KindDuplicateDefinition, "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if p.Variadic && i != len(params)-1 {
			c.errorAt(p.Pos, PhaseSyntax, KindUnexpectedToken, "only the last parameter may be variadic")
		}
	}
}

// checkDecls validates declaration bodies that do not contain code.
func (c *Checker) checkDecls() {
	for _, d := range c.file.Decls {
		switch d := d.(type) {
		case *FuncDecl:
			c.checkParams(d.Params)
			c.checkType(d.Span().Start, d.Return)
		case *ConstDecl:
			c.checkConst(d)
		case *TypeDecl:
			seen := map[string]bool{}
			for _, f := range d.Fields {
				c.checkType(f.Pos, f.Type)
				if seen[f.Name] {
					c.errorAt(f.Pos, PhaseResolve, KindDuplicateDefinition, "duplicate field %q in %s", f.Name, d.Name)
				}
				seen[f.Name] = true
			}
		case *EnumDecl:
			seen := map[string]bool{}
			for _, cs := range d.Cases {
				for _, t := range cs.Payload {
					c.checkType(cs.Pos, t)
				}
				if seen[cs.Name] {
					c.errorAt(cs.Pos, PhaseResolve, KindDuplicateDefinition, "duplicate case %q in %s", cs.Name, d.Name)
				}
				seen[cs.Name] = true
			}
		case *AliasDecl:
			c.checkType(d.Span().Start, d.Target)
			if c.symbols.ResolveAlias(d.Name) == d.Name {
				c.resolveErr(d, KindUndefinedType, "alias %q is cyclic", d.Name)
			}
		case *EffectDecl:
			seen := map[string]bool{}
			for _, op := range d.Ops {
				c.checkParams(op.Params)
				c.checkType(op.Pos, op.Return)
				if seen[op.Name] {
					c.errorAt(op.Pos, PhaseResolve, KindDuplicateDefinition, "duplicate operation %q in %s", op.Name, d.Name)
				}
				seen[op.Name] = true
			}
		case *ToolDecl:
			if d.Capability == "" {
				c.resolveErr(d, KindUndefinedCapability, "tool %q has no capability id", d.Alias)
			}
		case *PolicyDecl:
			if c.granted == nil {
				c.granted = map[string]bool{}
			}
			for _, g := range d.Grants {
				if _, ok := c.symbols.Lookup(CatTool, g); !ok {
					c.resolveErr(d, KindUndefinedCapability, "policy %s grants undefined tool %q", d.Name, g)
				}
				c.granted[g] = true
			}
		case *PipelineDecl:
			c.checkPipeline(d)
		}
	}
}

// checkConst requires a literal value matching the declared type.
func (c *Checker) checkConst(d *ConstDecl) {
	c.checkType(d.Span().Start, d.Type)
	if !IsConstantExpr(d.Value) {
		c.resolveErr(d.Value, KindInvalidConstant, "constant %s must be a literal", d.Name)
		return
	}
	c.checkAssignable(d.Value, d.Type, c.literalType(d.Value))
}

// IsConstantExpr reports whether x is a literal, or a negated numeric
// literal, that can live in a constant pool.
func IsConstantExpr(x Expr) bool {
	switch x := x.(type) {
	case *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NullLiteral:
		return true
	case *UnaryExpr:
		if x.Op != "-" {
			return false
		}
		switch x.X.(type) {
		case *IntLiteral, *FloatLiteral:
			return true
		}
	}
	return false
}

func (c *Checker) checkPipeline(d *PipelineDecl) {
	var prevReturn string
	for i, stage := range d.Stages {
		fd, ok := c.symbols.Function(stage)
		if !ok {
			c.resolveErr(d, KindUndefinedName, "pipeline %s: undefined function %q", d.Name, stage)
			prevReturn = ""
			continue
		}
		if len(fd.Params) != 1 || fd.Params[0].Variadic {
			c.resolveErr(d, KindPipelineStageMismatch, "pipeline %s: stage %s must take exactly one argument", d.Name, stage)
		} else if i > 0 && !c.compatible(fd.Params[0].Type, prevReturn) {
			c.resolveErr(d, KindPipelineStageMismatch, "pipeline %s: stage %s expects %s, previous stage returns %s",
				d.Name, stage, fd.Params[0].Type, prevReturn)
		}
		prevReturn = fd.Return
	}
}

// compatible reports whether a value of type actual may flow into declared.
// Unknown types on either side are accepted.
func (c *Checker) compatible(declared, actual string) bool {
	if declared == "" || actual == "" {
		return true
	}
	declared = c.symbols.ResolveAlias(declared)
	actual = c.symbols.ResolveAlias(actual)
	switch {
	case declared == "any" || actual == "any":
		return true
	case declared == actual:
		return true
	case declared == "bigint" && actual == "int":
		return true
	}
	return false
}

func (c *Checker) checkAssignable(n Node, declared, actual string) {
	if !c.compatible(declared, actual) {
		c.typeErr(n, KindTypeMismatch, "cannot use %s as %s", actual, declared)
	}
}

// literalType infers the type of expressions whose type is evident without
// inference. It returns "" when unknown.
func (c *Checker) literalType(x Expr) string {
	switch x := x.(type) {
	case *IntLiteral:
		if x.Big != "" {
			return "bigint"
		}
		return "int"
	case *FloatLiteral:
		return "float"
	case *StringLiteral:
		return "str"
	case *BoolLiteral:
		return "bool"
	case *NullLiteral:
		return "null"
	case *ListLit:
		return "list"
	case *MapLit:
		return "map"
	case *SetLit:
		return "set"
	case *TupleLit:
		return "tuple"
	case *FuncLit:
		return "fn"
	case *SpawnExpr:
		return "future"
	case *RecordLit:
		return x.Type
	case *UnaryExpr:
		if x.Op == "!" {
			return "bool"
		}
		return c.literalType(x.X)
	case *BinaryExpr:
		switch x.Op {
		case "==", "!=", "<", "<=", ">", ">=", "in", "&&", "||":
			return "bool"
		case "++":
			// CONCAT joins two strings, two lists or two tuples.
			l, r := c.literalType(x.Left), c.literalType(x.Right)
			switch l {
			case "str", "list", "tuple":
				if l == r || r == "" {
					return l
				}
			case "":
				switch r {
				case "str", "list", "tuple":
					return r
				}
			}
		}
	case *FieldExpr:
		if id, ok := x.X.(*Ident); ok && c.isEnumRef(id) {
			return id.Name
		}
	case *CallExpr:
		if fx, ok := x.Callee.(*FieldExpr); ok {
			if id, ok := fx.X.(*Ident); ok && c.isEnumRef(id) {
				return id.Name
			}
		}
	case *Ident:
		if l, ok := c.scopes.Lookup(x.Name); ok {
			return l.typ
		}
	}
	return ""
}

// isEnumRef reports whether id names an enum rather than a variable.
func (c *Checker) isEnumRef(id *Ident) bool {
	if _, ok := c.scopes.Lookup(id.Name); ok {
		return false
	}
	_, ok := c.symbols.Enum(id.Name)
	return ok
}

// ---------------------------------------------------------------------------
// Function bodies
// ---------------------------------------------------------------------------

// checkFunction checks a body in a fresh function context and scope.
func (c *Checker) checkFunction(params []*Param, ret string, body *Block) {
	saved := c.fn
	c.fn = &funcContext{returnType: ret}
	c.scopes.Push()
	for _, p := range params {
		c.scopes.Define(p.Name, local{typ: p.Type})
	}
	c.checkBlockBody(body)
	if body.Tail != nil {
		c.checkAssignable(body.Tail, ret, c.literalType(body.Tail))
	}
	c.scopes.Pop()
	c.fn = saved
}

func (c *Checker) checkBlock(b *Block) {
	c.scopes.Push()
	c.checkBlockBody(b)
	c.scopes.Pop()
}

func (c *Checker) checkBlockBody(b *Block) {
	for _, s := range b.Stmts {
		c.checkStmt(s)
	}
	if b.Tail != nil {
		c.checkExpr(b.Tail)
	}
}

func (c *Checker) checkStmt(s Stmt) {
	switch s := s.(type) {
	case *Block:
		c.checkBlock(s)
	case *LetStmt:
		c.checkType(s.SpanVal.Start, s.Type)
		c.checkExpr(s.Value)
		actual := c.literalType(s.Value)
		c.checkAssignable(s.Value, s.Type, actual)
		typ := s.Type
		if typ == "" && actual != "null" {
			// An untyped let bound to null is filled in later.
			typ = actual
		}
		c.scopes.Define(s.Name, local{typ: typ})
	case *AssignStmt:
		c.checkAssignTarget(s.Target)
		c.checkExpr(s.Value)
		if id, ok := s.Target.(*Ident); ok {
			if l, ok := c.scopes.Lookup(id.Name); ok {
				c.checkAssignable(s.Value, l.typ, c.literalType(s.Value))
			}
		}
	case *ExprStmt:
		c.checkExpr(s.Expr)
	case *IfStmt:
		c.checkExpr(s.Cond)
		c.checkBlock(s.Then)
		if s.Else != nil {
			c.checkStmt(s.Else)
		}
	case *WhileStmt:
		c.checkExpr(s.Cond)
		c.checkLoopBody(s, s.Label, s.Body, "")
	case *ForStmt:
		c.checkExpr(s.Iter)
		c.checkLoopBody(s, s.Label, s.Body, s.Var)
	case *BreakStmt:
		c.checkJump(s, s.Label, "break")
	case *ContinueStmt:
		c.checkJump(s, s.Label, "continue")
	case *ReturnStmt:
		if s.Value != nil {
			c.checkExpr(s.Value)
			c.checkAssignable(s.Value, c.fn.returnType, c.literalType(s.Value))
		} else if !c.compatible(c.fn.returnType, "null") {
			c.typeErr(s, KindTypeMismatch, "missing return value of type %s", c.fn.returnType)
		}
	case *CancelStmt:
		c.checkExpr(s.Future)
	}
}

func (c *Checker) checkLoopBody(n Node, label string, body *Block, loopVar string) {
	if label != "" {
		for _, l := range c.fn.loops {
			if l == label {
				c.resolveErr(n, KindDuplicateDefinition, "label %q already in use", label)
			}
		}
	}
	c.fn.loops = append(c.fn.loops, label)
	c.scopes.Push()
	if loopVar != "" {
		c.scopes.Define(loopVar, local{})
	}
	c.checkBlockBody(body)
	c.scopes.Pop()
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]
}

func (c *Checker) checkJump(n Node, label, what string) {
	if len(c.fn.loops) == 0 {
		c.resolveErr(n, KindOutsideLoop, "%s outside loop", what)
		return
	}
	if label == "" {
		return
	}
	for _, l := range c.fn.loops {
		if l == label {
			return
		}
	}
	c.resolveErr(n, KindUndefinedLabel, "%s to undefined label %q", what, label)
}

// checkAssignTarget requires a local variable, optionally followed by field
// and index selectors.
func (c *Checker) checkAssignTarget(x Expr) {
	switch t := x.(type) {
	case *Ident:
		if _, ok := c.scopes.Lookup(t.Name); !ok {
			if len(c.symbols.Resolve(t.Name)) > 0 {
				c.resolveErr(t, KindInvalidAssignmentTarget, "cannot assign to %s", t.Name)
			} else {
				c.typeErr(t, KindUndefinedVariable, "undefined variable %q", t.Name)
			}
		}
	case *FieldExpr:
		c.checkAssignTarget(t.X)
	case *IndexExpr:
		c.checkAssignTarget(t.X)
		c.checkExpr(t.Index)
	default:
		c.resolveErr(x, KindInvalidAssignmentTarget, "invalid assignment target")
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Checker) checkExprs(xs []Expr) {
	for _, x := range xs {
		c.checkExpr(x)
	}
}

func (c *Checker) checkExpr(x Expr) {
	switch x := x.(type) {
	case nil:
	case *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NullLiteral:
	case *Ident:
		c.checkIdent(x)
	case *BinaryExpr:
		c.checkExpr(x.Left)
		c.checkExpr(x.Right)
	case *UnaryExpr:
		c.checkExpr(x.X)
	case *CallExpr:
		c.checkCall(x)
	case *FieldExpr:
		if id, ok := x.X.(*Ident); ok && c.isEnumRef(id) {
			c.checkVariant(x, id.Name, x.Name, 0)
			return
		}
		c.checkExpr(x.X)
	case *IndexExpr:
		c.checkExpr(x.X)
		c.checkExpr(x.Index)
	case *SliceExpr:
		c.checkExpr(x.X)
		c.checkExpr(x.Lo)
		c.checkExpr(x.Hi)
	case *ListLit:
		c.checkExprs(x.Elems)
	case *SetLit:
		c.checkExprs(x.Elems)
	case *TupleLit:
		c.checkExprs(x.Elems)
	case *MapLit:
		c.checkExprs(x.Keys)
		c.checkExprs(x.Values)
	case *RecordLit:
		c.checkRecord(x)
	case *FuncLit:
		c.checkParams(x.Params)
		c.checkType(x.SpanVal.Start, x.Return)
		c.checkFunction(x.Params, x.Return, x.Body)
	case *MatchExpr:
		c.checkMatch(x)
	case *HandleExpr:
		c.checkHandle(x)
	case *PerformExpr:
		c.checkPerform(x)
	case *ResumeExpr:
		c.checkExpr(x.Cont)
		c.checkExpr(x.Value)
	case *SpawnExpr:
		c.checkCall(x.Call)
	case *AwaitExpr:
		c.checkExpr(x.X)
	case *ToolCallExpr:
		c.checkToolCall(x)
	case *TraceExpr:
		c.checkExpr(x.Value)
	default:
		c.errorAt(x.Span().Start, PhaseInternal, KindInvalidToken, "unhandled expression %T", x)
	}
}

func (c *Checker) checkIdent(id *Ident) {
	if _, ok := c.scopes.Lookup(id.Name); ok {
		return
	}
	for _, cat := range []Category{CatFunction, CatConstant, CatPipeline} {
		if _, ok := c.symbols.Lookup(cat, id.Name); ok {
			return
		}
	}
	c.resolveErr(id, KindUndefinedName, "undefined name %q", id.Name)
}

func (c *Checker) checkCall(call *CallExpr) {
	c.checkExprs(call.Args)
	n := len(call.Args)
	switch callee := call.Callee.(type) {
	case *Ident:
		if _, ok := c.scopes.Lookup(callee.Name); ok {
			return
		}
		if fd, ok := c.symbols.Function(callee.Name); ok {
			c.checkArity(call, callee.Name, fd.Params, n)
			return
		}
		if _, ok := c.symbols.Lookup(CatPipeline, callee.Name); ok {
			if n != 1 {
				c.resolveErr(call, KindArityMismatch, "pipeline %s takes 1 argument, got %d", callee.Name, n)
			}
			return
		}
		if _, ok := c.symbols.Lookup(CatConstant, callee.Name); ok {
			c.typeErr(call, KindNotCallable, "constant %s is not callable", callee.Name)
			return
		}
		if in, ok := bytecode.LookupIntrinsic(callee.Name); ok {
			if !in.AcceptsArgs(n) {
				c.resolveErr(call, KindArityMismatch, "%s does not accept %d arguments", in.Name, n)
			}
			if in.Nondeterministic && c.file.Deterministic {
				c.resolveErr(call, KindNondeterministic, "%s is not allowed under the deterministic profile", in.Name)
			}
			return
		}
		c.resolveErr(callee, KindUndefinedName, "undefined function %q", callee.Name)
	case *FieldExpr:
		if id, ok := callee.X.(*Ident); ok && c.isEnumRef(id) {
			c.checkVariant(call, id.Name, callee.Name, n)
			return
		}
		c.checkExpr(callee)
	case *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NullLiteral,
		*ListLit, *MapLit, *SetLit, *TupleLit, *RecordLit:
		c.typeErr(call, KindNotCallable, "%s is not callable", c.literalType(callee))
	default:
		c.checkExpr(callee)
	}
}

func (c *Checker) checkArity(n Node, name string, params []*Param, got int) {
	want := len(params)
	if want > 0 && params[want-1].Variadic {
		if got < want-1 {
			c.resolveErr(n, KindArityMismatch, "%s takes at least %d arguments, got %d", name, want-1, got)
		}
		return
	}
	if got != want {
		c.resolveErr(n, KindArityMismatch, "%s takes %d arguments, got %d", name, want, got)
	}
}

// checkVariant checks an Enum.Case reference constructed with n arguments.
func (c *Checker) checkVariant(n Node, enum, name string, args int) {
	ed, _ := c.symbols.Enum(enum)
	cs := findCase(ed, name)
	if cs == nil {
		c.resolveErr(n, KindUndefinedName, "enum %s has no case %q", enum, name)
		return
	}
	if len(cs.Payload) != args {
		c.resolveErr(n, KindArityMismatch, "%s.%s takes %d values, got %d", enum, name, len(cs.Payload), args)
	}
}

func findCase(ed *EnumDecl, name string) *CaseDecl {
	if ed == nil {
		return nil
	}
	for _, cs := range ed.Cases {
		if cs.Name == name {
			return cs
		}
	}
	return nil
}

func (c *Checker) checkRecord(r *RecordLit) {
	td, ok := c.symbols.Record(r.Type)
	if !ok {
		c.resolveErr(r, KindUndefinedType, "undefined record type %q", r.Type)
		for _, f := range r.Fields {
			c.checkExpr(f.Value)
		}
		return
	}
	given := map[string]bool{}
	for _, f := range r.Fields {
		c.checkExpr(f.Value)
		var decl *FieldDecl
		for _, fd := range td.Fields {
			if fd.Name == f.Name {
				decl = fd
			}
		}
		switch {
		case decl == nil:
			c.errorAt(f.Pos, PhaseType, KindInvalidFieldAccess, "%s has no field %q", td.Name, f.Name)
		case given[f.Name]:
			c.errorAt(f.Pos, PhaseResolve, KindDuplicateDefinition, "field %q given twice", f.Name)
		default:
			if !c.compatible(decl.Type, c.literalType(f.Value)) {
				c.errorAt(f.Pos, PhaseType, KindTypeMismatch, "field %s: cannot use %s as %s",
					f.Name, c.literalType(f.Value), decl.Type)
			}
		}
		given[f.Name] = true
	}
	for _, fd := range td.Fields {
		if !given[fd.Name] {
			c.typeErr(r, KindInvalidFieldAccess, "missing field %q of %s", fd.Name, td.Name)
		}
	}
}

func (c *Checker) checkMatch(m *MatchExpr) {
	c.checkExpr(m.Subject)
	var enum *EnumDecl
	covered := map[string]bool{}
	wildcard := false
	for _, arm := range m.Arms {
		c.scopes.Push()
		if arm.Wildcard {
			wildcard = true
		} else {
			ed, ok := c.symbols.Enum(arm.Enum)
			switch {
			case !ok:
				c.errorAt(arm.Pos, PhaseResolve, KindUndefinedType, "undefined enum %q", arm.Enum)
			case enum != nil && ed != enum:
				c.errorAt(arm.Pos, PhaseType, KindTypeMismatch, "arm matches %s, expected %s", arm.Enum, enum.Name)
			default:
				enum = ed
				cs := findCase(ed, arm.Case)
				if cs == nil {
					c.errorAt(arm.Pos, PhaseResolve, KindUndefinedName, "enum %s has no case %q", arm.Enum, arm.Case)
				} else if len(arm.Binds) != len(cs.Payload) {
					c.errorAt(arm.Pos, PhaseResolve, KindArityMismatch, "%s.%s binds %d values, got %d",
						arm.Enum, arm.Case, len(cs.Payload), len(arm.Binds))
				} else {
					covered[arm.Case] = true
				}
			}
			for i, b := range arm.Binds {
				typ := ""
				if cs := findCase(ed, arm.Case); cs != nil && i < len(cs.Payload) {
					typ = cs.Payload[i]
				}
				c.scopes.Define(b, local{typ: typ})
			}
		}
		c.checkBlockBody(arm.Body)
		c.scopes.Pop()
	}
	if !wildcard && enum != nil {
		for _, cs := range enum.Cases {
			if !covered[cs.Name] {
				c.typeErr(m, KindNonExhaustiveMatch, "match on %s does not cover %s", enum.Name, cs.Name)
			}
		}
	}
}

func (c *Checker) checkHandle(h *HandleExpr) {
	c.checkFunction(nil, "", h.Body)
	ed, ok := c.symbols.Effect(h.Effect)
	if !ok {
		c.resolveErr(h, KindUndefinedEffect, "undefined effect %q", h.Effect)
	}
	seen := map[string]bool{}
	for _, cl := range h.Clauses {
		params := make([]*Param, len(cl.Params))
		for i, name := range cl.Params {
			params[i] = &Param{Pos: cl.Pos, Name: name}
		}
		if ok {
			op := findOp(ed, cl.Op)
			switch {
			case op == nil:
				c.errorAt(cl.Pos, PhaseResolve, KindUndefinedOperation, "effect %s has no operation %q", h.Effect, cl.Op)
			case len(cl.Params) != len(op.Params)+1:
				c.errorAt(cl.Pos, PhaseResolve, KindArityMismatch,
					"clause %s takes %d parameters plus a continuation, got %d", cl.Op, len(op.Params), len(cl.Params))
			default:
				for i, p := range op.Params {
					params[i].Type = p.Type
				}
			}
		}
		if seen[cl.Op] {
			c.errorAt(cl.Pos, PhaseResolve, KindInvalidHandler, "operation %q handled twice", cl.Op)
		}
		seen[cl.Op] = true
		c.checkParams(params)
		c.checkFunction(params, "", cl.Body)
	}
}

func findOp(ed *EffectDecl, name string) *OpDecl {
	for _, op := range ed.Ops {
		if op.Name == name {
			return op
		}
	}
	return nil
}

func (c *Checker) checkPerform(p *PerformExpr) {
	c.checkExprs(p.Args)
	ed, ok := c.symbols.Effect(p.Effect)
	if !ok {
		c.resolveErr(p, KindUndefinedEffect, "undefined effect %q", p.Effect)
		return
	}
	op := findOp(ed, p.Op)
	if op == nil {
		c.resolveErr(p, KindUndefinedOperation, "effect %s has no operation %q", p.Effect, p.Op)
		return
	}
	c.checkArity(p, p.Effect+"."+p.Op, op.Params, len(p.Args))
}

func (c *Checker) checkToolCall(t *ToolCallExpr) {
	c.checkExpr(t.Request)
	c.checkExpr(t.Timeout)
	if _, ok := c.symbols.Tool(t.Tool); !ok {
		c.resolveErr(t, KindUndefinedCapability, "undefined tool %q", t.Tool)
		return
	}
	if c.granted != nil && !c.granted[t.Tool] {
		c.resolveErr(t, KindEffectNotGranted, "tool %q is not granted by any policy", t.Tool)
	}
}
