package compiler

// ---------------------------------------------------------------------------
// AST: checked program tree for Corvid source
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Decl is the interface for top-level declarations.
type Decl interface {
	Node
	decl() // marker method
}

// File is a parsed source file.
type File struct {
	Deterministic bool
	Decls         []Decl
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Param is a function, clause or effect-operation parameter.
type Param struct {
	Pos      Position
	Name     string
	Type     string // "" when omitted
	Variadic bool
}

// FuncDecl is a named top-level function.
type FuncDecl struct {
	SpanVal Span
	Name    string
	Params  []*Param
	Return  string
	Body    *Block
}

// ConstDecl binds a name to a literal value.
type ConstDecl struct {
	SpanVal Span
	Name    string
	Type    string
	Value   Expr
}

// FieldDecl is a record field.
type FieldDecl struct {
	Pos  Position
	Name string
	Type string
}

// TypeDecl declares a record type.
type TypeDecl struct {
	SpanVal Span
	Name    string
	Fields  []*FieldDecl
}

// CaseDecl is one enum case.
type CaseDecl struct {
	Pos     Position
	Name    string
	Payload []string
}

// EnumDecl declares a tagged union.
type EnumDecl struct {
	SpanVal Span
	Name    string
	Cases   []*CaseDecl
}

// AliasDecl names another type.
type AliasDecl struct {
	SpanVal Span
	Name    string
	Target  string
}

// OpDecl is one operation of an effect.
type OpDecl struct {
	Pos    Position
	Name   string
	Params []*Param
	Return string
}

// EffectDecl declares an effect and its operations.
type EffectDecl struct {
	SpanVal Span
	Name    string
	Ops     []*OpDecl
}

// ToolDecl binds an alias to an external capability.
type ToolDecl struct {
	SpanVal    Span
	Alias      string
	Capability string
	Version    string
	Schema     string
	Timeout    int64 // milliseconds, 0 when omitted
}

// PolicyDecl grants a set of tools.
type PolicyDecl struct {
	SpanVal Span
	Name    string
	Grants  []string
}

// PipelineDecl composes single-argument functions left to right.
type PipelineDecl struct {
	SpanVal Span
	Name    string
	Stages  []string
}

func (n *FuncDecl) Span() Span     { return n.SpanVal }
func (n *FuncDecl) node()          {}
func (n *FuncDecl) decl()          {}
func (n *ConstDecl) Span() Span    { return n.SpanVal }
func (n *ConstDecl) node()         {}
func (n *ConstDecl) decl()         {}
func (n *TypeDecl) Span() Span     { return n.SpanVal }
func (n *TypeDecl) node()          {}
func (n *TypeDecl) decl()          {}
func (n *EnumDecl) Span() Span     { return n.SpanVal }
func (n *EnumDecl) node()          {}
func (n *EnumDecl) decl()          {}
func (n *AliasDecl) Span() Span    { return n.SpanVal }
func (n *AliasDecl) node()         {}
func (n *AliasDecl) decl()         {}
func (n *EffectDecl) Span() Span   { return n.SpanVal }
func (n *EffectDecl) node()        {}
func (n *EffectDecl) decl()        {}
func (n *ToolDecl) Span() Span     { return n.SpanVal }
func (n *ToolDecl) node()          {}
func (n *ToolDecl) decl()          {}
func (n *PolicyDecl) Span() Span   { return n.SpanVal }
func (n *PolicyDecl) node()        {}
func (n *PolicyDecl) decl()        {}
func (n *PipelineDecl) Span() Span { return n.SpanVal }
func (n *PipelineDecl) node()      {}
func (n *PipelineDecl) decl()      {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Block is a braced statement list. Tail, when present, is a trailing
// expression without a semicolon and supplies the block's value.
type Block struct {
	SpanVal Span
	Stmts   []Stmt
	Tail    Expr
}

// LetStmt declares a local variable.
type LetStmt struct {
	SpanVal Span
	Name    string
	Type    string
	Value   Expr
}

// AssignStmt stores into a variable, field or index.
type AssignStmt struct {
	SpanVal Span
	Target  Expr
	Value   Expr
}

// ExprStmt evaluates an expression for its effect.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

// IfStmt is a conditional. Else is nil, a *Block or an *IfStmt.
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    *Block
	Else    Stmt
}

// WhileStmt is a condition-controlled loop with an optional label.
type WhileStmt struct {
	SpanVal Span
	Label   string
	Cond    Expr
	Body    *Block
}

// ForStmt iterates over a collection with an optional label.
type ForStmt struct {
	SpanVal Span
	Label   string
	Var     string
	Iter    Expr
	Body    *Block
}

// BreakStmt exits the innermost or labeled loop.
type BreakStmt struct {
	SpanVal Span
	Label   string
}

// ContinueStmt starts the next iteration of the innermost or labeled loop.
type ContinueStmt struct {
	SpanVal Span
	Label   string
}

// ReturnStmt returns from the enclosing function. Value may be nil.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr
}

// CancelStmt cancels a future and its descendants.
type CancelStmt struct {
	SpanVal Span
	Future  Expr
}

func (n *Block) Span() Span        { return n.SpanVal }
func (n *Block) node()             {}
func (n *Block) stmt()             {}
func (n *LetStmt) Span() Span      { return n.SpanVal }
func (n *LetStmt) node()           {}
func (n *LetStmt) stmt()           {}
func (n *AssignStmt) Span() Span   { return n.SpanVal }
func (n *AssignStmt) node()        {}
func (n *AssignStmt) stmt()        {}
func (n *ExprStmt) Span() Span     { return n.SpanVal }
func (n *ExprStmt) node()          {}
func (n *ExprStmt) stmt()          {}
func (n *IfStmt) Span() Span       { return n.SpanVal }
func (n *IfStmt) node()            {}
func (n *IfStmt) stmt()            {}
func (n *WhileStmt) Span() Span    { return n.SpanVal }
func (n *WhileStmt) node()         {}
func (n *WhileStmt) stmt()         {}
func (n *ForStmt) Span() Span      { return n.SpanVal }
func (n *ForStmt) node()           {}
func (n *ForStmt) stmt()           {}
func (n *BreakStmt) Span() Span    { return n.SpanVal }
func (n *BreakStmt) node()         {}
func (n *BreakStmt) stmt()         {}
func (n *ContinueStmt) Span() Span { return n.SpanVal }
func (n *ContinueStmt) node()      {}
func (n *ContinueStmt) stmt()      {}
func (n *ReturnStmt) Span() Span   { return n.SpanVal }
func (n *ReturnStmt) node()        {}
func (n *ReturnStmt) stmt()        {}
func (n *CancelStmt) Span() Span   { return n.SpanVal }
func (n *CancelStmt) node()        {}
func (n *CancelStmt) stmt()        {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// IntLiteral is an integer literal. Big holds the decimal digits when the
// value does not fit in 64 bits.
type IntLiteral struct {
	SpanVal Span
	Value   int64
	Big     string
}

// FloatLiteral is a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

// StringLiteral is a string literal with escapes decoded.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

// NullLiteral is null.
type NullLiteral struct {
	SpanVal Span
}

// Ident is a reference to a variable, function or constant.
type Ident struct {
	SpanVal Span
	Name    string
}

// BinaryExpr is a binary operation, including && and ||.
type BinaryExpr struct {
	SpanVal Span
	Op      string
	Left    Expr
	Right   Expr
}

// UnaryExpr is a prefix operation: -, ! or ~.
type UnaryExpr struct {
	SpanVal Span
	Op      string
	X       Expr
}

// CallExpr is a call. The callee decides whether it is a function call,
// an intrinsic or a variant constructor.
type CallExpr struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

// FieldExpr is X.Name; Enum.Case when X names an enum.
type FieldExpr struct {
	SpanVal Span
	X       Expr
	Name    string
}

// IndexExpr is X[Index].
type IndexExpr struct {
	SpanVal Span
	X       Expr
	Index   Expr
}

// SliceExpr is X[Lo:Hi]; either bound may be nil.
type SliceExpr struct {
	SpanVal Span
	X       Expr
	Lo, Hi  Expr
}

// ListLit is [a, b, c].
type ListLit struct {
	SpanVal Span
	Elems   []Expr
}

// MapLit is {k: v, ...}.
type MapLit struct {
	SpanVal Span
	Keys    []Expr
	Values  []Expr
}

// SetLit is #{a, b}.
type SetLit struct {
	SpanVal Span
	Elems   []Expr
}

// TupleLit is (a, b) or ().
type TupleLit struct {
	SpanVal Span
	Elems   []Expr
}

// FieldInit is one name: value pair of a record literal.
type FieldInit struct {
	Pos   Position
	Name  string
	Value Expr
}

// RecordLit is new T { f: v, ... }.
type RecordLit struct {
	SpanVal Span
	Type    string
	Fields  []*FieldInit
}

// FuncLit is an anonymous function.
type FuncLit struct {
	SpanVal Span
	Params  []*Param
	Return  string
	Body    *Block
}

// MatchArm is one arm of a match. Wildcard arms have no Enum or Case.
type MatchArm struct {
	Pos      Position
	Wildcard bool
	Enum     string
	Case     string
	Binds    []string
	Body     *Block
}

// MatchExpr selects an arm by variant tag.
type MatchExpr struct {
	SpanVal Span
	Subject Expr
	Arms    []*MatchArm
}

// HandlerClause implements one operation; its last parameter receives the
// continuation.
type HandlerClause struct {
	Pos    Position
	Op     string
	Params []string
	Body   *Block
}

// HandleExpr runs Body with a handler for Effect installed.
type HandleExpr struct {
	SpanVal Span
	Body    *Block
	Effect  string
	Clauses []*HandlerClause
}

// PerformExpr invokes an effect operation.
type PerformExpr struct {
	SpanVal Span
	Effect  string
	Op      string
	Args    []Expr
}

// ResumeExpr resumes a continuation. Value may be nil.
type ResumeExpr struct {
	SpanVal Span
	Cont    Expr
	Value   Expr
}

// SpawnExpr starts a call as a future.
type SpawnExpr struct {
	SpanVal Span
	Call    *CallExpr
}

// AwaitExpr waits for a future.
type AwaitExpr struct {
	SpanVal Span
	X       Expr
}

// ToolCallExpr invokes an external capability. Timeout may be nil.
type ToolCallExpr struct {
	SpanVal Span
	Tool    string
	Request Expr
	Timeout Expr
}

// TraceExpr records a labeled value and yields a trace reference.
type TraceExpr struct {
	SpanVal Span
	Label   string
	Value   Expr
}

func (n *IntLiteral) Span() Span    { return n.SpanVal }
func (n *IntLiteral) node()         {}
func (n *IntLiteral) expr()         {}
func (n *FloatLiteral) Span() Span  { return n.SpanVal }
func (n *FloatLiteral) node()       {}
func (n *FloatLiteral) expr()       {}
func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}
func (n *BoolLiteral) Span() Span   { return n.SpanVal }
func (n *BoolLiteral) node()        {}
func (n *BoolLiteral) expr()        {}
func (n *NullLiteral) Span() Span   { return n.SpanVal }
func (n *NullLiteral) node()        {}
func (n *NullLiteral) expr()        {}
func (n *Ident) Span() Span         { return n.SpanVal }
func (n *Ident) node()              {}
func (n *Ident) expr()              {}
func (n *BinaryExpr) Span() Span    { return n.SpanVal }
func (n *BinaryExpr) node()         {}
func (n *BinaryExpr) expr()         {}
func (n *UnaryExpr) Span() Span     { return n.SpanVal }
func (n *UnaryExpr) node()          {}
func (n *UnaryExpr) expr()          {}
func (n *CallExpr) Span() Span      { return n.SpanVal }
func (n *CallExpr) node()           {}
func (n *CallExpr) expr()           {}
func (n *FieldExpr) Span() Span     { return n.SpanVal }
func (n *FieldExpr) node()          {}
func (n *FieldExpr) expr()          {}
func (n *IndexExpr) Span() Span     { return n.SpanVal }
func (n *IndexExpr) node()          {}
func (n *IndexExpr) expr()          {}
func (n *SliceExpr) Span() Span     { return n.SpanVal }
func (n *SliceExpr) node()          {}
func (n *SliceExpr) expr()          {}
func (n *ListLit) Span() Span       { return n.SpanVal }
func (n *ListLit) node()            {}
func (n *ListLit) expr()            {}
func (n *MapLit) Span() Span        { return n.SpanVal }
func (n *MapLit) node()             {}
func (n *MapLit) expr()             {}
func (n *SetLit) Span() Span        { return n.SpanVal }
func (n *SetLit) node()             {}
func (n *SetLit) expr()             {}
func (n *TupleLit) Span() Span      { return n.SpanVal }
func (n *TupleLit) node()           {}
func (n *TupleLit) expr()           {}
func (n *RecordLit) Span() Span     { return n.SpanVal }
func (n *RecordLit) node()          {}
func (n *RecordLit) expr()          {}
func (n *FuncLit) Span() Span       { return n.SpanVal }
func (n *FuncLit) node()            {}
func (n *FuncLit) expr()            {}
func (n *MatchExpr) Span() Span     { return n.SpanVal }
func (n *MatchExpr) node()          {}
func (n *MatchExpr) expr()          {}
func (n *HandleExpr) Span() Span    { return n.SpanVal }
func (n *HandleExpr) node()         {}
func (n *HandleExpr) expr()         {}
func (n *PerformExpr) Span() Span   { return n.SpanVal }
func (n *PerformExpr) node()        {}
func (n *PerformExpr) expr()        {}
func (n *ResumeExpr) Span() Span    { return n.SpanVal }
func (n *ResumeExpr) node()         {}
func (n *ResumeExpr) expr()         {}
func (n *SpawnExpr) Span() Span     { return n.SpanVal }
func (n *SpawnExpr) node()          {}
func (n *SpawnExpr) expr()          {}
func (n *AwaitExpr) Span() Span     { return n.SpanVal }
func (n *AwaitExpr) node()          {}
func (n *AwaitExpr) expr()          {}
func (n *ToolCallExpr) Span() Span  { return n.SpanVal }
func (n *ToolCallExpr) node()       {}
func (n *ToolCallExpr) expr()       {}
func (n *TraceExpr) Span() Span     { return n.SpanVal }
func (n *TraceExpr) node()          {}
func (n *TraceExpr) expr()          {}
