package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Symbol table: categorized name resolution
// ---------------------------------------------------------------------------

// Category classifies a symbol. Each category is its own map; names in the
// value namespace (functions, constants, pipelines) and the type namespace
// (types, aliases) must also be unique across their namespace.
type Category int

const (
	CatType Category = iota
	CatFunction
	CatPolicy
	CatTool
	CatAgent
	CatMachine
	CatPipeline
	CatEffect
	CatEffectBinding
	CatHandler
	CatAddOn
	CatAlias
	CatTrait
	CatConstant

	numCategories
)

var categoryNames = [...]string{
	CatType:          "type",
	CatFunction:      "function",
	CatPolicy:        "policy",
	CatTool:          "tool",
	CatAgent:         "agent",
	CatMachine:       "machine",
	CatPipeline:      "pipeline",
	CatEffect:        "effect",
	CatEffectBinding: "effect binding",
	CatHandler:       "handler",
	CatAddOn:         "add-on",
	CatAlias:         "alias",
	CatTrait:         "trait",
	CatConstant:      "constant",
}

func (c Category) String() string {
	if c >= 0 && c < numCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// namespace groups categories whose names must not collide.
func (c Category) namespace() []Category {
	switch c {
	case CatFunction, CatConstant, CatPipeline:
		return []Category{CatFunction, CatConstant, CatPipeline}
	case CatType, CatAlias:
		return []Category{CatType, CatAlias}
	}
	return []Category{c}
}

// Symbol is one named entry.
type Symbol struct {
	Name     string
	Category Category
	Pos      Position
	Decl     Node // declaring node; nil for symbols added by a richer front end
	Index    int  // definition order within the category
}

// TraitImpl records that a type implements a trait.
type TraitImpl struct {
	Trait string
	Type  string
	Pos   Position
}

// SymbolTable holds every top-level name of a compilation unit. It is built
// once by the checker and read-only afterwards.
type SymbolTable struct {
	tables     [numCategories]map[string]*Symbol
	order      [numCategories][]*Symbol
	TraitImpls []TraitImpl
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	t := &SymbolTable{}
	for i := range t.tables {
		t.tables[i] = make(map[string]*Symbol)
	}
	return t
}

// Define adds a symbol. A name already defined in the same namespace yields
// a duplicate-definition diagnostic and leaves the table unchanged.
func (t *SymbolTable) Define(cat Category, name string, pos Position, decl Node) (*Symbol, *Diagnostic) {
	for _, other := range cat.namespace() {
		if prev, ok := t.tables[other][name]; ok {
			return prev, &Diagnostic{
				Phase: PhaseResolve,
				Kind:  KindDuplicateDefinition,
				Pos:   pos,
				Message: fmt.Sprintf("%s %q already defined as %s at %d:%d",
					cat, name, other, prev.Pos.Line, prev.Pos.Column),
			}
		}
	}
	sym := &Symbol{Name: name, Category: cat, Pos: pos, Decl: decl, Index: len(t.order[cat])}
	t.tables[cat][name] = sym
	t.order[cat] = append(t.order[cat], sym)
	return sym, nil
}

// Lookup finds a symbol in one category.
func (t *SymbolTable) Lookup(cat Category, name string) (*Symbol, bool) {
	sym, ok := t.tables[cat][name]
	return sym, ok
}

// Resolve returns every symbol named name, in category order.
func (t *SymbolTable) Resolve(name string) []*Symbol {
	var out []*Symbol
	for _, tbl := range t.tables {
		if sym, ok := tbl[name]; ok {
			out = append(out, sym)
		}
	}
	return out
}

// All returns the symbols of a category in definition order.
func (t *SymbolTable) All(cat Category) []*Symbol {
	return t.order[cat]
}

// Len returns the number of symbols in a category.
func (t *SymbolTable) Len(cat Category) int {
	return len(t.order[cat])
}

// AddTraitImpl records a trait implementation. Implementing an undeclared
// trait, or implementing the same trait twice for a type, is reported.
func (t *SymbolTable) AddTraitImpl(impl TraitImpl) *Diagnostic {
	if _, ok := t.tables[CatTrait][impl.Trait]; !ok {
		return &Diagnostic{Phase: PhaseResolve, Kind: KindUndefinedTrait, Pos: impl.Pos,
			Message: fmt.Sprintf("undefined trait %q", impl.Trait)}
	}
	for _, existing := range t.TraitImpls {
		if existing.Trait == impl.Trait && existing.Type == impl.Type {
			return &Diagnostic{Phase: PhaseResolve, Kind: KindDuplicateDefinition, Pos: impl.Pos,
				Message: fmt.Sprintf("%s already implements %s", impl.Type, impl.Trait)}
		}
	}
	t.TraitImpls = append(t.TraitImpls, impl)
	return nil
}

// Function returns the declaration of a named function.
func (t *SymbolTable) Function(name string) (*FuncDecl, bool) {
	sym, ok := t.tables[CatFunction][name]
	if !ok {
		return nil, false
	}
	d, ok := sym.Decl.(*FuncDecl)
	return d, ok
}

// Enum returns the declaration of a named enum.
func (t *SymbolTable) Enum(name string) (*EnumDecl, bool) {
	sym, ok := t.tables[CatType][name]
	if !ok {
		return nil, false
	}
	d, ok := sym.Decl.(*EnumDecl)
	return d, ok
}

// Record returns the declaration of a named record type, following aliases.
func (t *SymbolTable) Record(name string) (*TypeDecl, bool) {
	sym, ok := t.tables[CatType][t.ResolveAlias(name)]
	if !ok {
		return nil, false
	}
	d, ok := sym.Decl.(*TypeDecl)
	return d, ok
}

// Effect returns the declaration of a named effect.
func (t *SymbolTable) Effect(name string) (*EffectDecl, bool) {
	sym, ok := t.tables[CatEffect][name]
	if !ok {
		return nil, false
	}
	d, ok := sym.Decl.(*EffectDecl)
	return d, ok
}

// Tool returns the declaration of a tool alias.
func (t *SymbolTable) Tool(alias string) (*ToolDecl, bool) {
	sym, ok := t.tables[CatTool][alias]
	if !ok {
		return nil, false
	}
	d, ok := sym.Decl.(*ToolDecl)
	return d, ok
}

// ResolveAlias follows alias chains to a non-alias type name. Cycles stop
// at the first repeated name.
func (t *SymbolTable) ResolveAlias(name string) string {
	seen := map[string]bool{}
	for !seen[name] {
		seen[name] = true
		sym, ok := t.tables[CatAlias][name]
		if !ok {
			return name
		}
		d, ok := sym.Decl.(*AliasDecl)
		if !ok {
			return name
		}
		name = d.Target
	}
	return name
}
