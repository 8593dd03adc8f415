package compiler

import (
	"github.com/chazu/corvid/bytecode"
	"github.com/chazu/corvid/compiler/hash"
)

// ---------------------------------------------------------------------------
// Compile: source to module
// ---------------------------------------------------------------------------

// ParseFunc is a front end: it turns source text into a file AST.
type ParseFunc func(src string) (*File, error)

// Options configures Compile.
type Options struct {
	// Parser selects the front end. Nil uses Parse.
	Parser ParseFunc
}

// Compile parses, checks and lowers src. It fails closed: any diagnostic
// means no module is returned.
func Compile(src string, opts Options) (*bytecode.Module, error) {
	parse := opts.Parser
	if parse == nil {
		parse = Parse
	}
	file, err := parse(src)
	if err != nil {
		return nil, err
	}
	checked, err := Check(file)
	if err != nil {
		return nil, err
	}
	return Lower(checked, hash.Source(src))
}

// CompileBytes compiles src and serializes the resulting module.
func CompileBytes(src string, opts Options) ([]byte, error) {
	mod, err := Compile(src, opts)
	if err != nil {
		return nil, err
	}
	return bytecode.Marshal(mod)
}
