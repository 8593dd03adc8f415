package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/corvid/bytecode"
)

// handleBuildCommand processes the `corvid build` subcommand.
// Usage:
//
//	corvid build main.cv           # main.cvb
//	corvid build -o app.cvb main.cv
//	corvid build                   # [project] sources and output
func handleBuildCommand(args []string) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	output := fs.String("o", "", "Output module path")
	parser := fs.String("parser", "descent", "Front end: descent or pratt")
	fs.Parse(args)

	m, err := findManifest()
	if err != nil {
		return fail(err)
	}
	path := fs.Arg(0)
	mod, err := loadModule(path, m, *parser)
	if err != nil {
		return fail(err)
	}

	out := *output
	switch {
	case out != "":
	case path != "":
		out = strings.TrimSuffix(path, filepath.Ext(path)) + moduleExt
	case m != nil && m.OutputPath() != "":
		out = m.OutputPath()
	default:
		out = "out" + moduleExt
	}

	data, err := bytecode.Marshal(mod)
	if err != nil {
		return fail(err)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fail(err)
		}
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fail(err)
	}
	fmt.Printf("Wrote %s (%d bytes, %d functions)\n", out, len(data), len(mod.Functions))
	return 0
}

// handleDisasmCommand processes the `corvid disasm` subcommand.
func handleDisasmCommand(args []string) int {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	parser := fs.String("parser", "descent", "Front end for source input: descent or pratt")
	fs.Parse(args)

	m, err := findManifest()
	if err != nil {
		return fail(err)
	}
	mod, err := loadModule(fs.Arg(0), m, *parser)
	if err != nil {
		return fail(err)
	}
	fmt.Print(bytecode.Disassemble(mod))
	return 0
}
