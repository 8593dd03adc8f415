// Corvid CLI: build, run, disassemble and replay Corvid programs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("corvid.cli")

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: corvid [-v] <command> [options] [file]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  build    compile source to a .cvb module\n")
	fmt.Fprintf(os.Stderr, "  run      run a source file or module\n")
	fmt.Fprintf(os.Stderr, "  disasm   print a module's instructions\n")
	fmt.Fprintf(os.Stderr, "  replay   re-run a recorded run against its trace\n")
	fmt.Fprintf(os.Stderr, "  runs     list the runs in a trace store\n")
	fmt.Fprintf(os.Stderr, "\nWith no file, sources come from the nearest corvid.toml.\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  corvid build -o app.cvb main.cv\n")
	fmt.Fprintf(os.Stderr, "  corvid run -fn main -trace runs.db main.cv\n")
	fmt.Fprintf(os.Stderr, "  corvid disasm app.cvb\n")
	fmt.Fprintf(os.Stderr, "  corvid replay -trace runs.db -run <id> main.cv\n")
}

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)")
	flag.Usage = usage
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var code int
	switch args[0] {
	case "build":
		code = handleBuildCommand(args[1:])
	case "run":
		code = handleRunCommand(args[1:])
	case "disasm":
		code = handleDisasmCommand(args[1:])
	case "replay":
		code = handleReplayCommand(args[1:])
	case "runs":
		code = handleRunsCommand(args[1:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		usage()
		code = 2
	}
	os.Exit(code)
}

// fail reports err and returns the exit status for it.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
