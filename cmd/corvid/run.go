package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/chazu/corvid/compiler"
	"github.com/chazu/corvid/manifest"
	"github.com/chazu/corvid/trace"
	"github.com/chazu/corvid/vm"
)

// runFlags are shared by run and replay. Empty values defer to the
// manifest.
type runFlags struct {
	fn         *string
	parser     *string
	profile    *string
	scheduling *string
	tracePath  *string
	runID      *string
	maxDepth   *int
	maxSteps   *int64
	timeout    *time.Duration
}

func addRunFlags(fs *flag.FlagSet) *runFlags {
	return &runFlags{
		fn:         fs.String("fn", "", "Function to run (default: [project] entry, else main)"),
		parser:     fs.String("parser", "descent", "Front end for source input: descent or pratt"),
		profile:    fs.String("profile", "", "Runtime profile: default or deterministic"),
		scheduling: fs.String("sched", "", "Future scheduling: eager or fifo"),
		tracePath:  fs.String("trace", "", "Trace store path (SQLite)"),
		runID:      fs.String("run", "", "Run id"),
		maxDepth:   fs.Int("max-depth", 0, "Call depth limit"),
		maxSteps:   fs.Int64("max-steps", 0, "Instruction budget"),
		timeout:    fs.Duration("tool-timeout", 0, "Default capability timeout"),
	}
}

// session is a loaded program plus the machine options and resources a
// run needs.
type session struct {
	m     *manifest.Manifest
	prog  *vm.Program
	entry string
	parse compiler.ParseFunc
	opts  vm.Options
	store *trace.Store
	runID string

	closers []io.Closer
}

func (s *session) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			log.Warningf("close: %v", err)
		}
	}
}

// openSession loads the program at path and resolves options: flags
// first, then corvid.toml, then machine defaults.
func openSession(path string, f *runFlags) (*session, error) {
	m, err := findManifest()
	if err != nil {
		return nil, err
	}
	s := &session{m: m, entry: *f.fn}
	if s.parse, err = frontEnd(*f.parser); err != nil {
		return nil, err
	}
	mod, err := loadModule(path, m, *f.parser)
	if err != nil {
		return nil, err
	}
	if s.prog, err = vm.Load(mod); err != nil {
		return nil, err
	}
	if m == nil {
		m = &manifest.Manifest{}
	}
	if s.entry == "" {
		s.entry = m.Project.Entry
	}
	if s.entry == "" {
		s.entry = "main"
	}

	rt := m.Runtime
	profile, err := vm.ParseProfile(pick(*f.profile, rt.Profile))
	if err != nil {
		return nil, err
	}
	sched, err := vm.ParseScheduling(pick(*f.scheduling, rt.Scheduling))
	if err != nil {
		return nil, err
	}
	s.opts = vm.Options{
		Profile:           profile,
		Scheduling:        sched,
		MaxDepth:          rt.MaxDepth,
		MaxSteps:          rt.MaxSteps,
		CapabilityTimeout: rt.CapabilityTimeout.Duration,
		Policy:            m.CapabilityPolicy(),
		Stdout:            os.Stdout,
	}
	if *f.maxDepth > 0 {
		s.opts.MaxDepth = *f.maxDepth
	}
	if *f.maxSteps > 0 {
		s.opts.MaxSteps = *f.maxSteps
	}
	if *f.timeout > 0 {
		s.opts.CapabilityTimeout = *f.timeout
	}
	s.opts.Evaluator = evaluator(s.parse, s.opts)

	s.runID = pick(*f.runID, m.Trace.RunID)
	if storePath := pick(*f.tracePath, m.TraceStorePath()); storePath != "" {
		if s.store, err = trace.OpenStore(storePath); err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, s.store)
	}
	return s, nil
}

func pick(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

// evaluator compiles eval's argument as the body of a function and runs
// it on a fresh machine with the caller's limits. Nested code gets no
// tools, trace or eval of its own.
func evaluator(parse compiler.ParseFunc, base vm.Options) vm.Evaluator {
	base.Dispatcher, base.Trace, base.Evaluator = nil, nil, nil
	return func(ctx context.Context, src string) (vm.Value, error) {
		mod, err := compiler.Compile("fn main() {\n"+src+"\n}", compiler.Options{Parser: parse})
		if err != nil {
			return vm.Null, err
		}
		prog, err := vm.Load(mod)
		if err != nil {
			return vm.Null, err
		}
		m, err := vm.New(prog, vm.WithOptions(base))
		if err != nil {
			return vm.Null, err
		}
		out, err := m.Run(ctx, "main")
		if err != nil {
			return vm.Null, err
		}
		if out.State == vm.StateSuspendedEffect {
			return vm.Null, fmt.Errorf("eval: unhandled effect %s.%s", out.Effect.Effect, out.Effect.Op)
		}
		return out.Value, nil
	}
}

// handleRunCommand processes the `corvid run` subcommand.
func handleRunCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	f := addRunFlags(fs)
	fs.Parse(args)

	s, err := openSession(fs.Arg(0), f)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	router, err := manifest.NewRouter(s.manifestOrEmpty(), nil)
	if err != nil {
		return fail(err)
	}
	s.closers = append(s.closers, router)
	s.opts.Dispatcher = router

	if s.runID == "" {
		s.runID = trace.NewRunID()
	}
	s.opts.RunID = s.runID
	if s.store != nil {
		s.opts.Trace = trace.RunSink{Store: s.store, RunID: s.runID}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m, err := vm.New(s.prog, vm.WithOptions(s.opts))
	if err != nil {
		return fail(err)
	}
	out, err := m.Run(ctx, s.entry)
	if s.store != nil {
		fmt.Fprintf(os.Stderr, "run %s recorded to trace store\n", s.runID)
	}
	return report(out, err)
}

func (s *session) manifestOrEmpty() *manifest.Manifest {
	if s.m == nil {
		return &manifest.Manifest{}
	}
	return s.m
}

// report prints how a run ended and returns the process exit status.
func report(out *vm.Outcome, err error) int {
	var exit *vm.ExitError
	switch {
	case errors.As(err, &exit):
		return exit.Code
	case err != nil:
		return fail(err)
	case out.State == vm.StateSuspendedEffect:
		return fail(fmt.Errorf("unhandled effect %s.%s at top level", out.Effect.Effect, out.Effect.Op))
	}
	if !out.Value.IsNull() {
		fmt.Println(out.Value.Repr())
	}
	log.Infof("run %s: %d steps", out.RunID, out.Steps)
	return 0
}
