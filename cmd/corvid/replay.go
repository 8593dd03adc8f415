package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/chazu/corvid/trace"
	"github.com/chazu/corvid/vm"
)

var errNoStore = errors.New("no trace store: pass -trace or set [trace] store in corvid.toml")

// handleReplayCommand processes the `corvid replay` subcommand. Tool calls
// are answered from the recorded run; the replay's own events must match
// the recording exactly.
func handleReplayCommand(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	f := addRunFlags(fs)
	fs.Parse(args)

	s, err := openSession(fs.Arg(0), f)
	if err != nil {
		return fail(err)
	}
	defer s.Close()
	if s.store == nil {
		return fail(errNoStore)
	}
	if s.runID == "" {
		return fail(errors.New("replay needs -run <id>"))
	}

	ctx := context.Background()
	recorded, err := s.store.Events(ctx, s.runID)
	if err != nil {
		return fail(err)
	}
	if len(recorded) == 0 {
		return fail(fmt.Errorf("run %s has no recorded events", s.runID))
	}

	sink := trace.NewMemorySink()
	s.opts.Profile = vm.ProfileDeterministic
	s.opts.Scheduling = vm.SchedFIFO
	s.opts.Dispatcher = trace.NewReplayer(recorded)
	s.opts.Trace = sink
	s.opts.RunID = s.runID

	m, err := vm.New(s.prog, vm.WithOptions(s.opts))
	if err != nil {
		return fail(err)
	}
	out, runErr := m.Run(ctx, s.entry)

	want, err := trace.Digest(recorded)
	if err != nil {
		return fail(err)
	}
	got, err := trace.Digest(sink.Events())
	if err != nil {
		return fail(err)
	}
	if got != want {
		fmt.Fprintf(os.Stderr, "replay of %s diverged: %d events recorded, %d replayed\n",
			s.runID, len(recorded), len(sink.Events()))
		if code := report(out, runErr); code != 0 {
			return code
		}
		return 1
	}
	fmt.Fprintf(os.Stderr, "replay of %s matches (%d events)\n", s.runID, len(recorded))
	return report(out, runErr)
}

// handleRunsCommand processes the `corvid runs` subcommand.
func handleRunsCommand(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	tracePath := fs.String("trace", "", "Trace store path (SQLite)")
	fs.Parse(args)

	path := *tracePath
	if path == "" {
		m, err := findManifest()
		if err != nil {
			return fail(err)
		}
		if m != nil {
			path = m.TraceStorePath()
		}
	}
	if path == "" {
		return fail(errNoStore)
	}
	store, err := trace.OpenStore(path)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	runs, err := store.Runs(context.Background())
	if err != nil {
		return fail(err)
	}
	for _, id := range runs {
		fmt.Println(id)
	}
	return 0
}
