package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/chazu/corvid/capability"
	"github.com/chazu/corvid/trace"
)

var (
	ErrNoFunction      = errors.New("no such function")
	ErrNeedFIFO        = errors.New("deterministic profile requires FIFO scheduling")
	ErrNotSuspended    = errors.New("machine is not suspended")
	ErrUnknownToken    = errors.New("unknown continuation token")
	ErrMachineFinished = errors.New("machine has no run in progress")

	errSuspended = errors.New("suspended")
)

const (
	defaultMaxDepth     = 512
	defaultToolTimeout  = 30 * time.Second
	cancelCheckInterval = 256
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Profile selects the determinism rules a machine enforces.
type Profile uint8

const (
	ProfileDefault Profile = iota
	// ProfileDeterministic rejects nondeterministic intrinsics and tool
	// calls that are not recorded to a trace sink.
	ProfileDeterministic
)

func (p Profile) String() string {
	if p == ProfileDeterministic {
		return "deterministic"
	}
	return "default"
}

// ParseProfile accepts "default" and "deterministic".
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "", "default":
		return ProfileDefault, nil
	case "deterministic":
		return ProfileDeterministic, nil
	}
	return 0, fmt.Errorf("unknown profile %q", s)
}

// Scheduling selects when spawned futures run.
type Scheduling uint8

const (
	// SchedEager runs a future to completion when it is spawned.
	SchedEager Scheduling = iota
	// SchedFIFO queues futures; AWAIT runs queued futures in spawn order
	// until its target completes.
	SchedFIFO
)

func (s Scheduling) String() string {
	if s == SchedFIFO {
		return "fifo"
	}
	return "eager"
}

// ParseScheduling accepts "eager" and "fifo".
func ParseScheduling(s string) (Scheduling, error) {
	switch s {
	case "", "eager":
		return SchedEager, nil
	case "fifo":
		return SchedFIFO, nil
	}
	return 0, fmt.Errorf("unknown scheduling %q", s)
}

// Evaluator compiles and runs source for the eval intrinsic.
type Evaluator func(ctx context.Context, src string) (Value, error)

// Options configure a Machine.
type Options struct {
	Profile    Profile
	Scheduling Scheduling
	MaxDepth   int   // call frames per fiber plus nested futures; 0 means the default
	MaxSteps   int64 // instructions per run; 0 means unlimited

	Dispatcher        capability.Dispatcher
	Policy            *capability.Policy // nil allows every capability
	Validator         capability.Validator
	CapabilityTimeout time.Duration

	Trace trace.Sink
	RunID string // "" generates one per run

	Stdout    io.Writer
	Evaluator Evaluator
	Env       func(string) (string, bool)
	Clock     func() time.Time
	Rand      *rand.Rand
}

// Option mutates Options.
type Option func(*Options)

func WithProfile(p Profile) Option           { return func(o *Options) { o.Profile = p } }
func WithScheduling(s Scheduling) Option     { return func(o *Options) { o.Scheduling = s } }
func WithMaxDepth(n int) Option              { return func(o *Options) { o.MaxDepth = n } }
func WithMaxSteps(n int64) Option            { return func(o *Options) { o.MaxSteps = n } }
func WithPolicy(p *capability.Policy) Option { return func(o *Options) { o.Policy = p } }
func WithTrace(s trace.Sink) Option          { return func(o *Options) { o.Trace = s } }
func WithRunID(id string) Option             { return func(o *Options) { o.RunID = id } }
func WithStdout(w io.Writer) Option          { return func(o *Options) { o.Stdout = w } }
func WithEvaluator(e Evaluator) Option       { return func(o *Options) { o.Evaluator = e } }

func WithDispatcher(d capability.Dispatcher) Option {
	return func(o *Options) { o.Dispatcher = d }
}

func WithValidator(v capability.Validator) Option {
	return func(o *Options) { o.Validator = v }
}

func WithCapabilityTimeout(d time.Duration) Option {
	return func(o *Options) { o.CapabilityTimeout = d }
}

// WithOptions replaces the whole option set.
func WithOptions(opts Options) Option {
	return func(o *Options) { *o = opts }
}

// ---------------------------------------------------------------------------
// Machine
// ---------------------------------------------------------------------------

// State is the status of a run or of a future.
type State uint8

const (
	StatePending State = iota
	StateRunning
	StateSuspendedEffect
	StateSuspendedAwait
	StateReturned
	StateFaulted
)

var stateNames = [...]string{"pending", "running", "suspended-effect", "suspended-await", "returned", "faulted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// EffectRequest describes an effect no handler caught. The host answers
// it with Machine.Resume(ctx, Token, value).
type EffectRequest struct {
	Effect string
	Op     string
	Args   []Value
	Token  int
}

// Outcome reports how a run ended or paused.
type Outcome struct {
	State  State
	Value  Value
	Effect *EffectRequest
	Fault  *Fault
	RunID  string
	Steps  int64
}

// Machine executes a Program. It is not safe for concurrent use.
type Machine struct {
	prog *Program
	opts Options

	ctx     context.Context
	runID   string
	steps   int64
	seq     uint64
	main    *fiber
	fibers  int // fibers currently on the Go stack
	conts   []*continuation
	futures []*Future
	queue   []*Future
	pending *EffectRequest
	rand    *rand.Rand
}

// New creates a machine for prog.
func New(prog *Program, opts ...Option) (*Machine, error) {
	m := &Machine{prog: prog}
	for _, opt := range opts {
		opt(&m.opts)
	}
	if m.opts.Profile == ProfileDeterministic && m.opts.Scheduling != SchedFIFO {
		return nil, ErrNeedFIFO
	}
	if m.opts.MaxDepth <= 0 {
		m.opts.MaxDepth = defaultMaxDepth
	}
	if m.opts.CapabilityTimeout <= 0 {
		m.opts.CapabilityTimeout = defaultToolTimeout
	}
	if m.opts.Validator == nil {
		m.opts.Validator = capability.NewCUEValidator()
	}
	if m.opts.Stdout == nil {
		m.opts.Stdout = os.Stdout
	}
	if m.opts.Env == nil {
		m.opts.Env = os.LookupEnv
	}
	if m.opts.Clock == nil {
		m.opts.Clock = time.Now
	}
	m.rand = m.opts.Rand
	if m.rand == nil {
		m.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return m, nil
}

// Program returns the machine's program.
func (m *Machine) Program() *Program { return m.prog }

// Futures returns every future spawned by the current or last run.
func (m *Machine) Futures() []*Future { return m.futures }

// Run calls the named function with args and runs until it returns,
// faults or suspends on an unhandled effect.
func (m *Machine) Run(ctx context.Context, fn string, args ...Value) (*Outcome, error) {
	idx := m.prog.FunctionIndex(fn)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFunction, fn)
	}
	m.reset(ctx)
	log.Debugf("run %s: %s", m.runID, fn)

	fib := newFiber(newScope(ctx), nil)
	m.main = fib
	callee := Value{kind: KindClosure, ref: &Closure{fn: m.prog.funcs[idx]}}
	if err := m.enter(fib, callee, shareAll(args), 0); err != nil {
		return m.finish(Null, err)
	}
	return m.drive(fib)
}

// Resume answers a suspended effect with value and continues the run.
func (m *Machine) Resume(ctx context.Context, token int, value Value) (*Outcome, error) {
	if m.main == nil {
		return nil, ErrMachineFinished
	}
	if token < 0 || token >= len(m.conts) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownToken, token)
	}
	k := m.conts[token]
	if !k.host {
		return nil, fmt.Errorf("%w: token %d belongs to a handler", ErrNotSuspended, token)
	}
	if k.used {
		return nil, faultf(FaultContinuationReused, "continuation %d already resumed", token)
	}
	k.used = true
	m.pending = nil
	m.ctx = ctx
	m.main.scope.rebind(ctx)
	fib := k.fib
	top := fib.top()
	top.regs[k.dst] = share(value)
	return m.drive(fib)
}

func (m *Machine) reset(ctx context.Context) {
	m.ctx = ctx
	m.runID = m.opts.RunID
	if m.runID == "" {
		m.runID = trace.NewRunID()
	}
	m.steps = 0
	m.seq = 0
	m.fibers = 0
	m.conts = nil
	m.futures = nil
	m.queue = nil
	m.pending = nil
}

// drive runs the main fiber and converts how it stopped into an Outcome.
func (m *Machine) drive(fib *fiber) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			f := faultf(FaultInternal, "panic: %v", r)
			log.Errorf("recovered: %v", r)
			out, err = m.finish(Null, f)
		}
	}()
	m.fibers = 1
	v, err := m.execute(fib)
	if errors.Is(err, errSuspended) {
		log.Debugf("run %s suspended on %s.%s", m.runID, m.pending.Effect, m.pending.Op)
		return &Outcome{State: StateSuspendedEffect, Effect: m.pending, RunID: m.runID, Steps: m.steps}, nil
	}
	return m.finish(v, err)
}

// finish ends the run: pending futures are cancelled and the outcome is
// built from the main fiber's result.
func (m *Machine) finish(v Value, err error) (*Outcome, error) {
	if m.main != nil {
		m.main.scope.cancel()
		m.main = nil
	}
	for _, f := range m.futures {
		if f.state == StatePending {
			f.state = StateFaulted
			f.fault = faultf(FaultCancelled, "run finished before future %d ran", f.id)
		}
	}
	m.queue = nil
	out := &Outcome{RunID: m.runID, Steps: m.steps}
	var exit *ExitError
	switch {
	case err == nil:
		out.State, out.Value = StateReturned, v
		return out, nil
	case errors.As(err, &exit):
		out.State, out.Value = StateReturned, FromInt(int64(exit.Code))
		return out, exit
	}
	f := asFault(err)
	log.Debugf("run %s faulted: %v", m.runID, f)
	out.State, out.Fault = StateFaulted, f
	return out, f
}
