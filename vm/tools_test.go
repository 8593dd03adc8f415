package vm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chazu/corvid/capability"
	"github.com/chazu/corvid/trace"
)

const searchTool = `tool search = "web.search@1.2" schema "{ hits: int }";
`

// searchRegistry serves web.search@1.2 by counting the query's bytes.
func searchRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	err := reg.Register("web.search", "1.2", func(ctx context.Context, payload any) (any, error) {
		req, _ := payload.(map[string]any)
		q, _ := req["q"].(string)
		return map[string]any{"hits": int64(len(q)), "query": q}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestToolCall(t *testing.T) {
	src := searchTool + `fn main() {
		let r = call search({"q": "corvid"});
		r["hits"] * 10
	}`
	expectRepr(t, src, "60", WithDispatcher(searchRegistry(t)))
}

func TestToolCallSeesRequest(t *testing.T) {
	var got *capability.Request
	d := capability.DispatcherFunc(func(ctx context.Context, req *capability.Request) (*capability.Response, error) {
		got = req
		return &capability.Response{Payload: "ok"}, nil
	})
	src := `tool echo = "util.echo@2";
	fn main() { call echo([1, "a", null]) }`
	expectRepr(t, src, `"ok"`, WithDispatcher(d))
	if got == nil {
		t.Fatal("dispatcher was not called")
	}
	if got.Seq != 1 || got.Alias != "echo" || got.Capability != "util.echo" || got.Version != "2" {
		t.Errorf("request = %s", got)
	}
	items, ok := got.Payload.([]any)
	if !ok || len(items) != 3 || items[0] != int64(1) || items[1] != "a" || items[2] != nil {
		t.Errorf("payload = %#v", got.Payload)
	}
}

func TestToolFaults(t *testing.T) {
	slow := capability.DispatcherFunc(func(ctx context.Context, req *capability.Request) (*capability.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	failing := capability.DispatcherFunc(func(ctx context.Context, req *capability.Request) (*capability.Response, error) {
		return nil, errors.New("upstream down")
	})
	wrongShape := capability.DispatcherFunc(func(ctx context.Context, req *capability.Request) (*capability.Response, error) {
		return &capability.Response{Payload: map[string]any{"hits": "many"}}, nil
	})
	denied := capability.NewPermissivePolicy()
	denied.Deny("web.search")

	call := searchTool + `fn main() { call search({"q": "x"}) }`
	tests := []struct {
		name string
		src  string
		kind FaultKind
		opts []Option
	}{
		{"no dispatcher", call, FaultCapability, nil},
		{"unknown capability", call, FaultCapability, []Option{WithDispatcher(capability.NewRegistry())}},
		{"denied", call, FaultCapability, []Option{WithDispatcher(searchRegistry(t)), WithPolicy(denied)}},
		{"not allowed", call, FaultCapability, []Option{
			WithDispatcher(searchRegistry(t)),
			WithPolicy(capability.NewRestrictedPolicy([]string{"other"})),
		}},
		{"handler error", call, FaultCapability, []Option{WithDispatcher(failing)}},
		{"timeout argument", searchTool + `fn main() { call search({"q": "x"}, 5) }`, FaultCapabilityTimeout,
			[]Option{WithDispatcher(slow)}},
		{"declared timeout", `tool slow = "x.slow" timeout 5; fn main() { call slow(1) }`, FaultCapabilityTimeout,
			[]Option{WithDispatcher(slow)}},
		{"default timeout", `tool slow = "x.slow"; fn main() { call slow(1) }`, FaultCapabilityTimeout,
			[]Option{WithDispatcher(slow), WithCapabilityTimeout(5 * time.Millisecond)}},
		{"zero timeout", searchTool + `fn main() { call search({"q": "x"}, 0) }`, FaultType,
			[]Option{WithDispatcher(searchRegistry(t))}},
		{"string timeout", searchTool + `fn main() { call search({"q": "x"}, "5") }`, FaultType,
			[]Option{WithDispatcher(searchRegistry(t))}},
		{"schema", call, FaultSchema, []Option{WithDispatcher(wrongShape)}},
		{"unconvertible request", searchTool + `fn main() { call search(fn() { 1 }) }`, FaultType,
			[]Option{WithDispatcher(searchRegistry(t))}},
		{"deterministic without trace", call, FaultNondeterministic, []Option{
			WithDispatcher(searchRegistry(t)),
			WithProfile(ProfileDeterministic),
			WithScheduling(SchedFIFO),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectFault(t, tt.src, tt.kind, tt.opts...)
		})
	}
}

func TestToolCallCancelled(t *testing.T) {
	started := make(chan struct{})
	d := capability.DispatcherFunc(func(ctx context.Context, req *capability.Request) (*capability.Response, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := newMachine(t, `tool slow = "x.slow"; fn main() { call slow(1) }`, WithDispatcher(d))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := m.Run(ctx, "main")
	if !IsFault(err, FaultCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestToolCallsAreTraced(t *testing.T) {
	sink := trace.NewMemorySink()
	src := searchTool + `fn main() {
		let a = call search({"q": "ab"});
		let t = trace "sum" (a["hits"] + 1);
		let b = call search({"q": "abc"});
		[trace_seq(t), b["hits"]]
	}`
	out, err := run(t, src, WithDispatcher(searchRegistry(t)), WithTrace(sink), WithRunID("run-1"))
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Value.Repr(); got != "[2, 3]" {
		t.Errorf("main() = %s, want [2, 3]", got)
	}

	events := sink.Events()
	want := []struct {
		seq   uint64
		kind  trace.Kind
		label string
	}{
		{1, trace.KindToolRequest, "search"},
		{1, trace.KindToolResult, "search"},
		{2, trace.KindTrace, "sum"},
		{3, trace.KindToolRequest, "search"},
		{3, trace.KindToolResult, "search"},
	}
	if len(events) != len(want) {
		t.Fatalf("recorded %d events, want %d: %v", len(events), len(want), events)
	}
	for i, w := range want {
		e := events[i]
		if e.Seq != w.seq || e.Kind != w.kind || e.Label != w.label {
			t.Errorf("event %d = %s, want #%d %s %s", i, e, w.seq, w.kind, w.label)
		}
		if e.RunID != "run-1" || e.ID != trace.EventID("run-1", e.Seq, e.Kind) {
			t.Errorf("event %d identity = %q %q", i, e.RunID, e.ID)
		}
	}
	if events[2].Payload != int64(3) {
		t.Errorf("trace payload = %#v, want 3", events[2].Payload)
	}
}

func TestToolErrorsAreTraced(t *testing.T) {
	sink := trace.NewMemorySink()
	slow := capability.DispatcherFunc(func(ctx context.Context, req *capability.Request) (*capability.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	expectFault(t, `tool slow = "x.slow" timeout 5; fn main() { call slow(1) }`, FaultCapabilityTimeout,
		WithDispatcher(slow), WithTrace(sink))
	events := sink.Events()
	if len(events) != 2 || events[1].Kind != trace.KindToolError {
		t.Fatalf("events = %v", events)
	}
	p, _ := events[1].Payload.(map[string]any)
	if p["timeout"] != true {
		t.Errorf("error payload = %#v, want timeout", events[1].Payload)
	}
}

func TestReplayReproducesRun(t *testing.T) {
	src := searchTool + `fn main() {
		let a = call search({"q": "ab"});
		let b = call search({"q": "abcd"});
		trace "total" (a["hits"] + b["hits"]);
		a["hits"] * b["hits"]
	}`
	live := trace.NewMemorySink()
	first, err := run(t, src, WithDispatcher(searchRegistry(t)), WithTrace(live),
		WithProfile(ProfileDeterministic), WithScheduling(SchedFIFO))
	if err != nil {
		t.Fatal(err)
	}

	replayed := trace.NewMemorySink()
	second, err := run(t, src, WithDispatcher(trace.NewReplayer(live.Events())), WithTrace(replayed),
		WithProfile(ProfileDeterministic), WithScheduling(SchedFIFO))
	if err != nil {
		t.Fatal(err)
	}
	if first.Value.Repr() != "8" || second.Value.Repr() != first.Value.Repr() {
		t.Fatalf("results = %s and %s, want 8 twice", first.Value.Repr(), second.Value.Repr())
	}
	d1, err := trace.Digest(live.Events())
	if err != nil {
		t.Fatal(err)
	}
	d2, err := trace.Digest(replayed.Events())
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Errorf("replayed trace digest %s differs from %s", d2, d1)
	}
}

func TestReplayDivergence(t *testing.T) {
	src := `tool a = "x.a"; tool b = "x.b"; fn main() { call a(1) }`
	events := []trace.Event{
		{Seq: 1, Kind: trace.KindToolRequest, Label: "b"},
		{Seq: 1, Kind: trace.KindToolResult, Label: "b", Payload: int64(1)},
	}
	f := expectFault(t, src, FaultCapability, WithDispatcher(trace.NewReplayer(events)))
	if !errors.Is(f, trace.ErrReplayMismatch) {
		t.Errorf("fault %v does not wrap ErrReplayMismatch", f)
	}
}

func TestTraceWithoutSink(t *testing.T) {
	expectRepr(t, `fn main() { let a = trace "a" 1; let b = trace "b" 2; trace_seq(b) - trace_seq(a) }`, "1")
}
