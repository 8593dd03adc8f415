package manifest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/corvid/capability"
	"github.com/chazu/corvid/capability/remote"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "agent"
version = "0.1.0"
entry = "start"
sources = ["src/main.cv", "src/util.cv"]
output = "build/agent.cvb"

[runtime]
profile = "deterministic"
scheduling = "fifo"
max-depth = 64
max-steps = 100000
capability-timeout = "2s"

[trace]
store = "runs.db"

[policy]
allow = ["web.search"]
deny = ["fs.write"]

[capabilities.search]
endpoint = "http://localhost:8080"
transport = "connect"
timeout = "500ms"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "agent" || m.Project.Version != "0.1.0" || m.Project.Entry != "start" {
		t.Errorf("project = %+v", m.Project)
	}
	if got := m.SourcePaths(); len(got) != 2 || got[1] != filepath.Join(m.Dir, "src/util.cv") {
		t.Errorf("source paths = %v", got)
	}
	if m.OutputPath() != filepath.Join(m.Dir, "build/agent.cvb") {
		t.Errorf("output path = %q", m.OutputPath())
	}
	if m.Runtime.Profile != "deterministic" || m.Runtime.Scheduling != "fifo" {
		t.Errorf("runtime = %+v", m.Runtime)
	}
	if m.Runtime.MaxDepth != 64 || m.Runtime.MaxSteps != 100000 {
		t.Errorf("runtime limits = %d %d", m.Runtime.MaxDepth, m.Runtime.MaxSteps)
	}
	if m.Runtime.CapabilityTimeout.Duration != 2*time.Second {
		t.Errorf("capability timeout = %s, want 2s", m.Runtime.CapabilityTimeout)
	}
	if m.TraceStorePath() != filepath.Join(m.Dir, "runs.db") {
		t.Errorf("trace store = %q", m.TraceStorePath())
	}
	c, ok := m.Capabilities["search"]
	if !ok || c.Endpoint != "http://localhost:8080" || c.Transport != "connect" || c.Timeout.Duration != 500*time.Millisecond {
		t.Errorf("capability search = %+v", c)
	}

	p := m.CapabilityPolicy()
	if p == nil {
		t.Fatal("policy is nil")
	}
	if err := p.Check("web.search"); err != nil {
		t.Errorf("web.search denied: %v", err)
	}
	if err := p.Check("fs.write"); !errors.Is(err, capability.ErrDenied) {
		t.Errorf("fs.write: err = %v, want denied", err)
	}
	if err := p.Check("other"); !errors.Is(err, capability.ErrDenied) {
		t.Errorf("other: err = %v, want denied", err)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.Project.Sources) != 1 || m.Project.Sources[0] != "src" {
		t.Errorf("default sources = %v, want [src]", m.Project.Sources)
	}
	if m.Project.Entry != "main" {
		t.Errorf("default entry = %q, want main", m.Project.Entry)
	}
	if m.Project.Output != "minimal.cvb" {
		t.Errorf("default output = %q, want minimal.cvb", m.Project.Output)
	}
	if m.TraceStorePath() != "" {
		t.Errorf("trace store = %q, want none", m.TraceStorePath())
	}
	if m.CapabilityPolicy() != nil {
		t.Error("policy should be nil when nothing is restricted")
	}
}

func TestLoadManifestRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", "[project\nname = 1"},
		{"unknown key", "[project]\nname = \"x\"\ncolour = \"red\""},
		{"bad profile", "[runtime]\nprofile = \"fast\""},
		{"bad scheduling", "[runtime]\nscheduling = \"lifo\""},
		{"deterministic eager", "[runtime]\nprofile = \"deterministic\"\nscheduling = \"eager\""},
		{"negative depth", "[runtime]\nmax-depth = -1"},
		{"bad duration", "[runtime]\ncapability-timeout = \"soon\""},
		{"bad policy id", "[policy]\nallow = [\"Web Search\"]"},
		{"keyword alias", "[capabilities.spawn]\nendpoint = \"http://x\""},
		{"intrinsic alias", "[capabilities.len]\nendpoint = \"http://x\""},
		{"no endpoint", "[capabilities.search]\ntransport = \"grpc\""},
		{"bad transport", "[capabilities.search]\nendpoint = \"x\"\ntransport = \"smoke\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Fatal("Load succeeded, want error")
			}
		})
	}
}

func TestLoadManifestMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"root\"\n")
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.Project.Name != "root" {
		t.Fatalf("found %+v, want the root manifest", m)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		// A corvid.toml above the temp dir would be found; that is not
		// this test's concern.
		t.Skipf("found unrelated manifest in %s", m.Dir)
	}
}

func TestNames(t *testing.T) {
	aliases := map[string]bool{"search": true, "web_2": true, "_x": true, "2x": false, "a-b": false, "": false, "call": false, "json_encode": false}
	for name, want := range aliases {
		if got := ValidAlias(name); got != want {
			t.Errorf("ValidAlias(%q) = %v, want %v", name, got, want)
		}
	}
	ids := map[string]bool{"web.search": true, "fs": true, "a.b-c.d_1": true, "Web.search": false, "web..search": false, "web.": false, "": false}
	for id, want := range ids {
		if got := ValidCapabilityID(id); got != want {
			t.Errorf("ValidCapabilityID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestRouter(t *testing.T) {
	remoteReg := capability.NewRegistry()
	remoteReg.Register("web.search", "", func(ctx context.Context, p any) (any, error) {
		return "remote", nil
	})
	mux := http.NewServeMux()
	mux.Handle(remote.NewConnectHandler(remoteReg))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	local := capability.NewRegistry()
	local.Register("util.echo", "", func(ctx context.Context, p any) (any, error) {
		return p, nil
	})

	m := &Manifest{Capabilities: map[string]Capability{
		"search": {Endpoint: srv.URL},
	}}
	r, err := NewRouter(m, local)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if got := r.Aliases(); len(got) != 1 || got[0] != "search" {
		t.Errorf("aliases = %v", got)
	}

	ctx := context.Background()
	resp, err := r.Dispatch(ctx, &capability.Request{Seq: 1, Alias: "search", Capability: "web.search", Payload: "q"})
	if err != nil {
		t.Fatalf("routed dispatch: %v", err)
	}
	if resp.Payload != "remote" {
		t.Errorf("routed payload = %#v", resp.Payload)
	}
	resp, err = r.Dispatch(ctx, &capability.Request{Seq: 2, Alias: "echo", Capability: "util.echo", Payload: "hi"})
	if err != nil {
		t.Fatalf("fallback dispatch: %v", err)
	}
	if resp.Payload != "hi" {
		t.Errorf("fallback payload = %#v", resp.Payload)
	}
}

func TestRouterWithoutFallback(t *testing.T) {
	r, err := NewRouter(&Manifest{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Dispatch(context.Background(), &capability.Request{Alias: "x", Capability: "x"})
	if !errors.Is(err, capability.ErrUnknownCapability) {
		t.Fatalf("err = %v, want ErrUnknownCapability", err)
	}
}

func TestRouterTimeout(t *testing.T) {
	slow := capability.NewRegistry()
	slow.Register("x.slow", "", func(ctx context.Context, p any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	mux := http.NewServeMux()
	mux.Handle(remote.NewConnectHandler(slow))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := &Manifest{Capabilities: map[string]Capability{
		"slow": {Endpoint: srv.URL, Timeout: Duration{20 * time.Millisecond}},
	}}
	r, err := NewRouter(m, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = r.Dispatch(context.Background(), &capability.Request{Alias: "slow", Capability: "x.slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
