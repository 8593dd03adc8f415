package trace

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sink := RunSink{Store: s, RunID: "r1"}
	in := []Event{
		{Seq: 1, Kind: KindToolRequest, Label: "fetch", Payload: map[string]any{"url": "u"}},
		{Seq: 1, Kind: KindToolResult, Label: "fetch", Payload: map[string]any{"status": int64(200)}},
		{Seq: 2, Kind: KindTrace, Label: "done", Payload: "x"},
	}
	for _, e := range in {
		if err := sink.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, err := s.Events(ctx, "r1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events", len(got))
	}
	if got[0].Kind != KindToolRequest || got[1].Kind != KindToolResult || got[2].Label != "done" {
		t.Errorf("order = %v", got)
	}
	if got[1].ID != EventID("r1", 1, KindToolResult) {
		t.Errorf("id = %s", got[1].ID)
	}
	status := got[1].Payload.(map[string]any)["status"]
	if status != uint64(200) && status != int64(200) {
		t.Errorf("status = %#v", status)
	}

	want, _ := Digest(func() []Event {
		var out []Event
		for _, e := range in {
			out = append(out, Stamp("r1", e))
		}
		return out
	}())
	have, _ := Digest(got)
	if want != have {
		t.Error("stored events digest differently")
	}
}

func TestStoreRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	e := Stamp("r", Event{Seq: 1, Kind: KindTrace})
	if err := s.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, e); err == nil {
		t.Error("duplicate event stored")
	}
	if err := s.Record(ctx, Event{Seq: 2}); err == nil {
		t.Error("event without run id stored")
	}
}

func TestStoreRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, run := range []string{"b", "a", "b"} {
		RunSink{Store: s, RunID: run}.Record(ctx, Event{Seq: uint64(len(run)), Kind: KindTrace, Label: run})
	}
	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0] != "b" || runs[1] != "a" {
		t.Errorf("runs = %v", runs)
	}
	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Events(ctx, "b"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("deleted run: err = %v", err)
	}
}

func TestStoreInMemory(t *testing.T) {
	s, err := OpenStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	if err := (RunSink{Store: s, RunID: "m"}).Record(ctx, Event{Seq: 1, Kind: KindTrace}); err != nil {
		t.Fatal(err)
	}
	if got, err := s.Events(ctx, "m"); err != nil || len(got) != 1 {
		t.Errorf("Events = %v, %v", got, err)
	}
}
