package trace

import (
	"context"
	"errors"
	"testing"
)

func TestEventIDIsStable(t *testing.T) {
	a := EventID("run", 3, KindToolResult)
	if a != EventID("run", 3, KindToolResult) {
		t.Error("same inputs gave different ids")
	}
	for _, other := range []string{
		EventID("run", 4, KindToolResult),
		EventID("run", 3, KindToolRequest),
		EventID("other", 3, KindToolResult),
	} {
		if other == a {
			t.Errorf("id collision: %s", a)
		}
	}
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	s.Record(context.Background(), Event{Seq: 1, Kind: KindTrace})
	s.Record(context.Background(), Event{Seq: 2, Kind: KindTrace})
	got := s.Events()
	if len(got) != 2 || got[1].Seq != 2 {
		t.Fatalf("events = %v", got)
	}
	got[0].Seq = 99
	if s.Events()[0].Seq != 1 {
		t.Error("Events returned the internal slice")
	}
	s.Reset()
	if len(s.Events()) != 0 {
		t.Error("Reset kept events")
	}
}

type failSink struct{}

func (failSink) Record(context.Context, Event) error { return errors.New("full") }

func TestTee(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	if err := Tee(a, b).Record(context.Background(), Event{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Error("event not delivered to every sink")
	}
	c := NewMemorySink()
	if err := Tee(failSink{}, c).Record(context.Background(), Event{}); err == nil {
		t.Error("error swallowed")
	}
	if len(c.Events()) != 0 {
		t.Error("recording continued after an error")
	}
}

func TestStamp(t *testing.T) {
	e := Stamp("r1", Event{Seq: 5, Kind: KindTrace})
	if e.RunID != "r1" || e.ID != EventID("r1", 5, KindTrace) {
		t.Errorf("stamped = %+v", e)
	}
}
