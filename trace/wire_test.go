package trace

import (
	"testing"
)

func TestEventCBORRoundTrip(t *testing.T) {
	e := Stamp("run", Event{
		Seq:     9,
		Kind:    KindToolResult,
		Label:   "fetch",
		Payload: map[string]any{"status": int64(-1), "body": "ok", "tags": []any{"a"}},
	})
	data, err := MarshalEvent(e)
	if err != nil {
		t.Fatalf("MarshalEvent: %v", err)
	}
	got, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalEvent: %v", err)
	}
	if got.ID != e.ID || got.RunID != "run" || got.Seq != 9 || got.Kind != KindToolResult || got.Label != "fetch" {
		t.Errorf("header = %+v", got)
	}
	m := got.Payload.(map[string]any)
	if m["status"] != int64(-1) || m["body"] != "ok" {
		t.Errorf("payload = %v", m)
	}
}

func TestDigestIgnoresRunIdentity(t *testing.T) {
	events := func(run string) []Event {
		return []Event{
			Stamp(run, Event{Seq: 1, Kind: KindTrace, Label: "x", Payload: "a"}),
			Stamp(run, Event{Seq: 2, Kind: KindToolRequest, Label: "t", Payload: map[string]any{"k": "v"}}),
		}
	}
	a, err := Digest(events("one"))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Digest(events("two"))
	if a != b {
		t.Error("digest depends on run id")
	}
	changed := events("one")
	changed[0].Payload = "b"
	c, _ := Digest(changed)
	if c == a {
		t.Error("digest ignored a payload change")
	}
}
