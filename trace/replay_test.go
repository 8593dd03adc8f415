package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/corvid/capability"
)

func TestReplayer(t *testing.T) {
	r := NewReplayer([]Event{
		{Seq: 1, Kind: KindToolRequest, Label: "fetch"},
		{Seq: 1, Kind: KindToolResult, Label: "fetch", Payload: "body"},
		{Seq: 2, Kind: KindTrace, Label: "x"},
		{Seq: 3, Kind: KindToolRequest, Label: "fetch"},
		{Seq: 3, Kind: KindToolError, Label: "fetch", Payload: ErrorPayload(errors.New("slow"), true)},
		{Seq: 4, Kind: KindToolRequest, Label: "fetch"},
		{Seq: 4, Kind: KindToolError, Label: "fetch", Payload: ErrorPayload(errors.New("boom"), false)},
	})
	ctx := context.Background()

	resp, err := r.Dispatch(ctx, &capability.Request{Seq: 1, Alias: "fetch"})
	if err != nil || resp.Payload != "body" {
		t.Errorf("seq 1 = %v, %v", resp, err)
	}
	if _, err := r.Dispatch(ctx, &capability.Request{Seq: 3, Alias: "fetch"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("seq 3 err = %v, want a timeout", err)
	}
	if _, err := r.Dispatch(ctx, &capability.Request{Seq: 4, Alias: "fetch"}); err == nil || err.Error() != "boom" {
		t.Errorf("seq 4 err = %v", err)
	}
	if _, err := r.Dispatch(ctx, &capability.Request{Seq: 1, Alias: "other"}); !errors.Is(err, ErrReplayMismatch) {
		t.Errorf("mismatch err = %v", err)
	}
	if _, err := r.Dispatch(ctx, &capability.Request{Seq: 2, Alias: "fetch"}); !errors.Is(err, ErrReplayMissing) {
		t.Errorf("missing err = %v", err)
	}
}
