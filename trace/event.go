// Package trace records the observable events of a run (trace points and
// capability calls) so a later run can be checked against it or replayed
// without reaching external tools.
package trace

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("corvid.trace")

// Kind classifies an event.
type Kind string

const (
	KindTrace       Kind = "trace"
	KindToolRequest Kind = "tool.request"
	KindToolResult  Kind = "tool.result"
	KindToolError   Kind = "tool.error"
)

// Event is one recorded occurrence. Seq is the machine's stable sequence
// id: a tool call's request and its result or error share one Seq.
// Payload holds plain Go data as produced by the machine's host
// conversion.
type Event struct {
	ID      string
	RunID   string
	Seq     uint64
	Kind    Kind
	Label   string // trace label or tool alias
	Payload any
}

func (e Event) String() string {
	return fmt.Sprintf("%s #%d %s %s", e.RunID, e.Seq, e.Kind, e.Label)
}

// namespace scopes event ids. Changing it changes every id.
var namespace = uuid.MustParse("6f1c3a52-86a4-4d1e-9a54-1d0c2f1e7b10")

// EventID derives the stable id of an event from its run, sequence id and
// kind.
func EventID(runID string, seq uint64, kind Kind) string {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%s/%d/%s", runID, seq, kind))).String()
}

// NewRunID returns a fresh random run id.
func NewRunID() string {
	return uuid.NewString()
}

// ---------------------------------------------------------------------------
// Sinks
// ---------------------------------------------------------------------------

// Sink receives events in the order the machine produces them.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Reset drops every recorded event.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type teeSink []Sink

func (t teeSink) Record(ctx context.Context, e Event) error {
	for _, s := range t {
		if err := s.Record(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Tee returns a sink that records every event to all of sinks, stopping at
// the first error.
func Tee(sinks ...Sink) Sink {
	return teeSink(sinks)
}

// Stamp fills in RunID and ID for e.
func Stamp(runID string, e Event) Event {
	e.RunID = runID
	e.ID = EventID(runID, e.Seq, e.Kind)
	return e
}
