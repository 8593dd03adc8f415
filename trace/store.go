package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

// Store persists events in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenStore opens (creating if needed) the store at path. Use ":memory:"
// for a private in-memory database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS events (
		run_id  TEXT NOT NULL,
		seq     INTEGER NOT NULL,
		kind    TEXT NOT NULL,
		id      TEXT NOT NULL,
		label   TEXT NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (run_id, seq, kind)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record implements Sink. Events without a RunID are rejected.
func (s *Store) Record(ctx context.Context, e Event) error {
	if e.RunID == "" {
		return fmt.Errorf("trace: event %d has no run id", e.Seq)
	}
	if e.ID == "" {
		e.ID = EventID(e.RunID, e.Seq, e.Kind)
	}
	payload, err := MarshalPayload(e.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO events (run_id, seq, kind, id, label, payload) VALUES (?, ?, ?, ?, ?, ?)",
		e.RunID, int64(e.Seq), string(e.Kind), e.ID, e.Label, payload,
	)
	if err != nil {
		return fmt.Errorf("saving event %s: %w", e, err)
	}
	return nil
}

// Events loads the events of a run in sequence order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, kind, id, label, payload FROM events WHERE run_id = ? ORDER BY seq, rowid",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			seq  int64
			kind string
			data []byte
			e    = Event{RunID: runID}
		)
		if err := rows.Scan(&seq, &kind, &e.ID, &e.Label, &data); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Seq, e.Kind = uint64(seq), Kind(kind)
		if e.Payload, err = UnmarshalPayload(data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return out, nil
}

// Runs lists the stored run ids in order of first appearance.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT run_id FROM events GROUP BY run_id ORDER BY MIN(rowid)")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes every event of a run.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE run_id = ?", runID)
	return err
}

// RunSink binds a store to one run: events are stamped with the run id
// before they are stored.
type RunSink struct {
	Store *Store
	RunID string
}

func (r RunSink) Record(ctx context.Context, e Event) error {
	return r.Store.Record(ctx, Stamp(r.RunID, e))
}
