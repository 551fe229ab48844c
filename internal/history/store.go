// Package history persists watch state transitions durably, adapted
// directly from the teacher's internal/queue.SQLiteQueue: WAL-mode
// modernc.org/sqlite, a single-writer connection pool, and an atomic
// row-count gauge (there, a pending-event depth counter; here, a total
// row count). This supplements spec.md §4.3's plugin notification
// mechanism (Recorder, in recorder.go, is itself a watch.Callbacks
// implementation) with a queryable record of the same events that
// survives a restart of the supervisor process, per SPEC_FULL.md §3's
// HistoryEntry addition.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql

	"github.com/nyxproc/nyx/internal/watch"
)

// Entry is one durable record of a watch state transition.
type Entry struct {
	ID        string
	Watch     string
	OldState  string
	NewState  string
	Pid       int
	Timestamp time.Time
	Reason    string
}

// Store is a WAL-mode SQLite-backed append-only transition log. It is
// safe for concurrent use.
type Store struct {
	db    *sql.DB
	count atomic.Int64
}

// Open opens (or creates) the SQLite database at path, enables WAL
// journal mode, and applies the schema, mirroring
// internal/queue.SQLiteQueue.New's setup exactly (single connection,
// WAL, synchronous=NORMAL).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set synchronous = NORMAL: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}

	s := &Store{db: db}

	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM transitions`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: count rows: %w", err)
	}
	s.count.Store(n)

	return s, nil
}

const ddl = `
CREATE TABLE IF NOT EXISTS transitions (
    id         TEXT    PRIMARY KEY,
    watch      TEXT    NOT NULL,
    old_state  TEXT    NOT NULL,
    new_state  TEXT    NOT NULL,
    pid        INTEGER NOT NULL DEFAULT 0,
    ts         TEXT    NOT NULL,
    reason     TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transitions_watch_ts
    ON transitions (watch, ts);
`

// Record appends one transition entry under a fresh row ID generated
// via github.com/google/uuid. The ID is stored only in the history row;
// it does not appear in supervisor or forker log lines.
func (s *Store) Record(ctx context.Context, watchName string, old, new watch.Phase, pid int, reason string) error {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (id, watch, old_state, new_state, pid, ts, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, watchName, old.String(), new.String(), pid,
		time.Now().UTC().Format(time.RFC3339Nano), reason,
	)
	if err != nil {
		return fmt.Errorf("history: record transition: %w", err)
	}
	s.count.Add(1)
	return nil
}

// Recent returns up to n most-recent entries for watchName, newest
// first. An empty watchName returns entries across all watches.
func (s *Store) Recent(ctx context.Context, watchName string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	var rows *sql.Rows
	var err error
	if watchName == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, watch, old_state, new_state, pid, ts, reason
			 FROM transitions ORDER BY ts DESC LIMIT ?`, n)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, watch, old_state, new_state, pid, ts, reason
			 FROM transitions WHERE watch = ? ORDER BY ts DESC LIMIT ?`, watchName, n)
	}
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var tsStr string
		if err := rows.Scan(&e.ID, &e.Watch, &e.OldState, &e.NewState, &e.Pid, &tsStr, &e.Reason); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			e.Timestamp, _ = time.Parse(time.RFC3339, tsStr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return entries, nil
}

// Count returns the total number of recorded transitions.
func (s *Store) Count() int {
	return int(s.count.Load())
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
