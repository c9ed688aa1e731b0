// Package journal records dispatched actions and lifecycle events in a
// SQLite database so operators can inspect what the bridge did. Message
// arguments are never stored, only their count.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"msgbridge/pkg/protocol"

	_ "modernc.org/sqlite" // SQLite driver
)

// timeLayout is the on-disk timestamp format. It is fixed width so that
// timestamps compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one dispatched action.
type Entry struct {
	ID         int64
	Ticket     string
	Kind       string
	ArgCount   int
	Outcome    string // comma-joined result code names, "" when absent
	ErrorKind  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the action held the dispatch turn.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Failed reports whether the action ended with an error.
func (e Entry) Failed() bool {
	return e.ErrorKind != ""
}

// Event is one lifecycle event.
type Event struct {
	ID        int64
	Type      string
	Detail    string
	CreatedAt time.Time
}

// Journal is a handle on the journal database.
type Journal struct {
	db      *sql.DB
	path    string
	nowFunc func() time.Time
}

// Open opens (or creates) the journal at path with WAL journaling and a
// 5-second busy timeout, and applies the schema.
func Open(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Journal{db: db, path: path, nowFunc: time.Now}, nil
}

// OpenReadOnly opens an existing journal without write access, so readers
// never block the running server.
func OpenReadOnly(ctx context.Context, path string) (*Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal not found: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	return &Journal{db: db, path: path, nowFunc: time.Now}, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close releases the database connection. Safe to call multiple times.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordAction appends an action entry.
func (j *Journal) RecordAction(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO actions (ticket, kind, arg_count, outcome, error_kind, error, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Ticket, e.Kind, e.ArgCount, e.Outcome, e.ErrorKind, e.Error,
		e.StartedAt.UTC().Format(timeLayout), e.FinishedAt.UTC().Format(timeLayout),
		e.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record action %s: %w", e.Ticket, err)
	}
	return nil
}

// RecordEvent appends a lifecycle event.
func (j *Journal) RecordEvent(ctx context.Context, typ, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (type, detail, created_at) VALUES (?, ?, ?)`,
		typ, detail, j.nowFunc().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record event %s: %w", typ, err)
	}
	return nil
}
