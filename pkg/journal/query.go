package journal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// QueryOpts specifies filter criteria for Recent.
type QueryOpts struct {
	// Kind filters to a single action kind (e.g. "send-message").
	Kind string

	// FailedOnly keeps only entries that ended with an error.
	FailedOnly bool

	// After keeps entries started at or after this time.
	After *time.Time

	// Limit restricts the number of results (0 = 50).
	Limit int
}

// Recent returns the newest action entries first.
func (j *Journal) Recent(ctx context.Context, opts QueryOpts) ([]Entry, error) {
	query, args := buildQuery(opts)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
		)
		if err := rows.Scan(&e.ID, &e.Ticket, &e.Kind, &e.ArgCount, &e.Outcome,
			&e.ErrorKind, &e.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		e.StartedAt = parseTime(started)
		e.FinishedAt = parseTime(finished)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return entries, nil
}

// Events returns the newest lifecycle events first.
func (j *Journal) Events(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, type, detail, created_at FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			created string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.CreatedAt = parseTime(created)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Counts summarizes the journal.
type Counts struct {
	Actions  int64
	Failed   int64
	Restarts int64
}

// Summary counts all actions, failed actions and application restarts.
func (j *Journal) Summary(ctx context.Context) (Counts, error) {
	var c Counts
	err := j.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM actions),
		   (SELECT COUNT(*) FROM actions WHERE error_kind != ''),
		   (SELECT COUNT(*) FROM events WHERE type = 'app_restart')`,
	).Scan(&c.Actions, &c.Failed, &c.Restarts)
	if err != nil {
		return Counts{}, fmt.Errorf("summarize journal: %w", err)
	}
	return c, nil
}

// buildQuery constructs the SQL query and arguments from opts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	if opts.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.FailedOnly {
		conditions = append(conditions, "error_kind != ''")
	}
	if opts.After != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, opts.After.UTC().Format(timeLayout))
	}

	query := `SELECT id, ticket, kind, arg_count, outcome, error_kind, error, started_at, finished_at FROM actions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	return query, args
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
