package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"msgbridge/pkg/journal"
	"msgbridge/pkg/protocol"
)

// openTestJournal creates a journal seeded with a few actions.
func openTestJournal(t *testing.T) (*journal.Journal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state", "journal.db")
	j, err := journal.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []journal.Entry{
		{Ticket: "t-1", Kind: "send-message", ArgCount: 3, Outcome: "action_performed"},
		{Ticket: "t-2", Kind: "create-group", ArgCount: 3, ErrorKind: protocol.ErrKindScriptNotFound, Error: "script CreateGroup* not found"},
		{Ticket: "t-3", Kind: "send-message", ArgCount: 3, Outcome: "ui_error"},
	}
	for i, e := range entries {
		e.StartedAt = base.Add(time.Duration(i) * time.Minute)
		e.FinishedAt = e.StartedAt.Add(250 * time.Millisecond)
		if err := j.RecordAction(context.Background(), e); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}
	return j, path
}

func TestOpen_CreatesParentDir(t *testing.T) {
	t.Parallel()

	j, path := openTestJournal(t)
	if j.Path() != path {
		t.Errorf("Path() = %q, want %q", j.Path(), path)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	t.Parallel()

	j, _ := openTestJournal(t)
	got, err := j.Recent(context.Background(), journal.QueryOpts{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Ticket != "t-3" || got[2].Ticket != "t-1" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].Ticket, got[1].Ticket, got[2].Ticket)
	}
	if d := got[0].Duration(); d != 250*time.Millisecond {
		t.Errorf("Duration() = %v, want 250ms", d)
	}
	if got[0].StartedAt.IsZero() {
		t.Error("StartedAt not parsed")
	}
}

func TestRecent_Filters(t *testing.T) {
	t.Parallel()

	j, _ := openTestJournal(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts journal.QueryOpts
		want []string
	}{
		{"by kind", journal.QueryOpts{Kind: "send-message"}, []string{"t-3", "t-1"}},
		{"failed only", journal.QueryOpts{FailedOnly: true}, []string{"t-2"}},
		{"limit", journal.QueryOpts{Limit: 1}, []string{"t-3"}},
		{"after", journal.QueryOpts{After: timePtr(time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC))}, []string{"t-3", "t-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.Recent(ctx, tt.opts)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Ticket != tt.want[i] {
					t.Errorf("entry %d = %s, want %s", i, e.Ticket, tt.want[i])
				}
			}
		})
	}
}

func TestEventsAndSummary(t *testing.T) {
	t.Parallel()

	j, _ := openTestJournal(t)
	ctx := context.Background()

	for _, typ := range []string{protocol.EventServerStarted, protocol.EventAppRestart, protocol.EventClientDisconnected} {
		if err := j.RecordEvent(ctx, typ, "detail"); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	events, err := j.Events(ctx, 2)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != protocol.EventClientDisconnected || events[1].Type != protocol.EventAppRestart {
		t.Errorf("unexpected events: %+v", events)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}

	sum, err := j.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Actions != 3 || sum.Failed != 1 || sum.Restarts != 1 {
		t.Errorf("Summary = %+v, want {3 1 1}", sum)
	}
}

func TestOpenReadOnly(t *testing.T) {
	t.Parallel()

	_, path := openTestJournal(t)
	ctx := context.Background()

	ro, err := journal.OpenReadOnly(ctx, path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()

	got, err := ro.Recent(ctx, journal.QueryOpts{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("read-only view saw %d entries, want 3", len(got))
	}
	if err := ro.RecordEvent(ctx, protocol.EventServerStopped, ""); err == nil {
		t.Error("expected write through read-only handle to fail")
	}
}

func TestOpenReadOnly_Missing(t *testing.T) {
	t.Parallel()

	if _, err := journal.OpenReadOnly(context.Background(), filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Fatal("expected error for missing journal")
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	j, _ := openTestJournal(t)
	if err := j.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	var nilJournal *journal.Journal
	if err := nilJournal.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
