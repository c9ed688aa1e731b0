package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"msgbridge/pkg/action"
	"msgbridge/pkg/journal"
)

// historyOptions are the "msgbridge history" flags.
type historyOptions struct {
	limit  int
	kind   string
	failed bool
	since  time.Duration
	events bool
}

// newHistoryCmd creates the "msgbridge history" subcommand.
func newHistoryCmd(opts *rootOptions) *cobra.Command {
	ho := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently dispatched actions",
		Long:  "Reads the action journal, newest first. Message arguments are never stored, only their count.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ho.kind != "" {
				if _, err := action.ParseKind(ho.kind); err != nil {
					return err
				}
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			j, err := journal.OpenReadOnly(cmd.Context(), cfg.JournalPath)
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()
			return printHistory(cmd.Context(), cmd.OutOrStdout(), j, ho, time.Now())
		},
	}
	cmd.Flags().IntVarP(&ho.limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVar(&ho.kind, "kind", "", "only show this action kind")
	cmd.Flags().BoolVar(&ho.failed, "failed", false, "only show failed actions")
	cmd.Flags().DurationVar(&ho.since, "since", 0, "only show actions started within this window, e.g. 1h")
	cmd.Flags().BoolVar(&ho.events, "events", false, "show lifecycle events instead of actions")
	return cmd
}

// printHistory renders journal rows selected by ho. now anchors --since.
func printHistory(ctx context.Context, w io.Writer, j *journal.Journal, ho *historyOptions, now time.Time) error {
	s := newStyles(DefaultTheme())

	if ho.events {
		events, err := j.Events(ctx, ho.limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(w, "no events recorded")
			return nil
		}
		fmt.Fprintln(w, eventsTable(s, events))
		return nil
	}

	q := journal.QueryOpts{Kind: ho.kind, FailedOnly: ho.failed, Limit: ho.limit}
	if ho.since > 0 {
		after := now.Add(-ho.since)
		q.After = &after
	}
	entries, err := j.Recent(ctx, q)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no actions recorded")
		return nil
	}
	fmt.Fprintln(w, entriesTable(s, entries))
	return nil
}

func entriesTable(s styles, entries []journal.Entry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Muted).
		Headers("TIME", "ACTION", "ARGS", "OUTCOME", "TOOK")
	for _, e := range entries {
		t.Row(
			e.StartedAt.Local().Format(time.DateTime),
			e.Kind,
			fmt.Sprintf("%d", e.ArgCount),
			entryOutcome(e),
			e.Duration().Round(time.Millisecond).String(),
		)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row < 0 || row >= len(entries) || col != 3 {
			return lipgloss.NewStyle()
		}
		e := entries[row]
		return s.outcomeStyle(e.Failed(), e.Outcome)
	})
	return t.String()
}

// entryOutcome is the outcome column: the error kind for failures, the
// result code names otherwise.
func entryOutcome(e journal.Entry) string {
	switch {
	case e.Failed():
		return e.ErrorKind
	case e.Outcome == "":
		return "none"
	default:
		return e.Outcome
	}
}

func eventsTable(s styles, events []journal.Event) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Muted).
		Headers("TIME", "EVENT", "DETAIL")
	for _, e := range events {
		t.Row(e.CreatedAt.Local().Format(time.DateTime), e.Type, e.Detail)
	}
	return t.String()
}
