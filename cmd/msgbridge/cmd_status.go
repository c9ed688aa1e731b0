package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"msgbridge/internal/config"
	"msgbridge/pkg/journal"
	"msgbridge/pkg/protocol"
	"msgbridge/pkg/server"
)

// statusReport is everything "msgbridge status" prints.
type statusReport struct {
	Daemon   DaemonStatusValue
	PID      int
	Socket   string
	Snapshot *protocol.Status
	Counts   *journal.Counts
}

// newStatusCmd creates the "msgbridge status" subcommand.
func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server and queue state",
		Long:  "Displays whether the server is running, its dispatch queue and the journal totals.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			report, err := gatherStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(newStyles(DefaultTheme()), report))
			return nil
		},
	}
}

// gatherStatus collects the PID file state, a live snapshot when the server
// answers, and journal totals when the journal exists.
func gatherStatus(ctx context.Context, cfg config.Config) (statusReport, error) {
	daemon, pid, err := DaemonStatus(cfg.PIDPath)
	if err != nil {
		return statusReport{}, err
	}
	report := statusReport{Daemon: daemon, PID: pid, Socket: cfg.SocketPath}

	if daemon == StatusRunning {
		qctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if c, err := server.Dial(qctx, cfg.SocketPath); err == nil {
			if st, err := c.Status(qctx); err == nil {
				report.Snapshot = &st
			}
			_ = c.Close()
		}
	}

	if j, err := journal.OpenReadOnly(ctx, cfg.JournalPath); err == nil {
		if counts, err := j.Summary(ctx); err == nil {
			report.Counts = &counts
		}
		_ = j.Close()
	}
	return report, nil
}

func renderStatus(s styles, r statusReport) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("msgbridge") + "\n")

	line := func(label, value string) {
		b.WriteString(s.Label.Render(label) + value + "\n")
	}

	switch r.Daemon {
	case StatusRunning:
		line("server", s.Good.Render(fmt.Sprintf("running (PID %d)", r.PID)))
	case StatusStale:
		line("server", s.Warn.Render(fmt.Sprintf("stale PID file (PID %d)", r.PID)))
	default:
		line("server", s.Muted.Render("stopped"))
	}

	if snap := r.Snapshot; snap != nil {
		line("socket", r.Socket)
		line("uptime", (time.Duration(snap.UptimeSeconds) * time.Second).String())
		active := s.Muted.Render("idle")
		if snap.ActiveTicket != "" {
			active = snap.ActiveTicket
		}
		line("active", active)
		line("pending", fmt.Sprintf("%d", snap.Pending))
		line("dispatched", fmt.Sprintf("%d (%d failed)", snap.Dispatched, snap.Failed))
		line("restarts", fmt.Sprintf("%d", snap.Restarts))
	} else if r.Daemon == StatusRunning {
		line("socket", s.Warn.Render(r.Socket+" not answering"))
	}

	if c := r.Counts; c != nil {
		failed := fmt.Sprintf("%d failed", c.Failed)
		if c.Failed > 0 {
			failed = s.Bad.Render(failed)
		}
		line("journal", fmt.Sprintf("%d actions, %s, %d restarts", c.Actions, failed, c.Restarts))
	}
	return b.String()
}

// printCheck reports the setup probe result.
func printCheck(w io.Writer, s styles, configured bool) {
	if configured {
		fmt.Fprintln(w, s.Good.Render("✓ configured"))
		return
	}
	fmt.Fprintln(w, s.Bad.Render("✗ not configured"))
}
