package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"msgbridge/internal/config"
	"msgbridge/pkg/journal"
	"msgbridge/pkg/protocol"
	"msgbridge/pkg/server"
)

const (
	watchRefreshInterval = 2 * time.Second
	watchDebounce        = 100 * time.Millisecond
	watchRows            = 100
)

// newWatchCmd creates the "msgbridge watch" subcommand.
func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live view of the dispatch queue and journal",
		Long:  "Shows the server's queue state and the newest journal entries, refreshed on every journal write.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			m := newWatchModel(liveSource{cfg: cfg}, cfg.JournalPath, watchJournalDir(filepath.Dir(cfg.JournalPath)))
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("run watch: %w", err)
			}
			return nil
		},
	}
}

// watchData is one refresh of the watch view.
type watchData struct {
	Status  *protocol.Status // nil when the server does not answer
	Counts  journal.Counts
	Entries []journal.Entry
}

// watchSource produces watch refreshes.
type watchSource interface {
	Fetch(ctx context.Context) (watchData, error)
}

// liveSource reads the running server and the journal named by cfg.
type liveSource struct {
	cfg config.Config
}

func (s liveSource) Fetch(ctx context.Context) (watchData, error) {
	var data watchData

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if c, err := server.Dial(ctx, s.cfg.SocketPath); err == nil {
		if st, err := c.Status(ctx); err == nil {
			data.Status = &st
		}
		_ = c.Close()
	}

	j, err := journal.OpenReadOnly(ctx, s.cfg.JournalPath)
	if err != nil {
		return data, err
	}
	defer func() { _ = j.Close() }()

	if data.Counts, err = j.Summary(ctx); err != nil {
		return data, err
	}
	if data.Entries, err = j.Recent(ctx, journal.QueryOpts{Limit: watchRows}); err != nil {
		return data, err
	}
	return data, nil
}

// tickMsg is sent on every refresh interval.
type tickMsg time.Time

// fsChangeMsg is sent when the journal directory changes.
type fsChangeMsg struct{}

// dataMsg carries a finished fetch.
type dataMsg struct {
	data watchData
	err  error
}

type watchKeys struct {
	Quit    key.Binding
	Refresh key.Binding
}

var defaultWatchKeys = watchKeys{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
}

// watchModel is the bubbletea model behind "msgbridge watch".
type watchModel struct {
	source      watchSource
	journalPath string
	watcher     *fsnotify.Watcher // nil falls back to polling only
	keys        watchKeys
	styles      styles

	table table.Model
	data  watchData
	err   error
	ready bool
}

func newWatchModel(source watchSource, journalPath string, watcher *fsnotify.Watcher) watchModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 19},
			{Title: "Action", Width: 20},
			{Title: "Args", Width: 4},
			{Title: "Outcome", Width: 32},
			{Title: "Took", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	return watchModel{
		source:      source,
		journalPath: journalPath,
		watcher:     watcher,
		keys:        defaultWatchKeys,
		styles:      newStyles(DefaultTheme()),
		table:       t,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd(), waitForChange(m.watcher, m.journalPath))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.watcher != nil {
				_ = m.watcher.Close()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetchCmd()
		}

	case tea.WindowSizeMsg:
		// Leave room for the header and the help line.
		m.table.SetHeight(max(msg.Height-6, 3))
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())

	case fsChangeMsg:
		return m, tea.Batch(m.fetchCmd(), waitForChange(m.watcher, m.journalPath))

	case dataMsg:
		m.ready = true
		m.err = msg.err
		if msg.err == nil {
			m.data = msg.data
			m.table.SetRows(entryRows(msg.data.Entries))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("msgbridge watch") + "  " + m.header() + "\n\n")
	switch {
	case !m.ready:
		b.WriteString(m.styles.Muted.Render("loading…") + "\n")
	case m.err != nil:
		b.WriteString(m.styles.Bad.Render("journal: "+m.err.Error()) + "\n")
	default:
		b.WriteString(m.table.View() + "\n")
	}
	b.WriteString(m.styles.Muted.Render("↑/↓ scroll • r refresh • q quit"))
	return b.String()
}

// header summarizes queue state and journal totals on one line.
func (m watchModel) header() string {
	c := m.data.Counts
	totals := fmt.Sprintf("%d actions, %d failed, %d restarts", c.Actions, c.Failed, c.Restarts)
	st := m.data.Status
	if st == nil {
		return m.styles.Muted.Render("server not answering") + " • " + totals
	}
	active := "idle"
	if st.ActiveTicket != "" {
		active = "busy"
	}
	return m.styles.Good.Render(fmt.Sprintf("PID %d %s", st.PID, active)) +
		fmt.Sprintf(" • %d pending • ", st.Pending) + totals
}

func (m watchModel) fetchCmd() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		data, err := src.Fetch(context.Background())
		return dataMsg{data: data, err: err}
	}
}

// entryRows converts journal entries to table rows.
func entryRows(entries []journal.Entry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{
			e.StartedAt.Local().Format(time.DateTime),
			e.Kind,
			fmt.Sprintf("%d", e.ArgCount),
			entryOutcome(e),
			e.Duration().Round(time.Millisecond).String(),
		})
	}
	return rows
}

func tickCmd() tea.Cmd {
	return tea.Tick(watchRefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// watchJournalDir returns a watcher on dir, or nil when one cannot be
// installed; the view then refreshes on the tick alone.
func watchJournalDir(dir string) *fsnotify.Watcher {
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("journal watcher unavailable", "error", err)
		return nil
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		slog.Debug("journal watcher unavailable", "dir", dir, "error", err)
		return nil
	}
	return w
}

// waitForChange blocks until a burst of writes to the journal or its WAL
// settles, then reports one fsChangeMsg. Other files in the directory are
// ignored; readers touch the shared-memory index on every fetch. It returns
// nil for a nil watcher.
func waitForChange(watcher *fsnotify.Watcher, journalPath string) tea.Cmd {
	if watcher == nil {
		return nil
	}
	base := filepath.Base(journalPath)
	return func() tea.Msg {
		debounce := time.NewTimer(watchDebounce)
		debounce.Stop()
		defer debounce.Stop()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if name := filepath.Base(event.Name); name != base && name != base+"-wal" {
					continue
				}
				debounce.Reset(watchDebounce)
			case <-debounce.C:
				return fsChangeMsg{}
			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}
