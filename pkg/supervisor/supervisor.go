// Package supervisor keeps the target messaging application alive: it
// launches the application when it is not running and force-restarts it
// after a UI-level failure.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"msgbridge/pkg/protocol"
)

// DefaultRestartDelay is how long a restart waits after quitting the
// application, giving it time to exit before relaunch.
const DefaultRestartDelay = 200 * time.Millisecond

// EventRecorder receives lifecycle events. The journal implements it.
type EventRecorder interface {
	RecordEvent(ctx context.Context, typ, detail string) error
}

// Config holds Supervisor configuration.
type Config struct {
	Interpreter  string        // host automation interpreter, e.g. "osascript"
	AppName      string        // target application, e.g. "Messages"
	RestartDelay time.Duration // delay between quit and relaunch (default 200ms)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Interpreter == "" {
		out.Interpreter = "osascript"
	}
	if out.AppName == "" {
		out.AppName = "Messages"
	}
	if out.RestartDelay <= 0 {
		out.RestartDelay = DefaultRestartDelay
	}
	return out
}

// Supervisor drives the target application's lifecycle through inline
// automation scripts.
type Supervisor struct {
	cfg      Config
	runner   CommandRunner
	recorder EventRecorder
	logger   *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	wg     sync.WaitGroup

	restarts atomic.Int64
}

// New creates a Supervisor. runner defaults to ExecCommandRunner; recorder
// may be nil.
func New(cfg Config, runner CommandRunner, recorder EventRecorder, logger *slog.Logger) *Supervisor {
	if runner == nil {
		runner = &ExecCommandRunner{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	resolved := cfg.withDefaults()
	return &Supervisor{
		cfg:      resolved,
		runner:   runner,
		recorder: recorder,
		logger:   logger.With("component", "supervisor", "app", resolved.AppName),
	}
}

// EnsureRunning launches the target application if its process does not
// exist. It is a no-op when the application is already running.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	return s.run(ctx, "ensure running", ensureRunningScript(s.cfg.AppName))
}

// TerminateAndMaybeRestart quits the target application if it is running.
// When restart is true, EnsureRunning is scheduled after RestartDelay on a
// separate timer; a pending restart is replaced, not duplicated.
func (s *Supervisor) TerminateAndMaybeRestart(ctx context.Context, restart bool) error {
	if err := s.run(ctx, "terminate", terminateScript(s.cfg.AppName)); err != nil {
		return err
	}
	s.logger.Info("target application terminated", "restart", restart)
	if restart {
		s.scheduleRestart()
	}
	return nil
}

// Restarts returns how many scheduled restarts have actually run. A restart
// replaced or cancelled before its delay elapsed is not counted.
func (s *Supervisor) Restarts() int64 {
	return s.restarts.Load()
}

// Wait blocks until every scheduled restart has run or been cancelled.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Close cancels a pending restart. Later restarts are not scheduled.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
}

func (s *Supervisor) scheduleRestart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopTimerLocked()

	s.wg.Add(1)
	s.timer = time.AfterFunc(s.cfg.RestartDelay, func() {
		defer s.wg.Done()
		s.restarts.Add(1)
		ctx := context.Background()
		if err := s.EnsureRunning(ctx); err != nil {
			s.logger.Error("restart target application failed", "error", err)
			s.record(ctx, protocol.EventAppRestartFailed, err.Error())
			return
		}
		s.logger.Info("target application restarted")
		s.record(ctx, protocol.EventAppRestart, s.cfg.AppName)
	})
}

// stopTimerLocked stops a pending restart. Caller holds s.mu.
func (s *Supervisor) stopTimerLocked() {
	if s.timer == nil {
		return
	}
	if s.timer.Stop() {
		// The callback never ran, so it will never call Done.
		s.wg.Done()
	}
	s.timer = nil
}

func (s *Supervisor) run(ctx context.Context, op string, lines []string) error {
	args := make([]string, 0, 2*len(lines))
	for _, l := range lines {
		args = append(args, "-e", l)
	}
	if _, err := s.runner.Run(ctx, s.cfg.Interpreter, args...); err != nil {
		s.logger.Error("automation interpreter failed", "op", op, "error", err)
		return &protocol.AutomationUnavailableError{Interpreter: s.cfg.Interpreter, Op: op, Err: err}
	}
	return nil
}

func (s *Supervisor) record(ctx context.Context, typ, detail string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordEvent(ctx, typ, detail); err != nil {
		s.logger.Warn("record lifecycle event failed", "type", typ, "error", err)
	}
}

func ensureRunningScript(app string) []string {
	q := quote(app)
	return []string{
		"on run",
		fmt.Sprintf("if isAppRunning(%s) is not equal to true then", q),
		fmt.Sprintf("tell application %s to activate", q),
		"end if",
		"end run",
		"on isAppRunning(targetApp)",
		`tell application "System Events" to return (exists process targetApp)`,
		"end isAppRunning",
	}
}

func terminateScript(app string) []string {
	q := quote(app)
	return []string{
		"on run",
		fmt.Sprintf("if isAppRunning(%s) then", q),
		fmt.Sprintf("tell application %s to quit", q),
		"end if",
		"end run",
		"on isAppRunning(targetApp)",
		`tell application "System Events" to return (exists process targetApp)`,
		"end isAppRunning",
	}
}

// quote renders s as an AppleScript string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
