// Package dispatcher is the action dispatch path of the bridge. Callers
// submit actions concurrently; the Dispatcher runs them one at a time in
// submission order against the single target application, decodes each
// script's result line and restarts the application after a UI-level
// failure.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"msgbridge/pkg/action"
	"msgbridge/pkg/journal"
	"msgbridge/pkg/protocol"
	"msgbridge/pkg/scripts"
)

// --- Interfaces for testability ---

// Resolver maps action kinds and prefixes to scripts. *scripts.Repository
// implements it.
type Resolver interface {
	Resolve(kind action.Kind) (scripts.Handle, error)
	ResolvePrefix(prefix string) (scripts.Handle, error)
}

// Invoker runs one script and returns its last non-empty output line.
// *invoker.Exec implements it.
type Invoker interface {
	Invoke(ctx context.Context, script scripts.Handle, argv []string) (string, error)
}

// Supervisor keeps the target application alive. *supervisor.Supervisor
// implements it.
type Supervisor interface {
	EnsureRunning(ctx context.Context) error
	TerminateAndMaybeRestart(ctx context.Context, restart bool) error
}

// Recorder persists dispatched actions. *journal.Journal implements it.
type Recorder interface {
	RecordAction(ctx context.Context, e journal.Entry) error
}

// restartCounter is implemented by supervisors that count restarts.
type restartCounter interface {
	Restarts() int64
}

// Deps holds the Dispatcher's collaborators. Scripts, Invoker and
// Supervisor are required.
type Deps struct {
	Queue      *Queue
	Scripts    Resolver
	Invoker    Invoker
	Supervisor Supervisor
	Journal    Recorder // optional
	Logger     *slog.Logger
	Now        func() time.Time
}

// Dispatcher serializes action execution.
type Dispatcher struct {
	queue      *Queue
	scripts    Resolver
	invoker    Invoker
	supervisor Supervisor
	journal    Recorder
	logger     *slog.Logger
	nowFunc    func() time.Time
	startedAt  time.Time

	dispatched atomic.Int64
	failed     atomic.Int64
}

// New creates a Dispatcher from deps.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Scripts == nil || deps.Invoker == nil || deps.Supervisor == nil {
		return nil, errors.New("dispatcher: scripts, invoker and supervisor are required")
	}
	if deps.Queue == nil {
		deps.Queue = NewQueue()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Dispatcher{
		queue:      deps.Queue,
		scripts:    deps.Scripts,
		invoker:    deps.Invoker,
		supervisor: deps.Supervisor,
		journal:    deps.Journal,
		logger:     deps.Logger.With("component", "dispatcher"),
		nowFunc:    deps.Now,
		startedAt:  deps.Now(),
	}, nil
}

// Dispatch runs one action and returns its decoded outcome. It blocks until
// every earlier action has finished. Cancelling ctx does not abort an action
// that already holds the turn; the script timeout bounds it instead.
func (d *Dispatcher) Dispatch(ctx context.Context, kind action.Kind, args []string) (action.Outcome, error) {
	if !kind.Valid() {
		return action.Outcome{}, fmt.Errorf("dispatch: %w %q", protocol.ErrUnknownAction, kind)
	}
	if want := kind.Arity(); len(args) != want {
		err := &protocol.ArityError{Kind: kind.String(), Want: want, Got: len(args)}
		d.logger.Error("action rejected", "kind", kind, "error", err, "error_kind", protocol.ErrorKind(err))
		return action.Outcome{}, err
	}

	ticket := d.queue.Submit()
	d.queue.AwaitTurn(ticket)
	defer d.queue.Release(ticket)

	execCtx := context.WithoutCancel(ctx)
	started := d.nowFunc()
	outcome, err := d.execute(execCtx, kind, args)
	finished := d.nowFunc()

	d.dispatched.Add(1)
	logger := d.logger.With("ticket", ticket.ID.String(), "kind", kind)
	if err != nil {
		d.failed.Add(1)
		logger.Error("action failed", "error", err, "error_kind", protocol.ErrorKind(err), "duration", finished.Sub(started))
	} else {
		logger.Info("action completed", "outcome", outcome.String(), "shape", outcome.Shape(), "duration", finished.Sub(started))
	}

	d.record(execCtx, journal.Entry{
		Ticket:     ticket.ID.String(),
		Kind:       kind.String(),
		ArgCount:   len(args),
		Outcome:    outcome.String(),
		ErrorKind:  protocol.ErrorKind(err),
		Error:      errString(err),
		StartedAt:  started,
		FinishedAt: finished,
	})
	return outcome, err
}

// execute runs while holding the turn.
func (d *Dispatcher) execute(ctx context.Context, kind action.Kind, args []string) (action.Outcome, error) {
	if err := d.supervisor.EnsureRunning(ctx); err != nil {
		return action.Outcome{}, err
	}

	script, err := d.scripts.Resolve(kind)
	if err != nil {
		return action.Outcome{}, err
	}

	line, err := d.invoker.Invoke(ctx, script, args)
	if err != nil {
		return action.Outcome{}, err
	}

	outcome, err := action.Decode(line)
	if err != nil {
		return action.Outcome{}, err
	}

	if outcome.Contains(action.UiError) {
		d.logger.Warn("ui error reported, restarting target application", "kind", kind, "outcome", outcome.String())
		if rerr := d.supervisor.TerminateAndMaybeRestart(ctx, true); rerr != nil {
			d.logger.Error("restart after ui error failed", "kind", kind, "error", rerr)
		}
	}
	return outcome, nil
}

// IsConfigured runs the setup probe script and reports whether it answered
// ActionPerformed. It does not take a ticket. Every failure is logged and
// reported as false.
func (d *Dispatcher) IsConfigured(ctx context.Context) bool {
	script, err := d.scripts.ResolvePrefix(protocol.SetupScriptPrefix)
	if err != nil {
		d.logger.Error("setup probe unavailable", "error", err)
		return false
	}

	line, err := d.invoker.Invoke(context.WithoutCancel(ctx), script, nil)
	if err != nil {
		d.logger.Error("setup probe failed", "script", script.Name, "error", err)
		return false
	}

	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		d.logger.Error("setup probe returned a non-integer result",
			"script", script.Name, "error", &protocol.MalformedResultError{Raw: line, Token: line, Err: err})
		return false
	}
	if n != action.ActionPerformed.Int() {
		d.logger.Warn("setup incomplete", "script", script.Name, "code", n)
		return false
	}
	return true
}

// Status reports queue and counter state. configured is left nil; callers
// that ran the setup probe fill it in.
func (d *Dispatcher) Status() protocol.Status {
	st := protocol.Status{
		PID:           os.Getpid(),
		UptimeSeconds: d.nowFunc().Sub(d.startedAt).Seconds(),
		Pending:       d.queue.Pending(),
		Dispatched:    d.dispatched.Load(),
		Failed:        d.failed.Load(),
	}
	if id, ok := d.queue.Active(); ok {
		st.ActiveTicket = id.String()
	}
	if rc, ok := d.supervisor.(restartCounter); ok {
		st.Restarts = rc.Restarts()
	}
	return st
}

func (d *Dispatcher) record(ctx context.Context, e journal.Entry) {
	if d.journal == nil {
		return
	}
	if err := d.journal.RecordAction(ctx, e); err != nil {
		d.logger.Warn("journal action failed", "ticket", e.Ticket, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
