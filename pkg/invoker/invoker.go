// Package invoker runs automation scripts through the host automation
// interpreter and captures their result line.
package invoker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"msgbridge/pkg/protocol"
	"msgbridge/pkg/scripts"
)

// stderrLines is how many trailing stderr lines are kept for error reports.
const stderrLines = 8

// maxLineBytes bounds a single stdout line.
const maxLineBytes = 1 << 20

// Invoker runs a resolved script with an argument vector and returns the
// raw result line.
type Invoker interface {
	Invoke(ctx context.Context, script scripts.Handle, argv []string) (string, error)
}

// Exec implements Invoker by spawning `<interpreter> <script> argv...`.
type Exec struct {
	interpreter string
	timeout     time.Duration
	logger      *slog.Logger

	// cmdFactory builds the exec.Cmd. Tests override it to substitute the
	// interpreter.
	cmdFactory func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExec creates an Exec that runs scripts with interpreter. A positive
// timeout bounds each execution; zero leaves it unbounded.
func NewExec(interpreter string, timeout time.Duration, logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exec{
		interpreter: interpreter,
		timeout:     timeout,
		logger:      logger.With("component", "invoker"),
		cmdFactory: func(ctx context.Context, name string, args ...string) *exec.Cmd {
			//nolint:gosec // interpreter and script path come from trusted config
			return exec.CommandContext(ctx, name, args...)
		},
	}
}

// Interpreter returns the interpreter binary this Exec spawns.
func (e *Exec) Interpreter() string { return e.interpreter }

// Invoke runs script with argv and returns the last non-empty line the
// script wrote to stdout. Earlier lines are diagnostics and are only logged.
// A script that wrote only blank lines reports no result and yields "".
func (e *Exec) Invoke(ctx context.Context, script scripts.Handle, argv []string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := make([]string, 0, len(argv)+1)
	args = append(args, script.Path)
	args = append(args, argv...)
	cmd := e.cmdFactory(ctx, e.interpreter, args...)
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &protocol.ExecutionFailedError{Script: script.Name, Reason: "open stdout", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", &protocol.ExecutionFailedError{Script: script.Name, Reason: "open stderr", Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", &protocol.ExecutionFailedError{Script: script.Name, Reason: "start interpreter", Err: err}
	}

	tail := NewLineBuffer(stderrLines)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		drainStderr(stderr, tail)
	}()

	last, sawLine, readErr := e.drainStdout(stdout, script.Name)
	wg.Wait()
	waitErr := cmd.Wait()

	elapsed := time.Since(start)
	if ctx.Err() != nil {
		reason := "cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", e.timeout)
		}
		return "", &protocol.ExecutionFailedError{Script: script.Name, Reason: reason, Stderr: tail.String(), Err: ctx.Err()}
	}
	if readErr != nil {
		return "", &protocol.ExecutionFailedError{Script: script.Name, Reason: "read stdout", Stderr: tail.String(), Err: readErr}
	}
	if !sawLine {
		return "", &protocol.ExecutionFailedError{Script: script.Name, Reason: "no output", Stderr: tail.String(), Err: waitErr}
	}
	if waitErr != nil {
		// The result line is authoritative even when the interpreter exits non-zero.
		e.logger.Warn("script exited with error after reporting a result",
			"script", script.Name, "error", waitErr, "stderr", tail.String())
	}

	e.logger.Debug("script finished", "script", script.Name, "duration", elapsed, "result", last)
	return last, nil
}

// drainStdout reads r line by line and returns the last non-empty line.
// sawLine reports whether any line, blank or not, was read.
func (e *Exec) drainStdout(r io.Reader, name string) (last string, sawLine bool, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		sawLine = true
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if last != "" {
			e.logger.Debug("script output", "script", name, "line", last)
		}
		last = line
	}
	return last, sawLine, scanner.Err()
}

// drainStderr keeps the trailing lines of r in tail.
func drainStderr(r io.Reader, tail *LineBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			tail.Add(line)
		}
	}
}
