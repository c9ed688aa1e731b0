package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// defaultStopTimeout is how long stop waits for a graceful exit before
// sending SIGKILL.
const defaultStopTimeout = 10 * time.Second

// stopConfig holds the dependencies of runStopSequence.
type stopConfig struct {
	pidPath  string
	w        io.Writer
	timeout  time.Duration
	signalFn func(pid int) error
	aliveFn  func(pid int) bool
	killFn   func(pid int) error
}

// newStopCmd creates the "msgbridge stop" subcommand.
func newStopCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		Long:  "Sends SIGTERM to the server and waits for it to exit, falling back to SIGKILL after --timeout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runStopSequence(cmd.Context(), &stopConfig{
				pidPath:  cfg.PIDPath,
				w:        cmd.OutOrStdout(),
				timeout:  timeout,
				signalFn: signalTerm,
				aliveFn:  IsProcessAlive,
				killFn:   signalKill,
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultStopTimeout, "wait this long for a graceful exit")
	return cmd
}

// runStopSequence stops the server named by the PID file:
//  1. Send SIGTERM (the server drains and removes its socket)
//  2. Wait for the process to exit
//  3. SIGKILL if it is still alive after the timeout
//  4. Remove the PID file
func runStopSequence(ctx context.Context, cfg *stopConfig) error {
	status, pid, err := DaemonStatus(cfg.pidPath)
	if err != nil {
		return err
	}

	switch status {
	case StatusStopped:
		fmt.Fprintln(cfg.w, "msgbridge is not running")
		return nil
	case StatusStale:
		fmt.Fprintf(cfg.w, "removing stale PID file (PID %d not running)\n", pid)
		return RemovePIDFile(cfg.pidPath)
	}

	if err := cfg.signalFn(pid); err != nil {
		return err
	}

	if err := waitForExit(ctx, pid, cfg.timeout, cfg.aliveFn); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wait for PID %d: %w", pid, ctx.Err())
		}
		fmt.Fprintf(cfg.w, "PID %d did not exit after %v; sending SIGKILL\n", pid, cfg.timeout)
		if err := cfg.killFn(pid); err != nil {
			return err
		}
	}

	if err := RemovePIDFile(cfg.pidPath); err != nil {
		return err
	}
	fmt.Fprintf(cfg.w, "msgbridge stopped (PID %d)\n", pid)
	return nil
}
