package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"msgbridge/internal/config"
	"msgbridge/internal/logging"
	"msgbridge/internal/version"
	"msgbridge/pkg/protocol"
)

// newServeCmd creates the "msgbridge serve" subcommand.
func newServeCmd(opts *rootOptions) *cobra.Command {
	var skipCheck bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server in the foreground",
		Long: `Starts the action dispatcher and listens on the control socket.
Actions from every client are executed one at a time in arrival order.
SIGINT or SIGTERM shuts the server down; the scratch directory and PID file are removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd.OutOrStdout(), !skipCheck)
		},
	}
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "do not run the setup probe at start-up")
	return cmd
}

// newLogger builds the server logger from cfg.
func newLogger(cfg config.Config) (*logging.Logger, error) {
	opts := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}
	if cfg.CreateLogFiles {
		opts.File = cfg.LogFilePath()
	}
	l, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return l, nil
}

// runServe runs the server until ctx is cancelled or a signal arrives.
func runServe(parent context.Context, cfg config.Config, w io.Writer, probe bool) error {
	status, pid, err := DaemonStatus(cfg.PIDPath)
	if err != nil {
		return err
	}
	switch status {
	case StatusRunning:
		return fmt.Errorf("msgbridge is already running (PID %d)", pid)
	case StatusStale:
		if err := RemovePIDFile(cfg.PIDPath); err != nil {
			return err
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	sl := newStartupLog(w, logging.IsTerminal(w))

	start := time.Now()
	b, err := newBridge(parent, cfg, logger.Logger)
	if err != nil {
		sl.Fail("initialize dispatcher", err)
		logger.Error("fatal initialization error", "error", err)
		return err
	}
	sl.StepTimed("journal, scripts and dispatcher ready", time.Since(start))

	if err := WritePIDFile(cfg.PIDPath, os.Getpid()); err != nil {
		_ = b.close(context.WithoutCancel(parent))
		return err
	}
	ctx, cleanup := SetupSignalHandler(parent, cfg.PIDPath)
	defer func() {
		// cleanup cancels ctx, which stops the script watcher b.close waits on.
		cleanup()
		if err := b.close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	if cfg.WatchScripts {
		b.watchScripts(ctx)
		sl.Step("watching " + b.scripts.Root())
	}

	if probe {
		stop := sl.StartSpinner("running setup probe")
		configured := b.dispatcher.IsConfigured(ctx)
		stop()
		if !configured {
			logger.Warn("setup probe failed; check accessibility permissions for the automation interpreter")
		}
	}

	if err := b.journal.RecordEvent(ctx, protocol.EventServerStarted, version.Long()); err != nil {
		logger.Warn("record start-up failed", "error", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- b.server.Run(ctx) }()

	select {
	case <-b.server.Ready():
		sl.Step(fmt.Sprintf("listening on %s (PID %d)", cfg.SocketPath, os.Getpid()))
		logger.Info("msgbridge started", "version", version.String(), "socket", cfg.SocketPath)
	case err := <-errCh:
		return fmt.Errorf("start control socket: %w", err)
	}

	err = <-errCh
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("msgbridge stopped")
	return nil
}
