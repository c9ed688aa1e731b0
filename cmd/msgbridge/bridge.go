package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"msgbridge/internal/config"
	"msgbridge/pkg/dispatcher"
	"msgbridge/pkg/invoker"
	"msgbridge/pkg/journal"
	"msgbridge/pkg/protocol"
	"msgbridge/pkg/scratch"
	"msgbridge/pkg/scripts"
	"msgbridge/pkg/server"
	"msgbridge/pkg/supervisor"
)

// bridge owns every long-lived component of a running server.
type bridge struct {
	cfg    config.Config
	logger *slog.Logger

	journal    *journal.Journal
	scratch    *scratch.Dir
	scripts    *scripts.Repository
	supervisor *supervisor.Supervisor
	dispatcher *dispatcher.Dispatcher
	server     *server.Server

	watchWG   sync.WaitGroup
	closeOnce sync.Once
}

// newBridge builds the dispatch stack from cfg. Any failure is fatal to
// start-up; resources acquired before it are released.
func newBridge(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *bridge, err error) {
	b := &bridge{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = b.release()
		}
	}()

	b.journal, err = journal.Open(ctx, cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	b.scratch, err = scratch.New(protocol.ScratchPrefix, logger)
	if err != nil {
		return nil, err
	}

	b.scripts, err = scripts.New(cfg.ScriptsPath(), logger)
	if err != nil {
		return nil, err
	}

	b.supervisor = supervisor.New(supervisor.Config{
		Interpreter:  cfg.Interpreter,
		AppName:      cfg.TargetApp,
		RestartDelay: cfg.RestartDelay.Duration,
	}, nil, b.journal, logger)

	b.dispatcher, err = dispatcher.New(dispatcher.Deps{
		Scripts:    b.scripts,
		Invoker:    invoker.NewExec(cfg.Interpreter, cfg.ScriptTimeout.Duration, logger),
		Supervisor: b.supervisor,
		Journal:    b.journal,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	b.server = server.New(cfg.SocketPath, b.dispatcher, b.journal, logger)
	return b, nil
}

// watchScripts keeps the script index fresh until ctx is cancelled. It
// returns once the watcher is installed or has failed.
func (b *bridge) watchScripts(ctx context.Context) {
	ready := make(chan struct{})
	var once sync.Once
	markReady := func() { once.Do(func() { close(ready) }) }

	b.watchWG.Add(1)
	go func() {
		defer b.watchWG.Done()
		defer markReady()
		if err := b.scripts.Watch(ctx, markReady); err != nil {
			b.logger.Warn("script watcher stopped; falling back to directory listing", "error", err)
		}
	}()
	<-ready
}

// close records the shutdown and releases every resource. Safe to call
// more than once.
func (b *bridge) close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		b.watchWG.Wait()
		if b.journal != nil {
			if recErr := b.journal.RecordEvent(ctx, protocol.EventServerStopped, ""); recErr != nil {
				b.logger.Warn("record shutdown failed", "error", recErr)
			}
		}
		err = b.release()
	})
	return err
}

// release stops the supervisor and frees the journal and scratch directory.
func (b *bridge) release() error {
	var errs []error
	if b.supervisor != nil {
		b.supervisor.Close()
	}
	if b.journal != nil {
		if err := b.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if b.scratch != nil {
		if err := b.scratch.Remove(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
