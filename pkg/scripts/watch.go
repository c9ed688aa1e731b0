package scripts

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDuration coalesces bursts of file events (editors write, rename
// and chmod in quick succession).
const debounceDuration = 100 * time.Millisecond

// Watch caches the repository listing and refreshes it whenever files in the
// root change. It blocks until ctx is cancelled; on return lookups go back to
// listing the directory directly. The ready callback, if non-nil, runs once
// the watcher is installed and the first listing is cached.
func (r *Repository) Watch(ctx context.Context, ready func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create script watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(r.root); err != nil {
		return fmt.Errorf("watch %s: %w", r.root, err)
	}
	defer r.setIndex(nil)

	if err := r.refresh(); err != nil {
		return err
	}
	if ready != nil {
		ready()
	}

	debounce := newDebounceTimer()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			resetDebounceTimer(debounce)

		case <-debounce.C:
			if err := r.refresh(); err != nil {
				// Fall back to uncached lookups until the next event.
				r.setIndex(nil)
				r.logger.Error("refresh script index failed", "root", r.root, "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("script watcher error", "root", r.root, "error", err)
		}
	}
}

func (r *Repository) refresh() error {
	names, err := r.list()
	if err != nil {
		return fmt.Errorf("list %s: %w", r.root, err)
	}
	r.setIndex(names)
	r.logger.Debug("script index refreshed", "root", r.root, "scripts", len(names))
	return nil
}

// newDebounceTimer creates a stopped timer.
func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

// resetDebounceTimer restarts timer for debounceDuration, draining a pending
// fire first.
func resetDebounceTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
