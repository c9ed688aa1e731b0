// Package scratch manages the per-process temporary working directory used
// for attachment staging and other transient files.
package scratch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"msgbridge/pkg/protocol"
)

// Dir is a temporary directory created at startup and removed at
// shutdown. Its path never changes after New returns.
type Dir struct {
	path   string
	logger *slog.Logger

	// removeFunc deletes a single file or empty directory. Tests replace it
	// to simulate failures.
	removeFunc func(string) error

	once    sync.Once
	removed error
}

// New creates a fresh temporary directory named after prefix under the
// system temp dir. It fails with protocol.ErrScratchCreate.
func New(prefix string, logger *slog.Logger) (*Dir, error) {
	return NewIn("", prefix, logger)
}

// NewIn is New with an explicit parent directory ("" means os.TempDir()).
func NewIn(parent, prefix string, logger *slog.Logger) (*Dir, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	path, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrScratchCreate, err)
	}
	return &Dir{
		path:       path,
		logger:     logger.With("component", "scratch"),
		removeFunc: os.Remove,
	}, nil
}

// Path returns the absolute directory path.
func (d *Dir) Path() string { return d.path }

// Join returns a path inside the directory.
func (d *Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.path}, elem...)...)
}

// Remove deletes the directory tree bottom-up: every file first, then
// directories from the deepest up. Failures are logged and do not stop the
// walk; the joined error is returned. Only the first call does any work.
func (d *Dir) Remove() error {
	d.once.Do(func() {
		d.removed = d.removeTree()
	})
	return d.removed
}

func (d *Dir) removeTree() error {
	var (
		files []string
		dirs  []string
		errs  []error
	)
	walkErr := filepath.WalkDir(d.path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			d.logger.Warn("scan scratch entry failed", "path", path, "error", err)
			errs = append(errs, err)
			if entry != nil && entry.IsDir() && path != d.path {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		} else {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	for _, f := range files {
		if err := d.removeFunc(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("remove scratch file failed", "path", f, "error", err)
			errs = append(errs, fmt.Errorf("remove %s: %w", f, err))
		}
	}

	// Deepest first so every directory is empty by the time it is removed.
	sort.SliceStable(dirs, func(i, j int) bool {
		return depth(dirs[i]) > depth(dirs[j])
	})
	for _, dir := range dirs {
		if err := d.removeFunc(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("remove scratch dir failed", "path", dir, "error", err)
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	d.logger.Debug("scratch directory removed", "path", d.path)
	return nil
}

func depth(path string) int {
	return strings.Count(filepath.Clean(path), string(filepath.Separator))
}
