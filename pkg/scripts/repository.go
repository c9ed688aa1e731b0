// Package scripts resolves automation scripts from the on-disk script
// repository. The repository root is fixed at construction; lookups are
// read-only.
package scripts

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"msgbridge/pkg/action"
	"msgbridge/pkg/protocol"
)

// Handle is a resolved script file.
type Handle struct {
	Name string // base file name, e.g. "SendMessage.scpt"
	Path string // absolute path
}

// Repository locates scripts by file name prefix under a fixed root.
type Repository struct {
	root   string
	logger *slog.Logger

	// index caches sorted file names while a watcher keeps it fresh.
	// nil means "list the directory on every lookup".
	mu    sync.RWMutex
	index []string
}

// New opens the script repository at root. It fails with
// protocol.ErrScriptRepositoryMissing when root is absent or not a
// directory.
func New(root string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve script repository %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", protocol.ErrScriptRepositoryMissing, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", protocol.ErrScriptRepositoryMissing, abs)
	}
	return &Repository{
		root:   abs,
		logger: logger.With("component", "scripts"),
	}, nil
}

// Root returns the absolute repository root.
func (r *Repository) Root() string { return r.root }

// Resolve returns the script implementing kind.
func (r *Repository) Resolve(kind action.Kind) (Handle, error) {
	return r.ResolvePrefix(kind.ScriptPrefix())
}

// ResolvePrefix returns the script whose file name starts with prefix. When
// several files match, the lexicographically first one wins and a warning is
// logged.
func (r *Repository) ResolvePrefix(prefix string) (Handle, error) {
	names, err := r.names()
	if err != nil {
		return Handle{}, fmt.Errorf("list %s: %w", r.root, err)
	}

	var matches []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}

	if len(matches) == 0 {
		return Handle{}, &protocol.ScriptNotFoundError{Prefix: prefix, Root: r.root}
	}
	if len(matches) > 1 {
		r.logger.Warn("several scripts match prefix, using first",
			"prefix", prefix, "matches", matches, "using", matches[0])
	}
	return Handle{Name: matches[0], Path: filepath.Join(r.root, matches[0])}, nil
}

// names returns the sorted regular-file names in the repository.
func (r *Repository) names() ([]string, error) {
	r.mu.RLock()
	cached := r.index
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	return r.list()
}

func (r *Repository) list() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() || e.Type()&os.ModeSymlink != 0 {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// setIndex replaces the cached listing. A nil listing disables caching.
func (r *Repository) setIndex(names []string) {
	r.mu.Lock()
	r.index = names
	r.mu.Unlock()
}
