package scratch //nolint:testpackage // tests swap removeFunc to simulate failures

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"msgbridge/pkg/protocol"
)

func populate(t *testing.T, d *Dir) {
	t.Helper()
	for _, rel := range []string{
		"a.txt",
		"attachments/b.jpg",
		"attachments/nested/c.mov",
		"attachments/nested/deeper/d.heic",
		"empty/",
	} {
		path := d.Join(filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			if err := os.MkdirAll(path, 0o700); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNew_CreatesUniqueDirs(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	a, err := NewIn(parent, protocol.ScratchPrefix, nil)
	if err != nil {
		t.Fatalf("NewIn: %v", err)
	}
	b, err := NewIn(parent, protocol.ScratchPrefix, nil)
	if err != nil {
		t.Fatalf("NewIn: %v", err)
	}
	if a.Path() == b.Path() {
		t.Fatal("two scratch dirs share a path")
	}
	if !strings.HasPrefix(filepath.Base(a.Path()), protocol.ScratchPrefix) {
		t.Errorf("path %q missing prefix %q", a.Path(), protocol.ScratchPrefix)
	}
	if info, err := os.Stat(a.Path()); err != nil || !info.IsDir() {
		t.Errorf("scratch dir not created: %v", err)
	}
}

func TestNew_Failure(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	_, err := NewIn(missing, protocol.ScratchPrefix, nil)
	if !errors.Is(err, protocol.ErrScratchCreate) {
		t.Fatalf("expected ErrScratchCreate, got %v", err)
	}
}

func TestRemove_DeletesTree(t *testing.T) {
	t.Parallel()

	d, err := NewIn(t.TempDir(), "scratch", nil)
	if err != nil {
		t.Fatal(err)
	}
	populate(t, d)

	if err := d.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(d.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("scratch dir still present: %v", err)
	}
}

func TestRemove_FilesBeforeDirsDeepestFirst(t *testing.T) {
	t.Parallel()

	d, err := NewIn(t.TempDir(), "scratch", nil)
	if err != nil {
		t.Fatal(err)
	}
	populate(t, d)

	var order []string
	d.removeFunc = func(path string) error {
		order = append(order, path)
		return os.Remove(path)
	}
	if err := d.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	sawDir := false
	lastDepth := -1
	for _, p := range order {
		isFile := filepath.Ext(p) != ""
		if isFile && sawDir {
			t.Fatalf("file %s removed after a directory; order = %v", p, order)
		}
		if !isFile {
			sawDir = true
			if dp := depth(p); lastDepth >= 0 && dp > lastDepth {
				t.Fatalf("directory %s removed after a shallower one; order = %v", p, order)
			}
			lastDepth = depth(p)
		}
	}
	if last := order[len(order)-1]; last != d.Path() {
		t.Errorf("root removed at %q, want last", last)
	}
}

func TestRemove_ContinuesPastFailure(t *testing.T) {
	t.Parallel()

	d, err := NewIn(t.TempDir(), "scratch", nil)
	if err != nil {
		t.Fatal(err)
	}
	populate(t, d)

	locked := d.Join("attachments", "b.jpg")
	injected := errors.New("operation not permitted")
	d.removeFunc = func(path string) error {
		if path == locked {
			return injected
		}
		return os.Remove(path)
	}

	err = d.Remove()
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected failure in result, got %v", err)
	}

	// Everything not blocked by the locked file is gone.
	for _, rel := range []string{"a.txt", "attachments/nested", "empty"} {
		if _, statErr := os.Stat(d.Join(filepath.FromSlash(rel))); !errors.Is(statErr, os.ErrNotExist) {
			t.Errorf("%s survived cleanup: %v", rel, statErr)
		}
	}
	if _, statErr := os.Stat(locked); statErr != nil {
		t.Errorf("locked file should remain: %v", statErr)
	}
}

func TestRemove_OnlyOnce(t *testing.T) {
	t.Parallel()

	d, err := NewIn(t.TempDir(), "scratch", nil)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	d.removeFunc = func(path string) error {
		calls++
		return os.Remove(path)
	}
	_ = d.Remove()
	_ = d.Remove()
	if calls != 1 {
		t.Errorf("removeFunc called %d times, want 1 (root only)", calls)
	}
}
