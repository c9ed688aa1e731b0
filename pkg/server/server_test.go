package server_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"msgbridge/pkg/action"
	"msgbridge/pkg/protocol"
	"msgbridge/pkg/server"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	calls      []action.Kind
	outcome    action.Outcome
	err        error
	configured bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, kind action.Kind, _ []string) (action.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	return f.outcome, f.err
}

func (f *fakeDispatcher) IsConfigured(context.Context) bool { return f.configured }

func (f *fakeDispatcher) Status() protocol.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return protocol.Status{PID: 42, Dispatched: int64(len(f.calls))}
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeRecorder) RecordEvent(_ context.Context, typ, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, typ)
	return nil
}

func (f *fakeRecorder) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == typ {
			n++
		}
	}
	return n
}

// socketPath returns a short socket path; sun_path is limited to ~104 bytes.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mb")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

// startServer runs a server until the test ends.
func startServer(t *testing.T, d server.Dispatcher, rec server.EventRecorder) (string, func()) {
	t.Helper()
	path := socketPath(t)
	srv := server.New(path, d, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run returned %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Error("server did not shut down")
			}
		})
	}
	t.Cleanup(stop)
	return path, stop
}

func dial(t *testing.T, path string) *server.Client {
	t.Helper()
	c, err := server.Dial(context.Background(), path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("waitFor: condition not met within %v", timeout)
}

func TestAction_RoundTrip(t *testing.T) {
	d := &fakeDispatcher{outcome: action.NewOutcome(action.ActionPerformed, action.NotRegistered)}
	path, _ := startServer(t, d, nil)
	c := dial(t, path)

	resp, err := c.Action(context.Background(), "send-message", []string{"h", "hi", "iMessage"})
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.Type != protocol.MsgResult || resp.Shape != "multiple" {
		t.Errorf("unexpected response header: %+v", resp)
	}
	if len(resp.Codes) != 2 || resp.Codes[0] != 0 || resp.Codes[1] != 3 {
		t.Errorf("Codes = %v, want [0 3]", resp.Codes)
	}
	if len(resp.Names) != 2 || resp.Names[1] != "not_registered" {
		t.Errorf("Names = %v", resp.Names)
	}
}

func TestAction_DispatchErrorCarriesKind(t *testing.T) {
	d := &fakeDispatcher{err: &protocol.ScriptNotFoundError{Prefix: "LeaveGroup", Root: "/scripts"}}
	path, _ := startServer(t, d, nil)
	c := dial(t, path)

	resp, err := c.Action(context.Background(), "leave-group", []string{"g", "n", "p"})
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	if resp.ErrorKind != protocol.ErrKindScriptNotFound || resp.Error == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAction_UnknownKindRejected(t *testing.T) {
	d := &fakeDispatcher{}
	path, _ := startServer(t, d, nil)
	c := dial(t, path)

	resp, err := c.Action(context.Background(), "send-fax", nil)
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	if resp.ErrorKind != protocol.ErrKindUnknownAction {
		t.Errorf("ErrorKind = %q, want %q", resp.ErrorKind, protocol.ErrKindUnknownAction)
	}
	if d.callCount() != 0 {
		t.Error("unknown action reached the dispatcher")
	}
}

func TestStatusAndCheck(t *testing.T) {
	d := &fakeDispatcher{configured: true}
	path, _ := startServer(t, d, nil)
	c := dial(t, path)

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.PID != 42 || st.Configured != nil {
		t.Errorf("unexpected status: %+v", st)
	}

	st, err = c.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if st.Configured == nil || !*st.Configured {
		t.Errorf("Configured = %v, want true", st.Configured)
	}
}

func TestMalformedRequestKeepsConnection(t *testing.T) {
	d := &fakeDispatcher{}
	path, _ := startServer(t, d, nil)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("not json\n" + `{"type":"STATUS","id":"s1"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	var got []byte
	for !containsTwoLines(got) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, got)
		}
		got = append(got, buf[:n]...)
	}
	if !strings.Contains(string(got), `"error_kind":"internal"`) || !strings.Contains(string(got), `"id":"s1"`) {
		t.Errorf("unexpected responses: %s", got)
	}
}

func TestClientDisconnectRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	path, _ := startServer(t, &fakeDispatcher{}, rec)

	c, err := server.Dial(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Status(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()

	waitFor(t, func() bool { return rec.count(protocol.EventClientDisconnected) == 1 }, 2*time.Second)
}

func TestSocketPermissionsAndCleanup(t *testing.T) {
	path, stop := startServer(t, &fakeDispatcher{}, nil)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	stop()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket file left behind: %v", err)
	}
}

func TestStaleSocketReplaced(t *testing.T) {
	path := socketPath(t)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	srv := server.New(path, &fakeDispatcher{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("Run failed on stale socket: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}
	cancel()
	<-done
}

func TestSecondServerRefused(t *testing.T) {
	path, _ := startServer(t, &fakeDispatcher{}, nil)

	err := server.New(path, &fakeDispatcher{}, nil, nil).Run(context.Background())
	if err == nil {
		t.Fatal("expected error when a live server owns the socket")
	}
}

func containsTwoLines(b []byte) bool {
	return strings.Count(string(b), "\n") >= 2
}
