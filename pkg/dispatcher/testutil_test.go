package dispatcher //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"testing"
	"time"
)

// waitFor polls condition until it holds or timeout expires.
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

// waitPending waits until exactly n tickets are queued behind the turn.
func waitPending(t *testing.T, q *Queue, n int) {
	t.Helper()
	waitFor(t, func() bool { return q.Pending() == n }, 2*time.Second)
}
