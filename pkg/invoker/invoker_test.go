package invoker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"msgbridge/pkg/invoker"
	"msgbridge/pkg/protocol"
	"msgbridge/pkg/scripts"
)

// shScript writes a POSIX shell script standing in for an automation script
// and returns its handle. Tests run it with "sh" as the interpreter.
func shScript(t *testing.T, name, body string) scripts.Handle {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return scripts.Handle{Name: name, Path: path}
}

func TestExec_Invoke_LastNonEmptyLineWins(t *testing.T) {
	script := shScript(t, "SendMessage.sh", `echo "diagnostic: opening chat"
echo "diagnostic: typing"
echo "0, 3"
echo ""
`)
	inv := invoker.NewExec("sh", 0, nil)

	got, err := inv.Invoke(context.Background(), script, nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "0, 3" {
		t.Errorf("Invoke() = %q, want %q", got, "0, 3")
	}
}

func TestExec_Invoke_PassesArgsInOrder(t *testing.T) {
	script := shScript(t, "RenameGroup.sh", `echo "$#:$1|$2|$3|$4"`)
	inv := invoker.NewExec("sh", 0, nil)

	got, err := inv.Invoke(context.Background(), script, []string{"guid-1", "Old Name", "a,b", "New Name"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	want := "4:guid-1|Old Name|a,b|New Name"
	if got != want {
		t.Errorf("Invoke() = %q, want %q", got, want)
	}
}

func TestExec_Invoke_NoOutput(t *testing.T) {
	script := shScript(t, "LeaveGroup.sh", `echo "failure details" >&2
exit 0`)
	inv := invoker.NewExec("sh", 0, nil)

	_, err := inv.Invoke(context.Background(), script, nil)
	var execErr *protocol.ExecutionFailedError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionFailedError, got %v", err)
	}
	if execErr.Reason != "no output" {
		t.Errorf("Reason = %q, want %q", execErr.Reason, "no output")
	}
	if !strings.Contains(execErr.Stderr, "failure details") {
		t.Errorf("Stderr = %q, want it to carry the script's stderr", execErr.Stderr)
	}
}

func TestExec_Invoke_BlankLineIsNoResult(t *testing.T) {
	script := shScript(t, "LeaveGroup.sh", `printf '\n'`)
	inv := invoker.NewExec("sh", 0, nil)

	got, err := inv.Invoke(context.Background(), script, nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "" {
		t.Errorf("Invoke() = %q, want empty result", got)
	}
}

func TestExec_Invoke_InterpreterMissing(t *testing.T) {
	script := shScript(t, "Setup.sh", "echo 0")
	inv := invoker.NewExec("nonexistent-interpreter-12345", 0, nil)

	_, err := inv.Invoke(context.Background(), script, nil)
	var execErr *protocol.ExecutionFailedError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionFailedError, got %v", err)
	}
	if execErr.Reason != "start interpreter" {
		t.Errorf("Reason = %q, want %q", execErr.Reason, "start interpreter")
	}
}

func TestExec_Invoke_NonZeroExitKeepsResult(t *testing.T) {
	script := shScript(t, "AddParticipant.sh", `echo 6
exit 3`)
	inv := invoker.NewExec("sh", 0, nil)

	got, err := inv.Invoke(context.Background(), script, nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "6" {
		t.Errorf("Invoke() = %q, want %q", got, "6")
	}
}

func TestExec_Invoke_Timeout(t *testing.T) {
	script := shScript(t, "Hang.sh", `echo "diagnostic"
exec sleep 10`)
	inv := invoker.NewExec("sh", 200*time.Millisecond, nil)

	start := time.Now()
	_, err := inv.Invoke(context.Background(), script, nil)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Invoke took %v, timeout not enforced", elapsed)
	}

	var execErr *protocol.ExecutionFailedError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionFailedError, got %v", err)
	}
	if !strings.HasPrefix(execErr.Reason, "timed out") {
		t.Errorf("Reason = %q, want timed out", execErr.Reason)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected error to wrap context.DeadlineExceeded")
	}
}

func TestLineBuffer_EvictsOldest(t *testing.T) {
	b := invoker.NewLineBuffer(2)
	b.Add("one")
	b.Add("two")
	b.Add("three")

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	if got := b.String(); got != "two | three" {
		t.Errorf("String() = %q, want %q", got, "two | three")
	}
}
