package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrScriptRepositoryMissing is returned when the configured script
// repository root does not exist or is not a directory. It is fatal to the
// server.
var ErrScriptRepositoryMissing = errors.New("script repository missing")

// ErrUnknownAction is returned for an action name outside the kinds table.
var ErrUnknownAction = errors.New("unknown action")

// ErrScratchCreate is returned when the process scratch directory cannot be
// created. It is fatal to the server.
var ErrScratchCreate = errors.New("create scratch directory")

// ScriptNotFoundError reports that no script in the repository matches the
// prefix of the requested action.
type ScriptNotFoundError struct {
	Prefix string
	Root   string
}

func (e *ScriptNotFoundError) Error() string {
	return fmt.Sprintf("script %s* not found in %s", e.Prefix, e.Root)
}

// ExecutionFailedError reports that the automation interpreter could not run
// the script, or ran it without producing a result line.
type ExecutionFailedError struct {
	Script string
	Reason string // e.g. "no output", "timed out after 2m0s"
	Stderr string // tail of the child's stderr, may be empty
	Err    error
}

func (e *ExecutionFailedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "execute %s: %s", e.Script, e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&sb, " (stderr: %s)", e.Stderr)
	}
	return sb.String()
}

func (e *ExecutionFailedError) Unwrap() error { return e.Err }

// MalformedResultError reports a result line that does not follow the
// result protocol: a token that is not an integer, or an integer with no
// known result code.
type MalformedResultError struct {
	Raw   string
	Token string
	Err   error
}

func (e *MalformedResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed result %q: token %q: %v", e.Raw, e.Token, e.Err)
	}
	return fmt.Sprintf("malformed result %q: token %q", e.Raw, e.Token)
}

func (e *MalformedResultError) Unwrap() error { return e.Err }

// AutomationUnavailableError reports that the host automation interpreter
// itself could not be invoked. It fails the current action only.
type AutomationUnavailableError struct {
	Interpreter string
	Op          string // "ensure running", "terminate"
	Err         error
}

func (e *AutomationUnavailableError) Error() string {
	return fmt.Sprintf("automation unavailable (%s via %s): %v", e.Op, e.Interpreter, e.Err)
}

func (e *AutomationUnavailableError) Unwrap() error { return e.Err }

// ArityError reports an action submitted with the wrong number of
// arguments. It is a caller bug and is rejected before a ticket is taken.
type ArityError struct {
	Kind string
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("action %s takes %d arguments, got %d", e.Kind, e.Want, e.Got)
}

// ErrorKind names the taxonomy bucket of err for wire responses and the
// journal. It returns "" for nil and "internal" for errors outside the
// taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		notFound    *ScriptNotFoundError
		execFailed  *ExecutionFailedError
		malformed   *MalformedResultError
		unavailable *AutomationUnavailableError
		arity       *ArityError
	)
	switch {
	case errors.As(err, &notFound):
		return ErrKindScriptNotFound
	case errors.As(err, &malformed):
		return ErrKindMalformedResult
	case errors.As(err, &unavailable):
		return ErrKindAutomationUnavailable
	case errors.As(err, &execFailed):
		return ErrKindExecutionFailed
	case errors.As(err, &arity):
		return ErrKindArity
	case errors.Is(err, ErrUnknownAction):
		return ErrKindUnknownAction
	default:
		return ErrKindInternal
	}
}

// Error kind names used on the wire and in the journal.
const (
	ErrKindScriptNotFound        = "script_not_found"
	ErrKindExecutionFailed       = "execution_failed"
	ErrKindMalformedResult       = "malformed_result"
	ErrKindAutomationUnavailable = "automation_unavailable"
	ErrKindArity                 = "arity"
	ErrKindUnknownAction         = "unknown_action"
	ErrKindInternal              = "internal"
)
