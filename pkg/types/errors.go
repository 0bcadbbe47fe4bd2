package types

import "errors"

// Error taxonomy (spec §7). Sentinel kinds are wrapped with context via
// fmt.Errorf("...: %w", ErrX) at call sites, matching the teacher's
// storage.ErrNotFound idiom generalized to the kinds spec requires.
var (
	// ErrSessionNotFound is surfaced to the caller; the session id is
	// unknown to the Entry Store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCorrupt means a chain invariant (single header, single
	// child per parent, linearization count/tail match) was violated. The
	// operation fails and the session is left unchanged.
	ErrSessionCorrupt = errors.New("session corrupt")

	// ErrStoreError is a transient storage failure; retry is the caller's
	// decision.
	ErrStoreError = errors.New("store error")

	// ErrCancellation is non-retryable; it closes streams cleanly.
	ErrCancellation = errors.New("canceled")
)

// ModelStreamError wraps a failed model call that is handled inside the
// Retry Wrapper; once surfaced past it, it becomes an assistant message with
// stop_reason=error if the stream yielded anything.
type ModelStreamError struct {
	Purpose string
	Err     error
}

func (e *ModelStreamError) Error() string {
	if e.Purpose != "" {
		return "model stream error (" + e.Purpose + "): " + e.Err.Error()
	}
	return "model stream error: " + e.Err.Error()
}

func (e *ModelStreamError) Unwrap() error { return e.Err }

// ToolExecutionError is captured as an is_error=true tool_result; it never
// aborts the turn by itself (spec §7).
type ToolExecutionError struct {
	ToolCallID string
	ToolName   string
	Err        error
}

func (e *ToolExecutionError) Error() string {
	return "tool " + e.ToolName + " (" + e.ToolCallID + ") failed: " + e.Err.Error()
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
