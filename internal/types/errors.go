package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrNoResult  = errors.New("container has no permalink")
	ErrWrongPage = errors.New("view is not on the source page")
	ErrBusy      = errors.New("a session is already running")
)

// ExtractError wraps a failure while extracting a single container.
// It never leaves the extractor; it exists so the failure can be logged.
type ExtractError struct {
	Step string
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Step, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// SessionError wraps a fatal failure of the view primitives (listing,
// scrolling, pausing) that aborts the convergence loop.
type SessionError struct {
	Op    string
	Cycle int
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s failed at cycle %d: %v", e.Op, e.Cycle, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// SubmitError is returned when the collector endpoint rejects a submission.
type SubmitError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *SubmitError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, body)
}

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
