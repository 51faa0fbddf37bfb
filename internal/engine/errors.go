package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/tabwrite/internal/dispatch"
	"github.com/roach88/tabwrite/internal/table"
)

// RuntimeError is an engine-level failure with a stable code for CLI
// output and exit status. It wraps the underlying error, so errors.Is
// against table and dispatch sentinels keeps working.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Table is the affected table, if any.
	Table string

	// OpID identifies the operation, if one was built.
	OpID string

	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeBusy means the writer was held and deferral was not allowed.
	ErrCodeBusy RuntimeErrorCode = "BUSY"

	// ErrCodeStaleReader means a stale-reader defect surfaced on an update.
	ErrCodeStaleReader RuntimeErrorCode = "STALE_READER"

	// ErrCodeApplyFailed means the store rejected the update.
	ErrCodeApplyFailed RuntimeErrorCode = "APPLY_FAILED"

	// ErrCodeTimedOut means a wait ended before a deferred update ran.
	ErrCodeTimedOut RuntimeErrorCode = "TIMED_OUT"

	// ErrCodeQueueClosed means the pool shut down under a queued update.
	ErrCodeQueueClosed RuntimeErrorCode = "QUEUE_CLOSED"

	// ErrCodeInvalidRequest means the request could not become an operation.
	ErrCodeInvalidRequest RuntimeErrorCode = "INVALID_REQUEST"
)

func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, msg, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// classify wraps err in a RuntimeError with the matching code.
// Returns nil for nil and passes RuntimeErrors through.
func classify(err error, tableName, opID string) error {
	if err == nil {
		return nil
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}

	out := &RuntimeError{Table: tableName, OpID: opID, Err: err}
	switch {
	case errors.Is(err, table.ErrBusy):
		out.Code, out.Message = ErrCodeBusy, "writer busy"
	case errors.Is(err, table.ErrNotHeld):
		out.Code, out.Message = ErrCodeBusy, "writer contended"
	case errors.Is(err, table.ErrStaleReader):
		out.Code, out.Message = ErrCodeStaleReader, "stale reader on update"
	case errors.Is(err, dispatch.ErrTimedOut):
		out.Code, out.Message = ErrCodeTimedOut, "update still queued"
	case errors.Is(err, table.ErrPoolClosed):
		out.Code, out.Message = ErrCodeQueueClosed, "writer pool closed"
	case dispatch.IsSQLError(err):
		out.Code, out.Message = ErrCodeInvalidRequest, "invalid update"
	default:
		out.Code, out.Message = ErrCodeApplyFailed, "apply failed"
	}
	return out
}

// Code returns the RuntimeErrorCode of err, or "" if err is not one.
func Code(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsBusy reports whether err is a busy-writer failure.
func IsBusy(err error) bool {
	return Code(err) == ErrCodeBusy || errors.Is(err, table.ErrBusy)
}

// IsTimeout reports whether err is a timed-out wait.
func IsTimeout(err error) bool {
	return Code(err) == ErrCodeTimedOut || errors.Is(err, dispatch.ErrTimedOut)
}
