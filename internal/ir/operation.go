package ir

import (
	"errors"
	"sync/atomic"
)

// ErrContextAlreadyBound is returned by BindContext on a second bind.
var ErrContextAlreadyBound = errors.New("execution context already bound")

// SecurityContext carries the caller's identity for audit trails.
// Constructing it (auth, roles) is the caller's job.
type SecurityContext struct {
	TenantID    string   `json:"tenant_id" yaml:"tenant_id"`
	UserID      string   `json:"user_id" yaml:"user_id"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// ExecContext is the caller's execution context for one statement.
// It is captured into an UpdateOperation when the operation is deferred,
// so the drain loop applies it under the caller's identity.
type ExecContext struct {
	SessionID string          `json:"session_id"`
	Security  SecurityContext `json:"security"`
}

// UpdateMode records how an update reached the table.
type UpdateMode string

const (
	// ModeInline means the caller held the writer and applied directly.
	ModeInline UpdateMode = "inline"
	// ModeDeferred means the table owner applied it from its queue.
	ModeDeferred UpdateMode = "deferred"
)

// UpdateOperation describes one UPDATE statement against a single table.
//
// All fields except the bound context are fixed at construction.
// The bound context is set at most once, exactly when the operation is
// queued for deferred execution.
type UpdateOperation struct {
	// ID is the content-addressed identity (see OperationID).
	ID string `json:"id"`

	// Table is the target table name.
	Table string `json:"table"`

	// Position is the offset of the table name in the statement text.
	// Reported in errors so tools can point at the source.
	Position int `json:"position"`

	// Set holds the column assignments.
	Set Row `json:"set"`

	// Where holds equality filters, ANDed together. Empty matches all rows.
	Where Row `json:"where,omitempty"`

	// Seq is the logical clock value when the operation was built.
	Seq int64 `json:"seq"`

	bound atomic.Pointer[ExecContext]
}

// BindContext attaches the caller's execution context for deferred replay.
// Returns ErrContextAlreadyBound if a context was attached before; the
// original binding is kept.
func (op *UpdateOperation) BindContext(ec ExecContext) error {
	if !op.bound.CompareAndSwap(nil, &ec) {
		return ErrContextAlreadyBound
	}
	return nil
}

// BoundContext returns the bound execution context.
// ok is false if BindContext has not been called.
func (op *UpdateOperation) BoundContext() (ec ExecContext, ok bool) {
	p := op.bound.Load()
	if p == nil {
		return ExecContext{}, false
	}
	return *p, true
}

// IsBound reports whether an execution context has been attached.
func (op *UpdateOperation) IsBound() bool {
	return op.bound.Load() != nil
}

// Outcome is the result of applying an update.
type Outcome struct {
	// RowsAffected is the number of rows the update rewrote.
	RowsAffected int64 `json:"rows_affected"`

	// Done without a row count marks a status-only outcome
	// (used by the stale-reader fallback).
	Done bool `json:"done"`
}

// RowsOutcome builds an Outcome for a completed update.
func RowsOutcome(n int64) Outcome {
	return Outcome{RowsAffected: n, Done: true}
}

// DoneOutcome is the status-only outcome.
var DoneOutcome = Outcome{Done: true}
