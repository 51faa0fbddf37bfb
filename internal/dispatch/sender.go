package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/table"
)

// NoDeferral is the channel argument for synchronous-only callers: a busy
// writer is reported as an error instead of queueing.
var NoDeferral table.Channel

// DefaultRetryAttempts bounds how often Execute goes back to the inline path
// after the holder released between the busy check and the enqueue.
const DefaultRetryAttempts = 3

// reasonInline is the holder reason recorded while Execute applies inline.
const reasonInline = "inline update"

// Pool hands out table writers. Implemented by *table.Pool.
type Pool interface {
	Acquire(tableName, reason string) (*table.Writer, error)
}

// Sender is the dispatch core.
// Safe for concurrent use; it holds no per-call state.
type Sender struct {
	pool     Pool
	policy   DefectPolicy
	attempts int
}

// Option configures a Sender.
type Option func(*Sender)

// WithDefectPolicy sets what happens on a stale-reader defect.
// Default: DefectFallback.
func WithDefectPolicy(p DefectPolicy) Option {
	return func(s *Sender) {
		s.policy = p
	}
}

// WithRetryAttempts sets how many times Execute tries the inline path.
// Values below 1 are treated as 1.
func WithRetryAttempts(n int) Option {
	return func(s *Sender) {
		s.attempts = n
	}
}

// NewSender creates a sender over pool.
func NewSender(pool Pool, opts ...Option) *Sender {
	s := &Sender{
		pool:     pool,
		policy:   DefectFallback,
		attempts: DefaultRetryAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.attempts < 1 {
		s.attempts = 1
	}
	return s
}

// Policy returns the configured defect policy.
func (s *Sender) Policy() DefectPolicy {
	return s.policy
}

// Execute applies op inline if its table's writer is free, or queues it on
// ch if the writer is busy.
//
// Returns:
//   - Resolved with the row count when applied inline
//   - Pending when queued; Execute does not wait for the holder
//   - a *table.BusyError when the writer is busy and ch is NoDeferral
//   - a *SQLError when op is malformed
//   - the applier's error unchanged when the inline apply fails
//
// The writer is released on every return path, including a panic under
// DefectAbort.
func (s *Sender) Execute(ctx context.Context, op *ir.UpdateOperation, ec ir.ExecContext, ch table.Channel) (Future, error) {
	if err := validate(op); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		f, retry, err := s.attempt(ctx, op, ec, ch)
		if !retry {
			return f, err
		}
		lastErr = err
		slog.Debug("holder released before enqueue, retrying inline",
			"table", op.Table,
			"op_id", op.ID,
			"attempt", attempt,
		)
	}
	return nil, fmt.Errorf("dispatch %s: %w", op.Table, lastErr)
}

// attempt runs one pass of the inline-or-defer decision. retry is true
// only when the enqueue found the table no longer held.
func (s *Sender) attempt(ctx context.Context, op *ir.UpdateOperation, ec ir.ExecContext, ch table.Channel) (f Future, retry bool, err error) {
	w, err := s.pool.Acquire(op.Table, reasonInline)
	if err == nil {
		f, err := s.applyInline(ctx, w, op, ec)
		return f, false, err
	}
	if !errors.Is(err, table.ErrBusy) {
		return nil, false, err
	}

	if ch == nil {
		slog.Debug("writer busy, no deferred channel",
			"table", op.Table,
			"op_id", op.ID,
			"error", err,
		)
		return nil, false, err
	}

	if !op.IsBound() {
		if err := op.BindContext(ec); err != nil {
			return nil, false, fmt.Errorf("dispatch %s: %w", op.Table, err)
		}
	}

	cmd := table.NewCommand(op)
	p := newPending(cmd, s.policy == DefectFallback)
	if err := ch.Enqueue(cmd); err != nil {
		if errors.Is(err, table.ErrNotHeld) {
			return nil, true, err
		}
		return nil, false, fmt.Errorf("dispatch %s: enqueue: %w", op.Table, err)
	}

	slog.Debug("update queued for holder",
		"table", op.Table,
		"op_id", op.ID,
		"position", op.Position,
		"session", ec.SessionID,
	)
	return p, false, nil
}

func (s *Sender) applyInline(ctx context.Context, w *table.Writer, op *ir.UpdateOperation, ec ir.ExecContext) (f Future, err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			f, err = nil, cerr
		}
	}()

	out, err := w.Apply(ctx, ec, op)
	if errors.Is(err, table.ErrStaleReader) {
		s.defect(op, err)
		return NewResolved(ir.DoneOutcome), nil
	}
	if err != nil {
		return nil, err
	}
	return NewResolved(out), nil
}

// defect reports a stale reader on the update path. Under DefectAbort it
// does not return.
func (s *Sender) defect(op *ir.UpdateOperation, err error) {
	slog.Error("stale reader on update path",
		"table", op.Table,
		"op_id", op.ID,
		"position", op.Position,
		"error", err,
		"policy", string(s.policy),
		"event", "defect",
	)
	if s.policy == DefectAbort {
		panic(fmt.Sprintf("dispatch: stale reader on update of %q: %v", op.Table, err))
	}
}

func validate(op *ir.UpdateOperation) error {
	if op == nil {
		return &SQLError{Message: "missing update operation"}
	}
	if op.Table == "" {
		return &SQLError{Position: op.Position, Message: "missing table name"}
	}
	if len(op.Set) == 0 {
		return &SQLError{Position: op.Position, Message: fmt.Sprintf("update of %q has no assignments", op.Table)}
	}
	return nil
}
