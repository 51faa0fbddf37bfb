package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/tabwrite/internal/ir"
)

// Writer is sole write access to one table, obtained from Pool.Acquire.
//
// A Writer is used by one goroutine at a time. Close must be called on
// every path; use defer right after Acquire.
type Writer struct {
	pool   *Pool
	table  string
	entry  *entry
	closed atomic.Bool
}

// Table returns the table this writer holds.
func (w *Writer) Table() string {
	return w.table
}

// Apply runs one update inline under ec.
// Errors from the applier propagate unchanged (wrapped for context).
func (w *Writer) Apply(ctx context.Context, ec ir.ExecContext, op *ir.UpdateOperation) (ir.Outcome, error) {
	if w.closed.Load() {
		return ir.Outcome{}, ErrWriterClosed
	}
	if op.Table != w.table {
		return ir.Outcome{}, fmt.Errorf("%w: writer for %q, operation for %q", ErrWrongTable, w.table, op.Table)
	}

	n, err := w.pool.applier.ApplyUpdate(ctx, ec, op, ir.ModeInline)
	if err != nil {
		return ir.Outcome{}, err
	}
	w.entry.applied.Add(1)
	return ir.RowsOutcome(n), nil
}

// Wait returns a channel that signals when deferred commands may be queued.
// Closed when the pool shuts down.
func (w *Writer) Wait() <-chan struct{} {
	return w.entry.queue.Wait()
}

// Queued returns the number of commands waiting on this table.
func (w *Writer) Queued() int {
	return w.entry.queue.Len()
}

// Tick drains queued commands in FIFO order and returns how many ran.
// Each command is applied under the execution context bound into its
// operation and then completed with the outcome or error.
//
// Stops early only if ctx is cancelled; commands not yet dequeued stay
// queued for the next Tick or for Close.
func (w *Writer) Tick(ctx context.Context) (int, error) {
	if w.closed.Load() {
		return 0, ErrWriterClosed
	}
	return w.drain(ctx)
}

func (w *Writer) drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		cmd, ok := w.entry.queue.TryDequeue()
		if !ok {
			return n, nil
		}
		w.runCommand(ctx, cmd)
		n++
	}
}

// runCommand applies one deferred command and fires its signal.
func (w *Writer) runCommand(ctx context.Context, cmd *Command) {
	op := cmd.Op

	ec, ok := op.BoundContext()
	if !ok {
		slog.Error("deferred update has no bound context",
			"table", w.table,
			"op_id", op.ID,
			"event", "defect",
		)
		cmd.Complete(ir.Outcome{}, ErrContextNotBound)
		return
	}

	rows, err := w.pool.applier.ApplyUpdate(ctx, ec, op, ir.ModeDeferred)
	if err != nil {
		if errors.Is(err, ErrStaleReader) {
			slog.Error("stale reader reported for deferred update",
				"table", w.table,
				"op_id", op.ID,
				"error", err,
				"event", "defect",
			)
		} else {
			slog.Warn("deferred update failed",
				"table", w.table,
				"op_id", op.ID,
				"error", err,
			)
		}
		cmd.Complete(ir.Outcome{}, err)
		return
	}

	w.entry.applied.Add(1)
	cmd.Complete(ir.RowsOutcome(rows), nil)

	slog.Debug("deferred update applied",
		"table", w.table,
		"op_id", op.ID,
		"rows", rows,
		"session", ec.SessionID,
	)
}

// Close drains any remaining commands and releases the table.
// Idempotent.
//
// The release happens under the pool lock only once the queue is empty,
// and Enqueue only accepts commands while the table is held, so no command
// can be left behind a released writer.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	ctx := context.Background()
	p := w.pool
	for {
		if _, err := w.drain(ctx); err != nil {
			return fmt.Errorf("close writer %s: %w", w.table, err)
		}

		p.mu.Lock()
		if w.entry.queue.Len() == 0 {
			w.entry.held = false
			w.entry.owner = ""
			p.mu.Unlock()
			slog.Debug("writer released", "table", w.table)
			return nil
		}
		p.mu.Unlock()
	}
}
