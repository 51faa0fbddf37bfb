package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tabwrite/internal/table"
)

// Owner holds one table's writer and drains its queue.
//
// Run must be called from exactly one goroutine. It is the only consumer of
// the table's queue while it runs.
type Owner struct {
	w *table.Writer
}

// NewOwner takes the writer for tableName. Fails with a busy error if
// another holder has it.
func NewOwner(pool *table.Pool, tableName string) (*Owner, error) {
	w, err := pool.Acquire(tableName, "owner")
	if err != nil {
		return nil, fmt.Errorf("own %s: %w", tableName, err)
	}
	return &Owner{w: w}, nil
}

// Table returns the owned table.
func (o *Owner) Table() string {
	return o.w.Table()
}

// Run drains queued updates until ctx is cancelled or the pool closes, then
// releases the writer. The release drains anything still queued, so Run
// never returns with updates left behind on an open pool.
//
// Returns nil on cancellation.
func (o *Owner) Run(ctx context.Context) (err error) {
	slog.Info("table owner starting", "table", o.Table())
	defer func() {
		if cerr := o.w.Close(); cerr != nil && err == nil {
			err = cerr
		}
		slog.Info("table owner stopped", "table", o.Table())
	}()

	for {
		n, err := o.w.Tick(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("owner %s: %w", o.Table(), err)
		}
		if n > 0 {
			slog.Debug("owner drained queue", "table", o.Table(), "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-o.w.Wait():
			if !ok {
				// Signal channel closes with the pool.
				return &RuntimeError{
					Code:    ErrCodeQueueClosed,
					Message: "queue closed while owned",
					Table:   o.Table(),
					Err:     table.ErrPoolClosed,
				}
			}
		}
	}
}
