package table

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roach88/tabwrite/internal/ir"
)

// recordingApplier records applied operation IDs per table and tracks how
// many applies run concurrently on the same table.
type recordingApplier struct {
	mu      sync.Mutex
	applied map[string][]string
	modes   map[string]ir.UpdateMode
	active  map[string]*atomic.Int32
	maxSeen atomic.Int32

	rows int64
	err  error
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{
		applied: make(map[string][]string),
		modes:   make(map[string]ir.UpdateMode),
		active:  make(map[string]*atomic.Int32),
		rows:    1,
	}
}

func (a *recordingApplier) ApplyUpdate(_ context.Context, _ ir.ExecContext, op *ir.UpdateOperation, mode ir.UpdateMode) (int64, error) {
	a.mu.Lock()
	c, ok := a.active[op.Table]
	if !ok {
		c = &atomic.Int32{}
		a.active[op.Table] = c
	}
	a.mu.Unlock()

	n := c.Add(1)
	defer c.Add(-1)
	for {
		m := a.maxSeen.Load()
		if n <= m || a.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	if a.err != nil {
		return 0, a.err
	}

	a.mu.Lock()
	a.applied[op.Table] = append(a.applied[op.Table], op.ID)
	a.modes[op.ID] = mode
	a.mu.Unlock()
	return a.rows, nil
}

func (a *recordingApplier) order(table string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.applied[table]...)
}

func (a *recordingApplier) mode(opID string) ir.UpdateMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modes[opID]
}

func newBoundCommand(table string, seq int64) *Command {
	op := ir.MustUpdateOperation(table, 0, ir.Row{"v": ir.Int(seq)}, nil, seq)
	if err := op.BindContext(ir.ExecContext{SessionID: "s"}); err != nil {
		panic(err)
	}
	return NewCommand(op)
}
