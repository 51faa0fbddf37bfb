package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/table"
)

// fakeApplier counts applies per table and records the highest number of
// applies seen running at once on one table.
type fakeApplier struct {
	mu      sync.Mutex
	order   map[string][]string
	modes   map[string]ir.UpdateMode
	ecs     map[string]ir.ExecContext
	active  map[string]*atomic.Int32
	maxSeen atomic.Int32

	rows int64
	err  error
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{
		order:  make(map[string][]string),
		modes:  make(map[string]ir.UpdateMode),
		ecs:    make(map[string]ir.ExecContext),
		active: make(map[string]*atomic.Int32),
		rows:   2,
	}
}

func (a *fakeApplier) ApplyUpdate(_ context.Context, ec ir.ExecContext, op *ir.UpdateOperation, mode ir.UpdateMode) (int64, error) {
	a.mu.Lock()
	c, ok := a.active[op.Table]
	if !ok {
		c = &atomic.Int32{}
		a.active[op.Table] = c
	}
	err := a.err
	a.mu.Unlock()

	n := c.Add(1)
	defer c.Add(-1)
	for {
		m := a.maxSeen.Load()
		if n <= m || a.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.order[op.Table] = append(a.order[op.Table], op.ID)
	a.modes[op.ID] = mode
	a.ecs[op.ID] = ec
	a.mu.Unlock()
	return a.rows, nil
}

func (a *fakeApplier) applied(tableName string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order[tableName]...)
}

func (a *fakeApplier) modeOf(opID string) ir.UpdateMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modes[opID]
}

func (a *fakeApplier) contextOf(opID string) ir.ExecContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ecs[opID]
}

// stubChannel fails every enqueue with err.
type stubChannel struct {
	err   error
	calls atomic.Int32
}

func (c *stubChannel) Enqueue(*table.Command) error {
	c.calls.Add(1)
	return c.err
}

// flakyPool reports busy for the first busyFor acquisitions, then delegates.
type flakyPool struct {
	*table.Pool
	busyFor atomic.Int32
}

func (p *flakyPool) Acquire(tableName, reason string) (*table.Writer, error) {
	if p.busyFor.Add(-1) >= 0 {
		return nil, &table.BusyError{Table: tableName, Owner: "ghost"}
	}
	return p.Pool.Acquire(tableName, reason)
}

func tradesUpdate(seq int64) *ir.UpdateOperation {
	return ir.MustUpdateOperation("trades", 7,
		ir.Row{"status": ir.String("settled")},
		ir.Row{"id": ir.Int(seq)},
		seq,
	)
}

func aliceContext() ir.ExecContext {
	return ir.ExecContext{
		SessionID: "session-a",
		Security: ir.SecurityContext{
			TenantID:    "acme",
			UserID:      "alice",
			Permissions: []string{"update:trades"},
		},
	}
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}
