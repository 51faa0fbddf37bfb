package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabwrite/internal/ir"
)

func TestPool_AcquireBusyRelease(t *testing.T) {
	p := NewPool(newRecordingApplier())

	w, err := p.Acquire("trades", "owner")
	require.NoError(t, err)
	assert.True(t, p.Held("trades"))

	_, err = p.Acquire("trades", "inline update")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
	var be *BusyError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "trades", be.Table)
	assert.Equal(t, "owner", be.Owner)

	// Other tables are independent.
	other, err := p.Acquire("quotes", "inline update")
	require.NoError(t, err)
	require.NoError(t, other.Close())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")
	assert.False(t, p.Held("trades"))

	w2, err := p.Acquire("trades", "inline update")
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestWriter_ApplyInline(t *testing.T) {
	a := newRecordingApplier()
	a.rows = 4
	p := NewPool(a)

	w, err := p.Acquire("trades", "inline update")
	require.NoError(t, err)
	defer w.Close()

	op := ir.MustUpdateOperation("trades", 0, ir.Row{"x": ir.Int(1)}, nil, 1)
	out, err := w.Apply(context.Background(), ir.ExecContext{}, op)
	require.NoError(t, err)
	assert.Equal(t, ir.RowsOutcome(4), out)
	assert.Equal(t, ir.ModeInline, a.mode(op.ID))
}

func TestWriter_ApplyWrongTable(t *testing.T) {
	p := NewPool(newRecordingApplier())
	w, err := p.Acquire("trades", "inline update")
	require.NoError(t, err)
	defer w.Close()

	op := ir.MustUpdateOperation("quotes", 0, ir.Row{"x": ir.Int(1)}, nil, 1)
	_, err = w.Apply(context.Background(), ir.ExecContext{}, op)
	assert.ErrorIs(t, err, ErrWrongTable)
}

func TestWriter_ApplyAfterClose(t *testing.T) {
	p := NewPool(newRecordingApplier())
	w, err := p.Acquire("trades", "inline update")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	op := ir.MustUpdateOperation("trades", 0, ir.Row{"x": ir.Int(1)}, nil, 1)
	_, err = w.Apply(context.Background(), ir.ExecContext{}, op)
	assert.ErrorIs(t, err, ErrWriterClosed)
	_, err = w.Tick(context.Background())
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestWriter_ApplyErrorPropagates(t *testing.T) {
	a := newRecordingApplier()
	a.err = errors.New("schema mismatch")
	p := NewPool(a)

	w, err := p.Acquire("trades", "inline update")
	require.NoError(t, err)
	defer w.Close()

	op := ir.MustUpdateOperation("trades", 0, ir.Row{"x": ir.Int(1)}, nil, 1)
	_, err = w.Apply(context.Background(), ir.ExecContext{}, op)
	assert.ErrorIs(t, err, a.err)
}

func TestChannel_EnqueueRequiresHolder(t *testing.T) {
	p := NewPool(newRecordingApplier())

	err := p.Commands().Enqueue(newBoundCommand("trades", 1))
	assert.ErrorIs(t, err, ErrNotHeld)
	assert.Equal(t, 0, p.Queued("trades"))
}

func TestWriter_TickDrainsFIFO(t *testing.T) {
	a := newRecordingApplier()
	p := NewPool(a)
	ch := p.Commands()

	w, err := p.Acquire("trades", "owner")
	require.NoError(t, err)
	defer w.Close()

	var cmds []*Command
	for i := int64(1); i <= 5; i++ {
		c := newBoundCommand("trades", i)
		require.NoError(t, ch.Enqueue(c))
		cmds = append(cmds, c)
	}
	assert.Equal(t, 5, w.Queued())

	n, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	var want []string
	for _, c := range cmds {
		assert.True(t, c.Completed())
		out, err := c.Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), out.RowsAffected)
		assert.Equal(t, ir.ModeDeferred, a.mode(c.Op.ID))
		want = append(want, c.Op.ID)
	}
	assert.Equal(t, want, a.order("trades"))
}

func TestWriter_TickUnboundContextFails(t *testing.T) {
	p := NewPool(newRecordingApplier())
	w, err := p.Acquire("trades", "owner")
	require.NoError(t, err)
	defer w.Close()

	cmd := NewCommand(ir.MustUpdateOperation("trades", 0, ir.Row{"x": ir.Int(1)}, nil, 1))
	require.NoError(t, p.Commands().Enqueue(cmd))

	_, err = w.Tick(context.Background())
	require.NoError(t, err)

	_, err = cmd.Result()
	assert.ErrorIs(t, err, ErrContextNotBound)
}

func TestWriter_TickApplyFailureCompletesCommand(t *testing.T) {
	a := newRecordingApplier()
	a.err = &StaleReaderError{Table: "trades", Version: 3}
	p := NewPool(a)
	w, err := p.Acquire("trades", "owner")
	require.NoError(t, err)
	defer w.Close()

	cmd := newBoundCommand("trades", 1)
	require.NoError(t, p.Commands().Enqueue(cmd))
	_, err = w.Tick(context.Background())
	require.NoError(t, err)

	_, err = cmd.Result()
	assert.ErrorIs(t, err, ErrStaleReader)
}

func TestWriter_TickHonoursCancelledContext(t *testing.T) {
	p := NewPool(newRecordingApplier())
	w, err := p.Acquire("trades", "owner")
	require.NoError(t, err)

	require.NoError(t, p.Commands().Enqueue(newBoundCommand("trades", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := w.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, w.Queued(), "cancelled tick leaves the command queued")

	require.NoError(t, w.Close())
	assert.Equal(t, 0, p.Queued("trades"), "close drains the rest")
}

func TestWriter_CloseDrainsBeforeRelease(t *testing.T) {
	a := newRecordingApplier()
	p := NewPool(a)
	w, err := p.Acquire("trades", "owner")
	require.NoError(t, err)

	cmd := newBoundCommand("trades", 1)
	require.NoError(t, p.Commands().Enqueue(cmd))

	require.NoError(t, w.Close())
	assert.True(t, cmd.Completed())
	assert.Equal(t, []string{cmd.Op.ID}, a.order("trades"))
	assert.False(t, p.Held("trades"))
}

func TestPool_CloseFailsQueuedCommands(t *testing.T) {
	p := NewPool(newRecordingApplier())
	w, err := p.Acquire("trades", "owner")
	require.NoError(t, err)

	cmd := newBoundCommand("trades", 1)
	require.NoError(t, p.Commands().Enqueue(cmd))

	p.Close()
	_, err = cmd.Result()
	assert.ErrorIs(t, err, ErrPoolClosed)

	_, err = p.Acquire("quotes", "x")
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.ErrorIs(t, p.Commands().Enqueue(newBoundCommand("trades", 2)), ErrPoolClosed)

	require.NoError(t, w.Close())
	p.Close()
}

func TestPool_Stats(t *testing.T) {
	p := NewPool(newRecordingApplier())
	w, err := p.Acquire("trades", "owner")
	require.NoError(t, err)
	_, err = p.Acquire("trades", "inline update")
	require.Error(t, err)
	require.NoError(t, p.Commands().Enqueue(newBoundCommand("trades", 1)))

	stats := p.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, TableStats{
		Table: "trades", Held: true, Owner: "owner", Queued: 1,
		Acquired: 1, Busy: 1, Deferred: 1,
	}, stats[0])

	require.NoError(t, w.Close())
	stats = p.Stats()
	assert.False(t, stats[0].Held)
	assert.Equal(t, int64(1), stats[0].Applied)
}

// At most one goroutine may apply to a table at any instant, no matter how
// many compete for its writer.
func TestPool_AtMostOneHolderPerTable(t *testing.T) {
	a := newRecordingApplier()
	p := NewPool(a)

	const goroutines = 32
	const attempts = 200
	tables := []string{"trades", "quotes", "orders"}

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < attempts; i++ {
				tbl := tables[(g+i)%len(tables)]
				w, err := p.Acquire(tbl, fmt.Sprintf("g%d", g))
				if err != nil {
					continue
				}
				op := ir.MustUpdateOperation(tbl, 0, ir.Row{"x": ir.Int(int64(i))}, nil, int64(g*attempts+i))
				_, _ = w.Apply(context.Background(), ir.ExecContext{}, op)
				_ = w.Close()
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, a.maxSeen.Load(), int32(1))
	for _, tbl := range tables {
		assert.False(t, p.Held(tbl))
	}
}
