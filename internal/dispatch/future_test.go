package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/table"
)

func TestResolved(t *testing.T) {
	var f Future = NewResolved(ir.RowsOutcome(3))

	assert.True(t, f.Done())
	assert.NoError(t, f.Await(context.Background()))
	assert.NoError(t, f.AwaitTimeout(0))
	assert.Equal(t, StateCompleted, f.State())

	out, err := f.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.RowsAffected)
}

func TestPending_CompletedBeforeAwait(t *testing.T) {
	cmd := table.NewCommand(tradesUpdate(1))
	p := newPending(cmd, true)
	cmd.Complete(ir.RowsOutcome(1), nil)

	assert.True(t, p.Done())
	assert.NoError(t, p.AwaitTimeout(0), "a zero wait on a completed command succeeds")
	assert.Equal(t, StateCompleted, p.State())
}

func TestPending_TerminalStateSticks(t *testing.T) {
	cmd := table.NewCommand(tradesUpdate(1))
	p := newPending(cmd, true)
	cmd.Complete(ir.RowsOutcome(1), nil)
	require.NoError(t, p.Await(context.Background()))

	// A late timeout report cannot move a completed future.
	_ = p.timedOut()
	assert.Equal(t, StateCompleted, p.State())
}

func TestPending_StaleWithoutFallbackFails(t *testing.T) {
	cmd := table.NewCommand(tradesUpdate(1))
	p := newPending(cmd, false)
	cmd.Complete(ir.Outcome{}, &table.StaleReaderError{Table: "trades"})

	_, err := p.Value()
	assert.ErrorIs(t, err, table.ErrStaleReader)
	assert.Equal(t, StateFailed, p.State())
}

func TestPending_AwaitWakesOnCompletion(t *testing.T) {
	cmd := table.NewCommand(tradesUpdate(1))
	p := newPending(cmd, true)

	go func() {
		time.Sleep(5 * time.Millisecond)
		cmd.Complete(ir.RowsOutcome(4), nil)
	}()

	require.NoError(t, p.AwaitTimeout(5*time.Second))
	out, err := p.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.RowsAffected)
}
