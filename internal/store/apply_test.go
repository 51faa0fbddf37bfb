package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabwrite/internal/ir"
)

func TestApplyUpdate_RewritesMatchingRows(t *testing.T) {
	s := createTestStore(t)
	seedTrades(t, s)
	ctx := context.Background()

	op := ir.MustUpdateOperation("trades", 7,
		ir.Row{"status": ir.String("closed")},
		ir.Row{"id": ir.Int(1)}, 1)

	n, err := s.ApplyUpdate(ctx, testExecContext(), op, ir.ModeInline)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := s.ReadRows(ctx, "trades", ir.Row{"id": ir.Int(1)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.String("closed"), rows[0]["status"])

	rows, err = s.ReadRows(ctx, "trades", ir.Row{"id": ir.Int(2)})
	require.NoError(t, err)
	assert.Equal(t, ir.String("open"), rows[0]["status"], "unmatched row untouched")
}

func TestApplyUpdate_NoWhereMatchesAll(t *testing.T) {
	s := createTestStore(t)
	seedTrades(t, s)

	op := ir.MustUpdateOperation("trades", 0, ir.Row{"price": ir.Int(0)}, nil, 1)
	n, err := s.ApplyUpdate(context.Background(), testExecContext(), op, ir.ModeInline)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestApplyUpdate_BoolAndNullValues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, "flags", []string{"id", "on", "note"}))
	require.NoError(t, s.InsertRow(ctx, "flags", ir.Row{"id": ir.Int(1), "on": ir.Bool(false), "note": ir.String("x")}))
	require.NoError(t, s.InsertRow(ctx, "flags", ir.Row{"id": ir.Int(2), "on": ir.Int(0)}))

	op := ir.MustUpdateOperation("flags", 0,
		ir.Row{"on": ir.Bool(true), "note": ir.Null{}},
		ir.Row{"on": ir.Bool(false)}, 1)
	n, err := s.ApplyUpdate(ctx, testExecContext(), op, ir.ModeInline)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "integer 0 must not match boolean false")

	rows, err := s.ReadRows(ctx, "flags", ir.Row{"id": ir.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), rows[0]["on"])
	assert.Equal(t, ir.Null{}, rows[0]["note"])

	rows, err = s.ReadRows(ctx, "flags", ir.Row{"note": ir.Null{}})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestApplyUpdate_UnknownTable(t *testing.T) {
	s := createTestStore(t)

	op := ir.MustUpdateOperation("missing", 3, ir.Row{"a": ir.Int(1)}, nil, 1)
	_, err := s.ApplyUpdate(context.Background(), testExecContext(), op, ir.ModeInline)
	assert.ErrorIs(t, err, ErrNoSuchTable)
}

func TestApplyUpdate_SchemaMismatchLeavesNoTrace(t *testing.T) {
	s := createTestStore(t)
	seedTrades(t, s)
	ctx := context.Background()

	op := ir.MustUpdateOperation("trades", 0, ir.Row{"qty": ir.Int(1)}, nil, 1)
	_, err := s.ApplyUpdate(ctx, testExecContext(), op, ir.ModeInline)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "trades", se.Table)

	applied, err := s.HasApplied(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyUpdate_AppliesAtMostOnce(t *testing.T) {
	s := createTestStore(t)
	seedTrades(t, s)
	ctx := context.Background()

	op := ir.MustUpdateOperation("trades", 0, ir.Row{"status": ir.String("closed")}, ir.Row{"status": ir.String("open")}, 1)

	n, err := s.ApplyUpdate(ctx, testExecContext(), op, ir.ModeInline)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Replaying the same op reports the original count without re-applying.
	n, err = s.ApplyUpdate(ctx, testExecContext(), op, ir.ModeDeferred)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ops, err := s.ReadAppliedOps(ctx, "trades")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, ir.ModeInline, ops[0].Mode)
}

func TestReadAppliedOps_OrderAndAudit(t *testing.T) {
	s := createTestStore(t)
	seedTrades(t, s)
	ctx := context.Background()

	first := ir.MustUpdateOperation("trades", 1, ir.Row{"price": ir.Int(1)}, nil, 10)
	second := ir.MustUpdateOperation("trades", 2, ir.Row{"price": ir.Int(2)}, nil, 5)

	_, err := s.ApplyUpdate(ctx, testExecContext(), first, ir.ModeDeferred)
	require.NoError(t, err)
	_, err = s.ApplyUpdate(ctx, testExecContext(), second, ir.ModeDeferred)
	require.NoError(t, err)

	ops, err := s.ReadAppliedOps(ctx, "")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, first.ID, ops[0].OpID, "log order is apply order, not seq order")
	assert.Equal(t, second.ID, ops[1].OpID)
	assert.Equal(t, "alice", ops[0].SecurityContext.UserID)
	assert.Equal(t, "session-1", ops[0].SessionID)
	assert.Equal(t, ir.EngineVersion, ops[0].EngineVersion)
}

func TestCompileSet_SortedKeys(t *testing.T) {
	sql, params, err := compileSet(ir.Row{"b": ir.Int(2), "a": ir.String("x")})
	require.NoError(t, err)
	assert.Equal(t, "json_set(data, '$.a', json(?), '$.b', json(?))", sql)
	assert.Equal(t, []any{`"x"`, "2"}, params)
}

func TestMaxSeq(t *testing.T) {
	s := createTestStore(t)
	seedTrades(t, s)
	ctx := context.Background()

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq, "empty log")

	for _, n := range []int64{4, 12, 9} {
		op := ir.MustUpdateOperation("trades", 0, ir.Row{"price": ir.Int(n)}, nil, n)
		_, err := s.ApplyUpdate(ctx, testExecContext(), op, ir.ModeInline)
		require.NoError(t, err)
	}

	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), seq)
}
