package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/store"
)

func seededWithUpdates(t *testing.T) string {
	t.Helper()
	db := seededDB(t)
	for _, set := range []string{"status=settled", "price=99"} {
		_, err := execute(t, NewExecCommand(testRoot(db, "text")), "--table", "trades", "--set", set, "--where", "id=1", "--session", "s-trace")
		require.NoError(t, err)
	}
	return db
}

func TestTraceCommand_JSON(t *testing.T) {
	db := seededWithUpdates(t)
	out, err := execute(t, NewTraceCommand(testRoot(db, "json")), "--table", "trades")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "trades", resp.Data.Table)
	require.Len(t, resp.Data.Entries, 2)
	assert.Equal(t, int64(1), resp.Data.Entries[0].Seq)
	assert.Equal(t, int64(2), resp.Data.Entries[1].Seq)
	assert.Equal(t, TraceStats{Total: 2, Inline: 2, RowsAffected: 2}, resp.Data.Stats)
}

func TestTraceCommand_Text(t *testing.T) {
	db := seededWithUpdates(t)

	opts := testRoot(db, "text")
	opts.Verbose = true
	out, err := execute(t, NewTraceCommand(opts))
	require.NoError(t, err)

	assert.Contains(t, out, "Apply log\n")
	assert.Contains(t, out, "[1] inline   trades@0 rows=1")
	assert.Contains(t, out, "session=s-trace")
	assert.Contains(t, out, "Inline:   2")
	assert.Contains(t, out, "Deferred: 0")
}

func TestTraceCommand_Empty(t *testing.T) {
	db := seededDB(t)

	out, err := execute(t, NewTraceCommand(testRoot(db, "text")), "--table", "trades")
	require.NoError(t, err)
	assert.Contains(t, out, "Apply log for table: trades")
	assert.Contains(t, out, "(no updates applied)")

	out, err = execute(t, NewTraceCommand(testRoot(db, "json")), "--table", "trades")
	require.NoError(t, err)
	assert.Contains(t, out, `"entries": []`)
}

func TestSummarize(t *testing.T) {
	stats := summarize([]store.AppliedOp{
		{Mode: ir.ModeInline, RowsAffected: 2},
		{Mode: ir.ModeDeferred, RowsAffected: 0},
		{Mode: ir.ModeDeferred, RowsAffected: 5},
	})
	assert.Equal(t, TraceStats{Total: 3, Inline: 1, Deferred: 2, RowsAffected: 7}, stats)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "0123456789abcdef...", truncateID("0123456789abcdef0123"))
}
