package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabwrite/internal/config"
	"github.com/roach88/tabwrite/internal/store"
	"github.com/roach88/tabwrite/internal/testutil"
)

// seededDB creates a database file holding the trades fixture.
func seededDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabwrite.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, testutil.Seed(context.Background(), st, testutil.Trades()))
	require.NoError(t, st.Close())
	return path
}

func tradesTable(hold bool) config.TableConfig {
	return config.TableConfig{Name: "trades", Columns: []string{"id", "price", "status"}, Hold: hold}
}

// testRoot returns root options with a preloaded config, as the root
// command's pre-run would leave them.
func testRoot(db, format string, tables ...config.TableConfig) *RootOptions {
	cfg := config.Default()
	cfg.Database = db
	cfg.Tables = tables
	return &RootOptions{Format: format, Config: &cfg}
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func readLog(t *testing.T, db, table string) []store.AppliedOp {
	t.Helper()
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	ops, err := st.ReadAppliedOps(context.Background(), table)
	require.NoError(t, err)
	return ops
}

func readRows(t *testing.T, db, table string) []map[string]any {
	t.Helper()
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	rows, err := st.ReadRows(context.Background(), table, nil)
	require.NoError(t, err)

	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := make(map[string]any, len(r))
		for k, v := range r {
			m[k] = v
		}
		out[i] = m
	}
	return out
}
