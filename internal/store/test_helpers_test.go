package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/tabwrite/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedTrades creates the trades table with two open rows.
func seedTrades(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateTable(ctx, "trades", []string{"id", "price", "status"}); err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}
	for _, row := range []ir.Row{
		{"id": ir.Int(1), "price": ir.Int(100), "status": ir.String("open")},
		{"id": ir.Int(2), "price": ir.Int(250), "status": ir.String("open")},
	} {
		if err := s.InsertRow(ctx, "trades", row); err != nil {
			t.Fatalf("InsertRow() failed: %v", err)
		}
	}
}

func testExecContext() ir.ExecContext {
	return ir.ExecContext{
		SessionID: "session-1",
		Security:  ir.SecurityContext{TenantID: "t1", UserID: "alice", Permissions: []string{"update"}},
	}
}
