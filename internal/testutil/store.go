package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/store"
)

// TableFixture is a table with its initial rows.
type TableFixture struct {
	Name    string
	Columns []string
	Rows    []ir.Row
}

// Trades is the fixture most tests share: three open trades.
func Trades() TableFixture {
	return TableFixture{
		Name:    "trades",
		Columns: []string{"id", "price", "status"},
		Rows: []ir.Row{
			{"id": ir.Int(1), "price": ir.Int(100), "status": ir.String("open")},
			{"id": ir.Int(2), "price": ir.Int(250), "status": ir.String("open")},
			{"id": ir.Int(3), "price": ir.Int(75), "status": ir.String("open")},
		},
	}
}

// Seed creates each fixture table and inserts its rows in order.
func Seed(ctx context.Context, s *store.Store, fixtures ...TableFixture) error {
	for _, f := range fixtures {
		if err := s.CreateTable(ctx, f.Name, f.Columns); err != nil {
			return fmt.Errorf("seed %s: %w", f.Name, err)
		}
		for i, row := range f.Rows {
			if err := s.InsertRow(ctx, f.Name, row); err != nil {
				return fmt.Errorf("seed %s row %d: %w", f.Name, i, err)
			}
		}
	}
	return nil
}

// NewStore opens a file-backed store in a temp dir and seeds it.
// The store is closed when the test ends.
func NewStore(t testing.TB, fixtures ...TableFixture) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := Seed(context.Background(), s, fixtures...); err != nil {
		t.Fatalf("%v", err)
	}
	return s
}
