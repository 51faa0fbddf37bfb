package engine

import (
	"testing"

	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/testutil"
)

// setupTestEngine opens a temp store with the trades fixture.
func setupTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	s := testutil.NewStore(t, testutil.Trades())
	e := New(s, UUIDv7Generator{}, opts...)
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func settle(id int64) Request {
	return Request{
		Table:     "trades",
		Position:  7,
		Set:       ir.Row{"status": ir.String("settled")},
		Where:     ir.Row{"id": ir.Int(id)},
		SessionID: "session-a",
		Security:  ir.SecurityContext{TenantID: "acme", UserID: "alice"},
	}
}
