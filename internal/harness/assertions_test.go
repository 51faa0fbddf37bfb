package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fifoScenario(assertions ...Assertion) *Scenario {
	price := func(id string, p int) *DispatchStep {
		return &DispatchStep{
			ID:    id,
			Table: "trades",
			Set:   map[string]any{"price": p},
			Where: map[string]any{"id": 1},
		}
	}
	return &Scenario{
		Name:        "fifo",
		Description: "Three updates, one inline",
		Tables:      tradesSpec(),
		Steps: []Step{
			{Dispatch: price("u0", 105)},
			{Hold: "trades"},
			{Dispatch: price("u1", 110)},
			{Dispatch: price("u2", 120)},
			{Release: "trades"},
		},
		Assertions: assertions,
	}
}

func TestAssertFinalState(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
		contains  string
	}{
		{
			name:      "last write wins",
			assertion: Assertion{Type: AssertFinalState, Table: "trades", Where: map[string]any{"id": 1}, Expect: map[string]any{"price": 120}},
			pass:      true,
		},
		{
			name:      "wrong value",
			assertion: Assertion{Type: AssertFinalState, Table: "trades", Where: map[string]any{"id": 1}, Expect: map[string]any{"price": 110}},
			contains:  "trades.price = 110",
		},
		{
			name:      "no matching rows",
			assertion: Assertion{Type: AssertFinalState, Table: "trades", Where: map[string]any{"id": 9}, Expect: map[string]any{"price": 1}},
			contains:  "no rows",
		},
		{
			name:      "missing column",
			assertion: Assertion{Type: AssertFinalState, Table: "trades", Where: map[string]any{"id": 2}, Expect: map[string]any{"note": "x"}},
			contains:  "<missing>",
		},
		{
			name:      "every row checked",
			assertion: Assertion{Type: AssertFinalState, Table: "trades", Expect: map[string]any{"status": "open"}},
			pass:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(fifoScenario(tt.assertion))
			require.NoError(t, err)
			assert.Equal(t, tt.pass, result.Pass, "errors: %v", result.Errors)
			if tt.contains != "" {
				require.Len(t, result.Errors, 1)
				assert.Contains(t, result.Errors[0], tt.contains)
			}
		})
	}
}

func TestAssertAppliedOrder(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
		contains  string
	}{
		{
			name:      "ids only",
			assertion: Assertion{Type: AssertAppliedOrder, Table: "trades", IDs: []string{"u0", "u1", "u2"}},
			pass:      true,
		},
		{
			name: "ids and modes",
			assertion: Assertion{
				Type:  AssertAppliedOrder,
				Table: "trades",
				IDs:   []string{"u0", "u1", "u2"},
				Modes: []string{"inline", "deferred", "deferred"},
			},
			pass: true,
		},
		{
			name:      "wrong order",
			assertion: Assertion{Type: AssertAppliedOrder, Table: "trades", IDs: []string{"u0", "u2", "u1"}},
			contains:  "[u0 u1 u2]",
		},
		{
			name: "wrong modes",
			assertion: Assertion{
				Type:  AssertAppliedOrder,
				Table: "trades",
				IDs:   []string{"u0", "u1", "u2"},
				Modes: []string{"inline", "inline", "deferred"},
			},
			contains: "[inline deferred deferred]",
		},
		{
			name:      "empty log for other table",
			assertion: Assertion{Type: AssertAppliedOrder, Table: "orders"},
			pass:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(fifoScenario(tt.assertion))
			require.NoError(t, err)
			assert.Equal(t, tt.pass, result.Pass, "errors: %v", result.Errors)
			if tt.contains != "" {
				require.Len(t, result.Errors, 1)
				assert.Contains(t, result.Errors[0], tt.contains)
			}
		})
	}
}

func TestAssertHandleState(t *testing.T) {
	result, err := Run(fifoScenario(
		Assertion{Type: AssertHandleState, ID: "u0", State: "completed"},
		Assertion{Type: AssertHandleState, ID: "u1", State: "pending"},
	))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[1]")
	assert.Contains(t, result.Errors[0], "Actual: completed")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertHandleState, Expected: "u1 completed", Actual: "pending"}
	assert.Equal(t, "Assertion failed: handle_state\n  Expected: u1 completed\n  Actual: pending", err.Error())
}
