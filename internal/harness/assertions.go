package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tabwrite/internal/ir"
)

// AssertionError is a failed assertion with expected and actual values.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		case AssertAppliedOrder:
			err = h.assertAppliedOrder(ctx, a)
		case AssertHandleState:
			err = h.assertHandleState(a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertFinalState checks that at least one row matches where and that
// every matching row carries the expected values.
func (h *Harness) assertFinalState(ctx context.Context, a Assertion) error {
	where, err := ir.RowFromMap(a.Where)
	if err != nil {
		return fmt.Errorf("final_state where: %w", err)
	}
	expect, err := ir.RowFromMap(a.Expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}

	rows, err := h.store.ReadRows(ctx, a.Table, where)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	if len(rows) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("rows in %s matching %s", a.Table, formatRow(where)),
			Actual:   "no rows",
		}
	}

	for _, row := range rows {
		for _, col := range expect.SortedKeys() {
			if row[col] != expect[col] {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("%s.%s = %s", a.Table, col, formatValue(expect[col])),
					Actual:   fmt.Sprintf("%s in row %s", formatValue(row[col]), formatRow(row)),
				}
			}
		}
	}
	return nil
}

// assertAppliedOrder compares the table's apply log with the expected
// handle IDs (and modes, when given).
func (h *Harness) assertAppliedOrder(ctx context.Context, a Assertion) error {
	log, err := h.store.ReadAppliedOps(ctx, a.Table)
	if err != nil {
		return fmt.Errorf("applied_order: %w", err)
	}

	byOp := make(map[string]string, len(h.ops))
	for id, opID := range h.ops {
		byOp[opID] = id
	}

	got := make([]string, 0, len(log))
	modes := make([]string, 0, len(log))
	for _, entry := range log {
		id, ok := byOp[entry.OpID]
		if !ok {
			id = entry.OpID
		}
		got = append(got, id)
		modes = append(modes, string(entry.Mode))
	}

	want := a.IDs
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertAppliedOrder,
			Expected: fmt.Sprintf("%s applied %v", a.Table, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	if len(a.Modes) > 0 && !slices.Equal(a.Modes, modes) {
		return &AssertionError{
			Type:     AssertAppliedOrder,
			Expected: fmt.Sprintf("%s modes %v", a.Table, a.Modes),
			Actual:   fmt.Sprintf("%v", modes),
		}
	}
	return nil
}

func (h *Harness) assertHandleState(a Assertion) error {
	f, ok := h.handles[a.ID]
	if !ok {
		return &AssertionError{
			Type:     AssertHandleState,
			Expected: fmt.Sprintf("%s %s", a.ID, a.State),
			Actual:   "dispatch returned no handle",
		}
	}
	if got := f.State().String(); got != a.State {
		return &AssertionError{
			Type:     AssertHandleState,
			Expected: fmt.Sprintf("%s %s", a.ID, a.State),
			Actual:   got,
		}
	}
	return nil
}

func formatValue(v ir.Value) string {
	if v == nil {
		return "<missing>"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func formatRow(r ir.Row) string {
	b, err := ir.MarshalCanonical(r)
	if err != nil {
		return fmt.Sprintf("%v", map[string]ir.Value(r))
	}
	return string(b)
}
