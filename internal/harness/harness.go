package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/tabwrite/internal/dispatch"
	"github.com/roach88/tabwrite/internal/engine"
	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/store"
	"github.com/roach88/tabwrite/internal/table"
	"github.com/roach88/tabwrite/internal/testutil"
)

// Harness holds the per-run state of one scenario.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	session string

	// writers are the tables the scenario currently holds.
	writers map[string]*table.Writer

	// handles maps scenario IDs to dispatched futures and operation IDs.
	handles map[string]dispatch.Future
	ops     map[string]string
}

// Run executes a scenario in a fresh in-memory store.
// It returns an error only when the scenario cannot be set up; step and
// assertion failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	fixtures, err := tableFixtures(scenario.Tables)
	if err != nil {
		return nil, err
	}
	if err := testutil.Seed(ctx, st, fixtures...); err != nil {
		return nil, fmt.Errorf("failed to seed tables: %w", err)
	}

	policy, err := dispatch.ParseDefectPolicy(scenario.DefectPolicy)
	if err != nil {
		return nil, err
	}
	session := testutil.NewFixedSession(scenario.Session)
	eng := engine.New(st, session,
		engine.WithClock(engine.NewClock()),
		engine.WithDefectPolicy(policy),
	)

	h := &Harness{
		store:   st,
		engine:  eng,
		session: session.Generate(),
		writers: make(map[string]*table.Writer),
		handles: make(map[string]dispatch.Future),
		ops:     make(map[string]string),
	}
	defer h.shutdown()

	result := NewResult()
	for i, step := range scenario.Steps {
		h.runStep(ctx, i, step, result)
	}

	for _, t := range scenario.Tables {
		rows, err := st.ReadRows(ctx, t.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read final state of %s: %w", t.Name, err)
		}
		native := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			m := make(map[string]any, len(row))
			for k, v := range row {
				m[k] = ir.Native(v)
			}
			native = append(native, m)
		}
		result.State[t.Name] = native
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// shutdown releases tables still held and stops the engine.
func (h *Harness) shutdown() {
	for name, w := range h.writers {
		_ = w.Close()
		delete(h.writers, name)
	}
	_ = h.engine.Stop()
}

func tableFixtures(specs []TableSpec) ([]testutil.TableFixture, error) {
	out := make([]testutil.TableFixture, 0, len(specs))
	for _, t := range specs {
		f := testutil.TableFixture{Name: t.Name, Columns: t.Columns}
		for i, raw := range t.Rows {
			row, err := ir.RowFromMap(raw)
			if err != nil {
				return nil, fmt.Errorf("table %s row %d: %w", t.Name, i, err)
			}
			f.Rows = append(f.Rows, row)
		}
		out = append(out, f)
	}
	return out, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) {
	switch {
	case step.Hold != "":
		h.hold(i, step.Hold, result)
	case step.Drain != "":
		h.drain(ctx, i, step.Drain, result)
	case step.Release != "":
		h.release(i, step.Release, result)
	case step.Dispatch != nil:
		h.dispatch(ctx, i, step.Dispatch, step.Expect, result)
	case step.Await != nil:
		h.await(ctx, i, step.Await, step.Expect, result)
	}
}

func (h *Harness) hold(i int, name string, result *Result) {
	ev := TraceEvent{Step: i, Type: "hold", Table: name}
	w, err := h.engine.Acquire(name)
	if err != nil {
		ev.Error = string(engine.Code(err))
		result.AddError(fmt.Sprintf("steps[%d]: hold %s: %v", i, name, err))
	} else {
		h.writers[name] = w
	}
	result.add(ev)
}

func (h *Harness) drain(ctx context.Context, i int, name string, result *Result) {
	ev := TraceEvent{Step: i, Type: "drain", Table: name}
	w, ok := h.writers[name]
	if !ok {
		result.AddError(fmt.Sprintf("steps[%d]: drain %s: table is not held", i, name))
		result.add(ev)
		return
	}
	n, err := w.Tick(ctx)
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d]: drain %s: %v", i, name, err))
	}
	ev.Count = &n
	result.add(ev)
}

func (h *Harness) release(i int, name string, result *Result) {
	ev := TraceEvent{Step: i, Type: "release", Table: name}
	w, ok := h.writers[name]
	if !ok {
		result.AddError(fmt.Sprintf("steps[%d]: release %s: table is not held", i, name))
		result.add(ev)
		return
	}
	n := w.Queued()
	if err := w.Close(); err != nil {
		result.AddError(fmt.Sprintf("steps[%d]: release %s: %v", i, name, err))
	}
	delete(h.writers, name)
	ev.Count = &n
	result.add(ev)
}

func (h *Harness) dispatch(ctx context.Context, i int, d *DispatchStep, expect *Expect, result *Result) {
	ev := TraceEvent{Step: i, Type: "dispatch", Table: d.Table, ID: d.ID}

	req, err := h.request(d)
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d]: dispatch %s: %v", i, d.ID, err))
		result.add(ev)
		return
	}

	f, op, err := h.engine.Dispatch(ctx, req)
	if op != nil {
		ev.Seq = op.Seq
		h.ops[d.ID] = op.ID
	}
	if err != nil {
		ev.Error = string(engine.Code(err))
	} else {
		h.handles[d.ID] = f
		ev.Mode = string(ir.ModeInline)
		if _, ok := f.(*dispatch.Pending); ok {
			ev.Mode = string(ir.ModeDeferred)
		}
		describe(&ev, f)
	}
	result.add(ev)
	checkExpect(i, expect, ev, f, result)
}

func (h *Harness) await(ctx context.Context, i int, a *AwaitStep, expect *Expect, result *Result) {
	ev := TraceEvent{Step: i, Type: "await", ID: a.ID}
	f, ok := h.handles[a.ID]
	if !ok {
		result.AddError(fmt.Sprintf("steps[%d]: await %s: dispatch did not return a handle", i, a.ID))
		result.add(ev)
		return
	}

	var err error
	switch a.Timeout {
	case "":
		if !f.Done() {
			result.AddError(fmt.Sprintf("steps[%d]: await %s: update has not run; drain or release first", i, a.ID))
		}
		_, err = h.engine.Await(ctx, f, -1)
	default:
		d, _ := time.ParseDuration(a.Timeout)
		if d <= 0 {
			d = -1
		}
		_, err = h.engine.Await(ctx, f, d)
	}
	if err != nil {
		ev.Error = string(engine.Code(err))
	}
	describe(&ev, f)
	result.add(ev)
	checkExpect(i, expect, ev, f, result)
}

func (h *Harness) request(d *DispatchStep) (engine.Request, error) {
	set, err := ir.RowFromMap(d.Set)
	if err != nil {
		return engine.Request{}, fmt.Errorf("set: %w", err)
	}
	var where ir.Row
	if len(d.Where) > 0 {
		where, err = ir.RowFromMap(d.Where)
		if err != nil {
			return engine.Request{}, fmt.Errorf("where: %w", err)
		}
	}
	return engine.Request{
		Table:     d.Table,
		Position:  d.Position,
		Set:       set,
		Where:     where,
		Sync:      d.Sync,
		SessionID: h.session,
	}, nil
}

// describe fills the state and row count of f into ev.
func describe(ev *TraceEvent, f dispatch.Future) {
	ev.State = f.State().String()
	if !f.Done() {
		return
	}
	if out, err := f.Value(); err == nil {
		rows := out.RowsAffected
		ev.Rows = &rows
	} else if ev.Error == "" {
		ev.Error = string(engine.Code(err))
	}
}

func checkExpect(i int, expect *Expect, ev TraceEvent, f dispatch.Future, result *Result) {
	if expect == nil {
		return
	}
	if expect.Error != ev.Error {
		result.AddError(fmt.Sprintf("steps[%d]: expected error %q, got %q", i, expect.Error, ev.Error))
	}
	if expect.State != "" && expect.State != ev.State {
		result.AddError(fmt.Sprintf("steps[%d]: expected state %s, got %s", i, expect.State, ev.State))
	}
	if expect.Rows != nil {
		if ev.Rows == nil {
			result.AddError(fmt.Sprintf("steps[%d]: expected %d rows, update has no outcome", i, *expect.Rows))
		} else if *expect.Rows != *ev.Rows {
			result.AddError(fmt.Sprintf("steps[%d]: expected %d rows, got %d", i, *expect.Rows, *ev.Rows))
		}
	}
	if expect.Done != nil {
		done := f != nil && f.Done()
		if *expect.Done != done {
			result.AddError(fmt.Sprintf("steps[%d]: expected done=%t, got %t", i, *expect.Done, done))
		}
	}
}
