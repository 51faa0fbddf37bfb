package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tabwrite/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// CanonicalTrace renders a scenario trace as RFC 8785 canonical JSON.
// Same scenario, same bytes.
func CanonicalTrace(name, session string, trace []TraceEvent) ([]byte, error) {
	events := make([]any, len(trace))
	for i, ev := range trace {
		m := map[string]any{
			"step": ev.Step,
			"type": ev.Type,
		}
		if ev.Table != "" {
			m["table"] = ev.Table
		}
		if ev.ID != "" {
			m["id"] = ev.ID
		}
		if ev.Seq != 0 {
			m["seq"] = ev.Seq
		}
		if ev.Mode != "" {
			m["mode"] = ev.Mode
		}
		if ev.State != "" {
			m["state"] = ev.State
		}
		if ev.Rows != nil {
			m["rows"] = *ev.Rows
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if ev.Count != nil {
			m["count"] = *ev.Count
		}
		events[i] = m
	}

	snapshot := map[string]any{
		"scenario": name,
		"trace":    events,
	}
	if session != "" {
		snapshot["session"] = session
	}
	return ir.MarshalCanonical(snapshot)
}

// RunWithGolden runs scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, scenario.Session, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name, session string, result *Result) error {
	t.Helper()

	data, err := CanonicalTrace(name, session, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
