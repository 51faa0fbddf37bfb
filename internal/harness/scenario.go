package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tabwrite/internal/store"
)

// Scenario is one write-dispatch test case.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Session is the session ID stamped on every dispatch.
	// Defaults to "test-session".
	Session string `yaml:"session,omitempty"`

	// DefectPolicy is fallback (default) or abort.
	DefectPolicy string `yaml:"defect_policy,omitempty"`

	Tables     []TableSpec `yaml:"tables"`
	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// TableSpec declares a table and its seed rows.
type TableSpec struct {
	Name    string           `yaml:"name"`
	Columns []string         `yaml:"columns"`
	Rows    []map[string]any `yaml:"rows,omitempty"`
}

// Step is one scenario action. Exactly one action field is set.
type Step struct {
	// Hold takes the named table's writer, as a busy owner would.
	Hold string `yaml:"hold,omitempty"`

	// Release drains and releases a held table.
	Release string `yaml:"release,omitempty"`

	// Drain runs the held table's queued updates without releasing.
	Drain string `yaml:"drain,omitempty"`

	Dispatch *DispatchStep `yaml:"dispatch,omitempty"`
	Await    *AwaitStep    `yaml:"await,omitempty"`

	// Expect checks the outcome of a dispatch or await step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// DispatchStep submits one update. ID names the returned handle.
type DispatchStep struct {
	ID       string         `yaml:"id"`
	Table    string         `yaml:"table"`
	Position int            `yaml:"position,omitempty"`
	Set      map[string]any `yaml:"set"`
	Where    map[string]any `yaml:"where,omitempty"`

	// Sync refuses deferral.
	Sync bool `yaml:"sync,omitempty"`
}

// AwaitStep waits on a dispatched handle.
type AwaitStep struct {
	ID string `yaml:"id"`

	// Timeout bounds the wait. Omitted means the update must already have
	// run; "0s" polls.
	Timeout string `yaml:"timeout,omitempty"`
}

// Expect is the expected result of a step. Unset fields are not checked.
type Expect struct {
	// State is pending, completed, failed or timed_out.
	State string `yaml:"state,omitempty"`

	// Error is the expected runtime error code (e.g. BUSY).
	Error string `yaml:"error,omitempty"`

	Rows *int64 `yaml:"rows,omitempty"`
	Done *bool  `yaml:"done,omitempty"`
}

// Assertion validates the state after all steps.
type Assertion struct {
	Type string `yaml:"type"`

	// Table is used by final_state and applied_order.
	Table string `yaml:"table,omitempty"`

	// Where and Expect are used by final_state.
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// IDs and Modes are used by applied_order.
	IDs   []string `yaml:"ids,omitempty"`
	Modes []string `yaml:"modes,omitempty"`

	// ID and State are used by handle_state.
	ID    string `yaml:"id,omitempty"`
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState   = "final_state"
	AssertAppliedOrder = "applied_order"
	AssertHandleState  = "handle_state"
)

var validStates = map[string]bool{
	"pending":   true,
	"completed": true,
	"failed":    true,
	"timed_out": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Tables) == 0 {
		return fmt.Errorf("tables list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	switch s.DefectPolicy {
	case "", "fallback", "abort":
	default:
		return fmt.Errorf("defect_policy %q: must be fallback or abort", s.DefectPolicy)
	}

	tables := make(map[string]bool)
	for i, t := range s.Tables {
		if !store.ValidIdentifier(t.Name) {
			return fmt.Errorf("tables[%d]: invalid name %q", i, t.Name)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("tables[%d]: columns are required", i)
		}
		tables[t.Name] = true
	}

	handles := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, handles); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, handles); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, handles map[string]bool) error {
	n := 0
	for _, set := range []bool{step.Hold != "", step.Release != "", step.Drain != "", step.Dispatch != nil, step.Await != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one of hold, release, drain, dispatch, await is required", i)
	}

	if step.Expect != nil {
		if step.Dispatch == nil && step.Await == nil {
			return fmt.Errorf("steps[%d]: expect is only valid on dispatch and await", i)
		}
		if step.Expect.State != "" && !validStates[step.Expect.State] {
			return fmt.Errorf("steps[%d].expect: unknown state %q", i, step.Expect.State)
		}
	}

	switch {
	case step.Dispatch != nil:
		d := step.Dispatch
		if d.ID == "" {
			return fmt.Errorf("steps[%d].dispatch: id is required", i)
		}
		if handles[d.ID] {
			return fmt.Errorf("steps[%d].dispatch: duplicate id %q", i, d.ID)
		}
		handles[d.ID] = true
	case step.Await != nil:
		if !handles[step.Await.ID] {
			return fmt.Errorf("steps[%d].await: unknown id %q", i, step.Await.ID)
		}
		if step.Await.Timeout != "" {
			if _, err := time.ParseDuration(step.Await.Timeout); err != nil {
				return fmt.Errorf("steps[%d].await: timeout: %w", i, err)
			}
		}
	}
	return nil
}

func validateAssertion(i int, a Assertion, handles map[string]bool) error {
	switch a.Type {
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: final_state requires table", i)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: final_state requires expect", i)
		}
	case AssertAppliedOrder:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: applied_order requires table", i)
		}
		if len(a.Modes) > 0 && len(a.Modes) != len(a.IDs) {
			return fmt.Errorf("assertions[%d]: applied_order modes must match ids", i)
		}
		for _, id := range a.IDs {
			if !handles[id] {
				return fmt.Errorf("assertions[%d]: unknown id %q", i, id)
			}
		}
	case AssertHandleState:
		if !handles[a.ID] {
			return fmt.Errorf("assertions[%d]: unknown id %q", i, a.ID)
		}
		if !validStates[a.State] {
			return fmt.Errorf("assertions[%d]: unknown state %q", i, a.State)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
	}
	return nil
}
