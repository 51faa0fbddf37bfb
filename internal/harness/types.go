package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step  int    `json:"step"`
	Type  string `json:"type"` // hold, release, drain, dispatch, await
	Table string `json:"table,omitempty"`
	ID    string `json:"id,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	// Mode is inline or deferred for a successful dispatch.
	Mode  string `json:"mode,omitempty"`
	State string `json:"state,omitempty"`
	Rows  *int64 `json:"rows,omitempty"`
	Error string `json:"error,omitempty"`

	// Count is how many queued updates a drain or release ran.
	Count *int `json:"count,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// State holds every table's rows after the last step.
	State map[string][]map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
