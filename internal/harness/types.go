package harness

// TraceEvent is one audit line.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Step int    `json:"step"`
	Line string `json:"line"`
}

// State is the observable outcome of a scenario after its last step.
type State struct {
	Members   []string            `json:"members"`
	Links     []string            `json:"links"`
	Unlinks   []string            `json:"unlinks"`
	Persisted []string            `json:"persisted"`
	Errors    map[string][]string `json:"errors,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every expect
	// check matched.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State State `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an audit line recorded during step.
func (r *Result) AddTrace(step int, line string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:  int64(len(r.Trace) + 1),
		Step: step,
		Line: line,
	})
}

// AuditLines returns the trace lines in order.
func (r *Result) AuditLines() []string {
	out := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		out[i] = e.Line
	}
	return out
}
