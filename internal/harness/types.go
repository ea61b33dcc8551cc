package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	User   string `json:"user,omitempty"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	// Outcome is "ok" or the error code the step failed with.
	Outcome string `json:"outcome"`
}

// Outcome values that are not error codes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event with the next sequence number.
func (r *Result) AddTrace(user, action, target, outcome string) TraceEvent {
	ev := TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		User:    user,
		Action:  action,
		Target:  target,
		Outcome: outcome,
	}
	r.Trace = append(r.Trace, ev)
	return ev
}
