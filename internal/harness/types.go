package harness

// Trace event types.
const (
	EventStep = "step" // a scripted action and its outcome
	EventCall = "call" // a backend call made while the step ran
)

// TraceEvent is one line of a scenario trace.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Type    string `json:"type"`
	Action  string `json:"action"`            // step action or backend method
	Detail  string `json:"detail,omitempty"`  // call subject
	Outcome string `json:"outcome"`           // "ok", an error label, a stop reason or a load source
	Pending int    `json:"pending,omitempty"` // queue length after a step
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace records a step outcome.
func (r *Result) AddStepTrace(action, outcome string, pending int, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     seq,
		Type:    EventStep,
		Action:  action,
		Outcome: outcome,
		Pending: pending,
	})
}

// AddCallTrace records a backend call.
func (r *Result) AddCallTrace(method, detail, outcome string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     seq,
		Type:    EventCall,
		Action:  method,
		Detail:  detail,
		Outcome: outcome,
	})
}

// Calls returns the call events in order.
func (r *Result) Calls() []TraceEvent {
	var calls []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventCall {
			calls = append(calls, e)
		}
	}
	return calls
}
