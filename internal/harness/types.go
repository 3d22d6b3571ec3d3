package harness

import "github.com/roach88/agentregistry/internal/ir"

// TraceEvent records one executed step.
//
// Seq is zero for views and for steps the host rejected, since neither
// produces a receipt.
type TraceEvent struct {
	Type      string           `json:"type"`
	Seq       int64            `json:"seq,omitempty"`
	Caller    ir.AccountID     `json:"caller,omitempty"`
	Method    string           `json:"method"`
	Args      ir.Args          `json:"args,omitempty"`
	Status    ir.ReceiptStatus `json:"status,omitempty"`
	Error     string           `json:"error,omitempty"`
	HostError string           `json:"host_error,omitempty"`
	Logs      []string         `json:"logs,omitempty"`
	Result    *string          `json:"result,omitempty"`
	Absent    bool             `json:"absent,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns every log line in the trace, in order.
func (r *Result) Events() []string {
	var lines []string
	for _, ev := range r.Trace {
		lines = append(lines, ev.Logs...)
	}
	return lines
}
