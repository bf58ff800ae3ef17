package harness

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// TraceEvent is one entry in the invocation trace: an invocation with its
// arguments, or the completion of one with its result or error.
type TraceEvent struct {
	Type   string `json:"type"` // "invocation" or "completion"
	Node   string `json:"node"`
	Args   []any  `json:"args,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Seq    int64  `json:"seq"`
}

// NodeResult is a value that reached the aggregator.
type NodeResult struct {
	Node  string `json:"node"`
	Value any    `json:"value"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if the run outcome and every assertion matched.
	Pass bool `json:"pass"`

	// RunID is the id the run was recorded under.
	RunID string `json:"run_id"`

	// Trace holds invocations and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Results are the aggregated results, grouped by node in the order the
	// nodes first aggregated.
	Results []NodeResult `json:"results"`

	// Dump is the audit dump of the aggregated results.
	Dump string `json:"dump"`

	// RunError is the error Run returned, if any.
	RunError string `json:"run_error,omitempty"`

	// ErrorKind categorises RunError (see engine.ErrorKind).
	ErrorKind string `json:"error_kind,omitempty"`

	// Errors contains failed expectation messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:    true,
		RunID:   runID,
		Trace:   []TraceEvent{},
		Results: []NodeResult{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(node string, args []any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: EventInvocation,
		Node: node,
		Args: args,
		Seq:  seq,
	})
}

// AddCompletionTrace adds a completion to the trace. errMsg is empty for
// a successful invocation.
func (r *Result) AddCompletionTrace(node string, result any, errMsg string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventCompletion,
		Node:   node,
		Result: result,
		Error:  errMsg,
		Seq:    seq,
	})
}

// Values returns the aggregated values of node, in arrival order.
func (r *Result) Values(node string) []any {
	var out []any
	for _, nr := range r.Results {
		if nr.Node == node {
			out = append(out, nr.Value)
		}
	}
	return out
}
