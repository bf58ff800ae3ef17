package ir

// These are store-layer records, not part of the workflow contract. They
// live here so the CLI and harness can use them without importing the
// store.

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunStopped   = "stopped"
	RunFailed    = "failed"
)

// RunRecord describes one recorded run of a workflow.
type RunRecord struct {
	ID           string `json:"id"`
	WorkflowName string `json:"workflow_name"`
	WorkflowHash string `json:"workflow_hash"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Steps        int64  `json:"steps"`
	Seq          int64  `json:"seq"` // Insertion order across runs
}

// Audit key kinds as stored.
const (
	KeyRef   = "ref"
	KeyIndex = "index"
	KeyNone  = "none"
)

// AuditRecord is one stored audit.
type AuditRecord struct {
	ID        string   `json:"id"` // Content-addressed, see AuditID
	RunID     string   `json:"run_id"`
	Ordinal   int64    `json:"ordinal"` // Recording order within the run
	KeyKind   string   `json:"key_kind"`
	Key       string   `json:"key"`
	Seq       int64    `json:"seq,omitempty"`        // Clock stamp of the producing invocation
	ValueJSON string   `json:"value_json,omitempty"` // Canonical JSON, when the value has one
	ValueText string   `json:"value_text"`           // Display form
	Sources   []string `json:"sources"`              // Source audit IDs, in order
}

// AggregateRecord marks an audit collected by the aggregator.
type AggregateRecord struct {
	RunID    string `json:"run_id"`
	Node     string `json:"node"`
	AuditID  string `json:"audit_id"`
	Position int64  `json:"position"` // Arrival order within the run
}
