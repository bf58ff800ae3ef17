package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// Scenario defines a workflow test: a workflow to run, the outcome to
// expect and assertions on the resulting trace, results and stored audits.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workflow is the path of a workflow document (.yaml, .json or .cue).
	// Relative paths are resolved against the scenario's base path.
	Workflow string `yaml:"workflow,omitempty"`

	// Inline is a workflow written into the scenario itself. Exactly one of
	// Workflow and Inline is required.
	Inline *ir.Workflow `yaml:"inline,omitempty"`

	// RunID is an optional fixed run id. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// MaxSteps overrides the workflow's step quota when non-zero.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Enqueue lists extra calls made after the workflow's own roots.
	Enqueue []EnqueueStep `yaml:"enqueue,omitempty"`

	// Expect describes the run outcome. Without it the run must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the trace, results and stored state.
	Assertions []Assertion `yaml:"assertions"`
}

// EnqueueStep enqueues a call of a node by name.
type EnqueueStep struct {
	Node string `yaml:"node"`
	Args []any  `yaml:"args"`
}

// ExpectClause specifies the expected run outcome.
type ExpectClause struct {
	// Error is the expected engine error kind (e.g. "NodeError"). Empty
	// means the run must succeed.
	Error string `yaml:"error,omitempty"`

	// Message must be contained in the error message when set.
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the trace, the results or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": node invoked with args
	// - "trace_order": nodes first invoked in order
	// - "trace_count": node invoked exactly Count times
	// - "results": aggregated values of node equal Values
	// - "trail": trail keys of the node's Index-th result equal Keys
	// - "final_state": query a store table and verify expected values
	Type string `yaml:"type"`

	// Node names the node (trace_contains, trace_count, results, trail).
	Node string `yaml:"node,omitempty"`

	// Args are the expected invocation arguments (trace_contains). Nil
	// matches any arguments.
	Args []any `yaml:"args,omitempty"`

	// Nodes is the expected invocation order (trace_order).
	Nodes []string `yaml:"nodes,omitempty"`

	// Count is the expected number of invocations (trace_count).
	Count int `yaml:"count,omitempty"`

	// Values are the expected aggregated values (results).
	Values []any `yaml:"values,omitempty"`

	// Index selects which result of Node the trail is built for (trail).
	Index int `yaml:"index,omitempty"`

	// Keys is the expected trail, as nested lists of key strings (trail).
	Keys []any `yaml:"keys,omitempty"`

	// Table is the store table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertResults       = "results"
	AssertTrail         = "trail"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. A relative workflow
// path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the workflow path relative to basePath.
//
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML, resolving the workflow path relative
// to basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Workflow != "" && !filepath.IsAbs(scenario.Workflow) && basePath != "" {
		scenario.Workflow = filepath.Join(basePath, scenario.Workflow)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Workflow == "" && s.Inline == nil:
		return fmt.Errorf("one of workflow or inline is required")
	case s.Workflow != "" && s.Inline != nil:
		return fmt.Errorf("workflow and inline are mutually exclusive")
	case s.Workflow != "":
		if _, err := os.Stat(s.Workflow); os.IsNotExist(err) {
			return fmt.Errorf("workflow file not found: %s", s.Workflow)
		}
	}

	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	for i, step := range s.Enqueue {
		if step.Node == "" {
			return fmt.Errorf("enqueue[%d]: node is required", i)
		}
	}

	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Nodes) == 0 {
			return fmt.Errorf("assertions[%d]: nodes list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertResults:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for results", index)
		}
	case AssertTrail:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for trail", index)
		}
		if a.Index < 0 {
			return fmt.Errorf("assertions[%d]: index must be non-negative for trail", index)
		}
		if len(a.Keys) == 0 {
			return fmt.Errorf("assertions[%d]: keys is required for trail", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
