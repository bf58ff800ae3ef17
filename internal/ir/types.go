package ir

// Workflow is the graph description handed to the builder: an ordered set
// of node specifications and the joins wiring them together.
//
// Nodes are addressed by Index. Every node whose index is not an output of
// any join is enqueued when the workflow starts, with its Inputs as
// arguments.
type Workflow struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	MaxSteps    int        `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	Nodes       []NodeSpec `json:"nodes" yaml:"nodes"`
	Joins       []JoinSpec `json:"joins,omitempty" yaml:"joins,omitempty"`
}

// NodeSpec describes one node.
type NodeSpec struct {
	// Index addresses the node from joins. When omitted the node's position
	// in the list is used.
	Index *int `json:"index,omitempty" yaml:"index,omitempty"`

	// Name is unique within the workflow. When omitted the node is named
	// after its process and index, e.g. "identity2".
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Process names a registered process factory.
	Process string `json:"process" yaml:"process"`

	// Params configure the process factory.
	Params Object `json:"params,omitempty" yaml:"params,omitempty"`

	// Inputs are the initial arguments for a node the workflow starts with.
	Inputs Array `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Batch is the number of batch siblings to create next to the node.
	Batch int `json:"batch,omitempty" yaml:"batch,omitempty"`
}

// JoinSpec describes one join: a type, the node indices on each side, and
// its modifiers.
type JoinSpec struct {
	Name    string        `json:"name,omitempty" yaml:"name,omitempty"`
	Type    string        `json:"type" yaml:"type"`
	Inputs  []int         `json:"inputs" yaml:"inputs"`
	Outputs []int         `json:"outputs" yaml:"outputs"`
	Options JoinOptions   `json:"options,omitempty" yaml:"options,omitempty"`
	Select  *SelectorSpec `json:"select,omitempty" yaml:"select,omitempty"`
}

// JoinOptions are the modifiers a join accepts. Splat is a pointer so the
// builder can tell "unset" from false: sync_merge splats by default.
type JoinOptions struct {
	Stack     bool  `json:"stack,omitempty" yaml:"stack,omitempty"`
	Iterate   bool  `json:"iterate,omitempty" yaml:"iterate,omitempty"`
	Splat     *bool `json:"splat,omitempty" yaml:"splat,omitempty"`
	Enq       bool  `json:"enq,omitempty" yaml:"enq,omitempty"`
	Unbatched bool  `json:"unbatched,omitempty" yaml:"unbatched,omitempty"`
	Limit     int   `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// SelectorSpec describes how a switch join picks its output.
//
//   - "index":  the value (or Field of an object value) is the output index
//   - "modulo": the integer value modulo the number of outputs
//   - "match":  the position of the first entry of Values equal to the value;
//     no match declines the selection
type SelectorSpec struct {
	Type   string `json:"type" yaml:"type"`
	Field  string `json:"field,omitempty" yaml:"field,omitempty"`
	Values Array  `json:"values,omitempty" yaml:"values,omitempty"`
}

// Selector types.
const (
	SelectIndex  = "index"
	SelectModulo = "modulo"
	SelectMatch  = "match"
)

// ValidSelectorTypes lists the selector types a switch accepts.
var ValidSelectorTypes = map[string]bool{
	SelectIndex:  true,
	SelectModulo: true,
	SelectMatch:  true,
}

// Join type names as written in workflow documents.
const (
	JoinSequence  = "sequence"
	JoinFork      = "fork"
	JoinMerge     = "merge"
	JoinSyncMerge = "sync_merge"
	JoinSwitch    = "switch"
	JoinGate      = "gate"
)

// joinTypeAliases maps accepted spellings to canonical join type names.
var joinTypeAliases = map[string]string{
	"sequence":   JoinSequence,
	"fork":       JoinFork,
	"merge":      JoinMerge,
	"sync_merge": JoinSyncMerge,
	"syncmerge":  JoinSyncMerge,
	"sync-merge": JoinSyncMerge,
	"switch":     JoinSwitch,
	"gate":       JoinGate,
	"collect":    JoinGate,
}

// CanonicalJoinType returns the canonical name of a join type spelling, or
// "" when the type is unknown.
func CanonicalJoinType(t string) string {
	return joinTypeAliases[t]
}

// IndexOf returns the effective index of the node at position pos.
func (n NodeSpec) IndexOf(pos int) int {
	if n.Index != nil {
		return *n.Index
	}
	return pos
}

// Roots returns the indices of nodes that are not an output of any join, in
// node order. These are enqueued when the workflow starts.
func (w *Workflow) Roots() []int {
	outputs := make(map[int]bool)
	for _, j := range w.Joins {
		for _, o := range j.Outputs {
			outputs[o] = true
		}
	}

	var roots []int
	for pos, n := range w.Nodes {
		idx := n.IndexOf(pos)
		if !outputs[idx] {
			roots = append(roots, idx)
		}
	}
	return roots
}
