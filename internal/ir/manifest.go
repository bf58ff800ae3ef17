package ir

import (
	"encoding/json"
	"fmt"
)

// Action is one step of a Manifest. The variants are AddNode, AddJoin and
// Enqueue.
type Action interface {
	action() // Sealed
	Op() string
}

// AddNode declares a node.
type AddNode struct {
	Node NodeSpec
	// Pos is the node's position in the workflow, used for default index
	// and name resolution.
	Pos int
}

// AddJoin declares a join between previously added nodes.
type AddJoin struct {
	Join JoinSpec
}

// Enqueue schedules an initial call of the node at Index with Args.
type Enqueue struct {
	Index int
	Args  Array
}

func (AddNode) action() {}
func (AddJoin) action() {}
func (Enqueue) action() {}

// Op names the action kind.
func (AddNode) Op() string { return "add_node" }

// Op names the action kind.
func (AddJoin) Op() string { return "add_join" }

// Op names the action kind.
func (Enqueue) Op() string { return "enqueue" }

// Manifest is an append-only list of build actions. Builders replay it in
// order, so every node is added before a join references it and every join
// is bound before the initial queue fills.
type Manifest struct {
	actions []Action
}

// Append adds actions to the end of the manifest.
func (m *Manifest) Append(actions ...Action) {
	m.actions = append(m.actions, actions...)
}

// Actions returns a copy of the recorded actions.
func (m *Manifest) Actions() []Action {
	out := make([]Action, len(m.actions))
	copy(out, m.actions)
	return out
}

// Len returns the number of recorded actions.
func (m *Manifest) Len() int { return len(m.actions) }

// ManifestOf records the actions that build w: every node, then every join,
// then one Enqueue per root node.
func ManifestOf(w *Workflow) *Manifest {
	m := &Manifest{}
	for pos, n := range w.Nodes {
		m.Append(AddNode{Node: n, Pos: pos})
	}
	for _, j := range w.Joins {
		m.Append(AddJoin{Join: j})
	}

	inputs := make(map[int]Array, len(w.Nodes))
	for pos, n := range w.Nodes {
		inputs[n.IndexOf(pos)] = n.Inputs
	}
	for _, idx := range w.Roots() {
		m.Append(Enqueue{Index: idx, Args: inputs[idx]})
	}
	return m
}

// MarshalJSON renders the manifest as a list of {"op": ..., ...} records,
// used by `tap validate --format json`.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, 0, len(m.actions))
	for _, a := range m.actions {
		rec := map[string]any{"op": a.Op()}
		switch x := a.(type) {
		case AddNode:
			rec["index"] = x.Node.IndexOf(x.Pos)
			rec["node"] = x.Node
		case AddJoin:
			rec["join"] = x.Join
		case Enqueue:
			rec["index"] = x.Index
			args := x.Args
			if args == nil {
				args = Array{}
			}
			rec["args"] = args
		default:
			return nil, fmt.Errorf("unknown action %T", a)
		}
		out = append(out, rec)
	}
	return json.Marshal(out)
}
