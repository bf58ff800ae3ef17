package engine

import (
	"fmt"
	"sync"
)

// Node is a wrapped unit of work plus its output join bindings.
//
// Nodes are created once, at build time, with App.NewNode and live as long
// as their App. A node may have batch siblings (see NewSibling): siblings
// share every join bound without Unbatched, while Unbatched joins bind only
// the node they were declared on.
//
// Join bindings are expected to be made before Run starts. They are guarded
// by a lock so concurrent reads from the run loop stay safe.
type Node struct {
	app   *App
	name  string
	proc  Process
	batch *batch

	mu    sync.RWMutex
	input Join
}

// batch is the wiring shared between a node and its siblings.
type batch struct {
	mu       sync.RWMutex
	members  []*Node
	bindings []binding // in declaration order
}

// binding is an output join bound to a batch. An unbatched binding is
// restricted to its owner; shared bindings have a nil owner.
type binding struct {
	join  Join
	owner *Node
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// String implements fmt.Stringer.
func (n *Node) String() string { return n.name }

// Process returns the wrapped process.
func (n *Node) Process() Process { return n.proc }

// App returns the owning scheduler.
func (n *Node) App() *App { return n.app }

// Joins returns every join bound to the node's output in the order they
// were bound: the joins shared with its batch and its own unbatched joins.
func (n *Node) Joins() []Join {
	n.batch.mu.RLock()
	defer n.batch.mu.RUnlock()
	out := make([]Join, 0, len(n.batch.bindings))
	for _, b := range n.batch.bindings {
		if b.owner == nil || b.owner == n {
			out = append(out, b.join)
		}
	}
	return out
}

// InputJoin returns the join feeding this node, or nil.
func (n *Node) InputJoin() Join {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.input
}

// Batch returns the node and its siblings, originating node first.
func (n *Node) Batch() []*Node {
	n.batch.mu.RLock()
	defer n.batch.mu.RUnlock()
	out := make([]*Node, len(n.batch.members))
	copy(out, n.batch.members)
	return out
}

// NewSibling creates a batch sibling of n: a node with the same process
// that mirrors every join bound to n's batch, including joins bound after
// the sibling is created. Siblings are named "<name>.<i>" where i is the
// sibling's position in the batch.
func (n *Node) NewSibling() *Node {
	n.batch.mu.Lock()
	sib := &Node{
		app:   n.app,
		name:  fmt.Sprintf("%s.%d", n.batch.members[0].name, len(n.batch.members)),
		proc:  n.proc,
		batch: n.batch,
	}
	n.batch.members = append(n.batch.members, sib)
	n.batch.mu.Unlock()

	n.app.register(sib)
	return sib
}

// inBatchWith reports whether n and other share a batch.
func (n *Node) inBatchWith(other *Node) bool {
	return n.batch == other.batch
}

// bindOutput attaches j to the node's output. Unbatched joins bind only
// this node; all others bind the whole batch.
func (n *Node) bindOutput(j Join, unbatched bool) {
	b := binding{join: j}
	if unbatched {
		b.owner = n
	}
	n.batch.mu.Lock()
	n.batch.bindings = append(n.batch.bindings, b)
	n.batch.mu.Unlock()
}

func (n *Node) setInput(j Join) {
	n.mu.Lock()
	n.input = j
	n.mu.Unlock()
}
