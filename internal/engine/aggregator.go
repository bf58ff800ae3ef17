package engine

import (
	"sync"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Aggregator collects terminal results: the audits of nodes that have no
// output join, and of results a Switch declined to route.
//
// Nodes are listed in the order they first aggregated; audits per node in
// arrival order. Aggregator is safe for concurrent use, so results can be
// read while Run executes on another goroutine.
type Aggregator struct {
	mu     sync.Mutex
	order  []*Node
	audits map[*Node][]*audit.Audit
	all    []*audit.Audit
}

func newAggregator() *Aggregator {
	return &Aggregator{audits: make(map[*Node][]*audit.Audit)}
}

func (g *Aggregator) add(node *Node, a *audit.Audit) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.audits[node]; !ok {
		g.order = append(g.order, node)
	}
	g.audits[node] = append(g.audits[node], a)
	g.all = append(g.all, a)
}

// Nodes returns the nodes with aggregated results.
func (g *Aggregator) Nodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Node, len(g.order))
	copy(out, g.order)
	return out
}

// Audits returns the audits aggregated for node.
func (g *Aggregator) Audits(node *Node) []*audit.Audit {
	g.mu.Lock()
	defer g.mu.Unlock()

	src := g.audits[node]
	out := make([]*audit.Audit, len(src))
	copy(out, src)
	return out
}

// Values returns the values aggregated for node.
func (g *Aggregator) Values(node *Node) []any {
	return audit.Values(g.Audits(node))
}

// All returns every aggregated audit in arrival order.
func (g *Aggregator) All() []*audit.Audit {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*audit.Audit, len(g.all))
	copy(out, g.all)
	return out
}

// Len returns the number of aggregated audits.
func (g *Aggregator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.all)
}

// Clear drops every aggregated result.
func (g *Aggregator) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.order = nil
	g.audits = make(map[*Node][]*audit.Audit)
	g.all = nil
}
