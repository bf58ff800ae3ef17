package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// CycleWarning represents a loop in a workflow's join graph.
//
// Cycles are warnings, not errors, because they may be intentional:
//   - a switch routing results back upstream until a condition holds
//   - a gate whose output re-enqueues its own inputs
//   - self-feeding nodes guarded by max_steps
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on the join graph of w.
//
// Every join contributes an edge from each of its inputs to each of its
// outputs. Strongly connected components are found with Tarjan's
// algorithm; each component with more than one node, or a node wired to
// itself, is reported. Nodes are visited in declaration order so the
// warnings are deterministic.
//
// A DAG (no cycles) returns an empty warning list. Joins referencing
// unknown indices are ignored; Validate reports them.
func AnalyzeCycles(w *ir.Workflow) []CycleWarning {
	if w == nil || len(w.Joins) == 0 {
		return []CycleWarning{}
	}

	graph, order := buildDependencyGraph(w)
	sccs := tarjanSCC(graph, order)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps node name -> names of the nodes it feeds.
type dependencyGraph map[string][]string

// buildDependencyGraph constructs the node graph of w, returning it with
// the node names in declaration order.
func buildDependencyGraph(w *ir.Workflow) (dependencyGraph, []string) {
	names := make(map[int]string, len(w.Nodes))
	order := make([]string, 0, len(w.Nodes))
	graph := make(dependencyGraph, len(w.Nodes))
	for pos, n := range w.Nodes {
		name := w.NodeName(pos)
		names[n.IndexOf(pos)] = name
		order = append(order, name)
		graph[name] = []string{}
	}

	for _, j := range w.Joins {
		for _, in := range j.Inputs {
			from, ok := names[in]
			if !ok {
				continue
			}
			for _, out := range j.Outputs {
				if to, ok := names[out]; ok {
					graph[from] = append(graph[from], to)
				}
			}
		}
	}
	return graph, order
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of node names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of an SCC: pop it off the stack
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// For self-loops, the path is [name, name]. For multi-node cycles, the path
// is a walk through the SCC starting from the earliest declared member.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("node feeds itself: %s -> %s", name, name),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("potential cycle detected: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Tarjan pops members in reverse discovery order, so the last member is
// where the path starts. A breadth-first search over edges inside the SCC
// finds the shortest route back to the start, which always exists in a
// strongly connected component.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[len(scc)-1]
	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, neighbor := range graph[current] {
			if !sccSet[neighbor] {
				continue
			}
			if neighbor == start {
				path := []string{start}
				for n := current; n != start; n = parent[n] {
					path = append(path, n)
				}
				path = append(path, start)
				slices.Reverse(path)
				return path
			}
			if _, seen := parent[neighbor]; !seen {
				parent[neighbor] = current
				queue = append(queue, neighbor)
			}
		}
	}

	// Unreachable for a real SCC; list the members instead.
	return append(slices.Clone(scc), start)
}
