// Package harness runs workflow scenarios as executable tests.
//
// A scenario names a workflow, runs it on a fresh App with a fixed run id
// and records every audit into an in-memory store. The run outcome is then
// checked against the scenario's expectations and assertions, and a
// deterministic snapshot can be compared with a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: fanout
//	description: "split a sentence and upcase each word"
//	workflow: ../workflows/fanout.yaml   # or inline: {nodes: [...], joins: [...]}
//	run_id: run-fanout
//	enqueue:
//	  - node: words
//	    args: ["more words"]
//	expect:
//	  error: NodeError                   # omit when the run must succeed
//	  message: "boom"
//	assertions:
//	  - type: results
//	    node: all
//	    values: [[HELLO, BIG, WORLD]]
//	  - type: trail
//	    node: all
//	    keys: [[["0", words, "0", upcase]], gate2, all]
//	  - type: trace_order
//	    nodes: [words, upcase, all]
//	  - type: trace_count
//	    node: upcase
//	    count: 3
//	  - type: final_state
//	    table: runs
//	    where: { id: run-fanout }
//	    expect: { status: completed }
//
// # Assertion Types
//
//   - trace_contains: node invoked with the given args
//   - trace_order: nodes first invoked in the given order
//   - trace_count: node invoked exactly N times
//   - results: the aggregated values of a node
//   - trail: the trail keys of one aggregated result
//   - final_state: a row of a store table (runs, audits, audit_sources,
//     aggregates) matches expected column values
//
// # Golden Files
//
// Snapshot renders the trace and results as canonical JSON followed by the
// audit dump. RunWithGolden compares it with testdata/golden/<name>.golden
// through goldie; RunSuite and the test command keep golden files next to
// the scenario files instead.
package harness
