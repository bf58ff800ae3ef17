// Package compiler turns CUE workflow documents into ir.Workflow values and
// analyses the resulting join graph.
//
// CUE is evaluated through the Go SDK (cuelang.org/go), not the cue CLI.
// A document may hold the workflow at its root or under a "workflow"
// field, which lets authors keep schema definitions and defaults next to
// the graph:
//
//	#Upcase: {name?: string, process: "upcase", params: lang: *"en" | string}
//
//	workflow: {
//		name: "fanout"
//		nodes: [
//			{name: "words", process: "split", inputs: ["hello big world"]},
//			#Upcase & {name: "up"},
//			{name: "all", process: "identity"},
//		]
//		joins: [
//			{type: "sequence", inputs: [0], outputs: [1], options: iterate: true},
//			{type: "collect", inputs: [1], outputs: [2]},
//		]
//	}
//
// Compilation only checks shape and concreteness; structural rules are
// enforced by ir.Workflow.Validate and loops are reported as warnings by
// AnalyzeCycles.
package compiler
