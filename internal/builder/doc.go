// Package builder wires workflow documents onto an engine.App.
//
// A workflow is first recorded as an ir.Manifest, an append-only list of
// typed actions, and the manifest is then replayed: nodes are created from
// the process registry, joins are bound in declaration order, and every
// node that is not the output of a join is enqueued with its inputs.
package builder
