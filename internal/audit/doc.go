// Package audit implements the provenance records attached to every value
// that flows through a workflow.
//
// An Audit is an immutable (key, value, sources) triple. Roots are created
// when a value is enqueued from outside the graph; every node invocation
// produces a new Audit whose sources are the audits of its inputs. Together
// they form an append-only DAG that can be walked back to its roots.
//
// Two read-side algorithms are provided:
//
//   - Trail reconstructs the ancestry of one audit. A single-parent chain is
//     a flat list ending in the audit; a merge point nests the trails of all
//     of its sources in one group ahead of the merging audit.
//   - Dump renders one or more audits and their ancestors as an ASCII tree,
//     one "o-[key] value" line per unique audit, with lane glyphs linking
//     forks and merges back to the lines they descend from.
//
// Both are deterministic for a given DAG.
package audit
