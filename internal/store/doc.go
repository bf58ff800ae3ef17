// Package store provides SQLite-backed durable storage for run audits.
//
// The store is append-only:
//   - Runs: one row per App run id, with workflow name, hash and outcome
//   - Audits: every audit of a run, content-addressed (see ir.AuditID)
//   - Audit sources: the ordered source edges of each audit
//   - Aggregates: audits that reached the aggregator, in arrival order
//
// Ordering uses logical columns only (run seq, audit ordinal, aggregate
// position), never timestamps, so the same workflow reads back the same
// way every time. Audit values are stored as RFC 8785 canonical JSON when
// they have a JSON form, next to their display text.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Recorder plugs the store into an engine.App as an Observer; ReadRun
// rebuilds a recorded audit DAG for audit.Dump and audit.TrailOf.
package store
