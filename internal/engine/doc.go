// Package engine implements the workflow scheduler and the join algebra.
//
// An App owns a FIFO queue of pending entries. Run dequeues them one at a
// time on a single goroutine, invokes the node, wraps the result in an
// audit whose sources are the input audits, and hands that audit to every
// join bound to the node's output. Each join decides when to fire and
// whether to invoke its outputs inline (stack mode) or queue them. Results
// of nodes with no output join land in the Aggregator.
//
// ARCHITECTURE:
//
// Single Run Loop:
// One run loop is active per App. Enq, Stop and Terminate may be called
// from any goroutine; they only touch the mutex-guarded queue and atomic
// flags. Node processes run on the loop goroutine, so joins need no
// node-level locking.
//
// Suspension Points:
// The loop suspends in exactly two places: at the top of each iteration,
// where stop and terminate requests are observed, and at explicit
// CheckTerminate calls inside a process. There is no preemption.
//
// Join Algebra:
//
//	Sequence   1 -> 1   dispatch every result
//	Fork       1 -> N   dispatch every result to each output
//	Merge      N -> 1   dispatch every arrival
//	SyncMerge  N -> 1   barrier: one result per input, then fire once
//	Switch     N -> M   route each result to the selected output
//	Gate       N -> M   collect until the queued flush entry is reached
//
// Queue Entries:
// EntryCall invokes a node. EntryFlush releases a Gate buffer and carries
// the buffer generation it was queued for, so a buffer already released by
// its limit is never released twice.
//
// Errors:
// Process failures, arity mismatches, switch routing and barrier
// violations are typed errors. They end Run with the failing entry
// consumed and the rest of the queue intact for inspection or resumption.
package engine
