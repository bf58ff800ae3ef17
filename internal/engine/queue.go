package engine

import (
	"sync"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Entry is a unit of pending work on the App queue.
//
// Entry is a closed sum type with two variants:
//   - EntryCall invokes a node with audited arguments.
//   - EntryFlush releases the buffer a Gate has accumulated.
type Entry interface {
	isEntry()
}

// EntryCall invokes Node with Args.
type EntryCall struct {
	Node *Node
	Args []*audit.Audit
}

// EntryFlush asks Gate to release its buffer. The flush only applies while
// the gate is still on Generation; a buffer that was already released (for
// example by reaching its limit) makes the entry a no-op.
type EntryFlush struct {
	Gate       *Gate
	Generation uint64
}

func (EntryCall) isEntry()  {}
func (EntryFlush) isEntry() {}

// entryQueue is a thread-safe FIFO queue of entries.
//
// The queue is unbounded so joins can enqueue arbitrarily many downstream
// calls without blocking the run loop that is feeding them.
//
// Enqueue may be called from any goroutine, including from inside a node
// process. Only the run loop dequeues.
//
// The signal channel lets Serve wait for work with a select alongside
// context cancellation.
type entryQueue struct {
	mu      sync.Mutex
	entries []Entry
	signal  chan struct{} // buffered, size 1
}

func newEntryQueue() *entryQueue {
	return &entryQueue{
		entries: make([]Entry, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an entry to the back of the queue and returns the new length.
func (q *entryQueue) Enqueue(e Entry) int {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	n := len(q.entries)
	q.mu.Unlock()

	q.notify()
	return n
}

// TryDequeue removes and returns the front entry without blocking.
// Returns (nil, false) if the queue is empty.
func (q *entryQueue) TryDequeue() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, false
	}

	e := q.entries[0]

	// Nil out the slot so the backing array does not pin consumed audits.
	q.entries[0] = nil

	if len(q.entries) == 1 {
		q.entries = q.entries[:0]
	} else {
		q.entries = q.entries[1:]
	}

	return e, true
}

// Wait returns a channel that signals when entries may be available.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *entryQueue) Wait() <-chan struct{} {
	return q.signal
}

// notify wakes a waiter without blocking. The buffer of 1 coalesces
// multiple signals.
func (q *entryQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the current queue length.
func (q *entryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of the pending entries, head first.
func (q *entryQueue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}
