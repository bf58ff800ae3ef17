package engine

import "sync/atomic"

// Clock is a monotonic logical clock.
//
// Every node invocation is stamped with a strictly increasing seq number
// from this clock, so invocation order is explicit and reproducible without
// consulting wall-clock time.
//
// Clock is safe for concurrent use. In practice only the run loop calls
// Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to continue numbering across Apps that share a store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
