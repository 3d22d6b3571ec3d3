package ledger

import "sync/atomic"

// Clock stamps calls with strictly increasing sequence numbers.
type Clock interface {
	Next() int64
	Current() int64
	// Advance moves the clock forward to seq if it is behind. It never
	// moves the clock back.
	Advance(seq int64)
}

// LogicalClock is a monotonic logical clock for receipt ordering.
// Ordering never depends on wall time, so replay yields identical order.
//
// Thread-safety: LogicalClock is safe for concurrent use (atomic operations),
// though the Ledger's mutex means only one goroutine calls Next at a time.
type LogicalClock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *LogicalClock {
	return &LogicalClock{}
}

// NewClockAt creates a clock resuming after start.
// Used to continue from the last receipt in an existing store.
func NewClockAt(start int64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *LogicalClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}

// Advance moves the clock forward to seq if it is behind.
func (c *LogicalClock) Advance(seq int64) {
	for {
		cur := c.seq.Load()
		if cur >= seq || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
