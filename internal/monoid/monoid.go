// Package monoid provides a small monotonically increasing counter, used by
// the producer for publishing-id assignment. It generalizes the ReqID/SeqID pattern from
// core/pub.Producer in the teacher repository to a single reusable type.
package monoid

import "sync/atomic"

// Counter is a goroutine-safe, monotonically increasing uint64 counter.
// The zero value starts at zero and is ready to use.
type Counter struct {
	id uint64
}

// NewCounter returns a Counter whose first Next() call returns start.
func NewCounter(start uint64) *Counter {
	return &Counter{id: start}
}

// Next atomically returns the counter's current value, then increments it —
// fetch-and-increment, so the first call after NewCounter(start) returns
// start itself.
func (c *Counter) Next() uint64 {
	return atomic.AddUint64(&c.id, 1) - 1
}

// Load returns the counter's current value without modifying it.
func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.id)
}

// Store sets the counter to v.
func (c *Counter) Store(v uint64) {
	atomic.StoreUint64(&c.id, v)
}
