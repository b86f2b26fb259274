// Package accumulator implements the producer's batching buffer: a bounded
// FIFO of messages with a separately tracked count, matching the
// MessageAccumulator described in spec §3/§4.2. It generalizes the
// teacher's use of a buffered Go channel as a single-producer/
// single-consumer queue (see core/manage.ManagedConsumer's msg channel) to
// the producer's accumulate-then-drain batching role.
package accumulator

import (
	"context"
	"sync/atomic"

	"github.com/pepper-iot/rabbitmq-streams-go/client"
)

// Accumulator is a bounded FIFO of messages with capacity equal to the
// producer's batch size. Add is safe for any number of concurrent callers;
// Get assumes a single drainer at a time (the batch-send task), matching
// spec §3's "single producer role, single consumer role".
type Accumulator struct {
	capacity int
	queue    chan client.Message
	count    atomic.Int32
}

// New returns an Accumulator with the given capacity (the producer's
// batch_size). capacity must be at least 1.
func New(capacity int) *Accumulator {
	return &Accumulator{
		capacity: capacity,
		queue:    make(chan client.Message, capacity),
	}
}

// Add blocks until msg can be enqueued (i.e. until the accumulator is below
// capacity) or ctx is done. It returns full=true when, after this insert,
// the buffered count equals capacity — the signal spec §4.2 uses to
// trigger an immediate inline batch_send.
func (a *Accumulator) Add(ctx context.Context, msg client.Message) (full bool, err error) {
	select {
	case a.queue <- msg:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	n := a.count.Add(1)
	return int(n) == a.capacity, nil
}

// Get is non-blocking: it returns ok=false immediately if the accumulator
// is empty, never waiting for a message to arrive.
func (a *Accumulator) Get() (msg client.Message, ok bool) {
	select {
	case msg = <-a.queue:
		a.count.Add(-1)
		return msg, true
	default:
		return client.Message{}, false
	}
}

// Count returns the number of messages currently buffered. It is always
// <= capacity (spec §3 invariant).
func (a *Accumulator) Count() int {
	return int(a.count.Load())
}

// Capacity returns the accumulator's fixed batch_size.
func (a *Accumulator) Capacity() int {
	return a.capacity
}
