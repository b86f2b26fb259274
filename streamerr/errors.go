// Package streamerr implements the error taxonomy described by the core's
// design: bootstrap, create, publish, delivery, and close errors, plus a
// generic wrapped-cause error for unexpected channel/IO faults. Kinds are
// distinguished by type, following the same one-kind-per-failure-mode shape
// as the teacher's utils.NewUnexpectedErrMsg and the Rust source's
// ProducerCreateError/ProducerPublishError/ConsumerCreateError enums.
package streamerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for the idempotent-guard and local-state failure modes.
// These carry no payload, so callers compare with errors.Is.
var (
	// ErrClosed is returned by Producer.Send/SendWithCallback once the
	// producer's one-shot closed flag has flipped to true.
	ErrClosed = errors.New("producer is closed")

	// ErrAlreadyClosed is returned by a second Close() call on a producer
	// or consumer whose closed flag was already true.
	ErrAlreadyClosed = errors.New("already closed")

	// ErrEndOfSequence is returned by Consumer.Next once the consumer is
	// closed and its delivery queue has been fully drained.
	ErrEndOfSequence = errors.New("consumer delivery sequence ended")
)

// StreamDoesNotExist is returned by a builder's Build when the bootstrap
// metadata lookup does not include the requested stream.
type StreamDoesNotExist struct {
	Stream string
}

func (e *StreamDoesNotExist) Error() string {
	return fmt.Sprintf("stream %q does not exist", e.Stream)
}

// Create is returned when the server rejects a declare-publisher or
// subscribe request with a non-OK status. PublisherID is zero for the
// consumer's subscribe-path use of this error.
type Create struct {
	Stream      string
	PublisherID uint8
	Status      uint16
}

func (e *Create) Error() string {
	return fmt.Sprintf("create failed for stream %q (publisher %d): status %d", e.Stream, e.PublisherID, e.Status)
}

// Close is returned when the server rejects a delete-publisher or
// unsubscribe request with a non-OK status.
type Close struct {
	Stream string
	Status uint16
}

func (e *Close) Error() string {
	return fmt.Sprintf("close failed for stream %q: status %d", e.Stream, e.Status)
}

// ConsumerDelivery wraps a transport/codec error surfaced inline in the
// delivery stream, so a caller iterating deliveries observes it without a
// separate error channel.
type ConsumerDelivery struct {
	Cause error
}

func (e *ConsumerDelivery) Error() string {
	return fmt.Sprintf("consumer delivery error: %v", e.Cause)
}

func (e *ConsumerDelivery) Unwrap() error { return e.Cause }

// Generic wraps an unexpected channel/IO fault that can't be attributed to
// a structured create/publish/close/delivery failure — the catch-all the
// spec calls ClientError::GenericError.
type Generic struct {
	Cause error
}

func (e *Generic) Error() string {
	return fmt.Sprintf("generic client error: %v", e.Cause)
}

func (e *Generic) Unwrap() error { return e.Cause }

// Wrap builds a Generic error, attaching a stack trace to cause via
// github.com/pkg/errors the way the rest of this repository's error paths
// do when the cause didn't already carry one.
func Wrap(cause error, msg string) error {
	return &Generic{Cause: errors.Wrap(cause, msg)}
}
