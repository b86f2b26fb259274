// Package consumer implements the consumer core described in spec §4.3:
// replica-redirecting bootstrap, the subscribe handshake, and the
// credit-flow-controlled delivery sequence. It generalizes
// core/manage.ManagedConsumer's Receive/ReceiveAsync credit bookkeeping to
// RabbitMQ Streams' subscribe/Deliver/Credit commands, while trading its
// sync.RWMutex-guarded waitc rendezvous channel for a plain closed-channel
// wakeup — Go's channel close already broadcasts to every blocked
// receiver, so no separate AtomicWaker equivalent is needed.
package consumer

import (
	"context"
	cryptorand "crypto/rand"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/pepper-iot/rabbitmq-streams-go/client"
	"github.com/pepper-iot/rabbitmq-streams-go/environment"
	"github.com/pepper-iot/rabbitmq-streams-go/metrics"
	"github.com/pepper-iot/rabbitmq-streams-go/pkg/log"
	"github.com/pepper-iot/rabbitmq-streams-go/streamerr"
)

// subscriptionID is fixed at 1, mirroring producer's fixed publisher id:
// one connection per consumer, so there is only ever one subscription on
// it.
const subscriptionID uint8 = 1

// defaultQueueSize bounds the delivery channel, per spec §3's unchanged
// "capacity 10000" invariant. The scenario S6 test runs a 20001-message
// chunk through exactly this default, with a reader draining concurrently.
// Overridable via
// Builder.QueueSize.
const defaultQueueSize = 10000

// Builder is the ConsumerBuilder of spec §6.
type Builder struct {
	env           *environment.Environment
	offset        client.OffsetSpecification
	initialCredit uint16
	properties    map[string]string
	queueSize     int
	log           *log.Logger
}

// NewBuilder returns a Builder over env, defaulting to OffsetNext, an
// initial credit grant of 1, and a 10000-entry delivery queue.
func NewBuilder(env *environment.Environment) Builder {
	return Builder{
		env:           env,
		offset:        client.OffsetNext(),
		initialCredit: 1,
		queueSize:     defaultQueueSize,
		log:           log.Nop(),
	}
}

// Offset sets the subscribe command's starting position.
func (b Builder) Offset(spec client.OffsetSpecification) Builder {
	b.offset = spec
	return b
}

// InitialCredit sets the credit granted at subscribe time.
func (b Builder) InitialCredit(n uint16) Builder {
	b.initialCredit = n
	return b
}

// Properties sets the subscribe command's opaque property map.
func (b Builder) Properties(p map[string]string) Builder {
	b.properties = p
	return b
}

// QueueSize sets the delivery channel's capacity.
func (b Builder) QueueSize(n int) Builder {
	b.queueSize = n
	return b
}

// WithLogger attaches a logger used for the ambient Debugf/Warnf call
// sites throughout the consumer's lifetime.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.log = l
	return b
}

// Build bootstraps a Consumer against stream: it looks up metadata against
// the environment's configured node, then — if metadata lists any
// replicas — opens a second connection to one chosen uniformly at random,
// to spread read load (spec §4.1). A single-node cluster with no replicas
// keeps the bootstrap connection.
func (b Builder) Build(ctx context.Context, stream string) (*Consumer, error) {
	bootstrap, err := b.env.CreateClient(ctx)
	if err != nil {
		return nil, err
	}

	metas, err := bootstrap.Metadata(ctx, []string{stream})
	if err != nil {
		_ = bootstrap.Close(ctx)
		return nil, err
	}

	meta, ok := metas[stream]
	if !ok {
		_ = bootstrap.Close(ctx)
		return nil, &streamerr.StreamDoesNotExist{Stream: stream}
	}

	target := bootstrap
	if len(meta.Replicas) > 0 {
		idx, err := randomIndex(len(meta.Replicas))
		if err != nil {
			_ = bootstrap.Close(ctx)
			return nil, streamerr.Wrap(err, "choosing a replica")
		}
		replica := meta.Replicas[idx]
		b.log.Debugf("connecting to replica %s:%d of stream %q", replica.Host, replica.Port, stream)

		leader, err := b.env.CreateClientAt(ctx, replica.Host, replica.Port)
		if err != nil {
			_ = bootstrap.Close(ctx)
			return nil, err
		}
		_ = bootstrap.Close(ctx)
		target = leader
	}

	metricsCollector := b.env.Options.Metrics
	if metricsCollector == nil {
		metricsCollector = metrics.Nop{}
	}

	c := &Consumer{
		client:  target,
		stream:  stream,
		queue:   make(chan deliveryResult, b.queueSize),
		closeCh: make(chan struct{}),
		metrics: metricsCollector,
		log:     b.log,
	}
	target.SetHandler(&deliverHandler{consumer: c})

	declared, status, err := target.Subscribe(ctx, subscriptionID, stream, b.offset, b.initialCredit, b.properties)
	if err != nil {
		_ = target.Close(ctx)
		return nil, err
	}
	if !declared {
		_ = target.Close(ctx)
		return nil, &streamerr.Create{Stream: stream, Status: status}
	}

	return c, nil
}

// randomIndex picks a uniform random index in [0,n) using a
// cryptographically seeded source, mirroring the Rust source's OsRng —
// the spec calls for "a cryptographically-seeded RNG", not merely a
// statistically uniform one.
func randomIndex(n int) (int, error) {
	v, err := cryptorand.Int(cryptorand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// deliveryResult is one entry in a Consumer's delivery queue: either a
// successfully decoded Delivery, or a transport/codec error observed
// inline with deliveries (spec §4.3).
type deliveryResult struct {
	delivery client.Delivery
	err      error
}

// Consumer is the lazy delivery sequence of spec §3/§4.3. Next yields
// entries in server offset order; after Handle().Close() (or the
// underlying transport going away), Next drains whatever is already
// buffered and then returns ErrEndOfSequence.
type Consumer struct {
	client  client.Client
	stream  string
	queue   chan deliveryResult

	closed    atomic.Bool
	closeOnce sync.Once
	closeCh   chan struct{}

	metrics metrics.Collector
	log     *log.Logger
}

// IsClosed reports whether the consumer has closed, either via its handle
// or because the underlying transport went away.
func (c *Consumer) IsClosed() bool {
	return c.closed.Load()
}

// Next blocks until a delivery (or inline error) is available, the
// consumer closes, or ctx is done — in that priority order: anything
// already buffered is always returned before end-of-sequence is reported,
// so a caller that was behind when Close happened still sees every
// message that made it into the queue.
func (c *Consumer) Next(ctx context.Context) (client.Delivery, error) {
	select {
	case res := <-c.queue:
		return res.delivery, res.err
	default:
	}

	select {
	case res := <-c.queue:
		return res.delivery, res.err
	case <-c.closeCh:
		select {
		case res := <-c.queue:
			return res.delivery, res.err
		default:
			return client.Delivery{}, streamerr.ErrEndOfSequence
		}
	case <-ctx.Done():
		return client.Delivery{}, ctx.Err()
	}
}

// Handle returns a ConsumerHandle that can close the consumer from a
// goroutine other than the one calling Next — the Rust source's
// Consumer/ConsumerHandle split.
func (c *Consumer) Handle() *Handle {
	return &Handle{consumer: c}
}

// wake closes closeCh exactly once, unblocking every Next call parked on
// it — the broadcast a Rust AtomicWaker.wake() performs, for free, as a
// side effect of Go's channel-close semantics.
func (c *Consumer) wake() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// markTransportClosed is invoked by deliverHandler when the connection
// goes away out from under the consumer (spec §9 open question 3): it
// marks the consumer closed and wakes any parked Next, instead of the
// Rust source's commented-out no-op.
func (c *Consumer) markTransportClosed() {
	c.closed.Store(true)
	c.wake()
}

// Handle is the ConsumerHandle of spec §6: a separate close capability for
// a Consumer being iterated elsewhere.
type Handle struct {
	consumer *Consumer
}

// Close is a one-shot false→true transition. On success it unsubscribes
// and closes the underlying connection; a second call returns
// AlreadyClosed.
func (h *Handle) Close(ctx context.Context) error {
	c := h.consumer
	if !c.closed.CompareAndSwap(false, true) {
		return streamerr.ErrAlreadyClosed
	}
	c.wake()

	ok, status, err := c.client.Unsubscribe(ctx, subscriptionID)
	if err != nil {
		_ = c.client.Close(ctx)
		return err
	}
	if !ok {
		_ = c.client.Close(ctx)
		return &streamerr.Close{Stream: c.stream, Status: status}
	}

	return c.client.Close(ctx)
}

// deliverHandler is the ConsumerMessageHandler of spec §4.3: the single
// MessageHandler installed on a consumer's connection.
type deliverHandler struct {
	consumer *Consumer
}

func (h *deliverHandler) HandleMessage(ctx context.Context, result client.MessageResult) error {
	c := h.consumer

	switch {
	case result.Closed:
		c.markTransportClosed()

	case result.Err != nil:
		select {
		case c.queue <- deliveryResult{err: &streamerr.ConsumerDelivery{Cause: result.Err}}:
		case <-c.closeCh:
		}

	case result.Deliver != nil:
		batch := result.Deliver
		for i, msg := range batch.Messages {
			delivery := client.Delivery{
				SubscriptionID: batch.SubscriptionID,
				Message:        msg,
				Offset:         batch.ChunkFirstOffset + uint64(i),
			}
			select {
			case c.queue <- deliveryResult{delivery: delivery}:
			case <-c.closeCh:
				return nil
			}
		}

		c.metrics.RecordConsume(c.stream, len(batch.Messages))

		// Credit is requested only after every message in the chunk has
		// been enqueued, so a slow downstream reader's back-pressure on
		// the bounded queue propagates to back-pressure on the server
		// (spec §4.3/§5).
		if err := c.client.Credit(ctx, subscriptionID, 1); err != nil {
			c.log.Warnf("credit request failed for stream %q: %v", c.stream, err)
		}
	}

	return nil
}
