// Package producer implements the producer core described in spec §4.2:
// declare-publisher handshake, publishing-id assignment, the batching
// accumulator, confirm/error correlation, and close. It generalizes
// core/pub.Producer from the teacher repository — the MonotonicID-backed
// sequence counter, the Closedc-style one-shot close, and the
// TraceHook/AddTraceHook instrumentation hook all come from there — onto
// RabbitMQ Streams' declare-publisher/publish/publish-confirm commands
// instead of Pulsar's producer/send/send-receipt commands.
package producer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pepper-iot/rabbitmq-streams-go/accumulator"
	"github.com/pepper-iot/rabbitmq-streams-go/client"
	"github.com/pepper-iot/rabbitmq-streams-go/environment"
	"github.com/pepper-iot/rabbitmq-streams-go/internal/monoid"
	"github.com/pepper-iot/rabbitmq-streams-go/metrics"
	"github.com/pepper-iot/rabbitmq-streams-go/pkg/log"
	"github.com/pepper-iot/rabbitmq-streams-go/streamerr"
)

// producerID is fixed at 1: the core dedicates one connection per
// producer, so there is never more than one publisher id to hand out on
// it (spec §3 — "the core uses a fixed id of 1 per connection since one
// producer owns the connection").
const producerID uint8 = 1

// defaultBatchSize and defaultBatchDelay are used by NewBuilder when the
// caller doesn't override them.
const (
	defaultBatchSize  = 100
	defaultBatchDelay = 100 * time.Millisecond
)

// TraceHook is invoked synchronously before every message is handed to the
// accumulator, mirroring core/pub.Producer's TraceHook/AddTraceHook. It is
// pure instrumentation: its outcome never affects Send's result.
type TraceHook interface {
	OnSend(ctx context.Context, properties map[string]string, body []byte)
}

// Builder is the ProducerBuilder of spec §6: Name/BatchSize/BatchDelay
// configure a Producer before Build opens its connections.
type Builder struct {
	env        *environment.Environment
	name       *string
	batchSize  int
	batchDelay time.Duration
	trace      TraceHook
	log        *log.Logger
}

// NewBuilder returns a Builder over env with the default batch size (100)
// and batch delay (100ms).
func NewBuilder(env *environment.Environment) Builder {
	return Builder{
		env:        env,
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
		log:        log.Nop(),
	}
}

// Name sets the producer's name, enabling server-side sequence recovery
// via QueryPublisherSequence (spec §4.2).
func (b Builder) Name(name string) Builder {
	b.name = &name
	return b
}

// BatchSize sets the accumulator's capacity and the maximum messages
// drained per batch_send.
func (b Builder) BatchSize(n int) Builder {
	b.batchSize = n
	return b
}

// BatchDelay sets the batch ticker's period.
func (b Builder) BatchDelay(d time.Duration) Builder {
	b.batchDelay = d
	return b
}

// TraceHook installs a trace hook, invoked on every Send/SendWithCallback.
func (b Builder) TraceHook(h TraceHook) Builder {
	b.trace = h
	return b
}

// WithLogger attaches a logger used for the ambient Debugf/Warnf call
// sites throughout the producer's lifetime.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.log = l
	return b
}

// Build bootstraps a Producer against stream: it looks up metadata against
// the environment's configured node, then — if metadata names a leader —
// opens a second connection there, since only the leader accepts writes
// (spec §4.1). The bootstrap connection is closed once the leader
// connection is established.
func (b Builder) Build(ctx context.Context, stream string) (*Producer, error) {
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

	b.log.Debugf("connecting to leader %s:%d of stream %q", meta.Leader.Host, meta.Leader.Port, stream)
	leader, err := b.env.CreateClientAt(ctx, meta.Leader.Host, meta.Leader.Port)
	if err != nil {
		_ = bootstrap.Close(ctx)
		return nil, err
	}
	_ = bootstrap.Close(ctx)

	p := &Producer{
		client:      leader,
		stream:      stream,
		accumulator: accumulator.New(b.batchSize),
		batchSize:   b.batchSize,
		waiting:     make(map[uint64]*messageWaiter),
		metrics:     b.env.Options.Metrics,
		log:         b.log,
		trace:       b.trace,
	}
	if p.metrics == nil {
		p.metrics = metrics.Nop{}
	}

	leader.SetHandler(&confirmHandler{producer: p})

	declared, status, err := leader.DeclarePublisher(ctx, producerID, b.name, stream)
	if err != nil {
		_ = leader.Close(ctx)
		return nil, err
	}

	// The Rust source computes publish_sequence unconditionally, before
	// checking whether declare-publisher succeeded — see spec §9 open
	// question 1: the initial value is the server's last sequence
	// verbatim (not +1), which risks reusing a confirmed id. We keep that
	// behavior rather than silently "fixing" what the spec explicitly
	// flags as a decision for implementers to validate against server
	// semantics.
	if b.name != nil {
		seq, err := leader.QueryPublisherSequence(ctx, *b.name, stream)
		if err != nil {
			_ = leader.Close(ctx)
			return nil, err
		}
		p.publishSequence = monoid.NewCounter(seq)
	} else {
		p.publishSequence = monoid.NewCounter(0)
	}

	if !declared {
		_ = leader.Close(ctx)
		return nil, &streamerr.Create{Stream: stream, PublisherID: producerID, Status: status}
	}

	tickerCtx, cancel := context.WithCancel(context.Background())
	group, gCtx := errgroup.WithContext(tickerCtx)
	p.tickerCancel = cancel
	p.tickerGroup = group
	group.Go(func() error {
		p.runTicker(gCtx, b.batchDelay)
		return nil
	})

	return p, nil
}

// messageWaiter is the ProducerMessageWaiter of spec §3: one per in-flight
// message, holding a single-shot completion signal. The channel is
// buffered by 1 so a confirm/error arriving after the caller has stopped
// waiting (ctx canceled, Send's select already returned) never blocks the
// confirm handler — spec §5's "orphan waiter" tolerance.
type messageWaiter struct {
	stream      string
	publisherID uint8
	done        chan error
}

// Producer is the ProducerInternal of spec §3/§4.2.
type Producer struct {
	client      client.Client
	stream      string
	accumulator *accumulator.Accumulator
	batchSize   int

	publishSequence *monoid.Counter

	waitMu  sync.Mutex // protects waiting
	waiting map[uint64]*messageWaiter

	closed atomic.Bool

	tickerCancel context.CancelFunc
	tickerGroup  *errgroup.Group

	metrics metrics.Collector
	log     *log.Logger
	trace   TraceHook
}

// IsClosed reports whether Close has been called. The flag flips at the
// start of Close, before delete-publisher is issued, and stays set even if
// Close returns an error.
func (p *Producer) IsClosed() bool {
	return p.closed.Load()
}

// Send assigns a publishing id (spec §4.2: reused verbatim if msg already
// carries one, otherwise the next value of publish_sequence), enqueues the
// message, and blocks until the server confirms it or ctx is done.
func (p *Producer) Send(ctx context.Context, msg client.Message) (uint64, error) {
	id, done, err := p.internalSend(ctx, msg)
	if err != nil {
		return 0, err
	}

	select {
	case err := <-done:
		if err != nil {
			return 0, err
		}
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SendWithCallback is the fire-and-forget variant of Send: it returns once
// the message is enqueued, and cb is invoked later — on a background
// goroutine — with the confirm result.
func (p *Producer) SendWithCallback(ctx context.Context, msg client.Message, cb func(publishingID uint64, err error)) error {
	id, done, err := p.internalSend(ctx, msg)
	if err != nil {
		return err
	}

	go func() {
		select {
		case err := <-done:
			if err != nil {
				cb(0, err)
				return
			}
			cb(id, nil)
		case <-ctx.Done():
			cb(0, ctx.Err())
		}
	}()

	return nil
}

// internalSend assigns the publishing id, installs its waiter, enqueues
// the message, and triggers an inline batch_send if the enqueue filled the
// accumulator (spec §4.2's fullness-triggered flush).
func (p *Producer) internalSend(ctx context.Context, msg client.Message) (uint64, chan error, error) {
	if p.IsClosed() {
		return 0, nil, streamerr.ErrClosed
	}

	var publishingID uint64
	if msg.PublishingID != nil {
		publishingID = *msg.PublishingID
	} else {
		publishingID = p.publishSequence.Next()
	}
	msg.SetPublishingID(publishingID)

	done := make(chan error, 1)
	waiter := &messageWaiter{stream: p.stream, publisherID: producerID, done: done}

	p.waitMu.Lock()
	p.waiting[publishingID] = waiter
	p.waitMu.Unlock()

	if p.trace != nil {
		p.trace.OnSend(ctx, msg.ApplicationProperties, msg.Body)
	}
	p.metrics.RecordPublish(p.stream, 1)

	full, err := p.accumulator.Add(ctx, msg)
	if err != nil {
		p.waitMu.Lock()
		delete(p.waiting, publishingID)
		p.waitMu.Unlock()
		return 0, nil, err
	}

	if full {
		if err := p.batchSend(ctx); err != nil {
			return 0, nil, err
		}
	}

	return publishingID, done, nil
}

// batchSend drains up to batchSize messages from the accumulator and, if
// any were drained, issues a single Publish call — the batching algorithm
// of spec §4.2, shared by the periodic ticker and the fullness-triggered
// inline flush.
func (p *Producer) batchSend(ctx context.Context) error {
	messages := make([]client.Message, 0, p.batchSize)
	for len(messages) < p.batchSize {
		msg, ok := p.accumulator.Get()
		if !ok {
			break
		}
		messages = append(messages, msg)
	}

	if len(messages) == 0 {
		return nil
	}

	p.log.Debugf("sending batch of %d messages for stream %q", len(messages), p.stream)
	return p.client.Publish(ctx, producerID, messages)
}

// runTicker periodically flushes the accumulator until ctx is canceled —
// spec §9 open question 4's follow-through: the ticker's lifetime is tied
// to the producer's closed state via ctx, instead of running forever and
// erroring on every tick after close, as the Rust source does.
func (p *Producer) runTicker(ctx context.Context, delay time.Duration) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.batchSend(context.Background()); err != nil {
				p.log.Warnf("scheduled batch send failed for stream %q: %v", p.stream, err)
			}
		}
	}
}

// Close is a one-shot false→true transition (spec §4.2). On success it
// stops the batch ticker, fails every pending waiter (spec §9 open
// question 5's follow-through — the Rust source leaves them hanging), and
// issues delete-publisher.
func (p *Producer) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return streamerr.ErrAlreadyClosed
	}

	p.tickerCancel()
	_ = p.tickerGroup.Wait()

	p.waitMu.Lock()
	pending := p.waiting
	p.waiting = make(map[uint64]*messageWaiter)
	p.waitMu.Unlock()

	for _, w := range pending {
		select {
		case w.done <- streamerr.ErrClosed:
		default:
		}
	}

	ok, status, err := p.client.DeletePublisher(ctx, producerID)
	if err != nil {
		_ = p.client.Close(ctx)
		return err
	}
	if !ok {
		_ = p.client.Close(ctx)
		return &streamerr.Close{Stream: p.stream, Status: status}
	}

	return p.client.Close(ctx)
}

// resolveWaiter removes and signals the waiter for publishingID, if one is
// still registered. A miss means the id has no waiter — either a protocol
// violation (confirm for an id the core never assigned) or a waiter that
// Close already failed — and is logged and tolerated (spec §4.2/§9 open
// question 2), never a crash. A waiter whose caller already gave up (ctx
// canceled) is still registered and is resolved normally.
func (p *Producer) resolveWaiter(publishingID uint64, err error) {
	p.waitMu.Lock()
	w, ok := p.waiting[publishingID]
	if ok {
		delete(p.waiting, publishingID)
	}
	p.waitMu.Unlock()

	if !ok {
		p.log.Warnf("confirm/error for unknown publishing id %d on stream %q; ignoring", publishingID, p.stream)
		return
	}

	select {
	case w.done <- err:
	default:
		// done is buffered by 1 and each waiter is signalled at most once,
		// so the send above succeeds even when the caller already stopped
		// waiting (ctx canceled); this branch only keeps the handler from
		// ever blocking on a waiter's channel.
	}
}

// confirmHandler is the ProducerConfirmHandler of spec §4.2: the single
// MessageHandler installed on a producer's connection, routing
// PublishConfirm/PublishError frames to the waiting_confirmations map.
type confirmHandler struct {
	producer *Producer
}

func (h *confirmHandler) HandleMessage(ctx context.Context, result client.MessageResult) error {
	switch {
	case result.Closed:
		h.producer.log.Warnf("producer connection for stream %q closed by transport", h.producer.stream)

	case result.Err != nil:
		h.producer.log.Warnf("transport error on producer connection for stream %q: %v", h.producer.stream, result.Err)

	case result.Confirm != nil:
		for _, id := range result.Confirm.Confirmed {
			h.producer.resolveWaiter(id, nil)
		}
		if n := len(result.Confirm.Confirmed); n > 0 {
			h.producer.metrics.RecordPublishConfirm(h.producer.stream, n)
		}
		for _, pe := range result.Confirm.Errored {
			h.producer.resolveWaiter(pe.PublishingID, &streamerr.Create{
				Stream:      h.producer.stream,
				PublisherID: producerID,
				Status:      pe.Code,
			})
			h.producer.metrics.RecordPublishError(h.producer.stream, pe.Code)
		}

	default:
		// Any other frame kind (e.g. a stray Deliver on a producer
		// connection) is ignored, per spec §4.2.
	}

	return nil
}
