package client

import "context"

// PublishError is one publishing id the server rejected in a PublishError
// frame (spec §6), with its server-reported status code.
type PublishError struct {
	PublishingID uint64
	Code         uint16
}

// ConfirmBatch is the decoded content of a PublishConfirm or PublishError
// frame, as the Client hands it to a MessageHandler.
type ConfirmBatch struct {
	Confirmed []uint64
	Errored   []PublishError
}

// DeliverBatch is the decoded content of a Deliver frame: a chunk of
// messages sharing a first offset (spec §3).
type DeliverBatch struct {
	SubscriptionID   uint8
	ChunkFirstOffset uint64
	Messages         []Message
}

// MessageResult is what the connection's read loop hands to whichever
// MessageHandler is installed. Exactly one of the three pointer fields is
// non-nil, except for Closed, which is true (and everything else nil) when
// the underlying transport went away — the analogue of the Rust source's
// `Option<Result<Response, Error>>`, where None meant "transport closed".
type MessageResult struct {
	Confirm *ConfirmBatch
	Deliver *DeliverBatch
	Err     error
	Closed  bool
}

// MessageHandler is the single-method capability the spec calls out in
// §4.4: a connection has exactly one handler installed at a time, and its
// HandleMessage is invoked serially on the transport's read task. It must
// not block that task for unbounded time — it may await bounded channel
// sends, which is exactly how the producer's confirm handler and the
// consumer's delivery handler behave.
type MessageHandler interface {
	HandleMessage(ctx context.Context, result MessageResult) error
}

// Client is the external, protocol-layer-implemented connection handle the
// core builds on (spec §4.1/§4.4). Its methods correspond 1:1 to the
// protocol commands named in spec §6; their wire encoding is entirely out
// of scope here.
type Client interface {
	// Metadata looks up leader/replica topology for the given streams.
	Metadata(ctx context.Context, streams []string) (map[string]StreamMetadata, error)

	// DeclarePublisher registers a publisher id (optionally named, for
	// QueryPublisherSequence-based sequence recovery) against a stream.
	// ok is false if the server rejected the request; status carries its
	// reported code in that case.
	DeclarePublisher(ctx context.Context, publisherID uint8, name *string, stream string) (ok bool, status uint16, err error)

	// DeletePublisher tears down a previously declared publisher.
	DeletePublisher(ctx context.Context, publisherID uint8) (ok bool, status uint16, err error)

	// QueryPublisherSequence returns the last sequence number the server
	// has durably recorded for (name, stream).
	QueryPublisherSequence(ctx context.Context, name, stream string) (uint64, error)

	// Publish sends a batch of messages under one publisher id. Each
	// Message must already carry a PublishingID.
	Publish(ctx context.Context, publisherID uint8, messages []Message) error

	// Subscribe opens a subscription at subscriptionID for stream, starting
	// at offsetSpec with an initial credit grant.
	Subscribe(ctx context.Context, subscriptionID uint8, stream string, offsetSpec OffsetSpecification, initialCredit uint16, properties map[string]string) (ok bool, status uint16, err error)

	// Unsubscribe tears down a previously opened subscription.
	Unsubscribe(ctx context.Context, subscriptionID uint8) (ok bool, status uint16, err error)

	// Credit grants additional chunk-delivery credit to a subscription.
	Credit(ctx context.Context, subscriptionID uint8, credit uint16) error

	// SetHandler installs the connection's single MessageHandler, replacing
	// any previously installed handler.
	SetHandler(h MessageHandler)

	// Close tears down the underlying connection.
	Close(ctx context.Context) error
}

// Dialer opens a new Client against opts — the protocol layer's
// constructor, injected into Environment so the core never imports a
// concrete transport.
type Dialer func(ctx context.Context, opts Options) (Client, error)
