package client

// Message is a single stream message as the core sees it. The wire
// encoding of Body and ApplicationProperties is owned by the (out-of-scope)
// codec; the core only needs to read/write PublishingID.
type Message struct {
	// PublishingID is nil until the producer assigns one (spec §4.2): a
	// message constructed by the caller with a non-nil PublishingID is
	// assumed to carry a user-assigned id for dedup purposes and is used
	// verbatim instead of being assigned the next sequence value.
	PublishingID *uint64

	Body                  []byte
	ApplicationProperties map[string]string
}

// SetPublishingID assigns id, overwriting any previously set value — used
// by the producer once it has decided on the id to use for this message.
func (m *Message) SetPublishingID(id uint64) {
	m.PublishingID = &id
}

// Delivery is one message delivered to a Consumer, with its stream offset
// (spec §3): the offset of the k-th message in a chunk equals
// chunk_first_offset + k.
type Delivery struct {
	SubscriptionID uint8
	Message        Message
	Offset         uint64
}

// OffsetType distinguishes the kinds of OffsetSpecification the subscribe
// command accepts. Exact semantics (timestamp resolution, etc.) are owned
// by the protocol layer; the core only forwards the value.
type OffsetType int

const (
	OffsetTypeFirst OffsetType = iota
	OffsetTypeLast
	OffsetTypeNext
	OffsetTypeOffset
	OffsetTypeTimestamp
)

// OffsetSpecification is opaque to the core (spec §4.3): it is forwarded to
// the subscribe command unexamined. Offset/Timestamp are only meaningful
// for the matching OffsetType.
type OffsetSpecification struct {
	Type      OffsetType
	Offset    uint64
	Timestamp int64
}

// OffsetFirst subscribes starting from the first available message.
func OffsetFirst() OffsetSpecification { return OffsetSpecification{Type: OffsetTypeFirst} }

// OffsetLast subscribes starting from the last available message.
func OffsetLast() OffsetSpecification { return OffsetSpecification{Type: OffsetTypeLast} }

// OffsetNext subscribes starting from the next message published after
// subscribe.
func OffsetNext() OffsetSpecification { return OffsetSpecification{Type: OffsetTypeNext} }

// OffsetAt subscribes starting from an exact offset.
func OffsetAt(offset uint64) OffsetSpecification {
	return OffsetSpecification{Type: OffsetTypeOffset, Offset: offset}
}

// OffsetAtTimestamp subscribes starting from the first message at or after
// a Unix timestamp (milliseconds).
func OffsetAtTimestamp(unixMillis int64) OffsetSpecification {
	return OffsetSpecification{Type: OffsetTypeTimestamp, Timestamp: unixMillis}
}
