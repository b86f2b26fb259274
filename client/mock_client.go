package client

import (
	"context"
	"sync"
)

// MockClient is a programmable Client test double, in the spirit of
// core/frame.MockSender from the teacher repository: DeclarePublisher,
// QueryPublisherSequence, Publish, Unsubscribe, Credit, SetHandler and
// Close record their calls (Metadata, DeletePublisher and Subscribe do
// not), and every method except SetHandler defers to an optional function
// field where a test needs to control the outcome. A nil function field returns a benign zero
// value (ok=true, no error) so tests only need to set the hooks they care
// about.
type MockClient struct {
	mu sync.Mutex

	MetadataFunc               func(ctx context.Context, streams []string) (map[string]StreamMetadata, error)
	DeclarePublisherFunc       func(ctx context.Context, publisherID uint8, name *string, stream string) (bool, uint16, error)
	DeletePublisherFunc        func(ctx context.Context, publisherID uint8) (bool, uint16, error)
	QueryPublisherSequenceFunc func(ctx context.Context, name, stream string) (uint64, error)
	PublishFunc                func(ctx context.Context, publisherID uint8, messages []Message) error
	SubscribeFunc              func(ctx context.Context, subscriptionID uint8, stream string, offsetSpec OffsetSpecification, initialCredit uint16, properties map[string]string) (bool, uint16, error)
	UnsubscribeFunc            func(ctx context.Context, subscriptionID uint8) (bool, uint16, error)
	CreditFunc                 func(ctx context.Context, subscriptionID uint8, credit uint16) error
	CloseFunc                  func(ctx context.Context) error

	Handler MessageHandler

	PublishCalls     [][]Message
	CreditCalls      []uint16
	DeclareCalls     int
	QuerySeqCalls    int
	CloseCalled      bool
	UnsubscribeCalls int
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Metadata(ctx context.Context, streams []string) (map[string]StreamMetadata, error) {
	if m.MetadataFunc != nil {
		return m.MetadataFunc(ctx, streams)
	}
	return map[string]StreamMetadata{}, nil
}

func (m *MockClient) DeclarePublisher(ctx context.Context, publisherID uint8, name *string, stream string) (bool, uint16, error) {
	m.mu.Lock()
	m.DeclareCalls++
	m.mu.Unlock()
	if m.DeclarePublisherFunc != nil {
		return m.DeclarePublisherFunc(ctx, publisherID, name, stream)
	}
	return true, 0, nil
}

func (m *MockClient) DeletePublisher(ctx context.Context, publisherID uint8) (bool, uint16, error) {
	if m.DeletePublisherFunc != nil {
		return m.DeletePublisherFunc(ctx, publisherID)
	}
	return true, 0, nil
}

func (m *MockClient) QueryPublisherSequence(ctx context.Context, name, stream string) (uint64, error) {
	m.mu.Lock()
	m.QuerySeqCalls++
	m.mu.Unlock()
	if m.QueryPublisherSequenceFunc != nil {
		return m.QueryPublisherSequenceFunc(ctx, name, stream)
	}
	return 0, nil
}

func (m *MockClient) Publish(ctx context.Context, publisherID uint8, messages []Message) error {
	m.mu.Lock()
	m.PublishCalls = append(m.PublishCalls, messages)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, publisherID, messages)
	}
	return nil
}

func (m *MockClient) Subscribe(ctx context.Context, subscriptionID uint8, stream string, offsetSpec OffsetSpecification, initialCredit uint16, properties map[string]string) (bool, uint16, error) {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, subscriptionID, stream, offsetSpec, initialCredit, properties)
	}
	return true, 0, nil
}

func (m *MockClient) Unsubscribe(ctx context.Context, subscriptionID uint8) (bool, uint16, error) {
	m.mu.Lock()
	m.UnsubscribeCalls++
	m.mu.Unlock()
	if m.UnsubscribeFunc != nil {
		return m.UnsubscribeFunc(ctx, subscriptionID)
	}
	return true, 0, nil
}

func (m *MockClient) Credit(ctx context.Context, subscriptionID uint8, credit uint16) error {
	m.mu.Lock()
	m.CreditCalls = append(m.CreditCalls, credit)
	m.mu.Unlock()
	if m.CreditFunc != nil {
		return m.CreditFunc(ctx, subscriptionID, credit)
	}
	return nil
}

func (m *MockClient) SetHandler(h MessageHandler) {
	m.mu.Lock()
	m.Handler = h
	m.mu.Unlock()
}

func (m *MockClient) Close(ctx context.Context) error {
	m.mu.Lock()
	m.CloseCalled = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc(ctx)
	}
	return nil
}

// Deliver feeds result into whatever MessageHandler is currently installed,
// simulating a frame arriving off the wire — the test-side equivalent of
// the connection's read loop invoking the handler.
func (m *MockClient) Deliver(ctx context.Context, result MessageResult) error {
	m.mu.Lock()
	h := m.Handler
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.HandleMessage(ctx, result)
}

// LastPublish returns the most recent batch passed to Publish, or nil if
// Publish hasn't been called yet.
func (m *MockClient) LastPublish() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PublishCalls) == 0 {
		return nil
	}
	return m.PublishCalls[len(m.PublishCalls)-1]
}

// PublishCallCount returns how many times Publish has been called.
func (m *MockClient) PublishCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PublishCalls)
}
