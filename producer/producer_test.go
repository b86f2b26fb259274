package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pepper-iot/rabbitmq-streams-go/client"
	"github.com/pepper-iot/rabbitmq-streams-go/environment"
	"github.com/pepper-iot/rabbitmq-streams-go/streamerr"
)

const testStream = "orders"

// testEnv wires an Environment whose Dialer hands out bootstrap on the
// first dial and leader on every subsequent one, matching the
// CreateClient-then-CreateClientAt call sequence Builder.Build makes.
func testEnv(bootstrap, leader *client.MockClient) *environment.Environment {
	calls := 0
	dial := func(ctx context.Context, opts client.Options) (client.Client, error) {
		calls++
		if calls == 1 {
			return bootstrap, nil
		}
		return leader, nil
	}
	return environment.New(client.DefaultOptions(), dial)
}

func newMetadataFunc(stream string, leaderHost string, leaderPort uint16) func(context.Context, []string) (map[string]client.StreamMetadata, error) {
	return func(ctx context.Context, streams []string) (map[string]client.StreamMetadata, error) {
		return map[string]client.StreamMetadata{
			stream: {Leader: client.Endpoint{Host: leaderHost, Port: leaderPort}},
		}, nil
	}
}

func buildTestProducer(t *testing.T, bootstrap, leader *client.MockClient, configure func(Builder) Builder) *Producer {
	t.Helper()
	env := testEnv(bootstrap, leader)
	b := NewBuilder(env).BatchDelay(time.Hour)
	if configure != nil {
		b = configure(b)
	}
	p, err := b.Build(context.Background(), testStream)
	if err != nil {
		t.Fatalf("Build() err = %v; nil expected", err)
	}
	return p
}

func TestBuilder_Build_DeclareObservedBeforeQuerySequence(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	leader.QueryPublisherSequenceFunc = func(ctx context.Context, name, stream string) (uint64, error) {
		if leader.DeclareCalls != 1 {
			t.Fatalf("QueryPublisherSequence observed DeclareCalls = %d; expected 1 (declare must precede query)", leader.DeclareCalls)
		}
		return 42, nil
	}

	p := buildTestProducer(t, bootstrap, leader, func(b Builder) Builder { return b.Name("prod-a").BatchSize(1) })

	if leader.QuerySeqCalls != 1 {
		t.Fatalf("QuerySeqCalls = %d; expected 1", leader.QuerySeqCalls)
	}
	if got := p.publishSequence.Load(); got != 42 {
		t.Fatalf("publishSequence = %d; expected 42 (server value used verbatim)", got)
	}
}

func TestBuilder_Build_StreamDoesNotExist(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: func(ctx context.Context, streams []string) (map[string]client.StreamMetadata, error) {
		return map[string]client.StreamMetadata{}, nil
	}}
	leader := &client.MockClient{}
	env := testEnv(bootstrap, leader)

	_, err := NewBuilder(env).Build(context.Background(), testStream)
	var notExist *streamerr.StreamDoesNotExist
	if !errors.As(err, &notExist) {
		t.Fatalf("Build() err = %v; expected *streamerr.StreamDoesNotExist", err)
	}
	if !bootstrap.CloseCalled {
		t.Fatalf("bootstrap connection was not closed after StreamDoesNotExist")
	}
}

func TestBuilder_Build_DeclareRejected(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{
		DeclarePublisherFunc: func(ctx context.Context, publisherID uint8, name *string, stream string) (bool, uint16, error) {
			return false, 13, nil
		},
	}
	env := testEnv(bootstrap, leader)

	_, err := NewBuilder(env).Build(context.Background(), testStream)
	var createErr *streamerr.Create
	if !errors.As(err, &createErr) {
		t.Fatalf("Build() err = %v; expected *streamerr.Create", err)
	}
	if createErr.Status != 13 {
		t.Fatalf("Create.Status = %d; expected 13", createErr.Status)
	}
}

func TestProducer_Send_Success(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	p := buildTestProducer(t, bootstrap, leader, func(b Builder) Builder { return b.BatchSize(1) })

	sendErr := make(chan error, 1)
	sendID := make(chan uint64, 1)
	go func() {
		id, err := p.Send(context.Background(), client.Message{Body: []byte("hello")})
		sendID <- id
		sendErr <- err
	}()

	deadline := time.After(time.Second)
	for leader.PublishCallCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Publish was never called")
		case <-time.After(time.Millisecond):
		}
	}

	published := leader.LastPublish()
	if len(published) != 1 {
		t.Fatalf("LastPublish() len = %d; expected 1", len(published))
	}
	id := *published[0].PublishingID

	if err := leader.Deliver(context.Background(), client.MessageResult{
		Confirm: &client.ConfirmBatch{Confirmed: []uint64{id}},
	}); err != nil {
		t.Fatalf("Deliver() err = %v", err)
	}

	select {
	case err := <-sendErr:
		if err != nil {
			t.Fatalf("Send() err = %v; nil expected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send() did not return after its confirm arrived")
	}
	if got := <-sendID; got != id {
		t.Fatalf("Send() publishingID = %d; expected %d", got, id)
	}
}

func TestProducer_Send_Error(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	p := buildTestProducer(t, bootstrap, leader, func(b Builder) Builder { return b.BatchSize(1) })

	sendErr := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), client.Message{Body: []byte("hello")})
		sendErr <- err
	}()

	deadline := time.After(time.Second)
	for leader.PublishCallCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Publish was never called")
		case <-time.After(time.Millisecond):
		}
	}

	id := *leader.LastPublish()[0].PublishingID
	if err := leader.Deliver(context.Background(), client.MessageResult{
		Confirm: &client.ConfirmBatch{Errored: []client.PublishError{{PublishingID: id, Code: 7}}},
	}); err != nil {
		t.Fatalf("Deliver() err = %v", err)
	}

	select {
	case err := <-sendErr:
		var createErr *streamerr.Create
		if !errors.As(err, &createErr) {
			t.Fatalf("Send() err = %v; expected *streamerr.Create", err)
		}
		if createErr.Status != 7 {
			t.Fatalf("Create.Status = %d; expected 7", createErr.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("Send() did not return after its error confirm arrived")
	}
}

func TestProducer_Send_FailsWhenClosed(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	p := buildTestProducer(t, bootstrap, leader, nil)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() err = %v; nil expected", err)
	}

	if _, err := p.Send(context.Background(), client.Message{Body: []byte("too late")}); !errors.Is(err, streamerr.ErrClosed) {
		t.Fatalf("Send() err = %v; expected ErrClosed", err)
	}
}

func TestProducer_Close_DrainsPendingWaiters(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	// BatchSize 2 so the single Send below never fills the accumulator and
	// never triggers an inline batch_send; the waiter stays pending until
	// Close drains it.
	p := buildTestProducer(t, bootstrap, leader, func(b Builder) Builder { return b.BatchSize(2) })

	sendErr := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), client.Message{Body: []byte("never confirmed")})
		sendErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() err = %v; nil expected", err)
	}

	select {
	case err := <-sendErr:
		if !errors.Is(err, streamerr.ErrClosed) {
			t.Fatalf("Send() err = %v; expected ErrClosed from drained waiter", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send() did not unblock after Close drained pending waiters")
	}
}

func TestProducer_Close_AlreadyClosed(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	p := buildTestProducer(t, bootstrap, leader, nil)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("first Close() err = %v; nil expected", err)
	}
	if err := p.Close(context.Background()); !errors.Is(err, streamerr.ErrAlreadyClosed) {
		t.Fatalf("second Close() err = %v; expected ErrAlreadyClosed", err)
	}
}

func TestProducer_Close_DeletePublisherRejected(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{
		DeletePublisherFunc: func(ctx context.Context, publisherID uint8) (bool, uint16, error) {
			return false, 4, nil
		},
	}
	p := buildTestProducer(t, bootstrap, leader, nil)

	err := p.Close(context.Background())
	var closeErr *streamerr.Close
	if !errors.As(err, &closeErr) {
		t.Fatalf("Close() err = %v; expected *streamerr.Close", err)
	}
	if !p.IsClosed() {
		t.Fatalf("IsClosed() = false; the closed flag flips before delete-publisher is issued")
	}
	if !leader.CloseCalled {
		t.Fatalf("underlying connection was not closed after delete-publisher was rejected")
	}
}

func TestProducer_Close_DeletePublisherTransportError(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	deleteErr := errors.New("connection reset")
	leader := &client.MockClient{
		DeletePublisherFunc: func(ctx context.Context, publisherID uint8) (bool, uint16, error) {
			return false, 0, deleteErr
		},
	}
	p := buildTestProducer(t, bootstrap, leader, nil)

	err := p.Close(context.Background())
	if !errors.Is(err, deleteErr) {
		t.Fatalf("Close() err = %v; expected %v", err, deleteErr)
	}
	if !leader.CloseCalled {
		t.Fatalf("underlying connection was not closed after delete-publisher errored")
	}
}

func TestConfirmHandler_UnknownPublishingIDIsIgnored(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	buildTestProducer(t, bootstrap, leader, nil)

	err := leader.Deliver(context.Background(), client.MessageResult{
		Confirm: &client.ConfirmBatch{Confirmed: []uint64{999}},
	})
	if err != nil {
		t.Fatalf("Deliver() err = %v; nil expected (unknown id must be tolerated)", err)
	}
}

func TestConfirmHandler_TransportClosedDoesNotPanic(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	buildTestProducer(t, bootstrap, leader, nil)

	if err := leader.Deliver(context.Background(), client.MessageResult{Closed: true}); err != nil {
		t.Fatalf("Deliver() err = %v; nil expected", err)
	}
}

// TestProducer_Send_IDsStrictlyIncreasingFromZero covers spec §8 invariant
// 2: an unnamed producer's successive sends return strictly increasing
// publishing ids starting at 0.
func TestProducer_Send_IDsStrictlyIncreasingFromZero(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	p := buildTestProducer(t, bootstrap, leader, func(b Builder) Builder { return b.BatchSize(1) })

	for want := uint64(0); want < 3; want++ {
		sendErr := make(chan error, 1)
		sendID := make(chan uint64, 1)
		go func() {
			id, err := p.Send(context.Background(), client.Message{Body: []byte("m")})
			sendID <- id
			sendErr <- err
		}()

		deadline := time.After(time.Second)
		for uint64(leader.PublishCallCount()) <= want {
			select {
			case <-deadline:
				t.Fatalf("Publish was never called for send #%d", want)
			case <-time.After(time.Millisecond):
			}
		}

		id := *leader.LastPublish()[0].PublishingID
		if id != want {
			t.Fatalf("publishing id #%d = %d; expected %d", want, id, want)
		}

		if err := leader.Deliver(context.Background(), client.MessageResult{
			Confirm: &client.ConfirmBatch{Confirmed: []uint64{id}},
		}); err != nil {
			t.Fatalf("Deliver() err = %v", err)
		}

		if err := <-sendErr; err != nil {
			t.Fatalf("Send() err = %v; nil expected", err)
		}
		if got := <-sendID; got != want {
			t.Fatalf("Send() publishingID = %d; expected %d", got, want)
		}
	}
}

// TestProducer_TickerFlushesAfterDelay covers scenario S2: with batch_size
// large enough that two sends never trigger a fullness flush, no Publish
// is observed before the batch ticker fires; after it fires, exactly one
// batched Publish carrying both messages is observed.
func TestProducer_TickerFlushesAfterDelay(t *testing.T) {
	bootstrap := &client.MockClient{MetadataFunc: newMetadataFunc(testStream, "leader-host", 5552)}
	leader := &client.MockClient{}
	p := buildTestProducer(t, bootstrap, leader, func(b Builder) Builder {
		return b.BatchSize(3).BatchDelay(30 * time.Millisecond)
	})

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), client.Message{Body: []byte("m1")})
		done1 <- err
	}()
	go func() {
		_, err := p.Send(context.Background(), client.Message{Body: []byte("m2")})
		done2 <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if n := leader.PublishCallCount(); n != 0 {
		t.Fatalf("PublishCallCount() = %d within 10ms of two sub-batch sends; expected 0 before the tick fires", n)
	}

	deadline := time.After(time.Second)
	for leader.PublishCallCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("batch ticker never flushed the accumulator")
		case <-time.After(time.Millisecond):
		}
	}

	published := leader.LastPublish()
	if len(published) != 2 {
		t.Fatalf("LastPublish() len = %d; expected a single batched Publish carrying both messages", len(published))
	}
	if n := leader.PublishCallCount(); n != 1 {
		t.Fatalf("PublishCallCount() = %d; expected exactly 1", n)
	}

	confirmed := make([]uint64, len(published))
	for i, m := range published {
		confirmed[i] = *m.PublishingID
	}
	if err := leader.Deliver(context.Background(), client.MessageResult{
		Confirm: &client.ConfirmBatch{Confirmed: confirmed},
	}); err != nil {
		t.Fatalf("Deliver() err = %v", err)
	}

	for _, done := range []chan error{done1, done2} {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Send() err = %v; nil expected", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Send() did not return after the ticker-triggered confirm")
		}
	}
}
