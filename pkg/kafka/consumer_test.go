package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventMessage(t *testing.T, offset int64, eventID string) kafka.Message {
	t.Helper()
	event, err := NewEvent("order.confirmed", "ord-1", "order", "order-service", map[string]string{"checkout_id": "chk-1"})
	require.NoError(t, err)
	if eventID != "" {
		event.EventID = eventID
	}
	raw, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: "market.order.confirmed", Offset: offset, Value: raw}
}

// runUntilDrained starts c and stops it once every queued message is committed.
func runUntilDrained(t *testing.T, c *Consumer, r *fakeReader) {
	t.Helper()
	drained := r.done()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not commit all messages")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestFakeReader_DrainSignalSurvivesEarlyCommit(t *testing.T) {
	r := newFakeReader(eventMessage(t, 1, ""))
	msg, err := r.FetchMessage(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.CommitMessages(context.Background(), msg))
	require.NoError(t, r.CommitMessages(context.Background(), msg))

	select {
	case <-r.done():
	case <-time.After(time.Second):
		t.Fatal("drain signal lost after commit")
	}
	assert.Equal(t, 2, r.commitCount())
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Topic:        "market.order.confirmed",
		GroupID:      "promotion-service",
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func TestConsumer_CommitsAfterSuccess(t *testing.T) {
	r := newFakeReader(eventMessage(t, 1, ""))
	var calls atomic.Int32
	handler := func(ctx context.Context, e *Event) error {
		calls.Add(1)
		var data map[string]string
		require.NoError(t, e.UnmarshalData(&data))
		assert.Equal(t, "chk-1", data["checkout_id"])
		return nil
	}

	c := newConsumer(testConsumerConfig(), r, nil, handler, testLogger())
	runUntilDrained(t, c, r)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, r.commitCount())
	assert.True(t, r.closed)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	r := newFakeReader(eventMessage(t, 7, ""))
	w := &fakeWriter{}
	dlq := &DLQProducer{writer: w, logger: testLogger()}

	var calls atomic.Int32
	handler := func(ctx context.Context, e *Event) error {
		calls.Add(1)
		return errors.New("reservation store unavailable")
	}

	cfg := testConsumerConfig()
	cfg.EnableDLQ = true
	c := newConsumer(cfg, r, dlq, handler, testLogger())
	runUntilDrained(t, c, r)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, r.commitCount())

	sent := w.written()
	require.Len(t, sent, 1)
	assert.Equal(t, "market.dlq.market.order.confirmed", sent[0].Topic)
	assert.True(t, w.closed)
}

func TestConsumer_UndecodableMessageSkipped(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "market.order.confirmed", Value: []byte("not json")})
	called := false
	c := newConsumer(testConsumerConfig(), r, nil, func(ctx context.Context, e *Event) error {
		called = true
		return nil
	}, testLogger())

	runUntilDrained(t, c, r)

	assert.False(t, called)
	assert.Equal(t, 1, r.commitCount())
}

func TestConsumer_IdempotentHandlerSkipsRedelivery(t *testing.T) {
	r := newFakeReader(eventMessage(t, 1, "evt-dup"), eventMessage(t, 2, "evt-dup"))
	var calls atomic.Int32
	inner := func(ctx context.Context, e *Event) error {
		calls.Add(1)
		return nil
	}

	store := NewMemoryIdempotencyStore(time.Minute)
	c := newConsumer(testConsumerConfig(), r, nil, IdempotentHandler(store, inner, testLogger()), testLogger())
	runUntilDrained(t, c, r)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, r.commitCount())
}

func TestConsumer_CloseTwice(t *testing.T) {
	r := newFakeReader()
	c := newConsumer(testConsumerConfig(), r, nil, func(context.Context, *Event) error { return nil }, testLogger())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
