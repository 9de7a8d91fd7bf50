package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"bookstore/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestPublishOrderPaidKeysByOrder(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewEventPublisher(&Producer{writer: writer, logger: zap.NewNop()})

	event := &models.OrderPaidEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypeOrderPaid),
		OrderID:       42,
		Email:         "reader@example.com",
		Amount:        25000,
		TransactionID: "TXN_1",
	}
	require.NoError(t, publisher.PublishOrderPaid(context.Background(), event))

	require.Len(t, writer.messages, 1)
	assert.Equal(t, "order-42", string(writer.messages[0].Key))

	var decoded models.OrderPaidEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	assert.Equal(t, models.EventTypeOrderPaid, decoded.EventType)
	assert.Equal(t, int64(25000), decoded.Amount)
	assert.NotEmpty(t, decoded.EventID)
}

func TestPublishWrapsWriterError(t *testing.T) {
	producer := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, logger: zap.NewNop()}

	err := NewEventPublisher(producer).PublishOrderPlaced(context.Background(), &models.OrderPlacedEvent{OrderID: 1})
	assert.ErrorContains(t, err, "broker down")
}

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleMessageRoutesByType(t *testing.T) {
	handler := NewEventHandler()
	var paid *models.OrderPaidEvent
	var placed *models.OrderPlacedEvent
	handler.OnOrderPaid(func(_ context.Context, e *models.OrderPaidEvent) error {
		paid = e
		return nil
	})
	handler.OnOrderPlaced(func(_ context.Context, e *models.OrderPlacedEvent) error {
		placed = e
		return nil
	})

	ctx := context.Background()
	require.NoError(t, handler.HandleMessage(ctx, kafka.Message{Value: encode(t, models.OrderPaidEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderPaid), OrderID: 3,
	})}))
	require.NoError(t, handler.HandleMessage(ctx, kafka.Message{Value: encode(t, models.OrderPlacedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderPlaced), OrderID: 4,
	})}))
	require.NoError(t, handler.HandleMessage(ctx, kafka.Message{Value: encode(t, models.BaseEvent{EventType: "SOMETHING_ELSE"})}))

	require.NotNil(t, paid)
	assert.Equal(t, int64(3), paid.OrderID)
	require.NotNil(t, placed)
	assert.Equal(t, int64(4), placed.OrderID)

	assert.Error(t, handler.HandleMessage(ctx, kafka.Message{Value: []byte("not json")}))
}

func TestStartConsumingCommitsOnlyHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		queue:  []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}},
		cancel: cancel,
	}
	consumer := &Consumer{reader: reader, logger: zap.NewNop(), retryDelay: time.Millisecond}

	err := consumer.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
		if msg.Offset == 2 {
			return errors.New("mail server down")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{1, 3}, reader.committed)
}

func TestStartConsumingRetriesFailedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		queue:  []kafka.Message{{Offset: 1}, {Offset: 2}},
		cancel: cancel,
	}
	consumer := &Consumer{reader: reader, logger: zap.NewNop(), retryDelay: time.Millisecond, maxAttempts: 5}

	calls := map[int64]int{}
	err := consumer.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
		calls[msg.Offset]++
		if msg.Offset == 1 && calls[msg.Offset] < 3 {
			return errors.New("smtp: 421 service not available")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls[1])
	assert.Equal(t, 1, calls[2])
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestStartConsumingGivesUpAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		queue:  []kafka.Message{{Offset: 1}, {Offset: 2}},
		cancel: cancel,
	}
	consumer := &Consumer{reader: reader, logger: zap.NewNop(), retryDelay: time.Millisecond, maxAttempts: 3}

	calls := map[int64]int{}
	err := consumer.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
		calls[msg.Offset]++
		if msg.Offset == 1 {
			return errors.New("malformed event")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls[1])
	assert.Equal(t, []int64{2}, reader.committed)
}
