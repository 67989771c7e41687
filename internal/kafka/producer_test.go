package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go-orders/internal/observability"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	err     error
	calls   int
	closed  bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishSuccess(t *testing.T) {
	writer := &fakeWriter{}
	metrics := observability.NewInMemoryMetrics()
	producer := newProducer(writer, ProducerConfig{Metrics: metrics})

	payload := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0xff, 0x10}
	err := producer.Publish(context.Background(), "orders-retry", "order-1", payload, map[string]string{
		"retryCount": "1",
		"error":      "boom",
	})
	require.NoError(t, err)

	require.Len(t, writer.written, 1)
	msg := writer.written[0]
	assert.Equal(t, "orders-retry", msg.Topic)
	assert.Equal(t, []byte("order-1"), msg.Key)
	assert.Equal(t, payload, msg.Value)
	assert.Equal(t, []kafka.Header{
		{Key: "error", Value: []byte("boom")},
		{Key: "retryCount", Value: []byte("1")},
	}, msg.Headers)
	assert.Equal(t, int64(1), metrics.GetPublished())
}

func TestProducer_PublishFailureIsSurfacedWithoutRetry(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	metrics := observability.NewInMemoryMetrics()
	producer := newProducer(writer, ProducerConfig{Metrics: metrics})

	err := producer.Publish(context.Background(), "orders-dlq", "k", []byte("v"), nil)

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Equal(t, 1, writer.calls, "the adapter writes exactly once")
	assert.Equal(t, int64(1), metrics.GetPublishFailed())
}

func TestProducer_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	producer := newProducer(writer, ProducerConfig{BreakerThreshold: 2, BreakerTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.Error(t, producer.Publish(ctx, "orders-retry", "k", []byte("v"), nil))
	}

	err := producer.Publish(ctx, "orders-retry", "k", []byte("v"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, writer.calls, "open circuit does not reach the writer")
}

func TestProducer_CancelledContextDoesNotTripBreaker(t *testing.T) {
	writer := &fakeWriter{err: context.Canceled}
	producer := newProducer(writer, ProducerConfig{BreakerThreshold: 1})

	for i := 0; i < 3; i++ {
		err := producer.Publish(context.Background(), "orders", "k", []byte("v"), nil)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 3, writer.calls)
}

func TestProducer_IdempotentConfiguration(t *testing.T) {
	producer := NewProducer(ProducerConfig{
		Brokers:    []string{"localhost:9092"},
		ClientID:   "order-processing-system",
		Acks:       1,
		Idempotent: true, // Should override acks to -1
	})
	defer producer.Close()

	writer, ok := producer.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, -1, int(writer.RequiredAcks))
	assert.Equal(t, 1, writer.MaxAttempts, "the writer must not retry a failed publish")
	assert.Equal(t, 10*time.Millisecond, writer.BatchTimeout)

	transport, ok := writer.Transport.(*kafka.Transport)
	require.True(t, ok)
	assert.Equal(t, "order-processing-system", transport.ClientID)
}

func TestProducer_WriterMakesSingleAttempt(t *testing.T) {
	for _, idempotent := range []bool{false, true} {
		producer := NewProducer(ProducerConfig{
			Brokers:    []string{"localhost:9092"},
			Acks:       1,
			Idempotent: idempotent,
		})

		writer, ok := producer.writer.(*kafka.Writer)
		require.True(t, ok)
		assert.Equal(t, 1, writer.MaxAttempts, "idempotent=%v", idempotent)
		require.NoError(t, producer.Close())
	}
}

func TestProducer_Close(t *testing.T) {
	writer := &fakeWriter{}
	producer := newProducer(writer, ProducerConfig{})
	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestHeaderConversionRoundTrip(t *testing.T) {
	headers := map[string]string{"a": "1", "retryCount": "3", "dlqMetadata": `{"retryCount":3}`}
	assert.Equal(t, headers, fromKafkaHeaders(toKafkaHeaders(headers)))
	assert.Nil(t, toKafkaHeaders(nil))
	assert.Empty(t, fromKafkaHeaders(nil))
}

func TestMockProducer_Behavior(t *testing.T) {
	mock := NewMockProducer()

	ctx := context.Background()

	err := mock.Publish(ctx, "test-topic", "key1", []byte("value1"), map[string]string{
		"header1": "value1",
	})
	require.NoError(t, err)

	messages := mock.GetPublishedMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "test-topic", messages[0].Topic)
	assert.Equal(t, "key1", messages[0].Key)
	assert.Equal(t, []byte("value1"), messages[0].Value)
	assert.Equal(t, "value1", messages[0].Headers["header1"])
	assert.Len(t, mock.MessagesFor("test-topic"), 1)
	assert.Empty(t, mock.MessagesFor("other"))
}

func TestMockProducer_SimulateFailures(t *testing.T) {
	mock := NewMockProducer()
	mock.FailCount = 2 // Fail first 2 attempts

	ctx := context.Background()

	assert.Error(t, mock.Publish(ctx, "test-topic", "key1", []byte("value1"), nil))
	assert.Error(t, mock.Publish(ctx, "test-topic", "key1", []byte("value1"), nil))
	assert.NoError(t, mock.Publish(ctx, "test-topic", "key1", []byte("value1"), nil))

	assert.Len(t, mock.GetPublishedMessages(), 1)
}

func TestMockProducer_CustomPublishFunc(t *testing.T) {
	mock := NewMockProducer()

	callCount := 0
	mock.PublishFunc = func(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
		callCount++
		if callCount < 3 {
			return fmt.Errorf("temporary error")
		}
		return nil
	}

	ctx := context.Background()

	assert.Error(t, mock.Publish(ctx, "test-topic", "key1", []byte("value1"), nil))
	assert.Error(t, mock.Publish(ctx, "test-topic", "key1", []byte("value1"), nil))
	assert.NoError(t, mock.Publish(ctx, "test-topic", "key1", []byte("value1"), nil))
	assert.Equal(t, 3, callCount)
	assert.Len(t, mock.GetPublishedMessages(), 1)
}
