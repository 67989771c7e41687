package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go-orders/internal/observability"
	"go-orders/pkg/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes consumed messages. A *PermanentError result skips
// the message; any other error stops the consumer.
type MessageHandler func(ctx context.Context, msg *models.Message) error

// ConsumerClient defines the interface for Kafka consumer operations
type ConsumerClient interface {
	Start(ctx context.Context, handler MessageHandler) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscription is one topic the consumer group reads.
type Subscription struct {
	Topic         string
	FromBeginning bool
}

type ConsumerConfig struct {
	Brokers       []string
	ClientID      string
	GroupID       string
	Subscriptions []Subscription
	Workers       int
	FetchMinBytes int
	FetchMaxBytes int
	MaxWait       time.Duration
	Metrics       observability.MetricsCollector
	Logger        *zap.Logger
}

type topicReader struct {
	topic  string
	reader messageReader
}

type fetched struct {
	msg    kafka.Message
	reader messageReader
}

// Consumer reads every subscribed topic and hands messages to a pool of
// workers. Messages are sharded by key so attempts for one key stay in order.
// With a single worker each message is fully handled before the next one.
type Consumer struct {
	readers []topicReader
	logger  *zap.Logger
	metrics observability.MetricsCollector
	workers int
	wg      sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	readers := make([]topicReader, 0, len(cfg.Subscriptions))
	for _, sub := range cfg.Subscriptions {
		startOffset := kafka.LastOffset
		if sub.FromBeginning {
			startOffset = kafka.FirstOffset
		}
		readers = append(readers, topicReader{
			topic: sub.Topic,
			reader: kafka.NewReader(kafka.ReaderConfig{
				Brokers:        cfg.Brokers,
				Dialer:         dialer,
				Topic:          sub.Topic,
				GroupID:        cfg.GroupID,
				MinBytes:       cfg.FetchMinBytes,
				MaxBytes:       cfg.FetchMaxBytes,
				MaxWait:        cfg.MaxWait,
				CommitInterval: 0, // Manual commits
				StartOffset:    startOffset,
			}),
		})
	}
	return newConsumer(readers, cfg)
}

func newConsumer(readers []topicReader, cfg ConsumerConfig) *Consumer {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Consumer{
		readers: readers,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		workers: cfg.Workers,
	}
}

// Start consumes until ctx is cancelled or a handler returns a fatal error.
// Cancellation returns nil.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	topics := make([]string, 0, len(c.readers))
	for _, r := range c.readers {
		topics = append(topics, r.topic)
	}
	c.logger.Info("Starting consumer", zap.Strings("topics", topics), zap.Int("workers", c.workers))

	shards := make([]chan fetched, c.workers)
	for i := range shards {
		shards[i] = make(chan fetched)
	}

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	fail := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	for i := range shards {
		c.wg.Add(1)
		go c.worker(ctx, i, shards[i], handler, fail)
	}

	var fetchers sync.WaitGroup
	for _, r := range c.readers {
		fetchers.Add(1)
		go func(r topicReader) {
			defer fetchers.Done()
			c.fetcher(ctx, r, shards)
		}(r)
	}

	fetchers.Wait()
	for _, ch := range shards {
		close(ch)
	}
	c.wg.Wait()

	return fatalErr
}

// fetcher reads messages from one topic and routes them to the owning worker
func (c *Consumer) fetcher(ctx context.Context, r topicReader, shards []chan fetched) {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Fetcher stopping", zap.String("topic", r.topic))
				return
			}
			c.logger.Error("Failed to fetch message", zap.String("topic", r.topic), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.metrics.IncReceived()

		select {
		case shards[shardFor(msg.Key, len(shards))] <- fetched{msg: msg, reader: r.reader}:
		case <-ctx.Done():
			return
		}
	}
}

// worker processes messages from its shard
func (c *Consumer) worker(ctx context.Context, id int, in <-chan fetched, handler MessageHandler, fail func(error)) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				return
			}
			if err := c.processMessage(ctx, item, handler, id); err != nil {
				fail(err)
				return
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, item fetched, handler MessageHandler, workerID int) error {
	msg := toInternalMessage(item.msg)
	logger := c.logger.With(
		zap.String("topic", item.msg.Topic),
		zap.Int("partition", item.msg.Partition),
		zap.Int64("offset", item.msg.Offset),
		zap.String("key", msg.Key),
		zap.Int("worker_id", workerID),
	)

	err := handler(ctx, msg)
	switch {
	case err == nil:
	case IsPermanent(err):
		logger.Warn("Skipping message that cannot be handled", zap.Error(err))
	default:
		logger.Error("Handler failed, stopping consumer", zap.Error(err))
		return fmt.Errorf("handle %s/%d@%d: %w", item.msg.Topic, item.msg.Partition, item.msg.Offset, err)
	}

	// Commit with a fresh context so work finished during shutdown is not redelivered.
	if err := item.reader.CommitMessages(context.Background(), item.msg); err != nil {
		logger.Error("Failed to commit message", zap.Error(err))
	}
	return nil
}

// toInternalMessage converts Kafka message to internal format
func toInternalMessage(kafkaMsg kafka.Message) *models.Message {
	return &models.Message{
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Headers:   fromKafkaHeaders(kafkaMsg.Headers),
		Topic:     kafkaMsg.Topic,
		Partition: kafkaMsg.Partition,
		Offset:    kafkaMsg.Offset,
		Timestamp: kafkaMsg.Time,
	}
}

func shardFor(key []byte, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}

// Close gracefully shuts down the consumer
func (c *Consumer) Close() error {
	c.logger.Info("Closing consumer")
	var errs []error
	for _, r := range c.readers {
		if err := r.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader for %s: %w", r.topic, err))
		}
	}
	return errors.Join(errs...)
}
