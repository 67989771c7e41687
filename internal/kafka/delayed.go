package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrPublisherClosed = errors.New("delayed publisher is closed")

// DelayedPublisher publishes messages after a delay from timer goroutines, so
// the caller does not block for the backoff. A failed delayed publish can no
// longer reach the caller; it is only logged.
type DelayedPublisher struct {
	producer       ProducerClient
	logger         *zap.Logger
	publishTimeout time.Duration

	mu      sync.Mutex
	pending map[uint64]*delayedEntry
	nextID  uint64
	closed  bool
	wg      sync.WaitGroup
}

type delayedEntry struct {
	timer   *time.Timer
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

func NewDelayedPublisher(producer ProducerClient, logger *zap.Logger) *DelayedPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelayedPublisher{
		producer:       producer,
		logger:         logger,
		publishTimeout: 10 * time.Second,
		pending:        make(map[uint64]*delayedEntry),
	}
}

// PublishAfter schedules the message for publication once delay has elapsed.
func (d *DelayedPublisher) PublishAfter(delay time.Duration, topic, key string, value []byte, headers map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrPublisherClosed
	}

	id := d.nextID
	d.nextID++
	entry := &delayedEntry{topic: topic, key: key, value: value, headers: headers}
	d.pending[id] = entry
	d.wg.Add(1)
	entry.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()

		defer d.wg.Done()
		d.publish(entry)
	})
	return nil
}

// Pending returns the number of messages still waiting for their delay.
func (d *DelayedPublisher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close publishes everything still waiting without further delay and waits
// for in-flight publishes. Later PublishAfter calls fail with ErrPublisherClosed.
func (d *DelayedPublisher) Close() error {
	d.mu.Lock()
	d.closed = true
	var flush []*delayedEntry
	for id, entry := range d.pending {
		if entry.timer.Stop() {
			flush = append(flush, entry)
			delete(d.pending, id)
		}
	}
	d.mu.Unlock()

	if len(flush) > 0 {
		d.logger.Info("Flushing delayed messages", zap.Int("count", len(flush)))
	}

	var errs []error
	for _, entry := range flush {
		if err := d.publish(entry); err != nil {
			errs = append(errs, err)
		}
		d.wg.Done()
	}
	d.wg.Wait()
	return errors.Join(errs...)
}

func (d *DelayedPublisher) publish(entry *delayedEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
	defer cancel()

	err := d.producer.Publish(ctx, entry.topic, entry.key, entry.value, entry.headers)
	if err != nil {
		d.logger.Error("Delayed publish failed",
			zap.String("topic", entry.topic),
			zap.String("key", entry.key),
			zap.Error(err),
		)
	}
	return err
}
