package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-orders/internal/aggregate"
	"go-orders/internal/codec"
	"go-orders/internal/dedupe"
	"go-orders/internal/kafka"
	"go-orders/internal/observability"
	"go-orders/internal/retry"
	"go-orders/pkg/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Decoder turns a message payload into an order.
type Decoder interface {
	Decode(ctx context.Context, payload []byte) (models.Order, error)
}

// DelayScheduler publishes a message once a delay has elapsed without
// blocking the caller.
type DelayScheduler interface {
	PublishAfter(delay time.Duration, topic, key string, value []byte, headers map[string]string) error
}

// Topics names the three topics of the pipeline.
type Topics struct {
	Primary string
	Retry   string
	DLQ     string
}

func DefaultTopics() Topics {
	return Topics{
		Primary: "orders",
		Retry:   "orders-retry",
		DLQ:     "orders-dlq",
	}
}

// Outcome is the terminal state of one dispatched message.
type Outcome int

const (
	Aborted Outcome = iota
	Succeeded
	Retried
	DeadLettered
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Aborted:
		return "aborted"
	case Succeeded:
		return "succeeded"
	case Retried:
		return "retried"
	case DeadLettered:
		return "dead_lettered"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type DispatcherConfig struct {
	Topics     Topics
	Policy     retry.Policy
	Decoder    Decoder
	Processor  Processor
	Aggregator *aggregate.Aggregator
	Publisher  kafka.ProducerClient
	// Scheduler switches retries to scheduled mode: the retry copy is handed
	// over and the dispatcher returns without waiting for the backoff.
	Scheduler DelayScheduler
	// Dedupe is optional; without it every message is processed.
	Dedupe dedupe.Store
	// DecodeFailureToDLQ dead-letters undecodable payloads instead of skipping them.
	DecodeFailureToDLQ bool
	Metrics            observability.MetricsCollector
	Logger             *logrus.Logger
}

// Dispatcher runs each message through decode, process and, on failure,
// the retry or dead-letter escalation.
type Dispatcher struct {
	topics             Topics
	policy             retry.Policy
	decoder            Decoder
	processor          Processor
	aggregator         *aggregate.Aggregator
	publisher          kafka.ProducerClient
	scheduler          DelayScheduler
	dedupe             dedupe.Store
	decodeFailureToDLQ bool
	metrics            observability.MetricsCollector
	logger             *logrus.Logger
	tracer             trace.Tracer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Decoder == nil {
		return nil, errors.New("dispatcher: decoder is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("dispatcher: publisher is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Topics == (Topics{}) {
		cfg.Topics = DefaultTopics()
	}
	if cfg.Processor == nil {
		cfg.Processor = NewOrderProcessor(nil)
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = aggregate.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger()
	}

	return &Dispatcher{
		topics:             cfg.Topics,
		policy:             cfg.Policy,
		decoder:            cfg.Decoder,
		processor:          cfg.Processor,
		aggregator:         cfg.Aggregator,
		publisher:          cfg.Publisher,
		scheduler:          cfg.Scheduler,
		dedupe:             cfg.Dedupe,
		decodeFailureToDLQ: cfg.DecodeFailureToDLQ,
		metrics:            cfg.Metrics,
		logger:             cfg.Logger,
		tracer:             observability.Tracer(),
		now:                time.Now,
		sleep:              sleepContext,
	}, nil
}

// Handler adapts the dispatcher to the consumer's handler signature.
func (d *Dispatcher) Handler() kafka.MessageHandler {
	return func(ctx context.Context, msg *models.Message) error {
		_, err := d.Handle(ctx, msg)
		return err
	}
}

// Statistics returns the running aggregation over successfully processed orders.
func (d *Dispatcher) Statistics() aggregate.Snapshot {
	return d.aggregator.Snapshot()
}

// Handle dispatches one message. Processing failures are always resolved
// here by a retry or dead-letter publish. The returned error is a
// *kafka.PermanentError for an undecodable payload and a plain error when
// the schema registry or the retry or dead-letter publish failed.
func (d *Dispatcher) Handle(ctx context.Context, msg *models.Message) (Outcome, error) {
	ctx, span := d.tracer.Start(ctx, "orders.dispatch", trace.WithAttributes(
		attribute.String("messaging.destination.name", msg.Topic),
		attribute.String("messaging.kafka.message.key", msg.Key),
		attribute.Int("orders.retry_count", retry.ExtractRetryCount(msg.Headers)),
	))
	defer span.End()

	outcome, err := d.handle(ctx, msg)
	span.SetAttributes(attribute.String("orders.outcome", outcome.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (d *Dispatcher) handle(ctx context.Context, msg *models.Message) (Outcome, error) {
	messageID := msg.Headers[models.HeaderMessageID]
	if d.alreadyProcessed(ctx, messageID) {
		d.metrics.IncSkipped()
		d.entry(msg, Skipped).WithField("message_id", messageID).Info("Message already processed, skipping")
		return Skipped, nil
	}

	order, err := d.decoder.Decode(ctx, msg.Value)
	if errors.Is(err, codec.ErrRegistryUnavailable) {
		d.entry(msg, Aborted).WithError(err).Error("Schema lookup failed, leaving message uncommitted")
		return Aborted, fmt.Errorf("decode message %q: %w", msg.Key, err)
	}
	if err != nil {
		d.metrics.IncDecodeFailed()
		if d.decodeFailureToDLQ {
			return d.deadLetter(ctx, msg, fmt.Sprintf("decode failed: %v", err))
		}
		d.entry(msg, Aborted).WithError(err).Error("Failed to decode message")
		return Aborted, &kafka.PermanentError{Err: fmt.Errorf("decode message %q: %w", msg.Key, err)}
	}

	if err := d.processor.Process(ctx, order); err != nil {
		d.metrics.IncFailed()
		return d.escalate(ctx, msg, err.Error())
	}

	snapshot := d.aggregator.Update(order.Amount)
	d.metrics.IncProcessed()
	if messageID != "" && d.dedupe != nil {
		if err := d.dedupe.Add(ctx, messageID); err != nil {
			d.logger.WithError(err).WithField("message_id", messageID).Warn("Failed to record processed message")
		}
	}

	d.entry(msg, Succeeded).WithFields(logrus.Fields{
		"order_id":      order.ID,
		"running_count": snapshot.Count,
		"running_total": snapshot.Total,
		"running_avg":   snapshot.Average,
	}).Info("Order processed")
	return Succeeded, nil
}

func (d *Dispatcher) alreadyProcessed(ctx context.Context, messageID string) bool {
	return messageID != "" && d.dedupe != nil && d.dedupe.Exists(ctx, messageID)
}

// escalate sends a failed message to the retry topic while budget is left
// and to the dead-letter topic once it is spent.
func (d *Dispatcher) escalate(ctx context.Context, msg *models.Message, reason string) (Outcome, error) {
	current := retry.ExtractRetryCount(msg.Headers)
	if d.policy.Decide(current) == retry.DeadLetter {
		return d.deadLetter(ctx, msg, reason)
	}

	headers := retry.RetryHeaders(msg.Headers, reason, d.topics.Primary, d.now())
	delay := d.policy.BackoffDelay(current)
	next := current + 1

	if d.scheduler != nil {
		if err := d.scheduler.PublishAfter(delay, d.topics.Retry, msg.Key, msg.Value, headers); err != nil {
			d.entry(msg, Aborted).WithError(err).Error("Failed to schedule retry")
			return Aborted, fmt.Errorf("schedule retry of %q: %w", msg.Key, err)
		}
	} else if err := d.publish(ctx, d.topics.Retry, msg, headers); err != nil {
		return Aborted, err
	}

	d.metrics.IncRetried()
	d.entry(msg, Retried).WithFields(logrus.Fields{
		"error":       reason,
		"retry_count": next,
		"delay_ms":    delay.Milliseconds(),
	}).Warn("Order processing failed, sent to retry topic")

	if d.scheduler == nil {
		d.sleep(ctx, delay)
	}
	return Retried, nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, msg *models.Message, reason string) (Outcome, error) {
	headers, meta, err := retry.DeadLetterHeaders(msg.Headers, reason, d.topics.Primary, d.now())
	if err != nil {
		return Aborted, err
	}
	if err := d.publish(ctx, d.topics.DLQ, msg, headers); err != nil {
		return Aborted, err
	}

	d.metrics.IncSentToDLQ()
	d.entry(msg, DeadLettered).WithFields(logrus.Fields{
		"error":       reason,
		"retry_count": meta.RetryCount,
	}).Error("Retry budget exhausted, sent to dead-letter topic")
	return DeadLettered, nil
}

// publish writes a copy of msg with new headers. The key and payload bytes
// are passed through untouched. Shutdown does not cancel an in-flight publish.
func (d *Dispatcher) publish(ctx context.Context, topic string, msg *models.Message, headers map[string]string) error {
	if err := d.publisher.Publish(context.WithoutCancel(ctx), topic, msg.Key, msg.Value, headers); err != nil {
		d.entry(msg, Aborted).WithError(err).WithField("target_topic", topic).Error("Failed to publish message")
		return fmt.Errorf("publish %q to %s: %w", msg.Key, topic, err)
	}
	return nil
}

func (d *Dispatcher) entry(msg *models.Message, outcome Outcome) *logrus.Entry {
	return d.logger.WithFields(logrus.Fields{
		"key":     msg.Key,
		"topic":   msg.Topic,
		"offset":  msg.Offset,
		"outcome": outcome.String(),
	})
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
