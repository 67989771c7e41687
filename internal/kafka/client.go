package kafka

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaClient probes broker connectivity and reconnects with backoff
type KafkaClient struct {
	brokers     []string
	topics      []string
	logger      *zap.Logger
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	dial        func(ctx context.Context, network, address string) (partitionReader, error)
}

type partitionReader interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

func NewKafkaClient(brokers, topics []string, maxRetries int, logger *zap.Logger) *KafkaClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaClient{
		brokers:     brokers,
		topics:      topics,
		logger:      logger,
		maxRetries:  maxRetries,
		baseBackoff: 1 * time.Second,
		maxBackoff:  30 * time.Second,
		dial: func(ctx context.Context, network, address string) (partitionReader, error) {
			return kafka.DialContext(ctx, network, address)
		},
	}
}

// HealthCheck verifies that a broker answers and that the pipeline topics exist
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if len(c.brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	var lastErr error
	for _, broker := range c.brokers {
		conn, err := c.dial(ctx, "tcp", broker)
		if err != nil {
			lastErr = fmt.Errorf("failed to connect to broker %s: %w", broker, err)
			continue
		}

		partitions, err := conn.ReadPartitions(c.topics...)
		conn.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read partitions: %w", err)
			continue
		}

		seen := make(map[string]bool, len(partitions))
		for _, p := range partitions {
			seen[p.Topic] = true
		}
		for _, topic := range c.topics {
			if !seen[topic] {
				return fmt.Errorf("topic %s has no partitions", topic)
			}
		}
		return nil
	}
	return lastErr
}

// HealthCheckLoop runs health checks periodically with reconnection logic
func (c *KafkaClient) HealthCheckLoop(ctx context.Context, interval time.Duration, onReconnect func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check loop stopped")
			return
		case <-ticker.C:
			if err := c.HealthCheck(ctx); err != nil {
				c.logger.Warn("Health check failed, attempting reconnection", zap.Error(err))
				if err := c.reconnectWithBackoff(ctx, onReconnect); err != nil {
					c.logger.Error("Reconnection failed", zap.Error(err))
				}
			}
		}
	}
}

// reconnectWithBackoff implements exponential backoff reconnection strategy
func (c *KafkaClient) reconnectWithBackoff(ctx context.Context, onReconnect func() error) error {
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		backoff := c.backoff(attempt)
		c.logger.Info("Attempting reconnection",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := c.HealthCheck(ctx); err != nil {
			c.logger.Warn("Reconnection attempt failed", zap.Error(err))
			continue
		}

		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				c.logger.Warn("Reconnect callback failed", zap.Error(err))
				continue
			}
		}

		c.logger.Info("Reconnection successful")
		return nil
	}

	return fmt.Errorf("failed to reconnect after %d attempts", c.maxRetries)
}

func (c *KafkaClient) backoff(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(c.baseBackoff)*math.Pow(2, float64(attempt)),
		float64(c.maxBackoff),
	))
}

// GetBrokers returns the list of brokers
func (c *KafkaClient) GetBrokers() []string {
	return c.brokers
}
