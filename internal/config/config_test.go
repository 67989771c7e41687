package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "order-processing-system", cfg.Kafka.ClientID)
	assert.Equal(t, TopicsConfig{Orders: "orders", Retry: "orders-retry", DLQ: "orders-dlq"}, cfg.Topics)
	assert.Equal(t, "order-consumer-group", cfg.Consumer.GroupID)
	assert.Equal(t, 1, cfg.Consumer.Workers)
	assert.Equal(t, 3, cfg.Consumer.MaxRetries)
	assert.Equal(t, 2000*time.Millisecond, cfg.Consumer.RetryDelay)
	assert.Equal(t, RetryModeBlocking, cfg.Consumer.RetryMode)
	assert.False(t, cfg.Consumer.DecodeFailureToDLQ)
	assert.Equal(t, 0.1, cfg.Consumer.FailureRate)
	assert.Equal(t, -1, cfg.Producer.Acks)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, 1, cfg.Schema.ID)
	assert.Empty(t, cfg.Schema.RegistryURL)
	assert.Equal(t, "memory", cfg.Dedupe.Backend)
	assert.Equal(t, time.Hour, cfg.Dedupe.TTL)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092,")
	t.Setenv("KAFKA_CLIENT_ID", "orders-eu")
	t.Setenv("KAFKA_CONSUMER_MAX_RETRIES", "5")
	t.Setenv("KAFKA_CONSUMER_RETRY_DELAY_MS", "250")
	t.Setenv("KAFKA_CONSUMER_RETRY_MODE", "Scheduled")
	t.Setenv("KAFKA_CONSUMER_WORKERS", "4")
	t.Setenv("KAFKA_CONSUMER_DECODE_FAILURE_TO_DLQ", "true")
	t.Setenv("KAFKA_CONSUMER_FAILURE_RATE", "0.5")
	t.Setenv("KAFKA_PRODUCER_ACKS", "1")
	t.Setenv("DEDUPE_BACKEND", "redis")
	t.Setenv("DEDUPE_TTL", "10m")
	t.Setenv("METRICS_ADDR", "")

	cfg := Load()

	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "orders-eu", cfg.Kafka.ClientID)
	assert.Equal(t, 5, cfg.Consumer.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Consumer.RetryDelay)
	assert.Equal(t, RetryModeScheduled, cfg.Consumer.RetryMode)
	assert.Equal(t, 4, cfg.Consumer.Workers)
	assert.True(t, cfg.Consumer.DecodeFailureToDLQ)
	assert.Equal(t, 0.5, cfg.Consumer.FailureRate)
	assert.Equal(t, 1, cfg.Producer.Acks)
	assert.Equal(t, "redis", cfg.Dedupe.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Dedupe.TTL)
	assert.Empty(t, cfg.Metrics.Addr, "an explicitly empty address disables metrics")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("KAFKA_CONSUMER_MAX_RETRIES", "lots")
	t.Setenv("KAFKA_CONSUMER_FAILURE_RATE", "often")
	t.Setenv("DEDUPE_TTL", "forever")

	cfg := Load()
	assert.Equal(t, 3, cfg.Consumer.MaxRetries)
	assert.Equal(t, 0.1, cfg.Consumer.FailureRate)
	assert.Equal(t, time.Hour, cfg.Dedupe.TTL)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }, "brokers"},
		{"no retry topic", func(c *Config) { c.Topics.Retry = "" }, "retry topic"},
		{"no group", func(c *Config) { c.Consumer.GroupID = "" }, "groupID"},
		{"negative retries", func(c *Config) { c.Consumer.MaxRetries = -1 }, "maxRetries"},
		{"negative delay", func(c *Config) { c.Consumer.RetryDelay = -time.Second }, "retry delay"},
		{"failure rate too high", func(c *Config) { c.Consumer.FailureRate = 1.5 }, "failure rate"},
		{"unknown retry mode", func(c *Config) { c.Consumer.RetryMode = "eventually" }, "retry mode"},
		{"unknown dedupe backend", func(c *Config) { c.Dedupe.Backend = "memcached" }, "dedupe backend"},
		{"zero workers", func(c *Config) { c.Consumer.Workers = 0 }, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseAcks(t *testing.T) {
	assert.Equal(t, -1, parseAcks("all"))
	assert.Equal(t, -1, parseAcks("-1"))
	assert.Equal(t, 0, parseAcks("0"))
	assert.Equal(t, 1, parseAcks("1"))
	assert.Equal(t, -1, parseAcks("bogus"))
}
