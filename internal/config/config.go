package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-orders/internal/observability"

	"github.com/joho/godotenv"
)

// RetryMode selects how the backoff after a retry publish is applied.
type RetryMode string

const (
	// RetryModeBlocking publishes the retry copy and then waits out the delay
	// before the next message is handled.
	RetryModeBlocking RetryMode = "blocking"
	// RetryModeScheduled publishes the retry copy from a timer once the delay
	// has elapsed; the consumer moves on immediately.
	RetryModeScheduled RetryMode = "scheduled"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Kafka    KafkaConfig
	Topics   TopicsConfig
	Logging  LoggingConfig
	Consumer ConsumerConfig
	Producer ProducerConfig
	Schema   SchemaConfig
	Dedupe   DedupeConfig
	Metrics  MetricsConfig
}

type KafkaConfig struct {
	Brokers  []string
	ClientID string
}

type TopicsConfig struct {
	Orders string
	Retry  string
	DLQ    string
}

type LoggingConfig struct {
	Level string
}

type ConsumerConfig struct {
	GroupID            string
	Workers            int
	MaxRetries         int
	RetryDelay         time.Duration
	RetryMode          RetryMode
	DecodeFailureToDLQ bool
	FailureRate        float64
	FailureSeed        int64
	FetchMinBytes      int
	FetchMaxBytes      int
	HealthInterval     time.Duration
}

type ProducerConfig struct {
	Acks       int
	Idempotent bool
}

type SchemaConfig struct {
	RegistryURL string
	ID          int
}

type DedupeConfig struct {
	Backend   string
	TTL       time.Duration
	RedisAddr string
}

type MetricsConfig struct {
	Addr string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		observability.GetLogger().Debug("No .env file found, using environment only")
	}
	return &Config{
		Kafka: KafkaConfig{
			Brokers:  parseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092")),
			ClientID: getEnv("KAFKA_CLIENT_ID", "order-processing-system"),
		},
		Topics: TopicsConfig{
			Orders: getEnv("KAFKA_ORDERS_TOPIC", "orders"),
			Retry:  getEnv("KAFKA_RETRY_TOPIC", "orders-retry"),
			DLQ:    getEnv("KAFKA_DLQ_TOPIC", "orders-dlq"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Consumer: ConsumerConfig{
			GroupID:            getEnv("KAFKA_CONSUMER_GROUP_ID", "order-consumer-group"),
			Workers:            getEnvInt("KAFKA_CONSUMER_WORKERS", 1),
			MaxRetries:         getEnvInt("KAFKA_CONSUMER_MAX_RETRIES", 3),
			RetryDelay:         time.Duration(getEnvInt("KAFKA_CONSUMER_RETRY_DELAY_MS", 2000)) * time.Millisecond,
			RetryMode:          RetryMode(strings.ToLower(getEnv("KAFKA_CONSUMER_RETRY_MODE", string(RetryModeBlocking)))),
			DecodeFailureToDLQ: getEnvBool("KAFKA_CONSUMER_DECODE_FAILURE_TO_DLQ", false),
			FailureRate:        getEnvFloat("KAFKA_CONSUMER_FAILURE_RATE", 0.1),
			FailureSeed:        int64(getEnvInt("KAFKA_CONSUMER_FAILURE_SEED", 0)),
			FetchMinBytes:      getEnvInt("KAFKA_CONSUMER_FETCH_MIN_BYTES", 1),
			FetchMaxBytes:      getEnvInt("KAFKA_CONSUMER_FETCH_MAX_BYTES", 10485760),
			HealthInterval:     getEnvDuration("KAFKA_HEALTH_INTERVAL", 30*time.Second),
		},
		Producer: ProducerConfig{
			Acks:       parseAcks(getEnv("KAFKA_PRODUCER_ACKS", "all")),
			Idempotent: getEnvBool("KAFKA_PRODUCER_IDEMPOTENT", true),
		},
		Schema: SchemaConfig{
			RegistryURL: getEnv("SCHEMA_REGISTRY_URL", ""),
			ID:          getEnvInt("SCHEMA_ID", 1),
		},
		Dedupe: DedupeConfig{
			Backend:   strings.ToLower(getEnv("DEDUPE_BACKEND", "memory")),
			TTL:       getEnvDuration("DEDUPE_TTL", time.Hour),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Metrics: MetricsConfig{
			Addr: getEnvAllowEmpty("METRICS_ADDR", ":9090"),
		},
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
		}
	}

	check(len(c.Kafka.Brokers) > 0, "brokers cannot be empty")
	check(c.Topics.Orders != "", "orders topic cannot be empty")
	check(c.Topics.Retry != "", "retry topic cannot be empty")
	check(c.Topics.DLQ != "", "dlq topic cannot be empty")
	check(c.Consumer.GroupID != "", "groupID cannot be empty")
	check(c.Consumer.Workers > 0, "workers must be greater than zero")
	check(c.Consumer.MaxRetries >= 0, "maxRetries cannot be negative")
	check(c.Consumer.RetryDelay >= 0, "retry delay cannot be negative")
	check(c.Consumer.FailureRate >= 0 && c.Consumer.FailureRate <= 1, "failure rate %v is outside [0,1]", c.Consumer.FailureRate)
	check(c.Consumer.RetryMode == RetryModeBlocking || c.Consumer.RetryMode == RetryModeScheduled,
		"unknown retry mode %q", c.Consumer.RetryMode)
	check(c.Schema.ID > 0, "schema id must be positive")
	check(c.Dedupe.Backend == "memory" || c.Dedupe.Backend == "redis" || c.Dedupe.Backend == "none",
		"unknown dedupe backend %q", c.Dedupe.Backend)

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty treats an explicitly empty variable as a value.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, broker := range parts {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseAcks(acks string) int {
	switch strings.ToLower(acks) {
	case "all", "-1":
		return -1
	case "0":
		return 0
	case "1":
		return 1
	default:
		return -1 // default to all
	}
}
