package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisConfig holds configuration for the Redis client.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// RedisStore keeps processed message ids in Redis so that several consumer
// instances share one view.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger
}

func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "orders:processed:"
	}

	logger.WithField("redis_address", cfg.Addr).Info("Connected to Redis for message dedupe")

	return &RedisStore{
		client: rdb,
		ttl:    cfg.TTL,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Exists reports false when Redis cannot be reached, so the message is processed.
func (s *RedisStore) Exists(ctx context.Context, messageID string) bool {
	n, err := s.client.Exists(ctx, s.prefix+messageID).Result()
	if err != nil {
		s.logger.WithError(err).WithField("message_id", messageID).Warn("Dedupe lookup failed")
		return false
	}
	return n > 0
}

func (s *RedisStore) Add(ctx context.Context, messageID string) error {
	if err := s.client.Set(ctx, s.prefix+messageID, time.Now().UnixMilli(), s.ttl).Err(); err != nil {
		return fmt.Errorf("record message %s: %w", messageID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
