package main

import (
	"context"
	"flag"
	"net/http"
	"strconv"
	"time"

	"go-orders/internal/codec"
	"go-orders/internal/config"
	"go-orders/internal/kafka"
	"go-orders/internal/observability"
	"go-orders/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func main() {
	orderID := flag.String("id", "", "order id (defaults to a new UUID)")
	product := flag.String("product", "", "product name")
	price := flag.Float64("price", 0, "order price, must be positive")
	key := flag.String("key", "", "message key (defaults to a new UUID)")
	flag.Parse()

	cfg := config.Load()
	observability.InitLogger(cfg.Logging.Level)
	logger := observability.GetLogger()

	order := models.Order{ID: *orderID, Category: *product, Amount: *price}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if err := order.Validate(); err != nil {
		logger.WithError(err).Fatal("Refusing to publish order")
	}
	if *key == "" {
		*key = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registry, schemaID := registerSchema(ctx, cfg, logger)
	payload, err := codec.NewAvroCodec(registry).Encode(ctx, schemaID, order)
	if err != nil {
		logger.WithError(err).Fatal("Failed to encode order")
	}

	zapLogger, err := observability.NewZapLogger(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build transport logger")
	}
	defer func() { _ = zapLogger.Sync() }()

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		Acks:       cfg.Producer.Acks,
		ClientID:   cfg.Kafka.ClientID,
		Idempotent: cfg.Producer.Idempotent,
		Logger:     zapLogger,
	})
	defer producer.Close()

	headers := map[string]string{
		models.HeaderMessageID: uuid.NewString(),
		models.HeaderTimestamp: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if err := producer.Publish(ctx, cfg.Topics.Orders, *key, payload, headers); err != nil {
		logger.WithError(err).Fatal("Failed to publish order")
	}

	observability.WithFields(logrus.Fields{
		"topic":      cfg.Topics.Orders,
		"key":        *key,
		"order_id":   order.ID,
		"product":    order.Category,
		"price":      order.Amount,
		"message_id": headers[models.HeaderMessageID],
		"schema_id":  schemaID,
	}).Info("Order published")
}

// registerSchema registers the order schema with the configured registry,
// falling back to the embedded schema under the configured id.
func registerSchema(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (codec.Registry, int) {
	if cfg.Schema.RegistryURL == "" {
		registry, err := codec.NewOrderRegistry(cfg.Schema.ID)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load embedded order schema")
		}
		return registry, cfg.Schema.ID
	}

	schema, err := codec.OrderSchema()
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse order schema")
	}
	registry, err := codec.NewRemoteRegistry(cfg.Schema.RegistryURL, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create schema registry client")
	}
	id, err := registry.Register(ctx, codec.OrderSubject, schema)
	if err != nil {
		logger.WithError(err).Fatal("Failed to register order schema")
	}
	observability.WithFields(logrus.Fields{"subject": codec.OrderSubject, "schema_id": id}).Info("Order schema registered")
	return registry, id
}
