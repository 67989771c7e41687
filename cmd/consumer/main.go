package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-orders/internal/aggregate"
	"go-orders/internal/codec"
	"go-orders/internal/config"
	"go-orders/internal/dedupe"
	"go-orders/internal/kafka"
	"go-orders/internal/observability"
	"go-orders/internal/retry"
	"go-orders/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const metricsNamespace = "order_pipeline"

func main() {
	groupID := flag.String("group", "", "consumer group id (overrides KAFKA_CONSUMER_GROUP_ID)")
	flag.Parse()

	cfg := config.Load()
	if *groupID != "" {
		cfg.Consumer.GroupID = *groupID
	}

	observability.InitLogger(cfg.Logging.Level)
	logger := observability.GetLogger()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Consumer stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zapLogger, err := observability.NewZapLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewPrometheusMetrics(registry, metricsNamespace)
	if err != nil {
		return err
	}

	aggregator := aggregate.New()
	registry.MustRegister(aggregator.Collectors(metricsNamespace)...)

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	decoder := codec.NewAvroCodec(schemaRegistry(cfg, logger))

	store, closeStore, err := dedupeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		Acks:       cfg.Producer.Acks,
		ClientID:   cfg.Kafka.ClientID,
		Idempotent: cfg.Producer.Idempotent,
		Metrics:    metrics,
		Logger:     zapLogger.Named("producer"),
	})
	defer producer.Close()

	var scheduler service.DelayScheduler
	if cfg.Consumer.RetryMode == config.RetryModeScheduled {
		delayed := kafka.NewDelayedPublisher(producer, zapLogger.Named("delayed"))
		defer func() {
			if err := delayed.Close(); err != nil {
				logger.WithError(err).Error("Failed to flush scheduled retries")
			}
		}()
		scheduler = delayed
	}

	dispatcher, err := service.NewDispatcher(service.DispatcherConfig{
		Topics: service.Topics{
			Primary: cfg.Topics.Orders,
			Retry:   cfg.Topics.Retry,
			DLQ:     cfg.Topics.DLQ,
		},
		Policy: retry.Policy{
			MaxRetries: cfg.Consumer.MaxRetries,
			Delay:      cfg.Consumer.RetryDelay,
		},
		Decoder:            decoder,
		Processor:          service.NewOrderProcessor(service.NewRandomFailureSource(cfg.Consumer.FailureRate, cfg.Consumer.FailureSeed)),
		Aggregator:         aggregator,
		Publisher:          producer,
		Scheduler:          scheduler,
		Dedupe:             store,
		DecodeFailureToDLQ: cfg.Consumer.DecodeFailureToDLQ,
		Metrics:            metrics,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
		GroupID:  cfg.Consumer.GroupID,
		Subscriptions: []kafka.Subscription{
			{Topic: cfg.Topics.Orders, FromBeginning: true},
			{Topic: cfg.Topics.Retry},
		},
		Workers:       cfg.Consumer.Workers,
		FetchMinBytes: cfg.Consumer.FetchMinBytes,
		FetchMaxBytes: cfg.Consumer.FetchMaxBytes,
		MaxWait:       500 * time.Millisecond,
		Metrics:       metrics,
		Logger:        zapLogger.Named("consumer"),
	})
	defer consumer.Close()

	client := kafka.NewKafkaClient(cfg.Kafka.Brokers, []string{cfg.Topics.Orders, cfg.Topics.Retry, cfg.Topics.DLQ}, 5, zapLogger.Named("health"))
	if err := client.HealthCheck(ctx); err != nil {
		logger.WithError(err).Warn("Initial broker health check failed")
	}
	go client.HealthCheckLoop(ctx, cfg.Consumer.HealthInterval, nil)

	observability.WithFields(logrus.Fields{
		"brokers":     cfg.Kafka.Brokers,
		"group_id":    cfg.Consumer.GroupID,
		"max_retries": cfg.Consumer.MaxRetries,
		"retry_delay": cfg.Consumer.RetryDelay.String(),
		"retry_mode":  cfg.Consumer.RetryMode,
		"workers":     cfg.Consumer.Workers,
	}).Info("Order consumer started")

	err = consumer.Start(ctx, dispatcher.Handler())

	stats := dispatcher.Statistics()
	observability.WithFields(logrus.Fields{
		"processed_count": stats.Count,
		"running_total":   stats.Total,
		"running_average": stats.Average,
	}).Info("Final statistics")

	return err
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *logrus.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.WithField("addr", addr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()
	return srv
}

func schemaRegistry(cfg *config.Config, logger *logrus.Logger) codec.Registry {
	if cfg.Schema.RegistryURL != "" {
		observability.WithField("url", cfg.Schema.RegistryURL).Info("Using schema registry")
		registry, err := codec.NewRemoteRegistry(cfg.Schema.RegistryURL, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create schema registry client")
		}
		return registry
	}

	registry, err := codec.NewOrderRegistry(cfg.Schema.ID)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load embedded order schema")
	}
	logger.WithField("schema_id", cfg.Schema.ID).Info("Using embedded order schema")
	return registry
}

func dedupeStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (dedupe.Store, func(), error) {
	switch cfg.Dedupe.Backend {
	case "redis":
		store, err := dedupe.NewRedisStore(ctx, dedupe.RedisConfig{
			Addr: cfg.Dedupe.RedisAddr,
			TTL:  cfg.Dedupe.TTL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "none":
		return nil, func() {}, nil
	default:
		store := dedupe.NewInMemoryStore(cfg.Dedupe.TTL)
		return store, func() { _ = store.Close() }, nil
	}
}
