package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/projection"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
)

const projectionGroupID = "racegame-balance-projection"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

// run relays event_outbox rows to Kafka and keeps the balance projection
// current from the ledger topic.
func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-consumer connected to postgres")

	metrics := infra.NewMetrics(prometheus.NewRegistry())

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	source := repository.NewOutboxSource(repository.NewOutboxRepository(), pool)
	poller := infra.NewOutboxPoller(source, producer, cfg.KafkaTopicPrefix, metrics, logger)
	poller.Start(ctx)

	scheduler := infra.NewScheduler(cfg.Location(), logger)
	purge := infra.OutboxPurgeJob(source, cfg.OutboxRetention, time.Now, logger)
	if err := scheduler.Every(ctx, cfg.OutboxPurgeSpec, "outbox_purge", purge); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, projection.LedgerTopic(cfg.KafkaTopicPrefix), projectionGroupID, cfg.KafkaEnabled, logger)
	defer consumer.Close()

	projector := projection.NewProjector(projection.NewInMemoryStore(), logger)
	logger.Info("outbox-consumer starting", "topic_prefix", cfg.KafkaTopicPrefix, "projection", consumer.Enabled())

	if err := consumer.Consume(ctx, projector.HandleMessage); err != nil {
		return fmt.Errorf("consume ledger topic: %w", err)
	}
	logger.Info("outbox-consumer shutting down")
	return nil
}
