package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/config"
	"github.com/BarkinBalci/dora-metrics-service/internal/consumer"
	"github.com/BarkinBalci/dora-metrics-service/internal/logger"
	"github.com/BarkinBalci/dora-metrics-service/internal/queue/sqs"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository/clickhouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Service.Environment, cfg.Service.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Raw event consumer failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting raw event consumer",
		zap.String("environment", cfg.Service.Environment),
		zap.String("queue_url", cfg.SQS.QueueURL),
		zap.Int("batch_size_max", cfg.Consumer.BatchSizeMax),
		zap.Int("batch_timeout_sec", cfg.Consumer.BatchTimeoutSec))

	chClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		return fmt.Errorf("create clickhouse client: %w", err)
	}
	defer func() {
		if err := chClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}()

	repo := clickhouse.NewRepository(chClient, log)
	if err := repo.InitSchema(ctx); err != nil {
		return fmt.Errorf("init event store schema: %w", err)
	}

	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		return fmt.Errorf("create sqs client: %w", err)
	}

	health := newHealthServer(":"+cfg.Consumer.HealthCheckPort, repo, log)
	go func() {
		log.Info("Health check server starting", zap.String("address", health.Addr))
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Health check server error", zap.Error(err))
		}
	}()

	// Start returns once the batch writer has flushed what it holds
	if err := consumer.NewConsumer(cfg, sqsClient, repo, log).Start(ctx); err != nil {
		return fmt.Errorf("consume raw events: %w", err)
	}
	log.Info("Raw event consumer stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return health.Shutdown(shutdownCtx)
}

// newHealthServer reports 503 while the event store is unreachable
func newHealthServer(addr string, repo repository.EventRepository, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
