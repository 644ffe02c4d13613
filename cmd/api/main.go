package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/cache"
	rediscache "github.com/BarkinBalci/dora-metrics-service/internal/cache/redis"
	"github.com/BarkinBalci/dora-metrics-service/internal/calculator"
	"github.com/BarkinBalci/dora-metrics-service/internal/config"
	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher/github"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher/gitlab"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher/jira"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher/store"
	"github.com/BarkinBalci/dora-metrics-service/internal/handler"
	"github.com/BarkinBalci/dora-metrics-service/internal/logger"
	"github.com/BarkinBalci/dora-metrics-service/internal/queue/sqs"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository/clickhouse"
	"github.com/BarkinBalci/dora-metrics-service/internal/service"
	"github.com/BarkinBalci/dora-metrics-service/internal/source"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, cfg.Service.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort),
		zap.Int("window_days", cfg.Metrics.WindowDays))

	policy, err := calculator.ParseUnknownPolicy(cfg.Metrics.UnknownOutcomePolicy)
	if err != nil {
		log.Fatal("Invalid unknown outcome policy", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Data sources, hot-reloaded from the sources file
	registry := source.NewRegistry(loadSources(cfg.SourcesFile, log))
	go func() {
		err := config.WatchSources(ctx, cfg.SourcesFile, log, func(file *config.SourcesFile) {
			registry.Replace(file.Sources)
		})
		if err != nil {
			log.Warn("Sources file watcher not running", zap.String("path", cfg.SourcesFile), zap.Error(err))
		}
	}()

	// Initialize SQS client
	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		log.Fatal("Failed to create SQS client", zap.Error(err))
	}

	// Initialize ClickHouse client
	clickhouseClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func(clickhouseClient *clickhouse.Client) {
		if err := clickhouseClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}(clickhouseClient)

	repo := clickhouse.NewRepository(clickhouseClient, log)
	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Vendor fetchers first, the event store as fallback for every source
	chain := fetcher.NewChain().
		Register(domain.ProviderGitHub, "github_api", github.NewFetcher(log)).
		Register(domain.ProviderGitLab, "gitlab_api", gitlab.NewFetcher(log)).
		Register(domain.ProviderJira, "jira_api", jira.NewFetcher(log)).
		Fallback("event_store", store.NewFetcher(repo, log))

	aggregator := service.NewAggregator(chain, service.AggregatorConfig{
		UnknownPolicy: policy,
		FetchTimeout:  cfg.Metrics.FetchTimeout,
	}, log)

	resultCache := newResultCache(ctx, cfg, log)

	refresher := service.NewRefresher(aggregator, registry, resultCache,
		cfg.Metrics.RefreshInterval, cfg.Metrics.WindowDays, log)
	refresherDone := make(chan struct{})
	go func() {
		refresher.Start(ctx)
		close(refresherDone)
	}()

	metricsService := service.NewMetricsService(aggregator, registry, resultCache, chain, log)
	eventService := service.NewEventService(sqsClient, repo, registry, log)

	h := handler.NewHandler(eventService, metricsService, cfg.Metrics.WindowDays, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Service.APIPort),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("API server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down API service gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down API server", zap.Error(err))
	}

	cancel()
	<-refresherDone
}

// loadSources reads the initial sources. A missing or invalid file starts
// the service without sources so metrics fall back to defaults.
func loadSources(path string, log *zap.Logger) []domain.DataSourceDescriptor {
	file, err := config.LoadSources(path)
	if err != nil {
		log.Warn("No data sources loaded", zap.String("path", path), zap.Error(err))
		return nil
	}
	log.Info("Data sources loaded", zap.String("path", path), zap.Int("source_count", len(file.Sources)))
	return file.Sources
}

func newResultCache(ctx context.Context, cfg *config.Config, log *zap.Logger) service.ResultCache {
	if cfg.Redis.Enabled {
		client, err := rediscache.NewClient(ctx, cfg.Redis.URL, log)
		if err != nil {
			log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		return rediscache.NewCache(client, cfg.Redis.Prefix, cfg.Metrics.ResultTTL, log)
	}

	memory := cache.NewMemory(cfg.Metrics.ResultTTL, log)
	go memory.Run(ctx)
	return memory
}
