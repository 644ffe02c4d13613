package service

import (
	"context"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/dto"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
)

// EventServicer defines the interface for webhook ingestion operations
type EventServicer interface {
	ProcessEvent(ctx context.Context, event *dto.PublishEventRequest) (string, error)
	ProcessBulkEvents(ctx context.Context, events []dto.PublishEventRequest) ([]string, []string, error)
	GetIngestStats(ctx context.Context, req *dto.IngestStatsRequest) (*dto.IngestStatsResponse, error)
}

// MetricsServicer defines the interface for DORA metrics operations
type MetricsServicer interface {
	Dashboard(ctx context.Context, sourceID string, windowDays int) (*domain.AggregationResult, error)
	Latest(ctx context.Context, sourceID string) (*domain.AggregationResult, error)
	LatestAll(ctx context.Context) ([]*domain.AggregationResult, error)
	Sources() []domain.DataSourceDescriptor
	TestConnection(ctx context.Context, sourceID string) error
}

// MetricsAggregator computes an AggregationResult for one source
type MetricsAggregator interface {
	Aggregate(ctx context.Context, source *domain.DataSourceDescriptor, windowDays int) (*domain.AggregationResult, error)
}

// ResultCache stores the latest AggregationResult per source
type ResultCache interface {
	Set(ctx context.Context, result *domain.AggregationResult) error
	Get(ctx context.Context, sourceID string) (*domain.AggregationResult, error)
	List(ctx context.Context) ([]*domain.AggregationResult, error)
}

// SourceLister resolves configured data sources
type SourceLister interface {
	Get(id string) (*domain.DataSourceDescriptor, error)
	List() []domain.DataSourceDescriptor
	Enabled() []domain.DataSourceDescriptor
}

// PingerProvider resolves the connectivity check for a provider
type PingerProvider interface {
	Pinger(provider domain.Provider) (fetcher.Pinger, bool)
}
