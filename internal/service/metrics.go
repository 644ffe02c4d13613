package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
)

var (
	// ErrSourceRequired is returned when a request omits source_id and the
	// source cannot be inferred
	ErrSourceRequired = errors.New("source_id is required")
	// ErrUnknownMetric is returned for metric names outside the four DORA metrics
	ErrUnknownMetric = errors.New("unknown metric")
)

var metricNames = map[string]string{
	"deployment-frequency": domain.MetricDeploymentFrequency,
	"lead-time":            domain.MetricLeadTime,
	"change-failure-rate":  domain.MetricChangeFailureRate,
	"mttr":                 domain.MetricMeanTimeToRecovery,
}

// ParseMetricName maps a URL metric slug to its result field name
func ParseMetricName(slug string) (string, error) {
	name, ok := metricNames[slug]
	if !ok {
		return "", fmt.Errorf("%w: %s (supported: deployment-frequency, lead-time, change-failure-rate, mttr)", ErrUnknownMetric, slug)
	}
	return name, nil
}

// MetricsService serves on-demand and cached DORA metrics
type MetricsService struct {
	aggregator MetricsAggregator
	sources    SourceLister
	cache      ResultCache
	pingers    PingerProvider
	log        *zap.Logger
}

// NewMetricsService creates a new metrics service
func NewMetricsService(aggregator MetricsAggregator, sources SourceLister, cache ResultCache, pingers PingerProvider, log *zap.Logger) *MetricsService {
	return &MetricsService{
		aggregator: aggregator,
		sources:    sources,
		cache:      cache,
		pingers:    pingers,
		log:        log,
	}
}

// Dashboard aggregates the source on demand. An empty sourceID resolves to
// the only enabled source; with no sources configured the defaults are
// returned with DataUnavailable set.
func (s *MetricsService) Dashboard(ctx context.Context, sourceID string, windowDays int) (*domain.AggregationResult, error) {
	source, err := s.resolve(sourceID)
	if err != nil {
		return nil, err
	}

	result, err := s.aggregator.Aggregate(ctx, source, windowDays)
	if err != nil {
		return nil, err
	}

	s.log.Info("Metrics aggregated",
		zap.String("source_id", result.SourceID),
		zap.Int("window_days", windowDays),
		zap.Bool("data_unavailable", result.DataUnavailable),
		zap.Bool("degraded", result.Degraded),
		zap.String("strategy", result.Strategy))

	return result, nil
}

func (s *MetricsService) resolve(sourceID string) (*domain.DataSourceDescriptor, error) {
	if sourceID != "" {
		return s.sources.Get(sourceID)
	}

	enabled := s.sources.Enabled()
	switch len(enabled) {
	case 0:
		return nil, nil
	case 1:
		return &enabled[0], nil
	}
	return nil, fmt.Errorf("%w: %d sources are enabled", ErrSourceRequired, len(enabled))
}

// Latest returns the cached result of the last refresh for a source
func (s *MetricsService) Latest(ctx context.Context, sourceID string) (*domain.AggregationResult, error) {
	if _, err := s.sources.Get(sourceID); err != nil {
		return nil, err
	}
	return s.cache.Get(ctx, sourceID)
}

// LatestAll returns every cached result
func (s *MetricsService) LatestAll(ctx context.Context) ([]*domain.AggregationResult, error) {
	return s.cache.List(ctx)
}

// Sources returns all configured sources
func (s *MetricsService) Sources() []domain.DataSourceDescriptor {
	return s.sources.List()
}

// TestConnection verifies connectivity and credentials for a source using
// its primary fetcher
func (s *MetricsService) TestConnection(ctx context.Context, sourceID string) error {
	source, err := s.sources.Get(sourceID)
	if err != nil {
		return err
	}

	pinger, ok := s.pingers.Pinger(source.Provider)
	if !ok {
		return fmt.Errorf("%w: no connection test for provider %s", fetcher.ErrUnsupportedSource, source.Provider)
	}

	if err := pinger.Ping(ctx, *source); err != nil {
		s.log.Warn("Connection test failed",
			zap.String("source_id", source.ID),
			zap.String("provider", string(source.Provider)),
			zap.Error(err))
		return err
	}
	return nil
}
