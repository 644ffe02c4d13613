package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/calculator"
	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
	"github.com/BarkinBalci/dora-metrics-service/internal/normalizer"
)

// ErrInvalidWindow is returned when the requested window is outside
// [1, MaxWindowDays] days
var ErrInvalidWindow = errors.New("invalid window")

// MaxWindowDays is ten years of daily points
const MaxWindowDays = 3650

// ValidateWindow rejects windows the series builder must not be asked for
func ValidateWindow(windowDays int) error {
	if windowDays < 1 || windowDays > MaxWindowDays {
		return fmt.Errorf("%w: window_days must be between 1 and %d, got %d", ErrInvalidWindow, MaxWindowDays, windowDays)
	}
	return nil
}

// StrategyProvider resolves the ordered retrieval strategies for a source
type StrategyProvider interface {
	StrategiesFor(source domain.DataSourceDescriptor) []fetcher.Strategy
}

// AggregatorConfig configures the aggregator
type AggregatorConfig struct {
	UnknownPolicy calculator.UnknownPolicy
	// FetchTimeout bounds each strategy attempt; zero leaves it to the fetcher
	FetchTimeout time.Duration
	// Now is the reference clock; nil means time.Now
	Now func() time.Time
}

// Aggregator turns one data source into an AggregationResult. It never
// fails on upstream trouble: fetch errors fall through to the next strategy
// and finally to static defaults.
type Aggregator struct {
	strategies StrategyProvider
	config     AggregatorConfig
	log        *zap.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(strategies StrategyProvider, config AggregatorConfig, log *zap.Logger) *Aggregator {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.UnknownPolicy == "" {
		config.UnknownPolicy = calculator.UnknownExclude
	}
	return &Aggregator{
		strategies: strategies,
		config:     config,
		log:        log,
	}
}

// Aggregate fetches, normalizes and computes the four metrics for source.
// The only error is ErrInvalidWindow.
func (a *Aggregator) Aggregate(ctx context.Context, source *domain.DataSourceDescriptor, windowDays int) (*domain.AggregationResult, error) {
	if err := ValidateWindow(windowDays); err != nil {
		return nil, err
	}

	now := a.config.Now().UTC()

	if source == nil || !source.Enabled {
		result := Defaults("", windowDays, now)
		if source != nil {
			result.SourceID = source.ID
		}
		result.DataUnavailable = true
		a.log.Info("No data source available, returning defaults",
			zap.String("source_id", result.SourceID))
		return result, nil
	}

	strategies := a.strategies.StrategiesFor(*source)
	if len(strategies) == 0 {
		result := Defaults(source.ID, windowDays, now)
		result.DataUnavailable = true
		a.log.Warn("No retrieval strategy for source",
			zap.String("source_id", source.ID),
			zap.String("provider", string(source.Provider)))
		return result, nil
	}

	raw, strategy, ok := a.fetch(ctx, *source, windowDays, strategies)
	if !ok {
		result := Defaults(source.ID, windowDays, now)
		result.Degraded = true
		a.log.Warn("All retrieval strategies failed, returning defaults",
			zap.String("source_id", source.ID),
			zap.Int("strategies", len(strategies)))
		return result, nil
	}

	matcher, err := calculator.MatcherFor(source.LeadTimeMatcher)
	if err != nil {
		a.log.Warn("Unknown lead time matcher, using resolved_at",
			zap.String("source_id", source.ID),
			zap.Error(err))
		matcher = calculator.ResolvedAtMatcher{}
	}

	events, stats := normalizer.NormalizeEvents(raw, source.Type)
	if dropped := stats.Total(); dropped > 0 {
		a.log.Warn("Dropped malformed events",
			zap.String("source_id", source.ID),
			zap.Int("dropped", dropped))
	}

	result := Compute(events, source.Type, windowDays, now, a.config.UnknownPolicy, matcher)
	result.SourceID = source.ID
	result.Strategy = strategy
	result.Degraded = strategy != strategies[0].Name
	result.Dropped = stats.Dropped
	return result, nil
}

// fetch tries strategies in order and returns the first success
func (a *Aggregator) fetch(ctx context.Context, source domain.DataSourceDescriptor, windowDays int, strategies []fetcher.Strategy) (*domain.RawEvents, string, bool) {
	for _, s := range strategies {
		raw, err := a.fetchOne(ctx, source, windowDays, s)
		if err != nil {
			a.log.Warn("Retrieval strategy failed, degrading",
				zap.String("source_id", source.ID),
				zap.String("strategy", s.Name),
				zap.Error(err))
			continue
		}
		if raw == nil {
			raw = &domain.RawEvents{}
		}
		a.log.Debug("Fetched events",
			zap.String("source_id", source.ID),
			zap.String("strategy", s.Name),
			zap.Int("records", raw.Len()))
		return raw, s.Name, true
	}
	return nil, "", false
}

func (a *Aggregator) fetchOne(ctx context.Context, source domain.DataSourceDescriptor, windowDays int, s fetcher.Strategy) (*domain.RawEvents, error) {
	if a.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.FetchTimeout)
		defer cancel()
	}

	raw, err := s.Fetcher.FetchEvents(ctx, source, windowDays)
	if err != nil {
		return nil, err
	}
	// a fetcher that ignores its deadline still counts as timed out
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return raw, nil
}

// Compute derives all four metrics from normalized events. SCM sources
// measure failure rate over deployments, ITSM sources over changes.
func Compute(events *normalizer.Events, sourceType domain.SourceType, windowDays int, now time.Time, policy calculator.UnknownPolicy, matcher calculator.ChangeMatcher) *domain.AggregationResult {
	failureBase := events.Deployments
	if sourceType == domain.SourceTypeITSM {
		failureBase = events.Changes
	}

	return &domain.AggregationResult{
		WindowDays:          windowDays,
		DeploymentFrequency: calculator.DeploymentFrequency(events.Deployments, windowDays, now),
		LeadTime:            calculator.LeadTime(events.Changes, events.Deployments, windowDays, now, matcher),
		ChangeFailureRate:   calculator.ChangeFailureRate(failureBase, windowDays, now, policy),
		MeanTimeToRecovery:  calculator.MeanTimeToRecovery(events.Incidents, windowDays, now),
	}
}

// Defaults returns the static result used when no data can be obtained:
// every summary zero with its unit and no series
func Defaults(sourceID string, windowDays int, now time.Time) *domain.AggregationResult {
	return &domain.AggregationResult{
		SourceID:            sourceID,
		WindowDays:          windowDays,
		DeploymentFrequency: defaultMetric(domain.UnitDeploymentsPerDay, now),
		LeadTime:            defaultMetric(domain.UnitHours, now),
		ChangeFailureRate:   defaultMetric(domain.UnitPercent, now),
		MeanTimeToRecovery:  defaultMetric(domain.UnitHours, now),
		Dropped:             map[domain.EventKind]int{},
	}
}

func defaultMetric(unit string, now time.Time) domain.MetricResult {
	return domain.MetricResult{
		Summary: domain.MetricSummary{Value: 0, Unit: unit, Timestamp: now.UTC()},
		Series:  []domain.SeriesPoint{},
	}
}
