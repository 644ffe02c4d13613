package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// Refresher periodically aggregates every enabled source and stores the
// results. At most one refresh per source runs at a time; a trigger that
// finds its source still in flight is skipped.
type Refresher struct {
	aggregator MetricsAggregator
	sources    SourceLister
	cache      ResultCache
	interval   time.Duration
	windowDays int
	log        *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewRefresher creates a new refresher
func NewRefresher(aggregator MetricsAggregator, sources SourceLister, cache ResultCache, interval time.Duration, windowDays int, log *zap.Logger) *Refresher {
	return &Refresher{
		aggregator: aggregator,
		sources:    sources,
		cache:      cache,
		interval:   interval,
		windowDays: windowDays,
		log:        log,
		inFlight:   make(map[string]struct{}),
	}
}

// Start refreshes all sources immediately and then on every tick until ctx
// is cancelled. It waits for running refreshes before returning.
func (r *Refresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Refresher started",
		zap.Duration("interval", r.interval),
		zap.Int("window_days", r.windowDays))

	r.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.log.Info("Refresher stopped")
			return
		case <-ticker.C:
			r.dispatch(ctx)
		}
	}
}

// dispatch starts one refresh per enabled source
func (r *Refresher) dispatch(ctx context.Context) {
	for _, source := range r.sources.Enabled() {
		source := source
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if _, err := r.Refresh(ctx, &source); err != nil {
				r.log.Error("Refresh failed",
					zap.String("source_id", source.ID),
					zap.Error(err))
			}
		}()
	}
}

// Refresh aggregates one source and caches the result. It reports false
// without doing any work when a refresh of the same source is in flight.
func (r *Refresher) Refresh(ctx context.Context, source *domain.DataSourceDescriptor) (bool, error) {
	if !r.acquire(source.ID) {
		r.log.Info("Refresh already in flight, skipping",
			zap.String("source_id", source.ID))
		return false, nil
	}
	defer r.release(source.ID)

	start := time.Now()
	result, err := r.aggregator.Aggregate(ctx, source, r.windowDays)
	if err != nil {
		return true, fmt.Errorf("failed to aggregate %s: %w", source.ID, err)
	}

	if err := r.cache.Set(ctx, result); err != nil {
		return true, fmt.Errorf("failed to cache result for %s: %w", source.ID, err)
	}

	r.log.Info("Source refreshed",
		zap.String("source_id", source.ID),
		zap.Bool("degraded", result.Degraded),
		zap.String("strategy", result.Strategy),
		zap.Duration("duration", time.Since(start)))

	return true, nil
}

func (r *Refresher) acquire(sourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.inFlight[sourceID]; busy {
		return false
	}
	r.inFlight[sourceID] = struct{}{}
	return true
}

func (r *Refresher) release(sourceID string) {
	r.mu.Lock()
	delete(r.inFlight, sourceID)
	r.mu.Unlock()
}
