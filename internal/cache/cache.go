// Package cache stores the latest AggregationResult per data source.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// ErrNotCached is returned when no fresh result exists for a source
var ErrNotCached = errors.New("result not cached")

type entry struct {
	result    *domain.AggregationResult
	updatedAt time.Time
}

// Memory is an in-process result cache. Entries older than the TTL are
// hidden from readers and removed by Run.
type Memory struct {
	mu   sync.RWMutex
	data map[string]entry
	ttl  time.Duration
	now  func() time.Time
	log  *zap.Logger
}

// NewMemory creates a memory cache with the given TTL
func NewMemory(ttl time.Duration, log *zap.Logger) *Memory {
	return &Memory{
		data: make(map[string]entry),
		ttl:  ttl,
		now:  time.Now,
		log:  log,
	}
}

// Set stores or replaces the result for result.SourceID
func (m *Memory) Set(_ context.Context, result *domain.AggregationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[result.SourceID] = entry{result: result, updatedAt: m.now()}
	return nil
}

// Get returns the fresh result for sourceID or ErrNotCached
func (m *Memory) Get(_ context.Context, sourceID string) (*domain.AggregationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[sourceID]
	if !ok || !m.fresh(e, m.now()) {
		return nil, ErrNotCached
	}
	return e.result, nil
}

// List returns all fresh results ordered by source ID
func (m *Memory) List(_ context.Context) ([]*domain.AggregationResult, error) {
	m.mu.RLock()
	now := m.now()
	out := make([]*domain.AggregationResult, 0, len(m.data))
	for _, e := range m.data {
		if m.fresh(e, now) {
			out = append(out, e.result)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

// Evict removes stale entries and returns how many were removed
func (m *Memory) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.data {
		if !m.fresh(e, now) {
			delete(m.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (at least once a second) until
// ctx is cancelled
func (m *Memory) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Evict(now); n > 0 {
				m.log.Debug("Evicted stale results", zap.Int("count", n))
			}
		}
	}
}

// zero TTL keeps entries forever
func (m *Memory) fresh(e entry, now time.Time) bool {
	return m.ttl <= 0 || now.Sub(e.updatedAt) < m.ttl
}
