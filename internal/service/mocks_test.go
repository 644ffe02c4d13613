package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
	"github.com/BarkinBalci/dora-metrics-service/internal/queue"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository"
)

// MockQueuePublisher is a mock implementation of queue.QueuePublisher
type MockQueuePublisher struct {
	mock.Mock
}

func (m *MockQueuePublisher) PublishRawEvent(ctx context.Context, msg *queue.RawEventMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockEventRepository is a mock implementation of repository.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []*domain.StoredEvent) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) InitSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockEventRepository) GetEvents(ctx context.Context, query repository.EventQuery) ([]*domain.StoredEvent, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StoredEvent), args.Error(1)
}

func (m *MockEventRepository) GetIngestStats(ctx context.Context, query repository.IngestStatsQuery) (*repository.IngestStats, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.IngestStats), args.Error(1)
}

// MockAggregator is a mock implementation of MetricsAggregator
type MockAggregator struct {
	mock.Mock
}

func (m *MockAggregator) Aggregate(ctx context.Context, source *domain.DataSourceDescriptor, windowDays int) (*domain.AggregationResult, error) {
	args := m.Called(ctx, source, windowDays)
	if fn, ok := args.Get(0).(func(context.Context, *domain.DataSourceDescriptor, int) *domain.AggregationResult); ok {
		return fn(ctx, source, windowDays), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AggregationResult), args.Error(1)
}

// MockResultCache is a mock implementation of ResultCache
type MockResultCache struct {
	mock.Mock
}

func (m *MockResultCache) Set(ctx context.Context, result *domain.AggregationResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultCache) Get(ctx context.Context, sourceID string) (*domain.AggregationResult, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AggregationResult), args.Error(1)
}

func (m *MockResultCache) List(ctx context.Context) ([]*domain.AggregationResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AggregationResult), args.Error(1)
}

// MockPinger is a mock implementation of fetcher.Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context, source domain.DataSourceDescriptor) error {
	args := m.Called(ctx, source)
	return args.Error(0)
}

// pingers maps providers to pingers for tests
type pingers map[domain.Provider]fetcher.Pinger

func (p pingers) Pinger(provider domain.Provider) (fetcher.Pinger, bool) {
	pinger, ok := p[provider]
	return pinger, ok
}

// staticStrategies serves a fixed strategy list for every source
type staticStrategies []fetcher.Strategy

func (s staticStrategies) StrategiesFor(domain.DataSourceDescriptor) []fetcher.Strategy {
	return s
}
