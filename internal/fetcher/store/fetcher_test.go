package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository"
)

// MockEventRepository is a mock implementation of repository.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []*domain.StoredEvent) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) InitSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockEventRepository) Close() error {
	return m.Called().Error(0)
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

var referenceNow = time.Date(2025, 3, 7, 15, 0, 0, 0, time.UTC)

func newTestFetcher(repo repository.EventRepository) *Fetcher {
	f := NewFetcher(repo, zap.NewNop())
	f.now = func() time.Time { return referenceNow }
	return f
}

func TestFetcher_FetchEvents_PartitionsByKind(t *testing.T) {
	mockRepo := new(MockEventRepository)
	f := newTestFetcher(mockRepo)
	source := domain.DataSourceDescriptor{ID: "ci", Provider: domain.ProviderJenkins}

	mockRepo.On("GetEvents", mock.Anything, repository.EventQuery{
		SourceID: "ci",
		Since:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}).Return([]*domain.StoredEvent{
		{EventID: "1", Kind: "deployment", Payload: `{"number": 1, "timestamp": 1741000000000, "result": "SUCCESS"}`},
		{EventID: "2", Kind: "incident", Payload: `{"problemId": "P-1", "startTime": 1741000000000, "endTime": -1}`},
		{EventID: "3", Kind: "release", Payload: `{}`},
		{EventID: "4", Kind: "change", Payload: `not json`},
	}, nil)

	raw, err := f.FetchEvents(context.Background(), source, 7)

	require.NoError(t, err)
	assert.Len(t, raw.Deployments, 1)
	assert.Empty(t, raw.Changes)
	assert.Len(t, raw.Incidents, 1)
	assert.Equal(t, "P-1", raw.Incidents[0]["problemId"])
	mockRepo.AssertExpectations(t)
}

func TestFetcher_FetchEvents_KeepsLatestPerVendorRecord(t *testing.T) {
	mockRepo := new(MockEventRepository)
	f := newTestFetcher(mockRepo)
	source := domain.DataSourceDescriptor{ID: "web-github", Type: domain.SourceTypeSCM, Provider: domain.ProviderGitHub}

	at := func(minute int) time.Time { return referenceNow.Add(-time.Hour + time.Duration(minute)*time.Minute) }

	mockRepo.On("GetEvents", mock.Anything, mock.Anything).Return([]*domain.StoredEvent{
		{EventID: "h2", Kind: "deployment", ReceivedAt: at(5), Payload: `{"id": 42, "created_at": "2025-03-07T14:00:00Z", "state": "success"}`},
		{EventID: "h1", Kind: "deployment", ReceivedAt: at(1), Payload: `{"id": 42, "created_at": "2025-03-07T14:00:00Z", "state": "pending"}`},
		{EventID: "h3", Kind: "incident", ReceivedAt: at(2), Payload: `{"id": 42, "created_at": "2025-03-07T14:10:00Z"}`},
		{EventID: "h4", Kind: "deployment", ReceivedAt: at(3), Payload: `{"created_at": "2025-03-07T14:20:00Z"}`},
		{EventID: "h5", Kind: "deployment", ReceivedAt: at(4), Payload: `{"created_at": "2025-03-07T14:20:00Z"}`},
	}, nil)

	raw, err := f.FetchEvents(context.Background(), source, 1)

	require.NoError(t, err)
	// id 42 collapses to its last delivery; records without an id are kept
	require.Len(t, raw.Deployments, 3)
	assert.Equal(t, "success", raw.Deployments[0]["state"])
	// the same id under another kind is a different record
	assert.Len(t, raw.Incidents, 1)
}

func TestFetcher_FetchEvents_RepositoryError(t *testing.T) {
	mockRepo := new(MockEventRepository)
	f := newTestFetcher(mockRepo)

	mockRepo.On("GetEvents", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	raw, err := f.FetchEvents(context.Background(), domain.DataSourceDescriptor{ID: "ci"}, 7)

	assert.Error(t, err)
	assert.Nil(t, raw)
	assert.Contains(t, err.Error(), "failed to read event store")
}

func TestFetcher_Ping(t *testing.T) {
	mockRepo := new(MockEventRepository)
	f := newTestFetcher(mockRepo)

	mockRepo.On("Ping", mock.Anything).Return(nil)

	assert.NoError(t, f.Ping(context.Background(), domain.DataSourceDescriptor{}))
	mockRepo.AssertExpectations(t)
}
