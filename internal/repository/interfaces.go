package repository

import (
	"context"
	"time"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// EventQuery selects stored raw events for one source
type EventQuery struct {
	SourceID string
	Since    time.Time
}

// IngestStatsQuery represents ingestion statistics query parameters
type IngestStatsQuery struct {
	SourceID string
	From     int64
	To       int64
	GroupBy  string
}

// IngestStatsGroup represents the event count for a specific group
type IngestStatsGroup struct {
	GroupValue string
	TotalCount uint64
}

// IngestStats represents the result of an ingestion statistics query
type IngestStats struct {
	TotalCount uint64
	Groups     []IngestStatsGroup
}

// EventRepository defines the interface for raw event storage operations
type EventRepository interface {
	// InsertBatch inserts a batch of events into the storage
	InsertBatch(ctx context.Context, events []*domain.StoredEvent) (int, error)

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error

	// GetEvents returns the deduplicated events of a source received since query.Since
	GetEvents(ctx context.Context, query EventQuery) ([]*domain.StoredEvent, error)

	// GetIngestStats counts stored events, optionally grouped by kind or day
	GetIngestStats(ctx context.Context, query IngestStatsQuery) (*IngestStats, error)
}
