package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository"
)

// Repository implements EventRepository for ClickHouse
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
	}
}

// createRawEventsTable keeps the highest version per (source_id, event_id)
// so redelivered webhooks collapse. ReplacingMergeTree only merges inside a
// partition, so the partition key is derived from source_id alone: copies of
// one event received months apart still land together.
const createRawEventsTable = `
	CREATE TABLE IF NOT EXISTS raw_events (
		event_id String,
		source_id LowCardinality(String),
		kind LowCardinality(String),
		payload String,
		received_at DateTime64(3, 'UTC'),
		version UInt64
	) ENGINE = ReplacingMergeTree(version)
	PARTITION BY source_id
	ORDER BY (source_id, event_id)
	SETTINGS index_granularity = 8192
	`

// InitSchema creates the raw_events table
func (r *Repository) InitSchema(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, createRawEventsTable); err != nil {
		return fmt.Errorf("failed to create raw_events table: %w", err)
	}

	r.log.Info("ClickHouse schema initialized successfully")
	return nil
}

// InsertBatch inserts a batch of raw events into ClickHouse
func (r *Repository) InsertBatch(ctx context.Context, events []*domain.StoredEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := r.client.Conn().PrepareBatch(ctx, "INSERT INTO raw_events")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	insertedCount := 0
	for _, event := range events {
		if event.Version == 0 {
			event.Version = uint64(time.Now().UnixNano())
		}

		payload := event.Payload
		if payload == "" {
			payload = "{}"
		}

		err := batch.Append(
			event.EventID,
			event.SourceID,
			event.Kind,
			payload,
			event.ReceivedAt.UTC(),
			event.Version,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to append event to batch: %w", err)
		}
		insertedCount++
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return insertedCount, nil
}

// GetEvents returns deduplicated raw events for a source, oldest first
func (r *Repository) GetEvents(ctx context.Context, query repository.EventQuery) ([]*domain.StoredEvent, error) {
	var rows []domain.StoredEvent

	err := r.client.Conn().Select(ctx, &rows, `
		SELECT event_id, source_id, kind, payload, received_at, version
		FROM raw_events FINAL
		WHERE source_id = ? AND received_at >= ?
		ORDER BY received_at ASC
	`, query.SourceID, query.Since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query raw events: %w", err)
	}

	events := make([]*domain.StoredEvent, len(rows))
	for i := range rows {
		events[i] = &rows[i]
	}
	return events, nil
}

// GetIngestStats counts stored events for a source in [From, To] (unix
// seconds), optionally grouped by kind or day
func (r *Repository) GetIngestStats(ctx context.Context, query repository.IngestStatsQuery) (*repository.IngestStats, error) {
	result := &repository.IngestStats{
		Groups: []repository.IngestStatsGroup{},
	}

	whereClause := "WHERE source_id = ? AND received_at >= toDateTime64(?, 3, 'UTC') AND received_at <= toDateTime64(?, 3, 'UTC')"
	args := []interface{}{query.SourceID, query.From, query.To}

	row := r.client.Conn().QueryRow(ctx, fmt.Sprintf(`
		SELECT count() AS total_count
		FROM raw_events FINAL
		%s
	`, whereClause), args...)
	if err := row.Scan(&result.TotalCount); err != nil {
		return nil, fmt.Errorf("failed to query ingest totals: %w", err)
	}

	if query.GroupBy == "" {
		return result, nil
	}

	var selectField, groupByClause, orderBy string
	switch query.GroupBy {
	case "kind":
		selectField = "toString(kind)"
		groupByClause = "GROUP BY kind"
		orderBy = "ORDER BY total_count DESC"
	case "day":
		selectField = "formatDateTime(toStartOfDay(received_at), '%Y-%m-%d')"
		groupByClause = "GROUP BY toStartOfDay(received_at)"
		orderBy = "ORDER BY group_value ASC"
	default:
		return nil, fmt.Errorf("unsupported group_by value: %s (supported: kind, day)", query.GroupBy)
	}

	rows, err := r.client.Conn().Query(ctx, fmt.Sprintf(`
		SELECT
			%s AS group_value,
			count() AS total_count
		FROM raw_events FINAL
		%s
		%s
		%s
	`, selectField, whereClause, groupByClause, orderBy), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grouped ingest stats: %w", err)
	}
	defer func(rows driver.Rows) {
		if err := rows.Close(); err != nil {
			r.log.Error("Failed to close ingest stats rows", zap.Error(err))
		}
	}(rows)

	for rows.Next() {
		var group repository.IngestStatsGroup
		if err := rows.Scan(&group.GroupValue, &group.TotalCount); err != nil {
			return nil, fmt.Errorf("failed to scan ingest stats row: %w", err)
		}
		result.Groups = append(result.Groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingest stats rows: %w", err)
	}

	return result, nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}
