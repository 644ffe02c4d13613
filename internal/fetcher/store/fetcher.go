// Package store serves raw events ingested through webhooks from the event
// store. It is the fallback retrieval path when a vendor API is unavailable,
// and the only path for providers without an API fetcher (Jenkins, Dynatrace).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/normalizer"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository"
	"github.com/BarkinBalci/dora-metrics-service/internal/series"
)

// Fetcher reads raw events from an EventRepository
type Fetcher struct {
	repository repository.EventRepository
	now        func() time.Time
	log        *zap.Logger
}

// NewFetcher creates a new event store fetcher
func NewFetcher(repo repository.EventRepository, log *zap.Logger) *Fetcher {
	return &Fetcher{
		repository: repo,
		now:        time.Now,
		log:        log,
	}
}

// FetchEvents returns events received since the start of the window.
// Webhooks for the same vendor record (a deployment moving from pending to
// success) are stored as separate events; only the last received is kept.
func (f *Fetcher) FetchEvents(ctx context.Context, source domain.DataSourceDescriptor, windowDays int) (*domain.RawEvents, error) {
	since := series.NewWindow(windowDays, f.now()).Start()

	stored, err := f.repository.GetEvents(ctx, repository.EventQuery{
		SourceID: source.ID,
		Since:    since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read event store: %w", err)
	}

	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].ReceivedAt.Before(stored[j].ReceivedAt)
	})

	var records []record
	latest := make(map[recordKey]int, len(stored))
	superseded := 0

	for _, event := range stored {
		kind := domain.EventKind(event.Kind)
		if !kind.Valid() {
			f.log.Warn("Skipping stored event with unknown kind",
				zap.String("event_id", event.EventID),
				zap.String("kind", event.Kind))
			continue
		}

		var payload domain.RawEvent
		if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
			f.log.Warn("Skipping stored event with invalid payload",
				zap.String("event_id", event.EventID),
				zap.Error(err))
			continue
		}

		key := recordKey{kind: kind, id: normalizer.RecordID(payload)}
		if key.id != "" {
			if i, ok := latest[key]; ok {
				records[i].payload = payload
				superseded++
				continue
			}
			latest[key] = len(records)
		}
		records = append(records, record{kind: kind, payload: payload})
	}

	if superseded > 0 {
		f.log.Debug("Collapsed repeated vendor records",
			zap.String("source_id", source.ID),
			zap.Int("superseded", superseded))
	}

	raw := &domain.RawEvents{}
	for _, r := range records {
		raw.Append(r.kind, r.payload)
	}
	return raw, nil
}

type recordKey struct {
	kind domain.EventKind
	id   string
}

type record struct {
	kind    domain.EventKind
	payload domain.RawEvent
}

// Ping checks that the event store is reachable
func (f *Fetcher) Ping(ctx context.Context, _ domain.DataSourceDescriptor) error {
	return f.repository.Ping(ctx)
}
