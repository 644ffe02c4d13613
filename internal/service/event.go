package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/dto"
	"github.com/BarkinBalci/dora-metrics-service/internal/queue"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository"
)

// ErrInvalidEvent is returned for webhook events that cannot be accepted
var ErrInvalidEvent = errors.New("invalid event")

// EventService accepts raw vendor webhook events and publishes them to the
// queue for the consumer to persist
type EventService struct {
	publisher  queue.QueuePublisher
	repository repository.EventRepository
	sources    SourceLister
	now        func() time.Time
	log        *zap.Logger
}

// NewEventService creates a new event service
func NewEventService(publisher queue.QueuePublisher, repo repository.EventRepository, sources SourceLister, log *zap.Logger) *EventService {
	return &EventService{
		publisher:  publisher,
		repository: repo,
		sources:    sources,
		now:        time.Now,
		log:        log,
	}
}

// computeEventID generates a deterministic event ID from the event content:
// SHA-256 of source_id|kind|compacted payload. Redelivered webhooks with the
// same body get the same ID and collapse in the store.
func computeEventID(sourceID, kind string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(sourceID))
	h.Write([]byte{'|'})
	h.Write([]byte(kind))
	h.Write([]byte{'|'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ProcessEvent validates a single event and publishes it
func (s *EventService) ProcessEvent(ctx context.Context, event *dto.PublishEventRequest) (string, error) {
	kind := domain.EventKind(event.Kind)
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, event.Kind)
	}

	if _, err := s.sources.Get(event.SourceID); err != nil {
		s.log.Warn("Event for unknown source",
			zap.String("source_id", event.SourceID),
			zap.String("kind", event.Kind))
		return "", err
	}

	var payload bytes.Buffer
	if err := json.Compact(&payload, event.Payload); err != nil {
		return "", fmt.Errorf("%w: payload is not valid JSON: %v", ErrInvalidEvent, err)
	}
	if payload.Len() == 0 || payload.Bytes()[0] != '{' {
		return "", fmt.Errorf("%w: payload must be a JSON object", ErrInvalidEvent)
	}

	eventID := computeEventID(event.SourceID, event.Kind, payload.Bytes())

	msg := &queue.RawEventMessage{
		EventID:    eventID,
		SourceID:   event.SourceID,
		Kind:       event.Kind,
		Payload:    json.RawMessage(payload.Bytes()),
		ReceivedAt: s.now().UnixMilli(),
	}

	if err := s.publisher.PublishRawEvent(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to publish event to queue: %w", err)
	}

	return eventID, nil
}

// ProcessBulkEvents validates and processes multiple events
func (s *EventService) ProcessBulkEvents(ctx context.Context, events []dto.PublishEventRequest) ([]string, []string, error) {
	var eventIDs []string
	var errs []string

	for i := range events {
		eventID, err := s.ProcessEvent(ctx, &events[i])
		if err != nil {
			errs = append(errs, fmt.Sprintf("event %d: %s", i, err.Error()))
			s.log.Warn("Failed to process event in bulk",
				zap.Int("index", i),
				zap.Error(err),
				zap.String("source_id", events[i].SourceID))
			continue
		}
		eventIDs = append(eventIDs, eventID)
	}

	return eventIDs, errs, nil
}

// GetIngestStats counts ingested events for a source
func (s *EventService) GetIngestStats(ctx context.Context, req *dto.IngestStatsRequest) (*dto.IngestStatsResponse, error) {
	if req.From > req.To {
		s.log.Warn("Invalid time range for ingest stats",
			zap.Int64("from", req.From),
			zap.Int64("to", req.To),
			zap.String("source_id", req.SourceID))
		return nil, fmt.Errorf("%w: from timestamp must be less than or equal to to timestamp", ErrInvalidEvent)
	}

	if req.GroupBy != "" && req.GroupBy != "kind" && req.GroupBy != "day" {
		s.log.Warn("Invalid group_by value",
			zap.String("group_by", req.GroupBy))
		return nil, fmt.Errorf("%w: invalid group_by value: %s (supported: kind, day)", ErrInvalidEvent, req.GroupBy)
	}

	if _, err := s.sources.Get(req.SourceID); err != nil {
		return nil, err
	}

	result, err := s.repository.GetIngestStats(ctx, repository.IngestStatsQuery{
		SourceID: req.SourceID,
		From:     req.From,
		To:       req.To,
		GroupBy:  req.GroupBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get ingest stats from repository: %w", err)
	}

	response := &dto.IngestStatsResponse{
		SourceID:   req.SourceID,
		From:       req.From,
		To:         req.To,
		TotalCount: result.TotalCount,
		GroupBy:    req.GroupBy,
		Groups:     make([]dto.IngestStatsGroup, 0, len(result.Groups)),
	}
	for _, group := range result.Groups {
		response.Groups = append(response.Groups, dto.IngestStatsGroup{
			GroupValue: group.GroupValue,
			TotalCount: group.TotalCount,
		})
	}

	return response, nil
}
