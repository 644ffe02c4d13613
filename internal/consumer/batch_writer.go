package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository"
)

// BatchWriterConfig configures the batch writer
type BatchWriterConfig struct {
	MaxBatchSize int
	FlushTimeout time.Duration
}

// BatchWriter buffers envelopes and writes them to the event store in batches
type BatchWriter struct {
	repository repository.EventRepository
	config     BatchWriterConfig
	log        *zap.Logger
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(repo repository.EventRepository, config BatchWriterConfig, log *zap.Logger) *BatchWriter {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 1
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = 10 * time.Second
	}
	return &BatchWriter{
		repository: repo,
		config:     config,
		log:        log,
	}
}

// Start batches envelopes from in and flushes on size or timeout. Pending
// envelopes are flushed when in closes or ctx is done.
func (w *BatchWriter) Start(ctx context.Context, in <-chan *Envelope) {
	ticker := time.NewTicker(w.config.FlushTimeout)
	defer ticker.Stop()

	batch := make([]*Envelope, 0, w.config.MaxBatchSize)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Batch writer shutting down")
			w.flush(context.WithoutCancel(ctx), batch, "shutdown")
			return

		case envelope, ok := <-in:
			if !ok {
				w.log.Info("Batch writer input channel closed")
				w.flush(ctx, batch, "input closed")
				return
			}

			batch = append(batch, envelope)
			if len(batch) >= w.config.MaxBatchSize {
				w.flush(ctx, batch, "size")
				batch = make([]*Envelope, 0, w.config.MaxBatchSize)
				ticker.Reset(w.config.FlushTimeout)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch, "timeout")
				batch = make([]*Envelope, 0, w.config.MaxBatchSize)
			}
		}
	}
}

func (w *BatchWriter) flush(ctx context.Context, batch []*Envelope, reason string) {
	if len(batch) == 0 {
		return
	}
	w.log.Debug("Flushing batch", zap.String("reason", reason), zap.Int("envelope_count", len(batch)))
	w.processBatch(ctx, batch)
}

// processBatch inserts the batch and settles every envelope: all are acked
// when the whole batch is stored, otherwise all are left for redelivery.
func (w *BatchWriter) processBatch(ctx context.Context, envelopes []*Envelope) {
	events := dedupe(envelopes)

	insertedCount, err := w.repository.InsertBatch(ctx, events)
	if err != nil {
		w.log.Error("Failed to insert batch",
			zap.Error(err),
			zap.Int("event_count", len(events)))
		w.nackAll(ctx, envelopes)
		return
	}

	if insertedCount != len(events) {
		w.log.Warn("Partial insert",
			zap.Int("inserted", insertedCount),
			zap.Int("expected", len(events)))
		w.nackAll(ctx, envelopes)
		return
	}

	w.log.Info("Stored raw events",
		zap.Int("count", insertedCount),
		zap.Int("duplicates", len(envelopes)-len(events)))
	w.ackAll(ctx, envelopes)
}

// dedupe drops repeated event IDs within a batch, keeping the last delivery
func dedupe(envelopes []*Envelope) []*domain.StoredEvent {
	index := make(map[string]int, len(envelopes))
	events := make([]*domain.StoredEvent, 0, len(envelopes))
	for _, env := range envelopes {
		if i, ok := index[env.Event.EventID]; ok {
			events[i] = env.Event
			continue
		}
		index[env.Event.EventID] = len(events)
		events = append(events, env.Event)
	}
	return events
}

func (w *BatchWriter) ackAll(ctx context.Context, envelopes []*Envelope) {
	for _, env := range envelopes {
		if err := env.Ack(ctx); err != nil {
			w.log.Error("Failed to ack envelope", zap.String("message_id", env.MessageID), zap.Error(err))
		}
	}
}

func (w *BatchWriter) nackAll(ctx context.Context, envelopes []*Envelope) {
	for _, env := range envelopes {
		if err := env.Nack(ctx); err != nil {
			w.log.Error("Failed to nack envelope", zap.String("message_id", env.MessageID), zap.Error(err))
		}
	}
}
