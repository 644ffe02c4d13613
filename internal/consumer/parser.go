package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/queue"
)

// ErrMalformedMessage marks a message body that can never be stored
var ErrMalformedMessage = errors.New("malformed message")

// RawEventParser implements MessageParser for queue.RawEventMessage bodies
type RawEventParser struct {
	now func() time.Time
}

// NewRawEventParser creates a new raw event parser
func NewRawEventParser() *RawEventParser {
	return &RawEventParser{now: time.Now}
}

// Parse decodes a message body into a StoredEvent. The payload is kept
// verbatim so the event store can replay it through the normalizer.
func (p *RawEventParser) Parse(body []byte) (*domain.StoredEvent, error) {
	var msg queue.RawEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if msg.EventID == "" {
		return nil, fmt.Errorf("%w: missing event_id", ErrMalformedMessage)
	}
	if msg.SourceID == "" {
		return nil, fmt.Errorf("%w: missing source_id", ErrMalformedMessage)
	}
	if !domain.EventKind(msg.Kind).Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, msg.Kind)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload == nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrMalformedMessage)
	}

	processedAt := p.now()
	receivedAt := processedAt.UTC()
	if msg.ReceivedAt > 0 {
		receivedAt = time.UnixMilli(msg.ReceivedAt).UTC()
	}

	return &domain.StoredEvent{
		EventID:    msg.EventID,
		SourceID:   msg.SourceID,
		Kind:       msg.Kind,
		Payload:    string(msg.Payload),
		ReceivedAt: receivedAt,
		Version:    uint64(processedAt.UnixNano()),
	}, nil
}
