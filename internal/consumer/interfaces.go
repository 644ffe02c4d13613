package consumer

import (
	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// MessageParser defines the interface for turning queue message bodies into stored events
type MessageParser interface {
	Parse(body []byte) (*domain.StoredEvent, error)
}
