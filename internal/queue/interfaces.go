package queue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// RawEventMessage is the queue body carrying one ingested vendor event
type RawEventMessage struct {
	EventID    string          `json:"event_id"`
	SourceID   string          `json:"source_id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt int64           `json:"received_at"`
}

// QueuePublisher defines the interface for publishing raw events to a queue
type QueuePublisher interface {
	PublishRawEvent(ctx context.Context, msg *RawEventMessage) error
}

// QueueConsumer defines the interface for consuming messages from a queue
type QueueConsumer interface {
	ReceiveMessages(ctx context.Context, input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, input *sqs.ChangeMessageVisibilityInput) (*sqs.ChangeMessageVisibilityOutput, error)
	QueueURL() string
}
