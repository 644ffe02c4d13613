package consumer

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/queue"
)

// ReceiverConfig configures the SQS receiver
type ReceiverConfig struct {
	MaxMessages     int32
	WaitTimeSeconds int32
	ErrorBackoff    time.Duration
}

// Receiver long-polls SQS and forwards every message downstream
type Receiver struct {
	consumer queue.QueueConsumer
	config   ReceiverConfig
	log      *zap.Logger
}

// NewReceiver creates a new SQS receiver
func NewReceiver(consumer queue.QueueConsumer, config ReceiverConfig, log *zap.Logger) *Receiver {
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = time.Second
	}
	return &Receiver{
		consumer: consumer,
		config:   config,
		log:      log,
	}
}

// Start receives messages until ctx is done, then closes out
func (r *Receiver) Start(ctx context.Context, out chan<- types.Message) {
	defer close(out)
	defer r.log.Info("Receiver stopped")

	for ctx.Err() == nil {
		msgs, ok := r.poll(ctx)
		if !ok {
			continue
		}
		if !forward(ctx, msgs, out) {
			return
		}
	}
}

// poll runs one long-poll. A failed receive waits out the backoff and
// reports false.
func (r *Receiver) poll(ctx context.Context) ([]types.Message, bool) {
	result, err := r.consumer.ReceiveMessages(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:              aws.String(r.consumer.QueueURL()),
		MaxNumberOfMessages:   r.config.MaxMessages,
		WaitTimeSeconds:       r.config.WaitTimeSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		r.log.Error("Receive from SQS failed",
			zap.Duration("backoff", r.config.ErrorBackoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(r.config.ErrorBackoff):
		}
		return nil, false
	}

	if len(result.Messages) > 0 {
		r.log.Debug("Received raw event messages", zap.Int("message_count", len(result.Messages)))
	}
	return result.Messages, true
}

// forward reports false when ctx ended before every message was handed on
func forward(ctx context.Context, msgs []types.Message, out chan<- types.Message) bool {
	for _, msg := range msgs {
		select {
		case <-ctx.Done():
			return false
		case out <- msg:
		}
	}
	return true
}
