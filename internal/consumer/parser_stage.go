package consumer

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/queue"
)

// ParserStage decodes raw event messages into envelopes whose ack deletes
// the message and whose nack makes it visible again after a short retry
// delay. Undecodable messages are deleted on the spot; redelivering them
// cannot help.
type ParserStage struct {
	queue           queue.QueueConsumer
	parser          MessageParser
	retryVisibility int32
	log             *zap.Logger
}

// NewParserStage creates a parser stage. retryVisibility is the visibility
// timeout, in seconds, applied to messages of a batch that failed to store.
func NewParserStage(q queue.QueueConsumer, parser MessageParser, retryVisibility int32, log *zap.Logger) *ParserStage {
	if retryVisibility < 0 {
		retryVisibility = 0
	}
	return &ParserStage{
		queue:           q,
		parser:          parser,
		retryVisibility: retryVisibility,
		log:             log,
	}
}

// Start drains in until it closes or ctx is done, then closes out
func (p *ParserStage) Start(ctx context.Context, in <-chan types.Message, out chan<- *Envelope) {
	defer close(out)
	defer p.log.Info("Parser stage stopped")

	for {
		var msg types.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}

		envelope, ok := p.envelopeFor(ctx, msg)
		if !ok {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case out <- envelope:
		}
	}
}

func (p *ParserStage) envelopeFor(ctx context.Context, msg types.Message) (*Envelope, bool) {
	event, err := p.parser.Parse([]byte(aws.ToString(msg.Body)))
	if err != nil {
		p.discard(ctx, msg, err)
		return nil, false
	}

	receipt := msg.ReceiptHandle
	ack := func(ctx context.Context) error {
		return p.delete(ctx, receipt)
	}
	nack := func(ctx context.Context) error {
		return p.release(ctx, receipt)
	}
	return NewEnvelope(event, aws.ToString(msg.MessageId), ack, nack), true
}

// discard drops a raw event message that can never be stored
func (p *ParserStage) discard(ctx context.Context, msg types.Message, cause error) {
	fields := []zap.Field{
		zap.String("message_id", aws.ToString(msg.MessageId)),
		zap.NamedError("cause", cause),
	}
	if err := p.delete(ctx, msg.ReceiptHandle); err != nil {
		p.log.Error("Malformed raw event left on queue", append(fields, zap.Error(err))...)
		return
	}
	p.log.Warn("Discarded malformed raw event", fields...)
}

func (p *ParserStage) delete(ctx context.Context, receipt *string) error {
	_, err := p.queue.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queue.QueueURL()),
		ReceiptHandle: receipt,
	})
	return err
}

// release shortens the visibility timeout so the event is retried soon
// instead of after the queue default
func (p *ParserStage) release(ctx context.Context, receipt *string) error {
	_, err := p.queue.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(p.queue.QueueURL()),
		ReceiptHandle:     receipt,
		VisibilityTimeout: p.retryVisibility,
	})
	return err
}
