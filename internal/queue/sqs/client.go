package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/config"
	"github.com/BarkinBalci/dora-metrics-service/internal/queue"
)

// Client carries raw vendor events between the API and the consumer
type Client struct {
	client   *sqs.Client
	queueURL string
	log      *zap.Logger
}

// NewClient creates an SQS client for the configured queue. A custom
// endpoint (ElasticMQ, LocalStack) switches to static dummy credentials.
func NewClient(ctx context.Context, cfg config.SQS, log *zap.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*sqs.Options)
	if cfg.Endpoint != "" {
		log.Info("Using custom SQS endpoint", zap.String("endpoint", cfg.Endpoint))
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	log.Info("SQS client created",
		zap.String("region", cfg.Region),
		zap.String("queue_url", cfg.QueueURL))

	return &Client{
		client:   sqs.NewFromConfig(awsCfg, clientOpts...),
		queueURL: cfg.QueueURL,
		log:      log,
	}, nil
}

func loadOptions(cfg config.SQS) []func(*awsconfig.LoadOptions) error {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	return opts
}

// ReceiveMessages long-polls the queue
func (c *Client) ReceiveMessages(ctx context.Context, input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
	return c.client.ReceiveMessage(ctx, input)
}

// DeleteMessage removes a processed message
func (c *Client) DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
	return c.client.DeleteMessage(ctx, input)
}

// ChangeMessageVisibility changes how long a received message stays hidden
func (c *Client) ChangeMessageVisibility(ctx context.Context, input *sqs.ChangeMessageVisibilityInput) (*sqs.ChangeMessageVisibilityOutput, error) {
	return c.client.ChangeMessageVisibility(ctx, input)
}

// QueueURL returns the configured queue URL
func (c *Client) QueueURL() string {
	return c.queueURL
}

// PublishRawEvent enqueues one ingested vendor event
func (c *Client) PublishRawEvent(ctx context.Context, msg *queue.RawEventMessage) error {
	input, err := sendInput(c.queueURL, msg)
	if err != nil {
		return err
	}

	if _, err := c.client.SendMessage(ctx, input); err != nil {
		c.log.Error("Failed to send raw event to SQS",
			zap.String("event_id", msg.EventID),
			zap.String("source_id", msg.SourceID),
			zap.Error(err))
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}

	c.log.Debug("Raw event published",
		zap.String("event_id", msg.EventID),
		zap.String("source_id", msg.SourceID),
		zap.String("kind", msg.Kind))

	return nil
}

// sendInput encodes msg as the message body. Source and kind are copied
// into attributes so queue tooling can filter without decoding the body.
func sendInput(queueURL string, msg *queue.RawEventMessage) (*sqs.SendMessageInput, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw event %s: %w", msg.EventID, err)
	}

	return &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"EventID":  stringAttribute(msg.EventID),
			"SourceID": stringAttribute(msg.SourceID),
			"Kind":     stringAttribute(msg.Kind),
		},
	}, nil
}

func stringAttribute(value string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(value),
	}
}
