package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/config"
	"github.com/BarkinBalci/dora-metrics-service/internal/queue"
	"github.com/BarkinBalci/dora-metrics-service/internal/repository"
)

// Consumer moves ingested raw events from SQS into the event store through
// a receive, parse and batch-write pipeline
type Consumer struct {
	receiver    *Receiver
	parser      *ParserStage
	batchWriter *BatchWriter
	bufferSize  int
}

// NewConsumer creates a consumer from the consumer configuration
func NewConsumer(cfg *config.Config, queueConsumer queue.QueueConsumer, repo repository.EventRepository, log *zap.Logger) *Consumer {
	bufferSize := cfg.Consumer.BufferSize
	if bufferSize <= 0 {
		bufferSize = 100
	}

	receiver := NewReceiver(queueConsumer, ReceiverConfig{
		MaxMessages:     cfg.Consumer.ReceiveMaxMessages,
		WaitTimeSeconds: cfg.Consumer.ReceiveWaitSec,
	}, log)

	parser := NewParserStage(queueConsumer, NewRawEventParser(), cfg.Consumer.RetryVisibilitySec, log)

	batchWriter := NewBatchWriter(repo, BatchWriterConfig{
		MaxBatchSize: cfg.Consumer.BatchSizeMax,
		FlushTimeout: time.Duration(cfg.Consumer.BatchTimeoutSec) * time.Second,
	}, log)

	return &Consumer{
		receiver:    receiver,
		parser:      parser,
		batchWriter: batchWriter,
		bufferSize:  bufferSize,
	}
}

// Start runs the pipeline until ctx is done and every stage has drained
func (c *Consumer) Start(ctx context.Context) error {
	messageChan := make(chan types.Message, c.bufferSize)
	envelopeChan := make(chan *Envelope, c.bufferSize)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		c.receiver.Start(ctx, messageChan)
	}()

	go func() {
		defer wg.Done()
		c.parser.Start(ctx, messageChan, envelopeChan)
	}()

	go func() {
		defer wg.Done()
		c.batchWriter.Start(ctx, envelopeChan)
	}()

	wg.Wait()
	return nil
}
