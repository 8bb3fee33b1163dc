package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MessageHandler processes incoming Kafka messages.
// A nil error commits the message; an error redelivers it after a backoff.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer handles Kafka message consumption
type Consumer struct {
	reader     MessageReader
	topic      string
	logger     ectologger.Logger
	handler    MessageHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	maxBackoff time.Duration
}

// NewConsumer creates a consumer-group reader for cfg.Topic
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return NewConsumerWithReader(reader, cfg.Topic, logger, handler)
}

// NewConsumerWithReader creates a consumer over an existing reader
func NewConsumerWithReader(reader MessageReader, topic string, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      topic,
		logger:     logger,
		handler:    handler,
		maxBackoff: 30 * time.Second,
	}
}

// Start begins consuming messages in the background
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.topic,
	}).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if !c.processMessage(ctx, msg) {
			return
		}
	}
}

// processMessage handles msg until it is committed or ctx ends. It reports false when ctx ended.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) bool {
	incoming := newIncomingMessage(msg)
	if incoming.TraceParent != "" {
		ctx = tracing.ExtractTraceParent(ctx, incoming.TraceParent)
	}

	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	if err := incoming.ParseObservation(); err != nil {
		// Unparseable payloads never succeed; commit so the partition keeps moving.
		metrics.RecordKafkaConsume("skipped")
		log.WithError(err).Warn("Skipping malformed message")
		c.commit(ctx, log, msg)
		return true
	}

	backoff := 100 * time.Millisecond
	for {
		err := c.handler(ctx, incoming)
		if err == nil {
			break
		}

		// Not committing keeps processing at-least-once; retry the same offset.
		metrics.RecordKafkaConsume("error")
		tracing.RecordError(span, err)
		log.WithError(err).WithField("retry_in", backoff.String()).Error("Failed to process message (not committing)")

		if !sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}

	metrics.RecordKafkaConsume("success")
	c.commit(ctx, log, msg)
	return true
}

func (c *Consumer) commit(ctx context.Context, log ectologger.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

// Health reports whether the consumer loop is running
func (c *Consumer) Health() bool {
	return c.reader != nil && c.cancel != nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
