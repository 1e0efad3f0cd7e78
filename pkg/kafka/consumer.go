package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/zkinzler/dfw-openings/pkg/metrics"
	"github.com/zkinzler/dfw-openings/pkg/quarantine"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// MessageHandler processes incoming Kafka messages
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	minFetchBackoff = 100 * time.Millisecond
	maxFetchBackoff = 5 * time.Second
)

// Consumer handles Kafka message consumption
type Consumer struct {
	reader     messageReader
	minBackoff time.Duration
	maxBackoff time.Duration
	topic      string
	logger     ectologger.Logger
	handler    MessageHandler
	quarantine quarantine.Quarantine
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// NewConsumer creates a new Kafka consumer. Messages that cannot be decoded are
// written to q when it is not nil.
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler, q quarantine.Quarantine) *Consumer {
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

	return newConsumer(reader, cfg.Topic, logger, handler, q)
}

func newConsumer(reader messageReader, topic string, logger ectologger.Logger, handler MessageHandler, q quarantine.Quarantine) *Consumer {
	return &Consumer{
		reader:     reader,
		minBackoff: minFetchBackoff,
		maxBackoff: maxFetchBackoff,
		topic:      topic,
		logger:     logger,
		handler:    handler,
		quarantine: q,
	}
}

// Start begins consuming messages
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

	backoff := c.minBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).WithField("retry_in", backoff.String()).Error("Failed to fetch message")

			// broker outages would otherwise spin on FetchMessage
			select {
			case <-ctx.Done():
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		backoff = c.minBackoff
		c.processMessage(ctx, msg)
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	incoming := newIncomingMessage(msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value, headers, msg.Time)

	ctx, span := tracing.StartSpan(incoming.Context(ctx), "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(incoming.LogFields())

	if err := incoming.ParseRecords(); err != nil {
		log.WithError(err).Warn("Failed to decode message, quarantining")
		metrics.RecordKafkaConsume(msg.Topic, "malformed")
		c.quarantineMessage(ctx, msg, err)
		// Still commit to avoid getting stuck
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.WithError(err).Error("Failed to commit message")
		}
		return
	}

	if err := c.handler(ctx, incoming); err != nil {
		// Not committed so the message is redelivered after a restart or rebalance
		log.WithError(err).Error("Failed to process message (not committing)")
		metrics.RecordKafkaConsume(msg.Topic, "error")
		return
	}
	metrics.RecordKafkaConsume(msg.Topic, "success")

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

func (c *Consumer) quarantineMessage(ctx context.Context, msg kafka.Message, reason error) {
	if c.quarantine == nil {
		return
	}
	entry := quarantine.NewEntry(quarantine.StageDecode, reason, msg.Value)
	entry.TraceID = tracing.GetTraceID(ctx)
	if err := c.quarantine.Add(ctx, entry); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to quarantine message")
		return
	}
	metrics.RecordQuarantined(quarantine.StageDecode)
}

// Health returns the consumer health status
func (c *Consumer) Health() bool {
	return c.reader != nil
}
