package kafka

import (
	"context"
	"time"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// IncomingMessage is one fetched message carrying source records
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// W3C traceparent set by the publisher, if any
	TraceParent string

	Records []models.SourceRecord
}

func newIncomingMessage(topic string, partition int, offset int64, key, value []byte, headers map[string]string, ts time.Time) *IncomingMessage {
	return &IncomingMessage{
		Key:         string(key),
		Value:       value,
		Headers:     headers,
		Partition:   partition,
		Offset:      offset,
		Timestamp:   ts,
		Topic:       topic,
		TraceParent: headers["traceparent"],
	}
}

// ParseRecords decodes the value as one SourceRecord or a JSON array of them
func (m *IncomingMessage) ParseRecords() error {
	records, err := models.DecodeSourceRecords(m.Value)
	if err != nil {
		return err
	}
	m.Records = records
	return nil
}

// Context joins ctx to the publisher's trace so merge spans nest under it
func (m *IncomingMessage) Context(ctx context.Context) context.Context {
	return tracing.ContextWithTraceParent(ctx, m.TraceParent)
}

// LogFields identifies the message in log lines
func (m *IncomingMessage) LogFields() map[string]any {
	return map[string]any{
		"topic":     m.Topic,
		"partition": m.Partition,
		"offset":    m.Offset,
		"records":   len(m.Records),
	}
}
