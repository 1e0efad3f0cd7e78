package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/quarantine"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// DefaultQuarantineStream is the default stream for quarantined records
const DefaultQuarantineStream = "sprout:quarantine"

// Quarantine keeps rejected records on a capped Redis stream
type Quarantine struct {
	client     *Client
	streamName string
	maxLen     int64
	logger     ectologger.Logger
}

var _ quarantine.Quarantine = (*Quarantine)(nil)

func NewQuarantine(client *Client, streamName string, maxLen int64, logger ectologger.Logger) *Quarantine {
	if streamName == "" {
		streamName = DefaultQuarantineStream
	}
	if maxLen <= 0 {
		maxLen = quarantine.DefaultMaxLen
	}
	return &Quarantine{
		client:     client,
		streamName: streamName,
		maxLen:     maxLen,
		logger:     logger,
	}
}

// Add appends an entry to the stream, trimming the oldest beyond maxLen
func (q *Quarantine) Add(ctx context.Context, entry *models.QuarantinedRecord) error {
	ctx, span := tracing.StartSpan(ctx, "redis.Quarantine.Add")
	defer span.End()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal quarantine entry: %w", err)
	}

	_, err = q.client.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamName,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":   string(data),
			"stage":  entry.Stage,
			"reason": entry.Reason,
		},
	}).Result()
	if err != nil {
		q.logger.WithContext(ctx).WithError(err).Error("Failed to quarantine record")
		return fmt.Errorf("failed to add to quarantine: %w", err)
	}

	q.logger.WithContext(ctx).Infof("Quarantined record: id=%s stage=%s reason=%s", entry.ID, entry.Stage, entry.Reason)
	return nil
}

// List returns entries newest first
func (q *Quarantine) List(ctx context.Context, limit int) ([]*models.QuarantinedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.Quarantine.List")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	messages, err := q.client.Redis().XRevRangeN(ctx, q.streamName, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read quarantine: %w", err)
	}

	entries := make([]*models.QuarantinedRecord, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}

		var entry models.QuarantinedRecord
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			q.logger.WithContext(ctx).WithError(err).Warnf("Failed to unmarshal quarantine entry: %s", msg.ID)
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// Count returns the number of entries on the stream
func (q *Quarantine) Count(ctx context.Context) (int64, error) {
	return q.client.Redis().XLen(ctx, q.streamName).Result()
}
