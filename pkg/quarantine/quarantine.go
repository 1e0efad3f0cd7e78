// Package quarantine keeps records that could not be merged so they can be reviewed
package quarantine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zkinzler/dfw-openings/pkg/models"
)

const (
	StageValidate = "validate"
	StageDecode   = "decode"
	StageMerge    = "merge"
)

// DefaultMaxLen bounds how many entries a store keeps; the oldest are trimmed first
const DefaultMaxLen = 10000

// Quarantine stores rejected and failed records
type Quarantine interface {
	Add(ctx context.Context, entry *models.QuarantinedRecord) error
	// List returns up to limit entries, newest first
	List(ctx context.Context, limit int) ([]*models.QuarantinedRecord, error)
}

// NewEntry builds an entry for a record that failed at stage
func NewEntry(stage string, reason error, record any) *models.QuarantinedRecord {
	var raw json.RawMessage
	switch r := record.(type) {
	case []byte:
		raw = quoteIfInvalid(r)
	case json.RawMessage:
		raw = quoteIfInvalid(r)
	default:
		b, err := json.Marshal(r)
		if err == nil {
			raw = b
		}
	}

	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return &models.QuarantinedRecord{
		ID:         uuid.New().String(),
		Reason:     msg,
		Stage:      stage,
		Record:     raw,
		RecordedAt: time.Now().UTC(),
	}
}

// quoteIfInvalid keeps undecodable input as a JSON string
func quoteIfInvalid(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}

// Memory is an in-process Quarantine
type Memory struct {
	mu      sync.Mutex
	maxLen  int
	entries []*models.QuarantinedRecord
}

func NewMemory(maxLen int) *Memory {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Memory{maxLen: maxLen}
}

func (m *Memory) Add(_ context.Context, entry *models.QuarantinedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if over := len(m.entries) - m.maxLen; over > 0 {
		m.entries = append([]*models.QuarantinedRecord(nil), m.entries[over:]...)
	}
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]*models.QuarantinedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]*models.QuarantinedRecord, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
