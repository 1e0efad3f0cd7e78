package models

import (
	"encoding/json"
	"time"
)

// MatchReason explains a matcher decision
type MatchReason string

const (
	MatchNameAndAddress MatchReason = "name_and_address"
	MatchName           MatchReason = "name"
	MatchAddress        MatchReason = "address"
	MatchNone           MatchReason = "none"
	MatchAmbiguous      MatchReason = "ambiguous"
	MatchNameConflict   MatchReason = "name_conflict"
	// MatchLinked means a candidate already holds this exact record
	MatchLinked MatchReason = "already_linked"
)

// ProcessResult is the outcome of processing one record
type ProcessResult struct {
	Venue        *Venue      `json:"venue"`
	Created      bool        `json:"created"`
	LinkAppended bool        `json:"link_appended"`
	Duplicate    bool        `json:"duplicate"`
	MatchReason  MatchReason `json:"match_reason"`
	Ambiguous    bool        `json:"ambiguous"`
	CandidateIDs []string    `json:"candidate_ids,omitempty"`
	HotLead      bool        `json:"hot_lead"`
	// Warning explains a record that was processed but not merged as hoped, e.g. an
	// ambiguous match that started a new venue
	Warning string `json:"warning,omitempty"`
}

// RecordError describes a record that was rejected, failed, or matched ambiguously
type RecordError struct {
	Index  int          `json:"index"`
	Source SourceSystem `json:"source"`
	Reason string       `json:"reason"`
}

// BatchSummary counts the outcomes of a batch
type BatchSummary struct {
	RunID      string        `json:"run_id,omitempty"`
	Total      int           `json:"total"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Duplicates int           `json:"duplicates"`
	Rejected   int           `json:"rejected"`
	Failed     int           `json:"failed"`
	Ambiguous  int           `json:"ambiguous"`
	HotLeads   int           `json:"hot_leads"`
	Errors     []RecordError `json:"errors,omitempty"`
}

// Add folds a single result into the summary
func (s *BatchSummary) Add(res *ProcessResult) {
	s.Total++
	switch {
	case res.Duplicate:
		s.Duplicates++
	case res.Created:
		s.Created++
	default:
		s.Updated++
	}
	if res.Ambiguous {
		s.Ambiguous++
	}
	if res.HotLead {
		s.HotLeads++
	}
}

// IngestionRun is the persisted log of one batch
type IngestionRun struct {
	ID           string          `json:"id" db:"id"`
	Trigger      string          `json:"trigger" db:"trigger"`
	StartedAt    time.Time       `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	Status       string          `json:"status" db:"status"`
	Total        int             `json:"total" db:"total"`
	Created      int             `json:"created" db:"created"`
	Updated      int             `json:"updated" db:"updated"`
	Duplicates   int             `json:"duplicates" db:"duplicates"`
	Rejected     int             `json:"rejected" db:"rejected"`
	Failed       int             `json:"failed" db:"failed"`
	Ambiguous    int             `json:"ambiguous" db:"ambiguous"`
	SourceCounts json.RawMessage `json:"source_counts" db:"source_counts"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// QuarantinedRecord is a record that was rejected or failed, kept for review
type QuarantinedRecord struct {
	ID         string          `json:"id"`
	Reason     string          `json:"reason"`
	Stage      string          `json:"stage"`
	Record     json.RawMessage `json:"record"`
	RecordedAt time.Time       `json:"recorded_at"`
	RunID      string          `json:"run_id,omitempty"`
	TraceID    string          `json:"trace_id,omitempty"`
}
