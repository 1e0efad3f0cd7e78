package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SourceRecord is one observation from an upstream feed. It is never mutated once produced.
type SourceRecord struct {
	Source         SourceSystem    `json:"source" validate:"required"`
	EventType      EventType       `json:"event_type" validate:"required"`
	SourceRecordID string          `json:"source_record_id,omitempty"`
	EventDate      Date            `json:"event_date"`
	RawName        string          `json:"raw_name"`
	RawAddress     string          `json:"raw_address"`
	RawCity        string          `json:"raw_city"`
	RawState       string          `json:"raw_state,omitempty"`
	RawPostalCode  string          `json:"raw_postal_code,omitempty"`
	RawPhone       string          `json:"raw_phone,omitempty"`
	RawWebsite     string          `json:"raw_website,omitempty"`
	URL            string          `json:"url,omitempty" validate:"omitempty,url"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// UnmarshalJSON normalizes the event type spelling used by older feeds
func (r *SourceRecord) UnmarshalJSON(b []byte) error {
	type alias SourceRecord
	var raw struct {
		alias
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = SourceRecord(raw.alias)
	if raw.EventType != "" {
		r.EventType = ParseEventType(raw.EventType)
	}
	return nil
}

// NormalizedRecord is a SourceRecord with its derived matching keys and classification
type NormalizedRecord struct {
	Record        SourceRecord
	NameKey       string
	AddressKey    string
	CityKey       string
	Category      Category
	Stage         Stage
	Fingerprint   string
	DisplayCity   string
	NormalizedZip string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		rec := sl.Current().Interface().(SourceRecord)
		if strings.TrimSpace(rec.RawName) == "" && strings.TrimSpace(rec.RawAddress) == "" {
			sl.ReportError(rec.RawName, "RawName", "raw_name", "name_or_address", "")
		}
		if rec.EventDate.IsZero() {
			sl.ReportError(rec.EventDate, "EventDate", "event_date", "required", "")
		}
		if rec.Source != "" && !rec.Source.Valid() {
			sl.ReportError(rec.Source, "Source", "source", "source", "")
		}
	}, SourceRecord{})
	return v
}

// Validate checks the record shape. Failures wrap ErrMalformedRecord.
func (r SourceRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedRecord, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// DecodeSourceRecords accepts a single JSON object or an array of objects. Any
// decoding failure wraps ErrMalformedRecord.
func DecodeSourceRecords(value []byte) ([]SourceRecord, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedRecord)
	}

	if trimmed[0] == '[' {
		var records []SourceRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedRecord, err.Error())
		}
		return records, nil
	}

	var rec SourceRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedRecord, err.Error())
	}
	return []SourceRecord{rec}, nil
}
