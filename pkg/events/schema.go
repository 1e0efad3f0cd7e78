package events

import (
	"encoding/json"
	"time"

	"github.com/zkinzler/dfw-openings/pkg/kafka"
	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/scoring"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeVenueCreated EventType = "venue.created"
	EventTypeVenueUpdated EventType = "venue.updated"
	// EventTypeHotLead fires once, when a venue is created with a score at or above the hot lead threshold
	EventTypeHotLead EventType = "venue.hot_lead"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// NewVenueEvent builds the wire event for a venue snapshot
func NewVenueEvent(eventType EventType, v *models.Venue, source models.SourceSystem, changes []string) *kafka.VenueEvent {
	data, _ := json.Marshal(v)
	return &kafka.VenueEvent{
		EventType:     string(eventType),
		SchemaVersion: SchemaVersion,
		VenueID:       v.ID,
		CityKey:       v.CityKey,
		Category:      string(v.Category),
		Stage:         string(v.Stage),
		PriorityScore: v.PriorityScore,
		Data:          data,
		ChangedFields: changes,
		Source:        string(source),
		Version:       v.Version,
		Timestamp:     time.Now().UTC(),
	}
}

// NewHotLeadEvent builds a hot lead event carrying the score breakdown
func NewHotLeadEvent(v *models.Venue, source models.SourceSystem, breakdown scoring.Breakdown) *kafka.VenueEvent {
	event := NewVenueEvent(EventTypeHotLead, v, source, nil)
	event.Breakdown, _ = json.Marshal(breakdown)
	return event
}
