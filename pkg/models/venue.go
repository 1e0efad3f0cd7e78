package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Venue is one physical business, possibly observed through many records
type Venue struct {
	ID                string   `json:"id" db:"id"`
	Name              string   `json:"name" db:"name"`
	NormalizedName    string   `json:"normalized_name" db:"normalized_name"`
	Address           string   `json:"address" db:"address"`
	NormalizedAddress string   `json:"normalized_address" db:"normalized_address"`
	City              string   `json:"city" db:"city"`
	CityKey           string   `json:"city_key" db:"city_key"`
	State             string   `json:"state" db:"state"`
	PostalCode        string   `json:"postal_code" db:"postal_code"`
	Category          Category `json:"category" db:"category"`
	Stage             Stage    `json:"stage" db:"stage"`
	FirstSeenDate     Date     `json:"first_seen_date" db:"first_seen_date"`
	LastSeenDate      Date     `json:"last_seen_date" db:"last_seen_date"`
	PriorityScore     int      `json:"priority_score" db:"priority_score"`

	// Enrichment slots
	Phone     string   `json:"phone,omitempty" db:"phone"`
	Website   string   `json:"website,omitempty" db:"website"`
	PlaceID   string   `json:"place_id,omitempty" db:"place_id"`
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`

	LinkCount int       `json:"link_count" db:"link_count"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	Version   int       `json:"version" db:"version"`
}

// Clone returns a deep copy of the venue
func (v *Venue) Clone() *Venue {
	if v == nil {
		return nil
	}
	c := *v
	if v.Latitude != nil {
		lat := *v.Latitude
		c.Latitude = &lat
	}
	if v.Longitude != nil {
		lng := *v.Longitude
		c.Longitude = &lng
	}
	return &c
}

// VenueSourceLink records that a SourceRecord contributed to a Venue
type VenueSourceLink struct {
	ID             string          `json:"id" db:"id"`
	VenueID        string          `json:"venue_id" db:"venue_id"`
	Source         SourceSystem    `json:"source" db:"source"`
	EventType      EventType       `json:"event_type" db:"event_type"`
	EventDate      Date            `json:"event_date" db:"event_date"`
	SourceRecordID string          `json:"source_record_id,omitempty" db:"source_record_id"`
	RawName        string          `json:"raw_name" db:"raw_name"`
	RawAddress     string          `json:"raw_address" db:"raw_address"`
	RawCity        string          `json:"raw_city" db:"raw_city"`
	RawPhone       string          `json:"raw_phone,omitempty" db:"raw_phone"`
	RawWebsite     string          `json:"raw_website,omitempty" db:"raw_website"`
	URL            string          `json:"url,omitempty" db:"url"`
	Payload        json.RawMessage `json:"payload,omitempty" db:"payload"`
	Fingerprint    string          `json:"fingerprint" db:"fingerprint"`
	LinkedAt       time.Time       `json:"linked_at" db:"linked_at"`
}

// NewVenueSourceLink builds the link for a record
func NewVenueSourceLink(venueID string, rec SourceRecord, fingerprint string) *VenueSourceLink {
	return &VenueSourceLink{
		VenueID:        venueID,
		Source:         rec.Source,
		EventType:      rec.EventType,
		EventDate:      rec.EventDate,
		SourceRecordID: rec.SourceRecordID,
		RawName:        rec.RawName,
		RawAddress:     rec.RawAddress,
		RawCity:        rec.RawCity,
		RawPhone:       rec.RawPhone,
		RawWebsite:     rec.RawWebsite,
		URL:            rec.URL,
		Payload:        rec.Payload,
		Fingerprint:    fingerprint,
	}
}

// Enrichment carries values looked up by an external enrichment service
type Enrichment struct {
	Phone     string   `json:"phone,omitempty"`
	Website   string   `json:"website,omitempty" validate:"omitempty,url"`
	PlaceID   string   `json:"place_id,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// Validate checks enrichment values
func (e Enrichment) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEnrichment, validationMessage(err))
	}
	return nil
}

// VenueFilter narrows venue listings
type VenueFilter struct {
	CityKey  string
	Category Category
	Stage    Stage
	MinScore *int
	Limit    int
	Offset   int
}

// Matches reports whether v passes the filter
func (f VenueFilter) Matches(v *Venue) bool {
	if f.CityKey != "" && v.CityKey != f.CityKey {
		return false
	}
	if f.Category != "" && v.Category != f.Category {
		return false
	}
	if f.Stage != "" && v.Stage != f.Stage {
		return false
	}
	if f.MinScore != nil && v.PriorityScore < *f.MinScore {
		return false
	}
	return true
}
