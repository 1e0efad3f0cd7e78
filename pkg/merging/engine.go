// Package merging folds a normalized record into a new or existing venue
package merging

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/normalizers"
	"github.com/zkinzler/dfw-openings/pkg/registry"
	"github.com/zkinzler/dfw-openings/pkg/scoring"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// DefaultState is assumed when a record carries no state
const DefaultState = "TX"

// MergeResult describes what a merge did to the registry
type MergeResult struct {
	Venue        *models.Venue
	Created      bool
	LinkAppended bool
	Duplicate    bool
	// Changes lists the venue fields the merge modified
	Changes []string
}

// Engine handles venue merging
type Engine struct {
	logger ectologger.Logger
	scorer *scoring.Scorer
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the reference time used for scoring
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new merge engine
func NewEngine(logger ectologger.Logger, scorer *scoring.Scorer, opts ...Option) *Engine {
	e := &Engine{
		logger: logger,
		scorer: scorer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge creates a venue from rec when match is nil, otherwise folds rec into match.
// A record whose fingerprint is already linked to match leaves the registry untouched.
func (e *Engine) Merge(ctx context.Context, rec *models.NormalizedRecord, match *models.Venue, reg registry.Registry) (*MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	if match == nil {
		return e.create(ctx, rec, reg)
	}
	return e.update(ctx, rec, match, reg)
}

func (e *Engine) create(ctx context.Context, rec *models.NormalizedRecord, reg registry.Registry) (*MergeResult, error) {
	raw := rec.Record

	state := strings.ToUpper(strings.TrimSpace(raw.RawState))
	if state == "" {
		state = DefaultState
	}

	v := &models.Venue{
		Name:              strings.TrimSpace(raw.RawName),
		NormalizedName:    rec.NameKey,
		Address:           strings.TrimSpace(raw.RawAddress),
		NormalizedAddress: rec.AddressKey,
		City:              rec.DisplayCity,
		CityKey:           rec.CityKey,
		State:             state,
		PostalCode:        rec.NormalizedZip,
		Category:          rec.Category,
		Stage:             rec.Stage,
		FirstSeenDate:     raw.EventDate,
		LastSeenDate:      raw.EventDate,
		Phone:             normalizers.NormalizePhone(raw.RawPhone),
		Website:           normalizers.NormalizeWebsite(raw.RawWebsite),
	}
	v.PriorityScore = e.scorer.Score(v, e.now())

	if err := reg.CreateVenue(ctx, v); err != nil {
		return nil, err
	}
	if err := reg.AppendLink(ctx, models.NewVenueSourceLink(v.ID, raw, rec.Fingerprint)); err != nil {
		return nil, err
	}
	v.LinkCount++

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"venue_id": v.ID,
		"category": v.Category,
		"stage":    v.Stage,
		"score":    v.PriorityScore,
		"source":   raw.Source,
	}).Info("Created venue")

	return &MergeResult{Venue: v, Created: true, LinkAppended: true}, nil
}

func (e *Engine) update(ctx context.Context, rec *models.NormalizedRecord, match *models.Venue, reg registry.Registry) (*MergeResult, error) {
	dup, err := reg.FingerprintExists(ctx, match.ID, rec.Fingerprint)
	if err != nil {
		return nil, err
	}
	if dup {
		e.logger.WithContext(ctx).WithFields(map[string]any{"venue_id": match.ID}).Debug("Duplicate record already linked")
		return &MergeResult{Venue: match, Duplicate: true}, nil
	}

	v := match.Clone()
	changes := Apply(v, rec)

	score := e.scorer.Score(v, e.now())
	if score != v.PriorityScore {
		v.PriorityScore = score
		changes = append(changes, "priority_score")
	}

	if err := reg.UpdateVenue(ctx, v); err != nil {
		return nil, err
	}
	if err := reg.AppendLink(ctx, models.NewVenueSourceLink(v.ID, rec.Record, rec.Fingerprint)); err != nil {
		return nil, err
	}
	v.LinkCount++

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"venue_id": v.ID,
		"changes":  changes,
		"source":   rec.Record.Source,
	}).Info("Merged record into venue")

	return &MergeResult{Venue: v, LinkAppended: true, Changes: changes}, nil
}

// Apply folds rec's observations into v and returns the names of the changed fields.
// Dates only widen, stage only advances, category only leaves unknown, and contact
// and identity slots are filled only when empty.
func Apply(v *models.Venue, rec *models.NormalizedRecord) []string {
	var changes []string
	raw := rec.Record

	if !raw.EventDate.IsZero() {
		if v.LastSeenDate.IsZero() || raw.EventDate.After(v.LastSeenDate) {
			v.LastSeenDate = raw.EventDate
			changes = append(changes, "last_seen_date")
		}
		if v.FirstSeenDate.IsZero() || raw.EventDate.Before(v.FirstSeenDate) {
			v.FirstSeenDate = raw.EventDate
			changes = append(changes, "first_seen_date")
		}
	}

	if v.Category == models.CategoryUnknown && rec.Category != models.CategoryUnknown && rec.Category.Valid() {
		v.Category = rec.Category
		changes = append(changes, "category")
	}

	if next := models.MaxStage(v.Stage, rec.Stage); next != v.Stage {
		v.Stage = next
		changes = append(changes, "stage")
	}

	if v.NormalizedName == "" && rec.NameKey != "" {
		v.Name = strings.TrimSpace(raw.RawName)
		v.NormalizedName = rec.NameKey
		changes = append(changes, "name")
	}
	if v.NormalizedAddress == "" && rec.AddressKey != "" {
		v.Address = strings.TrimSpace(raw.RawAddress)
		v.NormalizedAddress = rec.AddressKey
		changes = append(changes, "address")
	}
	if v.PostalCode == "" && rec.NormalizedZip != "" {
		v.PostalCode = rec.NormalizedZip
		changes = append(changes, "postal_code")
	}
	if phone := normalizers.NormalizePhone(raw.RawPhone); v.Phone == "" && phone != "" {
		v.Phone = phone
		changes = append(changes, "phone")
	}
	if website := normalizers.NormalizeWebsite(raw.RawWebsite); v.Website == "" && website != "" {
		v.Website = website
		changes = append(changes, "website")
	}

	return changes
}
