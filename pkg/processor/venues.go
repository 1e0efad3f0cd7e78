package processor

import (
	"context"
	"time"

	"github.com/zkinzler/dfw-openings/pkg/events"
	"github.com/zkinzler/dfw-openings/pkg/merging"
	"github.com/zkinzler/dfw-openings/pkg/metrics"
	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/registry"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// Enrich fills a venue's empty contact and location slots and rescores it
func (p *Processor) Enrich(ctx context.Context, venueID string, e models.Enrichment) (*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Enrich", tracing.AttrVenueID.String(venueID))
	defer span.End()

	if err := e.Validate(); err != nil {
		return nil, err
	}

	var (
		updated *models.Venue
		changes []string
	)
	err := p.withVenueLocked(ctx, venueID, func(ctx context.Context, tx registry.Store, v *models.Venue) error {
		changes = merging.ApplyEnrichment(v, e)
		if len(changes) == 0 {
			updated = v
			return nil
		}
		if score := p.scorer.Score(v, p.now()); score != v.PriorityScore {
			v.PriorityScore = score
			changes = append(changes, "priority_score")
		}
		if err := tx.UpdateVenue(ctx, v); err != nil {
			return err
		}
		updated = v
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if len(changes) > 0 {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"venue_id": venueID,
			"changes":  changes,
		}).Info("Enriched venue")
		p.emit(ctx, events.NewVenueEvent(events.EventTypeVenueUpdated, updated, "", changes))
	}
	return updated, nil
}

// Rescore recomputes every venue's score as of now so recency decays. It returns the
// number of venues whose score changed.
func (p *Processor) Rescore(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Rescore")
	defer span.End()

	venues, err := p.store.ListVenues(ctx, models.VenueFilter{})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, snapshot := range venues {
		if p.scorer.Score(snapshot, now) == snapshot.PriorityScore {
			continue
		}

		updated := false
		err := p.withVenueLocked(ctx, snapshot.ID, func(ctx context.Context, tx registry.Store, v *models.Venue) error {
			score := p.scorer.Score(v, now)
			if score == v.PriorityScore {
				return nil
			}
			v.PriorityScore = score
			updated = true
			return tx.UpdateVenue(ctx, v)
		})
		if err != nil {
			tracing.RecordError(span, err)
			return changed, err
		}
		if updated {
			changed++
		}
	}

	metrics.VenuesRescored.Add(float64(changed))
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"venues":  len(venues),
		"changed": changed,
	}).Info("Rescored venues")
	return changed, nil
}

// withVenueLocked runs fn on a fresh copy of the venue while holding the key buckets
// that record processing would take for it
func (p *Processor) withVenueLocked(ctx context.Context, venueID string, fn func(ctx context.Context, tx registry.Store, v *models.Venue) error) error {
	v, err := p.store.GetVenue(ctx, venueID)
	if err != nil {
		return err
	}

	unlock, err := p.locker.Lock(ctx, lockKeys(v.CityKey, v.NormalizedName, v.NormalizedAddress)...)
	if err != nil {
		return err
	}
	defer unlock()

	return p.store.WithinTx(ctx, func(ctx context.Context, tx registry.Store) error {
		current, err := tx.GetVenue(ctx, venueID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, current)
	})
}
