package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/zkinzler/dfw-openings/internal/repositories/venue"
	"github.com/zkinzler/dfw-openings/internal/repositories/venuelink"
	"github.com/zkinzler/dfw-openings/pkg/database"
	"github.com/zkinzler/dfw-openings/pkg/models"
)

// Postgres is the Store backed by the venues and venue_source_links tables.
// Transactions ride on the context, so repositories called inside WithinTx join them.
type Postgres struct {
	db     database.DB
	venues *venue.Repository
	links  *venuelink.Repository
	logger ectologger.Logger
}

func NewPostgres(db database.DB, logger ectologger.Logger) *Postgres {
	return &Postgres{
		db:     db,
		venues: venue.NewRepository(db, logger),
		links:  venuelink.NewRepository(db, logger),
		logger: logger,
	}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return Unavailable("ping", p.db.PingContext(ctx))
}

func (p *Postgres) LookupCandidates(ctx context.Context, cityKey, nameKey, addressKey string) ([]*models.Venue, error) {
	venues, err := p.venues.FindCandidates(ctx, cityKey, nameKey, addressKey)
	if err != nil {
		return nil, Unavailable("lookup candidates", err)
	}
	return venues, nil
}

func (p *Postgres) CreateVenue(ctx context.Context, v *models.Venue) error {
	if _, err := p.venues.Create(ctx, v); err != nil {
		return Unavailable("create venue", err)
	}
	return nil
}

func (p *Postgres) UpdateVenue(ctx context.Context, v *models.Venue) error {
	if _, err := p.venues.Update(ctx, v); err != nil {
		return p.translate("update venue", v.ID, err)
	}
	return nil
}

// AppendLink writes the link and bumps the venue's link count in one transaction
func (p *Postgres) AppendLink(ctx context.Context, link *models.VenueSourceLink) error {
	return p.WithinTx(ctx, func(ctx context.Context, _ Store) error {
		created, err := p.links.Create(ctx, link)
		if err != nil {
			return Unavailable("append link", err)
		}
		if !created {
			return nil
		}
		if err := p.venues.IncrementLinkCount(ctx, link.VenueID); err != nil {
			return Unavailable("append link", err)
		}
		return nil
	})
}

func (p *Postgres) FingerprintExists(ctx context.Context, venueID, fingerprint string) (bool, error) {
	ok, err := p.links.FingerprintExists(ctx, venueID, fingerprint)
	if err != nil {
		return false, Unavailable("fingerprint lookup", err)
	}
	return ok, nil
}

func (p *Postgres) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	v, err := p.venues.Get(ctx, id)
	if err != nil {
		return nil, p.translate("get venue", id, err)
	}
	return v, nil
}

func (p *Postgres) ListVenues(ctx context.Context, filter models.VenueFilter) ([]*models.Venue, error) {
	venues, err := p.venues.List(ctx, filter)
	if err != nil {
		return nil, Unavailable("list venues", err)
	}
	return venues, nil
}

func (p *Postgres) ListLinks(ctx context.Context, venueID string) ([]*models.VenueSourceLink, error) {
	links, err := p.links.ListByVenue(ctx, venueID)
	if err != nil {
		return nil, Unavailable("list links", err)
	}
	return links, nil
}

// WithinTx binds a transaction to ctx for fn. Nested calls join the outer transaction.
func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	var fnErr error
	err := database.WithTx(ctx, p.db, func(ctx context.Context) error {
		fnErr = fn(ctx, p)
		return fnErr
	})
	if err != nil && fnErr == nil {
		return Unavailable("transaction", err)
	}
	return err
}

func (p *Postgres) translate(op, id string, err error) error {
	var httpErr *httperror.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", models.ErrVenueNotFound, id)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", models.ErrVersionConflict, id)
		}
	}
	return Unavailable(op, err)
}
