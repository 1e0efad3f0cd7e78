// Package registry defines the venue store the merge engine reads and writes through
package registry

import (
	"context"
	"fmt"

	"github.com/zkinzler/dfw-openings/pkg/models"
)

// Registry is the narrow surface the match and merge steps need
type Registry interface {
	// LookupCandidates returns venues in cityKey whose name key equals nameKey or whose
	// address key equals addressKey. Empty keys never match.
	LookupCandidates(ctx context.Context, cityKey, nameKey, addressKey string) ([]*models.Venue, error)
	CreateVenue(ctx context.Context, venue *models.Venue) error
	UpdateVenue(ctx context.Context, venue *models.Venue) error
	AppendLink(ctx context.Context, link *models.VenueSourceLink) error
	FingerprintExists(ctx context.Context, venueID, fingerprint string) (bool, error)
}

// Store is a Registry with read-side queries and transactions
type Store interface {
	Registry
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	ListVenues(ctx context.Context, filter models.VenueFilter) ([]*models.Venue, error)
	ListLinks(ctx context.Context, venueID string) ([]*models.VenueSourceLink, error)
	// WithinTx runs fn against a transactional view of the store. Writes made through tx
	// become visible to others only if fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Ping(ctx context.Context) error
}

// Unavailable wraps a store failure as ErrRegistryUnavailable, keeping the cause inspectable
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", models.ErrRegistryUnavailable, op, err)
}

// candidateMatches applies the lookup predicate
func candidateMatches(v *models.Venue, cityKey, nameKey, addressKey string) bool {
	if v.CityKey != cityKey {
		return false
	}
	return (nameKey != "" && v.NormalizedName == nameKey) ||
		(addressKey != "" && v.NormalizedAddress == addressKey)
}
