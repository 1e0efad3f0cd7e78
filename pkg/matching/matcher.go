// Package matching resolves a normalized record to at most one existing venue
package matching

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/registry"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// Config contains matcher configuration
type Config struct {
	// AllowAddressOnly merges a single address-only candidate even when its name differs
	AllowAddressOnly bool
}

func DefaultConfig() Config {
	return Config{AllowAddressOnly: false}
}

// MatchOutcome is the matcher's decision for one record. Venue is nil when the
// record should start a new venue.
type MatchOutcome struct {
	Venue        *models.Venue
	Reason       models.MatchReason
	Ambiguous    bool
	CandidateIDs []string
}

// Err reports an ambiguous outcome as ErrAmbiguousMatch
func (o *MatchOutcome) Err() error {
	if o == nil || !o.Ambiguous {
		return nil
	}
	return fmt.Errorf("%w: %d candidates %v", models.ErrAmbiguousMatch, len(o.CandidateIDs), o.CandidateIDs)
}

type Matcher struct {
	logger ectologger.Logger
	config Config
}

func NewMatcher(logger ectologger.Logger, config Config) *Matcher {
	return &Matcher{
		logger: logger,
		config: config,
	}
}

// FindMatch looks up venues in the record's city sharing its name key or address key
// and picks the match:
//   - a name candidate that also shares the address wins
//   - otherwise a lone name candidate wins; several are ambiguous
//   - address-only candidates merge when names do not conflict (or AllowAddressOnly is set)
//     and exactly one qualifies
func (m *Matcher) FindMatch(ctx context.Context, rec *models.NormalizedRecord, reg registry.Registry) (*MatchOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Matcher.FindMatch")
	defer span.End()

	if rec.NameKey == "" && rec.AddressKey == "" {
		return &MatchOutcome{Reason: models.MatchNone}, nil
	}

	candidates, err := reg.LookupCandidates(ctx, rec.CityKey, rec.NameKey, rec.AddressKey)
	if err != nil {
		return nil, err
	}

	outcome := m.resolve(rec, candidates)
	if outcome.Venue == nil && len(candidates) > 0 {
		// a replayed record must land on the venue it created the first time
		linked, err := linkedCandidate(ctx, rec.Fingerprint, candidates, reg)
		if err != nil {
			return nil, err
		}
		if linked != nil {
			return &MatchOutcome{Venue: linked, Reason: models.MatchLinked}, nil
		}
	}
	if outcome.Ambiguous || outcome.Reason == models.MatchNameConflict {
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"city":        rec.CityKey,
			"name_key":    rec.NameKey,
			"address_key": rec.AddressKey,
			"reason":      outcome.Reason,
			"candidates":  outcome.CandidateIDs,
		}).Warn("Record not merged into an existing venue")
	}
	return outcome, nil
}

func (m *Matcher) resolve(rec *models.NormalizedRecord, candidates []*models.Venue) *MatchOutcome {
	if len(candidates) == 0 {
		return &MatchOutcome{Reason: models.MatchNone}
	}

	var byName, byAddress []*models.Venue
	for _, c := range candidates {
		if rec.NameKey != "" && c.NormalizedName == rec.NameKey {
			byName = append(byName, c)
		} else {
			byAddress = append(byAddress, c)
		}
	}

	if len(byName) > 0 {
		if rec.AddressKey != "" {
			var both []*models.Venue
			for _, c := range byName {
				if c.NormalizedAddress == rec.AddressKey {
					both = append(both, c)
				}
			}
			if len(both) == 1 {
				return &MatchOutcome{Venue: both[0], Reason: models.MatchNameAndAddress}
			}
			if len(both) > 1 {
				return ambiguous(both)
			}
		}
		if len(byName) == 1 {
			return &MatchOutcome{Venue: byName[0], Reason: models.MatchName}
		}
		return ambiguous(byName)
	}

	var eligible []*models.Venue
	for _, c := range byAddress {
		if m.config.AllowAddressOnly || !namesConflict(rec.NameKey, c.NormalizedName) {
			eligible = append(eligible, c)
		}
	}
	switch len(eligible) {
	case 0:
		return &MatchOutcome{Reason: models.MatchNameConflict, CandidateIDs: ids(byAddress)}
	case 1:
		return &MatchOutcome{Venue: eligible[0], Reason: models.MatchAddress}
	default:
		return ambiguous(eligible)
	}
}

// linkedCandidate returns the candidate that already carries fingerprint, if any
func linkedCandidate(ctx context.Context, fingerprint string, candidates []*models.Venue, reg registry.Registry) (*models.Venue, error) {
	if fingerprint == "" {
		return nil, nil
	}
	for _, c := range candidates {
		ok, err := reg.FingerprintExists(ctx, c.ID, fingerprint)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
	}
	return nil, nil
}

// namesConflict is true when both names are known and differ
func namesConflict(a, b string) bool {
	return a != "" && b != "" && a != b
}

func ambiguous(venues []*models.Venue) *MatchOutcome {
	return &MatchOutcome{Reason: models.MatchAmbiguous, Ambiguous: true, CandidateIDs: ids(venues)}
}

func ids(venues []*models.Venue) []string {
	out := make([]string, 0, len(venues))
	for _, v := range venues {
		out = append(out, v.ID)
	}
	return out
}
