package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/registry"
)

type venueSeed struct {
	id      string
	name    string
	address string
	city    string
}

func newRegistry(t *testing.T, seeds ...venueSeed) *registry.Memory {
	t.Helper()
	m := registry.NewMemory()
	for _, s := range seeds {
		require.NoError(t, m.CreateVenue(context.Background(), &models.Venue{
			ID:                s.id,
			NormalizedName:    s.name,
			NormalizedAddress: s.address,
			CityKey:           s.city,
			Category:          models.CategoryUnknown,
			Stage:             models.StageUnknown,
		}))
	}
	return m
}

func TestMatcher_FindMatch(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	joe := venueSeed{id: "v-joe", name: "joes bbq", address: "100 main st", city: "dallas"}
	joeUptown := venueSeed{id: "v-joe-uptown", name: "joes bbq", address: "2500 mckinney ave", city: "dallas"}
	taco := venueSeed{id: "v-taco", name: "taco spot", address: "100 main st", city: "dallas"}
	blank := venueSeed{id: "v-blank", name: "", address: "9 elm st", city: "dallas"}

	tests := []struct {
		name             string
		seeds            []venueSeed
		rec              models.NormalizedRecord
		allowAddressOnly bool
		wantID           string
		wantReason       models.MatchReason
		wantAmbiguous    bool
	}{
		{
			name:       "no candidates",
			seeds:      []venueSeed{joe},
			rec:        models.NormalizedRecord{NameKey: "new place", AddressKey: "1 elm st", CityKey: "dallas"},
			wantReason: models.MatchNone,
		},
		{
			name:       "same keys different city",
			seeds:      []venueSeed{joe},
			rec:        models.NormalizedRecord{NameKey: "joes bbq", AddressKey: "100 main st", CityKey: "plano"},
			wantReason: models.MatchNone,
		},
		{
			name:       "name and address",
			seeds:      []venueSeed{joe, joeUptown, taco},
			rec:        models.NormalizedRecord{NameKey: "joes bbq", AddressKey: "100 main st", CityKey: "dallas"},
			wantID:     "v-joe",
			wantReason: models.MatchNameAndAddress,
		},
		{
			name:       "name only, single candidate",
			seeds:      []venueSeed{joe},
			rec:        models.NormalizedRecord{NameKey: "joes bbq", AddressKey: "", CityKey: "dallas"},
			wantID:     "v-joe",
			wantReason: models.MatchName,
		},
		{
			name:       "name preferred over address",
			seeds:      []venueSeed{joe, taco},
			rec:        models.NormalizedRecord{NameKey: "taco spot", AddressKey: "555 other rd", CityKey: "dallas"},
			wantID:     "v-taco",
			wantReason: models.MatchName,
		},
		{
			name:          "same name at several other addresses",
			seeds:         []venueSeed{joe, joeUptown},
			rec:           models.NormalizedRecord{NameKey: "joes bbq", AddressKey: "1 new rd", CityKey: "dallas"},
			wantReason:    models.MatchAmbiguous,
			wantAmbiguous: true,
		},
		{
			name:       "address only with conflicting name",
			seeds:      []venueSeed{taco},
			rec:        models.NormalizedRecord{NameKey: "sushi house", AddressKey: "100 main st", CityKey: "dallas"},
			wantReason: models.MatchNameConflict,
		},
		{
			name:             "address only allowed by config",
			seeds:            []venueSeed{taco},
			rec:              models.NormalizedRecord{NameKey: "sushi house", AddressKey: "100 main st", CityKey: "dallas"},
			allowAddressOnly: true,
			wantID:           "v-taco",
			wantReason:       models.MatchAddress,
		},
		{
			name:             "address only allowed but several tenants",
			seeds:            []venueSeed{joe, taco},
			rec:              models.NormalizedRecord{NameKey: "sushi house", AddressKey: "100 main st", CityKey: "dallas"},
			allowAddressOnly: true,
			wantReason:       models.MatchAmbiguous,
			wantAmbiguous:    true,
		},
		{
			name:       "record without name merges by address",
			seeds:      []venueSeed{taco},
			rec:        models.NormalizedRecord{NameKey: "", AddressKey: "100 main st", CityKey: "dallas"},
			wantID:     "v-taco",
			wantReason: models.MatchAddress,
		},
		{
			name:       "venue without name merges by address",
			seeds:      []venueSeed{blank},
			rec:        models.NormalizedRecord{NameKey: "corner pub", AddressKey: "9 elm st", CityKey: "dallas"},
			wantID:     "v-blank",
			wantReason: models.MatchAddress,
		},
		{
			name:       "empty keys never match",
			seeds:      []venueSeed{blank},
			rec:        models.NormalizedRecord{CityKey: "dallas"},
			wantReason: models.MatchNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry(t, tt.seeds...)
			m := NewMatcher(logger, Config{AllowAddressOnly: tt.allowAddressOnly})

			rec := tt.rec
			outcome, err := m.FindMatch(context.Background(), &rec, reg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantReason, outcome.Reason)
			assert.Equal(t, tt.wantAmbiguous, outcome.Ambiguous)
			if tt.wantID == "" {
				assert.Nil(t, outcome.Venue)
			} else {
				require.NotNil(t, outcome.Venue)
				assert.Equal(t, tt.wantID, outcome.Venue.ID)
			}
			if tt.wantAmbiguous {
				assert.ErrorIs(t, outcome.Err(), models.ErrAmbiguousMatch)
				assert.Len(t, outcome.CandidateIDs, 2)
			} else {
				assert.NoError(t, outcome.Err())
			}
		})
	}
}

func TestMatcher_ReplayedRecordFindsItsVenue(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t,
		venueSeed{id: "v-joe", name: "joes bbq", address: "100 main st", city: "dallas"},
		venueSeed{id: "v-joe-uptown", name: "joes bbq", address: "2500 mckinney ave", city: "dallas"},
	)
	require.NoError(t, reg.AppendLink(ctx, &models.VenueSourceLink{VenueID: "v-joe-uptown", Fingerprint: "fp-1"}))
	m := NewMatcher(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), DefaultConfig())

	tests := []struct {
		name          string
		fingerprint   string
		wantID        string
		wantReason    models.MatchReason
		wantAmbiguous bool
	}{
		{name: "already linked", fingerprint: "fp-1", wantID: "v-joe-uptown", wantReason: models.MatchLinked},
		{name: "new record stays ambiguous", fingerprint: "fp-2", wantReason: models.MatchAmbiguous, wantAmbiguous: true},
		{name: "no fingerprint", wantReason: models.MatchAmbiguous, wantAmbiguous: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.NormalizedRecord{NameKey: "joes bbq", CityKey: "dallas", Fingerprint: tt.fingerprint}
			outcome, err := m.FindMatch(ctx, rec, reg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantReason, outcome.Reason)
			assert.Equal(t, tt.wantAmbiguous, outcome.Ambiguous)
			if tt.wantID == "" {
				assert.Nil(t, outcome.Venue)
				return
			}
			require.NotNil(t, outcome.Venue)
			assert.Equal(t, tt.wantID, outcome.Venue.ID)
		})
	}
}

type failingRegistry struct {
	registry.Registry
}

func (failingRegistry) LookupCandidates(context.Context, string, string, string) ([]*models.Venue, error) {
	return nil, registry.Unavailable("lookup candidates", errors.New("connection reset"))
}

func TestMatcher_RegistryFailure(t *testing.T) {
	m := NewMatcher(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), DefaultConfig())
	_, err := m.FindMatch(context.Background(), &models.NormalizedRecord{NameKey: "x", CityKey: "dallas"}, failingRegistry{})
	assert.ErrorIs(t, err, models.ErrRegistryUnavailable)
}
