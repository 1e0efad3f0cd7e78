package merging

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkinzler/dfw-openings/pkg/classifier"
	"github.com/zkinzler/dfw-openings/pkg/fingerprint"
	"github.com/zkinzler/dfw-openings/pkg/matching"
	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/normalizers"
	"github.com/zkinzler/dfw-openings/pkg/registry"
	"github.com/zkinzler/dfw-openings/pkg/rules"
	"github.com/zkinzler/dfw-openings/pkg/scoring"
)

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	classifier *classifier.Classifier
	matcher    *matching.Matcher
	engine     *Engine
	reg        *registry.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	r := rules.Default()
	c, err := classifier.New(r)
	require.NoError(t, err)
	return &harness{
		classifier: c,
		matcher:    matching.NewMatcher(logger, matching.DefaultConfig()),
		engine:     NewEngine(logger, scoring.New(r), WithClock(func() time.Time { return testNow })),
		reg:        registry.NewMemory(),
	}
}

func (h *harness) prepare(rec models.SourceRecord) *models.NormalizedRecord {
	n := normalizers.NormalizeRecord(rec)
	n.Category = h.classifier.CategoryForRecord(rec)
	n.Stage = h.classifier.Stage(rec.Source, rec.EventType)
	n.Fingerprint = fingerprint.ForRecord(rec)
	return &n
}

// process runs match then merge the way the processor does
func (h *harness) process(t *testing.T, rec models.SourceRecord) *MergeResult {
	t.Helper()
	ctx := context.Background()
	n := h.prepare(rec)
	outcome, err := h.matcher.FindMatch(ctx, n, h.reg)
	require.NoError(t, err)
	res, err := h.engine.Merge(ctx, n, outcome.Venue, h.reg)
	require.NoError(t, err)
	return res
}

func (h *harness) venues(t *testing.T) []*models.Venue {
	t.Helper()
	all, err := h.reg.ListVenues(context.Background(), models.VenueFilter{})
	require.NoError(t, err)
	return all
}

func record(source models.SourceSystem, et models.EventType, date, name, address, city string) models.SourceRecord {
	return models.SourceRecord{
		Source:     source,
		EventType:  et,
		EventDate:  models.MustDate(date),
		RawName:    name,
		RawAddress: address,
		RawCity:    city,
	}
}

var (
	joeTABC  = record(models.SourceTABC, models.EventLicenseIssued, "2026-01-01", "Joe's BBQ LLC", "100 Main St", "Dallas")
	joeSales = record(models.SourceSalesTax, models.EventPermitFiled, "2026-01-10", "JOES BBQ", "100 Main Street", "DALLAS")
)

func TestMerge_TwoSourcesOneVenue(t *testing.T) {
	orders := map[string][]models.SourceRecord{
		"license first":   {joeTABC, joeSales},
		"sales tax first": {joeSales, joeTABC},
	}

	for name, recs := range orders {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			first := h.process(t, recs[0])
			second := h.process(t, recs[1])

			assert.True(t, first.Created)
			assert.False(t, second.Created)
			assert.True(t, second.LinkAppended)
			assert.Equal(t, first.Venue.ID, second.Venue.ID)

			all := h.venues(t)
			require.Len(t, all, 1)
			v := all[0]
			assert.Equal(t, "2026-01-01", v.FirstSeenDate.String())
			assert.Equal(t, "2026-01-10", v.LastSeenDate.String())
			assert.Equal(t, models.StagePermitting, v.Stage)
			assert.Equal(t, models.CategoryRestaurant, v.Category)
			assert.Equal(t, 2, v.LinkCount)
			assert.Equal(t, "Dallas", v.City)
			assert.Equal(t, DefaultState, v.State)

			links, err := h.reg.ListLinks(context.Background(), v.ID)
			require.NoError(t, err)
			assert.Len(t, links, 2)
		})
	}
}

func TestMerge_CreateScoresImmediately(t *testing.T) {
	h := newHarness(t)
	res := h.process(t, joeSales)

	require.True(t, res.Created)
	// restaurant 80 + permitting 10 + seen within 7 days 30
	assert.Equal(t, 120, res.Venue.PriorityScore)
	assert.Equal(t, 1, res.Venue.LinkCount)
	assert.Equal(t, 1, res.Venue.Version)
}

func TestMerge_IdenticalRecordIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.process(t, joeTABC)
	before := h.venues(t)[0]

	again := h.process(t, joeTABC)
	assert.True(t, again.Duplicate)
	assert.False(t, again.LinkAppended)
	assert.False(t, again.Created)

	after := h.venues(t)[0]
	assert.Equal(t, before.PriorityScore, after.PriorityScore)
	assert.Equal(t, before.Stage, after.Stage)
	assert.Equal(t, before.LinkCount, after.LinkCount)
	assert.Equal(t, before.Version, after.Version)
}

func TestMerge_StageNeverRegresses(t *testing.T) {
	h := newHarness(t)
	occupancy := record(models.SourceDallasCO, models.EventOccupancyIssued, "2026-01-05", "Velvet Taproom", "12 Elm St", "Dallas")
	lateLicense := record(models.SourceTABC, models.EventLicenseIssued, "2026-01-12", "Velvet Taproom", "12 Elm St", "Dallas")

	h.process(t, occupancy)
	res := h.process(t, lateLicense)

	assert.Equal(t, models.StageOpeningSoon, res.Venue.Stage)
	assert.NotContains(t, res.Changes, "stage")
	assert.Contains(t, res.Changes, "last_seen_date")
}

func TestMerge_ExcludedScoresBelowHospitality(t *testing.T) {
	h := newHarness(t)
	store := h.process(t, record(models.SourceTABC, models.EventLicenseIssued, "2026-01-14", "7-Eleven #41714H", "500 Elm St", "Dallas"))
	stale := h.process(t, record(models.SourceTABC, models.EventLicenseIssued, "2025-06-01", "Sleepy Tavern", "9 Oak St", "Dallas"))

	assert.Equal(t, models.CategoryExcluded, store.Venue.Category)
	assert.Equal(t, models.CategoryBar, stale.Venue.Category)
	assert.Less(t, store.Venue.PriorityScore, stale.Venue.PriorityScore)
}

func TestMerge_LateOlderRecordWidensWindow(t *testing.T) {
	h := newHarness(t)
	h.process(t, joeSales)
	res := h.process(t, joeTABC)

	assert.Equal(t, "2026-01-01", res.Venue.FirstSeenDate.String())
	assert.Equal(t, "2026-01-10", res.Venue.LastSeenDate.String())
	assert.Contains(t, res.Changes, "first_seen_date")
	assert.NotContains(t, res.Changes, "last_seen_date")
}

func TestApply(t *testing.T) {
	base := func() *models.Venue {
		return &models.Venue{
			Name:              "Joe's BBQ",
			NormalizedName:    "joes bbq",
			Address:           "100 Main St",
			NormalizedAddress: "100 main st",
			Category:          models.CategoryUnknown,
			Stage:             models.StagePermitting,
			FirstSeenDate:     models.MustDate("2026-01-05"),
			LastSeenDate:      models.MustDate("2026-01-10"),
		}
	}

	tests := []struct {
		name    string
		venue   func() *models.Venue
		rec     models.NormalizedRecord
		changes []string
		check   func(t *testing.T, v *models.Venue)
	}{
		{
			name:    "unknown category upgraded",
			venue:   base,
			rec:     models.NormalizedRecord{Category: models.CategoryBar, Stage: models.StageUnknown},
			changes: []string{"category"},
			check: func(t *testing.T, v *models.Venue) {
				assert.Equal(t, models.CategoryBar, v.Category)
			},
		},
		{
			name: "excluded is sticky",
			venue: func() *models.Venue {
				v := base()
				v.Category = models.CategoryExcluded
				return v
			},
			rec: models.NormalizedRecord{Category: models.CategoryBar, Stage: models.StageUnknown},
			check: func(t *testing.T, v *models.Venue) {
				assert.Equal(t, models.CategoryExcluded, v.Category)
			},
		},
		{
			name: "known category kept",
			venue: func() *models.Venue {
				v := base()
				v.Category = models.CategoryRestaurant
				return v
			},
			rec: models.NormalizedRecord{Category: models.CategoryBar, Stage: models.StageUnknown},
			check: func(t *testing.T, v *models.Venue) {
				assert.Equal(t, models.CategoryRestaurant, v.Category)
			},
		},
		{
			name:    "stage advances",
			venue:   base,
			rec:     models.NormalizedRecord{Category: models.CategoryUnknown, Stage: models.StageOpen},
			changes: []string{"stage"},
			check: func(t *testing.T, v *models.Venue) {
				assert.Equal(t, models.StageOpen, v.Stage)
			},
		},
		{
			name:  "stage does not regress",
			venue: base,
			rec:   models.NormalizedRecord{Category: models.CategoryUnknown, Stage: models.StageUnknown},
			check: func(t *testing.T, v *models.Venue) {
				assert.Equal(t, models.StagePermitting, v.Stage)
			},
		},
		{
			name:  "date inside window changes nothing",
			venue: base,
			rec: models.NormalizedRecord{
				Record:   models.SourceRecord{EventDate: models.MustDate("2026-01-07")},
				Category: models.CategoryUnknown,
				Stage:    models.StageUnknown,
			},
			check: func(t *testing.T, v *models.Venue) {
				assert.Equal(t, "2026-01-05", v.FirstSeenDate.String())
				assert.Equal(t, "2026-01-10", v.LastSeenDate.String())
			},
		},
		{
			name: "contact filled only when empty",
			venue: func() *models.Venue {
				v := base()
				v.Website = "joesbbq.com"
				return v
			},
			rec: models.NormalizedRecord{
				Record:   models.SourceRecord{RawPhone: "+1 (214) 555-0100", RawWebsite: "https://other.example.com"},
				Category: models.CategoryUnknown,
				Stage:    models.StageUnknown,
			},
			changes: []string{"phone"},
			check: func(t *testing.T, v *models.Venue) {
				assert.Equal(t, "2145550100", v.Phone)
				assert.Equal(t, "joesbbq.com", v.Website)
			},
		},
		{
			name: "missing name filled from record",
			venue: func() *models.Venue {
				v := base()
				v.Name = ""
				v.NormalizedName = ""
				return v
			},
			rec: models.NormalizedRecord{
				Record:   models.SourceRecord{RawName: " Joe's BBQ "},
				NameKey:  "joes bbq",
				Category: models.CategoryUnknown,
				Stage:    models.StageUnknown,
			},
			changes: []string{"name"},
			check: func(t *testing.T, v *models.Venue) {
				assert.Equal(t, "Joe's BBQ", v.Name)
				assert.Equal(t, "joes bbq", v.NormalizedName)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.venue()
			rec := tt.rec
			changes := Apply(v, &rec)
			assert.Equal(t, tt.changes, changes)
			tt.check(t, v)
		})
	}
}

type failingRegistry struct {
	registry.Registry
	err error
}

func (f failingRegistry) CreateVenue(context.Context, *models.Venue) error {
	return f.err
}

func (f failingRegistry) FingerprintExists(context.Context, string, string) (bool, error) {
	return false, f.err
}

func TestMerge_RegistryFailure(t *testing.T) {
	h := newHarness(t)
	reg := failingRegistry{err: registry.Unavailable("create venue", assert.AnError)}
	n := h.prepare(joeTABC)

	_, err := h.engine.Merge(context.Background(), n, nil, reg)
	assert.ErrorIs(t, err, models.ErrRegistryUnavailable)

	_, err = h.engine.Merge(context.Background(), n, &models.Venue{ID: "v1"}, reg)
	assert.ErrorIs(t, err, models.ErrRegistryUnavailable)
}
