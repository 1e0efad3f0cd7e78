package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/rules"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) models.Date {
	return models.NewDate(now.AddDate(0, 0, -n))
}

func baseVenue() *models.Venue {
	return &models.Venue{
		ID:           "v1",
		Name:         "Joe's Tavern",
		Category:     models.CategoryRestaurant,
		Stage:        models.StagePermitting,
		LastSeenDate: daysAgo(1),
	}
}

func TestBreakdown(t *testing.T) {
	s := New(rules.Default())

	v := baseVenue()
	v.Phone = "2145551234"
	v.Website = "joestavern.com"

	b := s.Breakdown(v, now)
	assert.Equal(t, Breakdown{Recency: 30, Stage: 10, Contact: 20, Category: 80, Total: 140}, b)
	assert.Equal(t, 140, s.Score(v, now))
}

func TestRecencySteps(t *testing.T) {
	s := New(rules.Default())

	tests := []struct {
		age  int
		want int
	}{
		{-5, 30},
		{0, 30},
		{7, 30},
		{8, 20},
		{30, 20},
		{31, 10},
		{90, 10},
		{91, 0},
		{400, 0},
	}
	for _, tt := range tests {
		v := baseVenue()
		v.LastSeenDate = daysAgo(tt.age)
		assert.Equal(t, tt.want, s.Breakdown(v, now).Recency, "age %d", tt.age)
	}

	v := baseVenue()
	v.LastSeenDate = models.Date{}
	assert.Equal(t, 0, s.Breakdown(v, now).Recency)
}

func TestStageOrdering(t *testing.T) {
	s := New(rules.Default())
	score := func(st models.Stage) int {
		v := baseVenue()
		v.Stage = st
		return s.Score(v, now)
	}

	assert.Greater(t, score(models.StageOpeningSoon), score(models.StagePermitting))
	assert.Greater(t, score(models.StagePermitting), score(models.StageUnknown))
	assert.Equal(t, score(models.StageUnknown), score(models.StageOpen))
}

func TestMonotonic(t *testing.T) {
	s := New(rules.Default())

	t.Run("phone strictly raises score", func(t *testing.T) {
		without := baseVenue()
		with := baseVenue()
		with.Phone = "2145551234"
		assert.Greater(t, s.Score(with, now), s.Score(without, now))
	})

	t.Run("website strictly raises score", func(t *testing.T) {
		without := baseVenue()
		with := baseVenue()
		with.Website = "example.com"
		assert.Greater(t, s.Score(with, now), s.Score(without, now))
	})

	t.Run("yesterday at least as high as 91 days ago", func(t *testing.T) {
		recent := baseVenue()
		old := baseVenue()
		old.LastSeenDate = daysAgo(91)
		assert.GreaterOrEqual(t, s.Score(recent, now), s.Score(old, now))
	})

	t.Run("equal age equal bonus", func(t *testing.T) {
		a, b := baseVenue(), baseVenue()
		b.Name = "Other"
		assert.Equal(t, s.Score(a, now), s.Score(b, now))
	})

	t.Run("bar above restaurant", func(t *testing.T) {
		bar := baseVenue()
		bar.Category = models.CategoryBar
		assert.Greater(t, s.Score(bar, now), s.Score(baseVenue(), now))
	})
}

func TestExcludedAlwaysBelowBarAndRestaurant(t *testing.T) {
	s := New(rules.Default())

	best := &models.Venue{
		Category:     models.CategoryExcluded,
		Stage:        models.StageOpeningSoon,
		LastSeenDate: daysAgo(0),
		Phone:        "2145551234",
		Website:      "example.com",
	}
	worst := &models.Venue{
		Category:     models.CategoryRestaurant,
		Stage:        models.StageOpen,
		LastSeenDate: daysAgo(1000),
	}
	assert.Less(t, s.Score(best, now), s.Score(worst, now))

	best.Category = models.CategoryUnknown
	assert.Less(t, s.Score(best, now), s.Score(worst, now))
}

func TestIsHotLead(t *testing.T) {
	s := New(rules.Default())
	assert.True(t, s.IsHotLead(70))
	assert.False(t, s.IsHotLead(69))
}

func TestRank(t *testing.T) {
	venues := []*models.Venue{
		{ID: "d", Name: "Zed", PriorityScore: 100, LastSeenDate: daysAgo(3)},
		{ID: "a", Name: "Alpha", PriorityScore: 90, LastSeenDate: daysAgo(1)},
		{ID: "c", Name: "Bravo", PriorityScore: 100, LastSeenDate: daysAgo(3)},
		{ID: "b", Name: "Yankee", PriorityScore: 100, LastSeenDate: daysAgo(1)},
		{ID: "e", Name: "bravo", PriorityScore: 100, LastSeenDate: daysAgo(3)},
	}
	Rank(venues)

	ids := make([]string, 0, len(venues))
	for _, v := range venues {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"b", "c", "e", "d", "a"}, ids)
}
