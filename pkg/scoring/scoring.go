// Package scoring computes the outbound-sales priority of a venue
package scoring

import (
	"sort"
	"strings"
	"time"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/rules"
)

// Breakdown itemizes a score by factor
type Breakdown struct {
	Recency  int `json:"recency"`
	Stage    int `json:"stage"`
	Contact  int `json:"contact"`
	Category int `json:"category"`
	Total    int `json:"total"`
}

// Scorer is a pure function of a venue snapshot and a reference time
type Scorer struct {
	rules *rules.Rules
}

func New(r *rules.Rules) *Scorer {
	return &Scorer{rules: r}
}

// Score returns the priority score of v as of now
func (s *Scorer) Score(v *models.Venue, now time.Time) int {
	return s.Breakdown(v, now).Total
}

// Breakdown returns the per-factor points behind Score
func (s *Scorer) Breakdown(v *models.Venue, now time.Time) Breakdown {
	b := Breakdown{
		Recency:  s.recency(v.LastSeenDate, now),
		Stage:    s.rules.StageBonus(v.Stage),
		Contact:  s.contact(v),
		Category: s.category(v.Category),
	}
	b.Total = b.Recency + b.Stage + b.Contact + b.Category
	return b
}

// recency is a step function of age in days. Future dates count as age zero.
func (s *Scorer) recency(lastSeen models.Date, now time.Time) int {
	if lastSeen.IsZero() {
		return 0
	}
	age := lastSeen.DaysUntil(now)
	if age < 0 {
		age = 0
	}
	for _, th := range s.rules.RecencyThresholds {
		if age <= th.Days {
			return th.Bonus
		}
	}
	return 0
}

func (s *Scorer) contact(v *models.Venue) int {
	points := 0
	if strings.TrimSpace(v.Phone) != "" {
		points += s.rules.ContactBonus.Phone
	}
	if strings.TrimSpace(v.Website) != "" {
		points += s.rules.ContactBonus.Website
	}
	return points
}

func (s *Scorer) category(c models.Category) int {
	switch c {
	case models.CategoryBar:
		return s.rules.CategoryBonus.Bar
	case models.CategoryRestaurant:
		return s.rules.CategoryBonus.Restaurant
	}
	return 0
}

// IsHotLead reports whether a score clears the alerting threshold
func (s *Scorer) IsHotLead(score int) bool {
	return score >= s.rules.HotLeadMinScore
}

// Less orders venues for display: higher score first, then more recently seen,
// then name, then id so the order is total
func Less(a, b *models.Venue) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	if !a.LastSeenDate.Equal(b.LastSeenDate.Time) {
		return a.LastSeenDate.After(b.LastSeenDate)
	}
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	return a.ID < b.ID
}

// Rank sorts venues in display order
func Rank(venues []*models.Venue) {
	sort.SliceStable(venues, func(i, j int) bool {
		return Less(venues[i], venues[j])
	})
}
