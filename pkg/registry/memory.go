package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/scoring"
)

// Memory is an in-process Store. Transactions are serialized and staged in an
// overlay that is applied on commit.
type Memory struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	venues map[string]*models.Venue
	byCity map[string]map[string]bool
	links  map[string][]*models.VenueSourceLink
	prints map[string]map[string]bool
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		venues: make(map[string]*models.Venue),
		byCity: make(map[string]map[string]bool),
		links:  make(map[string][]*models.VenueSourceLink),
		prints: make(map[string]map[string]bool),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) LookupCandidates(_ context.Context, cityKey, nameKey, addressKey string) ([]*models.Venue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(cityKey, nameKey, addressKey), nil
}

func (m *Memory) lookupLocked(cityKey, nameKey, addressKey string) []*models.Venue {
	var out []*models.Venue
	for id := range m.byCity[cityKey] {
		v := m.venues[id]
		if candidateMatches(v, cityKey, nameKey, addressKey) {
			out = append(out, v.Clone())
		}
	}
	sortByID(out)
	return out
}

func (m *Memory) CreateVenue(ctx context.Context, venue *models.Venue) error {
	return m.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.CreateVenue(ctx, venue)
	})
}

func (m *Memory) UpdateVenue(ctx context.Context, venue *models.Venue) error {
	return m.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.UpdateVenue(ctx, venue)
	})
}

func (m *Memory) AppendLink(ctx context.Context, link *models.VenueSourceLink) error {
	return m.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.AppendLink(ctx, link)
	})
}

func (m *Memory) FingerprintExists(_ context.Context, venueID, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prints[venueID][fingerprint], nil
}

func (m *Memory) GetVenue(_ context.Context, id string) (*models.Venue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.venues[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrVenueNotFound, id)
	}
	return v.Clone(), nil
}

func (m *Memory) ListVenues(_ context.Context, filter models.VenueFilter) ([]*models.Venue, error) {
	m.mu.RLock()
	out := make([]*models.Venue, 0, len(m.venues))
	for _, v := range m.venues {
		if filter.Matches(v) {
			out = append(out, v.Clone())
		}
	}
	m.mu.RUnlock()

	scoring.Rank(out)
	return page(out, filter.Offset, filter.Limit), nil
}

func (m *Memory) ListLinks(_ context.Context, venueID string) ([]*models.VenueSourceLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.links[venueID]
	out := make([]*models.VenueSourceLink, 0, len(src))
	for _, l := range src {
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

// WithinTx stages writes in an overlay and applies them atomically if fn succeeds
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{
		base:    m,
		venues:  make(map[string]*models.Venue),
		created: make(map[string]bool),
		prints:  make(map[string]map[string]bool),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.commit(tx)
	return nil
}

func (m *Memory) commit(tx *memoryTx) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, v := range tx.venues {
		if old, ok := m.venues[id]; ok && old.CityKey != v.CityKey {
			delete(m.byCity[old.CityKey], id)
		}
		m.venues[id] = v
		if m.byCity[v.CityKey] == nil {
			m.byCity[v.CityKey] = make(map[string]bool)
		}
		m.byCity[v.CityKey][id] = true
	}
	for _, l := range tx.links {
		m.links[l.VenueID] = append(m.links[l.VenueID], l)
		if m.prints[l.VenueID] == nil {
			m.prints[l.VenueID] = make(map[string]bool)
		}
		m.prints[l.VenueID][l.Fingerprint] = true
	}
}

// memoryTx is the transactional view handed to WithinTx callbacks
type memoryTx struct {
	base    *Memory
	venues  map[string]*models.Venue
	created map[string]bool
	links   []*models.VenueSourceLink
	prints  map[string]map[string]bool
}

func (tx *memoryTx) Ping(context.Context) error {
	return nil
}

func (tx *memoryTx) LookupCandidates(_ context.Context, cityKey, nameKey, addressKey string) ([]*models.Venue, error) {
	tx.base.mu.RLock()
	baseHits := tx.base.lookupLocked(cityKey, nameKey, addressKey)
	tx.base.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*models.Venue
	for _, v := range baseHits {
		seen[v.ID] = true
		if staged, ok := tx.venues[v.ID]; ok {
			if !candidateMatches(staged, cityKey, nameKey, addressKey) {
				continue
			}
			v = staged.Clone()
		}
		out = append(out, v)
	}
	for id, v := range tx.venues {
		if !seen[id] && candidateMatches(v, cityKey, nameKey, addressKey) {
			out = append(out, v.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (tx *memoryTx) exists(id string) bool {
	if _, ok := tx.venues[id]; ok {
		return true
	}
	tx.base.mu.RLock()
	defer tx.base.mu.RUnlock()
	_, ok := tx.base.venues[id]
	return ok
}

func (tx *memoryTx) CreateVenue(_ context.Context, venue *models.Venue) error {
	if venue.ID == "" {
		venue.ID = uuid.New().String()
	}
	if tx.exists(venue.ID) {
		return fmt.Errorf("venue %s already exists", venue.ID)
	}
	now := tx.base.now()
	venue.CreatedAt = now
	venue.UpdatedAt = now
	venue.Version = 1
	tx.venues[venue.ID] = venue.Clone()
	tx.created[venue.ID] = true
	return nil
}

func (tx *memoryTx) UpdateVenue(ctx context.Context, venue *models.Venue) error {
	current, err := tx.GetVenue(ctx, venue.ID)
	if err != nil {
		return err
	}
	if current.Version != venue.Version {
		return fmt.Errorf("%w: %s at version %d, have %d", models.ErrVersionConflict, venue.ID, current.Version, venue.Version)
	}
	venue.UpdatedAt = tx.base.now()
	venue.Version++
	tx.venues[venue.ID] = venue.Clone()
	return nil
}

func (tx *memoryTx) AppendLink(ctx context.Context, link *models.VenueSourceLink) error {
	if !tx.exists(link.VenueID) {
		return fmt.Errorf("%w: %s", models.ErrVenueNotFound, link.VenueID)
	}
	dup, _ := tx.FingerprintExists(ctx, link.VenueID, link.Fingerprint)
	if dup {
		return nil
	}
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.LinkedAt = tx.base.now()

	c := *link
	tx.links = append(tx.links, &c)
	if tx.prints[link.VenueID] == nil {
		tx.prints[link.VenueID] = make(map[string]bool)
	}
	tx.prints[link.VenueID][link.Fingerprint] = true

	// link_count is derived from appended links
	v, err := tx.GetVenue(ctx, link.VenueID)
	if err != nil {
		return err
	}
	v.LinkCount++
	tx.venues[v.ID] = v
	return nil
}

func (tx *memoryTx) FingerprintExists(ctx context.Context, venueID, fingerprint string) (bool, error) {
	if tx.prints[venueID][fingerprint] {
		return true, nil
	}
	return tx.base.FingerprintExists(ctx, venueID, fingerprint)
}

func (tx *memoryTx) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	if v, ok := tx.venues[id]; ok {
		return v.Clone(), nil
	}
	return tx.base.GetVenue(ctx, id)
}

func (tx *memoryTx) ListVenues(ctx context.Context, filter models.VenueFilter) ([]*models.Venue, error) {
	all, err := tx.base.ListVenues(ctx, models.VenueFilter{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Venue, len(all)+len(tx.venues))
	for _, v := range all {
		byID[v.ID] = v
	}
	for id, v := range tx.venues {
		byID[id] = v.Clone()
	}
	out := make([]*models.Venue, 0, len(byID))
	for _, v := range byID {
		if filter.Matches(v) {
			out = append(out, v)
		}
	}
	scoring.Rank(out)
	return page(out, filter.Offset, filter.Limit), nil
}

func (tx *memoryTx) ListLinks(ctx context.Context, venueID string) ([]*models.VenueSourceLink, error) {
	out, err := tx.base.ListLinks(ctx, venueID)
	if err != nil {
		return nil, err
	}
	for _, l := range tx.links {
		if l.VenueID == venueID {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

// WithinTx on a transaction joins it
func (tx *memoryTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, tx)
}

func sortByID(venues []*models.Venue) {
	sort.Slice(venues, func(i, j int) bool { return venues[i].ID < venues[j].ID })
}

func page(venues []*models.Venue, offset, limit int) []*models.Venue {
	if offset > 0 {
		if offset >= len(venues) {
			return []*models.Venue{}
		}
		venues = venues[offset:]
	}
	if limit > 0 && limit < len(venues) {
		venues = venues[:limit]
	}
	return venues
}
