package venue

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/zkinzler/dfw-openings/pkg/database"
	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

const table = "venues"

var columns = []string{
	"id", "name", "normalized_name", "address", "normalized_address", "city", "city_key", "state",
	"postal_code", "category", "stage", "first_seen_date", "last_seen_date", "priority_score",
	"phone", "website", "place_id", "latitude", "longitude", "link_count", "created_at", "updated_at", "version",
}

// Repository handles venue persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new venue repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new venue
func (r *Repository) Create(ctx context.Context, v *models.Venue) (*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.Create")
	defer span.End()

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now().UTC()
	v.UpdatedAt = v.CreatedAt
	v.Version = 1

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(
		v.ID, v.Name, v.NormalizedName, v.Address, v.NormalizedAddress, v.City, v.CityKey, v.State,
		v.PostalCode, v.Category, v.Stage, v.FirstSeenDate, v.LastSeenDate, v.PriorityScore,
		v.Phone, v.Website, v.PlaceID, v.Latitude, v.Longitude, v.LinkCount, v.CreatedAt, v.UpdatedAt, v.Version,
	)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"venue_id": v.ID}).Error("Failed to create venue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create venue")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"venue_id": v.ID, "city": v.CityKey}).Info("Created venue")
	return v, nil
}

// Get retrieves a venue by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var v models.Venue
	if err := database.Conn(ctx, r.db).GetContext(ctx, &v, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("venue %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get venue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get venue")
	}

	return &v, nil
}

// Update writes every mutable column and increments the version
func (r *Repository) Update(ctx context.Context, v *models.Venue) (*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.Update")
	defer span.End()

	v.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(
		sb.Assign("name", v.Name),
		sb.Assign("normalized_name", v.NormalizedName),
		sb.Assign("address", v.Address),
		sb.Assign("normalized_address", v.NormalizedAddress),
		sb.Assign("city", v.City),
		sb.Assign("city_key", v.CityKey),
		sb.Assign("state", v.State),
		sb.Assign("postal_code", v.PostalCode),
		sb.Assign("category", v.Category),
		sb.Assign("stage", v.Stage),
		sb.Assign("first_seen_date", v.FirstSeenDate),
		sb.Assign("last_seen_date", v.LastSeenDate),
		sb.Assign("priority_score", v.PriorityScore),
		sb.Assign("phone", v.Phone),
		sb.Assign("website", v.Website),
		sb.Assign("place_id", v.PlaceID),
		sb.Assign("latitude", v.Latitude),
		sb.Assign("longitude", v.Longitude),
		sb.Assign("updated_at", v.UpdatedAt),
		sb.Add("version", 1),
	)
	// link_count is owned by IncrementLinkCount; version guards against a concurrent writer
	sb.Where(sb.Equal("id", v.ID), sb.Equal("version", v.Version))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"venue_id": v.ID}).Error("Failed to update venue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update venue")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := r.Get(ctx, v.ID); err != nil {
			return nil, err
		}
		r.logger.WithContext(ctx).WithFields(map[string]any{"venue_id": v.ID, "version": v.Version}).Warn("Venue version changed before update")
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "venue %s was modified concurrently", v.ID)
	}

	v.Version++
	return v, nil
}

// IncrementLinkCount bumps link_count after a link row is written
func (r *Repository) IncrementLinkCount(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.IncrementLinkCount")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(sb.Add("link_count", 1))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"venue_id": id}).Error("Failed to increment link count")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update venue")
	}
	return nil
}

// FindCandidates returns venues in cityKey sharing the name key or the address key
func (r *Repository) FindCandidates(ctx context.Context, cityKey, nameKey, addressKey string) ([]*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.FindCandidates")
	defer span.End()

	var keys []string
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	if nameKey != "" {
		keys = append(keys, sb.Equal("normalized_name", nameKey))
	}
	if addressKey != "" {
		keys = append(keys, sb.Equal("normalized_address", addressKey))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("city_key", cityKey), sb.Or(keys...))
	sb.OrderBy("id ASC")

	query, args := sb.Build()
	var venues []*models.Venue
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &venues, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"city": cityKey}).Error("Failed to find candidate venues")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find candidate venues")
	}

	return venues, nil
}

// List returns venues matching filter in rank order
func (r *Repository) List(ctx context.Context, filter models.VenueFilter) ([]*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.List")
	defer span.End()

	sb := listQuery(filter)
	query, args := sb.Build()
	var venues []*models.Venue
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &venues, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list venues")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list venues")
	}

	return venues, nil
}

func listQuery(filter models.VenueFilter) *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)

	var where []string
	if filter.CityKey != "" {
		where = append(where, sb.Equal("city_key", filter.CityKey))
	}
	if filter.Category != "" {
		where = append(where, sb.Equal("category", filter.Category))
	}
	if filter.Stage != "" {
		where = append(where, sb.Equal("stage", filter.Stage))
	}
	if filter.MinScore != nil {
		where = append(where, sb.GreaterEqualThan("priority_score", *filter.MinScore))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}

	sb.OrderBy("priority_score DESC", "last_seen_date DESC", "lower(name) ASC", "id ASC")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}
	return sb
}
