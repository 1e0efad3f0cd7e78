package venuelink

import (
	"context"
	"encoding/json"
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

const table = "venue_source_links"

var columns = []string{
	"id", "venue_id", "source", "event_type", "event_date", "source_record_id", "raw_name", "raw_address",
	"raw_city", "raw_phone", "raw_website", "url", "payload", "fingerprint", "linked_at",
}

// row scans payload as bytes; jsonb text is copied before the driver reuses its buffer
type row struct {
	models.VenueSourceLink
	Payload []byte `db:"payload"`
}

func (r row) link() *models.VenueSourceLink {
	link := r.VenueSourceLink
	link.Payload = json.RawMessage(r.Payload)
	return &link
}

// Repository handles venue source link persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new venue source link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a link. It reports false when the (venue_id, fingerprint) pair already exists.
func (r *Repository) Create(ctx context.Context, link *models.VenueSourceLink) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "venuelink.Repository.Create")
	defer span.End()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.LinkedAt = time.Now().UTC()

	payload := link.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	ib := database.NewInsertBuilder().
		InsertInto(table).
		Cols(columns...).
		Values(
			link.ID, link.VenueID, link.Source, link.EventType, link.EventDate, link.SourceRecordID, link.RawName, link.RawAddress,
			link.RawCity, link.RawPhone, link.RawWebsite, link.URL, []byte(payload), link.Fingerprint, link.LinkedAt,
		).
		OnConflictDoNothing("venue_id", "fingerprint")

	query, args := ib.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"venue_id": link.VenueID}).Error("Failed to create venue link")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create venue link")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// FingerprintExists reports whether venueID already has a link with fingerprint
func (r *Repository) FingerprintExists(ctx context.Context, venueID, fingerprint string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "venuelink.Repository.FingerprintExists")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	sb.Where(sb.Equal("venue_id", venueID), sb.Equal("fingerprint", fingerprint))

	query, args := sb.Build()
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"venue_id": venueID}).Error("Failed to check fingerprint")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check fingerprint")
	}

	return count > 0, nil
}

// ListByVenue returns a venue's links oldest first
func (r *Repository) ListByVenue(ctx context.Context, venueID string) ([]*models.VenueSourceLink, error) {
	ctx, span := tracing.StartSpan(ctx, "venuelink.Repository.ListByVenue")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("venue_id", venueID))
	sb.OrderBy("linked_at ASC", "id ASC")

	query, args := sb.Build()
	var rows []row
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"venue_id": venueID}).Error("Failed to list venue links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list venue links")
	}

	links := make([]*models.VenueSourceLink, 0, len(rows))
	for _, row := range rows {
		links = append(links, row.link())
	}
	return links, nil
}
