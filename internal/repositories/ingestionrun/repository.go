package ingestionrun

import (
	"context"
	"encoding/json"
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

const table = "ingestion_runs"

var columns = []string{
	"id", "trigger", "started_at", "finished_at", "status", "total", "created", "updated",
	"duplicates", "rejected", "failed", "ambiguous", "source_counts", "error_message",
}

type row struct {
	models.IngestionRun
	SourceCounts []byte `db:"source_counts"`
}

func (r row) run() *models.IngestionRun {
	run := r.IngestionRun
	run.SourceCounts = json.RawMessage(r.SourceCounts)
	return &run
}

// Repository persists the ingestion run log
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new ingestion run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Start records a running ingestion
func (r *Repository) Start(ctx context.Context, trigger string) (*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Start")
	defer span.End()

	run := &models.IngestionRun{
		ID:           uuid.New().String(),
		Trigger:      trigger,
		StartedAt:    time.Now().UTC(),
		Status:       models.RunStatusRunning,
		SourceCounts: json.RawMessage("{}"),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols("id", "trigger", "started_at", "status", "source_counts")
	sb.Values(run.ID, run.Trigger, run.StartedAt, run.Status, database.NewJSONB(map[models.SourceSystem]int{}))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to start ingestion run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start ingestion run")
	}

	return run, nil
}

// Finish stores the batch outcome on the run
func (r *Repository) Finish(ctx context.Context, runID string, summary *models.BatchSummary, sourceCounts map[models.SourceSystem]int, runErr error) error {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Finish")
	defer span.End()

	status := models.RunStatusCompleted
	var message *string
	if runErr != nil {
		status = models.RunStatusFailed
		msg := runErr.Error()
		message = &msg
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(
		sb.Assign("finished_at", time.Now().UTC()),
		sb.Assign("status", status),
		sb.Assign("total", summary.Total),
		sb.Assign("created", summary.Created),
		sb.Assign("updated", summary.Updated),
		sb.Assign("duplicates", summary.Duplicates),
		sb.Assign("rejected", summary.Rejected),
		sb.Assign("failed", summary.Failed),
		sb.Assign("ambiguous", summary.Ambiguous),
		sb.Assign("source_counts", database.NewJSONB(sourceCounts)),
		sb.Assign("error_message", message),
	)
	sb.Where(sb.Equal("id", runID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to finish ingestion run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish ingestion run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("ingestion run %s not found", runID))
	}
	return nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run row
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("ingestion run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get ingestion run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ingestion run")
	}
	return run.run(), nil
}

// ListRecent returns the latest runs, newest first
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.ListRecent")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list ingestion runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list ingestion runs")
	}

	runs := make([]*models.IngestionRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.run())
	}
	return runs, nil
}
