package records

import (
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/processor"
)

// DefaultMaxBatchSize bounds how many records one request may carry
const DefaultMaxBatchSize = 1000

type Handler struct {
	proc     *processor.Processor
	maxBatch int
}

func NewHandler(proc *processor.Processor, maxBatch int) *Handler {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &Handler{proc: proc, maxBatch: maxBatch}
}

// Register registers record routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Ingest)
	g.POST("/preview", h.Preview)
}

// Ingest merges a batch of records and returns the batch summary. The body is a
// single record or an array of records.
func (h *Handler) Ingest(c echo.Context) error {
	ctx := c.Request().Context()

	recs, err := decode(c)
	if err != nil {
		return err
	}
	if len(recs) > h.maxBatch {
		return httperror.NewHTTPErrorf(http.StatusRequestEntityTooLarge, "batch of %d records exceeds the limit of %d", len(recs), h.maxBatch)
	}

	summary, err := h.proc.ProcessBatch(ctx, processor.TriggerAPI, recs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}

// Preview normalizes and classifies one record without storing it
func (h *Handler) Preview(c echo.Context) error {
	recs, err := decode(c)
	if err != nil {
		return err
	}
	if len(recs) != 1 {
		return httperror.NewHTTPError(http.StatusBadRequest, "preview takes exactly one record")
	}

	preview, err := h.proc.Explain(recs[0])
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, preview)
}

func decode(c echo.Context) ([]models.SourceRecord, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	recs, err := models.DecodeSourceRecords(body)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "no records in request")
	}
	return recs, nil
}
