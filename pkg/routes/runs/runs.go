package runs

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/zkinzler/dfw-openings/pkg/models"
)

// Reader is satisfied by the ingestion run repository
type Reader interface {
	Get(ctx context.Context, id string) (*models.IngestionRun, error)
	ListRecent(ctx context.Context, limit int) ([]*models.IngestionRun, error)
}

type Handler struct {
	runs Reader
}

func NewHandler(runs Reader) *Handler {
	return &Handler{runs: runs}
}

// Register registers ingestion run routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	run, err := h.runs.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}
