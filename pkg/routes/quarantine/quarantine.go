package quarantine

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	q "github.com/zkinzler/dfw-openings/pkg/quarantine"
)

const DefaultLimit = 100

type Handler struct {
	store q.Quarantine
}

func NewHandler(store q.Quarantine) *Handler {
	return &Handler{store: store}
}

// Register registers quarantine routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
}

// List returns the most recently quarantined records, newest first
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	limit := DefaultLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	entries, err := h.store.List(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}
