package venues

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/processor"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Handler struct {
	proc *processor.Processor
	now  func() time.Time
}

func NewHandler(proc *processor.Processor) *Handler {
	return &Handler{
		proc: proc,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Register registers venue routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/rescore", h.Rescore)
	g.GET("/:id", h.Get)
	g.GET("/:id/links", h.Links)
	g.PUT("/:id/enrichment", h.Enrich)
}

// List returns venues in priority order
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	filter, err := parseFilter(c, h.proc.CityKey)
	if err != nil {
		return err
	}

	venues, err := h.proc.Store().ListVenues(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, venues)
}

func parseFilter(c echo.Context, cityKey func(string) string) (models.VenueFilter, error) {
	filter := models.VenueFilter{
		CityKey: cityKey(c.QueryParam("city")),
		Limit:   DefaultLimit,
	}

	if v := c.QueryParam("category"); v != "" {
		filter.Category = models.Category(v)
		if !filter.Category.Valid() {
			return filter, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown category %q", v)
		}
	}
	if v := c.QueryParam("stage"); v != "" {
		filter.Stage = models.Stage(v)
		if !filter.Stage.Valid() {
			return filter, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown stage %q", v)
		}
	}
	if v := c.QueryParam("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "min_score must be an integer")
		}
		filter.MinScore = &n
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		filter.Limit = min(n, MaxLimit)
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	venue, err := h.proc.Store().GetVenue(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, venue)
}

// Links returns the source records linked to a venue
func (h *Handler) Links(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// 404 for unknown venues rather than an empty list
	if _, err := h.proc.Store().GetVenue(ctx, id); err != nil {
		return err
	}

	links, err := h.proc.Store().ListLinks(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, links)
}

func (h *Handler) Enrich(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.Enrichment
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	venue, err := h.proc.Enrich(ctx, c.Param("id"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, venue)
}

// RescoreRequest optionally moves the reference date, e.g. to replay a past day
type RescoreRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

type RescoreResponse struct {
	AsOf    string `json:"as_of"`
	Changed int    `json:"changed"`
}

func (h *Handler) Rescore(c echo.Context) error {
	ctx := c.Request().Context()

	var req RescoreRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	asOf := h.now()
	if req.AsOf != "" {
		d, err := models.ParseDate(req.AsOf)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		asOf = d.Time
	}

	changed, err := h.proc.Rescore(ctx, asOf)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, RescoreResponse{
		AsOf:    models.NewDate(asOf).String(),
		Changed: changed,
	})
}
