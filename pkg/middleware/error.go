package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/zkinzler/dfw-openings/pkg/context"
	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// sentinelStatus maps domain errors onto HTTP status codes
var sentinelStatus = []struct {
	err  error
	code int
}{
	{models.ErrMalformedRecord, http.StatusBadRequest},
	{models.ErrInvalidEnrichment, http.StatusBadRequest},
	{models.ErrVenueNotFound, http.StatusNotFound},
	{models.ErrVersionConflict, http.StatusConflict},
	{models.ErrRegistryUnavailable, http.StatusServiceUnavailable},
}

// StatusCode returns the HTTP status for err and whether its message is safe to show
func StatusCode(err error) (int, bool) {
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			// store failures keep their cause out of the response
			return s.code, s.code != http.StatusServiceUnavailable
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, true
	}
	// GetStatusCode only sees an unwrapped *HTTPError
	var httpErr *httperror.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, true
	}
	return http.StatusInternalServerError, false
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")
		if c.Response().Committed {
			return
		}

		code, public := StatusCode(err)
		message := http.StatusText(code)
		meta := map[string]any{}

		var (
			he      *echo.HTTPError
			httpErr *httperror.HTTPError
		)
		switch {
		case !public:
		case errors.As(err, &he):
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		case errors.As(err, &httpErr):
			// Error() carries a "[code] HTTP Error" prefix meant for logs
			message = httpErr.Message
			if len(httpErr.Meta) > 0 {
				meta = httpErr.Meta
			}
		default:
			message = err.Error()
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
