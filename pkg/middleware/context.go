package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/zkinzler/dfw-openings/pkg/context"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// HeaderTraceID carries the trace of the request back to the caller
const HeaderTraceID = "X-Trace-Id"

// Context tags the request context with its id, method, matched route and caller IP,
// and echoes the request and trace ids on the response
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}

			ctx := context.SetRequestID(req.Context(), requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, route)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			c.SetRequest(req.WithContext(ctx))

			header := c.Response().Header()
			header.Set(echo.HeaderXRequestID, requestID)
			if traceID := tracing.GetTraceID(ctx); traceID != "" {
				header.Set(HeaderTraceID, traceID)
			}

			return next(c)
		}
	}
}
