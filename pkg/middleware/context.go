package middleware

import (
	"net/http"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderTraceID carries the active trace id back to HTTP callers.
const HeaderTraceID = "X-Trace-ID"

// Context tags the request context with request metadata and SourceHTTP. The request id is
// taken from X-Request-ID when present and echoed in the response either way.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := incomingRequestID(req)

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}

			ctx := context.SetSource(req.Context(), context.SourceHTTP)
			ctx = context.SetRequestID(ctx, requestID)
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

func incomingRequestID(req *http.Request) string {
	if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}
