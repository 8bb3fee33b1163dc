package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// RetryAfterSeconds is sent with every error whose meta marks it retryable.
const RetryAfterSeconds = "1"

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id,omitempty"`
	Meta      map[string]any `json:"meta"`
}

// Error renders httperror and echo errors as ErrorResponse bodies. Anything else is an opaque 500.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()
		code, body := resolveError(err)

		entry := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status": code,
			"route":  c.Path(),
		})
		if code >= http.StatusInternalServerError {
			entry.Error("Request failed")
		} else {
			entry.Warn("Request rejected")
		}

		if retryable, _ := body.Meta["retryable"].(bool); retryable {
			c.Response().Header().Set("Retry-After", RetryAfterSeconds)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}

		body.RequestID = context.GetRequestID(ctx)
		body.TraceID = tracing.GetTraceID(ctx)
		_ = c.JSON(code, body)
	}
}

func resolveError(err error) (int, ErrorResponse) {
	if httperror.IsHTTPError(err) {
		meta := httperror.ToHTTPError(err).Meta
		if meta == nil {
			meta = map[string]any{}
		}
		return httperror.GetStatusCode(err), ErrorResponse{Message: httperror.ToHTTPError(err).Error(), Meta: meta}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		message, ok := he.Message.(string)
		if !ok {
			message = http.StatusText(he.Code)
		}
		return he.Code, ErrorResponse{Message: message, Meta: map[string]any{}}
	}

	return http.StatusInternalServerError, ErrorResponse{
		Message: http.StatusText(http.StatusInternalServerError),
		Meta:    map[string]any{},
	}
}
