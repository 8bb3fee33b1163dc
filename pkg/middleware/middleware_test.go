package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEcho() *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	return e
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestContext_SetsRequestMetadata(t *testing.T) {
	e := newTestEcho()
	e.GET("/ping", func(c echo.Context) error {
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, map[string]string{
			"request_id": context.GetRequestID(ctx),
			"source":     context.GetSource(ctx),
			"method":     context.GetMethod(ctx),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))
	assert.JSONEq(t, `{"request_id":"req-123","source":"http","method":"GET"}`, rec.Body.String())
}

func TestContext_GeneratesRequestID(t *testing.T) {
	e := newTestEcho()
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
}

func TestError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
		wantMeta    map[string]any
	}{
		{
			name:        "http error with meta",
			err:         httperror.NewHTTPError(http.StatusServiceUnavailable, "busy").AddMetaValue("retryable", true),
			wantCode:    http.StatusServiceUnavailable,
			wantMessage: "busy",
			wantMeta:    map[string]any{"retryable": true},
		},
		{
			name:        "bad request",
			err:         httperror.NewHTTPError(http.StatusBadRequest, "Either email or phoneNumber must be provided"),
			wantCode:    http.StatusBadRequest,
			wantMessage: "Either email or phoneNumber must be provided",
			wantMeta:    map[string]any{},
		},
		{
			name:        "echo error",
			err:         echo.NewHTTPError(http.StatusNotFound, "not here"),
			wantCode:    http.StatusNotFound,
			wantMessage: "not here",
			wantMeta:    map[string]any{},
		},
		{
			name:        "plain error is opaque",
			err:         errors.New("pq: connection refused"),
			wantCode:    http.StatusInternalServerError,
			wantMessage: "Internal Server Error",
			wantMeta:    map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			e.GET("/fail", func(c echo.Context) error { return tt.err })

			req := httptest.NewRequest(http.MethodGet, "/fail", nil)
			req.Header.Set(echo.HeaderXRequestID, "req-1")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.Equal(t, "req-1", body.RequestID)
			assert.Equal(t, tt.wantMeta, body.Meta)
		})
	}
}

func TestError_RetryableSetsRetryAfter(t *testing.T) {
	e := newTestEcho()
	e.GET("/busy", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "busy").AddMetaValue("retryable", true)
	})
	e.GET("/bad", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusBadRequest, "bad")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/busy", nil))
	assert.Equal(t, RetryAfterSeconds, rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestError_UnknownRouteIsJSON(t *testing.T) {
	e := newTestEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeError(t, rec).Message)
}
