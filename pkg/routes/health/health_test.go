package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func serve(c *Checker, path string) *httptest.ResponseRecorder {
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBasic(t *testing.T) {
	tests := []struct {
		name string
		db   Check
		want string
	}{
		{name: "connected", db: ok, want: `{"status":"OK","db":"connected"}`},
		{name: "disconnected", db: failing, want: `{"status":"OK","db":"disconnected"}`},
		{name: "memory store", db: nil, want: `{"status":"OK","db":"memory"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewChecker(tt.db, "test"), "/health")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestHealth(t *testing.T) {
	checker := NewChecker(ok, "1.2.3")
	checker.AddCheck("redis", ok)

	rec := serve(checker, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Contains(t, status.Checks, "database")
	assert.Contains(t, status.Checks, "redis")

	checker.AddCheck("graph", failing)
	rec = serve(checker, "/api/v1/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "connection refused", status.Checks["graph"].Message)
}

func TestReadyAndLive(t *testing.T) {
	checker := NewChecker(ok, "test")

	assert.Equal(t, http.StatusOK, serve(checker, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(checker, "/api/v1/health/ready").Code)

	checker.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(checker, "/api/v1/health/ready").Code)
}
