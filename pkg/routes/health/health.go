package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

const checkTimeout = 5 * time.Second

// Check pings one dependency.
type Check func(ctx context.Context) error

// Checker handles health check endpoints
type Checker struct {
	db        Check
	checks    map[string]Check
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a new health checker. db may be nil when contacts are kept in memory.
func NewChecker(db Check, version string) *Checker {
	return &Checker{
		db:        db,
		checks:    map[string]Check{},
		version:   version,
		startTime: time.Now(),
	}
}

// AddCheck registers an additional dependency check
func (c *Checker) AddCheck(name string, check Check) {
	c.checks[name] = check
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

const (
	basicPath  = "/health"
	detailPath = "/api/v1/health"
	livePath   = "/api/v1/health/live"
	readyPath  = "/api/v1/health/ready"
)

// QuietRoutes lists health routes plus /metrics, which the access log demotes to debug.
func QuietRoutes() []string {
	return []string{basicPath, detailPath, livePath, readyPath, "/metrics"}
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET(basicPath, c.Basic)
	e.GET(detailPath, c.Health)
	e.GET(livePath, c.Live)
	e.GET(readyPath, c.Ready)
}

// BasicStatus is the response of GET /health
type BasicStatus struct {
	Status string `json:"status"`
	DB     string `json:"db"`
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult represents an individual check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Basic reports the process as up along with the database connection state.
func (c *Checker) Basic(ctx echo.Context) error {
	db := "connected"
	switch {
	case c.db == nil:
		db = "memory"
	case run(ctx.Request().Context(), c.db).Status != "healthy":
		db = "disconnected"
	}
	return ctx.JSON(http.StatusOK, BasicStatus{Status: "OK", DB: db})
}

// Health returns the overall health status
func (c *Checker) Health(ctx echo.Context) error {
	status := c.status(ctx.Request().Context())

	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	return ctx.JSON(httpStatus, status)
}

// Live returns liveness status
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// Ready returns readiness status
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, &HealthStatus{
			Status:  "unhealthy",
			Version: c.version,
			Checks: map[string]*CheckResult{
				"startup": {Status: "unhealthy", Message: "service is still starting up"},
			},
			ReportedAt: time.Now(),
		})
	}
	return c.Health(ctx)
}

func (c *Checker) status(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult),
		ReportedAt: time.Now(),
	}

	if c.db != nil {
		status.Checks["database"] = run(ctx, c.db)
	}
	for name, check := range c.checks {
		status.Checks[name] = run(ctx, check)
	}

	for _, result := range status.Checks {
		if result.Status != "healthy" {
			status.Status = "unhealthy"
		}
	}
	return status
}

func run(ctx context.Context, check Check) *CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := check(ctx); err != nil {
		return &CheckResult{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}
	return &CheckResult{
		Status:  "healthy",
		Latency: time.Since(start).String(),
	}
}
