package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/labstack/echo/v4"
)

// Logger writes one "Request" line per call. Routes in quietRoutes (health checks, scrapes) log at
// debug level; everything else logs by status class.
func Logger(logger ectologger.Logger, quietRoutes ...string) echo.MiddlewareFunc {
	quiet := make(map[string]bool, len(quietRoutes))
	for _, route := range quietRoutes {
		quiet[route] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			latency := time.Since(start)

			ctx := req.Context()
			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"source":        context.GetSource(ctx),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         c.Path(),
				"remote_ip":     c.RealIP(),
				"user_agent":    req.UserAgent(),
				"response_time": latency.String(),
				"request_size":  req.Header.Get(echo.HeaderContentLength),
				"response_size": strconv.FormatInt(res.Size, 10),
			})

			switch {
			case quiet[c.Path()]:
				entry.Debug("Request")
			case res.Status >= http.StatusInternalServerError:
				entry.Error("Request")
			case res.Status >= http.StatusBadRequest:
				entry.Warn("Request")
			default:
				entry.Info("Request")
			}

			return nil
		}
	}
}
