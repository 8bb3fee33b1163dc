// Package inject builds the dependency containers route handlers resolve services from.
package inject

import (
	"context"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
)

// NewContainer registers a fresh container under a unique id so several servers can live in one
// process. Container log lines go to logger.
func NewContainer(logger ectologger.Logger) (ectocontainer.DIContainer, error) {
	cfg := ectoinject.DefaultContainerConfig
	cfg.ID = "clover-" + uuid.NewString()
	cfg.LoggerConfig = &ectocontainer.DIContainerLoggerConfig{
		Enabled: true,
		LogFunc: func(ctx context.Context, level, msg string) {
			entry := logger.WithContext(ctx).WithField("component", "ectoinject")
			if level == loglevel.WARN {
				entry.Warn(msg)
				return
			}
			entry.Debug(msg)
		},
	}
	return ectoinject.NewDIContainer(cfg)
}
