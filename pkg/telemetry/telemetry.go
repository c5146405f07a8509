package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/telemetry/health"
	"mercator-hq/compass/pkg/telemetry/logging"
	"mercator-hq/compass/pkg/telemetry/metrics"
	"mercator-hq/compass/pkg/telemetry/tracing"
)

// Telemetry holds the initialized observability components.
type Telemetry struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Health  *health.Checker
}

// New initializes logging, metrics, tracing and health checks from cfg.
// Metrics is nil when disabled.
func New(cfg *config.TelemetryConfig, version string, logOut io.Writer) (*Telemetry, error) {
	logger, err := logging.New(&cfg.Logging, logOut)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tracer, err := tracing.New(&cfg.Tracing, version)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	t := &Telemetry{
		Logger: logger,
		Tracer: tracer,
		Health: health.New(cfg.Health.CheckTimeout),
	}
	if cfg.Metrics.Enabled {
		t.Metrics = metrics.NewCollector(&cfg.Metrics, nil)
	}
	return t, nil
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}
