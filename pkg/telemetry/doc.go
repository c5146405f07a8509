// Package telemetry bundles the observability components of Compass.
//
//   - logging: structured slog logger with context correlation fields
//   - metrics: Prometheus collector
//   - tracing: OpenTelemetry tracer
//   - health: liveness and readiness checks
//
// Usage:
//
//	tel, err := telemetry.New(&cfg.Telemetry, version, os.Stderr)
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
package telemetry
