// Package logging builds the structured slog logger used across Compass.
//
// The handler injects correlation fields carried on the context
// (request_id, context_id, recommendation_id, trace_id) into every record
// logged through the *Context methods, and masks values of sensitive keys
// such as passwords and tokens.
//
//	logger, err := logging.New(&cfg.Telemetry.Logging, os.Stderr)
//	ctx = logging.WithRequestID(ctx, id)
//	logger.InfoContext(ctx, "evaluated", "candidates", 3)
package logging
