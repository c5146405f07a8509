// Package tracing provides OpenTelemetry distributed tracing for Compass.
//
// When tracing is disabled the Tracer is backed by a noop provider, so
// instrumented code can call Start unconditionally. When enabled, spans
// are batched to an OTLP gRPC collector and W3C trace context is
// propagated through incoming HTTP requests.
//
// Instrumented operations:
//
//	recommend.Evaluate      one span per Evaluate call (batch)
//	recommend.EvaluateContext  one child span per context
//	recommend.Execute       execution of a recommendation
//	repository.Refresh      rule repository refresh
package tracing
