package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ContextIDKey is the context key for the evaluated business context.
	ContextIDKey contextKey = "context_id"

	// RecommendationIDKey is the context key for recommendation IDs.
	RecommendationIDKey contextKey = "recommendation_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithContextID adds a business context ID to the context.
func WithContextID(ctx context.Context, contextID string) context.Context {
	return context.WithValue(ctx, ContextIDKey, contextID)
}

// GetContextID retrieves the business context ID from the context.
func GetContextID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRecommendationID adds a recommendation ID to the context.
func WithRecommendationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RecommendationIDKey, id)
}

// GetRecommendationID retrieves the recommendation ID from the context.
func GetRecommendationID(ctx context.Context) string {
	if id, ok := ctx.Value(RecommendationIDKey).(string); ok {
		return id
	}
	return ""
}

// contextAttrs extracts the correlation fields present on ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := GetRequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), v))
	}
	if v := GetContextID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ContextIDKey), v))
	}
	if v := GetRecommendationID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(RecommendationIDKey), v))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
	}
	return attrs
}
