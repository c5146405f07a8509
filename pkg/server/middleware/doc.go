// Package middleware provides HTTP middleware for the Compass API server.
//
// The server chains the middleware in this order (innermost to outermost):
//
//	handler = Recovery(Logging(RequestID(Tracing(RateLimit(BodyLimit(Timeout(handler)))))))
//
// Errors produced by the middleware use the same JSON body as the API
// handlers:
//
//	{"error": {"code": "rate_limited", "message": "too many requests", "request_id": "a1b2..."}}
package middleware
