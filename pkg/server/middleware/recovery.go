package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery recovers from panics in handlers, logs the stack trace and
// answers 500 without exposing internal details.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", w.Header().Get(RequestIDHeader),
					"stack", string(debug.Stack()),
				)

				WriteError(w, r, http.StatusInternalServerError, ErrorDetail{
					Code:    "internal_error",
					Message: "an internal error occurred",
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
