package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/compass/pkg/config"
)

// RateLimit throttles requests with a single token bucket shared by all
// clients. Rejected requests receive 429 with a Retry-After header. A nil
// or disabled config disables the middleware.
func RateLimit(cfg *config.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg == nil || !cfg.Enabled {
			return next
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		return rateLimit(limiter, next)
	}
}

func rateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := limiter.Reserve()
		if !res.OK() {
			writeRateLimited(w, r, time.Second)
			return
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			writeRateLimited(w, r, delay)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, r, http.StatusTooManyRequests, ErrorDetail{
		Code:    "rate_limited",
		Message: "too many requests",
	})
}
