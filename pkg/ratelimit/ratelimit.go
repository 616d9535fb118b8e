package ratelimit

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Middleware returns a middleware limiting the rate of incoming requests
// with a token bucket: one token per interval with the given burst.
// Requests over the limit are rejected with 429.
func Middleware(interval time.Duration, burst int) func(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Every(interval), burst)

	return func(next http.Handler) http.Handler {
		f := func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests),
					http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(f)
	}
}
