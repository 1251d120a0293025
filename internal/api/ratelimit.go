package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter throttles requests per (identity, route class), matching
// the SHOULD-level §4.9 rate-limit guidance: a token bucket keyed by
// caller and route group rather than one global limit.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &rateLimiter{limiters: make(map[string]*rate.Limiter), perMin: perMinute}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(rl.perMin)/60.0), rl.perMin)
		rl.limiters[key] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}

// middleware keys the bucket on the caller's identity when authenticated,
// falling back to remote address for anonymous routes.
func (rl *rateLimiter) middleware(routeClass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := routeClass + ":" + r.RemoteAddr
			if id, ok := identityFromContext(r.Context()); ok {
				key = routeClass + ":" + id.UserID
			}
			if !rl.allow(key) {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
