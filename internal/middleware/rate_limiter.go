package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter caps per-user execution dispatches so one editor session
// cannot monopolize the judge fleet. Uses a fixed one-minute window per
// user; expired windows are garbage-collected periodically.
type RateLimiter struct {
	mu           sync.Mutex
	windows      map[int]*rateLimitWindow
	maxPerMinute int
}

type rateLimitWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing maxPerMinute requests per user
// per minute.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 30
	}
	rl := &RateLimiter{
		windows:      make(map[int]*rateLimitWindow),
		maxPerMinute: maxPerMinute,
	}
	go rl.cleanup()
	return rl
}

// allow reports whether another request from userID fits in the current
// window.
func (rl *RateLimiter) allow(userID int, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, ok := rl.windows[userID]
	if !ok || now.Sub(window.windowStart) > time.Minute {
		rl.windows[userID] = &rateLimitWindow{count: 1, windowStart: now}
		return true
	}
	window.count++
	return window.count <= rl.maxPerMinute
}

// Limit wraps a handler with per-user rate limiting. Must run inside
// Require so the principal is in context.
func (rl *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := GetPrincipal(r.Context())
		if !ok {
			next(w, r)
			return
		}
		if !rl.allow(principal.UserID, time.Now()) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"detail":"rate limit exceeded"}`))
			return
		}
		next(w, r)
	}
}

// cleanup periodically drops stale windows so the map does not grow with
// the number of users ever seen.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for userID, window := range rl.windows {
			if now.Sub(window.windowStart) > 2*time.Minute {
				delete(rl.windows, userID)
			}
		}
		rl.mu.Unlock()
	}
}

// Stats exposes limiter state for diagnostics.
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return map[string]interface{}{
		"active_windows":    len(rl.windows),
		"max_calls_per_min": rl.maxPerMinute,
	}
}
