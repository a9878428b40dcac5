package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hgu-oj/backend/internal/session"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := &RateLimiter{windows: make(map[int]*rateLimitWindow), maxPerMinute: 3}
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(7, now), "request %d should pass", i+1)
	}
	assert.False(t, rl.allow(7, now))

	// A different user has their own window.
	assert.True(t, rl.allow(8, now))

	// The window resets after a minute.
	assert.True(t, rl.allow(7, now.Add(61*time.Second)))
}

func TestRateLimiter_Limit(t *testing.T) {
	rl := &RateLimiter{windows: make(map[int]*rateLimitWindow), maxPerMinute: 1}
	handler := rl.Limit(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/execution/run", nil)
		req = req.WithContext(WithPrincipal(req.Context(), session.Principal{UserID: 7}))
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)

	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_Stats(t *testing.T) {
	rl := &RateLimiter{windows: make(map[int]*rateLimitWindow), maxPerMinute: 30}
	rl.allow(7, time.Now())

	stats := rl.Stats()
	assert.Equal(t, 1, stats["active_windows"])
	assert.Equal(t, 30, stats["max_calls_per_min"])
}
