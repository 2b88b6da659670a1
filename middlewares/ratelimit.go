package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter enforces a sliding-window cap per key (client IP). Used on
// the OTP send endpoint: 3 sends per IP per 15 minutes. State is
// in-process; a multi-instance deployment would move this to the store.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for the key and reports whether it was within the
// limit. A denied request is not recorded, so being over the limit does
// not extend the penalty.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	// Once per window, drop keys whose newest hit fell out of it; otherwise
	// the map keeps one entry per client IP forever.
	if now.Sub(r.lastSweep) >= r.window {
		for k, ts := range r.hits {
			if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
				delete(r.hits, k)
			}
		}
		r.lastSweep = now
	}

	recent := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.hits[key] = recent
		return false
	}

	r.hits[key] = append(recent, now)
	return true
}

// Middleware rejects over-limit requests with 429 before the handler runs,
// so no OTP is generated for them.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, try again later"})
			c.Abort()
			return
		}
		c.Next()
	}
}
