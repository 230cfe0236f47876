package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// RateLimiter is an in-memory sliding-window limiter keyed by caller. Once
// per window it sweeps out buckets whose every entry has aged past the
// cutoff, so idle callers do not accumulate in the map.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing at most limit requests per key
// within the trailing window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		lastSweep: time.Now(),
	}
}

// Allow reports whether a request from key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.allowAt(key, time.Now())
}

func (rl *RateLimiter) allowAt(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	var live []time.Time
	for _, at := range rl.buckets[key] {
		if at.After(cutoff) {
			live = append(live, at)
		}
	}

	if len(live) >= rl.limit {
		rl.buckets[key] = live
		return false
	}

	rl.buckets[key] = append(live, now)
	return true
}

// sweep drops every bucket with no entry after cutoff. Caller holds rl.mu.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for key, bucket := range rl.buckets {
		stale := true
		for _, at := range bucket {
			if at.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(rl.buckets, key)
		}
	}
}

// RateLimitMiddleware creates a per-client-IP rate limiting middleware.
func RateLimitMiddleware(limit int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(limit, window)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			log.Warnf("Rate limit exceeded for IP: %s", clientIP)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
