package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uasprep/mockexam-backend/internal/response"
)

// RateLimiter throttles requests per client IP with a token bucket. Buckets
// refill continuously, so a client spacing requests out evenly is never
// rejected at an interval boundary.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	capacity   float64
	refillRate float64 // tokens per second
}

type bucket struct {
	tokens  float64
	updated time.Time
}

// NewRateLimiter allows up to limit requests per client over the given
// window, with bursts up to limit.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:    make(map[string]*bucket),
		capacity:   float64(limit),
		refillRate: float64(limit) / window.Seconds(),
	}
	go rl.evictLoop()
	return rl
}

// Middleware rejects requests from clients that have exhausted their bucket.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP(), time.Now()) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{tokens: rl.capacity - 1, updated: now}
		return true
	}

	b.tokens += now.Sub(b.updated).Seconds() * rl.refillRate
	if b.tokens > rl.capacity {
		b.tokens = rl.capacity
	}
	b.updated = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evictLoop drops buckets that have been idle long enough to refill
// completely, so the map does not grow with every IP ever seen.
func (rl *RateLimiter) evictLoop() {
	for range time.Tick(time.Minute) {
		cutoff := time.Now().Add(-5 * time.Minute)
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if b.updated.Before(cutoff) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}
