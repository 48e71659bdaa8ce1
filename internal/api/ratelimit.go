package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// RateLimiter implements per-key fixed-window rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count    int
	windowAt time.Time
}

// NewRateLimiter creates a RateLimiter and starts background cleanup.
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			rl.cleanup()
		}
	}()
	return rl
}

// Allow checks if the key is within the limit for a 1-minute window.
func (rl *RateLimiter) Allow(key string, limit int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowAt) >= time.Minute {
		rl.buckets[key] = &bucket{count: 1, windowAt: now}
		return true
	}
	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-2 * time.Minute)
	for k, b := range rl.buckets {
		if b.windowAt.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// withRateLimit wraps an authenticated handler with per-key rate limiting.
func (s *Server) withRateLimit(handler http.HandlerFunc, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := getAuthKey(r.Context())
		if key == nil {
			handler(w, r)
			return
		}
		if !s.rateLimiter.Allow(fmt.Sprintf("key:%s:%d", key.KeyID, limit), limit) {
			logFor(r.Context()).Warn("rate limit exceeded", "key", key.KeyID, "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
			return
		}
		handler(w, r)
	}
}
