package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-IP rate limiting for the file-transfer
// endpoints. Enqueue and status endpoints are not limited; they are
// O(1) broker operations.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiterEntry
	rps      float64
	burst    int
	entryTTL time.Duration
	lastGC   time.Time
}

type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a per-IP limiter.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rps:      rps,
		burst:    burst,
		entryTTL: 10 * time.Minute,
		lastGC:   time.Now(),
	}
}

// Allow reports whether a request from ip is within its budget.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	// Amortized cleanup of idle entries; no background goroutine.
	if now.Sub(rl.lastGC) > rl.entryTTL {
		for key, entry := range rl.limiters {
			if now.Sub(entry.lastAccess) > rl.entryTTL {
				delete(rl.limiters, key)
			}
		}
		rl.lastGC = now
	}

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastAccess = now
	return entry.limiter.Allow()
}
