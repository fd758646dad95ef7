package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter is an in-memory sliding-window limiter keyed by caller IP.
// Login and approval endpoints sit behind it so a scripted credential or
// token sweep is throttled before it reaches the risk engine.
type RateLimiter struct {
	mu      sync.Mutex
	seen    map[string][]time.Time
	window  time.Duration
	maxReqs int
}

// NewRateLimiter creates a limiter allowing maxReqs per window per key and
// starts its background cleanup.
func NewRateLimiter(window time.Duration, maxReqs int) *RateLimiter {
	rl := &RateLimiter{
		seen:    make(map[string][]time.Time),
		window:  window,
		maxReqs: maxReqs,
	}
	go rl.cleanup()
	return rl
}

// Allow records a request for the key and reports whether it is within the
// window budget.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.seen[key][:0]
	for _, t := range rl.seen[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rl.maxReqs {
		rl.seen[key] = kept
		return false
	}
	rl.seen[key] = append(kept, now)
	return true
}

// cleanup drops idle keys so the map does not grow without bound.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.window)
		for key, times := range rl.seen {
			idle := true
			for _, t := range times {
				if t.After(cutoff) {
					idle = false
					break
				}
			}
			if idle {
				delete(rl.seen, key)
			}
		}
		rl.mu.Unlock()
	}
}

// ClientIP extracts the caller IP, preferring X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
