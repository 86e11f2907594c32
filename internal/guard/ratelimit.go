package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/provgate/gateway/internal/domain"
)

// RateLimiter caps hits per key over a sliding window. The launch endpoint
// keys it by operator key and client address. Keys whose window has emptied
// are swept at most once per window, so the map stays bounded by the number
// of clients active in the last window.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows limit hits per key within window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Check records a hit for key unless the key is already at its limit.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	live := trimHits(rl.hits[key], cutoff)
	if len(live) >= rl.limit {
		rl.hits[key] = live
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("rate limit exceeded: %d/%s", rl.limit, rl.window),
			Guard:   "rate_limiter",
		}
	}
	rl.hits[key] = append(live, now)
	return domain.GuardResult{Allowed: true}
}

// Keys reports how many keys are tracked.
func (rl *RateLimiter) Keys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.hits)
}

func (rl *RateLimiter) sweep(cutoff time.Time) {
	for key, hits := range rl.hits {
		live := trimHits(hits, cutoff)
		if len(live) == 0 {
			delete(rl.hits, key)
			continue
		}
		rl.hits[key] = live
	}
}

// trimHits drops hits at or before cutoff. Hits are stored oldest first.
func trimHits(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
