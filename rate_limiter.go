package bentengo

import (
	"sync"
	"time"
)

// RateLimiterConfig holds sliding-window rate limiter configuration.
type RateLimiterConfig struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimiter admits requests per endpoint key using a sliding window of
// request timestamps. Admission is pure and non-blocking: a denied request
// leaves no trace in the window.
type RateLimiter struct {
	mu      sync.Mutex
	config  RateLimiterConfig
	windows map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a new sliding-window rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.MaxRequests == 0 {
		config.MaxRequests = 100
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}

	return &RateLimiter{
		config:  config,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether a request for the endpoint key is admitted. On
// admission the current timestamp is appended to the window; denial has no
// side effects. Entries older than the window are pruned lazily on each check.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	window := rl.prune(key, now)

	if len(window) >= rl.config.MaxRequests {
		rl.windows[key] = window
		return false
	}

	rl.windows[key] = append(window, now)
	return true
}

// TimeUntilReset returns how long until the oldest in-window timestamp falls
// out of the window for the endpoint key. Zero when the key is under its cap.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	window := rl.prune(key, now)
	rl.windows[key] = window

	if len(window) < rl.config.MaxRequests {
		return 0
	}

	return window[0].Add(rl.config.Window).Sub(now)
}

// Snapshot returns the current in-window request count per endpoint key.
func (rl *RateLimiter) Snapshot() map[string]int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	counts := make(map[string]int, len(rl.windows))
	for key := range rl.windows {
		window := rl.prune(key, now)
		rl.windows[key] = window
		if len(window) > 0 {
			counts[key] = len(window)
		} else {
			delete(rl.windows, key)
		}
	}
	return counts
}

// prune drops timestamps older than the window. Caller holds the lock.
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	window := rl.windows[key]
	cutoff := now.Add(-rl.config.Window)

	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		window = append(window[:0], window[i:]...)
	}
	return window
}
