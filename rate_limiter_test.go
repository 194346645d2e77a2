package bentengo

import (
	"testing"
	"time"
)

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})

	if rl.config.MaxRequests != 100 {
		t.Errorf("Expected default MaxRequests=100, got %d", rl.config.MaxRequests)
	}
	if rl.config.Window != time.Minute {
		t.Errorf("Expected default Window=1m, got %v", rl.config.Window)
	}
}

func TestRateLimiterBoundary(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxRequests: 3, Window: time.Minute})
	current := time.Unix(1000, 0)
	rl.now = func() time.Time { return current }

	key := "GET /jobs"
	for i := 0; i < 3; i++ {
		if !rl.Allow(key) {
			t.Fatalf("Expected admission %d to succeed", i+1)
		}
	}

	if rl.Allow(key) {
		t.Error("Expected 4th admission within the window to be denied")
	}

	wait := rl.TimeUntilReset(key)
	if wait <= 0 {
		t.Errorf("Expected TimeUntilReset > 0 at cap, got %v", wait)
	}
	if wait > time.Minute {
		t.Errorf("Expected TimeUntilReset <= window, got %v", wait)
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxRequests: 2, Window: time.Minute})
	current := time.Unix(1000, 0)
	rl.now = func() time.Time { return current }

	key := "GET /jobs"
	rl.Allow(key)
	rl.Allow(key)

	current = current.Add(time.Minute - time.Millisecond)
	if rl.Allow(key) {
		t.Error("Expected denial just before the oldest timestamp leaves the window")
	}

	current = current.Add(2 * time.Millisecond)
	if !rl.Allow(key) {
		t.Error("Expected admission once the oldest timestamp left the window")
	}
}

func TestRateLimiterDenialHasNoSideEffects(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxRequests: 1, Window: time.Minute})
	current := time.Unix(1000, 0)
	rl.now = func() time.Time { return current }

	key := "POST /jobs"
	rl.Allow(key)

	for i := 0; i < 10; i++ {
		rl.Allow(key)
	}

	if got := rl.Snapshot()[key]; got != 1 {
		t.Errorf("Expected 1 in-window timestamp after repeated denials, got %d", got)
	}
}

func TestRateLimiterPerKeyIsolation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxRequests: 1, Window: time.Minute})

	if !rl.Allow("GET /jobs") {
		t.Fatal("Expected first admission for GET /jobs")
	}
	if rl.Allow("GET /jobs") {
		t.Error("Expected GET /jobs to be at cap")
	}
	if !rl.Allow("POST /jobs") {
		t.Error("Expected POST /jobs to be unaffected by GET /jobs window")
	}
}

func TestRateLimiterResetZeroUnderCap(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxRequests: 5, Window: time.Minute})

	rl.Allow("GET /jobs")
	if wait := rl.TimeUntilReset("GET /jobs"); wait != 0 {
		t.Errorf("Expected TimeUntilReset=0 under cap, got %v", wait)
	}
	if wait := rl.TimeUntilReset("unused"); wait != 0 {
		t.Errorf("Expected TimeUntilReset=0 for unseen key, got %v", wait)
	}
}

func TestRateLimiterSnapshotPrunes(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxRequests: 5, Window: time.Minute})
	current := time.Unix(1000, 0)
	rl.now = func() time.Time { return current }

	rl.Allow("GET /jobs")
	rl.Allow("GET /jobs")

	current = current.Add(2 * time.Minute)
	counts := rl.Snapshot()
	if len(counts) != 0 {
		t.Errorf("Expected empty snapshot after window expiry, got %v", counts)
	}
}
