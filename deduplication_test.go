package bentengo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDeduplicationOwnerAndWaiter(t *testing.T) {
	dt := NewDeduplicationTracker()

	first, owner := dt.GetOrCreateEntry("GET http://api/jobs")
	if !owner {
		t.Fatal("Expected first caller to own the entry")
	}

	second, owner := dt.GetOrCreateEntry("GET http://api/jobs")
	if owner {
		t.Fatal("Expected second caller to wait, not own")
	}
	if first != second {
		t.Fatal("Expected both callers to share one entry")
	}
}

func TestDeduplicationCompleteReleasesWaiters(t *testing.T) {
	dt := NewDeduplicationTracker()
	key := "GET http://api/jobs"

	dt.GetOrCreateEntry(key)
	entry, owner := dt.GetOrCreateEntry(key)
	if owner {
		t.Fatal("Expected waiter entry")
	}

	want := &Response{StatusCode: 200, Body: []byte("shared")}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := entry.Wait(context.Background())
		if err != nil {
			t.Errorf("Wait returned error: %v", err)
			return
		}
		if resp != want {
			t.Error("Expected waiter to receive the owner's response")
		}
	}()

	dt.Complete(key, want, nil)
	wg.Wait()
}

func TestDeduplicationPropagatesError(t *testing.T) {
	dt := NewDeduplicationTracker()
	key := "GET http://api/jobs"

	entry, _ := dt.GetOrCreateEntry(key)
	cause := errors.New("backend down")
	dt.Complete(key, nil, cause)

	_, err := entry.Wait(context.Background())
	if !errors.Is(err, cause) {
		t.Errorf("Expected owner's error propagated to waiters, got %v", err)
	}
}

func TestDeduplicationWaitContextCancel(t *testing.T) {
	dt := NewDeduplicationTracker()

	entry, _ := dt.GetOrCreateEntry("GET http://api/slow")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := entry.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestDeduplicationEntryExpires(t *testing.T) {
	dt := NewDeduplicationTracker()
	key := "GET http://api/jobs"

	dt.GetOrCreateEntry(key)
	dt.Complete(key, &Response{StatusCode: 200}, nil)

	// Entries linger briefly after completion, then new callers start fresh.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, owner := dt.GetOrCreateEntry(key); owner {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("Expected a new caller to become owner after the entry expired")
}
