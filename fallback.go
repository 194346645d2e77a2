package bentengo

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	fallbackSnapshotKey = "bentengo/fallback"
	queueSnapshotKey    = "bentengo/queue"
)

// FallbackConfig holds fallback store configuration.
type FallbackConfig struct {
	TTL      time.Duration
	QueueCap int
}

// fallbackEntry is a last-good response payload for one endpoint key. Entries
// are replaced, never merged.
type fallbackEntry struct {
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
}

// QueuedWrite is a write request that exhausted its retries with no transport
// response, held for replay once connectivity returns.
type QueuedWrite struct {
	Endpoint    string    `json:"endpoint"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type,omitempty"`
	Payload     []byte    `json:"payload,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// FallbackStats is a point-in-time view for the health monitor.
type FallbackStats struct {
	Entries      int
	QueueDepth   int
	OldestQueued time.Time
}

// FallbackStore caches the last successful read response per endpoint key for
// a bounded TTL, and keeps a bounded FIFO of unsent writes. Both structures
// are snapshotted to the KeyValueStore best-effort so a restarted process can
// keep serving degraded reads and replaying queued writes.
type FallbackStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	cap     int
	entries map[string]fallbackEntry
	queue   []QueuedWrite
	store   KeyValueStore
	now     func() time.Time
}

// NewFallbackStore creates a fallback store persisting through kv. A nil kv
// disables persistence.
func NewFallbackStore(config FallbackConfig, kv KeyValueStore) *FallbackStore {
	if config.TTL == 0 {
		config.TTL = time.Hour
	}
	if config.QueueCap == 0 {
		config.QueueCap = 50
	}

	fs := &FallbackStore{
		ttl:     config.TTL,
		cap:     config.QueueCap,
		entries: make(map[string]fallbackEntry),
		store:   kv,
		now:     time.Now,
	}
	fs.load()
	return fs
}

// Store replaces the cached payload for the endpoint key.
func (fs *FallbackStore) Store(key string, payload []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	stored := make([]byte, len(payload))
	copy(stored, payload)
	fs.entries[key] = fallbackEntry{Payload: stored, StoredAt: fs.now()}
	fs.persistEntries()
}

// Get returns the cached payload for the endpoint key while it is within the
// TTL. Expired entries are pruned opportunistically.
func (fs *FallbackStore) Get(key string) ([]byte, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entry, ok := fs.entries[key]
	if !ok {
		return nil, false
	}
	if fs.now().Sub(entry.StoredAt) >= fs.ttl {
		delete(fs.entries, key)
		fs.persistEntries()
		return nil, false
	}
	return entry.Payload, true
}

// EnqueueWrite appends a write to the offline queue. When the queue is at
// capacity the oldest entry is dropped; the caller of the newest write is not
// informed of the eviction. This silent-drop boundary matches the documented
// data-loss limitation.
func (fs *FallbackStore) EnqueueWrite(w QueuedWrite) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if w.EnqueuedAt.IsZero() {
		w.EnqueuedAt = fs.now()
	}
	fs.queue = append(fs.queue, w)
	if len(fs.queue) > fs.cap {
		fs.queue = fs.queue[len(fs.queue)-fs.cap:]
	}
	fs.persistQueue()
}

// QueueLen returns the current offline queue depth.
func (fs *FallbackStore) QueueLen() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.queue)
}

// DrainQueue replays queued writes sequentially, one at a time, to avoid
// overwhelming a recovering backend. Entries whose replay succeeds are
// removed; entries whose replay fails are re-enqueued once at the back. No
// entry is attempted twice within one drain pass. Returns the number of
// entries replayed successfully.
func (fs *FallbackStore) DrainQueue(ctx context.Context, replay func(context.Context, QueuedWrite) error) int {
	fs.mu.Lock()
	snapshot := make([]QueuedWrite, len(fs.queue))
	copy(snapshot, fs.queue)
	fs.queue = fs.queue[:0]
	fs.mu.Unlock()

	settled := 0
	var failed []QueuedWrite
	for i, w := range snapshot {
		if ctx.Err() != nil {
			failed = append(failed, snapshot[i:]...)
			break
		}
		if err := replay(ctx, w); err != nil {
			failed = append(failed, w)
			continue
		}
		settled++
	}

	fs.mu.Lock()
	// Writes enqueued during the drain keep their FIFO position ahead of the
	// re-enqueued failures.
	fs.queue = append(fs.queue, failed...)
	if len(fs.queue) > fs.cap {
		fs.queue = fs.queue[len(fs.queue)-fs.cap:]
	}
	fs.persistQueue()
	fs.mu.Unlock()

	return settled
}

// Stats returns entry and queue counts for health snapshots.
func (fs *FallbackStore) Stats() FallbackStats {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	stats := FallbackStats{Entries: len(fs.entries), QueueDepth: len(fs.queue)}
	if len(fs.queue) > 0 {
		stats.OldestQueued = fs.queue[0].EnqueuedAt
	}
	return stats
}

// persistEntries snapshots the cache. Caller holds the lock.
func (fs *FallbackStore) persistEntries() {
	if fs.store == nil {
		return
	}
	data, err := json.Marshal(fs.entries)
	if err != nil {
		return
	}
	fs.store.Write(fallbackSnapshotKey, data)
}

// persistQueue snapshots the offline queue. Caller holds the lock.
func (fs *FallbackStore) persistQueue() {
	if fs.store == nil {
		return
	}
	if len(fs.queue) == 0 {
		fs.store.Remove(queueSnapshotKey)
		return
	}
	data, err := json.Marshal(fs.queue)
	if err != nil {
		return
	}
	fs.store.Write(queueSnapshotKey, data)
}

// load restores cache and queue snapshots. Corrupt blobs are discarded.
func (fs *FallbackStore) load() {
	if fs.store == nil {
		return
	}
	if data, ok := fs.store.Read(fallbackSnapshotKey); ok {
		var entries map[string]fallbackEntry
		if err := json.Unmarshal(data, &entries); err == nil {
			fs.entries = entries
		} else {
			fs.store.Remove(fallbackSnapshotKey)
		}
	}
	if data, ok := fs.store.Read(queueSnapshotKey); ok {
		var queue []QueuedWrite
		if err := json.Unmarshal(data, &queue); err == nil {
			if len(queue) > fs.cap {
				queue = queue[len(queue)-fs.cap:]
			}
			fs.queue = queue
		} else {
			fs.store.Remove(queueSnapshotKey)
		}
	}
}
