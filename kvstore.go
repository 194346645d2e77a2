package bentengo

import (
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// KeyValueStore is the narrow persistence capability the fallback store uses
// for its offline snapshot. Implementations are synchronous and best-effort:
// write and remove failures are swallowed, never surfaced to the caller.
type KeyValueStore interface {
	Read(key string) ([]byte, bool)
	Write(key string, value []byte)
	Remove(key string)
}

// MemoryStore is an in-memory KeyValueStore, the default and the test double.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Read(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

func (s *MemoryStore) Write(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
}

func (s *MemoryStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// FileStore persists each key as a file under a directory. All errors are
// swallowed per the best-effort contract; a missing or unreadable file is a
// miss.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	_ = os.MkdirAll(dir, 0o755)
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key string) string {
	// Keys may contain separators; escape reversibly so the file stays
	// inside dir and distinct keys never share a file.
	return filepath.Join(s.dir, url.QueryEscape(key)+".json")
}

func (s *FileStore) Read(key string) ([]byte, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *FileStore) Write(key string, value []byte) {
	_ = os.WriteFile(s.path(key), value, 0o644)
}

func (s *FileStore) Remove(key string) {
	_ = os.Remove(s.path(key))
}
