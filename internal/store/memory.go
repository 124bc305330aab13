package store

import (
	"sort"
	"sync"
)

// MemoryStore is a concurrency-safe in-memory Store.
//
// A positive quota caps the total size of keys plus values, the way browser
// storage caps an origin. Writes that would exceed it fail with
// ErrQuotaExceeded and leave the store untouched.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	size  int64
	quota int64
}

// NewMemoryStore creates an empty store. quota <= 0 means unlimited.
func NewMemoryStore(quota int64) *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]string),
		quota: quota,
	}
}

func (s *MemoryStore) Available() bool { return true }

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.size + entrySize(key, value)
	if old, ok := s.data[key]; ok {
		next -= entrySize(key, old)
	}

	if s.quota > 0 && next > s.quota {
		return ErrQuotaExceeded
	}

	s.data[key] = value
	s.size = next
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.data[key]; ok {
		delete(s.data, key)
		s.size -= entrySize(key, old)
	}
	return nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Size returns the bytes currently counted against the quota.
func (s *MemoryStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Len returns the number of keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
