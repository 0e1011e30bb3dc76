package storage

import (
	"context"
	"sort"
	"sync"
)

// Object is one archived object
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryArchiveStore keeps archived objects in process memory.
// It backs development setups without object storage and tests.
type MemoryArchiveStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryArchiveStore creates an empty MemoryArchiveStore
func NewMemoryArchiveStore() *MemoryArchiveStore {
	return &MemoryArchiveStore{objects: make(map[string]Object)}
}

// Put stores a copy of data under key
func (s *MemoryArchiveStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

// Exists reports whether key was stored
func (s *MemoryArchiveStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Get returns the object stored under key
func (s *MemoryArchiveStore) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys returns the stored keys in lexical order
func (s *MemoryArchiveStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
