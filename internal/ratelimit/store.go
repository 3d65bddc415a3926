package ratelimit

import (
	"context"
	"sync"
)

// UpdateFunc computes the next bucket from the current one. found is false
// when no bucket exists for the key yet. It may be called more than once
// per Update by stores that retry on contention and must not have side
// effects beyond its return value and variables it fully overwrites.
type UpdateFunc func(cur Bucket, found bool) Bucket

// Store persists buckets. Update runs read-modify-write atomically per key.
type Store interface {
	Update(ctx context.Context, key string, fn UpdateFunc) (Bucket, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps buckets in process memory for the process lifetime.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]Bucket
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]Bucket)}
}

func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.buckets[key]
	next := fn(cur, ok)
	s.buckets[key] = next
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.buckets, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.buckets = make(map[string]Bucket)
	s.mu.Unlock()
	return nil
}

// Len reports how many buckets exist.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
