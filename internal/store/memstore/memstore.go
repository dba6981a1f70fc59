// Package memstore provides the in-process fallback store.
//
// Values live in a map for the lifetime of the process. There is no
// expiration, and each process holds its own copy, so several instances
// running on memstore do not share data.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/legendaryobs/crystal/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store is an in-memory store.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	size   int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(data), nil
}

// Put stores a copy of value. ttl is ignored.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value)
	return nil
}

// Update applies fn under the store lock.
func (s *Store) Update(ctx context.Context, key string, ttl time.Duration, fn store.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	if data, ok := s.values[key]; ok {
		current = clone(data)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	s.set(key, next)
	return nil
}

// ScanKeys returns keys with the given prefix in map iteration order.
func (s *Store) ScanKeys(ctx context.Context, prefix string, max int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.values {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		keys = append(keys, k)
		if max > 0 && len(keys) >= max {
			break
		}
	}
	return keys, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.values[key]; ok {
		s.size -= int64(len(old))
		delete(s.values, key)
	}
	return nil
}

// Size returns the total size of all stored values.
func (s *Store) Size(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Kind returns store.KindFallback.
func (s *Store) Kind() store.Kind {
	return store.KindFallback
}

// Name returns "memory".
func (s *Store) Name() string {
	return "memory"
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}

// set must be called with mu held.
func (s *Store) set(key string, value []byte) {
	if old, ok := s.values[key]; ok {
		s.size -= int64(len(old))
	}
	s.values[key] = clone(value)
	s.size += int64(len(value))
}

func clone(data []byte) []byte {
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied
}
