// Package store defines the key-value backend interface used to persist crystals.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// KeepTTL tells Update to leave the existing expiration of a key untouched.
const KeepTTL time.Duration = -1

// Kind identifies which of the two backend families a Store belongs to.
type Kind int

const (
	// KindFallback is a process-local store. Data is lost on restart.
	KindFallback Kind = iota
	// KindDurable is a store that survives the process and expires entries.
	KindDurable
)

// String returns "durable" or "fallback".
func (k Kind) String() string {
	if k == KindDurable {
		return "durable"
	}
	return "fallback"
}

// UpdateFunc computes the next value of a key from its current value.
// current is nil when the key is absent. Returning an error aborts the
// update and the error is returned unchanged from Update.
type UpdateFunc func(current []byte) (next []byte, err error)

// Store defines the interface for storage backends.
// Keys are opaque to the backend; namespacing is the caller's concern.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. A ttl of zero means no expiration.
	// Backends without expiration ignore ttl.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Update atomically replaces the value under key with the result of fn.
	// ttl follows Put semantics, or KeepTTL to preserve the current expiration.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	// ScanKeys returns up to max keys starting with prefix, in backend order.
	// A max of zero or less returns every matching key.
	ScanKeys(ctx context.Context, prefix string, max int) ([]string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Size returns the approximate storage footprint in bytes.
	Size(ctx context.Context) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Kind reports whether the backend is durable or the in-process fallback.
	Kind() Kind

	// Name returns a short backend identifier such as "redis" or "memory".
	Name() string

	// Close releases any resources held by the store.
	Close() error
}
