// Package tracker records which crystals have been read and how often.
//
// The set is bounded by an LRU so a long-running process with many distinct
// ids keeps a fixed memory footprint. The least recently read ids are
// forgotten first.
package tracker

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of distinct ids remembered by default.
const DefaultCapacity = 10000

// Tracker counts reads per id.
// A Tracker is safe for concurrent use by multiple goroutines.
type Tracker struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, int64]
	evicted atomic.Int64
}

// New creates a tracker remembering up to capacity ids.
func New(capacity int) (*Tracker, error) {
	t := &Tracker{}
	c, err := lru.NewWithEvict[string, int64](capacity, func(string, int64) {
		t.evicted.Add(1)
	})
	if err != nil {
		return nil, err
	}
	t.cache = c
	return t, nil
}

// Touch records one read of id and returns its read count.
func (t *Tracker) Touch(id string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, _ := t.cache.Get(id)
	n++
	t.cache.Add(id, n)
	return n
}

// Count returns the recorded reads of id without refreshing its recency.
func (t *Tracker) Count(id string) int64 {
	n, _ := t.cache.Peek(id)
	return n
}

// Len returns the number of distinct ids read at least once.
func (t *Tracker) Len() int {
	return t.cache.Len()
}

// Evicted returns how many ids were dropped to respect the capacity.
func (t *Tracker) Evicted() int64 {
	return t.evicted.Load()
}
