// Package crystal provides a content-addressed pattern store.
//
// A crystal is a small structured record identified by a fingerprint of its
// category and pattern. Writing the same content twice refreshes the existing
// record instead of creating a new one. Reads keep access statistics on each
// record and cache hit/miss counters on the store, which feed a system-wide
// efficiency score.
//
// Records live in a durable backend (Redis or Badger) when one is reachable at
// start-up, and in an in-process map otherwise. The choice is made once in New
// and never revisited.
//
// Example usage:
//
//	s, err := crystal.New(ctx,
//	    crystal.WithRedis("localhost:6379", "", 0),
//	    crystal.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	id, err := s.Put(ctx, crystal.CategoryWorkflow, map[string]any{"step": 1}, nil)
//	rec, err := s.Get(ctx, id)
package crystal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/legendaryobs/crystal/internal/codec"
	"github.com/legendaryobs/crystal/internal/fingerprint"
	"github.com/legendaryobs/crystal/internal/stats"
	"github.com/legendaryobs/crystal/internal/store"
	"github.com/legendaryobs/crystal/internal/store/memstore"
	"github.com/legendaryobs/crystal/internal/tracker"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrNotFound indicates no record exists for the id. It is a normal
	// outcome, counted as a cache miss.
	ErrNotFound = errors.New("crystal: not found")

	// ErrStorage indicates a backend I/O failure on a single operation.
	// Counters are left unchanged and the operation is not retried.
	ErrStorage = errors.New("crystal: storage error")

	// ErrMalformedInput indicates a pattern or metadata value that cannot be
	// serialized. Nothing is written.
	ErrMalformedInput = errors.New("crystal: malformed input")

	// ErrBackendUnavailable indicates the durable backend could not be
	// reached at start-up. New only returns it with WithRequireDurable;
	// otherwise the store degrades to in-process storage.
	ErrBackendUnavailable = errors.New("crystal: durable backend unavailable")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("crystal: store closed")
)

// keyPrefix namespaces record keys in the backend.
const keyPrefix = "crystal:"

// Observer is notified after successful writes and searches.
// Implementations must not block; they run on the caller's goroutine.
type Observer interface {
	// Stored is called with the cumulative write count after each Put.
	Stored(writes int64)
	// Searched is called with the cumulative search count after each Search.
	Searched(searches int64)
}

// Counters are the cumulative operation counts of a store.
type Counters struct {
	Hits     int64
	Misses   int64
	Writes   int64
	Searches int64
	Deletes  int64
}

// Status describes the backend serving the store.
type Status struct {
	// Backend is the backend name: "redis", "badger" or "memory".
	Backend string

	// Ephemeral is true when records live only in this process.
	Ephemeral bool

	// Degraded is true when a durable backend was configured but could not
	// be reached, so the store fell back to in-process storage.
	Degraded bool
}

// Store is a content-addressed crystal store.
// A Store is safe for concurrent use by multiple goroutines.
type Store struct {
	backend   store.Store
	codec     codec.Codec
	tracker   *tracker.Tracker
	stats     stats.Collector
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
	ttl       time.Duration
	opTimeout time.Duration
	status    Status

	mu          sync.Mutex
	counters    Counters
	history     []Sample
	historySize int

	closed atomic.Bool
}

// New creates a store with the given options.
// Without a backend or durable dialer, records are kept in memory.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if cfg.historySize <= 0 {
		cfg.historySize = DefaultHistorySize
	}
	if cfg.opTimeout <= 0 {
		cfg.opTimeout = DefaultOperationTimeout
	}

	tr, err := tracker.New(cfg.trackerSize)
	if err != nil {
		return nil, fmt.Errorf("creating access tracker: %w", err)
	}

	s := &Store{
		codec:       cfg.codec,
		tracker:     tr,
		stats:       cfg.stats,
		logger:      cfg.logger,
		observer:    cfg.observer,
		now:         cfg.now,
		ttl:         cfg.ttl,
		opTimeout:   cfg.opTimeout,
		historySize: cfg.historySize,
	}

	if err := s.selectBackend(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Debug("store initialized",
		zap.String("backend", s.status.Backend),
		zap.Bool("ephemeral", s.status.Ephemeral),
		zap.String("codec", s.codec.Name()),
		zap.Duration("ttl", s.ttl),
	)

	return s, nil
}

// selectBackend picks the backend once for the lifetime of the store.
func (s *Store) selectBackend(ctx context.Context, cfg options) error {
	switch {
	case cfg.backend != nil:
		s.backend = cfg.backend

	case cfg.dialer != nil:
		b, err := s.dial(ctx, cfg.dialer)
		if err != nil {
			if cfg.requireDurable {
				return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
			}
			s.logger.Warn("durable backend unavailable, using in-memory storage",
				zap.Error(err),
			)
			s.backend = memstore.New()
			s.status.Degraded = true
			break
		}
		s.backend = b
		s.logger.Info("durable backend connected", zap.String("backend", b.Name()))

	default:
		s.backend = memstore.New()
	}

	s.status.Backend = s.backend.Name()
	s.status.Ephemeral = s.backend.Kind() == store.KindFallback
	return nil
}

func (s *Store) dial(ctx context.Context, dialer Dialer) (store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	b, err := dialer(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.Ping(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Put stores a crystal and returns its id.
//
// The id depends only on category and pattern, so storing identical content
// again refreshes the existing record: content, metadata and expiration are
// replaced, while creation time and access history are kept.
func (s *Store) Put(ctx context.Context, category string, pattern, metadata any) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	start := time.Now()

	if category == "" {
		category = CategoryGeneral
	}

	id, canonical, err := fingerprint.Of(category, pattern)
	if err != nil {
		return "", fmt.Errorf("%w: pattern: %w", ErrMalformedInput, err)
	}
	meta, err := fingerprint.Canonical(metadata)
	if err != nil {
		return "", fmt.Errorf("%w: metadata: %w", ErrMalformedInput, err)
	}

	now := s.now()
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.backend.Update(ctx, recordKey(id), s.ttl, func(current []byte) ([]byte, error) {
			rec := &Record{
				ID:           id,
				Category:     category,
				Pattern:      json.RawMessage(canonical),
				Metadata:     json.RawMessage(meta),
				CreatedAt:    now,
				LastAccessed: now,
			}
			if current != nil {
				if prev, err := s.decode(current); err == nil {
					rec.CreatedAt = prev.CreatedAt
					rec.AccessCount = prev.AccessCount
					rec.EfficiencyScore = prev.EfficiencyScore
				}
			}
			return s.encode(rec)
		})
	})
	if err != nil {
		return "", s.storageFailure("put", id, err)
	}

	s.mu.Lock()
	s.counters.Writes++
	writes := s.counters.Writes
	s.mu.Unlock()

	s.stats.IncCounter(stats.MetricWrites, 1)
	s.stats.ObserveHistogram(stats.MetricLatency, time.Since(start).Seconds())
	s.logger.Debug("crystal stored", zap.String("id", id), zap.String("category", category))
	s.observer.Stored(writes)

	return id, nil
}

// Get returns the crystal with the given id and records the access.
// Returns ErrNotFound if no such crystal exists.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()

	var rec *Record
	now := s.now()
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.backend.Update(ctx, recordKey(id), store.KeepTTL, func(current []byte) ([]byte, error) {
			if current == nil {
				return nil, store.ErrNotFound
			}
			r, err := s.decode(current)
			if err != nil {
				return nil, err
			}
			r.touch(now)
			rec = r
			return s.encode(r)
		})
	})
	if errors.Is(err, store.ErrNotFound) {
		s.mu.Lock()
		s.counters.Misses++
		s.mu.Unlock()
		s.stats.IncCounter(stats.MetricCacheMisses, 1)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storageFailure("get", id, err)
	}

	s.mu.Lock()
	s.counters.Hits++
	s.mu.Unlock()
	s.tracker.Touch(id)

	s.stats.IncCounter(stats.MetricCacheHits, 1)
	s.stats.IncCounter(stats.MetricRetrievals, 1)
	s.stats.ObserveHistogram(stats.MetricLatency, time.Since(start).Seconds())
	s.logger.Debug("crystal retrieved", zap.String("id", id), zap.Int64("accessCount", rec.AccessCount))

	return rec, nil
}

// Delete removes the crystal with the given id. Deleting an absent crystal
// is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.backend.Delete(ctx, recordKey(id))
	})
	if err != nil {
		return s.storageFailure("delete", id, err)
	}

	s.mu.Lock()
	s.counters.Deletes++
	s.mu.Unlock()
	s.stats.IncCounter(stats.MetricDeletes, 1)
	return nil
}

// Footprint returns the approximate storage used by the backend, in bytes.
// Durable backends report their own usage; the in-process backend reports the
// encoded size of all records.
func (s *Store) Footprint(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	var size int64
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		size, err = s.backend.Size(ctx)
		return err
	})
	if err != nil {
		return 0, s.storageFailure("size", "", err)
	}
	s.stats.SetGauge(stats.MetricStorageBytes, float64(size))
	return size, nil
}

// Counters returns a snapshot of the operation counters.
func (s *Store) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// ActiveRecords returns the number of distinct crystals read at least once.
func (s *Store) ActiveRecords() int {
	return s.tracker.Len()
}

// Status describes the backend serving this store.
func (s *Store) Status() Status {
	return s.status
}

// Close releases all resources associated with the store.
// After Close, the store should not be used.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("closing backend: %w", err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Store) storageFailure(op, id string, err error) error {
	s.stats.IncCounter(stats.MetricErrors, 1)
	s.logger.Error("crystal storage error",
		zap.String("op", op),
		zap.String("id", id),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s %s: %w", ErrStorage, op, id, err)
}

func (s *Store) encode(rec *Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return s.codec.Encode(data)
}

func (s *Store) decode(data []byte) (*Record, error) {
	raw, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decompressing record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

func recordKey(id string) string {
	return keyPrefix + id
}

type noopObserver struct{}

func (noopObserver) Stored(int64)   {}
func (noopObserver) Searched(int64) {}

// Records returns every stored crystal, without touching access statistics.
// It is meant for snapshots; use Search for bounded queries.
func (s *Store) Records(ctx context.Context) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		if s.closed.Load() {
			yield(nil, ErrClosed)
			return
		}

		var keys []string
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			keys, err = s.backend.ScanKeys(ctx, keyPrefix, 0)
			return err
		})
		if err != nil {
			yield(nil, s.storageFailure("scan", "", err))
			return
		}

		for _, key := range keys {
			var data []byte
			err := s.withTimeout(ctx, func(ctx context.Context) error {
				var err error
				data, err = s.backend.Get(ctx, key)
				return err
			})
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				yield(nil, s.storageFailure("export", key, err))
				return
			}
			rec, err := s.decode(data)
			if err != nil {
				s.logger.Warn("skipping undecodable crystal", zap.String("key", key), zap.Error(err))
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Restore writes rec as is, keeping its timestamps and access history.
// The id must match the fingerprint of the category and pattern.
// Restoring does not count as a write.
func (s *Store) Restore(ctx context.Context, rec *Record) error {
	if s.closed.Load() {
		return ErrClosed
	}

	canonical, err := fingerprint.Canonical(rec.Pattern)
	if err != nil {
		return fmt.Errorf("%w: pattern: %w", ErrMalformedInput, err)
	}
	if id := fingerprint.ID(rec.Category, canonical); id != rec.ID {
		return fmt.Errorf("%w: id %q does not match content (want %q)", ErrMalformedInput, rec.ID, id)
	}

	data, err := s.encode(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.backend.Put(ctx, recordKey(rec.ID), data, s.ttl)
	})
	if err != nil {
		return s.storageFailure("restore", rec.ID, err)
	}
	return nil
}
