package crystal

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/legendaryobs/crystal/internal/stats"
	"github.com/legendaryobs/crystal/internal/store"
)

const (
	// DefaultSearchLimit is used when Query.Limit is not positive.
	DefaultSearchLimit = 10

	// MaxSearchLimit caps Query.Limit so the scan stays bounded.
	MaxSearchLimit = 10000
)

// Query filters a search.
type Query struct {
	// Category, when set, keeps only crystals of that category.
	Category string

	// Pattern, when set, keeps only crystals whose canonical pattern JSON
	// contains it, ignoring case. Canonical JSON is compact, so an object
	// pattern {"step": 1} is matched as `"step":1`, without spaces.
	Pattern string

	// Limit caps the number of results. Default is DefaultSearchLimit;
	// larger values are clamped to MaxSearchLimit.
	Limit int
}

// Search returns the crystals matching q.
//
// At most 2×Limit keys are scanned, so a search can return fewer than Limit
// results even when more matches exist. Results come in backend iteration
// order. Reads made by a search do not count as accesses.
//
// Each range over the returned sequence runs a new scan.
func (s *Store) Search(ctx context.Context, q Query) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		if s.closed.Load() {
			yield(nil, ErrClosed)
			return
		}
		start := time.Now()

		limit := q.Limit
		if limit <= 0 {
			limit = DefaultSearchLimit
		}
		limit = min(limit, MaxSearchLimit)

		var keys []string
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			keys, err = s.backend.ScanKeys(ctx, keyPrefix, 2*limit)
			return err
		})
		if err != nil {
			yield(nil, s.storageFailure("scan", "", err))
			return
		}

		found := 0
		defer func() {
			s.finishSearch(q, found, time.Since(start))
		}()

		fold := cases.Fold()
		needle := fold.String(q.Pattern)

		for _, key := range keys {
			if found >= limit {
				return
			}

			var data []byte
			err := s.withTimeout(ctx, func(ctx context.Context) error {
				var err error
				data, err = s.backend.Get(ctx, key)
				return err
			})
			if errors.Is(err, store.ErrNotFound) {
				// Expired or deleted since the scan.
				continue
			}
			if err != nil {
				if !yield(nil, s.storageFailure("search", strings.TrimPrefix(key, keyPrefix), err)) {
					return
				}
				continue
			}

			rec, err := s.decode(data)
			if err != nil {
				s.logger.Warn("skipping undecodable crystal", zap.String("key", key), zap.Error(err))
				continue
			}
			if q.Category != "" && rec.Category != q.Category {
				continue
			}
			if needle != "" && !strings.Contains(fold.String(string(rec.Pattern)), needle) {
				continue
			}

			found++
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// SearchAll collects the results of Search into a slice.
func (s *Store) SearchAll(ctx context.Context, q Query) ([]*Record, error) {
	var out []*Record
	for rec, err := range s.Search(ctx, q) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) finishSearch(q Query, found int, took time.Duration) {
	s.mu.Lock()
	s.counters.Searches++
	searches := s.counters.Searches
	s.mu.Unlock()

	s.stats.IncCounter(stats.MetricSearches, 1)
	s.stats.ObserveHistogram(stats.MetricLatency, took.Seconds())
	s.logger.Debug("search completed",
		zap.String("category", q.Category),
		zap.String("pattern", q.Pattern),
		zap.Int("results", found),
	)
	s.observer.Searched(searches)
}
