package crystal

import (
	"context"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/legendaryobs/crystal/internal/store/memstore"
)

func seed(t *testing.T, s *Store, category string, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range n {
		id, err := s.Put(context.Background(), category, map[string]any{"task": fmt.Sprintf("Task-%d", i)}, nil)
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		ids[i] = id
	}
	return ids
}

func TestStore_Search_Limit(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, CategoryWorkflow, 30)

	recs, err := s.SearchAll(context.Background(), Query{Limit: 5})
	if err != nil {
		t.Fatalf("SearchAll() error = %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("SearchAll(limit=5) returned %d, want 5", len(recs))
	}

	recs, _ = s.SearchAll(context.Background(), Query{})
	if len(recs) != DefaultSearchLimit {
		t.Errorf("SearchAll(limit=0) returned %d, want %d", len(recs), DefaultSearchLimit)
	}
}

func TestStore_Search_Category(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, CategoryWorkflow, 3)
	seed(t, s, CategoryDebug, 3)

	recs, err := s.SearchAll(context.Background(), Query{Category: CategoryDebug, Limit: 10})
	if err != nil {
		t.Fatalf("SearchAll() error = %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("SearchAll(debug) returned %d, want 3", len(recs))
	}
	for _, r := range recs {
		if r.Category != CategoryDebug {
			t.Errorf("SearchAll(debug) returned category %q", r.Category)
		}
	}
}

func TestStore_Search_Pattern(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, CategoryCreative, map[string]any{"mood": "Flow State"}, nil)
	s.Put(ctx, CategoryCreative, map[string]any{"mood": "blocked"}, nil)

	recs, err := s.SearchAll(ctx, Query{Pattern: "FLOW", Limit: 10})
	if err != nil {
		t.Fatalf("SearchAll() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("SearchAll(FLOW) returned %d, want 1", len(recs))
	}
	if string(recs[0].Pattern) != `{"mood":"Flow State"}` {
		t.Errorf("SearchAll(FLOW) = %s", recs[0].Pattern)
	}

	// Folding handles more than ASCII.
	s.Put(ctx, CategoryCreative, map[string]any{"word": "STRASSE"}, nil)
	recs, _ = s.SearchAll(ctx, Query{Pattern: "straße", Limit: 10})
	if len(recs) != 1 {
		t.Errorf("SearchAll(straße) returned %d, want 1", len(recs))
	}
}

func TestStore_Search_DoesNotCountAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.Put(ctx, CategoryDebug, "quiet", nil)
	for range 3 {
		s.SearchAll(ctx, Query{})
	}

	c := s.Counters()
	if c.Hits != 0 || c.Misses != 0 {
		t.Errorf("Counters() = %+v, want no hits or misses from search", c)
	}
	if c.Searches != 3 {
		t.Errorf("Searches = %d, want 3", c.Searches)
	}
	if s.ActiveRecords() != 0 {
		t.Errorf("ActiveRecords() = %d, want 0", s.ActiveRecords())
	}

	rec, _ := s.Get(ctx, id)
	if rec.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", rec.AccessCount)
	}
}

func TestStore_Search_EarlyBreak(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, CategoryWorkflow, 10)

	n := 0
	for _, err := range s.Search(context.Background(), Query{Limit: 10}) {
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d results, want 2", n)
	}
	if c := s.Counters(); c.Searches != 1 {
		t.Errorf("Searches = %d, want 1", c.Searches)
	}
}

func TestStore_Search_Empty(t *testing.T) {
	s := newTestStore(t)

	recs, err := s.SearchAll(context.Background(), Query{Category: CategoryDebug})
	if err != nil {
		t.Fatalf("SearchAll() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("SearchAll() on empty store returned %d", len(recs))
	}
}

// scanRecorder records the max passed to ScanKeys. Keys come back sorted,
// with last (when set) moved to the end, then truncated to max.
type scanRecorder struct {
	*memstore.Store
	last string
	maxs []int
}

func (r *scanRecorder) ScanKeys(ctx context.Context, prefix string, max int) ([]string, error) {
	r.maxs = append(r.maxs, max)
	keys, err := r.Store.ScanKeys(ctx, prefix, 0)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	if i := slices.Index(keys, r.last); i >= 0 {
		keys = append(slices.Delete(keys, i, i+1), r.last)
	}
	if max > 0 && len(keys) > max {
		keys = keys[:max]
	}
	return keys, nil
}

func TestStore_Search_ScanCap(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{5, 10},
		{0, 2 * DefaultSearchLimit},
		{-3, 2 * DefaultSearchLimit},
		{MaxSearchLimit, 2 * MaxSearchLimit},
		{MaxSearchLimit + 1, 2 * MaxSearchLimit},
		{math.MaxInt, 2 * MaxSearchLimit},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.limit), func(t *testing.T) {
			rec := &scanRecorder{Store: memstore.New()}
			s := newTestStore(t, WithBackend(rec))
			seed(t, s, CategoryWorkflow, 3)

			if _, err := s.SearchAll(context.Background(), Query{Limit: tt.limit}); err != nil {
				t.Fatalf("SearchAll() error = %v", err)
			}
			if len(rec.maxs) != 1 || rec.maxs[0] != tt.want {
				t.Errorf("ScanKeys max = %v, want [%d]", rec.maxs, tt.want)
			}
		})
	}
}

func TestStore_Search_SparseMatchPastCap(t *testing.T) {
	rec := &scanRecorder{Store: memstore.New()}
	s := newTestStore(t, WithBackend(rec))
	ctx := context.Background()

	seed(t, s, CategoryWorkflow, 20)
	id, err := s.Put(ctx, CategoryDebug, "needle", nil)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rec.last = recordKey(id)

	// Limit 5 scans 10 keys; the only debug crystal is the 21st.
	recs, err := s.SearchAll(ctx, Query{Category: CategoryDebug, Limit: 5})
	if err != nil {
		t.Fatalf("SearchAll() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("SearchAll(limit=5) returned %d, want 0 past the scan cap", len(recs))
	}

	recs, _ = s.SearchAll(ctx, Query{Category: CategoryDebug, Limit: 11})
	if len(recs) != 1 || recs[0].ID != id {
		t.Errorf("SearchAll(limit=11) = %v, want the debug crystal", recs)
	}
}

func TestStore_Search_Backends(t *testing.T) {
	for name, backend := range testBackends() {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, WithBackend(backend(t)))
			ctx := context.Background()

			seed(t, s, CategoryWorkflow, 4)
			seed(t, s, CategoryDebug, 3)

			recs, err := s.SearchAll(ctx, Query{Limit: 3})
			if err != nil {
				t.Fatalf("SearchAll() error = %v", err)
			}
			if len(recs) != 3 {
				t.Errorf("SearchAll(limit=3) returned %d, want 3", len(recs))
			}

			recs, err = s.SearchAll(ctx, Query{Category: CategoryDebug, Limit: 10})
			if err != nil {
				t.Fatalf("SearchAll() error = %v", err)
			}
			if len(recs) != 3 {
				t.Errorf("SearchAll(debug) returned %d, want 3", len(recs))
			}
			for _, r := range recs {
				if r.Category != CategoryDebug {
					t.Errorf("SearchAll(debug) returned category %q", r.Category)
				}
			}

			recs, err = s.SearchAll(ctx, Query{Pattern: "task-2", Limit: 10})
			if err != nil {
				t.Fatalf("SearchAll() error = %v", err)
			}
			// Task-2 exists in both categories.
			if len(recs) != 2 {
				t.Errorf("SearchAll(task-2) returned %d, want 2", len(recs))
			}
		})
	}
}

func TestStore_Search_PatternMatchesCompactJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Put(ctx, CategoryWorkflow, map[string]any{"step": 1}, nil)

	recs, _ := s.SearchAll(ctx, Query{Pattern: `"step":1`})
	if len(recs) != 1 {
		t.Errorf("SearchAll(compact) returned %d, want 1", len(recs))
	}
	recs, _ = s.SearchAll(ctx, Query{Pattern: `"step": 1`})
	if len(recs) != 0 {
		t.Errorf("SearchAll(spaced) returned %d, want 0", len(recs))
	}
}
