package tracker

import (
	"fmt"
	"sync"
	"testing"
)

func TestTracker_Touch(t *testing.T) {
	tr, err := New(10)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := tr.Touch("a"); got != 1 {
		t.Errorf("Touch(a) = %d, want 1", got)
	}
	if got := tr.Touch("a"); got != 2 {
		t.Errorf("Touch(a) = %d, want 2", got)
	}
	tr.Touch("b")

	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tr.Len())
	}
	if tr.Count("a") != 2 {
		t.Errorf("Count(a) = %d, want 2", tr.Count("a"))
	}
	if tr.Count("missing") != 0 {
		t.Errorf("Count(missing) = %d, want 0", tr.Count("missing"))
	}
}

func TestTracker_Eviction(t *testing.T) {
	tr, err := New(2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tr.Touch("a")
	tr.Touch("b")
	tr.Touch("c") // Should evict a.

	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tr.Len())
	}
	if tr.Count("a") != 0 {
		t.Error("a should have been evicted")
	}
	if tr.Evicted() != 1 {
		t.Errorf("Evicted() = %d, want 1", tr.Evicted())
	}
}

func TestTracker_InvalidCapacity(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0) should return error")
	}
	if _, err := New(-1); err == nil {
		t.Error("New(-1) should return error")
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr, _ := New(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Touch("shared")
				tr.Touch(fmt.Sprintf("id-%d", i))
			}
		}(i)
	}
	wg.Wait()

	if got := tr.Count("shared"); got != 1000 {
		t.Errorf("Count(shared) = %d, want 1000", got)
	}
	if tr.Len() != 11 {
		t.Errorf("Len() = %d, want 11", tr.Len())
	}
}
