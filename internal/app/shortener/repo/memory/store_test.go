package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"snip.local/internal/app/shortener"
)

func TestMemoryStore_CounterLifecycle(t *testing.T) {
	s := New(100)
	ctx := context.Background()

	if _, err := s.NextID(ctx, "srv"); !errors.Is(err, shortener.ErrCounterNotSeeded) {
		t.Fatalf("got %v, want ErrCounterNotSeeded", err)
	}

	if err := s.SeedCounter(ctx, "srv", 5); err != nil {
		t.Fatal(err)
	}
	// 重复 seed 是 no-op，不能把计数器拉回去
	if err := s.SeedCounter(ctx, "srv", 0); err != nil {
		t.Fatal(err)
	}

	for want := int64(5); want < 8; want++ {
		got, err := s.NextID(ctx, "srv")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("NextID: got %d, want %d", got, want)
		}
	}
}

func TestMemoryStore_NextIDConcurrent(t *testing.T) {
	s := New(1 << 30)
	ctx := context.Background()
	if err := s.SeedCounter(ctx, "srv", 0); err != nil {
		t.Fatal(err)
	}

	const n = 200
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.NextID(ctx, "srv")
			if err != nil {
				t.Error(err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d distinct ids, want %d", len(seen), n)
	}
}

func TestMemoryStore_DuplicateID(t *testing.T) {
	s := New(100)
	ctx := context.Background()

	if err := s.InsertLink(ctx, 1, "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertLink(ctx, 1, "https://example.org"); !errors.Is(err, shortener.ErrDuplicateID) {
		t.Fatalf("got %v, want ErrDuplicateID", err)
	}
}

func TestMemoryStore_AnalyticsOrdering(t *testing.T) {
	s := New(100)
	ctx := context.Background()

	if err := s.InsertLink(ctx, 1, "https://example.com"); err != nil {
		t.Fatal(err)
	}
	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.InsertEvent(ctx, 1, shortener.EventClick, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	a, err := s.Analytics(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.History) != 3 {
		t.Fatalf("got %d events, want 3", len(a.History))
	}
	if !a.History[0].Timestamp.Equal(base.Add(2 * time.Second)) {
		t.Fatal("history is not newest-first")
	}
}
