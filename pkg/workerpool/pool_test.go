package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestProcess_PreservesSubmissionOrder(t *testing.T) {
	pool := New(Config{MaxConcurrent: 3}, zap.NewNop())

	var items []Item[int]
	for i := 0; i < 10; i++ {
		items = append(items, Item[int]{
			ID: fmt.Sprintf("item%d", i),
			Execute: func(ctx context.Context) (int, error) {
				time.Sleep(time.Duration(10-i) * time.Millisecond)
				return i * i, nil
			},
		})
	}

	results := Process(context.Background(), pool, items, nil)

	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("item %d failed: %v", i, r.Err)
		}
		if r.ID != fmt.Sprintf("item%d", i) || r.Result != i*i {
			t.Errorf("result %d out of order: %+v", i, r)
		}
	}
}

func TestProcess_ErrorsDoNotStopOthers(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())
	boom := errors.New("boom")

	items := []Item[string]{
		{ID: "a", Execute: func(ctx context.Context) (string, error) { return "a", nil }},
		{ID: "b", Execute: func(ctx context.Context) (string, error) { return "", boom }},
		{ID: "c", Execute: func(ctx context.Context) (string, error) { return "c", nil }},
	}

	results := Process(context.Background(), pool, items, nil)

	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("a and c should succeed: %+v", results)
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("b should fail with boom, got %v", results[1].Err)
	}
}

func TestProcess_Empty(t *testing.T) {
	pool := New(Config{}, zap.NewNop())
	if results := Process[int](context.Background(), pool, nil, nil); results != nil {
		t.Errorf("expected nil, got %v", results)
	}
}

func TestProcess_RespectsConcurrencyLimit(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	var current, peak int32
	var items []Item[struct{}]
	for i := 0; i < 8; i++ {
		items = append(items, Item[struct{}]{
			ID: fmt.Sprintf("%d", i),
			Execute: func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return struct{}{}, nil
			},
		})
	}

	Process(context.Background(), pool, items, nil)

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent items, saw %d", peak)
	}
}

func TestProcess_ReportsProgress(t *testing.T) {
	pool := New(Config{MaxConcurrent: 4}, zap.NewNop())
	items := make([]Item[int], 5)
	for i := range items {
		items[i] = Item[int]{ID: fmt.Sprint(i), Execute: func(ctx context.Context) (int, error) { return 0, nil }}
	}

	var calls, last int
	Process(context.Background(), pool, items, func(completed, total int) {
		calls++
		last = completed
		if total != 5 {
			t.Errorf("expected total 5, got %d", total)
		}
	})

	if calls != 5 || last != 5 {
		t.Errorf("expected 5 progress calls ending at 5, got %d calls ending at %d", calls, last)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	pool := New(Config{MaxConcurrent: 1}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := make(chan struct{})
	items := []Item[int]{
		{ID: "a", Execute: func(ctx context.Context) (int, error) { <-release; return 1, nil }},
		{ID: "b", Execute: func(ctx context.Context) (int, error) { return 2, nil }},
	}
	close(release)

	results := Process(ctx, pool, items, nil)

	cancelled := 0
	for _, r := range results {
		if errors.Is(r.Err, context.Canceled) {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("expected at least one cancelled item")
	}
}
