package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunCollectsOutcomesInOrder(t *testing.T) {
	keys := []string{"TCS", "INFY", "RELIANCE", "HDFC"}

	outcomes := Run(context.Background(), 2, keys, func(_ context.Context, key string) (string, error) {
		return strings.ToLower(key), nil
	})

	if len(outcomes) != len(keys) {
		t.Fatalf("outcome count = %d, want %d", len(outcomes), len(keys))
	}
	for i, o := range outcomes {
		if o.Key != keys[i] {
			t.Errorf("outcome %d key = %q, want %q", i, o.Key, keys[i])
		}
		if o.Err != nil {
			t.Errorf("outcome %d unexpected error: %v", i, o.Err)
		}
		if o.Result != strings.ToLower(keys[i]) {
			t.Errorf("outcome %d result = %q", i, o.Result)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	failed := errors.New("bad instrument")

	outcomes := Run(context.Background(), 3, []string{"A", "BAD", "C"}, func(_ context.Context, key string) (int, error) {
		if key == "BAD" {
			return 0, failed
		}
		return len(key), nil
	})

	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Errorf("healthy keys should succeed: %v %v", outcomes[0].Err, outcomes[2].Err)
	}
	if !errors.Is(outcomes[1].Err, failed) {
		t.Errorf("failed key error = %v, want %v", outcomes[1].Err, failed)
	}
	if outcomes[0].Result != 1 || outcomes[2].Result != 1 {
		t.Error("results of healthy keys lost")
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 2
	var current, peak atomic.Int64

	keys := make([]string, 10)
	for i := range keys {
		keys[i] = fmt.Sprintf("K%d", i)
	}

	Run(context.Background(), workers, keys, func(_ context.Context, _ string) (struct{}, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return struct{}{}, nil
	})

	if got := peak.Load(); got > workers {
		t.Errorf("peak concurrency = %d, want at most %d", got, workers)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := Run(ctx, 2, []string{"A", "B"}, func(_ context.Context, _ string) (int, error) {
		t.Error("fn should not run after cancellation")
		return 0, nil
	})

	for i, o := range outcomes {
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("outcome %d err = %v, want context.Canceled", i, o.Err)
		}
	}
}

func TestRunEmptyKeys(t *testing.T) {
	outcomes := Run(context.Background(), 4, nil, func(_ context.Context, _ string) (int, error) {
		return 0, nil
	})
	if len(outcomes) != 0 {
		t.Errorf("outcome count = %d, want 0", len(outcomes))
	}
}

func TestPoolExecutesTasks(t *testing.T) {
	pool := NewPool(4)
	pool.Start()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		ok := pool.Submit(context.Background(), func() {
			defer wg.Done()
			counter.Add(1)
		})
		if !ok {
			wg.Done()
			t.Fatalf("submit %d rejected", i)
		}
	}
	wg.Wait()
	pool.Stop()

	if got := counter.Load(); got != 20 {
		t.Errorf("executed tasks = %d, want 20", got)
	}

	stats := pool.Stats()
	if stats.Running {
		t.Error("stopped pool should report not running")
	}
	if stats.TasksTotal != 20 {
		t.Errorf("TasksTotal = %d, want 20", stats.TasksTotal)
	}
}

func TestPoolRejectsWhenStopped(t *testing.T) {
	pool := NewPool(2)
	if pool.Submit(context.Background(), func() {}) {
		t.Error("submit before Start should be rejected")
	}

	pool.Start()
	pool.Stop()

	if pool.Submit(context.Background(), func() {}) {
		t.Error("submit after Stop should be rejected")
	}
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	pool := NewPool(1)
	pool.Start()
	defer pool.Stop()

	// Occupy the single worker and fill the queue so the next submit
	// has to block.
	release := make(chan struct{})
	pool.Submit(context.Background(), func() { <-release })
	for pool.Submit(cancelledAfter(time.Millisecond), func() {}) {
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if pool.Submit(ctx, func() {}) {
		t.Error("submit with a cancelled context on a full queue should fail")
	}
	close(release)
}

func cancelledAfter(d time.Duration) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(d, cancel)
	return ctx
}

func TestPoolStartIsIdempotent(t *testing.T) {
	pool := NewPool(2)
	pool.Start()
	pool.Start()

	done := make(chan struct{})
	if !pool.Submit(context.Background(), func() { close(done) }) {
		t.Fatal("submit rejected on running pool")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never executed")
	}
	pool.Stop()
}
