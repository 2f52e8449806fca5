// Package batch provides a bounded worker pool for running per-instrument
// work concurrently with partial-failure semantics.
package batch

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool manages a fixed set of workers for concurrent task execution.
type Pool struct {
	workers    int
	taskQueue  chan func()
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
}

// NewPool creates a worker pool with the specified number of workers.
// If workers is 0 or negative, it defaults to runtime.NumCPU().
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:   workers,
		taskQueue: make(chan func(), workers*16),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the workers. Calling Start on a running pool is a no-op.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			task()
			p.tasksDone.Add(1)
		}
	}
}

// Submit enqueues a task, blocking while the queue is full. Returns
// false if the pool is not running or ctx is cancelled first.
func (p *Pool) Submit(ctx context.Context, task func()) bool {
	if !p.running.Load() {
		return false
	}

	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return true
	case <-ctx.Done():
		return false
	case <-p.ctx.Done():
		return false
	}
}

// Stop stops the pool and waits for all workers to finish.
func (p *Pool) Stop() {
	if !p.running.Swap(false) {
		return
	}

	p.cancel()
	close(p.taskQueue)
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		Running:    p.running.Load(),
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
		QueueLen:   len(p.taskQueue),
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
	QueueLen   int
}

// Outcome pairs one key with the result or error its task produced.
type Outcome[R any] struct {
	Key    string
	Result R
	Err    error
}

// Run executes fn once per key on a worker pool and collects every
// outcome. A failed key never stops the others; a cancelled context
// stops scheduling further keys but lets in-flight tasks finish.
// Outcomes preserve the input key order.
func Run[R any](ctx context.Context, workers int, keys []string, fn func(ctx context.Context, key string) (R, error)) []Outcome[R] {
	if len(keys) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(keys) {
		workers = len(keys)
	}

	pool := NewPool(workers)
	pool.Start()
	defer pool.Stop()

	outcomes := make([]Outcome[R], len(keys))
	var wg sync.WaitGroup

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome[R]{Key: key, Err: err}
			continue
		}

		wg.Add(1)
		submitted := pool.Submit(ctx, func() {
			defer wg.Done()
			result, err := fn(ctx, key)
			outcomes[i] = Outcome[R]{Key: key, Result: result, Err: err}
		})
		if !submitted {
			wg.Done()
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			outcomes[i] = Outcome[R]{Key: key, Err: err}
		}
	}

	wg.Wait()
	return outcomes
}
