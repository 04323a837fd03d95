// Package workerpool runs pipeline jobs on a fixed set of goroutines with a
// bounded queue. A full queue rejects the submission instead of blocking the
// caller, so backpressure is visible at the enqueue point.
package workerpool

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chartmill/chartmill/internal/core/domain"
)

type Job func(ctx context.Context)

type Pool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	logger  *slog.Logger
	workers int

	mu     sync.Mutex
	closed bool
}

func New(workers, queueDepth int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:    make(chan Job, queueDepth),
		logger:  logger,
		workers: workers,
	}
}

// Start spawns the workers. They exit when ctx is cancelled or the pool is
// closed, whichever comes first.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					p.run(ctx, worker, job)
				}
			}
		}(i)
	}
}

// Submit queues a job, returning domain.ErrQueueFull when the queue is at
// capacity. The parameter is an unnamed func type so callers can depend on
// their own pool interface without importing this package.
func (p *Pool) Submit(job func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.ErrQueueFull
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, worker int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", "worker", worker, "panic", r)
		}
	}()
	job(ctx)
}
