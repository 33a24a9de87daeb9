// Package jobs provides the asynchronous ingestion job scheduler.
package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// ErrSchedulerClosed is returned by Enqueue after Shutdown has been called.
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// Task is one unit of queued work. The task owns its own error handling; the
// scheduler only sequences execution.
type Task func()

// Scheduler runs enqueued tasks with at most maxConcurrency running at once.
// A single dispatch loop hands tasks to the worker pool in enqueue order, so
// queued tasks start strictly FIFO. It is a best-effort, single-process
// scheduler: queued work does not survive a restart.
type Scheduler struct {
	pool   *ants.Pool
	logger *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool
	wg     sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets a logger for queue events.
func WithLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler admitting at most maxConcurrency concurrent
// tasks (minimum 1).
func NewScheduler(maxConcurrency int, opts ...SchedulerOption) (*Scheduler, error) {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	pool, err := ants.NewPool(maxConcurrency)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{pool: pool, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.cond = sync.NewCond(&s.mu)
	go s.dispatch()
	return s, nil
}

// Enqueue adds a task and returns immediately. The task starts, in enqueue
// order, as soon as a worker slot frees up.
func (s *Scheduler) Enqueue(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	s.wg.Add(1)
	s.queue = append(s.queue, task)
	s.cond.Signal()
	return nil
}

// dispatch is the single admission loop. Submit blocks until the pool has a
// free worker, so at most one queued task is ever waiting on the pool and the
// rest keep their queue positions.
func (s *Scheduler) dispatch() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		err := s.pool.Submit(func() {
			defer s.wg.Done()
			task()
		})
		if err != nil {
			s.wg.Done()
			s.logger.Warn("task submission failed", zap.Error(err))
		}
	}
}

// Running returns the number of tasks currently executing.
func (s *Scheduler) Running() int {
	return s.pool.Running()
}

// Shutdown stops accepting new tasks and waits for enqueued ones to finish,
// or until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.pool.Release()
		return ctx.Err()
	}
	s.pool.Release()
	return nil
}
