package commandbus

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Executor runs fire-and-forget tasks. Execute must not block on the task itself;
// a rejected task is reported as an error and is never retried by the caller.
type Executor interface {
	Execute(task func()) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func()) error

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) error {
	return f(task)
}

// GoExecutor runs every task on a new goroutine. It never rejects.
var GoExecutor Executor = ExecutorFunc(func(task func()) error {
	go task()
	return nil
})

// WorkerPool is a bounded Executor over an errgroup: at most workers+queueSize
// tasks are in flight at once. Execute never blocks; a pool at its limit yields
// ErrExecutorSaturated.
type WorkerPool struct {
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool admitting workers+queueSize concurrent tasks.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{}
	p.group.SetLimit(workers + queueSize)
	return p
}

// Execute starts task unless the pool is closed or at its limit.
func (p *WorkerPool) Execute(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrExecutorClosed
	}
	if !p.group.TryGo(func() error {
		task()
		return nil
	}) {
		return ErrExecutorSaturated
	}
	return nil
}

// Close stops accepting tasks and waits for running tasks to finish.
// Safe to call multiple times.
func (p *WorkerPool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	return p.group.Wait()
}
