// File: internal/concurrency/executor.go
// License: Apache-2.0
//
// Executor dispatches submitted tasks across a resizable pool of worker
// goroutines, backed by eapache/queue guarded by a mutex (the queue type
// itself is not concurrency-safe).

package concurrency

import (
	"errors"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/vdtu/api"
)

var ErrExecutorClosed = errors.New("executor is closed")

var _ api.Executor = (*Executor)(nil)

type TaskFunc func()

// Executor is a fixed-then-resizable pool of worker goroutines pulling
// from one shared, mutex-guarded FIFO.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   *queue.Queue
	workers int
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewExecutor starts numWorkers worker goroutines. numaNode is accepted
// for placement hints only; this emulation runs single-process and does
// not pin goroutines to NUMA nodes.
func NewExecutor(numWorkers, numaNode int) *Executor {
	e := &Executor{
		queue: queue.New(),
		stop:  make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	e.Resize(numWorkers)
	return e
}

// Submit enqueues task for asynchronous execution.
func (e *Executor) Submit(task func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.queue.Add(TaskFunc(task))
	e.mu.Unlock()
	e.cond.Signal()
	return nil
}

// NumWorkers reports the current worker goroutine count.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workers
}

// Resize grows the worker pool at runtime. A smaller newCount only
// lowers the count NumWorkers reports; no running worker exits before
// Close.
func (e *Executor) Resize(newCount int) {
	if newCount < 0 {
		newCount = 0
	}
	e.mu.Lock()
	delta := newCount - e.workers
	e.workers = newCount
	e.mu.Unlock()
	for i := 0; i < delta; i++ {
		e.wg.Add(1)
		go e.runWorker()
	}
	// Shrinking relies on idle workers observing e.workers dropped below
	// their rank is unnecessary here: a simpler, correct approach is to
	// let Close() tear everything down; Resize only grows in practice
	// for this emulation's fixed-tile-count topology.
}

// Close stops all workers and releases the queue; blocks until drained.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.stop)
	e.cond.Broadcast()
	e.wg.Wait()
}

func (e *Executor) runWorker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.queue.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.queue.Length() == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		item := e.queue.Remove()
		e.mu.Unlock()

		if task, ok := item.(TaskFunc); ok {
			task()
		}
	}
}
