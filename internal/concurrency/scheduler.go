// File: internal/concurrency/scheduler.go
// License: Apache-2.0
//
// High-precision, heap-backed timer scheduler. Implements api.Scheduler;
// nothing else in the module calls it.

package concurrency

import (
	"container/heap"
	"sync"
	"time"

	"github.com/momentics/vdtu/api"
)

var _ api.Scheduler = (*Scheduler)(nil)

type timerTask struct {
	deadline int64 // nanoseconds, monotonic
	fn       func()
	canceled bool
	index    int
}

type taskHeap []*timerTask

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].deadline < h[j].deadline }
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*timerTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler is a single goroutine driving a min-heap of deadlines.
type Scheduler struct {
	mu     sync.Mutex
	timerQ taskHeap
	start  time.Time
	notify chan struct{}
	stop   chan struct{}
	once   sync.Once
}

// NewScheduler starts the background timer goroutine and returns a Scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		start:  time.Now(),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Now returns monotonic nanoseconds since the scheduler was created.
func (s *Scheduler) Now() int64 {
	return time.Since(s.start).Nanoseconds()
}

// Schedule runs fn after delayNanos and returns a handle to cancel it.
func (s *Scheduler) Schedule(delayNanos int64, fn func()) (api.Cancelable, error) {
	if fn == nil {
		return nil, api.ErrInvalidArgs
	}
	t := &timerTask{deadline: s.Now() + delayNanos, fn: fn}
	s.mu.Lock()
	heap.Push(&s.timerQ, t)
	s.mu.Unlock()
	s.wake()
	return &taskHandle{s: s, t: t, done: make(chan struct{})}, nil
}

// Cancel prevents a previously scheduled callback from firing, if it
// hasn't already.
func (s *Scheduler) Cancel(c api.Cancelable) error {
	h, ok := c.(*taskHandle)
	if !ok {
		return api.ErrInvalidArgs
	}
	return h.Cancel()
}

// Close stops the background timer goroutine.
func (s *Scheduler) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	for {
		s.mu.Lock()
		if s.timerQ.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
			case <-s.stop:
				return
			}
			continue
		}

		next := s.timerQ[0]
		wait := next.deadline - s.Now()
		if wait > 0 {
			s.mu.Unlock()
			timer := time.NewTimer(time.Duration(wait))
			select {
			case <-timer.C:
			case <-s.notify:
				timer.Stop()
			case <-s.stop:
				timer.Stop()
				return
			}
			continue
		}

		heap.Pop(&s.timerQ)
		canceled := next.canceled
		fn := next.fn
		s.mu.Unlock()

		if !canceled && fn != nil {
			fn()
		}
	}
}

// taskHandle implements api.Cancelable for a scheduled timer task.
type taskHandle struct {
	s    *Scheduler
	t    *timerTask
	done chan struct{}
	once sync.Once
}

func (h *taskHandle) Cancel() error {
	h.s.mu.Lock()
	h.t.canceled = true
	h.s.mu.Unlock()
	h.once.Do(func() { close(h.done) })
	return nil
}

func (h *taskHandle) Done() <-chan struct{} { return h.done }

func (h *taskHandle) Err() error { return nil }
