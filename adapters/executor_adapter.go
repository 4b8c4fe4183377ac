// File: adapters/executor_adapter.go
// Package adapters provides glue between internal concurrency and api.Executor.
// License: Apache-2.0
//
// ExecutorAdapter implements the api.Executor interface by delegating to the
// internal concurrency.Executor: a mutex/cond-guarded queue and a resizable
// worker pool.

package adapters

import (
	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/internal/concurrency"
)

// ExecutorAdapter wraps an internal concurrency.Executor to satisfy the api.Executor contract.
type ExecutorAdapter struct {
	exec *concurrency.Executor
}

// NewExecutorAdapter constructs an api.Executor with the given number of
// worker goroutines. numaNode is accepted for placement-hint parity with
// the underlying Executor but is not otherwise interpreted.
func NewExecutorAdapter(workers int, numaNode int) api.Executor {
	e := concurrency.NewExecutor(workers, numaNode)
	return &ExecutorAdapter{exec: e}
}

// Submit dispatches a task function to be executed asynchronously.
// Returns an error if the executor has been closed.
func (ea *ExecutorAdapter) Submit(task func()) error {
	return ea.exec.Submit(task)
}

// NumWorkers returns the current number of active worker goroutines.
func (ea *ExecutorAdapter) NumWorkers() int {
	return ea.exec.NumWorkers()
}

// Resize dynamically adjusts the size of the worker pool. Shrinking is
// not implemented; see concurrency.Executor.Resize.
func (ea *ExecutorAdapter) Resize(newCount int) {
	ea.exec.Resize(newCount)
}

// Close shuts down the executor, signaling all workers to exit and
// waiting for the in-flight queue to drain.
func (ea *ExecutorAdapter) Close() {
	ea.exec.Close()
}
