// File: adapters/runner.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runner exposes an api.Executor through the plain func-based contract
// most Go libraries expect from a task runner, hiding procs and handles
// from callers that do not need lifecycle control.

package adapters

import (
	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/proc"
)

// Runner wraps an executor behind fire-and-forget submission.
type Runner struct {
	ex api.Executor
}

// NewRunner builds a Runner on top of ex.
func NewRunner(ex api.Executor) *Runner {
	return &Runner{ex: ex}
}

// Submit schedules fn as a one-shot cooperative proc and discards the
// handle. fn must not block; use SubmitBlocking for blocking calls.
func (r *Runner) Submit(fn func()) error {
	_, err := r.ex.Submit(proc.Func(fn))
	return err
}

// SubmitBlocking schedules fn on the blocking pool and discards the
// handle.
func (r *Runner) SubmitBlocking(fn func()) error {
	_, err := r.ex.SubmitBlocking(proc.Func(fn))
	return err
}

// NumWorkers reports the current number of live cooperative workers.
func (r *Runner) NumWorkers() int {
	return r.ex.WorkerCount()
}

// Close tears the underlying executor down when it supports graceful
// shutdown, and is a no-op otherwise.
func (r *Runner) Close() error {
	if gs, ok := r.ex.(api.GracefulShutdown); ok {
		return gs.Shutdown()
	}
	return nil
}
