// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package fake provides a synchronous in-process stand-in for the real
// executor, for tests of code that submits procs. Every proc runs to a
// terminal state on the calling goroutine before Submit returns.
package fake

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prettynatty/bastion/api"
)

// Executor runs every proc inline. Yields loop on the spot and blocking
// requests are served on the calling goroutine, so there is no
// concurrency to race against in tests.
type Executor struct {
	// MaxPolls bounds the polls spent on a single proc; a proc still
	// yielding past the bound fails its handle instead of hanging the
	// test. Zero means no bound.
	MaxPolls int

	nextID    atomic.Uint64
	closed    atomic.Bool
	submitted atomic.Uint64
	completed atomic.Uint64
	cancelled atomic.Uint64
	failed    atomic.Uint64
}

var (
	_ api.Executor         = (*Executor)(nil)
	_ api.GracefulShutdown = (*Executor)(nil)
)

// NewExecutor returns a fake with a generous poll bound.
func NewExecutor() *Executor {
	return &Executor{MaxPolls: 1 << 20}
}

// Submit polls p to a terminal state inline and returns the settled
// handle.
func (f *Executor) Submit(p api.Proc) (api.Handle, error) {
	return f.run(p)
}

// SubmitBlocking behaves exactly like Submit: the calling goroutine is
// the blocking thread.
func (f *Executor) SubmitBlocking(p api.Proc) (api.Handle, error) {
	return f.run(p)
}

// WorkerCount reports the single implicit worker.
func (f *Executor) WorkerCount() int { return 1 }

// Stats exposes the counters accumulated by inline runs.
func (f *Executor) Stats() api.PoolStats {
	return api.PoolStats{
		LiveProcs: 0,
		Submitted: f.submitted.Load(),
		Completed: f.completed.Load(),
		Cancelled: f.cancelled.Load(),
		Failed:    f.failed.Load(),
		StartedAt: time.Time{},
	}
}

// Failed reports how many procs panicked or exceeded MaxPolls.
func (f *Executor) Failed() uint64 { return f.failed.Load() }

// Shutdown closes the fake; later submissions are rejected.
func (f *Executor) Shutdown() error {
	f.closed.Store(true)
	return nil
}

func (f *Executor) run(p api.Proc) (api.Handle, error) {
	if p == nil {
		return nil, fmt.Errorf("executor: %w: nil proc", api.ErrInvalidArgument)
	}
	if f.closed.Load() {
		return nil, api.ErrExecutorClosed
	}
	f.submitted.Add(1)
	h := &Handle{id: f.nextID.Add(1), done: make(chan struct{})}
	defer close(h.done)

	for polls := 0; ; polls++ {
		if p.IsCancelled() {
			f.cancelled.Add(1)
			h.state, h.err = api.ProcCancelled, api.ErrProcCancelled
			return h, nil
		}
		if f.MaxPolls > 0 && polls >= f.MaxPolls {
			f.failed.Add(1)
			h.state = api.ProcFailed
			h.err = fmt.Errorf("fake executor: proc %d still yielding after %d polls", h.id, polls)
			return h, nil
		}
		res, err := pollOnce(p)
		if err != nil {
			f.failed.Add(1)
			h.state, h.err = api.ProcFailed, err
			return h, nil
		}
		if res == api.PollCompleted {
			f.completed.Add(1)
			h.state = api.ProcCompleted
			return h, nil
		}
		// Yields and blocking requests both continue inline.
	}
}

func pollOnce(p api.Proc) (res api.PollResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", api.ErrProcPanicked, r)
		}
	}()
	return p.PollOnce(), nil
}

// Handle is the pre-settled handle returned by the fake. All fields are
// final by the time Submit returns.
type Handle struct {
	id    uint64
	state api.ProcState
	err   error
	done  chan struct{}
}

var _ api.Handle = (*Handle)(nil)

func (h *Handle) ID() uint64            { return h.id }
func (h *Handle) State() api.ProcState  { return h.state }
func (h *Handle) Done() <-chan struct{} { return h.done }
func (h *Handle) Err() error            { return h.err }

// Cancel is a no-op: the proc already settled.
func (h *Handle) Cancel() {}
