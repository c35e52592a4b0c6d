// File: executor/task.go
// Package executor implements the NUMA-aware work-stealing proc scheduler.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// task is the unit the queues move around: the submitted proc plus its
// executor-side bookkeeping. Tasks are recycled through the configured
// allocator once terminal; handles are not, since submitters keep them.

package executor

import (
	"fmt"
	"sync/atomic"

	"github.com/prettynatty/bastion/api"
)

// task wraps one submitted proc while it lives inside the scheduler.
type task struct {
	id       uint64
	proc     api.Proc
	h        *procHandle
	hint     int
	blocking bool
}

// reset prepares a recycled task for a new submission.
func (t *task) reset(id uint64, p api.Proc, h *procHandle, blocking bool) {
	t.id = id
	t.proc = p
	t.h = h
	t.hint = p.AffinityHint()
	t.blocking = blocking
}

// clear drops references before the task returns to the allocator.
func (t *task) clear() {
	t.proc = nil
	t.h = nil
}

// cancelled reports either side of the cancellation contract: the handle
// flag set by Cancel, or the proc's own self-cancellation.
func (t *task) cancelled() bool {
	return t.h.cancelled.Load() || t.proc.IsCancelled()
}

// procHandle implements api.Handle.
type procHandle struct {
	id        uint64
	pool      *Pool
	state     atomic.Int32
	cancelled atomic.Bool
	errVal    atomic.Pointer[error]
	done      chan struct{}
}

var _ api.Handle = (*procHandle)(nil)

func newHandle(pool *Pool, id uint64) *procHandle {
	h := &procHandle{id: id, pool: pool, done: make(chan struct{})}
	h.state.Store(int32(api.ProcPending))
	return h
}

// ID returns the executor-assigned identifier of the proc.
func (h *procHandle) ID() uint64 { return h.id }

// State returns the current lifecycle state.
func (h *procHandle) State() api.ProcState {
	return api.ProcState(h.state.Load())
}

// Done is closed once the proc reaches a terminal state.
func (h *procHandle) Done() <-chan struct{} { return h.done }

// Err reports the terminal outcome. Nil until Done is closed.
func (h *procHandle) Err() error {
	if p := h.errVal.Load(); p != nil {
		return *p
	}
	return nil
}

// Cancel requests cancellation. A proc that is queued (pending on the
// workers or waiting for a blocking thread) is finished as cancelled right
// here; the queues drop the dead task when they meet it. A running proc is
// only flagged and finishes at its next yield point.
func (h *procHandle) Cancel() {
	h.cancelled.Store(true)
	if h.finishFrom(api.ProcPending, api.ProcCancelled, api.ErrProcCancelled) {
		return
	}
	h.finishFrom(api.ProcBlocking, api.ProcCancelled, api.ErrProcCancelled)
}

// transition moves between non-terminal states. Returns false when the
// proc is no longer in from, which includes every terminal state.
func (h *procHandle) transition(from, to api.ProcState) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}

// finishFrom performs the terminal transition only out of one specific
// state. Exactly one caller can win it.
func (h *procHandle) finishFrom(from, final api.ProcState, err error) bool {
	if !h.state.CompareAndSwap(int32(from), int32(final)) {
		return false
	}
	h.settle(final, err)
	return true
}

// finish performs the terminal transition out of whatever non-terminal
// state the proc is in: exactly one caller wins.
func (h *procHandle) finish(final api.ProcState, err error) bool {
	for {
		cur := api.ProcState(h.state.Load())
		if cur.Terminal() {
			return false
		}
		if !h.state.CompareAndSwap(int32(cur), int32(final)) {
			continue
		}
		h.settle(final, err)
		return true
	}
}

// settle records the outcome, closes Done, and updates pool accounting.
// Called exactly once, by the winner of the terminal transition.
func (h *procHandle) settle(final api.ProcState, err error) {
	if err != nil {
		h.errVal.Store(&err)
	}
	close(h.done)
	h.pool.onTerminal(final)
}

// panicToError normalizes a recovered poll panic.
func panicToError(r any) error {
	return fmt.Errorf("%w: %v", api.ErrProcPanicked, r)
}

// pollProc runs one step of a proc with panic containment. A panic is
// the proc's failure, never the worker's.
func pollProc(p api.Proc) (res api.PollResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	return p.PollOnce(), nil
}
