// File: executor/blocking.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Blocking pool: dedicated OS threads for procs that must block. A thread
// runs exactly one proc to completion, then drains the pending queue or
// waits idle for a handoff until the idle timeout retires it. The
// semaphore is the thread ceiling; beyond it submissions queue FIFO up to
// the configured capacity and are rejected past that.

package executor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	eq "github.com/eapache/queue"
	"golang.org/x/sync/semaphore"

	"github.com/prettynatty/bastion/api"
)

type blockingPool struct {
	pool        *Pool
	sem         *semaphore.Weighted
	handoff     chan *task
	poke        chan struct{}
	stopCh      chan struct{}
	queueCap    int
	idleTimeout time.Duration

	mu      sync.Mutex
	pending *eq.Queue
	idle    int
	threads int
	stopped bool

	spawned   atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
}

func newBlockingPool(p *Pool) *blockingPool {
	return &blockingPool{
		pool:        p,
		sem:         semaphore.NewWeighted(int64(p.cfg.BlockingPoolMax)),
		handoff:     make(chan *task),
		poke:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		queueCap:    p.cfg.BlockingQueueCap,
		idleTimeout: p.cfg.BlockingIdleTimeout.Std(),
		pending:     eq.New(),
	}
}

// dispatch routes one blocking task to a thread: an idle one when
// available, a fresh one under the ceiling, the pending queue otherwise.
// Tasks already waiting keep their place; a dispatch never jumps the queue.
func (b *blockingPool) dispatch(t *task) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return api.ErrExecutorClosed
	}
	if b.pending.Length() > 0 {
		return b.enqueueLocked(t)
	}
	b.mu.Unlock()

	select {
	case b.handoff <- t:
		return nil
	default:
	}

	if b.sem.TryAcquire(1) {
		b.startThread(t)
		return nil
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return api.ErrExecutorClosed
	}
	return b.enqueueLocked(t)
}

// enqueueLocked appends to the pending queue and makes sure a thread is
// coming for it: when none is live one is spawned, and an idle one is
// poked to recheck. Releases the mutex.
func (b *blockingPool) enqueueLocked(t *task) error {
	if b.pending.Length() >= b.queueCap {
		b.mu.Unlock()
		b.rejected.Add(1)
		return api.ErrBlockingQueueFull
	}
	b.pending.Add(t)
	// Thread exits give their seat back under this same mutex, so a zero
	// count here means every permit is reacquirable right now.
	if b.threads == 0 && b.sem.TryAcquire(1) {
		b.threads++
		b.spawned.Add(1)
		go b.thread(nil)
	}
	b.mu.Unlock()

	// The buffered poke survives until an idle thread reaches its select,
	// so a wakeup sent during that window is never lost.
	select {
	case b.poke <- struct{}{}:
	default:
	}
	return nil
}

func (b *blockingPool) startThread(first *task) {
	b.mu.Lock()
	b.threads++
	b.mu.Unlock()
	b.spawned.Add(1)
	go b.thread(first)
}

// thread is one blocking executor thread. first may be nil for a thread
// spawned only to drain the pending queue.
func (b *blockingPool) thread(first *task) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t := first
	idle := time.NewTimer(b.idleTimeout)
	defer idle.Stop()

	for {
		if t != nil {
			b.runTask(t)
			t = nil
		}

		// Queued tasks were here first; handoffs wait their turn.
		b.mu.Lock()
		if b.pending.Length() > 0 {
			t = b.pending.Remove().(*task)
			b.mu.Unlock()
			continue
		}
		if b.stopped {
			b.exitLocked()
			b.mu.Unlock()
			return
		}
		b.idle++
		b.mu.Unlock()

		idle.Reset(b.idleTimeout)
		select {
		case t = <-b.handoff:
			b.decIdle()
		case <-b.poke:
			b.decIdle()
		case <-idle.C:
			b.mu.Lock()
			b.idle--
			if b.pending.Length() > 0 {
				t = b.pending.Remove().(*task)
				b.mu.Unlock()
				continue
			}
			b.exitLocked()
			b.mu.Unlock()
			return
		case <-b.stopCh:
			b.mu.Lock()
			b.idle--
			b.exitLocked()
			b.mu.Unlock()
			return
		}
	}
}

// exitLocked retires this thread's seat. The count and the permit move
// together so a dispatcher that observes zero threads can always acquire
// one. Caller holds b.mu and has verified nothing is pending.
func (b *blockingPool) exitLocked() {
	b.threads--
	b.sem.Release(1)
}

// runTask drives one blocking proc to completion on this thread.
func (b *blockingPool) runTask(t *task) {
	h := t.h
	if t.cancelled() {
		h.finish(api.ProcCancelled, api.ErrProcCancelled)
		b.pool.recycle(t)
		return
	}
	if !h.transition(api.ProcBlocking, api.ProcRunning) {
		b.pool.recycle(t)
		return
	}
	for {
		res, err := pollProc(t.proc)
		if err != nil {
			h.finish(api.ProcFailed, err)
			break
		}
		if res == api.PollCompleted {
			if h.finishFrom(api.ProcRunning, api.ProcCompleted, nil) {
				b.completed.Add(1)
			}
			break
		}
		// A yield on a blocking thread only marks a cancellation point;
		// the proc stays here until it completes.
		if t.cancelled() {
			h.finish(api.ProcCancelled, api.ErrProcCancelled)
			break
		}
	}
	b.pool.recycle(t)
}

func (b *blockingPool) decIdle() {
	b.mu.Lock()
	b.idle--
	b.mu.Unlock()
}

// stop refuses further dispatches and cancels everything still queued.
// Threads running a proc finish it and then exit; they are not preempted.
// Returns the number of queued procs that never ran.
func (b *blockingPool) stop() int {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return 0
	}
	b.stopped = true
	var dead []*task
	for b.pending.Length() > 0 {
		dead = append(dead, b.pending.Remove().(*task))
	}
	b.mu.Unlock()
	close(b.stopCh)

	dropped := 0
	for _, t := range dead {
		if t.h.finishFrom(api.ProcBlocking, api.ProcCancelled, api.ErrProcCancelled) {
			dropped++
		}
		b.pool.recycle(t)
	}
	return dropped
}

// snapshot captures the exported view of the blocking pool.
func (b *blockingPool) snapshot() api.BlockingPoolStats {
	b.mu.Lock()
	s := api.BlockingPoolStats{
		Threads: b.threads,
		Idle:    b.idle,
		Pending: b.pending.Length(),
	}
	b.mu.Unlock()
	s.Spawned = b.spawned.Load()
	s.Completed = b.completed.Load()
	s.Rejected = b.rejected.Load()
	return s
}
