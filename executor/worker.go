// File: executor/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker: one locked OS thread driving procs from its own deque, from
// sibling deques, and from the shared injector. The loop never blocks
// while work may exist; it parks only after a full unsuccessful sweep
// and is woken through the state CAS in sleepers.go.

package executor

import (
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/internal/queue"
	"github.com/prettynatty/bastion/placement"
)

// idleSpins is the number of failed sweeps a worker yields through before
// it parks.
const idleSpins = 3

type worker struct {
	slot  int
	pool  *Pool
	place placement.Slot
	deque *queue.Deque[task]
	pin   *queue.Pin
	log   *zap.Logger

	state    atomic.Int32 // api.WorkerState
	retire   atomic.Bool  // set by the balancer, acted on by the worker
	parkedAt atomic.Int64 // unix nanos of the last park, for idle retirement
	wakeCh   chan struct{}

	rng uint64 // xorshift state, owner thread only

	popped    atomic.Uint64
	stolen    atomic.Uint64
	completed atomic.Uint64
}

func newWorker(p *Pool, slot int, place placement.Slot) *worker {
	w := &worker{
		slot:   slot,
		pool:   p,
		place:  place,
		deque:  queue.NewDeque[task](p.cfg.LocalQueueCapacity, p.rec),
		wakeCh: make(chan struct{}, 1),
		log:    p.log.With(zap.Int("slot", slot), zap.Int("numa", place.NUMANode), zap.Int("cpu", place.CPU)),
		rng:    uint64(slot)*0x9E3779B97F4A7C15 + 0x2545F4914F6CDD1D,
	}
	w.state.Store(int32(api.WorkerSearching))
	return w
}

// run is the worker body. It owns the calling goroutine until the pool
// drains, the balancer retires the slot, or a hard stop fires.
func (w *worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.pool.cfg.PinWorkers && w.place.CPU >= 0 {
		if err := w.pool.pinner.Pin(w.place.CPU, w.place.NUMANode); err != nil {
			// Degraded placement, not an error: the OS scheduler decides.
			w.log.Warn("cpu pin failed", zap.Error(err))
		}
	}

	w.pin = w.pool.rec.Register()
	defer w.pool.rec.Unregister(w.pin)

	tid := curtid()
	if tid >= 0 {
		w.pool.registerTID(tid, w)
		defer w.pool.unregisterTID(tid)
	}
	w.log.Debug("worker started", zap.Int("tid", tid))

	misses := 0
	for {
		if w.pool.stopped() {
			break
		}
		if w.retire.Load() && !w.pool.draining() {
			// During a drain every worker must finish its own backlog, so
			// retirement is only honored while the pool is running.
			w.drain()
			break
		}
		if w.pool.draining() {
			w.state.Store(int32(api.WorkerDraining))
		}
		if t := w.findTask(); t != nil {
			misses = 0
			w.runTask(t)
			continue
		}
		if w.pool.draining() {
			// Full sweep over an empty pool: nothing left for this worker.
			break
		}
		misses++
		if misses < idleSpins {
			runtime.Gosched()
			continue
		}
		misses = 0
		w.park()
	}
	w.terminate()
}

// findTask performs one sweep: own deque first, then a randomized
// permutation of siblings, then the injector. Batches land in the own
// deque; the first item is returned for immediate execution.
func (w *worker) findTask() *task {
	if t, ok := w.deque.PopBottom(); ok {
		w.popped.Add(1)
		return t
	}

	max := int(w.pool.stealBatch.Load())
	if max < 1 {
		max = 1
	}

	w.pool.rec.PinEpoch(w.pin)
	defer w.pool.rec.UnpinEpoch(w.pin)

	ws := w.pool.workerSnapshot()
	if n := len(ws); n > 1 {
		start := int(w.nextRand() % uint64(n))
		for i := 0; i < n; i++ {
			v := ws[(start+i)%n]
			if v == nil || v == w {
				continue
			}
			depth := v.deque.Len()
			if depth == 0 {
				continue
			}
			// Take the larger half, leaving the victim the rest.
			take := depth - depth/2
			if take > max {
				take = max
			}
			if t, moved := v.deque.StealBatchInto(w.deque, take); t != nil {
				w.stolen.Add(uint64(moved))
				return t
			}
		}
	}

	if t, moved := w.pool.injector.PopBatchInto(w.deque, max); t != nil {
		w.stolen.Add(uint64(moved))
		return t
	}
	return nil
}

// runTask drives one task to its next scheduling decision: completion,
// yield, blocking handoff, cancellation, or failure.
func (w *worker) runTask(t *task) {
	h := t.h
	if t.cancelled() {
		h.finish(api.ProcCancelled, api.ErrProcCancelled)
		w.pool.recycle(t)
		return
	}
	if t.blocking {
		// Never run a blocking proc inline; hand it over and keep searching.
		w.rerouteBlocking(t)
		return
	}
	if !h.transition(api.ProcPending, api.ProcRunning) {
		// Cancel won the pending state while the task sat in a queue.
		w.pool.recycle(t)
		return
	}

	w.state.Store(int32(api.WorkerRunning))
	res, err := pollProc(t.proc)
	w.state.Store(int32(api.WorkerSearching))

	if err != nil {
		w.log.Error("proc failed", zap.Uint64("proc", t.id), zap.Error(err))
		h.finish(api.ProcFailed, err)
		w.pool.recycle(t)
		return
	}

	switch res {
	case api.PollCompleted:
		if h.finishFrom(api.ProcRunning, api.ProcCompleted, nil) {
			w.completed.Add(1)
		}
		w.pool.recycle(t)

	case api.PollBlockingRequested:
		if !h.transition(api.ProcRunning, api.ProcBlocking) {
			w.pool.recycle(t)
			return
		}
		t.blocking = true
		w.rerouteBlocking(t)

	default: // api.PollYielded
		if t.cancelled() {
			h.finish(api.ProcCancelled, api.ErrProcCancelled)
			w.pool.recycle(t)
			return
		}
		if !h.transition(api.ProcRunning, api.ProcPending) {
			w.pool.recycle(t)
			return
		}
		// Yielded procs join the back of the global queue, as Gosched does
		// for goroutines: everything queued ahead of them runs first, and
		// any worker may pick them up.
		w.pool.injector.Push(t)
		w.pool.wakeOne(w.pool.preferredFor(t.hint))
	}
}

// rerouteBlocking hands a task to the blocking pool. When the pool and
// its pending queue are both full, the task retries through the injector
// so this worker stays free for cooperative procs. The injector is the
// last stop of a sweep, so queued cooperative work always runs before
// the retry comes around again; Gosched keeps an otherwise idle worker
// from burning a core on the same bounce, and no wake is sent since a
// sibling would only fail the same dispatch.
func (w *worker) rerouteBlocking(t *task) {
	if err := w.pool.blocking.dispatch(t); err != nil {
		w.pool.injector.Push(t)
		runtime.Gosched()
	}
}

// park blocks the worker until a waker hands it a token. The recheck
// after publishing the Parked state closes the race with a submit that
// read the pre-park state and saw nobody to wake.
func (w *worker) park() {
	select {
	case <-w.wakeCh: // drop a stale token from an earlier round
	default:
	}
	if !w.setState(api.WorkerSearching, api.WorkerParked) {
		return
	}
	w.parkedAt.Store(time.Now().UnixNano())
	w.pool.parked.Add(1)

	if w.pool.injector.Len() > 0 || w.pool.draining() || w.pool.stopped() || w.retire.Load() {
		if w.setState(api.WorkerParked, api.WorkerSearching) {
			w.pool.parked.Add(-1)
		} else {
			// A waker won the flip and already fixed the count; its token
			// is in flight.
			<-w.wakeCh
		}
		return
	}

	select {
	case <-w.wakeCh:
		// State and count were adjusted by the waker.
	case <-w.pool.stopCh:
		if w.setState(api.WorkerParked, api.WorkerSearching) {
			w.pool.parked.Add(-1)
		}
	}
}

// drain moves the remaining local backlog to the injector in FIFO order
// and leaves the loop. Stealing from the own deque keeps the owner/thief
// protocol intact while other workers may be stealing concurrently.
func (w *worker) drain() {
	w.state.Store(int32(api.WorkerDraining))
	moved := 0
	w.pool.rec.PinEpoch(w.pin)
	for w.deque.Len() > 0 {
		if t, ok := w.deque.Steal(); ok {
			w.pool.injector.Push(t)
			moved++
		}
	}
	w.pool.rec.UnpinEpoch(w.pin)
	if moved > 0 {
		w.pool.wakeOne(-1)
	}
	w.log.Debug("worker retired", zap.Int("displaced", moved))
}

// terminate detaches the worker from the pool tables.
func (w *worker) terminate() {
	w.state.Store(int32(api.WorkerTerminated))
	w.pool.detachWorker(w)
	w.log.Debug("worker stopped")
}

func (w *worker) setState(from, to api.WorkerState) bool {
	return w.state.CompareAndSwap(int32(from), int32(to))
}

// snapshot captures the exported view of this worker.
func (w *worker) snapshot() api.WorkerStats {
	return api.WorkerStats{
		Slot:       w.slot,
		NUMANode:   w.place.NUMANode,
		CPU:        w.place.CPU,
		State:      api.WorkerState(w.state.Load()),
		QueueDepth: w.deque.Len(),
		Popped:     w.popped.Load(),
		Stolen:     w.stolen.Load(),
		Completed:  w.completed.Load(),
	}
}

// nextRand is xorshift64; cheap enough for a per-sweep victim pick.
func (w *worker) nextRand() uint64 {
	x := w.rng
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	w.rng = x
	return x
}
