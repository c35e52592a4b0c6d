// File: executor/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pool: the root executor object. It owns the placement table, the
// worker set, the shared injector, the blocking pool, the balancer, and
// the control surface, and it is the only type applications need.

package executor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prettynatty/bastion/affinity"
	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/config"
	"github.com/prettynatty/bastion/control"
	"github.com/prettynatty/bastion/internal/queue"
	"github.com/prettynatty/bastion/placement"
)

// Version of the executor module.
const Version = "1.0.0"

// Pool lifecycle states.
const (
	poolRunning int32 = iota
	poolDraining
	poolStopped
)

// Pool schedules procs across pinned OS-thread workers with per-worker
// deques, a shared injector, and a dedicated pool for blocking procs.
type Pool struct {
	cfg    config.Config
	log    *zap.Logger
	panel  *control.Panel
	places *placement.Table
	pinner *affinity.Pinner

	rec      *queue.Reclaimer[task]
	injector *queue.Injector[task]
	blocking *blockingPool
	alloc    api.ObjectPool[any]

	mu      sync.Mutex // guards worker table and tid map writes
	workers atomic.Pointer[[]*worker]
	tids    atomic.Pointer[map[int]*worker]

	state    atomic.Int32
	drainCh  chan struct{}
	stopCh   chan struct{}
	allDone  chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup

	parked     atomic.Int32
	stealBatch atomic.Int32

	nextID     atomic.Uint64
	live       atomic.Int64
	submitted  atomic.Int64
	completedN atomic.Int64
	cancelledN atomic.Int64
	failedN    atomic.Int64
	rebalances atomic.Int64

	info api.PoolInfo
}

var (
	_ api.Executor         = (*Pool)(nil)
	_ api.GracefulShutdown = (*Pool)(nil)
)

// New builds a pool and starts its minimum worker set and balancer.
func New(opts ...Option) (*Pool, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:      o.cfg,
		log:      o.log.Named("executor"),
		panel:    o.panel,
		places:   placement.Discover(o.cfg.NUMAAware),
		rec:      queue.NewReclaimer[task](),
		injector: queue.NewInjector[task](),
		drainCh:  make(chan struct{}),
		stopCh:   make(chan struct{}),
		allDone:  make(chan struct{}),
	}
	p.pinner = affinity.NewPinner(p.places.Topology())
	p.blocking = newBlockingPool(p)
	p.alloc = o.allocFactory(func() any { return new(task) })
	p.stealBatch.Store(int32(o.cfg.StealBatchMax))

	ws := make([]*worker, o.cfg.MaxWorkers)
	p.workers.Store(&ws)
	tids := make(map[int]*worker)
	p.tids.Store(&tids)

	p.info = api.PoolInfo{
		Name:       "bastion",
		Version:    Version,
		InstanceID: uuid.NewString(),
		StartedAt:  time.Now(),
	}

	p.panel.Config.SetConfig(o.cfg.Map())
	control.RegisterPlatformProbes(p.panel.Probes)
	p.panel.Probes.RegisterProbe("executor.stats", func() any { return p.Stats() })
	p.panel.Probes.RegisterProbe("executor.queues", func() any {
		depths := map[string]int{"injector": p.injector.Len()}
		for _, w := range p.workerSnapshot() {
			if w != nil {
				depths[fmt.Sprintf("worker.%d", w.slot)] = w.deque.Len()
			}
		}
		return depths
	})
	p.panel.OnReload(func() { p.log.Debug("dynamic config updated") })

	for slot := 0; slot < o.cfg.MinWorkers; slot++ {
		p.spawnWorker(slot)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		newBalancer(p).run()
	}()

	p.log.Info("executor started",
		zap.String("instance", p.info.InstanceID),
		zap.Int("workers", o.cfg.MinWorkers),
		zap.Int("max_workers", o.cfg.MaxWorkers),
		zap.Int("numa_nodes", p.places.NodeCount()),
		zap.Bool("pinned", o.cfg.PinWorkers))
	return p, nil
}

// Submit schedules a cooperative proc. A submit from a worker thread goes
// to that worker's own deque; everything else goes through the injector,
// with the affinity hint steering which parked worker wakes.
func (p *Pool) Submit(pr api.Proc) (api.Handle, error) {
	if pr == nil {
		return nil, fmt.Errorf("executor: %w: nil proc", api.ErrInvalidArgument)
	}
	if p.draining() {
		return nil, api.ErrExecutorClosed
	}
	id := p.nextID.Add(1)
	h := newHandle(p, id)
	t := p.borrow()
	t.reset(id, pr, h, false)

	p.live.Add(1)
	p.submitted.Add(1)

	if w := p.workerSelf(); w != nil {
		w.deque.PushBottom(t)
		p.wakeOne(-1)
		return h, nil
	}
	p.injector.Push(t)
	p.wakeOne(p.preferredFor(t.hint))
	return h, nil
}

// SubmitBlocking routes a proc straight to the blocking pool. The
// backpressure error surfaces here when the pool and its queue are full.
func (p *Pool) SubmitBlocking(pr api.Proc) (api.Handle, error) {
	if pr == nil {
		return nil, fmt.Errorf("executor: %w: nil proc", api.ErrInvalidArgument)
	}
	if p.draining() {
		return nil, api.ErrExecutorClosed
	}
	id := p.nextID.Add(1)
	h := newHandle(p, id)
	t := p.borrow()
	t.reset(id, pr, h, true)
	h.transition(api.ProcPending, api.ProcBlocking)

	p.live.Add(1)
	p.submitted.Add(1)
	if err := p.blocking.dispatch(t); err != nil {
		p.live.Add(-1)
		p.submitted.Add(-1)
		p.recycle(t)
		return nil, err
	}
	return h, nil
}

// WorkerCount returns the number of live workers.
func (p *Pool) WorkerCount() int {
	n := 0
	for _, w := range p.workerSnapshot() {
		if w != nil {
			n++
		}
	}
	return n
}

// Stats assembles a point-in-time snapshot of the pool.
func (p *Pool) Stats() api.PoolStats {
	ws := p.workerSnapshot()
	workers := make([]api.WorkerStats, 0, len(ws))
	for _, w := range ws {
		if w != nil {
			workers = append(workers, w.snapshot())
		}
	}
	return api.PoolStats{
		Workers:       workers,
		InjectorDepth: p.injector.Len(),
		ParkedWorkers: int(p.parked.Load()),
		LiveProcs:     p.live.Load(),
		Submitted:     uint64(p.submitted.Load()),
		Completed:     uint64(p.completedN.Load()),
		Cancelled:     uint64(p.cancelledN.Load()),
		Failed:        uint64(p.failedN.Load()),
		Rebalances:    uint64(p.rebalances.Load()),
		Blocking:      p.blocking.snapshot(),
		StartedAt:     p.info.StartedAt,
	}
}

// Info describes this pool instance.
func (p *Pool) Info() api.PoolInfo { return p.info }

// Panel exposes the control surface for management integrations.
func (p *Pool) Panel() *control.Panel { return p.panel }

// Config returns the construction-time configuration.
func (p *Pool) Config() config.Config { return p.cfg }

// Shutdown drains with the configured grace period.
func (p *Pool) Shutdown() error {
	return p.ShutdownWithin(p.cfg.ShutdownGrace.Std())
}

// ShutdownWithin stops intake, signals the drain, and waits until every
// live proc reached a terminal state or the grace elapsed. On timeout the
// remaining procs are abandoned and reported: their handles never settle
// and their worker threads are left to the runtime.
func (p *Pool) ShutdownWithin(grace time.Duration) error {
	if !p.state.CompareAndSwap(poolRunning, poolDraining) {
		return api.ErrExecutorClosed
	}
	p.log.Info("draining", zap.Duration("grace", grace))
	close(p.drainCh)
	p.wakeAll()
	if p.live.Load() == 0 {
		p.doneOnce.Do(func() { close(p.allDone) })
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	clean := false
	select {
	case <-p.allDone:
		clean = true
	case <-timer.C:
	}

	p.state.Store(poolStopped)
	close(p.stopCh)
	p.blocking.stop()

	if clean {
		p.wg.Wait()
		p.log.Info("drained",
			zap.Int64("completed", p.completedN.Load()),
			zap.Int64("cancelled", p.cancelledN.Load()))
		return nil
	}
	abandoned := p.live.Load()
	p.log.Warn("shutdown grace exceeded", zap.Int64("abandoned", abandoned))
	return fmt.Errorf("executor: %w: %d procs abandoned", api.ErrShutdownTimeout, abandoned)
}

func (p *Pool) draining() bool { return p.state.Load() >= poolDraining }
func (p *Pool) stopped() bool  { return p.state.Load() == poolStopped }

// onTerminal settles pool accounting for one proc; called exactly once
// per proc by the winner of its terminal transition.
func (p *Pool) onTerminal(final api.ProcState) {
	switch final {
	case api.ProcCompleted:
		p.completedN.Add(1)
	case api.ProcCancelled:
		p.cancelledN.Add(1)
	case api.ProcFailed:
		p.failedN.Add(1)
	}
	if p.live.Add(-1) == 0 && p.draining() {
		p.doneOnce.Do(func() { close(p.allDone) })
	}
}

func (p *Pool) borrow() *task {
	return p.alloc.Get().(*task)
}

func (p *Pool) recycle(t *task) {
	t.clear()
	p.alloc.Put(t)
}

// preferredFor maps an affinity hint to the placement slot whose worker
// should wake first, or -1 when there is no preference.
func (p *Pool) preferredFor(hint int) int {
	if hint == api.NoAffinity {
		return -1
	}
	if slot, ok := p.places.PreferredSlot(hint); ok {
		return slot
	}
	return -1
}

// workerSnapshot returns the current worker table. The slice is never
// mutated in place; slot i is nil while unused.
func (p *Pool) workerSnapshot() []*worker {
	return *p.workers.Load()
}

// workerSelf resolves the calling thread to its worker, or nil. Valid
// because workers lock their OS threads for their whole lifetime.
func (p *Pool) workerSelf() *worker {
	tid := curtid()
	if tid < 0 {
		return nil
	}
	return (*p.tids.Load())[tid]
}

// spawnWorker installs and starts a worker at the given slot.
func (p *Pool) spawnWorker(slot int) *worker {
	w := newWorker(p, slot, p.places.Assign(slot))
	p.mu.Lock()
	ws := *p.workers.Load()
	nws := make([]*worker, len(ws))
	copy(nws, ws)
	nws[slot] = w
	p.workers.Store(&nws)
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.run()
	}()
	return w
}

// freeSlot returns the lowest unused placement slot, or -1.
func (p *Pool) freeSlot() int {
	for i, w := range p.workerSnapshot() {
		if w == nil {
			return i
		}
	}
	return -1
}

// detachWorker clears the worker's slot once it terminated.
func (p *Pool) detachWorker(w *worker) {
	p.mu.Lock()
	ws := *p.workers.Load()
	if w.slot < len(ws) && ws[w.slot] == w {
		nws := make([]*worker, len(ws))
		copy(nws, ws)
		nws[w.slot] = nil
		p.workers.Store(&nws)
	}
	p.mu.Unlock()
}

func (p *Pool) registerTID(tid int, w *worker) {
	p.mu.Lock()
	old := *p.tids.Load()
	m := make(map[int]*worker, len(old)+1)
	for k, v := range old {
		m[k] = v
	}
	m[tid] = w
	p.tids.Store(&m)
	p.mu.Unlock()
}

func (p *Pool) unregisterTID(tid int) {
	p.mu.Lock()
	old := *p.tids.Load()
	m := make(map[int]*worker, len(old))
	for k, v := range old {
		if k != tid {
			m[k] = v
		}
	}
	p.tids.Store(&m)
	p.mu.Unlock()
}
