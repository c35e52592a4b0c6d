// File: executor/balancer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Load balancer: the single control-loop writer of the worker set. Each
// tick it re-reads the dynamic knobs, samples queue depths, grows or
// retires at most one worker, displaces one outlier queue through the
// injector, and publishes the sampled state to the metrics registry.

package executor

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/internal/queue"
)

type balancer struct {
	pool *Pool
	log  *zap.Logger
	pin  *queue.Pin
}

func newBalancer(p *Pool) *balancer {
	return &balancer{pool: p, log: p.log.Named("balancer")}
}

func (b *balancer) run() {
	b.pin = b.pool.rec.Register()
	defer b.pool.rec.Unregister(b.pin)

	interval := b.pool.panel.Config.GetDuration("balancer_tick_interval", b.pool.cfg.BalancerTickInterval.Std())
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-b.pool.drainCh:
			return
		case <-tick.C:
			b.tick(time.Now())
			if ni := b.pool.panel.Config.GetDuration("balancer_tick_interval", interval); ni > 0 && ni != interval {
				interval = ni
				tick.Reset(ni)
			}
		}
	}
}

func (b *balancer) tick(now time.Time) {
	p := b.pool

	// Dynamic knobs take effect here; workers read the mirrored atomics.
	stealMax := p.panel.Config.GetInt("steal_batch_max", p.cfg.StealBatchMax)
	if stealMax > 0 {
		p.stealBatch.Store(int32(stealMax))
	}
	highWater := p.panel.Config.GetInt("queue_high_watermark", p.cfg.QueueHighWatermark)
	idleTimeout := p.panel.Config.GetDuration("worker_idle_timeout", p.cfg.WorkerIdleTimeout.Std())

	ws := p.workerSnapshot()
	live := 0
	retiring := 0
	localDepth := 0
	depths := make([]int, 0, len(ws))
	for _, w := range ws {
		if w == nil {
			continue
		}
		live++
		if w.retire.Load() {
			retiring++
		}
		d := w.deque.Len()
		localDepth += d
		depths = append(depths, d)
	}
	parked := int(p.parked.Load())
	injDepth := p.injector.Len()

	mean := 0
	if live > 0 {
		mean = localDepth / live
	}

	// Scale up: wake the idle capacity first, grow only when none is left.
	if mean > highWater || injDepth > highWater {
		if parked > 0 {
			p.wakeOne(-1)
		} else if live < p.cfg.MaxWorkers {
			if slot := p.freeSlot(); slot >= 0 {
				p.spawnWorker(slot)
				b.log.Info("worker added",
					zap.Int("slot", slot),
					zap.Int("mean_depth", mean),
					zap.Int("injector_depth", injDepth))
			}
		}
	}

	// Scale down: retire the longest-parked worker past the idle timeout.
	// Workers already retiring still count as live here, so the floor
	// holds even while their teardown is in flight.
	if live-retiring > p.cfg.MinWorkers {
		if w := b.idleCandidate(ws, now, idleTimeout); w != nil {
			w.retire.Store(true)
			w.wake()
			b.log.Info("worker retiring", zap.Int("slot", w.slot))
		}
	}

	// Displace one outlier queue into the injector so the load spreads
	// without touching the owner side of any deque.
	if med := median(depths); live > 1 {
		for _, w := range ws {
			if w == nil {
				continue
			}
			d := w.deque.Len()
			if d < 4 || d <= 2*med {
				continue
			}
			if moved := b.displace(w, min(stealMax, d/2)); moved > 0 {
				p.rebalances.Add(1)
				p.wakeOne(-1)
				b.log.Debug("queue rebalanced",
					zap.Int("slot", w.slot),
					zap.Int("moved", moved),
					zap.Int("depth", d),
					zap.Int("median", med))
			}
			break
		}
	}

	m := p.panel.Metrics
	m.Set("executor.live_workers", live)
	m.Set("executor.parked_workers", parked)
	m.Set("executor.local_depth", localDepth)
	m.Set("executor.injector_depth", injDepth)
	m.Set("executor.live_procs", p.live.Load())
	m.Set("executor.submitted", p.submitted.Load())
	m.Set("executor.completed", p.completedN.Load())
	m.Set("executor.cancelled", p.cancelledN.Load())
	m.Set("executor.failed", p.failedN.Load())
	m.Set("executor.rebalances", p.rebalances.Load())
	bs := p.blocking.snapshot()
	m.Set("executor.blocking_threads", bs.Threads)
	m.Set("executor.blocking_pending", bs.Pending)

	// Deque rings retired during a growth burst wait out their epochs
	// here; retire and acquire alone stop advancing once growth stops.
	p.rec.Collect()
}

// idleCandidate returns the longest-parked worker beyond the idle
// timeout, or nil.
func (b *balancer) idleCandidate(ws []*worker, now time.Time, idle time.Duration) *worker {
	var cand *worker
	var candAt int64
	for _, w := range ws {
		if w == nil || w.retire.Load() {
			continue
		}
		if api.WorkerState(w.state.Load()) != api.WorkerParked {
			continue
		}
		at := w.parkedAt.Load()
		if now.UnixNano()-at < int64(idle) {
			continue
		}
		if cand == nil || at < candAt {
			cand, candAt = w, at
		}
	}
	return cand
}

// displace steals up to n procs from the victim's old end into the
// injector. Runs on the balancer goroutine under its own epoch pin.
func (b *balancer) displace(v *worker, n int) int {
	if n < 1 {
		return 0
	}
	b.pool.rec.PinEpoch(b.pin)
	defer b.pool.rec.UnpinEpoch(b.pin)
	moved := 0
	for moved < n {
		t, ok := v.deque.Steal()
		if !ok {
			break
		}
		b.pool.injector.Push(t)
		moved++
	}
	return moved
}

// median takes the lower middle so that a lone deep queue among mostly
// empty ones still reads as an outlier.
func median(depths []int) int {
	if len(depths) == 0 {
		return 0
	}
	sort.Ints(depths)
	return depths[(len(depths)-1)/2]
}
