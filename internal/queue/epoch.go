// File: internal/queue/epoch.go
// Package queue provides the lock-free scheduling queues for the executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Epoch-based deferred reclamation for deque rings. Rings are recycled
// through a free list, so a ring must never be handed out again while a
// stalled stealer may still read its slots. Stealers pin the current epoch
// for the duration of a steal sweep; a retired ring becomes reusable only
// two epochs after retirement, and the epoch advances only when every
// pinned participant has caught up with it.

package queue

import (
	"sync"
	"sync/atomic"
)

// freeRingsPerClass bounds how many retired rings of one size are kept for
// reuse. Excess rings are dropped and left to the garbage collector.
const freeRingsPerClass = 4

// Pin is one participant's reclamation guard. Pin/Unpin are called by the
// participant goroutine only; IsPinned reads are done by anyone.
type Pin struct {
	// state is 0 when unpinned, (epoch<<1)|1 while pinned.
	state atomic.Uint64
	_     [cacheLinePad - 8]byte
}

func (p *Pin) pinnedEpoch() (uint64, bool) {
	s := p.state.Load()
	return s >> 1, s&1 == 1
}

// Reclaimer tracks pinned stealers and recycles retired deque rings.
// One Reclaimer is shared by all deques of a pool.
type Reclaimer[T any] struct {
	epoch atomic.Uint64
	_     [cacheLinePad - 8]byte

	// pins is copy-on-write: mutated under mu, read lock-free.
	pins atomic.Pointer[[]*Pin]

	mu    sync.Mutex
	limbo []retiredRing[T]
	free  map[int][]*ring[T]
}

type retiredRing[T any] struct {
	epoch uint64
	r     *ring[T]
}

// NewReclaimer creates an empty reclaimer with no participants.
func NewReclaimer[T any]() *Reclaimer[T] {
	rc := &Reclaimer[T]{free: make(map[int][]*ring[T])}
	empty := make([]*Pin, 0)
	rc.pins.Store(&empty)
	return rc
}

// Register adds a participant and returns its pin. Workers register once
// at startup and unregister when they terminate.
func (rc *Reclaimer[T]) Register() *Pin {
	p := &Pin{}
	rc.mu.Lock()
	old := *rc.pins.Load()
	next := make([]*Pin, len(old)+1)
	copy(next, old)
	next[len(old)] = p
	rc.pins.Store(&next)
	rc.mu.Unlock()
	return p
}

// Unregister removes a participant. The pin must be unpinned.
func (rc *Reclaimer[T]) Unregister(p *Pin) {
	rc.mu.Lock()
	old := *rc.pins.Load()
	next := make([]*Pin, 0, len(old))
	for _, q := range old {
		if q != p {
			next = append(next, q)
		}
	}
	rc.pins.Store(&next)
	rc.mu.Unlock()
}

// PinEpoch marks the participant as active in the current epoch. Deque
// buffers loaded after PinEpoch stay valid until UnpinEpoch.
func (rc *Reclaimer[T]) PinEpoch(p *Pin) {
	for {
		e := rc.epoch.Load()
		p.state.Store(e<<1 | 1)
		if rc.epoch.Load() == e {
			return
		}
		// Epoch moved between the read and the publish; repin so the
		// advance rule keeps counting this participant correctly.
	}
}

// UnpinEpoch ends the participant's critical section.
func (rc *Reclaimer[T]) UnpinEpoch(p *Pin) {
	p.state.Store(0)
}

// retire parks a ring in limbo until it is provably unreachable.
func (rc *Reclaimer[T]) retire(r *ring[T]) {
	rc.mu.Lock()
	rc.limbo = append(rc.limbo, retiredRing[T]{epoch: rc.epoch.Load(), r: r})
	rc.advanceLocked()
	rc.mu.Unlock()
}

// acquire returns a recycled ring of exactly the given size, or nil.
func (rc *Reclaimer[T]) acquire(size int) *ring[T] {
	rc.mu.Lock()
	rc.advanceLocked()
	var r *ring[T]
	if lst := rc.free[size]; len(lst) > 0 {
		r = lst[len(lst)-1]
		rc.free[size] = lst[:len(lst)-1]
	}
	rc.mu.Unlock()
	return r
}

// advanceLocked bumps the epoch when no participant is pinned behind it,
// then moves rings whose retirement epoch is two behind into the free list.
// Caller holds mu.
func (rc *Reclaimer[T]) advanceLocked() {
	e := rc.epoch.Load()
	for _, p := range *rc.pins.Load() {
		if pe, pinned := p.pinnedEpoch(); pinned && pe != e {
			return
		}
	}
	rc.epoch.Store(e + 1)

	kept := rc.limbo[:0]
	for _, rr := range rc.limbo {
		if e+1 >= rr.epoch+2 {
			lst := rc.free[len(rr.r.slots)]
			if len(lst) < freeRingsPerClass {
				rc.free[len(rr.r.slots)] = append(lst, rr.r)
			}
			continue
		}
		kept = append(kept, rr)
	}
	rc.limbo = kept
}

// Collect forces reclamation rounds until limbo is empty or a pinned
// participant blocks progress. The balancer runs it on every tick, so
// rings left over after a growth burst do not wait for the next retire.
func (rc *Reclaimer[T]) Collect() {
	rc.mu.Lock()
	for i := 0; i < 3 && len(rc.limbo) > 0; i++ {
		before := rc.epoch.Load()
		rc.advanceLocked()
		if rc.epoch.Load() == before {
			break
		}
	}
	rc.mu.Unlock()
}

// Epoch returns the current global epoch. Diagnostics only.
func (rc *Reclaimer[T]) Epoch() uint64 { return rc.epoch.Load() }

// LimboLen returns the number of rings awaiting reclamation.
func (rc *Reclaimer[T]) LimboLen() int {
	rc.mu.Lock()
	n := len(rc.limbo)
	rc.mu.Unlock()
	return n
}
