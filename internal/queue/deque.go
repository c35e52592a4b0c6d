// File: internal/queue/deque.go
// Package queue provides the lock-free scheduling queues for the executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Chase-Lev work-stealing deque. The owning worker pushes and pops at the
// bottom (LIFO); stealers take from the top (FIFO) with a CAS per element.
// The element array is a power-of-two ring that grows on overflow; replaced
// rings go through the epoch reclaimer before they are reused, so a stealer
// that loaded the old ring never observes recycled slots.

package queue

import "sync/atomic"

const cacheLinePad = 64

// ring is the backing store of a deque. Indices are taken modulo the size,
// so a logical index keeps addressing the same slot until the ring grows.
type ring[T any] struct {
	mask  int64
	slots []atomic.Pointer[T]
}

func newRing[T any](size int64) *ring[T] {
	return &ring[T]{
		mask:  size - 1,
		slots: make([]atomic.Pointer[T], size),
	}
}

func (r *ring[T]) load(i int64) *T     { return r.slots[i&r.mask].Load() }
func (r *ring[T]) store(i int64, v *T) { r.slots[i&r.mask].Store(v) }

// Deque is a single-owner, multi-stealer scheduling queue.
//
// PushBottom and PopBottom may be called only by the owning worker.
// Steal and StealBatchInto may be called by any goroutine holding a
// reclaimer pin.
type Deque[T any] struct {
	top    atomic.Int64
	_      [cacheLinePad - 8]byte
	bottom atomic.Int64
	_      [cacheLinePad - 8]byte
	buf    atomic.Pointer[ring[T]]
	rec    *Reclaimer[T]
}

// NewDeque creates a deque with the given initial capacity, rounded up to
// a power of two. All deques of one pool share the reclaimer.
func NewDeque[T any](capacity int, rec *Reclaimer[T]) *Deque[T] {
	size := int64(2)
	for size < int64(capacity) {
		size <<= 1
	}
	d := &Deque[T]{rec: rec}
	d.buf.Store(newRing[T](size))
	return d
}

// PushBottom appends an item at the owner end. Owner only.
func (d *Deque[T]) PushBottom(item *T) {
	b := d.bottom.Load()
	t := d.top.Load()
	r := d.buf.Load()
	if b-t >= int64(len(r.slots)) {
		r = d.grow(r, t, b)
	}
	r.store(b, item)
	d.bottom.Store(b + 1)
}

// grow replaces the ring with one twice as large, copying the live range.
// The old ring is retired, not freed: a pinned stealer may still read it.
func (d *Deque[T]) grow(old *ring[T], t, b int64) *ring[T] {
	size := int64(len(old.slots)) * 2
	r := d.rec.acquire(int(size))
	if r == nil {
		r = newRing[T](size)
	}
	for i := t; i < b; i++ {
		r.store(i, old.load(i))
	}
	d.buf.Store(r)
	d.rec.retire(old)
	return r
}

// PopBottom removes the most recently pushed item. Owner only.
// On the last element it races stealers through a CAS on top, so an item
// is delivered to exactly one side.
func (d *Deque[T]) PopBottom() (*T, bool) {
	b := d.bottom.Load() - 1
	r := d.buf.Load()
	d.bottom.Store(b)
	t := d.top.Load()
	if t > b {
		// Deque was empty; restore the canonical form top == bottom.
		d.bottom.Store(t)
		return nil, false
	}
	item := r.load(b)
	if t == b {
		// Last element: win it against concurrent stealers or lose it.
		won := d.top.CompareAndSwap(t, t+1)
		d.bottom.Store(b + 1)
		if !won {
			return nil, false
		}
		return item, true
	}
	return item, true
}

// Steal removes the oldest item on behalf of another worker. The caller
// must hold a reclaimer pin. A false return means empty or a lost race;
// callers treat both as a miss and move to the next victim.
func (d *Deque[T]) Steal() (*T, bool) {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return nil, false
	}
	r := d.buf.Load()
	item := r.load(t)
	// The slot must be read before the CAS: once top advances, the owner
	// may recycle the logical index on a future wraparound.
	if !d.top.CompareAndSwap(t, t+1) {
		return nil, false
	}
	return item, true
}

// StealBatchInto steals up to max items: the first is returned for
// immediate execution, the rest are pushed onto dst. The caller must own
// dst and hold a reclaimer pin. Each element transfers through its own
// CAS, so no item is ever visible to both a stealer and the owner's pop.
func (d *Deque[T]) StealBatchInto(dst *Deque[T], max int) (*T, int) {
	var first *T
	moved := 0
	for moved < max {
		item, ok := d.Steal()
		if !ok {
			break
		}
		if first == nil {
			first = item
		} else {
			dst.PushBottom(item)
		}
		moved++
	}
	return first, moved
}

// Len reports the current depth. Racy by nature; used for balancing and
// stats, never for correctness.
func (d *Deque[T]) Len() int {
	b := d.bottom.Load()
	t := d.top.Load()
	if b < t {
		return 0
	}
	return int(b - t)
}

// Cap returns the current ring capacity.
func (d *Deque[T]) Cap() int {
	return len(d.buf.Load().slots)
}
