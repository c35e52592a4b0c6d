// File: internal/queue/injector.go
// Package queue provides the lock-free scheduling queues for the executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Injector is the global MPMC overflow queue: a linked chain of fixed-size
// segments. Cells inside a segment are claimed by monotonic counters and
// are never reused, so drained segments are reclaimed by the garbage
// collector with no epoch protocol. Rough FIFO arrival order is preserved
// across the chain.

package queue

import (
	"runtime"
	"sync/atomic"
)

// segmentSize is the cell count per injector segment.
const segmentSize = 256

type segCell[T any] struct {
	ready atomic.Uint32
	item  *T
}

type segment[T any] struct {
	enq   atomic.Int64
	_     [cacheLinePad - 8]byte
	deq   atomic.Int64
	_     [cacheLinePad - 8]byte
	next  atomic.Pointer[segment[T]]
	cells [segmentSize]segCell[T]
}

// Injector is an unbounded MPMC queue for submissions that cannot take a
// local fast path, plus procs displaced by rebalancing and retirement.
type Injector[T any] struct {
	head   atomic.Pointer[segment[T]]
	_      [cacheLinePad - 8]byte
	tail   atomic.Pointer[segment[T]]
	_      [cacheLinePad - 8]byte
	length atomic.Int64
}

// NewInjector creates an empty injector.
func NewInjector[T any]() *Injector[T] {
	s := &segment[T]{}
	inj := &Injector[T]{}
	inj.head.Store(s)
	inj.tail.Store(s)
	return inj
}

// Push appends an item. Safe for any number of producers; never blocks
// and never fails, growing the chain on overflow.
func (inj *Injector[T]) Push(item *T) {
	for {
		tl := inj.tail.Load()
		i := tl.enq.Add(1) - 1
		if i < segmentSize {
			c := &tl.cells[i]
			c.item = item
			c.ready.Store(1)
			inj.length.Add(1)
			return
		}
		// Segment exhausted: link a fresh one and move the tail. Both
		// CASes may lose to a peer; either way the retry sees progress.
		if tl.next.Load() == nil {
			tl.next.CompareAndSwap(nil, &segment[T]{})
		}
		if nx := tl.next.Load(); nx != nil {
			inj.tail.CompareAndSwap(tl, nx)
		}
	}
}

// Pop removes the oldest visible item. Safe for any number of consumers.
// A false return means the injector is empty (in-flight pushes that have
// claimed a cell but not yet published it are treated as not arrived).
func (inj *Injector[T]) Pop() (*T, bool) {
	for {
		hd := inj.head.Load()
		for {
			d := hd.deq.Load()
			if d >= segmentSize {
				break // segment fully consumed, advance below
			}
			e := hd.enq.Load()
			if e > segmentSize {
				e = segmentSize
			}
			if d >= e {
				return nil, false
			}
			if !hd.deq.CompareAndSwap(d, d+1) {
				continue
			}
			c := &hd.cells[d]
			// The producer claimed this cell before us; its publish is
			// at most a few stores away.
			for c.ready.Load() == 0 {
				runtime.Gosched()
			}
			item := c.item
			c.item = nil
			inj.length.Add(-1)
			return item, true
		}
		nx := hd.next.Load()
		if nx == nil {
			return nil, false
		}
		inj.head.CompareAndSwap(hd, nx)
	}
}

// PopBatchInto pops up to max items: the first is returned for immediate
// execution, the rest go onto dst, which the caller must own.
func (inj *Injector[T]) PopBatchInto(dst *Deque[T], max int) (*T, int) {
	var first *T
	moved := 0
	for moved < max {
		item, ok := inj.Pop()
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

// Len reports the current depth. Racy; for balancing and stats only.
func (inj *Injector[T]) Len() int {
	n := inj.length.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
