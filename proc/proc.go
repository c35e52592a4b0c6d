// File: proc/proc.go
// Package proc offers ready-made Proc implementations for common shapes
// of work: one-shot functions, stepwise cooperative loops, and blocking
// calls routed off the cooperative workers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proc

import (
	"sync/atomic"

	"github.com/prettynatty/bastion/api"
)

// base carries the shared hint and cancellation flag.
type base struct {
	hint      int
	cancelled atomic.Bool
}

func (b *base) AffinityHint() int { return b.hint }

// IsCancelled reports whether Cancel has been called on the proc itself.
func (b *base) IsCancelled() bool { return b.cancelled.Load() }

// Cancel marks the proc cancelled. A queued proc is discarded before its
// next poll; a running proc stops at its next yield point.
func (b *base) Cancel() { b.cancelled.Store(true) }

// FuncProc completes in a single poll.
type FuncProc struct {
	base
	fn func()
}

var _ api.Proc = (*FuncProc)(nil)

// Func wraps a function as a one-shot proc.
func Func(fn func()) *FuncProc {
	return &FuncProc{base: base{hint: api.NoAffinity}, fn: fn}
}

func (p *FuncProc) PollOnce() api.PollResult {
	p.fn()
	return api.PollCompleted
}

// StepProc runs a bounded step per poll and yields between steps, so long
// work shares its worker with the rest of the pool.
type StepProc struct {
	base
	n    int
	i    int
	step func(i int)
}

var _ api.Proc = (*StepProc)(nil)

// Steps builds a proc that calls step(0..n-1), one call per poll.
func Steps(n int, step func(i int)) *StepProc {
	return &StepProc{base: base{hint: api.NoAffinity}, n: n, step: step}
}

func (p *StepProc) PollOnce() api.PollResult {
	if p.i >= p.n {
		return api.PollCompleted
	}
	p.step(p.i)
	p.i++
	if p.i >= p.n {
		return api.PollCompleted
	}
	return api.PollYielded
}

// BlockingProc announces a blocking section on its first poll so the
// worker can reroute it; the blocking pool then runs the call itself.
type BlockingProc struct {
	base
	fn        func()
	requested bool
}

var _ api.Proc = (*BlockingProc)(nil)

// Blocking wraps a blocking function. Submitted cooperatively it asks for
// rerouting first; submitted via SubmitBlocking it runs directly.
func Blocking(fn func()) *BlockingProc {
	return &BlockingProc{base: base{hint: api.NoAffinity}, fn: fn}
}

func (p *BlockingProc) PollOnce() api.PollResult {
	if !p.requested {
		p.requested = true
		return api.PollBlockingRequested
	}
	p.fn()
	return api.PollCompleted
}

// affinityProc overrides the hint of any proc.
type affinityProc struct {
	api.Proc
	hint int
}

// WithAffinity returns p with its affinity hint replaced by a NUMA node.
// The hint biases initial placement only.
func WithAffinity(p api.Proc, node int) api.Proc {
	return &affinityProc{Proc: p, hint: node}
}

func (p *affinityProc) AffinityHint() int { return p.hint }
