// File: executor/sleepers.go
// Author: momentics <momentics@gmail.com>
//
// Park and wake bookkeeping. A parked worker is woken by flipping its
// state back to Searching first and only then handing it a token, so a
// wake is never lost and never duplicated: the CAS on the worker state
// decides exactly one winner, whether that is a submitter, the balancer,
// or the worker itself rechecking before it blocks.

package executor

import "github.com/prettynatty/bastion/api"

// wakeOne releases one parked worker, preferring the given slot when a
// placement hint points there. Returns true when a worker was flipped to
// Searching. A -1 preference scans from slot zero.
func (p *Pool) wakeOne(preferred int) bool {
	if p.parked.Load() == 0 {
		return false
	}
	ws := p.workerSnapshot()
	n := len(ws)
	if n == 0 {
		return false
	}
	start := 0
	if preferred >= 0 && preferred < n {
		start = preferred
	}
	for i := 0; i < n; i++ {
		if w := ws[(start+i)%n]; w != nil && w.wake() {
			return true
		}
	}
	return false
}

// wakeAll flips every parked worker back to Searching. Used when the pool
// starts draining so that no worker sleeps through shutdown.
func (p *Pool) wakeAll() {
	for _, w := range p.workerSnapshot() {
		if w != nil {
			w.wake()
		}
	}
}

// wake moves a parked worker to Searching and hands it the run token.
// The count is adjusted by whoever wins the state flip.
func (w *worker) wake() bool {
	if !w.setState(api.WorkerParked, api.WorkerSearching) {
		return false
	}
	w.pool.parked.Add(-1)
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
	return true
}
