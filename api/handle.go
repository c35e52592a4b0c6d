// File: api/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle contract: the submitter-side view of a scheduled proc.

package api

// ProcState enumerates the lifecycle of a submitted proc.
type ProcState int32

const (
	ProcPending ProcState = iota
	ProcRunning
	ProcBlocking
	ProcCompleted
	ProcCancelled
	ProcFailed
)

func (s ProcState) String() string {
	switch s {
	case ProcPending:
		return "pending"
	case ProcRunning:
		return "running"
	case ProcBlocking:
		return "blocking"
	case ProcCompleted:
		return "completed"
	case ProcCancelled:
		return "cancelled"
	case ProcFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s ProcState) Terminal() bool {
	return s == ProcCompleted || s == ProcCancelled || s == ProcFailed
}

// Handle tracks one submitted proc.
type Handle interface {
	// ID returns the executor-assigned identifier of the proc.
	ID() uint64

	// State returns the current lifecycle state.
	State() ProcState

	// Done is closed once the proc reaches a terminal state.
	Done() <-chan struct{}

	// Err returns nil after normal completion, ErrProcCancelled after
	// cancellation, or a wrapped ErrProcPanicked if the proc panicked.
	// Only meaningful once Done is closed.
	Err() error

	// Cancel requests cancellation. A proc still queued is discarded
	// without being polled; a running proc keeps running until it observes
	// cancellation at its next yield point.
	Cancel()
}
