// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// WorkerState enumerates the scheduling state of one executor worker.
type WorkerState int32

const (
	WorkerUnknown WorkerState = iota
	WorkerSearching
	WorkerRunning
	WorkerParked
	WorkerDraining
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerSearching:
		return "searching"
	case WorkerRunning:
		return "running"
	case WorkerParked:
		return "parked"
	case WorkerDraining:
		return "draining"
	case WorkerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// WorkerStats is a point-in-time snapshot of one worker.
type WorkerStats struct {
	Slot       int
	NUMANode   int
	CPU        int
	State      WorkerState
	QueueDepth int
	Popped     uint64 // procs taken from the own deque
	Stolen     uint64 // procs obtained from victims or the injector
	Completed  uint64
}

// BlockingPoolStats is a point-in-time snapshot of the blocking pool.
type BlockingPoolStats struct {
	Threads   int
	Idle      int
	Pending   int
	Spawned   uint64
	Completed uint64
	Rejected  uint64
}

// PoolStats provides a standard layout for executor health reporting.
type PoolStats struct {
	Workers       []WorkerStats
	InjectorDepth int
	ParkedWorkers int
	LiveProcs     int64
	Submitted     uint64
	Completed     uint64
	Cancelled     uint64
	Failed        uint64
	Rebalances    uint64
	Blocking      BlockingPoolStats
	StartedAt     time.Time
}

// PoolInfo exposes descriptive build- and runtime info for external tools.
type PoolInfo struct {
	Name       string
	Version    string
	InstanceID string
	StartedAt  time.Time
}
