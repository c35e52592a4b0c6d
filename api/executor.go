// Package api
// Author: momentics
//
// Executor contract for proc scheduling across pinned OS-thread workers.

package api

// Executor schedules procs onto a NUMA-aware work-stealing worker set.
type Executor interface {
	// Submit schedules a cooperative proc for execution.
	Submit(p Proc) (Handle, error)

	// SubmitBlocking routes a proc directly to the blocking pool so it
	// never occupies a cooperative worker.
	SubmitBlocking(p Proc) (Handle, error)

	// WorkerCount returns the current number of live workers.
	WorkerCount() int

	// Stats returns a point-in-time snapshot of executor state.
	Stats() PoolStats
}
