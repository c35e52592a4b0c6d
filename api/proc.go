// File: api/proc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Proc contract: the unit of schedulable work driven by executor workers.

package api

// NoAffinity is the AffinityHint value of a proc with no NUMA preference.
const NoAffinity = -1

// PollResult reports what a proc did during one cooperative poll.
type PollResult int

const (
	// PollYielded means the proc ran a bounded step and wants to run again.
	PollYielded PollResult = iota
	// PollCompleted means the proc finished and must not be polled again.
	PollCompleted
	// PollBlockingRequested means the proc is about to perform a blocking
	// operation and must be moved off the cooperative workers.
	PollBlockingRequested
)

func (r PollResult) String() string {
	switch r {
	case PollYielded:
		return "yielded"
	case PollCompleted:
		return "completed"
	case PollBlockingRequested:
		return "blocking-requested"
	default:
		return "unknown"
	}
}

// Proc is a cooperatively scheduled unit of work.
//
// PollOnce runs one bounded step. Workers call it repeatedly until it
// returns PollCompleted; a proc that returns PollYielded is requeued and
// polled again later, possibly on a different worker after a steal.
// PollOnce must never block: blocking work belongs on the blocking pool,
// reached either via Executor.SubmitBlocking or by returning
// PollBlockingRequested mid-flight.
type Proc interface {
	// PollOnce advances the proc by one step.
	PollOnce() PollResult

	// AffinityHint returns the preferred NUMA node, or NoAffinity.
	// The hint biases initial routing only; stealing may still move the
	// proc anywhere.
	AffinityHint() int

	// IsCancelled reports whether the proc observed its own cancellation.
	// The executor consults it before polling and discards cancelled procs.
	IsCancelled() bool
}
