// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract pooling API: allocator capability for object reuse.

package api

// ObjectPool provides generic pooling of Go objects allocated transiently.
// The executor allocates its per-proc bookkeeping through this capability,
// so an application may substitute an arena or a NUMA-local allocator.
type ObjectPool[T any] interface {
	// Get returns an available instance from pool
	Get() T

	// Put returns an instance for reuse
	Put(obj T)
}
