// Package pool
// Author: momentics <momentics@gmail.com>
//
// Object pooling layer for the bastion executor. Provides the default
// allocator behind api.ObjectPool, used to recycle per-proc bookkeeping
// records on the submit path. Applications may substitute a NUMA-local
// or arena allocator through the executor options.
package pool
