// File: executor/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import "sync"

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the process-wide pool, built on first use from the
// default configuration. Explicit construction through New remains the
// primary API; Default exists for programs that want exactly one pool
// without plumbing it around.
func Default() *Pool {
	defaultOnce.Do(func() {
		p, err := New()
		if err != nil {
			// Default configuration always validates.
			panic(err)
		}
		defaultPool = p
	})
	return defaultPool
}
