//go:build !linux && !windows
// +build !linux,!windows

// File: executor/tid_stub.go
// Author: momentics <momentics@gmail.com>
//
// Platforms without a cheap thread id. The submit fast path degrades to
// the shared injector, which stays correct, just less local.

package executor

func curtid() int {
	return -1
}
