//go:build linux
// +build linux

// File: executor/tid_linux.go
// Author: momentics <momentics@gmail.com>
//
// Kernel thread id of the calling thread. Workers lock their goroutine
// to an OS thread, so the tid uniquely identifies a worker for as long
// as the worker runs.

package executor

import "golang.org/x/sys/unix"

func curtid() int {
	return unix.Gettid()
}
