//go:build windows
// +build windows

// File: executor/tid_windows.go
// Author: momentics <momentics@gmail.com>
//
// Thread id of the calling thread via GetCurrentThreadId.

package executor

import "golang.org/x/sys/windows"

func curtid() int {
	return int(windows.GetCurrentThreadId())
}
