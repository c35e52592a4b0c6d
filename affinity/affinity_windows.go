//go:build windows
// +build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows-specific implementation for setting thread CPU affinity.
// Limited to the first 64 logical processors of the current group.

package affinity

import (
	"fmt"
	"runtime"
	"syscall"
)

var (
	kernel32                      = syscall.NewLazyDLL("kernel32.dll")
	procSetThreadAffinityMask     = kernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread          = kernel32.NewProc("GetCurrentThread")
	procGetCurrentProcessorNumber = kernel32.NewProc("GetCurrentProcessorNumber")
)

func setThreadMask(mask uintptr) error {
	hThread, _, _ := procGetCurrentThread.Call()
	ret, _, err := procSetThreadAffinityMask.Call(hThread, mask)
	if ret == 0 {
		return fmt.Errorf("affinity: SetThreadAffinityMask: %w", err)
	}
	return nil
}

// setAffinityPlatform pins the calling thread to the given CPU set.
func setAffinityPlatform(cpuIDs []int) error {
	var mask uintptr
	for _, c := range cpuIDs {
		if c < 0 || c >= 64 {
			return fmt.Errorf("affinity: cpu id %d out of mask range", c)
		}
		mask |= uintptr(1) << uint(c)
	}
	return setThreadMask(mask)
}

// clearAffinityPlatform restores the full machine mask.
func clearAffinityPlatform() error {
	n := runtime.NumCPU()
	if n > 64 {
		n = 64
	}
	var mask uintptr
	for c := 0; c < n; c++ {
		mask |= uintptr(1) << uint(c)
	}
	return setThreadMask(mask)
}

// currentCPUPlatform reports the CPU the calling thread runs on.
func currentCPUPlatform() (int, error) {
	cpu, _, _ := procGetCurrentProcessorNumber.Call()
	return int(cpu), nil
}
