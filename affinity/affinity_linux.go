//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific implementation for setting thread CPU affinity through
// the sched_setaffinity syscall family. Pid 0 addresses the calling
// thread, which the executor keeps locked with runtime.LockOSThread.

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// setAffinityPlatform pins the calling thread to the given CPU set.
func setAffinityPlatform(cpuIDs []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cpuIDs {
		if c < 0 {
			return fmt.Errorf("affinity: negative cpu id %d", c)
		}
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity: %w", err)
	}
	return nil
}

// clearAffinityPlatform restores the full machine mask.
func clearAffinityPlatform() error {
	var set unix.CPUSet
	set.Zero()
	for c := 0; c < runtime.NumCPU(); c++ {
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity: %w", err)
	}
	return nil
}

// currentCPUPlatform reports the CPU the calling thread runs on.
func currentCPUPlatform() (int, error) {
	cpu, _, err := unix.Getcpu()
	if err != nil {
		return -1, fmt.Errorf("affinity: getcpu: %w", err)
	}
	return cpu, nil
}
