//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.
// Returns errors to indicate unavailability; the executor degrades to
// unpinned workers.

package affinity

import (
	"fmt"

	"github.com/prettynatty/bastion/api"
)

var errUnsupported = fmt.Errorf("affinity: %w on this platform", api.ErrNotSupported)

func setAffinityPlatform(cpuIDs []int) error { return errUnsupported }

func clearAffinityPlatform() error { return errUnsupported }

func currentCPUPlatform() (int, error) { return -1, errUnsupported }
