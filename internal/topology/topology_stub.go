//go:build !linux
// +build !linux

// File: internal/topology/topology_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub for platforms without sysfs NUMA visibility. Callers fall back to
// the flat single-node map.

package topology

import "errors"

func discoverPlatform() (*Map, error) {
	return nil, errors.New("topology: NUMA discovery not supported on this platform")
}
