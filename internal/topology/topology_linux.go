//go:build linux
// +build linux

// File: internal/topology/topology_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux NUMA discovery through sysfs. Each node directory publishes a
// cpulist file in the kernel's list format.

package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const sysNodeDir = "/sys/devices/system/node"

// discoverPlatform reads the sysfs node tree.
func discoverPlatform() (*Map, error) {
	entries, err := os.ReadDir(sysNodeDir)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	var nodes []Node
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(sysNodeDir, name, "cpulist"))
		if err != nil {
			continue
		}
		cpus, err := parseCPUList(string(raw))
		if err != nil || len(cpus) == 0 {
			continue
		}
		nodes = append(nodes, Node{ID: id, CPUs: cpus})
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("topology: no populated nodes under %s", sysNodeDir)
	}
	return build(nodes), nil
}
