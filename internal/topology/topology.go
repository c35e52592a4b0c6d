// File: internal/topology/topology.go
// Package topology discovers the machine's NUMA layout for placement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral API. Discovery is implemented per platform in separate
// files guarded by build tags; on platforms without NUMA visibility the
// whole machine is reported as a single node so every caller can treat
// the map as always valid.

package topology

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Node is one NUMA node and the logical CPUs resident on it.
type Node struct {
	ID   int
	CPUs []int
}

// Map is an immutable snapshot of the machine topology.
type Map struct {
	Nodes []Node
	byCPU map[int]int
}

// Discover returns the machine topology. With numaAware false, or when
// the platform exposes no NUMA information, it returns a flat single-node
// map covering all logical CPUs. Discover never fails.
func Discover(numaAware bool) *Map {
	if numaAware {
		if m, err := discoverPlatform(); err == nil && len(m.Nodes) > 0 {
			return m
		}
	}
	return flatMap()
}

// New builds a Map from explicit nodes. Used for synthetic topologies in
// tests and for config-supplied overrides.
func New(nodes []Node) *Map {
	return build(nodes)
}

// flatMap reports the whole machine as node 0.
func flatMap() *Map {
	n := runtime.NumCPU()
	cpus := make([]int, n)
	for i := range cpus {
		cpus[i] = i
	}
	return build([]Node{{ID: 0, CPUs: cpus}})
}

// build normalizes node order and indexes the CPU-to-node relation.
func build(nodes []Node) *Map {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	m := &Map{Nodes: nodes, byCPU: make(map[int]int)}
	for _, nd := range nodes {
		sort.Ints(nd.CPUs)
		for _, c := range nd.CPUs {
			m.byCPU[c] = nd.ID
		}
	}
	return m
}

// NodeCount returns the number of NUMA nodes.
func (m *Map) NodeCount() int { return len(m.Nodes) }

// CPUCount returns the number of logical CPUs across all nodes.
func (m *Map) CPUCount() int { return len(m.byCPU) }

// NodeOf returns the node of a CPU, or -1 when the CPU is unknown.
func (m *Map) NodeOf(cpu int) int {
	if id, ok := m.byCPU[cpu]; ok {
		return id
	}
	return -1
}

// CPUsOf returns the CPUs of a node, or nil when the node is unknown.
func (m *Map) CPUsOf(node int) []int {
	for _, nd := range m.Nodes {
		if nd.ID == node {
			return nd.CPUs
		}
	}
	return nil
}

// parseCPUList parses the sysfs list format, e.g. "0-3,8,10-11".
func parseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var cpus []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, found := strings.Cut(part, "-"); found {
			a, err := strconv.Atoi(lo)
			if err != nil {
				return nil, fmt.Errorf("topology: bad cpu range %q: %w", part, err)
			}
			b, err := strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("topology: bad cpu range %q: %w", part, err)
			}
			if b < a {
				return nil, fmt.Errorf("topology: inverted cpu range %q", part)
			}
			for c := a; c <= b; c++ {
				cpus = append(cpus, c)
			}
			continue
		}
		c, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("topology: bad cpu id %q: %w", part, err)
		}
		cpus = append(cpus, c)
	}
	return cpus, nil
}
