// File: placement/placement.go
// Package placement maps worker slots onto CPUs and NUMA nodes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The table is computed once from the discovered topology and never
// mutated, so slot assignment is a pure lookup: the same slot index
// always lands on the same CPU and node for the lifetime of a pool.
// Slots interleave across nodes so that a growing worker set spreads
// over the machine instead of filling one node first.

package placement

import (
	"github.com/prettynatty/bastion/internal/topology"
)

// Slot is one placement target.
type Slot struct {
	Index    int
	NUMANode int
	CPU      int
}

// Table is the immutable slot layout of one executor pool.
type Table struct {
	topo  *topology.Map
	slots []Slot
}

// Discover builds the table for this machine. It is the entry point for
// callers outside the module; the executor shares one topology snapshot
// across its subsystems and uses NewTable directly.
func Discover(numaAware bool) *Table {
	return NewTable(topology.Discover(numaAware))
}

// NewTable computes the node-interleaved slot ordering over a topology.
// With nodes A{0,1} and B{8,9} the order is A0, B8, A1, B9.
func NewTable(topo *topology.Map) *Table {
	t := &Table{topo: topo}
	maxPerNode := 0
	for _, nd := range topo.Nodes {
		if len(nd.CPUs) > maxPerNode {
			maxPerNode = len(nd.CPUs)
		}
	}
	for rank := 0; rank < maxPerNode; rank++ {
		for _, nd := range topo.Nodes {
			if rank < len(nd.CPUs) {
				t.slots = append(t.slots, Slot{
					Index:    len(t.slots),
					NUMANode: nd.ID,
					CPU:      nd.CPUs[rank],
				})
			}
		}
	}
	return t
}

// Assign returns the slot for a worker index. Indices beyond the table
// wrap around, so oversubscribed pools reuse CPUs deterministically.
func (t *Table) Assign(i int) Slot {
	s := t.slots[i%len(t.slots)]
	s.Index = i
	return s
}

// PreferredSlot returns the first slot index resident on the given node.
// ok is false when the node does not exist in the topology.
func (t *Table) PreferredSlot(node int) (int, bool) {
	for _, s := range t.slots {
		if s.NUMANode == node {
			return s.Index, true
		}
	}
	return 0, false
}

// Len returns the number of distinct slots before wrap-around.
func (t *Table) Len() int { return len(t.slots) }

// NodeCount returns the number of NUMA nodes behind the table.
func (t *Table) NodeCount() int { return t.topo.NodeCount() }

// Topology exposes the underlying topology snapshot.
func (t *Table) Topology() *topology.Map { return t.topo }
