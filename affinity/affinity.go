// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_windows.go, etc.) guarded by build tags.

package affinity

import (
	"fmt"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/internal/topology"
)

// SetAffinity pins the current OS thread to a given logical CPU/core on
// supported platforms. On unsupported platforms returns an error.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform([]int{cpuID})
}

// SetAffinitySet pins the current OS thread to a set of CPUs, typically
// all CPUs of one NUMA node.
func SetAffinitySet(cpuIDs []int) error {
	if len(cpuIDs) == 0 {
		return fmt.Errorf("affinity: empty cpu set: %w", api.ErrInvalidArgument)
	}
	return setAffinityPlatform(cpuIDs)
}

// ClearAffinity makes the current OS thread runnable on every CPU again.
func ClearAffinity() error {
	return clearAffinityPlatform()
}

// CurrentCPU reports the CPU the calling thread is executing on.
func CurrentCPU() (int, error) {
	return currentCPUPlatform()
}

// Pinner implements api.Affinity on top of the platform shims, resolving
// NUMA node pins through the discovered topology.
type Pinner struct {
	topo *topology.Map
}

var _ api.Affinity = (*Pinner)(nil)

// NewPinner creates a Pinner over a topology snapshot.
func NewPinner(topo *topology.Map) *Pinner {
	return &Pinner{topo: topo}
}

// Pin locks the calling OS thread to a CPU when cpuID >= 0, otherwise to
// all CPUs of numaID. The caller must already hold runtime.LockOSThread.
func (p *Pinner) Pin(cpuID int, numaID int) error {
	if cpuID >= 0 {
		return SetAffinity(cpuID)
	}
	if numaID >= 0 {
		cpus := p.topo.CPUsOf(numaID)
		if len(cpus) == 0 {
			return fmt.Errorf("affinity: unknown NUMA node %d: %w", numaID, api.ErrInvalidArgument)
		}
		return SetAffinitySet(cpus)
	}
	return fmt.Errorf("affinity: no cpu or node given: %w", api.ErrInvalidArgument)
}

// Unpin removes affinity.
func (p *Pinner) Unpin() error {
	return ClearAffinity()
}

// Get returns current CPU and NUMA node.
func (p *Pinner) Get() (int, int, error) {
	cpu, err := currentCPUPlatform()
	if err != nil {
		return -1, -1, err
	}
	return cpu, p.topo.NodeOf(cpu), nil
}
