// File: control/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named introspection probes. The executor registers its state under the
// executor.* namespace (stats, per-queue depths), the platform files add
// platform.*, and applications hang their own probes alongside. A probe
// runs arbitrary callback code, so a snapshot captures a probe's panic
// as that probe's value instead of unwinding through the caller.

package control

import (
	"fmt"
	"sort"
	"sync"
)

// ProbeFunc produces one probe's point-in-time value.
type ProbeFunc func() any

// DebugProbes is the registry of named introspection probes.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]ProbeFunc
}

// NewDebugProbes creates an empty registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: make(map[string]ProbeFunc)}
}

// RegisterProbe installs fn under name, replacing any previous probe.
func (dp *DebugProbes) RegisterProbe(name string, fn ProbeFunc) {
	dp.mu.Lock()
	dp.probes[name] = fn
	dp.mu.Unlock()
}

// Names lists the registered probe names in sorted order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	names := make([]string, 0, len(dp.probes))
	for name := range dp.probes {
		names = append(names, name)
	}
	dp.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Probe runs the single named probe. The second return is false when no
// probe is registered under name.
func (dp *DebugProbes) Probe(name string) (any, bool) {
	dp.mu.RLock()
	fn, ok := dp.probes[name]
	dp.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return runProbe(fn), true
}

// DumpState runs every probe and returns the combined snapshot.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	probes := make(map[string]ProbeFunc, len(dp.probes))
	for name, fn := range dp.probes {
		probes[name] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(probes))
	for name, fn := range probes {
		out[name] = runProbe(fn)
	}
	return out
}

// runProbe invokes one probe with panic containment, mirroring how the
// executor contains proc panics: the fault stays with its source.
func runProbe(fn ProbeFunc) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return fn()
}
