// File: api/control.go
// Package api defines Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control manages dynamic executor config and runtime metrics.
type Control interface {
	// GetConfig returns the current dynamic configuration snapshot.
	GetConfig() map[string]any
	// SetConfig merges new values and notifies reload listeners.
	SetConfig(cfg map[string]any) error
	// Stats returns runtime counters registered by executor subsystems.
	Stats() map[string]any
	// OnReload registers a callback fired after each SetConfig.
	OnReload(fn func())
	// RegisterDebugProbe registers a named introspection probe.
	RegisterDebugProbe(name string, fn func() any)
}
