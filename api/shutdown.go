// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown unifies orderly teardown of long-lived components.
type GracefulShutdown interface {
	// Shutdown stops all internal services and releases resources.
	// It returns an error when teardown could not complete cleanly.
	Shutdown() error
}
