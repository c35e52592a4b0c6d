// File: config/config.go
// Package config declares the executor configuration, its defaults,
// validation, and YAML file loading.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prettynatty/bastion/api"
)

// Duration wraps time.Duration for YAML files, accepting values in Go
// duration syntax such as "150ms" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds pool parameters fixed at construction time. A subset of
// knobs, listed in DynamicKeys, may later change through the control
// surface; the balancer re-reads those on every tick.
type Config struct {
	MinWorkers           int      `yaml:"min_workers"`            // Floor of live workers
	MaxWorkers           int      `yaml:"max_workers"`            // Ceiling of live workers
	LocalQueueCapacity   int      `yaml:"local_queue_capacity"`   // Initial per-worker deque ring size
	StealBatchMax        int      `yaml:"steal_batch_max"`        // Max procs moved per steal batch
	QueueHighWatermark   int      `yaml:"queue_high_watermark"`   // Mean depth per worker that triggers growth
	WorkerIdleTimeout    Duration `yaml:"worker_idle_timeout"`    // Parked time before a worker retires
	BalancerTickInterval Duration `yaml:"balancer_tick_interval"` // Sampling period of the load balancer
	BlockingPoolMax      int      `yaml:"blocking_pool_max"`      // Ceiling of blocking threads
	BlockingQueueCap     int      `yaml:"blocking_queue_cap"`     // Pending blocking submissions before backpressure
	BlockingIdleTimeout  Duration `yaml:"blocking_idle_timeout"`  // Idle time before a blocking thread exits
	NUMAAware            bool     `yaml:"numa_aware"`             // Use sysfs topology for placement
	PinWorkers           bool     `yaml:"pin_workers"`            // Pin worker threads to their slot CPU
	ShutdownGrace        Duration `yaml:"shutdown_grace"`         // Default grace for Shutdown()
}

// Default returns the configuration used when the application supplies
// nothing. Worker bounds derive from the machine size.
func Default() Config {
	cpus := runtime.NumCPU()
	return Config{
		MinWorkers:           cpus,                      // One worker per core at rest
		MaxWorkers:           2 * cpus,                  // Allow bursts to double up
		LocalQueueCapacity:   256,                       // Ring grows on demand
		StealBatchMax:        16,                        // Half-depth capped per sweep
		QueueHighWatermark:   64,                        // Mean queued procs per worker
		WorkerIdleTimeout:    Duration(60 * time.Second),
		BalancerTickInterval: Duration(100 * time.Millisecond),
		BlockingPoolMax:      128,
		BlockingQueueCap:     1024,
		BlockingIdleTimeout:  Duration(10 * time.Second),
		NUMAAware:            true,
		PinWorkers:           true,
		ShutdownGrace:        Duration(5 * time.Second),
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks bounds and relations between fields.
func (c Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("config: "+format+": %w", append(args, api.ErrInvalidArgument)...)
	}
	if c.MinWorkers < 1 {
		return fail("min_workers %d < 1", c.MinWorkers)
	}
	if c.MaxWorkers < c.MinWorkers {
		return fail("max_workers %d < min_workers %d", c.MaxWorkers, c.MinWorkers)
	}
	if c.LocalQueueCapacity < 2 {
		return fail("local_queue_capacity %d < 2", c.LocalQueueCapacity)
	}
	if c.StealBatchMax < 1 {
		return fail("steal_batch_max %d < 1", c.StealBatchMax)
	}
	if c.QueueHighWatermark < 1 {
		return fail("queue_high_watermark %d < 1", c.QueueHighWatermark)
	}
	if c.WorkerIdleTimeout <= 0 {
		return fail("worker_idle_timeout %v <= 0", c.WorkerIdleTimeout.Std())
	}
	if c.BalancerTickInterval <= 0 {
		return fail("balancer_tick_interval %v <= 0", c.BalancerTickInterval.Std())
	}
	if c.BlockingPoolMax < 1 {
		return fail("blocking_pool_max %d < 1", c.BlockingPoolMax)
	}
	if c.BlockingQueueCap < 0 {
		return fail("blocking_queue_cap %d < 0", c.BlockingQueueCap)
	}
	if c.BlockingIdleTimeout <= 0 {
		return fail("blocking_idle_timeout %v <= 0", c.BlockingIdleTimeout.Std())
	}
	if c.ShutdownGrace <= 0 {
		return fail("shutdown_grace %v <= 0", c.ShutdownGrace.Std())
	}
	return nil
}

// DynamicKeys lists the knobs the control surface may change at runtime.
func DynamicKeys() []string {
	return []string{
		"steal_batch_max",
		"queue_high_watermark",
		"worker_idle_timeout",
		"balancer_tick_interval",
	}
}

// Map renders the config as the control surface key space.
func (c Config) Map() map[string]any {
	return map[string]any{
		"min_workers":            c.MinWorkers,
		"max_workers":            c.MaxWorkers,
		"local_queue_capacity":   c.LocalQueueCapacity,
		"steal_batch_max":        c.StealBatchMax,
		"queue_high_watermark":   c.QueueHighWatermark,
		"worker_idle_timeout":    c.WorkerIdleTimeout.Std().String(),
		"balancer_tick_interval": c.BalancerTickInterval.Std().String(),
		"blocking_pool_max":      c.BlockingPoolMax,
		"blocking_queue_cap":     c.BlockingQueueCap,
		"blocking_idle_timeout":  c.BlockingIdleTimeout.Std().String(),
		"numa_aware":             c.NUMAAware,
		"pin_workers":            c.PinWorkers,
		"shutdown_grace":         c.ShutdownGrace.Std().String(),
	}
}
