// control/panel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Panel aggregates the config store, metrics registry, and debug probes
// into the api.Control surface a pool hands to its embedder. Dynamic
// scheduler knobs are type-checked before they are merged.

package control

import (
	"time"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/config"
)

// Panel is the per-pool control surface.
type Panel struct {
	Config  *ConfigStore
	Metrics *MetricsRegistry
	Probes  *DebugProbes
}

var (
	_ api.Control = (*Panel)(nil)
	_ api.Debug   = (*Panel)(nil)
)

// NewPanel builds an empty control surface.
func NewPanel() *Panel {
	return &Panel{
		Config:  NewConfigStore(),
		Metrics: NewMetricsRegistry(),
		Probes:  NewDebugProbes(),
	}
}

// GetConfig returns the current dynamic configuration snapshot.
func (p *Panel) GetConfig() map[string]any {
	return p.Config.GetSnapshot()
}

// SetConfig validates dynamic knobs, merges all values, and notifies
// reload listeners. Unknown keys pass through untouched so embedders can
// park their own values here, matching GetSnapshot round-trips.
func (p *Panel) SetConfig(cfg map[string]any) error {
	for _, key := range config.DynamicKeys() {
		v, ok := cfg[key]
		if !ok {
			continue
		}
		if err := checkKnob(key, v); err != nil {
			return err
		}
	}
	p.Config.SetConfig(cfg)
	return nil
}

// checkKnob rejects values the balancer could not interpret on its next tick.
func checkKnob(key string, v any) error {
	switch key {
	case "steal_batch_max", "queue_high_watermark":
		switch n := v.(type) {
		case int, int32, int64, uint64:
			if asInt64(v) < 1 {
				return api.NewError(api.ErrCodeInvalidArgument, "knob below 1").
					WithContext("key", key).WithContext("value", n)
			}
		case float64:
			if n < 1 {
				return api.NewError(api.ErrCodeInvalidArgument, "knob below 1").
					WithContext("key", key).WithContext("value", n)
			}
		default:
			return api.NewError(api.ErrCodeInvalidArgument, "knob is not an integer").
				WithContext("key", key).WithContext("value", v)
		}
	case "worker_idle_timeout", "balancer_tick_interval":
		switch d := v.(type) {
		case time.Duration:
			if d <= 0 {
				return api.NewError(api.ErrCodeInvalidArgument, "duration knob not positive").
					WithContext("key", key).WithContext("value", d)
			}
		case string:
			parsed, err := time.ParseDuration(d)
			if err != nil || parsed <= 0 {
				return api.NewError(api.ErrCodeInvalidArgument, "bad duration knob").
					WithContext("key", key).WithContext("value", d)
			}
		default:
			return api.NewError(api.ErrCodeInvalidArgument, "duration knob is not a duration").
				WithContext("key", key).WithContext("value", v)
		}
	}
	return nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

// Stats returns runtime counters registered by executor subsystems.
func (p *Panel) Stats() map[string]any {
	return p.Metrics.GetSnapshot()
}

// OnReload registers a callback fired after each SetConfig.
func (p *Panel) OnReload(fn func()) {
	p.Config.OnReload(fn)
}

// RegisterDebugProbe registers a named introspection probe.
func (p *Panel) RegisterDebugProbe(name string, fn func() any) {
	p.Probes.RegisterProbe(name, fn)
}

// RegisterProbe implements api.Debug.
func (p *Panel) RegisterProbe(name string, fn func() any) {
	p.Probes.RegisterProbe(name, fn)
}

// DumpState implements api.Debug.
func (p *Panel) DumpState() map[string]any {
	return p.Probes.DumpState()
}
