// File: executor/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options for Pool construction.

package executor

import (
	"go.uber.org/zap"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/config"
	"github.com/prettynatty/bastion/control"
	"github.com/prettynatty/bastion/pool"
)

// Option configures a Pool before it starts.
type Option func(*options)

type options struct {
	cfg          config.Config
	log          *zap.Logger
	panel        *control.Panel
	allocFactory func(create func() any) api.ObjectPool[any]
}

func defaultOptions() options {
	return options{
		cfg:   config.Default(),
		log:   zap.NewNop(),
		panel: control.NewPanel(),
		allocFactory: func(create func() any) api.ObjectPool[any] {
			return pool.NewSyncPool(create)
		},
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithPanel attaches an externally owned control surface, letting an
// application read metrics and retune dynamic knobs at runtime.
func WithPanel(p *control.Panel) Option {
	return func(o *options) {
		if p != nil {
			o.panel = p
		}
	}
}

// WithAllocator replaces the internal task allocator. The factory receives
// the creator for the executor's task records and must return the pool
// that recycles them.
func WithAllocator(factory func(create func() any) api.ObjectPool[any]) Option {
	return func(o *options) {
		if factory != nil {
			o.allocFactory = factory
		}
	}
}
