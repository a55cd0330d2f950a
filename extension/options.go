package extension

import (
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Option configures the Credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the credits engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a credits.Option through to the underlying engine.
func WithEngineOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a credits plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, credits.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSweepInterval sets how often the expiration sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithRolloverInterval sets how often due billing periods are rolled over.
func WithRolloverInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.RolloverInterval = d }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI
// container and the dialect of its store backend ("postgres", "sqlite" or
// "mongo"). Pass an empty name to use the default (unnamed) grove.DB.
func WithGroveDatabase(name, dialect string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.config.GroveDialect = dialect
		e.useGrove = true
	}
}
