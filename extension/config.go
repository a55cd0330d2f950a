package extension

import "time"

// Dialect names accepted in Config.GroveDialect.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
	DialectMongo    = "mongo"
)

// Config holds the Credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// SweepInterval is how often the background sweeper expires
	// overdue credit grants (default: 1h).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// RolloverInterval is how often the background worker checks for
	// subscriptions whose billing period has ended (default: 15m).
	RolloverInterval time.Duration `json:"rollover_interval" mapstructure:"rollover_interval" yaml:"rollover_interval"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and constructs
	// the store backend selected by GroveDialect. When empty and
	// WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// GroveDialect selects the store backend for the resolved grove.DB:
	// "postgres", "sqlite" or "mongo" (default: "postgres").
	GroveDialect string `json:"grove_dialect" mapstructure:"grove_dialect" yaml:"grove_dialect"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:    time.Hour,
		RolloverInterval: 15 * time.Minute,
		GroveDialect:     DialectPostgres,
	}
}
