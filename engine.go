package credits

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Engine is the credit ledger and usage metering engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Per-key write serialization ("user:{id}", "sub:{id}", "coupon:{code}")
	locks *keyedMutex

	// Clock, swappable in tests
	now func() time.Time

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	sweepInterval    time.Duration
	rolloverInterval time.Duration
	casRetries       int
	disableMigrate   bool
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:            s,
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		locks:            newKeyedMutex(),
		now:              time.Now,
		stopChan:         make(chan struct{}),
		sweepInterval:    time.Hour,
		rolloverInterval: 15 * time.Minute,
		casRetries:       3,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithSweepInterval sets how often the expiration sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = d
	}
}

// WithRolloverInterval sets how often due billing periods are rolled over.
func WithRolloverInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.rolloverInterval = d
	}
}

// WithClock overrides the engine's time source. Expiry checks, validity
// windows and period rollover all consult this clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithDisableMigrate skips store migration on Start. Use when schema
// management happens out of band.
func WithDisableMigrate() Option {
	return func(e *Engine) {
		e.disableMigrate = true
	}
}

// Start migrates the store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if !e.disableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(2)
	go e.sweepWorker(ctx)
	go e.rolloverWorker(ctx)

	e.logger.Info("credits engine started",
		"sweep_interval", e.sweepInterval,
		"rollover_interval", e.rolloverInterval,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// sweepWorker periodically expires overdue grants.
func (e *Engine) sweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			if _, err := e.SweepExpired(ctx); err != nil {
				e.logger.Error("expiration sweep failed", "error", err)
			}
		}
	}
}

// rolloverWorker periodically closes billing periods that have ended.
func (e *Engine) rolloverWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.rolloverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			if _, err := e.RolloverDue(ctx); err != nil {
				e.logger.Error("period rollover failed", "error", err)
			}
		}
	}
}
