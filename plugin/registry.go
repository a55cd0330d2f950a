package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onCreditsGranted    []OnCreditsGranted
	onCreditsDebited    []OnCreditsDebited
	onInsufficientFunds []OnInsufficientFunds
	onCreditsExpired    []OnCreditsExpired
	onBalanceRecomputed []OnBalanceRecomputed
	onSweepCompleted    []OnSweepCompleted
	onCouponCreated     []OnCouponCreated
	onCouponRedeemed    []OnCouponRedeemed
	onCouponRejected    []OnCouponRejected
	onUsageRecorded     []OnUsageRecorded
	onUsageAlert        []OnUsageAlert
	onOverageAccrued    []OnOverageAccrued
	onPeriodRolledOver  []OnPeriodRolledOver
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCreditsGranted); ok {
		r.onCreditsGranted = append(r.onCreditsGranted, v)
	}
	if v, ok := p.(OnCreditsDebited); ok {
		r.onCreditsDebited = append(r.onCreditsDebited, v)
	}
	if v, ok := p.(OnInsufficientFunds); ok {
		r.onInsufficientFunds = append(r.onInsufficientFunds, v)
	}
	if v, ok := p.(OnCreditsExpired); ok {
		r.onCreditsExpired = append(r.onCreditsExpired, v)
	}
	if v, ok := p.(OnBalanceRecomputed); ok {
		r.onBalanceRecomputed = append(r.onBalanceRecomputed, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}
	if v, ok := p.(OnCouponCreated); ok {
		r.onCouponCreated = append(r.onCouponCreated, v)
	}
	if v, ok := p.(OnCouponRedeemed); ok {
		r.onCouponRedeemed = append(r.onCouponRedeemed, v)
	}
	if v, ok := p.(OnCouponRejected); ok {
		r.onCouponRejected = append(r.onCouponRejected, v)
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
	}
	if v, ok := p.(OnUsageAlert); ok {
		r.onUsageAlert = append(r.onUsageAlert, v)
	}
	if v, ok := p.(OnOverageAccrued); ok {
		r.onOverageAccrued = append(r.onOverageAccrued, v)
	}
	if v, ok := p.(OnPeriodRolledOver); ok {
		r.onPeriodRolledOver = append(r.onPeriodRolledOver, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCreditsGranted)(nil)).Elem(), "OnCreditsGranted")
	checkInterface(reflect.TypeOf((*OnCreditsDebited)(nil)).Elem(), "OnCreditsDebited")
	checkInterface(reflect.TypeOf((*OnCreditsExpired)(nil)).Elem(), "OnCreditsExpired")
	checkInterface(reflect.TypeOf((*OnCouponRedeemed)(nil)).Elem(), "OnCouponRedeemed")
	checkInterface(reflect.TypeOf((*OnUsageRecorded)(nil)).Elem(), "OnUsageRecorded")
	checkInterface(reflect.TypeOf((*OnUsageAlert)(nil)).Elem(), "OnUsageAlert")
	checkInterface(reflect.TypeOf((*OnPeriodRolledOver)(nil)).Elem(), "OnPeriodRolledOver")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsGranted emits a credits granted event.
func (r *Registry) EmitCreditsGranted(ctx context.Context, entry interface{}) {
	r.mu.RLock()
	plugins := r.onCreditsGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsGranted(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsGranted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsDebited emits a credits debited event.
func (r *Registry) EmitCreditsDebited(ctx context.Context, entry interface{}) {
	r.mu.RLock()
	plugins := r.onCreditsDebited
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsDebited(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsDebited failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInsufficientFunds emits a rejected-debit event.
func (r *Registry) EmitInsufficientFunds(ctx context.Context, userID string, available, requested int64) {
	r.mu.RLock()
	plugins := r.onInsufficientFunds
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInsufficientFunds(ctx, userID, available, requested)
		}); err != nil {
			r.logger.Warn("plugin OnInsufficientFunds failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsExpired emits a credits expired event.
func (r *Registry) EmitCreditsExpired(ctx context.Context, entry interface{}) {
	r.mu.RLock()
	plugins := r.onCreditsExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsExpired(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitBalanceRecomputed emits a balance recomputed event.
func (r *Registry) EmitBalanceRecomputed(ctx context.Context, balance interface{}) {
	r.mu.RLock()
	plugins := r.onBalanceRecomputed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBalanceRecomputed(ctx, balance)
		}); err != nil {
			r.logger.Warn("plugin OnBalanceRecomputed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSweepCompleted emits a sweep completed event.
func (r *Registry) EmitSweepCompleted(ctx context.Context, swept int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onSweepCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSweepCompleted(ctx, swept, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnSweepCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCouponCreated emits a coupon created event.
func (r *Registry) EmitCouponCreated(ctx context.Context, coupon interface{}) {
	r.mu.RLock()
	plugins := r.onCouponCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCouponCreated(ctx, coupon)
		}); err != nil {
			r.logger.Warn("plugin OnCouponCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCouponRedeemed emits a coupon redeemed event.
func (r *Registry) EmitCouponRedeemed(ctx context.Context, redemption interface{}) {
	r.mu.RLock()
	plugins := r.onCouponRedeemed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCouponRedeemed(ctx, redemption)
		}); err != nil {
			r.logger.Warn("plugin OnCouponRedeemed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCouponRejected emits a coupon rejected event.
func (r *Registry) EmitCouponRejected(ctx context.Context, code, userID, reason string) {
	r.mu.RLock()
	plugins := r.onCouponRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCouponRejected(ctx, code, userID, reason)
		}); err != nil {
			r.logger.Warn("plugin OnCouponRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, record interface{}) {
	r.mu.RLock()
	plugins := r.onUsageRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUsageRecorded(ctx, record)
		}); err != nil {
			r.logger.Warn("plugin OnUsageRecorded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUsageAlert emits a usage alert event.
func (r *Registry) EmitUsageAlert(ctx context.Context, alert interface{}) {
	r.mu.RLock()
	plugins := r.onUsageAlert
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUsageAlert(ctx, alert)
		}); err != nil {
			r.logger.Warn("plugin OnUsageAlert failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOverageAccrued emits an overage accrued event.
func (r *Registry) EmitOverageAccrued(ctx context.Context, subscriptionID string, overage int64) {
	r.mu.RLock()
	plugins := r.onOverageAccrued
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOverageAccrued(ctx, subscriptionID, overage)
		}); err != nil {
			r.logger.Warn("plugin OnOverageAccrued failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPeriodRolledOver emits a period rolled over event.
func (r *Registry) EmitPeriodRolledOver(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onPeriodRolledOver
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPeriodRolledOver(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnPeriodRolledOver failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
