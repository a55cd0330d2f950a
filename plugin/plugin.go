// Package plugin provides an extensible plugin system for the credits engine.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Credit ledger hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted is called after a grant entry is appended.
type OnCreditsGranted interface {
	Plugin
	OnCreditsGranted(ctx context.Context, entry interface{}) error
}

// OnCreditsDebited is called after a debit entry is appended.
type OnCreditsDebited interface {
	Plugin
	OnCreditsDebited(ctx context.Context, entry interface{}) error
}

// OnInsufficientFunds is called when a debit is rejected for lack of funds.
type OnInsufficientFunds interface {
	Plugin
	OnInsufficientFunds(ctx context.Context, userID string, available, requested int64) error
}

// OnCreditsExpired is called for each expired-offset entry the sweeper writes.
type OnCreditsExpired interface {
	Plugin
	OnCreditsExpired(ctx context.Context, entry interface{}) error
}

// OnBalanceRecomputed is called after a balance is rebuilt from the ledger.
type OnBalanceRecomputed interface {
	Plugin
	OnBalanceRecomputed(ctx context.Context, balance interface{}) error
}

// OnSweepCompleted is called at the end of each expiration sweep.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, swept int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Coupon hooks
// ──────────────────────────────────────────────────

// OnCouponCreated is called when a new coupon is created.
type OnCouponCreated interface {
	Plugin
	OnCouponCreated(ctx context.Context, coupon interface{}) error
}

// OnCouponRedeemed is called after a successful redemption.
type OnCouponRedeemed interface {
	Plugin
	OnCouponRedeemed(ctx context.Context, redemption interface{}) error
}

// OnCouponRejected is called when a redemption is refused.
type OnCouponRejected interface {
	Plugin
	OnCouponRejected(ctx context.Context, code, userID, reason string) error
}

// ──────────────────────────────────────────────────
// Usage metering hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded is called after a usage record is appended.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, record interface{}) error
}

// OnUsageAlert is called when usage crosses an alert threshold.
type OnUsageAlert interface {
	Plugin
	OnUsageAlert(ctx context.Context, alert interface{}) error
}

// OnOverageAccrued is called when a usage record pushes a subscription
// past its limit.
type OnOverageAccrued interface {
	Plugin
	OnOverageAccrued(ctx context.Context, subscriptionID string, overage int64) error
}

// OnPeriodRolledOver is called after a subscription's billing period rolls.
type OnPeriodRolledOver interface {
	Plugin
	OnPeriodRolledOver(ctx context.Context, sub interface{}) error
}
