// Package observability provides a metrics extension for Credits that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/credits/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnCreditsGranted    = (*MetricsExtension)(nil)
	_ plugin.OnCreditsDebited    = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientFunds = (*MetricsExtension)(nil)
	_ plugin.OnCreditsExpired    = (*MetricsExtension)(nil)
	_ plugin.OnBalanceRecomputed = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted    = (*MetricsExtension)(nil)
	_ plugin.OnCouponCreated     = (*MetricsExtension)(nil)
	_ plugin.OnCouponRedeemed    = (*MetricsExtension)(nil)
	_ plugin.OnCouponRejected    = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded     = (*MetricsExtension)(nil)
	_ plugin.OnUsageAlert        = (*MetricsExtension)(nil)
	_ plugin.OnOverageAccrued    = (*MetricsExtension)(nil)
	_ plugin.OnPeriodRolledOver  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Credits plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Ledger metrics
	CreditsGranted    Counter
	CreditsDebited    Counter
	InsufficientFunds Counter
	CreditsExpired    Counter
	BalanceRecomputed Counter

	// Sweep metrics
	SweepOffsets Counter
	SweepLatency Histogram

	// Coupon metrics
	CouponCreated  Counter
	CouponRedeemed Counter
	CouponRejected Counter

	// Usage metrics
	UsageRecorded  Counter
	UsageAlerts    Counter
	OverageAccrued Counter
	PeriodRollover Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Ledger metrics
		CreditsGranted:    factory.Counter("credits.ledger.granted"),
		CreditsDebited:    factory.Counter("credits.ledger.debited"),
		InsufficientFunds: factory.Counter("credits.ledger.insufficient_funds"),
		CreditsExpired:    factory.Counter("credits.ledger.expired"),
		BalanceRecomputed: factory.Counter("credits.balance.recomputed"),

		// Sweep metrics
		SweepOffsets: factory.Counter("credits.sweep.offsets"),
		SweepLatency: factory.Histogram("credits.sweep.latency_ms"),

		// Coupon metrics
		CouponCreated:  factory.Counter("credits.coupon.created"),
		CouponRedeemed: factory.Counter("credits.coupon.redeemed"),
		CouponRejected: factory.Counter("credits.coupon.rejected"),

		// Usage metrics
		UsageRecorded:  factory.Counter("credits.usage.recorded"),
		UsageAlerts:    factory.Counter("credits.usage.alerts"),
		OverageAccrued: factory.Counter("credits.usage.overage"),
		PeriodRollover: factory.Counter("credits.subscription.rollover"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Ledger lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (m *MetricsExtension) OnCreditsGranted(_ context.Context, _ interface{}) error {
	m.CreditsGranted.Inc()
	return nil
}

// OnCreditsDebited implements plugin.OnCreditsDebited.
func (m *MetricsExtension) OnCreditsDebited(_ context.Context, _ interface{}) error {
	m.CreditsDebited.Inc()
	return nil
}

// OnInsufficientFunds implements plugin.OnInsufficientFunds.
func (m *MetricsExtension) OnInsufficientFunds(_ context.Context, _ string, _, _ int64) error {
	m.InsufficientFunds.Inc()
	return nil
}

// OnCreditsExpired implements plugin.OnCreditsExpired.
func (m *MetricsExtension) OnCreditsExpired(_ context.Context, _ interface{}) error {
	m.CreditsExpired.Inc()
	return nil
}

// OnBalanceRecomputed implements plugin.OnBalanceRecomputed.
func (m *MetricsExtension) OnBalanceRecomputed(_ context.Context, _ interface{}) error {
	m.BalanceRecomputed.Inc()
	return nil
}

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, swept int, elapsed time.Duration) error {
	m.SweepOffsets.Add(float64(swept))
	m.SweepLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Coupon lifecycle hooks
// ──────────────────────────────────────────────────

// OnCouponCreated implements plugin.OnCouponCreated.
func (m *MetricsExtension) OnCouponCreated(_ context.Context, _ interface{}) error {
	m.CouponCreated.Inc()
	return nil
}

// OnCouponRedeemed implements plugin.OnCouponRedeemed.
func (m *MetricsExtension) OnCouponRedeemed(_ context.Context, _ interface{}) error {
	m.CouponRedeemed.Inc()
	return nil
}

// OnCouponRejected implements plugin.OnCouponRejected.
func (m *MetricsExtension) OnCouponRejected(_ context.Context, _, _, _ string) error {
	m.CouponRejected.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Usage lifecycle hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, _ interface{}) error {
	m.UsageRecorded.Inc()
	return nil
}

// OnUsageAlert implements plugin.OnUsageAlert.
func (m *MetricsExtension) OnUsageAlert(_ context.Context, _ interface{}) error {
	m.UsageAlerts.Inc()
	return nil
}

// OnOverageAccrued implements plugin.OnOverageAccrued.
func (m *MetricsExtension) OnOverageAccrued(_ context.Context, _ string, overage int64) error {
	m.OverageAccrued.Add(float64(overage))
	return nil
}

// OnPeriodRolledOver implements plugin.OnPeriodRolledOver.
func (m *MetricsExtension) OnPeriodRolledOver(_ context.Context, _ interface{}) error {
	m.PeriodRollover.Inc()
	return nil
}
