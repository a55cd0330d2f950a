// Package audithook bridges Credits lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnCreditsGranted    = (*Extension)(nil)
	_ plugin.OnCreditsDebited    = (*Extension)(nil)
	_ plugin.OnInsufficientFunds = (*Extension)(nil)
	_ plugin.OnCreditsExpired    = (*Extension)(nil)
	_ plugin.OnBalanceRecomputed = (*Extension)(nil)
	_ plugin.OnCouponCreated     = (*Extension)(nil)
	_ plugin.OnCouponRedeemed    = (*Extension)(nil)
	_ plugin.OnCouponRejected    = (*Extension)(nil)
	_ plugin.OnOverageAccrued    = (*Extension)(nil)
	_ plugin.OnPeriodRolledOver  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Credits lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ledger lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (e *Extension) OnCreditsGranted(ctx context.Context, payload interface{}) error {
	entryID, userID, amount := entryFields(payload)
	return e.record(ctx, ActionCreditsGranted, SeverityInfo, OutcomeSuccess,
		ResourceEntry, entryID, CategoryLedger, nil,
		"user_id", userID,
		"amount", amount,
	)
}

// OnCreditsDebited implements plugin.OnCreditsDebited.
func (e *Extension) OnCreditsDebited(ctx context.Context, payload interface{}) error {
	entryID, userID, amount := entryFields(payload)
	return e.record(ctx, ActionCreditsDebited, SeverityInfo, OutcomeSuccess,
		ResourceEntry, entryID, CategoryLedger, nil,
		"user_id", userID,
		"amount", amount,
	)
}

// OnInsufficientFunds implements plugin.OnInsufficientFunds.
func (e *Extension) OnInsufficientFunds(ctx context.Context, userID string, available, requested int64) error {
	return e.record(ctx, ActionDebitRejected, SeverityWarning, OutcomeFailure,
		ResourceBalance, userID, CategoryLedger, nil,
		"user_id", userID,
		"available", available,
		"requested", requested,
	)
}

// OnCreditsExpired implements plugin.OnCreditsExpired.
func (e *Extension) OnCreditsExpired(ctx context.Context, payload interface{}) error {
	entryID, userID, amount := entryFields(payload)
	return e.record(ctx, ActionCreditsExpired, SeverityInfo, OutcomeSuccess,
		ResourceEntry, entryID, CategoryLedger, nil,
		"user_id", userID,
		"amount", amount,
	)
}

// OnBalanceRecomputed implements plugin.OnBalanceRecomputed.
func (e *Extension) OnBalanceRecomputed(ctx context.Context, payload interface{}) error {
	var userID string
	var available int64
	if b, ok := payload.(*credit.Balance); ok {
		userID = b.UserID
		available = b.AvailableCredits
	}
	return e.record(ctx, ActionBalanceRecomputed, SeverityInfo, OutcomeSuccess,
		ResourceBalance, userID, CategoryLedger, nil,
		"user_id", userID,
		"available", available,
	)
}

// ──────────────────────────────────────────────────
// Coupon lifecycle hooks
// ──────────────────────────────────────────────────

// OnCouponCreated implements plugin.OnCouponCreated.
func (e *Extension) OnCouponCreated(ctx context.Context, payload interface{}) error {
	var couponID, code string
	if c, ok := payload.(*coupon.Coupon); ok {
		couponID = c.ID.String()
		code = c.Code
	}
	return e.record(ctx, ActionCouponCreated, SeverityInfo, OutcomeSuccess,
		ResourceCoupon, couponID, CategoryCoupon, nil,
		"code", code,
	)
}

// OnCouponRedeemed implements plugin.OnCouponRedeemed.
func (e *Extension) OnCouponRedeemed(ctx context.Context, payload interface{}) error {
	var redemptionID, couponID, userID string
	if r, ok := payload.(*coupon.Redemption); ok {
		redemptionID = r.ID.String()
		couponID = r.CouponID.String()
		userID = r.UserID
	}
	return e.record(ctx, ActionCouponRedeemed, SeverityInfo, OutcomeSuccess,
		ResourceCoupon, couponID, CategoryCoupon, nil,
		"redemption_id", redemptionID,
		"user_id", userID,
	)
}

// OnCouponRejected implements plugin.OnCouponRejected.
func (e *Extension) OnCouponRejected(ctx context.Context, code, userID, reason string) error {
	return e.record(ctx, ActionCouponRejected, SeverityWarning, OutcomeFailure,
		ResourceCoupon, code, CategoryCoupon, nil,
		"code", code,
		"user_id", userID,
		"reject_reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Usage lifecycle hooks
// ──────────────────────────────────────────────────

// OnOverageAccrued implements plugin.OnOverageAccrued.
func (e *Extension) OnOverageAccrued(ctx context.Context, subscriptionID string, overage int64) error {
	return e.record(ctx, ActionOverageAccrued, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, subscriptionID, CategoryUsage, nil,
		"subscription_id", subscriptionID,
		"overage", overage,
	)
}

// OnPeriodRolledOver implements plugin.OnPeriodRolledOver.
func (e *Extension) OnPeriodRolledOver(ctx context.Context, payload interface{}) error {
	var subID, userID string
	if sub, ok := payload.(*subscription.Subscription); ok {
		subID = sub.ID.String()
		userID = sub.UserID
	}
	return e.record(ctx, ActionPeriodRolledOver, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID, CategorySubscription, nil,
		"user_id", userID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// entryFields extracts identifying fields from a ledger entry payload.
func entryFields(payload interface{}) (entryID, userID string, amount int64) {
	entry, ok := payload.(*credit.Entry)
	if !ok {
		return "", "", 0
	}
	return entry.ID.String(), entry.UserID, entry.Amount
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
