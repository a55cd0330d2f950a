package credits

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/usage"
)

// ──────────────────────────────────────────────────
// Subscription Management
// ──────────────────────────────────────────────────

// CreateSubscription creates a new subscription for a user.
func (e *Engine) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub.UserID == "" {
		return ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if sub.UsageLimit < 0 {
		return ValidationError{Field: "usage_limit", Message: "must not be negative"}
	}

	if sub.ID == (id.SubscriptionID{}) {
		sub.ID = id.NewSubscriptionID()
	}
	sub.Entity = types.NewEntity()
	if sub.Status == "" {
		sub.Status = subscription.StatusActive
	}

	// Monthly period by default
	if sub.PeriodStart.IsZero() {
		sub.PeriodStart = e.now()
		sub.PeriodEnd = sub.PeriodStart.AddDate(0, 1, 0)
	}

	sub.CurrentUsage = 0
	sub.Overage = 0

	return e.store.CreateSubscription(ctx, sub)
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// GetActiveSubscription retrieves the user's active subscription.
func (e *Engine) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	return e.store.GetActiveSubscription(ctx, userID)
}

// CancelSubscription cancels a subscription immediately. Usage already
// recorded in the current period is kept for final invoicing upstream.
func (e *Engine) CancelSubscription(ctx context.Context, subID id.SubscriptionID) error {
	key := "sub:" + subID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if sub.Status == subscription.StatusCanceled {
		return nil
	}

	now := e.now()
	sub.Status = subscription.StatusCanceled
	sub.CanceledAt = &now
	sub.Touch()

	return e.store.UpdateSubscription(ctx, sub)
}

// ──────────────────────────────────────────────────
// Usage Metering
// ──────────────────────────────────────────────────

// RecordUsage appends a usage record and, when the user has an active
// subscription, bumps the period counter and returns any threshold alerts
// the new counter triggers. Usage is never rejected for being over the
// limit; the excess accrues as overage instead.
//
// Without an active subscription the record still lands in the log as an
// audit trail; there is no counter to update and no limit to alert on.
func (e *Engine) RecordUsage(ctx context.Context, userID, resourceType string, amount int64, unit, description string) (*usage.Record, []usage.Alert, error) {
	if userID == "" {
		return nil, nil, ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if resourceType == "" {
		return nil, nil, ValidationError{Field: "resource_type", Message: "must not be empty"}
	}
	if amount <= 0 {
		return nil, nil, ValidationError{Field: "amount", Message: "must be positive"}
	}

	active, err := e.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNoActiveSubscription) {
			return nil, nil, err
		}

		record := &usage.Record{
			ID:           id.NewUsageRecordID(),
			UserID:       userID,
			ResourceType: resourceType,
			Amount:       amount,
			Unit:         unit,
			Description:  description,
			RecordedAt:   e.now(),
		}
		if err := e.store.AppendUsage(ctx, record); err != nil {
			return nil, nil, err
		}
		e.plugins.EmitUsageRecorded(ctx, record)
		return record, nil, nil
	}

	key := "sub:" + active.ID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	// Re-read under the lock; the counter may have moved.
	sub, err := e.store.GetSubscription(ctx, active.ID)
	if err != nil {
		return nil, nil, err
	}

	record := &usage.Record{
		ID:             id.NewUsageRecordID(),
		UserID:         userID,
		SubscriptionID: sub.ID,
		ResourceType:   resourceType,
		Amount:         amount,
		Unit:           unit,
		Description:    description,
		RecordedAt:     e.now(),
		PeriodStart:    sub.PeriodStart,
		PeriodEnd:      sub.PeriodEnd,
	}

	// Log first. A failure after the append leaves the counter behind the
	// log, which ReconcileSubscriptionUsage repairs; the counter never
	// overstates what the log can prove.
	if err := e.store.AppendUsage(ctx, record); err != nil {
		return nil, nil, err
	}

	priorOverage := sub.Overage
	sub.ApplyUsage(amount)
	sub.Touch()

	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, nil, err
	}

	e.plugins.EmitUsageRecorded(ctx, record)

	if sub.Overage > priorOverage {
		e.plugins.EmitOverageAccrued(ctx, sub.ID.String(), sub.Overage)
	}

	alerts := usage.CheckAlerts(sub)
	for i := range alerts {
		e.logger.Warn("usage threshold crossed",
			"subscription_id", sub.ID,
			"type", alerts[i].Type,
			"percentage", alerts[i].Percentage,
		)
		e.plugins.EmitUsageAlert(ctx, &alerts[i])
	}

	return record, alerts, nil
}

// GetUsageSummary returns the subscription's current-period view: the
// counter, per-resource sums, and the derived overage charge.
func (e *Engine) GetUsageSummary(ctx context.Context, subID id.SubscriptionID) (*usage.Summary, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	byType, err := e.store.SumUsage(ctx, subID, sub.PeriodStart, sub.PeriodEnd)
	if err != nil {
		return nil, err
	}

	return &usage.Summary{
		SubscriptionID: sub.ID,
		CurrentUsage:   sub.CurrentUsage,
		UsageLimit:     sub.UsageLimit,
		Overage:        sub.Overage,
		OverageCharge:  sub.OverageCharge(),
		UsageByType:    byType,
		PeriodStart:    sub.PeriodStart,
		PeriodEnd:      sub.PeriodEnd,
	}, nil
}

// GetUserUsageSummary resolves the user's active subscription and returns
// its usage summary.
func (e *Engine) GetUserUsageSummary(ctx context.Context, userID string) (*usage.Summary, error) {
	sub, err := e.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.GetUsageSummary(ctx, sub.ID)
}

// ReconcileSubscriptionUsage rebuilds a subscription's period counter from
// the usage log, repairing drift left by interrupted writes.
func (e *Engine) ReconcileSubscriptionUsage(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	key := "sub:" + subID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	byType, err := e.store.SumUsage(ctx, subID, sub.PeriodStart, sub.PeriodEnd)
	if err != nil {
		return nil, err
	}
	var actual int64
	for _, v := range byType {
		actual += v
	}

	if actual != sub.CurrentUsage {
		e.logger.Warn("usage counter drift repaired",
			"subscription_id", subID,
			"counter", sub.CurrentUsage,
			"log", actual,
		)
		sub.CurrentUsage = actual
		sub.Overage = subscription.DeriveOverage(actual, sub.UsageLimit)
		sub.Touch()
		if err := e.store.UpdateSubscription(ctx, sub); err != nil {
			return nil, err
		}
	}

	return sub, nil
}

// CheckUsageAlerts evaluates the user's active subscription against the
// alert thresholds without recording anything.
func (e *Engine) CheckUsageAlerts(ctx context.Context, userID string) ([]usage.Alert, error) {
	sub, err := e.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return usage.CheckAlerts(sub), nil
}

// ListUsage lists a subscription's usage records, newest first.
func (e *Engine) ListUsage(ctx context.Context, subID id.SubscriptionID, opts usage.ListOpts) ([]*usage.Record, error) {
	return e.store.ListUsage(ctx, subID, opts)
}

// RolloverDue closes every active billing period that has ended: the
// window advances, usage and overage reset. Returns how many
// subscriptions rolled.
func (e *Engine) RolloverDue(ctx context.Context) (int, error) {
	due, err := e.store.ListRolloverDue(ctx, e.now())
	if err != nil {
		return 0, err
	}

	rolled := 0
	for _, candidate := range due {
		if err := e.rolloverOne(ctx, candidate.ID); err != nil {
			e.logger.Error("rollover failed",
				"subscription_id", candidate.ID,
				"error", err,
			)
			continue
		}
		rolled++
	}

	return rolled, nil
}

func (e *Engine) rolloverOne(ctx context.Context, subID id.SubscriptionID) error {
	key := "sub:" + subID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}

	// Another runner may have rolled it between the listing and the lock.
	now := e.now()
	if sub.Status != subscription.StatusActive || sub.PeriodEnd.After(now) {
		return nil
	}

	// Catch up however many whole periods have elapsed.
	for !sub.PeriodEnd.After(now) {
		sub.Rollover()
	}
	sub.Touch()

	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	e.logger.Info("billing period rolled over",
		"subscription_id", sub.ID,
		"period_start", sub.PeriodStart.Format(time.RFC3339),
		"period_end", sub.PeriodEnd.Format(time.RFC3339),
	)

	e.plugins.EmitPeriodRolledOver(ctx, sub)
	return nil
}
