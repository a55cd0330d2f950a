// Package subscription defines the usage-bearing subscription aggregate:
// the per-period usage counter, its limit, and the derived overage.
package subscription

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Status of a subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Subscription tracks metered resource consumption for one user over a
// billing period. CurrentUsage is non-decreasing within a period and
// resets only at rollover; Overage is derived, never set by callers.
//
// Plan/payment state (limits, rates, period boundaries at creation) is
// read-only input owned by the upstream payment integration.
type Subscription struct {
	types.Entity
	ID     id.SubscriptionID `json:"id"`
	UserID string            `json:"user_id"`
	Status Status            `json:"status"`

	UsageLimit   int64        `json:"usage_limit"` // 0 = unbounded
	CurrentUsage int64        `json:"current_usage"`
	Overage      int64        `json:"overage"`
	OverageRate  *types.Money `json:"overage_rate,omitempty"` // Per unit beyond the limit

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	CanceledAt *time.Time        `json:"canceled_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ApplyUsage adds amount to the usage counter and rederives the overage.
// Callers must hold the subscription's write serialization.
func (s *Subscription) ApplyUsage(amount int64) {
	s.CurrentUsage += amount
	s.Overage = DeriveOverage(s.CurrentUsage, s.UsageLimit)
}

// DeriveOverage returns max(0, used-limit) when a limit is set, else 0.
func DeriveOverage(used, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	return max(0, used-limit)
}

// OverageCharge returns the billable charge for the current overage,
// or nil when no overage rate is configured.
func (s *Subscription) OverageCharge() *types.Money {
	if s.OverageRate == nil || s.Overage == 0 {
		return nil
	}
	charge := s.OverageRate.Multiply(s.Overage)
	return &charge
}

// Rollover closes the current period: advances the window by the same
// length, resets usage and overage. The caller persists the result.
func (s *Subscription) Rollover() {
	length := periodLength(s.PeriodStart, s.PeriodEnd)
	s.PeriodStart = s.PeriodEnd
	s.PeriodEnd = advance(s.PeriodEnd, length)
	s.CurrentUsage = 0
	s.Overage = 0
}

// periodLength classifies the billing interval so calendar months keep
// their shape across rollovers instead of drifting by fixed durations.
func periodLength(start, end time.Time) time.Duration {
	return end.Sub(start)
}

func advance(from time.Time, length time.Duration) time.Time {
	// Treat anything in the 28-31 day range as a calendar month.
	if length >= 28*24*time.Hour && length <= 31*24*time.Hour {
		return from.AddDate(0, 1, 0)
	}
	return from.Add(length)
}

// ListOpts filters subscription listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
