// Package usage defines append-only usage records, usage summaries, and
// the pure threshold-alert computation.
package usage

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Record is one immutable resource-consumption event. The sum of Amount
// over a period, grouped by ResourceType, reconstructs the subscription's
// usage counter for that period (same replay contract as the credit ledger).
type Record struct {
	ID             id.UsageRecordID  `json:"id"`
	UserID         string            `json:"user_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id,omitempty"`
	ResourceType   string            `json:"resource_type"`
	Amount         int64             `json:"amount"`
	Unit           string            `json:"unit"`
	Description    string            `json:"description,omitempty"`
	RecordedAt     time.Time         `json:"recorded_at"`
	PeriodStart    time.Time         `json:"period_start"`
	PeriodEnd      time.Time         `json:"period_end"`
}

// Summary is the caller-facing view of a subscription's current period.
type Summary struct {
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	CurrentUsage   int64             `json:"current_usage"`
	UsageLimit     int64             `json:"usage_limit"` // 0 = unbounded
	Overage        int64             `json:"overage"`
	OverageCharge  *types.Money      `json:"overage_charge,omitempty"`
	UsageByType    map[string]int64  `json:"usage_by_type"`
	PeriodStart    time.Time         `json:"period_start"`
	PeriodEnd      time.Time         `json:"period_end"`
}

// ListOpts filters usage record listings.
type ListOpts struct {
	ResourceType string
	Start        time.Time
	End          time.Time
	Limit        int
	Offset       int
}
