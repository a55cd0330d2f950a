// Package coupon defines discount coupons, their append-only redemption
// log, and the pure validation pipeline that classifies a coupon against
// an order context.
package coupon

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Type determines how a coupon's benefit is computed.
type Type string

const (
	// TypePercentage discounts a percentage of the order amount,
	// optionally capped by MaxDiscount.
	TypePercentage Type = "percentage"
	// TypeFixedAmount discounts a fixed amount, never exceeding the order.
	TypeFixedAmount Type = "fixed_amount"
	// TypeCredits grants Credits to the redeeming user's ledger instead
	// of discounting the order.
	TypeCredits Type = "credits"
)

// Coupon is a discount definition with a validity window and usage caps.
// UsageCount is server-maintained: it is incremented exactly once per
// successful redemption and never exceeds UsageLimit once set.
type Coupon struct {
	types.Entity
	ID         id.CouponID `json:"id"`
	Code       string      `json:"code"` // Unique, case-sensitive
	Name       string      `json:"name"`
	Type       Type        `json:"type"`
	Percentage int         `json:"percentage,omitempty"` // TypePercentage
	Amount     types.Money `json:"amount,omitempty"`     // TypeFixedAmount
	Credits    int64       `json:"credits,omitempty"`    // TypeCredits grant size

	MinAmount   *types.Money `json:"min_amount,omitempty"`   // Minimum order amount
	MaxDiscount *types.Money `json:"max_discount,omitempty"` // Cap for percentage discounts

	UsageLimit int `json:"usage_limit"` // 0 = unlimited
	UsageCount int `json:"usage_count"`
	UserLimit  int `json:"user_limit"` // Per-user redemption cap, 0 = unlimited

	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Active     bool       `json:"active"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Exhausted reports whether the global usage cap has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit
}

// Currency returns the currency the coupon's monetary fields are
// denominated in, or "" when the coupon carries none.
func (c *Coupon) Currency() string {
	switch {
	case c.Type == TypeFixedAmount:
		return c.Amount.Currency
	case c.MinAmount != nil:
		return c.MinAmount.Currency
	case c.MaxDiscount != nil:
		return c.MaxDiscount.Currency
	}
	return ""
}

// Redemption is one immutable row in the redemption log: a single
// successful application of a coupon by a user. The log enforces
// per-user limits and feeds redemption analytics.
type Redemption struct {
	ID       id.RedemptionID `json:"id"`
	CouponID id.CouponID     `json:"coupon_id"`
	UserID   string          `json:"user_id"`
	OrderID  string          `json:"order_id,omitempty"`
	Discount types.Money     `json:"discount"`
	UsedAt   time.Time       `json:"used_at"`
}

// ListOpts filters coupon listings.
type ListOpts struct {
	Active bool // Only coupons inside their validity window
	Limit  int
	Offset int
}

// RedemptionListOpts filters redemption log listings.
type RedemptionListOpts struct {
	UserID string
	Limit  int
	Offset int
}
