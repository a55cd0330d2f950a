package coupon

import (
	"time"

	"github.com/xraph/credits/types"
)

// Reason classifies why a coupon failed validation. Reasons are surfaced
// verbatim to the end user and never retried automatically.
type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonInactive          Reason = "inactive"
	ReasonNotYetValid       Reason = "not_yet_valid"
	ReasonExpired           Reason = "expired"
	ReasonLimitExceeded     Reason = "limit_exceeded"
	ReasonUserLimitExceeded Reason = "user_limit_exceeded"
	ReasonBelowMinimum      Reason = "below_minimum"
	ReasonCurrencyMismatch  Reason = "currency_mismatch"
)

// Result is the outcome of running the validation pipeline.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason,omitempty"`

	// Discount is the computed order discount. Zero when no order amount
	// was supplied or for TypeCredits coupons.
	Discount types.Money `json:"discount"`

	// CreditGrant is the implied ledger grant for TypeCredits coupons.
	CreditGrant int64 `json:"credit_grant,omitempty"`

	Coupon *Coupon `json:"coupon,omitempty"`
}

// Validate runs the ordered validation pipeline for a coupon against an
// order context. It is pure: no clock reads, no store access, no side
// effects. The first failing check short-circuits with its reason.
//
// priorUserRedemptions is the count of the user's earlier redemptions of
// this coupon; orderAmount may be nil when validating outside a checkout.
func Validate(c *Coupon, priorUserRedemptions int, orderAmount *types.Money, now time.Time) Result {
	if !c.Active {
		return Result{Reason: ReasonInactive}
	}
	if now.Before(c.ValidFrom) {
		return Result{Reason: ReasonNotYetValid}
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return Result{Reason: ReasonExpired}
	}
	if c.Exhausted() {
		return Result{Reason: ReasonLimitExceeded}
	}
	if c.UserLimit > 0 && priorUserRedemptions >= c.UserLimit {
		return Result{Reason: ReasonUserLimitExceeded}
	}
	if orderAmount != nil {
		// An order in a currency the coupon is not denominated in can
		// never be compared or discounted; reject instead of panicking
		// in the money arithmetic below.
		if cur := c.Currency(); cur != "" && cur != orderAmount.Currency {
			return Result{Reason: ReasonCurrencyMismatch}
		}
		if c.MinAmount != nil && orderAmount.LessThan(*c.MinAmount) {
			return Result{Reason: ReasonBelowMinimum}
		}
	}

	res := Result{Valid: true, Coupon: c}

	switch c.Type {
	case TypePercentage:
		if orderAmount != nil {
			discount := orderAmount.Percent(int64(c.Percentage))
			if c.MaxDiscount != nil {
				discount = discount.Min(*c.MaxDiscount)
			}
			res.Discount = discount
		}
	case TypeFixedAmount:
		if orderAmount != nil {
			res.Discount = c.Amount.Min(*orderAmount)
		}
	case TypeCredits:
		// No order-amount interaction: the benefit is a ledger grant.
		res.CreditGrant = c.Credits
	}

	return res
}
