package credits

import (
	"context"

	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Coupon Management
// ──────────────────────────────────────────────────

// CreateCoupon registers a new coupon. The code must be unique; UsageCount
// always starts at zero regardless of the input.
func (e *Engine) CreateCoupon(ctx context.Context, c *coupon.Coupon) error {
	if err := e.validateCouponDefinition(c); err != nil {
		return err
	}

	if c.ID == (id.CouponID{}) {
		c.ID = id.NewCouponID()
	}
	c.Entity = types.NewEntity()
	c.UsageCount = 0
	if c.ValidFrom.IsZero() {
		c.ValidFrom = e.now()
	}

	if err := e.store.CreateCoupon(ctx, c); err != nil {
		return err
	}

	e.logger.Info("coupon created",
		"code", c.Code,
		"type", c.Type,
		"usage_limit", c.UsageLimit,
	)

	e.plugins.EmitCouponCreated(ctx, c)
	return nil
}

func (e *Engine) validateCouponDefinition(c *coupon.Coupon) error {
	if c.Code == "" {
		return ValidationError{Field: "code", Message: "must not be empty"}
	}
	switch c.Type {
	case coupon.TypePercentage:
		if c.Percentage < 1 || c.Percentage > 100 {
			return ValidationError{Field: "percentage", Message: "must be between 1 and 100"}
		}
	case coupon.TypeFixedAmount:
		if !c.Amount.IsPositive() {
			return ValidationError{Field: "amount", Message: "must be positive"}
		}
	case coupon.TypeCredits:
		if c.Credits <= 0 {
			return ValidationError{Field: "credits", Message: "must be positive"}
		}
	default:
		return ValidationError{Field: "type", Message: "unknown coupon type"}
	}
	if c.UsageLimit < 0 || c.UserLimit < 0 {
		return ValidationError{Field: "usage_limit", Message: "must not be negative"}
	}
	// All monetary fields must agree on one currency, or the validation
	// pipeline's money comparisons become undefined.
	if cur := c.Currency(); cur != "" {
		for _, m := range []*types.Money{c.MinAmount, c.MaxDiscount} {
			if m != nil && m.Currency != cur {
				return ValidationError{Field: "currency", Message: "monetary fields must share one currency"}
			}
		}
	}
	if c.ValidUntil != nil && !c.ValidFrom.IsZero() && c.ValidUntil.Before(c.ValidFrom) {
		return ValidationError{Field: "valid_until", Message: "must not precede valid_from"}
	}
	return nil
}

// GetCoupon retrieves a coupon by code.
func (e *Engine) GetCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	return e.store.GetCoupon(ctx, code)
}

// ListCoupons lists coupons, optionally restricted to active ones.
func (e *Engine) ListCoupons(ctx context.Context, opts coupon.ListOpts) ([]*coupon.Coupon, error) {
	return e.store.ListCoupons(ctx, opts)
}

// DeactivateCoupon turns a coupon off. Past redemptions are unaffected.
func (e *Engine) DeactivateCoupon(ctx context.Context, code string) error {
	key := "coupon:" + code
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	c, err := e.store.GetCoupon(ctx, code)
	if err != nil {
		return err
	}

	c.Active = false
	c.Touch()
	return e.store.UpdateCoupon(ctx, c)
}

// ValidateCoupon runs the validation pipeline without redeeming. A missing
// coupon yields an invalid Result, not an error: validation answers "can
// this code be used", and an unknown code is just one way the answer is no.
func (e *Engine) ValidateCoupon(ctx context.Context, code, userID string, orderAmount *types.Money) (*coupon.Result, error) {
	c, err := e.store.GetCoupon(ctx, code)
	if err != nil {
		if IsNotFound(err) {
			return &coupon.Result{Reason: coupon.ReasonNotFound}, nil
		}
		return nil, err
	}

	prior := 0
	if userID != "" {
		prior, err = e.store.CountRedemptions(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
	}

	res := coupon.Validate(c, prior, orderAmount, e.now())
	return &res, nil
}

// RedeemCoupon validates and applies a coupon for a user. On success the
// redemption is logged, the usage counter is bumped, and for credit-type
// coupons the implied grant lands in the user's ledger.
//
// The usage counter increment is the store-side capacity guard: even with
// the code lock held in this process, the conditional update is what keeps
// a shared store from ever exceeding UsageLimit.
func (e *Engine) RedeemCoupon(ctx context.Context, code, userID, orderID string, orderAmount *types.Money) (*coupon.Redemption, error) {
	if userID == "" {
		return nil, ValidationError{Field: "user_id", Message: "must not be empty"}
	}

	key := "coupon:" + code
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	c, err := e.store.GetCoupon(ctx, code)
	if err != nil {
		if IsNotFound(err) {
			e.plugins.EmitCouponRejected(ctx, code, userID, string(coupon.ReasonNotFound))
			return nil, &CouponInvalidError{Code: code, Reason: string(coupon.ReasonNotFound)}
		}
		return nil, err
	}

	prior, err := e.store.CountRedemptions(ctx, c.ID, userID)
	if err != nil {
		return nil, err
	}

	res := coupon.Validate(c, prior, orderAmount, e.now())
	if !res.Valid {
		e.plugins.EmitCouponRejected(ctx, code, userID, string(res.Reason))
		return nil, &CouponInvalidError{Code: code, Reason: string(res.Reason)}
	}

	if err := e.store.IncrementRedemptions(ctx, c.ID); err != nil {
		e.plugins.EmitCouponRejected(ctx, code, userID, string(coupon.ReasonLimitExceeded))
		return nil, err
	}

	if res.CreditGrant > 0 {
		userKey := "user:" + userID
		e.locks.Lock(userKey)
		_, grantErr := e.grantLocked(ctx, userID, res.CreditGrant, credit.KindEarned,
			"coupon "+code, nil, c.ID)
		e.locks.Unlock(userKey)
		if grantErr != nil {
			// Roll the capacity slot back; nothing was granted.
			if derr := e.store.DecrementRedemptions(ctx, c.ID); derr != nil {
				e.logger.Error("redemption rollback failed",
					"code", code,
					"error", derr,
				)
			}
			return nil, grantErr
		}
	}

	redemption := &coupon.Redemption{
		ID:       id.NewRedemptionID(),
		CouponID: c.ID,
		UserID:   userID,
		OrderID:  orderID,
		Discount: res.Discount,
		UsedAt:   e.now(),
	}

	if err := e.store.AppendRedemption(ctx, redemption); err != nil {
		// The counter is ahead of the log now. ReconcileCoupon trues the
		// counter back up from the log; any credit grant stays with the user.
		e.logger.Error("redemption log append failed",
			"code", code,
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("coupon redeemed",
		"code", code,
		"user_id", userID,
		"discount", redemption.Discount.Amount,
		"credit_grant", res.CreditGrant,
	)

	e.plugins.EmitCouponRedeemed(ctx, redemption)
	return redemption, nil
}

// ReconcileCoupon rebuilds a coupon's usage counter from its redemption
// log, repairing drift left by interrupted redemptions.
func (e *Engine) ReconcileCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	key := "coupon:" + code
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	c, err := e.store.GetCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	actual, err := e.store.CountAllRedemptions(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	if actual != c.UsageCount {
		e.logger.Warn("coupon counter drift repaired",
			"code", code,
			"counter", c.UsageCount,
			"log", actual,
		)
		if err := e.store.SetRedemptionCount(ctx, c.ID, actual); err != nil {
			return nil, err
		}
		c.UsageCount = actual
	}

	return c, nil
}

// ListRedemptions lists a coupon's redemption log, newest first.
func (e *Engine) ListRedemptions(ctx context.Context, code string, opts coupon.RedemptionListOpts) ([]*coupon.Redemption, error) {
	c, err := e.store.GetCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	return e.store.ListRedemptions(ctx, c.ID, opts)
}
