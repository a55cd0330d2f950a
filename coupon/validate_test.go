package coupon

import (
	"testing"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

func activeCoupon(typ Type) *Coupon {
	return &Coupon{
		ID:        id.NewCouponID(),
		Code:      "WELCOME",
		Type:      typ,
		Active:    true,
		ValidFrom: time.Now().Add(-time.Hour),
	}
}

func money(cents int64) *types.Money {
	m := types.USD(cents)
	return &m
}

func eur(cents int64) *types.Money {
	m := types.EUR(cents)
	return &m
}

func TestValidateChecksInOrder(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name       string
		mutate     func(*Coupon)
		priorUses  int
		order      *types.Money
		wantReason Reason
	}{
		{
			name:       "inactive",
			mutate:     func(c *Coupon) { c.Active = false },
			wantReason: ReasonInactive,
		},
		{
			name:       "not yet valid",
			mutate:     func(c *Coupon) { c.ValidFrom = future },
			wantReason: ReasonNotYetValid,
		},
		{
			name:       "expired",
			mutate:     func(c *Coupon) { c.ValidUntil = &past },
			wantReason: ReasonExpired,
		},
		{
			name: "usage limit exceeded",
			mutate: func(c *Coupon) {
				c.UsageLimit = 5
				c.UsageCount = 5
			},
			wantReason: ReasonLimitExceeded,
		},
		{
			name:       "user limit exceeded",
			mutate:     func(c *Coupon) { c.UserLimit = 2 },
			priorUses:  2,
			wantReason: ReasonUserLimitExceeded,
		},
		{
			name:       "below minimum",
			mutate:     func(c *Coupon) { c.MinAmount = money(5000) },
			order:      money(4999),
			wantReason: ReasonBelowMinimum,
		},
		{
			name:       "order currency mismatch",
			mutate:     func(c *Coupon) { c.MinAmount = money(5000) },
			order:      eur(10000),
			wantReason: ReasonCurrencyMismatch,
		},
		{
			name: "inactive wins over expired",
			mutate: func(c *Coupon) {
				c.Active = false
				c.ValidUntil = &past
			},
			wantReason: ReasonInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon(TypePercentage)
			c.Percentage = 10
			tt.mutate(c)

			res := Validate(c, tt.priorUses, tt.order, now)
			if res.Valid {
				t.Fatal("expected invalid result")
			}
			if res.Reason != tt.wantReason {
				t.Errorf("reason: got %q, want %q", res.Reason, tt.wantReason)
			}
		})
	}
}

func TestValidatePercentageDiscount(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		percentage  int
		maxDiscount *types.Money
		order       int64
		want        int64
	}{
		{"plain percentage", 20, nil, 10000, 2000},
		{"capped by max discount", 20, money(1000), 10000, 1000},
		{"under the cap", 10, money(5000), 10000, 1000},
		{"full discount", 100, nil, 2500, 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon(TypePercentage)
			c.Percentage = tt.percentage
			c.MaxDiscount = tt.maxDiscount

			res := Validate(c, 0, money(tt.order), now)
			if !res.Valid {
				t.Fatalf("unexpected invalid result: %s", res.Reason)
			}
			if res.Discount.Amount != tt.want {
				t.Errorf("discount: got %d, want %d", res.Discount.Amount, tt.want)
			}
		})
	}
}

func TestValidateFixedAmountNeverExceedsOrder(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		amount int64
		order  int64
		want   int64
	}{
		{"below order", 500, 1000, 500},
		{"exceeds order", 500, 300, 300},
		{"equal to order", 500, 500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon(TypeFixedAmount)
			c.Amount = types.USD(tt.amount)

			res := Validate(c, 0, money(tt.order), now)
			if !res.Valid {
				t.Fatalf("unexpected invalid result: %s", res.Reason)
			}
			if res.Discount.Amount != tt.want {
				t.Errorf("discount: got %d, want %d", res.Discount.Amount, tt.want)
			}
		})
	}
}

func TestValidateMaxDiscountForeignOrder(t *testing.T) {
	now := time.Now()

	// A percentage coupon capped in USD must reject a EUR order before
	// any money comparison runs.
	c := activeCoupon(TypePercentage)
	c.Percentage = 20
	c.MaxDiscount = money(1000)

	res := Validate(c, 0, eur(10000), now)
	if res.Valid || res.Reason != ReasonCurrencyMismatch {
		t.Fatalf("result = %+v, want currency_mismatch", res)
	}
}

func TestValidateCreditsCoupon(t *testing.T) {
	now := time.Now()
	c := activeCoupon(TypeCredits)
	c.Credits = 500

	res := Validate(c, 0, money(10000), now)
	if !res.Valid {
		t.Fatalf("unexpected invalid result: %s", res.Reason)
	}
	if !res.Discount.IsZero() {
		t.Errorf("credits coupon should not discount the order, got %v", res.Discount)
	}
	if res.CreditGrant != 500 {
		t.Errorf("credit grant: got %d, want 500", res.CreditGrant)
	}
}

func TestValidateWithoutOrderAmount(t *testing.T) {
	now := time.Now()

	// MinAmount is only enforced when an order amount is supplied.
	c := activeCoupon(TypePercentage)
	c.Percentage = 20
	c.MinAmount = money(5000)

	res := Validate(c, 0, nil, now)
	if !res.Valid {
		t.Fatalf("unexpected invalid result: %s", res.Reason)
	}
	if !res.Discount.IsZero() {
		t.Errorf("discount without order amount should be zero, got %v", res.Discount)
	}
}

func TestValidateBoundaryTimes(t *testing.T) {
	now := time.Now()

	c := activeCoupon(TypePercentage)
	c.Percentage = 10
	c.ValidFrom = now // now >= validFrom passes
	c.ValidUntil = &now

	res := Validate(c, 0, nil, now)
	if !res.Valid {
		t.Fatalf("coupon valid exactly at its window edges, got %s", res.Reason)
	}
}
