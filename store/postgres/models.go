package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/usage"
)

// ==================== Ledger entry models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:credits_entries"`

	ID            string     `grove:"id,pk"`
	UserID        string     `grove:"user_id"`
	Amount        int64      `grove:"amount"`
	Kind          string     `grove:"kind"`
	Description   string     `grove:"description"`
	ExpiresAt     *time.Time `grove:"expires_at"`
	CouponID      string     `grove:"coupon_id"`
	SourceEntryID string     `grove:"source_entry_id"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toEntryModel(e *credit.Entry) *entryModel {
	m := &entryModel{
		ID:          e.ID.String(),
		UserID:      e.UserID,
		Amount:      e.Amount,
		Kind:        string(e.Kind),
		Description: e.Description,
		ExpiresAt:   e.ExpiresAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if !e.CouponID.IsNil() {
		m.CouponID = e.CouponID.String()
	}
	if !e.SourceEntryID.IsNil() {
		m.SourceEntryID = e.SourceEntryID.String()
	}
	return m
}

func fromEntryModel(m *entryModel) (*credit.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}

	e := &credit.Entry{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          entryID,
		UserID:      m.UserID,
		Amount:      m.Amount,
		Kind:        credit.Kind(m.Kind),
		Description: m.Description,
		ExpiresAt:   m.ExpiresAt,
	}

	if m.CouponID != "" {
		couponID, err := id.ParseCouponID(m.CouponID)
		if err != nil {
			return nil, err
		}
		e.CouponID = couponID
	}
	if m.SourceEntryID != "" {
		sourceID, err := id.ParseEntryID(m.SourceEntryID)
		if err != nil {
			return nil, err
		}
		e.SourceEntryID = sourceID
	}

	return e, nil
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:credits_balances"`

	UserID           string    `grove:"user_id,pk"`
	TotalCredits     int64     `grove:"total_credits"`
	AvailableCredits int64     `grove:"available_credits"`
	UsedCredits      int64     `grove:"used_credits"`
	ExpiredCredits   int64     `grove:"expired_credits"`
	Version          int64     `grove:"version"`
	LastUpdated      time.Time `grove:"last_updated"`
}

func toBalanceModel(b *credit.Balance) *balanceModel {
	return &balanceModel{
		UserID:           b.UserID,
		TotalCredits:     b.TotalCredits,
		AvailableCredits: b.AvailableCredits,
		UsedCredits:      b.UsedCredits,
		ExpiredCredits:   b.ExpiredCredits,
		Version:          b.Version,
		LastUpdated:      b.LastUpdated,
	}
}

func fromBalanceModel(m *balanceModel) *credit.Balance {
	return &credit.Balance{
		UserID:           m.UserID,
		TotalCredits:     m.TotalCredits,
		AvailableCredits: m.AvailableCredits,
		UsedCredits:      m.UsedCredits,
		ExpiredCredits:   m.ExpiredCredits,
		Version:          m.Version,
		LastUpdated:      m.LastUpdated,
	}
}

// ==================== Coupon models ====================

type couponModel struct {
	grove.BaseModel `grove:"table:credits_coupons"`

	ID                  string            `grove:"id,pk"`
	Code                string            `grove:"code"`
	Name                string            `grove:"name"`
	Type                string            `grove:"type"`
	Percentage          int               `grove:"percentage"`
	AmountCents         int64             `grove:"amount_cents"`
	AmountCurrency      string            `grove:"amount_currency"`
	Credits             int64             `grove:"credits"`
	MinAmountCents      *int64            `grove:"min_amount_cents"`
	MinAmountCurrency   string            `grove:"min_amount_currency"`
	MaxDiscountCents    *int64            `grove:"max_discount_cents"`
	MaxDiscountCurrency string            `grove:"max_discount_currency"`
	UsageLimit          int               `grove:"usage_limit"`
	UsageCount          int               `grove:"usage_count"`
	UserLimit           int               `grove:"user_limit"`
	ValidFrom           time.Time         `grove:"valid_from"`
	ValidUntil          *time.Time        `grove:"valid_until"`
	Active              bool              `grove:"active"`
	Metadata            map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt           time.Time         `grove:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"`
}

func toCouponModel(c *coupon.Coupon) *couponModel {
	m := &couponModel{
		ID:             c.ID.String(),
		Code:           c.Code,
		Name:           c.Name,
		Type:           string(c.Type),
		Percentage:     c.Percentage,
		AmountCents:    c.Amount.Amount,
		AmountCurrency: c.Amount.Currency,
		Credits:        c.Credits,
		UsageLimit:     c.UsageLimit,
		UsageCount:     c.UsageCount,
		UserLimit:      c.UserLimit,
		ValidFrom:      c.ValidFrom,
		ValidUntil:     c.ValidUntil,
		Active:         c.Active,
		Metadata:       c.Metadata,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.MinAmount != nil {
		m.MinAmountCents = &c.MinAmount.Amount
		m.MinAmountCurrency = c.MinAmount.Currency
	}
	if c.MaxDiscount != nil {
		m.MaxDiscountCents = &c.MaxDiscount.Amount
		m.MaxDiscountCurrency = c.MaxDiscount.Currency
	}
	return m
}

func fromCouponModel(m *couponModel) (*coupon.Coupon, error) {
	couponID, err := id.ParseCouponID(m.ID)
	if err != nil {
		return nil, err
	}

	c := &coupon.Coupon{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         couponID,
		Code:       m.Code,
		Name:       m.Name,
		Type:       coupon.Type(m.Type),
		Percentage: m.Percentage,
		Amount:     types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		Credits:    m.Credits,
		UsageLimit: m.UsageLimit,
		UsageCount: m.UsageCount,
		UserLimit:  m.UserLimit,
		ValidFrom:  m.ValidFrom,
		ValidUntil: m.ValidUntil,
		Active:     m.Active,
		Metadata:   m.Metadata,
	}
	if m.MinAmountCents != nil {
		c.MinAmount = &types.Money{Amount: *m.MinAmountCents, Currency: m.MinAmountCurrency}
	}
	if m.MaxDiscountCents != nil {
		c.MaxDiscount = &types.Money{Amount: *m.MaxDiscountCents, Currency: m.MaxDiscountCurrency}
	}
	return c, nil
}

// ==================== Redemption models ====================

type redemptionModel struct {
	grove.BaseModel `grove:"table:credits_redemptions"`

	ID               string    `grove:"id,pk"`
	CouponID         string    `grove:"coupon_id"`
	UserID           string    `grove:"user_id"`
	OrderID          string    `grove:"order_id"`
	DiscountCents    int64     `grove:"discount_cents"`
	DiscountCurrency string    `grove:"discount_currency"`
	UsedAt           time.Time `grove:"used_at"`
}

func toRedemptionModel(r *coupon.Redemption) *redemptionModel {
	return &redemptionModel{
		ID:               r.ID.String(),
		CouponID:         r.CouponID.String(),
		UserID:           r.UserID,
		OrderID:          r.OrderID,
		DiscountCents:    r.Discount.Amount,
		DiscountCurrency: r.Discount.Currency,
		UsedAt:           r.UsedAt,
	}
}

func fromRedemptionModel(m *redemptionModel) (*coupon.Redemption, error) {
	redemptionID, err := id.ParseRedemptionID(m.ID)
	if err != nil {
		return nil, err
	}
	couponID, err := id.ParseCouponID(m.CouponID)
	if err != nil {
		return nil, err
	}

	return &coupon.Redemption{
		ID:       redemptionID,
		CouponID: couponID,
		UserID:   m.UserID,
		OrderID:  m.OrderID,
		Discount: types.Money{Amount: m.DiscountCents, Currency: m.DiscountCurrency},
		UsedAt:   m.UsedAt,
	}, nil
}

// ==================== Usage record models ====================

type usageRecordModel struct {
	grove.BaseModel `grove:"table:credits_usage_records"`

	ID             string    `grove:"id,pk"`
	UserID         string    `grove:"user_id"`
	SubscriptionID string    `grove:"subscription_id"`
	ResourceType   string    `grove:"resource_type"`
	Amount         int64     `grove:"amount"`
	Unit           string    `grove:"unit"`
	Description    string    `grove:"description"`
	RecordedAt     time.Time `grove:"recorded_at"`
	PeriodStart    time.Time `grove:"period_start"`
	PeriodEnd      time.Time `grove:"period_end"`
}

func toUsageRecordModel(r *usage.Record) *usageRecordModel {
	return &usageRecordModel{
		ID:             r.ID.String(),
		UserID:         r.UserID,
		SubscriptionID: r.SubscriptionID.String(),
		ResourceType:   r.ResourceType,
		Amount:         r.Amount,
		Unit:           r.Unit,
		Description:    r.Description,
		RecordedAt:     r.RecordedAt,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
	}
}

func fromUsageRecordModel(m *usageRecordModel) (*usage.Record, error) {
	recordID, err := id.ParseUsageRecordID(m.ID)
	if err != nil {
		return nil, err
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, err
	}

	return &usage.Record{
		ID:             recordID,
		UserID:         m.UserID,
		SubscriptionID: subID,
		ResourceType:   m.ResourceType,
		Amount:         m.Amount,
		Unit:           m.Unit,
		Description:    m.Description,
		RecordedAt:     m.RecordedAt,
		PeriodStart:    m.PeriodStart,
		PeriodEnd:      m.PeriodEnd,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:credits_subscriptions"`

	ID                  string            `grove:"id,pk"`
	UserID              string            `grove:"user_id"`
	Status              string            `grove:"status"`
	UsageLimit          int64             `grove:"usage_limit"`
	CurrentUsage        int64             `grove:"current_usage"`
	Overage             int64             `grove:"overage"`
	OverageRateCents    *int64            `grove:"overage_rate_cents"`
	OverageRateCurrency string            `grove:"overage_rate_currency"`
	PeriodStart         time.Time         `grove:"period_start"`
	PeriodEnd           time.Time         `grove:"period_end"`
	CanceledAt          *time.Time        `grove:"canceled_at"`
	Metadata            map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt           time.Time         `grove:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	m := &subscriptionModel{
		ID:           s.ID.String(),
		UserID:       s.UserID,
		Status:       string(s.Status),
		UsageLimit:   s.UsageLimit,
		CurrentUsage: s.CurrentUsage,
		Overage:      s.Overage,
		PeriodStart:  s.PeriodStart,
		PeriodEnd:    s.PeriodEnd,
		CanceledAt:   s.CanceledAt,
		Metadata:     s.Metadata,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.OverageRate != nil {
		m.OverageRateCents = &s.OverageRate.Amount
		m.OverageRateCurrency = s.OverageRate.Currency
	}
	return m
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	s := &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           subID,
		UserID:       m.UserID,
		Status:       subscription.Status(m.Status),
		UsageLimit:   m.UsageLimit,
		CurrentUsage: m.CurrentUsage,
		Overage:      m.Overage,
		PeriodStart:  m.PeriodStart,
		PeriodEnd:    m.PeriodEnd,
		CanceledAt:   m.CanceledAt,
		Metadata:     m.Metadata,
	}
	if m.OverageRateCents != nil {
		s.OverageRate = &types.Money{Amount: *m.OverageRateCents, Currency: m.OverageRateCurrency}
	}
	return s, nil
}
