package store

import (
	"context"
	"time"

	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/usage"
)

// Store is the unified storage interface for all credits entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Ledger methods. Entries are append-only; the only mutation is the
	// expired-offset append performed by the sweeper.
	AppendEntry(ctx context.Context, e *credit.Entry) error
	GetEntry(ctx context.Context, entryID id.EntryID) (*credit.Entry, error)
	ListEntries(ctx context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error)
	ReplayEntries(ctx context.Context, userID string) ([]*credit.Entry, error)
	ListExpiring(ctx context.Context, userID string, from, until time.Time) ([]*credit.Entry, error)
	ListSweepCandidates(ctx context.Context, asOf time.Time) ([]*credit.Entry, error)

	// Balance methods. PutBalance is a compare-and-swap on Version and
	// returns ErrConcurrencyConflict when the stored version moved.
	GetBalance(ctx context.Context, userID string) (*credit.Balance, error)
	PutBalance(ctx context.Context, b *credit.Balance) error

	// Coupon methods
	CreateCoupon(ctx context.Context, c *coupon.Coupon) error
	GetCoupon(ctx context.Context, code string) (*coupon.Coupon, error)
	GetCouponByID(ctx context.Context, couponID id.CouponID) (*coupon.Coupon, error)
	ListCoupons(ctx context.Context, opts coupon.ListOpts) ([]*coupon.Coupon, error)
	UpdateCoupon(ctx context.Context, c *coupon.Coupon) error
	DeleteCoupon(ctx context.Context, couponID id.CouponID) error

	// Redemption methods. IncrementRedemptions is the atomic capacity
	// guard: it succeeds only while usage_count < usage_limit (or the
	// limit is unset) and returns ErrCouponExhausted otherwise.
	IncrementRedemptions(ctx context.Context, couponID id.CouponID) error
	DecrementRedemptions(ctx context.Context, couponID id.CouponID) error
	SetRedemptionCount(ctx context.Context, couponID id.CouponID, count int) error
	AppendRedemption(ctx context.Context, r *coupon.Redemption) error
	CountRedemptions(ctx context.Context, couponID id.CouponID, userID string) (int, error)
	CountAllRedemptions(ctx context.Context, couponID id.CouponID) (int, error)
	ListRedemptions(ctx context.Context, couponID id.CouponID, opts coupon.RedemptionListOpts) ([]*coupon.Redemption, error)

	// Usage methods
	AppendUsage(ctx context.Context, r *usage.Record) error
	SumUsage(ctx context.Context, subID id.SubscriptionID, start, end time.Time) (map[string]int64, error)
	ListUsage(ctx context.Context, subID id.SubscriptionID, opts usage.ListOpts) ([]*usage.Record, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	ListRolloverDue(ctx context.Context, asOf time.Time) ([]*subscription.Subscription, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
