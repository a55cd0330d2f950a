// Package mongo implements the credits store on MongoDB via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/credits"
	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	creditsstore "github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/usage"
)

// Collection name constants.
const (
	colEntries       = "credits_entries"
	colBalances      = "credits_balances"
	colCoupons       = "credits_coupons"
	colRedemptions   = "credits_redemptions"
	colUsageRecords  = "credits_usage_records"
	colSubscriptions = "credits_subscriptions"
)

// compile-time interface check
var _ creditsstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all credits collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("credits/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Ledger Store ====================

func (s *Store) AppendEntry(ctx context.Context, e *credit.Entry) error {
	m := toEntryModel(e)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: append entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*credit.Entry, error) {
	var m entryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrEntryNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get entry: %w", err)
	}
	return fromEntryModel(&m)
}

func (s *Store) ListEntries(ctx context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error) {
	var models []entryModel

	filter := bson.M{"user_id": userID}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list entries: %w", err)
	}
	return entriesFromModels(models)
}

func (s *Store) ReplayEntries(ctx context.Context, userID string) ([]*credit.Entry, error) {
	var models []entryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: replay entries: %w", err)
	}
	return entriesFromModels(models)
}

func (s *Store) ListExpiring(ctx context.Context, userID string, from, until time.Time) ([]*credit.Entry, error) {
	var models []entryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"user_id":    userID,
			"amount":     bson.M{"$gt": 0},
			"expires_at": bson.M{"$gte": from, "$lt": until},
		}).
		Sort(bson.D{{Key: "expires_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: list expiring: %w", err)
	}
	return entriesFromModels(models)
}

func (s *Store) ListSweepCandidates(ctx context.Context, asOf time.Time) ([]*credit.Entry, error) {
	// Grants already neutralized by an offset entry are excluded up front.
	res := s.mdb.Collection(colEntries).Distinct(ctx, "source_entry_id",
		bson.M{"source_entry_id": bson.M{"$ne": ""}})
	var offsetIDs []string
	if err := res.Decode(&offsetIDs); err != nil {
		return nil, fmt.Errorf("credits/mongo: list offset ids: %w", err)
	}

	filter := bson.M{
		"amount":     bson.M{"$gt": 0},
		"expires_at": bson.M{"$ne": nil, "$lte": asOf},
	}
	if len(offsetIDs) > 0 {
		filter["_id"] = bson.M{"$nin": offsetIDs}
	}

	var models []entryModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "expires_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: list sweep candidates: %w", err)
	}
	return entriesFromModels(models)
}

func entriesFromModels(models []entryModel) ([]*credit.Entry, error) {
	result := make([]*credit.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, userID string) (*credit.Balance, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get balance: %w", err)
	}
	return fromBalanceModel(&m), nil
}

func (s *Store) PutBalance(ctx context.Context, b *credit.Balance) error {
	// Swap only when the stored version is exactly one behind.
	res, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": b.UserID, "version": b.Version - 1}).
		SetUpdate(bson.M{"$set": bson.M{
			"total_credits":     b.TotalCredits,
			"available_credits": b.AvailableCredits,
			"used_credits":      b.UsedCredits,
			"expired_credits":   b.ExpiredCredits,
			"version":           b.Version,
			"last_updated":      b.LastUpdated,
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: put balance: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	if b.Version != 1 {
		return credits.ErrConcurrencyConflict
	}

	// First snapshot for this user; a concurrent insert loses the race.
	m := toBalanceModel(b)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrConcurrencyConflict
		}
		return fmt.Errorf("credits/mongo: insert balance: %w", err)
	}
	return nil
}

// ==================== Coupon Store ====================

func (s *Store) CreateCoupon(ctx context.Context, c *coupon.Coupon) error {
	m := toCouponModel(c)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: create coupon: %w", err)
	}
	return nil
}

func (s *Store) GetCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	var m couponModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"code": code}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrCouponNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get coupon: %w", err)
	}
	return fromCouponModel(&m)
}

func (s *Store) GetCouponByID(ctx context.Context, couponID id.CouponID) (*coupon.Coupon, error) {
	var m couponModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": couponID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrCouponNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get coupon by id: %w", err)
	}
	return fromCouponModel(&m)
}

func (s *Store) ListCoupons(ctx context.Context, opts coupon.ListOpts) ([]*coupon.Coupon, error) {
	var models []couponModel

	filter := bson.M{}
	if opts.Active {
		t := time.Now().UTC()
		filter["active"] = true
		filter["valid_from"] = bson.M{"$lte": t}
		filter["$or"] = bson.A{
			bson.M{"valid_until": bson.M{"$exists": false}},
			bson.M{"valid_until": nil},
			bson.M{"valid_until": bson.M{"$gte": t}},
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "code", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list coupons: %w", err)
	}

	result := make([]*coupon.Coupon, len(models))
	for i := range models {
		c, err := fromCouponModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) UpdateCoupon(ctx context.Context, c *coupon.Coupon) error {
	// usage_count is deliberately absent: the counter only moves through
	// IncrementRedemptions, DecrementRedemptions and SetRedemptionCount.
	m := toCouponModel(c)
	res, err := s.mdb.NewUpdate((*couponModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"code":                  m.Code,
			"name":                  m.Name,
			"type":                  m.Type,
			"percentage":            m.Percentage,
			"amount_cents":          m.AmountCents,
			"amount_currency":       m.AmountCurrency,
			"credits":               m.Credits,
			"min_amount_cents":      m.MinAmountCents,
			"min_amount_currency":   m.MinAmountCurrency,
			"max_discount_cents":    m.MaxDiscountCents,
			"max_discount_currency": m.MaxDiscountCurrency,
			"usage_limit":           m.UsageLimit,
			"user_limit":            m.UserLimit,
			"valid_from":            m.ValidFrom,
			"valid_until":           m.ValidUntil,
			"active":                m.Active,
			"metadata":              m.Metadata,
			"updated_at":            now(),
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: update coupon: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrCouponNotFound
	}
	return nil
}

func (s *Store) DeleteCoupon(ctx context.Context, couponID id.CouponID) error {
	_, err := s.mdb.NewDelete((*couponModel)(nil)).
		Filter(bson.M{"_id": couponID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: delete coupon: %w", err)
	}
	return nil
}

// ==================== Redemption Store ====================

func (s *Store) IncrementRedemptions(ctx context.Context, couponID id.CouponID) error {
	// The filter is the capacity guard: the counter can never pass the
	// limit no matter how many processes race on it.
	res, err := s.mdb.NewUpdate((*couponModel)(nil)).
		Filter(bson.M{
			"_id": couponID.String(),
			"$or": bson.A{
				bson.M{"usage_limit": 0},
				bson.M{"$expr": bson.M{"$lt": bson.A{"$usage_count", "$usage_limit"}}},
			},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"usage_count": 1},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: increment redemptions: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	if _, err := s.GetCouponByID(ctx, couponID); err != nil {
		return err
	}
	return credits.ErrCouponExhausted
}

func (s *Store) DecrementRedemptions(ctx context.Context, couponID id.CouponID) error {
	_, err := s.mdb.NewUpdate((*couponModel)(nil)).
		Filter(bson.M{
			"_id":         couponID.String(),
			"usage_count": bson.M{"$gt": 0},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"usage_count": -1},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: decrement redemptions: %w", err)
	}
	return nil
}

func (s *Store) SetRedemptionCount(ctx context.Context, couponID id.CouponID, count int) error {
	res, err := s.mdb.NewUpdate((*couponModel)(nil)).
		Filter(bson.M{"_id": couponID.String()}).
		SetUpdate(bson.M{"$set": bson.M{
			"usage_count": count,
			"updated_at":  now(),
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: set redemption count: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrCouponNotFound
	}
	return nil
}

func (s *Store) AppendRedemption(ctx context.Context, r *coupon.Redemption) error {
	m := toRedemptionModel(r)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: append redemption: %w", err)
	}
	return nil
}

func (s *Store) CountRedemptions(ctx context.Context, couponID id.CouponID, userID string) (int, error) {
	count, err := s.mdb.Collection(colRedemptions).CountDocuments(ctx, bson.M{
		"coupon_id": couponID.String(),
		"user_id":   userID,
	})
	if err != nil {
		return 0, fmt.Errorf("credits/mongo: count redemptions: %w", err)
	}
	return int(count), nil
}

func (s *Store) CountAllRedemptions(ctx context.Context, couponID id.CouponID) (int, error) {
	count, err := s.mdb.Collection(colRedemptions).CountDocuments(ctx, bson.M{
		"coupon_id": couponID.String(),
	})
	if err != nil {
		return 0, fmt.Errorf("credits/mongo: count all redemptions: %w", err)
	}
	return int(count), nil
}

func (s *Store) ListRedemptions(ctx context.Context, couponID id.CouponID, opts coupon.RedemptionListOpts) ([]*coupon.Redemption, error) {
	var models []redemptionModel

	filter := bson.M{"coupon_id": couponID.String()}
	if opts.UserID != "" {
		filter["user_id"] = opts.UserID
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "used_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list redemptions: %w", err)
	}

	result := make([]*coupon.Redemption, len(models))
	for i := range models {
		r, err := fromRedemptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Usage Store ====================

func (s *Store) AppendUsage(ctx context.Context, r *usage.Record) error {
	m := toUsageRecordModel(r)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: append usage: %w", err)
	}
	return nil
}

func (s *Store) SumUsage(ctx context.Context, subID id.SubscriptionID, start, end time.Time) (map[string]int64, error) {
	pipeline := bson.A{
		bson.M{
			"$match": bson.M{
				"subscription_id": subID.String(),
				"recorded_at":     bson.M{"$gte": start, "$lt": end},
			},
		},
		bson.M{
			"$group": bson.M{
				"_id":   "$resource_type",
				"total": bson.M{"$sum": "$amount"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colUsageRecords).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: sum usage: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		ResourceType string `bson:"_id"`
		Total        int64  `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("credits/mongo: sum usage decode: %w", err)
	}

	result := make(map[string]int64, len(results))
	for _, r := range results {
		result[r.ResourceType] = r.Total
	}
	return result, nil
}

func (s *Store) ListUsage(ctx context.Context, subID id.SubscriptionID, opts usage.ListOpts) ([]*usage.Record, error) {
	var models []usageRecordModel

	filter := bson.M{"subscription_id": subID.String()}
	if opts.ResourceType != "" {
		filter["resource_type"] = opts.ResourceType
	}
	ts := bson.M{}
	if !opts.Start.IsZero() {
		ts["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		ts["$lt"] = opts.End
	}
	if len(ts) > 0 {
		filter["recorded_at"] = ts
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "recorded_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list usage: %w", err)
	}

	result := make([]*usage.Record, len(models))
	for i := range models {
		r, err := fromUsageRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"user_id": userID,
			"status":  string(subscription.StatusActive),
		}).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("credits/mongo: get active subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListRolloverDue(ctx context.Context, asOf time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":     string(subscription.StatusActive),
			"period_end": bson.M{"$lte": asOf},
		}).
		Sort(bson.D{{Key: "period_end", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: list rollover due: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all credits collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colEntries: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}, {Key: "amount", Value: 1}}},
			{
				Keys: bson.D{{Key: "source_entry_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"source_entry_id": bson.M{"$gt": ""}}),
			},
		},
		colBalances: {},
		colCoupons: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "valid_from", Value: 1}, {Key: "valid_until", Value: 1}}},
		},
		colRedemptions: {
			{Keys: bson.D{{Key: "coupon_id", Value: 1}, {Key: "used_at", Value: -1}}},
			{Keys: bson.D{{Key: "coupon_id", Value: 1}, {Key: "user_id", Value: 1}}},
		},
		colUsageRecords: {
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "recorded_at", Value: -1}}},
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "resource_type", Value: 1}, {Key: "recorded_at", Value: -1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "period_end", Value: 1}}},
		},
	}
}
