// Package sqlite implements the credits store on SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/credits"
	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	creditsstore "github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/usage"
)

// compile-time interface check
var _ creditsstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("credits/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("credits/sqlite: migration failed: %w", err)
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*credit.Entry, error) {
	m := new(entryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", entryID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(m)
}

func (s *Store) ListEntries(ctx context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error) {
	var models []entryModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID)

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entriesFromModels(models)
}

func (s *Store) ReplayEntries(ctx context.Context, userID string) ([]*credit.Entry, error) {
	var models []entryModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entriesFromModels(models)
}

func (s *Store) ListExpiring(ctx context.Context, userID string, from, until time.Time) ([]*credit.Entry, error) {
	var models []entryModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		Where("amount > 0").
		Where("expires_at >= ?", from).
		Where("expires_at < ?", until).
		OrderExpr("expires_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entriesFromModels(models)
}

func (s *Store) ListSweepCandidates(ctx context.Context, asOf time.Time) ([]*credit.Entry, error) {
	var models []entryModel
	err := s.sdb.NewSelect(&models).
		Where("amount > 0").
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", asOf).
		Where("NOT EXISTS (SELECT 1 FROM credits_entries o WHERE o.source_entry_id = credits_entries.id)").
		OrderExpr("expires_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrBalanceNotFound
		}
		return nil, err
	}
	return fromBalanceModel(m), nil
}

func (s *Store) PutBalance(ctx context.Context, b *credit.Balance) error {
	// Swap only when the stored version is exactly one behind.
	res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
		Set("total_credits = ?", b.TotalCredits).
		Set("available_credits = ?", b.AvailableCredits).
		Set("used_credits = ?", b.UsedCredits).
		Set("expired_credits = ?", b.ExpiredCredits).
		Set("version = ?", b.Version).
		Set("last_updated = ?", b.LastUpdated).
		Where("user_id = ?", b.UserID).
		Where("version = ?", b.Version-1).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	if b.Version != 1 {
		return credits.ErrConcurrencyConflict
	}

	// First snapshot for this user; a concurrent insert loses the race.
	m := toBalanceModel(b)
	ires, err := s.sdb.NewInsert(m).
		OnConflict("(user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	inserted, err := ires.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return credits.ErrConcurrencyConflict
	}
	return nil
}

// ==================== Coupon Store ====================

func (s *Store) CreateCoupon(ctx context.Context, c *coupon.Coupon) error {
	m := toCouponModel(c)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	m := new(couponModel)
	err := s.sdb.NewSelect(m).
		Where("code = ?", code).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrCouponNotFound
		}
		return nil, err
	}
	return fromCouponModel(m)
}

func (s *Store) GetCouponByID(ctx context.Context, couponID id.CouponID) (*coupon.Coupon, error) {
	m := new(couponModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", couponID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrCouponNotFound
		}
		return nil, err
	}
	return fromCouponModel(m)
}

func (s *Store) ListCoupons(ctx context.Context, opts coupon.ListOpts) ([]*coupon.Coupon, error) {
	var models []couponModel
	q := s.sdb.NewSelect(&models)

	if opts.Active {
		nowUTC := now()
		q = q.Where("active = 1").
			Where("valid_from <= ?", nowUTC).
			Where("(valid_until IS NULL OR valid_until >= ?)", nowUTC)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("code ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate((*couponModel)(nil)).
		Set("code = ?", m.Code).
		Set("name = ?", m.Name).
		Set("type = ?", m.Type).
		Set("percentage = ?", m.Percentage).
		Set("amount_cents = ?", m.AmountCents).
		Set("amount_currency = ?", m.AmountCurrency).
		Set("credits = ?", m.Credits).
		Set("min_amount_cents = ?", m.MinAmountCents).
		Set("min_amount_currency = ?", m.MinAmountCurrency).
		Set("max_discount_cents = ?", m.MaxDiscountCents).
		Set("max_discount_currency = ?", m.MaxDiscountCurrency).
		Set("usage_limit = ?", m.UsageLimit).
		Set("user_limit = ?", m.UserLimit).
		Set("valid_from = ?", m.ValidFrom).
		Set("valid_until = ?", m.ValidUntil).
		Set("active = ?", m.Active).
		Set("metadata = ?", m.Metadata).
		Set("updated_at = ?", now()).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrCouponNotFound
	}
	return nil
}

func (s *Store) DeleteCoupon(ctx context.Context, couponID id.CouponID) error {
	_, err := s.sdb.NewDelete((*couponModel)(nil)).
		Where("id = ?", couponID.String()).
		Exec(ctx)
	return err
}

// ==================== Redemption Store ====================

func (s *Store) IncrementRedemptions(ctx context.Context, couponID id.CouponID) error {
	// The WHERE clause is the capacity guard: the counter can never pass
	// the limit no matter how many processes race on it.
	res, err := s.sdb.NewUpdate((*couponModel)(nil)).
		Set("usage_count = usage_count + 1").
		Set("updated_at = ?", now()).
		Where("id = ?", couponID.String()).
		Where("(usage_limit = 0 OR usage_count < usage_limit)").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	if _, err := s.GetCouponByID(ctx, couponID); err != nil {
		return err
	}
	return credits.ErrCouponExhausted
}

func (s *Store) DecrementRedemptions(ctx context.Context, couponID id.CouponID) error {
	res, err := s.sdb.NewUpdate((*couponModel)(nil)).
		Set("usage_count = usage_count - 1").
		Set("updated_at = ?", now()).
		Where("id = ?", couponID.String()).
		Where("usage_count > 0").
		Exec(ctx)
	if err != nil {
		return err
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	return nil
}

func (s *Store) SetRedemptionCount(ctx context.Context, couponID id.CouponID, count int) error {
	res, err := s.sdb.NewUpdate((*couponModel)(nil)).
		Set("usage_count = ?", count).
		Set("updated_at = ?", now()).
		Where("id = ?", couponID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrCouponNotFound
	}
	return nil
}

func (s *Store) AppendRedemption(ctx context.Context, r *coupon.Redemption) error {
	m := toRedemptionModel(r)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) CountRedemptions(ctx context.Context, couponID id.CouponID, userID string) (int, error) {
	var count int
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM credits_redemptions
		WHERE coupon_id = ? AND user_id = ?
	`, couponID.String(), userID).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CountAllRedemptions(ctx context.Context, couponID id.CouponID) (int, error) {
	var count int
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM credits_redemptions WHERE coupon_id = ?
	`, couponID.String()).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListRedemptions(ctx context.Context, couponID id.CouponID, opts coupon.RedemptionListOpts) ([]*coupon.Redemption, error) {
	var models []redemptionModel
	q := s.sdb.NewSelect(&models).Where("coupon_id = ?", couponID.String())

	if opts.UserID != "" {
		q = q.Where("user_id = ?", opts.UserID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("used_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) SumUsage(ctx context.Context, subID id.SubscriptionID, start, end time.Time) (map[string]int64, error) {
	var models []usageRecordModel
	err := s.sdb.NewSelect(&models).
		Where("subscription_id = ?", subID.String()).
		Where("recorded_at >= ?", start).
		Where("recorded_at < ?", end).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64)
	for i := range models {
		result[models[i].ResourceType] += models[i].Amount
	}
	return result, nil
}

func (s *Store) ListUsage(ctx context.Context, subID id.SubscriptionID, opts usage.ListOpts) ([]*usage.Record, error) {
	var models []usageRecordModel
	q := s.sdb.NewSelect(&models).Where("subscription_id = ?", subID.String())

	if opts.ResourceType != "" {
		q = q.Where("resource_type = ?", opts.ResourceType)
	}
	if !opts.Start.IsZero() {
		q = q.Where("recorded_at >= ?", opts.Start)
	}
	if !opts.End.IsZero() {
		q = q.Where("recorded_at < ?", opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("recorded_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Where("status = ?", string(subscription.StatusActive)).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrNoActiveSubscription
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListRolloverDue(ctx context.Context, asOf time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(subscription.StatusActive)).
		Where("period_end <= ?", asOf).
		OrderExpr("period_end ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
