// Package memory provides an in-memory Store for tests and embedded use.
// All state lives in process; Migrate and Ping are no-ops.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/usage"
)

type Store struct {
	mu sync.RWMutex

	// Ledger storage: append order per user is authoritative
	entries map[string][]*credit.Entry
	byID    map[string]*credit.Entry

	// Materialized balances
	balances map[string]*credit.Balance

	// Coupon storage
	coupons map[string]*coupon.Coupon
	byCode  map[string]string // code -> coupon ID

	// Redemption log
	redemptions []*coupon.Redemption

	// Usage records
	usageRecords []*usage.Record

	// Subscription storage
	subscriptions map[string]*subscription.Subscription
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		entries:       make(map[string][]*credit.Entry),
		byID:          make(map[string]*credit.Entry),
		balances:      make(map[string]*credit.Balance),
		coupons:       make(map[string]*coupon.Coupon),
		byCode:        make(map[string]string),
		subscriptions: make(map[string]*subscription.Subscription),
	}
}

// Ledger Store implementation

func (s *Store) AppendEntry(_ context.Context, e *credit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[e.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}

	cp := *e
	s.entries[e.UserID] = append(s.entries[e.UserID], &cp)
	s.byID[e.ID.String()] = &cp
	return nil
}

func (s *Store) GetEntry(_ context.Context, entryID id.EntryID) (*credit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.byID[entryID.String()]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, credits.ErrEntryNotFound
}

func (s *Store) ListEntries(_ context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[userID]
	result := make([]*credit.Entry, 0)
	// Newest first
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ReplayEntries(_ context.Context, userID string) ([]*credit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[userID]
	result := make([]*credit.Entry, 0, len(all))
	for _, e := range all {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) ListExpiring(_ context.Context, userID string, from, until time.Time) ([]*credit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Entry, 0)
	for _, e := range s.entries[userID] {
		if e.Amount <= 0 || e.ExpiresAt == nil {
			continue
		}
		if e.ExpiresAt.Before(from) || !e.ExpiresAt.Before(until) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(*result[j].ExpiresAt)
	})
	return result, nil
}

func (s *Store) ListSweepCandidates(_ context.Context, asOf time.Time) ([]*credit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Offsets already written, keyed by the grant they offset.
	swept := make(map[string]bool)
	for _, userEntries := range s.entries {
		for _, e := range userEntries {
			if e.Kind == credit.KindExpired && !e.SourceEntryID.IsNil() {
				swept[e.SourceEntryID.String()] = true
			}
		}
	}

	result := make([]*credit.Entry, 0)
	for _, userEntries := range s.entries {
		for _, e := range userEntries {
			if e.Amount <= 0 || !e.Expired(asOf) || swept[e.ID.String()] {
				continue
			}
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(*result[j].ExpiresAt)
	})
	return result, nil
}

// Balance Store implementation

func (s *Store) GetBalance(_ context.Context, userID string) (*credit.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[userID]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, credits.ErrBalanceNotFound
}

func (s *Store) PutBalance(_ context.Context, b *credit.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.balances[b.UserID]
	expected := int64(0)
	if exists {
		expected = current.Version
	}
	if b.Version != expected+1 {
		return credits.ErrConcurrencyConflict
	}

	cp := *b
	s.balances[b.UserID] = &cp
	return nil
}

// Coupon Store implementation

func (s *Store) CreateCoupon(_ context.Context, c *coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[c.Code]; exists {
		return credits.ErrAlreadyExists
	}
	cp := *c
	s.coupons[c.ID.String()] = &cp
	s.byCode[c.Code] = c.ID.String()
	return nil
}

func (s *Store) GetCoupon(_ context.Context, code string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cid, ok := s.byCode[code]; ok {
		cp := *s.coupons[cid]
		return &cp, nil
	}
	return nil, credits.ErrCouponNotFound
}

func (s *Store) GetCouponByID(_ context.Context, couponID id.CouponID) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.coupons[couponID.String()]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, credits.ErrCouponNotFound
}

func (s *Store) ListCoupons(_ context.Context, opts coupon.ListOpts) ([]*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*coupon.Coupon, 0)
	now := time.Now()

	for _, c := range s.coupons {
		if opts.Active {
			if !c.Active || now.Before(c.ValidFrom) {
				continue
			}
			if c.ValidUntil != nil && now.After(*c.ValidUntil) {
				continue
			}
		}
		cp := *c
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateCoupon(_ context.Context, c *coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.coupons[c.ID.String()]
	if !exists {
		return credits.ErrCouponNotFound
	}

	// The redemption counter is store-maintained; keep it authoritative.
	cp := *c
	cp.UsageCount = current.UsageCount
	s.coupons[c.ID.String()] = &cp
	if current.Code != c.Code {
		delete(s.byCode, current.Code)
		s.byCode[c.Code] = c.ID.String()
	}
	return nil
}

func (s *Store) DeleteCoupon(_ context.Context, couponID id.CouponID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.coupons[couponID.String()]; ok {
		delete(s.byCode, c.Code)
		delete(s.coupons, couponID.String())
	}
	return nil
}

// Redemption Store implementation

func (s *Store) IncrementRedemptions(_ context.Context, couponID id.CouponID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[couponID.String()]
	if !ok {
		return credits.ErrCouponNotFound
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return credits.ErrCouponExhausted
	}
	c.UsageCount++
	return nil
}

func (s *Store) DecrementRedemptions(_ context.Context, couponID id.CouponID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[couponID.String()]
	if !ok {
		return credits.ErrCouponNotFound
	}
	if c.UsageCount > 0 {
		c.UsageCount--
	}
	return nil
}

func (s *Store) SetRedemptionCount(_ context.Context, couponID id.CouponID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[couponID.String()]
	if !ok {
		return credits.ErrCouponNotFound
	}
	c.UsageCount = count
	return nil
}

func (s *Store) AppendRedemption(_ context.Context, r *coupon.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.redemptions = append(s.redemptions, &cp)
	return nil
}

func (s *Store) CountRedemptions(_ context.Context, couponID id.CouponID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.redemptions {
		if r.CouponID == couponID && r.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountAllRedemptions(_ context.Context, couponID id.CouponID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.redemptions {
		if r.CouponID == couponID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListRedemptions(_ context.Context, couponID id.CouponID, opts coupon.RedemptionListOpts) ([]*coupon.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*coupon.Redemption, 0)
	// Newest first
	for i := len(s.redemptions) - 1; i >= 0; i-- {
		r := s.redemptions[i]
		if r.CouponID != couponID {
			continue
		}
		if opts.UserID != "" && r.UserID != opts.UserID {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Usage Store implementation

func (s *Store) AppendUsage(_ context.Context, r *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.usageRecords = append(s.usageRecords, &cp)
	return nil
}

func (s *Store) SumUsage(_ context.Context, subID id.SubscriptionID, start, end time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int64)
	for _, r := range s.usageRecords {
		if r.SubscriptionID != subID {
			continue
		}
		if r.RecordedAt.Before(start) || !r.RecordedAt.Before(end) {
			continue
		}
		result[r.ResourceType] += r.Amount
	}
	return result, nil
}

func (s *Store) ListUsage(_ context.Context, subID id.SubscriptionID, opts usage.ListOpts) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*usage.Record, 0)
	// Newest first
	for i := len(s.usageRecords) - 1; i >= 0; i-- {
		r := s.usageRecords[i]
		if r.SubscriptionID != subID {
			continue
		}
		if opts.ResourceType != "" && r.ResourceType != opts.ResourceType {
			continue
		}
		if !opts.Start.IsZero() && r.RecordedAt.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !r.RecordedAt.Before(opts.End) {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Subscription Store implementation

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, credits.ErrSubscriptionNotFound
}

func (s *Store) GetActiveSubscription(_ context.Context, userID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.Status == subscription.StatusActive {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, credits.ErrNoActiveSubscription
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return credits.ErrSubscriptionNotFound
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) ListRolloverDue(_ context.Context, asOf time.Time) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.Status == subscription.StatusActive && !sub.PeriodEnd.After(asOf) {
			cp := *sub
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
