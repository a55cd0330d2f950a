package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
)

func TestPutBalanceVersionGuard(t *testing.T) {
	s := New()
	ctx := context.Background()

	b := &credit.Balance{UserID: "u1", AvailableCredits: 100, Version: 1}
	if err := s.PutBalance(ctx, b); err != nil {
		t.Fatalf("initial put: %v", err)
	}

	// A stale writer reusing version 1 must lose.
	stale := &credit.Balance{UserID: "u1", AvailableCredits: 50, Version: 1}
	if err := s.PutBalance(ctx, stale); !errors.Is(err, credits.ErrConcurrencyConflict) {
		t.Fatalf("stale put err = %v, want ErrConcurrencyConflict", err)
	}

	next := &credit.Balance{UserID: "u1", AvailableCredits: 50, Version: 2}
	if err := s.PutBalance(ctx, next); err != nil {
		t.Fatalf("next put: %v", err)
	}

	got, err := s.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 2 || got.AvailableCredits != 50 {
		t.Errorf("balance = %+v, want version 2 / available 50", got)
	}
}

func TestIncrementRedemptionsExhaustion(t *testing.T) {
	s := New()
	ctx := context.Background()

	c := &coupon.Coupon{
		ID:         id.NewCouponID(),
		Code:       "CAP2",
		Type:       coupon.TypeCredits,
		Credits:    10,
		UsageLimit: 2,
		Active:     true,
	}
	if err := s.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.IncrementRedemptions(ctx, c.ID); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := s.IncrementRedemptions(ctx, c.ID); !errors.Is(err, credits.ErrCouponExhausted) {
		t.Fatalf("err = %v, want ErrCouponExhausted", err)
	}

	got, err := s.GetCoupon(ctx, "CAP2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UsageCount != 2 {
		t.Errorf("usage count = %d, want 2", got.UsageCount)
	}
}

func TestUpdateCouponPreservesCounter(t *testing.T) {
	s := New()
	ctx := context.Background()

	c := &coupon.Coupon{
		ID:      id.NewCouponID(),
		Code:    "EDIT",
		Type:    coupon.TypeCredits,
		Credits: 10,
		Active:  true,
	}
	if err := s.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.IncrementRedemptions(ctx, c.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}

	// An update carrying a stale counter must not clobber the live one.
	edited := *c
	edited.Active = false
	edited.UsageCount = 0
	if err := s.UpdateCoupon(ctx, &edited); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetCoupon(ctx, "EDIT")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", got.UsageCount)
	}
	if got.Active {
		t.Error("active = true, want false")
	}
}

func TestListSweepCandidatesExcludesOffsetGrants(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	expired := &credit.Entry{
		ID:        id.NewEntryID(),
		UserID:    "u1",
		Amount:    100,
		Kind:      credit.KindEarned,
		ExpiresAt: &past,
	}
	live := &credit.Entry{
		ID:     id.NewEntryID(),
		UserID: "u1",
		Amount: 200,
		Kind:   credit.KindEarned,
	}
	if err := s.AppendEntry(ctx, expired); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendEntry(ctx, live); err != nil {
		t.Fatalf("append: %v", err)
	}

	due, err := s.ListSweepCandidates(ctx, now)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(due) != 1 || due[0].ID != expired.ID {
		t.Fatalf("candidates = %v, want the expired grant only", due)
	}

	offset := &credit.Entry{
		ID:            id.NewEntryID(),
		UserID:        "u1",
		Amount:        -100,
		Kind:          credit.KindExpired,
		SourceEntryID: expired.ID,
	}
	if err := s.AppendEntry(ctx, offset); err != nil {
		t.Fatalf("append offset: %v", err)
	}

	due, err = s.ListSweepCandidates(ctx, now)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("candidates = %v, want none after offset", due)
	}
}
