package credits_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/coupon"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/usage"
)

// testClock is a controllable time source shared with the engine.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var testEpoch = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*credits.Engine, *memory.Store, *testClock) {
	t.Helper()
	clk := newTestClock(testEpoch)
	st := memory.New()
	eng := credits.New(st, credits.WithClock(clk.Now))
	return eng, st, clk
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

func TestGrantDebitExpireLifecycle(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()

	expiry := testEpoch.Add(30 * 24 * time.Hour)
	if _, err := eng.GrantCredits(ctx, "u1", 1000, credit.KindPurchased, "starter pack", &expiry); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := eng.DebitCredits(ctx, "u1", 400, "report"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	bal, err := eng.GetCreditBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.AvailableCredits != 600 || bal.UsedCredits != 400 {
		t.Fatalf("before expiry: available=%d used=%d, want 600/400", bal.AvailableCredits, bal.UsedCredits)
	}

	// Past the grant's expiry only the unconsumed remainder is swept.
	clk.Advance(31 * 24 * time.Hour)
	swept, err := eng.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 600 {
		t.Fatalf("swept = %d, want 600", swept)
	}

	bal, err = eng.GetCreditBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance after sweep: %v", err)
	}
	if bal.AvailableCredits != 0 {
		t.Errorf("available = %d, want 0", bal.AvailableCredits)
	}
	if bal.UsedCredits != 400 {
		t.Errorf("used = %d, want 400", bal.UsedCredits)
	}
	if bal.ExpiredCredits != 600 {
		t.Errorf("expired = %d, want 600", bal.ExpiredCredits)
	}
	if bal.TotalCredits != 600 {
		t.Errorf("total = %d, want 600", bal.TotalCredits)
	}
}

func TestRecomputeMatchesSnapshot(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()

	expiry := testEpoch.Add(24 * time.Hour)
	if _, err := eng.GrantCredits(ctx, "u1", 1000, credit.KindEarned, "", &expiry); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := eng.DebitCredits(ctx, "u1", 300, ""); err != nil {
		t.Fatalf("debit: %v", err)
	}
	clk.Advance(48 * time.Hour)
	if _, err := eng.SweepExpired(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	snapshot, err := eng.GetCreditBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	replayed, err := eng.RecomputeBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}

	if snapshot.TotalCredits != replayed.TotalCredits ||
		snapshot.AvailableCredits != replayed.AvailableCredits ||
		snapshot.UsedCredits != replayed.UsedCredits ||
		snapshot.ExpiredCredits != replayed.ExpiredCredits {
		t.Fatalf("snapshot %+v diverges from replay %+v", snapshot, replayed)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()

	expiry := testEpoch.Add(24 * time.Hour)
	if _, err := eng.GrantCredits(ctx, "u1", 500, credit.KindEarned, "", &expiry); err != nil {
		t.Fatalf("grant: %v", err)
	}

	clk.Advance(48 * time.Hour)
	first, err := eng.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first != 500 {
		t.Fatalf("first sweep = %d, want 500", first)
	}

	second, err := eng.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second != 0 {
		t.Fatalf("second sweep = %d, want 0", second)
	}

	bal, err := eng.GetCreditBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.ExpiredCredits != 500 {
		t.Errorf("expired = %d, want 500", bal.ExpiredCredits)
	}
}

func TestSweepSkipsConsumedCredit(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()

	expiry := testEpoch.Add(24 * time.Hour)
	if _, err := eng.GrantCredits(ctx, "u1", 500, credit.KindEarned, "", &expiry); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := eng.DebitCredits(ctx, "u1", 500, ""); err != nil {
		t.Fatalf("debit: %v", err)
	}

	clk.Advance(48 * time.Hour)
	swept, err := eng.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0 for fully consumed grant", swept)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.GrantCredits(ctx, "u1", 100, credit.KindEarned, "", nil); err != nil {
		t.Fatalf("grant: %v", err)
	}

	_, err := eng.DebitCredits(ctx, "u1", 250, "")
	if !errors.Is(err, credits.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	var ife *credits.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("err = %T, want *InsufficientFundsError", err)
	}
	if ife.Available != 100 || ife.Requested != 250 {
		t.Errorf("available=%d requested=%d, want 100/250", ife.Available, ife.Requested)
	}

	// The rejected debit must not have touched the ledger.
	bal, err := eng.GetCreditBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.AvailableCredits != 100 {
		t.Errorf("available = %d, want 100", bal.AvailableCredits)
	}
}

func TestConcurrentDebitsNeverOverspend(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.GrantCredits(ctx, "u1", 1000, credit.KindPurchased, "", nil); err != nil {
		t.Fatalf("grant: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.DebitCredits(ctx, "u1", 100, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("succeeded = %d, want exactly 10", succeeded)
	}

	bal, err := eng.GetCreditBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.AvailableCredits != 0 {
		t.Errorf("available = %d, want 0", bal.AvailableCredits)
	}
	if bal.UsedCredits != 1000 {
		t.Errorf("used = %d, want 1000", bal.UsedCredits)
	}
}

func TestGrantValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	past := testEpoch.Add(-time.Hour)

	tests := []struct {
		name      string
		userID    string
		amount    int64
		kind      credit.Kind
		expiresAt *time.Time
	}{
		{"empty user", "", 100, credit.KindEarned, nil},
		{"zero amount", "u1", 0, credit.KindEarned, nil},
		{"negative amount", "u1", -5, credit.KindEarned, nil},
		{"reserved kind used", "u1", 100, credit.KindUsed, nil},
		{"reserved kind expired", "u1", 100, credit.KindExpired, nil},
		{"expiry in the past", "u1", 100, credit.KindEarned, &past},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.GrantCredits(ctx, tt.userID, tt.amount, tt.kind, "", tt.expiresAt)
			if !errors.Is(err, credits.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestGetExpiringCredits(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	soon := testEpoch.Add(10 * 24 * time.Hour)
	later := testEpoch.Add(90 * 24 * time.Hour)
	if _, err := eng.GrantCredits(ctx, "u1", 100, credit.KindEarned, "soon", &soon); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := eng.GrantCredits(ctx, "u1", 200, credit.KindEarned, "later", &later); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := eng.GrantCredits(ctx, "u1", 300, credit.KindPurchased, "forever", nil); err != nil {
		t.Fatalf("grant: %v", err)
	}

	expiring, err := eng.GetExpiringCredits(ctx, "u1", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("expiring: %v", err)
	}
	if len(expiring) != 1 {
		t.Fatalf("len = %d, want 1", len(expiring))
	}
	if expiring[0].Amount != 100 {
		t.Errorf("amount = %d, want 100", expiring[0].Amount)
	}
}

// ──────────────────────────────────────────────────
// Coupons
// ──────────────────────────────────────────────────

func newCreditsCoupon(code string, grant int64, usageLimit, userLimit int) *coupon.Coupon {
	return &coupon.Coupon{
		Code:       code,
		Name:       code,
		Type:       coupon.TypeCredits,
		Credits:    grant,
		UsageLimit: usageLimit,
		UserLimit:  userLimit,
		Active:     true,
	}
}

func TestRedeemCreditsCoupon(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	c := newCreditsCoupon("WELCOME", 500, 0, 0)
	if err := eng.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	red, err := eng.RedeemCoupon(ctx, "WELCOME", "u1", "", nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if red.UserID != "u1" || red.CouponID != c.ID {
		t.Errorf("redemption = %+v", red)
	}

	bal, err := eng.GetCreditBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.AvailableCredits != 500 {
		t.Errorf("available = %d, want 500", bal.AvailableCredits)
	}

	history, err := eng.GetCreditHistory(ctx, "u1", credit.ListOpts{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history len = %d, want 1", len(history))
	}
	if history[0].Kind != credit.KindEarned || history[0].CouponID != c.ID {
		t.Errorf("entry = %+v, want earned grant linked to coupon", history[0])
	}
}

func TestRedeemPercentageCoupon(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	c := &coupon.Coupon{
		Code:       "QUARTER",
		Type:       coupon.TypePercentage,
		Percentage: 25,
		Active:     true,
	}
	if err := eng.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	order := credits.USD(10000)
	red, err := eng.RedeemCoupon(ctx, "QUARTER", "u1", "order-1", &order)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if red.Discount.Amount != 2500 {
		t.Errorf("discount = %d, want 2500", red.Discount.Amount)
	}
	if red.OrderID != "order-1" {
		t.Errorf("order id = %q", red.OrderID)
	}
}

func TestCouponGlobalCapUnderConcurrency(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	c := newCreditsCoupon("CAPPED", 100, 3, 0)
	if err := eng.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := eng.RedeemCoupon(ctx, "CAPPED", fmt.Sprintf("u%d", n), "", nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !credits.IsCouponInvalid(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("succeeded = %d, want exactly 3", succeeded)
	}

	stored, err := st.GetCoupon(ctx, "CAPPED")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.UsageCount != 3 {
		t.Errorf("usage count = %d, want 3", stored.UsageCount)
	}
}

func TestCouponPerUserLimit(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	c := newCreditsCoupon("ONCE", 100, 0, 1)
	if err := eng.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := eng.RedeemCoupon(ctx, "ONCE", "u1", "", nil); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	_, err := eng.RedeemCoupon(ctx, "ONCE", "u1", "", nil)
	var cie *credits.CouponInvalidError
	if !errors.As(err, &cie) {
		t.Fatalf("err = %v, want *CouponInvalidError", err)
	}
	if cie.Reason != string(coupon.ReasonUserLimitExceeded) {
		t.Errorf("reason = %q, want user_limit_exceeded", cie.Reason)
	}

	// A different user is unaffected by u1's exhaustion.
	if _, err := eng.RedeemCoupon(ctx, "ONCE", "u2", "", nil); err != nil {
		t.Fatalf("other user redeem: %v", err)
	}
}

func TestValidateCoupon(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()

	until := testEpoch.Add(24 * time.Hour)
	c := newCreditsCoupon("WINDOW", 100, 0, 0)
	c.ValidUntil = &until
	if err := eng.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := eng.ValidateCoupon(ctx, "WINDOW", "u1", nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid || res.CreditGrant != 100 {
		t.Fatalf("result = %+v, want valid with grant 100", res)
	}

	// An unknown code is an invalid result, not an error.
	res, err = eng.ValidateCoupon(ctx, "NOPE", "u1", nil)
	if err != nil {
		t.Fatalf("validate missing: %v", err)
	}
	if res.Valid || res.Reason != coupon.ReasonNotFound {
		t.Fatalf("result = %+v, want not_found", res)
	}

	// Validation never consumes capacity.
	stored, err := eng.GetCoupon(ctx, "WINDOW")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.UsageCount != 0 {
		t.Errorf("usage count = %d, want 0", stored.UsageCount)
	}

	clk.Advance(48 * time.Hour)
	res, err = eng.ValidateCoupon(ctx, "WINDOW", "u1", nil)
	if err != nil {
		t.Fatalf("validate expired: %v", err)
	}
	if res.Valid || res.Reason != coupon.ReasonExpired {
		t.Fatalf("result = %+v, want expired", res)
	}
}

func TestCouponCurrencyHandling(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	minUSD := credits.USD(5000)
	maxEUR := credits.EUR(1000)

	// Mixed currencies across monetary fields never get stored.
	mixed := &coupon.Coupon{
		Code:        "MIXED",
		Type:        coupon.TypePercentage,
		Percentage:  20,
		MinAmount:   &minUSD,
		MaxDiscount: &maxEUR,
		Active:      true,
	}
	if err := eng.CreateCoupon(ctx, mixed); !errors.Is(err, credits.ErrInvalidInput) {
		t.Fatalf("create err = %v, want ErrInvalidInput", err)
	}

	c := &coupon.Coupon{
		Code:       "USDONLY",
		Type:       coupon.TypePercentage,
		Percentage: 20,
		MinAmount:  &minUSD,
		Active:     true,
	}
	if err := eng.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	// An order in another currency is an invalid result, not a panic.
	order := credits.EUR(10000)
	res, err := eng.ValidateCoupon(ctx, "USDONLY", "u1", &order)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid || res.Reason != coupon.ReasonCurrencyMismatch {
		t.Fatalf("result = %+v, want currency_mismatch", res)
	}

	_, err = eng.RedeemCoupon(ctx, "USDONLY", "u1", "", &order)
	var cie *credits.CouponInvalidError
	if !errors.As(err, &cie) || cie.Reason != string(coupon.ReasonCurrencyMismatch) {
		t.Fatalf("redeem err = %v, want currency_mismatch rejection", err)
	}
}

func TestDeactivateCoupon(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	if err := eng.CreateCoupon(ctx, newCreditsCoupon("OFF", 100, 0, 0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := eng.DeactivateCoupon(ctx, "OFF"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := eng.RedeemCoupon(ctx, "OFF", "u1", "", nil)
	var cie *credits.CouponInvalidError
	if !errors.As(err, &cie) {
		t.Fatalf("err = %v, want *CouponInvalidError", err)
	}
	if cie.Reason != string(coupon.ReasonInactive) {
		t.Errorf("reason = %q, want inactive", cie.Reason)
	}
}

func TestReconcileCouponRepairsDrift(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	c := newCreditsCoupon("DRIFT", 100, 5, 0)
	if err := eng.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := eng.RedeemCoupon(ctx, "DRIFT", "u1", "", nil); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	// Simulate an interrupted redemption: counter bumped, log never written.
	if err := st.IncrementRedemptions(ctx, c.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}

	repaired, err := eng.ReconcileCoupon(ctx, "DRIFT")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if repaired.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1 after reconcile", repaired.UsageCount)
	}
}

// ──────────────────────────────────────────────────
// Usage metering
// ──────────────────────────────────────────────────

func newTestSubscription(t *testing.T, eng *credits.Engine, userID string, limit int64) *subscription.Subscription {
	t.Helper()
	rate := credits.USD(2)
	sub := &subscription.Subscription{
		UserID:      userID,
		UsageLimit:  limit,
		OverageRate: &rate,
	}
	if err := eng.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func TestRecordUsageOverageAndAlerts(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	newTestSubscription(t, eng, "u1", 10000)

	_, alerts, err := eng.RecordUsage(ctx, "u1", "api_calls", 8900, "calls", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("alerts = %v, want none at 89%%", alerts)
	}

	_, alerts, err = eng.RecordUsage(ctx, "u1", "api_calls", 100, "calls", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != usage.AlertNearLimit {
		t.Fatalf("alerts = %v, want near_limit at 90%%", alerts)
	}

	// Usage past the limit is accepted and accrues overage.
	_, alerts, err = eng.RecordUsage(ctx, "u1", "api_calls", 3000, "calls", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != usage.AlertOverLimit {
		t.Fatalf("alerts = %v, want over_limit", alerts)
	}

	sub, err := eng.GetActiveSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("get sub: %v", err)
	}
	if sub.CurrentUsage != 12000 || sub.Overage != 2000 {
		t.Fatalf("usage=%d overage=%d, want 12000/2000", sub.CurrentUsage, sub.Overage)
	}

	summary, err := eng.GetUsageSummary(ctx, sub.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.UsageByType["api_calls"] != 12000 {
		t.Errorf("by type = %d, want 12000", summary.UsageByType["api_calls"])
	}
	if summary.OverageCharge == nil || summary.OverageCharge.Amount != 4000 {
		t.Errorf("overage charge = %v, want 4000 cents", summary.OverageCharge)
	}

	// The user-keyed lookup resolves the same active subscription.
	byUser, err := eng.GetUserUsageSummary(ctx, "u1")
	if err != nil {
		t.Fatalf("summary by user: %v", err)
	}
	if byUser.SubscriptionID != sub.ID || byUser.CurrentUsage != 12000 {
		t.Errorf("summary by user = %+v, want the same subscription", byUser)
	}
}

func TestRecordUsageWithoutSubscription(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	// No subscription: the record still lands in the log, with no counter
	// to bump and no limit to alert on.
	rec, alerts, err := eng.RecordUsage(ctx, "loner", "api_calls", 42, "calls", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !rec.SubscriptionID.IsNil() {
		t.Errorf("subscription id = %v, want nil", rec.SubscriptionID)
	}
	if len(alerts) != 0 {
		t.Errorf("alerts = %v, want none", alerts)
	}

	logged, err := st.ListUsage(ctx, id.SubscriptionID{}, usage.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logged) != 1 || logged[0].Amount != 42 {
		t.Fatalf("logged = %v, want the one record", logged)
	}
}

// usageAppendFailStore fails AppendUsage on demand to exercise partial
// write recovery.
type usageAppendFailStore struct {
	*memory.Store
	failAppend bool
}

var errAppendUnavailable = errors.New("usage log unavailable")

func (s *usageAppendFailStore) AppendUsage(ctx context.Context, r *usage.Record) error {
	if s.failAppend {
		return errAppendUnavailable
	}
	return s.Store.AppendUsage(ctx, r)
}

func TestRecordUsageAppendFailureLeavesCounterUntouched(t *testing.T) {
	clk := newTestClock(testEpoch)
	st := &usageAppendFailStore{Store: memory.New()}
	eng := credits.New(st, credits.WithClock(clk.Now))
	ctx := context.Background()

	sub := newTestSubscription(t, eng, "u1", 1000)

	st.failAppend = true
	if _, _, err := eng.RecordUsage(ctx, "u1", "api_calls", 100, "calls", ""); !errors.Is(err, errAppendUnavailable) {
		t.Fatalf("err = %v, want append failure", err)
	}

	// The log write failed before the counter moved, so the counter still
	// matches what the log can prove.
	fresh, err := eng.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh.CurrentUsage != 0 {
		t.Fatalf("usage = %d, want 0 after failed append", fresh.CurrentUsage)
	}

	st.failAppend = false
	if _, _, err := eng.RecordUsage(ctx, "u1", "api_calls", 100, "calls", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestReconcileSubscriptionUsageRepairsDrift(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()
	sub := newTestSubscription(t, eng, "u1", 1000)

	if _, _, err := eng.RecordUsage(ctx, "u1", "api_calls", 500, "calls", ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Simulate an interrupted write leaving the counter ahead of the log.
	drifted, err := st.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	drifted.CurrentUsage = 5000
	drifted.Overage = 4000
	if err := st.UpdateSubscription(ctx, drifted); err != nil {
		t.Fatalf("update: %v", err)
	}

	repaired, err := eng.ReconcileSubscriptionUsage(ctx, sub.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if repaired.CurrentUsage != 500 || repaired.Overage != 0 {
		t.Fatalf("usage=%d overage=%d, want 500/0 after reconcile", repaired.CurrentUsage, repaired.Overage)
	}
}

func TestRolloverDue(t *testing.T) {
	eng, _, clk := newTestEngine(t)
	ctx := context.Background()
	sub := newTestSubscription(t, eng, "u1", 1000)

	if _, _, err := eng.RecordUsage(ctx, "u1", "api_calls", 1500, "calls", ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Two full periods elapse while nothing runs; rollover catches up.
	clk.Set(testEpoch.AddDate(0, 2, 1))
	rolled, err := eng.RolloverDue(ctx)
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	if rolled != 1 {
		t.Fatalf("rolled = %d, want 1", rolled)
	}

	fresh, err := eng.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh.CurrentUsage != 0 || fresh.Overage != 0 {
		t.Errorf("usage=%d overage=%d, want both reset", fresh.CurrentUsage, fresh.Overage)
	}
	if want := testEpoch.AddDate(0, 2, 0); !fresh.PeriodStart.Equal(want) {
		t.Errorf("period start = %v, want %v", fresh.PeriodStart, want)
	}
	if !fresh.PeriodEnd.After(clk.Now()) {
		t.Errorf("period end = %v, want after now", fresh.PeriodEnd)
	}

	// Nothing left to roll.
	rolled, err = eng.RolloverDue(ctx)
	if err != nil {
		t.Fatalf("second rollover: %v", err)
	}
	if rolled != 0 {
		t.Errorf("rolled = %d, want 0", rolled)
	}
}

func TestCancelSubscription(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	sub := newTestSubscription(t, eng, "u1", 1000)

	if err := eng.CancelSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Canceling again is a no-op.
	if err := eng.CancelSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	fresh, err := eng.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh.Status != subscription.StatusCanceled || fresh.CanceledAt == nil {
		t.Errorf("sub = %+v, want canceled with timestamp", fresh)
	}

	if _, err := eng.GetActiveSubscription(ctx, "u1"); !errors.Is(err, credits.ErrNoActiveSubscription) {
		t.Errorf("err = %v, want ErrNoActiveSubscription", err)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle and plugins
// ──────────────────────────────────────────────────

type capturePlugin struct {
	mu       sync.Mutex
	granted  int
	rejected []string
}

func (p *capturePlugin) Name() string { return "capture" }

func (p *capturePlugin) OnCreditsGranted(_ context.Context, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted++
	return nil
}

func (p *capturePlugin) OnCouponRejected(_ context.Context, code, _, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected = append(p.rejected, code+":"+reason)
	return nil
}

func TestPluginHooks(t *testing.T) {
	clk := newTestClock(testEpoch)
	hooks := &capturePlugin{}
	eng := credits.New(memory.New(),
		credits.WithClock(clk.Now),
		credits.WithPlugin(hooks),
	)
	ctx := context.Background()

	if _, err := eng.GrantCredits(ctx, "u1", 100, credit.KindEarned, "", nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := eng.RedeemCoupon(ctx, "MISSING", "u1", "", nil); err == nil {
		t.Fatal("redeem of unknown code should fail")
	}

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if hooks.granted != 1 {
		t.Errorf("granted hooks = %d, want 1", hooks.granted)
	}
	if len(hooks.rejected) != 1 || hooks.rejected[0] != "MISSING:not_found" {
		t.Errorf("rejected hooks = %v", hooks.rejected)
	}
}

func TestEngineStartStop(t *testing.T) {
	eng := credits.New(memory.New(),
		credits.WithSweepInterval(time.Hour),
		credits.WithRolloverInterval(time.Hour),
	)
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := eng.GrantCredits(ctx, "u1", 50, credit.KindEarned, "", nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
