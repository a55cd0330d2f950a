// Package credits provides a credit ledger and usage metering engine for Go applications.
//
// Credits is designed as a library, not a service. Import it directly into your Go
// application for maximum performance and flexibility. It provides:
//
//   - An append-only credit ledger with replay-derived balances
//   - Time-limited credit grants with automatic expiration sweeps
//   - Promotional coupons with global and per-user redemption caps
//   - Usage metering against subscription limits with overage accrual
//   - Automatic billing-period rollover
//   - Pluggable lifecycle hooks for metrics and audit trails
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/store/memory"
//	)
//
//	eng := credits.New(memory.New())
//
//	// Start the engine (migrates the store, begins background workers)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Credits live in an append-only ledger. Grants add credit, debits and
// expiration offsets remove it, and the balance is always derivable by
// replaying a user's entries:
//
//	entry, err := eng.GrantCredits(ctx, userID, 1000, credit.KindPurchased, "starter pack", &expiry)
//	entry, err = eng.DebitCredits(ctx, userID, 400, "report generation")
//	bal, err := eng.GetCreditBalance(ctx, userID)
//
// Coupons grant discounts or credits with validity windows and usage caps:
//
//	err := eng.CreateCoupon(ctx, &coupon.Coupon{
//	    Code:    "WELCOME50",
//	    Type:    coupon.TypeCredits,
//	    Credits: 500,
//	    Active:  true,
//	})
//	redemption, err := eng.RedeemCoupon(ctx, "WELCOME50", userID, "", nil)
//
// Usage is metered against the user's active subscription:
//
//	record, alerts, err := eng.RecordUsage(ctx, userID, "api_calls", 100, "calls", "")
//
// # Consistency
//
// The ledger is the source of truth. Balance snapshots are an optimistic-
// concurrency cache rebuilt from replay; a lost version race simply means
// another writer already stored a fresher snapshot. Expiration sweeps only
// offset credit that is still outstanding, so consumed credit is never
// clawed back, and re-running a sweep is a no-op.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest currency
// unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	cent_01h2xcejqtf2nbrexx3vqjhp41  // Ledger entry ID
//	cpn_01h2xcejqtf2nbrexx3vqjhp41   // Coupon ID
//	sub_01h455vb4pex5vsknk084sn02q   // Subscription ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package credits
