// Package credit defines the append-only credit ledger: immutable signed
// entries per user and the materialized balance derived from them.
package credit

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindEarned    Kind = "earned"    // Granted by the system (promos, coupon grants)
	KindPurchased Kind = "purchased" // Bought through an upstream checkout
	KindUsed      Kind = "used"      // Spent; always a negative amount
	KindRefunded  Kind = "refunded"  // Returned after a reversal; positive amount
	KindExpired   Kind = "expired"   // Sweeper offset; always a negative amount
)

// GrantKinds are the kinds callers may pass when granting credits.
// KindUsed and KindExpired are reserved for the engine.
var GrantKinds = map[Kind]bool{
	KindEarned:    true,
	KindPurchased: true,
	KindRefunded:  true,
}

// Entry is a single immutable row in a user's credit ledger.
// Entries are never mutated or deleted; corrections are made by
// inserting an offsetting entry.
type Entry struct {
	types.Entity
	ID          id.EntryID `json:"id"`
	UserID      string     `json:"user_id"`
	Amount      int64      `json:"amount"` // Signed, smallest credit unit
	Kind        Kind       `json:"kind"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"` // Only meaningful for positive amounts
	CouponID    id.CouponID `json:"coupon_id,omitempty"`
	// SourceEntryID references the grant being offset. Set only on
	// KindExpired entries; it is the sweeper's idempotency key.
	SourceEntryID id.EntryID `json:"source_entry_id,omitempty"`
}

// Expired reports whether the entry's expiry has passed as of now.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Balance is the materialized per-user credit snapshot. It is a cache,
// not a source of truth: it must always equal the result of replaying
// the user's ledger via Compute, and is rebuilt from the ledger whenever
// it is missing or suspect.
type Balance struct {
	UserID           string    `json:"user_id"`
	TotalCredits     int64     `json:"total_credits"`
	AvailableCredits int64     `json:"available_credits"`
	UsedCredits      int64     `json:"used_credits"`
	ExpiredCredits   int64     `json:"expired_credits"`
	Version          int64     `json:"version"` // Optimistic-concurrency token
	LastUpdated      time.Time `json:"last_updated"`
}

// ListOpts filters ledger entry listings.
type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
