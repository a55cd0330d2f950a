package audithook

// Action constants for audit events.
const (
	// Ledger actions
	ActionCreditsGranted    = "credits.granted"
	ActionCreditsDebited    = "credits.debited"
	ActionCreditsExpired    = "credits.expired"
	ActionDebitRejected     = "credits.debit_rejected"
	ActionBalanceRecomputed = "balance.recomputed"

	// Coupon actions
	ActionCouponCreated  = "coupon.created"
	ActionCouponRedeemed = "coupon.redeemed"
	ActionCouponRejected = "coupon.rejected"

	// Usage actions
	ActionOverageAccrued   = "usage.overage"
	ActionPeriodRolledOver = "subscription.rollover"
)

// Resource constants for audit events.
const (
	ResourceEntry        = "entry"
	ResourceBalance      = "balance"
	ResourceCoupon       = "coupon"
	ResourceSubscription = "subscription"
)

// Category constants for audit events.
const (
	CategoryLedger       = "ledger"
	CategoryCoupon       = "coupon"
	CategoryUsage        = "usage"
	CategorySubscription = "subscription"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
