package credits

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("credits: not found")
	ErrAlreadyExists = errors.New("credits: already exists")
	ErrInvalidInput  = errors.New("credits: invalid input")

	// Ledger errors
	ErrInsufficientFunds   = errors.New("credits: insufficient funds")
	ErrBalanceNotFound     = errors.New("credits: balance not found")
	ErrEntryNotFound       = errors.New("credits: ledger entry not found")
	ErrConcurrencyConflict = errors.New("credits: concurrent modification")

	// Coupon errors
	ErrCouponNotFound     = errors.New("credits: coupon not found")
	ErrCouponInvalid      = errors.New("credits: coupon invalid")
	ErrCouponExhausted    = errors.New("credits: coupon redemptions exhausted")
	ErrRedemptionNotFound = errors.New("credits: redemption not found")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("credits: subscription not found")
	ErrNoActiveSubscription = errors.New("credits: no active subscription")

	// Store errors
	ErrStoreNotReady   = errors.New("credits: store not ready")
	ErrStoreClosed     = errors.New("credits: store is closed")
	ErrMigrationFailed = errors.New("credits: migration failed")
)

// InsufficientFundsError carries the balance context of a rejected debit.
// It unwraps to ErrInsufficientFunds.
type InsufficientFundsError struct {
	UserID    string
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("credits: insufficient funds for user %s: available %d, requested %d",
		e.UserID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// CouponInvalidError carries the rejection reason from the validation
// pipeline. It unwraps to ErrCouponInvalid.
type CouponInvalidError struct {
	Code   string
	Reason string
}

func (e *CouponInvalidError) Error() string {
	return fmt.Sprintf("credits: coupon %s invalid: %s", e.Code, e.Reason)
}

func (e *CouponInvalidError) Unwrap() error {
	return ErrCouponInvalid
}

// ValidationError represents a validation failure with details. It unwraps
// to ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrRedemptionNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsCouponInvalid returns true if the error came out of the coupon
// validation pipeline, whatever the rejection reason.
func IsCouponInvalid(err error) bool {
	return errors.Is(err, ErrCouponInvalid) ||
		errors.Is(err, ErrCouponExhausted)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrStoreNotReady)
}
