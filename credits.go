package credits

import (
	"context"
	"time"

	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Credit Ledger
// ──────────────────────────────────────────────────

// GrantCredits appends a positive ledger entry for the user. Kind must be
// one of the grant kinds; KindUsed and KindExpired are engine-reserved.
// An optional expiresAt schedules the grant for the expiration sweeper.
func (e *Engine) GrantCredits(ctx context.Context, userID string, amount int64, kind credit.Kind, description string, expiresAt *time.Time) (*credit.Entry, error) {
	if userID == "" {
		return nil, ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if amount <= 0 {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}
	if !credit.GrantKinds[kind] {
		return nil, ValidationError{Field: "kind", Message: "not a grant kind"}
	}
	if expiresAt != nil && !expiresAt.After(e.now()) {
		return nil, ValidationError{Field: "expires_at", Message: "must be in the future"}
	}

	key := "user:" + userID
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	return e.grantLocked(ctx, userID, amount, kind, description, expiresAt, id.CouponID{})
}

// grantLocked appends a grant while the caller holds the user lock.
func (e *Engine) grantLocked(ctx context.Context, userID string, amount int64, kind credit.Kind, description string, expiresAt *time.Time, couponID id.CouponID) (*credit.Entry, error) {
	entry := &credit.Entry{
		Entity:      types.NewEntity(),
		ID:          id.NewEntryID(),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		ExpiresAt:   expiresAt,
		CouponID:    couponID,
	}

	if err := e.store.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}

	balance, err := e.refreshBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("credits granted",
		"user_id", userID,
		"amount", amount,
		"kind", kind,
		"available", balance.AvailableCredits,
	)

	e.plugins.EmitCreditsGranted(ctx, entry)
	return entry, nil
}

// DebitCredits spends amount from the user's available balance. The check
// and the append run under the user's write lock, so concurrent debits
// serialize and the available balance never goes negative.
func (e *Engine) DebitCredits(ctx context.Context, userID string, amount int64, description string) (*credit.Entry, error) {
	if userID == "" {
		return nil, ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if amount <= 0 {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}

	key := "user:" + userID
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	entries, err := e.store.ReplayEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	current := credit.Compute(userID, entries, now)
	if current.AvailableCredits < amount {
		e.plugins.EmitInsufficientFunds(ctx, userID, current.AvailableCredits, amount)
		return nil, &InsufficientFundsError{
			UserID:    userID,
			Available: current.AvailableCredits,
			Requested: amount,
		}
	}

	entry := &credit.Entry{
		Entity:      types.NewEntity(),
		ID:          id.NewEntryID(),
		UserID:      userID,
		Amount:      -amount,
		Kind:        credit.KindUsed,
		Description: description,
	}

	if err := e.store.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}

	balance, err := e.refreshBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("credits debited",
		"user_id", userID,
		"amount", amount,
		"available", balance.AvailableCredits,
	)

	e.plugins.EmitCreditsDebited(ctx, entry)
	return entry, nil
}

// GetCreditBalance returns the user's materialized balance, rebuilding it
// from the ledger when no snapshot exists yet.
func (e *Engine) GetCreditBalance(ctx context.Context, userID string) (*credit.Balance, error) {
	balance, err := e.store.GetBalance(ctx, userID)
	if err == nil {
		return balance, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	return e.RecomputeBalance(ctx, userID)
}

// RecomputeBalance replays the user's full ledger and replaces the stored
// snapshot with the result. Use it to repair a suspect balance.
func (e *Engine) RecomputeBalance(ctx context.Context, userID string) (*credit.Balance, error) {
	key := "user:" + userID
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	balance, err := e.refreshBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitBalanceRecomputed(ctx, balance)
	return balance, nil
}

// refreshBalance recomputes and stores the balance while the caller holds
// the user lock. The version swap is retried a few times in case another
// process shares the store.
func (e *Engine) refreshBalance(ctx context.Context, userID string) (*credit.Balance, error) {
	entries, err := e.store.ReplayEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < e.casRetries; attempt++ {
		version := int64(0)
		stored, err := e.store.GetBalance(ctx, userID)
		switch {
		case err == nil:
			version = stored.Version
		case IsNotFound(err):
		default:
			return nil, err
		}

		balance := credit.Compute(userID, entries, e.now())
		balance.Version = version + 1

		if err := e.store.PutBalance(ctx, balance); err != nil {
			if IsRetryable(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return balance, nil
	}

	return nil, lastErr
}

// GetCreditHistory lists the user's ledger entries, newest first.
func (e *Engine) GetCreditHistory(ctx context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error) {
	return e.store.ListEntries(ctx, userID, opts)
}

// GetExpiringCredits lists the user's grants that expire within the window.
func (e *Engine) GetExpiringCredits(ctx context.Context, userID string, within time.Duration) ([]*credit.Entry, error) {
	now := e.now()
	return e.store.ListExpiring(ctx, userID, now, now.Add(within))
}
