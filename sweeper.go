package credits

import (
	"context"

	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Expiration Sweeper
// ──────────────────────────────────────────────────

// SweepExpired offsets every grant whose expiry has passed. Consumed
// credit is never expired: each user only loses what is still outstanding
// from expired grants, allocated oldest expiry first. Offsets carry the
// grant they neutralize, so re-running a sweep is a no-op.
//
// Returns the total amount of credit expired across all users.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	started := e.now()

	candidates, err := e.store.ListSweepCandidates(ctx, started)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// Preserve expiry order within each user.
	byUser := make(map[string][]*credit.Entry)
	order := make([]string, 0)
	for _, c := range candidates {
		if _, seen := byUser[c.UserID]; !seen {
			order = append(order, c.UserID)
		}
		byUser[c.UserID] = append(byUser[c.UserID], c)
	}

	var total int64
	swept := 0
	for _, userID := range order {
		amount, offsets, err := e.sweepUser(ctx, userID, byUser[userID])
		if err != nil {
			e.logger.Error("sweep failed for user",
				"user_id", userID,
				"error", err,
			)
			continue
		}
		total += amount
		swept += offsets
	}

	if swept > 0 {
		e.logger.Info("expiration sweep completed",
			"users", len(order),
			"offsets", swept,
			"expired", total,
		)
	}

	e.plugins.EmitSweepCompleted(ctx, swept, e.now().Sub(started))
	return total, nil
}

// sweepUser writes expired offsets for one user under their write lock.
func (e *Engine) sweepUser(ctx context.Context, userID string, candidates []*credit.Entry) (int64, int, error) {
	key := "user:" + userID
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	entries, err := e.store.ReplayEntries(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	now := e.now()
	expirable := credit.Expirable(entries, now)
	if expirable == 0 {
		return 0, 0, nil
	}

	// Offsets written since the candidate listing, keyed by grant.
	offset := make(map[string]bool)
	for _, en := range entries {
		if en.Kind == credit.KindExpired && !en.SourceEntryID.IsNil() {
			offset[en.SourceEntryID.String()] = true
		}
	}

	var total int64
	written := 0
	remaining := expirable
	for _, grant := range candidates {
		if remaining == 0 {
			break
		}
		if offset[grant.ID.String()] {
			continue
		}

		alloc := min(remaining, grant.Amount)
		entry := &credit.Entry{
			Entity:        types.NewEntity(),
			ID:            id.NewEntryID(),
			UserID:        userID,
			Amount:        -alloc,
			Kind:          credit.KindExpired,
			Description:   "credits expired",
			SourceEntryID: grant.ID,
		}

		if err := e.store.AppendEntry(ctx, entry); err != nil {
			return total, written, err
		}

		remaining -= alloc
		total += alloc
		written++
		e.plugins.EmitCreditsExpired(ctx, entry)
	}

	if written > 0 {
		if _, err := e.refreshBalance(ctx, userID); err != nil {
			return total, written, err
		}
	}

	return total, written, nil
}
