package credit

import "time"

// Compute replays a user's full ledger and derives the balance as of now.
// This is the ground truth; the stored Balance row is only ever a memo of
// this result.
//
//   - TotalCredits: sum of all amounts, excluding KindExpired offsets
//   - AvailableCredits: sum of amounts from entries that have not expired
//     as of now (excluding KindExpired offsets), clamped at zero
//   - UsedCredits: sum of |amount| over KindUsed entries
//   - ExpiredCredits: sum of |amount| over KindExpired offsets
func Compute(userID string, entries []*Entry, now time.Time) *Balance {
	b := &Balance{
		UserID:      userID,
		LastUpdated: now,
	}

	var available int64
	for _, e := range entries {
		switch e.Kind {
		case KindExpired:
			b.ExpiredCredits += abs(e.Amount)
			continue
		case KindUsed:
			b.UsedCredits += abs(e.Amount)
		}

		b.TotalCredits += e.Amount
		if !e.Expired(now) {
			available += e.Amount
		}
	}

	b.AvailableCredits = max(0, available)
	return b
}

// Expirable returns how much credit attributable to already-expired grants
// is still outstanding (granted, past expiry, not yet consumed, not yet
// offset by the sweeper). The sweeper emits exactly this much as expired
// offsets, so consumed credit is never expired a second time.
//
// Derivation from the replay: the live ledger total (excluding prior
// offsets) minus what survives expiry minus what has already been swept.
func Expirable(entries []*Entry, now time.Time) int64 {
	var liveTotal, surviving, swept int64

	for _, e := range entries {
		if e.Kind == KindExpired {
			swept += abs(e.Amount)
			continue
		}

		liveTotal += e.Amount
		if !e.Expired(now) {
			surviving += e.Amount
		}
	}

	return max(0, liveTotal-max(0, surviving)-swept)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
