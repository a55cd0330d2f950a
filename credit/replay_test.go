package credit

import (
	"testing"
	"time"
)

var replayNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func entry(amount int64, kind Kind, expiresAt *time.Time) *Entry {
	return &Entry{Amount: amount, Kind: kind, ExpiresAt: expiresAt}
}

func TestCompute(t *testing.T) {
	past := replayNow.Add(-time.Hour)
	future := replayNow.Add(time.Hour)

	tests := []struct {
		name      string
		entries   []*Entry
		total     int64
		available int64
		used      int64
		expired   int64
	}{
		{
			name: "empty ledger",
		},
		{
			name: "grants and debits",
			entries: []*Entry{
				entry(1000, KindPurchased, nil),
				entry(-400, KindUsed, nil),
				entry(200, KindEarned, nil),
			},
			total:     800,
			available: 800,
			used:      400,
		},
		{
			name: "expired grant drops out of available",
			entries: []*Entry{
				entry(1000, KindPurchased, &past),
				entry(500, KindEarned, &future),
			},
			total:     1500,
			available: 500,
		},
		{
			name: "sweeper offset moves credit to expired",
			entries: []*Entry{
				entry(1000, KindPurchased, &past),
				entry(-400, KindUsed, nil),
				entry(-600, KindExpired, nil),
			},
			total:     600,
			available: 0,
			used:      400,
			expired:   600,
		},
		{
			name: "available clamps at zero",
			entries: []*Entry{
				entry(1000, KindPurchased, &past),
				entry(-400, KindUsed, nil),
			},
			total:     600,
			available: 0,
			used:      400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Compute("u1", tt.entries, replayNow)
			if b.TotalCredits != tt.total {
				t.Errorf("total = %d, want %d", b.TotalCredits, tt.total)
			}
			if b.AvailableCredits != tt.available {
				t.Errorf("available = %d, want %d", b.AvailableCredits, tt.available)
			}
			if b.UsedCredits != tt.used {
				t.Errorf("used = %d, want %d", b.UsedCredits, tt.used)
			}
			if b.ExpiredCredits != tt.expired {
				t.Errorf("expired = %d, want %d", b.ExpiredCredits, tt.expired)
			}
		})
	}
}

func TestExpirable(t *testing.T) {
	past := replayNow.Add(-time.Hour)
	future := replayNow.Add(time.Hour)

	tests := []struct {
		name    string
		entries []*Entry
		want    int64
	}{
		{
			name: "nothing expired",
			entries: []*Entry{
				entry(1000, KindPurchased, &future),
			},
			want: 0,
		},
		{
			name: "untouched expired grant",
			entries: []*Entry{
				entry(1000, KindPurchased, &past),
			},
			want: 1000,
		},
		{
			name: "partially consumed expired grant",
			entries: []*Entry{
				entry(1000, KindPurchased, &past),
				entry(-400, KindUsed, nil),
			},
			want: 600,
		},
		{
			name: "fully consumed expired grant",
			entries: []*Entry{
				entry(500, KindEarned, &past),
				entry(-500, KindUsed, nil),
			},
			want: 0,
		},
		{
			name: "already swept",
			entries: []*Entry{
				entry(1000, KindPurchased, &past),
				entry(-400, KindUsed, nil),
				entry(-600, KindExpired, nil),
			},
			want: 0,
		},
		{
			name: "debits land on surviving credit first",
			entries: []*Entry{
				entry(1000, KindPurchased, &past),
				entry(500, KindEarned, &future),
				entry(-300, KindUsed, nil),
			},
			// 1200 outstanding, 200 of it covered by the surviving grant.
			want: 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expirable(tt.entries, replayNow); got != tt.want {
				t.Errorf("Expirable = %d, want %d", got, tt.want)
			}
		})
	}
}
