package usage

import (
	"testing"

	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

func TestCheckAlertsThresholds(t *testing.T) {
	tests := []struct {
		name     string
		used     int64
		limit    int64
		wantType AlertType
		wantSev  Severity
		wantPct  int64
	}{
		{"well under", 5000, 10000, "", "", 0},
		{"just under near threshold", 8900, 10000, "", "", 0},
		{"at near threshold", 9000, 10000, AlertNearLimit, SeverityWarning, 90},
		{"between thresholds", 9500, 10000, AlertNearLimit, SeverityWarning, 95},
		{"at limit", 10000, 10000, AlertOverLimit, SeverityError, 100},
		{"over limit", 12000, 10000, AlertOverLimit, SeverityError, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &subscription.Subscription{
				UsageLimit:   tt.limit,
				CurrentUsage: tt.used,
			}

			alerts := CheckAlerts(sub)
			if tt.wantType == "" {
				if len(alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", alerts)
				}
				return
			}

			if len(alerts) != 1 {
				t.Fatalf("expected 1 alert, got %d", len(alerts))
			}
			a := alerts[0]
			if a.Type != tt.wantType {
				t.Errorf("type: got %q, want %q", a.Type, tt.wantType)
			}
			if a.Severity != tt.wantSev {
				t.Errorf("severity: got %q, want %q", a.Severity, tt.wantSev)
			}
			if a.Percentage != tt.wantPct {
				t.Errorf("percentage: got %d, want %d", a.Percentage, tt.wantPct)
			}
		})
	}
}

func TestCheckAlertsUnlimited(t *testing.T) {
	sub := &subscription.Subscription{CurrentUsage: 1 << 40}
	if alerts := CheckAlerts(sub); len(alerts) != 0 {
		t.Errorf("unlimited subscription should never alert, got %+v", alerts)
	}
}

func TestOverageDerivation(t *testing.T) {
	tests := []struct {
		name  string
		used  int64
		limit int64
		want  int64
	}{
		{"over", 12000, 10000, 2000},
		{"under", 8000, 10000, 0},
		{"exact", 10000, 10000, 0},
		{"unlimited", 12000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := subscription.DeriveOverage(tt.used, tt.limit); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOverageCharge(t *testing.T) {
	rate := types.USD(2)
	sub := &subscription.Subscription{
		UsageLimit:   10000,
		CurrentUsage: 12000,
		OverageRate:  &rate,
	}
	sub.Overage = subscription.DeriveOverage(sub.CurrentUsage, sub.UsageLimit)

	charge := sub.OverageCharge()
	if charge == nil {
		t.Fatal("expected a charge")
	}
	if !charge.Equal(types.USD(4000)) {
		t.Errorf("charge: got %v, want $40.00", charge)
	}

	sub.OverageRate = nil
	if sub.OverageCharge() != nil {
		t.Error("no rate should mean no charge")
	}
}
