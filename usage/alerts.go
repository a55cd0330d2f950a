package usage

import "github.com/xraph/credits/subscription"

// AlertType classifies a usage alert.
type AlertType string

// Severity grades a usage alert.
type Severity string

const (
	AlertNearLimit AlertType = "near_limit"
	AlertOverLimit AlertType = "over_limit"

	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Threshold percentages for alert emission.
const (
	nearLimitPct = 90
	overLimitPct = 100
)

// Alert signals that a subscription is approaching or past its usage limit.
type Alert struct {
	Type       AlertType `json:"type"`
	Severity   Severity  `json:"severity"`
	Percentage int64     `json:"percentage"` // CurrentUsage as a whole percentage of UsageLimit
	Used       int64     `json:"used"`
	Limit      int64     `json:"limit"`
}

// CheckAlerts is pure: it derives threshold alerts from a subscription's
// current counters. Unlimited subscriptions never alert.
//
//	usage/limit >= 1.0 → over_limit (error)
//	usage/limit >= 0.9 → near_limit (warning)
func CheckAlerts(sub *subscription.Subscription) []Alert {
	if sub == nil || sub.UsageLimit <= 0 {
		return nil
	}

	pct := sub.CurrentUsage * 100 / sub.UsageLimit

	switch {
	case pct >= overLimitPct:
		return []Alert{{
			Type:       AlertOverLimit,
			Severity:   SeverityError,
			Percentage: pct,
			Used:       sub.CurrentUsage,
			Limit:      sub.UsageLimit,
		}}
	case pct >= nearLimitPct:
		return []Alert{{
			Type:       AlertNearLimit,
			Severity:   SeverityWarning,
			Percentage: pct,
			Used:       sub.CurrentUsage,
			Limit:      sub.UsageLimit,
		}}
	default:
		return nil
	}
}
