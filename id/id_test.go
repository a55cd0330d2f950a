package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/credits/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"EntryID", id.NewEntryID, "cent_"},
		{"CouponID", id.NewCouponID, "cpn_"},
		{"RedemptionID", id.NewRedemptionID, "rdm_"},
		{"UsageRecordID", id.NewUsageRecordID, "urec_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixEntry)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixEntry {
		t.Errorf("expected prefix %q, got %q", id.PrefixEntry, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"EntryID", id.NewEntryID, id.ParseEntryID},
		{"CouponID", id.NewCouponID, id.ParseCouponID},
		{"RedemptionID", id.NewRedemptionID, id.ParseRedemptionID},
		{"UsageRecordID", id.NewUsageRecordID, id.ParseUsageRecordID},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	entry := id.NewEntryID()

	if _, err := id.ParseCouponID(entry.String()); err == nil {
		t.Error("expected error parsing an entry ID as a coupon ID")
	}
	if _, err := id.ParseSubscriptionID(entry.String()); err == nil {
		t.Error("expected error parsing an entry ID as a subscription ID")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "not a typeid"},
		{"missing suffix", "cent_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := id.Parse(tt.input); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID

	if !nilID.IsNil() {
		t.Error("zero value should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID string should be empty, got %q", nilID.String())
	}

	v, err := nilID.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if v != nil {
		t.Errorf("nil ID Value should be nil, got %v", v)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}

	original := wrapper{ID: id.NewCouponID()}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.ID.String() != original.ID.String() {
		t.Errorf("round-trip mismatch: %q != %q", decoded.ID.String(), original.ID.String())
	}
}

func TestScan(t *testing.T) {
	original := id.NewEntryID()

	var scanned id.ID
	if err := scanned.Scan(original.String()); err != nil {
		t.Fatalf("scan string failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("scan mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("scan nil failed: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("scanning nil should produce the nil ID")
	}

	var rejected id.ID
	if err := rejected.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}
