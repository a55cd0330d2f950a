package audithook

import (
	"context"
	"testing"

	"github.com/xraph/credits/credit"
)

func captureRecorder(events *[]*AuditEvent) Recorder {
	return RecorderFunc(func(_ context.Context, evt *AuditEvent) error {
		*events = append(*events, evt)
		return nil
	})
}

func TestBalanceRecomputedEvent(t *testing.T) {
	var events []*AuditEvent
	e := New(captureRecorder(&events))

	b := &credit.Balance{UserID: "u1", AvailableCredits: 250}
	if err := e.OnBalanceRecomputed(context.Background(), b); err != nil {
		t.Fatalf("hook: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	evt := events[0]
	if evt.Action != ActionBalanceRecomputed {
		t.Errorf("action = %q, want %q", evt.Action, ActionBalanceRecomputed)
	}
	if evt.ResourceID != "u1" {
		t.Errorf("resource id = %q, want u1", evt.ResourceID)
	}
	if evt.Metadata["available"] != int64(250) {
		t.Errorf("available = %v, want 250", evt.Metadata["available"])
	}
}

func TestEnabledActionsGateEvents(t *testing.T) {
	var events []*AuditEvent
	e := New(captureRecorder(&events), WithEnabledActions(ActionCreditsGranted))

	b := &credit.Balance{UserID: "u1"}
	if err := e.OnBalanceRecomputed(context.Background(), b); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0 for disabled action", len(events))
	}

	entry := &credit.Entry{UserID: "u1", Amount: 100}
	if err := e.OnCreditsGranted(context.Background(), entry); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if len(events) != 1 || events[0].Action != ActionCreditsGranted {
		t.Fatalf("events = %v, want one granted event", events)
	}
}
