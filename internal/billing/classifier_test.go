package billing

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func testClassifier() *Classifier {
	return NewClassifier(NewCatalog(map[string]Tier{
		"111": TierBasic,
		"222": TierPremium,
	}), 3)
}

func envelope(eventName, subID string, attrs string) []byte {
	return []byte(fmt.Sprintf(`{
		"meta": {"event_name": %q},
		"data": {"type": "subscriptions", "id": %q, "attributes": %s}
	}`, eventName, subID, attrs))
}

func TestClassify_SubscriptionCreated(t *testing.T) {
	payload := envelope("subscription_created", "sub_1", `{
		"variant_id": 111,
		"variant_name": "Basis Monatlich",
		"user_email": "Doc@Example.COM",
		"status": "active",
		"created_at": "2026-01-01T10:00:00Z",
		"renews_at": "2026-02-01T10:00:00Z"
	}`)

	req, err := testClassifier().Classify(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Ignored() {
		t.Fatalf("expected handled event")
	}
	if req.EventType != EventSubscriptionCreated {
		t.Fatalf("unexpected event type %q", req.EventType)
	}
	if req.ProviderSubscriptionID != "sub_1" {
		t.Fatalf("unexpected subscription id %q", req.ProviderSubscriptionID)
	}
	if req.UserEmail != "doc@example.com" {
		t.Fatalf("expected lowercased email, got %q", req.UserEmail)
	}
	if req.Tier != TierBasic {
		t.Fatalf("expected basic tier, got %q", req.Tier)
	}
	if req.SimulationLimit == nil || *req.SimulationLimit != 30 {
		t.Fatalf("unexpected simulation limit: %v", req.SimulationLimit)
	}
	wantEnd := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	if !req.PeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected period end %v, got %v", wantEnd, req.PeriodEnd)
	}
}

func TestClassify_DefaultsMissingTimestamps(t *testing.T) {
	payload := envelope("subscription_created", "sub_2", `{
		"variant_id": 222,
		"variant_name": "Premium",
		"user_email": "a@b.c",
		"status": "active"
	}`)

	req, err := testClassifier().Classify(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		t.Fatalf("expected defaulted period, got %v / %v", req.PeriodStart, req.PeriodEnd)
	}
	if got := req.PeriodEnd.Sub(req.PeriodStart); got != 30*24*time.Hour {
		t.Fatalf("expected 30-day default period, got %v", got)
	}
}

func TestClassify_UnknownEventIsIgnored(t *testing.T) {
	payload := []byte(`{"meta":{"event_name":"order_refunded"},"data":{"id":"o_1","attributes":{}}}`)

	req, err := testClassifier().Classify(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.Ignored() {
		t.Fatalf("expected ignored classification")
	}
}

func TestClassify_ValidationErrors(t *testing.T) {
	c := testClassifier()

	if _, err := c.Classify([]byte("{not json")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := c.Classify([]byte(`{"meta":{},"data":{"id":"x"}}`)); !errors.Is(err, ErrMissingEventName) {
		t.Fatalf("expected ErrMissingEventName, got %v", err)
	}
	if _, err := c.Classify([]byte(`{"meta":{"event_name":"subscription_created"},"data":{"attributes":{"user_email":"a@b.c"}}}`)); !errors.Is(err, ErrMissingSubscriptionID) {
		t.Fatalf("expected ErrMissingSubscriptionID, got %v", err)
	}
	if _, err := c.Classify(envelope("subscription_created", "sub_3", `{"variant_id":111}`)); !errors.Is(err, ErrMissingUserEmail) {
		t.Fatalf("expected ErrMissingUserEmail, got %v", err)
	}
}

func TestClassify_UnknownVariantFallsBackToFree(t *testing.T) {
	payload := envelope("subscription_updated", "sub_4", `{
		"variant_id": 9999,
		"variant_name": "Mystery",
		"user_email": "a@b.c",
		"status": "active"
	}`)

	req, err := testClassifier().Classify(payload)
	if err != nil {
		t.Fatalf("tier ambiguity must not fail the event: %v", err)
	}
	if req.Tier != TierFree {
		t.Fatalf("expected free fallback, got %q", req.Tier)
	}
}

func TestClassify_TerminalEventsForceStatus(t *testing.T) {
	cancelled := envelope("subscription_cancelled", "sub_5", `{
		"variant_id": 111, "user_email": "a@b.c", "status": "active",
		"ends_at": "2026-03-01T00:00:00Z"
	}`)
	req, err := testClassifier().Classify(cancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %q", req.Status)
	}
	if req.ExpiresAt == nil {
		t.Fatalf("expected ends_at carried as expiry")
	}

	expired := envelope("subscription_expired", "sub_5", `{
		"variant_id": 111, "user_email": "a@b.c", "status": "active"
	}`)
	req, err = testClassifier().Classify(expired)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != StatusExpired {
		t.Fatalf("expected expired status, got %q", req.Status)
	}
}
