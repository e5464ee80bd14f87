package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medsimapp/medsim-backend/internal/dto"
)

// Event types we reconcile. Anything else is classified as ignored.
const (
	EventSubscriptionCreated   = "subscription_created"
	EventSubscriptionUpdated   = "subscription_updated"
	EventSubscriptionCancelled = "subscription_cancelled"
	EventSubscriptionExpired   = "subscription_expired"
)

var (
	ErrMissingEventName      = errors.New("missing meta.event_name")
	ErrMissingSubscriptionID = errors.New("missing data.id")
	ErrMissingUserEmail      = errors.New("missing user_email attribute")
)

// defaultPeriod is assumed when the provider omits the renewal timestamp.
const defaultPeriod = 30 * 24 * time.Hour

// ReconciliationRequest is the normalized form handed to the reconciler. All
// structurally required timestamps are defaulted here so downstream logic
// never sees a zero time.
type ReconciliationRequest struct {
	EventType              string
	ProviderSubscriptionID string
	UserEmail              string
	VariantID              int64
	VariantName            string
	Tier                   Tier
	SimulationLimit        *int
	Status                 string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	RenewsAt               *time.Time
	ExpiresAt              *time.Time
}

// Ignored reports whether the event carries a type we do not reconcile.
func (r *ReconciliationRequest) Ignored() bool {
	switch r.EventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionCancelled, EventSubscriptionExpired:
		return false
	}
	return true
}

// Classifier parses provider payloads and resolves variants to tiers. The
// catalog is injected so tests can substitute fixture mappings.
type Classifier struct {
	catalog       *Catalog
	freeAllowance int
}

func NewClassifier(catalog *Catalog, freeAllowance int) *Classifier {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	return &Classifier{catalog: catalog, freeAllowance: freeAllowance}
}

// Classify parses the raw webhook body into a ReconciliationRequest. It only
// fails on structural problems (unparseable JSON, missing envelope fields);
// ambiguous tier resolution degrades to the free tier with a warning, and
// unrecognized event types come back with Ignored() == true.
func (c *Classifier) Classify(payload []byte) (*ReconciliationRequest, error) {
	var webhook dto.LemonSqueezyWebhook
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	eventType := strings.ToLower(strings.TrimSpace(webhook.Meta.EventName))
	if eventType == "" {
		return nil, ErrMissingEventName
	}

	req := &ReconciliationRequest{EventType: eventType}
	if req.Ignored() {
		return req, nil
	}

	if webhook.Data.ID == "" {
		return nil, ErrMissingSubscriptionID
	}
	attrs := webhook.Data.Attributes
	if strings.TrimSpace(attrs.UserEmail) == "" {
		return nil, ErrMissingUserEmail
	}

	tier, exact := c.catalog.ResolveTier(attrs.VariantID, attrs.VariantName)
	if !exact {
		slog.Warn("variant not in catalog, tier resolved by fallback",
			"variant_id", attrs.VariantID,
			"variant_name", attrs.VariantName,
			"tier", tier)
	}

	req.ProviderSubscriptionID = webhook.Data.ID
	req.UserEmail = strings.ToLower(strings.TrimSpace(attrs.UserEmail))
	req.VariantID = attrs.VariantID
	req.VariantName = attrs.VariantName
	req.Tier = tier
	req.SimulationLimit = SimulationLimit(tier, c.freeAllowance)
	req.Status = NormalizeStatus(attrs.Status)
	req.RenewsAt = attrs.RenewsAt
	req.ExpiresAt = attrs.EndsAt

	now := time.Now().UTC()
	req.PeriodStart = firstTime(attrs.UpdatedAt, attrs.CreatedAt, &now)
	periodEnd := firstTime(attrs.RenewsAt, attrs.EndsAt)
	if periodEnd.IsZero() {
		periodEnd = req.PeriodStart.Add(defaultPeriod)
	}
	req.PeriodEnd = periodEnd

	// Cancelled and expired events no longer entitle regardless of what the
	// provider reports in the status attribute.
	switch eventType {
	case EventSubscriptionCancelled:
		req.Status = StatusCancelled
	case EventSubscriptionExpired:
		req.Status = StatusExpired
	}

	return req, nil
}

func firstTime(candidates ...*time.Time) time.Time {
	for _, t := range candidates {
		if t != nil && !t.IsZero() {
			return t.UTC()
		}
	}
	return time.Time{}
}
