package dto

import (
	"time"

	"github.com/google/uuid"
)

// LemonSqueezyWebhook is the provider envelope. Optional billing timestamps
// vary between API versions, so everything time-like is a pointer and the
// classifier owns the defaulting rules.
type LemonSqueezyWebhook struct {
	Meta LemonSqueezyMeta `json:"meta"`
	Data LemonSqueezyData `json:"data"`
}

type LemonSqueezyMeta struct {
	EventName  string            `json:"event_name"`
	CustomData map[string]string `json:"custom_data"`
}

type LemonSqueezyData struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Attributes LemonSqueezyAttributes `json:"attributes"`
}

type LemonSqueezyAttributes struct {
	StoreID       int64      `json:"store_id"`
	CustomerID    int64      `json:"customer_id"`
	OrderID       int64      `json:"order_id"`
	ProductID     int64      `json:"product_id"`
	ProductName   string     `json:"product_name"`
	VariantID     int64      `json:"variant_id"`
	VariantName   string     `json:"variant_name"`
	UserName      string     `json:"user_name"`
	UserEmail     string     `json:"user_email"`
	Status        string     `json:"status"`
	BillingAnchor int        `json:"billing_anchor"`
	TrialEndsAt   *time.Time `json:"trial_ends_at"`
	RenewsAt      *time.Time `json:"renews_at"`
	EndsAt        *time.Time `json:"ends_at"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

// WebhookResponse is returned to the payment provider after processing.
type WebhookResponse struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
}

// WebhookConfigResponse reports which secrets are configured. Booleans only,
// never the values.
type WebhookConfigResponse struct {
	Status                  string `json:"status"`
	WebhookSecretConfigured bool   `json:"webhook_secret_configured"`
	APIKeyConfigured        bool   `json:"api_key_configured"`
}
