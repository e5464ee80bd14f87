package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Webhook event processing outcomes.
const (
	WebhookStatusProcessed = "processed"
	WebhookStatusFailed    = "failed"
	WebhookStatusIgnored   = "ignored"
)

// WebhookEvent is the immutable audit record for one inbound billing event.
// Rows are write-once; replay diagnosis reads them back by provider
// subscription id.
type WebhookEvent struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventType              string         `gorm:"size:100;not null;index" json:"event_type"`
	EventPayload           datatypes.JSON `gorm:"type:jsonb" json:"event_payload"`
	ProviderSubscriptionID string         `gorm:"size:255;index" json:"provider_subscription_id"`
	UserID                 *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	Status                 string         `gorm:"size:20;not null;index" json:"status"`
	ErrorMessage           *string        `gorm:"type:text" json:"error_message"`
	ProcessedAt            time.Time      `gorm:"not null;index" json:"processed_at"`
	CreatedAt              time.Time      `json:"created_at"`
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
