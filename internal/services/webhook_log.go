package services

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medsimapp/medsim-backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookLogger appends immutable audit records for every inbound billing
// event. Logging must never mask the processing outcome, so Record swallows
// its own failures after writing them to slog.
type WebhookLogger struct {
	db *gorm.DB
}

func NewWebhookLogger(db *gorm.DB) *WebhookLogger {
	return &WebhookLogger{db: db}
}

// Record writes one audit entry. userID is nil when the event failed before
// user resolution; processErr carries the failure reason for failed events.
func (l *WebhookLogger) Record(eventType string, payload []byte, providerSubscriptionID string, userID *uuid.UUID, status string, processErr error) {
	entry := models.WebhookEvent{
		ID:                     uuid.New(),
		EventType:              eventType,
		EventPayload:           datatypes.JSON(payload),
		ProviderSubscriptionID: providerSubscriptionID,
		UserID:                 userID,
		Status:                 status,
		ProcessedAt:            time.Now().UTC(),
	}
	if processErr != nil {
		msg := processErr.Error()
		entry.ErrorMessage = &msg
	}

	if err := l.db.Create(&entry).Error; err != nil {
		slog.Error("failed to write webhook audit log",
			"event_type", eventType,
			"subscription_id", providerSubscriptionID,
			"status", status,
			"error", err)
	}
}

// LatestPayload returns the most recent audited payload for a provider
// subscription id, used by the operator replay endpoint.
func (l *WebhookLogger) LatestPayload(providerSubscriptionID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := l.db.
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Order("processed_at DESC").
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
