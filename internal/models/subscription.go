package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription mirrors one Lemon Squeezy subscription object. Rows are never
// hard-deleted; terminal states are recorded via Status. For a given user at
// most one row may be in an active-like status at a time; the reconciler
// enforces this by cancelling duplicates.
type Subscription struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	ProviderSubscriptionID string     `gorm:"uniqueIndex;not null;size:255" json:"provider_subscription_id"`
	Tier                   string     `gorm:"size:20;not null;default:'free'" json:"tier"`
	Status                 string     `gorm:"size:20;not null;default:'active';index" json:"status"`
	VariantID              int64      `json:"variant_id"`
	VariantName            string     `gorm:"size:255" json:"variant_name"`
	PeriodStart            time.Time  `json:"period_start"`
	PeriodEnd              time.Time  `json:"period_end"`
	RenewsAt               *time.Time `json:"renews_at"`
	ExpiresAt              *time.Time `json:"expires_at"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	User                   User       `gorm:"foreignKey:UserID" json:"-"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
