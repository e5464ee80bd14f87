package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Quota is the per-user simulation allowance for the current billing period.
// TotalSimulations nil means unlimited. SimulationsUsed resets exactly once
// per period transition (renewal detection in the reconciler).
type Quota struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Tier             string    `gorm:"size:20;not null;default:'free'" json:"tier"`
	TotalSimulations *int      `json:"total_simulations"`
	SimulationsUsed  int       `gorm:"not null;default:0" json:"simulations_used"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	User             User      `gorm:"foreignKey:UserID" json:"-"`
}

func (q *Quota) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
