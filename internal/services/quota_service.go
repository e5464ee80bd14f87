package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medsimapp/medsim-backend/internal/billing"
	"github.com/medsimapp/medsim-backend/internal/models"
	"gorm.io/gorm"
)

var ErrQuotaExhausted = errors.New("simulation quota exhausted")

// QuotaService is the consumer side of the reconciled quota state: the mobile
// app reads the current allowance and burns one simulation per exam run.
type QuotaService struct {
	db            *gorm.DB
	freeAllowance int
}

func NewQuotaService(db *gorm.DB, freeAllowance int) *QuotaService {
	if freeAllowance <= 0 {
		freeAllowance = billing.DefaultFreeSimulations
	}
	return &QuotaService{db: db, freeAllowance: freeAllowance}
}

// GetQuota returns the user's quota row, bootstrapping a free-tier row for
// users that never had a subscription event.
func (s *QuotaService) GetQuota(userID uuid.UUID) (*models.Quota, error) {
	var quota models.Quota
	err := s.db.Where("user_id = ?", userID).First(&quota).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now().UTC()
		quota = models.Quota{
			ID:               uuid.New(),
			UserID:           userID,
			Tier:             string(billing.TierFree),
			TotalSimulations: billing.SimulationLimit(billing.TierFree, s.freeAllowance),
			PeriodStart:      now,
			PeriodEnd:        now.Add(30 * 24 * time.Hour),
		}
		if err := s.db.Create(&quota).Error; err != nil {
			return nil, fmt.Errorf("failed to bootstrap free quota: %w", err)
		}
		return &quota, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quota lookup failed: %w", err)
	}
	return &quota, nil
}

// ConsumeSimulation burns one simulation. The decrement is a single
// conditional UPDATE so concurrent requests cannot overshoot the limit;
// unlimited tiers (nil total) increment without a guard.
func (s *QuotaService) ConsumeSimulation(userID uuid.UUID) (*models.Quota, error) {
	quota, err := s.GetQuota(userID)
	if err != nil {
		return nil, err
	}

	query := s.db.Model(&models.Quota{}).Where("id = ?", quota.ID)
	if quota.TotalSimulations != nil {
		query = query.Where("simulations_used < ?", *quota.TotalSimulations)
	}
	result := query.Update("simulations_used", gorm.Expr("simulations_used + 1"))
	if result.Error != nil {
		return nil, fmt.Errorf("failed to consume simulation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return quota, ErrQuotaExhausted
	}

	quota.SimulationsUsed++
	return quota, nil
}

// Remaining returns the simulations left in the current period; nil means
// unlimited.
func Remaining(q *models.Quota) *int {
	if q.TotalSimulations == nil {
		return nil
	}
	left := *q.TotalSimulations - q.SimulationsUsed
	if left < 0 {
		left = 0
	}
	return &left
}
