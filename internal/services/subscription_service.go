package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medsimapp/medsim-backend/internal/billing"
	"github.com/medsimapp/medsim-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = errors.New("user not found")

// SubscriptionService reconciles normalized billing events into local
// subscription, quota and user state. All writes are scoped to a single
// resolved user; concurrency safety against duplicate or out-of-order
// webhook delivery comes from condition-based writes (the stored period end
// is compared against the incoming one before any usage reset), not locks.
type SubscriptionService struct {
	db            *gorm.DB
	canceller     billing.Canceller
	freeAllowance int
}

func NewSubscriptionService(db *gorm.DB, canceller billing.Canceller, freeAllowance int) *SubscriptionService {
	if freeAllowance <= 0 {
		freeAllowance = billing.DefaultFreeSimulations
	}
	return &SubscriptionService{db: db, canceller: canceller, freeAllowance: freeAllowance}
}

// ResolveUserByEmail looks up the internal user for a webhook event. Matching
// is case-insensitive; the classifier already lowercases, the LOWER() guard
// covers historical mixed-case rows.
func (s *SubscriptionService) ResolveUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := s.db.Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	return &user, nil
}

// Reconcile applies one classified event to the user's persisted state.
func (s *SubscriptionService) Reconcile(ctx context.Context, userID uuid.UUID, req *billing.ReconciliationRequest) error {
	switch req.EventType {
	case billing.EventSubscriptionCreated:
		return s.handleCreated(ctx, userID, req)
	case billing.EventSubscriptionUpdated:
		return s.handleUpdated(ctx, userID, req)
	case billing.EventSubscriptionCancelled:
		return s.handleCancelled(userID, req)
	case billing.EventSubscriptionExpired:
		return s.handleExpired(userID, req)
	default:
		return nil
	}
}

// handleCreated activates a new subscription. Any other subscription of the
// same user still in an active-like status is a double-billing hazard: it is
// cancelled at the provider and marked cancelled locally. A failed provider
// cancellation is logged and does not block the new subscription.
func (s *SubscriptionService) handleCreated(ctx context.Context, userID uuid.UUID, req *billing.ReconciliationRequest) error {
	var duplicates []models.Subscription
	err := s.db.
		Where("user_id = ? AND status IN ? AND provider_subscription_id <> ?",
			userID, billing.ActiveLikeStatuses, req.ProviderSubscriptionID).
		Find(&duplicates).Error
	if err != nil {
		return fmt.Errorf("duplicate subscription lookup failed: %w", err)
	}

	for _, dup := range duplicates {
		if cancelErr := s.canceller.CancelSubscription(ctx, dup.ProviderSubscriptionID); cancelErr != nil {
			slog.Warn("failed to cancel duplicate subscription at provider",
				"user_id", userID,
				"subscription_id", dup.ProviderSubscriptionID,
				"error", cancelErr)
		} else {
			slog.Info("cancelled duplicate subscription",
				"user_id", userID,
				"subscription_id", dup.ProviderSubscriptionID)
		}
		if markErr := s.db.Model(&models.Subscription{}).
			Where("id = ?", dup.ID).
			Update("status", billing.StatusCancelled).Error; markErr != nil {
			slog.Error("failed to mark duplicate subscription cancelled",
				"subscription_id", dup.ProviderSubscriptionID,
				"error", markErr)
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := upsertSubscription(tx, userID, req); err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("tier", string(req.Tier)).Error; err != nil {
			return fmt.Errorf("failed to update user tier: %w", err)
		}
		// Quota last: a stale subscription row with a correct quota is safer
		// than the reverse.
		return replaceQuota(tx, userID, req.Tier, req.SimulationLimit, req.PeriodStart, req.PeriodEnd)
	})
}

// handleUpdated applies renewals and mid-cycle tier changes. A renewal is
// detected by the incoming period end being strictly later than the stored
// one; only then is usage reset, which makes replays of the same event
// no-ops. An update for an unknown subscription id is bootstrapped like a
// create so out-of-order created/updated delivery converges.
func (s *SubscriptionService) handleUpdated(ctx context.Context, userID uuid.UUID, req *billing.ReconciliationRequest) error {
	var sub models.Subscription
	err := s.db.Where("provider_subscription_id = ?", req.ProviderSubscriptionID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.handleCreated(ctx, userID, req)
	}
	if err != nil {
		return fmt.Errorf("subscription lookup failed: %w", err)
	}

	renewed := req.PeriodEnd.After(sub.PeriodEnd)
	tierChanged := billing.NormalizeTier(sub.Tier) != req.Tier

	return s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"tier":         string(req.Tier),
			"status":       req.Status,
			"variant_id":   req.VariantID,
			"variant_name": req.VariantName,
		}
		// Provider payloads omit renews_at/ends_at on metadata-only updates;
		// a missing timestamp must not null out a stored one.
		if req.RenewsAt != nil {
			updates["renews_at"] = req.RenewsAt
		}
		if req.ExpiresAt != nil {
			updates["expires_at"] = req.ExpiresAt
		}
		if renewed {
			updates["period_start"] = req.PeriodStart
			updates["period_end"] = req.PeriodEnd
		}
		if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}

		if tierChanged {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).
				Update("tier", string(req.Tier)).Error; err != nil {
				return fmt.Errorf("failed to update user tier: %w", err)
			}
		}

		var quota models.Quota
		if err := tx.Where("user_id = ?", userID).First(&quota).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return replaceQuota(tx, userID, req.Tier, req.SimulationLimit, req.PeriodStart, req.PeriodEnd)
			}
			return fmt.Errorf("quota lookup failed: %w", err)
		}

		quotaUpdates := map[string]interface{}{}
		if renewed {
			quotaUpdates["simulations_used"] = 0
			quotaUpdates["period_start"] = req.PeriodStart
			quotaUpdates["period_end"] = req.PeriodEnd
		}
		if tierChanged {
			quotaUpdates["tier"] = string(req.Tier)
			quotaUpdates["total_simulations"] = req.SimulationLimit
		}
		if len(quotaUpdates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Quota{}).Where("id = ?", quota.ID).
			Updates(quotaUpdates).Error; err != nil {
			return fmt.Errorf("failed to update quota: %w", err)
		}
		return nil
	})
}

// handleCancelled marks the subscription cancelled. Access and remaining
// quota persist until the period end, so neither quota nor user tier change
// here; the expiration event does the teardown.
func (s *SubscriptionService) handleCancelled(userID uuid.UUID, req *billing.ReconciliationRequest) error {
	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		end := req.PeriodEnd
		expiresAt = &end
	}
	err := s.db.Model(&models.Subscription{}).
		Where("provider_subscription_id = ? AND user_id = ?", req.ProviderSubscriptionID, userID).
		Updates(map[string]interface{}{
			"status":     billing.StatusCancelled,
			"expires_at": expiresAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark subscription cancelled: %w", err)
	}
	return nil
}

// handleExpired removes access: the subscription row becomes terminal and the
// user drops to the free tier with the fixed free allowance and zero usage.
func (s *SubscriptionService) handleExpired(userID uuid.UUID, req *billing.ReconciliationRequest) error {
	now := time.Now().UTC()
	freeLimit := billing.SimulationLimit(billing.TierFree, s.freeAllowance)

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscription{}).
			Where("provider_subscription_id = ? AND user_id = ?", req.ProviderSubscriptionID, userID).
			Updates(map[string]interface{}{
				"status":     billing.StatusExpired,
				"expires_at": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to mark subscription expired: %w", err)
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("tier", string(billing.TierFree)).Error; err != nil {
			return fmt.Errorf("failed to reset user tier: %w", err)
		}
		return replaceQuota(tx, userID, billing.TierFree, freeLimit, now, now.Add(30*24*time.Hour))
	})
}

func upsertSubscription(tx *gorm.DB, userID uuid.UUID, req *billing.ReconciliationRequest) error {
	sub := models.Subscription{
		ID:                     uuid.New(),
		UserID:                 userID,
		ProviderSubscriptionID: req.ProviderSubscriptionID,
		Tier:                   string(req.Tier),
		Status:                 req.Status,
		VariantID:              req.VariantID,
		VariantName:            req.VariantName,
		PeriodStart:            req.PeriodStart,
		PeriodEnd:              req.PeriodEnd,
		RenewsAt:               req.RenewsAt,
		ExpiresAt:              req.ExpiresAt,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "tier", "status", "variant_id", "variant_name",
			"period_start", "period_end", "renews_at", "expires_at", "updated_at",
		}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// replaceQuota writes the authoritative quota row for a user with usage reset
// to zero. One row per user; the upsert replaces the previous period's row.
func replaceQuota(tx *gorm.DB, userID uuid.UUID, tier billing.Tier, limit *int, periodStart, periodEnd time.Time) error {
	quota := models.Quota{
		ID:               uuid.New(),
		UserID:           userID,
		Tier:             string(tier),
		TotalSimulations: limit,
		SimulationsUsed:  0,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tier", "total_simulations", "simulations_used",
			"period_start", "period_end", "updated_at",
		}),
	}).Create(&quota).Error
	if err != nil {
		return fmt.Errorf("failed to replace quota: %w", err)
	}
	return nil
}
