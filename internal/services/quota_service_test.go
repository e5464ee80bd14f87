package services

import (
	"testing"

	"github.com/medsimapp/medsim-backend/internal/billing"
	"github.com/medsimapp/medsim-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetQuota_BootstrapsFreeTier(t *testing.T) {
	db := openTestDB(t)
	svc := NewQuotaService(db, 3)
	user := createTestUser(t, db, "doc@example.com")

	quota, err := svc.GetQuota(user.ID)
	require.NoError(t, err)
	assert.Equal(t, string(billing.TierFree), quota.Tier)
	require.NotNil(t, quota.TotalSimulations)
	assert.Equal(t, 3, *quota.TotalSimulations)
	assert.Equal(t, 0, quota.SimulationsUsed)

	// The bootstrap row is persisted, not synthesized per request.
	again, err := svc.GetQuota(user.ID)
	require.NoError(t, err)
	assert.Equal(t, quota.ID, again.ID)
}

func TestConsumeSimulation_ExhaustsLimit(t *testing.T) {
	db := openTestDB(t)
	svc := NewQuotaService(db, 2)
	user := createTestUser(t, db, "doc@example.com")

	for i := 1; i <= 2; i++ {
		quota, err := svc.ConsumeSimulation(user.ID)
		require.NoError(t, err)
		assert.Equal(t, i, quota.SimulationsUsed)
	}

	_, err := svc.ConsumeSimulation(user.ID)
	assert.ErrorIs(t, err, ErrQuotaExhausted)

	var quota models.Quota
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&quota).Error)
	assert.Equal(t, 2, quota.SimulationsUsed, "exhausted consume must not increment")
}

func TestConsumeSimulation_UnlimitedTier(t *testing.T) {
	db := openTestDB(t)
	svc := NewQuotaService(db, 3)
	user := createTestUser(t, db, "doc@example.com")

	quota := models.Quota{
		UserID:           user.ID,
		Tier:             string(billing.TierPremium),
		TotalSimulations: nil,
	}
	require.NoError(t, db.Create(&quota).Error)

	for i := 0; i < 50; i++ {
		_, err := svc.ConsumeSimulation(user.ID)
		require.NoError(t, err)
	}

	var fresh models.Quota
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&fresh).Error)
	assert.Equal(t, 50, fresh.SimulationsUsed)
}

func TestRemaining(t *testing.T) {
	assert.Nil(t, Remaining(&models.Quota{TotalSimulations: nil, SimulationsUsed: 10}))

	got := Remaining(&models.Quota{TotalSimulations: intPtr(30), SimulationsUsed: 12})
	require.NotNil(t, got)
	assert.Equal(t, 18, *got)

	// Usage past the limit clamps to zero instead of going negative.
	got = Remaining(&models.Quota{TotalSimulations: intPtr(3), SimulationsUsed: 5})
	require.NotNil(t, got)
	assert.Equal(t, 0, *got)
}
