package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/medsimapp/medsim-backend/internal/billing"
	"github.com/medsimapp/medsim-backend/internal/config"
	"github.com/medsimapp/medsim-backend/internal/dto"
	"github.com/medsimapp/medsim-backend/internal/models"
	"github.com/medsimapp/medsim-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test"

type noopCanceller struct{}

func (noopCanceller) CancelSubscription(context.Context, string) error { return nil }

var handlerDBCounter atomic.Int64

type webhookFixture struct {
	app  *fiber.App
	db   *gorm.DB
	user *models.User
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:webhook_test_%d?mode=memory&cache=shared", handlerDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.Quota{},
		&models.WebhookEvent{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	user := models.User{ID: uuid.New(), Email: "doc@example.com", Tier: string(billing.TierFree)}
	require.NoError(t, db.Create(&user).Error)

	cfg := &config.Config{
		LemonSqueezyWebhookSecret: testWebhookSecret,
		LemonSqueezyAPIKey:        "lsq_test",
		FreeTierSimulations:       3,
	}
	catalog := billing.NewCatalog(map[string]billing.Tier{
		"111": billing.TierBasic,
		"222": billing.TierPremium,
	})
	classifier := billing.NewClassifier(catalog, 3)
	subscriptions := services.NewSubscriptionService(db, noopCanceller{}, 3)
	auditLog := services.NewWebhookLogger(db)
	handler := NewWebhookHandler(cfg, classifier, subscriptions, auditLog)

	app := fiber.New()
	app.Post("/api/webhooks/lemonsqueezy", handler.HandleLemonSqueezy)
	app.Get("/api/webhooks/lemonsqueezy", handler.ConfigCheck)
	app.Post("/api/admin/webhooks/replay/:subscription_id", handler.Replay)

	return &webhookFixture{app: app, db: db, user: &user}
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookPayload(eventName, subID, email string, variantID int64, status string, renewsAt time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"meta": {"event_name": %q},
		"data": {
			"type": "subscriptions",
			"id": %q,
			"attributes": {
				"user_email": %q,
				"variant_id": %d,
				"variant_name": "Basic Monthly",
				"status": %q,
				"renews_at": %q,
				"created_at": "2026-02-01T10:00:00Z",
				"updated_at": "2026-02-01T10:00:00Z"
			}
		}
	}`, eventName, subID, email, variantID, status, renewsAt.Format(time.RFC3339)))
}

func (f *webhookFixture) deliver(t *testing.T, payload []byte, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/lemonsqueezy", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (f *webhookFixture) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	payload := webhookPayload("subscription_created", "sub_1", "doc@example.com",
		111, "active", time.Now().Add(30*24*time.Hour))

	resp := f.deliver(t, payload, "sha256=deadbeef")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = f.deliver(t, payload, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Unauthenticated deliveries leave no trace in any table.
	assert.Zero(t, f.countRows(t, &models.WebhookEvent{}))
	assert.Zero(t, f.countRows(t, &models.Subscription{}))
	assert.Zero(t, f.countRows(t, &models.Quota{}))
}

func TestWebhook_SignatureCoversRawBody(t *testing.T) {
	f := newWebhookFixture(t)
	payload := webhookPayload("subscription_created", "sub_1", "doc@example.com",
		111, "active", time.Now().Add(30*24*time.Hour))

	// A signature for different bytes must not validate this body.
	other := sign([]byte(`{"meta":{}}`), testWebhookSecret)
	resp := f.deliver(t, payload, other)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebhook_IgnoredEventIsAuditedAndAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	payload := []byte(`{"meta": {"event_name": "order_refunded"}, "data": {"id": "ord_1"}}`)

	resp := f.deliver(t, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var events []models.WebhookEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, models.WebhookStatusIgnored, events[0].Status)
	assert.Equal(t, "order_refunded", events[0].EventType)

	assert.Zero(t, f.countRows(t, &models.Subscription{}))
	assert.Zero(t, f.countRows(t, &models.Quota{}))
}

func TestWebhook_MalformedEnvelopeFailsWithAudit(t *testing.T) {
	f := newWebhookFixture(t)
	payload := []byte(`{"meta": {}, "data": {"id": "sub_1"}}`)

	resp := f.deliver(t, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var event models.WebhookEvent
	require.NoError(t, f.db.First(&event).Error)
	assert.Equal(t, models.WebhookStatusFailed, event.Status)
	require.NotNil(t, event.ErrorMessage)
}

func TestWebhook_UnknownUserReturns404(t *testing.T) {
	f := newWebhookFixture(t)
	payload := webhookPayload("subscription_created", "sub_1", "stranger@example.com",
		111, "active", time.Now().Add(30*24*time.Hour))

	resp := f.deliver(t, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var event models.WebhookEvent
	require.NoError(t, f.db.First(&event).Error)
	assert.Equal(t, models.WebhookStatusFailed, event.Status)
	assert.Nil(t, event.UserID)
}

func TestWebhook_CreatedEventEndToEnd(t *testing.T) {
	f := newWebhookFixture(t)
	renewsAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	payload := webhookPayload("subscription_created", "sub_1", "Doc@Example.com",
		111, "active", renewsAt)

	resp := f.deliver(t, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body dto.WebhookResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	require.NotNil(t, body.UserID)
	assert.Equal(t, f.user.ID, *body.UserID)
	assert.Equal(t, "sub_1", body.SubscriptionID)

	var sub models.Subscription
	require.NoError(t, f.db.Where("provider_subscription_id = ?", "sub_1").First(&sub).Error)
	assert.Equal(t, string(billing.TierBasic), sub.Tier)
	assert.Equal(t, billing.StatusActive, sub.Status)
	assert.Equal(t, f.user.ID, sub.UserID)

	var quota models.Quota
	require.NoError(t, f.db.Where("user_id = ?", f.user.ID).First(&quota).Error)
	require.NotNil(t, quota.TotalSimulations)
	assert.Equal(t, 30, *quota.TotalSimulations)

	var event models.WebhookEvent
	require.NoError(t, f.db.First(&event).Error)
	assert.Equal(t, models.WebhookStatusProcessed, event.Status)
	require.NotNil(t, event.UserID)
	assert.Equal(t, f.user.ID, *event.UserID)
}

func TestWebhook_ConfigCheck(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/lemonsqueezy", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body dto.WebhookConfigResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.WebhookSecretConfigured)
	assert.True(t, body.APIKeyConfigured)
}

func TestWebhook_ReplayReappliesLatestPayload(t *testing.T) {
	f := newWebhookFixture(t)
	renewsAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	payload := webhookPayload("subscription_created", "sub_1", "doc@example.com",
		222, "active", renewsAt)

	resp := f.deliver(t, payload, sign(payload, testWebhookSecret))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Simulate drift: the subscription row loses its tier out of band.
	require.NoError(t, f.db.Model(&models.Subscription{}).
		Where("provider_subscription_id = ?", "sub_1").
		Update("tier", string(billing.TierFree)).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/webhooks/replay/sub_1", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var sub models.Subscription
	require.NoError(t, f.db.Where("provider_subscription_id = ?", "sub_1").First(&sub).Error)
	assert.Equal(t, string(billing.TierPremium), sub.Tier)
}

func TestWebhook_ReplayUnknownSubscriptionReturns404(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/webhooks/replay/sub_missing", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
