package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/medsimapp/medsim-backend/internal/billing"
	"github.com/medsimapp/medsim-backend/internal/config"
	"github.com/medsimapp/medsim-backend/internal/dto"
	"github.com/medsimapp/medsim-backend/internal/models"
	"github.com/medsimapp/medsim-backend/internal/services"
)

// WebhookHandler is the inbound end of the reconciliation pipeline:
// signature verification → classification → user resolution → reconciliation
// → audit log → response. Every outcome except a signature failure leaves an
// audit record.
type WebhookHandler struct {
	cfg           *config.Config
	classifier    *billing.Classifier
	subscriptions *services.SubscriptionService
	auditLog      *services.WebhookLogger
}

func NewWebhookHandler(cfg *config.Config, classifier *billing.Classifier, subscriptions *services.SubscriptionService, auditLog *services.WebhookLogger) *WebhookHandler {
	return &WebhookHandler{
		cfg:           cfg,
		classifier:    classifier,
		subscriptions: subscriptions,
		auditLog:      auditLog,
	}
}

// HandleLemonSqueezy processes one webhook delivery. 5xx responses prompt the
// provider to retry; 2xx (including ignored events) acknowledge delivery.
func (h *WebhookHandler) HandleLemonSqueezy(c *fiber.Ctx) error {
	// The signature covers the exact wire bytes; verification has to happen
	// before any parsing or re-encoding.
	body := c.Body()
	signature := c.Get("X-Signature")
	if !billing.VerifySignature(body, signature, h.cfg.LemonSqueezyWebhookSecret) {
		// No user is resolved at this point, so only an anonymous attempt is
		// logged and no audit row is written.
		slog.Warn("webhook signature verification failed", "ip", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid signature",
		})
	}

	req, err := h.classifier.Classify(body)
	if err != nil {
		h.auditLog.Record("unknown", body, "", nil, models.WebhookStatusFailed, err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	if req.Ignored() {
		h.auditLog.Record(req.EventType, body, "", nil, models.WebhookStatusIgnored, nil)
		slog.Info("webhook event ignored", "event_type", req.EventType)
		return c.JSON(dto.WebhookResponse{
			Success: true,
			Message: "Event type not handled",
		})
	}

	user, err := h.subscriptions.ResolveUserByEmail(req.UserEmail)
	if err != nil {
		h.auditLog.Record(req.EventType, body, req.ProviderSubscriptionID, nil, models.WebhookStatusFailed, err)
		if errors.Is(err, services.ErrUserNotFound) {
			slog.Warn("webhook user not found", "event_type", req.EventType, "subscription_id", req.ProviderSubscriptionID)
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to resolve user",
		})
	}

	if err := h.subscriptions.Reconcile(c.Context(), user.ID, req); err != nil {
		h.auditLog.Record(req.EventType, body, req.ProviderSubscriptionID, &user.ID, models.WebhookStatusFailed, err)
		slog.Error("webhook reconciliation failed",
			"event_type", req.EventType,
			"subscription_id", req.ProviderSubscriptionID,
			"user_id", user.ID,
			"error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to process webhook event",
		})
	}

	h.auditLog.Record(req.EventType, body, req.ProviderSubscriptionID, &user.ID, models.WebhookStatusProcessed, nil)
	slog.Info("webhook processed",
		"event_type", req.EventType,
		"subscription_id", req.ProviderSubscriptionID,
		"user_id", user.ID,
		"tier", req.Tier)

	return c.JSON(dto.WebhookResponse{
		Success:        true,
		Message:        "Webhook processed",
		UserID:         &user.ID,
		SubscriptionID: req.ProviderSubscriptionID,
	})
}

// ConfigCheck answers GET on the webhook route with which secrets are
// present. Booleans only; no side effects.
func (h *WebhookHandler) ConfigCheck(c *fiber.Ctx) error {
	return c.JSON(dto.WebhookConfigResponse{
		Status:                  "ok",
		WebhookSecretConfigured: h.cfg.LemonSqueezyWebhookSecret != "",
		APIKeyConfigured:        h.cfg.LemonSqueezyAPIKey != "",
	})
}

// Replay re-runs the most recent audited payload for a provider subscription
// id through the pipeline, skipping signature verification. Operator recovery
// for when the provider's automatic retries are exhausted.
func (h *WebhookHandler) Replay(c *fiber.Ctx) error {
	subscriptionID := c.Params("subscription_id")
	if subscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "subscription_id is required",
		})
	}

	event, err := h.auditLog.LatestPayload(subscriptionID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "No logged event for subscription",
		})
	}

	req, err := h.classifier.Classify(event.EventPayload)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}
	if req.Ignored() {
		return c.JSON(dto.WebhookResponse{
			Success: true,
			Message: "Event type not handled",
		})
	}

	user, err := h.subscriptions.ResolveUserByEmail(req.UserEmail)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "User not found",
		})
	}

	if err := h.subscriptions.Reconcile(c.Context(), user.ID, req); err != nil {
		h.auditLog.Record(req.EventType, event.EventPayload, subscriptionID, &user.ID, models.WebhookStatusFailed, err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Replay failed",
		})
	}

	h.auditLog.Record(req.EventType, event.EventPayload, subscriptionID, &user.ID, models.WebhookStatusProcessed, nil)
	slog.Info("webhook replayed", "subscription_id", subscriptionID, "event_type", req.EventType, "user_id", user.ID)

	return c.JSON(dto.WebhookResponse{
		Success:        true,
		Message:        "Replay processed",
		UserID:         &user.ID,
		SubscriptionID: subscriptionID,
	})
}
