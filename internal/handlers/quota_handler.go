package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/medsimapp/medsim-backend/internal/dto"
	"github.com/medsimapp/medsim-backend/internal/middleware"
	"github.com/medsimapp/medsim-backend/internal/services"
)

// QuotaHandler exposes the reconciled quota state to the mobile client.
type QuotaHandler struct {
	quotas *services.QuotaService
}

func NewQuotaHandler(quotas *services.QuotaService) *QuotaHandler {
	return &QuotaHandler{quotas: quotas}
}

func (h *QuotaHandler) GetQuota(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	quota, err := h.quotas.GetQuota(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load quota",
		})
	}

	return c.JSON(dto.QuotaResponse{
		Tier:             quota.Tier,
		TotalSimulations: quota.TotalSimulations,
		SimulationsUsed:  quota.SimulationsUsed,
		Remaining:        services.Remaining(quota),
		PeriodStart:      quota.PeriodStart,
		PeriodEnd:        quota.PeriodEnd,
	})
}

// StartSimulation consumes one simulation from the user's allowance. A
// depleted quota answers 402 so the client can route to the paywall.
func (h *QuotaHandler) StartSimulation(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	quota, err := h.quotas.ConsumeSimulation(userID)
	if err != nil {
		if errors.Is(err, services.ErrQuotaExhausted) {
			return c.Status(fiber.StatusPaymentRequired).JSON(dto.ErrorResponse{
				Error: true, Message: "Simulation quota exhausted",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to start simulation",
		})
	}

	return c.JSON(dto.SimulationStartResponse{
		Started:   true,
		Remaining: services.Remaining(quota),
	})
}
