package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/medsimapp/medsim-backend/internal/config"
	"github.com/medsimapp/medsim-backend/internal/handlers"
	"github.com/medsimapp/medsim-backend/internal/middleware"
	"gorm.io/gorm"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	webhookHandler *handlers.WebhookHandler,
	quotaHandler *handlers.QuotaHandler,
	configHandler *handlers.RemoteConfigHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Health
	api.Get("/health", healthHandler.Check)

	// Remote Config (public)
	api.Get("/config", configHandler.GetConfig)

	// Auth is public, with a stricter rate limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Post("/apple", authHandler.AppleSignIn)

	// Protected routes (JWT required) - apply middleware to individual routes
	// so it never affects public routes
	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)
	api.Delete("/auth/account", middleware.JWTProtected(cfg), authHandler.DeleteAccount)

	// Quota + simulations (protected)
	protected := api.Group("/p", middleware.JWTProtected(cfg))
	protected.Get("/quota", quotaHandler.GetQuota)
	protected.Post("/simulations/start", quotaHandler.StartSimulation)

	// Webhooks: signature is the auth, no JWT and no rate limiter beyond the
	// API-wide one; GET is a side-effect-free config check
	webhooks := app.Group("/api/webhooks")
	webhooks.Post("/lemonsqueezy", webhookHandler.HandleLemonSqueezy)
	webhooks.Get("/lemonsqueezy", webhookHandler.ConfigCheck)

	// Admin (protected + admin required)
	admin := api.Group("/admin", middleware.JWTProtected(cfg), middleware.AdminRequired(db, cfg))
	admin.Post("/webhooks/replay/:subscription_id", webhookHandler.Replay)
	admin.Put("/config/:key", configHandler.SetConfigKey)
	admin.Delete("/config/:key", configHandler.DeleteConfigKey)
}
