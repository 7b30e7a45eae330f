package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/serhatdk/passage/internal/config"
	"github.com/serhatdk/passage/internal/handlers"
	"github.com/serhatdk/passage/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	connectionHandler *handlers.ConnectionHandler,
	wsHandler *handlers.WSHandler,
	transferHandler *handlers.TransferHandler,
	apiKeyHandler *handlers.APIKeyHandler,
	systemHandler *handlers.SystemHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)

	// ─── Auth ────────────────────────────────────────────────────────────
	app.Post("/api/auth/login", authHandler.Login)
	app.Post("/api/auth/refresh", authHandler.Refresh)

	// ─── Realtime channel (WebSocket) ────────────────────────────────────
	// Browsers cannot set headers on websocket upgrades; the channel is
	// keyed by the gateway-issued session identifier instead.
	app.Use("/ws", wsHandler.UpgradeCheck())
	app.Get("/ws", wsHandler.HandleSession())

	// ─── Protected routes ────────────────────────────────────────────────
	api := app.Group("/api", middleware.JWTProtected(cfg.JWTSecret))

	// Auth (protected)
	api.Get("/auth/me", authHandler.Me)
	api.Put("/auth/password", authHandler.ChangePassword)

	// Dashboard
	api.Get("/system/overview", systemHandler.Overview)

	// Saved connections
	api.Get("/connections", connectionHandler.List)
	api.Post("/connections", connectionHandler.Create)
	api.Get("/connections/:id", connectionHandler.Get)
	api.Put("/connections/:id", connectionHandler.Update)
	api.Delete("/connections/:id", connectionHandler.Delete)
	api.Post("/connections/:id/test", connectionHandler.Test)

	// Bulk file transfer (requires a registered file capability)
	api.Get("/transfer/file", transferHandler.DownloadFile)
	api.Get("/transfer/archive", transferHandler.DownloadArchive)
	api.Get("/transfer/content", transferHandler.GetContent)
	api.Post("/transfer/content", transferHandler.SaveContent)

	// AI-assistant API keys
	api.Get("/apikeys", apiKeyHandler.List)
	api.Post("/apikeys", apiKeyHandler.Upsert)
	api.Post("/apikeys/:provider/test", apiKeyHandler.Test)
	api.Delete("/apikeys/:provider", apiKeyHandler.Delete)
}
