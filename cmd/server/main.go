package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/serhatdk/passage/internal/config"
	"github.com/serhatdk/passage/internal/crypto"
	"github.com/serhatdk/passage/internal/database"
	"github.com/serhatdk/passage/internal/handlers"
	"github.com/serhatdk/passage/internal/registry"
	"github.com/serhatdk/passage/internal/routes"
)

func main() {
	// JSON structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting Passage", "version", handlers.Version)

	// ─── Config ──────────────────────────────────────────────────────────
	cfg := config.Load()

	// ─── Database ────────────────────────────────────────────────────────
	if err := database.Connect(cfg); err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	db := database.DB

	// ─── Encryption ─────────────────────────────────────────────────────
	var encryptor *crypto.Encryptor
	if cfg.CredEncryptionKey != "" {
		var err error
		encryptor, err = crypto.NewEncryptor(cfg.CredEncryptionKey)
		if err != nil {
			slog.Error("Failed to create encryptor", "error", err)
			os.Exit(1)
		}
		slog.Info("Credential encryption initialized")
	} else {
		slog.Warn("CRED_ENCRYPTION_KEY not set, credentials will not be encrypted")
		// Create a dummy encryptor with a default key for development
		encryptor, _ = crypto.NewEncryptor("0000000000000000000000000000000000000000000000000000000000000000")
	}

	// ─── Connection Registry ────────────────────────────────────────────
	reg := registry.New()

	// ─── Handlers ───────────────────────────────────────────────────────
	authHandler := handlers.NewAuthHandler(cfg)
	connectionHandler := handlers.NewConnectionHandler(db, encryptor)
	wsHandler := handlers.NewWSHandler(reg, db)
	transferHandler := handlers.NewTransferHandler(reg)
	apiKeyHandler := handlers.NewAPIKeyHandler(db, encryptor)
	systemHandler := handlers.NewSystemHandler(reg)

	// ─── Fiber App ──────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      "passage v" + handlers.Version,
		ServerHeader: "passage",
		BodyLimit:    50 * 1024 * 1024, // 50MB for file uploads
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": message,
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: false,
	}))

	// Security headers
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Request logger
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if c.Path() == "/api/health" {
			return err
		}
		slog.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)
		return err
	})

	// ─── Routes ─────────────────────────────────────────────────────────
	routes.Setup(app, cfg, authHandler, connectionHandler, wsHandler,
		transferHandler, apiKeyHandler, systemHandler)

	// ─── Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Passage...")

		reg.CloseAll()

		if err := app.Shutdown(); err != nil {
			slog.Error("Fiber shutdown error", "error", err)
		}

		if sqlDB, err := database.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	// ─── Start ──────────────────────────────────────────────────────────
	listenAddr := ":" + cfg.Port
	slog.Info("Passage listening", "addr", listenAddr)

	if err := app.Listen(listenAddr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
