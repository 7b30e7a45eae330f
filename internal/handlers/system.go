package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/serhatdk/passage/internal/registry"
)

const Version = "1.2.0"

type SystemHandler struct {
	reg     *registry.Registry
	started time.Time
}

func NewSystemHandler(reg *registry.Registry) *SystemHandler {
	return &SystemHandler{reg: reg, started: time.Now()}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
	})
}

// Overview reports live gateway state for the dashboard.
func (h *SystemHandler) Overview(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version":         Version,
		"uptime_seconds":  int(time.Since(h.started).Seconds()),
		"active_sessions": h.reg.Len(),
	})
}
