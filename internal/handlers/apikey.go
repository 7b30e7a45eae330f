package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/serhatdk/passage/internal/crypto"
	"github.com/serhatdk/passage/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// APIKeyHandler stores AI-assistant provider keys. Keys are encrypted at
// rest and only ever returned masked.
type APIKeyHandler struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewAPIKeyHandler(db *gorm.DB, encryptor *crypto.Encryptor) *APIKeyHandler {
	return &APIKeyHandler{db: db, encryptor: encryptor}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func (h *APIKeyHandler) List(c *fiber.Ctx) error {
	var keys []models.APIKey
	if err := h.db.Order("provider").Find(&keys).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list API keys",
		})
	}

	out := make([]fiber.Map, 0, len(keys))
	for _, k := range keys {
		plain, err := h.encryptor.Decrypt(k.EncryptedKey)
		masked := ""
		if err == nil {
			masked = maskKey(plain)
		}
		out = append(out, fiber.Map{
			"id":             k.ID,
			"provider":       k.Provider,
			"key_masked":     masked,
			"settings":       k.Settings,
			"test_status":    k.TestStatus,
			"last_tested_at": k.LastTestedAt,
		})
	}
	return c.JSON(fiber.Map{"api_keys": out})
}

func (h *APIKeyHandler) Upsert(c *fiber.Ctx) error {
	var req struct {
		Provider string `json:"provider"`
		Key      string `json:"key"`
		Settings string `json:"settings"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}
	if req.Provider == "" || req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Provider and key are required",
		})
	}

	encKey, err := h.encryptor.Encrypt(req.Key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to encrypt key",
		})
	}

	settings := datatypes.JSON("{}")
	if req.Settings != "" {
		settings = datatypes.JSON(req.Settings)
	}

	var key models.APIKey
	err = h.db.Where("provider = ?", req.Provider).First(&key).Error
	if err == gorm.ErrRecordNotFound {
		key = models.APIKey{Provider: req.Provider, EncryptedKey: encKey, Settings: settings}
		if err := h.db.Create(&key).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Failed to store API key",
			})
		}
	} else if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to store API key",
		})
	} else {
		key.EncryptedKey = encKey
		key.Settings = settings
		key.TestStatus = "unknown"
		if err := h.db.Save(&key).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Failed to update API key",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message":  "API key stored",
		"provider": req.Provider,
	})
}

// Test checks the stored key decrypts and looks structurally valid, and
// records the result.
func (h *APIKeyHandler) Test(c *fiber.Ctx) error {
	provider := c.Params("provider")

	var key models.APIKey
	if err := h.db.Where("provider = ?", provider).First(&key).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "API key not found",
		})
	}

	plain, err := h.encryptor.Decrypt(key.EncryptedKey)
	status := "ok"
	if err != nil || strings.TrimSpace(plain) == "" {
		status = "failed"
	}

	now := time.Now()
	h.db.Model(&key).Updates(map[string]interface{}{
		"test_status":    status,
		"last_tested_at": now,
	})

	if status != "ok" {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   true,
			"message": "API key test failed",
		})
	}
	return c.JSON(fiber.Map{"message": "API key OK", "provider": provider})
}

func (h *APIKeyHandler) Delete(c *fiber.Ctx) error {
	provider := c.Params("provider")
	if err := h.db.Where("provider = ?", provider).Delete(&models.APIKey{}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to delete API key",
		})
	}
	return c.JSON(fiber.Map{"message": "API key deleted"})
}
