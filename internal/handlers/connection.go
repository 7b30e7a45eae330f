package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/serhatdk/passage/internal/crypto"
	"github.com/serhatdk/passage/internal/models"
	"github.com/serhatdk/passage/internal/sshx"
	"gorm.io/gorm"
)

// ConnectionHandler is the persisted-connection CRUD surface: named
// host/port/user/credential records, encrypted at rest.
type ConnectionHandler struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewConnectionHandler(db *gorm.DB, encryptor *crypto.Encryptor) *ConnectionHandler {
	return &ConnectionHandler{db: db, encryptor: encryptor}
}

func (h *ConnectionHandler) List(c *fiber.Ctx) error {
	var conns []models.Connection
	if err := h.db.Order("created_at DESC").Find(&conns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list connections",
		})
	}
	return c.JSON(fiber.Map{"connections": conns})
}

type connectionRequest struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	AuthType   string `json:"auth_type"`
	Password   string `json:"password"`
	PrivateKey string `json:"private_key"`
	WorkDir    string `json:"workdir"`
}

func (r *connectionRequest) credentials() sshx.Credentials {
	return sshx.Credentials{
		Host:       r.Host,
		Port:       r.Port,
		Username:   r.Username,
		Password:   r.Password,
		PrivateKey: r.PrivateKey,
		AuthType:   r.AuthType,
		WorkDir:    r.WorkDir,
	}
}

func (h *ConnectionHandler) Create(c *fiber.Ctx) error {
	var req connectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.Host == "" || req.Username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Name, host, and username are required",
		})
	}
	if req.Port == 0 {
		req.Port = 22
	}
	if req.AuthType == "" {
		req.AuthType = "password"
	}

	// Test connection first
	fingerprint, err := sshx.Fingerprint(req.credentials())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "SSH connection test failed: " + err.Error(),
		})
	}

	encPassword, err := h.encryptor.Encrypt(req.Password)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to encrypt credentials",
		})
	}
	encKey, err := h.encryptor.Encrypt(req.PrivateKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to encrypt credentials",
		})
	}

	now := time.Now()
	conn := models.Connection{
		Name:                req.Name,
		Host:                req.Host,
		Port:                req.Port,
		Username:            req.Username,
		AuthType:            req.AuthType,
		EncryptedPassword:   encPassword,
		EncryptedPrivateKey: encKey,
		WorkDir:             req.WorkDir,
		Fingerprint:         fingerprint,
		LastConnectedAt:     &now,
	}
	if err := h.db.Create(&conn).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create connection",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(conn)
}

func (h *ConnectionHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid connection ID",
		})
	}

	var conn models.Connection
	if err := h.db.First(&conn, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Connection not found",
		})
	}
	return c.JSON(conn)
}

func (h *ConnectionHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid connection ID",
		})
	}

	var conn models.Connection
	if err := h.db.First(&conn, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Connection not found",
		})
	}

	var req connectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if req.Name != "" {
		conn.Name = req.Name
	}
	if req.Host != "" {
		conn.Host = req.Host
	}
	if req.Port != 0 {
		conn.Port = req.Port
	}
	if req.Username != "" {
		conn.Username = req.Username
	}
	if req.AuthType != "" {
		conn.AuthType = req.AuthType
	}
	conn.WorkDir = req.WorkDir

	if req.Password != "" {
		enc, err := h.encryptor.Encrypt(req.Password)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Failed to encrypt credentials",
			})
		}
		conn.EncryptedPassword = enc
	}
	if req.PrivateKey != "" {
		enc, err := h.encryptor.Encrypt(req.PrivateKey)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Failed to encrypt credentials",
			})
		}
		conn.EncryptedPrivateKey = enc
	}

	if err := h.db.Save(&conn).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to update connection",
		})
	}
	return c.JSON(conn)
}

func (h *ConnectionHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid connection ID",
		})
	}

	if err := h.db.Delete(&models.Connection{}, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to delete connection",
		})
	}
	return c.JSON(fiber.Map{"message": "Connection deleted"})
}

// Test dials a saved connection and refreshes its fingerprint.
func (h *ConnectionHandler) Test(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid connection ID",
		})
	}

	var conn models.Connection
	if err := h.db.First(&conn, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Connection not found",
		})
	}

	password, err := h.encryptor.Decrypt(conn.EncryptedPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to decrypt credentials",
		})
	}
	privateKey, err := h.encryptor.Decrypt(conn.EncryptedPrivateKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to decrypt credentials",
		})
	}

	fingerprint, err := sshx.Fingerprint(sshx.Credentials{
		Host:       conn.Host,
		Port:       conn.Port,
		Username:   conn.Username,
		Password:   password,
		PrivateKey: privateKey,
		AuthType:   conn.AuthType,
	})
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   true,
			"message": "Connection test failed: " + err.Error(),
		})
	}

	now := time.Now()
	h.db.Model(&conn).Updates(map[string]interface{}{
		"fingerprint":       fingerprint,
		"last_connected_at": now,
	})

	return c.JSON(fiber.Map{
		"message":     "Connection successful",
		"fingerprint": fingerprint,
	})
}
