package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// APIKey stores an AI-assistant provider key, encrypted at rest.
type APIKey struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Provider     string         `gorm:"not null;uniqueIndex" json:"provider"`
	EncryptedKey string         `gorm:"type:text" json:"-"`
	Settings     datatypes.JSON `gorm:"type:jsonb" json:"settings"`
	LastTestedAt *time.Time     `json:"last_tested_at"`
	TestStatus   string         `gorm:"default:'unknown'" json:"test_status"` // ok, failed, unknown
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
