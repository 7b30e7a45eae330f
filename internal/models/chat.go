package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChatHistory is one saved AI-assistant conversation. It shares the
// realtime channel (chat-saved confirmations) but is otherwise independent
// of the remote-connection machinery.
type ChatHistory struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID string         `gorm:"index" json:"session_id"`
	Messages  datatypes.JSON `gorm:"type:jsonb" json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
