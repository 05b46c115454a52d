package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MessageRole represents the role of the message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// VideoReference is a structured citation on an assistant message pointing to
// a specific video and timestamp.
type VideoReference struct {
	VideoID    uint    `json:"video_id"`
	VideoTitle string  `json:"video_title"`
	Seconds    float64 `json:"seconds"`
	Timestamp  string  `json:"timestamp"` // MM:SS or H:MM:SS
	Snippet    string  `json:"snippet,omitempty"`
}

// VideoReferences is a custom type for storing citation data as JSONB
type VideoReferences []VideoReference

// Scan implements the sql.Scanner interface for reading from database
func (r *VideoReferences) Scan(value interface{}) error {
	if value == nil {
		*r = VideoReferences{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal video references value")
	}

	if len(bytes) == 0 {
		*r = VideoReferences{}
		return nil
	}

	return json.Unmarshal(bytes, r)
}

// Value implements the driver.Valuer interface for writing to database
func (r VideoReferences) Value() (driver.Value, error) {
	if len(r) == 0 {
		return []byte("[]"), nil // Return empty JSON array instead of nil
	}
	return json.Marshal(r)
}

// ModelTier selects which completion/embedding pricing tier served a call
type ModelTier string

const (
	TierStandard ModelTier = "standard" // cheaper/faster
	TierAdvanced ModelTier = "advanced" // stronger/slower
)

// ChatMessage represents a single message in a chat conversation.
// Messages are immutable once written.
type ChatMessage struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	SessionID uint        `gorm:"not null;index" json:"session_id"`
	Role      MessageRole `gorm:"type:varchar(20);not null" json:"role"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	// VideoRefs is populated only on assistant messages.
	VideoRefs    VideoReferences `gorm:"type:jsonb" json:"video_references,omitempty"`
	InputTokens  int             `gorm:"default:0" json:"input_tokens"`
	OutputTokens int             `gorm:"default:0" json:"output_tokens"`
	ModelTier    ModelTier       `gorm:"type:varchar(20)" json:"model_tier,omitempty"`

	// Relationships
	Session ChatSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for ChatMessage
func (ChatMessage) TableName() string {
	return "chat_messages"
}
