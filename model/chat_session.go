package model

import (
	"time"

	"gorm.io/gorm"
)

// ChatSession represents a conversation between a learner and the video library
type ChatSession struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TenantID    uint   `gorm:"not null;index" json:"tenant_id"`
	RequesterID uint   `gorm:"not null;index" json:"requester_id"`
	// AnchorVideoID optionally biases retrieval toward one video without
	// excluding the rest of the tenant's library.
	AnchorVideoID *uint  `gorm:"index" json:"anchor_video_id,omitempty"`
	Title         string `gorm:"type:varchar(255)" json:"title"` // lazily generated from the first message
	Archived      bool   `gorm:"default:false;index" json:"archived"`
	MessageCount  int    `gorm:"default:0" json:"message_count"`
	LastMessageAt *time.Time     `json:"last_message_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	AnchorVideo *Video        `gorm:"foreignKey:AnchorVideoID;constraint:OnDelete:SET NULL" json:"anchor_video,omitempty"`
	Messages    []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName specifies the table name for ChatSession
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// FreshWithin reports whether the session's last activity falls inside the
// reuse window. Sessions with no messages yet are considered fresh from their
// creation time.
func (s *ChatSession) FreshWithin(window time.Duration, now time.Time) bool {
	last := s.CreatedAt
	if s.LastMessageAt != nil {
		last = *s.LastMessageAt
	}
	return now.Sub(last) < window
}
