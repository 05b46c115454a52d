package model

import (
	"time"
)

// UsageKind identifies which provider surface a usage record covers
type UsageKind string

const (
	UsageKindEmbedding     UsageKind = "embedding"
	UsageKindCompletion    UsageKind = "completion"
	UsageKindTranscription UsageKind = "transcription"
)

// UsageRecord captures one billable provider call. The rates actually applied
// at call time are stored alongside the token counts so re-aggregation always
// reproduces historical totals even after the live price table changes.
type UsageRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	TenantID    uint      `gorm:"not null;index" json:"tenant_id"`
	RequesterID uint      `gorm:"index" json:"requester_id"`
	SessionID   *uint     `gorm:"index" json:"session_id,omitempty"`
	MessageID   *uint     `gorm:"index" json:"message_id,omitempty"`
	VideoID     *uint     `gorm:"index" json:"video_id,omitempty"`

	Kind         UsageKind `gorm:"type:varchar(20);not null" json:"kind"`
	Tier         ModelTier `gorm:"type:varchar(20)" json:"tier,omitempty"`
	Model        string    `gorm:"type:varchar(100)" json:"model"`
	PriceVersion string    `gorm:"type:varchar(20);not null" json:"price_version"`

	InputTokens     int     `gorm:"default:0" json:"input_tokens"`
	OutputTokens    int     `gorm:"default:0" json:"output_tokens"`
	DurationMinutes float64 `gorm:"default:0" json:"duration_minutes"` // transcription only

	// Rates applied at call time (per million tokens, or per minute for
	// transcription).
	InputRate  float64 `gorm:"default:0" json:"input_rate"`
	OutputRate float64 `gorm:"default:0" json:"output_rate"`
	Cost       float64 `gorm:"not null" json:"cost"`
}

// TableName specifies the table name for UsageRecord
func (UsageRecord) TableName() string {
	return "usage_records"
}

// Recompute derives the cost from the persisted counts and stored rates.
// It must always equal the stored Cost.
func (u *UsageRecord) Recompute() float64 {
	if u.Kind == UsageKindTranscription {
		return u.DurationMinutes * u.InputRate
	}
	return float64(u.InputTokens)/1_000_000*u.InputRate +
		float64(u.OutputTokens)/1_000_000*u.OutputRate
}
