package model

import (
	"time"

	"github.com/lib/pq"
)

// Chunk is a contiguous, timestamp-bounded slice of a video's transcript,
// sized for retrieval and carrying one embedding vector.
type Chunk struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	VideoID   uint      `gorm:"not null;uniqueIndex:idx_chunks_video_ordinal_gen,priority:1;index" json:"video_id"`
	// TenantID is denormalized from the owning video so scoped similarity
	// queries never need a join.
	TenantID     uint    `gorm:"not null;index" json:"tenant_id"`
	OrdinalIndex int     `gorm:"not null;uniqueIndex:idx_chunks_video_ordinal_gen,priority:2" json:"ordinal_index"`
	Generation   int     `gorm:"not null;default:0;uniqueIndex:idx_chunks_video_ordinal_gen,priority:3" json:"-"`
	Text         string  `gorm:"type:text;not null" json:"text"`
	WordCount    int     `gorm:"default:0" json:"word_count"`
	StartTime    float64 `gorm:"not null" json:"start_time"`
	EndTime      float64 `gorm:"not null" json:"end_time"`

	Embedding pq.Float64Array `gorm:"type:float8[]" json:"-"`

	// Relationships
	Video Video `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Chunk
func (Chunk) TableName() string {
	return "chunks"
}
