package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// VideoSourceKind identifies where a video's content comes from
type VideoSourceKind string

const (
	SourceKindEmbedYouTube VideoSourceKind = "embed-youtube"
	SourceKindEmbedLoom    VideoSourceKind = "embed-loom"
	SourceKindEmbedVimeo   VideoSourceKind = "embed-vimeo"
	SourceKindManagedCDN   VideoSourceKind = "managed-cdn"
	SourceKindUploadedFile VideoSourceKind = "uploaded-file"
)

// VideoStatus represents the processing state of a video in the ingestion pipeline
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusResolving  VideoStatus = "resolving"
	VideoStatusExtracting VideoStatus = "extracting"
	VideoStatusRetrying   VideoStatus = "retrying" // transient sub-state of extracting
	VideoStatusChunking   VideoStatus = "chunking"
	VideoStatusEmbedding  VideoStatus = "embedding"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

// ExtractionMethod identifies how a transcript was (or will be) obtained
type ExtractionMethod string

const (
	MethodPlatformCaptions ExtractionMethod = "platform_captions" // free captions on embed sources
	MethodCDNAutoCaptions  ExtractionMethod = "cdn_auto_captions" // provider auto-captions on CDN assets
	MethodPaidSpeechToText ExtractionMethod = "paid_speech_to_text"
)

// Video represents a lecture video owned by a tenant. Exactly one source
// reference group is populated depending on SourceKind.
type Video struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	TenantID  uint           `gorm:"not null;index" json:"tenant_id"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`

	SourceKind VideoSourceKind `gorm:"type:varchar(20);not null" json:"source_kind"`
	// Source references: external embed id, Mux asset + playback ids, or a
	// storage path for raw uploads.
	EmbedID       string `gorm:"type:varchar(100)" json:"embed_id,omitempty"`
	MuxAssetID    string `gorm:"type:varchar(100)" json:"mux_asset_id,omitempty"`
	MuxPlaybackID string `gorm:"type:varchar(100)" json:"mux_playback_id,omitempty"`
	StoragePath   string `gorm:"type:varchar(500)" json:"storage_path,omitempty"`

	DurationSeconds  float64          `gorm:"default:0" json:"duration_seconds"`
	Status           VideoStatus      `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	TranscriptText   string           `gorm:"type:text" json:"-"`
	ExtractionMethod ExtractionMethod `gorm:"type:varchar(30)" json:"extraction_method,omitempty"`
	ExtractionCost   float64          `gorm:"default:0" json:"extraction_cost"`
	FailureReason    string           `gorm:"type:text" json:"failure_reason,omitempty"`

	// ChunkGeneration points at the chunk batch currently visible to search.
	// Re-sync writes a new generation and flips this pointer in one transaction.
	ChunkGeneration int        `gorm:"default:0" json:"-"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`

	// Relationships
	Chunks []Chunk `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"chunks,omitempty"`
}

// TableName specifies the table name for Video
func (Video) TableName() string {
	return "videos"
}

var ErrInvalidSourceReference = errors.New("exactly one source reference must be populated for the video's source kind")

// Validate checks the exactly-one-source-reference invariant
func (v *Video) Validate() error {
	embed := v.EmbedID != ""
	cdn := v.MuxAssetID != "" && v.MuxPlaybackID != ""
	upload := v.StoragePath != ""

	switch v.SourceKind {
	case SourceKindEmbedYouTube, SourceKindEmbedLoom, SourceKindEmbedVimeo:
		if !embed || cdn || upload {
			return ErrInvalidSourceReference
		}
	case SourceKindManagedCDN:
		if !cdn || embed || upload {
			return ErrInvalidSourceReference
		}
	case SourceKindUploadedFile:
		if !upload || embed || cdn {
			return ErrInvalidSourceReference
		}
	default:
		return errors.New("unknown source kind: " + string(v.SourceKind))
	}
	return nil
}

// IsTerminal returns true when the video will not be advanced further
func (s VideoStatus) IsTerminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// IsInFlight returns true while an ingestion job owns the video's state machine
func (s VideoStatus) IsInFlight() bool {
	switch s {
	case VideoStatusResolving, VideoStatusExtracting, VideoStatusRetrying, VideoStatusChunking, VideoStatusEmbedding:
		return true
	}
	return false
}
