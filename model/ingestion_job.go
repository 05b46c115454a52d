package model

import (
	"time"

	"gorm.io/datatypes"
)

// IngestionJobStatus represents the status of a queued ingestion job
type IngestionJobStatus string

const (
	IngestionJobStatusPending   IngestionJobStatus = "pending"
	IngestionJobStatusRunning   IngestionJobStatus = "running"
	IngestionJobStatusCompleted IngestionJobStatus = "completed"
	IngestionJobStatusFailed    IngestionJobStatus = "failed"
	IngestionJobStatusCancelled IngestionJobStatus = "cancelled"
	// IngestionJobStatusDead marks a job that exhausted its delivery budget
	// (dead-letter).
	IngestionJobStatusDead IngestionJobStatus = "dead"
)

// MaxJobDeliveries bounds at-least-once redelivery before dead-lettering
const MaxJobDeliveries = 3

// IngestionJob is a durable queue row driving one video through the ingestion
// state machine. Workers claim rows whose VisibleAt has passed; a claim pushes
// VisibleAt forward (visibility timeout) so a crashed worker's job is
// redelivered.
type IngestionJob struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	VideoID     uint               `gorm:"not null;index" json:"video_id"`
	TenantID    uint               `gorm:"not null;index" json:"tenant_id"`
	Status      IngestionJobStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ForceResync bool               `gorm:"default:false" json:"force_resync"`
	Deliveries  int                `gorm:"default:0" json:"deliveries"`
	VisibleAt   time.Time          `gorm:"index" json:"visible_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	// Cancelled is the cooperative cancellation flag checked at every state
	// transition boundary.
	Cancelled bool `gorm:"default:false" json:"cancelled"`
	// Stage mirrors pipeline progress for status polling. During a re-sync it
	// is the only place progress is visible: the video row stays completed so
	// its current chunk set keeps serving search.
	Stage     string `gorm:"type:varchar(20)" json:"stage,omitempty"`
	LastError string `gorm:"type:text" json:"last_error,omitempty"`
	MethodTried   ExtractionMethod `gorm:"type:varchar(30)" json:"method_tried,omitempty"`
	AttemptDetail datatypes.JSON   `gorm:"type:jsonb" json:"attempt_detail,omitempty"`

	// Relationships
	Video Video `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for IngestionJob
func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// IsOpen returns true while the job can still be delivered to a worker
func (j *IngestionJob) IsOpen() bool {
	return j.Status == IngestionJobStatusPending || j.Status == IngestionJobStatusRunning
}
