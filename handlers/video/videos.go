package video

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services"
	"github.com/sahilchouksey/lecture-chat-api/services/storage"
	"github.com/sahilchouksey/lecture-chat-api/utils/middleware"
	"github.com/sahilchouksey/lecture-chat-api/utils/response"
	"github.com/sahilchouksey/lecture-chat-api/utils/validation"
)

// uploadURLExpiry bounds how long a presigned upload slot stays valid
const uploadURLExpiry = 1 * time.Hour

// VideoHandler handles video library and ingestion requests
type VideoHandler struct {
	db            *gorm.DB
	validator     *validation.Validator
	ingestService *services.IngestService
	spacesClient  *storage.SpacesClient
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(db *gorm.DB, ingestService *services.IngestService, spacesClient *storage.SpacesClient) *VideoHandler {
	return &VideoHandler{
		db:            db,
		validator:     validation.NewValidator(),
		ingestService: ingestService,
		spacesClient:  spacesClient,
	}
}

// CreateUploadRequest represents the request for a direct-upload slot
type CreateUploadRequest struct {
	Filename    string `json:"filename" validate:"required,min=1,max=255"`
	ContentType string `json:"content_type" validate:"required,max=100"`
}

// CreateUpload handles POST /api/v1/videos/uploads: it reserves a storage key
// and returns a presigned URL the client uploads the raw file to. The storage
// path then becomes the source reference of an uploaded-file video.
func (h *VideoHandler) CreateUpload(c *fiber.Ctx) error {
	if h.spacesClient == nil {
		return response.ServiceUnavailable(c, "Upload storage is not configured")
	}

	var req CreateUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	key := storage.GenerateUploadKey(middleware.TenantID(c), req.Filename)
	uploadURL, err := h.spacesClient.GetPresignedUploadURL(key, req.ContentType, uploadURLExpiry)
	if err != nil {
		return response.InternalServerError(c, "Failed to create upload slot")
	}

	return response.Created(c, fiber.Map{
		"storage_path": key,
		"upload_url":   uploadURL,
		"expires_in":   int(uploadURLExpiry.Seconds()),
	})
}

// CreateVideoRequest represents the request to register a video
type CreateVideoRequest struct {
	Title      string `json:"title" validate:"required,min=1,max=255"`
	SourceKind string `json:"source_kind" validate:"required,oneof=embed-youtube embed-loom embed-vimeo managed-cdn uploaded-file"`

	EmbedID       string `json:"embed_id" validate:"omitempty,max=100"`
	MuxAssetID    string `json:"mux_asset_id" validate:"omitempty,max=100"`
	MuxPlaybackID string `json:"mux_playback_id" validate:"omitempty,max=100"`
	StoragePath   string `json:"storage_path" validate:"omitempty,max=500"`
}

// CreateVideo handles POST /api/v1/videos: it registers the video and
// immediately enqueues its ingestion
func (h *VideoHandler) CreateVideo(c *fiber.Ctx) error {
	var req CreateVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	video := model.Video{
		TenantID:      middleware.TenantID(c),
		Title:         req.Title,
		SourceKind:    model.VideoSourceKind(req.SourceKind),
		EmbedID:       req.EmbedID,
		MuxAssetID:    req.MuxAssetID,
		MuxPlaybackID: req.MuxPlaybackID,
		StoragePath:   req.StoragePath,
		Status:        model.VideoStatusPending,
	}
	if err := video.Validate(); err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.db.Create(&video).Error; err != nil {
		return response.InternalServerError(c, "Failed to register video")
	}

	job, err := h.ingestService.RequestIngestion(c.Context(), &video, false)
	if err != nil {
		return response.InternalServerError(c, "Video registered but ingestion could not be queued: "+err.Error())
	}

	return response.Created(c, fiber.Map{
		"video": video,
		"job":   job,
	})
}

// ListVideos handles GET /api/v1/videos
func (h *VideoHandler) ListVideos(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	status := c.Query("status", "")

	query := h.db.Model(&model.Video{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count videos")
	}

	pagination := response.CalculatePagination(page, limit, total)
	offset := (pagination.CurrentPage - 1) * pagination.PerPage

	var videos []model.Video
	if err := query.Order("created_at DESC").
		Limit(pagination.PerPage).
		Offset(offset).
		Find(&videos).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch videos")
	}

	return response.Paginated(c, videos, pagination)
}

// GetVideo handles GET /api/v1/videos/:id
func (h *VideoHandler) GetVideo(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if video == nil {
		return err
	}
	return response.Success(c, video)
}

// GetVideoStatus handles GET /api/v1/videos/:id/status: the lightweight
// polling endpoint for ingestion progress
func (h *VideoHandler) GetVideoStatus(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if video == nil {
		return err
	}

	var job model.IngestionJob
	jobErr := h.db.Where("video_id = ?", video.ID).
		Order("created_at DESC").
		First(&job).Error

	body := fiber.Map{
		"video_id":       video.ID,
		"status":         video.Status,
		"failure_reason": video.FailureReason,
	}
	if video.ExtractionMethod != "" {
		body["extraction_method"] = video.ExtractionMethod
	}
	if jobErr == nil {
		body["job"] = fiber.Map{
			"id":         job.ID,
			"status":     job.Status,
			"stage":      job.Stage,
			"deliveries": job.Deliveries,
			"last_error": job.LastError,
		}
	}
	return response.Success(c, body)
}

// RequestIngestion handles POST /api/v1/videos/:id/ingest. Repeated calls are
// idempotent; the open job is returned instead of a duplicate.
func (h *VideoHandler) RequestIngestion(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if video == nil {
		return err
	}

	job, err := h.ingestService.RequestIngestion(c.Context(), video, false)
	if err != nil {
		return response.InternalServerError(c, "Failed to queue ingestion: "+err.Error())
	}
	if job == nil {
		return response.SuccessWithMessage(c, "Video is already processed", fiber.Map{
			"video_id": video.ID,
			"status":   video.Status,
		})
	}
	return response.Accepted(c, "Ingestion queued", job)
}

// Resync handles POST /api/v1/videos/:id/resync: it re-runs the whole pipeline
// and atomically replaces the video's chunks on success
func (h *VideoHandler) Resync(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if video == nil {
		return err
	}

	job, err := h.ingestService.RequestIngestion(c.Context(), video, true)
	if err != nil {
		return response.InternalServerError(c, "Failed to queue re-sync: "+err.Error())
	}
	return response.Accepted(c, "Re-sync queued", job)
}

// CancelIngestion handles POST /api/v1/videos/:id/ingest/cancel
func (h *VideoHandler) CancelIngestion(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if video == nil {
		return err
	}

	var job model.IngestionJob
	err = h.db.Where("video_id = ? AND status IN ?", video.ID,
		[]model.IngestionJobStatus{model.IngestionJobStatusPending, model.IngestionJobStatusRunning}).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "No open ingestion job for this video")
		}
		return response.InternalServerError(c, "Failed to look up ingestion job")
	}

	if err := h.ingestService.Cancel(c.Context(), job.ID); err != nil {
		return response.Conflict(c, err.Error())
	}
	return response.SuccessWithMessage(c, "Cancellation requested", fiber.Map{"job_id": job.ID})
}

// DeleteVideo handles DELETE /api/v1/videos/:id
func (h *VideoHandler) DeleteVideo(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if video == nil {
		return err
	}

	if video.Status.IsInFlight() {
		return response.Conflict(c, "Cancel the running ingestion before deleting the video")
	}

	if err := h.db.Delete(video).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete video")
	}
	return response.NoContent(c)
}

// loadVideo fetches the path video scoped to the caller's tenant. It writes
// the error response itself, so callers just return its error.
func (h *VideoHandler) loadVideo(c *fiber.Ctx) (*model.Video, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return nil, response.BadRequest(c, "Invalid video id")
	}

	var video model.Video
	err = h.db.Where("id = ? AND tenant_id = ?", id, middleware.TenantID(c)).
		First(&video).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NotFound(c, "Video not found")
		}
		return nil, response.InternalServerError(c, "Failed to fetch video")
	}
	return &video, nil
}
