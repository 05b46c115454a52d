package chat

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services"
	"github.com/sahilchouksey/lecture-chat-api/utils/middleware"
	"github.com/sahilchouksey/lecture-chat-api/utils/response"
	"github.com/sahilchouksey/lecture-chat-api/utils/validation"
)

// ChatHandler handles chat-related requests
type ChatHandler struct {
	db            *gorm.DB
	validator     *validation.Validator
	chatService   *services.ChatService
	exportService *services.ExportService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(db *gorm.DB, chatService *services.ChatService, exportService *services.ExportService) *ChatHandler {
	return &ChatHandler{
		db:            db,
		validator:     validation.NewValidator(),
		chatService:   chatService,
		exportService: exportService,
	}
}

// SendMessageRequest represents the request to ask a question
type SendMessageRequest struct {
	Question  string `json:"question" validate:"required,min=1,max=10000"`
	SessionID *uint  `json:"session_id" validate:"omitempty,min=1"`
	VideoID   *uint  `json:"video_id" validate:"omitempty,min=1"`
	Tier      string `json:"tier" validate:"omitempty,oneof=standard advanced"`
}

// SendMessage handles POST /api/v1/chat
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.chatService.Chat(c.Context(), services.ChatRequest{
		TenantID:    middleware.TenantID(c),
		RequesterID: middleware.RequesterID(c),
		SessionID:   req.SessionID,
		VideoID:     req.VideoID,
		Question:    req.Question,
		Tier:        model.ModelTier(req.Tier),
	})
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		if errors.Is(err, services.ErrSessionArchived) {
			return response.Conflict(c, "Session is archived")
		}
		// Provider and infrastructure errors never reach the learner
		log.Printf("Chat turn failed for tenant %d: %v", middleware.TenantID(c), err)
		return response.InternalServerError(c, "Something went wrong while answering your question. Please try again.")
	}

	return response.Success(c, result)
}

// ListSessions handles GET /api/v1/chat/sessions
func (h *ChatHandler) ListSessions(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	requesterID := middleware.RequesterID(c)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	query := h.db.Model(&model.ChatSession{}).
		Where("tenant_id = ? AND requester_id = ?", tenantID, requesterID)
	if c.Query("archived") == "" {
		query = query.Where("archived = false")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count sessions")
	}

	pagination := response.CalculatePagination(page, limit, total)
	offset := (pagination.CurrentPage - 1) * pagination.PerPage

	var sessions []model.ChatSession
	if err := query.Order("last_message_at DESC NULLS LAST, created_at DESC").
		Limit(pagination.PerPage).
		Offset(offset).
		Find(&sessions).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch sessions")
	}

	return response.Paginated(c, sessions, pagination)
}

// GetSessionHistory handles GET /api/v1/chat/sessions/:id
func (h *ChatHandler) GetSessionHistory(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid session id")
	}

	session, messages, err := h.chatService.History(c.Context(),
		middleware.TenantID(c), middleware.RequesterID(c), uint(sessionID))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.InternalServerError(c, "Failed to fetch session history")
	}

	return response.Success(c, fiber.Map{
		"session":  session,
		"messages": messages,
	})
}

// ArchiveSession handles POST /api/v1/chat/sessions/:id/archive
func (h *ChatHandler) ArchiveSession(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid session id")
	}

	err = h.chatService.ArchiveSession(c.Context(),
		middleware.TenantID(c), middleware.RequesterID(c), uint(sessionID))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.InternalServerError(c, "Failed to archive session")
	}
	return response.NoContent(c)
}

// ExportSession handles GET /api/v1/chat/sessions/:id/export?format=json|markdown
func (h *ChatHandler) ExportSession(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid session id")
	}

	format := services.ExportFormat(c.Query("format", "json"))
	data, contentType, err := h.exportService.ExportSession(c.Context(),
		middleware.TenantID(c), middleware.RequesterID(c), uint(sessionID), format)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.BadRequest(c, err.Error())
	}

	ext := "json"
	if format == services.ExportFormatMarkdown {
		ext = "md"
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="session-%d.%s"`, sessionID, ext))
	return c.Send(data)
}
