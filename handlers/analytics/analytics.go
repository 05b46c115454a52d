package analytics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sahilchouksey/lecture-chat-api/services"
	"github.com/sahilchouksey/lecture-chat-api/utils/middleware"
	"github.com/sahilchouksey/lecture-chat-api/utils/response"
)

// AnalyticsHandler handles usage analytics requests
type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// GetTenantStats handles GET /api/v1/analytics
func (h *AnalyticsHandler) GetTenantStats(c *fiber.Ctx) error {
	stats, err := h.analyticsService.GetTenantStats(c.Context(), middleware.TenantID(c))
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch tenant analytics")
	}
	return response.Success(c, stats)
}

// GetSessionStats handles GET /api/v1/analytics/sessions/:id
func (h *AnalyticsHandler) GetSessionStats(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid session id")
	}

	stats, err := h.analyticsService.GetSessionStats(c.Context(), middleware.TenantID(c), uint(sessionID))
	if err != nil {
		return response.NotFound(c, "Session not found")
	}
	return response.Success(c, stats)
}

// GetMostReferencedVideos handles GET /api/v1/analytics/videos/top
func (h *AnalyticsHandler) GetMostReferencedVideos(c *fiber.Ctx) error {
	days, limit := windowParams(c)
	since := time.Now().AddDate(0, 0, -days)

	ranked, err := h.analyticsService.GetMostReferencedVideos(c.Context(), middleware.TenantID(c), since, limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to rank videos")
	}
	return response.Success(c, ranked)
}

// GetTopTopics handles GET /api/v1/analytics/topics
func (h *AnalyticsHandler) GetTopTopics(c *fiber.Ctx) error {
	days, limit := windowParams(c)
	since := time.Now().AddDate(0, 0, -days)

	topics, err := h.analyticsService.GetTopTopics(c.Context(), middleware.TenantID(c), since, limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to extract topics")
	}
	return response.Success(c, topics)
}

// GetPeakHours handles GET /api/v1/analytics/peak-hours
func (h *AnalyticsHandler) GetPeakHours(c *fiber.Ctx) error {
	days, _ := windowParams(c)
	since := time.Now().AddDate(0, 0, -days)

	histogram, err := h.analyticsService.GetPeakUsageHours(c.Context(), middleware.TenantID(c), since)
	if err != nil {
		return response.InternalServerError(c, "Failed to build usage histogram")
	}
	return response.Success(c, histogram)
}

// GetSpend handles GET /api/v1/analytics/spend
func (h *AnalyticsHandler) GetSpend(c *fiber.Ctx) error {
	days, _ := windowParams(c)

	series, err := h.analyticsService.GetSpendTimeSeries(c.Context(), middleware.TenantID(c), days)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch spend series")
	}
	return response.Success(c, series)
}

func windowParams(c *fiber.Ctx) (days, limit int) {
	days, _ = strconv.Atoi(c.Query("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}
	limit, _ = strconv.Atoi(c.Query("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return days, limit
}
