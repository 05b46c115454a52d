package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sahilchouksey/lecture-chat-api/utils/response"
)

// Locals keys set by TenantMiddleware
const (
	localTenantID    = "tenant_id"
	localRequesterID = "requester_id"
)

// TenantMiddleware extracts the tenant and requester identity injected by the
// upstream gateway. Authentication happens before traffic reaches this
// service; requests without the identity headers are rejected outright.
type TenantMiddleware struct{}

// NewTenantMiddleware creates a new tenant middleware
func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

// Required is middleware that requires tenant and requester identity headers
func (m *TenantMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := parseIDHeader(c, "X-Tenant-ID")
		if err != nil {
			return response.Unauthorized(c, "Missing or invalid tenant identity")
		}
		requesterID, err := parseIDHeader(c, "X-Requester-ID")
		if err != nil {
			return response.Unauthorized(c, "Missing or invalid requester identity")
		}

		c.Locals(localTenantID, tenantID)
		c.Locals(localRequesterID, requesterID)
		return c.Next()
	}
}

func parseIDHeader(c *fiber.Ctx, header string) (uint, error) {
	raw := c.Get(header)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.ErrUnauthorized
	}
	return uint(id), nil
}

// TenantID returns the tenant id set by Required
func TenantID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(localTenantID).(uint); ok {
		return id
	}
	return 0
}

// RequesterID returns the requester id set by Required
func RequesterID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(localRequesterID).(uint); ok {
		return id
	}
	return 0
}
