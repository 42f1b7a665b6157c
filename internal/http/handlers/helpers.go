package handlers

import (
	"strconv"

	"github.com/campaign-hub/backend/internal/http/dto"
	"github.com/campaign-hub/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(middleware.CtxRequestID).(string)
	return id
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: requestID(c)})
}

// pagination reads limit/offset query params, capping limit at 100.
func pagination(c *fiber.Ctx) (limit, offset int) {
	limit = 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
