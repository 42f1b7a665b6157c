package handlers

import (
	"context"
	"errors"

	"github.com/campaign-hub/backend/internal/http/dto"
	"github.com/campaign-hub/backend/internal/middleware"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/campaign-hub/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DashboardReader interface {
	PostReader
	Usage(ctx context.Context, orgID uuid.UUID) ([]models.UsageSummary, error)
	Notifications(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.Notification, error)
	Posts(ctx context.Context, orgID uuid.UUID, f repositories.PostFilter) ([]models.CampaignPost, error)
	PostHistory(ctx context.Context, orgID, postID uuid.UUID) ([]models.AuditLog, error)
	Transactions(ctx context.Context, orgID, campaignID uuid.UUID) ([]models.PostTransaction, error)
}

type DashboardHandler struct {
	dashboard DashboardReader
	log       *zap.Logger
}

func NewDashboardHandler(dashboard DashboardReader, log *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, log: log}
}

func (h *DashboardHandler) GetUsage(c *fiber.Ctx) error {
	usage, err := h.dashboard.Usage(c.Context(), middleware.GetOrganisationID(c))
	if err != nil {
		return h.fail(c, err, "usage")
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: usage})
}

func (h *DashboardHandler) ListNotifications(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	items, err := h.dashboard.Notifications(c.Context(), middleware.GetOrganisationID(c), limit, offset)
	if err != nil {
		return h.fail(c, err, "notifications")
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: items})
}

func (h *DashboardHandler) ListPosts(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	filter := repositories.PostFilter{Limit: limit, Offset: offset}

	if v := c.Query("state"); v != "" {
		state := models.PostState(v)
		switch state {
		case models.PostStatePending, models.PostStateClaimed, models.PostStateSent, models.PostStateFailed:
		default:
			return errorJSON(c, fiber.StatusBadRequest, "invalid state")
		}
		filter.State = &state
	}
	if v := c.Query("campaign_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid campaign_id")
		}
		filter.CampaignID = &id
	}

	posts, err := h.dashboard.Posts(c.Context(), middleware.GetOrganisationID(c), filter)
	if err != nil {
		return h.fail(c, err, "posts")
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: posts})
}

func (h *DashboardHandler) GetPost(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid post id")
	}
	post, err := h.dashboard.Post(c.Context(), middleware.GetOrganisationID(c), postID)
	if err != nil {
		return h.fail(c, err, "post")
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: post})
}

func (h *DashboardHandler) GetPostHistory(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid post id")
	}
	history, err := h.dashboard.PostHistory(c.Context(), middleware.GetOrganisationID(c), postID)
	if err != nil {
		return h.fail(c, err, "post")
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: history})
}

func (h *DashboardHandler) ListTransactions(c *fiber.Ctx) error {
	campaignID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid campaign id")
	}
	items, err := h.dashboard.Transactions(c.Context(), middleware.GetOrganisationID(c), campaignID)
	if err != nil {
		return h.fail(c, err, "transactions")
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: items})
}

func (h *DashboardHandler) fail(c *fiber.Ctx, err error, what string) error {
	if errors.Is(err, models.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, what+" not found")
	}
	h.log.Error("dashboard query failed", zap.String("resource", what), zap.Error(err))
	return errorJSON(c, fiber.StatusInternalServerError, "internal error")
}
