package handlers

import (
	"context"
	"errors"

	"github.com/campaign-hub/backend/internal/http/dto"
	"github.com/campaign-hub/backend/internal/middleware"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/campaign-hub/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TickRunner interface {
	Tick(ctx context.Context) (*services.TickSummary, error)
}

type PostSender interface {
	Dispatch(ctx context.Context, postID uuid.UUID, opts services.DispatchOptions) (*services.DispatchResult, error)
	Requeue(ctx context.Context, postID uuid.UUID, actorID *uuid.UUID) error
}

// PostReader loads a post scoped to an organisation.
type PostReader interface {
	Post(ctx context.Context, orgID, postID uuid.UUID) (*models.CampaignPost, error)
}

type DispatchHandler struct {
	scheduler  TickRunner
	dispatcher PostSender
	posts      PostReader
	log        *zap.Logger
}

func NewDispatchHandler(scheduler TickRunner, dispatcher PostSender, posts PostReader, log *zap.Logger) *DispatchHandler {
	return &DispatchHandler{scheduler: scheduler, dispatcher: dispatcher, posts: posts, log: log}
}

// RunScheduler runs one scheduler tick for the external cron caller.
func (h *DispatchHandler) RunScheduler(c *fiber.Ctx) error {
	summary, err := h.scheduler.Tick(c.Context())
	if err != nil {
		h.log.Error("scheduler tick failed", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "scheduler tick failed")
	}
	return c.JSON(summary)
}

// SendPost dispatches a post right away, optionally to a subset of recipients.
func (h *DispatchHandler) SendPost(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid post id")
	}

	var req dto.SendPostRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid request")
		}
	}

	recipientIDs := make([]uuid.UUID, 0, len(req.RecipientIDs))
	for _, raw := range req.RecipientIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid recipient id: "+raw)
		}
		recipientIDs = append(recipientIDs, id)
	}

	orgID := middleware.GetOrganisationID(c)
	if _, err := h.posts.Post(c.Context(), orgID, postID); err != nil {
		return h.fail(c, err)
	}

	userID := middleware.GetUserID(c)
	res, err := h.dispatcher.Dispatch(c.Context(), postID, services.DispatchOptions{
		RecipientIDs: recipientIDs,
		ActorID:      &userID,
	})
	if err != nil {
		return h.fail(c, err)
	}

	resp := dto.DispatchResponse{DispatchResult: res}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}

// RequeuePost gives a failed post another attempt budget.
func (h *DispatchHandler) RequeuePost(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid post id")
	}

	orgID := middleware.GetOrganisationID(c)
	post, err := h.posts.Post(c.Context(), orgID, postID)
	if err != nil {
		return h.fail(c, err)
	}
	if post.State != models.PostStateFailed {
		return errorJSON(c, fiber.StatusConflict, "only failed posts can be requeued")
	}

	userID := middleware.GetUserID(c)
	if err := h.dispatcher.Requeue(c.Context(), postID, &userID); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *DispatchHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "post not found")
	case errors.Is(err, services.ErrAlreadySent):
		return errorJSON(c, fiber.StatusConflict, "post already sent")
	case errors.Is(err, services.ErrPostFailed):
		return errorJSON(c, fiber.StatusConflict, "post has failed, requeue it first")
	case errors.Is(err, services.ErrClaimConflict):
		return errorJSON(c, fiber.StatusConflict, "post is being dispatched")
	}
	h.log.Error("dispatch request failed", zap.Error(err))
	return errorJSON(c, fiber.StatusInternalServerError, "internal error")
}
