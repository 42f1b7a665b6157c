package handlers

import (
	"context"
	"errors"

	"github.com/campaign-hub/backend/internal/http/dto"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/campaign-hub/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type StatusHandler interface {
	HandleStatus(ctx context.Context, r services.StatusReport) (services.WebhookOutcome, error)
}

// SignatureValidator checks a provider request signature over the full URL
// and form parameters.
type SignatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

type WebhookHandler struct {
	webhooks  StatusHandler
	validator SignatureValidator
	baseURL   string
	log       *zap.Logger
}

// NewWebhookHandler builds the delivery status endpoint. A nil validator
// accepts unsigned callbacks.
func NewWebhookHandler(webhooks StatusHandler, validator SignatureValidator, baseURL string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, validator: validator, baseURL: baseURL, log: log}
}

func (h *WebhookHandler) DeliveryStatus(c *fiber.Ctx) error {
	if h.validator != nil {
		params := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			params[string(k)] = string(v)
		})
		if !h.validator.Validate(h.baseURL+c.OriginalURL(), params, c.Get("X-Twilio-Signature")) {
			h.log.Warn("delivery status signature mismatch", zap.String("ip", c.IP()))
			return errorJSON(c, fiber.StatusForbidden, "invalid signature")
		}
	}

	orgID, err := uuid.Parse(c.Query("organisation_id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid organisation_id")
	}

	channel, ok := models.ParseChannel(c.Query("channel"))
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "invalid channel")
	}

	report := services.StatusReport{
		ProviderMessageID: firstNonEmpty(c.FormValue("MessageSid"), c.FormValue("SmsSid")),
		Status:            firstNonEmpty(c.FormValue("MessageStatus"), c.FormValue("SmsStatus")),
		OrganisationID:    orgID,
		Channel:           channel,
	}

	outcome, err := h.webhooks.HandleStatus(c.Context(), report)
	if errors.Is(err, services.ErrInvalidReport) {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		h.log.Error("delivery status failed",
			zap.String("message_id", report.ProviderMessageID),
			zap.String("status", report.Status),
			zap.Error(err),
		)
		return errorJSON(c, fiber.StatusInternalServerError, "internal error")
	}

	return c.JSON(dto.WebhookResponse{Outcome: outcome})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
