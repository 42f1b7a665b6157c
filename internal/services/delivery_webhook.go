package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/campaign-hub/backend/internal/metrics"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusReport is one delivery status callback from the SMS/WhatsApp provider.
type StatusReport struct {
	ProviderMessageID string
	Status            string
	OrganisationID    uuid.UUID
	Channel           models.Channel
}

type WebhookOutcome string

// Webhook outcomes
const (
	WebhookConfirmed WebhookOutcome = "confirmed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookReleased  WebhookOutcome = "released"
	WebhookIgnored   WebhookOutcome = "ignored"
)

var (
	deliverySuccessStatuses = map[string]bool{"sent": true, "delivered": true, "read": true}
	deliveryFailureStatuses = map[string]bool{"failed": true, "undelivered": true, "canceled": true}
)

// DeliveryWebhookService settles quota reservations from provider status reports.
type DeliveryWebhookService struct {
	quota *QuotaGuard
	log   *zap.Logger
}

func NewDeliveryWebhookService(quota *QuotaGuard, log *zap.Logger) *DeliveryWebhookService {
	return &DeliveryWebhookService{quota: quota, log: log}
}

// HandleStatus counts a success status once per provider message id and
// releases the reservation of a failed delivery. Intermediate statuses are
// ignored.
func (s *DeliveryWebhookService) HandleStatus(ctx context.Context, r StatusReport) (WebhookOutcome, error) {
	if r.ProviderMessageID == "" {
		return "", fmt.Errorf("%w: missing message id", ErrInvalidReport)
	}
	if r.OrganisationID == uuid.Nil {
		return "", fmt.Errorf("%w: missing organisation id", ErrInvalidReport)
	}
	if !r.Channel.IsMetered() {
		return "", fmt.Errorf("%w: channel %q is not metered", ErrInvalidReport, r.Channel)
	}
	status := strings.ToLower(strings.TrimSpace(r.Status))

	var outcome WebhookOutcome
	switch {
	case deliverySuccessStatuses[status]:
		counted, err := s.quota.ConfirmDelivery(ctx, r.ProviderMessageID, r.OrganisationID, r.Channel, status)
		if err != nil {
			return "", fmt.Errorf("confirm delivery: %w", err)
		}
		outcome = WebhookDuplicate
		if counted {
			outcome = WebhookConfirmed
		}
	case deliveryFailureStatuses[status]:
		released, err := s.quota.ReleaseDelivery(ctx, r.ProviderMessageID, status)
		if err != nil {
			return "", fmt.Errorf("release delivery: %w", err)
		}
		outcome = WebhookIgnored
		if released {
			outcome = WebhookReleased
		}
	default:
		outcome = WebhookIgnored
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(r.Channel), status, string(outcome)).Inc()
	s.log.Debug("delivery status handled",
		zap.String("provider_message_id", r.ProviderMessageID),
		zap.String("organisation_id", r.OrganisationID.String()),
		zap.String("status", status),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}
