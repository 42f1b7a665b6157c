package services

import (
	"context"
	"fmt"
	"time"

	"github.com/campaign-hub/backend/internal/events"
	"github.com/campaign-hub/backend/internal/metrics"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// OutcomeRecorder writes exactly one notification per dispatch attempt and
// fans the outcome out to the audit log, the event stream and metrics.
type OutcomeRecorder struct {
	notifications NotificationStore
	audit         AuditStore
	publisher     events.Publisher
	log           *zap.Logger
}

func NewOutcomeRecorder(notifications NotificationStore, audit AuditStore, publisher events.Publisher, log *zap.Logger) *OutcomeRecorder {
	return &OutcomeRecorder{notifications: notifications, audit: audit, publisher: publisher, log: log}
}

// Record persists the outcome of res. It runs on a detached context so an
// expired tick still leaves a notification behind.
func (r *OutcomeRecorder) Record(ctx context.Context, res *DispatchResult) *models.Notification {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	n := buildNotification(res)
	if err := r.notifications.Create(ctx, n); err != nil {
		r.log.Error("failed to write notification",
			zap.String("post_id", res.PostID.String()),
			zap.Error(err),
		)
	}

	actorType := models.ActorScheduler
	if res.ActorID != nil {
		actorType = models.ActorUser
	}
	postID, orgID := res.PostID, res.OrganisationID
	_ = r.audit.Log(ctx, models.AuditLog{
		OrganisationID: &orgID,
		ActorUserID:    res.ActorID,
		ActorType:      actorType,
		Action:         auditAction(res),
		EntityType:     models.EntityCampaignPost,
		EntityID:       &postID,
		Meta: map[string]any{
			"channel":  res.Channel,
			"sent":     res.Sent,
			"failed":   res.Failed,
			"attempts": res.Attempts,
			"state":    res.State,
			"reason":   FailureReason(res.Err),
		},
	})

	eventType := events.EventPostDispatched
	if res.Err != nil {
		eventType = events.EventPostDispatchFailed
	}
	_ = r.publisher.Publish(ctx, events.StreamDispatch, events.Event{
		Type: eventType,
		Payload: map[string]any{
			"organisation_id": res.OrganisationID.String(),
			"campaign_id":     res.CampaignID.String(),
			"post_id":         res.PostID.String(),
			"notification_id": n.ID.String(),
			"channel":         string(res.Channel),
			"status":          n.Status,
			"state":           string(res.State),
			"sent":            res.Sent,
			"failed":          res.Failed,
			"terminal":        res.Terminal,
			"message":         n.Message,
		},
	})

	metrics.PostsDispatchedTotal.WithLabelValues(string(res.Channel), resultLabel(res)).Inc()
	return n
}

func buildNotification(res *DispatchResult) *models.Notification {
	postID := res.PostID
	n := &models.Notification{
		ID:             uuid.New(),
		OrganisationID: res.OrganisationID,
		CampaignID:     res.CampaignID,
		PostID:         &postID,
		Channel:        res.Channel,
		SentCount:      res.Sent,
		FailedCount:    res.Failed,
		Errors:         append([]string{}, res.Errors...),
		Terminal:       res.Terminal,
	}

	switch {
	case res.Err == nil && res.Failed == 0:
		n.Status = models.NotificationStatusSuccess
		n.Title = fmt.Sprintf("%s post sent", res.Channel)
	case res.Err == nil && res.Sent > 0:
		n.Status = models.NotificationStatusPartial
		n.Title = fmt.Sprintf("%s post partially sent", res.Channel)
	default:
		n.Status = models.NotificationStatusFailed
		n.Title = fmt.Sprintf("%s post failed", res.Channel)
	}

	n.Message = fmt.Sprintf("%d sent, %d failed", res.Sent, res.Failed)
	if res.Err != nil {
		n.Message = fmt.Sprintf("%s: %s: %v", n.Message, FailureReason(res.Err), res.Err)
		switch {
		case res.Terminal:
			n.Message += fmt.Sprintf(" (gave up after %d attempts)", res.Attempts)
		case res.NextAttemptAt != nil:
			n.Message += fmt.Sprintf(" (retry at %s)", res.NextAttemptAt.UTC().Format(time.RFC3339))
		}
	}
	return n
}

func auditAction(res *DispatchResult) string {
	switch res.State {
	case models.PostStateSent:
		return models.AuditPostSent
	case models.PostStateFailed:
		return models.AuditPostFailed
	}
	return models.AuditPostRetryScheduled
}

func resultLabel(res *DispatchResult) string {
	switch {
	case res.State == models.PostStateFailed:
		return "failed"
	case res.Err != nil:
		return "retry"
	case res.Failed > 0:
		return "partial"
	}
	return "sent"
}
