package repositories

import (
	"context"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
)

type NotificationRepo struct {
	pool DB
}

func NewNotificationRepo(pool DB) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	errs := n.Errors
	if errs == nil {
		errs = []string{}
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (organisation_id, campaign_id, post_id, channel, title, message,
		                           status, sent_count, failed_count, errors, terminal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`, n.OrganisationID, n.CampaignID, n.PostID, string(n.Channel), n.Title, n.Message,
		n.Status, n.SentCount, n.FailedCount, errs, n.Terminal,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *NotificationRepo) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, organisation_id, campaign_id, post_id, channel, title, message, status,
		       sent_count, failed_count, errors, terminal, created_at
		FROM notifications WHERE organisation_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.OrganisationID, &n.CampaignID, &n.PostID, &n.Channel, &n.Title,
			&n.Message, &n.Status, &n.SentCount, &n.FailedCount, &n.Errors, &n.Terminal, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
