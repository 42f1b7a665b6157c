package repositories

import (
	"context"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
)

type AuditRepo struct {
	pool DB
}

func NewAuditRepo(pool DB) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (organisation_id, actor_user_id, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.OrganisationID, entry.ActorUserID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, entry.Meta)
	return err
}

// PostHistory returns the audit trail of one of the organisation's posts,
// newest first.
func (r *AuditRepo) PostHistory(ctx context.Context, orgID, postID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, organisation_id, actor_user_id, actor_type, action, entity_type, entity_id, meta, created_at
		FROM audit_log
		WHERE organisation_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC
		LIMIT $4
	`, orgID, models.EntityCampaignPost, postID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]models.AuditLog, 0)
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.OrganisationID, &l.ActorUserID, &l.ActorType, &l.Action,
			&l.EntityType, &l.EntityID, &l.Meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
