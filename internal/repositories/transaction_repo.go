package repositories

import (
	"context"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
)

type TransactionRepo struct {
	pool DB
}

func NewTransactionRepo(pool DB) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create writes the publish record of a post. A post has at most one; a
// second write for the same post is ignored.
func (r *TransactionRepo) Create(ctx context.Context, t *models.PostTransaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO post_transactions (post_id, campaign_id, organisation_id, channel, account_id, external_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (post_id) DO NOTHING
	`, t.PostID, t.CampaignID, t.OrganisationID, string(t.Channel), t.AccountID, t.ExternalID)
	return err
}

func (r *TransactionRepo) ListByCampaign(ctx context.Context, orgID, campaignID uuid.UUID) ([]models.PostTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, post_id, campaign_id, organisation_id, channel, account_id, external_id, created_at
		FROM post_transactions
		WHERE organisation_id = $1 AND campaign_id = $2
		ORDER BY created_at DESC
	`, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.PostTransaction
	for rows.Next() {
		var t models.PostTransaction
		if err := rows.Scan(&t.ID, &t.PostID, &t.CampaignID, &t.OrganisationID, &t.Channel,
			&t.AccountID, &t.ExternalID, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
