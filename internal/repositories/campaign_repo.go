package repositories

import (
	"context"
	"errors"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CampaignRepo struct {
	pool DB
}

func NewCampaignRepo(pool DB) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var c models.Campaign
	err := r.pool.QueryRow(ctx, `
		SELECT id, organisation_id, name, deleted_at, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.OrganisationID, &c.Name, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Recipients returns the campaign's contacts. A non-empty ids narrows the
// result to that subset; ids outside the campaign are ignored.
func (r *CampaignRepo) Recipients(ctx context.Context, campaignID uuid.UUID, ids []uuid.UUID) ([]models.Contact, error) {
	query := `
		SELECT ct.id, ct.organisation_id, ct.name, ct.email, ct.mobile, ct.whatsapp, ct.created_at
		FROM campaign_contacts cc
		JOIN contacts ct ON ct.id = cc.contact_id
		WHERE cc.campaign_id = $1
	`
	args := []any{campaignID}
	if len(ids) > 0 {
		query += " AND ct.id = ANY($2)"
		args = append(args, ids)
	}
	query += " ORDER BY ct.created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var ct models.Contact
		if err := rows.Scan(&ct.ID, &ct.OrganisationID, &ct.Name, &ct.Email, &ct.Mobile,
			&ct.WhatsApp, &ct.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, ct)
	}
	return contacts, rows.Err()
}
