package repositories

import (
	"context"
	"errors"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CredentialRepo struct {
	pool DB
}

func NewCredentialRepo(pool DB) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

func (r *CredentialRepo) Get(ctx context.Context, orgID uuid.UUID, channel models.Channel) (*models.ChannelCredential, error) {
	var c models.ChannelCredential
	err := r.pool.QueryRow(ctx, `
		SELECT organisation_id, channel, account_id, access_token, expires_at, updated_at
		FROM channel_credentials WHERE organisation_id = $1 AND channel = $2
	`, orgID, string(channel)).Scan(&c.OrganisationID, &c.Channel, &c.AccountID, &c.AccessToken,
		&c.ExpiresAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
