package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type PostRepo struct {
	pool DB
}

func NewPostRepo(pool DB) *PostRepo {
	return &PostRepo{pool: pool}
}

const postColumns = `
	p.id, p.campaign_id, c.organisation_id, p.channel, p.subject, p.text, p.media_urls,
	p.link, p.metadata, p.scheduled_at, p.state, p.attempts, p.next_attempt_at,
	p.claimed_at, p.last_error, p.sent_at, p.created_at, p.updated_at`

func scanPost(row pgx.Row) (*models.CampaignPost, error) {
	var p models.CampaignPost
	var metadata []byte
	err := row.Scan(&p.ID, &p.CampaignID, &p.OrganisationID, &p.Channel, &p.Subject, &p.Text,
		&p.MediaURLs, &p.Link, &metadata, &p.ScheduledAt, &p.State, &p.Attempts,
		&p.NextAttemptAt, &p.ClaimedAt, &p.LastError, &p.SentAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Metadata = metadata
	return &p, nil
}

func (r *PostRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CampaignPost, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, `
		SELECT `+postColumns+`
		FROM campaign_posts p JOIN campaigns c ON c.id = p.campaign_id
		WHERE p.id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return p, err
}

// ListDue returns pending posts whose schedule and backoff have elapsed,
// skipping soft-deleted campaigns.
func (r *PostRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.CampaignPost, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM campaign_posts p JOIN campaigns c ON c.id = p.campaign_id
		WHERE p.state = 'pending'
		  AND p.scheduled_at IS NOT NULL AND p.scheduled_at <= $1
		  AND (p.next_attempt_at IS NULL OR p.next_attempt_at <= $1)
		  AND c.deleted_at IS NULL
		ORDER BY p.scheduled_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.CampaignPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// Claim atomically moves a pending post to claimed and counts the attempt.
// It returns models.ErrClaimConflict when another run owns the post or it is
// no longer pending.
func (r *PostRepo) Claim(ctx context.Context, id uuid.UUID, now time.Time) (*models.CampaignPost, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, `
		UPDATE campaign_posts p
		SET state = 'claimed', claimed_at = $2, attempts = p.attempts + 1, updated_at = now()
		FROM campaigns c
		WHERE p.id = $1 AND c.id = p.campaign_id
		  AND p.state = 'pending' AND c.deleted_at IS NULL
		RETURNING `+postColumns,
		id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrClaimConflict
	}
	return p, err
}

// MarkSent, Release and MarkFailed settle a claim. They only match the claim
// taken at claimedAt, so a run whose claim was reaped and retaken cannot
// overwrite the new owner's state; that case returns models.ErrClaimConflict.
func (r *PostRepo) MarkSent(ctx context.Context, id uuid.UUID, claimedAt, sentAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_posts
		SET state = 'sent', sent_at = $3, claimed_at = NULL, next_attempt_at = NULL,
		    last_error = NULL, updated_at = now()
		WHERE id = $1 AND state = 'claimed' AND claimed_at = $2
	`, id, claimedAt, sentAt)
	return settled(tag, err, "mark sent", id)
}

// Release returns a claimed post to pending for another attempt at nextAttemptAt.
func (r *PostRepo) Release(ctx context.Context, id uuid.UUID, claimedAt, nextAttemptAt time.Time, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_posts
		SET state = 'pending', claimed_at = NULL, next_attempt_at = $3, last_error = $4, updated_at = now()
		WHERE id = $1 AND state = 'claimed' AND claimed_at = $2
	`, id, claimedAt, nextAttemptAt, lastError)
	return settled(tag, err, "release", id)
}

func (r *PostRepo) MarkFailed(ctx context.Context, id uuid.UUID, claimedAt time.Time, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_posts
		SET state = 'failed', claimed_at = NULL, next_attempt_at = NULL, last_error = $3, updated_at = now()
		WHERE id = $1 AND state = 'claimed' AND claimed_at = $2
	`, id, claimedAt, lastError)
	return settled(tag, err, "mark failed", id)
}

func settled(tag pgconn.CommandTag, err error, op string, id uuid.UUID) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s post %s: %w", op, id, models.ErrClaimConflict)
	}
	return nil
}

// ReleaseStaleClaims reverts claims taken before cutoff to pending.
func (r *PostRepo) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_posts
		SET state = 'pending', claimed_at = NULL, updated_at = now()
		WHERE state = 'claimed' AND claimed_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Requeue moves a failed post back to pending with a fresh attempt budget.
func (r *PostRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_posts
		SET state = 'pending', attempts = 0, next_attempt_at = NULL, last_error = NULL, updated_at = now()
		WHERE id = $1 AND state = 'failed'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

type PostFilter struct {
	OrganisationID *uuid.UUID
	CampaignID     *uuid.UUID
	State          *models.PostState
	Limit          int
	Offset         int
}

func (r *PostRepo) List(ctx context.Context, f PostFilter) ([]models.CampaignPost, error) {
	query := `
		SELECT ` + postColumns + `
		FROM campaign_posts p JOIN campaigns c ON c.id = p.campaign_id
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.OrganisationID != nil {
		where = append(where, fmt.Sprintf("c.organisation_id = $%d", argIdx))
		args = append(args, *f.OrganisationID)
		argIdx++
	}
	if f.CampaignID != nil {
		where = append(where, fmt.Sprintf("p.campaign_id = $%d", argIdx))
		args = append(args, *f.CampaignID)
		argIdx++
	}
	if f.State != nil {
		where = append(where, fmt.Sprintf("p.state = $%d", argIdx))
		args = append(args, string(*f.State))
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.CampaignPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}
