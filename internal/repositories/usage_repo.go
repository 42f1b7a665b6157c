package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UsageRepo owns the metering ledger: per-period usage counters and the
// delivery receipts that feed them.
type UsageRepo struct {
	pool DB
}

func NewUsageRepo(pool DB) *UsageRepo {
	return &UsageRepo{pool: pool}
}

func (r *UsageRepo) PlanLimits(ctx context.Context, orgID uuid.UUID) (*models.PlanLimits, error) {
	var l models.PlanLimits
	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.name, p.sms_limit, p.whatsapp_limit
		FROM subscriptions s JOIN plans p ON p.id = s.plan_id
		WHERE s.organisation_id = $1 AND s.status IN ('ACTIVE', 'CANCELING')
		ORDER BY s.created_at DESC
		LIMIT 1
	`, orgID).Scan(&l.PlanID, &l.PlanName, &l.SMSLimit, &l.WhatsAppLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetUsage returns the counter for the key, or a zero counter when the period
// has no row yet.
func (r *UsageRepo) GetUsage(ctx context.Context, orgID uuid.UUID, channel models.Channel, periodStart time.Time) (*models.MessageUsage, error) {
	u := models.MessageUsage{OrganisationID: orgID, Channel: channel, PeriodStart: periodStart}
	err := r.pool.QueryRow(ctx, `
		SELECT count, reserved, updated_at FROM message_usage
		WHERE organisation_id = $1 AND channel = $2 AND period_start = $3
	`, orgID, string(channel), periodStart).Scan(&u.Count, &u.Reserved, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &u, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementUsage adds one to the counter in a single upsert.
func (r *UsageRepo) IncrementUsage(ctx context.Context, orgID uuid.UUID, channel models.Channel, periodStart time.Time) error {
	_, err := r.pool.Exec(ctx, incrementUsageSQL, orgID, string(channel), periodStart)
	return err
}

const incrementUsageSQL = `
	INSERT INTO message_usage (organisation_id, channel, period_start, count)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (organisation_id, channel, period_start)
	DO UPDATE SET count = message_usage.count + 1, updated_at = now()
`

const decrementReservedSQL = `
	UPDATE message_usage SET reserved = GREATEST(reserved - 1, 0), updated_at = now()
	WHERE organisation_id = $1 AND channel = $2 AND period_start = $3
`

// Reserve holds one unit of the period's quota. The counter row is locked so
// concurrent reservations see each other. limit <= 0 means unlimited.
func (r *UsageRepo) Reserve(ctx context.Context, orgID uuid.UUID, channel models.Channel, periodStart time.Time, limit int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO message_usage (organisation_id, channel, period_start)
		VALUES ($1, $2, $3)
		ON CONFLICT (organisation_id, channel, period_start) DO NOTHING
	`, orgID, string(channel), periodStart); err != nil {
		return false, err
	}

	var count, reserved int
	if err := tx.QueryRow(ctx, `
		SELECT count, reserved FROM message_usage
		WHERE organisation_id = $1 AND channel = $2 AND period_start = $3
		FOR UPDATE
	`, orgID, string(channel), periodStart).Scan(&count, &reserved); err != nil {
		return false, err
	}

	if limit > 0 && count+reserved >= limit {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE message_usage SET reserved = reserved + 1, updated_at = now()
		WHERE organisation_id = $1 AND channel = $2 AND period_start = $3
	`, orgID, string(channel), periodStart); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

func (r *UsageRepo) CancelReservation(ctx context.Context, orgID uuid.UUID, channel models.Channel, periodStart time.Time) error {
	_, err := r.pool.Exec(ctx, decrementReservedSQL, orgID, string(channel), periodStart)
	return err
}

// RecordSubmission stores the receipt of an accepted send. When the provider
// already reported on this id, the receipt exists and the reservation is
// returned instead.
func (r *UsageRepo) RecordSubmission(ctx context.Context, rc *models.DeliveryReceipt) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO delivery_receipts (provider_message_id, organisation_id, channel, post_id, contact_id, period_start, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'reserved')
		ON CONFLICT (provider_message_id) DO NOTHING
	`, rc.ProviderMessageID, rc.OrganisationID, string(rc.Channel), rc.PostID, rc.ContactID, rc.PeriodStart)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, decrementReservedSQL, rc.OrganisationID, string(rc.Channel), rc.PeriodStart); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ConfirmDelivery counts a confirmed delivery exactly once per provider
// message id. It reports whether usage was incremented. A receipt whose
// reservation already expired is still counted; only its hold is gone.
func (r *UsageRepo) ConfirmDelivery(ctx context.Context, providerMessageID string, orgID uuid.UUID, channel models.Channel, providerStatus string, now time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		rcOrg     uuid.UUID
		rcChannel string
		rcPeriod  time.Time
		rcStatus  string
	)
	err = tx.QueryRow(ctx, `
		SELECT organisation_id, channel, period_start, status
		FROM delivery_receipts WHERE provider_message_id = $1
		FOR UPDATE
	`, providerMessageID).Scan(&rcOrg, &rcChannel, &rcPeriod, &rcStatus)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Reported before the submission was recorded. A concurrent insert of
		// the same id wins and this report counts as a duplicate.
		tag, err := tx.Exec(ctx, `
			INSERT INTO delivery_receipts (provider_message_id, organisation_id, channel, period_start, status, last_provider_status)
			VALUES ($1, $2, $3, $4, 'confirmed', $5)
			ON CONFLICT (provider_message_id) DO NOTHING
		`, providerMessageID, orgID, string(channel), models.PeriodStart(now), providerStatus)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 0 {
			return false, tx.Commit(ctx)
		}
	case err != nil:
		return false, err
	case rcStatus == models.ReceiptStatusReserved || rcStatus == models.ReceiptStatusExpired:
		orgID, channel = rcOrg, models.Channel(rcChannel)
		if _, err := tx.Exec(ctx, `
			UPDATE delivery_receipts
			SET status = 'confirmed', last_provider_status = $2, updated_at = now()
			WHERE provider_message_id = $1
		`, providerMessageID, providerStatus); err != nil {
			return false, err
		}
		if rcStatus == models.ReceiptStatusReserved {
			if _, err := tx.Exec(ctx, decrementReservedSQL, rcOrg, rcChannel, rcPeriod); err != nil {
				return false, err
			}
		}
	default:
		if _, err := tx.Exec(ctx, `
			UPDATE delivery_receipts SET last_provider_status = $2, updated_at = now()
			WHERE provider_message_id = $1
		`, providerMessageID, providerStatus); err != nil {
			return false, err
		}
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, incrementUsageSQL, orgID, string(channel), models.PeriodStart(now)); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// ReleaseDelivery returns the reservation of a send the provider reported as
// undeliverable. It reports whether a reservation was released.
func (r *UsageRepo) ReleaseDelivery(ctx context.Context, providerMessageID string, providerStatus string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		orgID   uuid.UUID
		channel string
		period  time.Time
	)
	err = tx.QueryRow(ctx, `
		UPDATE delivery_receipts
		SET status = 'released', last_provider_status = $2, updated_at = now()
		WHERE provider_message_id = $1 AND status = 'reserved'
		RETURNING organisation_id, channel, period_start
	`, providerMessageID, providerStatus).Scan(&orgID, &channel, &period)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, decrementReservedSQL, orgID, channel, period); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// ExpireReservations gives back reservations whose delivery status never
// arrived before cutoff.
func (r *UsageRepo) ExpireReservations(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		WITH expired AS (
			UPDATE delivery_receipts SET status = 'expired', updated_at = now()
			WHERE status = 'reserved' AND created_at < $1
			RETURNING organisation_id, channel, period_start
		), grouped AS (
			SELECT organisation_id, channel, period_start, count(*) AS n
			FROM expired GROUP BY organisation_id, channel, period_start
		), adjusted AS (
			UPDATE message_usage u
			SET reserved = GREATEST(u.reserved - g.n, 0), updated_at = now()
			FROM grouped g
			WHERE u.organisation_id = g.organisation_id AND u.channel = g.channel
			  AND u.period_start = g.period_start
			RETURNING 1
		)
		SELECT COALESCE(SUM(n), 0)::bigint FROM grouped
	`, cutoff).Scan(&n)
	return n, err
}

func (r *UsageRepo) ListUsage(ctx context.Context, orgID uuid.UUID, periodStart time.Time) ([]models.MessageUsage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT organisation_id, channel, period_start, count, reserved, updated_at
		FROM message_usage WHERE organisation_id = $1 AND period_start = $2
		ORDER BY channel
	`, orgID, periodStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []models.MessageUsage
	for rows.Next() {
		var u models.MessageUsage
		if err := rows.Scan(&u.OrganisationID, &u.Channel, &u.PeriodStart, &u.Count, &u.Reserved, &u.UpdatedAt); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
