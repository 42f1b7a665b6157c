package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/metrics"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// UsageStore persists plan caps, usage counters and delivery receipts.
type UsageStore interface {
	PlanLimits(ctx context.Context, orgID uuid.UUID) (*models.PlanLimits, error)
	GetUsage(ctx context.Context, orgID uuid.UUID, channel models.Channel, periodStart time.Time) (*models.MessageUsage, error)
	IncrementUsage(ctx context.Context, orgID uuid.UUID, channel models.Channel, periodStart time.Time) error
	Reserve(ctx context.Context, orgID uuid.UUID, channel models.Channel, periodStart time.Time, limit int) (bool, error)
	CancelReservation(ctx context.Context, orgID uuid.UUID, channel models.Channel, periodStart time.Time) error
	RecordSubmission(ctx context.Context, rc *models.DeliveryReceipt) error
	ConfirmDelivery(ctx context.Context, providerMessageID string, orgID uuid.UUID, channel models.Channel, providerStatus string, now time.Time) (bool, error)
	ReleaseDelivery(ctx context.Context, providerMessageID string, providerStatus string) (bool, error)
	ExpireReservations(ctx context.Context, cutoff time.Time) (int64, error)
	ListUsage(ctx context.Context, orgID uuid.UUID, periodStart time.Time) ([]models.MessageUsage, error)
}

// QuotaGuard meters SMS and WhatsApp consumption against the organisation's
// plan. A plan limit of 0 means unlimited.
type QuotaGuard struct {
	store          UsageStore
	rdb            *redis.Client
	enforce        bool
	cacheTTL       time.Duration
	reservationTTL time.Duration
	now            func() time.Time
	log            *zap.Logger
}

func NewQuotaGuard(store UsageStore, rdb *redis.Client, cfg *config.Config, log *zap.Logger) *QuotaGuard {
	return &QuotaGuard{
		store:          store,
		rdb:            rdb,
		enforce:        cfg.QuotaEnforce,
		cacheTTL:       cfg.QuotaPlanCacheTTL,
		reservationTTL: cfg.QuotaReservationTTL,
		now:            time.Now,
		log:            log,
	}
}

func planCacheKey(orgID uuid.UUID) string {
	return "plan_caps:" + orgID.String()
}

// planLimits returns the caps of the organisation's current subscription,
// served from redis when cached.
func (q *QuotaGuard) planLimits(ctx context.Context, orgID uuid.UUID) (*models.PlanLimits, error) {
	if q.rdb != nil && q.cacheTTL > 0 {
		data, err := q.rdb.Get(ctx, planCacheKey(orgID)).Bytes()
		if err == nil {
			var limits models.PlanLimits
			if err := json.Unmarshal(data, &limits); err == nil {
				return &limits, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			q.log.Warn("plan cache read failed", zap.String("organisation_id", orgID.String()), zap.Error(err))
		}
	}

	limits, err := q.store.PlanLimits(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if q.rdb != nil && q.cacheTTL > 0 {
		if data, err := json.Marshal(limits); err == nil {
			if err := q.rdb.Set(ctx, planCacheKey(orgID), data, q.cacheTTL).Err(); err != nil {
				q.log.Warn("plan cache write failed", zap.String("organisation_id", orgID.String()), zap.Error(err))
			}
		}
	}
	return limits, nil
}

// InvalidatePlan drops the cached caps, e.g. after a plan change.
func (q *QuotaGuard) InvalidatePlan(ctx context.Context, orgID uuid.UUID) {
	if q.rdb == nil {
		return
	}
	_ = q.rdb.Del(ctx, planCacheKey(orgID)).Err()
}

// CheckLimit reports whether confirmed usage is still under the plan cap on
// channel this period. Unmetered channels are always allowed. In-flight
// reservations are not counted here; Reserve gates on them.
func (q *QuotaGuard) CheckLimit(ctx context.Context, orgID uuid.UUID, channel models.Channel) (bool, error) {
	if !channel.IsMetered() {
		return true, nil
	}
	limits, err := q.planLimits(ctx, orgID)
	if errors.Is(err, models.ErrNoActiveSubscription) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("plan limits: %w", err)
	}

	limit := limits.LimitFor(channel)
	if limit == 0 {
		return true, nil
	}
	usage, err := q.store.GetUsage(ctx, orgID, channel, models.PeriodStart(q.now()))
	if err != nil {
		return false, fmt.Errorf("usage: %w", err)
	}
	return usage.Count < limit, nil
}

// IncrementUsage counts one message against the current period.
func (q *QuotaGuard) IncrementUsage(ctx context.Context, orgID uuid.UUID, channel models.Channel) error {
	return q.store.IncrementUsage(ctx, orgID, channel, models.PeriodStart(q.now()))
}

// Reserve holds one unit of the current period's quota for a send about to be
// submitted. It returns the period the reservation was taken in.
func (q *QuotaGuard) Reserve(ctx context.Context, orgID uuid.UUID, channel models.Channel) (time.Time, error) {
	period := models.PeriodStart(q.now())

	limit := 0
	if q.enforce {
		limits, err := q.planLimits(ctx, orgID)
		if errors.Is(err, models.ErrNoActiveSubscription) {
			metrics.QuotaRejectionsTotal.WithLabelValues(string(channel), "no_subscription").Inc()
			return period, fmt.Errorf("%w: no active subscription", ErrQuotaExceeded)
		}
		if err != nil {
			return period, fmt.Errorf("plan limits: %w", err)
		}
		limit = limits.LimitFor(channel)
	}

	ok, err := q.store.Reserve(ctx, orgID, channel, period, limit)
	if err != nil {
		return period, fmt.Errorf("reserve usage: %w", err)
	}
	if !ok {
		metrics.QuotaRejectionsTotal.WithLabelValues(string(channel), "limit").Inc()
		return period, fmt.Errorf("%w: %s limit of %d reached", ErrQuotaExceeded, channel, limit)
	}
	return period, nil
}

// CancelReservation returns a reservation whose send was never accepted.
func (q *QuotaGuard) CancelReservation(ctx context.Context, orgID uuid.UUID, channel models.Channel, period time.Time) {
	if err := q.store.CancelReservation(ctx, orgID, channel, period); err != nil {
		q.log.Error("cancel reservation failed",
			zap.String("organisation_id", orgID.String()),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
	}
}

// RecordSubmission ties an accepted send's provider id to its reservation so
// the delivery webhook can settle it.
func (q *QuotaGuard) RecordSubmission(ctx context.Context, receipt *models.DeliveryReceipt) error {
	receipt.Status = models.ReceiptStatusReserved
	return q.store.RecordSubmission(ctx, receipt)
}

// ConfirmDelivery counts a provider-confirmed message. Repeated reports for
// the same provider id are counted once; it reports whether this one counted.
func (q *QuotaGuard) ConfirmDelivery(ctx context.Context, providerMessageID string, orgID uuid.UUID, channel models.Channel, providerStatus string) (bool, error) {
	counted, err := q.store.ConfirmDelivery(ctx, providerMessageID, orgID, channel, providerStatus, q.now())
	if err != nil {
		return false, err
	}
	if counted {
		metrics.UsageConfirmedTotal.WithLabelValues(string(channel)).Inc()
	}
	return counted, nil
}

func (q *QuotaGuard) ReleaseDelivery(ctx context.Context, providerMessageID, providerStatus string) (bool, error) {
	return q.store.ReleaseDelivery(ctx, providerMessageID, providerStatus)
}

// ExpireReservations releases reservations older than the reservation TTL.
func (q *QuotaGuard) ExpireReservations(ctx context.Context) (int64, error) {
	n, err := q.store.ExpireReservations(ctx, q.now().Add(-q.reservationTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.ReservationsExpiredTotal.Add(float64(n))
		q.log.Info("expired stale reservations", zap.Int64("count", n))
	}
	return n, nil
}

// Usage summarises the current period of every metered channel.
func (q *QuotaGuard) Usage(ctx context.Context, orgID uuid.UUID) ([]models.UsageSummary, error) {
	period := models.PeriodStart(q.now())

	limits, err := q.planLimits(ctx, orgID)
	if errors.Is(err, models.ErrNoActiveSubscription) {
		limits = nil
	} else if err != nil {
		return nil, err
	}

	rows, err := q.store.ListUsage(ctx, orgID, period)
	if err != nil {
		return nil, err
	}
	byChannel := make(map[models.Channel]models.MessageUsage, len(rows))
	for _, r := range rows {
		byChannel[r.Channel] = r
	}

	out := make([]models.UsageSummary, 0, len(models.MeteredChannels))
	for _, ch := range models.MeteredChannels {
		u := byChannel[ch]
		s := models.UsageSummary{
			Channel:     ch,
			PeriodStart: period,
			Count:       u.Count,
			Reserved:    u.Reserved,
		}
		if limits != nil {
			s.Limit = limits.LimitFor(ch)
			s.Unlimited = s.Limit == 0
		}
		if s.Limit > 0 {
			s.Percent = float64(s.Count) * 100 / float64(s.Limit)
		}
		out = append(out, s)
	}
	return out, nil
}
