package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/metrics"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type DueStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.CampaignPost, error)
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostDispatcher interface {
	Dispatch(ctx context.Context, postID uuid.UUID, opts DispatchOptions) (*DispatchResult, error)
}

type TickError struct {
	PostID string `json:"post_id"`
	Error  string `json:"error"`
}

// TickSummary reports one scheduler pass. Processed posts ended sent, failed
// posts did not, skipped posts were claimed by another run.
type TickSummary struct {
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Errors    []TickError `json:"errors"`
}

// Scheduler picks up due posts and dispatches them on a bounded worker pool.
type Scheduler struct {
	due        DueStore
	dispatcher PostDispatcher
	quota      *QuotaGuard
	batchSize  int
	workers    int
	timeout    time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func NewScheduler(due DueStore, dispatcher PostDispatcher, quota *QuotaGuard, cfg *config.Config, log *zap.Logger) *Scheduler {
	return &Scheduler{
		due:        due,
		dispatcher: dispatcher,
		quota:      quota,
		batchSize:  cfg.DispatchBatchSize,
		workers:    cfg.DispatchWorkers,
		timeout:    cfg.DispatchTickTimeout,
		staleAfter: cfg.DispatchClaimStaleAfter,
		now:        time.Now,
		log:        log,
	}
}

// Tick dispatches every due post once. Only a failed due query aborts the
// tick; per-post failures are collected into the summary.
func (s *Scheduler) Tick(ctx context.Context) (*TickSummary, error) {
	start := time.Now()
	defer func() {
		metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds())
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	now := s.now()
	if s.staleAfter > 0 {
		reaped, err := s.due.ReleaseStaleClaims(ctx, now.Add(-s.staleAfter))
		if err != nil {
			s.log.Error("failed to release stale claims", zap.Error(err))
		} else if reaped > 0 {
			s.log.Warn("released stale claims", zap.Int64("count", reaped))
		}
	}

	posts, err := s.due.ListDue(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("due post query failed", zap.Error(err))
		return nil, fmt.Errorf("list due posts: %w", err)
	}

	summary := &TickSummary{Total: len(posts), Errors: []TickError{}}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(max(1, s.workers))
	for _, post := range posts {
		g.Go(func() error {
			res, err := s.dispatcher.Dispatch(ctx, post.ID, DispatchOptions{})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrClaimConflict), errors.Is(err, ErrAlreadySent):
				summary.Skipped++
			case err != nil:
				summary.Failed++
				summary.Errors = append(summary.Errors, TickError{PostID: post.ID.String(), Error: err.Error()})
				s.log.Warn("dispatch failed", zap.String("post_id", post.ID.String()), zap.Error(err))
			case res.Err != nil:
				summary.Failed++
				summary.Errors = append(summary.Errors, TickError{
					PostID: post.ID.String(),
					Error:  fmt.Sprintf("%s: %v", FailureReason(res.Err), res.Err),
				})
			default:
				summary.Processed++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("dispatch tick finished",
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("took", time.Since(start)),
	)
	return summary, nil
}

// SweepReservations expires quota reservations whose delivery report never came.
func (s *Scheduler) SweepReservations(ctx context.Context) (int64, error) {
	if s.quota == nil {
		return 0, nil
	}
	return s.quota.ExpireReservations(ctx)
}
