package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campaign-hub/backend/internal/channels"
	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PostStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.CampaignPost, error)
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (*models.CampaignPost, error)
	MarkSent(ctx context.Context, id uuid.UUID, claimedAt, sentAt time.Time) error
	Release(ctx context.Context, id uuid.UUID, claimedAt, nextAttemptAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, claimedAt time.Time, lastError string) error
	Requeue(ctx context.Context, id uuid.UUID) error
}

type RecipientStore interface {
	Recipients(ctx context.Context, campaignID uuid.UUID, ids []uuid.UUID) ([]models.Contact, error)
}

type CredentialStore interface {
	Get(ctx context.Context, orgID uuid.UUID, channel models.Channel) (*models.ChannelCredential, error)
}

type TransactionStore interface {
	Create(ctx context.Context, t *models.PostTransaction) error
}

// DispatchOptions narrow a dispatch. RecipientIDs limits a per-recipient
// post to a subset of the campaign; ActorID marks a manual send.
type DispatchOptions struct {
	RecipientIDs []uuid.UUID
	ActorID      *uuid.UUID
}

// DispatchResult is the outcome of one claimed dispatch attempt.
type DispatchResult struct {
	PostID         uuid.UUID        `json:"post_id"`
	CampaignID     uuid.UUID        `json:"campaign_id"`
	OrganisationID uuid.UUID        `json:"organisation_id"`
	Channel        models.Channel   `json:"channel"`
	Sent           int              `json:"sent"`
	Failed         int              `json:"failed"`
	Errors         []string         `json:"errors"`
	ExternalID     string           `json:"external_id,omitempty"`
	State          models.PostState `json:"state"`
	Attempts       int              `json:"attempts"`
	NextAttemptAt  *time.Time       `json:"next_attempt_at,omitempty"`
	Terminal       bool             `json:"terminal"`
	ClaimLost      bool             `json:"claim_lost,omitempty"`
	ActorID        *uuid.UUID       `json:"-"`
	Err            error            `json:"-"`
}

// Dispatcher routes a claimed post to a single broadcast call or to the
// per-recipient fan-out, then settles the post's state.
type Dispatcher struct {
	posts        PostStore
	recipients   RecipientStore
	credentials  CredentialStore
	transactions TransactionStore
	registry     *channels.Registry
	fanout       *Fanout
	recorder     *OutcomeRecorder
	maxAttempts  int
	retryBase    time.Duration
	retryMax     time.Duration
	timeout      time.Duration
	now          func() time.Time
	log          *zap.Logger
}

func NewDispatcher(
	posts PostStore,
	recipients RecipientStore,
	credentials CredentialStore,
	transactions TransactionStore,
	registry *channels.Registry,
	fanout *Fanout,
	recorder *OutcomeRecorder,
	cfg *config.Config,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		posts:        posts,
		recipients:   recipients,
		credentials:  credentials,
		transactions: transactions,
		registry:     registry,
		fanout:       fanout,
		recorder:     recorder,
		maxAttempts:  cfg.DispatchMaxAttempts,
		retryBase:    cfg.DispatchRetryBase,
		retryMax:     cfg.DispatchRetryMax,
		timeout:      cfg.DispatchTickTimeout,
		now:          time.Now,
		log:          log,
	}
}

// Dispatch claims the post and sends it. Errors returned here mean the post
// was not claimed; delivery failures are reported in the result. Sending is
// bounded by the dispatch timeout so a claim is settled before it goes stale.
func (d *Dispatcher) Dispatch(ctx context.Context, postID uuid.UUID, opts DispatchOptions) (*DispatchResult, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	post, err := d.posts.Claim(ctx, postID, d.now())
	if errors.Is(err, models.ErrClaimConflict) {
		return nil, d.claimError(ctx, postID)
	}
	if err != nil {
		return nil, fmt.Errorf("claim post %s: %w", postID, err)
	}

	res := &DispatchResult{
		PostID:         post.ID,
		CampaignID:     post.CampaignID,
		OrganisationID: post.OrganisationID,
		Channel:        post.Channel,
		Errors:         []string{},
		Attempts:       post.Attempts,
		ActorID:        opts.ActorID,
	}

	if err := d.deliver(ctx, post, opts, res); err != nil {
		res.Err = err
		if len(res.Errors) == 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", FailureReason(err), err))
		}
	}
	d.finalize(ctx, post, res)
	if res.ClaimLost && res.Err != nil {
		// The run that holds the claim now reports the outcome.
		return res, nil
	}
	d.recorder.Record(ctx, res)
	return res, nil
}

// claimError explains why a claim did not succeed.
func (d *Dispatcher) claimError(ctx context.Context, postID uuid.UUID) error {
	post, err := d.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	switch post.State {
	case models.PostStateSent:
		return ErrAlreadySent
	case models.PostStateFailed:
		return ErrPostFailed
	}
	return ErrClaimConflict
}

func (d *Dispatcher) deliver(ctx context.Context, post *models.CampaignPost, opts DispatchOptions, res *DispatchResult) error {
	meta, err := post.DecodeMetadata()
	if err != nil {
		return err
	}
	adapter, err := d.registry.Get(post.Channel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedChannel, err)
	}

	content := channels.Content{
		Subject:   deref(post.Subject),
		Text:      post.Text,
		MediaURLs: post.MediaURLs,
		Link:      deref(post.Link),
		Metadata:  meta,
	}

	if post.Channel.IsBroadcast() {
		return d.broadcast(ctx, post, adapter, content, res)
	}
	return d.perRecipient(ctx, post, adapter, content, opts.RecipientIDs, res)
}

func (d *Dispatcher) broadcast(ctx context.Context, post *models.CampaignPost, adapter channels.Adapter, content channels.Content, res *DispatchResult) error {
	cred, err := d.credentials.Get(ctx, post.OrganisationID, post.Channel)
	if errors.Is(err, models.ErrCredentialNotFound) {
		res.Failed = 1
		return fmt.Errorf("%w: no %s account connected", ErrMissingCredential, post.Channel)
	}
	if err != nil {
		res.Failed = 1
		return fmt.Errorf("load credential: %w", err)
	}
	if !cred.IsUsable(d.now()) {
		res.Failed = 1
		return fmt.Errorf("%w: %s credential expired", ErrMissingCredential, post.Channel)
	}

	target := channels.Target{OrganisationID: post.OrganisationID, PostID: post.ID}
	out, err := d.fanout.Send(ctx, adapter, content, target, channels.Credential{
		AccountID:   cred.AccountID,
		AccessToken: cred.AccessToken,
	})
	if err != nil {
		res.Failed = 1
		return err
	}

	res.Sent = 1
	res.ExternalID = out.ExternalID
	err = d.transactions.Create(context.WithoutCancel(ctx), &models.PostTransaction{
		PostID:         post.ID,
		CampaignID:     post.CampaignID,
		OrganisationID: post.OrganisationID,
		Channel:        post.Channel,
		AccountID:      cred.AccountID,
		ExternalID:     out.ExternalID,
	})
	if err != nil {
		// The platform accepted the post; sending it again would duplicate it.
		d.log.Error("failed to write post transaction",
			zap.String("post_id", post.ID.String()),
			zap.String("external_id", out.ExternalID),
			zap.Error(err),
		)
	}
	return nil
}

func (d *Dispatcher) perRecipient(ctx context.Context, post *models.CampaignPost, adapter channels.Adapter, content channels.Content, ids []uuid.UUID, res *DispatchResult) error {
	contacts, err := d.recipients.Recipients(ctx, post.CampaignID, ids)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}

	reachable := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.AddressFor(post.Channel) != "" {
			reachable = append(reachable, c)
		}
	}
	if len(reachable) == 0 {
		return fmt.Errorf("%w for %s", ErrNoRecipients, post.Channel)
	}

	out := d.fanout.Run(ctx, post, adapter, content, reachable)
	res.Sent = out.Sent
	res.Failed = out.Failed
	res.Errors = out.Errors
	return nil
}

// finalize moves the claimed post to sent, back to pending with backoff, or
// to failed once its attempts are spent. A claim reaped while this run was
// sending is left to its new owner.
func (d *Dispatcher) finalize(ctx context.Context, post *models.CampaignPost, res *DispatchResult) {
	ctx = context.WithoutCancel(ctx)
	now := d.now()
	var claimedAt time.Time
	if post.ClaimedAt != nil {
		claimedAt = *post.ClaimedAt
	}
	fields := []zap.Field{
		zap.String("post_id", post.ID.String()),
		zap.String("channel", string(post.Channel)),
		zap.Int("attempts", post.Attempts),
	}
	settle := func(msg string, err error) {
		if errors.Is(err, models.ErrClaimConflict) {
			res.ClaimLost = true
			d.log.Warn("claim lost before settling post", append(fields, zap.String("state", string(res.State)))...)
			return
		}
		if err != nil {
			d.log.Error(msg, append(fields, zap.Error(err))...)
		}
	}

	if res.Err == nil {
		res.State = models.PostStateSent
		settle("failed to mark post sent", d.posts.MarkSent(ctx, post.ID, claimedAt, now))
		return
	}

	lastError := res.Err.Error()
	if isPermanent(res.Err) || post.Attempts >= d.maxAttempts {
		res.State = models.PostStateFailed
		res.Terminal = true
		settle("failed to mark post failed", d.posts.MarkFailed(ctx, post.ID, claimedAt, lastError))
		d.log.Warn("post failed permanently", append(fields, zap.Error(res.Err))...)
		return
	}

	next := now.Add(d.retryDelay(post.Attempts))
	res.State = models.PostStatePending
	res.NextAttemptAt = &next
	settle("failed to release post", d.posts.Release(ctx, post.ID, claimedAt, next, lastError))
	d.log.Warn("post dispatch failed, will retry", append(fields, zap.Time("next_attempt_at", next), zap.Error(res.Err))...)
}

// retryDelay is base * 2^(attempts-1), capped at the configured maximum.
func (d *Dispatcher) retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := d.retryBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if d.retryMax > 0 && delay >= d.retryMax {
			return d.retryMax
		}
	}
	if d.retryMax > 0 && delay > d.retryMax {
		return d.retryMax
	}
	return delay
}

// Requeue gives a failed post a fresh attempt budget.
func (d *Dispatcher) Requeue(ctx context.Context, postID uuid.UUID, actorID *uuid.UUID) error {
	post, err := d.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if err := d.posts.Requeue(ctx, postID); err != nil {
		return err
	}

	actorType := models.ActorScheduler
	if actorID != nil {
		actorType = models.ActorUser
	}
	_ = d.recorder.audit.Log(ctx, models.AuditLog{
		OrganisationID: &post.OrganisationID,
		ActorUserID:    actorID,
		ActorType:      actorType,
		Action:         models.AuditPostRequeued,
		EntityType:     models.EntityCampaignPost,
		EntityID:       &postID,
	})
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
