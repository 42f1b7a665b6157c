package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campaign-hub/backend/internal/channels"
	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/metrics"
	"github.com/campaign-hub/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// FanoutResult aggregates the per-recipient outcomes of one post.
type FanoutResult struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// providerGate bounds in-flight calls and call rate for one provider across
// every fan-out running in the process.
type providerGate struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

func newProviderGate(concurrency int, perSecond float64) *providerGate {
	if concurrency <= 0 {
		concurrency = 1
	}
	limit, burst := rate.Inf, concurrency
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}
	return &providerGate{
		sem:     make(chan struct{}, concurrency),
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (g *providerGate) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		<-g.sem
		return err
	}
	return nil
}

func (g *providerGate) release() { <-g.sem }

// Fanout performs adapter calls with a per-provider gate, a per-call timeout
// and bounded retries, and runs per-recipient sends in parallel.
type Fanout struct {
	quota       *QuotaGuard
	concurrency int
	perSecond   float64
	timeout     time.Duration
	retries     int
	backoff     func(attempt int) time.Duration
	log         *zap.Logger

	mu    sync.Mutex
	gates map[string]*providerGate
}

func NewFanout(quota *QuotaGuard, cfg *config.Config, log *zap.Logger) *Fanout {
	return &Fanout{
		quota:       quota,
		concurrency: cfg.FanoutConcurrency,
		perSecond:   float64(cfg.FanoutRatePerSecond),
		timeout:     cfg.SendTimeout,
		retries:     cfg.SendRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 500 * time.Millisecond
		},
		log:   log,
		gates: make(map[string]*providerGate),
	}
}

func (f *Fanout) gate(provider string) *providerGate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[provider]
	if !ok {
		g = newProviderGate(f.concurrency, f.perSecond)
		f.gates[provider] = g
	}
	return g
}

// Send performs one adapter call. Retryable failures are tried again up to
// the configured number of retries. A call that ran into its timeout is not
// repeated: the provider may have accepted it.
func (f *Fanout) Send(ctx context.Context, adapter channels.Adapter, content channels.Content, target channels.Target, cred channels.Credential) (*channels.Result, error) {
	gate := f.gate(adapter.Provider())
	channel := string(adapter.Channel())

	for attempt := 0; ; attempt++ {
		if err := gate.acquire(ctx); err != nil {
			return nil, &channels.Error{Kind: channels.ErrorKindUnknown, Provider: adapter.Provider(), Err: err}
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, channels.CallTimeout(adapter, f.timeout))
		res, err := adapter.Send(callCtx, content, target, cred)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
		cancel()
		gate.release()
		metrics.SendDuration.WithLabelValues(channel, adapter.Provider()).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.RecipientSendsTotal.WithLabelValues(channel, adapter.Provider(), "ok").Inc()
			return res, nil
		}

		extErr := channels.AsError(err)
		metrics.RecipientSendsTotal.WithLabelValues(channel, adapter.Provider(), string(extErr.Kind)).Inc()
		if !extErr.Retryable() || timedOut || attempt >= f.retries || ctx.Err() != nil {
			return nil, extErr
		}

		metrics.SendRetriesTotal.WithLabelValues(channel, string(extErr.Kind)).Inc()
		f.log.Debug("retrying adapter call",
			zap.String("provider", adapter.Provider()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-time.After(f.backoff(attempt)):
		case <-ctx.Done():
			return nil, extErr
		}
	}
}

// Run sends post to every recipient independently. Individual failures are
// collected and never stop the remaining sends.
func (f *Fanout) Run(ctx context.Context, post *models.CampaignPost, adapter channels.Adapter, content channels.Content, recipients []models.Contact) FanoutResult {
	var (
		mu  sync.Mutex
		res = FanoutResult{Errors: []string{}}
	)

	g := new(errgroup.Group)
	g.SetLimit(max(1, f.concurrency))
	for _, contact := range recipients {
		g.Go(func() error {
			err := f.sendOne(ctx, post, adapter, content, contact)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf("contact %s: %s: %v", contact.ID, FailureReason(err), err))
				f.log.Warn("recipient send failed",
					zap.String("post_id", post.ID.String()),
					zap.String("contact_id", contact.ID.String()),
					zap.String("channel", string(post.Channel)),
					zap.Error(err),
				)
				return nil
			}
			res.Sent++
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (f *Fanout) sendOne(ctx context.Context, post *models.CampaignPost, adapter channels.Adapter, content channels.Content, contact models.Contact) error {
	address := contact.AddressFor(post.Channel)
	if address == "" {
		return fmt.Errorf("%w: contact has no %s address", ErrNoRecipients, post.Channel)
	}

	metered := f.quota != nil && post.Channel.IsMetered()
	var period time.Time
	if metered {
		p, err := f.quota.Reserve(ctx, post.OrganisationID, post.Channel)
		if err != nil {
			return err
		}
		period = p
	}

	contactID := contact.ID
	target := channels.Target{
		OrganisationID: post.OrganisationID,
		PostID:         post.ID,
		ContactID:      &contactID,
		Address:        address,
	}
	res, err := f.Send(ctx, adapter, content, target, channels.Credential{})
	if err != nil {
		if metered {
			f.quota.CancelReservation(context.WithoutCancel(ctx), post.OrganisationID, post.Channel, period)
		}
		return err
	}

	if metered {
		if res.ExternalID == "" {
			f.quota.CancelReservation(context.WithoutCancel(ctx), post.OrganisationID, post.Channel, period)
			return nil
		}
		postID := post.ID
		err := f.quota.RecordSubmission(context.WithoutCancel(ctx), &models.DeliveryReceipt{
			ProviderMessageID: res.ExternalID,
			OrganisationID:    post.OrganisationID,
			Channel:           post.Channel,
			PostID:            &postID,
			ContactID:         &contactID,
			PeriodStart:       period,
		})
		if err != nil {
			// The message is out; the reservation expires with the sweep.
			f.log.Error("record submission failed",
				zap.String("post_id", post.ID.String()),
				zap.String("provider_message_id", res.ExternalID),
				zap.Error(err),
			)
		}
	}
	return nil
}
