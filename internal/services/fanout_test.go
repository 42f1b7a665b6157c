package services

import (
	"context"
	"testing"
	"time"

	"github.com/campaign-hub/backend/internal/channels"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newTestFanout(t *testing.T, mutate func(f *Fanout)) *Fanout {
	t.Helper()
	f := NewFanout(nil, testConfig(), zap.NewNop())
	f.backoff = func(int) time.Duration { return time.Millisecond }
	if mutate != nil {
		mutate(f)
	}
	return f
}

func TestFanoutSend_RetriesRetryableOnce(t *testing.T) {
	a := newScriptedAdapter(models.ChannelFacebook)
	a.failures = []error{extError(channels.ErrorKindRateLimited)}
	f := newTestFanout(t, nil)

	res, err := f.Send(context.Background(), a, channels.Content{}, channels.Target{}, channels.Credential{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ExternalID)
	assert.Equal(t, 2, a.callCount())
}

func TestFanoutSend_GivesUpAfterRetries(t *testing.T) {
	a := newScriptedAdapter(models.ChannelFacebook)
	a.failures = []error{extError(channels.ErrorKindUnknown), extError(channels.ErrorKindUnknown), extError(channels.ErrorKindUnknown)}
	f := newTestFanout(t, nil)

	_, err := f.Send(context.Background(), a, channels.Content{}, channels.Target{}, channels.Credential{})
	require.Error(t, err)
	assert.Equal(t, 2, a.callCount())
}

func TestFanoutSend_NoRetryForPermanentErrors(t *testing.T) {
	tests := []channels.ErrorKind{channels.ErrorKindAuth, channels.ErrorKindContentRejected}

	for _, kind := range tests {
		t.Run(string(kind), func(t *testing.T) {
			a := newScriptedAdapter(models.ChannelLinkedIn)
			a.failures = []error{extError(kind)}
			f := newTestFanout(t, nil)

			_, err := f.Send(context.Background(), a, channels.Content{}, channels.Target{}, channels.Credential{})
			require.Error(t, err)
			assert.Equal(t, kind, channels.AsError(err).Kind)
			assert.Equal(t, 1, a.callCount())
		})
	}
}

func TestFanoutSend_PerCallTimeout(t *testing.T) {
	a := newScriptedAdapter(models.ChannelPinterest)
	a.delay = time.Hour
	f := newTestFanout(t, func(f *Fanout) {
		f.timeout = 20 * time.Millisecond
		f.retries = 0
	})

	start := time.Now()
	_, err := f.Send(context.Background(), a, channels.Content{}, channels.Target{}, channels.Credential{})
	require.Error(t, err)
	assert.Equal(t, channels.ErrorKindUnknown, channels.AsError(err).Kind)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFanoutSend_TimeoutIsNotRetried(t *testing.T) {
	a := newScriptedAdapter(models.ChannelFacebook)
	a.delay = time.Hour
	f := newTestFanout(t, func(f *Fanout) {
		f.timeout = 20 * time.Millisecond
		f.retries = 3
	})

	_, err := f.Send(context.Background(), a, channels.Content{}, channels.Target{}, channels.Credential{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, a.callCount())
}

func TestNewFanout_RateFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.FanoutRatePerSecond = 25

	f := NewFanout(nil, cfg, zap.NewNop())
	assert.Equal(t, 25.0, f.perSecond)
	assert.Equal(t, rate.Limit(25), f.gate("fake").limiter.Limit())
}

func TestFanoutRun_CountsOutcomes(t *testing.T) {
	a := newScriptedAdapter(models.ChannelEmail)
	f := newTestFanout(t, nil)

	var contacts []models.Contact
	for i := 0; i < 6; i++ {
		addr := uuid.NewString() + "@example.com"
		contacts = append(contacts, models.Contact{ID: uuid.New(), Email: &addr})
		if i%3 == 0 {
			a.failFor[addr] = extError(channels.ErrorKindContentRejected)
		}
	}
	post := &models.CampaignPost{ID: uuid.New(), OrganisationID: uuid.New(), Channel: models.ChannelEmail}

	res := f.Run(context.Background(), post, a, channels.Content{Subject: "s", Text: "t"}, contacts)
	assert.Equal(t, 4, res.Sent)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 2)
}

func TestFanoutRun_BoundsConcurrencyPerProvider(t *testing.T) {
	a := newScriptedAdapter(models.ChannelEmail)
	a.delay = 10 * time.Millisecond
	f := newTestFanout(t, func(f *Fanout) { f.concurrency = 2 })

	var contacts []models.Contact
	for i := 0; i < 10; i++ {
		addr := uuid.NewString() + "@example.com"
		contacts = append(contacts, models.Contact{ID: uuid.New(), Email: &addr})
	}
	post := &models.CampaignPost{ID: uuid.New(), Channel: models.ChannelEmail}

	// Two posts for the same provider share one gate.
	done := make(chan FanoutResult, 2)
	for i := 0; i < 2; i++ {
		go func() { done <- f.Run(context.Background(), post, a, channels.Content{}, contacts) }()
	}
	total := 0
	for i := 0; i < 2; i++ {
		total += (<-done).Sent
	}

	assert.Equal(t, 20, total)
	a.mu.Lock()
	defer a.mu.Unlock()
	assert.LessOrEqual(t, a.maxInflight, 2)
}

func TestProviderGate_RateLimit(t *testing.T) {
	g := newProviderGate(10, 20)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 40; i++ {
		require.NoError(t, g.acquire(ctx))
		g.release()
	}
	// 20 burst tokens, the other 20 arrive at 20/s.
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestProviderGate_ContextCancel(t *testing.T) {
	g := newProviderGate(1, 0)
	require.NoError(t, g.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, g.acquire(ctx))
	g.release()
}
