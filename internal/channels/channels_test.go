package channels

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, ErrorKindAuth},
		{http.StatusForbidden, ErrorKindAuth},
		{http.StatusTooManyRequests, ErrorKindRateLimited},
		{http.StatusBadRequest, ErrorKindContentRejected},
		{http.StatusUnprocessableEntity, ErrorKindContentRejected},
		{http.StatusRequestEntityTooLarge, ErrorKindContentRejected},
		{http.StatusInternalServerError, ErrorKindUnknown},
		{http.StatusBadGateway, ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := KindForStatus(tt.status); got != tt.want {
				t.Errorf("KindForStatus(%d) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestErrorRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{ErrorKindAuth, false},
		{ErrorKindContentRejected, false},
		{ErrorKindRateLimited, true},
		{ErrorKindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := newError("test", tt.kind, 0, errors.New("boom"))
			if got := e.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	plain := AsError(errors.New("socket closed"))
	require.NotNil(t, plain)
	assert.Equal(t, ErrorKindUnknown, plain.Kind)

	typed := rejected("facebook", "bad caption")
	wrapped := AsError(errors.Join(errors.New("outer"), typed))
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorKindContentRejected, wrapped.Kind)
	assert.Equal(t, "facebook", wrapped.Provider)
}

type stubAdapter struct {
	ch models.Channel
}

func (s stubAdapter) Channel() models.Channel { return s.ch }
func (s stubAdapter) Provider() string        { return "stub" }
func (s stubAdapter) Send(context.Context, Content, Target, Credential) (*Result, error) {
	return &Result{ExternalID: "x", Provider: "stub"}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubAdapter{models.ChannelSMS}, stubAdapter{models.ChannelFacebook})

	a, err := r.Get(models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelSMS, a.Channel())

	_, err = r.Get(models.ChannelPinterest)
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestCallTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, CallTimeout(stubAdapter{models.ChannelSMS}, 5*time.Second))
	assert.Equal(t, 50*time.Second, CallTimeout(NewYouTubeAdapter("", time.Second), 5*time.Second))
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "hello\n\nhttps://x.io", caption(Content{Text: "hello", Link: "https://x.io"}))
	assert.Equal(t, "see https://x.io", caption(Content{Text: "see https://x.io", Link: "https://x.io"}))
	assert.Equal(t, "https://x.io", caption(Content{Link: "https://x.io"}))
	assert.Equal(t, "plain", caption(Content{Text: "plain"}))
}
