package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisPubSub_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	sub := NewRedisSubscriber(client, zap.NewNop())
	require.NoError(t, sub.Subscribe(ctx, StreamDispatch, func(e Event) { received <- e }))

	pub := NewRedisPublisher(client, zap.NewNop())
	err := pub.Publish(ctx, StreamDispatch, Event{
		Type:    EventPostDispatched,
		Payload: map[string]any{"organisation_id": "org-1", "sent": 3},
	})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, EventPostDispatched, e.Type)
		assert.Equal(t, "org-1", e.OrganisationID())
		assert.EqualValues(t, 3, e.Payload["sent"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEvent_OrganisationIDMissing(t *testing.T) {
	assert.Equal(t, "", Event{Type: EventPostDispatched}.OrganisationID())
	assert.Equal(t, "", Event{Payload: map[string]any{"organisation_id": 7}}.OrganisationID())
}
