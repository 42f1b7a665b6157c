package events

import "context"

// StreamDispatch carries post outcomes to websocket clients and the alert bridge.
const StreamDispatch = "events:dispatch"

// Event types
const (
	EventPostDispatched     = "post_dispatched"
	EventPostDispatchFailed = "post_dispatch_failed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// OrganisationID returns the organisation the event belongs to, or "".
func (e Event) OrganisationID() string {
	v, _ := e.Payload["organisation_id"].(string)
	return v
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
