package main

import (
	"fmt"
	"strings"

	"github.com/campaign-hub/backend/internal/events"
)

// SNS rejects subjects longer than 100 characters.
const maxSubjectLen = 100

// alertFor renders an alert for posts that failed for good. Retries and
// successful dispatches produce none.
func alertFor(event events.Event) (subject, message string, ok bool) {
	if event.Type != events.EventPostDispatchFailed {
		return "", "", false
	}
	if terminal, _ := event.Payload["terminal"].(bool); !terminal {
		return "", "", false
	}

	channel := payloadString(event, "channel")
	subject = fmt.Sprintf("[campaign-hub] %s post failed", channel)
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Organisation: %s\n", payloadString(event, "organisation_id"))
	fmt.Fprintf(&b, "Campaign: %s\n", payloadString(event, "campaign_id"))
	fmt.Fprintf(&b, "Post: %s\n", payloadString(event, "post_id"))
	fmt.Fprintf(&b, "Channel: %s\n", channel)
	if msg := payloadString(event, "message"); msg != "" {
		fmt.Fprintf(&b, "\n%s\n", msg)
	}
	return subject, b.String(), true
}

func payloadString(event events.Event, key string) string {
	v, _ := event.Payload[key].(string)
	return v
}
