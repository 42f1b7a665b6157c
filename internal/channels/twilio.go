package channels

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioMessenger is the message-creating part of the Twilio REST client.
type TwilioMessenger interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioAdapter sends SMS or WhatsApp messages. Each message carries a status
// callback that names the organisation and channel so delivery reports can be
// metered.
type TwilioAdapter struct {
	channel     models.Channel
	messenger   TwilioMessenger
	from        string
	callbackURL string
	region      string
}

func NewTwilioRestClient(accountSID, authToken string) *twilio.RestClient {
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
}

func NewTwilioSMSAdapter(messenger TwilioMessenger, from, callbackURL, region string) *TwilioAdapter {
	return &TwilioAdapter{channel: models.ChannelSMS, messenger: messenger, from: from, callbackURL: callbackURL, region: region}
}

func NewTwilioWhatsAppAdapter(messenger TwilioMessenger, from, callbackURL, region string) *TwilioAdapter {
	return &TwilioAdapter{channel: models.ChannelWhatsApp, messenger: messenger, from: from, callbackURL: callbackURL, region: region}
}

func (a *TwilioAdapter) Channel() models.Channel { return a.channel }
func (a *TwilioAdapter) Provider() string        { return "twilio" }

func (a *TwilioAdapter) Send(ctx context.Context, content Content, target Target, _ Credential) (*Result, error) {
	to, err := NormalizePhone(target.Address, a.region)
	if err != nil {
		return nil, rejected(a.Provider(), "%v", err)
	}
	if a.from == "" {
		return nil, newError(a.Provider(), ErrorKindAuth, 0, fmt.Errorf("no %s sender configured", a.channel))
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(a.address(to))
	params.SetFrom(a.address(a.from))
	if a.callbackURL != "" {
		params.SetStatusCallback(StatusCallbackURL(a.callbackURL, target.OrganisationID.String(), a.channel))
	}

	switch meta := content.Metadata.(type) {
	case models.SMSMetadata:
		if meta.SenderID != "" {
			params.SetFrom(meta.SenderID)
		}
	case models.WhatsAppMetadata:
		if meta.ContentSID != "" {
			params.SetContentSid(meta.ContentSID)
		}
	}
	if params.ContentSid == nil {
		if content.Text == "" && len(content.MediaURLs) == 0 {
			return nil, rejected(a.Provider(), "message body is empty")
		}
		if content.Text != "" {
			params.SetBody(content.Text)
		}
	}
	if len(content.MediaURLs) > 0 {
		params.SetMediaUrl(content.MediaURLs)
	}

	msg, err := a.create(ctx, params)
	if err != nil {
		return nil, err
	}
	if msg.Sid == nil {
		return published(a.Provider(), "")
	}
	return published(a.Provider(), *msg.Sid)
}

// create bounds the client call by ctx; the Twilio client has no context support.
func (a *TwilioAdapter) create(ctx context.Context, params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error) {
	type result struct {
		msg *twilioapi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := a.messenger.CreateMessage(params)
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return nil, newError(a.Provider(), ErrorKindUnknown, 0, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, twilioError(r.err)
		}
		return r.msg, nil
	}
}

func (a *TwilioAdapter) address(number string) string {
	if a.channel == models.ChannelWhatsApp {
		return "whatsapp:" + number
	}
	return number
}

// StatusCallbackURL appends the organisation and channel the delivery webhook
// needs to attribute a status report.
func StatusCallbackURL(base, organisationID string, channel models.Channel) string {
	q := url.Values{}
	q.Set("organisation_id", organisationID)
	q.Set("channel", string(channel))
	return base + "?" + q.Encode()
}

func twilioError(err error) *Error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		kind := KindForStatus(restErr.Status)
		// 21211 invalid To, 21610 unsubscribed recipient, 21408 region not enabled
		switch restErr.Code {
		case 21211, 21610, 21614, 21408, 63016:
			kind = ErrorKindContentRejected
		case 20429:
			kind = ErrorKindRateLimited
		case 20003:
			kind = ErrorKindAuth
		}
		return newError("twilio", kind, restErr.Status, err)
	}
	return newError("twilio", ErrorKindUnknown, 0, err)
}
