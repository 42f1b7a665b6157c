package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/sendgrid/rest"
	sendgridmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// emailParts resolves the rendered parts of an email post.
type emailParts struct {
	From    string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

func buildEmail(content Content, fromAddr, fromName string) emailParts {
	meta, _ := content.Metadata.(models.EmailMetadata)
	p := emailParts{
		From:    (&mail.Address{Name: firstNonEmpty(meta.FromName, fromName), Address: fromAddr}).String(),
		ReplyTo: meta.ReplyTo,
		Subject: content.Subject,
		Text:    content.Text,
		HTML:    meta.HTML,
	}
	if p.Text == "" && p.HTML != "" {
		p.Text = htmlToText(p.HTML)
	}
	return p
}

// SESAPI is the part of the SES client the adapter uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESEmailAdapter struct {
	client   SESAPI
	fromAddr string
	fromName string
}

func NewSESEmailAdapter(client SESAPI, fromAddr, fromName string) *SESEmailAdapter {
	return &SESEmailAdapter{client: client, fromAddr: fromAddr, fromName: fromName}
}

func (a *SESEmailAdapter) Channel() models.Channel { return models.ChannelEmail }
func (a *SESEmailAdapter) Provider() string        { return "ses" }

func (a *SESEmailAdapter) Send(ctx context.Context, content Content, target Target, _ Credential) (*Result, error) {
	if target.Address == "" {
		return nil, rejected(a.Provider(), "missing recipient address")
	}
	p := buildEmail(content, a.fromAddr, a.fromName)
	if p.Subject == "" {
		return nil, rejected(a.Provider(), "email subject is empty")
	}
	if p.Text == "" && p.HTML == "" {
		return nil, rejected(a.Provider(), "email body is empty")
	}

	body := &types.Body{}
	if p.Text != "" {
		body.Text = &types.Content{Data: aws.String(p.Text), Charset: aws.String("UTF-8")}
	}
	if p.HTML != "" {
		body.Html = &types.Content{Data: aws.String(p.HTML), Charset: aws.String("UTF-8")}
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(p.From),
		Destination: &types.Destination{ToAddresses: []string{target.Address}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(p.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	}
	if p.ReplyTo != "" {
		input.ReplyToAddresses = []string{p.ReplyTo}
	}

	out, err := a.client.SendEmail(ctx, input)
	if err != nil {
		return nil, sesError(err)
	}
	return &Result{ExternalID: aws.ToString(out.MessageId), Provider: a.Provider()}, nil
}

func sesError(err error) *Error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "MaxSendingRateExceeded":
			return newError("ses", ErrorKindRateLimited, 0, err)
		case "MessageRejected", "MailFromDomainNotVerified", "InvalidParameterValue":
			return newError("ses", ErrorKindContentRejected, 0, err)
		case "AccessDenied", "AccessDeniedException", "InvalidClientTokenId", "SignatureDoesNotMatch", "AccountSendingPausedException":
			return newError("ses", ErrorKindAuth, 0, err)
		}
	}
	return newError("ses", ErrorKindUnknown, 0, err)
}

// SendGridAPI is the part of the SendGrid client the adapter uses.
type SendGridAPI interface {
	SendWithContext(ctx context.Context, email *sendgridmail.SGMailV3) (*rest.Response, error)
}

type SendGridEmailAdapter struct {
	client   SendGridAPI
	fromAddr string
	fromName string
}

func NewSendGridEmailAdapter(client SendGridAPI, fromAddr, fromName string) *SendGridEmailAdapter {
	return &SendGridEmailAdapter{client: client, fromAddr: fromAddr, fromName: fromName}
}

func (a *SendGridEmailAdapter) Channel() models.Channel { return models.ChannelEmail }
func (a *SendGridEmailAdapter) Provider() string        { return "sendgrid" }

func (a *SendGridEmailAdapter) Send(ctx context.Context, content Content, target Target, _ Credential) (*Result, error) {
	if target.Address == "" {
		return nil, rejected(a.Provider(), "missing recipient address")
	}
	p := buildEmail(content, a.fromAddr, a.fromName)
	if p.Subject == "" {
		return nil, rejected(a.Provider(), "email subject is empty")
	}
	if p.Text == "" && p.HTML == "" {
		return nil, rejected(a.Provider(), "email body is empty")
	}

	meta, _ := content.Metadata.(models.EmailMetadata)
	message := sendgridmail.NewV3Mail()
	message.SetFrom(sendgridmail.NewEmail(firstNonEmpty(meta.FromName, a.fromName), a.fromAddr))
	message.Subject = p.Subject

	personalization := sendgridmail.NewPersonalization()
	personalization.AddTos(sendgridmail.NewEmail("", target.Address))
	message.AddPersonalizations(personalization)

	if p.Text != "" {
		message.AddContent(sendgridmail.NewContent("text/plain", p.Text))
	}
	if p.HTML != "" {
		message.AddContent(sendgridmail.NewContent("text/html", p.HTML))
	}
	if p.ReplyTo != "" {
		message.SetReplyTo(sendgridmail.NewEmail("", p.ReplyTo))
	}

	resp, err := a.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, newError(a.Provider(), ErrorKindUnknown, 0, fmt.Errorf("sendgrid send error: %w", err))
	}
	if resp.StatusCode >= 300 {
		return nil, newError(a.Provider(), KindForStatus(resp.StatusCode), resp.StatusCode,
			fmt.Errorf("sendgrid API error: %s", resp.Body))
	}

	id := http.Header(resp.Headers).Get("X-Message-Id")
	return &Result{ExternalID: id, Provider: a.Provider()}, nil
}
