package channels

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	appconfig "github.com/campaign-hub/backend/internal/config"
	"github.com/sendgrid/sendgrid-go"
	"go.uber.org/zap"
)

// NewRegistryFromConfig builds the adapter for every supported channel.
func NewRegistryFromConfig(ctx context.Context, cfg *appconfig.Config, log *zap.Logger) (*Registry, error) {
	var email Adapter
	switch cfg.EmailProvider {
	case "sendgrid":
		email = NewSendGridEmailAdapter(sendgrid.NewSendClient(cfg.SendGridAPIKey), cfg.EmailFrom, cfg.EmailFromName)
	case "ses", "":
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		email = NewSESEmailAdapter(ses.NewFromConfig(awsCfg), cfg.EmailFrom, cfg.EmailFromName)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}

	twilioClient := NewTwilioRestClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	callbackURL := cfg.StatusCallbackURL()

	log.Info("channel adapters configured",
		zap.String("email_provider", email.Provider()),
		zap.String("status_callback", callbackURL),
	)

	return NewRegistry(
		email,
		NewTwilioSMSAdapter(twilioClient.Api, cfg.TwilioSMSFrom, callbackURL, cfg.SMSDefaultRegion),
		NewTwilioWhatsAppAdapter(twilioClient.Api, cfg.TwilioWhatsAppFrom, callbackURL, cfg.SMSDefaultRegion),
		NewFacebookAdapter("", cfg.SendTimeout),
		NewInstagramAdapter("", cfg.SendTimeout),
		NewLinkedInAdapter("", cfg.SendTimeout),
		NewPinterestAdapter("", cfg.SendTimeout),
		NewYouTubeAdapter("", cfg.SendTimeout),
	), nil
}
