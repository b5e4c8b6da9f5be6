package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type ProviderConfig struct {
	Provider       string // stub, sendgrid, ses
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	AWSRegion      string
}

// NewEmailSender picks the email backend named by cfg.Provider.
func NewEmailSender(ctx context.Context, cfg ProviderConfig, logger zerolog.Logger) (EmailSender, error) {
	switch cfg.Provider {
	case "", "stub":
		return NewStubEmailSender(logger), nil
	case "sendgrid":
		s := NewSendGridSender(SendGridConfig{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger)
		if s == nil {
			return nil, errors.New("notify: sendgrid selected without an API key")
		}
		return s, nil
	case "ses":
		s, err := NewSESSenderFromEnv(ctx, SESConfig{Region: cfg.AWSRegion, FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("notify: unknown provider %q", cfg.Provider)
	}
}
