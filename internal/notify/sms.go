package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSSender delivers a single text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TwilioSender delivers SMS through the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// TwilioConfig holds the Twilio credentials and sender number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// NewTwilioSender builds an SMS sender from Twilio credentials.
func NewTwilioSender(cfg TwilioConfig) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("notify: twilio credentials are required")
	}
	if cfg.FromNumber == "" {
		return nil, errors.New("notify: twilio sender number is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client, from: cfg.FromNumber}, nil
}

func (s *TwilioSender) SendSMS(_ context.Context, to, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("notify: twilio send: %w", err)
	}
	return nil
}
