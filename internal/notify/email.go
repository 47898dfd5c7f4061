package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/dermalens/dermalens/pkg/logger"
	"github.com/dermalens/dermalens/pkg/mail"
)

// ErrNoEmailChannel signals that neither SMTP nor SendGrid is configured.
var ErrNoEmailChannel = errors.New("notify: no email channel configured")

// EmailSender delivers a single email message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) error
}

// SMTPSender adapts the mail package to the EmailSender interface.
type SMTPSender struct {
	mailer mail.Mailer
}

// NewSMTPSender wraps an SMTP mailer.
func NewSMTPSender(mailer mail.Mailer) *SMTPSender {
	return &SMTPSender{mailer: mailer}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) error {
	return s.mailer.Send(ctx, mail.Message{
		To:       []string{to},
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	})
}

// SendGridSender delivers email through the SendGrid API.
type SendGridSender struct {
	apiKey    string
	fromName  string
	fromEmail string
}

// NewSendGridSender builds a sender for the given API key and from address.
func NewSendGridSender(apiKey, fromName, fromEmail string) (*SendGridSender, error) {
	if apiKey == "" {
		return nil, errors.New("notify: sendgrid api key is required")
	}
	if fromEmail == "" {
		return nil, errors.New("notify: sendgrid from address is required")
	}
	return &SendGridSender{apiKey: apiKey, fromName: fromName, fromEmail: fromEmail}, nil
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) error {
	from := sgmail.NewEmail(s.fromName, s.fromEmail)
	recipient := sgmail.NewEmail("", to)
	message := sgmail.NewSingleEmail(from, subject, recipient, textBody, htmlBody)

	client := sendgrid.NewSendClient(s.apiKey)
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// FallbackEmailSender tries the primary channel first and falls back to the
// secondary when the primary fails. Either sender may be nil.
type FallbackEmailSender struct {
	primary   EmailSender
	secondary EmailSender
	log       *zap.Logger
}

// NewFallbackEmailSender composes two email channels.
func NewFallbackEmailSender(primary, secondary EmailSender) *FallbackEmailSender {
	return &FallbackEmailSender{
		primary:   primary,
		secondary: secondary,
		log:       logger.WithModule("notify"),
	}
}

func (s *FallbackEmailSender) SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if s.primary == nil && s.secondary == nil {
		return ErrNoEmailChannel
	}

	if s.primary != nil {
		err := s.primary.SendEmail(ctx, to, subject, textBody, htmlBody)
		if err == nil {
			return nil
		}
		if s.secondary == nil {
			return err
		}
		s.log.Warn("primary email channel failed, trying fallback", zap.Error(err))
	}

	return s.secondary.SendEmail(ctx, to, subject, textBody, htmlBody)
}
