package notifications

import (
	"context"
	"fmt"
	"strings"

	resend "github.com/resend/resend-go/v3"

	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

// Email is one outbound message.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// ResendSender sends through the Resend API.
type ResendSender struct {
	from   string
	client *resend.Client
}

func NewResendSender(apiKey, from string) (*ResendSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("resend api key required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("from address required")
	}
	return &ResendSender{from: from, client: resend.NewClient(apiKey)}, nil
}

func (r *ResendSender) Send(ctx context.Context, email Email) error {
	if email.To == "" {
		return fmt.Errorf("recipient is required")
	}
	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	if params.Html == "" && params.Text == "" {
		return fmt.Errorf("email body is empty")
	}
	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send email via resend: %w", err)
	}
	return nil
}

// LogSender only logs. Used when no Resend key is configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (l *LogSender) Send(ctx context.Context, email Email) error {
	l.logg.Info(l.logg.WithFields(ctx, map[string]any{
		"to":      email.To,
		"subject": email.Subject,
	}), "email delivery disabled; message logged")
	return nil
}
