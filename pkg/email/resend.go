package email

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"callsubs-backend/pkg/logger"
)

// ResendSender delivers emails through the Resend API
type ResendSender struct {
	client *resend.Client
	from   string
	// observe records vendor metrics; nil disables it
	observe func(operation string, duration time.Duration, err error)
}

// NewResendSender creates a sender for the given API key and From address
func NewResendSender(apiKey, from string, observe func(string, time.Duration, error)) *ResendSender {
	return &ResendSender{
		client:  resend.NewClient(apiKey),
		from:    from,
		observe: observe,
	}
}

// Send delivers one email
func (r *ResendSender) Send(ctx context.Context, email *Email) error {
	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
		Tags:    []resend.Tag{{Name: "type", Value: string(email.Type)}},
	}

	start := time.Now()
	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if r.observe != nil {
		r.observe("send_email", time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}

	logger.Debug("Email sent",
		zap.String("id", sent.Id),
		zap.String("type", string(email.Type)))
	return nil
}
