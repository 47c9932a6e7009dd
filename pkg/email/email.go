package email

import (
	"context"
	"fmt"
	"html"
	"sync"

	"go.uber.org/zap"

	"callsubs-backend/pkg/logger"
)

// EmailType represents the type of email to send
type EmailType string

const (
	EmailTypeNewRequest    EmailType = "new_request"
	EmailTypeCallAccepted  EmailType = "call_accepted"
	EmailTypeCallConfirmed EmailType = "call_confirmed"
	EmailTypeCallReceipt   EmailType = "call_receipt"
)

// Email represents an email to be sent
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Type    EmailType
}

// NewRequestEmailData is sent to a streamer when a viewer asks for a call
type NewRequestEmailData struct {
	StreamerName string
	ViewerName   string
	Message      string
	Price        string
	AppURL       string
}

// CallAcceptedEmailData is sent to the viewer with the checkout link
type CallAcceptedEmailData struct {
	ViewerName    string
	StreamerName  string
	Price         string
	Duration      int
	CheckoutURL   string
	PayWithinMins int
}

// CallConfirmedEmailData is sent to both parties once payment cleared
type CallConfirmedEmailData struct {
	RecipientName string
	OtherName     string
	Duration      int
	CallURL       string
}

// CallReceiptEmailData is sent to the viewer after a completed call
type CallReceiptEmailData struct {
	ViewerName   string
	StreamerName string
	AmountPaid   string
	Minutes      int
	CallID       string
}

// Sender defines the interface for delivering emails
type Sender interface {
	Send(ctx context.Context, email *Email) error
}

// MockSender logs emails instead of sending them and keeps a copy for tests
type MockSender struct {
	mu   sync.Mutex
	sent []*Email
}

// Send records the email
func (m *MockSender) Send(ctx context.Context, email *Email) error {
	m.mu.Lock()
	m.sent = append(m.sent, email)
	m.mu.Unlock()

	logger.Info("Mock email sent",
		zap.String("to", email.To),
		zap.String("type", string(email.Type)),
		zap.String("subject", email.Subject))
	return nil
}

// Sent returns a copy of every email passed to Send
func (m *MockSender) Sent() []*Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Email, len(m.sent))
	copy(out, m.sent)
	return out
}

// Service renders and sends transactional emails
type Service struct {
	sender Sender
}

// NewService creates a new email service
func NewService(sender Sender) *Service {
	return &Service{
		sender: sender,
	}
}

// SendNewRequest tells a streamer about a new call request
func (s *Service) SendNewRequest(ctx context.Context, to string, data *NewRequestEmailData) error {
	return s.sender.Send(ctx, &Email{
		To:      to,
		Type:    EmailTypeNewRequest,
		Subject: fmt.Sprintf("%s wants to call you", data.ViewerName),
		Text:    buildNewRequestText(data),
		HTML:    buildNewRequestHTML(data),
	})
}

// SendCallAccepted sends the viewer their checkout link
func (s *Service) SendCallAccepted(ctx context.Context, to string, data *CallAcceptedEmailData) error {
	return s.sender.Send(ctx, &Email{
		To:      to,
		Type:    EmailTypeCallAccepted,
		Subject: fmt.Sprintf("%s accepted your call request", data.StreamerName),
		Text:    buildCallAcceptedText(data),
		HTML:    buildCallAcceptedHTML(data),
	})
}

// SendCallConfirmed tells a participant the call is live
func (s *Service) SendCallConfirmed(ctx context.Context, to string, data *CallConfirmedEmailData) error {
	return s.sender.Send(ctx, &Email{
		To:      to,
		Type:    EmailTypeCallConfirmed,
		Subject: fmt.Sprintf("Your call with %s is ready", data.OtherName),
		Text:    buildCallConfirmedText(data),
		HTML:    buildCallConfirmedHTML(data),
	})
}

// SendCallReceipt sends the viewer a receipt after the call
func (s *Service) SendCallReceipt(ctx context.Context, to string, data *CallReceiptEmailData) error {
	return s.sender.Send(ctx, &Email{
		To:      to,
		Type:    EmailTypeCallReceipt,
		Subject: fmt.Sprintf("Receipt for your call with %s", data.StreamerName),
		Text:    buildCallReceiptText(data),
		HTML:    buildCallReceiptHTML(data),
	})
}

func buildNewRequestText(data *NewRequestEmailData) string {
	message := data.Message
	if message == "" {
		message = "(no message)"
	}
	return fmt.Sprintf(`Hi %s,

%s requested a %s call with you.

Message: %s

Review your queue: %s/dashboard/calls

The CallSubs Team`, data.StreamerName, data.ViewerName, data.Price, message, data.AppURL)
}

func buildNewRequestHTML(data *NewRequestEmailData) string {
	message := html.EscapeString(data.Message)
	if message == "" {
		message = "<em>no message</em>"
	}
	return layout("New call request", fmt.Sprintf(`
    <p>Hi %s,</p>
    <p><strong>%s</strong> requested a %s call with you.</p>
    <blockquote>%s</blockquote>
    <p><a class="button" href="%s/dashboard/calls">Review your queue</a></p>`,
		html.EscapeString(data.StreamerName),
		html.EscapeString(data.ViewerName),
		html.EscapeString(data.Price),
		message,
		html.EscapeString(data.AppURL)))
}

func buildCallAcceptedText(data *CallAcceptedEmailData) string {
	return fmt.Sprintf(`Hi %s,

%s accepted your call request (%d minutes, %s).

Complete payment within %d minutes to start the call:

%s

The CallSubs Team`, data.ViewerName, data.StreamerName, data.Duration, data.Price, data.PayWithinMins, data.CheckoutURL)
}

func buildCallAcceptedHTML(data *CallAcceptedEmailData) string {
	return layout("Call accepted", fmt.Sprintf(`
    <p>Hi %s,</p>
    <p><strong>%s</strong> accepted your call request (%d minutes, %s).</p>
    <p>Complete payment within %d minutes to start the call.</p>
    <p><a class="button" href="%s">Pay and start call</a></p>`,
		html.EscapeString(data.ViewerName),
		html.EscapeString(data.StreamerName),
		data.Duration,
		html.EscapeString(data.Price),
		data.PayWithinMins,
		html.EscapeString(data.CheckoutURL)))
}

func buildCallConfirmedText(data *CallConfirmedEmailData) string {
	return fmt.Sprintf(`Hi %s,

Your %d minute call with %s is ready. Join here:

%s

The CallSubs Team`, data.RecipientName, data.Duration, data.OtherName, data.CallURL)
}

func buildCallConfirmedHTML(data *CallConfirmedEmailData) string {
	return layout("Your call is ready", fmt.Sprintf(`
    <p>Hi %s,</p>
    <p>Your %d minute call with <strong>%s</strong> is ready.</p>
    <p><a class="button" href="%s">Join call</a></p>`,
		html.EscapeString(data.RecipientName),
		data.Duration,
		html.EscapeString(data.OtherName),
		html.EscapeString(data.CallURL)))
}

func buildCallReceiptText(data *CallReceiptEmailData) string {
	return fmt.Sprintf(`Hi %s,

Thanks for calling %s.

Call:     %s
Length:   %d min
Paid:     %s

The CallSubs Team`, data.ViewerName, data.StreamerName, data.CallID, data.Minutes, data.AmountPaid)
}

func buildCallReceiptHTML(data *CallReceiptEmailData) string {
	return layout("Call receipt", fmt.Sprintf(`
    <p>Hi %s,</p>
    <p>Thanks for calling <strong>%s</strong>.</p>
    <table>
      <tr><td>Call</td><td>%s</td></tr>
      <tr><td>Length</td><td>%d min</td></tr>
      <tr><td>Paid</td><td>%s</td></tr>
    </table>`,
		html.EscapeString(data.ViewerName),
		html.EscapeString(data.StreamerName),
		html.EscapeString(data.CallID),
		data.Minutes,
		html.EscapeString(data.AmountPaid)))
}

func layout(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s - CallSubs</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #18181b; }
        .container { max-width: 560px; margin: 0 auto; padding: 24px; }
        .button { display: inline-block; padding: 12px 20px; background: #9146ff; color: #fff; border-radius: 6px; text-decoration: none; }
        blockquote { border-left: 3px solid #9146ff; margin: 0; padding-left: 12px; }
    </style>
</head>
<body>
<div class="container">%s
    <p>The CallSubs Team</p>
</div>
</body>
</html>`, html.EscapeString(title), body)
}
