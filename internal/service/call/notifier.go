package call

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/pkg/email"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/money"
	"callsubs-backend/pkg/push"
)

// EmailSender is the subset of email.Service the lifecycle uses
type EmailSender interface {
	SendNewRequest(ctx context.Context, to string, data *email.NewRequestEmailData) error
	SendCallAccepted(ctx context.Context, to string, data *email.CallAcceptedEmailData) error
	SendCallConfirmed(ctx context.Context, to string, data *email.CallConfirmedEmailData) error
	SendCallReceipt(ctx context.Context, to string, data *email.CallReceiptEmailData) error
}

// PushSender delivers device notifications
type PushSender interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, notification *push.Notification) error
}

// Notifier tells participants about status changes by email and push.
// Delivery is best effort: failures are logged and counted, never returned.
type Notifier struct {
	email   EmailSender
	push    PushSender
	users   UserRepository
	metrics MetricsRecorder
	appURL  string
}

// NewNotifier creates a notifier. email and push may be nil to disable a channel.
func NewNotifier(emailSender EmailSender, pushSender PushSender, users UserRepository, metrics MetricsRecorder, appURL string) *Notifier {
	return &Notifier{
		email:   emailSender,
		push:    pushSender,
		users:   users,
		metrics: metrics,
		appURL:  appURL,
	}
}

func (n *Notifier) callURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/calls/%s", n.appURL, id)
}

// NewRequest tells the streamer a viewer is waiting
func (n *Notifier) NewRequest(ctx context.Context, c *domain.CallRequest, st *domain.Streamer, viewer *domain.User) {
	n.sendPush(ctx, c.StreamerID, push.CallNotification(c.ID, string(c.Status),
		"New call request",
		fmt.Sprintf("%s wants a %d minute call", viewer.DisplayName, c.DurationMinutes)))

	n.sendEmail(ctx, c.StreamerID, string(email.EmailTypeNewRequest), func(to string) error {
		return n.email.SendNewRequest(ctx, to, &email.NewRequestEmailData{
			StreamerName: st.DisplayName,
			ViewerName:   viewer.DisplayName,
			Message:      c.Message,
			Price:        money.Format(c.PriceCents, c.Currency),
			AppURL:       n.appURL + "/dashboard",
		})
	})
}

// Accepted sends the viewer the checkout link
func (n *Notifier) Accepted(ctx context.Context, c *domain.CallRequest, st *domain.Streamer, viewer *domain.User, window time.Duration) {
	n.sendPush(ctx, c.ViewerID, push.CallNotification(c.ID, string(c.Status),
		"Call accepted",
		fmt.Sprintf("%s accepted your call. Pay to start it.", st.DisplayName)))

	if n.email == nil || viewer.Email == "" {
		return
	}
	err := n.email.SendCallAccepted(ctx, viewer.Email, &email.CallAcceptedEmailData{
		ViewerName:    viewer.DisplayName,
		StreamerName:  st.DisplayName,
		Price:         money.Format(c.PriceCents, c.Currency),
		Duration:      c.DurationMinutes,
		CheckoutURL:   c.CheckoutURL,
		PayWithinMins: int(window.Minutes()),
	})
	n.record(ctx, "email", string(email.EmailTypeCallAccepted), c.ViewerID, err)
}

// Rejected tells the viewer the streamer declined
func (n *Notifier) Rejected(ctx context.Context, c *domain.CallRequest) {
	n.sendPush(ctx, c.ViewerID, push.CallNotification(c.ID, string(c.Status),
		"Call declined", "The streamer declined your call request."))
}

// Cancelled tells the streamer the viewer withdrew
func (n *Notifier) Cancelled(ctx context.Context, c *domain.CallRequest) {
	n.sendPush(ctx, c.StreamerID, push.CallNotification(c.ID, string(c.Status),
		"Call cancelled", "The viewer cancelled their call request."))
}

// Expired tells the viewer the request timed out
func (n *Notifier) Expired(ctx context.Context, c *domain.CallRequest) {
	body := "The streamer did not answer in time."
	if c.EndReason == domain.EndReasonPaymentTimeout {
		body = "The payment window closed before checkout finished."
	}
	n.sendPush(ctx, c.ViewerID, push.CallNotification(c.ID, string(c.Status), "Call request expired", body))
}

// Confirmed tells both parties the call is live
func (n *Notifier) Confirmed(ctx context.Context, c *domain.CallRequest) {
	streamer := n.lookup(ctx, c.StreamerID)
	viewer := n.lookup(ctx, c.ViewerID)

	for _, p := range []struct {
		recipient, other *domain.User
	}{{streamer, viewer}, {viewer, streamer}} {
		if p.recipient == nil {
			continue
		}
		n.sendPush(ctx, p.recipient.UserID, push.CallNotification(c.ID, string(c.Status),
			"Your call is live", "Payment confirmed. Join the room now."))

		if n.email == nil || p.recipient.Email == "" {
			continue
		}
		otherName := ""
		if p.other != nil {
			otherName = p.other.DisplayName
		}
		err := n.email.SendCallConfirmed(ctx, p.recipient.Email, &email.CallConfirmedEmailData{
			RecipientName: p.recipient.DisplayName,
			OtherName:     otherName,
			Duration:      c.DurationMinutes,
			CallURL:       n.callURL(c.ID),
		})
		n.record(ctx, "email", string(email.EmailTypeCallConfirmed), p.recipient.UserID, err)
	}
}

// Completed sends the viewer a receipt
func (n *Notifier) Completed(ctx context.Context, c *domain.CallRequest) {
	if n.email == nil {
		return
	}
	viewer := n.lookup(ctx, c.ViewerID)
	if viewer == nil || viewer.Email == "" {
		return
	}
	streamerName := ""
	if streamer := n.lookup(ctx, c.StreamerID); streamer != nil {
		streamerName = streamer.DisplayName
	}

	err := n.email.SendCallReceipt(ctx, viewer.Email, &email.CallReceiptEmailData{
		ViewerName:   viewer.DisplayName,
		StreamerName: streamerName,
		AmountPaid:   money.Format(c.AmountPaidCents, c.Currency),
		Minutes:      int((c.ElapsedSeconds() + 59) / 60),
		CallID:       c.ID.String(),
	})
	n.record(ctx, "email", string(email.EmailTypeCallReceipt), c.ViewerID, err)
}

func (n *Notifier) sendPush(ctx context.Context, userID uuid.UUID, notification *push.Notification) {
	if n.push == nil {
		return
	}
	err := n.push.NotifyUser(ctx, userID, notification)
	n.record(ctx, "push", notification.Data["status"], userID, err)
}

func (n *Notifier) sendEmail(ctx context.Context, userID uuid.UUID, emailType string, send func(to string) error) {
	if n.email == nil {
		return
	}
	user := n.lookup(ctx, userID)
	if user == nil || user.Email == "" {
		return
	}
	n.record(ctx, "email", emailType, userID, send(user.Email))
}

func (n *Notifier) lookup(ctx context.Context, userID uuid.UUID) *domain.User {
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to load notification recipient",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil
	}
	return user
}

func (n *Notifier) record(ctx context.Context, channel, notifType string, userID uuid.UUID, err error) {
	n.metrics.RecordNotification(channel, notifType, err)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to send notification",
			zap.String("channel", channel),
			zap.String("type", notifType),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}
