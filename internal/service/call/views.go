package call

import (
	"context"

	"github.com/google/uuid"

	"callsubs-backend/internal/domain"
	"callsubs-backend/pkg/clock"
	"callsubs-backend/pkg/money"
)

const (
	roleStreamer = "streamer"
	roleViewer   = "viewer"
)

// view builds the client payload for one participant. The checkout link is
// only shown to the viewer while payment is open.
func (s *Service) view(c *domain.CallRequest, userID uuid.UUID, streamerName, viewerName string) *domain.CallView {
	now := s.now()
	v := &domain.CallView{
		ID:               c.ID,
		Status:           c.Status,
		Role:             roleViewer,
		StreamerID:       c.StreamerID,
		ViewerID:         c.ViewerID,
		StreamerName:     streamerName,
		ViewerName:       viewerName,
		Message:          c.Message,
		PriceCents:       c.PriceCents,
		Currency:         c.Currency,
		Price:            money.Format(c.PriceCents, c.Currency),
		DurationMinutes:  c.DurationMinutes,
		PaymentExpiresAt: c.PaymentExpiresAt,
		StartedAt:        c.StartedAt,
		EndsAt:           c.EndsAt,
		EndedAt:          c.EndedAt,
		EndReason:        c.EndReason,
		ServerTime:       now.UnixMilli(),
		CreatedAt:        c.CreatedAt,
	}
	if userID == c.StreamerID {
		v.Role = roleStreamer
	}
	if c.Status == domain.CallStatusPaymentPending && v.Role == roleViewer {
		v.CheckoutURL = c.CheckoutURL
	}
	if c.Status == domain.CallStatusActive && c.EndsAt != nil {
		v.RemainingSeconds = clock.RemainingSeconds(*c.EndsAt, now)
	}
	return v
}

// viewFor resolves participant names before building the view
func (s *Service) viewFor(ctx context.Context, c *domain.CallRequest, userID uuid.UUID) *domain.CallView {
	names := newNameCache(s.users)
	return s.view(c, userID, names.get(ctx, c.StreamerID), names.get(ctx, c.ViewerID))
}

func (s *Service) views(ctx context.Context, calls []*domain.CallRequest, userID uuid.UUID) []*domain.CallView {
	names := newNameCache(s.users)
	out := make([]*domain.CallView, 0, len(calls))
	for _, c := range calls {
		out = append(out, s.view(c, userID, names.get(ctx, c.StreamerID), names.get(ctx, c.ViewerID)))
	}
	return out
}

// nameCache memoizes display names while building a list so a streamer's
// queue costs one lookup per distinct viewer
type nameCache struct {
	users UserRepository
	names map[uuid.UUID]string
}

func newNameCache(users UserRepository) *nameCache {
	return &nameCache{users: users, names: make(map[uuid.UUID]string)}
}

func (n *nameCache) get(ctx context.Context, userID uuid.UUID) string {
	if name, ok := n.names[userID]; ok {
		return name
	}
	name := ""
	if user, err := n.users.GetByID(ctx, userID); err == nil {
		name = user.DisplayName
	}
	n.names[userID] = name
	return name
}
