package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"callsubs-backend/internal/domain"
	"callsubs-backend/pkg/audit"
)

// Mocks
type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, c *domain.CallRequest) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCallRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CallRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallRequest), args.Error(1)
}

func (m *MockCallRepository) GetByCheckoutSession(ctx context.Context, sessionID string) (*domain.CallRequest, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallRequest), args.Error(1)
}

func (m *MockCallRepository) Transition(ctx context.Context, id uuid.UUID, from []domain.CallStatus, to domain.CallStatus, upd domain.TransitionUpdate) (*domain.CallRequest, error) {
	args := m.Called(ctx, id, from, to, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallRequest), args.Error(1)
}

func (m *MockCallRepository) ListByStreamer(ctx context.Context, streamerID uuid.UUID, filter domain.CallListFilter) ([]*domain.CallRequest, int, error) {
	args := m.Called(ctx, streamerID, filter)
	return args.Get(0).([]*domain.CallRequest), args.Int(1), args.Error(2)
}

func (m *MockCallRepository) ListByViewer(ctx context.Context, viewerID uuid.UUID, filter domain.CallListFilter) ([]*domain.CallRequest, int, error) {
	args := m.Called(ctx, viewerID, filter)
	return args.Get(0).([]*domain.CallRequest), args.Int(1), args.Error(2)
}

func (m *MockCallRepository) CountPending(ctx context.Context, streamerID uuid.UUID) (int, error) {
	args := m.Called(ctx, streamerID)
	return args.Int(0), args.Error(1)
}

func (m *MockCallRepository) HasOpenRequest(ctx context.Context, streamerID, viewerID uuid.UUID) (bool, error) {
	args := m.Called(ctx, streamerID, viewerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallRepository) CountActive(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockCallRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CallRequest, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).([]*domain.CallRequest), args.Error(1)
}

func (m *MockCallRepository) ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*domain.CallRequest, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*domain.CallRequest), args.Error(1)
}

func (m *MockCallRepository) ListOverdueActive(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CallRequest, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).([]*domain.CallRequest), args.Error(1)
}

type MockStreamerRepository struct {
	mock.Mock
}

func (m *MockStreamerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Streamer, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Streamer), args.Error(1)
}

func (m *MockStreamerRepository) GetBySlug(ctx context.Context, slug string) (*domain.Streamer, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Streamer), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) Get(ctx context.Context, streamerID, viewerID uuid.UUID) (*domain.CallerStats, error) {
	args := m.Called(ctx, streamerID, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallerStats), args.Error(1)
}

func (m *MockStatsRepository) RecordCall(ctx context.Context, streamerID, viewerID uuid.UUID, spentCents, seconds int64, at time.Time) error {
	args := m.Called(ctx, streamerID, viewerID, spentCents, seconds, at)
	return args.Error(0)
}

type MockWebhookDeduper struct {
	mock.Mock
}

func (m *MockWebhookDeduper) MarkProcessing(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookDeduper) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type MockAudit struct {
	mock.Mock
}

func (m *MockAudit) LogCallTransition(ctx context.Context, callID uuid.UUID, actorID *uuid.UUID, from, to string) error {
	args := m.Called(ctx, callID, actorID, from, to)
	return args.Error(0)
}

func (m *MockAudit) LogCallRefund(ctx context.Context, callID uuid.UUID, details string) error {
	args := m.Called(ctx, callID, details)
	return args.Error(0)
}

func (m *MockAudit) GetCallEvents(ctx context.Context, callID uuid.UUID) ([]*audit.AuditEvent, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.AuditEvent), args.Error(1)
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.CallEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event *domain.CallEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) statuses() []domain.CallStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.CallStatus, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Status)
	}
	return out
}
