package push

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTokenRepository is a mock implementation of TokenRepository
type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Store(ctx context.Context, token *Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Token), args.Error(1)
}

func (m *MockTokenRepository) Delete(ctx context.Context, userID uuid.UUID, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *MockTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

type stubProvider struct {
	result *SendResult
	err    error
	tokens []string
}

func (s *stubProvider) Send(ctx context.Context, n *Notification, tokens []string) (*SendResult, error) {
	s.tokens = tokens
	return s.result, s.err
}

func TestNotifyUserRemovesInvalidTokens(t *testing.T) {
	repo := new(MockTokenRepository)
	provider := &stubProvider{result: &SendResult{SuccessCount: 1, FailureCount: 1, InvalidTokens: []string{"stale"}}}
	svc := NewService(provider, repo)
	userID := uuid.New()

	// Setup expectations
	repo.On("GetByUserID", mock.Anything, userID).Return([]*Token{
		{UserID: userID, Token: "fresh"},
		{UserID: userID, Token: "stale"},
	}, nil)
	repo.On("Delete", mock.Anything, userID, "stale").Return(nil)

	// Execute
	err := svc.NotifyUser(context.Background(), userID, CallNotification(uuid.New(), "pending", "New call request", "viewer1 wants to call"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh", "stale"}, provider.tokens)
	repo.AssertExpectations(t)
}

func TestNotifyUserWithoutTokens(t *testing.T) {
	repo := new(MockTokenRepository)
	provider := &stubProvider{}
	svc := NewService(provider, repo)
	userID := uuid.New()

	repo.On("GetByUserID", mock.Anything, userID).Return([]*Token{}, nil)

	err := svc.NotifyUser(context.Background(), userID, &Notification{Title: "x"})

	require.NoError(t, err)
	assert.Nil(t, provider.tokens)
}

func TestNotifyUserProviderError(t *testing.T) {
	repo := new(MockTokenRepository)
	svc := NewService(&stubProvider{err: errors.New("fcm down")}, repo)
	userID := uuid.New()

	repo.On("GetByUserID", mock.Anything, userID).Return([]*Token{{Token: "a"}}, nil)

	err := svc.NotifyUser(context.Background(), userID, &Notification{Title: "x"})

	assert.ErrorContains(t, err, "fcm down")
}

func TestRegisterTokenMovesOwnership(t *testing.T) {
	repo := new(MockTokenRepository)
	svc := NewService(&MockProvider{}, repo)
	token := &Token{UserID: uuid.New(), Token: "device-1", Platform: PlatformWeb}

	repo.On("DeleteByToken", mock.Anything, "device-1").Return(nil)
	repo.On("Store", mock.Anything, token).Return(nil)

	require.NoError(t, svc.RegisterToken(context.Background(), token))
	assert.Error(t, svc.RegisterToken(context.Background(), &Token{}))
	repo.AssertExpectations(t)
}

func TestCallNotificationPriority(t *testing.T) {
	callID := uuid.New()

	n := CallNotification(callID, "pending", "t", "b")
	assert.Equal(t, "high", n.Priority)
	assert.Equal(t, callID.String(), n.Data["call_id"])

	assert.Equal(t, "normal", CallNotification(callID, "completed", "t", "b").Priority)
}

type fakeMessaging struct {
	messages []*messaging.Message
}

func (f *fakeMessaging) SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error) {
	f.messages = messages
	resp := &messaging.BatchResponse{}
	for range messages {
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true})
		resp.SuccessCount++
	}
	return resp, nil
}

func TestFirebaseProviderSend(t *testing.T) {
	fake := &fakeMessaging{}
	provider := &FirebaseProvider{client: fake, projectID: "test"}

	result, err := provider.Send(context.Background(), CallNotification(uuid.New(), "active", "Call started", "Join now"), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, fake.messages, 2)
	assert.Equal(t, "b", fake.messages[1].Token)
	assert.Equal(t, "Call started", fake.messages[0].Data["title"])
	assert.Equal(t, "active", fake.messages[0].Data["status"])
	assert.Equal(t, "high", fake.messages[0].Android.Priority)
}

func TestFirebaseProviderNoTokens(t *testing.T) {
	provider := &FirebaseProvider{client: &fakeMessaging{}}

	result, err := provider.Send(context.Background(), &Notification{}, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
}
