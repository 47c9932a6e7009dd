package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"callsubs-backend/internal/domain"
	redisrepo "callsubs-backend/internal/repository/redis"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/jwt"
	"callsubs-backend/pkg/twitch"
)

// Mocks
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(ctx context.Context, in *domain.UserUpsert) (*domain.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) SaveOAuthState(ctx context.Context, state string, ttl time.Duration) error {
	args := m.Called(ctx, state, ttl)
	return args.Error(0)
}

func (m *MockSessionRepository) ConsumeOAuthState(ctx context.Context, state string) (bool, error) {
	args := m.Called(ctx, state)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	args := m.Called(ctx, jti, ttl)
	return args.Error(0)
}

func (m *MockSessionRepository) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) RevokeOnce(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, jti, ttl)
	return args.Bool(0), args.Error(1)
}

type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogLogin(ctx context.Context, userID uuid.UUID, ip string, success bool, details string) error {
	args := m.Called(ctx, userID, ip, success, details)
	return args.Error(0)
}

func (m *MockAuditLogger) LogLogout(ctx context.Context, userID uuid.UUID, ip string) error {
	args := m.Called(ctx, userID, ip)
	return args.Error(0)
}

type fixture struct {
	svc      *Service
	users    *MockUserRepository
	sessions *MockSessionRepository
	audit    *MockAuditLogger
	jwt      *jwt.JWTManager
}

func newFixture() *fixture {
	f := &fixture{
		users:    new(MockUserRepository),
		sessions: new(MockSessionRepository),
		audit:    new(MockAuditLogger),
		jwt:      jwt.NewJWTManager("test-secret-key-for-testing-purposes", 15*time.Minute, 30*24*time.Hour),
	}
	provider := &twitch.MockProvider{RedirectURL: "http://api.test/v1/auth/twitch/callback"}
	f.svc = NewService(f.users, f.sessions, provider, f.jwt, f.audit, "http://app.test")
	return f
}

func testUser() *domain.User {
	return &domain.User{
		UserID:      uuid.New(),
		TwitchID:    "mock-shroud",
		Login:       "shroud",
		DisplayName: "shroud",
		Role:        domain.RoleViewer,
		CreatedAt:   time.Now(),
	}
}

func TestBeginLoginStoresState(t *testing.T) {
	f := newFixture()
	f.sessions.On("SaveOAuthState", mock.Anything, mock.AnythingOfType("string"), 10*time.Minute).Return(nil)

	redirect, err := f.svc.BeginLogin(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	state := u.Query().Get("state")
	assert.Len(t, state, 64)
	f.sessions.AssertCalled(t, "SaveOAuthState", mock.Anything, state, 10*time.Minute)
}

func TestCompleteLoginSuccess(t *testing.T) {
	f := newFixture()
	user := testUser()

	f.sessions.On("ConsumeOAuthState", mock.Anything, "state-1").Return(true, nil)
	f.users.On("Upsert", mock.Anything, mock.MatchedBy(func(in *domain.UserUpsert) bool {
		return in.TwitchID == "mock-shroud" && in.Login == "shroud"
	})).Return(user, nil)
	f.audit.On("LogLogin", mock.Anything, user.UserID, "1.2.3.4", true, "twitch").Return(nil)

	out, err := f.svc.CompleteLogin(context.Background(), &CallbackInput{State: "state-1", Code: "shroud", IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, user.UserID, out.User.UserID)
	assert.Equal(t, int64(900), out.ExpiresIn)

	claims, err := f.jwt.ValidateAccessToken(out.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "shroud", claims.Login)
	assert.Equal(t, domain.RoleViewer, claims.Role)

	redirect := f.svc.CompletionRedirect(out)
	assert.True(t, strings.HasPrefix(redirect, "http://app.test/auth/complete#"))
	assert.Contains(t, redirect, "access_token=")
	f.users.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

func TestCompleteLoginRejectsReusedState(t *testing.T) {
	f := newFixture()
	f.sessions.On("ConsumeOAuthState", mock.Anything, "used").Return(false, nil)

	_, err := f.svc.CompleteLogin(context.Background(), &CallbackInput{State: "used", Code: "shroud"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
	f.users.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestCompleteLoginMissingParams(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CompleteLogin(context.Background(), &CallbackInput{State: "s"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture()
	user := testUser()
	refresh, err := f.jwt.GenerateRefreshToken(user.UserID)
	require.NoError(t, err)
	old, err := f.jwt.ValidateRefreshToken(refresh)
	require.NoError(t, err)

	f.sessions.On("RevokeOnce", mock.Anything, old.ID, mock.AnythingOfType("time.Duration")).Return(true, nil)
	f.users.On("GetByID", mock.Anything, user.UserID).Return(user, nil)

	resp, err := f.svc.Refresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.NotEqual(t, refresh, resp.RefreshToken)
	assert.Equal(t, user.UserID, resp.User.UserID)
	f.sessions.AssertExpectations(t)
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	f := newFixture()
	refresh, err := f.jwt.GenerateRefreshToken(uuid.New())
	require.NoError(t, err)

	f.sessions.On("RevokeOnce", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	_, err = f.svc.Refresh(context.Background(), refresh)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))
	f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestRefreshRedeemsOnceUnderConcurrency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture()
	f.svc.sessionRepo = redisrepo.NewSessionRepository(client)
	user := testUser()
	f.users.On("GetByID", mock.Anything, user.UserID).Return(user, nil)

	refresh, err := f.jwt.GenerateRefreshToken(user.UserID)
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		succeeded atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.svc.Refresh(context.Background(), refresh); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture()
	access, err := f.jwt.GenerateAccessToken(uuid.New(), "shroud", "viewer")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), access)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	access, _ := f.jwt.GenerateAccessToken(userID, "shroud", "viewer")
	refresh, _ := f.jwt.GenerateRefreshToken(userID)

	f.sessions.On("BlacklistToken", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.audit.On("LogLogout", mock.Anything, userID, "1.2.3.4").Return(errors.New("redis down"))

	require.NoError(t, f.svc.Logout(context.Background(), userID, access, refresh, "1.2.3.4"))
	f.sessions.AssertNumberOfCalls(t, "BlacklistToken", 2)
}

func TestLogoutIgnoresForeignRefreshToken(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	access, _ := f.jwt.GenerateAccessToken(userID, "shroud", "viewer")
	foreign, _ := f.jwt.GenerateRefreshToken(uuid.New())

	f.sessions.On("BlacklistToken", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.audit.On("LogLogout", mock.Anything, userID, "").Return(nil)

	require.NoError(t, f.svc.Logout(context.Background(), userID, access, foreign, ""))
	f.sessions.AssertNumberOfCalls(t, "BlacklistToken", 1)
}

func TestIsTokenRevokedWithoutJTI(t *testing.T) {
	f := newFixture()

	revoked, err := f.svc.IsTokenRevoked(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, revoked)
}
