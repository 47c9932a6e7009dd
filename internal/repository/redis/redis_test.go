package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsubs-backend/internal/domain"
	"callsubs-backend/pkg/database"
	"callsubs-backend/pkg/push"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestOAuthStateIsSingleUse(t *testing.T) {
	mr, client := setupRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.SaveOAuthState(ctx, "abc", 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL("oauth:state:abc"))

	ok, err := repo.ConsumeOAuthState(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ConsumeOAuthState(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOAuthStateExpires(t *testing.T) {
	mr, client := setupRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.SaveOAuthState(ctx, "abc", time.Minute))
	mr.FastForward(2 * time.Minute)

	ok, err := repo.ConsumeOAuthState(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlacklistToken(t *testing.T) {
	mr, client := setupRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.BlacklistToken(ctx, "jti-1", 5*time.Minute))
	require.NoError(t, repo.BlacklistToken(ctx, "jti-expired", 0))

	revoked, err := repo.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.IsTokenBlacklisted(ctx, "jti-expired")
	require.NoError(t, err)
	assert.False(t, revoked)

	mr.FastForward(6 * time.Minute)
	revoked, err = repo.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeOnce(t *testing.T) {
	mr, client := setupRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	first, err := repo.RevokeOnce(ctx, "jti-r", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.RevokeOnce(ctx, "jti-r", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	revoked, err := repo.IsTokenBlacklisted(ctx, "jti-r")
	require.NoError(t, err)
	assert.True(t, revoked)

	expired, err := repo.RevokeOnce(ctx, "jti-old", 0)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.False(t, mr.Exists(blacklistKey("jti-old")))
}

func TestWebhookMarkProcessingDeduplicates(t *testing.T) {
	_, client := setupRedis(t)
	repo := NewWebhookRepository(client)
	ctx := context.Background()

	first, err := repo.MarkProcessing(ctx, "evt_1", 48*time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkProcessing(ctx, "evt_1", 48*time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, repo.Release(ctx, "evt_1"))
	retry, err := repo.MarkProcessing(ctx, "evt_1", 48*time.Hour)
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestPushTokenLifecycle(t *testing.T) {
	_, client := setupRedis(t)
	repo := NewPushTokenRepository(client)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.Store(ctx, &push.Token{UserID: userID, Token: "tok-a", Platform: push.PlatformAndroid}))
	require.NoError(t, repo.Store(ctx, &push.Token{UserID: userID, Token: "tok-b", Platform: push.PlatformWeb}))

	tokens, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	require.NoError(t, repo.Delete(ctx, userID, "tok-a"))
	tokens, err = repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "tok-b", tokens[0].Token)

	require.NoError(t, repo.DeleteByToken(ctx, "tok-b"))
	tokens, err = repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	assert.NoError(t, repo.DeleteByToken(ctx, "unknown"))
}

func TestPushTokenDeleteKeepsOtherOwnersRecord(t *testing.T) {
	_, client := setupRedis(t)
	repo := NewPushTokenRepository(client)
	ctx := context.Background()
	owner := uuid.New()

	require.NoError(t, repo.Store(ctx, &push.Token{UserID: owner, Token: "shared", Platform: push.PlatformIOS}))
	require.NoError(t, repo.Delete(ctx, uuid.New(), "shared"))

	token, err := repo.GetByToken(ctx, "shared")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, owner, token.UserID)
}

func TestPresence(t *testing.T) {
	mr, client := setupRedis(t)
	repo := NewPresenceRepository(database.NewRedisFromClient(client), time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.SetOnline(ctx, userID))
	online, err := repo.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)

	mr.FastForward(2 * time.Minute)
	online, err = repo.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, repo.SetOnline(ctx, userID))
	require.NoError(t, repo.SetOffline(ctx, userID))
	online, err = repo.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestCallEventsPubSub(t *testing.T) {
	_, client := setupRedis(t)
	repo := NewCallEventRepository(client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	callID, streamerID := uuid.New(), uuid.New()

	sub, err := repo.Subscribe(ctx, CallChannel(callID))
	require.NoError(t, err)
	defer sub.Close()

	dashboard, err := repo.Subscribe(ctx, StreamerChannel(streamerID))
	require.NoError(t, err)
	defer dashboard.Close()

	require.NoError(t, repo.Publish(ctx, &domain.CallEvent{
		CallID:     callID,
		StreamerID: streamerID,
		From:       domain.CallStatusPending,
		Status:     domain.CallStatusPaymentPending,
		ServerTime: 1700000000000,
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, CallChannel(callID), msg.Channel)

	event, err := DecodeEvent(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusPaymentPending, event.Status)
	assert.Equal(t, callID, event.CallID)

	msg, err = dashboard.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, StreamerChannel(streamerID), msg.Channel)
}
