package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsubs-backend/pkg/database"
	"callsubs-backend/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRevocation struct {
	revoked map[string]bool
	err     error
}

func (s *stubRevocation) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.revoked[jti], s.err
}

func newAuthRouter(manager *jwt.JWTManager, checker RevocationChecker) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(manager, checker), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.String(http.StatusOK, userID.String())
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	manager := jwt.NewJWTManager("test-secret", 15*time.Minute, time.Hour)
	userID := uuid.New()
	token, err := manager.GenerateAccessToken(userID, "viewer1", "viewer")
	require.NoError(t, err)
	refresh, err := manager.GenerateRefreshToken(userID)
	require.NoError(t, err)
	claims, err := manager.ValidateAccessToken(token)
	require.NoError(t, err)

	tests := []struct {
		name     string
		target   string
		header   string
		checker  RevocationChecker
		wantCode int
	}{
		{name: "bearer header", target: "/me", header: "Bearer " + token, wantCode: http.StatusOK},
		{name: "query token", target: "/me?access_token=" + token, wantCode: http.StatusOK},
		{name: "missing", target: "/me", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/me", header: "Basic " + token, wantCode: http.StatusUnauthorized},
		{name: "refresh token", target: "/me", header: "Bearer " + refresh, wantCode: http.StatusUnauthorized},
		{
			name:     "revoked",
			target:   "/me",
			header:   "Bearer " + token,
			checker:  &stubRevocation{revoked: map[string]bool{claims.ID: true}},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "revocation store down",
			target:   "/me",
			header:   "Bearer " + token,
			checker:  &stubRevocation{err: errors.New("redis down")},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthRouter(manager, tt.checker)
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, userID.String(), w.Body.String())
			}
		})
	}
}

func TestRequestIDPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

type countingRecorder struct {
	blocked  map[string]int
	timeouts int
}

func (r *countingRecorder) RecordRateLimitBlocked(endpoint string) {
	if r.blocked == nil {
		r.blocked = make(map[string]int)
	}
	r.blocked[endpoint]++
}

func (r *countingRecorder) RecordRequestTimeout(method, endpoint string) {
	r.timeouts++
}

func newLimitedRouter(rl *RateLimiter, rule RateLimitRule) *gin.Engine {
	r := gin.New()
	r.GET("/limited", rl.Limit(rule), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRateLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	recorder := &countingRecorder{}
	r := newLimitedRouter(NewRateLimiter(client, recorder), RateLimitRule{Name: "test", Requests: 2, Window: time.Minute})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		codes = append(codes, w.Code)
		if i == 2 {
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, recorder.blocked["test"])

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, mr.TTL(keys[0]) > 0)

	mr.FastForward(time.Minute)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	r := newLimitedRouter(NewRateLimiter(client, nil), RateLimitRule{Name: "test", Requests: 1, Window: time.Minute})
	mr.Close()

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestRateLimiterInMemoryFallback(t *testing.T) {
	r := newLimitedRouter(NewRateLimiter(nil, nil), RateLimitRule{Name: "test", Requests: 1, Window: time.Minute})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestInMemoryRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	im := NewInMemoryRateLimiter()
	im.now = func() time.Time { return now }

	ok, _, _ := im.Allow("k", 1, time.Minute)
	assert.True(t, ok)
	ok, remaining, _ := im.Allow("k", 1, time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)

	now = now.Add(time.Minute)
	ok, _, _ = im.Allow("k", 1, time.Minute)
	assert.True(t, ok)
}

func TestTimeoutAnswers504(t *testing.T) {
	recorder := &countingRecorder{}
	r := gin.New()
	r.GET("/slow", Timeout(20*time.Millisecond, recorder), func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, 1, recorder.timeouts)
}

func TestDBPoolGuard(t *testing.T) {
	inUse := int32(9)
	r := gin.New()
	r.GET("/", DBPoolGuard(func() (int32, int32) { return inUse, 10 }, 0.9), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	inUse = 3
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSlugValidator(t *testing.T) {
	require.NoError(t, RegisterValidators())

	type body struct {
		Slug string `binding:"omitempty,slug"`
	}
	assert.NoError(t, binding.Validator.ValidateStruct(body{Slug: "shroud_fan"}))
	assert.NoError(t, binding.Validator.ValidateStruct(body{}))
	assert.Error(t, binding.Validator.ValidateStruct(body{Slug: "No Spaces!"}))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
