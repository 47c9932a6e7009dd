package streamer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/middleware"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/pagination"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.RegisterValidators(); err != nil {
		panic(err)
	}
}

type MockService struct {
	mock.Mock
}

func (m *MockService) profile(args mock.Arguments) (*domain.StreamerResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StreamerResponse), args.Error(1)
}

func (m *MockService) Become(ctx context.Context, userID uuid.UUID, slug string) (*domain.StreamerResponse, error) {
	return m.profile(m.Called(ctx, userID, slug))
}

func (m *MockService) Me(ctx context.Context, userID uuid.UUID) (*domain.StreamerResponse, error) {
	return m.profile(m.Called(ctx, userID))
}

func (m *MockService) UpdateSettings(ctx context.Context, userID uuid.UUID, req *domain.UpdateSettingsRequest) (*domain.StreamerResponse, error) {
	return m.profile(m.Called(ctx, userID, req))
}

func (m *MockService) SetAvailability(ctx context.Context, userID uuid.UUID, accepting bool) (*domain.StreamerResponse, error) {
	return m.profile(m.Called(ctx, userID, accepting))
}

func (m *MockService) PublicProfile(ctx context.Context, slug string) (*domain.PublicProfile, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PublicProfile), args.Error(1)
}

func (m *MockService) ListAccepting(ctx context.Context, params pagination.Params) (*pagination.Page[*domain.PublicProfile], error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[*domain.PublicProfile]), args.Error(1)
}

func (m *MockService) StartOnboarding(ctx context.Context, userID uuid.UUID) (*domain.OnboardingResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OnboardingResponse), args.Error(1)
}

func (m *MockService) StripeStatus(ctx context.Context, userID uuid.UUID) (*domain.StripeStatusResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StripeStatusResponse), args.Error(1)
}

func (m *MockService) BlockCaller(ctx context.Context, streamerID, viewerID uuid.UUID) error {
	return m.Called(ctx, streamerID, viewerID).Error(0)
}

func (m *MockService) UnblockCaller(ctx context.Context, streamerID, viewerID uuid.UUID) error {
	return m.Called(ctx, streamerID, viewerID).Error(0)
}

func newRouter(svc *MockService, userID uuid.UUID) *gin.Engine {
	h := NewHandler(svc)
	r := gin.New()
	r.GET("/v1/streamers", h.List)

	me := r.Group("/v1/streamers", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Next()
	})
	me.POST("", h.Become)
	me.GET("/me", h.Me)
	me.PUT("/me/settings", h.UpdateSettings)
	me.POST("/me/availability", h.SetAvailability)
	me.POST("/me/stripe/onboard", h.StartOnboarding)
	me.GET("/me/stripe/status", h.StripeStatus)
	me.POST("/me/callers/:viewer_id/block", h.BlockCaller)
	me.POST("/me/callers/:viewer_id/unblock", h.UnblockCaller)

	r.GET("/v1/streamers/:slug", h.PublicProfile)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBecome(t *testing.T) {
	userID := uuid.New()
	svc := new(MockService)
	svc.On("Become", mock.Anything, userID, "").Return(&domain.StreamerResponse{UserID: userID, Slug: "shroud"}, nil).Once()
	svc.On("Become", mock.Anything, userID, "custom-name").Return(nil, apperrors.SlugTakenError()).Once()
	r := newRouter(svc, userID)

	w := serve(r, http.MethodPost, "/v1/streamers", "")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"slug":"shroud"`)

	w = serve(r, http.MethodPost, "/v1/streamers", `{"slug":"custom-name"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "SLUG_TAKEN")

	w = serve(r, http.MethodPost, "/v1/streamers", `{"slug":"Not A Slug!"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestUpdateSettingsValidatesBounds(t *testing.T) {
	userID := uuid.New()
	svc := new(MockService)
	svc.On("UpdateSettings", mock.Anything, userID, mock.MatchedBy(func(req *domain.UpdateSettingsRequest) bool {
		return req.PriceCents != nil && *req.PriceCents == 1500 && req.DurationMinutes == nil
	})).Return(&domain.StreamerResponse{Price: "$15.00"}, nil)
	r := newRouter(svc, userID)

	w := serve(r, http.MethodPut, "/v1/streamers/me/settings", `{"price_cents":1500}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodPut, "/v1/streamers/me/settings", `{"price_cents":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodPut, "/v1/streamers/me/settings", `{"duration_minutes":90}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "UpdateSettings", 1)
}

func TestSetAvailabilityRequiresFlag(t *testing.T) {
	userID := uuid.New()
	svc := new(MockService)
	svc.On("SetAvailability", mock.Anything, userID, false).Return(&domain.StreamerResponse{}, nil)
	r := newRouter(svc, userID)

	w := serve(r, http.MethodPost, "/v1/streamers/me/availability", `{"accepting_calls":false}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodPost, "/v1/streamers/me/availability", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestPublicProfile(t *testing.T) {
	svc := new(MockService)
	svc.On("PublicProfile", mock.Anything, "shroud").Return(&domain.PublicProfile{Slug: "shroud", Online: true}, nil)
	svc.On("PublicProfile", mock.Anything, "ghost").Return(nil, apperrors.StreamerNotFoundError())
	r := newRouter(svc, uuid.New())

	w := serve(r, http.MethodGet, "/v1/streamers/shroud", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"online":true`)

	w = serve(r, http.MethodGet, "/v1/streamers/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListParsesPagination(t *testing.T) {
	svc := new(MockService)
	svc.On("ListAccepting", mock.Anything, pagination.Params{Page: 2, Limit: 10, Offset: 10}).
		Return(pagination.NewPage[*domain.PublicProfile](pagination.Params{Page: 2, Limit: 10}, 0, nil), nil)
	r := newRouter(svc, uuid.New())

	w := serve(r, http.MethodGet, "/v1/streamers?page=2&limit=10", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)

	w = serve(r, http.MethodGet, "/v1/streamers?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBlockCaller(t *testing.T) {
	userID, viewerID := uuid.New(), uuid.New()
	svc := new(MockService)
	svc.On("BlockCaller", mock.Anything, userID, viewerID).Return(nil)
	svc.On("UnblockCaller", mock.Anything, userID, viewerID).Return(nil)
	r := newRouter(svc, userID)

	w := serve(r, http.MethodPost, "/v1/streamers/me/callers/"+viewerID.String()+"/block", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"blocked":true`)

	w = serve(r, http.MethodPost, "/v1/streamers/me/callers/"+viewerID.String()+"/unblock", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"blocked":false`)

	w = serve(r, http.MethodPost, "/v1/streamers/me/callers/not-a-uuid/block", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestStripeOnboarding(t *testing.T) {
	userID := uuid.New()
	svc := new(MockService)
	svc.On("StartOnboarding", mock.Anything, userID).Return(&domain.OnboardingResponse{AccountID: "acct_1", URL: "https://connect.stripe.test/1"}, nil)
	svc.On("StripeStatus", mock.Anything, userID).Return(&domain.StripeStatusResponse{AccountID: "acct_1", ChargesEnabled: true, Onboarded: true}, nil)
	r := newRouter(svc, userID)

	w := serve(r, http.MethodPost, "/v1/streamers/me/stripe/onboard", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "connect.stripe.test")

	w = serve(r, http.MethodGet, "/v1/streamers/me/stripe/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"onboarded":true`)
}
