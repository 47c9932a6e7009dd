package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsubs-backend/internal/domain"
	"callsubs-backend/internal/middleware"
	redisrepo "callsubs-backend/internal/repository/redis"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/metrics"
)

const testOrigin = "http://localhost:3000"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCalls struct {
	callID   uuid.UUID
	viewerID uuid.UUID
}

func (f *fakeCalls) Authorize(ctx context.Context, userID, callID uuid.UUID) (*domain.CallView, error) {
	if callID != f.callID || userID != f.viewerID {
		return nil, apperrors.CallNotFoundError()
	}
	return &domain.CallView{ID: callID, Status: domain.CallStatusPaymentPending, Role: "viewer", ServerTime: 1}, nil
}

type fakeStreamers struct {
	streamerID uuid.UUID
}

func (f *fakeStreamers) Me(ctx context.Context, userID uuid.UUID) (*domain.StreamerResponse, error) {
	if userID != f.streamerID {
		return nil, apperrors.StreamerNotFoundError()
	}
	return &domain.StreamerResponse{UserID: userID, Slug: "shroud", PendingCount: 2}, nil
}

type fakePresence struct {
	mu      sync.Mutex
	online  int
	offline int
}

func (f *fakePresence) SetOnline(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online++
	return nil
}

func (f *fakePresence) SetOffline(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline++
	return nil
}

func (f *fakePresence) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online, f.offline
}

type fixture struct {
	server     *httptest.Server
	events     *redisrepo.CallEventRepository
	hub        *Hub
	presence   *fakePresence
	callID     uuid.UUID
	viewerID   uuid.UUID
	streamerID uuid.UUID
}

func newFixture(t *testing.T, maxConnections int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		events:     redisrepo.NewCallEventRepository(client),
		presence:   &fakePresence{},
		callID:     uuid.New(),
		viewerID:   uuid.New(),
		streamerID: uuid.New(),
	}
	f.hub = NewHub(f.events, metrics.NewMetrics("test"), []string{testOrigin}, maxConnections)
	h := NewEventsHandler(f.hub,
		&fakeCalls{callID: f.callID, viewerID: f.viewerID},
		&fakeStreamers{streamerID: f.streamerID},
		f.presence)

	r := gin.New()
	authed := r.Group("/v1", func(c *gin.Context) {
		if id, err := uuid.Parse(c.Query("as")); err == nil {
			c.Set(middleware.ContextUserID, id)
		}
		c.Next()
	})
	authed.GET("/calls/:id/events", h.CallEvents)
	authed.GET("/streamers/me/events", h.Dashboard)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) dial(t *testing.T, path string, as uuid.UUID) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path + "?as=" + as.String()
	header := http.Header{}
	header.Set("Origin", testOrigin)
	return websocket.DefaultDialer.Dial(url, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestCallEventsForwardsStatusChanges(t *testing.T) {
	f := newFixture(t, 10)

	conn, _, err := f.dial(t, "/v1/calls/"+f.callID.String()+"/events", f.viewerID)
	require.NoError(t, err)
	defer conn.Close()

	snapshot := readMessage(t, conn)
	assert.Equal(t, MessageTypeSnapshot, snapshot.Type)
	require.NotNil(t, snapshot.Call)
	assert.Equal(t, domain.CallStatusPaymentPending, snapshot.Call.Status)

	require.NoError(t, f.events.Publish(context.Background(), &domain.CallEvent{
		CallID:     f.callID,
		StreamerID: f.streamerID,
		From:       domain.CallStatusPaymentPending,
		Status:     domain.CallStatusActive,
		ServerTime: 42,
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeStatus, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, domain.CallStatusActive, msg.Event.Status)
	assert.Equal(t, int64(42), msg.ServerTime)
}

func TestCallEventsRejectsNonParticipant(t *testing.T) {
	f := newFixture(t, 10)

	_, resp, err := f.dial(t, "/v1/calls/"+f.callID.String()+"/events", uuid.New())

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCallEventsRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, 10)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/calls/" + f.callID.String() + "/events?as=" + f.viewerID.String()
	header := http.Header{}
	header.Set("Origin", "https://evil.example")

	_, resp, err := websocket.DefaultDialer.Dial(url, header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCallEventsCapacity(t *testing.T) {
	f := newFixture(t, 1)

	first, _, err := f.dial(t, "/v1/calls/"+f.callID.String()+"/events", f.viewerID)
	require.NoError(t, err)
	defer first.Close()
	readMessage(t, first)

	_, resp, err := f.dial(t, "/v1/calls/"+f.callID.String()+"/events", f.viewerID)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDashboardTracksPresence(t *testing.T) {
	f := newFixture(t, 10)

	conn, _, err := f.dial(t, "/v1/streamers/me/events", f.streamerID)
	require.NoError(t, err)

	snapshot := readMessage(t, conn)
	require.NotNil(t, snapshot.Streamer)
	assert.Equal(t, 2, snapshot.Streamer.PendingCount)

	// Events of any call of this streamer reach the dashboard
	require.NoError(t, f.events.Publish(context.Background(), &domain.CallEvent{
		CallID:     uuid.New(),
		StreamerID: f.streamerID,
		Status:     domain.CallStatusPending,
	}))
	msg := readMessage(t, conn)
	assert.Equal(t, domain.CallStatusPending, msg.Event.Status)

	online, _ := f.presence.counts()
	assert.Equal(t, 1, online)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		_, offline := f.presence.counts()
		return offline == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.hub.Connections(redisrepo.StreamerChannel(f.streamerID)) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDashboardClearsPresenceWhenHubDropsIt(t *testing.T) {
	f := newFixture(t, 10)
	channel := redisrepo.StreamerChannel(f.streamerID)

	conn, _, err := f.dial(t, "/v1/streamers/me/events", f.streamerID)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)

	// The Redis subscription died, so the hub disconnects the dashboard itself
	f.hub.mu.Lock()
	state := f.hub.channels[channel]
	f.hub.mu.Unlock()
	require.NotNil(t, state)
	f.hub.dropChannel(channel, state)

	assert.Eventually(t, func() bool {
		_, offline := f.presence.counts()
		return offline == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, f.hub.Connections(channel))
}

func TestDashboardRequiresStreamer(t *testing.T) {
	f := newFixture(t, 10)

	_, resp, err := f.dial(t, "/v1/streamers/me/events", f.viewerID)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
