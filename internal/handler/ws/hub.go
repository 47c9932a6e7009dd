package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	redisrepo "callsubs-backend/internal/repository/redis"
	"callsubs-backend/pkg/constants"
	"callsubs-backend/pkg/logger"
)

// Message types sent to clients
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeStatus   = "status"
)

const (
	defaultMaxConnections = 1000
	subscribeWait         = 5 * time.Second
)

// Message is the frame written to WebSocket clients
type Message struct {
	Type       string                   `json:"type"`
	Call       *domain.CallView         `json:"call,omitempty"`
	Streamer   *domain.StreamerResponse `json:"streamer,omitempty"`
	Event      *domain.CallEvent        `json:"event,omitempty"`
	ServerTime int64                    `json:"server_time"`
}

// EventSubscriber opens pub/sub subscriptions for call events
type EventSubscriber interface {
	Subscribe(ctx context.Context, channel string) (*redis.PubSub, error)
}

// ConnectionMetrics tracks open sockets
type ConnectionMetrics interface {
	IncWebSocketConnections()
	DecWebSocketConnections()
}

// channelState is one Redis subscription shared by every local client
// listening on the same channel
type channelState struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
	ready   chan struct{}
}

// Hub fans call events from Redis out to WebSocket clients
type Hub struct {
	subscriber EventSubscriber
	metrics    ConnectionMetrics
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	channels map[string]*channelState

	// Concurrency limit
	maxConnections int
	semaphore      chan struct{}
}

// Client is one WebSocket connection
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	channel string

	// heartbeat runs on every ping tick, used to refresh presence
	heartbeat func()
}

// NewHub creates a hub accepting connections from the given origins
func NewHub(subscriber EventSubscriber, metrics ConnectionMetrics, allowedOrigins []string, maxConnections int) *Hub {
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}

	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}

	return &Hub{
		subscriber: subscriber,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Reject empty origins - require explicit origin for security
					return false
				}
				return origins["*"] || origins[origin]
			},
		},
		channels:       make(map[string]*channelState),
		maxConnections: maxConnections,
		semaphore:      make(chan struct{}, maxConnections),
	}
}

// acquire reserves a connection slot
func (h *Hub) acquire() bool {
	select {
	case h.semaphore <- struct{}{}:
		return true
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		return false
	}
}

func (h *Hub) release() {
	<-h.semaphore
}

// join registers a client on its channel and returns once the Redis
// subscription is live, so nothing published after the snapshot is missed
func (h *Hub) join(client *Client) {
	h.mu.Lock()
	state, ok := h.channels[client.channel]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		state = &channelState{
			clients: make(map[*Client]bool),
			cancel:  cancel,
			ready:   make(chan struct{}),
		}
		h.channels[client.channel] = state
		go h.subscribe(ctx, client.channel, state)
	}
	state.clients[client] = true
	ready := state.ready
	h.mu.Unlock()

	select {
	case <-ready:
	case <-time.After(subscribeWait):
		logger.Warn("Timed out waiting for call event subscription",
			zap.String("channel", client.channel))
	}
}

// leave removes a client if broadcast or dropChannel has not already done so
// and reports how many clients its channel still has
func (h *Hub) leave(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
	if state, ok := h.channels[client.channel]; ok {
		return len(state.clients)
	}
	return 0
}

func (h *Hub) removeLocked(client *Client) {
	state, ok := h.channels[client.channel]
	if !ok || !state.clients[client] {
		return
	}

	delete(state.clients, client)
	close(client.send)

	if len(state.clients) == 0 {
		state.cancel()
		delete(h.channels, client.channel)
	}
}

// subscribe forwards Redis messages for one channel until its last client leaves
func (h *Hub) subscribe(ctx context.Context, channel string, state *channelState) {
	pubsub, err := h.subscriber.Subscribe(ctx, channel)
	close(state.ready)
	if err != nil {
		logger.Error("Failed to subscribe to call events",
			zap.String("channel", channel),
			zap.Error(err))
		h.dropChannel(channel, state)
		return
	}
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				h.dropChannel(channel, state)
				return
			}
			event, err := redisrepo.DecodeEvent(msg.Payload)
			if err != nil {
				logger.Warn("Failed to decode call event",
					zap.String("channel", channel),
					zap.Error(err))
				continue
			}
			h.broadcast(channel, &Message{
				Type:       MessageTypeStatus,
				Event:      event,
				ServerTime: event.ServerTime,
			})
		}
	}
}

// dropChannel disconnects every client of a channel whose subscription died.
// Clients reconnect or fall back to polling.
func (h *Hub) dropChannel(channel string, state *channelState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] != state {
		return
	}
	for client := range state.clients {
		h.removeLocked(client)
	}
}

func (h *Hub) broadcast(channel string, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.channels[channel]
	if !ok {
		return
	}
	for client := range state.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer
			h.removeLocked(client)
		}
	}
}

// deliver queues a frame for one client if it is still registered
func (h *Hub) deliver(client *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.channels[client.channel]
	if !ok || !state.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// Connections returns the number of local clients on a channel
func (h *Hub) Connections(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state, ok := h.channels[channel]; ok {
		return len(state.clients)
	}
	return 0
}

// serve runs a connected client until either side closes. The snapshot is
// written after the subscription is live.
func (h *Hub) serve(client *Client, snapshot *Message, onLeave func(remaining int)) {
	h.metrics.IncWebSocketConnections()
	h.join(client)

	if data, err := json.Marshal(snapshot); err == nil {
		h.deliver(client, data)
	}

	go client.writePump()
	client.readPump()

	remaining := h.leave(client)
	h.metrics.DecWebSocketConnections()
	if onLeave != nil {
		onLeave(remaining)
	}
}

// readPump drains the connection so pongs and close frames are processed.
// Clients never send anything meaningful.
func (c *Client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("channel", c.channel),
					zap.Error(err))
			}
			return
		}
	}
}

// writePump writes messages and pings until the send channel closes
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if c.heartbeat != nil {
				c.heartbeat()
			}
		}
	}
}
