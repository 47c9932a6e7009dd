// Package video provisions audio rooms and meeting tokens for active calls.
package video

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Room is a provisioned call room
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TokenInput describes a meeting token for one participant
type TokenInput struct {
	RoomName  string
	UserName  string
	UserID    uuid.UUID
	IsOwner   bool
	ExpiresAt time.Time
}

// Client is the room provider
type Client interface {
	CreateRoom(ctx context.Context, name string, expiresAt time.Time) (*Room, error)
	CreateMeetingToken(ctx context.Context, input *TokenInput) (string, error)
	DeleteRoom(ctx context.Context, name string) error
}

// RoomName derives a stable room name for a call request
func RoomName(callID uuid.UUID) string {
	return "call-" + strings.ReplaceAll(callID.String(), "-", "")
}

// MockClient keeps rooms in memory
type MockClient struct {
	baseURL string

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewMockClient creates a mock client whose room URLs live under baseURL
func NewMockClient(baseURL string) *MockClient {
	return &MockClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		rooms:   make(map[string]*Room),
	}
}

// CreateRoom records a room
func (m *MockClient) CreateRoom(ctx context.Context, name string, expiresAt time.Time) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := &Room{Name: name, URL: fmt.Sprintf("%s/mock-room/%s", m.baseURL, name)}
	m.rooms[name] = room
	return room, nil
}

// CreateMeetingToken returns an opaque token for an existing room
func (m *MockClient) CreateMeetingToken(ctx context.Context, input *TokenInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[input.RoomName]; !ok {
		return "", fmt.Errorf("room %s not found", input.RoomName)
	}
	return fmt.Sprintf("mock-token.%s.%s.%d", input.RoomName, input.UserID, input.ExpiresAt.Unix()), nil
}

// DeleteRoom forgets a room; unknown rooms are ignored
func (m *MockClient) DeleteRoom(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, name)
	return nil
}

// HasRoom reports whether a room currently exists
func (m *MockClient) HasRoom(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[name]
	return ok
}
