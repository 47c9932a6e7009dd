package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callsubs-backend/pkg/constants"
	"callsubs-backend/pkg/resilience"
)

// DailyClient talks to the Daily.co REST API
type DailyClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewDailyClient creates a client. breaker may be nil to call the API directly.
func NewDailyClient(baseURL, apiKey string, breaker *resilience.Breaker) *DailyClient {
	return &DailyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: constants.VendorTimeout},
		breaker:    breaker,
	}
}

type roomProperties struct {
	Exp             int64 `json:"exp"`
	EjectAtRoomExp  bool  `json:"eject_at_room_exp"`
	StartVideoOff   bool  `json:"start_video_off"`
	EnableChat      bool  `json:"enable_chat"`
	EnableScreen    bool  `json:"enable_screenshare"`
	MaxParticipants int   `json:"max_participants"`
}

type createRoomRequest struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties roomProperties `json:"properties"`
}

type tokenProperties struct {
	RoomName      string `json:"room_name"`
	UserName      string `json:"user_name,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	IsOwner       bool   `json:"is_owner"`
	Exp           int64  `json:"exp"`
	StartVideoOff bool   `json:"start_video_off"`
}

type createTokenRequest struct {
	Properties tokenProperties `json:"properties"`
}

// CreateRoom creates a private, audio-first room for two participants that
// ejects everyone when it expires
func (d *DailyClient) CreateRoom(ctx context.Context, name string, expiresAt time.Time) (*Room, error) {
	body := createRoomRequest{
		Name:    name,
		Privacy: "private",
		Properties: roomProperties{
			Exp:             expiresAt.Unix(),
			EjectAtRoomExp:  true,
			StartVideoOff:   true,
			MaxParticipants: 2,
		},
	}

	var room Room
	err := d.do(ctx, "create_room", http.MethodPost, "/rooms", body, &room)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest && strings.Contains(apiErr.Info, "already exists") {
		// A retried webhook may create the same room twice
		err = d.do(ctx, "get_room", http.MethodGet, "/rooms/"+url.PathEscape(name), nil, &room)
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateMeetingToken issues a token that lets one participant join the room
func (d *DailyClient) CreateMeetingToken(ctx context.Context, input *TokenInput) (string, error) {
	body := createTokenRequest{
		Properties: tokenProperties{
			RoomName:      input.RoomName,
			UserName:      input.UserName,
			UserID:        input.UserID.String(),
			IsOwner:       input.IsOwner,
			Exp:           input.ExpiresAt.Unix(),
			StartVideoOff: true,
		},
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := d.do(ctx, "create_token", http.MethodPost, "/meeting-tokens", body, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("daily returned an empty meeting token")
	}
	return out.Token, nil
}

// DeleteRoom removes a room. A room that is already gone is not an error.
func (d *DailyClient) DeleteRoom(ctx context.Context, name string) error {
	err := d.do(ctx, "delete_room", http.MethodDelete, "/rooms/"+url.PathEscape(name), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// APIError is a non-2xx response from Daily
type APIError struct {
	StatusCode int
	Type       string `json:"error"`
	Info       string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daily: status %d: %s %s", e.StatusCode, e.Type, e.Info)
}

func (d *DailyClient) do(ctx context.Context, operation, method, path string, in, out interface{}) error {
	call := func(ctx context.Context) error {
		return d.send(ctx, method, path, in, out)
	}
	if d.breaker == nil {
		return call(ctx)
	}
	return d.breaker.Execute(ctx, operation, call)
}

func (d *DailyClient) send(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("failed to encode daily request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("failed to build daily request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daily request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read daily response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		apiErr.StatusCode = resp.StatusCode
		// Rate limits and server errors are worth retrying, the rest are not
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apiErr
		}
		return resilience.Permanent(apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resilience.Permanent(fmt.Errorf("failed to decode daily response: %w", err))
	}
	return nil
}
