// Package twitch signs users in with Twitch and reads their profile from Helix.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	twitchoauth "golang.org/x/oauth2/twitch"
)

// DefaultHelixURL is the Helix API root
const DefaultHelixURL = "https://api.twitch.tv/helix"

// User is the Twitch profile of a signed-in user
type User struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	Email           string    `json:"email"`
	ProfileImageURL string    `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// Provider is the sign-in identity provider
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*User, error)
}

// OAuthProvider implements Provider against Twitch
type OAuthProvider struct {
	config   *oauth2.Config
	helixURL string
}

// NewOAuthProvider creates a provider for the registered Twitch application
func NewOAuthProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"user:read:email"},
			Endpoint:     twitchoauth.Endpoint,
		},
		helixURL: DefaultHelixURL,
	}
}

// AuthCodeURL returns the Twitch consent page URL
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades the authorization code for a token and loads the user
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*User, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange twitch code: %w", err)
	}
	return p.fetchUser(ctx, p.config.Client(ctx, token))
}

func (p *OAuthProvider) fetchUser(ctx context.Context, client *http.Client) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.helixURL, "/")+"/users", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build helix request: %w", err)
	}
	req.Header.Set("Client-Id", p.config.ClientID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("helix request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read helix response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix users returned status %d", resp.StatusCode)
	}

	var out struct {
		Data []User `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode helix users: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("helix returned no user for token")
	}
	return &out.Data[0], nil
}

// MockProvider signs in a fixed user without leaving the app. The code is
// used as the login, so several local users can be simulated.
type MockProvider struct {
	RedirectURL string
	// AccountAge is subtracted from now to produce CreatedAt
	AccountAge time.Duration
}

// AuthCodeURL points straight back at the callback
func (m *MockProvider) AuthCodeURL(state string) string {
	return fmt.Sprintf("%s?code=mockviewer&state=%s", m.RedirectURL, state)
}

// Exchange returns a deterministic user for the code
func (m *MockProvider) Exchange(ctx context.Context, code string) (*User, error) {
	if code == "" {
		return nil, fmt.Errorf("empty code")
	}
	login := strings.ToLower(code)
	age := m.AccountAge
	if age == 0 {
		age = 365 * 24 * time.Hour
	}
	return &User{
		ID:          "mock-" + login,
		Login:       login,
		DisplayName: code,
		Email:       login + "@example.com",
		CreatedAt:   time.Now().Add(-age).UTC(),
	}, nil
}
