package twitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestAuthCodeURL(t *testing.T) {
	provider := NewOAuthProvider("client-1", "secret", "http://localhost:8080/v1/auth/twitch/callback")

	raw := provider.AuthCodeURL("state-123")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "id.twitch.tv", u.Host)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "client-1", u.Query().Get("client_id"))
	assert.Equal(t, "user:read:email", u.Query().Get("scope"))
}

func TestExchangeFetchesHelixUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "good-code", r.PostForm.Get("code"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
		case "/helix/users":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "client-1", r.Header.Get("Client-Id"))
			_, _ = w.Write([]byte(`{"data":[{"id":"141981764","login":"twitchdev","display_name":"TwitchDev","email":"dev@example.com","profile_image_url":"https://img/x.png","created_at":"2016-12-14T20:32:28Z"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	provider := NewOAuthProvider("client-1", "secret", "http://localhost/cb")
	provider.config.Endpoint = oauth2.Endpoint{
		AuthURL:   server.URL + "/authorize",
		TokenURL:  server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	provider.helixURL = server.URL + "/helix"

	user, err := provider.Exchange(context.Background(), "good-code")

	require.NoError(t, err)
	assert.Equal(t, "141981764", user.ID)
	assert.Equal(t, "twitchdev", user.Login)
	assert.Equal(t, "dev@example.com", user.Email)
	assert.Equal(t, 2016, user.CreatedAt.Year())
}

func TestExchangeHelixError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := NewOAuthProvider("client-1", "secret", "http://localhost/cb")
	provider.config.Endpoint = oauth2.Endpoint{TokenURL: server.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	provider.helixURL = server.URL

	_, err := provider.Exchange(context.Background(), "code")

	assert.ErrorContains(t, err, "status 401")
}

func TestMockProvider(t *testing.T) {
	provider := &MockProvider{RedirectURL: "http://localhost:8080/cb", AccountAge: 48 * time.Hour}

	assert.Contains(t, provider.AuthCodeURL("s1"), "state=s1")

	user, err := provider.Exchange(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Login)
	assert.Equal(t, "mock-alice", user.ID)
	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), user.CreatedAt, time.Minute)

	_, err = provider.Exchange(context.Background(), "")
	assert.Error(t, err)
}
