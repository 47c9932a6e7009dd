package domain

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user can hold
const (
	RoleViewer   = "viewer"
	RoleStreamer = "streamer"
	RoleAdmin    = "admin"
)

// User represents a signed-in Twitch account
// Maps to the users table
type User struct {
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	TwitchID        string    `json:"-" db:"twitch_id"`
	Login           string    `json:"login" db:"login"`
	DisplayName     string    `json:"display_name" db:"display_name"`
	Email           string    `json:"-" db:"email"` // Never expose in JSON
	AvatarURL       string    `json:"avatar_url,omitempty" db:"avatar_url"`
	TwitchCreatedAt time.Time `json:"twitch_created_at" db:"twitch_created_at"`
	Role            string    `json:"role" db:"role"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// UserUpsert carries the Twitch profile fields refreshed on every sign-in
type UserUpsert struct {
	TwitchID        string
	Login           string
	DisplayName     string
	Email           string
	AvatarURL       string
	TwitchCreatedAt time.Time
}

// IsStreamer reports whether the user has a streamer profile
func (u *User) IsStreamer() bool {
	return u.Role == RoleStreamer || u.Role == RoleAdmin
}

// AccountAge returns how long ago the Twitch account was created
func (u *User) AccountAge(now time.Time) time.Duration {
	return now.Sub(u.TwitchCreatedAt)
}

// UserResponse is the safe user representation returned to clients
type UserResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToResponse converts User to UserResponse (removes sensitive data)
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		UserID:      u.UserID,
		Login:       u.Login,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

// AuthResponse is returned by the refresh endpoint
type AuthResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
}

// RefreshTokenRequest is the body of POST /v1/auth/refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}
