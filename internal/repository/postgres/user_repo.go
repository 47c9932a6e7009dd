package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callsubs-backend/internal/domain"
	pkgdb "callsubs-backend/pkg/database"
	apperrors "callsubs-backend/pkg/errors"
)

const userColumns = `user_id, twitch_id, login, display_name, email, avatar_url, twitch_created_at, role, created_at, updated_at`

// UserRepository handles user data operations in Postgres
type UserRepository struct {
	db pkgdb.DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db pkgdb.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.UserID,
		&user.TwitchID,
		&user.Login,
		&user.DisplayName,
		&user.Email,
		&user.AvatarURL,
		&user.TwitchCreatedAt,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Upsert creates the user on first sign-in and refreshes the Twitch profile
// fields on every later one. The role is never changed here.
func (r *UserRepository) Upsert(ctx context.Context, in *domain.UserUpsert) (*domain.User, error) {
	query := `
		INSERT INTO users (user_id, twitch_id, login, display_name, email, avatar_url, twitch_created_at, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'viewer')
		ON CONFLICT (twitch_id) DO UPDATE SET
			login = EXCLUDED.login,
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query,
		uuid.New(),
		in.TwitchID,
		in.Login,
		in.DisplayName,
		in.Email,
		in.AvatarURL,
		in.TwitchCreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.UserNotFoundError()
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}
