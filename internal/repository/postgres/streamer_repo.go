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

const streamerSelect = `
	SELECT s.user_id, s.slug, s.bio, s.price_cents, s.currency, s.duration_minutes, s.accepting_calls,
		s.min_account_age_days, s.cooldown_minutes, s.max_pending_requests,
		s.stripe_account_id, s.stripe_onboarded, s.created_at, s.updated_at,
		u.login, u.display_name, u.avatar_url
	FROM streamers s
	JOIN users u ON u.user_id = s.user_id`

// StreamerRepository handles streamer profiles in Postgres
type StreamerRepository struct {
	db pkgdb.DBTX
}

// NewStreamerRepository creates a new StreamerRepository
func NewStreamerRepository(db pkgdb.DBTX) *StreamerRepository {
	return &StreamerRepository{db: db}
}

func scanStreamer(row pgx.Row) (*domain.Streamer, error) {
	s := &domain.Streamer{}
	err := row.Scan(
		&s.UserID,
		&s.Slug,
		&s.Bio,
		&s.Settings.PriceCents,
		&s.Settings.Currency,
		&s.Settings.DurationMinutes,
		&s.Settings.AcceptingCalls,
		&s.Settings.MinAccountAgeDays,
		&s.Settings.CooldownMinutes,
		&s.Settings.MaxPendingRequests,
		&s.StripeAccountID,
		&s.StripeOnboarded,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.Login,
		&s.DisplayName,
		&s.AvatarURL,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts the streamer profile and promotes the user in one transaction
func (r *StreamerRepository) Create(ctx context.Context, s *domain.Streamer) error {
	insert := `
		INSERT INTO streamers (user_id, slug, bio, price_cents, currency, duration_minutes, accepting_calls,
			min_account_age_days, cooldown_minutes, max_pending_requests)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	promote := `UPDATE users SET role = 'streamer', updated_at = NOW() WHERE user_id = $1 AND role = 'viewer'`

	err := pkgdb.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insert,
			s.UserID,
			s.Slug,
			s.Bio,
			s.Settings.PriceCents,
			s.Settings.Currency,
			s.Settings.DurationMinutes,
			s.Settings.AcceptingCalls,
			s.Settings.MinAccountAgeDays,
			s.Settings.CooldownMinutes,
			s.Settings.MaxPendingRequests,
		).Scan(&s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, promote, s.UserID)
		return err
	})
	if err != nil {
		switch {
		case pkgdb.IsUniqueViolation(err, "streamers_pkey"):
			return apperrors.ConflictError("You are already a streamer")
		case pkgdb.IsUniqueViolation(err, "streamers_slug_key"):
			return apperrors.SlugTakenError()
		}
		return fmt.Errorf("failed to create streamer: %w", err)
	}

	return nil
}

// GetByUserID retrieves the streamer profile owned by a user
func (r *StreamerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Streamer, error) {
	s, err := scanStreamer(r.db.QueryRow(ctx, streamerSelect+` WHERE s.user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.StreamerNotFoundError()
		}
		return nil, fmt.Errorf("failed to get streamer: %w", err)
	}
	return s, nil
}

// GetBySlug retrieves a streamer by public slug
func (r *StreamerRepository) GetBySlug(ctx context.Context, slug string) (*domain.Streamer, error) {
	s, err := scanStreamer(r.db.QueryRow(ctx, streamerSelect+` WHERE s.slug = $1`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.StreamerNotFoundError()
		}
		return nil, fmt.Errorf("failed to get streamer by slug: %w", err)
	}
	return s, nil
}

// UpdateSettings stores the bio and call terms
func (r *StreamerRepository) UpdateSettings(ctx context.Context, userID uuid.UUID, bio string, settings domain.StreamerSettings) error {
	query := `
		UPDATE streamers
		SET bio = $2, price_cents = $3, duration_minutes = $4, min_account_age_days = $5,
			cooldown_minutes = $6, max_pending_requests = $7, updated_at = NOW()
		WHERE user_id = $1
	`

	cmdTag, err := r.db.Exec(ctx, query,
		userID,
		bio,
		settings.PriceCents,
		settings.DurationMinutes,
		settings.MinAccountAgeDays,
		settings.CooldownMinutes,
		settings.MaxPendingRequests,
	)
	if err != nil {
		return fmt.Errorf("failed to update streamer settings: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.StreamerNotFoundError()
	}

	return nil
}

// SetAccepting toggles whether new call requests are accepted
func (r *StreamerRepository) SetAccepting(ctx context.Context, userID uuid.UUID, accepting bool) error {
	query := `UPDATE streamers SET accepting_calls = $2, updated_at = NOW() WHERE user_id = $1`

	cmdTag, err := r.db.Exec(ctx, query, userID, accepting)
	if err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.StreamerNotFoundError()
	}
	return nil
}

// SetStripeAccount records the Connect account created for the streamer
func (r *StreamerRepository) SetStripeAccount(ctx context.Context, userID uuid.UUID, accountID string) error {
	query := `UPDATE streamers SET stripe_account_id = $2, updated_at = NOW() WHERE user_id = $1`

	if _, err := r.db.Exec(ctx, query, userID, accountID); err != nil {
		return fmt.Errorf("failed to store stripe account: %w", err)
	}
	return nil
}

// SetStripeOnboarded records whether the Connect account can take charges
func (r *StreamerRepository) SetStripeOnboarded(ctx context.Context, userID uuid.UUID, onboarded bool) error {
	query := `UPDATE streamers SET stripe_onboarded = $2, updated_at = NOW() WHERE user_id = $1`

	if _, err := r.db.Exec(ctx, query, userID, onboarded); err != nil {
		return fmt.Errorf("failed to update stripe status: %w", err)
	}
	return nil
}

// ListAccepting returns streamers currently accepting calls, newest first
func (r *StreamerRepository) ListAccepting(ctx context.Context, limit, offset int) ([]*domain.Streamer, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM streamers WHERE accepting_calls`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count streamers: %w", err)
	}

	rows, err := r.db.Query(ctx, streamerSelect+`
		WHERE s.accepting_calls
		ORDER BY s.created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list streamers: %w", err)
	}
	defer rows.Close()

	var streamers []*domain.Streamer
	for rows.Next() {
		s, err := scanStreamer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan streamer: %w", err)
		}
		streamers = append(streamers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate streamers: %w", err)
	}

	return streamers, total, nil
}
