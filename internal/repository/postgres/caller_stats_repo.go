package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callsubs-backend/internal/domain"
	pkgdb "callsubs-backend/pkg/database"
)

// CallerStatsRepository keeps per (streamer, viewer) aggregates and the blocklist
type CallerStatsRepository struct {
	db pkgdb.DBTX
}

// NewCallerStatsRepository creates a new CallerStatsRepository
func NewCallerStatsRepository(db pkgdb.DBTX) *CallerStatsRepository {
	return &CallerStatsRepository{db: db}
}

// Get returns the stats for a pair. A pair with no history yields zero stats.
func (r *CallerStatsRepository) Get(ctx context.Context, streamerID, viewerID uuid.UUID) (*domain.CallerStats, error) {
	query := `
		SELECT streamer_id, viewer_id, total_calls, total_spent_cents, total_seconds, last_call_at, blocked
		FROM caller_stats
		WHERE streamer_id = $1 AND viewer_id = $2
	`

	stats := &domain.CallerStats{}
	err := r.db.QueryRow(ctx, query, streamerID, viewerID).Scan(
		&stats.StreamerID,
		&stats.ViewerID,
		&stats.TotalCalls,
		&stats.TotalSpentCents,
		&stats.TotalSeconds,
		&stats.LastCallAt,
		&stats.Blocked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.CallerStats{StreamerID: streamerID, ViewerID: viewerID}, nil
		}
		return nil, fmt.Errorf("failed to get caller stats: %w", err)
	}

	return stats, nil
}

// RecordCall adds a completed call to the pair's totals
func (r *CallerStatsRepository) RecordCall(ctx context.Context, streamerID, viewerID uuid.UUID, spentCents, seconds int64, at time.Time) error {
	query := `
		INSERT INTO caller_stats (streamer_id, viewer_id, total_calls, total_spent_cents, total_seconds, last_call_at)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (streamer_id, viewer_id) DO UPDATE SET
			total_calls = caller_stats.total_calls + 1,
			total_spent_cents = caller_stats.total_spent_cents + EXCLUDED.total_spent_cents,
			total_seconds = caller_stats.total_seconds + EXCLUDED.total_seconds,
			last_call_at = GREATEST(caller_stats.last_call_at, EXCLUDED.last_call_at)
	`

	if _, err := r.db.Exec(ctx, query, streamerID, viewerID, spentCents, seconds, at); err != nil {
		return fmt.Errorf("failed to record caller stats: %w", err)
	}
	return nil
}

// SetBlocked blocks or unblocks a viewer for a streamer
func (r *CallerStatsRepository) SetBlocked(ctx context.Context, streamerID, viewerID uuid.UUID, blocked bool) error {
	query := `
		INSERT INTO caller_stats (streamer_id, viewer_id, blocked)
		VALUES ($1, $2, $3)
		ON CONFLICT (streamer_id, viewer_id) DO UPDATE SET blocked = EXCLUDED.blocked
	`

	if _, err := r.db.Exec(ctx, query, streamerID, viewerID, blocked); err != nil {
		return fmt.Errorf("failed to update blocked flag: %w", err)
	}
	return nil
}
