package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"callsubs-backend/internal/domain"
	pkgdb "callsubs-backend/pkg/database"
)

// netExpr is amount minus the platform fee, rounded half-up per call the same
// way money.PlatformFeeCents does it. $3 is the fee percent.
const netExpr = `(amount_paid_cents - LEAST(amount_paid_cents, ROUND(amount_paid_cents * $3::numeric / 100)::bigint))`

// AnalyticsRepository runs the read-only earnings projections
type AnalyticsRepository struct {
	db pkgdb.DBTX
}

// NewAnalyticsRepository creates a new AnalyticsRepository
func NewAnalyticsRepository(db pkgdb.DBTX) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Totals sums completed, paid calls that ended after since
func (r *AnalyticsRepository) Totals(ctx context.Context, streamerID uuid.UUID, since time.Time, feePercent decimal.Decimal) (*domain.AnalyticsTotals, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(amount_paid_cents), 0),
			COALESCE(SUM(` + netExpr + `), 0),
			COALESCE(SUM(EXTRACT(EPOCH FROM (ended_at - started_at)))::bigint / 60, 0),
			COUNT(DISTINCT viewer_id)
		FROM call_requests
		WHERE streamer_id = $1 AND status = 'completed' AND ended_at >= $2
	`

	totals := &domain.AnalyticsTotals{}
	err := r.db.QueryRow(ctx, query, streamerID, since, feePercent.String()).Scan(
		&totals.CompletedCalls,
		&totals.GrossCents,
		&totals.NetCents,
		&totals.TotalMinutes,
		&totals.UniqueCallers,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics totals: %w", err)
	}

	return totals, nil
}

// Daily groups completed calls by UTC day
func (r *AnalyticsRepository) Daily(ctx context.Context, streamerID uuid.UUID, since time.Time, feePercent decimal.Decimal) ([]domain.DailyEarnings, error) {
	query := `
		SELECT date_trunc('day', ended_at AT TIME ZONE 'UTC') AS day,
			COUNT(*),
			COALESCE(SUM(amount_paid_cents), 0),
			COALESCE(SUM(` + netExpr + `), 0)
		FROM call_requests
		WHERE streamer_id = $1 AND status = 'completed' AND ended_at >= $2
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.Query(ctx, query, streamerID, since, feePercent.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load daily earnings: %w", err)
	}
	defer rows.Close()

	days := []domain.DailyEarnings{}
	for rows.Next() {
		var d domain.DailyEarnings
		if err := rows.Scan(&d.Day, &d.Calls, &d.GrossCents, &d.NetCents); err != nil {
			return nil, fmt.Errorf("failed to scan daily earnings: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily earnings: %w", err)
	}

	return days, nil
}

// TopCallers ranks a streamer's viewers by lifetime spend
func (r *AnalyticsRepository) TopCallers(ctx context.Context, streamerID uuid.UUID, limit int) ([]domain.TopCaller, error) {
	query := `
		SELECT cs.viewer_id, u.login, u.display_name, cs.total_calls, cs.total_spent_cents,
			cs.total_seconds / 60, cs.last_call_at
		FROM caller_stats cs
		JOIN users u ON u.user_id = cs.viewer_id
		WHERE cs.streamer_id = $1 AND cs.total_calls > 0
		ORDER BY cs.total_spent_cents DESC, cs.last_call_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, streamerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top callers: %w", err)
	}
	defer rows.Close()

	callers := []domain.TopCaller{}
	for rows.Next() {
		var tc domain.TopCaller
		if err := rows.Scan(&tc.ViewerID, &tc.Login, &tc.DisplayName, &tc.TotalCalls,
			&tc.TotalSpentCents, &tc.TotalMinutes, &tc.LastCallAt); err != nil {
			return nil, fmt.Errorf("failed to scan top caller: %w", err)
		}
		callers = append(callers, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top callers: %w", err)
	}

	return callers, nil
}

// History returns every request a streamer received since the given time, for export
func (r *AnalyticsRepository) History(ctx context.Context, streamerID uuid.UUID, since time.Time) ([]domain.CallHistoryRow, error) {
	query := `
		SELECT c.id, u.login, c.status, c.price_cents, c.amount_paid_cents, c.currency, c.duration_minutes,
			c.started_at, c.ended_at, c.end_reason, c.created_at
		FROM call_requests c
		JOIN users u ON u.user_id = c.viewer_id
		WHERE c.streamer_id = $1 AND c.created_at >= $2
		ORDER BY c.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, streamerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load call history: %w", err)
	}
	defer rows.Close()

	history := []domain.CallHistoryRow{}
	for rows.Next() {
		var h domain.CallHistoryRow
		if err := rows.Scan(&h.ID, &h.ViewerLogin, &h.Status, &h.PriceCents, &h.AmountPaidCents, &h.Currency,
			&h.DurationMinutes, &h.StartedAt, &h.EndedAt, &h.EndReason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call history: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call history: %w", err)
	}

	return history, nil
}
