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
	apperrors "callsubs-backend/pkg/errors"
)

// ErrStaleStatus is returned by Transition when the request was not in any of
// the expected statuses, either because the move is invalid or because a
// concurrent transition won.
var ErrStaleStatus = errors.New("call request status changed")

const callColumns = `id, streamer_id, viewer_id, status, message, price_cents, currency, duration_minutes,
	checkout_session_id, checkout_url, payment_intent_id, amount_paid_cents, room_name, room_url,
	payment_expires_at, started_at, ends_at, ended_at, end_reason, created_at, updated_at`

// CallRepository handles call request persistence
type CallRepository struct {
	db pkgdb.DBTX
}

// NewCallRepository creates a new CallRepository
func NewCallRepository(db pkgdb.DBTX) *CallRepository {
	return &CallRepository{db: db}
}

func callFields(c *domain.CallRequest) []any {
	return []any{
		&c.ID,
		&c.StreamerID,
		&c.ViewerID,
		&c.Status,
		&c.Message,
		&c.PriceCents,
		&c.Currency,
		&c.DurationMinutes,
		&c.CheckoutSessionID,
		&c.CheckoutURL,
		&c.PaymentIntentID,
		&c.AmountPaidCents,
		&c.RoomName,
		&c.RoomURL,
		&c.PaymentExpiresAt,
		&c.StartedAt,
		&c.EndsAt,
		&c.EndedAt,
		&c.EndReason,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}

func scanCall(row pgx.Row) (*domain.CallRequest, error) {
	c := &domain.CallRequest{}
	if err := row.Scan(callFields(c)...); err != nil {
		return nil, err
	}
	return c, nil
}

func collectCalls(rows pgx.Rows) ([]*domain.CallRequest, error) {
	defer rows.Close()

	var calls []*domain.CallRequest
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call request: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call requests: %w", err)
	}
	return calls, nil
}

// Create inserts a new pending request. A second open request for the same
// pair is rejected by the uq_call_requests_open index.
func (r *CallRepository) Create(ctx context.Context, c *domain.CallRequest) error {
	query := `
		INSERT INTO call_requests (id, streamer_id, viewer_id, status, message, price_cents, currency, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		c.ID,
		c.StreamerID,
		c.ViewerID,
		string(c.Status),
		c.Message,
		c.PriceCents,
		c.Currency,
		c.DurationMinutes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if pkgdb.IsUniqueViolation(err, "uq_call_requests_open") {
			return apperrors.ConflictError("You already have an open request with this streamer")
		}
		return fmt.Errorf("failed to create call request: %w", err)
	}

	return nil
}

// GetByID retrieves a call request
func (r *CallRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CallRequest, error) {
	c, err := scanCall(r.db.QueryRow(ctx, `SELECT `+callColumns+` FROM call_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to get call request: %w", err)
	}
	return c, nil
}

// GetByCheckoutSession finds the request a Checkout session was created for
func (r *CallRepository) GetByCheckoutSession(ctx context.Context, sessionID string) (*domain.CallRequest, error) {
	c, err := scanCall(r.db.QueryRow(ctx,
		`SELECT `+callColumns+` FROM call_requests WHERE checkout_session_id = $1`, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to get call request by session: %w", err)
	}
	return c, nil
}

// Transition moves a request to status `to` only if it is currently in one of
// `from`, setting the non-zero fields of upd in the same statement. The
// returned request carries the status the locked row held in PreviousStatus.
// It returns ErrStaleStatus when no row matched.
func (r *CallRepository) Transition(ctx context.Context, id uuid.UUID, from []domain.CallStatus, to domain.CallStatus, upd domain.TransitionUpdate) (*domain.CallRequest, error) {
	query := `
		WITH prev AS (
			SELECT id AS prev_id, status AS prev_status FROM call_requests
			WHERE id = $1 AND status = ANY($2)
			FOR UPDATE
		)
		UPDATE call_requests SET
			status = $3,
			checkout_session_id = COALESCE(NULLIF($4::text, ''), checkout_session_id),
			checkout_url = COALESCE(NULLIF($5::text, ''), checkout_url),
			payment_intent_id = COALESCE(NULLIF($6::text, ''), payment_intent_id),
			amount_paid_cents = CASE WHEN $7::bigint > 0 THEN $7::bigint ELSE amount_paid_cents END,
			room_name = COALESCE(NULLIF($8::text, ''), room_name),
			room_url = COALESCE(NULLIF($9::text, ''), room_url),
			payment_expires_at = COALESCE($10::timestamptz, payment_expires_at),
			started_at = COALESCE($11::timestamptz, started_at),
			ends_at = COALESCE($12::timestamptz, ends_at),
			ended_at = COALESCE($13::timestamptz, ended_at),
			end_reason = COALESCE(NULLIF($14::text, ''), end_reason),
			updated_at = NOW()
		FROM prev
		WHERE id = prev_id AND status = ANY($2)
		RETURNING ` + callColumns + `, prev_status`

	c := &domain.CallRequest{}
	err := r.db.QueryRow(ctx, query,
		id,
		domain.StatusStrings(from),
		string(to),
		upd.CheckoutSessionID,
		upd.CheckoutURL,
		upd.PaymentIntentID,
		upd.AmountPaidCents,
		upd.RoomName,
		upd.RoomURL,
		upd.PaymentExpiresAt,
		upd.StartedAt,
		upd.EndsAt,
		upd.EndedAt,
		upd.EndReason,
	).Scan(append(callFields(c), &c.PreviousStatus)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleStatus
		}
		return nil, fmt.Errorf("failed to transition call request: %w", err)
	}

	return c, nil
}

// ListByStreamer returns a streamer's requests, newest first
func (r *CallRepository) ListByStreamer(ctx context.Context, streamerID uuid.UUID, filter domain.CallListFilter) ([]*domain.CallRequest, int, error) {
	return r.listBy(ctx, "streamer_id", streamerID, filter)
}

// ListByViewer returns a viewer's requests, newest first
func (r *CallRepository) ListByViewer(ctx context.Context, viewerID uuid.UUID, filter domain.CallListFilter) ([]*domain.CallRequest, int, error) {
	return r.listBy(ctx, "viewer_id", viewerID, filter)
}

// column is always a literal from ListByStreamer or ListByViewer
func (r *CallRepository) listBy(ctx context.Context, column string, id uuid.UUID, filter domain.CallListFilter) ([]*domain.CallRequest, int, error) {
	var statuses []string
	if len(filter.Statuses) > 0 {
		statuses = domain.StatusStrings(filter.Statuses)
	}

	where := ` WHERE ` + column + ` = $1 AND ($2::text[] IS NULL OR status = ANY($2))`

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM call_requests`+where, id, statuses).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count call requests: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+callColumns+` FROM call_requests`+where+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, id, statuses, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list call requests: %w", err)
	}

	calls, err := collectCalls(rows)
	if err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}

// CountPending returns how many requests wait in a streamer's queue
func (r *CallRepository) CountPending(ctx context.Context, streamerID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM call_requests WHERE streamer_id = $1 AND status = 'pending'`, streamerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending requests: %w", err)
	}
	return count, nil
}

// HasOpenRequest reports whether the viewer already has an open request with the streamer
func (r *CallRepository) HasOpenRequest(ctx context.Context, streamerID, viewerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM call_requests
			WHERE streamer_id = $1 AND viewer_id = $2 AND status = ANY($3)
		)`, streamerID, viewerID, domain.StatusStrings(domain.OpenStatuses)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check open requests: %w", err)
	}
	return exists, nil
}

// CountActive returns the number of calls in progress
func (r *CallRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM call_requests WHERE status = 'active'`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active calls: %w", err)
	}
	return count, nil
}

// ListStalePending returns pending requests created before cutoff
func (r *CallRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CallRequest, error) {
	return r.listDue(ctx, `status = 'pending' AND created_at < $1`, cutoff, limit)
}

// ListExpiredPayments returns payment_pending requests whose window closed before now
func (r *CallRepository) ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*domain.CallRequest, error) {
	return r.listDue(ctx, `status = 'payment_pending' AND payment_expires_at < $1`, now, limit)
}

// ListOverdueActive returns active calls that should have ended before cutoff
func (r *CallRepository) ListOverdueActive(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CallRequest, error) {
	return r.listDue(ctx, `status = 'active' AND ends_at < $1`, cutoff, limit)
}

func (r *CallRepository) listDue(ctx context.Context, where string, at time.Time, limit int) ([]*domain.CallRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+callColumns+` FROM call_requests WHERE `+where+`
		ORDER BY created_at
		LIMIT $2`, at, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due call requests: %w", err)
	}
	return collectCalls(rows)
}
