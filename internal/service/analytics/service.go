// Package analytics builds the streamer earnings dashboard and call history
// exports.
package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"callsubs-backend/internal/domain"
	"callsubs-backend/pkg/constants"
	apperrors "callsubs-backend/pkg/errors"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/money"
)

const (
	// DefaultDays is the window used when the client does not pick one
	DefaultDays = 30

	topCallersLimit = 10
	csvContentType  = "text/csv"
)

// Repository interface
type Repository interface {
	Totals(ctx context.Context, streamerID uuid.UUID, since time.Time, feePercent decimal.Decimal) (*domain.AnalyticsTotals, error)
	Daily(ctx context.Context, streamerID uuid.UUID, since time.Time, feePercent decimal.Decimal) ([]domain.DailyEarnings, error)
	TopCallers(ctx context.Context, streamerID uuid.UUID, limit int) ([]domain.TopCaller, error)
	History(ctx context.Context, streamerID uuid.UUID, since time.Time) ([]domain.CallHistoryRow, error)
}

// StreamerRepository interface
type StreamerRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Streamer, error)
}

// ExportStore keeps export files. A nil store makes Export return the CSV inline.
type ExportStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) error
	PresignedDownloadURL(ctx context.Context, objectName, filename string, expiry time.Duration) (string, error)
}

// Export is either a download link or the CSV itself
type Export struct {
	Filename string
	CSV      []byte
	Link     *domain.ExportResponse
}

// Service handles analytics operations
type Service struct {
	repo       Repository
	streamers  StreamerRepository
	store      ExportStore
	feePercent decimal.Decimal
	now        func() time.Time
}

// NewService creates a new analytics service
func NewService(repo Repository, streamers StreamerRepository, store ExportStore, feePercent decimal.Decimal) *Service {
	return &Service{
		repo:       repo,
		streamers:  streamers,
		store:      store,
		feePercent: feePercent,
		now:        time.Now,
	}
}

// Get returns totals, the daily earnings series and top callers for the
// last days days
func (s *Service) Get(ctx context.Context, streamerID uuid.UUID, days int) (*domain.Analytics, error) {
	days, err := normalizeDays(days)
	if err != nil {
		return nil, err
	}

	st, err := s.streamers.GetByUserID(ctx, streamerID)
	if err != nil {
		return nil, err
	}

	since := s.since(days)
	totals, err := s.repo.Totals(ctx, streamerID, since, s.feePercent)
	if err != nil {
		return nil, err
	}
	totals.Gross = money.Format(totals.GrossCents, st.Settings.Currency)
	totals.Net = money.Format(totals.NetCents, st.Settings.Currency)

	daily, err := s.repo.Daily(ctx, streamerID, since, s.feePercent)
	if err != nil {
		return nil, err
	}

	top, err := s.repo.TopCallers(ctx, streamerID, topCallersLimit)
	if err != nil {
		return nil, err
	}

	return &domain.Analytics{
		Days:       days,
		Since:      since,
		Currency:   st.Settings.Currency,
		Totals:     *totals,
		Daily:      fillDays(daily, since, days),
		TopCallers: top,
	}, nil
}

// Export renders the call history as CSV. With a store configured the file
// is uploaded and a presigned link returned instead of the body.
func (s *Service) Export(ctx context.Context, streamerID uuid.UUID, days int) (*Export, error) {
	days, err := normalizeDays(days)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.History(ctx, streamerID, s.since(days))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, apperrors.InternalError("Failed to build export")
	}

	now := s.now().UTC()
	out := &Export{Filename: fmt.Sprintf("calls-%s.csv", now.Format("2006-01-02"))}
	if s.store == nil {
		out.CSV = buf.Bytes()
		return out, nil
	}

	object := fmt.Sprintf("exports/%s/%s.csv", streamerID, uuid.NewString())
	if err := s.store.Upload(ctx, object, buf.Bytes(), csvContentType); err != nil {
		return nil, apperrors.StorageError(err)
	}
	link, err := s.store.PresignedDownloadURL(ctx, object, out.Filename, constants.PresignedURLExpiry)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}

	logger.FromContext(ctx).Info("Call history exported",
		zap.String("streamer_id", streamerID.String()),
		zap.Int("rows", len(rows)))

	out.Link = &domain.ExportResponse{
		URL:       link,
		ExpiresAt: now.Add(constants.PresignedURLExpiry),
		Rows:      len(rows),
	}
	return out, nil
}

func (s *Service) since(days int) time.Time {
	today := s.now().UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -(days - 1))
}

func normalizeDays(days int) (int, error) {
	if days == 0 {
		return DefaultDays, nil
	}
	if days < 1 || days > constants.MaxAnalyticsDays {
		return 0, apperrors.ValidationError(fmt.Sprintf("days must be between 1 and %d", constants.MaxAnalyticsDays))
	}
	return days, nil
}

// fillDays returns one point per day so charts have no gaps
func fillDays(daily []domain.DailyEarnings, since time.Time, days int) []domain.DailyEarnings {
	byDay := make(map[string]domain.DailyEarnings, len(daily))
	for _, d := range daily {
		byDay[d.Day.UTC().Format("2006-01-02")] = d
	}

	out := make([]domain.DailyEarnings, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i)
		point, ok := byDay[day.Format("2006-01-02")]
		if !ok {
			point = domain.DailyEarnings{Day: day}
		}
		out = append(out, point)
	}
	return out
}

var csvHeader = []string{
	"call_id", "viewer", "status", "price", "amount_paid", "currency",
	"duration_minutes", "started_at", "ended_at", "end_reason", "created_at",
}

// WriteCSV writes history rows with a header line. Amounts are in major
// units, times in RFC 3339 UTC.
func WriteCSV(w io.Writer, rows []domain.CallHistoryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.ID.String(),
			r.ViewerLogin,
			string(r.Status),
			money.Decimal(r.PriceCents).StringFixed(2),
			money.Decimal(r.AmountPaidCents).StringFixed(2),
			r.Currency,
			strconv.Itoa(r.DurationMinutes),
			formatTime(r.StartedAt),
			formatTime(r.EndedAt),
			r.EndReason,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
