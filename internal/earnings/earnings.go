// Package earnings is the read side of the DriverEarning ledger:
// internal/rides books the one earning row per completed ride inside
// its own completion transaction, and this package answers a driver's
// "what have I made" queries over that table.
package earnings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

// Repository queries driver_earnings.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a Repository over db.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListByDriver returns a driver's earnings in [from, to), newest
// first.
func (r *Repository) ListByDriver(ctx context.Context, driverID uuid.UUID, from, to time.Time, limit, offset int) ([]models.DriverEarning, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, driver_id, ride_id, amount, base_fare, distance_fare, time_fare,
		       service_fee, insurance_fee, platform_fee, commission_rate, commission_amount,
		       net_earning, created_at
		FROM driver_earnings
		WHERE driver_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, driverID, from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earnings []models.DriverEarning
	for rows.Next() {
		var e models.DriverEarning
		if err := rows.Scan(
			&e.ID, &e.DriverID, &e.RideID, &e.Amount, &e.BaseFare, &e.DistanceFare, &e.TimeFare,
			&e.ServiceFee, &e.InsuranceFee, &e.PlatformFee, &e.CommissionRate, &e.CommissionAmt,
			&e.NetEarning, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		earnings = append(earnings, e)
	}
	return earnings, nil
}

// Summary is a period-aggregated view over a driver's earnings.
type Summary struct {
	DriverID    uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	RideCount   int
	GrossFare   float64
	Commission  float64
	NetEarning  float64
}

// Summarize aggregates a driver's earnings over [from, to).
func (r *Repository) Summarize(ctx context.Context, driverID uuid.UUID, from, to time.Time) (*Summary, error) {
	s := &Summary{DriverID: driverID, PeriodStart: from, PeriodEnd: to}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), COALESCE(SUM(commission_amount), 0), COALESCE(SUM(net_earning), 0)
		FROM driver_earnings
		WHERE driver_id = $1 AND created_at >= $2 AND created_at < $3
	`, driverID, from, to).Scan(&s.RideCount, &s.GrossFare, &s.Commission, &s.NetEarning)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Service exposes earnings queries to the handler layer.
type Service struct {
	repo *Repository
}

// NewService builds a Service over repo.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// History returns a driver's earnings for a period, validating the
// requested window.
func (s *Service) History(ctx context.Context, driverID uuid.UUID, from, to time.Time, limit, offset int) ([]models.DriverEarning, error) {
	if to.Before(from) {
		return nil, apperr.NewValidation("period end must not precede period start")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByDriver(ctx, driverID, from, to, limit, offset)
}

// Summary returns a driver's aggregated earnings for a period.
func (s *Service) Summary(ctx context.Context, driverID uuid.UUID, from, to time.Time) (*Summary, error) {
	if to.Before(from) {
		return nil, apperr.NewValidation("period end must not precede period start")
	}
	return s.repo.Summarize(ctx, driverID, from, to)
}
