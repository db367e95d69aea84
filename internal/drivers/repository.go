// Package drivers owns the Driver entity's persistent record: profile
// fields written during onboarding (an external collaborator), and the
// online/active toggle plus stop-riding penalty ledger this core is
// responsible for. Location and online-set membership used for
// dispatch-time reads live in internal/driverstore — this package is
// the durable-truth side, not a second copy of the fast path.
package drivers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/ride-hailing/internal/models"
)

// Repository persists Driver and DriverPenalty records.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a Repository over db.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const driverColumns = `
	id, user_id, is_online, is_active, is_verified, current_lat, current_lng, h3_index,
	vehicle_type, vehicle_number, vehicle_model, rating, rating_count, total_rides,
	total_earnings, last_active_at, created_at, updated_at
`

func scanDriver(row pgx.Row) (*models.Driver, error) {
	d := &models.Driver{}
	err := row.Scan(
		&d.ID, &d.UserID, &d.IsOnline, &d.IsActive, &d.IsVerified, &d.CurrentLat, &d.CurrentLng, &d.H3Index,
		&d.VehicleType, &d.VehicleNumber, &d.VehicleModel, &d.Rating, &d.RatingCount, &d.TotalRides,
		&d.TotalEarnings, &d.LastActiveAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetByID fetches a driver by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	row := r.db.QueryRow(ctx, "SELECT "+driverColumns+" FROM drivers WHERE id = $1", id)
	return scanDriver(row)
}

// GetByIDTx is GetByID run against an open transaction — used by
// internal/rides' AssignDriver to read a candidate driver's
// online/active flags in the same transaction as the conditional
// ride claim.
func (r *Repository) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Driver, error) {
	row := tx.QueryRow(ctx, "SELECT "+driverColumns+" FROM drivers WHERE id = $1 FOR UPDATE", id)
	return scanDriver(row)
}

// ListAll returns every driver row, for hydrating the Driver State
// Store at startup.
func (r *Repository) ListAll(ctx context.Context) ([]*models.Driver, error) {
	rows, err := r.db.Query(ctx, "SELECT "+driverColumns+" FROM drivers")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateLocation persists a driver's last-known coordinates and H3
// cell. Called best-effort and asynchronously from the high-frequency
// location-ping path; internal/driverstore is the store dispatch
// actually reads from.
func (r *Repository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, h3Cell string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE drivers SET current_lat=$1, current_lng=$2, h3_index=$3, last_active_at=$4, updated_at=$4
		WHERE id=$5
	`, lat, lng, h3Cell, time.Now(), id)
	return err
}

// SetOnlineStatus persists a driver's online/active flags.
func (r *Repository) SetOnlineStatus(ctx context.Context, id uuid.UUID, online, active bool) error {
	now := time.Now()
	_, err := r.db.Exec(ctx, `
		UPDATE drivers SET is_online=$1, is_active=$2, last_active_at=$3, updated_at=$3
		WHERE id=$4
	`, online, active, now, id)
	return err
}

// CreatePenalty inserts a new PENDING penalty for driverID.
func (r *Repository) CreatePenalty(ctx context.Context, p *models.DriverPenalty) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO driver_penalties (id, driver_id, reason, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.DriverID, p.Reason, p.Amount, p.Status, p.CreatedAt)
	return err
}

// HasPendingPenalty reports whether driverID has any PENDING penalty —
// the invariant that blocks a driver from transitioning back online.
func (r *Repository) HasPendingPenalty(ctx context.Context, driverID uuid.UUID) (bool, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM driver_penalties WHERE driver_id = $1 AND status = $2
	`, driverID, models.PenaltyPending).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPenalties returns every penalty levied against driverID, newest
// first.
func (r *Repository) ListPenalties(ctx context.Context, driverID uuid.UUID) ([]models.DriverPenalty, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, driver_id, reason, amount, status, created_at, paid_at
		FROM driver_penalties WHERE driver_id = $1 ORDER BY created_at DESC
	`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DriverPenalty
	for rows.Next() {
		var p models.DriverPenalty
		if err := rows.Scan(&p.ID, &p.DriverID, &p.Reason, &p.Amount, &p.Status, &p.CreatedAt, &p.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPenaltyPaid settles a penalty, lifting the online-transition
// block. Penalty settlement itself is an external payment flow; this
// only records the outcome.
func (r *Repository) MarkPenaltyPaid(ctx context.Context, penaltyID uuid.UUID) error {
	now := time.Now()
	_, err := r.db.Exec(ctx, `
		UPDATE driver_penalties SET status=$1, paid_at=$2 WHERE id=$3
	`, models.PenaltyPaid, now, penaltyID)
	return err
}
