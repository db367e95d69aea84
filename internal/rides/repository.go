// Package rides is the Ride Lifecycle Coordinator: it owns the ride
// state machine, the race-free driver-assignment step, OTP-gated ride
// start, and atomic completion (status + earnings + driver totals in
// one transaction).
package rides

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/ride-hailing/internal/models"
)

// Repository handles ride persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a Repository over db.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new ride in PENDING status.
func (r *Repository) Create(ctx context.Context, ride *models.Ride) error {
	query := `
		INSERT INTO rides (
			id, rider_id, passenger_name, vehicle_type, status, pickup_lat, pickup_lng,
			drop_lat, drop_lng, pickup_address, drop_address,
			distance_km, estimated_duration_min,
			base_fare, distance_fare, time_fare, service_fee, insurance_fee, platform_fee, total_fare,
			payment_method, payment_status, otp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		ride.ID, ride.RiderID, ride.PassengerName, ride.VehicleType, ride.Status,
		ride.PickupLat, ride.PickupLng, ride.DropLat, ride.DropLng,
		ride.PickupAddress, ride.DropAddress,
		ride.DistanceKm, ride.EstimatedDuration,
		ride.BaseFare, ride.DistanceFare, ride.TimeFare, ride.ServiceFee, ride.InsuranceFee, ride.PlatformFee, ride.TotalFare,
		ride.PaymentMethod, ride.PaymentStatus, ride.OTP,
	).Scan(&ride.CreatedAt, &ride.UpdatedAt)
}

const rideColumns = `
	id, rider_id, passenger_name, driver_id, vehicle_type, status, pickup_lat, pickup_lng,
	drop_lat, drop_lng, pickup_address, drop_address,
	distance_km, estimated_duration_min,
	base_fare, distance_fare, time_fare, service_fee, insurance_fee, platform_fee, total_fare,
	payment_method, payment_status, otp,
	passenger_rating, driver_rating, passenger_feedback, driver_feedback,
	rated_by_passenger_at, rated_by_driver_at,
	cancelled_by, cancellation_reason, assigned_at, started_at,
	completed_at, cancelled_at, created_at, updated_at
`

func scanRide(row pgx.Row) (*models.Ride, error) {
	ride := &models.Ride{}
	err := row.Scan(
		&ride.ID, &ride.RiderID, &ride.PassengerName, &ride.DriverID, &ride.VehicleType, &ride.Status,
		&ride.PickupLat, &ride.PickupLng, &ride.DropLat, &ride.DropLng,
		&ride.PickupAddress, &ride.DropAddress,
		&ride.DistanceKm, &ride.EstimatedDuration,
		&ride.BaseFare, &ride.DistanceFare, &ride.TimeFare, &ride.ServiceFee, &ride.InsuranceFee, &ride.PlatformFee, &ride.TotalFare,
		&ride.PaymentMethod, &ride.PaymentStatus, &ride.OTP,
		&ride.PassengerRating, &ride.DriverRating, &ride.PassengerFeedback, &ride.DriverFeedback,
		&ride.RatedByPassengerAt, &ride.RatedByDriverAt,
		&ride.CancelledBy, &ride.CancellationReason, &ride.AssignedAt, &ride.StartedAt,
		&ride.CompletedAt, &ride.CancelledAt,
		&ride.CreatedAt, &ride.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ride, nil
}

// GetByID fetches a ride by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	row := r.db.QueryRow(ctx, "SELECT "+rideColumns+" FROM rides WHERE id = $1", id)
	return scanRide(row)
}

// GetByIDTx is GetByID run against an open transaction, used inside
// the completeRide/assignDriver transactions to read-then-check state
// without a second round trip to the pool.
func (r *Repository) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Ride, error) {
	row := tx.QueryRow(ctx, "SELECT "+rideColumns+" FROM rides WHERE id = $1 FOR UPDATE", id)
	return scanRide(row)
}

// AtomicAssignDriver conditionally transitions a ride from PENDING to
// DRIVER_ASSIGNED, claiming it for driverID. Returns false without
// error if another driver already claimed it — the caller is expected
// to move on to the next candidate rather than treat this as a fault.
func (r *Repository) AtomicAssignDriver(ctx context.Context, tx pgx.Tx, rideID, driverID uuid.UUID) (bool, error) {
	now := time.Now()
	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1, driver_id = $2, assigned_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5 AND driver_id IS NULL
	`, models.RideStatusDriverAssigned, driverID, now, rideID, models.RideStatusPending)
	if err != nil {
		return false, fmt.Errorf("assign driver: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus moves a ride to a new status, stamping the matching
// timestamp column. Callers must have already validated the
// transition via models.CanTransition.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RideStatus) error {
	now := time.Now()
	var query string
	switch status {
	case models.RideStatusStarted:
		query = `UPDATE rides SET status=$1, started_at=$2, updated_at=$2 WHERE id=$3`
	default:
		query = `UPDATE rides SET status=$1, updated_at=$2 WHERE id=$3`
	}
	args := []interface{}{status, now, id}
	_, err := r.db.Exec(ctx, query, args...)
	return err
}

// CompleteTx marks a ride RIDE_COMPLETED and its payment PAID inside
// tx.
func (r *Repository) CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	now := time.Now()
	_, err := tx.Exec(ctx, `
		UPDATE rides SET status=$1, payment_status=$2, completed_at=$3, updated_at=$3 WHERE id=$4
	`, models.RideStatusCompleted, models.PaymentStatusPaid, now, id)
	return err
}

// CancelTx marks a ride CANCELLED inside tx, recording who cancelled
// and why.
func (r *Repository) CancelTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, by models.CancelledBy, reason string) error {
	now := time.Now()
	_, err := tx.Exec(ctx, `
		UPDATE rides SET status=$1, cancelled_at=$2, cancelled_by=$3, cancellation_reason=$4, updated_at=$2
		WHERE id=$5
	`, models.RideStatusCancelled, now, by, reason, id)
	return err
}

// SetRatingTx records one side's rating/feedback for a completed ride
// inside tx. The conditional WHERE clause re-checks that the side has
// not already rated, so a concurrent duplicate loses the race at the
// row level, not just at the service layer's read-then-check; zero
// rows affected means the rating was already taken.
func (r *Repository) SetRatingTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, role models.RatingRole, rating int, feedback string) (bool, error) {
	now := time.Now()
	var query string
	if role == models.RatingRolePassenger {
		query = `UPDATE rides SET passenger_rating=$1, passenger_feedback=$2, rated_by_passenger_at=$3, updated_at=$3 WHERE id=$4 AND passenger_rating IS NULL`
	} else {
		query = `UPDATE rides SET driver_rating=$1, driver_feedback=$2, rated_by_driver_at=$3, updated_at=$3 WHERE id=$4 AND driver_rating IS NULL`
	}
	tag, err := tx.Exec(ctx, query, rating, feedback, now, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertEarningTx books a DriverEarning row inside tx. A unique
// constraint on ride_id makes this idempotent under transaction retry
// — callers should treat database.IsUniqueViolation(err) as success.
func (r *Repository) InsertEarningTx(ctx context.Context, tx pgx.Tx, e *models.DriverEarning) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO driver_earnings (
			id, driver_id, ride_id, amount, base_fare, distance_fare, time_fare,
			service_fee, insurance_fee, platform_fee, commission_rate, commission_amount,
			net_earning, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.DriverID, e.RideID, e.Amount, e.BaseFare, e.DistanceFare, e.TimeFare,
		e.ServiceFee, e.InsuranceFee, e.PlatformFee, e.CommissionRate, e.CommissionAmt,
		e.NetEarning, e.CreatedAt)
	return err
}

// BumpDriverTotalsTx increments a driver's total-rides and
// total-earnings counters inside tx, atomically with the completion.
func (r *Repository) BumpDriverTotalsTx(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, netEarning float64) error {
	_, err := tx.Exec(ctx, `
		UPDATE drivers SET total_rides = total_rides + 1, total_earnings = total_earnings + $1, updated_at = NOW()
		WHERE id = $2
	`, netEarning, driverID)
	return err
}

// ApplyRatingTx folds a new rating into a driver's running average
// using the standard incremental-mean recurrence:
// newAvg = oldAvg + (rating - oldAvg) / (oldCount + 1).
// ratingCount and totalRides are independent counters (Open Question
// decision 4) — this only ever touches rating/ratingCount.
func (r *Repository) ApplyRatingTx(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, rating int) error {
	_, err := tx.Exec(ctx, `
		UPDATE drivers
		SET rating = ROUND((rating + ((($1)::float8 - rating) / (rating_count + 1)))::numeric, 1),
		    rating_count = rating_count + 1,
		    updated_at = NOW()
		WHERE id = $2
	`, rating, driverID)
	return err
}

// GetCommissionRateTx reads the active commission rate from
// platform_config inside tx, falling back to defaultRate when the key
// is absent or the lookup itself errors — a misconfigured or
// unreachable config row must never block a ride's completion.
func (r *Repository) GetCommissionRateTx(ctx context.Context, tx pgx.Tx, defaultRate float64) float64 {
	var raw string
	err := tx.QueryRow(ctx, `SELECT value FROM platform_config WHERE key = 'commission_rate'`).Scan(&raw)
	if err != nil {
		return defaultRate
	}
	var rate float64
	if _, scanErr := fmt.Sscanf(raw, "%f", &rate); scanErr != nil || rate <= 0 || rate >= 1 {
		return defaultRate
	}
	return rate
}

// ListPendingByVehicleType returns every PENDING ride of vehicleType,
// for the available-rides-for-a-driver query; the service layer
// applies the distance filter since that needs h3index's haversine,
// not anything SQL-native here.
func (r *Repository) ListPendingByVehicleType(ctx context.Context, vehicleType models.VehicleType) ([]*models.Ride, error) {
	rows, err := r.db.Query(ctx, "SELECT "+rideColumns+" FROM rides WHERE status = $1 AND vehicle_type = $2", models.RideStatusPending, vehicleType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*models.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// ListByUser pages through every ride the user is a party to, as rider
// or as driver, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Ride, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+rideColumns+" FROM rides WHERE rider_id = $1 OR driver_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*models.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// Pool returns the underlying pool; exposed so the service can drive
// database.RetryableTransaction directly.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}
