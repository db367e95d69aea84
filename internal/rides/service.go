package rides

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/eventbus"
	"github.com/richxcame/ride-hailing/internal/h3index"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/apperr"
	"github.com/richxcame/ride-hailing/internal/platform/database"
	"github.com/richxcame/ride-hailing/internal/platform/logger"
	"github.com/richxcame/ride-hailing/internal/pricing"
)

// AvailableRide is the slimmed-down projection an on-duty driver sees
// when browsing nearby PENDING rides — never includes the OTP.
type AvailableRide struct {
	RideID             uuid.UUID          `json:"ride_id"`
	VehicleType        models.VehicleType `json:"vehicle_type"`
	PickupLat          float64            `json:"pickup_lat"`
	PickupLng          float64            `json:"pickup_lng"`
	PickupAddress      string             `json:"pickup_address,omitempty"`
	DropAddress        string             `json:"drop_address,omitempty"`
	DistanceKm         float64            `json:"distance_km"`
	TotalFare          float64            `json:"total_fare"`
	OTPRequiredAtStart bool               `json:"otp_required_at_start"`
}

// Publisher is the narrow event-bus surface the ride coordinator
// needs — publishing is fire-and-forget from the caller's point of
// view.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// DriverChecker is the narrow read AssignDriver needs before claiming
// a ride for a driver: the candidate must be online and active. It is
// read inside the same transaction as the conditional claim so the
// check and the write observe one snapshot.
type DriverChecker interface {
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Driver, error)
}

// Service implements the ride lifecycle: creation, driver assignment,
// confirmation, arrival, OTP-gated start, atomic completion, and
// cancellation.
type Service struct {
	repo    *Repository
	pricing *pricing.Engine
	bus     Publisher
	drivers DriverChecker
}

// NewService builds a Service.
func NewService(repo *Repository, pricingEngine *pricing.Engine, bus Publisher, drivers DriverChecker) *Service {
	return &Service{repo: repo, pricing: pricingEngine, bus: bus, drivers: drivers}
}

// CreateRideRequest carries every field a caller supplies when opening
// a new ride; coordinates and addresses are free-form on the request
// but the fare, OTP, and status are always computed here, never
// accepted from the caller.
type CreateRideRequest struct {
	RiderID       uuid.UUID
	PassengerName string
	VehicleType   models.VehicleType
	PickupLat     float64
	PickupLng     float64
	DropLat       float64
	DropLng       float64
	PickupAddress string
	DropAddress   string
	PaymentMethod models.PaymentMethod
}

// CreateRide validates coordinates, locks in a fare quote, generates
// an OTP, and persists a new PENDING ride. Fare is never recomputed
// after this point.
func (s *Service) CreateRide(ctx context.Context, req CreateRideRequest) (*models.Ride, error) {
	if !validCoordinate(req.PickupLat, req.PickupLng) || !validCoordinate(req.DropLat, req.DropLng) {
		return nil, apperr.NewBadCoordinate("pickup/drop coordinates out of range")
	}

	fare := s.pricing.Calculate(req.VehicleType, req.PickupLat, req.PickupLng, req.DropLat, req.DropLng)
	otp, err := generateOTP()
	if err != nil {
		return nil, apperr.NewInternal("failed to generate otp", err)
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = models.PaymentMethodCash
	}

	ride := &models.Ride{
		ID:                uuid.New(),
		RiderID:           req.RiderID,
		PassengerName:     req.PassengerName,
		VehicleType:       req.VehicleType,
		Status:            models.RideStatusPending,
		PickupLat:         req.PickupLat,
		PickupLng:         req.PickupLng,
		DropLat:           req.DropLat,
		DropLng:           req.DropLng,
		PickupAddress:     req.PickupAddress,
		DropAddress:       req.DropAddress,
		DistanceKm:        fare.DistanceKm,
		EstimatedDuration: fare.EstimatedDuration,
		BaseFare:          fare.BaseFare,
		DistanceFare:      fare.DistanceFare,
		TimeFare:          fare.TimeFare,
		ServiceFee:        fare.ServiceFee,
		InsuranceFee:      fare.InsuranceFee,
		PlatformFee:       fare.PlatformFee,
		TotalFare:         fare.Total,
		PaymentMethod:     paymentMethod,
		PaymentStatus:     models.PaymentStatusPending,
		OTP:               otp,
	}

	if err := s.repo.Create(ctx, ride); err != nil {
		return nil, apperr.NewInternal("failed to create ride", err)
	}

	s.publishAsync(ctx, eventbus.SubjectRideCreated, ride)
	return ride, nil
}

// AssignDriver is the race-free claim step the dispatcher calls once
// per candidate driver, in order, stopping at the first success. It
// runs inside a retryable serializable transaction because a
// serialization failure here means two dispatch goroutines collided
// on the same ride — not that the assignment itself is invalid — and
// is safe to simply retry. The driver is read and asserted
// online+active inside the same transaction before the conditional
// claim is attempted, so an offline or deactivated driver id can
// never win a race it was never eligible to enter.
func (s *Service) AssignDriver(ctx context.Context, rideID, driverID uuid.UUID) (bool, error) {
	var claimed bool
	err := database.RetryableTransaction(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		driver, err := s.drivers.GetByIDTx(ctx, tx, driverID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NewNotFound("driver not found")
			}
			return err
		}
		if !driver.IsOnline || !driver.IsActive {
			return apperr.NewForbidden("driver must be online and active to accept a ride")
		}

		ok, err := s.repo.AtomicAssignDriver(ctx, tx, rideID, driverID)
		if err != nil {
			return err
		}
		claimed = ok
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return false, err
		}
		return false, apperr.NewInternal("failed to assign driver", err)
	}

	if claimed {
		s.publishAsync(ctx, eventbus.SubjectRideDriverAssigned, map[string]interface{}{"ride_id": rideID, "driver_id": driverID})
	}
	return claimed, nil
}

// ConfirmAssignment transitions DRIVER_ASSIGNED -> CONFIRMED once the
// driver has acknowledged the offer in-app. Only the assigned driver
// may confirm.
func (s *Service) ConfirmAssignment(ctx context.Context, rideID, driverID uuid.UUID) error {
	if err := s.requireAssignedDriver(ctx, rideID, driverID); err != nil {
		return err
	}
	return s.transition(ctx, rideID, models.RideStatusConfirmed)
}

// GetByID fetches a ride by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	return s.repo.GetByID(ctx, id)
}

// DriverArrived transitions CONFIRMED -> DRIVER_ARRIVED. Only the
// assigned driver may report arrival.
func (s *Service) DriverArrived(ctx context.Context, rideID, driverID uuid.UUID) error {
	if err := s.requireAssignedDriver(ctx, rideID, driverID); err != nil {
		return err
	}
	return s.transition(ctx, rideID, models.RideStatusDriverArrived)
}

// StartRide validates the rider-supplied OTP in constant time and
// transitions DRIVER_ARRIVED -> RIDE_STARTED. OTPs are never logged.
// Only the assigned driver may start the ride.
func (s *Service) StartRide(ctx context.Context, rideID, driverID uuid.UUID, otp string) error {
	ride, err := s.repo.GetByID(ctx, rideID)
	if err != nil {
		return apperr.NewNotFound("ride not found")
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return apperr.NewForbidden("only the assigned driver may start this ride")
	}
	if !models.CanTransition(ride.Status, models.RideStatusStarted) {
		return apperr.NewInvalidTransition(fmt.Sprintf("cannot start ride in status %s", ride.Status))
	}
	if subtle.ConstantTimeCompare([]byte(ride.OTP), []byte(otp)) != 1 {
		return apperr.NewInvalidOTP()
	}

	if err := s.repo.UpdateStatus(ctx, rideID, models.RideStatusStarted); err != nil {
		return apperr.NewInternal("failed to start ride", err)
	}
	s.publishAsync(ctx, eventbus.SubjectRideStarted, map[string]interface{}{"ride_id": rideID})
	return nil
}

// requireAssignedDriver fetches ride and checks driverID is the one
// assigned to it, returning NewForbidden otherwise.
func (s *Service) requireAssignedDriver(ctx context.Context, rideID, driverID uuid.UUID) error {
	ride, err := s.repo.GetByID(ctx, rideID)
	if err != nil {
		return apperr.NewNotFound("ride not found")
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return apperr.NewForbidden("only the assigned driver may perform this action")
	}
	return nil
}

// CompleteRide atomically transitions RIDE_STARTED -> RIDE_COMPLETED,
// books the driver's earning, and bumps the driver's totals, all in
// one transaction. Repeating the call is an idempotent success: an
// already-completed ride short-circuits without touching the earning
// or the totals, and a unique-constraint violation on the earning
// insert (from a retried transaction) is likewise swallowed. Only the
// assigned driver may complete the ride.
func (s *Service) CompleteRide(ctx context.Context, rideID, driverID uuid.UUID) error {
	var alreadyCompleted bool
	err := database.RetryableTransaction(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		ride, err := s.repo.GetByIDTx(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if ride.DriverID == nil || *ride.DriverID != driverID {
			return apperr.NewForbidden("only the assigned driver may complete this ride")
		}
		if ride.Status == models.RideStatusCompleted {
			alreadyCompleted = true
			logger.InfoContext(ctx, "ride already completed, treating repeat completion as idempotent",
				zap.String("ride_id", rideID.String()))
			return nil
		}
		if !models.CanTransition(ride.Status, models.RideStatusCompleted) {
			return apperr.NewInvalidTransition(fmt.Sprintf("cannot complete ride in status %s", ride.Status))
		}

		if err := s.repo.CompleteTx(ctx, tx, rideID); err != nil {
			return err
		}

		commissionRate := s.repo.GetCommissionRateTx(ctx, tx, s.pricing.CommissionRate())
		commission := round2(ride.TotalFare * commissionRate)
		net := round2(ride.TotalFare - commission)
		earning := &models.DriverEarning{
			ID:             uuid.New(),
			DriverID:       *ride.DriverID,
			RideID:         ride.ID,
			Amount:         ride.TotalFare,
			BaseFare:       ride.BaseFare,
			DistanceFare:   ride.DistanceFare,
			TimeFare:       ride.TimeFare,
			ServiceFee:     ride.ServiceFee,
			InsuranceFee:   ride.InsuranceFee,
			PlatformFee:    ride.PlatformFee,
			CommissionRate: commissionRate,
			CommissionAmt:  commission,
			NetEarning:     net,
			CreatedAt:      time.Now(),
		}
		if err := s.repo.InsertEarningTx(ctx, tx, earning); err != nil {
			if database.IsUniqueViolation(err) {
				return nil
			}
			return err
		}

		return s.repo.BumpDriverTotalsTx(ctx, tx, *ride.DriverID, net)
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return apperr.NewInternal("failed to complete ride", err)
	}

	if !alreadyCompleted {
		s.publishAsync(ctx, eventbus.SubjectRideCompleted, map[string]interface{}{"ride_id": rideID})
	}
	return nil
}

// CancelRide transitions a ride to CANCELLED. actorID must match the
// ride's rider (when by=rider) or assigned driver (when by=driver); a
// system-initiated cancellation skips the actor check. Pre-arrival
// driver cancellation is unconditional — no penalty is applied here
// (Open Question decision 2); the penalty engine only fires on the
// stop-riding toggle, a separate flow in internal/drivers'
// online/offline status change.
func (s *Service) CancelRide(ctx context.Context, rideID uuid.UUID, actorID uuid.UUID, by models.CancelledBy, reason string) error {
	ride, err := s.repo.GetByID(ctx, rideID)
	if err != nil {
		return apperr.NewNotFound("ride not found")
	}
	switch by {
	case models.CancelledByRider:
		if ride.RiderID != actorID {
			return apperr.NewForbidden("only the requesting rider may cancel this ride")
		}
	case models.CancelledByDriver:
		if ride.DriverID == nil || *ride.DriverID != actorID {
			return apperr.NewForbidden("only the assigned driver may cancel this ride")
		}
	}
	if !models.CanTransition(ride.Status, models.RideStatusCancelled) {
		return apperr.NewInvalidTransition(fmt.Sprintf("cannot cancel ride in status %s", ride.Status))
	}

	err = database.RetryableTransaction(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		return s.repo.CancelTx(ctx, tx, rideID, by, reason)
	})
	if err != nil {
		return apperr.NewInternal("failed to cancel ride", err)
	}

	s.publishAsync(ctx, eventbus.SubjectRideCancelled, map[string]interface{}{"ride_id": rideID, "cancelled_by": by})
	return nil
}

// SubmitRating records rating/feedback from one side of a completed
// ride. Each side may rate exactly once; a passenger rating also folds
// into the driver's running average (drivers do not have an aggregate
// rating exposed back onto passengers). The ride rating-flag write and
// the driver-aggregate update commit in one transaction — the flag is
// what makes a retry fail with AlreadyRated, so it must never land
// without the aggregate bump or vice versa.
func (s *Service) SubmitRating(ctx context.Context, rideID uuid.UUID, role models.RatingRole, rating int, feedback string) (*models.Ride, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.NewValidation("rating must be between 1 and 5")
	}
	if len(feedback) > 500 {
		return nil, apperr.NewValidation("feedback must be 500 characters or fewer")
	}

	ride, err := s.repo.GetByID(ctx, rideID)
	if err != nil {
		return nil, apperr.NewNotFound("ride not found")
	}
	if ride.Status != models.RideStatusCompleted {
		return nil, apperr.NewInvalidTransition("ride must be completed before it can be rated")
	}
	if ride.RatedBy(role) {
		return nil, apperr.NewAlreadyRated()
	}
	if role == models.RatingRolePassenger && ride.DriverID == nil {
		return nil, apperr.NewConflict("ride has no assigned driver")
	}

	err = database.RetryableTransaction(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		recorded, err := s.repo.SetRatingTx(ctx, tx, rideID, role, rating, feedback)
		if err != nil {
			return err
		}
		if !recorded {
			return apperr.NewAlreadyRated()
		}
		if role == models.RatingRolePassenger {
			return s.repo.ApplyRatingTx(ctx, tx, *ride.DriverID, rating)
		}
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.NewInternal("failed to record rating", err)
	}

	return s.repo.GetByID(ctx, rideID)
}

// EstimateFares quotes the full fare breakdown for every vehicle type
// over a prospective trip, for the pre-booking estimate screen. The
// quote is informational only; the binding fare is the one locked in
// by CreateRide.
func (s *Service) EstimateFares(pickupLat, pickupLng, dropLat, dropLng float64) (map[models.VehicleType]pricing.Fare, error) {
	if !validCoordinate(pickupLat, pickupLng) || !validCoordinate(dropLat, dropLng) {
		return nil, apperr.NewBadCoordinate("pickup/drop coordinates out of range")
	}
	return s.pricing.CalculateAll(pickupLat, pickupLng, dropLat, dropLng), nil
}

// ListUserRides pages through the caller's ride history (rides where
// they were the rider or the assigned driver), newest first. Page is
// 1-based and clamped to >= 1; a limit below 1 becomes 20 and a limit
// above 50 becomes 50.
func (s *Service) ListUserRides(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.Ride, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	rides, err := s.repo.ListByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.NewInternal("failed to list rides", err)
	}
	return rides, nil
}

// AvailableRides lists PENDING rides of vehicleType within radiusKm of
// (lat, lng), sorted ascending by distance, for a driver browsing the
// available-rides screen. OTP is never included.
func (s *Service) AvailableRides(ctx context.Context, lat, lng float64, vehicleType models.VehicleType, radiusKm float64) ([]AvailableRide, error) {
	if !validCoordinate(lat, lng) {
		return nil, apperr.NewBadCoordinate("coordinates out of range")
	}

	pending, err := s.repo.ListPendingByVehicleType(ctx, vehicleType)
	if err != nil {
		return nil, apperr.NewInternal("failed to list pending rides", err)
	}

	out := make([]AvailableRide, 0, len(pending))
	for _, ride := range pending {
		d := h3index.HaversineKm(lat, lng, ride.PickupLat, ride.PickupLng)
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		out = append(out, AvailableRide{
			RideID:             ride.ID,
			VehicleType:        ride.VehicleType,
			PickupLat:          ride.PickupLat,
			PickupLng:          ride.PickupLng,
			PickupAddress:      ride.PickupAddress,
			DropAddress:        ride.DropAddress,
			DistanceKm:         round2(d),
			TotalFare:          ride.TotalFare,
			OTPRequiredAtStart: true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

func (s *Service) transition(ctx context.Context, rideID uuid.UUID, to models.RideStatus) error {
	ride, err := s.repo.GetByID(ctx, rideID)
	if err != nil {
		return apperr.NewNotFound("ride not found")
	}
	if !models.CanTransition(ride.Status, to) {
		return apperr.NewInvalidTransition(fmt.Sprintf("cannot transition ride from %s to %s", ride.Status, to))
	}
	if err := s.repo.UpdateStatus(ctx, rideID, to); err != nil {
		return apperr.NewInternal("failed to update ride status", err)
	}
	s.publishAsync(ctx, eventbus.SubjectRideStatusChanged, map[string]interface{}{"ride_id": rideID, "status": to})
	return nil
}

// publishAsync fires a bus publish with a bounded timeout, logging
// and continuing on failure rather than failing the caller's request
// — a lost notification is recoverable, a lost state transition is
// not.
func (s *Service) publishAsync(ctx context.Context, topic string, payload interface{}) {
	if s.bus == nil {
		return
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.bus.Publish(pubCtx, topic, payload); err != nil {
			logger.WarnContext(ctx, "failed to publish ride event", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func generateOTP() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	n := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	return fmt.Sprintf("%d", 1000+n%9000), nil
}

func validCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
