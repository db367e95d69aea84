package models

import (
	"time"

	"github.com/google/uuid"
)

// RideStatus is the ride lifecycle state machine. Valid transitions
// are enforced by internal/rides, not by this type.
type RideStatus string

const (
	RideStatusPending        RideStatus = "PENDING"
	RideStatusDriverAssigned RideStatus = "DRIVER_ASSIGNED"
	RideStatusConfirmed      RideStatus = "CONFIRMED"
	RideStatusDriverArrived  RideStatus = "DRIVER_ARRIVED"
	RideStatusStarted        RideStatus = "RIDE_STARTED"
	RideStatusCompleted      RideStatus = "RIDE_COMPLETED"
	RideStatusCancelled      RideStatus = "CANCELLED"
)

// CancelledBy records which party ended a ride before completion.
type CancelledBy string

const (
	CancelledByRider  CancelledBy = "rider"
	CancelledByDriver CancelledBy = "driver"
	CancelledBySystem CancelledBy = "system"
)

// PaymentMethod is how the passenger intends to settle the fare.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodUPI    PaymentMethod = "UPI"
	PaymentMethodWallet PaymentMethod = "WALLET"
)

// PaymentStatus tracks settlement of the ride's fare. The dispatch
// core only records this status; capture/settlement is an external
// collaborator.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// RatingRole distinguishes which side of a ride is submitting a
// rating — each side rates the other exactly once.
type RatingRole string

const (
	RatingRolePassenger RatingRole = "passenger"
	RatingRoleDriver    RatingRole = "driver"
)

// Ride is a single trip request and its outcome. Fare is computed once
// at creation time (internal/pricing) and never recomputed.
type Ride struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	RiderID     uuid.UUID   `json:"rider_id" db:"rider_id"`
	DriverID    *uuid.UUID  `json:"driver_id,omitempty" db:"driver_id"`
	VehicleType VehicleType `json:"vehicle_type" db:"vehicle_type"`
	Status      RideStatus  `json:"status" db:"status"`

	// PassengerName is the rider's display name as supplied at creation
	// time; identity itself is owned by the external auth service. It
	// is shown to drivers in the dispatch offer.
	PassengerName string `json:"passenger_name,omitempty" db:"passenger_name"`

	PickupLat     float64 `json:"pickup_lat" db:"pickup_lat"`
	PickupLng     float64 `json:"pickup_lng" db:"pickup_lng"`
	DropLat       float64 `json:"drop_lat" db:"drop_lat"`
	DropLng       float64 `json:"drop_lng" db:"drop_lng"`
	PickupAddress string  `json:"pickup_address" db:"pickup_address"`
	DropAddress   string  `json:"drop_address" db:"drop_address"`

	DistanceKm        float64 `json:"distance_km" db:"distance_km"`
	EstimatedDuration int     `json:"estimated_duration_min" db:"estimated_duration_min"`

	// Fare breakdown. TotalFare is the sum of every other field here
	// and is what gets charged; it is locked at creation time and never
	// recomputed.
	BaseFare     float64 `json:"base_fare" db:"base_fare"`
	DistanceFare float64 `json:"distance_fare" db:"distance_fare"`
	TimeFare     float64 `json:"time_fare" db:"time_fare"`
	ServiceFee   float64 `json:"service_fee" db:"service_fee"`
	InsuranceFee float64 `json:"insurance_fee" db:"insurance_fee"`
	PlatformFee  float64 `json:"platform_fee" db:"platform_fee"`
	TotalFare    float64 `json:"total_fare" db:"total_fare"`

	PaymentMethod PaymentMethod `json:"payment_method" db:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`

	OTP string `json:"-" db:"otp"`

	PassengerRating    *int       `json:"passenger_rating,omitempty" db:"passenger_rating"`
	DriverRating       *int       `json:"driver_rating,omitempty" db:"driver_rating"`
	PassengerFeedback  string     `json:"passenger_feedback,omitempty" db:"passenger_feedback"`
	DriverFeedback     string     `json:"driver_feedback,omitempty" db:"driver_feedback"`
	RatedByPassengerAt *time.Time `json:"rated_by_passenger_at,omitempty" db:"rated_by_passenger_at"`
	RatedByDriverAt    *time.Time `json:"rated_by_driver_at,omitempty" db:"rated_by_driver_at"`

	CancelledBy        *CancelledBy `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReason string       `json:"cancellation_reason,omitempty" db:"cancellation_reason"`

	AssignedAt  *time.Time `json:"assigned_at,omitempty" db:"assigned_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// RatedBy reports whether role has already submitted its rating for
// this ride — submitRating is idempotent per side, not per ride.
func (r *Ride) RatedBy(role RatingRole) bool {
	if role == RatingRolePassenger {
		return r.PassengerRating != nil
	}
	return r.DriverRating != nil
}

// IsTerminal reports whether the ride has reached a final state.
func (r *Ride) IsTerminal() bool {
	return r.Status == RideStatusCompleted || r.Status == RideStatusCancelled
}

// validTransitions enumerates the allowed ride status edges. Anything
// not listed here is rejected with apperr.InvalidTransition.
var validTransitions = map[RideStatus][]RideStatus{
	RideStatusPending:        {RideStatusDriverAssigned, RideStatusCancelled},
	RideStatusDriverAssigned: {RideStatusConfirmed, RideStatusCancelled},
	RideStatusConfirmed:      {RideStatusDriverArrived, RideStatusCancelled},
	RideStatusDriverArrived:  {RideStatusStarted, RideStatusCancelled},
	RideStatusStarted:        {RideStatusCompleted, RideStatusCancelled},
	RideStatusCompleted:      {},
	RideStatusCancelled:      {},
}

// CanTransition reports whether from->to is a legal ride status edge.
func CanTransition(from, to RideStatus) bool {
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// DriverEarning is the single earning record booked when a ride
// completes. The unique constraint on ride_id makes a duplicate insert
// (e.g. from a retried completeRide transaction) an idempotent no-op
// rather than double-counted revenue.
type DriverEarning struct {
	ID       uuid.UUID `json:"id" db:"id"`
	DriverID uuid.UUID `json:"driver_id" db:"driver_id"`
	RideID   uuid.UUID `json:"ride_id" db:"ride_id"`

	// Amount is the ride's total fare at completion time; the
	// per-component fields mirror the ride's own fare breakdown so an
	// earning statement can be reconstructed without rejoining rides.
	Amount       float64 `json:"amount" db:"amount"`
	BaseFare     float64 `json:"base_fare" db:"base_fare"`
	DistanceFare float64 `json:"distance_fare" db:"distance_fare"`
	TimeFare     float64 `json:"time_fare" db:"time_fare"`
	ServiceFee   float64 `json:"service_fee" db:"service_fee"`
	InsuranceFee float64 `json:"insurance_fee" db:"insurance_fee"`
	PlatformFee  float64 `json:"platform_fee" db:"platform_fee"`

	CommissionRate float64   `json:"commission_rate" db:"commission_rate"`
	CommissionAmt  float64   `json:"commission_amount" db:"commission_amount"`
	NetEarning     float64   `json:"net_earning" db:"net_earning"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ShareToken grants a time-limited, read-only public view of a ride's
// progress — no phone numbers, no OTP.
type ShareToken struct {
	Token     string    `json:"token" db:"token"`
	RideID    uuid.UUID `json:"ride_id" db:"ride_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the token is no longer usable.
func (t *ShareToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// PublicRideView is what a share link renders: no rider/driver PII
// beyond names, no OTP, no raw phone numbers.
type PublicRideView struct {
	RideID        uuid.UUID   `json:"ride_id"`
	Status        RideStatus  `json:"status"`
	DriverName    string      `json:"driver_name,omitempty"`
	DriverLat     *float64    `json:"driver_lat,omitempty"`
	DriverLng     *float64    `json:"driver_lng,omitempty"`
	PickupLat     float64     `json:"pickup_lat"`
	PickupLng     float64     `json:"pickup_lng"`
	PickupAddress string      `json:"pickup_address,omitempty"`
	DropLat       float64     `json:"drop_lat"`
	DropLng       float64     `json:"drop_lng"`
	DropAddress   string      `json:"drop_address,omitempty"`
	VehicleType   VehicleType `json:"vehicle_type"`
}
