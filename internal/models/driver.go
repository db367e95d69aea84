// Package models holds the persistent entity shapes shared across the
// dispatch core's components.
package models

import (
	"time"

	"github.com/google/uuid"
)

// VehicleType is the set of vehicle classes the pricing engine and
// dispatcher understand.
type VehicleType string

const (
	VehicleCab  VehicleType = "cab"
	VehicleAuto VehicleType = "auto"
	VehicleBike VehicleType = "bike"
)

// Driver is the in-core view of a driver: online/active/verified
// flags, current location, vehicle, and rolling aggregates. Creation
// happens during onboarding, which is an external collaborator; the
// core only ever mutates an existing record.
type Driver struct {
	ID                  uuid.UUID   `json:"id" db:"id"`
	UserID              uuid.UUID   `json:"user_id" db:"user_id"`
	DisplayName         string      `json:"display_name,omitempty" db:"display_name"`
	IsOnline            bool        `json:"is_online" db:"is_online"`
	IsActive            bool        `json:"is_active" db:"is_active"`
	IsVerified          bool        `json:"is_verified" db:"is_verified"`
	CurrentLat          *float64    `json:"current_lat,omitempty" db:"current_lat"`
	CurrentLng          *float64    `json:"current_lng,omitempty" db:"current_lng"`
	H3Index             string      `json:"h3_index,omitempty" db:"h3_index"`
	VehicleType         VehicleType `json:"vehicle_type" db:"vehicle_type"`
	VehicleNumber       string      `json:"vehicle_number" db:"vehicle_number"`
	VehicleModel        string      `json:"vehicle_model" db:"vehicle_model"`
	Rating              float64     `json:"rating" db:"rating"`
	RatingCount         int         `json:"rating_count" db:"rating_count"`
	TotalRides          int         `json:"total_rides" db:"total_rides"`
	TotalEarnings       float64     `json:"total_earnings" db:"total_earnings"`
	LastActiveAt        time.Time   `json:"last_active_at" db:"last_active_at"`
	ConnectedTransports []string    `json:"connected_transports,omitempty" db:"-"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// HasCoordinates reports whether the driver has a last-known location.
func (d *Driver) HasCoordinates() bool {
	return d.CurrentLat != nil && d.CurrentLng != nil
}

// DriverPenalty models a pending or paid fee levied against a driver —
// currently only the flat stop-riding fee. A driver with any PENDING
// penalty is blocked from toggling back online.
type DriverPenalty struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	DriverID  uuid.UUID     `json:"driver_id" db:"driver_id"`
	Reason    PenaltyReason `json:"reason" db:"reason"`
	Amount    float64       `json:"amount" db:"amount"`
	Status    PenaltyStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	PaidAt    *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
}

type PenaltyReason string

const (
	PenaltyStopRiding PenaltyReason = "STOP_RIDING"
)

type PenaltyStatus string

const (
	PenaltyPending PenaltyStatus = "PENDING"
	PenaltyPaid    PenaltyStatus = "PAID"
)
