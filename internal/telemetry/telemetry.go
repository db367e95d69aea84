// Package telemetry is the ingestion point for driver location pings:
// validate, write through to the Driver State Store, and publish a
// location-moved event. The Driver State Store itself owns the
// flush-interval buffering; this package is a thin, stateless front
// door.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/driverstore"
	"github.com/richxcame/ride-hailing/internal/eventbus"
	"github.com/richxcame/ride-hailing/internal/h3index"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

// LocationEvent is the typed wire payload published on
// SubjectDriverLocationMoved.
type LocationEvent struct {
	DriverID  uuid.UUID `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	H3Index   string    `json:"h3_index"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink ingests driver location and status updates.
type Sink struct {
	store driverstore.Store
	bus   eventbus.Bus
}

// NewSink builds a Sink over store and bus.
func NewSink(store driverstore.Store, bus eventbus.Bus) *Sink {
	return &Sink{store: store, bus: bus}
}

// ReportLocation validates and forwards a driver's location ping with
// no heading or speed readings; the published LocationEvent leaves
// both unset.
func (s *Sink) ReportLocation(ctx context.Context, driverID uuid.UUID, lat, lng float64, vehicleType models.VehicleType) error {
	return s.ReportLocationWithMotion(ctx, driverID, lat, lng, vehicleType, nil, nil)
}

// ReportLocationWithMotion is ReportLocation with optional heading and
// speed readings carried through to the published LocationEvent.
func (s *Sink) ReportLocationWithMotion(ctx context.Context, driverID uuid.UUID, lat, lng float64, vehicleType models.VehicleType, heading, speed *float64) error {
	if !h3index.ValidCoordinate(lat, lng) {
		return apperr.NewBadCoordinate("driver location out of range")
	}
	if err := s.store.UpdateLocation(ctx, driverID, lat, lng, vehicleType); err != nil {
		return err
	}

	if s.bus != nil {
		event := LocationEvent{
			DriverID:  driverID,
			Lat:       lat,
			Lng:       lng,
			H3Index:   h3index.CellForMatching(lat, lng),
			Heading:   heading,
			Speed:     speed,
			Timestamp: time.Now(),
		}
		_ = s.bus.Publish(ctx, eventbus.SubjectDriverLocationMoved, event)
	}
	return nil
}

// ReportStatus flips a driver's online/available flags.
func (s *Sink) ReportStatus(ctx context.Context, driverID uuid.UUID, online, available bool) error {
	return s.store.SetStatus(ctx, driverID, online, available)
}
