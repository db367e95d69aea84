// Package dispatcher broadcasts a new ride to every eligible nearby
// driver at once — unlike a ranked top-N matcher, every driver that
// comes back from the progressive k-ring search receives the offer,
// and whichever one calls AssignDriver first wins the race-free claim
// in internal/rides.
package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/driverstore"
	"github.com/richxcame/ride-hailing/internal/eventbus"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

// OfferEvent is published both per-driver (topic "dispatch.offer.<id>")
// and to the fan-out channel so any connected client can observe
// broadcast activity for a ride. It names the passenger but never
// carries the OTP.
type OfferEvent struct {
	RideID        uuid.UUID          `json:"ride_id"`
	DriverID      uuid.UUID          `json:"driver_id"`
	VehicleType   models.VehicleType `json:"vehicle_type"`
	PickupLat     float64            `json:"pickup_lat"`
	PickupLng     float64            `json:"pickup_lng"`
	PickupAddress string             `json:"pickup_address,omitempty"`
	DropLat       float64            `json:"drop_lat"`
	DropLng       float64            `json:"drop_lng"`
	DropAddress   string             `json:"drop_address,omitempty"`
	TotalFare     float64            `json:"total_fare"`
	PassengerName string             `json:"passenger_name,omitempty"`
	OfferedAt     time.Time          `json:"offered_at"`
}

// Report summarizes one broadcast attempt for observability.
// TargetedDrivers counts eligible candidates; ConnectedDrivers counts
// the per-driver publishes that went through.
type Report struct {
	RideID                      uuid.UUID
	CandidateIDs                []uuid.UUID
	TargetedDrivers             int
	ConnectedDrivers            int
	AvailableChannelSubscribers int
	Errors                      []string
	ZeroReach                   bool
}

const maxPublishAttempts = 3

// DefaultBroadcastRadiusKm bounds how far a ride offer reaches even
// once the k-ring search widens; a driver 30 rings away on a sparse
// map is not a realistic match regardless of ring count.
const DefaultBroadcastRadiusKm = 10.0

// SubscriberCounter reports how many sockets are joined to a realtime
// channel. internal/realtime.Hub implements it; it is optional and
// informational — broadcast reporting only, never delivery gating.
type SubscriberCounter interface {
	ChannelSubscriberCount(channel string) int
}

// Dispatcher wires the Driver State Store's nearby search to the
// event bus's broadcast.
type Dispatcher struct {
	store driverstore.Store
	bus   eventbus.Bus
	subs  SubscriberCounter
}

// New builds a Dispatcher.
func New(store driverstore.Store, bus eventbus.Bus) *Dispatcher {
	return &Dispatcher{store: store, bus: bus}
}

// SetSubscriberCounter wires the realtime hub in once it exists; hub
// construction follows dispatcher construction in cmd/dispatch, so
// this is set post-construction.
func (d *Dispatcher) SetSubscriberCounter(subs SubscriberCounter) {
	d.subs = subs
}

// Broadcast finds every available driver of the ride's vehicle type
// near its pickup point and offers the ride to each of them in turn.
// It logs at warning level when the search comes back
// empty even after widening to the max ring — a ride was created that
// no driver will hear about.
func (d *Dispatcher) Broadcast(ctx context.Context, ride *models.Ride) Report {
	candidates, err := d.store.NearbyAvailable(ctx, ride.PickupLat, ride.PickupLng, ride.VehicleType, DefaultBroadcastRadiusKm, 0)
	if err != nil {
		logger.ErrorContext(ctx, "nearby driver search failed", zap.String("ride_id", ride.ID.String()), zap.Error(err))
		return Report{RideID: ride.ID, ZeroReach: true, Errors: []string{err.Error()}}
	}

	if len(candidates) == 0 {
		logger.WarnContext(ctx, "no eligible drivers found for ride, broadcast reaches zero drivers",
			zap.String("ride_id", ride.ID.String()),
			zap.String("vehicle_type", string(ride.VehicleType)),
		)
		return Report{RideID: ride.ID, ZeroReach: true}
	}

	report := Report{RideID: ride.ID, TargetedDrivers: len(candidates)}
	report.CandidateIDs = make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		report.CandidateIDs = append(report.CandidateIDs, c.DriverID)
		offer := OfferEvent{
			RideID:        ride.ID,
			DriverID:      c.DriverID,
			VehicleType:   ride.VehicleType,
			PickupLat:     ride.PickupLat,
			PickupLng:     ride.PickupLng,
			PickupAddress: ride.PickupAddress,
			DropLat:       ride.DropLat,
			DropLng:       ride.DropLng,
			DropAddress:   ride.DropAddress,
			TotalFare:     ride.TotalFare,
			PassengerName: ride.PassengerName,
			OfferedAt:     time.Now(),
		}
		if err := d.publishWithRetry(ctx, "dispatch.offer."+c.DriverID.String(), offer); err != nil {
			report.Errors = append(report.Errors, err.Error())
		} else {
			report.ConnectedDrivers++
		}
		if err := d.publishWithRetry(ctx, eventbus.SubjectDispatchOffer, offer); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if d.subs != nil {
		report.AvailableChannelSubscribers = d.subs.ChannelSubscriberCount("available-drivers") +
			d.subs.ChannelSubscriberCount("available-drivers:"+string(ride.VehicleType))
	}

	if report.TargetedDrivers > 0 && report.ConnectedDrivers == 0 {
		// P0: the ride is durable but its offer reached nobody.
		report.ZeroReach = true
		logger.ErrorContext(ctx, "P0: ride offer broadcast reached zero of its targeted drivers",
			zap.String("ride_id", ride.ID.String()),
			zap.Int("targeted_drivers", report.TargetedDrivers),
			zap.Strings("errors", report.Errors),
		)
	}

	return report
}

// publishWithRetry attempts a publish up to maxPublishAttempts times
// with linear backoff, logging and giving up rather than blocking the
// broadcast on one slow driver's channel. Returns the last error when
// every attempt failed.
func (d *Dispatcher) publishWithRetry(ctx context.Context, topic string, payload interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= maxPublishAttempts; attempt++ {
		if err := d.bus.Publish(ctx, topic, payload); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	logger.WarnContext(ctx, "failed to publish dispatch offer after retries", zap.String("topic", topic), zap.Error(lastErr))
	return lastErr
}
