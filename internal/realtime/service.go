package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

// LocationReporter is the narrow telemetry surface a driver's
// websocket location_update message feeds into.
type LocationReporter interface {
	ReportLocation(ctx context.Context, driverID uuid.UUID, lat, lng float64, vehicleType models.VehicleType) error
}

// Service wires inbound websocket traffic to the rest of dispatch-core
// and relays dispatch-core's own events back out over the hub.
type Service struct {
	hub      *Hub
	location LocationReporter
}

// NewService builds a Service and registers its message handlers on
// hub.
func NewService(hub *Hub, location LocationReporter) *Service {
	s := &Service{hub: hub, location: location}
	hub.RegisterHandler("location_update", s.handleLocationUpdate)
	hub.RegisterHandler("join_channel", s.handleJoinChannel)
	hub.RegisterHandler("leave_channel", s.handleLeaveChannel)
	return s
}

func (s *Service) handleLocationUpdate(client *Client, msg *Message) {
	if client.Role != "driver" {
		return
	}
	driverID, err := uuid.Parse(client.ID)
	if err != nil {
		return
	}
	lat, latOK := msg.Data["lat"].(float64)
	lng, lngOK := msg.Data["lng"].(float64)
	if !latOK || !lngOK {
		return
	}
	vehicleType, _ := msg.Data["vehicle_type"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.location.ReportLocation(ctx, driverID, lat, lng, models.VehicleType(vehicleType)); err != nil {
		logger.WarnContext(ctx, "websocket location update rejected", zap.String("driver_id", client.ID), zap.Error(err))
	}
}

func (s *Service) handleJoinChannel(client *Client, msg *Message) {
	channel, _ := msg.Data["channel"].(string)
	if channel == "" {
		return
	}
	s.hub.JoinChannel(client.ID, channel)
}

func (s *Service) handleLeaveChannel(client *Client, msg *Message) {
	channel, _ := msg.Data["channel"].(string)
	if channel == "" {
		return
	}
	s.hub.LeaveChannel(client.ID, channel)
}

// PushOffer delivers a dispatch offer to a driver's channel — the
// websocket-side counterpart of the event bus's per-driver
// "dispatch.offer.<id>" publish, for clients connected directly to
// this service's hub rather than consuming the bus.
func (s *Service) PushOffer(driverID string, offer interface{}) {
	data, ok := offer.(map[string]interface{})
	if !ok {
		return
	}
	s.hub.SendToChannel("driver:"+driverID, &Message{
		Type:      "dispatch_offer",
		Timestamp: time.Now(),
		Data:      data,
	})
}

// PushRideUpdate notifies every socket watching a ride of a status
// change.
func (s *Service) PushRideUpdate(rideID, status string) {
	s.hub.SendToChannel("ride:"+rideID, &Message{
		Type:      "ride_status_update",
		RideID:    rideID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"status": status},
	})
}
