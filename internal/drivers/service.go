package drivers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/driverstore"
	"github.com/richxcame/ride-hailing/internal/eventbus"
	"github.com/richxcame/ride-hailing/internal/h3index"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/apperr"
	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

// Publisher is the narrow event-bus surface this service needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// PresenceReader reports which realtime channels a driver's socket
// currently occupies. internal/realtime.Hub implements it; being
// connected to a channel is not equivalent to being online, so this
// is surfaced purely as informational presence.
type PresenceReader interface {
	ConnectedTransports(clientID string) []string
}

// DefaultStopRidingPenalty is the flat fee charged on every
// online->offline transition. There is no cooldown window; every
// offline toggle charges once.
const DefaultStopRidingPenalty = 10.0

// Service is the durable-truth side of the Driver entity: profile
// reads, the online/active toggle gated on outstanding penalties, and
// location pings forwarded to the Driver State Store.
type Service struct {
	repo              *Repository
	store             driverstore.Store
	bus               Publisher
	presence          PresenceReader
	stopRidingPenalty float64
}

// NewService builds a Service. stopRidingPenalty <= 0 uses
// DefaultStopRidingPenalty.
func NewService(repo *Repository, store driverstore.Store, bus Publisher, stopRidingPenalty float64) *Service {
	if stopRidingPenalty <= 0 {
		stopRidingPenalty = DefaultStopRidingPenalty
	}
	return &Service{repo: repo, store: store, bus: bus, stopRidingPenalty: stopRidingPenalty}
}

// SetPresenceReader wires the realtime hub in once it exists. Driver
// and hub construction have a circular ordering in cmd/dispatch (the
// hub is built after this service), so this is set post-construction
// rather than threaded through NewService.
func (s *Service) SetPresenceReader(p PresenceReader) {
	s.presence = p
}

// GetByID returns a driver's profile, with ConnectedTransports filled
// in from the realtime hub when one has been wired.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NewNotFound("driver not found")
	}
	if s.presence != nil {
		d.ConnectedTransports = s.presence.ConnectedTransports(id.String())
	}
	return d, nil
}

// UpdateLocation validates and records a driver's current position. The
// write to the Driver State Store is synchronous — its index update
// completes before this returns — and the store itself owns coalescing
// and retrying the deferred write-through to the persistent record (it
// was constructed with s.repo as its PersistenceSink), so this method
// has nothing further to flush.
func (s *Service) UpdateLocation(ctx context.Context, driverID uuid.UUID, lat, lng float64) error {
	if !h3index.ValidCoordinate(lat, lng) {
		return apperr.NewBadCoordinate("invalid coordinate")
	}
	driver, err := s.repo.GetByID(ctx, driverID)
	if err != nil {
		return apperr.NewNotFound("driver not found")
	}

	if err := s.store.UpdateLocation(ctx, driverID, lat, lng, driver.VehicleType); err != nil {
		return err
	}

	if s.bus != nil {
		s.publishAsync(ctx, eventbus.SubjectDriverLocationMoved, map[string]interface{}{"driver_id": driverID, "lat": lat, "lng": lng})
	}
	return nil
}

// SetOnlineStatus toggles a driver's online/available flags. Going
// online is blocked while any DriverPenalty is PENDING. Going offline
// always succeeds and levies the flat stop-riding penalty, with no
// cooldown between charges.
func (s *Service) SetOnlineStatus(ctx context.Context, driverID uuid.UUID, online bool) error {
	driver, err := s.repo.GetByID(ctx, driverID)
	if err != nil {
		return apperr.NewNotFound("driver not found")
	}

	if online {
		pending, err := s.repo.HasPendingPenalty(ctx, driverID)
		if err != nil {
			return apperr.NewInternal("failed to check driver penalties", err)
		}
		if pending {
			return apperr.NewForbidden("driver has an unpaid penalty and cannot go online")
		}
	}

	if err := s.repo.SetOnlineStatus(ctx, driverID, online, driver.IsActive); err != nil {
		return apperr.NewInternal("failed to update driver status", err)
	}
	if err := s.store.SetStatus(ctx, driverID, online, online && driver.IsActive); err != nil {
		return apperr.NewInternal("failed to update driver state store", err)
	}

	if !online {
		penalty := &models.DriverPenalty{
			ID:        uuid.New(),
			DriverID:  driverID,
			Reason:    models.PenaltyStopRiding,
			Amount:    s.stopRidingPenalty,
			Status:    models.PenaltyPending,
			CreatedAt: time.Now(),
		}
		if err := s.repo.CreatePenalty(ctx, penalty); err != nil {
			logger.ErrorContext(ctx, "failed to record stop-riding penalty", zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}

	s.publishAsync(ctx, eventbus.SubjectDriverStatusChanged, map[string]interface{}{"driver_id": driverID, "online": online})
	return nil
}

// Penalties lists a driver's penalty history.
func (s *Service) Penalties(ctx context.Context, driverID uuid.UUID) ([]models.DriverPenalty, error) {
	return s.repo.ListPenalties(ctx, driverID)
}

// SettlePenalty marks a penalty paid, lifting any online-transition
// block it was causing. Actual payment capture is an external
// collaborator; this only records the outcome.
func (s *Service) SettlePenalty(ctx context.Context, penaltyID uuid.UUID) error {
	if err := s.repo.MarkPenaltyPaid(ctx, penaltyID); err != nil {
		return apperr.NewInternal("failed to settle penalty", err)
	}
	return nil
}

func (s *Service) publishAsync(ctx context.Context, topic string, payload interface{}) {
	if s.bus == nil {
		return
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.bus.Publish(pubCtx, topic, payload); err != nil {
			logger.WarnContext(ctx, "failed to publish driver event", zap.String("topic", topic), zap.Error(err))
		}
	}()
}
