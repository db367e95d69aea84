package driverstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/h3index"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/logger"
	platformredis "github.com/richxcame/ride-hailing/internal/platform/redis"
	"github.com/richxcame/ride-hailing/internal/platform/resilience"
)

const (
	geoIndexKey      = "dispatch:drivers:geo"
	cellDriversPrefix = "dispatch:h3:"
	driverCellKeyFmt = "dispatch:driver:cell:%s"
	driverInfoTTL    = 10 * time.Minute
)

// RedisStore is the horizontally-scalable Driver State Store backend:
// a shared GEO index plus per-cell driver-id sets, guarded by a
// circuit breaker so a degraded Redis instance fails fast instead of
// stalling every dispatch request behind it. For this backend Redis
// itself is the index, so UpdateLocation/SetStatus write through to it
// synchronously; only the separate write-through to the durable
// Postgres record (via sink) is deferred and coalesced.
type RedisStore struct {
	client  *platformredis.Client
	breaker *resilience.CircuitBreaker

	sink       PersistenceSink
	persistBuf *dirtyBuffer[locationUpdate]

	locationFlushes uint64
	statusFlushes   uint64
	writeFailures   uint64

	// local caches each driver's vehicle type and online/available
	// flags; Redis itself only needs to answer "who is in this cell",
	// not carry the full DriverInfo shape. Its own index update runs
	// synchronously alongside the Redis write, never through a buffer.
	local *MemoryStore
}

// NewRedisStore builds a RedisStore backed by client, with breaker
// guarding every Redis round trip. sink may be nil to disable the
// Postgres write-through entirely. flushInterval <= 0 uses
// LocationFlushInterval.
func NewRedisStore(client *platformredis.Client, breaker *resilience.CircuitBreaker, sink PersistenceSink, flushInterval time.Duration) *RedisStore {
	if flushInterval <= 0 {
		flushInterval = LocationFlushInterval
	}
	s := &RedisStore{
		client:  client,
		breaker: breaker,
		sink:    sink,
		local:   NewMemoryStore(),
	}
	s.persistBuf = newDirtyBuffer(flushInterval,
		func(u locationUpdate) uuid.UUID { return u.driverID },
		s.flushLocations,
		func() { atomic.AddUint64(&s.locationFlushes, 1) },
	)
	return s
}

// UpdateLocation writes the new cell membership to Redis and updates
// the local cache synchronously — both complete before this returns,
// so a NearbyAvailable call immediately after observes the update even
// from this same process. Only the Postgres write-through is deferred.
func (s *RedisStore) UpdateLocation(ctx context.Context, driverID uuid.UUID, lat, lng float64, vehicleType models.VehicleType) error {
	if !h3index.ValidCoordinate(lat, lng) {
		return errInvalidCoordinate(lat, lng)
	}
	u := locationUpdate{driverID: driverID, lat: lat, lng: lng, vehicleType: vehicleType, at: nowFunc()}

	s.local.applyLocation(u)
	if _, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, s.writeLocation(ctx, driverID, u)
	}); err != nil {
		logger.WarnContext(ctx, "redis location index write failed, serving from local cache",
			zap.String("driver_id", driverID.String()), zap.Error(err))
	}

	if s.sink != nil {
		s.persistBuf.Enqueue(u)
	}
	return nil
}

// SetStatus writes the driver's cell-set membership to Redis and
// updates the local cache synchronously.
func (s *RedisStore) SetStatus(ctx context.Context, driverID uuid.UUID, online, available bool) error {
	u := statusUpdate{driverID: driverID, online: online, available: available, at: nowFunc()}

	s.local.applyStatus(u)
	atomic.AddUint64(&s.statusFlushes, 1)
	if _, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, s.writeStatus(ctx, driverID, u)
	}); err != nil {
		logger.WarnContext(ctx, "redis status index write failed, serving from local cache",
			zap.String("driver_id", driverID.String()), zap.Error(err))
	}
	return nil
}

// flushLocations is the persistBuf's apply callback: it write-throughs
// each driver's latest coalesced location to the Postgres sink,
// retrying with backoff and dropping (until the next ping) whatever
// still fails.
func (s *RedisStore) flushLocations(batch map[uuid.UUID]locationUpdate) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for driverID, u := range batch {
		driverID, u := driverID, u
		cell := h3index.CellForMatching(u.lat, u.lng)
		_, err := resilience.RetryWithName(ctx, persistRetryConfig, func(ctx context.Context) (interface{}, error) {
			return nil, s.sink.UpdateLocation(ctx, driverID, u.lat, u.lng, cell)
		}, "driverstore.persist_location")
		if err != nil {
			atomic.AddUint64(&s.writeFailures, 1)
			logger.WarnContext(ctx, "dropping driver location write after exhausting retries",
				zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}
}

func (s *RedisStore) writeLocation(ctx context.Context, driverID uuid.UUID, u locationUpdate) error {
	newCell := h3index.CellForMatching(u.lat, u.lng)
	driverIDStr := driverID.String()

	cellKey := fmt.Sprintf(driverCellKeyFmt, driverIDStr)
	prevCell, _ := s.client.GetString(ctx, cellKey)
	if prevCell != "" && prevCell != newCell {
		_ = s.client.SRem(ctx, cellDriversPrefix+prevCell, driverIDStr)
	}

	if err := s.client.SetWithExpiration(ctx, cellKey, newCell, driverInfoTTL); err != nil {
		return err
	}
	if err := s.client.GeoAdd(ctx, geoIndexKey, u.lng, u.lat, driverIDStr); err != nil {
		return err
	}

	info, _ := s.local.Get(ctx, driverID)
	if info.Online && info.Available {
		return s.client.SAdd(ctx, cellDriversPrefix+newCell, driverIDStr)
	}
	return nil
}

func (s *RedisStore) writeStatus(ctx context.Context, driverID uuid.UUID, u statusUpdate) error {
	info, _ := s.local.Get(ctx, driverID)
	if info.H3Cell == "" {
		return nil
	}
	driverIDStr := driverID.String()
	if u.online && u.available {
		return s.client.SAdd(ctx, cellDriversPrefix+info.H3Cell, driverIDStr)
	}
	_ = s.client.SRem(ctx, cellDriversPrefix+info.H3Cell, driverIDStr)
	if !u.online {
		_ = s.client.GeoRemove(ctx, geoIndexKey, driverIDStr)
	}
	return nil
}

// SetMaxRing overrides how far the progressive k-ring search widens
// before giving up. Called once at startup from configuration.
func (s *RedisStore) SetMaxRing(k int) {
	s.local.SetMaxRing(k)
}

func (s *RedisStore) NearbyAvailable(ctx context.Context, lat, lng float64, vehicleType models.VehicleType, maxRadiusKm float64, maxResults int) ([]DriverInfo, error) {
	now := nowFunc()
	for k := 0; k <= s.local.maxRing; k++ {
		ring, err := h3index.RingAt(lat, lng, k)
		if err != nil {
			return nil, err
		}

		var found []DriverInfo
		for _, cell := range ring {
			result, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
				return s.client.SMembers(ctx, cellDriversPrefix+cell)
			})
			if err != nil {
				continue
			}
			members, _ := result.([]string)
			for _, idStr := range members {
				id, err := uuid.Parse(idStr)
				if err != nil {
					continue
				}
				info, ok := s.local.Get(ctx, id)
				if !ok || !eligibleBase(info, vehicleType, s.local.staleness, now) {
					continue
				}
				info.DistanceKm = h3index.HaversineKm(lat, lng, info.Lat, info.Lng)
				if maxRadiusKm > 0 && info.DistanceKm > maxRadiusKm {
					continue
				}
				found = append(found, info)
			}
		}

		if len(found) > 0 {
			sortByDistance(found)
			if maxResults > 0 && len(found) > maxResults {
				found = found[:maxResults]
			}
			return found, nil
		}
	}
	return nil, nil
}

func (s *RedisStore) Get(ctx context.Context, driverID uuid.UUID) (DriverInfo, bool) {
	return s.local.Get(ctx, driverID)
}

func (s *RedisStore) GetByUserID(ctx context.Context, userID uuid.UUID) (DriverInfo, bool) {
	return s.local.GetByUserID(ctx, userID)
}

func (s *RedisStore) ResolveDriverID(ctx context.Context, id uuid.UUID) (uuid.UUID, bool) {
	return s.local.ResolveDriverID(ctx, id)
}

// Hydrate loads the local cache and pushes each online driver's cell
// membership to Redis so a freshly booted instance is immediately
// visible to its peers' nearby queries.
func (s *RedisStore) Hydrate(ctx context.Context, records []DriverInfo) error {
	if err := s.local.Hydrate(ctx, records); err != nil {
		return err
	}
	for _, rec := range records {
		info, ok := s.local.Get(ctx, rec.DriverID)
		if !ok || info.H3Cell == "" || !info.Online || !info.Available {
			continue
		}
		driverIDStr := rec.DriverID.String()
		if _, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			if err := s.client.SetWithExpiration(ctx, fmt.Sprintf(driverCellKeyFmt, driverIDStr), info.H3Cell, driverInfoTTL); err != nil {
				return nil, err
			}
			if err := s.client.GeoAdd(ctx, geoIndexKey, info.Lng, info.Lat, driverIDStr); err != nil {
				return nil, err
			}
			return nil, s.client.SAdd(ctx, cellDriversPrefix+info.H3Cell, driverIDStr)
		}); err != nil {
			return fmt.Errorf("hydrate driver %s: %w", driverIDStr, err)
		}
	}
	return nil
}

func (s *RedisStore) Metrics() Metrics {
	m := s.local.Metrics()
	m.LocationFlushes = atomic.LoadUint64(&s.locationFlushes)
	m.StatusFlushes = atomic.LoadUint64(&s.statusFlushes)
	m.QueuedWrites = s.persistBuf.Queued()
	m.WriteFailures = atomic.LoadUint64(&s.writeFailures)
	return m
}

func (s *RedisStore) Close() {
	s.persistBuf.Stop()
	s.local.Close()
}
