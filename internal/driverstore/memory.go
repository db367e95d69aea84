package driverstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/h3index"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/logger"
	"github.com/richxcame/ride-hailing/internal/platform/resilience"
)

// MemoryStore is the default, single-instance Driver State Store
// backend: a mutex-guarded map plus an H3-cell-to-driver-set index.
// It needs no external dependency and is the right choice until the
// dispatch tier is scaled past one process.
type MemoryStore struct {
	mu        sync.RWMutex
	drivers   map[uuid.UUID]DriverInfo
	byUser    map[uuid.UUID]uuid.UUID
	cells     map[string]map[uuid.UUID]struct{}
	staleness time.Duration
	maxRing   int

	sink PersistenceSink

	persistBuf *dirtyBuffer[locationUpdate]

	locationFlushes uint64
	statusFlushes   uint64
	writeFailures   uint64
}

// NewMemoryStore builds a ready-to-use MemoryStore with its flush
// loop running, using DefaultHeartbeatStaleness and no persistent
// write-through. Use NewMemoryStoreWithSink to wire one.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithSink(DefaultHeartbeatStaleness, nil)
}

// NewMemoryStoreWithStaleness builds a MemoryStore that excludes
// drivers from NearbyAvailable once their last update is older than
// staleness, with no persistent write-through.
func NewMemoryStoreWithStaleness(staleness time.Duration) *MemoryStore {
	return NewMemoryStoreWithSink(staleness, nil)
}

// NewMemoryStoreWithSink builds a MemoryStore whose index update is
// always synchronous and, when sink is non-nil, additionally
// write-throughs each driver's latest location to sink once per
// LocationFlushInterval, retrying with backoff before dropping it.
func NewMemoryStoreWithSink(staleness time.Duration, sink PersistenceSink) *MemoryStore {
	return NewMemoryStoreTuned(staleness, LocationFlushInterval, sink)
}

// NewMemoryStoreTuned is NewMemoryStoreWithSink with the write-through
// flush interval taken from configuration instead of the default.
func NewMemoryStoreTuned(staleness, flushInterval time.Duration, sink PersistenceSink) *MemoryStore {
	if flushInterval <= 0 {
		flushInterval = LocationFlushInterval
	}
	s := &MemoryStore{
		drivers:   make(map[uuid.UUID]DriverInfo),
		byUser:    make(map[uuid.UUID]uuid.UUID),
		cells:     make(map[string]map[uuid.UUID]struct{}),
		staleness: staleness,
		maxRing:   DefaultSearchMaxRing,
		sink:      sink,
	}
	s.persistBuf = newDirtyBuffer(flushInterval,
		func(u locationUpdate) uuid.UUID { return u.driverID },
		s.flushLocations,
		func() { atomic.AddUint64(&s.locationFlushes, 1) },
	)
	return s
}

// UpdateLocation applies the new coordinates to the in-memory index
// immediately — a NearbyAvailable or Get call made after this returns
// always observes it — then queues the write-through to the
// PersistenceSink for the next flush tick.
func (s *MemoryStore) UpdateLocation(_ context.Context, driverID uuid.UUID, lat, lng float64, vehicleType models.VehicleType) error {
	if !h3index.ValidCoordinate(lat, lng) {
		return errInvalidCoordinate(lat, lng)
	}
	u := locationUpdate{driverID: driverID, lat: lat, lng: lng, vehicleType: vehicleType, at: nowFunc()}
	s.applyLocation(u)
	if s.sink != nil {
		s.persistBuf.Enqueue(u)
	}
	return nil
}

// SetStatus flips the driver's online/available flags in the index
// immediately; there is no deferred persistent side to this call, as
// the explicit online/offline toggle is written to Postgres
// synchronously by the caller before this index update is made.
func (s *MemoryStore) SetStatus(_ context.Context, driverID uuid.UUID, online, available bool) error {
	s.applyStatus(statusUpdate{driverID: driverID, online: online, available: available, at: nowFunc()})
	atomic.AddUint64(&s.statusFlushes, 1)
	return nil
}

func (s *MemoryStore) applyLocation(u locationUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocationLocked(u)
}

// applyLocationLocked mutates one driver's index entry. Callers must
// hold s.mu.
func (s *MemoryStore) applyLocationLocked(u locationUpdate) {
	newCell := h3index.CellForMatching(u.lat, u.lng)
	info, existed := s.drivers[u.driverID]

	// Cell-index invariant: remove from the old cell's set before
	// inserting into the new one, so no concurrent reader of
	// NearbyAvailable ever observes the driver present in two cells
	// at once.
	if existed && info.H3Cell != "" && info.H3Cell != newCell {
		s.removeFromCellLocked(info.H3Cell, u.driverID)
	}

	info.DriverID = u.driverID
	info.Lat, info.Lng = u.lat, u.lng
	info.H3Cell = newCell
	info.VehicleType = u.vehicleType
	info.UpdatedAt = u.at
	s.drivers[u.driverID] = info

	if info.Online && info.Available {
		s.addToCellLocked(newCell, u.driverID)
	}
}

func (s *MemoryStore) applyStatus(u statusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyStatusLocked(u)
}

// applyStatusLocked mutates one driver's online/available flags.
// Callers must hold s.mu.
func (s *MemoryStore) applyStatusLocked(u statusUpdate) {
	info, existed := s.drivers[u.driverID]
	if !existed {
		info = DriverInfo{DriverID: u.driverID}
	}

	wasIndexed := info.Online && info.Available
	info.Online = u.online
	info.Available = u.available
	info.UpdatedAt = u.at
	s.drivers[u.driverID] = info

	nowIndexed := info.Online && info.Available
	switch {
	case wasIndexed && !nowIndexed:
		s.removeFromCellLocked(info.H3Cell, u.driverID)
	case !wasIndexed && nowIndexed && info.H3Cell != "":
		s.addToCellLocked(info.H3Cell, u.driverID)
	}
}

// flushLocations is the persistBuf's apply callback: it write-throughs
// each driver's latest coalesced location to the PersistenceSink,
// retrying each one individually with backoff before giving up on it —
// a dropped write simply waits for the next location ping to try again.
func (s *MemoryStore) flushLocations(batch map[uuid.UUID]locationUpdate) {
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

func (s *MemoryStore) addToCellLocked(cell string, driverID uuid.UUID) {
	set, ok := s.cells[cell]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		s.cells[cell] = set
	}
	set[driverID] = struct{}{}
}

func (s *MemoryStore) removeFromCellLocked(cell string, driverID uuid.UUID) {
	if cell == "" {
		return
	}
	if set, ok := s.cells[cell]; ok {
		delete(set, driverID)
		if len(set) == 0 {
			delete(s.cells, cell)
		}
	}
}

// SetMaxRing overrides how far the progressive k-ring search widens
// before giving up. Called once at startup from configuration.
func (s *MemoryStore) SetMaxRing(k int) {
	if k >= 1 {
		s.maxRing = k
	}
}

func (s *MemoryStore) NearbyAvailable(_ context.Context, lat, lng float64, vehicleType models.VehicleType, maxRadiusKm float64, maxResults int) ([]DriverInfo, error) {
	now := nowFunc()
	for k := 0; k <= s.maxRing; k++ {
		ring, err := h3index.RingAt(lat, lng, k)
		if err != nil {
			return nil, err
		}

		var found []DriverInfo
		s.mu.RLock()
		for _, cell := range ring {
			for driverID := range s.cells[cell] {
				info := s.drivers[driverID]
				if !eligibleBase(info, vehicleType, s.staleness, now) {
					continue
				}
				info.DistanceKm = h3index.HaversineKm(lat, lng, info.Lat, info.Lng)
				if maxRadiusKm > 0 && info.DistanceKm > maxRadiusKm {
					continue
				}
				found = append(found, info)
			}
		}
		s.mu.RUnlock()

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

// eligibleBase applies the non-geospatial match filters: online,
// available ("available" folds in the driver's active flag — see
// internal/drivers), vehicle type (an empty vehicleType matches any
// driver), and last update within the staleness window. Distance is
// checked by the caller, which also owns the query point.
func eligibleBase(info DriverInfo, vehicleType models.VehicleType, staleness time.Duration, now time.Time) bool {
	if !info.Online || !info.Available {
		return false
	}
	if vehicleType != "" && info.VehicleType != vehicleType {
		return false
	}
	if staleness > 0 && now.Sub(info.UpdatedAt) > staleness {
		return false
	}
	return true
}

func sortByDistance(found []DriverInfo) {
	sort.Slice(found, func(i, j int) bool { return found[i].DistanceKm < found[j].DistanceKm })
}

func (s *MemoryStore) Get(_ context.Context, driverID uuid.UUID) (DriverInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.drivers[driverID]
	return info, ok
}

func (s *MemoryStore) GetByUserID(_ context.Context, userID uuid.UUID) (DriverInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	driverID, ok := s.byUser[userID]
	if !ok {
		return DriverInfo{}, false
	}
	info, ok := s.drivers[driverID]
	return info, ok
}

func (s *MemoryStore) ResolveDriverID(_ context.Context, id uuid.UUID) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.drivers[id]; ok {
		return id, true
	}
	if driverID, ok := s.byUser[id]; ok {
		return driverID, true
	}
	return uuid.Nil, false
}

// Hydrate bulk-loads records into the index, computing each record's
// matching-resolution cell when the caller didn't. Already-indexed
// drivers are overwritten wholesale — hydration runs before the
// telemetry path is serving, so there is no newer state to clobber.
func (s *MemoryStore) Hydrate(_ context.Context, records []DriverInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.H3Cell == "" && (rec.Lat != 0 || rec.Lng != 0) {
			rec.H3Cell = h3index.CellForMatching(rec.Lat, rec.Lng)
		}
		if prev, ok := s.drivers[rec.DriverID]; ok && prev.H3Cell != "" && prev.H3Cell != rec.H3Cell {
			s.removeFromCellLocked(prev.H3Cell, rec.DriverID)
		}
		s.drivers[rec.DriverID] = rec
		if rec.UserID != uuid.Nil {
			s.byUser[rec.UserID] = rec.DriverID
		}
		if rec.Online && rec.Available && rec.H3Cell != "" {
			s.addToCellLocked(rec.H3Cell, rec.DriverID)
		}
	}
	return nil
}

func (s *MemoryStore) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Metrics{
		TrackedDrivers:  len(s.drivers),
		LocationFlushes: atomic.LoadUint64(&s.locationFlushes),
		StatusFlushes:   atomic.LoadUint64(&s.statusFlushes),
		QueuedWrites:    s.persistBuf.Queued(),
		WriteFailures:   atomic.LoadUint64(&s.writeFailures),
	}
}

func (s *MemoryStore) Close() {
	s.persistBuf.Stop()
}
