package driverstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/ride-hailing/internal/h3index"
	"github.com/richxcame/ride-hailing/internal/models"
)

func TestMemoryStore_NearbyAvailable_FindsOnlineAvailableDriver(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	driverID := uuid.New()
	require.NoError(t, s.UpdateLocation(context.Background(), driverID, 12.9352, 77.6245, models.VehicleCab))
	require.NoError(t, s.SetStatus(context.Background(), driverID, true, true))

	// No flush tick has fired, proving the index update is synchronous
	// rather than waiting behind LocationFlushInterval/StatusFlushInterval.
	found, err := s.NearbyAvailable(context.Background(), 12.9352, 77.6245, models.VehicleCab, 0, 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, driverID, found[0].DriverID)
}

func TestMemoryStore_NearbyAvailable_SkipsUnavailableDriver(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	driverID := uuid.New()
	require.NoError(t, s.UpdateLocation(context.Background(), driverID, 12.9352, 77.6245, models.VehicleCab))
	require.NoError(t, s.SetStatus(context.Background(), driverID, true, false))

	found, err := s.NearbyAvailable(context.Background(), 12.9352, 77.6245, models.VehicleCab, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemoryStore_CellReassignment_RemovesFromOldCellFirst(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	driverID := uuid.New()
	require.NoError(t, s.UpdateLocation(context.Background(), driverID, 12.9352, 77.6245, models.VehicleCab))
	require.NoError(t, s.SetStatus(context.Background(), driverID, true, true))

	info, ok := s.Get(context.Background(), driverID)
	require.True(t, ok)
	oldCell := info.H3Cell
	require.NotEmpty(t, oldCell)

	// Move the driver far enough to land in a different matching cell.
	require.NoError(t, s.UpdateLocation(context.Background(), driverID, 13.0827, 80.2707, models.VehicleCab))

	s.mu.RLock()
	_, stillInOldCell := s.cells[oldCell][driverID]
	s.mu.RUnlock()
	assert.False(t, stillInOldCell, "driver must be removed from its old H3 cell once it moves")
}

func TestMemoryStore_UpdateLocation_RejectsInvalidCoordinate(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	err := s.UpdateLocation(context.Background(), uuid.New(), 999, 0, models.VehicleCab)
	assert.Error(t, err)
}

func TestMemoryStore_NearbyAvailable_SortsByDistanceAndRespectsRadius(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	near, far := uuid.New(), uuid.New()
	// The search stops at the first ring that yields a match, so ring
	// widening never reaches a driver hundreds of km away. Both drivers
	// are hydrated into the query point's own cell so the k=0 ring
	// returns them together and only distance tells them apart. far is
	// listed first so a naive unsorted scan would return it first.
	queryCell := h3index.CellForMatching(12.9352, 77.6245)
	require.NoError(t, s.Hydrate(context.Background(), []DriverInfo{
		{DriverID: far, Lat: 13.0827, Lng: 80.2707, H3Cell: queryCell, VehicleType: models.VehicleCab, Online: true, Available: true, UpdatedAt: time.Now()},
	}))
	require.NoError(t, s.Hydrate(context.Background(), []DriverInfo{
		{DriverID: near, Lat: 12.9360, Lng: 77.6250, H3Cell: queryCell, VehicleType: models.VehicleCab, Online: true, Available: true, UpdatedAt: time.Now()},
	}))

	found, err := s.NearbyAvailable(context.Background(), 12.9352, 77.6245, models.VehicleCab, 0, 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, near, found[0].DriverID, "closer driver must sort first")
	assert.Less(t, found[0].DistanceKm, found[1].DistanceKm)

	withinRadius, err := s.NearbyAvailable(context.Background(), 12.9352, 77.6245, models.VehicleCab, 5, 0)
	require.NoError(t, err)
	require.Len(t, withinRadius, 1)
	assert.Equal(t, near, withinRadius[0].DriverID, "far driver must be excluded by maxRadiusKm")
}

func TestMemoryStore_NearbyAvailable_ExcludesStaleDriver(t *testing.T) {
	s := NewMemoryStoreWithStaleness(time.Minute)
	defer s.Close()

	staleAt := time.Now().Add(-2 * time.Minute)
	restoreNow := nowFunc
	nowFunc = func() time.Time { return staleAt }
	driverID := uuid.New()
	require.NoError(t, s.UpdateLocation(context.Background(), driverID, 12.9352, 77.6245, models.VehicleCab))
	require.NoError(t, s.SetStatus(context.Background(), driverID, true, true))
	nowFunc = restoreNow

	found, err := s.NearbyAvailable(context.Background(), 12.9352, 77.6245, models.VehicleCab, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, found, "a driver whose last update exceeds the store's staleness window must be excluded")
}

func TestMemoryStore_Hydrate_LoadsIndexAndUserMapping(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	driverID, userID := uuid.New(), uuid.New()
	require.NoError(t, s.Hydrate(context.Background(), []DriverInfo{{
		DriverID:    driverID,
		UserID:      userID,
		Lat:         12.9352,
		Lng:         77.6245,
		VehicleType: models.VehicleCab,
		Online:      true,
		Available:   true,
		UpdatedAt:   time.Now(),
	}}))

	found, err := s.NearbyAvailable(context.Background(), 12.9352, 77.6245, models.VehicleCab, 0, 0)
	require.NoError(t, err)
	require.Len(t, found, 1, "a hydrated online driver must be immediately matchable")

	byUser, ok := s.GetByUserID(context.Background(), userID)
	require.True(t, ok)
	assert.Equal(t, driverID, byUser.DriverID)

	resolved, ok := s.ResolveDriverID(context.Background(), userID)
	require.True(t, ok)
	assert.Equal(t, driverID, resolved)

	resolved, ok = s.ResolveDriverID(context.Background(), driverID)
	require.True(t, ok)
	assert.Equal(t, driverID, resolved)

	_, ok = s.ResolveDriverID(context.Background(), uuid.New())
	assert.False(t, ok)
}

func TestMemoryStore_Metrics_ReflectsTrackedDrivers(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	driverID := uuid.New()
	require.NoError(t, s.UpdateLocation(context.Background(), driverID, 12.9352, 77.6245, models.VehicleCab))

	assert.Equal(t, 1, s.Metrics().TrackedDrivers)
}

// fakeSink records every write-through it receives, letting tests
// assert the persistence flush actually ran without touching Postgres.
type fakeSink struct {
	mu    chan struct{}
	calls []uuid.UUID
}

func newFakeSink() *fakeSink {
	return &fakeSink{mu: make(chan struct{}, 16)}
}

func (f *fakeSink) UpdateLocation(_ context.Context, id uuid.UUID, _, _ float64, _ string) error {
	f.calls = append(f.calls, id)
	select {
	case f.mu <- struct{}{}:
	default:
	}
	return nil
}

func TestMemoryStore_PersistenceSink_FlushesAfterInterval(t *testing.T) {
	sink := newFakeSink()
	s := NewMemoryStoreWithSink(DefaultHeartbeatStaleness, sink)
	defer s.Close()

	driverID := uuid.New()
	require.NoError(t, s.UpdateLocation(context.Background(), driverID, 12.9352, 77.6245, models.VehicleCab))

	// The index update is synchronous and visible immediately, before
	// any flush tick has had a chance to run.
	_, ok := s.Get(context.Background(), driverID)
	require.True(t, ok)

	select {
	case <-sink.mu:
	case <-time.After(LocationFlushInterval + time.Second):
		t.Fatal("persistence sink was never flushed")
	}
	require.Len(t, sink.calls, 1)
	assert.Equal(t, driverID, sink.calls[0])
}
