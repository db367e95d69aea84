package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/ride-hailing/internal/driverstore"
	"github.com/richxcame/ride-hailing/internal/eventbus"
	"github.com/richxcame/ride-hailing/internal/models"
)

type fakeStore struct {
	results []driverstore.DriverInfo
	err     error
}

func (f *fakeStore) UpdateLocation(context.Context, uuid.UUID, float64, float64, models.VehicleType) error {
	return nil
}
func (f *fakeStore) SetStatus(context.Context, uuid.UUID, bool, bool) error { return nil }
func (f *fakeStore) NearbyAvailable(context.Context, float64, float64, models.VehicleType, float64, int) ([]driverstore.DriverInfo, error) {
	return f.results, f.err
}
func (f *fakeStore) Get(context.Context, uuid.UUID) (driverstore.DriverInfo, bool) {
	return driverstore.DriverInfo{}, false
}
func (f *fakeStore) GetByUserID(context.Context, uuid.UUID) (driverstore.DriverInfo, bool) {
	return driverstore.DriverInfo{}, false
}
func (f *fakeStore) ResolveDriverID(context.Context, uuid.UUID) (uuid.UUID, bool) {
	return uuid.Nil, false
}
func (f *fakeStore) Hydrate(context.Context, []driverstore.DriverInfo) error { return nil }
func (f *fakeStore) Metrics() driverstore.Metrics                            { return driverstore.Metrics{} }
func (f *fakeStore) Close()                                                  {}

type fakeBus struct {
	published []string
	failNext  int
}

func (f *fakeBus) Publish(ctx context.Context, subject string, payload interface{}) error {
	if f.failNext > 0 {
		f.failNext--
		return assertErr
	}
	f.published = append(f.published, subject)
	return nil
}
func (f *fakeBus) Subscribe(context.Context, string, string, eventbus.HandlerFunc) error {
	return nil
}
func (f *fakeBus) Close() {}

var assertErr = assertError("publish failed")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestBroadcast_ZeroReachLogsAndReturnsEmptyReport(t *testing.T) {
	store := &fakeStore{}
	bus := &fakeBus{}
	d := New(store, bus)

	ride := &models.Ride{ID: uuid.New(), VehicleType: models.VehicleCab, PickupLat: 12.9, PickupLng: 77.6}
	report := d.Broadcast(context.Background(), ride)

	assert.True(t, report.ZeroReach)
	assert.Equal(t, 0, report.TargetedDrivers)
	assert.Equal(t, 0, report.ConnectedDrivers)
}

func TestBroadcast_ReachesEveryCandidate(t *testing.T) {
	d1, d2 := uuid.New(), uuid.New()
	store := &fakeStore{results: []driverstore.DriverInfo{{DriverID: d1}, {DriverID: d2}}}
	bus := &fakeBus{}
	d := New(store, bus)

	ride := &models.Ride{ID: uuid.New(), VehicleType: models.VehicleCab, PickupLat: 12.9, PickupLng: 77.6}
	report := d.Broadcast(context.Background(), ride)

	require.False(t, report.ZeroReach)
	assert.Equal(t, 2, report.TargetedDrivers)
	assert.Equal(t, 2, report.ConnectedDrivers)
	assert.Empty(t, report.Errors)
	assert.ElementsMatch(t, []uuid.UUID{d1, d2}, report.CandidateIDs)
}

func TestBroadcast_OfferCarriesPassengerNameAndNoOTP(t *testing.T) {
	driverID := uuid.New()
	store := &fakeStore{results: []driverstore.DriverInfo{{DriverID: driverID}}}
	bus := &recordingBus{}
	d := New(store, bus)

	ride := &models.Ride{
		ID:            uuid.New(),
		PassengerName: "Asha",
		VehicleType:   models.VehicleCab,
		PickupLat:     12.9, PickupLng: 77.6,
		OTP: "4521",
	}
	d.Broadcast(context.Background(), ride)

	require.NotEmpty(t, bus.payloads)
	offer, ok := bus.payloads[0].(OfferEvent)
	require.True(t, ok)
	assert.Equal(t, "Asha", offer.PassengerName)

	raw, err := json.Marshal(offer)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "4521", "the offer payload must not carry the ride OTP")
}

func TestBroadcast_AllPublishesFailedFlagsZeroReach(t *testing.T) {
	d1, d2 := uuid.New(), uuid.New()
	store := &fakeStore{results: []driverstore.DriverInfo{{DriverID: d1}, {DriverID: d2}}}
	bus := &fakeBus{failNext: 1 << 30} // every attempt fails
	d := New(store, bus)

	ride := &models.Ride{ID: uuid.New(), VehicleType: models.VehicleCab, PickupLat: 12.9, PickupLng: 77.6}
	report := d.Broadcast(context.Background(), ride)

	assert.True(t, report.ZeroReach, "candidates existed but nobody was reached")
	assert.Equal(t, 2, report.TargetedDrivers)
	assert.Equal(t, 0, report.ConnectedDrivers)
	assert.NotEmpty(t, report.Errors)
}

// recordingBus captures published payloads for offer-shape assertions.
type recordingBus struct {
	payloads []interface{}
}

func (r *recordingBus) Publish(_ context.Context, _ string, payload interface{}) error {
	r.payloads = append(r.payloads, payload)
	return nil
}
func (r *recordingBus) Subscribe(context.Context, string, string, eventbus.HandlerFunc) error {
	return nil
}
func (r *recordingBus) Close() {}
