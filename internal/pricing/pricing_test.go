package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/richxcame/ride-hailing/internal/models"
)

func TestCalculate_CabRate(t *testing.T) {
	e := NewEngine(DefaultConfig)

	// Roughly 0.86km apart, near Koramangala.
	fare := e.Calculate(models.VehicleCab, 12.9352, 77.6245, 12.9279, 77.6271)

	assert.Equal(t, models.VehicleCab, fare.VehicleType)
	assert.Greater(t, fare.DistanceKm, 0.0)
	assert.Equal(t, DefaultConfig.Rates[models.VehicleCab].Base, fare.BaseFare)
	assert.Equal(t, fare.BaseFare+fare.DistanceFare+fare.TimeFare+fare.ServiceFee+fare.InsuranceFee+fare.PlatformFee, fare.Total)
}

func TestCalculate_CabFare_DelhiToNoida(t *testing.T) {
	e := NewEngine(DefaultConfig)

	// Connaught Place to Noida: great-circle 19.80km, 48min at the
	// fixed 25km/h assumption.
	fare := e.Calculate(models.VehicleCab, 28.6139, 77.2090, 28.5355, 77.3910)

	assert.Equal(t, 19.80, fare.DistanceKm)
	assert.Equal(t, 48, fare.EstimatedDuration)
	assert.Equal(t, 30.0, fare.BaseFare)
	assert.Equal(t, 297.0, fare.DistanceFare)
	assert.Equal(t, 72.0, fare.TimeFare)
	assert.Equal(t, 421.0, fare.Total)
}

func TestCalculate_ZeroDistanceIsBaseFarePlusFees(t *testing.T) {
	e := NewEngine(DefaultConfig)

	fare := e.Calculate(models.VehicleBike, 12.9352, 77.6245, 12.9352, 77.6245)

	assert.Equal(t, 0.0, fare.DistanceKm)
	assert.Equal(t, 0, fare.EstimatedDuration)
	assert.Equal(t, 20.0, fare.BaseFare)
	assert.Equal(t, 0.0, fare.DistanceFare)
	assert.Equal(t, 0.0, fare.TimeFare)
	assert.Equal(t, 42.0, fare.Total)
}

func TestCalculate_UnknownVehicleTypeFallsBackToCab(t *testing.T) {
	e := NewEngine(DefaultConfig)

	fare := e.Calculate(models.VehicleType("scooter"), 12.9352, 77.6245, 12.9279, 77.6271)

	assert.Equal(t, DefaultConfig.Rates[models.VehicleCab].Base, fare.BaseFare)
}

func TestCalculateAll_ReturnsEveryVehicleType(t *testing.T) {
	e := NewEngine(DefaultConfig)

	fares := e.CalculateAll(12.9352, 77.6245, 12.9279, 77.6271)

	assert.Len(t, fares, len(DefaultConfig.Rates))
	for vt := range DefaultConfig.Rates {
		_, ok := fares[vt]
		assert.True(t, ok, "expected fare for %s", vt)
	}
}

func TestEstimatedDurationMonotonicWithDistance(t *testing.T) {
	e := NewEngine(DefaultConfig)

	near := e.Calculate(models.VehicleAuto, 12.93, 77.62, 12.931, 77.621)
	far := e.Calculate(models.VehicleAuto, 12.93, 77.62, 13.03, 77.72)

	assert.Less(t, near.EstimatedDuration, far.EstimatedDuration)
}
