// Package pricing computes ride fares. Unlike the surge/zone/weather
// pricing engine this was adapted from, the dispatch core's fare model
// is a fixed per-vehicle-type rate table: base + per-km + per-minute,
// plus flat fees. surgeMultiplier and peakHourMultiplier are kept as
// named hooks pinned to 1.0 rather than removed, so a future dynamic
// pricing feature has an obvious seam to fill in.
package pricing

import (
	"math"

	"github.com/richxcame/ride-hailing/internal/h3index"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/logger"
	"go.uber.org/zap"
)

// VehicleRate is the fixed rate card for one vehicle type.
type VehicleRate struct {
	Base      float64
	PerKm     float64
	PerMinute float64
}

// Config is the full fare configuration: one rate per vehicle type
// plus the flat fees charged on every ride regardless of type.
type Config struct {
	Rates          map[models.VehicleType]VehicleRate
	ServiceFee     float64
	InsuranceFee   float64
	PlatformFee    float64
	CommissionRate float64
}

// DefaultConfig is the dispatch core's fare table.
var DefaultConfig = Config{
	Rates: map[models.VehicleType]VehicleRate{
		models.VehicleCab:  {Base: 30, PerKm: 15, PerMinute: 1.5},
		models.VehicleAuto: {Base: 30, PerKm: 10, PerMinute: 1.0},
		models.VehicleBike: {Base: 20, PerKm: 7, PerMinute: 1.0},
	},
	ServiceFee:     10,
	InsuranceFee:   2,
	PlatformFee:    10,
	CommissionRate: 0.20,
}

// surgeMultiplier and peakHourMultiplier are no-op hooks: the current
// fare model has no dynamic pricing, but the rate card is shaped to
// accept one without a signature change later.
func surgeMultiplier() float64      { return 1.0 }
func peakHourMultiplier() float64   { return 1.0 }

// Fare is the result of a single fare calculation.
type Fare struct {
	VehicleType       models.VehicleType
	DistanceKm        float64
	EstimatedDuration int
	BaseFare          float64
	DistanceFare      float64
	TimeFare          float64
	ServiceFee        float64
	InsuranceFee      float64
	PlatformFee       float64
	Total             float64
}

// Engine computes fares from a fixed Config.
type Engine struct {
	cfg Config
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Calculate returns the fare for one vehicle type over a trip of
// distanceKm. An unknown vehicle type falls back to cab rates and is
// logged as a warning — it should never happen once request
// validation is in place, but the fare calculation itself must not
// panic on bad input.
func (e *Engine) Calculate(vehicleType models.VehicleType, pickupLat, pickupLng, dropLat, dropLng float64) Fare {
	// Distance is rounded to 2 decimals before it feeds the fare and
	// duration math, so the quoted breakdown is reproducible from the
	// quoted distance alone.
	distanceKm := round2(h3index.HaversineKm(pickupLat, pickupLng, dropLat, dropLng))
	duration := h3index.EstimatedDurationMinutes(distanceKm)

	rate, ok := e.cfg.Rates[vehicleType]
	if !ok {
		logger.Get().Warn("unknown vehicle type, defaulting to cab rate", zap.String("vehicle_type", string(vehicleType)))
		rate = e.cfg.Rates[models.VehicleCab]
	}

	mult := surgeMultiplier() * peakHourMultiplier()
	distanceFare := round2(rate.PerKm * distanceKm * mult)
	timeFare := round2(rate.PerMinute * float64(duration) * mult)
	baseFare := round2(rate.Base * mult)

	total := round2(baseFare + distanceFare + timeFare + e.cfg.ServiceFee + e.cfg.InsuranceFee + e.cfg.PlatformFee)

	return Fare{
		VehicleType:       vehicleType,
		DistanceKm:        distanceKm,
		EstimatedDuration: duration,
		BaseFare:          baseFare,
		DistanceFare:      distanceFare,
		TimeFare:          timeFare,
		ServiceFee:        e.cfg.ServiceFee,
		InsuranceFee:      e.cfg.InsuranceFee,
		PlatformFee:       e.cfg.PlatformFee,
		Total:             total,
	}
}

// CalculateAll returns the fare for every known vehicle type over the
// same trip, used by the fare-estimate endpoint shown to riders before
// they pick a vehicle type.
func (e *Engine) CalculateAll(pickupLat, pickupLng, dropLat, dropLng float64) map[models.VehicleType]Fare {
	out := make(map[models.VehicleType]Fare, len(e.cfg.Rates))
	for vt := range e.cfg.Rates {
		out[vt] = e.Calculate(vt, pickupLat, pickupLng, dropLat, dropLng)
	}
	return out
}

// CommissionRate returns the platform's cut used when booking a
// DriverEarning at ride completion.
func (e *Engine) CommissionRate() float64 {
	return e.cfg.CommissionRate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
