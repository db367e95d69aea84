// Package h3index wraps uber/h3-go with the cell operations the
// Driver State Store and dispatcher need: matching-resolution cells,
// progressive k-ring expansion for nearby-driver search, and the
// coarser surge/demand/city tiers used by reporting.
package h3index

import (
	"math"

	"github.com/uber/h3-go/v4"
)

// Resolution levels. See https://h3geo.org/docs/core-library/restable.
const (
	ResolutionMatching = 9 // ~175m edge, driver/rider matching
	ResolutionSurge    = 8 // ~460m edge, surge zones
	ResolutionDemand   = 7 // ~1.2km edge, demand heat maps
	ResolutionCity     = 6 // ~3.2km edge, city aggregation

	// MaxMatchingRing is a reference bound for progressive k-ring
	// expansion at the matching resolution. Nothing in this module
	// reads it: the Driver State Store bounds its search with its own
	// DefaultSearchMaxRing or the value passed to SetMaxRing.
	MaxMatchingRing = 4

	// EarthRadiusKm is used for the haversine distance estimate.
	EarthRadiusKm = 6371.0

	// AssumedSpeedKmh is the fixed speed used to derive an ETA/duration
	// estimate from distance. It is not a live traffic estimate.
	AssumedSpeedKmh = 25.0
)

// matchingResolution is the resolution driver/rider matching runs at.
// Overridable once at startup via SetMatchingResolution; never mutated
// after that, so unsynchronized reads are safe.
var matchingResolution = ResolutionMatching

// SetMatchingResolution overrides the matching resolution. Called once
// during startup from configuration, before any indexing begins.
// Values outside H3's useful matching band (7-10) are ignored.
func SetMatchingResolution(res int) {
	if res >= 7 && res <= 10 {
		matchingResolution = res
	}
}

// CellForMatching returns the matching-resolution cell containing
// (lat, lng) as its canonical hex string.
func CellForMatching(lat, lng float64) string {
	return cellString(lat, lng, matchingResolution)
}

// CellForSurge returns the surge-resolution cell string.
func CellForSurge(lat, lng float64) string {
	return cellString(lat, lng, ResolutionSurge)
}

// CellForDemand returns the demand-resolution cell string.
func CellForDemand(lat, lng float64) string {
	return cellString(lat, lng, ResolutionDemand)
}

// CellForCity returns the city-resolution cell string.
func CellForCity(lat, lng float64) string {
	return cellString(lat, lng, ResolutionCity)
}

func cellString(lat, lng float64, resolution int) string {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), resolution)
	if err != nil {
		return ""
	}
	return cell.String()
}

// RingAt returns the hex strings of the cells at EXACTLY grid-distance
// k from the matching-resolution cell containing (lat, lng) — k=0 is
// the origin cell itself. This is the primitive the dispatcher's
// progressive search expands ring by ring: querying k then k+1 is
// strictly additive, so callers can stop at the first non-empty ring
// without re-scanning cells they already looked at.
func RingAt(lat, lng float64, k int) ([]string, error) {
	origin, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), matchingResolution)
	if err != nil {
		return nil, err
	}
	if k == 0 {
		return []string{origin.String()}, nil
	}

	outer, err := origin.GridDisk(k)
	if err != nil {
		return nil, err
	}
	inner, err := origin.GridDisk(k - 1)
	if err != nil {
		return nil, err
	}
	seen := make(map[h3.Cell]struct{}, len(inner))
	for _, c := range inner {
		seen[c] = struct{}{}
	}

	ring := make([]string, 0, len(outer)-len(inner))
	for _, c := range outer {
		if _, ok := seen[c]; !ok {
			ring = append(ring, c.String())
		}
	}
	return ring, nil
}

// HaversineKm returns the great-circle distance between two
// coordinates in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// EstimatedDurationMinutes converts a distance into a travel-time
// estimate at the fixed assumed speed, rounded up to the next minute.
func EstimatedDurationMinutes(distanceKm float64) int {
	if distanceKm <= 0 {
		return 0
	}
	minutes := distanceKm / AssumedSpeedKmh * 60
	return int(math.Ceil(minutes))
}

// ValidCoordinate reports whether (lat, lng) is within the physically
// valid range h3 requires.
func ValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
