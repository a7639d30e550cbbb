// Package geo contains pure proximity math for the geofence monitor.
// No I/O, no state; every function is safe for concurrent use.
package geo

import (
	"math"

	"stovewatch/internal/models"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0

	// MetersPerMile converts between the user-facing unit and meters.
	MetersPerMile = 1609.34

	// DefaultRadiusMeters is the geofence radius: 0.2 miles.
	DefaultRadiusMeters = 0.2 * MetersPerMile
)

// DistanceMeters returns the great-circle (haversine) distance between two
// coordinates. Symmetric; zero for identical points.
func DistanceMeters(a, b models.Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// IsNearHome reports whether point lies within radiusMeters of home. The
// boundary is inclusive. Coordinates without a usable fix classify as not
// near; callers that cannot determine a fix should skip the sample instead of
// transitioning on this value.
func IsNearHome(home, point models.Coordinate, radiusMeters float64) bool {
	if !home.HasFix() || !point.HasFix() {
		return false
	}
	return DistanceMeters(home, point) <= radiusMeters
}

// MetersToMiles converts meters to the user-facing unit.
func MetersToMiles(m float64) float64 {
	return m / MetersPerMile
}

// MilesToMeters converts miles to meters.
func MilesToMeters(mi float64) float64 {
	return mi * MetersPerMile
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
