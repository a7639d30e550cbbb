package models

import (
	"math"
	"time"
)

// Coordinate is an immutable location fix (WGS 84). Latitude and longitude are
// degrees; the remaining fields are optional metadata from the producer.
type Coordinate struct {
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	AccuracyMeters   float64   `json:"accuracy_meters,omitempty"`
	AltitudeMeters   float64   `json:"altitude_meters,omitempty"`
	HeadingDeg       float64   `json:"heading_deg,omitempty"`
	SpeedMps         float64   `json:"speed_mps,omitempty"`
	SpeedAccuracyMps float64   `json:"speed_accuracy_mps,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

// HasFix reports whether the coordinate carries usable latitude/longitude
// values. NaN, infinities, and out-of-range degrees all count as "no fix".
func (c Coordinate) HasFix() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return false
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
