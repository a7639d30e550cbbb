package models

import "time"

// ProximityState classifies the user's position relative to the home point.
type ProximityState string

const (
	ProximityNearHome ProximityState = "NEAR_HOME"
	ProximityAway     ProximityState = "AWAY"
)

// Geofence event types recorded in the event log.
const (
	EventMonitoringStarted = "MONITORING_STARTED"
	EventMonitoringStopped = "MONITORING_STOPPED"
	EventLeftHome          = "LEFT_HOME"
	EventReturnedHome      = "RETURNED_HOME"
	EventHomeSet           = "HOME_SET"
	EventHomeCleared       = "HOME_CLEARED"
	EventDetectionSuccess  = "DETECTION_SUCCESS"
	EventDetectionFailure  = "DETECTION_FAILURE"
)

// GeofenceStatus is an immutable snapshot of the monitor, safe to hand to the
// HTTP layer while the sampling loop keeps running.
type GeofenceStatus struct {
	Running           bool             `json:"running"`
	Enabled           bool             `json:"enabled"`
	Proximity         ProximityState   `json:"proximity"`
	HomeLocation      *Coordinate      `json:"home_location,omitempty"`
	LastDistanceMiles float64          `json:"last_distance_miles,omitempty"`
	LastSampleAt      time.Time        `json:"last_sample_at,omitempty"`
	LastDetection     *DetectionResult `json:"last_detection,omitempty"`
	LastDetectionErr  string           `json:"last_detection_error,omitempty"`
}

// GeofenceEvent is a single entry in the append-only event log.
type GeofenceEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
