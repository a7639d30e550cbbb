// Package notify routes the monitor's semantic events to whatever surfaces
// them to a human. Every call is fire-and-forget: implementations swallow
// their own failures so a broken transport can never stall the sampling loop.
package notify

import (
	"stovewatch/internal/logger"
	"stovewatch/internal/models"
)

// Notifier receives one call per semantic monitoring event.
type Notifier interface {
	MonitoringStarted()
	MonitoringStopped()
	LeftHome(distanceMiles float64)
	ReturnedHome()
	HomeSet(loc models.Coordinate)
	DetectionSucceeded(res models.DetectionResult)
	DetectionFailed(message string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) MonitoringStarted()                        {}
func (Nop) MonitoringStopped()                        {}
func (Nop) LeftHome(float64)                          {}
func (Nop) ReturnedHome()                             {}
func (Nop) HomeSet(models.Coordinate)                 {}
func (Nop) DetectionSucceeded(models.DetectionResult) {}
func (Nop) DetectionFailed(string)                    {}

// Multi fans each event out to every wrapped notifier in order.
type Multi []Notifier

func (m Multi) MonitoringStarted() {
	for _, n := range m {
		n.MonitoringStarted()
	}
}

func (m Multi) MonitoringStopped() {
	for _, n := range m {
		n.MonitoringStopped()
	}
}

func (m Multi) LeftHome(distanceMiles float64) {
	for _, n := range m {
		n.LeftHome(distanceMiles)
	}
}

func (m Multi) ReturnedHome() {
	for _, n := range m {
		n.ReturnedHome()
	}
}

func (m Multi) HomeSet(loc models.Coordinate) {
	for _, n := range m {
		n.HomeSet(loc)
	}
}

func (m Multi) DetectionSucceeded(res models.DetectionResult) {
	for _, n := range m {
		n.DetectionSucceeded(res)
	}
}

func (m Multi) DetectionFailed(message string) {
	for _, n := range m {
		n.DetectionFailed(message)
	}
}

// LogNotifier surfaces events through the application log.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) MonitoringStarted() {
	n.log.Infow("monitoring started")
}

func (n *LogNotifier) MonitoringStopped() {
	n.log.Infow("monitoring stopped")
}

func (n *LogNotifier) LeftHome(distanceMiles float64) {
	n.log.Infow("left home", "distance_miles", distanceMiles)
}

func (n *LogNotifier) ReturnedHome() {
	n.log.Infow("returned home")
}

func (n *LogNotifier) HomeSet(loc models.Coordinate) {
	n.log.Infow("home location set", "lat", loc.Latitude, "lon", loc.Longitude)
}

func (n *LogNotifier) DetectionSucceeded(res models.DetectionResult) {
	n.log.Infow("stove check complete",
		"stove_on", res.StoveIsOn,
		"on_knobs", res.OnKnobCount,
		"total_knobs", res.TotalKnobCount,
	)
}

func (n *LogNotifier) DetectionFailed(message string) {
	n.log.Errorw("stove check failed", "err", message)
}
