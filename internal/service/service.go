package service

import (
	"context"
	"time"

	"stovewatch/internal/detection"
	"stovewatch/internal/keepalive"
	"stovewatch/internal/location"
	"stovewatch/internal/logger"
	"stovewatch/internal/models"
	"stovewatch/internal/notify"
	"stovewatch/internal/repository"
)

// Geofence owns the proximity state machine: periodic location sampling,
// home/away transitions, and the at-most-once-per-excursion stove check.
type Geofence interface {
	// Restore loads persisted settings and reports whether monitoring was
	// enabled with a home location present (i.e. whether Start should be
	// called to resume after a restart).
	Restore(ctx context.Context) bool
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	// Shutdown halts the loop without clearing the persisted enabled flag.
	Shutdown(ctx context.Context)
	SetHomeLocation(ctx context.Context, loc models.Coordinate) error
	ClearHomeLocation(ctx context.Context) error
	Status() models.GeofenceStatus
	SetObserver(fn func(isNear bool, distanceMiles float64))
	CheckNow(ctx context.Context) (models.DetectionResult, error)
}

// EventLog exposes append-only history with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.GeofenceEvent, error)
}

// LogFilter selects events by inclusive time range and/or type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", or one of the models.Event* constants
}

// Service aggregates all sub-services.
type Service struct {
	Geofence
	EventLog
}

// NewService wires the repository layer and collaborators into concrete
// services. Every dependency is passed explicitly so tests can substitute
// doubles; nothing here is process-global.
func NewService(
	repos *repository.Repository,
	provider location.Provider,
	detector detection.Detector,
	notifier notify.Notifier,
	keep keepalive.KeepAlive,
	cfg GeofenceConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		Geofence: NewGeofenceService(repos.Settings, repos.Events, provider, detector, notifier, keep, cfg, log),
		EventLog: NewEventLogService(repos.Events),
	}
}
