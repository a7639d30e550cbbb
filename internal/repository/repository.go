package repository

import (
	"context"
	"database/sql"
	"time"

	"stovewatch/internal/models"
	dbinit "stovewatch/internal/repository/db"
)

// SettingsRepo stores the two persisted records the monitor needs to survive a
// restart: the home location and the monitoring-enabled flag. Loads degrade to
// "absent" on missing or unparsable records; they never fail past this layer
// for anything but real I/O errors.
type SettingsRepo interface {
	SaveHomeLocation(ctx context.Context, loc models.Coordinate) error
	LoadHomeLocation(ctx context.Context) (*models.Coordinate, error)
	ClearHomeLocation(ctx context.Context) error
	SaveEnabled(ctx context.Context, enabled bool) error
	LoadEnabled(ctx context.Context) (bool, error)
}

// EventRepo is the append-only geofence event log.
type EventRepo interface {
	Append(ctx context.Context, e models.GeofenceEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.GeofenceEvent, error)
}

type Repository struct {
	Settings SettingsRepo
	Events   EventRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Settings: NewSettingsSQLite(db),
		Events:   NewEventSQLite(db),
	}
}

// InitDB re-exports the connection bootstrap so callers wire one package.
func InitDB(path string) (*sql.DB, error) {
	return dbinit.InitDB(path)
}
