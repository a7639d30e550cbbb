// Package location abstracts where the daemon gets location fixes from: a
// companion device pushing fixes over the API, or an HTTP endpoint it polls.
package location

import (
	"context"
	"errors"

	"stovewatch/internal/models"
)

// ErrNoFix means no usable location is available right now. The monitor
// treats it as "skip this sampling cycle", never as a geofence transition.
var ErrNoFix = errors.New("no current location fix")

// Provider supplies the current location. Implementations may block on slow
// I/O and must honor ctx cancellation.
type Provider interface {
	GetCurrentLocation(ctx context.Context) (*models.Coordinate, error)
}
