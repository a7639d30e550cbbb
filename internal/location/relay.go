package location

import (
	"context"
	"sync"
	"time"

	"stovewatch/internal/models"
)

// DefaultMaxFixAge bounds how stale a pushed fix may be before the relay
// reports no fix. Stale positions are worse than none: classifying a geofence
// transition on an old fix would notify about a departure that already ended.
const DefaultMaxFixAge = 2 * time.Minute

// Relay is a push-style Provider: a companion device POSTs fixes to the API,
// the monitor reads the freshest one. Safe for concurrent use.
type Relay struct {
	mu     sync.Mutex
	last   *models.Coordinate
	maxAge time.Duration
	now    func() time.Time
}

// NewRelay builds a relay. maxAge <= 0 selects DefaultMaxFixAge.
func NewRelay(maxAge time.Duration) *Relay {
	if maxAge <= 0 {
		maxAge = DefaultMaxFixAge
	}
	return &Relay{maxAge: maxAge, now: time.Now}
}

// Push records a new fix. Fixes without usable coordinates are dropped. A fix
// without a timestamp is stamped on arrival.
func (r *Relay) Push(loc models.Coordinate) bool {
	if !loc.HasFix() {
		return false
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = r.now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &loc
	return true
}

// GetCurrentLocation returns a copy of the freshest fix, or ErrNoFix when
// nothing has been pushed or the last fix is older than the staleness window.
func (r *Relay) GetCurrentLocation(ctx context.Context) (*models.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil, ErrNoFix
	}
	if r.now().Sub(r.last.Timestamp) > r.maxAge {
		return nil, ErrNoFix
	}
	cp := *r.last
	return &cp, nil
}
