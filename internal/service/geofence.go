package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"stovewatch/internal/detection"
	"stovewatch/internal/geo"
	"stovewatch/internal/keepalive"
	"stovewatch/internal/location"
	"stovewatch/internal/logger"
	"stovewatch/internal/models"
	"stovewatch/internal/notify"
	"stovewatch/internal/repository"
)

// Defaults for the monitor. The radius is shared between classification and
// distance reporting so the two can never drift apart.
const (
	DefaultSampleInterval = 30 * time.Second
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultMaxAttempts    = 5
)

var (
	// ErrNoHomeLocation is the explicit result of starting without a home
	// location or setting one without usable coordinates. It is a normal
	// no-op outcome at the API boundary, not a fault.
	ErrNoHomeLocation = errors.New("no home location set")

	// ErrInvalidCoordinate rejects home locations without finite in-range
	// latitude/longitude.
	ErrInvalidCoordinate = errors.New("coordinate has no usable latitude/longitude")
)

// GeofenceConfig tunes the monitor. Zero values select defaults.
type GeofenceConfig struct {
	RadiusMeters   float64
	SampleInterval time.Duration
	RetryBaseDelay time.Duration
	MaxAttempts    int
}

func (c GeofenceConfig) withDefaults() GeofenceConfig {
	if c.RadiusMeters <= 0 {
		c.RadiusMeters = geo.DefaultRadiusMeters
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

type proximityTransition int

const (
	transitionNone proximityTransition = iota
	transitionDeparted
	transitionReturned
)

// GeofenceService is the monitor. All mutable state lives behind one mutex;
// the sampling loop is a single goroutine, so sampling steps (including any
// in-flight retry sequence with its backoff waits) never overlap.
type GeofenceService struct {
	settings repository.SettingsRepo
	events   repository.EventRepo
	provider location.Provider
	detector detection.Detector
	notifier notify.Notifier
	keep     keepalive.KeepAlive
	cfg      GeofenceConfig
	log      *logger.Logger

	mu                       sync.Mutex
	running                  bool
	enabled                  bool
	home                     *models.Coordinate
	proximity                models.ProximityState
	hasCheckedSinceDeparture bool
	lastDistanceMiles        float64
	lastSampleAt             time.Time
	lastDetection            *models.DetectionResult
	lastDetectionErr         string
	observer                 func(isNear bool, distanceMiles float64)
	cancel                   context.CancelFunc
	done                     chan struct{}
}

func NewGeofenceService(
	settings repository.SettingsRepo,
	events repository.EventRepo,
	provider location.Provider,
	detector detection.Detector,
	notifier notify.Notifier,
	keep keepalive.KeepAlive,
	cfg GeofenceConfig,
	log *logger.Logger,
) *GeofenceService {
	return &GeofenceService{
		settings:  settings,
		events:    events,
		provider:  provider,
		detector:  detector,
		notifier:  notifier,
		keep:      keep,
		cfg:       cfg.withDefaults(),
		log:       log,
		proximity: models.ProximityNearHome, // conservative default: assume at home
	}
}

// Restore loads the persisted home location and enabled flag. Load failures
// degrade to defaults (no home, disabled); losing settings must never prevent
// the daemon from booting.
func (s *GeofenceService) Restore(ctx context.Context) bool {
	home, err := s.settings.LoadHomeLocation(ctx)
	if err != nil {
		s.log.Errorw("load home location failed, starting without one", "err", err)
		home = nil
	}
	enabled, err := s.settings.LoadEnabled(ctx)
	if err != nil {
		s.log.Errorw("load enabled flag failed, starting disabled", "err", err)
		enabled = false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = home
	s.enabled = enabled
	return enabled && home != nil
}

// Start arms the monitor: one immediate sampling step, then a periodic timer.
// Without a home location it reports ErrNoHomeLocation; when already running
// it is a no-op.
func (s *GeofenceService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.home == nil {
		s.mu.Unlock()
		return ErrNoHomeLocation
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true
	s.enabled = true
	// Requested under the lock: a Stop racing this Start cannot release
	// before the request lands, which would leave the keep-alive held with
	// the monitor stopped.
	s.keep.Request()
	s.mu.Unlock()

	if err := s.settings.SaveEnabled(ctx, true); err != nil {
		s.log.Errorw("persist enabled flag failed", "err", err)
	}
	s.appendEvent(ctx, models.EventMonitoringStarted, "geofence monitoring started", nil)
	s.notifier.MonitoringStarted()

	go s.run(loopCtx, done)
	return nil
}

// Stop cancels the sampling loop and waits for it to exit, so no sampling
// step runs after Stop returns. Idempotent: the keep-alive release and the
// stopped notification fire on every call, guaranteeing the external resource
// is let go even after a missed stop.
func (s *GeofenceService) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	wasRunning := s.running
	s.running = false
	s.enabled = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done // cancellation is cooperative; backoff waits abort promptly
	}

	s.keep.Release()
	s.notifier.MonitoringStopped()
	if wasRunning {
		s.appendEvent(ctx, models.EventMonitoringStopped, "geofence monitoring stopped", nil)
	}
	if err := s.settings.SaveEnabled(ctx, false); err != nil {
		s.log.Errorw("persist enabled flag failed", "err", err)
	}
}

// Shutdown halts the sampling loop for process exit. Unlike Stop it leaves
// the persisted enabled flag untouched, so a daemon restart resumes
// monitoring where it left off.
func (s *GeofenceService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	wasRunning := s.running
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if wasRunning {
		s.keep.Release()
	}
}

// SetHomeLocation stores and persists a new home point. A new home
// invalidates any prior excursion bookkeeping, so the proximity state resets
// to NEAR_HOME and the per-excursion check guard re-arms.
func (s *GeofenceService) SetHomeLocation(ctx context.Context, loc models.Coordinate) error {
	if !loc.HasFix() {
		return ErrInvalidCoordinate
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.home = &loc
	s.proximity = models.ProximityNearHome
	s.hasCheckedSinceDeparture = false
	s.mu.Unlock()

	if err := s.settings.SaveHomeLocation(ctx, loc); err != nil {
		// Best-effort: the in-memory home stays usable for this process.
		s.log.Errorw("persist home location failed", "err", err)
	}
	s.appendEvent(ctx, models.EventHomeSet, "home location set", map[string]any{
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
	})
	s.notifier.HomeSet(loc)
	return nil
}

// ClearHomeLocation stops monitoring (a monitor without a home point has
// nothing to classify against) and removes the persisted record.
func (s *GeofenceService) ClearHomeLocation(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		s.Stop(ctx)
	}

	s.mu.Lock()
	s.home = nil
	s.proximity = models.ProximityNearHome
	s.hasCheckedSinceDeparture = false
	s.mu.Unlock()

	if err := s.settings.ClearHomeLocation(ctx); err != nil {
		s.log.Errorw("clear home location failed", "err", err)
		return err
	}
	s.appendEvent(ctx, models.EventHomeCleared, "home location cleared", nil)
	return nil
}

// Status returns an immutable snapshot; callers never see a live handle.
func (s *GeofenceService) Status() models.GeofenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.GeofenceStatus{
		Running:           s.running,
		Enabled:           s.enabled,
		Proximity:         s.proximity,
		LastDistanceMiles: s.lastDistanceMiles,
		LastSampleAt:      s.lastSampleAt,
		LastDetectionErr:  s.lastDetectionErr,
	}
	if s.home != nil {
		home := *s.home
		st.HomeLocation = &home
	}
	if s.lastDetection != nil {
		det := *s.lastDetection
		st.LastDetection = &det
	}
	return st
}

// SetObserver registers the presentation-layer callback invoked once per
// completed sampling step, whether or not a transition occurred.
func (s *GeofenceService) SetObserver(fn func(isNear bool, distanceMiles float64)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// CheckNow performs one on-demand detection attempt, outside the excursion
// bookkeeping: it neither consumes nor requires the per-departure guard.
func (s *GeofenceService) CheckNow(ctx context.Context) (models.DetectionResult, error) {
	res, err := s.detector.Check(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastDetectionErr = err.Error()
		s.mu.Unlock()
		s.appendEvent(ctx, models.EventDetectionFailure, "manual stove check failed", map[string]any{
			"error": err.Error(),
		})
		s.notifier.DetectionFailed(err.Error())
		return models.DetectionResult{}, err
	}

	s.mu.Lock()
	s.lastDetection = &res
	s.lastDetectionErr = ""
	s.mu.Unlock()
	s.appendEvent(ctx, models.EventDetectionSuccess, "manual stove check complete", detectionMeta(res))
	s.notifier.DetectionSucceeded(res)
	return res, nil
}

// run is the single sampling goroutine: one immediate step, then the ticker.
// Steps are serialized by construction; an individual step failure never
// stops the timer.
func (s *GeofenceService) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.sample(ctx)

	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

// sample is one sampling step: acquire a fix, classify, report, transition.
func (s *GeofenceService) sample(ctx context.Context) {
	s.mu.Lock()
	homePtr := s.home
	s.mu.Unlock()
	if homePtr == nil {
		return
	}
	home := *homePtr

	loc, err := s.provider.GetCurrentLocation(ctx)
	if err != nil || loc == nil || !loc.HasFix() {
		// Transient location misses are expected; skip the step without
		// touching the state machine.
		if err != nil && !errors.Is(err, location.ErrNoFix) && !errors.Is(err, context.Canceled) {
			s.log.Debugw("location unavailable this cycle", "err", err)
		}
		return
	}

	distMiles := geo.MetersToMiles(geo.DistanceMeters(home, *loc))
	nowNear := geo.IsNearHome(home, *loc, s.cfg.RadiusMeters)

	s.mu.Lock()
	wasNear := s.proximity == models.ProximityNearHome
	s.lastDistanceMiles = distMiles
	s.lastSampleAt = time.Now().UTC()

	transition := transitionNone
	switch {
	case wasNear && !nowNear:
		s.proximity = models.ProximityAway
		s.hasCheckedSinceDeparture = false
		transition = transitionDeparted
	case !wasNear && nowNear:
		s.proximity = models.ProximityNearHome
		s.hasCheckedSinceDeparture = false
		transition = transitionReturned
	}
	observer := s.observer
	s.mu.Unlock()

	// Side channel for presentation, independent of the transition logic.
	if observer != nil {
		observer(nowNear, distMiles)
	}

	switch transition {
	case transitionDeparted:
		s.log.Infow("departure detected", "distance_miles", distMiles)
		s.appendEvent(ctx, models.EventLeftHome, "left home", map[string]any{
			"distance_miles": distMiles,
		})
		s.notifier.LeftHome(distMiles)
		s.triggerDetection(ctx)
	case transitionReturned:
		s.log.Infow("return detected", "distance_miles", distMiles)
		s.appendEvent(ctx, models.EventReturnedHome, "returned home", nil)
		s.notifier.ReturnedHome()
	}
}

// triggerDetection performs the one logical stove check for the current
// excursion: up to MaxAttempts attempts, linear backoff (base delay times the
// attempt number) between retryable failures, exactly one terminal
// notification. Cancellation is checked at the top of every iteration and
// during backoff waits so Stop is never held up by a pending retry.
func (s *GeofenceService) triggerDetection(ctx context.Context) {
	s.mu.Lock()
	if s.hasCheckedSinceDeparture {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		res, err := s.detector.Check(ctx)
		if err == nil {
			s.mu.Lock()
			s.hasCheckedSinceDeparture = true
			s.lastDetection = &res
			s.lastDetectionErr = ""
			s.mu.Unlock()

			s.appendEvent(ctx, models.EventDetectionSuccess, "stove check complete", detectionMeta(res))
			s.notifier.DetectionSucceeded(res)
			return
		}

		if detection.IsRetryable(err) && attempt < s.cfg.MaxAttempts {
			s.log.Warnw("stove check attempt failed, retrying",
				"attempt", attempt, "max_attempts", s.cfg.MaxAttempts, "err", err)
			select {
			case <-time.After(s.cfg.RetryBaseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return
			}
			continue
		}

		// Terminal: non-retryable, or attempts exhausted. The excursion
		// still counts as checked so the loop does not hammer the service.
		s.mu.Lock()
		s.hasCheckedSinceDeparture = true
		s.lastDetection = nil
		s.lastDetectionErr = err.Error()
		s.mu.Unlock()

		s.appendEvent(ctx, models.EventDetectionFailure, "stove check failed", map[string]any{
			"error":    err.Error(),
			"attempts": attempt,
		})
		s.notifier.DetectionFailed(err.Error())
		return
	}
}

// appendEvent records history best-effort; a write failure must not abort the
// state transition that triggered it.
func (s *GeofenceService) appendEvent(ctx context.Context, typ, msg string, meta map[string]any) {
	e := models.GeofenceEvent{Type: typ, Description: msg}
	if meta != nil {
		e.Metadata = meta
	}
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Errorw("append event failed", "type", typ, "err", err)
	}
}

func detectionMeta(res models.DetectionResult) map[string]any {
	return map[string]any{
		"stove_is_on":      res.StoveIsOn,
		"on_knob_count":    res.OnKnobCount,
		"total_knob_count": res.TotalKnobCount,
	}
}
