package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stovewatch/internal/location"
	"stovewatch/internal/logger"
	"stovewatch/internal/models"
)

// ---- Collaborator stubs ----

// stubSettings is an in-memory SettingsRepo shared across service instances
// to simulate process restarts.
type stubSettings struct {
	mu      sync.Mutex
	home    *models.Coordinate
	enabled bool
	saveErr error
}

func (s *stubSettings) SaveHomeLocation(ctx context.Context, loc models.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := loc
	s.home = &cp
	return nil
}

func (s *stubSettings) LoadHomeLocation(ctx context.Context) (*models.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.home == nil {
		return nil, nil
	}
	cp := *s.home
	return &cp, nil
}

func (s *stubSettings) ClearHomeLocation(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = nil
	return nil
}

func (s *stubSettings) SaveEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.enabled = enabled
	return nil
}

func (s *stubSettings) LoadEnabled(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, nil
}

// stubEvents records appended events.
type stubEvents struct {
	mu     sync.Mutex
	events []models.GeofenceEvent
}

func (s *stubEvents) Append(ctx context.Context, e models.GeofenceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *stubEvents) List(ctx context.Context, from, to time.Time, typ string) ([]models.GeofenceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GeofenceEvent(nil), s.events...), nil
}

func (s *stubEvents) countByType(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// providerFunc adapts a func to location.Provider.
type providerFunc func(ctx context.Context) (*models.Coordinate, error)

func (f providerFunc) GetCurrentLocation(ctx context.Context) (*models.Coordinate, error) {
	return f(ctx)
}

// countingProvider serves a fixed coordinate and counts calls.
type countingProvider struct {
	mu    sync.Mutex
	loc   *models.Coordinate
	err   error
	calls int
}

func (p *countingProvider) GetCurrentLocation(ctx context.Context) (*models.Coordinate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if p.loc == nil {
		return nil, location.ErrNoFix
	}
	cp := *p.loc
	return &cp, nil
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// scriptedDetector fails or succeeds per attempt and records call times.
type scriptedDetector struct {
	mu      sync.Mutex
	results []error // per attempt; nil means success
	result  models.DetectionResult
	callsAt []time.Time
}

func (d *scriptedDetector) Check(ctx context.Context) (models.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callsAt = append(d.callsAt, time.Now())
	idx := len(d.callsAt) - 1
	if idx < len(d.results) && d.results[idx] != nil {
		return models.DetectionResult{}, d.results[idx]
	}
	return d.result, nil
}

func (d *scriptedDetector) calls() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.callsAt...)
}

// recordingNotifier counts every semantic event.
type recordingNotifier struct {
	mu        sync.Mutex
	started   int
	stopped   int
	left      int
	returned  int
	homeSet   int
	successes []models.DetectionResult
	failures  []string
}

func (n *recordingNotifier) MonitoringStarted() { n.mu.Lock(); n.started++; n.mu.Unlock() }
func (n *recordingNotifier) MonitoringStopped() { n.mu.Lock(); n.stopped++; n.mu.Unlock() }
func (n *recordingNotifier) LeftHome(float64)   { n.mu.Lock(); n.left++; n.mu.Unlock() }
func (n *recordingNotifier) ReturnedHome()      { n.mu.Lock(); n.returned++; n.mu.Unlock() }
func (n *recordingNotifier) HomeSet(models.Coordinate) {
	n.mu.Lock()
	n.homeSet++
	n.mu.Unlock()
}

func (n *recordingNotifier) DetectionSucceeded(res models.DetectionResult) {
	n.mu.Lock()
	n.successes = append(n.successes, res)
	n.mu.Unlock()
}

func (n *recordingNotifier) DetectionFailed(msg string) {
	n.mu.Lock()
	n.failures = append(n.failures, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) snapshot() (started, stopped, left, returned int, successes []models.DetectionResult, failures []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started, n.stopped, n.left, n.returned,
		append([]models.DetectionResult(nil), n.successes...),
		append([]string(nil), n.failures...)
}

// stubKeepAlive counts request/release calls.
type stubKeepAlive struct {
	mu       sync.Mutex
	requests int
	releases int
}

func (k *stubKeepAlive) Request() { k.mu.Lock(); k.requests++; k.mu.Unlock() }
func (k *stubKeepAlive) Release() { k.mu.Lock(); k.releases++; k.mu.Unlock() }

func (k *stubKeepAlive) counts() (int, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.requests, k.releases
}

// ---- Fixture ----

var (
	testHome = models.Coordinate{Latitude: 37.0, Longitude: -122.0}
	// ~556 m north of testHome: outside the default 321.868 m radius.
	awayFix = models.Coordinate{Latitude: 37.005, Longitude: -122.0}
	// ~55 m north of testHome: inside the radius.
	nearFix = models.Coordinate{Latitude: 37.0005, Longitude: -122.0}
)

type fixture struct {
	svc      *GeofenceService
	settings *stubSettings
	events   *stubEvents
	provider *countingProvider
	detector *scriptedDetector
	notifier *recordingNotifier
	keep     *stubKeepAlive
}

func newFixture(t *testing.T, cfg GeofenceConfig) *fixture {
	t.Helper()
	f := &fixture{
		settings: &stubSettings{},
		events:   &stubEvents{},
		provider: &countingProvider{},
		detector: &scriptedDetector{result: models.DetectionResult{StoveIsOn: true, OnKnobCount: 1, TotalKnobCount: 4}},
		notifier: &recordingNotifier{},
		keep:     &stubKeepAlive{},
	}
	f.svc = NewGeofenceService(f.settings, f.events, f.provider, f.detector, f.notifier, f.keep, cfg, logger.Nop())
	return f
}

// fastCfg keeps retry delays and sampling intervals test-sized.
func fastCfg() GeofenceConfig {
	return GeofenceConfig{
		SampleInterval: 20 * time.Millisecond,
		RetryBaseDelay: 10 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}

// ---- Tests ----

func TestGeofenceService_DepartureTriggersDetectionExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}

	// First away sample: NEAR_HOME -> AWAY.
	f.provider.loc = &awayFix
	f.svc.sample(ctx)

	_, _, left, returned, successes, failures := f.notifier.snapshot()
	if left != 1 || returned != 0 {
		t.Fatalf("transition notifications: want exactly one left-home, got left=%d returned=%d", left, returned)
	}
	if len(successes) != 1 || len(failures) != 0 {
		t.Fatalf("detection outcome: want one success, got successes=%d failures=%d", len(successes), len(failures))
	}
	if got := f.svc.Status().Proximity; got != models.ProximityAway {
		t.Errorf("proximity: want AWAY, got %v", got)
	}

	// Two further away samples: idempotent, no new detection.
	f.svc.sample(ctx)
	f.svc.sample(ctx)

	if calls := f.detector.calls(); len(calls) != 1 {
		t.Errorf("detector calls: want 1 per excursion, got %d", len(calls))
	}
	_, _, left, _, _, _ = f.notifier.snapshot()
	if left != 1 {
		t.Errorf("left-home notifications: want still 1, got %d", left)
	}
}

func TestGeofenceService_ReturnRearmsTheCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}

	f.provider.loc = &awayFix
	f.svc.sample(ctx) // departure #1

	f.provider.loc = &nearFix
	f.svc.sample(ctx) // return

	_, _, left, returned, _, _ := f.notifier.snapshot()
	if returned != 1 {
		t.Fatalf("returned-home notifications: want 1, got %d", returned)
	}
	if got := f.svc.Status().Proximity; got != models.ProximityNearHome {
		t.Fatalf("proximity after return: want NEAR_HOME, got %v", got)
	}

	f.provider.loc = &awayFix
	f.svc.sample(ctx) // departure #2: a fresh excursion re-arms the check

	if calls := f.detector.calls(); len(calls) != 2 {
		t.Errorf("detector calls: want 2 (one per excursion), got %d", len(calls))
	}
	_, _, left, _, _, _ = f.notifier.snapshot()
	if left != 2 {
		t.Errorf("left-home notifications: want 2, got %d", left)
	}
}

func TestGeofenceService_ReturnDoesNotTriggerDetection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}

	// Force AWAY first, then return without any departure check consumed.
	f.provider.loc = &awayFix
	f.svc.sample(ctx)
	before := len(f.detector.calls())

	f.provider.loc = &nearFix
	f.svc.sample(ctx)

	if got := len(f.detector.calls()); got != before {
		t.Errorf("return transition must not trigger detection: calls %d -> %d", before, got)
	}
}

func TestGeofenceService_MissingFixSkipsStepSilently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}

	var observerCalls int
	f.svc.SetObserver(func(bool, float64) { observerCalls++ })

	// Put the monitor AWAY, then starve it of fixes.
	f.provider.loc = &awayFix
	f.svc.sample(ctx)

	f.provider.loc = nil // provider reports ErrNoFix
	f.svc.sample(ctx)
	f.provider.err = errors.New("gps receiver offline")
	f.svc.sample(ctx)

	if got := f.svc.Status().Proximity; got != models.ProximityAway {
		t.Errorf("missing fix must not transition: want AWAY, got %v", got)
	}
	if observerCalls != 1 {
		t.Errorf("observer: want 1 call (only the completed step), got %d", observerCalls)
	}
}

func TestGeofenceService_ObserverSeesEveryCompletedStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}

	type obs struct {
		near  bool
		miles float64
	}
	var seen []obs
	f.svc.SetObserver(func(isNear bool, miles float64) {
		seen = append(seen, obs{isNear, miles})
	})

	f.provider.loc = &nearFix
	f.svc.sample(ctx) // no transition, still observed
	f.provider.loc = &awayFix
	f.svc.sample(ctx) // transition, observed too

	if len(seen) != 2 {
		t.Fatalf("observer calls: want 2, got %d", len(seen))
	}
	if !seen[0].near || seen[1].near {
		t.Errorf("observer classifications: want [near, away], got %+v", seen)
	}
	if seen[1].miles <= seen[0].miles {
		t.Errorf("reported distance must grow moving away: %+v", seen)
	}
}

func TestGeofenceService_RetryBackoffThenSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())
	f.detector.results = []error{
		errors.New("connection timeout"),
		errors.New("connection timeout"),
		errors.New("connection timeout"),
		nil, // attempt 4 succeeds
	}

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	f.provider.loc = &awayFix
	f.svc.sample(ctx)

	calls := f.detector.calls()
	if len(calls) != 4 {
		t.Fatalf("detector calls: want 4, got %d", len(calls))
	}

	_, _, _, _, successes, failures := f.notifier.snapshot()
	if len(successes) != 1 {
		t.Errorf("success notifications: want exactly 1, got %d", len(successes))
	}
	if len(failures) != 0 {
		t.Errorf("failure notifications: want 0, got %v", failures)
	}

	// Linear backoff: delays of base*1, base*2, base*3 between attempts.
	base := fastCfg().RetryBaseDelay
	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		want := base * time.Duration(i)
		if gap < want {
			t.Errorf("gap before attempt %d: want >= %v, got %v", i+1, want, gap)
		}
		if gap > want+100*time.Millisecond {
			t.Errorf("gap before attempt %d suspiciously long: %v", i+1, gap)
		}
	}
}

func TestGeofenceService_NonRetryableFailureStopsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())
	f.detector.results = []error{errors.New("invalid api key")}

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	f.provider.loc = &awayFix
	f.svc.sample(ctx)

	if calls := f.detector.calls(); len(calls) != 1 {
		t.Fatalf("non-retryable failure must not retry: want 1 call, got %d", len(calls))
	}
	_, _, _, _, successes, failures := f.notifier.snapshot()
	if len(failures) != 1 || len(successes) != 0 {
		t.Fatalf("want exactly one failure notification, got failures=%v successes=%d", failures, len(successes))
	}

	// The failed excursion still counts as checked.
	f.svc.sample(ctx)
	if calls := f.detector.calls(); len(calls) != 1 {
		t.Errorf("terminal failure must mark excursion checked: got %d calls", len(calls))
	}
}

func TestGeofenceService_RetriesExhaustedYieldsOneFailure(t *testing.T) {
	ctx := context.Background()
	cfg := fastCfg()
	cfg.MaxAttempts = 3
	f := newFixture(t, cfg)
	f.detector.results = []error{
		errors.New("request timeout"),
		errors.New("request timeout"),
		errors.New("request timeout"),
	}

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	f.provider.loc = &awayFix
	f.svc.sample(ctx)

	if calls := f.detector.calls(); len(calls) != 3 {
		t.Fatalf("detector calls: want MaxAttempts=3, got %d", len(calls))
	}
	_, _, _, _, successes, failures := f.notifier.snapshot()
	if len(failures) != 1 || len(successes) != 0 {
		t.Errorf("want exactly one terminal failure notification, got failures=%v successes=%d",
			failures, len(successes))
	}
	if f.events.countByType(models.EventDetectionFailure) != 1 {
		t.Errorf("want one DETECTION_FAILURE event recorded")
	}
}

func TestGeofenceService_StartWithoutHomeIsANoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.Start(ctx); !errors.Is(err, ErrNoHomeLocation) {
		t.Fatalf("Start without home: want ErrNoHomeLocation, got %v", err)
	}
	if f.svc.Status().Running {
		t.Errorf("monitor must not run without a home location")
	}
	if req, _ := f.keep.counts(); req != 0 {
		t.Errorf("keep-alive must not be requested on no-op start")
	}
}

func TestGeofenceService_StartCorrectsInitialStateFromLiveSample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())
	f.provider.loc = &awayFix

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer f.svc.Stop(ctx)

	waitFor(t, time.Second, func() bool {
		return f.svc.Status().Proximity == models.ProximityAway
	}, "initial sample to correct proximity to AWAY")

	waitFor(t, time.Second, func() bool {
		_, _, _, _, successes, _ := f.notifier.snapshot()
		return len(successes) == 1
	}, "departure detection after corrected initial state")
}

func TestGeofenceService_StartTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())
	f.provider.loc = &nearFix

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	defer f.svc.Stop(ctx)
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("second Start() must no-op, got %v", err)
	}

	if req, _ := f.keep.counts(); req != 1 {
		t.Errorf("keep-alive requests: want 1, got %d", req)
	}
	started, _, _, _, _, _ := f.notifier.snapshot()
	if started != 1 {
		t.Errorf("started notifications: want 1, got %d", started)
	}
}

func TestGeofenceService_StopIsIdempotentAndHaltsSampling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())
	f.provider.loc = &nearFix

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return f.provider.callCount() >= 2 }, "sampling to begin")

	f.svc.Stop(ctx)
	f.svc.Stop(ctx) // double stop must not panic

	_, releases := f.keep.counts()
	if releases != 2 {
		t.Errorf("keep-alive releases: want 2 (one per stop), got %d", releases)
	}
	_, stopped, _, _, _, _ := f.notifier.snapshot()
	if stopped != 2 {
		t.Errorf("stopped notifications: want 2, got %d", stopped)
	}

	// No further sampling after the first stop.
	after := f.provider.callCount()
	time.Sleep(5 * fastCfg().SampleInterval)
	if got := f.provider.callCount(); got != after {
		t.Errorf("sampling continued after stop: %d -> %d", after, got)
	}
	if got, _ := f.settings.LoadEnabled(ctx); got {
		t.Errorf("enabled flag must persist as false after stop")
	}
}

func TestGeofenceService_StopDuringBackoffCancelsRetries(t *testing.T) {
	ctx := context.Background()
	cfg := fastCfg()
	cfg.RetryBaseDelay = 200 * time.Millisecond
	f := newFixture(t, cfg)
	f.detector.results = []error{
		errors.New("connection timeout"),
		errors.New("connection timeout"),
		errors.New("connection timeout"),
		errors.New("connection timeout"),
		errors.New("connection timeout"),
	}
	f.provider.loc = &awayFix

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Wait until the first attempt has fired, then stop during its backoff.
	waitFor(t, time.Second, func() bool { return len(f.detector.calls()) >= 1 }, "first detection attempt")

	stopDone := make(chan struct{})
	go func() {
		f.svc.Stop(ctx)
		close(stopDone)
	}()

	select {
	case <-stopDone:
	case <-time.After(cfg.RetryBaseDelay / 2):
		t.Fatalf("Stop blocked on a pending retry wait")
	}

	attempts := len(f.detector.calls())
	time.Sleep(2 * cfg.RetryBaseDelay)
	if got := len(f.detector.calls()); got != attempts {
		t.Errorf("retries continued after stop: %d -> %d", attempts, got)
	}
	_, _, _, _, _, failures := f.notifier.snapshot()
	if len(failures) != 0 {
		t.Errorf("cancelled sequence must not emit a terminal notification, got %v", failures)
	}
}

func TestGeofenceService_SetHomeResetsExcursionBookkeeping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	f.provider.loc = &awayFix
	f.svc.sample(ctx) // AWAY, check consumed

	// A new home invalidates prior excursion bookkeeping.
	if err := f.svc.SetHomeLocation(ctx, models.Coordinate{Latitude: 40.0, Longitude: -105.0}); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	st := f.svc.Status()
	if st.Proximity != models.ProximityNearHome {
		t.Errorf("proximity after new home: want NEAR_HOME, got %v", st.Proximity)
	}

	// Departure from the new home triggers a fresh check.
	f.svc.sample(ctx)
	if calls := f.detector.calls(); len(calls) != 2 {
		t.Errorf("detector calls after re-homing: want 2, got %d", len(calls))
	}
}

func TestGeofenceService_SetHomeRejectsUnusableCoordinates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.SetHomeLocation(ctx, models.Coordinate{Latitude: 200, Longitude: 0}); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("want ErrInvalidCoordinate, got %v", err)
	}
	if f.svc.Status().HomeLocation != nil {
		t.Errorf("rejected coordinate must not become home")
	}
}

func TestGeofenceService_PersistedSettingsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())
	f.provider.loc = &nearFix

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.svc.Stop(ctx)
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("restart Start() error = %v", err)
	}
	defer f.svc.Stop(ctx)

	// "Restart": a fresh service against the same persisted store.
	reborn := NewGeofenceService(f.settings, f.events, f.provider, f.detector, f.notifier, f.keep, fastCfg(), logger.Nop())
	if !reborn.Restore(ctx) {
		t.Fatalf("Restore: want resumable (enabled with home present)")
	}
	st := reborn.Status()
	if st.HomeLocation == nil {
		t.Fatalf("restored home location missing")
	}
	if st.HomeLocation.Latitude != testHome.Latitude || st.HomeLocation.Longitude != testHome.Longitude {
		t.Errorf("restored home: want (%v,%v), got (%v,%v)",
			testHome.Latitude, testHome.Longitude, st.HomeLocation.Latitude, st.HomeLocation.Longitude)
	}
	if !st.Enabled {
		t.Errorf("restored enabled flag: want true")
	}
}

func TestGeofenceService_CheckNowDoesNotConsumeExcursionGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}

	if _, err := f.svc.CheckNow(ctx); err != nil {
		t.Fatalf("CheckNow() error = %v", err)
	}

	// The manual check above must not suppress the departure-triggered one.
	f.provider.loc = &awayFix
	f.svc.sample(ctx)

	if calls := f.detector.calls(); len(calls) != 2 {
		t.Errorf("detector calls: want manual + departure = 2, got %d", len(calls))
	}
	_, _, _, _, successes, _ := f.notifier.snapshot()
	if len(successes) != 2 {
		t.Errorf("success notifications: want 2, got %d", len(successes))
	}
}

func TestGeofenceService_ClearHomeStopsMonitorAndClearsRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())
	f.provider.loc = &nearFix

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := f.svc.ClearHomeLocation(ctx); err != nil {
		t.Fatalf("ClearHomeLocation() error = %v", err)
	}

	st := f.svc.Status()
	if st.Running || st.HomeLocation != nil {
		t.Errorf("after clear: want stopped with no home, got running=%v home=%v", st.Running, st.HomeLocation)
	}
	if loc, _ := f.settings.LoadHomeLocation(ctx); loc != nil {
		t.Errorf("persisted home record must be gone")
	}
	if err := f.svc.Start(ctx); !errors.Is(err, ErrNoHomeLocation) {
		t.Errorf("Start after clear: want ErrNoHomeLocation, got %v", err)
	}
}

func TestGeofenceService_ShutdownPreservesEnabledFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastCfg())
	f.provider.loc = &nearFix

	if err := f.svc.SetHomeLocation(ctx, testHome); err != nil {
		t.Fatalf("SetHomeLocation() error = %v", err)
	}
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.svc.Shutdown(ctx)

	if st := f.svc.Status(); st.Running {
		t.Errorf("after shutdown: monitor must not be running")
	}
	if requests, releases := f.keep.counts(); requests != 1 || releases != 1 {
		t.Errorf("keep-alive: want 1 request / 1 release, got %d / %d", requests, releases)
	}
	if enabled, _ := f.settings.LoadEnabled(ctx); !enabled {
		t.Errorf("persisted enabled flag must survive shutdown")
	}

	// A fresh process over the same store resumes monitoring.
	next := &fixture{
		settings: f.settings,
		events:   &stubEvents{},
		provider: &countingProvider{loc: &nearFix},
		detector: &scriptedDetector{},
		notifier: &recordingNotifier{},
		keep:     &stubKeepAlive{},
	}
	next.svc = NewGeofenceService(next.settings, next.events, next.provider, next.detector, next.notifier, next.keep, fastCfg(), logger.Nop())
	if !next.svc.Restore(ctx) {
		t.Fatalf("Restore() after shutdown must report resumable state")
	}
	if err := next.svc.Start(ctx); err != nil {
		t.Fatalf("resume Start() error = %v", err)
	}
	next.svc.Stop(ctx)
}

func TestGeofenceService_ShutdownBeforeStartIsHarmless(t *testing.T) {
	f := newFixture(t, fastCfg())
	f.svc.Shutdown(context.Background())
	if _, releases := f.keep.counts(); releases != 0 {
		t.Errorf("shutdown of an idle monitor must not release the keep-alive")
	}
}

// seqKeepAlive records the order of request/release calls.
type seqKeepAlive struct {
	mu  sync.Mutex
	ops []string
}

func (k *seqKeepAlive) Request() { k.mu.Lock(); k.ops = append(k.ops, "request"); k.mu.Unlock() }
func (k *seqKeepAlive) Release() { k.mu.Lock(); k.ops = append(k.ops, "release"); k.mu.Unlock() }

func (k *seqKeepAlive) lastOp() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.ops) == 0 {
		return ""
	}
	return k.ops[len(k.ops)-1]
}

func TestGeofenceService_RacingStopNeverLeavesKeepAliveHeld(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		keep := &seqKeepAlive{}
		svc := NewGeofenceService(
			&stubSettings{},
			&stubEvents{},
			&countingProvider{loc: &nearFix},
			&scriptedDetector{},
			&recordingNotifier{},
			keep,
			fastCfg(),
			logger.Nop(),
		)
		if err := svc.SetHomeLocation(ctx, testHome); err != nil {
			t.Fatalf("SetHomeLocation() error = %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _ = svc.Start(ctx) }()
		go func() { defer wg.Done(); svc.Stop(ctx) }()
		wg.Wait()

		// Whatever the interleaving, a stopped monitor must have released
		// the keep-alive after its last request.
		if !svc.Status().Running && keep.lastOp() == "request" {
			t.Fatalf("iteration %d: monitor stopped with the keep-alive still held", i)
		}
		svc.Stop(ctx)
	}
}
