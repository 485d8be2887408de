// README: Supervisor tests: reroute, ETA, pre-emption, lifecycle, and per-corridor concurrency (run with -race).
package corridor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greencorridor/internal/geo"
	"greencorridor/internal/modules/bias"
	"greencorridor/internal/modules/routing"
	"greencorridor/internal/modules/signal"
	"greencorridor/internal/types"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type memStore struct {
	mu         sync.Mutex
	corridors  map[types.ID]*Corridor
	fixes      []PositionFix
	liveETA    map[types.ID]int64
	avgSpeed   float64
	speedCount int
}

func newMemStore(cs ...Corridor) *memStore {
	s := &memStore{corridors: map[types.ID]*Corridor{}, liveETA: map[types.ID]int64{}}
	for i := range cs {
		c := cs[i]
		s.corridors[c.ID] = &c
	}
	return s
}

func (s *memStore) Get(_ context.Context, id types.ID) (*Corridor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corridors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) MarkStarted(_ context.Context, id types.ID, route routing.Route, predicted int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.corridors[id]
	c.Route = &route
	c.PredictedETA = predicted
	if c.StartedAt == nil {
		c.StartedAt = &at
	}
	return nil
}

func (s *memStore) UpdateRoute(_ context.Context, id types.ID, route routing.Route, predicted int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.corridors[id]
	c.Route = &route
	c.PredictedETA = predicted
	return nil
}

func (s *memStore) UpdateETA(_ context.Context, id types.ID, live int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveETA[id] = live
	return nil
}

func (s *memStore) MarkCompleted(_ context.Context, id types.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corridors[id].CompletedAt = &at
	return nil
}

func (s *memStore) AppendFix(_ context.Context, fix PositionFix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixes = append(s.fixes, fix)
	return nil
}

func (s *memStore) AverageSpeedSince(context.Context, time.Time) (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avgSpeed, s.speedCount, nil
}

func (s *memStore) fixCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fixes)
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, origin, destination types.Point) ([]routing.Route, error)
}

func (p *fakeProvider) FetchCandidateRoutes(ctx context.Context, origin, destination types.Point) ([]routing.Route, error) {
	p.mu.Lock()
	p.calls++
	fn := p.fn
	p.mu.Unlock()
	if fn == nil {
		return nil, errors.New("no routes configured")
	}
	return fn(ctx, origin, destination)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingSink) Publish(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

func (r *recordingSink) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Phase)
	}
	return out
}

// stuckSink never returns on its own; it only honours ctx.
type stuckSink struct {
	mu       sync.Mutex
	calls    int
	timeouts int
}

func (s *stuckSink) Publish(ctx context.Context, _ Snapshot) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	s.mu.Lock()
	s.timeouts++
	s.mu.Unlock()
	return ctx.Err()
}

func (s *stuckSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.timeouts
}

type zeroBias struct{}

func (zeroBias) Current(context.Context) bias.Model { return bias.Model{} }

type recordingLearner struct {
	mu       sync.Mutex
	outcomes []bias.Outcome
}

func (l *recordingLearner) Learn(_ context.Context, o bias.Outcome) (bias.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
	return bias.Apply(bias.Model{}, o), nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var (
	origin      = types.Point{Lat: 9.9930, Lng: 76.2990}
	destination = geo.Offset(origin, 1000, 0)
	clock0      = time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)
)

func straightRoute(from, to types.Point, base float64) routing.Route {
	return routing.Route{
		Waypoints:           []types.Point{from, to},
		DistanceMeters:      geo.Distance(from, to),
		BaseDurationSeconds: base,
	}
}

func fixedRoutes(routes ...routing.Route) func(context.Context, types.Point, types.Point) ([]routing.Route, error) {
	return func(context.Context, types.Point, types.Point) ([]routing.Route, error) {
		return routes, nil
	}
}

type harness struct {
	sup      *Supervisor
	store    *memStore
	provider *fakeProvider
	sink     *recordingSink
	learner  *recordingLearner
	registry *signal.MemoryRegistry
	now      time.Time
	mu       sync.Mutex
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func newHarness(t *testing.T, cs ...Corridor) *harness {
	t.Helper()
	return newHarnessWith(t, nil, Config{ProviderTimeout: 50 * time.Millisecond, Location: time.UTC}, cs...)
}

// newHarnessWith replaces the recording sink when sink is non-nil.
func newHarnessWith(t *testing.T, sink Broadcaster, cfg Config, cs ...Corridor) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(cs...),
		provider: &fakeProvider{},
		sink:     &recordingSink{},
		learner:  &recordingLearner{},
		registry: signal.NewMemoryRegistry(),
		now:      clock0,
	}
	locator := signal.NewLocator(h.registry)
	var out Broadcaster = h.sink
	if sink != nil {
		out = sink
	}
	h.sup = NewSupervisor(Deps{
		Store:     h.store,
		Provider:  h.provider,
		Evaluator: routing.NewEvaluator(locator, zeroBias{}, 2),
		Signals:   locator,
		Engine:    signal.NewEngine(h.registry),
		Sink:      out,
		Biases:    zeroBias{},
		Learner:   h.learner,
	}, cfg)
	h.sup.now = func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	t.Cleanup(h.sup.stop)
	return h
}

func plannedCorridor(id types.ID, crit types.Criticality) Corridor {
	r := straightRoute(origin, destination, 100)
	return Corridor{
		ID:          id,
		Criticality: crit,
		Congestion:  types.CongestionLow,
		Origin:      origin,
		Destination: destination,
		Route:       &r,
	}
}

func speed(v float64) *float64 { return &v }

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestIsDeviated_Boundary(t *testing.T) {
	assert.False(t, IsDeviated(50.0))
	assert.True(t, IsDeviated(50.01))
	assert.False(t, IsDeviated(0))
}

func TestHandleFix_EndToEndETAAndReroute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-1", types.CriticalityCritical))

	_, err := h.sup.Start(ctx, "gc-1")
	require.NoError(t, err)

	snap, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-1", Position: origin, Speed: speed(10)})
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.ETA.Seconds)
	assert.False(t, snap.Rerouted)
	assert.Equal(t, 0, h.provider.callCount())

	offRoute := geo.Offset(origin, 0, 60)
	detour := straightRoute(offRoute, destination, 110)
	h.provider.fn = fixedRoutes(detour)

	snap, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-1", Position: offRoute, Speed: speed(10)})
	require.NoError(t, err)
	assert.True(t, snap.Rerouted)
	assert.Equal(t, 1, h.provider.callCount())
	assert.Equal(t, detour.Waypoints, snap.Route.Waypoints)
	assert.Equal(t, PhaseTracking, snap.Phase)
	assert.InDelta(t, 60.0, snap.DeviationMeters, 0.5)

	stored, err := h.store.Get(ctx, "gc-1")
	require.NoError(t, err)
	assert.Equal(t, detour.Waypoints, stored.Route.Waypoints)
	assert.Equal(t, 2, h.store.fixCount())
}

func TestHandleFix_DeviationThresholdGeometry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-2", types.CriticalityCritical))
	h.provider.fn = fixedRoutes(straightRoute(origin, destination, 90))
	_, err := h.sup.Start(ctx, "gc-2")
	require.NoError(t, err)
	startCalls := h.provider.callCount()

	snap, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-2", Position: geo.Offset(origin, 0, 49)})
	require.NoError(t, err)
	assert.False(t, snap.Rerouted)
	assert.Equal(t, startCalls, h.provider.callCount())

	snap, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-2", Position: geo.Offset(origin, 0, 51)})
	require.NoError(t, err)
	assert.True(t, snap.Rerouted)
	assert.Equal(t, startCalls+1, h.provider.callCount())
}

func TestHandleFix_ProviderFailureKeepsStaleRoute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-3", types.CriticalityStable))
	_, err := h.sup.Start(ctx, "gc-3")
	require.NoError(t, err)

	h.provider.fn = func(context.Context, types.Point, types.Point) ([]routing.Route, error) {
		return nil, errors.New("upstream 503")
	}
	snap, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-3", Position: geo.Offset(origin, 0, 200)})
	require.NoError(t, err)
	assert.False(t, snap.Rerouted)
	assert.False(t, snap.Route.IsSynthetic)
	assert.Equal(t, []types.Point{origin, destination}, snap.Route.Waypoints)

	h.provider.fn = fixedRoutes(routing.Route{Waypoints: []types.Point{origin}})
	snap, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-3", Position: geo.Offset(origin, 0, 200)})
	require.NoError(t, err)
	assert.False(t, snap.Rerouted)
}

func TestHandleFix_ProviderTimeoutIsBounded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-4", types.CriticalityCritical))
	_, err := h.sup.Start(ctx, "gc-4")
	require.NoError(t, err)

	h.provider.fn = func(ctx context.Context, _, _ types.Point) ([]routing.Route, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	start := time.Now()
	snap, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-4", Position: geo.Offset(origin, 0, 300)})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, snap.Rerouted)
}

func TestHandleFix_ContractErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-5", types.CriticalityCritical))

	_, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-5", Position: origin})
	assert.ErrorIs(t, err, ErrNotTracked)

	_, err = h.sup.Start(ctx, "gc-5")
	require.NoError(t, err)

	before := h.store.fixCount()
	_, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-5", Position: types.Point{Lat: math.NaN(), Lng: 76}})
	assert.ErrorIs(t, err, ErrMalformedFix)
	_, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-5", Position: types.Point{Lat: 95, Lng: 76}})
	assert.ErrorIs(t, err, ErrMalformedFix)
	_, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-5", Position: origin, Speed: speed(math.Inf(1))})
	assert.ErrorIs(t, err, ErrMalformedFix)
	assert.Equal(t, before, h.store.fixCount())

	_, err = h.sup.Complete(ctx, "gc-5")
	require.NoError(t, err)
	_, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-5", Position: origin})
	assert.ErrorIs(t, err, ErrTerminated)
	assert.ErrorIs(t, h.sup.Submit(PositionFix{CorridorID: "gc-5", Position: origin}), ErrTerminated)
	_, err = h.sup.Complete(ctx, "gc-5")
	assert.ErrorIs(t, err, ErrTerminated)
	_, err = h.sup.Start(ctx, "gc-5")
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestStart_PlansSyntheticRouteWhenProviderFails(t *testing.T) {
	ctx := context.Background()
	c := plannedCorridor("gc-6", types.CriticalityVeryCritical)
	c.Route = nil
	h := newHarness(t, c)

	snap, err := h.sup.Start(ctx, "gc-6")
	require.NoError(t, err)
	assert.True(t, snap.Route.IsSynthetic)
	assert.Len(t, snap.Route.Waypoints, 15)
	assert.Equal(t, 1, h.provider.callCount())
	assert.Greater(t, snap.ETA.Seconds, int64(0))

	stored, err := h.store.Get(ctx, "gc-6")
	require.NoError(t, err)
	require.NotNil(t, stored.Route)
	require.NotNil(t, stored.StartedAt)
	assert.Equal(t, snap.ETA.Seconds, stored.PredictedETA)

	again, err := h.sup.Start(ctx, "gc-6")
	require.NoError(t, err)
	assert.Equal(t, snap.Route.Waypoints, again.Route.Waypoints)
}

func TestStart_UnknownCorridor(t *testing.T) {
	h := newHarness(t)
	_, err := h.sup.Start(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComplete_FeedsLearner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-7", types.CriticalityCritical))

	snap, err := h.sup.Start(ctx, "gc-7")
	require.NoError(t, err)
	h.advance(120 * time.Second)

	_, err = h.sup.Complete(ctx, "gc-7")
	require.NoError(t, err)
	require.Len(t, h.learner.outcomes, 1)
	o := h.learner.outcomes[0]
	assert.Equal(t, clock0, o.StartedAt)
	assert.Equal(t, clock0.Add(120*time.Second), o.CompletedAt)
	assert.InDelta(t, float64(snap.ETA.Seconds), o.PredictedETA, 1e-9)

	final, err := h.sup.Snapshot("gc-7")
	require.NoError(t, err)
	assert.Equal(t, PhaseTerminated, final.Phase)
}

func TestHandleFix_PreemptsSignalAheadAfterETA(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-8", types.CriticalityCritical))
	sigPos := geo.Offset(origin, 1000, 10)
	require.NoError(t, h.registry.Upsert(ctx, signal.Signal{ID: "sig-1", Position: sigPos, Operational: true, State: signal.LightRed}))

	_, err := h.sup.Start(ctx, "gc-8")
	require.NoError(t, err)

	far, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-8", Position: origin, Speed: speed(10)})
	require.NoError(t, err)
	assert.Equal(t, int64(112), far.ETA.Seconds)
	assert.Empty(t, far.ClearedSignals)

	nearPos := geo.Offset(origin, 960, 0)
	near, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-8", Position: nearPos, Speed: speed(10)})
	require.NoError(t, err)
	require.Len(t, near.ClearedSignals, 1)
	assert.Equal(t, types.ID("sig-1"), near.ClearedSignals[0].ID)
	assert.Equal(t, 1, near.ETA.Breakdown.RedSignalsAhead, "ETA uses pre-pre-emption states")

	stored, err := h.registry.Get(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, signal.LightGreen, stored.State)
	assert.Equal(t, h.now.Add(60*time.Second), stored.Override.ScheduledRestoreAt)
}

// blockingProvider records the maximum number of concurrent calls per corridor.
type blockingProvider struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	release  chan struct{}
}

func (p *blockingProvider) FetchCandidateRoutes(ctx context.Context, o, d types.Point) ([]routing.Route, error) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()
	select {
	case <-p.release:
	case <-time.After(5 * time.Millisecond):
	}
	return []routing.Route{straightRoute(o, d, 80)}, nil
}

func TestHandleFix_SerializedPerCorridor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-9", types.CriticalityCritical))
	_, err := h.sup.Start(ctx, "gc-9")
	require.NoError(t, err)

	bp := &blockingProvider{release: make(chan struct{})}
	h.sup.d.Provider = bp

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Fixes land on both sides of the route so most of them deviate.
			east := 300.0
			if i%2 == 1 {
				east = -300
			}
			_, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-9", Position: geo.Offset(origin, float64(i), east)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, bp.maxSeen)
	assert.Equal(t, 16, h.store.fixCount())
}

// rendezvousProvider blocks each call until a call for the other corridor arrives.
type rendezvousProvider struct {
	arrived chan string
	ok      chan bool
}

func (p *rendezvousProvider) FetchCandidateRoutes(ctx context.Context, o, d types.Point) ([]routing.Route, error) {
	p.arrived <- "call"
	select {
	case <-p.ok:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []routing.Route{straightRoute(o, d, 80)}, nil
}

func TestHandleFix_CorridorsRunInParallel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-a", types.CriticalityCritical), plannedCorridor("gc-b", types.CriticalityStable))
	h.sup.cfg.ProviderTimeout = 2 * time.Second
	for _, id := range []types.ID{"gc-a", "gc-b"} {
		_, err := h.sup.Start(ctx, id)
		require.NoError(t, err)
	}

	rp := &rendezvousProvider{arrived: make(chan string, 2), ok: make(chan bool)}
	h.sup.d.Provider = rp

	results := make(chan Snapshot, 2)
	for _, id := range []types.ID{"gc-a", "gc-b"} {
		go func(id types.ID) {
			snap, _ := h.sup.HandleFix(ctx, PositionFix{CorridorID: id, Position: geo.Offset(origin, 0, 400)})
			results <- snap
		}(id)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-rp.arrived:
		case <-time.After(time.Second):
			t.Fatal("second corridor blocked behind the first")
		}
	}
	close(rp.ok)
	for i := 0; i < 2; i++ {
		assert.True(t, (<-results).Rerouted)
	}
}

func TestSubmit_CoalescesToLatestFix(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, plannedCorridor("gc-10", types.CriticalityCritical))
	_, err := h.sup.Start(ctx, "gc-10")
	require.NoError(t, err)

	var last types.Point
	for i := 0; i < 50; i++ {
		last = geo.Offset(origin, float64(i*10), 0)
		require.NoError(t, h.sup.Submit(PositionFix{CorridorID: "gc-10", Position: last}))
	}

	require.Eventually(t, func() bool {
		snap, err := h.sup.Snapshot("gc-10")
		return err == nil && snap.LastFix != nil && snap.LastFix.Position == last
	}, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, h.store.fixCount(), 50)

	assert.ErrorIs(t, h.sup.Submit(PositionFix{CorridorID: "gc-10", Position: types.Point{Lat: 200}}), ErrMalformedFix)
	assert.ErrorIs(t, h.sup.Submit(PositionFix{CorridorID: "other", Position: origin}), ErrNotTracked)
}

func TestRun_StopsTrackers(t *testing.T) {
	h := newHarness(t, plannedCorridor("gc-11", types.CriticalityCritical))
	_, err := h.sup.Start(context.Background(), "gc-11")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.sup.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCongestionFromSpeed(t *testing.T) {
	tests := []struct {
		avg  float64
		want types.CongestionLevel
	}{
		{0, types.CongestionHigh},
		{4.99, types.CongestionHigh},
		{5, types.CongestionMedium},
		{7.99, types.CongestionMedium},
		{8, types.CongestionLow},
		{20, types.CongestionLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CongestionFromSpeed(tt.avg), "avg=%v", tt.avg)
	}
}

func TestPlan_UsesEstimatedCongestion(t *testing.T) {
	ctx := context.Background()
	c := plannedCorridor("gc-12", types.CriticalityStable)
	c.Route = nil
	h := newHarness(t, c)
	h.store.avgSpeed, h.store.speedCount = 3, 10

	// Under HIGH congestion the cheaper base wins: 100*1.35 < 120*1.35.
	short := straightRoute(origin, destination, 100)
	long := straightRoute(origin, geo.Offset(destination, 0, 1), 120)
	h.provider.fn = fixedRoutes(long, short)

	snap, err := h.sup.Start(ctx, "gc-12")
	require.NoError(t, err)
	assert.Equal(t, short.Waypoints, snap.Route.Waypoints)
}

func TestHandleFix_StuckSinkDoesNotStallCorridor(t *testing.T) {
	sink := &stuckSink{}
	h := newHarnessWith(t, sink, Config{
		ProviderTimeout: 50 * time.Millisecond,
		Location:        time.UTC,
		PublishTimeout:  20 * time.Millisecond,
		PublishQueue:    4,
	}, plannedCorridor("gc-20", types.CriticalityCritical))

	_, err := h.sup.Start(context.Background(), "gc-20")
	require.NoError(t, err)
	require.NoError(t, h.sup.Submit(PositionFix{CorridorID: "gc-20", Position: origin}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	began := time.Now()
	for i := 0; i < 20; i++ {
		_, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-20", Position: geo.Offset(origin, float64(i*10), 0)})
		require.NoError(t, err)
	}
	_, err = h.sup.Complete(ctx, "gc-20")
	require.NoError(t, err)
	assert.Less(t, time.Since(began), 500*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, timeouts := sink.counts()
		return timeouts >= 1
	}, time.Second, 5*time.Millisecond, "publish calls are cut off by the publish timeout")
}

func TestComplete_RetiresTracker(t *testing.T) {
	ctx := context.Background()
	h := newHarnessWith(t, nil, Config{
		ProviderTimeout:   50 * time.Millisecond,
		Location:          time.UTC,
		FinishedRetention: time.Minute,
	}, plannedCorridor("gc-21", types.CriticalityCritical), plannedCorridor("gc-22", types.CriticalityStable))

	_, err := h.sup.Start(ctx, "gc-21")
	require.NoError(t, err)
	_, err = h.sup.Complete(ctx, "gc-21")
	require.NoError(t, err)

	h.sup.mu.RLock()
	assert.Empty(t, h.sup.trackers)
	assert.Contains(t, h.sup.finished, types.ID("gc-21"))
	h.sup.mu.RUnlock()

	_, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-21", Position: origin})
	assert.ErrorIs(t, err, ErrTerminated)
	final, err := h.sup.Snapshot("gc-21")
	require.NoError(t, err)
	assert.Equal(t, PhaseTerminated, final.Phase)

	// A later completion prunes finished entries past retention.
	h.advance(2 * time.Minute)
	_, err = h.sup.Start(ctx, "gc-22")
	require.NoError(t, err)
	_, err = h.sup.Complete(ctx, "gc-22")
	require.NoError(t, err)

	h.sup.mu.RLock()
	assert.Empty(t, h.sup.trackers)
	assert.NotContains(t, h.sup.finished, types.ID("gc-21"))
	assert.Contains(t, h.sup.finished, types.ID("gc-22"))
	h.sup.mu.RUnlock()

	_, err = h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-21", Position: origin})
	assert.ErrorIs(t, err, ErrNotTracked)
}

// gatedProvider blocks until release is closed.
type gatedProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (p *gatedProvider) FetchCandidateRoutes(ctx context.Context, o, d types.Point) ([]routing.Route, error) {
	p.entered <- struct{}{}
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []routing.Route{straightRoute(o, d, 80)}, nil
}

func TestHandleFix_ReroutingPhaseVisibleDuringFetch(t *testing.T) {
	ctx := context.Background()
	h := newHarnessWith(t, nil, Config{ProviderTimeout: time.Second, Location: time.UTC},
		plannedCorridor("gc-23", types.CriticalityCritical))
	_, err := h.sup.Start(ctx, "gc-23")
	require.NoError(t, err)

	gp := &gatedProvider{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h.sup.d.Provider = gp

	done := make(chan Snapshot, 1)
	go func() {
		snap, err := h.sup.HandleFix(ctx, PositionFix{CorridorID: "gc-23", Position: geo.Offset(origin, 0, 80)})
		assert.NoError(t, err)
		done <- snap
	}()

	<-gp.entered
	during, err := h.sup.Snapshot("gc-23")
	require.NoError(t, err)
	assert.Equal(t, PhaseRerouting, during.Phase)
	assert.InDelta(t, 80.0, during.DeviationMeters, 0.5)

	close(gp.release)
	after := <-done
	assert.Equal(t, PhaseTracking, after.Phase)
	assert.True(t, after.Rerouted)

	assert.Eventually(t, func() bool {
		p := h.sink.phases()
		return len(p) >= 3 && p[len(p)-2] == PhaseRerouting && p[len(p)-1] == PhaseTracking
	}, time.Second, 5*time.Millisecond)
}
