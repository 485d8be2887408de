// README: Movement supervisor; serializes fixes per corridor, reroutes on deviation, drives ETA and signals.
package corridor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"greencorridor/internal/geo"
	"greencorridor/internal/modules/bias"
	"greencorridor/internal/modules/eta"
	"greencorridor/internal/modules/routing"
	"greencorridor/internal/modules/signal"
	"greencorridor/internal/types"
)

var (
	ErrNotFound     = errors.New("corridor not found")
	ErrNotUpdated   = errors.New("corridor not updated")
	ErrMalformedFix = errors.New("malformed position fix")
	ErrTerminated   = errors.New("corridor terminated")
	ErrNotTracked   = errors.New("corridor not tracked")
)

type RouteProvider interface {
	FetchCandidateRoutes(ctx context.Context, origin, destination types.Point) ([]routing.Route, error)
}

type RouteEvaluator interface {
	Evaluate(ctx context.Context, routes []routing.Route, crit types.Criticality, cong types.CongestionLevel, at time.Time) (routing.Result, error)
}

type SignalLocator interface {
	OnRoute(ctx context.Context, waypoints []types.Point) ([]signal.Signal, error)
}

type SignalPreempter interface {
	Apply(ctx context.Context, corridorID types.ID, crit types.Criticality, position types.Point, signals []signal.Signal, now time.Time) []signal.Signal
}

// Broadcaster delivers snapshots at most once. Errors are logged and dropped.
type Broadcaster interface {
	Publish(ctx context.Context, snap Snapshot) error
}

type BiasSource interface {
	Current(ctx context.Context) bias.Model
}

type Learner interface {
	Learn(ctx context.Context, o bias.Outcome) (bias.Model, error)
}

// Deps are the collaborators of a Supervisor. Provider, Signals, Engine, Sink, Biases
// and Learner may be nil.
type Deps struct {
	Store     Store
	Provider  RouteProvider
	Evaluator RouteEvaluator
	Signals   SignalLocator
	Engine    SignalPreempter
	Sink      Broadcaster
	Biases    BiasSource
	Learner   Learner
}

type Config struct {
	ProviderTimeout  time.Duration
	CongestionWindow time.Duration
	Location         *time.Location
	// PublishTimeout bounds one Sink.Publish call. PublishQueue is the number of
	// snapshots waiting for the sink before new ones are dropped.
	PublishTimeout time.Duration
	PublishQueue   int
	// FinishedRetention is how long a completed corridor still answers with
	// ErrTerminated and its final snapshot.
	FinishedRetention time.Duration
}

type Supervisor struct {
	d   Deps
	cfg Config
	now func() time.Time

	life context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	outbox chan Snapshot

	mu       sync.RWMutex
	trackers map[types.ID]*tracker
	finished map[types.ID]finishedCorridor
}

// finishedCorridor is what remains of a tracker after Complete.
type finishedCorridor struct {
	last Snapshot
	at   time.Time
}

func NewSupervisor(d Deps, cfg Config) *Supervisor {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.CongestionWindow <= 0 {
		cfg.CongestionWindow = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.PublishQueue <= 0 {
		cfg.PublishQueue = 256
	}
	if cfg.FinishedRetention <= 0 {
		cfg.FinishedRetention = 10 * time.Minute
	}
	life, stop := context.WithCancel(context.Background())
	s := &Supervisor{
		d:        d,
		cfg:      cfg,
		now:      time.Now,
		life:     life,
		stop:     stop,
		outbox:   make(chan Snapshot, cfg.PublishQueue),
		trackers: make(map[types.ID]*tracker),
		finished: make(map[types.ID]finishedCorridor),
	}
	s.wg.Add(1)
	go s.runPublisher()
	return s
}

// tracker owns one corridor's runtime state. mu serializes fix processing.
type tracker struct {
	mu             sync.Mutex
	corridor       Corridor
	route          routing.Route
	phase          Phase
	startedAt      time.Time
	predictedTotal float64

	last       atomic.Pointer[Snapshot]
	terminated atomic.Bool

	pendingMu sync.Mutex
	pending   *PositionFix
	inbox     chan struct{}
	quit      chan struct{}
}

func (t *tracker) take() *PositionFix {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	f := t.pending
	t.pending = nil
	return f
}

// Run blocks until ctx is done, then stops every tracker goroutine.
func (s *Supervisor) Run(ctx context.Context) {
	<-ctx.Done()
	s.stop()
	s.wg.Wait()
}

// lookup returns the live tracker or, for a recently completed corridor, its
// final state.
func (s *Supervisor) lookup(id types.ID) (*tracker, *finishedCorridor) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.trackers[id]; ok {
		return t, nil
	}
	if f, ok := s.finished[id]; ok {
		return nil, &f
	}
	return nil, nil
}

// Start begins tracking a corridor. A corridor without a usable route is planned from
// its origin first, falling back to synthetic routes when the provider has none.
func (s *Supervisor) Start(ctx context.Context, id types.ID) (Snapshot, error) {
	t, done := s.lookup(id)
	if done != nil {
		return Snapshot{}, ErrTerminated
	}
	if t != nil {
		if t.terminated.Load() {
			return Snapshot{}, ErrTerminated
		}
		return *t.last.Load(), nil
	}

	c, err := s.d.Store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if c.CompletedAt != nil {
		return Snapshot{}, ErrTerminated
	}

	now := s.now()
	route := c.Route
	if route == nil || !route.Usable() {
		planned, err := s.plan(ctx, c, c.Origin, now, true)
		if err != nil {
			return Snapshot{}, err
		}
		route = &planned
	}

	sigs := s.signalsOnRoute(ctx, route.Waypoints)
	est := s.estimate(ctx, c.Criticality, *route, c.Origin, 0, sigs, now)
	if err := s.d.Store.MarkStarted(ctx, id, *route, est.Seconds, now); err != nil {
		return Snapshot{}, fmt.Errorf("mark corridor started: %w", err)
	}

	started := now
	if c.StartedAt != nil {
		started = *c.StartedAt
	}
	t = &tracker{
		corridor:       *c,
		route:          *route,
		phase:          PhaseTracking,
		startedAt:      started,
		predictedTotal: now.Sub(started).Seconds() + float64(est.Seconds),
		inbox:          make(chan struct{}, 1),
		quit:           make(chan struct{}),
	}
	snap := Snapshot{
		CorridorID:  id,
		Phase:       PhaseTracking,
		Criticality: c.Criticality,
		Route:       *route,
		ETA:         est,
		Signals:     sigs,
		UpdatedAt:   now,
	}
	t.last.Store(&snap)

	s.mu.Lock()
	if existing, ok := s.trackers[id]; ok {
		s.mu.Unlock()
		return *existing.last.Load(), nil
	}
	if _, ok := s.finished[id]; ok {
		s.mu.Unlock()
		return Snapshot{}, ErrTerminated
	}
	s.trackers[id] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runTracker(t)

	log.Printf("[supervisor] corridor %s started: %d waypoints, synthetic=%t, eta=%s",
		id, len(route.Waypoints), route.IsSynthetic, est.Formatted)
	s.publish(snap)
	return snap, nil
}

// HandleFix processes one fix synchronously. Only contract violations are returned;
// recoverable failures degrade and are logged.
func (s *Supervisor) HandleFix(ctx context.Context, fix PositionFix) (Snapshot, error) {
	if !fix.Valid() {
		return Snapshot{}, ErrMalformedFix
	}
	t, done := s.lookup(fix.CorridorID)
	if done != nil {
		return Snapshot{}, ErrTerminated
	}
	if t == nil {
		return Snapshot{}, ErrNotTracked
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == PhaseTerminated {
		return Snapshot{}, ErrTerminated
	}
	return s.process(ctx, t, fix), nil
}

// Submit queues a fix for asynchronous processing. A fix still waiting is replaced.
func (s *Supervisor) Submit(fix PositionFix) error {
	if !fix.Valid() {
		return ErrMalformedFix
	}
	t, done := s.lookup(fix.CorridorID)
	if done != nil {
		return ErrTerminated
	}
	if t == nil {
		return ErrNotTracked
	}
	if t.terminated.Load() {
		return ErrTerminated
	}
	t.pendingMu.Lock()
	t.pending = &fix
	t.pendingMu.Unlock()

	select {
	case t.inbox <- struct{}{}:
	default:
	}
	return nil
}

func (s *Supervisor) runTracker(t *tracker) {
	defer s.wg.Done()
	for {
		select {
		case <-s.life.Done():
			return
		case <-t.quit:
			return
		case <-t.inbox:
			fix := t.take()
			if fix == nil {
				continue
			}
			t.mu.Lock()
			if t.phase != PhaseTerminated {
				s.process(s.life, t, *fix)
			}
			t.mu.Unlock()
		}
	}
}

// Snapshot returns the last emitted state of a tracked corridor.
func (s *Supervisor) Snapshot(id types.ID) (Snapshot, error) {
	t, done := s.lookup(id)
	if done != nil {
		return done.last, nil
	}
	if t == nil {
		return Snapshot{}, ErrNotTracked
	}
	return *t.last.Load(), nil
}

// Complete terminates the corridor and feeds its outcome to the learner.
func (s *Supervisor) Complete(ctx context.Context, id types.ID) (bias.Model, error) {
	t, done := s.lookup(id)
	if done != nil {
		return bias.Model{}, ErrTerminated
	}
	if t == nil {
		return bias.Model{}, ErrNotTracked
	}

	t.mu.Lock()
	if t.phase == PhaseTerminated {
		t.mu.Unlock()
		return bias.Model{}, ErrTerminated
	}
	now := s.now()
	t.phase = PhaseTerminated
	t.terminated.Store(true)
	close(t.quit)
	snap := *t.last.Load()
	snap.Phase = PhaseTerminated
	snap.Rerouted = false
	snap.ClearedSignals = nil
	snap.UpdatedAt = now
	t.last.Store(&snap)
	outcome := bias.Outcome{
		CorridorID:   id,
		StartedAt:    t.startedAt,
		CompletedAt:  now,
		PredictedETA: t.predictedTotal,
	}
	t.mu.Unlock()
	s.retire(id, snap, now)

	if err := s.d.Store.MarkCompleted(ctx, id, now); err != nil {
		log.Printf("[supervisor] mark corridor %s completed: %v", id, err)
	}
	s.publish(snap)
	log.Printf("[supervisor] corridor %s completed in %.0fs (predicted %.0fs)",
		id, outcome.ActualSeconds(), outcome.PredictedETA)

	if s.d.Learner == nil {
		return bias.Model{}, nil
	}
	return s.d.Learner.Learn(ctx, outcome)
}

// retire drops the tracker and keeps only its final snapshot for FinishedRetention.
// Older finished entries are pruned on the way.
func (s *Supervisor) retire(id types.ID, last Snapshot, now time.Time) {
	cutoff := now.Add(-s.cfg.FinishedRetention)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, id)
	for fid, f := range s.finished {
		if f.at.Before(cutoff) {
			delete(s.finished, fid)
		}
	}
	s.finished[id] = finishedCorridor{last: last, at: now}
}

func (s *Supervisor) process(ctx context.Context, t *tracker, fix PositionFix) Snapshot {
	now := s.now()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now
	}
	id := t.corridor.ID
	crit := t.corridor.Criticality
	if err := s.d.Store.AppendFix(ctx, fix); err != nil {
		log.Printf("[supervisor] append fix for %s: %v", id, err)
	}

	pos := fix.Position
	deviation := geo.DistanceToRoute(pos, t.route.Waypoints)
	rerouted := false
	if IsDeviated(deviation) {
		t.phase = PhaseRerouting
		log.Printf("[supervisor] corridor %s off route by %.1fm, rerouting", id, deviation)
		f := fix
		pending := *t.last.Load()
		pending.Phase = PhaseRerouting
		pending.LastFix = &f
		pending.DeviationMeters = deviation
		pending.Rerouted = false
		pending.ClearedSignals = nil
		pending.UpdatedAt = now
		t.last.Store(&pending)
		s.publish(pending)
		if r, err := s.plan(ctx, &t.corridor, pos, now, false); err == nil {
			t.route = r
			rerouted = true
		} else {
			log.Printf("[supervisor] corridor %s keeps current route: %v", id, err)
		}
		t.phase = PhaseTracking
	}

	sigs := s.signalsOnRoute(ctx, t.route.Waypoints)
	est := s.estimate(ctx, crit, t.route, pos, fix.SpeedMS(), sigs, now)

	var cleared []signal.Signal
	if s.d.Engine != nil {
		cleared = s.d.Engine.Apply(ctx, id, crit, pos, sigs, now)
	}

	if rerouted {
		t.predictedTotal = now.Sub(t.startedAt).Seconds() + float64(est.Seconds)
		if err := s.d.Store.UpdateRoute(ctx, id, t.route, int64(t.predictedTotal)); err != nil {
			log.Printf("[supervisor] persist route for %s: %v", id, err)
		}
	}
	if err := s.d.Store.UpdateETA(ctx, id, est.Seconds); err != nil {
		log.Printf("[supervisor] persist eta for %s: %v", id, err)
	}

	f := fix
	snap := Snapshot{
		CorridorID:      id,
		Phase:           t.phase,
		Criticality:     crit,
		Route:           t.route,
		LastFix:         &f,
		ETA:             est,
		Rerouted:        rerouted,
		DeviationMeters: deviation,
		Signals:         sigs,
		ClearedSignals:  cleared,
		UpdatedAt:       now,
	}
	t.last.Store(&snap)
	s.publish(snap)
	return snap
}

// plan fetches candidates from origin to the corridor destination and returns the
// cheapest. With synthetic set, a failed or empty fetch falls back to synthetic routes.
func (s *Supervisor) plan(ctx context.Context, c *Corridor, origin types.Point, now time.Time, synthetic bool) (routing.Route, error) {
	candidates := s.fetch(ctx, c.ID, origin, c.Destination)
	if !anyUsable(candidates) {
		if !synthetic {
			return routing.Route{}, routing.ErrNoRoutes
		}
		candidates = routing.SyntheticPair(origin, c.Destination)
	}

	cong := s.congestion(ctx, c.Congestion, now)
	res, err := s.d.Evaluator.Evaluate(ctx, candidates, c.Criticality, cong, now.In(s.cfg.Location))
	if err != nil {
		return routing.Route{}, err
	}
	best, ok := res.Best()
	if !ok {
		return routing.Route{}, routing.ErrNoRoutes
	}
	log.Printf("[supervisor] corridor %s: %d candidates, best cost %d (%s congestion)",
		c.ID, len(res.Ranking), best.Rounded, cong)
	return best.Route, nil
}

func (s *Supervisor) fetch(ctx context.Context, id types.ID, origin, destination types.Point) []routing.Route {
	if s.d.Provider == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	routes, err := s.d.Provider.FetchCandidateRoutes(pctx, origin, destination)
	if err != nil {
		log.Printf("[supervisor] route provider for %s: %v", id, err)
		return nil
	}
	return routes
}

func (s *Supervisor) congestion(ctx context.Context, fallback types.CongestionLevel, now time.Time) types.CongestionLevel {
	avg, n, err := s.d.Store.AverageSpeedSince(ctx, now.Add(-s.cfg.CongestionWindow))
	if err != nil {
		log.Printf("[supervisor] congestion estimate: %v", err)
		return fallback
	}
	if n == 0 {
		return fallback
	}
	return CongestionFromSpeed(avg)
}

func (s *Supervisor) signalsOnRoute(ctx context.Context, waypoints []types.Point) []signal.Signal {
	if s.d.Signals == nil {
		return nil
	}
	sigs, err := s.d.Signals.OnRoute(ctx, waypoints)
	if err != nil {
		log.Printf("[supervisor] signal lookup: %v", err)
		return nil
	}
	return sigs
}

func (s *Supervisor) estimate(ctx context.Context, crit types.Criticality, route routing.Route, pos types.Point, speed float64, sigs []signal.Signal, now time.Time) eta.Result {
	var b float64
	if s.d.Biases != nil {
		b = s.d.Biases.Current(ctx).BiasAt(now.In(s.cfg.Location))
	}
	return eta.Estimate(eta.Input{
		Position:    pos,
		SpeedMS:     speed,
		Waypoints:   route.Waypoints,
		Criticality: crit,
		Signals:     lights(sigs),
		Bias:        b,
	})
}

// publish queues snap for the sink without blocking; it is dropped when the queue is full.
func (s *Supervisor) publish(snap Snapshot) {
	if s.d.Sink == nil {
		return
	}
	select {
	case s.outbox <- snap:
	default:
		log.Printf("[supervisor] broadcast queue full, dropping %s update", snap.CorridorID)
	}
}

// runPublisher delivers queued snapshots in order, each bounded by PublishTimeout, so a
// slow sink never holds a corridor lock.
func (s *Supervisor) runPublisher() {
	defer s.wg.Done()
	for {
		select {
		case <-s.life.Done():
			return
		case snap := <-s.outbox:
			ctx, cancel := context.WithTimeout(s.life, s.cfg.PublishTimeout)
			if err := s.d.Sink.Publish(ctx, snap); err != nil {
				log.Printf("[supervisor] broadcast %s: %v", snap.CorridorID, err)
			}
			cancel()
		}
	}
}

// CongestionFromSpeed classifies an average speed in m/s.
func CongestionFromSpeed(avg float64) types.CongestionLevel {
	switch {
	case avg < 5:
		return types.CongestionHigh
	case avg < 8:
		return types.CongestionMedium
	default:
		return types.CongestionLow
	}
}

func lights(sigs []signal.Signal) []eta.Light {
	out := make([]eta.Light, len(sigs))
	for i, sg := range sigs {
		p := sg.Position
		out[i] = eta.Light{Position: &p, Red: sg.State == signal.LightRed}
	}
	return out
}

func anyUsable(routes []routing.Route) bool {
	for _, r := range routes {
		if r.Usable() {
			return true
		}
	}
	return false
}
