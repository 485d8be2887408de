package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greencorridor/internal/geo"
	"greencorridor/internal/modules/bias"
	"greencorridor/internal/types"
)

func straight(base float64) Route {
	a := types.Point{Lat: 9.993, Lng: 76.299}
	return Route{Waypoints: []types.Point{a, geo.Offset(a, 500, 0)}, BaseDurationSeconds: base}
}

func TestCost_WorkedExample(t *testing.T) {
	cost, b := Cost(straight(420), types.CriticalityCritical, types.CongestionMedium, 3, 10)

	assert.InDelta(t, 562.6, cost, 1e-9)
	assert.InDelta(t, 63.0, b.CongestionPenalty, 1e-9)
	assert.InDelta(t, 36.0, b.SignalPenalty, 1e-9)
	assert.InDelta(t, 33.6, b.InstabilityPenalty, 1e-9)
	assert.Equal(t, 3, b.RedSignals)

	res := Rank([]Route{straight(420)}, types.CriticalityCritical, types.CongestionMedium, []int{3}, 10)
	assert.Equal(t, int64(563), res.Ranking[0].Rounded)
}

func TestCost_Weights(t *testing.T) {
	tests := []struct {
		name string
		crit types.Criticality
		cong types.CongestionLevel
		red  int
		want float64
	}{
		{"stable low no signals", types.CriticalityStable, types.CongestionLow, 0, 100},
		{"stable high two signals", types.CriticalityStable, types.CongestionHigh, 2, 100 + 35 + 60},
		{"very critical medium one signal", types.CriticalityVeryCritical, types.CongestionMedium, 1, 100 + 15 + 3 + 20},
		{"critical low", types.CriticalityCritical, types.CongestionLow, 0, 108},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Cost(straight(100), tt.crit, tt.cong, tt.red, 0)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRank_OrderAndStability(t *testing.T) {
	routes := []Route{straight(300), straight(200), straight(300), straight(250)}
	res := Rank(routes, types.CriticalityStable, types.CongestionLow, []int{0, 1, 0}, 0)

	require.Len(t, res.Ranking, 4)
	for i := 1; i < len(res.Ranking); i++ {
		assert.LessOrEqual(t, res.Ranking[i-1].Cost, res.Ranking[i].Cost)
	}
	// 200+30 = 230 < 250 < 300 == 300 (ties keep input order).
	got := []int{res.Ranking[0].Index, res.Ranking[1].Index, res.Ranking[2].Index, res.Ranking[3].Index}
	assert.Equal(t, []int{1, 3, 0, 2}, got)

	best, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, res.Ranking[0], best)
}

func TestSyntheticPair(t *testing.T) {
	o := types.Point{Lat: 9.9930, Lng: 76.2990}
	d := types.Point{Lat: 10.0100, Lng: 76.2780}
	pair := SyntheticPair(o, d)
	require.Len(t, pair, 2)

	dist := geo.Distance(o, d)
	for _, r := range pair {
		assert.True(t, r.IsSynthetic)
		require.Len(t, r.Waypoints, 15)
		assert.InDelta(t, o.Lat, r.Origin().Lat, 1e-9)
		assert.InDelta(t, o.Lng, r.Origin().Lng, 1e-9)
		assert.InDelta(t, d.Lat, r.Destination().Lat, 1e-9)
		assert.InDelta(t, d.Lng, r.Destination().Lng, 1e-9)
	}
	assert.InDelta(t, dist, pair[0].DistanceMeters, 1e-6)
	assert.InDelta(t, dist*1.15, pair[1].DistanceMeters, 1e-6)
	assert.Equal(t, float64(int64(dist/12+0.5)), pair[0].BaseDurationSeconds)

	// Midpoints bow to opposite sides.
	mid := 7
	lineLat := o.Lat + (d.Lat-o.Lat)*0.5
	assert.Greater(t, pair[0].Waypoints[mid].Lat, lineLat)
	assert.Less(t, pair[1].Waypoints[mid].Lat, lineLat)

	assert.Equal(t, pair, SyntheticPair(o, d))
}

type stubCounter struct {
	mu    sync.Mutex
	calls int
	byLen map[int]int
	fail  map[int]bool
}

func (s *stubCounter) RedSignalsOnRoute(_ context.Context, wps []types.Point) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail[len(wps)] {
		return 0, errors.New("registry unavailable")
	}
	return s.byLen[len(wps)], nil
}

type fixedBias struct{ m bias.Model }

func (f fixedBias) Current(context.Context) bias.Model { return f.m }

func routeWithPoints(n int, base float64) Route {
	a := types.Point{Lat: 9.993, Lng: 76.299}
	wps := make([]types.Point, n)
	for i := range wps {
		wps[i] = geo.Offset(a, float64(i)*100, 0)
	}
	return Route{Waypoints: wps, BaseDurationSeconds: base}
}

func TestEvaluator_Evaluate(t *testing.T) {
	counter := &stubCounter{byLen: map[int]int{2: 5, 3: 0}}
	ev := NewEvaluator(counter, fixedBias{bias.Model{Biases: bias.Buckets{Afternoon: 10, Night: -50}}}, 2)
	afternoon := time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)

	// Route A: 2 points, 100s, 5 RED -> 100 + 8 + 60 + 10 = 178.
	// Route B: 3 points, 150s, 0 RED -> 150 + 12 + 10 = 172.
	res, err := ev.Evaluate(context.Background(),
		[]Route{routeWithPoints(2, 100), routeWithPoints(3, 150), {Waypoints: []types.Point{{Lat: 1, Lng: 1}}}},
		types.CriticalityCritical, types.CongestionLow, afternoon)
	require.NoError(t, err)
	require.Len(t, res.Ranking, 2)
	assert.Equal(t, 1, res.Ranking[0].Index)
	assert.InDelta(t, 172.0, res.Ranking[0].Cost, 1e-9)
	assert.InDelta(t, 178.0, res.Ranking[1].Cost, 1e-9)
	assert.Equal(t, 2, counter.calls)
}

func TestEvaluator_IndexRefersToInputPosition(t *testing.T) {
	ev := NewEvaluator(nil, nil, 2)
	broken := Route{Waypoints: []types.Point{{Lat: 1, Lng: 1}}}

	res, err := ev.Evaluate(context.Background(),
		[]Route{broken, routeWithPoints(2, 300), broken, routeWithPoints(2, 100)},
		types.CriticalityCritical, types.CongestionLow, time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, res.Ranking, 2)
	assert.Equal(t, 3, res.Ranking[0].Index)
	assert.Equal(t, 1, res.Ranking[1].Index)
	assert.InDelta(t, 100.0, res.Ranking[0].Route.BaseDurationSeconds, 1e-9)
}

func TestEvaluator_SignalLookupFailureCountsZero(t *testing.T) {
	counter := &stubCounter{byLen: map[int]int{2: 5}, fail: map[int]bool{2: true}}
	ev := NewEvaluator(counter, fixedBias{}, 0)

	res, err := ev.Evaluate(context.Background(), []Route{routeWithPoints(2, 100)},
		types.CriticalityStable, types.CongestionLow, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ranking[0].Breakdown.RedSignals)
	assert.InDelta(t, 100.0, res.Ranking[0].Cost, 1e-9)
}

func TestEvaluator_NoUsableRoutes(t *testing.T) {
	ev := NewEvaluator(nil, nil, 1)
	_, err := ev.Evaluate(context.Background(), nil, types.CriticalityCritical, types.CongestionLow, time.Now())
	assert.ErrorIs(t, err, ErrNoRoutes)
}
