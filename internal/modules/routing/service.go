// README: Evaluator resolves per-route signals and the active bias, then ranks candidates.
package routing

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"greencorridor/internal/modules/bias"
	"greencorridor/internal/types"
)

var ErrNoRoutes = errors.New("no usable candidate routes")

// SignalCounter counts RED signals lying on a route.
type SignalCounter interface {
	RedSignalsOnRoute(ctx context.Context, waypoints []types.Point) (int, error)
}

// BiasSource supplies the active bias model.
type BiasSource interface {
	Current(ctx context.Context) bias.Model
}

type Evaluator struct {
	signals     SignalCounter
	biases      BiasSource
	parallelism int
}

func NewEvaluator(signals SignalCounter, biases BiasSource, parallelism int) *Evaluator {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Evaluator{signals: signals, biases: biases, parallelism: parallelism}
}

// Evaluate ranks the usable routes. A failed signal lookup evaluates that route with
// zero signals. at selects the bias time bucket.
func (e *Evaluator) Evaluate(ctx context.Context, routes []Route, crit types.Criticality, cong types.CongestionLevel, at time.Time) (Result, error) {
	usable := make([]Route, 0, len(routes))
	orig := make([]int, 0, len(routes))
	for i, r := range routes {
		if r.Usable() {
			usable = append(usable, r)
			orig = append(orig, i)
		}
	}
	if len(usable) == 0 {
		return Result{}, ErrNoRoutes
	}

	counts := make([]int, len(usable))
	if e.signals != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallelism)
		for i, r := range usable {
			i, r := i, r
			g.Go(func() error {
				n, err := e.signals.RedSignalsOnRoute(gctx, r.Waypoints)
				if err != nil {
					log.Printf("[evaluator] signal lookup for route %d: %v", i, err)
					return nil
				}
				counts[i] = n
				return nil
			})
		}
		_ = g.Wait()
	}

	var b float64
	if e.biases != nil {
		b = e.biases.Current(ctx).BiasAt(at)
	}
	res := Rank(usable, crit, cong, counts, b)
	for i := range res.Ranking {
		res.Ranking[i].Index = orig[res.Ranking[i].Index]
	}
	return res, nil
}
