// README: Finds the signals that lie on a route polyline.
package signal

import (
	"context"

	"greencorridor/internal/geo"
	"greencorridor/internal/types"
)

const (
	RouteBoxPadDeg  = 0.005
	OnRouteMaxDistM = 50.0
)

type Locator struct {
	registry Registry
}

func NewLocator(registry Registry) *Locator {
	return &Locator{registry: registry}
}

// OnRoute returns registry signals within OnRouteMaxDistM of any waypoint.
func (l *Locator) OnRoute(ctx context.Context, waypoints []types.Point) ([]Signal, error) {
	if len(waypoints) == 0 {
		return nil, nil
	}
	near, err := l.registry.FindNear(ctx, geo.PaddedBound(waypoints, RouteBoxPadDeg))
	if err != nil {
		return nil, err
	}
	out := near[:0]
	for _, s := range near {
		if _, d := geo.NearestPointIndex(s.Position, waypoints); d <= OnRouteMaxDistM {
			out = append(out, s)
		}
	}
	return out, nil
}

func (l *Locator) RedSignalsOnRoute(ctx context.Context, waypoints []types.Point) (int, error) {
	sigs, err := l.OnRoute(ctx, waypoints)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range sigs {
		if s.State == LightRed {
			n++
		}
	}
	return n, nil
}
