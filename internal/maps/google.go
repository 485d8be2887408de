// README: Google Directions route provider with alternatives.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"greencorridor/internal/modules/routing"
	"greencorridor/internal/types"
)

// GoogleProvider handles interactions with the Google Maps Directions API.
type GoogleProvider struct {
	client *maps.Client
}

// NewGoogleProvider creates a provider with the given API key. rps <= 0 leaves the
// client's default rate limit in place.
func NewGoogleProvider(apiKey string, rps int) (*GoogleProvider, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if rps > 0 {
		opts = append(opts, maps.WithRateLimit(rps))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

// FetchCandidateRoutes returns every driving alternative between the two points.
func (p *GoogleProvider) FetchCandidateRoutes(ctx context.Context, origin, destination types.Point) ([]routing.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:       latLng(origin),
		Destination:  latLng(destination),
		Mode:         maps.TravelModeDriving,
		Alternatives: true,
	}

	routes, _, err := p.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 {
		return nil, ErrNoRoute
	}

	out := make([]routing.Route, 0, len(routes))
	for _, gr := range routes {
		pts, err := gr.OverviewPolyline.Decode()
		if err != nil {
			return nil, fmt.Errorf("decode polyline: %w", err)
		}
		route := routing.Route{Waypoints: make([]types.Point, len(pts))}
		for i, ll := range pts {
			route.Waypoints[i] = types.Point{Lat: ll.Lat, Lng: ll.Lng}
		}
		for _, leg := range gr.Legs {
			route.DistanceMeters += float64(leg.Distance.Meters)
			route.BaseDurationSeconds += leg.Duration.Seconds()
		}
		out = append(out, route)
	}
	return out, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
