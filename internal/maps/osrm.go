// README: OSRM route provider (GeoJSON geometry, alternatives).
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"greencorridor/internal/modules/routing"
	"greencorridor/internal/types"
)

var ErrNoRoute = errors.New("no route found")

const DefaultOSRMURL = "https://router.project-osrm.org/route/v1/driving"

type OSRMProvider struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOSRMProvider creates a provider against baseURL. rps <= 0 disables client-side limiting.
func NewOSRMProvider(baseURL string, client *http.Client, rps float64) *OSRMProvider {
	if baseURL == "" {
		baseURL = DefaultOSRMURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &OSRMProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			// GeoJSON order: lng, lat.
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

func (p *OSRMProvider) FetchCandidateRoutes(ctx context.Context, origin, destination types.Point) ([]routing.Route, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	coords := fmt.Sprintf("%f,%f;%f,%f", origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	q.Set("alternatives", "true")
	q.Set("steps", "false")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+coords+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("osrm decode (status %d): %w", resp.StatusCode, err)
	}
	if body.Code != "Ok" {
		return nil, fmt.Errorf("%w: osrm %s %s", ErrNoRoute, body.Code, body.Message)
	}
	if len(body.Routes) == 0 {
		return nil, ErrNoRoute
	}

	out := make([]routing.Route, 0, len(body.Routes))
	for _, r := range body.Routes {
		route := routing.Route{
			Waypoints:           make([]types.Point, len(r.Geometry.Coordinates)),
			DistanceMeters:      r.Distance,
			BaseDurationSeconds: r.Duration,
		}
		for i, c := range r.Geometry.Coordinates {
			route.Waypoints[i] = types.Point{Lat: c[1], Lng: c[0]}
		}
		out = append(out, route)
	}
	return out, nil
}
