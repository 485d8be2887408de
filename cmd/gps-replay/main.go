// README: GPS replay tool; starts a corridor and feeds it fixes along its route.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"greencorridor/internal/maps"
	"greencorridor/internal/modules/corridor"
	"greencorridor/internal/types"
)

type Config struct {
	BaseURL     string
	CorridorID  string
	Provider    string
	OSRMURL     string
	Origin      string
	Destination string
	Follow      bool
	SpeedMS     float64
	Interval    time.Duration
	DeviateAt   float64
	DeviateM    float64
	Signals     int
	Realtime    bool
	Complete    bool
	Timeout     time.Duration
}

func main() {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	r := &Replayer{
		baseURL:    cfg.BaseURL,
		httpc:      &http.Client{Timeout: 15 * time.Second},
		corridorID: cfg.CorridorID,
		speedMS:    cfg.SpeedMS,
		interval:   cfg.Interval,
		deviateAt:  cfg.DeviateAt,
		deviateM:   cfg.DeviateM,
		realtime:   cfg.Realtime,
	}

	// The local route is used for seeding signals and, with -follow=false, as the
	// driven path so the server sees a vehicle that ignores its plan.
	var local []types.Point
	if cfg.Origin != "" && cfg.Destination != "" {
		var err error
		local, err = localRoute(ctx, cfg)
		if err != nil {
			log.Fatalf("local route: %v", err)
		}
		if cfg.Signals > 0 {
			if err := r.SeedSignals(ctx, local, cfg.Signals); err != nil {
				log.Fatal(err)
			}
			log.Printf("[replay] seeded %d signals", cfg.Signals)
		}
	}

	snap, err := r.Start(ctx)
	if err != nil {
		log.Fatalf("start: %v", err)
	}
	log.Printf("[replay] corridor %s started: %d waypoints, eta=%s", snap.CorridorID, len(snap.Route.Waypoints), snap.ETA.Formatted)

	path := snap.Route.Waypoints
	if !cfg.Follow && len(local) >= 2 {
		path = local
	}
	fixes := r.Plan(path, time.Now())
	sum, err := r.Drive(ctx, fixes)
	if err != nil {
		log.Fatalf("drive: %v", err)
	}
	fmt.Printf("fixes=%d reroutes=%d cleared=%d last_eta=%s\n", sum.Fixes, sum.Reroutes, sum.Cleared, sum.LastETA)

	if cfg.Complete {
		model, err := r.Complete(ctx)
		if err != nil {
			log.Fatalf("complete: %v", err)
		}
		fmt.Printf("bias model: %v\n", model)
	}
}

func localRoute(ctx context.Context, cfg Config) ([]types.Point, error) {
	origin, err := parsePoint(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	dest, err := parsePoint(cfg.Destination)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	var provider corridor.RouteProvider = maps.SyntheticProvider{}
	if cfg.Provider == "osrm" {
		provider = maps.NewOSRMProvider(cfg.OSRMURL, nil, 1)
	}
	routes, err := provider.FetchCandidateRoutes(ctx, origin, dest)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, maps.ErrNoRoute
	}
	return routes[0].Waypoints, nil
}

func parsePoint(s string) (types.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return types.Point{}, fmt.Errorf("want lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return types.Point{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return types.Point{}, err
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return types.Point{}, fmt.Errorf("out of range: %q", s)
	}
	return p, nil
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("CORRIDOR_REPLAY_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.CorridorID, "corridor", envOrDefault("CORRIDOR_REPLAY_ID", ""), "corridor id to drive")
	flag.StringVar(&cfg.Provider, "provider", envOrDefault("CORRIDOR_REPLAY_PROVIDER", "synthetic"), "local route provider: osrm or synthetic")
	flag.StringVar(&cfg.OSRMURL, "osrm-url", envOrDefault("CORRIDOR_ROUTING_OSRM_URL", maps.DefaultOSRMURL), "OSRM route endpoint")
	flag.StringVar(&cfg.Origin, "origin", "", "origin as lat,lng (for seeding and -follow=false)")
	flag.StringVar(&cfg.Destination, "dest", "", "destination as lat,lng")
	flag.BoolVar(&cfg.Follow, "follow", true, "drive the server's planned route")
	flag.Float64Var(&cfg.SpeedMS, "speed", 12, "vehicle speed in m/s")
	flag.DurationVar(&cfg.Interval, "interval", envOrDefaultDuration("CORRIDOR_REPLAY_INTERVAL", time.Second), "time between fixes")
	flag.Float64Var(&cfg.DeviateAt, "deviate-at", 0, "meters along the path where the vehicle leaves it")
	flag.Float64Var(&cfg.DeviateM, "deviate-m", 0, "eastward deviation in meters after -deviate-at")
	flag.IntVar(&cfg.Signals, "signals", 0, "RED signals to seed along the local route")
	flag.BoolVar(&cfg.Realtime, "realtime", true, "wait -interval between fixes")
	flag.BoolVar(&cfg.Complete, "complete", true, "complete the corridor at the end")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("CORRIDOR_REPLAY_TIMEOUT", 30*time.Minute), "total timeout")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CorridorID == "" {
		log.Fatal("-corridor is required")
	}
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
