// README: Entry point; loads config, wires services, starts HTTP server and background loops.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greencorridor/internal/broadcast"
	"greencorridor/internal/config"
	httptransport "greencorridor/internal/http"
	"greencorridor/internal/infra"
	"greencorridor/internal/maps"
	"greencorridor/internal/modules/bias"
	"greencorridor/internal/modules/corridor"
	"greencorridor/internal/modules/routing"
	trafficsignal "greencorridor/internal/modules/signal"
)

func main() {
	configPath := flag.String("config", os.Getenv("CORRIDOR_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("corridor.timezone: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	var registry trafficsignal.Registry
	switch cfg.Signals.Store {
	case "memory":
		registry = trafficsignal.NewMemoryRegistry()
	default:
		redisClient := infra.NewRedis(cfg.Redis.Addr)
		defer redisClient.Close()
		registry = trafficsignal.NewRedisRegistry(redisClient)
	}
	locator := trafficsignal.NewLocator(registry)
	engine := trafficsignal.NewEngine(registry)
	sweeper := trafficsignal.NewSweeper(registry, cfg.Signals.SweepInterval)

	biasSvc := bias.NewService(bias.NewStore(dbPool), loc)
	evaluator := routing.NewEvaluator(locator, biasSvc, cfg.Routing.Parallelism)

	provider, err := newProvider(cfg.Routing)
	if err != nil {
		log.Fatal(err)
	}

	hub := broadcast.NewHub(cfg.Hub.QueueSize, cfg.Hub.ClientBuffer)
	sinks := broadcast.Fanout{hub}
	if cfg.NATS.URL != "" {
		nc, err := infra.NewNATS(cfg.NATS.URL, cfg.NATS.Name)
		if err != nil {
			log.Fatal(err)
		}
		defer nc.Drain()
		sinks = append(sinks, broadcast.NewNATSPublisher(nc))
	}
	if cfg.Firebase.Enabled {
		fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
		sinks = append(sinks, broadcast.NewFCMNotifier(fb.Messaging, cfg.Firebase.Topic))
		if fb.Database != nil {
			sinks = append(sinks, broadcast.NewRTDBMirror(broadcast.NewRTDBWriter(fb.Database), cfg.Firebase.RTDBRoot))
		}
	}

	supervisor := corridor.NewSupervisor(corridor.Deps{
		Store:     corridor.NewStore(dbPool),
		Provider:  provider,
		Evaluator: evaluator,
		Signals:   locator,
		Engine:    engine,
		Sink:      sinks,
		Biases:    biasSvc,
		Learner:   biasSvc,
	}, corridor.Config{
		ProviderTimeout:   cfg.Routing.Timeout,
		CongestionWindow:  cfg.Corridor.CongestionWindow,
		Location:          loc,
		PublishTimeout:    cfg.Corridor.PublishTimeout,
		PublishQueue:      cfg.Corridor.PublishQueue,
		FinishedRetention: cfg.Corridor.FinishedRetention,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Corridors: supervisor,
		Routes:    evaluator,
		Signals:   registry,
		Bias:      biasSvc,
		Stream:    hub,
		Location:  loc,
	})

	go sweeper.Run(ctx)
	go hub.Run(ctx)
	go supervisor.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("[main] listening on %s (routing=%s, signals=%s)", cfg.HTTP.Addr, cfg.Routing.Provider, cfg.Signals.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func newProvider(cfg config.RoutingConfig) (corridor.RouteProvider, error) {
	switch cfg.Provider {
	case "google":
		return maps.NewGoogleProvider(cfg.GoogleKey, int(cfg.RateLimit))
	case "synthetic":
		return maps.SyntheticProvider{}, nil
	default:
		client := &http.Client{Timeout: cfg.Timeout}
		return maps.NewOSRMProvider(cfg.OSRMURL, client, cfg.RateLimit), nil
	}
}
