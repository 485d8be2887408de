// README: API gateway; wires module services into the HTTP server.
package http

import (
	"net/http"
	"time"

	"greencorridor/internal/http/handlers"
	"greencorridor/internal/modules/signal"
)

type ServerDeps struct {
	Corridors handlers.CorridorService
	Routes    handlers.RouteEvaluator
	Signals   signal.Registry
	Bias      handlers.BiasReader
	// Stream is optional; without it the WebSocket endpoint is not registered.
	Stream handlers.StreamServer
	// Location is the corridor time zone used for ad-hoc route evaluation.
	Location *time.Location
}

// NewServer returns a server for addr. Write timeouts are left unset because
// WebSocket connections are long-lived.
func NewServer(addr string, deps ServerDeps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
