// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greencorridor/internal/http/handlers"
	"greencorridor/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	api := r.Group("/api")

	corridorHandler := handlers.NewCorridorHandler(deps.Corridors)
	api.POST("/corridors/:id/start", corridorHandler.Start)
	api.POST("/corridors/:id/fixes", corridorHandler.Fix)
	api.POST("/corridors/:id/fixes/async", corridorHandler.SubmitFix)
	api.POST("/corridors/:id/complete", corridorHandler.Complete)
	api.GET("/corridors/:id", corridorHandler.Get)

	routeHandler := handlers.NewRouteHandler(deps.Routes, deps.Location)
	api.POST("/routes/evaluate", routeHandler.Evaluate)

	signalHandler := handlers.NewSignalHandler(deps.Signals)
	api.GET("/signals", signalHandler.List)
	api.GET("/signals/:id", signalHandler.Get)
	api.PUT("/signals/:id", signalHandler.Upsert)
	api.POST("/signals/:id/restore", signalHandler.Restore)

	biasHandler := handlers.NewBiasHandler(deps.Bias)
	api.GET("/bias", biasHandler.Get)

	if deps.Stream != nil {
		streamHandler := handlers.NewStreamHandler(deps.Stream)
		r.GET("/ws/corridors/:id", streamHandler.Subscribe)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r
}
