// README: Shared JSON helpers and error-to-status mapping for handlers.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"greencorridor/internal/modules/bias"
	"greencorridor/internal/modules/corridor"
	"greencorridor/internal/modules/routing"
	"greencorridor/internal/modules/signal"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps module sentinels to HTTP statuses. Anything unknown is a 500.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, corridor.ErrMalformedFix),
		errors.Is(err, routing.ErrNoRoutes),
		errors.Is(err, bias.ErrInvalidOutcome):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, corridor.ErrNotFound),
		errors.Is(err, corridor.ErrNotTracked),
		errors.Is(err, signal.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, corridor.ErrTerminated),
		errors.Is(err, corridor.ErrNotUpdated),
		errors.Is(err, signal.ErrContended),
		errors.Is(err, bias.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		log.Printf("[http] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
