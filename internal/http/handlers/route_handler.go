// README: Ad-hoc candidate route evaluation.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"greencorridor/internal/modules/routing"
	"greencorridor/internal/types"
)

type RouteEvaluator interface {
	Evaluate(ctx context.Context, routes []routing.Route, crit types.Criticality, cong types.CongestionLevel, at time.Time) (routing.Result, error)
}

type RouteHandler struct {
	evaluator RouteEvaluator
	loc       *time.Location
}

// NewRouteHandler evaluates at the current time in loc, the zone whose clock the
// time-of-day bands follow. A nil loc means the host zone.
func NewRouteHandler(evaluator RouteEvaluator, loc *time.Location) *RouteHandler {
	if loc == nil {
		loc = time.Local
	}
	return &RouteHandler{evaluator: evaluator, loc: loc}
}

// Omitted enums take their zero values: CRITICAL and HIGH.
type evaluateRequest struct {
	Routes      []routing.Route       `json:"routes"`
	Criticality types.Criticality     `json:"criticality"`
	Congestion  types.CongestionLevel `json:"congestion"`
}

func (h *RouteHandler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.evaluator.Evaluate(c.Request.Context(), req.Routes, req.Criticality, req.Congestion, time.Now().In(h.loc))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}
