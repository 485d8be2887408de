// README: Corridor lifecycle and position-fix ingestion handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"greencorridor/internal/modules/bias"
	"greencorridor/internal/modules/corridor"
	"greencorridor/internal/types"
)

type CorridorService interface {
	Start(ctx context.Context, id types.ID) (corridor.Snapshot, error)
	HandleFix(ctx context.Context, fix corridor.PositionFix) (corridor.Snapshot, error)
	Submit(fix corridor.PositionFix) error
	Snapshot(id types.ID) (corridor.Snapshot, error)
	Complete(ctx context.Context, id types.ID) (bias.Model, error)
}

type CorridorHandler struct {
	svc CorridorService
	now func() time.Time
}

func NewCorridorHandler(svc CorridorService) *CorridorHandler {
	return &CorridorHandler{svc: svc, now: time.Now}
}

// fixRequest keeps lat/lng as pointers so an omitted coordinate is rejected instead of
// silently becoming 0,0.
type fixRequest struct {
	Lat       *float64   `json:"lat"`
	Lng       *float64   `json:"lng"`
	Accuracy  *float64   `json:"accuracy"`
	Speed     *float64   `json:"speed"`
	Heading   *float64   `json:"heading"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h *CorridorHandler) Start(c *gin.Context) {
	snap, err := h.svc.Start(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (h *CorridorHandler) Fix(c *gin.Context) {
	fix, ok := h.bindFix(c)
	if !ok {
		return
	}
	snap, err := h.svc.HandleFix(c.Request.Context(), fix)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (h *CorridorHandler) SubmitFix(c *gin.Context) {
	fix, ok := h.bindFix(c)
	if !ok {
		return
	}
	if err := h.svc.Submit(fix); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, map[string]any{"status": "queued"})
}

func (h *CorridorHandler) Complete(c *gin.Context) {
	model, err := h.svc.Complete(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, model)
}

func (h *CorridorHandler) Get(c *gin.Context) {
	snap, err := h.svc.Snapshot(types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (h *CorridorHandler) bindFix(c *gin.Context) (corridor.PositionFix, bool) {
	var req fixRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeDomainError(c, corridor.ErrMalformedFix)
		return corridor.PositionFix{}, false
	}
	fix := corridor.PositionFix{
		CorridorID: types.ID(c.Param("id")),
		Position:   types.Point{Lat: *req.Lat, Lng: *req.Lng},
		Accuracy:   req.Accuracy,
		Speed:      req.Speed,
		Heading:    req.Heading,
		Timestamp:  h.now(),
	}
	if req.Timestamp != nil {
		fix.Timestamp = *req.Timestamp
	}
	return fix, true
}
