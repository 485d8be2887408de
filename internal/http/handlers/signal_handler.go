// README: Signal registry queries, registration, and manual restore.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"

	"greencorridor/internal/modules/signal"
	"greencorridor/internal/types"
)

type SignalHandler struct {
	registry signal.Registry
}

func NewSignalHandler(registry signal.Registry) *SignalHandler {
	return &SignalHandler{registry: registry}
}

// List returns the signals inside the min/max lat/lng box.
func (h *SignalHandler) List(c *gin.Context) {
	var v [4]float64
	for i, key := range []string{"min_lat", "min_lng", "max_lat", "max_lng"} {
		f, err := strconv.ParseFloat(c.Query(key), 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid "+key)
			return
		}
		v[i] = f
	}
	lo := types.Point{Lat: v[0], Lng: v[1]}
	hi := types.Point{Lat: v[2], Lng: v[3]}
	if !lo.Valid() || !hi.Valid() || lo.Lat > hi.Lat || lo.Lng > hi.Lng {
		writeError(c, http.StatusBadRequest, "invalid bounding box")
		return
	}
	box := orb.Bound{Min: orb.Point{lo.Lng, lo.Lat}, Max: orb.Point{hi.Lng, hi.Lat}}
	sigs, err := h.registry.FindNear(c.Request.Context(), box)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if sigs == nil {
		sigs = []signal.Signal{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"signals": sigs})
}

func (h *SignalHandler) Get(c *gin.Context) {
	sig, err := h.registry.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sig)
}

type upsertSignalRequest struct {
	Name        string            `json:"name"`
	Lat         *float64          `json:"lat"`
	Lng         *float64          `json:"lng"`
	Operational *bool             `json:"operational"`
	State       signal.LightState `json:"state"`
}

// Upsert registers or replaces a signal. Any active override on it is discarded.
func (h *SignalHandler) Upsert(c *gin.Context) {
	var req upsertSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	sig := signal.Signal{
		ID:          types.ID(c.Param("id")),
		Name:        req.Name,
		Position:    types.Point{Lat: *req.Lat, Lng: *req.Lng},
		Operational: req.Operational == nil || *req.Operational,
		State:       req.State,
	}
	if sig.State == "" {
		sig.State = signal.LightRed
	}
	if !sig.Position.Valid() {
		writeError(c, http.StatusBadRequest, "invalid position")
		return
	}
	if err := h.registry.Upsert(c.Request.Context(), sig); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sig)
}

func (h *SignalHandler) Restore(c *gin.Context) {
	sig, restored, err := h.registry.Restore(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"signal": sig, "restored": restored})
}
