// README: Corridor record, position fixes, runtime phases, and the broadcast snapshot.
package corridor

import (
	"math"
	"time"

	"greencorridor/internal/modules/eta"
	"greencorridor/internal/modules/routing"
	"greencorridor/internal/modules/signal"
	"greencorridor/internal/types"
)

// DeviationThresholdM is the off-route distance beyond which a corridor is rerouted.
const DeviationThresholdM = 50.0

// Phase of a tracked corridor. A corridor without a tracker is idle and has no phase.
// PhaseRerouting is published while a replacement route is being fetched.
type Phase string

const (
	PhaseTracking   Phase = "tracking"
	PhaseRerouting  Phase = "rerouting"
	PhaseTerminated Phase = "terminated"
)

// Corridor is the persisted corridor record. Route is nil until one is planned.
type Corridor struct {
	ID           types.ID
	Criticality  types.Criticality
	Congestion   types.CongestionLevel
	Origin       types.Point
	Destination  types.Point
	Route        *routing.Route
	PredictedETA int64
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Version      int
}

// PositionFix is one GPS report. Optional fields are nil when the device omits them.
type PositionFix struct {
	CorridorID types.ID    `json:"corridorId"`
	Position   types.Point `json:"position"`
	Accuracy   *float64    `json:"accuracy,omitempty"`
	Speed      *float64    `json:"speed,omitempty"`
	Heading    *float64    `json:"heading,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Valid reports whether the fix can be processed.
func (f PositionFix) Valid() bool {
	if !f.Position.Valid() {
		return false
	}
	for _, v := range []*float64{f.Accuracy, f.Speed, f.Heading} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return false
		}
	}
	return true
}

// SpeedMS returns the reported speed or zero.
func (f PositionFix) SpeedMS() float64 {
	if f.Speed == nil {
		return 0
	}
	return *f.Speed
}

// IsDeviated reports whether an off-route distance triggers a reroute.
func IsDeviated(distanceM float64) bool {
	return distanceM > DeviationThresholdM
}

// Snapshot is the runtime state emitted after each processed fix.
type Snapshot struct {
	CorridorID      types.ID          `json:"corridorId"`
	Phase           Phase             `json:"phase"`
	Criticality     types.Criticality `json:"criticality"`
	Route           routing.Route     `json:"route"`
	LastFix         *PositionFix      `json:"lastFix,omitempty"`
	ETA             eta.Result        `json:"eta"`
	Rerouted        bool              `json:"rerouted"`
	DeviationMeters float64           `json:"deviationMeters"`
	Signals         []signal.Signal   `json:"signals"`
	ClearedSignals  []signal.Signal   `json:"clearedSignals"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}
