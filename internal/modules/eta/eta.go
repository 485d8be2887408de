// README: Live ETA estimator; the single source of truth for predicted arrival time.
package eta

import (
	"fmt"
	"math"

	"greencorridor/internal/geo"
	"greencorridor/internal/modules/routing"
	"greencorridor/internal/types"
)

// DefaultSpeedMS is used when the fix carries no positive speed.
const DefaultSpeedMS = 12.0

const unknownFormatted = "--:--"

// Light is a signal as seen by the estimator. A nil Position counts as ahead.
type Light struct {
	Position *types.Point
	Red      bool
}

type Input struct {
	Position    types.Point
	SpeedMS     float64
	Waypoints   []types.Point
	Criticality types.Criticality
	Signals     []Light
	Bias        float64
}

type Breakdown struct {
	BaseTravelSeconds  float64 `json:"baseTravelSeconds"`
	SignalDelaySeconds float64 `json:"signalDelaySeconds"`
	RedSignalsAhead    int     `json:"redSignalsAhead"`
	BiasSeconds        float64 `json:"biasSeconds"`
	SpeedMS            float64 `json:"speedMs"`
	NearestIndex       int     `json:"nearestIndex"`
	TotalWaypoints     int     `json:"totalWaypoints"`
}

type Result struct {
	Seconds         int64     `json:"etaSeconds"`
	Formatted       string    `json:"etaFormatted"`
	RemainingMeters float64   `json:"remainingMeters"`
	Breakdown       Breakdown `json:"breakdown"`
}

// Estimate computes the ETA from the current position along the remaining route.
// Routes with fewer than two waypoints yield zero and an unknown formatted value.
func Estimate(in Input) Result {
	if len(in.Waypoints) < 2 {
		return Result{Formatted: unknownFormatted}
	}

	idx, toNearest := geo.NearestPointIndex(in.Position, in.Waypoints)
	remaining := toNearest + geo.RemainingDistance(in.Waypoints, idx)

	speed := in.SpeedMS
	if !(speed > 0) || math.IsInf(speed, 0) {
		speed = DefaultSpeedMS
	}
	travel := remaining / speed

	red := RedSignalsAhead(in.Signals, in.Waypoints, idx)
	delay := float64(red) * routing.SignalDelaySeconds(in.Criticality)

	secs := int64(math.Round(travel + delay + in.Bias))
	if secs < 0 {
		secs = 0
	}
	return Result{
		Seconds:         secs,
		Formatted:       Format(secs),
		RemainingMeters: remaining,
		Breakdown: Breakdown{
			BaseTravelSeconds:  travel,
			SignalDelaySeconds: delay,
			RedSignalsAhead:    red,
			BiasSeconds:        in.Bias,
			SpeedMS:            speed,
			NearestIndex:       idx,
			TotalWaypoints:     len(in.Waypoints),
		},
	}
}

// RedSignalsAhead counts RED lights whose nearest waypoint index is at or past vehicleIndex.
func RedSignalsAhead(lights []Light, waypoints []types.Point, vehicleIndex int) int {
	n := 0
	for _, l := range lights {
		if !l.Red {
			continue
		}
		if l.Position == nil {
			n++
			continue
		}
		if i, _ := geo.NearestPointIndex(*l.Position, waypoints); i >= vehicleIndex {
			n++
		}
	}
	return n
}

// Format renders seconds as "Xm YYs".
func Format(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
}
