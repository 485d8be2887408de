// README: Candidate route and evaluation result types.
package routing

import "greencorridor/internal/types"

// Route is an immutable candidate path. Corridors replace it wholesale on reroute.
type Route struct {
	Waypoints           []types.Point `json:"waypoints"`
	DistanceMeters      float64       `json:"distanceMeters"`
	BaseDurationSeconds float64       `json:"baseDurationSeconds"`
	IsSynthetic         bool          `json:"isSynthetic"`
}

// Usable reports whether the route has enough waypoints for distance and ETA math.
func (r Route) Usable() bool {
	return len(r.Waypoints) >= 2
}

func (r Route) Origin() types.Point {
	return r.Waypoints[0]
}

func (r Route) Destination() types.Point {
	return r.Waypoints[len(r.Waypoints)-1]
}

type Breakdown struct {
	BaseDuration       float64               `json:"baseDuration"`
	CongestionPenalty  float64               `json:"congestionPenalty"`
	SignalPenalty      float64               `json:"signalPenalty"`
	RedSignals         int                   `json:"redSignals"`
	InstabilityPenalty float64               `json:"instabilityPenalty"`
	BiasPenalty        float64               `json:"biasPenalty"`
	Criticality        types.Criticality     `json:"criticality"`
	CongestionLevel    types.CongestionLevel `json:"congestionLevel"`
}

type Evaluation struct {
	// Index is the position of the route in the caller's candidate list,
	// unusable candidates included.
	Index     int       `json:"index"`
	Route     Route     `json:"route"`
	Cost      float64   `json:"cost"`
	Rounded   int64     `json:"roundedCost"`
	Breakdown Breakdown `json:"breakdown"`
}

// Result holds evaluations ordered by ascending cost. Best is Ranking[0].
type Result struct {
	Ranking []Evaluation `json:"ranking"`
}

func (r Result) Best() (Evaluation, bool) {
	if len(r.Ranking) == 0 {
		return Evaluation{}, false
	}
	return r.Ranking[0], true
}
