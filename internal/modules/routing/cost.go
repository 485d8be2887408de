// README: Emergency cost formula and stable ranking of candidate routes.
package routing

import (
	"math"
	"sort"

	"greencorridor/internal/types"
)

// CongestionWeight is the fraction of base duration added for the congestion level.
func CongestionWeight(c types.CongestionLevel) float64 {
	switch c {
	case types.CongestionLow:
		return 0
	case types.CongestionMedium:
		return 0.15
	default:
		return 0.35
	}
}

// SignalDelaySeconds is the expected wait per RED signal for a criticality.
func SignalDelaySeconds(c types.Criticality) float64 {
	switch c {
	case types.CriticalityStable:
		return 30
	case types.CriticalityVeryCritical:
		return 3
	default:
		return 12
	}
}

// InstabilityWeight is the fraction of base duration added for patient risk.
func InstabilityWeight(c types.Criticality) float64 {
	switch c {
	case types.CriticalityStable:
		return 0
	case types.CriticalityVeryCritical:
		return 0.20
	default:
		return 0.08
	}
}

// Cost computes the emergency cost of one route.
func Cost(r Route, crit types.Criticality, cong types.CongestionLevel, redSignals int, bias float64) (float64, Breakdown) {
	base := r.BaseDurationSeconds
	b := Breakdown{
		BaseDuration:       base,
		CongestionPenalty:  base * CongestionWeight(cong),
		SignalPenalty:      float64(redSignals) * SignalDelaySeconds(crit),
		RedSignals:         redSignals,
		InstabilityPenalty: base * InstabilityWeight(crit),
		BiasPenalty:        bias,
		Criticality:        crit,
		CongestionLevel:    cong,
	}
	return b.BaseDuration + b.CongestionPenalty + b.SignalPenalty + b.InstabilityPenalty + b.BiasPenalty, b
}

// Rank evaluates every route and orders them by ascending cost. Equal costs keep
// input order. redSignals[i] is the RED signal count of routes[i]; missing entries count as zero.
func Rank(routes []Route, crit types.Criticality, cong types.CongestionLevel, redSignals []int, bias float64) Result {
	evals := make([]Evaluation, len(routes))
	for i, r := range routes {
		n := 0
		if i < len(redSignals) {
			n = redSignals[i]
		}
		cost, b := Cost(r, crit, cong, n, bias)
		evals[i] = Evaluation{
			Index:     i,
			Route:     r,
			Cost:      cost,
			Rounded:   int64(math.Round(cost)),
			Breakdown: b,
		}
	}
	sort.SliceStable(evals, func(i, j int) bool {
		return evals[i].Cost < evals[j].Cost
	})
	return Result{Ranking: evals}
}
