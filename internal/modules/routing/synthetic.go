// README: Deterministic synthetic route pair used when no provider route is available.
package routing

import (
	"math"

	"greencorridor/internal/geo"
	"greencorridor/internal/types"
)

const (
	syntheticPoints      = 15
	syntheticSpeedMS     = 12.0
	syntheticDetourRatio = 1.15
	bowLatDeg            = 0.002
	bowLngDeg            = 0.001
)

// SyntheticPair returns a primary route bowed to one side of the straight line and an
// alternate bowed to the other, both flagged IsSynthetic.
func SyntheticPair(origin, destination types.Point) []Route {
	primary := make([]types.Point, syntheticPoints)
	alternate := make([]types.Point, syntheticPoints)
	latStep := (destination.Lat - origin.Lat) / (syntheticPoints - 1)
	lngStep := (destination.Lng - origin.Lng) / (syntheticPoints - 1)

	for i := 0; i < syntheticPoints; i++ {
		t := float64(i) / (syntheticPoints - 1)
		bow := math.Sin(t * math.Pi)
		lat := origin.Lat + latStep*float64(i)
		lng := origin.Lng + lngStep*float64(i)
		primary[i] = types.Point{Lat: lat + bow*bowLatDeg, Lng: lng + bow*bowLngDeg}
		alternate[i] = types.Point{Lat: lat - bow*bowLatDeg*0.8, Lng: lng - bow*bowLngDeg*1.2}
	}

	dist := geo.Distance(origin, destination)
	altDist := dist * syntheticDetourRatio
	return []Route{
		{Waypoints: primary, DistanceMeters: dist, BaseDurationSeconds: math.Round(dist / syntheticSpeedMS), IsSynthetic: true},
		{Waypoints: alternate, DistanceMeters: altDist, BaseDurationSeconds: math.Round(altDist / syntheticSpeedMS), IsSynthetic: true},
	}
}
