// README: Pure geographic primitives over lat/lng waypoints (meters, haversine).
package geo

import (
	"math"

	"github.com/paulmach/orb"

	"greencorridor/internal/types"
)

// EarthRadiusM is the mean Earth radius used for every distance in the system.
const EarthRadiusM = 6_371_000.0

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusM * c
}

// NearestPointIndex returns the index of the waypoint closest to position and its distance.
// Ties resolve to the lowest index. Passing an empty slice is a programming error.
func NearestPointIndex(position types.Point, waypoints []types.Point) (int, float64) {
	if len(waypoints) == 0 {
		panic("geo: NearestPointIndex called with no waypoints")
	}
	idx := 0
	minDist := Distance(position, waypoints[0])
	for i := 1; i < len(waypoints); i++ {
		if d := Distance(position, waypoints[i]); d < minDist {
			minDist = d
			idx = i
		}
	}
	return idx, minDist
}

// DistanceToRoute approximates the distance from position to the polyline as the
// distance to its nearest vertex.
func DistanceToRoute(position types.Point, waypoints []types.Point) float64 {
	_, d := NearestPointIndex(position, waypoints)
	return d
}

// RemainingDistance sums segment lengths from fromIndex to the last waypoint.
// The leg from the caller's exact position to waypoints[fromIndex] is not included.
func RemainingDistance(waypoints []types.Point, fromIndex int) float64 {
	if fromIndex < 0 {
		fromIndex = 0
	}
	total := 0.0
	for i := fromIndex; i < len(waypoints)-1; i++ {
		total += Distance(waypoints[i], waypoints[i+1])
	}
	return total
}

// PathLength is the full polyline length in meters.
func PathLength(waypoints []types.Point) float64 {
	return RemainingDistance(waypoints, 0)
}

// Offset moves p by northM meters north and eastM meters east (small-distance approximation).
func Offset(p types.Point, northM, eastM float64) types.Point {
	dLat := northM / EarthRadiusM
	dLng := eastM / (EarthRadiusM * math.Cos(degreesToRadians(p.Lat)))
	return types.Point{
		Lat: p.Lat + radiansToDegrees(dLat),
		Lng: p.Lng + radiansToDegrees(dLng),
	}
}

// Along returns the point meters along the polyline, interpolating linearly inside a
// segment. Distances past the end clamp to the last waypoint.
func Along(waypoints []types.Point, meters float64) types.Point {
	if len(waypoints) == 0 {
		return types.Point{}
	}
	if meters <= 0 {
		return waypoints[0]
	}
	for i := 0; i < len(waypoints)-1; i++ {
		seg := Distance(waypoints[i], waypoints[i+1])
		if meters <= seg && seg > 0 {
			f := meters / seg
			a, b := waypoints[i], waypoints[i+1]
			return types.Point{Lat: a.Lat + (b.Lat-a.Lat)*f, Lng: a.Lng + (b.Lng-a.Lng)*f}
		}
		meters -= seg
	}
	return waypoints[len(waypoints)-1]
}

// ToOrb converts to an orb point; orb orders coordinates lng, lat.
func ToOrb(p types.Point) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func FromOrb(p orb.Point) types.Point {
	return types.Point{Lat: p.Lat(), Lng: p.Lon()}
}

func LineString(waypoints []types.Point) orb.LineString {
	ls := make(orb.LineString, len(waypoints))
	for i, wp := range waypoints {
		ls[i] = ToOrb(wp)
	}
	return ls
}

// PaddedBound is the bounding box of the waypoints grown by padDeg degrees on every side.
func PaddedBound(waypoints []types.Point, padDeg float64) orb.Bound {
	return LineString(waypoints).Bound().Pad(padDeg)
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func radiansToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
