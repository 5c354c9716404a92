// SPDX-License-Identifier: MIT

// Package geo provides the great-circle math used by the movement and
// seeding code. Accuracy is well within what a simulated GPS fix needs.
package geo

import "math"

const earthRadiusM = 6_371_000

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// DistanceM returns the great-circle distance in meters between two points
// using the haversine formula.
func DistanceM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lng1 := a.Lng * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lng2 := b.Lng * math.Pi / 180

	dLat := lat2 - lat1
	dLng := lng2 - lng1

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLng/2), 2)

	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// CumulativeDistancesM returns the running arc-length in meters at each
// waypoint of a polyline, plus its total length. The first entry is 0.
func CumulativeDistancesM(waypoints []Point) (cumulative []float64, total float64) {
	cumulative = make([]float64, len(waypoints))
	for i := 1; i < len(waypoints); i++ {
		total += DistanceM(waypoints[i-1], waypoints[i])
		cumulative[i] = total
	}
	return cumulative, total
}

// Lerp interpolates linearly between two points in lat/lng space by the given
// fraction. Good enough over the tens of meters a scooter covers per tick.
func Lerp(from, to Point, fraction float64) Point {
	return Point{
		Lat: from.Lat + (to.Lat-from.Lat)*fraction,
		Lng: from.Lng + (to.Lng-from.Lng)*fraction,
	}
}

// Heading returns the travel direction in radians for a move from one point
// to another, measured as atan2 over the raw coordinate deltas.
func Heading(from, to Point) float64 {
	return math.Atan2(to.Lng-from.Lng, to.Lat-from.Lat)
}

// TurnDelta returns the absolute change between two headings, folded into
// [0, pi].
func TurnDelta(prev, cur float64) float64 {
	d := math.Abs(cur - prev)
	return math.Min(d, math.Abs(2*math.Pi-d))
}
