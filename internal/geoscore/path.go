package geoscore

import (
	"iter"
	"math"
)

// DefaultPathPoints is the number of segments GeodesicPath uses when asked
// for a non-positive count.
const DefaultPathPoints = 50

// coincidentAngle is the angular distance (radians, ~6 mm on Earth) below
// which two points are treated as the same place.
const coincidentAngle = 1e-9

// GeodesicPath traces the great-circle arc from one point to another as
// numPoints+1 coordinates. The sequence is lazy and can be ranged over any
// number of times.
//
// The first and last points are exactly from and to as given; intermediate
// longitudes are normalized. Callers that want the rendered line to match the
// reported distance pass Measure(guess, target).OptimalTarget as to.
func GeodesicPath(from, to Coordinate, numPoints int) iter.Seq[Coordinate] {
	if numPoints <= 0 {
		numPoints = DefaultPathPoints
	}
	δ := centralAngle(from, to)

	return func(yield func(Coordinate) bool) {
		if !yield(from) {
			return
		}
		if δ < coincidentAngle {
			yield(to)
			return
		}

		φ1 := from.Lat * math.Pi / 180.0
		λ1 := from.Lng * math.Pi / 180.0
		φ2 := to.Lat * math.Pi / 180.0
		dλ := math.Remainder(to.Lng-from.Lng, 360) * math.Pi / 180.0

		// Initial bearing from `from` towards `to`.
		θ := math.Atan2(
			math.Sin(dλ)*math.Cos(φ2),
			math.Cos(φ1)*math.Sin(φ2)-math.Sin(φ1)*math.Cos(φ2)*math.Cos(dλ),
		)
		sinφ1, cosφ1 := math.Sin(φ1), math.Cos(φ1)

		for i := 1; i < numPoints; i++ {
			d := δ * float64(i) / float64(numPoints)
			sinD, cosD := math.Sin(d), math.Cos(d)

			sinφ := sinφ1*cosD + cosφ1*sinD*math.Cos(θ)
			φ := math.Asin(math.Max(-1, math.Min(1, sinφ)))
			λ := λ1 + math.Atan2(math.Sin(θ)*sinD*cosφ1, cosD-sinφ1*sinφ)

			p := Coordinate{
				Lat: φ * 180.0 / math.Pi,
				Lng: NormalizeLongitude(λ * 180.0 / math.Pi),
			}
			if !yield(p) {
				return
			}
		}
		yield(to)
	}
}
