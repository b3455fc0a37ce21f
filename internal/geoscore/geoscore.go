package geoscore

import (
	"math"
)

// EarthRadiusKm is the mean Earth radius used for every distance in the game.
const EarthRadiusKm = 6371.0

// Coordinate is a WGS84 point in degrees. Lng is unrestricted; a Coordinate is
// canonical only after Normalize (Lng in (-180, 180]).
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Normalize returns c with its longitude brought into (-180, 180].
func (c Coordinate) Normalize() Coordinate {
	return Coordinate{Lat: c.Lat, Lng: NormalizeLongitude(c.Lng)}
}

// Valid reports whether c is finite with a latitude inside [-90, 90].
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90
}

// NormalizeLongitude maps any finite longitude to the equivalent value in
// (-180, 180]. Non-finite input is not supported.
func NormalizeLongitude(lng float64) float64 {
	if lng > -180 && lng <= 180 {
		return lng
	}
	r := math.Mod(lng+180, 360)
	if r <= 0 {
		r += 360
	}
	return r - 180
}

// Measurement is the result of comparing a guess against a target.
type Measurement struct {
	// DistanceKm is the great-circle distance rounded to 2 decimals.
	DistanceKm float64
	// OptimalTarget is the representation of the target (possibly shifted by
	// ±360°) closest in longitude to the normalized guess.
	OptimalTarget Coordinate
}

// Measure computes the antimeridian-aware distance between guess and target.
// Both inputs may be non-canonical.
func Measure(guess, target Coordinate) Measurement {
	g := guess.Normalize()
	t := target.Normalize()

	candidates := [3]Coordinate{
		t,
		{Lat: t.Lat, Lng: t.Lng + 360},
		{Lat: t.Lat, Lng: t.Lng - 360},
	}
	best := candidates[0]
	bestSpan := math.Abs(best.Lng - g.Lng)
	for _, c := range candidates[1:] {
		if span := math.Abs(c.Lng - g.Lng); span < bestSpan {
			best, bestSpan = c, span
		}
	}

	return Measurement{
		DistanceKm:    roundKm(EarthRadiusKm * centralAngle(g, t)),
		OptimalTarget: best,
	}
}

// DistanceKm is Measure(a, b).DistanceKm. It is symmetric in its arguments.
func DistanceKm(a, b Coordinate) float64 {
	return Measure(a, b).DistanceKm
}

// centralAngle is the haversine angular distance (radians) between two
// points, using the signed shortest longitude difference.
func centralAngle(p1, p2 Coordinate) float64 {
	φ1 := p1.Lat * math.Pi / 180.0
	φ2 := p2.Lat * math.Pi / 180.0
	dφ := (p2.Lat - p1.Lat) * math.Pi / 180.0
	dλ := math.Remainder(p2.Lng-p1.Lng, 360) * math.Pi / 180.0

	sinDφ := math.Sin(dφ / 2)
	sinDλ := math.Sin(dλ / 2)

	a := sinDφ*sinDφ + math.Cos(φ1)*math.Cos(φ2)*sinDλ*sinDλ
	// Clamp: rounding can push a just outside [0, 1] near antipodes.
	a = math.Min(1, math.Max(0, a))
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
