package geoscore

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxScore is awarded for a guess within MinDistanceKm of the target.
	MaxScore = 10000
	// MinDistanceKm is the full-credit radius (10 m).
	MinDistanceKm = 0.01
	// MaxDistanceKm is the distance at and beyond which a guess scores 0.
	MaxDistanceKm = 5000.0
)

// Curve blends a steep near-field exponential with a shallow far-field one.
//
//	raw(d) = w·e^(-d/near) + (1-w)·e^(-d/far)
//
// The blend is shifted and rescaled so that it is exactly 1 at MinDistanceKm
// and exactly 0 at MaxDistanceKm, which keeps Score continuous at both
// thresholds for every valid coefficient set.
type Curve struct {
	NearWeight  float64
	NearScaleKm float64
	FarScaleKm  float64
}

// DefaultCurve is the curve used by ScoreFor.
var DefaultCurve = Curve{NearWeight: 0.8, NearScaleKm: 40, FarScaleKm: 600}

var ErrInvalidCurve = errors.New("invalid score curve")

// Validate checks that the coefficients describe a decreasing curve.
func (c Curve) Validate() error {
	if math.IsNaN(c.NearWeight) || c.NearWeight < 0 || c.NearWeight > 1 {
		return fmt.Errorf("%w: near weight %v outside [0, 1]", ErrInvalidCurve, c.NearWeight)
	}
	if !(c.NearScaleKm > 0) || math.IsInf(c.NearScaleKm, 0) {
		return fmt.Errorf("%w: near scale must be positive, got %v", ErrInvalidCurve, c.NearScaleKm)
	}
	if !(c.FarScaleKm > 0) || math.IsInf(c.FarScaleKm, 0) {
		return fmt.Errorf("%w: far scale must be positive, got %v", ErrInvalidCurve, c.FarScaleKm)
	}
	return nil
}

func (c Curve) raw(d float64) float64 {
	return c.NearWeight*math.Exp(-d/c.NearScaleKm) + (1-c.NearWeight)*math.Exp(-d/c.FarScaleKm)
}

// Score returns an integer score in [0, MaxScore] for a distance in km. It is
// monotonically non-increasing in distance. An invalid curve falls back to
// DefaultCurve.
func (c Curve) Score(distanceKm float64) int {
	if c.Validate() != nil {
		c = DefaultCurve
	}
	if distanceKm <= MinDistanceKm {
		return MaxScore
	}
	if distanceKm >= MaxDistanceKm {
		return 0
	}

	floor := c.raw(MaxDistanceKm - MinDistanceKm)
	v := (c.raw(distanceKm-MinDistanceKm) - floor) / (1 - floor)

	score := int(math.Round(MaxScore * v))
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ScoreFor scores a distance with DefaultCurve.
func ScoreFor(distanceKm float64) int {
	return DefaultCurve.Score(distanceKm)
}

// FormatDistance renders a distance in meters below 500 m, kilometers otherwise.
func FormatDistance(km float64) string {
	if km < 0.5 {
		return fmt.Sprintf("%.0f m", math.Round(km*1000))
	}
	return fmt.Sprintf("%.2f km", km)
}

// PerformanceRating buckets a total score by its share of the maximum.
func PerformanceRating(score, maxPossible int) string {
	if maxPossible <= 0 {
		return "Keep trying!"
	}
	pct := float64(score) / float64(maxPossible) * 100
	switch {
	case pct >= 90:
		return "Excellent"
	case pct >= 75:
		return "Great"
	case pct >= 60:
		return "Good"
	case pct >= 40:
		return "Fair"
	default:
		return "Keep trying!"
	}
}
