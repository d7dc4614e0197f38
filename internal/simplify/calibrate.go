package simplify

import (
	"math"

	"github.com/twpayne/go-geom"
)

// reductionEpsilon absorbs floating error when comparing against the cap.
const reductionEpsilon = 1e-9

// CalibrationConfig bounds the tolerance search.
type CalibrationConfig struct {
	ToleranceLow  float64 `mapstructure:"tolerance_low"`
	ToleranceHigh float64 `mapstructure:"tolerance_high"`
	MaxIterations int     `mapstructure:"max_iterations"`
	Convergence   float64 `mapstructure:"convergence"`
}

// DefaultCalibration returns the empirically chosen search bounds.
func DefaultCalibration() CalibrationConfig {
	return CalibrationConfig{
		ToleranceLow:  0.0001,
		ToleranceHigh: 1.0,
		MaxIterations: 20,
		Convergence:   1e-5,
	}
}

// Stats describes one simplification outcome.
type Stats struct {
	OriginalPoints   int     `json:"original_points"`
	SimplifiedPoints int     `json:"simplified_points"`
	Tolerance        float64 `json:"tolerance"`
	Iterations       int     `json:"iterations"`
}

// ReductionPercent is the realised point reduction.
func (s Stats) ReductionPercent() float64 {
	return ReductionPercent(s.OriginalPoints, s.SimplifiedPoints)
}

// Calibrator searches the Douglas-Peucker tolerance that brings a geometry
// as close as possible to a target reduction without exceeding it.
type Calibrator struct {
	cfg CalibrationConfig
}

// NewCalibrator returns a Calibrator; zero fields fall back to defaults.
func NewCalibrator(cfg CalibrationConfig) *Calibrator {
	def := DefaultCalibration()
	if cfg.ToleranceLow <= 0 {
		cfg.ToleranceLow = def.ToleranceLow
	}
	if cfg.ToleranceHigh <= cfg.ToleranceLow {
		cfg.ToleranceHigh = def.ToleranceHigh
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.Convergence <= 0 {
		cfg.Convergence = def.Convergence
	}
	return &Calibrator{cfg: cfg}
}

// Config returns the effective search bounds.
func (c *Calibrator) Config() CalibrationConfig { return c.cfg }

// Calibrate binary-searches the tolerance so the point reduction of g lands
// on, or just under, targetPercentage. Results that over-simplify are never
// kept; the fallback is g itself. When no tolerance hits the target count,
// the least significant vertices are trimmed until it is reached. With preventRemoval set, a result whose
// reduction still exceeds the target is discarded in favour of g.
func (c *Calibrator) Calibrate(g geom.T, targetPercentage float64, preventRemoval bool) (geom.T, Stats) {
	original := CountPoints(g)
	stats := Stats{OriginalPoints: original, SimplifiedPoints: original}
	if original == 0 || targetPercentage <= 0 {
		return g, stats
	}
	if _, ok := g.(*geom.Point); ok {
		return g, stats
	}
	targetPercentage = math.Min(targetPercentage, 100)

	targetPoints := int(math.Ceil(float64(original)*(100-targetPercentage)/100 - reductionEpsilon))

	low, high := c.cfg.ToleranceLow, c.cfg.ToleranceHigh
	best, bestPoints, bestTolerance := g, original, low

	for i := 0; i < c.cfg.MaxIterations && high-low >= c.cfg.Convergence; i++ {
		stats.Iterations++
		mid := (low + high) / 2

		candidate := Simplify(g, mid, preventRemoval)
		n := CountPoints(candidate)

		if n < targetPoints {
			high = mid
			continue
		}

		best, bestPoints, bestTolerance = candidate, n, mid
		if n == targetPoints {
			break
		}
		low = mid
	}

	// Tolerance steps can jump past the target count; rank vertices to land
	// on it exactly.
	if bestPoints > targetPoints {
		trimmed := trimToCount(g, targetPoints)
		if n := CountPoints(trimmed); n >= targetPoints && n < bestPoints {
			best, bestPoints = trimmed, n
		}
	}

	if preventRemoval && ReductionPercent(original, bestPoints) > targetPercentage+reductionEpsilon {
		return g, stats
	}

	stats.SimplifiedPoints = bestPoints
	stats.Tolerance = bestTolerance
	return best, stats
}

// Reduce applies the algorithm selected in cfg. Inactive configs return g.
func (c *Calibrator) Reduce(g geom.T, cfg Config) (geom.T, Stats) {
	if !cfg.Active() {
		n := CountPoints(g)
		return g, Stats{OriginalPoints: n, SimplifiedPoints: n}
	}
	if cfg.Algorithm == Visvalingam {
		return ReduceVisvalingam(g, cfg.TargetPercentage, cfg.PreventShapeRemoval)
	}
	return c.Calibrate(g, cfg.TargetPercentage, cfg.PreventShapeRemoval)
}
