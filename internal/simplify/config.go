package simplify

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Algorithm selects the point-reduction method for a request.
type Algorithm string

// Supported algorithms.
const (
	DouglasPeucker Algorithm = "douglas-peucker"
	Visvalingam    Algorithm = "visvalingam"
)

// ParseAlgorithm accepts the canonical names and common short forms.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dp", "douglas-peucker", "douglas_peucker", "douglaspeucker":
		return DouglasPeucker, nil
	case "vw", "visvalingam", "visvalingam-whyatt":
		return Visvalingam, nil
	default:
		return "", eris.Errorf("simplify: unknown algorithm %q", s)
	}
}

// Config is the per-request simplification setting. TargetPercentage is the
// maximum acceptable point reduction, not a tolerance.
type Config struct {
	Algorithm           Algorithm `json:"algorithm" yaml:"algorithm"`
	TargetPercentage    float64   `json:"targetPercentage" yaml:"target_percentage"`
	PreventShapeRemoval bool      `json:"preventShapeRemoval" yaml:"prevent_shape_removal"`
}

// Active reports whether the config asks for any reduction.
func (c *Config) Active() bool {
	return c != nil && c.TargetPercentage > 0
}

// Validate checks the target range and algorithm.
func (c Config) Validate() error {
	if c.TargetPercentage < 0 || c.TargetPercentage > 100 {
		return eris.Errorf("simplify: target percentage %.2f out of range 0..100", c.TargetPercentage)
	}
	if c.Algorithm != DouglasPeucker && c.Algorithm != Visvalingam {
		return eris.Errorf("simplify: unknown algorithm %q", c.Algorithm)
	}
	return nil
}
