package simplify

import (
	"math"

	"github.com/paulmach/orb/simplify"
	"github.com/twpayne/go-geom"
)

// ReduceVisvalingam reduces g with the weighted-area (Visvalingam-Whyatt) pass,
// keeping ceil(n * (1 - target/100)) points of every line and ring. The same
// closure and viability rules as Simplify apply.
func ReduceVisvalingam(g geom.T, targetPercentage float64, preventRemoval bool) (geom.T, Stats) {
	original := CountPoints(g)
	stats := Stats{OriginalPoints: original, SimplifiedPoints: original}
	if original == 0 || targetPercentage <= 0 {
		return g, stats
	}
	targetPercentage = math.Min(targetPercentage, 100)

	out := simplifyWith(g, func(n int, opts RingOptions) lineReducer {
		keep := int(math.Ceil(float64(n)*(100-targetPercentage)/100 - reductionEpsilon))
		if opts.PreventRemoval && keep < opts.MinViable {
			keep = opts.MinViable
		}
		if keep < 2 {
			keep = 2
		}
		return simplify.VisvalingamKeep(keep)
	}, preventRemoval)

	stats.SimplifiedPoints = CountPoints(out)
	stats.Iterations = 1
	return out, stats
}
