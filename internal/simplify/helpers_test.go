package simplify

import (
	"math"

	"github.com/twpayne/go-geom"
)

// circleRing returns n+1 flat XY coordinates on a closed circle.
func circleRing(cx, cy, r float64, n int) []float64 {
	flat := make([]float64, 0, (n+1)*2)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		flat = append(flat, cx+r*math.Cos(a), cy+r*math.Sin(a))
	}
	return append(flat, flat[0], flat[1])
}

// noisyRing returns a closed ring of n+1 points whose radius wobbles, so
// tolerance changes shift the retained count gradually.
func noisyRing(cx, cy, r float64, n int) []float64 {
	flat := make([]float64, 0, (n+1)*2)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		rr := r * (1 + 0.05*math.Sin(float64(i)*1.7) + 0.02*math.Cos(float64(i)*5.3))
		flat = append(flat, cx+rr*math.Cos(a), cy+rr*math.Sin(a))
	}
	return append(flat, flat[0], flat[1])
}

func polygon(rings ...[]float64) *geom.Polygon {
	var flat []float64
	var ends []int
	for _, r := range rings {
		flat = append(flat, r...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(4326)
}

func ringClosed(flat []float64) bool {
	n := len(flat)
	return n >= 4 && flat[0] == flat[n-2] && flat[1] == flat[n-1]
}
