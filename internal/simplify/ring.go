package simplify

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// Minimum vertex counts that keep a simplified sequence valid.
const (
	MinLinePoints = 3 // open lines
	MinRingPoints = 4 // 3 distinct vertices + closing point
)

// RingOptions controls how SimplifyRing treats a coordinate sequence.
type RingOptions struct {
	Closed         bool
	PreventRemoval bool
	MinViable      int
}

// lineReducer is a point-elimination pass. The orb simplifiers satisfy it.
type lineReducer interface {
	Simplify(g orb.Geometry) orb.Geometry
}

// SimplifyRing applies a Douglas-Peucker pass at tolerance to one open or
// closed coordinate sequence. A closed ring that loses its closing point is
// re-closed. With PreventRemoval set, a result shorter than MinViable is
// discarded and the original sequence returned. The input is never modified.
func SimplifyRing(points orb.LineString, tolerance float64, opts RingOptions) orb.LineString {
	return reduceRing(points, simplify.DouglasPeucker(tolerance), opts)
}

func reduceRing(points orb.LineString, r lineReducer, opts RingOptions) orb.LineString {
	if len(points) <= 2 || len(points) < opts.MinViable {
		return points
	}

	closed := opts.Closed && points[0].Equal(points[len(points)-1])

	// orb simplifies in place.
	out, ok := r.Simplify(points.Clone()).(orb.LineString)
	if !ok {
		return points
	}

	if closed && len(out) > 0 && !out[0].Equal(out[len(out)-1]) {
		out = append(out, out[0])
	}

	if opts.PreventRemoval && len(out) < opts.MinViable {
		return points
	}
	return out
}

func toLineString(flat []float64, stride int) orb.LineString {
	if stride < 2 {
		return nil
	}
	ls := make(orb.LineString, 0, len(flat)/stride)
	for i := 0; i+stride <= len(flat); i += stride {
		ls = append(ls, orb.Point{flat[i], flat[i+1]})
	}
	return ls
}

func fromLineString(ls orb.LineString) []float64 {
	flat := make([]float64, 0, len(ls)*2)
	for _, p := range ls {
		flat = append(flat, p[0], p[1])
	}
	return flat
}
