package simplify

import (
	"github.com/paulmach/orb/simplify"
	"github.com/twpayne/go-geom"
)

// reducerFor picks the pass for a run of n coordinates.
type reducerFor func(n int, opts RingOptions) lineReducer

// Simplify applies a Douglas-Peucker pass at tolerance to every line and ring
// of g and returns a geometry of the same variant. Points, multi-points,
// multi-lines and unrecognised geometries are returned unchanged.
//
// Rings are simplified independently. A ring that would collapse below
// MinRingPoints keeps its original coordinates whatever preventRemoval says,
// so no ring is ever dropped or left unclosed.
func Simplify(g geom.T, tolerance float64, preventRemoval bool) geom.T {
	dp := simplify.DouglasPeucker(tolerance)
	return simplifyWith(g, func(int, RingOptions) lineReducer { return dp }, preventRemoval)
}

func simplifyWith(g geom.T, reducer reducerFor, preventRemoval bool) geom.T {
	switch t := g.(type) {
	case *geom.LineString:
		if t == nil {
			return g
		}
		opts := RingOptions{PreventRemoval: preventRemoval, MinViable: MinLinePoints}
		pts := toLineString(t.FlatCoords(), t.Stride())
		out := reduceRing(pts, reducer(len(pts), opts), opts)
		return geom.NewLineStringFlat(geom.XY, fromLineString(out)).SetSRID(t.SRID())

	case *geom.Polygon:
		if t == nil {
			return g
		}
		if p, ok := simplifyPolygon(t, reducer, preventRemoval); ok {
			return p.SetSRID(t.SRID())
		}
		return g

	case *geom.MultiPolygon:
		if t == nil {
			return g
		}
		mp := geom.NewMultiPolygon(geom.XY)
		for i := 0; i < t.NumPolygons(); i++ {
			p, ok := simplifyPolygon(t.Polygon(i), reducer, preventRemoval)
			if !ok {
				continue
			}
			if err := mp.Push(p); err != nil {
				return g
			}
		}
		if mp.NumPolygons() == 0 {
			return g
		}
		return mp.SetSRID(t.SRID())

	default:
		return g
	}
}

// simplifyPolygon returns false when the polygon has no rings.
func simplifyPolygon(p *geom.Polygon, reducer reducerFor, preventRemoval bool) (*geom.Polygon, bool) {
	var (
		flat []float64
		ends []int
	)
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		pts := toLineString(ring.FlatCoords(), ring.Stride())
		opts := RingOptions{Closed: true, PreventRemoval: preventRemoval, MinViable: MinRingPoints}
		out := reduceRing(pts, reducer(len(pts), opts), opts)

		if len(out) < MinRingPoints {
			out = pts
		}

		flat = append(flat, fromLineString(out)...)
		ends = append(ends, len(flat))
	}
	if len(ends) == 0 {
		return nil, false
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends), true
}
