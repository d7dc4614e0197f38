package simplify

import (
	"cmp"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/twpayne/go-geom"
)

// sequence is one line or ring of a geometry together with the
// Douglas-Peucker significance of each vertex.
type sequence struct {
	points orb.LineString
	sig    []float64
	keep   []bool
}

// trimToCount keeps the target most significant vertices of g across all of
// its lines and rings. Endpoints and the MinViable most significant vertices
// of every sequence are always kept, so the result may hold more than target
// points but never fewer. Variants Simplify leaves alone are returned as is.
func trimToCount(g geom.T, target int) geom.T {
	var seqs []*sequence
	add := func(flat []float64, stride, minViable int) {
		pts := toLineString(flat, stride)
		seqs = append(seqs, &sequence{points: pts, sig: significance(pts, minViable), keep: make([]bool, len(pts))})
	}

	switch t := g.(type) {
	case *geom.LineString:
		add(t.FlatCoords(), t.Stride(), MinLinePoints)
	case *geom.Polygon:
		for i := 0; i < t.NumLinearRings(); i++ {
			add(t.LinearRing(i).FlatCoords(), t.Stride(), MinRingPoints)
		}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			for j := 0; j < p.NumLinearRings(); j++ {
				add(p.LinearRing(j).FlatCoords(), p.Stride(), MinRingPoints)
			}
		}
	default:
		return g
	}

	type vertex struct {
		seq, idx int
		sig      float64
	}
	var optional []vertex
	budget := target
	for s, seq := range seqs {
		for i, sig := range seq.sig {
			if math.IsInf(sig, 1) {
				seq.keep[i] = true
				budget--
				continue
			}
			optional = append(optional, vertex{seq: s, idx: i, sig: sig})
		}
	}
	slices.SortStableFunc(optional, func(a, b vertex) int { return cmp.Compare(b.sig, a.sig) })
	for _, v := range optional[:max(0, min(budget, len(optional)))] {
		seqs[v.seq].keep[v.idx] = true
	}

	kept := func(seq *sequence) []float64 {
		flat := make([]float64, 0, len(seq.points)*2)
		for i, p := range seq.points {
			if seq.keep[i] {
				flat = append(flat, p[0], p[1])
			}
		}
		return flat
	}

	switch t := g.(type) {
	case *geom.LineString:
		return geom.NewLineStringFlat(geom.XY, kept(seqs[0])).SetSRID(t.SRID())
	case *geom.Polygon:
		flat, ends := rings(seqs, kept)
		return geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(t.SRID())
	case *geom.MultiPolygon:
		var (
			flat  []float64
			endss [][]int
			next  int
		)
		for i := 0; i < t.NumPolygons(); i++ {
			n := t.Polygon(i).NumLinearRings()
			f, ends := rings(seqs[next:next+n], kept)
			for k := range ends {
				ends[k] += len(flat)
			}
			flat = append(flat, f...)
			endss = append(endss, ends)
			next += n
		}
		return geom.NewMultiPolygonFlat(geom.XY, flat, endss).SetSRID(t.SRID())
	}
	return g
}

func rings(seqs []*sequence, kept func(*sequence) []float64) ([]float64, []int) {
	var (
		flat []float64
		ends []int
	)
	for _, seq := range seqs {
		flat = append(flat, kept(seq)...)
		ends = append(ends, len(flat))
	}
	return flat, ends
}

// significance ranks each vertex by the tolerance at which Douglas-Peucker
// would still keep it. A vertex never outranks the split that exposed it, so
// keeping the top n vertices matches some tolerance's result. Endpoints and
// the minViable-2 strongest interior vertices rank +Inf; a sequence no
// longer than minViable is kept whole.
func significance(pts orb.LineString, minViable int) []float64 {
	n := len(pts)
	sig := make([]float64, n)
	if n <= minViable || n <= 2 {
		for i := range sig {
			sig[i] = math.Inf(1)
		}
		return sig
	}
	sig[0], sig[n-1] = math.Inf(1), math.Inf(1)

	type span struct {
		from, to int
		limit    float64
	}
	stack := []span{{0, n - 1, math.Inf(1)}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.to-s.from < 2 {
			continue
		}
		split, dist := s.from+1, -1.0
		for i := s.from + 1; i < s.to; i++ {
			if d := planar.DistanceFromSegment(pts[s.from], pts[s.to], pts[i]); d > dist {
				split, dist = i, d
			}
		}
		dist = math.Min(dist, s.limit)
		sig[split] = dist
		stack = append(stack, span{s.from, split, dist}, span{split, s.to, dist})
	}

	interior := make([]int, 0, n-2)
	for i := 1; i < n-1; i++ {
		interior = append(interior, i)
	}
	slices.SortStableFunc(interior, func(a, b int) int { return cmp.Compare(sig[b], sig[a]) })
	for _, i := range interior[:max(0, minViable-2)] {
		sig[i] = math.Inf(1)
	}
	return sig
}
