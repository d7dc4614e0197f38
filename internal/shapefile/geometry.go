package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference assigned to every decoded geometry.
const SRID = 4326

// ToGeometry converts a decoded shape into a go-geom value. Null shapes
// and shapes without points yield nil.
func ToGeometry(shape shp.Shape) (geom.T, error) {
	switch s := shape.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return newPoint(s.X, s.Y), nil
	case *shp.PointZ:
		return newPoint(s.X, s.Y), nil
	case *shp.PointM:
		return newPoint(s.X, s.Y), nil
	case *shp.MultiPoint:
		return newMultiPoint(s.Points), nil
	case *shp.MultiPointZ:
		return newMultiPoint(s.Points), nil
	case *shp.MultiPointM:
		return newMultiPoint(s.Points), nil
	case *shp.PolyLine:
		return newLines(splitParts(s.Parts, s.Points)), nil
	case *shp.PolyLineZ:
		return newLines(splitParts(s.Parts, s.Points)), nil
	case *shp.PolyLineM:
		return newLines(splitParts(s.Parts, s.Points)), nil
	case *shp.Polygon:
		return newPolygons(splitParts(s.Parts, s.Points)), nil
	case *shp.PolygonZ:
		return newPolygons(splitParts(s.Parts, s.Points)), nil
	case *shp.PolygonM:
		return newPolygons(splitParts(s.Parts, s.Points)), nil
	default:
		return nil, eris.Errorf("shapefile: unsupported shape type %T", shape)
	}
}

func newPoint(x, y float64) geom.T {
	return geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(SRID)
}

func newMultiPoint(points []shp.Point) geom.T {
	if len(points) == 0 {
		return nil
	}
	return geom.NewMultiPointFlat(geom.XY, flatten(points)).SetSRID(SRID)
}

// splitParts slices points at the part offsets. Out-of-range offsets are
// clamped so a corrupt record cannot panic the reader.
func splitParts(parts []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(points) {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

func newLines(parts [][]shp.Point) geom.T {
	var flat []float64
	var ends []int
	for _, p := range parts {
		if len(p) < 2 {
			continue
		}
		flat = append(flat, flatten(p)...)
		ends = append(ends, len(flat))
	}
	switch len(ends) {
	case 0:
		return nil
	case 1:
		return geom.NewLineStringFlat(geom.XY, flat).SetSRID(SRID)
	default:
		return geom.NewMultiLineStringFlat(geom.XY, flat, ends).SetSRID(SRID)
	}
}

// newPolygons groups rings by orientation: a clockwise ring opens a new
// polygon and each counter-clockwise ring is a hole of the polygon before
// it. The first ring is always treated as an outer ring.
func newPolygons(rings [][]shp.Point) geom.T {
	var polys [][][]shp.Point
	for _, ring := range rings {
		if len(ring) == 0 {
			continue
		}
		if len(polys) == 0 || signedArea(ring) < 0 {
			polys = append(polys, [][]shp.Point{ring})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], ring)
	}

	var flat []float64
	var endss [][]int
	for _, rs := range polys {
		ends := make([]int, 0, len(rs))
		for _, r := range rs {
			flat = append(flat, flatten(r)...)
			ends = append(ends, len(flat))
		}
		endss = append(endss, ends)
	}

	switch len(endss) {
	case 0:
		return nil
	case 1:
		return geom.NewPolygonFlat(geom.XY, flat, endss[0]).SetSRID(SRID)
	default:
		return geom.NewMultiPolygonFlat(geom.XY, flat, endss).SetSRID(SRID)
	}
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var sum float64
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum / 2
}

func flatten(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
