// Package simplify reduces the vertex count of feature geometries. It holds
// the coordinate extractor used for reduction accounting, the ring and
// geometry simplifiers, and the calibrator that searches for a tolerance
// meeting a target point-reduction percentage.
package simplify

import (
	"github.com/twpayne/go-geom"
)

// Coords flattens g into its XY coordinates in traversal order: outer ring
// before holes, polygon by polygon for multi-geometries. Nil and unsupported
// geometries yield an empty slice.
func Coords(g geom.T) []geom.Coord {
	switch t := g.(type) {
	case nil:
		return nil
	case *geom.Point:
		if t == nil || t.Empty() {
			return nil
		}
		return flatToCoords(t.FlatCoords(), t.Stride())
	case *geom.LineString:
		return flatToCoords(t.FlatCoords(), t.Stride())
	case *geom.LinearRing:
		return flatToCoords(t.FlatCoords(), t.Stride())
	case *geom.Polygon:
		return flatToCoords(t.FlatCoords(), t.Stride())
	case *geom.MultiPoint:
		return flatToCoords(t.FlatCoords(), t.Stride())
	case *geom.MultiLineString:
		return flatToCoords(t.FlatCoords(), t.Stride())
	case *geom.MultiPolygon:
		return flatToCoords(t.FlatCoords(), t.Stride())
	case *geom.GeometryCollection:
		var out []geom.Coord
		for _, child := range t.Geoms() {
			out = append(out, Coords(child)...)
		}
		return out
	default:
		return nil
	}
}

// CountPoints returns len(Coords(g)) without materialising the coordinates.
func CountPoints(g geom.T) int {
	switch t := g.(type) {
	case nil:
		return 0
	case *geom.Point:
		if t == nil || t.Empty() {
			return 0
		}
		return 1
	case *geom.GeometryCollection:
		n := 0
		for _, child := range t.Geoms() {
			n += CountPoints(child)
		}
		return n
	case *geom.LineString, *geom.LinearRing, *geom.Polygon,
		*geom.MultiPoint, *geom.MultiLineString, *geom.MultiPolygon:
		if t.Stride() == 0 {
			return 0
		}
		return len(t.FlatCoords()) / t.Stride()
	default:
		return 0
	}
}

// ReductionPercent is (original - simplified) / original * 100, or 0 when
// original is 0.
func ReductionPercent(original, simplified int) float64 {
	if original == 0 {
		return 0
	}
	return float64(original-simplified) / float64(original) * 100
}

func flatToCoords(flat []float64, stride int) []geom.Coord {
	if stride < 2 {
		return nil
	}
	out := make([]geom.Coord, 0, len(flat)/stride)
	for i := 0; i+stride <= len(flat); i += stride {
		out = append(out, geom.Coord{flat[i], flat[i+1]})
	}
	return out
}
