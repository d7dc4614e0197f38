package simplify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func TestCoords_Point(t *testing.T) {
	p := geom.NewPointFlat(geom.XY, []float64{110.37, -7.8})
	coords := Coords(p)
	assert.Equal(t, []geom.Coord{{110.37, -7.8}}, coords)
	assert.Equal(t, 1, CountPoints(p))
}

func TestCoords_NilAndUnknown(t *testing.T) {
	assert.Empty(t, Coords(nil))
	assert.Equal(t, 0, CountPoints(nil))
	assert.Empty(t, Coords(geom.NewPointEmpty(geom.XY)))
}

func TestCoords_PolygonOrder(t *testing.T) {
	outer := []float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0}
	hole := []float64{2, 2, 2, 4, 4, 4, 2, 2}
	p := polygon(outer, hole)

	coords := Coords(p)
	assert.Len(t, coords, 9)
	assert.Equal(t, geom.Coord{0, 0}, coords[0])
	assert.Equal(t, geom.Coord{2, 2}, coords[5])
	assert.Equal(t, 9, CountPoints(p))
}

func TestCoords_DropsZ(t *testing.T) {
	ls := geom.NewLineStringFlat(geom.XYZ, []float64{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []geom.Coord{{1, 2}, {4, 5}}, Coords(ls))
	assert.Equal(t, 2, CountPoints(ls))
}

func TestCoords_MultiPolygonAndCollection(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	assert.NoError(t, mp.Push(polygon([]float64{0, 0, 1, 0, 1, 1, 0, 0})))
	assert.NoError(t, mp.Push(polygon([]float64{5, 5, 6, 5, 6, 6, 5, 5})))
	assert.Equal(t, 8, CountPoints(mp))

	gc := geom.NewGeometryCollection()
	assert.NoError(t, gc.Push(mp, geom.NewPointFlat(geom.XY, []float64{1, 1})))
	assert.Len(t, Coords(gc), 9)
	assert.Equal(t, 9, CountPoints(gc))
}

func TestReductionPercent(t *testing.T) {
	assert.InDelta(t, 70.0, ReductionPercent(1000, 300), 1e-9)
	assert.InDelta(t, 0.0, ReductionPercent(0, 0), 1e-9)
	assert.InDelta(t, 0.0, ReductionPercent(10, 10), 1e-9)
}
