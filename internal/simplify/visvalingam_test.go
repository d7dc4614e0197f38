package simplify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestVisvalingam_KeepsTargetShare(t *testing.T) {
	p := polygon(noisyRing(0, 0, 10, 399))

	out, stats := ReduceVisvalingam(p, 50, true)
	poly, ok := out.(*geom.Polygon)
	require.True(t, ok)

	assert.Equal(t, 400, stats.OriginalPoints)
	assert.Equal(t, 200, stats.SimplifiedPoints)
	assert.True(t, ringClosed(poly.LinearRing(0).FlatCoords()))
}

func TestVisvalingam_PreventRemovalFloor(t *testing.T) {
	p := polygon(noisyRing(0, 0, 10, 20))

	out, _ := ReduceVisvalingam(p, 100, true)
	poly, ok := out.(*geom.Polygon)
	require.True(t, ok)
	assert.GreaterOrEqual(t, poly.LinearRing(0).NumCoords(), MinRingPoints)
	assert.True(t, ringClosed(poly.LinearRing(0).FlatCoords()))
}

func TestVisvalingam_ZeroTarget(t *testing.T) {
	p := polygon(noisyRing(0, 0, 10, 20))
	out, stats := ReduceVisvalingam(p, 0, true)
	assert.Same(t, p, out)
	assert.Equal(t, 0, stats.Iterations)
}
