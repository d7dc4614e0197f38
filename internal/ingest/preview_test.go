package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/disaster-gis/internal/feature"
	"github.com/sells-group/disaster-gis/internal/simplify"
)

func TestPreview(t *testing.T) {
	fs := []*feature.Feature{
		{Geometry: wobblyPolygon(400)},
		{Geometry: geom.NewPointFlat(geom.XY, []float64{1, 2})},
		{Geometry: nil},
	}
	src := feature.NewSliceSource(nil, fs)

	report, err := Preview(src, simplify.Config{TargetPercentage: 50, PreventShapeRemoval: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, simplify.DouglasPeucker, report.Config.Algorithm)
	assert.Equal(t, 3, report.TotalFeatures)
	require.Len(t, report.Features, 3)
	assert.Equal(t, 401, report.Features[0].OriginalPoints)
	assert.Less(t, report.Features[0].SimplifiedPoints, 401)
	assert.LessOrEqual(t, report.Features[0].ReductionPercent, 50.0+1e-9)
	assert.Equal(t, 1, report.Features[1].SimplifiedPoints)
	assert.Equal(t, 0, report.Features[2].OriginalPoints)
	assert.Equal(t, 1, report.SimplifiedCount)
	assert.Equal(t, 402, report.OriginalPoints)
}

func TestPreview_Visvalingam(t *testing.T) {
	src := feature.NewSliceSource(nil, []*feature.Feature{{Geometry: wobblyPolygon(99)}})

	report, err := Preview(src, simplify.Config{Algorithm: simplify.Visvalingam, TargetPercentage: 50}, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, report.Features[0].SimplifiedPoints)
	assert.InDelta(t, 50.0, report.ReductionPercent, 1e-9)
}

func TestPreview_InvalidConfig(t *testing.T) {
	_, err := Preview(feature.NewSliceSource(nil, nil), simplify.Config{TargetPercentage: -1}, nil)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestPreview_RecordErrors(t *testing.T) {
	src := &badRecordSource{SliceSource: villageSource(3), bad: 1}
	report, err := Preview(src, simplify.Config{TargetPercentage: 10}, nil)
	require.NoError(t, err)
	require.Len(t, report.Features, 3)
	assert.NotEmpty(t, report.Features[1].Error)
}
