package ingest

import (
	"fmt"
	"math"
	"sync"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/feature"
	"github.com/sells-group/disaster-gis/internal/progress"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// villageSource returns n point features with NAMA and KODE attributes.
func villageSource(n int) *feature.SliceSource {
	fs := make([]*feature.Feature, n)
	for i := range fs {
		fs[i] = &feature.Feature{
			Geometry: geom.NewPointFlat(geom.XY, []float64{110.3 + float64(i)*0.001, -7.8}).SetSRID(4326),
			Attributes: map[string]any{
				"NAMA": fmt.Sprintf("desa-%d", i),
				"KODE": int64(i),
			},
		}
	}
	return feature.NewSliceSource([]string{"NAMA", "KODE"}, fs)
}

// wobblyPolygon returns a closed polygon of n+1 points with a jagged edge.
func wobblyPolygon(n int) *geom.Polygon {
	flat := make([]float64, 0, (n+1)*2)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		r := 1 + 0.05*math.Sin(float64(i)*1.7)
		flat = append(flat, 110+r*math.Cos(a), -7+r*math.Sin(a))
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Report(ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) phases() []progress.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Phase, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Phase
	}
	return out
}

// brokenSource yields the features of inner and then fails permanently.
type brokenSource struct {
	*feature.SliceSource
	after int
	pos   int
}

func (s *brokenSource) Next() (*feature.Feature, error) {
	if s.pos >= s.after {
		return nil, fmt.Errorf("unexpected end of shapefile")
	}
	s.pos++
	return s.SliceSource.Next()
}

// badRecordSource fails to decode the record at ordinal bad.
type badRecordSource struct {
	*feature.SliceSource
	bad int
}

func (s *badRecordSource) Next() (*feature.Feature, error) {
	f, err := s.SliceSource.Next()
	if err != nil {
		return nil, err
	}
	if f.Ordinal == s.bad {
		return nil, &feature.RecordError{Ordinal: f.Ordinal, Err: fmt.Errorf("unsupported shape type")}
	}
	return f, nil
}
