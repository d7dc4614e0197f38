package ingest

import (
	"errors"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disaster-gis/internal/feature"
	"github.com/sells-group/disaster-gis/internal/simplify"
)

// FeaturePreview is the simplification outcome for one feature.
type FeaturePreview struct {
	Ordinal          int     `json:"ordinal"`
	OriginalPoints   int     `json:"originalPoints"`
	SimplifiedPoints int     `json:"simplifiedPoints"`
	ReductionPercent float64 `json:"reductionPercent"`
	Tolerance        float64 `json:"tolerance,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// PreviewReport summarises a dry-run simplification.
type PreviewReport struct {
	Config           simplify.Config  `json:"config"`
	TotalFeatures    int              `json:"totalFeatures"`
	SimplifiedCount  int              `json:"simplifiedCount"`
	OriginalPoints   int              `json:"originalPoints"`
	SimplifiedPoints int              `json:"simplifiedPoints"`
	ReductionPercent float64          `json:"reductionPercent"`
	Features         []FeaturePreview `json:"features"`
}

// Preview simplifies every feature of src without writing anything and
// reports per-feature and overall point counts.
func Preview(src feature.Source, cfg simplify.Config, calibrator *simplify.Calibrator) (*PreviewReport, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = simplify.DouglasPeucker
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(ErrInvalidRequest, err.Error())
	}
	if calibrator == nil {
		calibrator = simplify.NewCalibrator(simplify.DefaultCalibration())
	}

	report := &PreviewReport{Config: cfg, Features: []FeaturePreview{}}
	for {
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *feature.RecordError
		if errors.As(err, &recErr) {
			report.Features = append(report.Features, FeaturePreview{Ordinal: recErr.Ordinal, Error: recErr.Err.Error()})
			report.TotalFeatures++
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: preview")
		}

		_, stats := calibrator.Reduce(f.Geometry, cfg)
		report.TotalFeatures++
		report.OriginalPoints += stats.OriginalPoints
		report.SimplifiedPoints += stats.SimplifiedPoints
		if stats.SimplifiedPoints < stats.OriginalPoints {
			report.SimplifiedCount++
		}
		report.Features = append(report.Features, FeaturePreview{
			Ordinal:          f.Ordinal,
			OriginalPoints:   stats.OriginalPoints,
			SimplifiedPoints: stats.SimplifiedPoints,
			ReductionPercent: stats.ReductionPercent(),
			Tolerance:        stats.Tolerance,
		})
	}
	report.ReductionPercent = simplify.ReductionPercent(report.OriginalPoints, report.SimplifiedPoints)
	return report, nil
}
