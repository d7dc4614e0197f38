package ingest

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/disaster-gis/internal/schema"
)

// AttributeSampler reads attribute records without decoding geometry.
type AttributeSampler interface {
	Fields() []string
	Len() int
	SampleAttributes(n int) []map[string]any
}

// Analysis is the inferred structure of an uploaded source.
type Analysis struct {
	Fields        []string         `json:"fields"`
	Columns       []schema.Column  `json:"columns"`
	TotalFeatures int              `json:"totalFeatures"`
	SampleSize    int              `json:"sampleSize"`
	Sample        []map[string]any `json:"sample"`
}

// previewRows is the number of sampled records echoed back to the caller.
const previewRows = 5

// Analyze infers column types from the first sampleSize attribute records.
func Analyze(src AttributeSampler, sampleSize int) (*Analysis, error) {
	fields := src.Fields()
	if len(fields) == 0 {
		return nil, eris.Wrap(ErrInvalidRequest, "source has no attribute fields")
	}
	records := src.SampleAttributes(ClampSampleSize(sampleSize))
	if len(records) == 0 {
		return nil, eris.Wrap(ErrInvalidRequest, "source has no attribute records")
	}

	return &Analysis{
		Fields:        fields,
		Columns:       schema.InferColumns(fields, records),
		TotalFeatures: src.Len(),
		SampleSize:    len(records),
		Sample:        records[:min(previewRows, len(records))],
	}, nil
}
