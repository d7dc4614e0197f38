// Package feature defines the decoded (geometry, attributes) records that flow
// from an uploaded spatial source into the ingestion pipeline.
package feature

import (
	"fmt"
	"io"

	"github.com/twpayne/go-geom"
)

// Feature is a single geometry plus its attribute record. Geometry is nil for
// null shapes.
type Feature struct {
	Ordinal    int
	Geometry   geom.T
	Attributes map[string]any
}

// Source yields features in file order.
type Source interface {
	// Fields returns attribute names in declaration order.
	Fields() []string
	// Len returns the total number of features, or -1 when unknown.
	Len() int
	// Next returns the next feature, or io.EOF when the source is exhausted.
	Next() (*Feature, error)
	Close() error
}

// SliceSource serves features from memory.
type SliceSource struct {
	fields   []string
	features []*Feature
	pos      int
}

// NewSliceSource returns a Source over the given features. Ordinals are
// assigned by position.
func NewSliceSource(fields []string, features []*Feature) *SliceSource {
	for i, f := range features {
		f.Ordinal = i
	}
	return &SliceSource{fields: fields, features: features}
}

// Fields implements Source.
func (s *SliceSource) Fields() []string { return s.fields }

// Len implements Source.
func (s *SliceSource) Len() int { return len(s.features) }

// Next implements Source.
func (s *SliceSource) Next() (*Feature, error) {
	if s.pos >= len(s.features) {
		return nil, io.EOF
	}
	f := s.features[s.pos]
	s.pos++
	return f, nil
}

// Close implements Source.
func (s *SliceSource) Close() error { return nil }

// RecordError reports a single record that could not be decoded. The
// source remains usable and Next continues with the following record.
type RecordError struct {
	Ordinal int
	Err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("feature %d: %v", e.Ordinal, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
