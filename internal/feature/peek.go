package feature

import (
	"errors"
	"io"
)

// Peek reads up to n features from the start of src and returns them together
// with a Source that replays everything read, including per-record errors,
// before continuing with src. Records that fail to decode do not count
// towards the sample.
func Peek(src Source, n int) ([]*Feature, Source, error) {
	sample := make([]*Feature, 0, n)
	var buffered []peeked
	for len(sample) < n {
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *RecordError
		if errors.As(err, &recErr) {
			buffered = append(buffered, peeked{err: err})
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		sample = append(sample, f)
		buffered = append(buffered, peeked{f: f})
	}
	return sample, &replaySource{Source: src, buffered: buffered}, nil
}

type peeked struct {
	f   *Feature
	err error
}

type replaySource struct {
	Source
	buffered []peeked
	pos      int
}

func (r *replaySource) Next() (*Feature, error) {
	if r.pos < len(r.buffered) {
		p := r.buffered[r.pos]
		r.pos++
		return p.f, p.err
	}
	return r.Source.Next()
}

// Records returns the attribute maps of the given features.
func Records(features []*Feature) []map[string]any {
	out := make([]map[string]any, len(features))
	for i, f := range features {
		out[i] = f.Attributes
	}
	return out
}
