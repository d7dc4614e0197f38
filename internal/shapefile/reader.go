// Package shapefile decodes ESRI shapefiles into feature streams.
package shapefile

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/sells-group/disaster-gis/internal/feature"
)

// ErrMissingDBF is returned by Open when the attribute table is absent.
var ErrMissingDBF = eris.New("shapefile: missing .dbf attribute file")

// Reader streams features from a .shp/.dbf pair. It implements feature.Source.
type Reader struct {
	path    string
	r       *shp.Reader
	fields  []shp.Field
	names   []string
	decoder *encoding.Decoder
	total   int
	pos     int
	log     *zap.Logger
}

var _ feature.Source = (*Reader)(nil)

// Open opens the shapefile at path. The sibling .dbf must exist; a .cpg
// file, when present, selects the code page used for text attributes.
func Open(path string) (*Reader, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if _, err := os.Stat(base + ".dbf"); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrMissingDBF, "open %s", path)
		}
		return nil, eris.Wrapf(err, "shapefile: stat dbf for %s", path)
	}

	decoder, err := readCodePage(base)
	if err != nil {
		return nil, err
	}

	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}

	fields := r.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	return &Reader{
		path:    path,
		r:       r,
		fields:  fields,
		names:   names,
		decoder: decoder,
		total:   r.AttributeCount(),
		log:     zap.L().With(zap.String("component", "shapefile.reader"), zap.String("path", filepath.Base(path))),
	}, nil
}

// Fields returns attribute names in declaration order.
func (r *Reader) Fields() []string { return r.names }

// Len returns the record count from the attribute table.
func (r *Reader) Len() int { return r.total }

// Next decodes the next record, returning io.EOF at the end of the file.
func (r *Reader) Next() (*feature.Feature, error) {
	if !r.r.Next() {
		if err := r.r.Err(); err != nil {
			return nil, eris.Wrapf(err, "shapefile: read record %d", r.pos)
		}
		return nil, io.EOF
	}

	ordinal := r.pos
	r.pos++

	row, shape := r.r.Shape()
	g, err := ToGeometry(shape)
	if err != nil {
		return nil, &feature.RecordError{Ordinal: ordinal, Err: err}
	}

	return &feature.Feature{
		Ordinal:    ordinal,
		Geometry:   g,
		Attributes: r.record(row),
	}, nil
}

// SampleAttributes reads the attributes of up to n records from the start
// of the file without decoding geometry or advancing the feature stream.
func (r *Reader) SampleAttributes(n int) []map[string]any {
	if n > r.total {
		n = r.total
	}
	out := make([]map[string]any, 0, max(n, 0))
	for row := 0; row < n; row++ {
		out = append(out, r.record(row))
	}
	return out
}

// Close releases the underlying files.
func (r *Reader) Close() error {
	if err := r.r.Close(); err != nil {
		return eris.Wrapf(err, "shapefile: close %s", r.path)
	}
	return nil
}

func (r *Reader) record(row int) map[string]any {
	attrs := make(map[string]any, len(r.fields))
	for i, f := range r.fields {
		raw := strings.Trim(r.r.ReadAttribute(row, i), " \x00")
		attrs[r.names[i]] = r.typed(f, raw)
	}
	return attrs
}

// typed converts a raw DBF value according to its field descriptor. Values
// that do not parse as their declared type are kept as strings.
func (r *Reader) typed(f shp.Field, raw string) any {
	if raw == "" {
		return nil
	}
	switch f.Fieldtype {
	case 'N', 'F':
		if f.Precision == 0 && f.Fieldtype == 'N' {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return v
			}
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return raw
	case 'L':
		switch raw {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		default:
			return nil
		}
	default:
		return r.decode(raw)
	}
}

func (r *Reader) decode(s string) string {
	if r.decoder == nil {
		return s
	}
	out, err := r.decoder.String(s)
	if err != nil {
		r.log.Debug("keeping undecoded attribute", zap.Error(err))
		return s
	}
	return out
}
