package ingest

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/disaster-gis/internal/db"
)

// insertSQL builds the single-row INSERT for the given columns. The
// geometry travels as EWKB in the final parameter.
func insertSQL(table db.Table, cols []string, geomCol string) string {
	placeholders := make([]string, 0, len(cols)+1)
	for i := range cols {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	placeholders = append(placeholders, fmt.Sprintf("ST_GeomFromEWKB($%d)", len(cols)+1))

	all := append(append([]string(nil), cols...), geomCol)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Sanitize(), db.QuoteColumns(all), strings.Join(placeholders, ", "))
}

// EncodeEWKB encodes g as little-endian EWKB, defaulting the SRID to 4326.
// A nil geometry encodes as nil.
func EncodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	if g.SRID() == 0 {
		g = withSRID(g, 4326)
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: encode EWKB")
	}
	return data, nil
}

// withSRID returns a copy of g carrying srid. g itself is not modified.
func withSRID(g geom.T, srid int) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.Clone().SetSRID(srid)
	case *geom.LineString:
		return t.Clone().SetSRID(srid)
	case *geom.Polygon:
		return t.Clone().SetSRID(srid)
	case *geom.MultiPoint:
		return t.Clone().SetSRID(srid)
	case *geom.MultiLineString:
		return t.Clone().SetSRID(srid)
	case *geom.MultiPolygon:
		return t.Clone().SetSRID(srid)
	case *geom.GeometryCollection:
		gc := geom.NewGeometryCollection()
		for _, child := range t.Geoms() {
			if err := gc.Push(withSRID(child, srid)); err != nil {
				return g
			}
		}
		return gc.SetSRID(srid)
	default:
		return g
	}
}
