// Package schema infers destination column types from sampled shapefile
// attributes and renders them as PostgreSQL DDL.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disaster-gis/internal/db"
)

// Kind is the broad category of a column type.
type Kind int

const (
	Text Kind = iota
	Integer
	Numeric
	Boolean
	Date
	Timestamp
)

var kindNames = map[Kind]string{
	Text:      "text",
	Integer:   "integer",
	Numeric:   "numeric",
	Boolean:   "boolean",
	Date:      "date",
	Timestamp: "timestamp",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ColumnType describes a column's SQL type. Length bounds text columns
// (0 means unbounded TEXT); Wide selects BIGINT for integers.
type ColumnType struct {
	Kind      Kind
	Precision int
	Scale     int
	Length    int
	Wide      bool
}

// SQL renders the type for a CREATE TABLE statement.
func (t ColumnType) SQL() string {
	switch t.Kind {
	case Integer:
		if t.Wide {
			return "BIGINT"
		}
		return "INTEGER"
	case Numeric:
		if t.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
		}
		return "NUMERIC"
	case Boolean:
		return "BOOLEAN"
	case Date:
		return "DATE"
	case Timestamp:
		return "TIMESTAMP"
	default:
		if t.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.Length)
		}
		return "TEXT"
	}
}

// Column is an inferred or caller-supplied destination column. Inferred
// columns are nullable since shapefile attributes carry no constraints.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Definition renders the column for a CREATE TABLE statement.
func (c Column) Definition() string {
	def := db.QuoteIdent(c.Name) + " " + c.Type.SQL()
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def
}

// MarshalJSON reports the rendered SQL type alongside its kind.
func (c Column) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Kind     string `json:"kind"`
		Nullable bool   `json:"nullable"`
	}{c.Name, c.Type.SQL(), c.Type.Kind.String(), c.Nullable})
}

var typeRe = regexp.MustCompile(`^([a-z ]+?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?$`)

// ParseColumnType parses a SQL type name as supplied by callers of the
// explicit table-creation endpoint, e.g. "varchar(100)" or "numeric(12,3)".
func ParseColumnType(raw string) (ColumnType, error) {
	m := typeRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
	if m == nil {
		return ColumnType{}, eris.Errorf("schema: unrecognised column type %q", raw)
	}
	name := strings.Join(strings.Fields(m[1]), " ")
	var p, s int
	if m[2] != "" {
		p, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		s, _ = strconv.Atoi(m[3])
	}

	switch name {
	case "integer", "int", "int4", "smallint", "int2":
		return ColumnType{Kind: Integer}, nil
	case "bigint", "int8":
		return ColumnType{Kind: Integer, Wide: true}, nil
	case "numeric", "decimal":
		if s > p && p > 0 {
			return ColumnType{}, eris.Errorf("schema: scale exceeds precision in %q", raw)
		}
		return ColumnType{Kind: Numeric, Precision: p, Scale: s}, nil
	case "real", "float", "float4", "float8", "double precision":
		return ColumnType{Kind: Numeric}, nil
	case "text", "string":
		return ColumnType{Kind: Text}, nil
	case "varchar", "character varying", "char", "character":
		return ColumnType{Kind: Text, Length: p}, nil
	case "boolean", "bool":
		return ColumnType{Kind: Boolean}, nil
	case "date":
		return ColumnType{Kind: Date}, nil
	case "timestamp", "timestamptz":
		return ColumnType{Kind: Timestamp}, nil
	default:
		return ColumnType{}, eris.Errorf("schema: unsupported column type %q", raw)
	}
}
