package db

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ErrInvalidIdentifier is returned for table or column names that fail validation.
var ErrInvalidIdentifier = eris.New("db: invalid identifier")

// DefaultSchema is used when a table name carries no schema qualifier.
const DefaultSchema = "public"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Table is a validated, optionally schema-qualified table name.
type Table struct {
	Schema string
	Name   string
}

// ParseTable validates names like "bencana" or "gis.bencana_banjir".
func ParseTable(raw string) (Table, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, ".", 2)

	t := Table{Schema: DefaultSchema, Name: parts[0]}
	if len(parts) == 2 {
		t = Table{Schema: parts[0], Name: parts[1]}
	}

	if !ValidIdentifier(t.Schema) || !ValidIdentifier(t.Name) {
		return Table{}, eris.Wrapf(ErrInvalidIdentifier, "table %q", raw)
	}
	return t, nil
}

// Identifier returns the pgx identifier for the table.
func (t Table) Identifier() pgx.Identifier {
	return pgx.Identifier{t.Schema, t.Name}
}

// Sanitize returns the quoted, schema-qualified name for use in SQL text.
func (t Table) Sanitize() string {
	return t.Identifier().Sanitize()
}

// String returns the unquoted "schema.name" form.
func (t Table) String() string {
	return t.Schema + "." + t.Name
}

// ValidIdentifier reports whether name is a plain SQL identifier.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

// QuoteIdent quotes a single column name.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QuoteColumns quotes each column name and joins with commas.
func QuoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
