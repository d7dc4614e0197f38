package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/schema"
)

// GeometryColumn is the geometry column name used for new tables.
const GeometryColumn = "geom"

// CreateTableSQL returns the statements that create table with cols plus a
// SRID 4326 geometry column and its GIST index.
func CreateTableSQL(table db.Table, cols []schema.Column, geomCol string) []string {
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		defs = append(defs, c.Definition())
	}
	defs = append(defs, fmt.Sprintf("%s geometry(Geometry, 4326)", db.QuoteIdent(geomCol)))

	stmts := make([]string, 0, 3)
	if table.Schema != db.DefaultSchema {
		stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", db.QuoteIdent(table.Schema)))
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE TABLE %s (%s)", table.Sanitize(), strings.Join(defs, ", ")),
		fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (%s)",
			pgx.Identifier{indexName(table.Name, geomCol)}.Sanitize(), table.Sanitize(), db.QuoteIdent(geomCol)),
	)
	return stmts
}

func indexName(table, col string) string {
	name := fmt.Sprintf("idx_%s_%s", table, col)
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// CreateTable creates table and its spatial index in one transaction, so a
// failure leaves nothing behind. Column names must be unique and must not
// collide with the geometry column.
func CreateTable(ctx context.Context, pool db.Pool, table db.Table, cols []schema.Column) error {
	return createTable(ctx, pool, table, cols, GeometryColumn)
}

func createTable(ctx context.Context, pool db.Pool, table db.Table, cols []schema.Column, geomCol string) error {
	seen := map[string]bool{strings.ToLower(geomCol): true}
	for _, c := range cols {
		if !db.ValidIdentifier(c.Name) {
			return eris.Wrapf(db.ErrInvalidIdentifier, "column %q", c.Name)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return eris.Errorf("ingest: duplicate column %q", c.Name)
		}
		seen[key] = true
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "ingest: begin create table")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range CreateTableSQL(table, cols, geomCol) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "ingest: create %s", table)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "ingest: commit create %s", table)
	}

	zap.L().Info("ingest: created table",
		zap.String("component", "ingest.table"),
		zap.String("table", table.String()),
		zap.Int("columns", len(cols)),
	)
	return nil
}

// DropTable removes table if it exists.
func DropTable(ctx context.Context, pool db.Pool, table db.Table) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table.Sanitize())); err != nil {
		return eris.Wrapf(err, "ingest: drop %s", table)
	}
	return nil
}
