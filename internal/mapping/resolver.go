package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/schema"
)

// Resolver produces row values for a validated set of column mappings.
// Skip columns are dropped at construction.
type Resolver struct {
	cols   []Column
	maxima []int64
}

// NewResolver validates cols and fills generator defaults.
func NewResolver(cols []Column) (*Resolver, error) {
	r := &Resolver{}
	seen := make(map[string]bool, len(cols))

	for i, c := range cols {
		if c.Mode == ModeSkip {
			continue
		}
		if !db.ValidIdentifier(c.Column) {
			return nil, eris.Wrapf(ErrInvalidMapping, "column %d: invalid name %q", i, c.Column)
		}
		key := strings.ToLower(c.Column)
		if seen[key] {
			return nil, eris.Wrapf(ErrInvalidMapping, "column %q mapped twice", c.Column)
		}
		seen[key] = true

		switch c.Mode {
		case ModeShapefile:
			if c.Source == "" {
				c.Source = c.Column
			}
		case ModeYear, ModeNull:
		case ModeAuto:
			if c.Auto == nil {
				return nil, eris.Wrapf(ErrInvalidMapping, "column %q: auto mode requires generator settings", c.Column)
			}
			auto := *c.Auto
			switch auto.Mode {
			case AutoSequence, AutoContinue:
				if auto.Increment == 0 {
					auto.Increment = 1
				}
			case AutoRandom:
				if auto.Length <= 0 {
					auto.Length = DefaultRandomLength
				}
			default:
				return nil, eris.Wrapf(ErrInvalidMapping, "column %q: unknown generator %q", c.Column, auto.Mode)
			}
			c.Auto = &auto
		case ModeManual:
			if c.Manual == nil {
				return nil, eris.Wrapf(ErrInvalidMapping, "column %q: manual mode requires values", c.Column)
			}
		default:
			return nil, eris.Wrapf(ErrInvalidMapping, "column %q: unknown mode %q", c.Column, c.Mode)
		}
		r.cols = append(r.cols, c)
	}

	r.maxima = make([]int64, len(r.cols))
	return r, nil
}

// Columns returns the destination column names in mapping order.
func (r *Resolver) Columns() []string {
	out := make([]string, len(r.cols))
	for i, c := range r.cols {
		out[i] = c.Column
	}
	return out
}

// Mappings returns the validated mappings, excluding skipped columns.
func (r *Resolver) Mappings() []Column {
	return append([]Column(nil), r.cols...)
}

// Prime reads the current maximum of every continue-from-max column. It is
// called once per run, before the first Values call.
func (r *Resolver) Prime(ctx context.Context, pool db.Pool, table db.Table) error {
	for i, c := range r.cols {
		if c.Mode != ModeAuto || c.Auto.Mode != AutoContinue {
			continue
		}
		sql := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0)::bigint FROM %s", db.QuoteIdent(c.Column), table.Sanitize())
		var maxVal int64
		if err := pool.QueryRow(ctx, sql).Scan(&maxVal); err != nil {
			return eris.Wrapf(err, "mapping: read max of %s.%s", table, c.Column)
		}
		r.maxima[i] = maxVal
		zap.L().Debug("mapping: continuing sequence",
			zap.String("component", "mapping.resolver"),
			zap.String("table", table.String()),
			zap.String("column", c.Column),
			zap.Int64("max", maxVal),
		)
	}
	return nil
}

// Values resolves the row for the feature at the given insertion ordinal.
// The result is aligned with Columns.
func (r *Resolver) Values(ordinal int, attrs map[string]any) []any {
	out := make([]any, len(r.cols))
	for i, c := range r.cols {
		out[i] = r.value(i, c, ordinal, attrs)
	}
	return out
}

func (r *Resolver) value(i int, c Column, ordinal int, attrs map[string]any) any {
	switch c.Mode {
	case ModeShapefile:
		return lookup(attrs, c.Source)
	case ModeYear:
		return c.Year
	case ModeAuto:
		a := c.Auto
		switch a.Mode {
		case AutoSequence:
			return a.StartFrom + int64(ordinal)*a.Increment
		case AutoContinue:
			return r.maxima[i] + int64(ordinal+1)*a.Increment
		default:
			return a.Prefix + randomToken(a.Length)
		}
	case ModeManual:
		return c.Manual[ordinal]
	default:
		return nil
	}
}

// lookup prefers an exact field match and falls back to a case-insensitive one.
func lookup(attrs map[string]any, field string) any {
	if v, ok := attrs[field]; ok {
		return v
	}
	for k, v := range attrs {
		if strings.EqualFold(k, field) {
			return v
		}
	}
	return nil
}

func randomToken(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:n]
}

// ColumnTypes returns DDL columns for a new table. Shapefile columns are
// inferred from the sampled attributes of their source field; generated
// and constant columns get synthesised types.
func (r *Resolver) ColumnTypes(sample []map[string]any) []schema.Column {
	out := make([]schema.Column, 0, len(r.cols))
	for _, c := range r.cols {
		var t schema.ColumnType
		switch c.Mode {
		case ModeShapefile:
			samples := make([]any, 0, len(sample))
			for _, rec := range sample {
				samples = append(samples, lookup(rec, c.Source))
			}
			t = schema.InferType(c.Source, samples)
		case ModeYear:
			t = schema.ColumnType{Kind: schema.Integer}
		case ModeAuto:
			if c.Auto.Mode == AutoRandom {
				t = schema.ColumnType{Kind: schema.Text, Length: len(c.Auto.Prefix) + c.Auto.Length}
			} else {
				t = schema.ColumnType{Kind: schema.Integer, Wide: true}
			}
		case ModeManual:
			values := make([]any, 0, len(c.Manual))
			for _, k := range c.Manual.Ordinals() {
				values = append(values, c.Manual[k])
			}
			t = schema.InferType(c.Column, values)
		default:
			t = schema.ColumnType{Kind: schema.Text}
		}
		out = append(out, schema.Column{Name: c.Column, Type: t, Nullable: true})
	}
	return out
}
