// Package ingest streams decoded features into PostGIS tables, optionally
// creating the destination table from inferred column types and simplifying
// geometries on the way.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/feature"
	"github.com/sells-group/disaster-gis/internal/mapping"
	"github.com/sells-group/disaster-gis/internal/progress"
	"github.com/sells-group/disaster-gis/internal/simplify"
)

// Sentinel errors surfaced by Run.
var (
	ErrInvalidRequest = eris.New("ingest: invalid request")
	ErrSchemaCreate   = eris.New("ingest: table creation failed")
	ErrFirstInsert    = eris.New("ingest: first feature failed to insert")
)

// State is the pipeline's lifecycle position.
type State string

const (
	StateNotStarted    State = "not_started"
	StateSchemaCreated State = "schema_created"
	StateStreaming     State = "streaming"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Sample size bounds for schema inference.
const (
	MinSampleSize     = 20
	MaxSampleSize     = 100
	DefaultSampleSize = 50
)

// ClampSampleSize bounds n to the supported sample range. Zero selects the
// default.
func ClampSampleSize(n int) int {
	if n == 0 {
		return DefaultSampleSize
	}
	return min(max(n, MinSampleSize), MaxSampleSize)
}

// Options configures a Pipeline.
type Options struct {
	SampleSize  int
	Calibration simplify.CalibrationConfig
}

// Pipeline runs ingestion requests against one database.
type Pipeline struct {
	pool       db.Pool
	calibrator *simplify.Calibrator
	sampleSize int
}

// New returns a Pipeline writing through pool.
func New(pool db.Pool, opts Options) *Pipeline {
	return &Pipeline{
		pool:       pool,
		calibrator: simplify.NewCalibrator(opts.Calibration),
		sampleSize: ClampSampleSize(opts.SampleSize),
	}
}

// Calibrator returns the calibrator used for target-percentage simplification.
func (p *Pipeline) Calibrator() *simplify.Calibrator { return p.calibrator }

// Request describes one ingestion run.
type Request struct {
	Table  db.Table
	Source feature.Source
	// Mappings defaults to a straight field-to-column mapping when empty.
	Mappings []mapping.Column
	Simplify *simplify.Config
	NewTable bool
	// GeometryColumn defaults to GeometryColumn.
	GeometryColumn string
	Reporter       progress.Reporter
	// Release is called exactly once when Run returns, whatever the outcome.
	Release func()
}

// FeatureError records a feature that was skipped after the run had started.
type FeatureError struct {
	Ordinal int    `json:"ordinal"`
	Message string `json:"message"`
}

// ReductionSummary aggregates simplification across the run.
type ReductionSummary struct {
	Algorithm        simplify.Algorithm `json:"algorithm,omitempty"`
	TargetPercentage float64            `json:"targetPercentage"`
	OriginalPoints   int                `json:"originalPoints"`
	SimplifiedPoints int                `json:"simplifiedPoints"`
	ReductionPercent float64            `json:"reductionPercent"`
}

// Summary is the outcome of a run. It is returned for failed runs too, with
// the counts reached before the failure.
type Summary struct {
	State           State            `json:"state"`
	Table           string           `json:"table"`
	TotalFeatures   int              `json:"totalFeatures"`
	InsertedCount   int              `json:"insertedCount"`
	SimplifiedCount int              `json:"simplifiedCount"`
	Errors          []FeatureError   `json:"errors"`
	Reduction       ReductionSummary `json:"reduction"`
	TableCreated    bool             `json:"tableCreated"`
	RolledBack      bool             `json:"rolledBack,omitempty"`
	Message         string           `json:"message,omitempty"`
	Duration        time.Duration    `json:"-"`
	DurationMS      int64            `json:"durationMs"`
}

// ProgressInterval is the number of features between progress events:
// 5% of the total, but never fewer than 10.
func ProgressInterval(total int) int {
	return max(int(math.Ceil(float64(total)*0.05)), 10)
}

// Run executes req. A non-nil Summary is returned on every path; fatal
// errors are returned alongside it.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Summary, error) {
	start := time.Now()
	var releaseOnce sync.Once
	defer releaseOnce.Do(func() {
		if req.Release != nil {
			req.Release()
		}
	})

	rep := req.Reporter
	if rep == nil {
		rep = progress.Discard
	}
	geomCol := req.GeometryColumn
	if geomCol == "" {
		geomCol = GeometryColumn
	}

	sum := &Summary{State: StateNotStarted, Table: req.Table.String(), Errors: []FeatureError{}}
	defer func() {
		sum.Duration = time.Since(start)
		sum.DurationMS = sum.Duration.Milliseconds()
	}()

	log := zap.L().With(
		zap.String("component", "ingest.pipeline"),
		zap.String("table", req.Table.String()),
		zap.Bool("new_table", req.NewTable),
	)

	created := false
	fail := func(cause error) (*Summary, error) {
		if created {
			if err := DropTable(context.WithoutCancel(ctx), p.pool, req.Table); err != nil {
				log.Error("rollback of created table failed", zap.Error(err))
			} else {
				sum.RolledBack = true
				sum.TableCreated = false
				sum.InsertedCount = 0
			}
		}
		sum.State = StateFailed
		sum.Message = cause.Error()
		log.Error("ingestion failed", zap.Error(cause), zap.Int("inserted", sum.InsertedCount))
		rep.Report(progress.Event{
			Phase:         progress.PhaseError,
			TotalFeatures: sum.TotalFeatures,
			InsertedCount: sum.InsertedCount,
			Message:       sum.Message,
		})
		return sum, cause
	}

	if req.Simplify != nil && req.Simplify.Algorithm == "" {
		cfg := *req.Simplify
		cfg.Algorithm = simplify.DouglasPeucker
		req.Simplify = &cfg
	}
	if err := validateRequest(req, geomCol); err != nil {
		return fail(err)
	}
	sum.TotalFeatures = req.Source.Len()

	mappings := req.Mappings
	if len(mappings) == 0 {
		mappings = mapping.FromFields(req.Source.Fields())
	}
	resolver, err := mapping.NewResolver(mappings)
	if err != nil {
		return fail(eris.Wrap(ErrInvalidRequest, err.Error()))
	}

	src := req.Source
	if req.NewTable {
		sample, replay, err := feature.Peek(src, p.sampleSize)
		if err != nil {
			return fail(eris.Wrap(err, "ingest: sample features"))
		}
		src = replay
		if len(sample) == 0 {
			return fail(eris.Wrap(ErrInvalidRequest, "source has no attribute records"))
		}

		cols := resolver.ColumnTypes(feature.Records(sample))
		if err := createTable(ctx, p.pool, req.Table, cols, geomCol); err != nil {
			return fail(eris.Wrap(ErrSchemaCreate, err.Error()))
		}
		created = true
		sum.TableCreated = true
		sum.State = StateSchemaCreated
	}

	if err := resolver.Prime(ctx, p.pool, req.Table); err != nil {
		return fail(err)
	}

	simplifying := req.Simplify.Active()
	if simplifying {
		sum.Reduction.Algorithm = req.Simplify.Algorithm
		sum.Reduction.TargetPercentage = req.Simplify.TargetPercentage
	}

	sum.State = StateStreaming
	rep.Report(progress.Event{Phase: progress.PhaseStart, TotalFeatures: sum.TotalFeatures})
	log.Info("streaming features", zap.Int("total", sum.TotalFeatures), zap.Bool("simplify", simplifying))

	stmt := insertSQL(req.Table, resolver.Columns(), geomCol)
	interval := ProgressInterval(sum.TotalFeatures)
	processed := 0

	// skip records a non-fatal failure; the first processed feature is fatal.
	skip := func(ordinal int, cause error) error {
		if processed == 0 {
			return eris.Wrapf(ErrFirstInsert, "feature %d: %v", ordinal, cause)
		}
		sum.Errors = append(sum.Errors, FeatureError{Ordinal: ordinal, Message: cause.Error()})
		log.Warn("feature skipped", zap.Int("ordinal", ordinal), zap.Error(cause))
		return nil
	}

	for {
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var recErr *feature.RecordError
			if errors.As(err, &recErr) {
				if fatal := skip(recErr.Ordinal, recErr.Err); fatal != nil {
					return fail(fatal)
				}
				processed++
				p.reportProgress(rep, sum, processed, interval)
				continue
			}
			// The source is unusable past this point.
			if fatal := skip(processed, err); fatal != nil {
				return fail(fatal)
			}
			break
		}

		geometry := f.Geometry
		if simplifying && geometry != nil {
			out, stats := p.calibrator.Reduce(geometry, *req.Simplify)
			sum.Reduction.OriginalPoints += stats.OriginalPoints
			sum.Reduction.SimplifiedPoints += stats.SimplifiedPoints
			if stats.SimplifiedPoints < stats.OriginalPoints {
				sum.SimplifiedCount++
			}
			geometry = out
		}

		if err := p.insert(ctx, stmt, resolver, f.Ordinal, f.Attributes, geometry); err != nil {
			if fatal := skip(f.Ordinal, err); fatal != nil {
				return fail(fatal)
			}
		} else {
			sum.InsertedCount++
		}
		processed++
		p.reportProgress(rep, sum, processed, interval)
	}

	if sum.TotalFeatures < 0 || processed != sum.TotalFeatures {
		sum.TotalFeatures = processed
		p.reportProgress(rep, sum, processed, 1)
	}
	sum.Reduction.ReductionPercent = simplify.ReductionPercent(sum.Reduction.OriginalPoints, sum.Reduction.SimplifiedPoints)
	sum.State = StateCompleted

	rep.Report(progress.Event{
		Phase:         progress.PhaseComplete,
		TotalFeatures: sum.TotalFeatures,
		InsertedCount: sum.InsertedCount,
		Percentage:    100,
		Message:       completionMessage(sum),
	})
	log.Info("ingestion completed",
		zap.Int("inserted", sum.InsertedCount),
		zap.Int("errors", len(sum.Errors)),
		zap.Int("simplified", sum.SimplifiedCount),
	)
	return sum, nil
}

func (p *Pipeline) insert(ctx context.Context, stmt string, resolver *mapping.Resolver, ordinal int, attrs map[string]any, g geom.T) error {
	wkb, err := EncodeEWKB(g)
	if err != nil {
		return err
	}
	args := append(resolver.Values(ordinal, attrs), wkb)
	if _, err := p.pool.Exec(ctx, stmt, args...); err != nil {
		return eris.Wrap(err, "ingest: insert")
	}
	return nil
}

func (p *Pipeline) reportProgress(rep progress.Reporter, sum *Summary, processed, interval int) {
	if processed%interval != 0 && processed != sum.TotalFeatures {
		return
	}
	var pct float64
	switch {
	case sum.TotalFeatures > 0:
		pct = float64(processed) / float64(sum.TotalFeatures) * 100
	case sum.TotalFeatures == 0:
		pct = 100
	}
	rep.Report(progress.Event{
		Phase:         progress.PhaseProgress,
		TotalFeatures: sum.TotalFeatures,
		InsertedCount: sum.InsertedCount,
		Percentage:    math.Round(pct*10) / 10,
	})
}

func validateRequest(req Request, geomCol string) error {
	if req.Source == nil {
		return eris.Wrap(ErrInvalidRequest, "no feature source")
	}
	if !db.ValidIdentifier(req.Table.Schema) || !db.ValidIdentifier(req.Table.Name) {
		return eris.Wrapf(ErrInvalidRequest, "invalid table name %q", req.Table.String())
	}
	if !db.ValidIdentifier(geomCol) {
		return eris.Wrapf(ErrInvalidRequest, "invalid geometry column %q", geomCol)
	}
	if req.Simplify != nil {
		if err := req.Simplify.Validate(); err != nil {
			return eris.Wrap(ErrInvalidRequest, err.Error())
		}
	}
	return nil
}

func completionMessage(sum *Summary) string {
	if len(sum.Errors) == 0 {
		return "all features inserted"
	}
	return fmt.Sprintf("%d of %d features inserted, %d skipped",
		sum.InsertedCount, sum.TotalFeatures, len(sum.Errors))
}
