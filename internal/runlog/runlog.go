// Package runlog persists a summary row for every ingestion run in
// gis.ingest_runs.
package runlog

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/ingest"
)

// DefaultLimit caps Recent when no positive limit is given.
const DefaultLimit = 50

// Run is one persisted ingestion outcome.
type Run struct {
	ID               int64     `json:"id"`
	Table            string    `json:"table"`
	State            string    `json:"state"`
	TableCreated     bool      `json:"tableCreated"`
	TotalFeatures    int       `json:"totalFeatures"`
	InsertedCount    int       `json:"insertedCount"`
	SimplifiedCount  int       `json:"simplifiedCount"`
	ErrorCount       int       `json:"errorCount"`
	ReductionPercent *float64  `json:"reductionPercent,omitempty"`
	Message          *string   `json:"message,omitempty"`
	DurationMS       int64     `json:"durationMs"`
	FinishedAt       time.Time `json:"finishedAt"`
}

// Store reads and writes run history.
type Store struct {
	pool db.Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Record inserts a row for sum and returns its id.
func (s *Store) Record(ctx context.Context, sum *ingest.Summary) (int64, error) {
	if sum == nil {
		return 0, eris.New("runlog: nil summary")
	}

	var reduction *float64
	if sum.Reduction.OriginalPoints > 0 {
		r := sum.Reduction.ReductionPercent
		reduction = &r
	}
	var message *string
	if sum.Message != "" {
		message = &sum.Message
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO gis.ingest_runs
			(table_name, state, table_created, total_features, inserted_count,
			 simplified_count, error_count, reduction_percent, message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		sum.Table, string(sum.State), sum.TableCreated, sum.TotalFeatures, sum.InsertedCount,
		sum.SimplifiedCount, len(sum.Errors), reduction, message, sum.Duration.Milliseconds(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "runlog: record run for %s", sum.Table)
	}
	return id, nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, table_name, state, table_created, total_features, inserted_count,
		       simplified_count, error_count, reduction_percent::float8, message,
		       duration_ms, finished_at
		FROM gis.ingest_runs
		ORDER BY finished_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: query recent runs")
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.Table, &r.State, &r.TableCreated, &r.TotalFeatures, &r.InsertedCount,
			&r.SimplifiedCount, &r.ErrorCount, &r.ReductionPercent, &r.Message,
			&r.DurationMS, &r.FinishedAt,
		); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: iterate runs")
	}
	return runs, nil
}
