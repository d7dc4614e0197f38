package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/ingest"
	"github.com/sells-group/disaster-gis/internal/simplify"
)

// variant is one of the upload endpoints: whether it creates the table
// first and whether it honours simplification settings.
type variant struct {
	newTable bool
	simplify bool
}

type uploadResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	*ingest.Summary
}

// uploadHandler stages the uploaded shapefile and runs it through the
// pipeline. The run is detached from client cancellation so a dropped
// connection does not abandon a half-written table.
func (s *Server) uploadHandler(v variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := s.stageUpload(w, r)
		if err != nil {
			s.fail(w, err, nil)
			return
		}
		defer src.release()

		table, err := db.ParseTable(formValue(r, "tableName", "table_name", "table"))
		if err != nil {
			s.fail(w, err, nil)
			return
		}
		mappings, err := columnMappings(r)
		if err != nil {
			s.fail(w, err, nil)
			return
		}
		var cfg *simplify.Config
		if v.simplify {
			if cfg, err = s.simplifyConfig(r); err != nil {
				s.fail(w, err, nil)
				return
			}
		}

		sessionID := formValue(r, "sessionId", "session_id")
		if sessionID == "" {
			sessionID = r.Header.Get("X-Session-Id")
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		log := s.log.With(
			zap.String("session", sessionID),
			zap.String("table", table.String()),
			zap.Bool("new_table", v.newTable),
		)
		log.Info("ingestion requested", zap.Int("features", src.reader.Len()), zap.Bool("simplify", cfg.Active()))

		ctx := context.WithoutCancel(r.Context())
		sum, runErr := s.pipeline.Run(ctx, ingest.Request{
			Table:          table,
			Source:         src.reader,
			Mappings:       mappings,
			Simplify:       cfg,
			NewTable:       v.newTable,
			GeometryColumn: formValue(r, "geometryColumn", "geometry_column"),
			Reporter:       s.hub.Reporter(sessionID),
			Release:        src.release,
		})
		s.recordRun(ctx, sum, log)

		if runErr != nil {
			s.fail(w, runErr, sum)
			return
		}
		writeJSON(w, http.StatusOK, uploadResponse{Success: true, SessionID: sessionID, Summary: sum})
	}
}

// recordRun stores the run summary. History is best-effort and never
// changes the response.
func (s *Server) recordRun(ctx context.Context, sum *ingest.Summary, log *zap.Logger) {
	if s.runs == nil || sum == nil {
		return
	}
	id, err := s.runs.Record(ctx, sum)
	if err != nil {
		log.Warn("run history not recorded", zap.Error(err))
		return
	}
	log.Debug("run recorded", zap.Int64("run_id", id))
}
