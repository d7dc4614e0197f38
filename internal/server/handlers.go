package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/ingest"
	"github.com/sells-group/disaster-gis/internal/schema"
	"github.com/sells-group/disaster-gis/internal/upload"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.hub.Len(),
	})
}

// handleAnalyze infers column types from the attribute table of an uploaded
// shapefile. Geometry is never decoded and nothing is written.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	src, err := s.stageUpload(w, r)
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	defer src.release()

	n, err := s.sampleSize(r)
	if err != nil {
		s.fail(w, err, nil)
		return
	}

	analysis, err := ingest.Analyze(src.reader, ingest.ClampSampleSize(n))
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*ingest.Analysis
	}{true, analysis})
}

type createTableRequest struct {
	TableName string `json:"tableName"`
	Columns   []struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Nullable *bool  `json:"nullable,omitempty"`
	} `json:"columns"`
}

// handleCreateTable creates a table from a caller-supplied column list.
func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, eris.Wrap(errBadRequest, "invalid request body"), nil)
		return
	}

	table, err := db.ParseTable(req.TableName)
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	if len(req.Columns) == 0 {
		s.fail(w, eris.Wrap(errBadRequest, "columns are required"), nil)
		return
	}

	cols := make([]schema.Column, 0, len(req.Columns))
	for _, c := range req.Columns {
		typ, err := schema.ParseColumnType(c.Type)
		if err != nil {
			s.fail(w, eris.Wrapf(errBadRequest, "column %q: %v", c.Name, err), nil)
			return
		}
		nullable := true
		if c.Nullable != nil {
			nullable = *c.Nullable
		}
		cols = append(cols, schema.Column{Name: c.Name, Type: typ, Nullable: nullable})
	}

	if err := ingest.CreateTable(r.Context(), s.pool, table, cols); err != nil {
		s.fail(w, err, nil)
		return
	}
	s.log.Info("table created", zap.String("table", table.String()), zap.Int("columns", len(cols)))
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"table":   table.String(),
		"columns": cols,
	})
}

// handleSimplify runs a dry-run simplification over an uploaded shapefile.
func (s *Server) handleSimplify(w http.ResponseWriter, r *http.Request) {
	src, err := s.stageUpload(w, r)
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	defer src.release()

	cfg, err := s.simplifyConfig(r)
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	if cfg == nil {
		s.fail(w, eris.Wrap(errBadRequest, "targetPercentage is required"), nil)
		return
	}

	report, err := ingest.Preview(src.reader, *cfg, s.pipeline.Calibrator())
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*ingest.PreviewReport
	}{true, report})
}

type cleanupRequest struct {
	Fragments []string `json:"fragments"`
}

// handleCleanup removes leftover staging entries whose names contain any of
// the given fragments. Failures are reported but never fatal.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, eris.Wrap(errBadRequest, "invalid request body"), nil)
		return
	}

	removed, err := upload.Cleanup(s.stager.Root(), req.Fragments)
	resp := map[string]any{
		"success": true,
		"removed": removed,
	}
	if err != nil {
		s.log.Warn("temp file cleanup incomplete", zap.Error(err), zap.Int("removed", len(removed)))
		resp["message"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRuns lists recent ingestion runs.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "runs": []any{}})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, eris.Wrapf(errBadRequest, "invalid limit %q", raw), nil)
			return
		}
		limit = n
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "runs": runs})
}
