// Package server exposes shapefile analysis, table creation, simplification
// previews and ingestion over HTTP, with per-session progress streamed as
// server-sent events.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/ingest"
	"github.com/sells-group/disaster-gis/internal/mapping"
	"github.com/sells-group/disaster-gis/internal/progress"
	"github.com/sells-group/disaster-gis/internal/runlog"
	"github.com/sells-group/disaster-gis/internal/shapefile"
	"github.com/sells-group/disaster-gis/internal/simplify"
	"github.com/sells-group/disaster-gis/internal/upload"
)

// DefaultMaxUploadBytes bounds a multipart request body when Options leaves
// it unset.
const DefaultMaxUploadBytes int64 = 512 << 20

// Options configures a Server.
type Options struct {
	AllowedOrigins   []string
	MaxUploadBytes   int64
	SampleSize       int
	DefaultAlgorithm simplify.Algorithm
}

// Server wires the HTTP endpoints to the ingestion components.
type Server struct {
	pool     db.Pool
	pipeline *ingest.Pipeline
	hub      *progress.Hub
	stager   *upload.Stager
	runs     *runlog.Store
	opts     Options
	log      *zap.Logger
}

// New returns a Server. runs may be nil to disable run history.
func New(pool db.Pool, pipeline *ingest.Pipeline, hub *progress.Hub, stager *upload.Stager, runs *runlog.Store, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.DefaultAlgorithm == "" {
		opts.DefaultAlgorithm = simplify.DouglasPeucker
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		pool:     pool,
		pipeline: pipeline,
		hub:      hub,
		stager:   stager,
		runs:     runs,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "server")),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Session-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/runs", s.handleRuns)
	r.Get("/upload-progress/{sessionId}", s.handleProgress)

	r.Post("/tables/create", s.handleCreateTable)
	r.Post("/cleanup-temp-files", s.handleCleanup)

	r.Route("/shp", func(r chi.Router) {
		r.Post("/analyze-structure", s.handleAnalyze)
		r.Post("/simplify", s.handleSimplify)
		r.Post("/upload-to-db", s.uploadHandler(variant{newTable: false, simplify: true}))
		r.Post("/upload-direct", s.uploadHandler(variant{newTable: false, simplify: false}))
		r.Post("/create-table-and-upload", s.uploadHandler(variant{newTable: true, simplify: false}))
		r.Post("/create-table-and-simplify", s.uploadHandler(variant{newTable: true, simplify: true}))
	})

	return r
}

// failure is the body of every unsuccessful response.
type failure struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Inserted int          `json:"inserted"`
	State    ingest.State `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, err error, sum *ingest.Summary) {
	body := failure{Message: err.Error()}
	if sum != nil {
		body.Inserted = sum.InsertedCount
		body.State = sum.State
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	} else {
		s.log.Info("request rejected", zap.Error(err))
	}
	writeJSON(w, status, body)
}

// statusFor maps structural input errors to 400 and mapping mistakes caught
// by the first insert to 422.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, ingest.ErrInvalidRequest),
		errors.Is(err, mapping.ErrInvalidMapping),
		errors.Is(err, db.ErrInvalidIdentifier),
		errors.Is(err, upload.ErrMissingFiles),
		errors.Is(err, shapefile.ErrMissingDBF):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrFirstInsert):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
