package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/mapping"
	"github.com/sells-group/disaster-gis/internal/shapefile"
	"github.com/sells-group/disaster-gis/internal/simplify"
	"github.com/sells-group/disaster-gis/internal/upload"
)

var errBadRequest = eris.New("server: bad request")

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// stagedSource is an opened shapefile backed by a staging directory.
// release closes the reader and removes the directory exactly once.
type stagedSource struct {
	staging *upload.Staging
	reader  *shapefile.Reader
	release func()
}

// stageUpload saves every file part of a multipart request into a fresh
// staging directory and opens the shapefile found there.
func (s *Server) stageUpload(w http.ResponseWriter, r *http.Request) (*stagedSource, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, eris.Wrap(errBadRequest, "expected multipart form: "+err.Error())
	}

	staging, err := s.stager.Stage()
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("staging", staging.ID))

	src := &stagedSource{staging: staging}
	var once sync.Once
	src.release = func() {
		once.Do(func() {
			if src.reader != nil {
				_ = src.reader.Close()
			}
			if err := staging.Remove(); err != nil {
				log.Warn("staging cleanup failed", zap.Error(err))
			}
		})
	}

	saved := 0
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				src.release()
				return nil, eris.Wrapf(err, "server: open part %s", fh.Filename)
			}
			_, err = staging.SaveFile(fh.Filename, f)
			_ = f.Close()
			if err != nil {
				src.release()
				return nil, err
			}
			saved++
		}
	}
	_ = r.MultipartForm.RemoveAll()
	if saved == 0 {
		src.release()
		return nil, eris.Wrap(upload.ErrMissingFiles, "no files uploaded")
	}

	path, err := staging.Shapefile()
	if err != nil {
		src.release()
		return nil, err
	}
	reader, err := shapefile.Open(path)
	if err != nil {
		src.release()
		return nil, err
	}
	src.reader = reader
	log.Debug("staged upload", zap.String("path", path), zap.Int("files", saved), zap.Int("features", reader.Len()))
	return src, nil
}

// formValue returns the first non-empty value among the given keys.
func formValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.FormValue(k)); v != "" {
			return v
		}
	}
	return ""
}

// simplifyConfig reads the simplification settings from either a JSON
// "simplification" field or the individual targetPercentage, algorithm and
// preventShapeRemoval fields. It returns nil when none are present.
func (s *Server) simplifyConfig(r *http.Request) (*simplify.Config, error) {
	var cfg simplify.Config
	if raw := formValue(r, "simplification"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, eris.Wrap(errBadRequest, "simplification: "+err.Error())
		}
	} else {
		target := formValue(r, "targetPercentage", "target_percentage")
		if target == "" {
			return nil, nil
		}
		pct, err := strconv.ParseFloat(target, 64)
		if err != nil {
			return nil, eris.Wrapf(errBadRequest, "targetPercentage %q is not a number", target)
		}
		cfg.TargetPercentage = pct
		cfg.Algorithm = simplify.Algorithm(formValue(r, "algorithm"))
		if prevent := formValue(r, "preventShapeRemoval", "prevent_shape_removal"); prevent != "" {
			cfg.PreventShapeRemoval, err = strconv.ParseBool(prevent)
			if err != nil {
				return nil, eris.Wrapf(errBadRequest, "preventShapeRemoval %q is not a boolean", prevent)
			}
		}
	}

	if cfg.Algorithm == "" {
		cfg.Algorithm = s.opts.DefaultAlgorithm
	} else {
		alg, err := simplify.ParseAlgorithm(string(cfg.Algorithm))
		if err != nil {
			return nil, eris.Wrap(errBadRequest, err.Error())
		}
		cfg.Algorithm = alg
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(errBadRequest, err.Error())
	}
	return &cfg, nil
}

// columnMappings decodes the optional "columnMapping" JSON field.
func columnMappings(r *http.Request) ([]mapping.Column, error) {
	raw := formValue(r, "columnMapping", "column_mapping", "mappings")
	if raw == "" {
		return nil, nil
	}
	var cols []mapping.Column
	if err := json.Unmarshal([]byte(raw), &cols); err != nil {
		return nil, eris.Wrap(mapping.ErrInvalidMapping, err.Error())
	}
	return cols, nil
}

// sampleSize reads an optional "sampleSize" override.
func (s *Server) sampleSize(r *http.Request) (int, error) {
	raw := formValue(r, "sampleSize", "sample_size")
	if raw == "" {
		return s.opts.SampleSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(errBadRequest, "sampleSize %q is not an integer", raw)
	}
	return n, nil
}
