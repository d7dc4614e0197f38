// Package upload stages uploaded shapefile parts on local disk for the
// duration of one request and cleans them up afterwards.
package upload

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ErrMissingFiles is returned when a staged upload lacks the .shp or .dbf part.
var ErrMissingFiles = eris.New("upload: missing required shapefile parts (.shp and .dbf)")

// Stager creates per-request staging directories under a root directory.
type Stager struct {
	root string
}

// NewStager returns a Stager rooted at root, creating it if needed.
func NewStager(root string) (*Stager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "disaster-gis")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrapf(err, "upload: create staging root %s", root)
	}
	return &Stager{root: root}, nil
}

// Root returns the staging root directory.
func (s *Stager) Root() string { return s.root }

// Stage creates a fresh staging directory.
func (s *Stager) Stage() (*Staging, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.root, "upload-"+id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "upload: create staging directory")
	}
	return &Staging{ID: id, Dir: dir}, nil
}

// Staging is one request's set of uploaded files.
type Staging struct {
	ID  string
	Dir string

	once      sync.Once
	removeErr error
}

// SaveFile writes r to the staging directory under the base of name.
// Extensions are lower-cased so that go-shp can find sibling parts.
func (s *Staging) SaveFile(name string, r io.Reader) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", eris.Errorf("upload: invalid file name %q", name)
	}
	ext := filepath.Ext(base)
	base = strings.TrimSuffix(base, ext) + strings.ToLower(ext)

	path := filepath.Join(s.Dir, base)
	out, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "upload: create %s", base)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, r); err != nil {
		return "", eris.Wrapf(err, "upload: write %s", base)
	}
	return path, nil
}

// Shapefile extracts any staged ZIP archives and returns the path of the
// first .shp file that has a sibling .dbf.
func (s *Staging) Shapefile() (string, error) {
	zips, err := filepath.Glob(filepath.Join(s.Dir, "*.zip"))
	if err != nil {
		return "", eris.Wrap(err, "upload: list archives")
	}
	for _, z := range zips {
		if _, err := ExtractZIP(z, s.Dir); err != nil {
			return "", err
		}
	}

	var shps []string
	err = filepath.WalkDir(s.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			shps = append(shps, path)
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrap(err, "upload: scan staging directory")
	}
	sort.Strings(shps)

	for _, shp := range shps {
		base := strings.TrimSuffix(shp, filepath.Ext(shp))
		if _, err := os.Stat(base + ".dbf"); err == nil {
			return shp, nil
		}
	}
	return "", ErrMissingFiles
}

// Remove deletes the staging directory. Only the first call has effect;
// later calls return the first call's result.
func (s *Staging) Remove() error {
	s.once.Do(func() {
		if err := os.RemoveAll(s.Dir); err != nil {
			s.removeErr = eris.Wrapf(err, "upload: remove %s", s.Dir)
		}
	})
	return s.removeErr
}
