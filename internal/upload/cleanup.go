package upload

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cleanup removes entries directly under dir whose names contain any of the
// given fragments. Removal is best-effort: it continues past failures and
// returns the first error alongside the names that were removed. Blank
// fragments are ignored, so an empty list removes nothing.
func Cleanup(dir string, fragments []string) ([]string, error) {
	var frags []string
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			frags = append(frags, f)
		}
	}
	if len(frags) == 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "upload: read %s", dir)
	}

	log := zap.L().With(zap.String("component", "upload.cleanup"))
	var removed []string
	var firstErr error
	for _, e := range entries {
		if !matchesAny(e.Name(), frags) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			log.Warn("failed to remove temp file", zap.String("name", e.Name()), zap.Error(err))
			if firstErr == nil {
				firstErr = eris.Wrapf(err, "upload: remove %s", e.Name())
			}
			continue
		}
		removed = append(removed, e.Name())
	}
	log.Info("removed temp files", zap.Int("count", len(removed)))
	return removed, firstErr
}

func matchesAny(name string, frags []string) bool {
	for _, f := range frags {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}
