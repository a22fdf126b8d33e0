// Package filestore keeps prediction sets and location lists on a
// filesystem, one CSV file per date.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/spf13/afero"
)

const filePrefix = "predictions_"

// PredictionStore is the persistent cache tier backed by CSV files.
type PredictionStore struct {
	fs  afero.Fs
	dir string
}

// NewPredictionStore creates dir if needed and returns a store rooted there.
func NewPredictionStore(fsys afero.Fs, dir string) (*PredictionStore, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &PredictionStore{fs: fsys, dir: dir}, nil
}

// Path returns the file holding date's predictions.
func (s *PredictionStore) Path(date string) (string, error) {
	key, err := domain.CanonicalDate(date)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filePrefix+key+".csv"), nil
}

// Load reads the prediction set for date. A missing file is a miss, not an
// error. CreatedAt is the file's modification time.
func (s *PredictionStore) Load(_ context.Context, date string) (domain.CacheEntry, bool, error) {
	path, err := s.Path(date)
	if err != nil {
		return domain.CacheEntry{}, false, err
	}

	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.CacheEntry{}, false, nil
		}
		return domain.CacheEntry{}, false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("stat %s: %w", path, err)
	}
	preds, err := domain.DecodePredictionsCSV(f)
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("decode %s: %w", path, err)
	}

	key, _ := domain.CanonicalDate(date)
	return domain.CacheEntry{Date: key, Predictions: preds, CreatedAt: info.ModTime().UTC()}, true, nil
}

// Save writes the entry to a temporary file and renames it into place, so
// readers never observe a partially written set.
func (s *PredictionStore) Save(_ context.Context, entry domain.CacheEntry) error {
	path, err := s.Path(entry.Date)
	if err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, s.dir, filePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := domain.EncodePredictionsCSV(tmp, entry.Predictions); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// Delete removes the file for date. Deleting a missing date is not an error.
func (s *PredictionStore) Delete(_ context.Context, date string) error {
	path, err := s.Path(date)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
