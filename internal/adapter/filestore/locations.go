package filestore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/spf13/afero"
)

// LocationFile loads the location set from a CSV file with a lat,lon header
// and optional name and road_class columns.
type LocationFile struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger
}

// NewLocationFile creates a loader for path.
func NewLocationFile(fsys afero.Fs, path string, logger *slog.Logger) *LocationFile {
	return &LocationFile{fs: fsys, path: path, logger: logger}
}

// Locations reads and parses the file on every call.
func (l *LocationFile) Locations(_ context.Context) ([]domain.Location, error) {
	f, err := l.fs.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open locations file: %w", err)
	}
	defer f.Close()

	locs, skipped, err := domain.DecodeLocationsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.path, err)
	}
	if skipped > 0 {
		l.logger.Warn("skipped invalid location rows", "path", l.path, "skipped", skipped)
	}
	l.logger.Info("locations loaded", "path", l.path, "locations", len(locs))
	return locs, nil
}
