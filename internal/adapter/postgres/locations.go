// Package postgres loads the prediction location set from Postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const locationsQuery = `
	SELECT lat, lon, name, road_class
	FROM crash_locations
	ORDER BY id`

type locationRow struct {
	Lat       float64        `db:"lat"`
	Lon       float64        `db:"lon"`
	Name      sql.NullString `db:"name"`
	RoadClass sql.NullString `db:"road_class"`
}

// LocationRepository reads locations from the crash_locations table.
type LocationRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Connect opens and pings a postgres connection.
func Connect(ctx context.Context, connStr string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// NewLocationRepository wraps an open database handle.
func NewLocationRepository(db *sqlx.DB, logger *slog.Logger) *LocationRepository {
	return &LocationRepository{db: db, logger: logger}
}

// Locations returns all valid locations ordered by id. Rows with
// out-of-range coordinates are skipped.
func (r *LocationRepository) Locations(ctx context.Context) ([]domain.Location, error) {
	var rows []locationRow
	if err := r.db.SelectContext(ctx, &rows, locationsQuery); err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}

	locs := make([]domain.Location, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		loc := domain.Location{
			Lat:       row.Lat,
			Lon:       row.Lon,
			Name:      row.Name.String,
			RoadClass: row.RoadClass.String,
		}
		if !loc.Valid() {
			skipped++
			continue
		}
		locs = append(locs, loc)
	}
	if skipped > 0 {
		r.logger.Warn("skipped invalid location rows", "skipped", skipped)
	}
	r.logger.Info("locations loaded", "source", "postgres", "locations", len(locs))
	return locs, nil
}

// Ping checks connectivity.
func (r *LocationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
