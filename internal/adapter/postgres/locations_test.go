package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*LocationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLocationRepository(sqlx.NewDb(db, "postgres"), logger), mock
}

var locationsQueryRE = regexp.QuoteMeta("SELECT lat, lon, name, road_class")

func TestLocationRepository_Locations(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"lat", "lon", "name", "road_class"}).
		AddRow(37.5407, -77.4360, "Richmond", "interstate").
		AddRow(38.0293, -78.4767, nil, nil).
		AddRow(95.0, -77.0, "Bad", "local")
	mock.ExpectQuery(locationsQueryRE).WillReturnRows(rows)

	got, err := repo.Locations(context.Background())
	require.NoError(t, err)

	want := []domain.Location{
		{Lat: 37.5407, Lon: -77.4360, Name: "Richmond", RoadClass: "interstate"},
		{Lat: 38.0293, Lon: -78.4767},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("locations mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepository_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(locationsQueryRE).WillReturnRows(sqlmock.NewRows([]string{"lat", "lon", "name", "road_class"}))

	got, err := repo.Locations(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLocationRepository_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(locationsQueryRE).WillReturnError(errors.New("relation \"crash_locations\" does not exist"))

	_, err := repo.Locations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query locations")
}

func TestLocationRepository_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewLocationRepository(sqlx.NewDb(db, "postgres"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	mock.ExpectPing()
	require.NoError(t, repo.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	assert.Error(t, repo.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
